package relational

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ronith256/rag-agent/internal/shared"
	"github.com/ronith256/rag-agent/internal/storage/models"
)

// maxResultRows bounds how much query output is folded into a prompt.
const maxResultRows = 50

// Client is the relational-query gateway for one agent database. Instances
// are scoped to a single pipeline invocation.
type Client struct {
	db *gorm.DB
}

func Connect(cfg *models.SQLConfig) (*Client, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, shared.Upstream("relational connect", err)
	}

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SchemaSummary introspects all columns grouped by table, ordered by table
// name, rendered one table per line as `table: [col1, col2, ...]`.
func (c *Client) SchemaSummary(ctx context.Context) (string, error) {
	rows, err := c.db.WithContext(ctx).Raw(`
		SELECT table_name, column_name
		FROM information_schema.columns
		WHERE table_schema = 'public'
		ORDER BY table_name, ordinal_position
	`).Rows()
	if err != nil {
		return "", shared.Upstream("schema introspection", err)
	}
	defer rows.Close()

	var order []string
	columns := make(map[string][]string)

	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return "", shared.Upstream("schema scan", err)
		}
		if _, seen := columns[table]; !seen {
			order = append(order, table)
		}
		columns[table] = append(columns[table], column)
	}
	if err := rows.Err(); err != nil {
		return "", shared.Upstream("schema iteration", err)
	}

	var b strings.Builder
	for _, table := range order {
		fmt.Fprintf(&b, "%s: [%s]\n", table, strings.Join(columns[table], ", "))
	}

	return b.String(), nil
}

// Execute runs one SQL statement and returns its result as text: a header
// row of column names followed by pipe-separated value rows.
func (c *Client) Execute(ctx context.Context, sqlText string) (string, error) {
	rows, err := c.db.WithContext(ctx).Raw(sqlText).Rows()
	if err != nil {
		return "", shared.Upstream("query execution", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return "", shared.Upstream("query columns", err)
	}

	var b strings.Builder
	b.WriteString(strings.Join(cols, " | "))
	b.WriteString("\n")

	values := make([]sql.NullString, len(cols))
	scanArgs := make([]any, len(cols))
	for i := range values {
		scanArgs[i] = &values[i]
	}

	count := 0
	for rows.Next() {
		if count >= maxResultRows {
			fmt.Fprintf(&b, "... (truncated at %d rows)\n", maxResultRows)
			break
		}

		if err := rows.Scan(scanArgs...); err != nil {
			return "", shared.Upstream("query scan", err)
		}

		fields := make([]string, len(values))
		for i, v := range values {
			if v.Valid {
				fields[i] = v.String
			} else {
				fields[i] = "NULL"
			}
		}
		b.WriteString(strings.Join(fields, " | "))
		b.WriteString("\n")
		count++
	}
	if err := rows.Err(); err != nil {
		return "", shared.Upstream("query iteration", err)
	}

	return b.String(), nil
}
