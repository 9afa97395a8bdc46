package pipeline

import "github.com/ronith256/rag-agent/internal/storage/models"

// Variant is the closed set of pipeline topologies. Adding a topology means
// adding a case here and a constructor branch in the builder, not new
// conditionals at call sites.
type Variant int

const (
	// RetrievalOnly grounds the answer in retrieved passages alone.
	RetrievalOnly Variant = iota
	// RelationalOnly answers straight from synthesized SQL results.
	RelationalOnly
	// Hybrid merges SQL results and retrieved passages into one prompt.
	Hybrid
)

func (v Variant) String() string {
	switch v {
	case RetrievalOnly:
		return "retrieval"
	case RelationalOnly:
		return "relational"
	case Hybrid:
		return "hybrid"
	default:
		return "unknown"
	}
}

// ParseVariant maps an API-level override string to a Variant.
func ParseVariant(s string) (Variant, bool) {
	switch s {
	case "retrieval":
		return RetrievalOnly, true
	case "relational":
		return RelationalOnly, true
	case "hybrid":
		return Hybrid, true
	default:
		return RetrievalOnly, false
	}
}

// ResolveVariant picks the topology for one invocation: an explicit override
// wins; otherwise a configured sql_config selects Hybrid, else RetrievalOnly.
func ResolveVariant(cfg models.AgentConfig, override *Variant) Variant {
	if override != nil {
		return *override
	}
	if cfg.SQL != nil {
		return Hybrid
	}
	return RetrievalOnly
}
