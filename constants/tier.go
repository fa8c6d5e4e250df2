package constants

import "strings"

// TierName identifies one extraction strategy in the fallback chain.
type TierName string

const (
	TierGenerative TierName = "GENERATIVE" // LLM extraction, disabled by default
	TierEntity     TierName = "ENTITY"     // annotated entities from document AI
	TierTable      TierName = "TABLE"      // detected tables from document AI
	TierText       TierName = "TEXT"       // raw-text pattern scan, last resort
)

// DefaultTierOrder is the fallback preference when no explicit list is
// configured. The generative tier is not in it; enable it via config.
func DefaultTierOrder() []TierName {
	return []TierName{TierEntity, TierTable, TierText}
}

// ParseTierList parses a comma-separated tier list (e.g. from an env var)
// preserving order and dropping empty segments. Unknown names are returned
// so the caller can fail fast on typos.
func ParseTierList(s string) ([]TierName, []string) {
	var tiers []TierName
	var unknown []string
	for _, part := range strings.Split(s, ",") {
		name := TierName(strings.ToUpper(strings.TrimSpace(part)))
		switch name {
		case "":
		case TierGenerative, TierEntity, TierTable, TierText:
			tiers = append(tiers, name)
		default:
			unknown = append(unknown, string(name))
		}
	}
	return tiers, unknown
}
