package ordering

import (
	"fmt"

	"github.com/vaulted/rankkey"
)

// Neighbors are the effective ranks directly above and below a destination
// position. A missing neighbor means the position is at an edge.
type Neighbors struct {
	Lower    string
	HasLower bool
	Upper    string
	HasUpper bool
}

// Generate returns the key for a position between n.Lower and n.Upper:
//
//   - no neighbors: the canonical middle key
//   - top edge: r.Before(upper)
//   - bottom edge: r.After(lower)
//   - otherwise: r.Between(lower, upper), which appends after lower when
//     both neighbors share a key
//
// It fails when a neighbor does not parse or no key can be generated. Callers
// that must not fail use the middle key instead, as the Orderer does.
func Generate(r *rankkey.Ranker, n Neighbors) (rankkey.Key, error) {
	var lower, upper rankkey.Key
	var err error
	if n.HasLower {
		if lower, err = rankkey.Parse(n.Lower); err != nil {
			return rankkey.Key{}, fmt.Errorf("lower neighbor: %w", err)
		}
	}
	if n.HasUpper {
		if upper, err = rankkey.Parse(n.Upper); err != nil {
			return rankkey.Key{}, fmt.Errorf("upper neighbor: %w", err)
		}
	}

	switch {
	case !n.HasLower && !n.HasUpper:
		return rankkey.Middle(), nil
	case !n.HasLower:
		return r.Before(upper)
	case !n.HasUpper:
		return r.After(lower)
	default:
		return r.Between(lower, upper)
	}
}

// appendKey returns the key for an item entering a context after its last
// entry: Next(last), or the middle key for an empty context.
func appendKey(r *rankkey.Ranker, n Neighbors) (rankkey.Key, error) {
	if !n.HasLower {
		return rankkey.Middle(), nil
	}
	last, err := rankkey.Parse(n.Lower)
	if err != nil {
		return rankkey.Key{}, fmt.Errorf("last entry: %w", err)
	}
	return r.Next(last)
}
