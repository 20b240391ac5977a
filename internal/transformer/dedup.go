package transformer

import (
	"fmt"
	"sort"
	"strings"
)

// Policy selects the survivor among records sharing a key.
type Policy string

const (
	// KeepFirst keeps the earliest occurrence in input order.
	KeepFirst Policy = "keep-first"
	// KeepLast keeps the latest occurrence in input order (default).
	KeepLast Policy = "keep-last"
	// MostComplete keeps the occurrence with the most non-null fields; ties
	// break by keep-last.
	MostComplete Policy = "most-complete"
)

// ParsePolicy normalizes s; "" means KeepLast.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return KeepLast, nil
	case KeepFirst, KeepLast, MostComplete:
		return p, nil
	default:
		return "", fmt.Errorf("unknown dedup policy %q (want keep-first, keep-last or most-complete)", s)
	}
}

// DeDup collapses records sharing a key to one survivor chosen by Policy.
//
// Key returns ok=false for records that cannot be keyed; those are dropped
// and counted rather than passed through. Score is consulted only by
// MostComplete.
type DeDup[T any] struct {
	Key    func(T) (string, bool)
	Score  func(T) int
	Policy Policy
}

// Apply returns the survivors ordered by the input position of each
// survivor, and the number of records dropped for lacking a key.
func (d DeDup[T]) Apply(in []T) (out []T, unkeyed int) {
	if len(in) == 0 {
		return nil, 0
	}
	policy := d.Policy
	if policy == "" {
		policy = KeepLast
	}

	type slot struct {
		index int
		score int
	}
	winners := make(map[string]slot, len(in))

	for i, r := range in {
		key, ok := d.Key(r)
		if !ok {
			unkeyed++
			continue
		}
		switch policy {
		case KeepFirst:
			if _, exists := winners[key]; !exists {
				winners[key] = slot{index: i}
			}
		case MostComplete:
			s := slot{index: i}
			if d.Score != nil {
				s.score = d.Score(r)
			}
			if prev, exists := winners[key]; !exists || s.score >= prev.score {
				winners[key] = s
			}
		default:
			winners[key] = slot{index: i}
		}
	}

	indexes := make([]int, 0, len(winners))
	for _, s := range winners {
		indexes = append(indexes, s.index)
	}
	sort.Ints(indexes)

	out = make([]T, 0, len(indexes))
	for _, idx := range indexes {
		out = append(out, in[idx])
	}
	return out, unkeyed
}
