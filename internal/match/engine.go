// Package match implements the greedy assignment of owned assets to the
// outstanding targets of a game.
package match

import (
	"sort"

	"github.com/elliotchance/pie/v2"
)

// Candidate is an owned asset with its resolved mint number.
type Candidate struct {
	AssetID uint64
	Mint    uint16
}

// Match pairs a satisfied target with the asset that satisfied it.
type Match struct {
	Target  uint16
	AssetID uint64
	Mint    uint16
}

type scored struct {
	Candidate
	score float64
}

// Assign walks the remainder in ascending order and, for each target,
// picks the best candidate within offset. An exact mint wins outright;
// otherwise candidates are ranked by distance plus a small target-derived
// term that breaks distance ties deterministically in favour of smaller
// targets. A matched mint value is removed from the pool entirely, so
// duplicates of the same mint cannot satisfy a second target in the same
// pass. Targets without a close-enough candidate are skipped.
func Assign(remainder []uint16, owned []Candidate, offset uint16, maxMint uint64) []Match {
	targets := make([]uint16, len(remainder))
	copy(targets, remainder)
	sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })

	pool := make([]Candidate, len(owned))
	copy(pool, owned)

	var matches []Match

	for _, target := range targets {
		var shortlist []scored

		for _, c := range pool {
			diff := absDiff(c.Mint, target)
			if diff > int(offset) {
				continue
			}

			if diff == 0 {
				// Exact match beats any score.
				shortlist = []scored{{Candidate: c}}
				break
			}

			shortlist = append(shortlist, scored{
				Candidate: c,
				score:     float64(diff) + float64(target)/float64(maxMint*10),
			})
		}

		if len(shortlist) == 0 {
			continue
		}

		shortlist = pie.SortUsing(shortlist, func(a, b scored) bool {
			return a.score < b.score
		})
		best := shortlist[0]

		matches = append(matches, Match{Target: target, AssetID: best.AssetID, Mint: best.Mint})

		pool = pie.Filter(pool, func(c Candidate) bool {
			return c.Mint != best.Mint
		})
	}

	return matches
}

// Remainder returns the multiset difference toCollect minus collected,
// sorted ascending.
func Remainder(toCollect, collected []uint16) []uint16 {
	a := make([]uint16, len(toCollect))
	copy(a, toCollect)
	b := make([]uint16, len(collected))
	copy(b, collected)
	sort.Slice(a, func(i, j int) bool { return a[i] < a[j] })
	sort.Slice(b, func(i, j int) bool { return b[i] < b[j] })

	var out []uint16
	i, j := 0, 0
	for i < len(a) {
		switch {
		case j >= len(b) || a[i] < b[j]:
			out = append(out, a[i])
			i++
		case a[i] > b[j]:
			j++
		default:
			i++
			j++
		}
	}

	return out
}

func absDiff(a, b uint16) int {
	d := int(a) - int(b)
	if d < 0 {
		return -d
	}
	return d
}
