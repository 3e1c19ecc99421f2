// Package reconcile maps freshly extracted flat clusters onto the
// persisted named entities (events or stories), deciding which entities
// are updated, created, deleted, or unchanged.
package reconcile

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
)

// ErrPartitionViolation is returned when the fresh clusters share a member
// id. The hierarchy guarantees a partition, so overlap is an internal
// logic error and is never silently corrected.
var ErrPartitionViolation = errors.New("reconcile: fresh clusters are not a partition")

// matchThreshold is the minimum sequence-similarity ratio for an existing
// entity to claim a fresh cluster as its update. Half of the historical
// composition persisting means "same underlying topic". A tunable policy
// constant, not a derived value.
const matchThreshold = 0.5

// Existing is one persisted entity and its current member ids. Triage
// processes entities in slice order, and order matters: a claimed fresh
// cluster leaves the candidate pool immediately, so an earlier entity wins
// a contested cluster.
type Existing[M cmp.Ordered] struct {
	ID      string
	Members []M
}

// Result partitions the inputs: every existing id lands in exactly one of
// Update, Delete, or Unchanged, and every fresh cluster in either Update
// values or Create.
type Result[M cmp.Ordered] struct {
	Update    map[string][]M
	Create    [][]M
	Delete    []string
	Unchanged []string
}

// Triage matches existing entities against fresh clusters greedily.
//
// For each existing entity, in input order: an exact member-set match
// (ratio 1.0) marks it unchanged and claims the cluster immediately;
// otherwise the unclaimed cluster with the highest ratio at or above the
// match threshold claims it as an update, ties broken by earliest-scanned
// cluster; with no candidate at all the entity is deleted. Fresh clusters
// left unclaimed become creations.
func Triage[M cmp.Ordered](existing []Existing[M], fresh [][]M) (*Result[M], error) {
	if err := checkPartition(fresh); err != nil {
		return nil, err
	}

	pool := make([][]M, len(fresh))
	for i, cluster := range fresh {
		sorted := append([]M(nil), cluster...)
		slices.Sort(sorted)
		pool[i] = sorted
	}
	claimed := make([]bool, len(pool))

	res := &Result[M]{Update: make(map[string][]M)}

	for _, ent := range existing {
		members := append([]M(nil), ent.Members...)
		slices.Sort(members)

		exact := -1
		bestIdx, bestRatio := -1, 0.0
		for i, candidate := range pool {
			if claimed[i] {
				continue
			}
			r := ratio(members, candidate)
			if r == 1.0 {
				exact = i
				break
			}
			if r >= matchThreshold && r > bestRatio {
				bestIdx, bestRatio = i, r
			}
		}

		switch {
		case exact >= 0:
			claimed[exact] = true
			res.Unchanged = append(res.Unchanged, ent.ID)
		case bestIdx >= 0:
			claimed[bestIdx] = true
			res.Update[ent.ID] = pool[bestIdx]
		default:
			res.Delete = append(res.Delete, ent.ID)
		}
	}

	for i, candidate := range pool {
		if !claimed[i] {
			res.Create = append(res.Create, candidate)
		}
	}
	return res, nil
}

// ratio is the duplicate-aware sequence similarity of two sorted member
// lists: 2*matches/(len(a)+len(b)), where matches is the size of the
// multiset intersection (for sorted input this equals the total length of
// the longest matching blocks). Two empty sequences compare as 0, never 1,
// so an already-emptied entity can't spuriously match.
func ratio[M cmp.Ordered](a, b []M) float64 {
	if len(a)+len(b) == 0 {
		return 0
	}
	var matches, i, j int
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			matches++
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return 2 * float64(matches) / float64(len(a)+len(b))
}

func checkPartition[M cmp.Ordered](fresh [][]M) error {
	seen := make(map[M]bool)
	for _, cluster := range fresh {
		for _, m := range cluster {
			if seen[m] {
				return fmt.Errorf("%w: duplicate member %v", ErrPartitionViolation, m)
			}
			seen[m] = true
		}
	}
	return nil
}
