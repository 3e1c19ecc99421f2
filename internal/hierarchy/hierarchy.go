// Package hierarchy implements the persistent incremental index over item
// feature vectors: insertion, threshold-based flat cluster extraction,
// representative selection, pruning, and snapshot save/load.
//
// Internally the index keeps every inserted vector as a leaf and groups
// leaves into coarse centroid buckets. The lower/upper limit scales govern
// how aggressively buckets merge and split as data arrives: a new vector
// joins its nearest bucket when the centroid distance is within
// upper*mean-neighbor-distance, and buckets whose centroids drift within
// lower*mean merge. Buckets only prune the candidate pairs Clusters has to
// examine; they never change which leaves end up grouped.
package hierarchy

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ppiankov/storyline/internal/vectorize"
)

// ErrUnknownNode is returned when an operation references an internal node
// id the index has never assigned.
var ErrUnknownNode = errors.New("hierarchy: unknown node id")

type leaf struct {
	Vector   vectorize.Vector `msgpack:"v"`
	External string           `msgpack:"e"`
	Pruned   bool             `msgpack:"p"`
	Bucket   int              `msgpack:"b"`
}

type bucket struct {
	Centroid vectorize.Vector `msgpack:"c"`
	Members  []int            `msgpack:"m"`
}

// Hierarchy is the incremental index. It is not safe for concurrent use;
// one clustering pass owns it at a time (external mutual exclusion).
type Hierarchy struct {
	metric   string
	lower    float64
	upper    float64
	leaves   []leaf
	buckets  []bucket
	external map[string][]int
	meanDist float64
	samples  int
}

// New creates an empty hierarchy with the given distance metric
// ("euclidean" or "cosine") and merge/split limit scales.
func New(metric string, lowerLimitScale, upperLimitScale float64) *Hierarchy {
	return &Hierarchy{
		metric:   metric,
		lower:    lowerLimitScale,
		upper:    upperLimitScale,
		external: make(map[string][]int),
	}
}

// Len returns the total number of nodes ever inserted, pruned included.
func (h *Hierarchy) Len() int { return len(h.leaves) }

// Fit inserts one vector per row and returns the internal node id assigned
// to each, in insertion order. Ids are stable: inserting more vectors never
// invalidates previously assigned ids. externals carries the persistent id
// owning each row; one external id may accumulate several internal ids over
// re-insertions.
func (h *Hierarchy) Fit(vectors []vectorize.Vector, externals []string) ([]int, error) {
	if len(vectors) != len(externals) {
		return nil, fmt.Errorf("hierarchy: %d vectors for %d external ids", len(vectors), len(externals))
	}
	iids := make([]int, len(vectors))
	for i, vec := range vectors {
		iids[i] = h.insert(vec, externals[i])
	}
	return iids, nil
}

func (h *Hierarchy) insert(vec vectorize.Vector, external string) int {
	iid := len(h.leaves)
	bi := h.placeBucket(vec)
	h.leaves = append(h.leaves, leaf{Vector: vec, External: external, Bucket: bi})
	h.buckets[bi].Members = append(h.buckets[bi].Members, iid)
	h.external[external] = append(h.external[external], iid)
	return iid
}

// placeBucket picks (or creates) the bucket for a new vector and returns
// its index.
func (h *Hierarchy) placeBucket(vec vectorize.Vector) int {
	if len(h.buckets) == 0 {
		h.buckets = append(h.buckets, bucket{Centroid: cloneVec(vec)})
		return 0
	}

	nearest, d := h.nearestBucket(vec)
	h.meanDist = (h.meanDist*float64(h.samples) + d) / float64(h.samples+1)
	h.samples++

	if d > h.upper*h.meanDist {
		h.buckets = append(h.buckets, bucket{Centroid: cloneVec(vec)})
		return len(h.buckets) - 1
	}

	h.absorb(nearest, vec)
	h.maybeMerge(nearest)
	return nearest
}

func (h *Hierarchy) nearestBucket(vec vectorize.Vector) (int, float64) {
	best, bestD := 0, h.distance(vec, h.buckets[0].Centroid)
	for i := 1; i < len(h.buckets); i++ {
		if d := h.distance(vec, h.buckets[i].Centroid); d < bestD {
			best, bestD = i, d
		}
	}
	return best, bestD
}

// absorb moves the bucket centroid toward the new vector by the incremental
// mean update.
func (h *Hierarchy) absorb(bi int, vec vectorize.Vector) {
	b := &h.buckets[bi]
	n := float64(len(b.Members) + 1)
	for j := range b.Centroid {
		b.Centroid[j] += (vec[j] - b.Centroid[j]) / n
	}
}

// maybeMerge folds bucket bi into its nearest sibling when the updated
// centroid has drifted inside the lower merge limit.
func (h *Hierarchy) maybeMerge(bi int) {
	if len(h.buckets) < 2 || h.samples == 0 {
		return
	}
	nearest, nearestD := -1, 0.0
	for i := range h.buckets {
		if i == bi {
			continue
		}
		d := h.distance(h.buckets[bi].Centroid, h.buckets[i].Centroid)
		if nearest < 0 || d < nearestD {
			nearest, nearestD = i, d
		}
	}
	if nearest < 0 || nearestD > h.lower*h.meanDist {
		return
	}

	dst, src := nearest, bi
	if dst > src {
		dst, src = src, dst
	}
	h.mergeBuckets(dst, src)
}

func (h *Hierarchy) mergeBuckets(dst, src int) {
	a, b := &h.buckets[dst], &h.buckets[src]
	na, nb := float64(len(a.Members)), float64(len(b.Members))
	if na+nb > 0 {
		for j := range a.Centroid {
			a.Centroid[j] = (a.Centroid[j]*na + b.Centroid[j]*nb) / (na + nb)
		}
	}
	a.Members = append(a.Members, b.Members...)
	for _, iid := range b.Members {
		h.leaves[iid].Bucket = dst
	}

	last := len(h.buckets) - 1
	if src != last {
		h.buckets[src] = h.buckets[last]
		for _, iid := range h.buckets[src].Members {
			h.leaves[iid].Bucket = src
		}
	}
	h.buckets = h.buckets[:last]
}

// Clusters partitions all currently queryable (non-pruned) nodes into
// groups whose members are connected by pairwise distances within
// threshold (single linkage). Every queryable node appears in exactly one
// group; singletons are returned as groups of size 1, never dropped.
// Minimum-size filtering is the caller's policy.
func (h *Hierarchy) Clusters(threshold float64) [][]int {
	parent := make(map[int]int)
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[rb] = ra
		}
	}

	type bstat struct {
		members []int
		radius  float64
	}
	stats := make([]bstat, len(h.buckets))
	for bi := range h.buckets {
		for _, iid := range h.buckets[bi].Members {
			if h.leaves[iid].Pruned {
				continue
			}
			parent[iid] = iid
			stats[bi].members = append(stats[bi].members, iid)
			d := h.distance(h.leaves[iid].Vector, h.buckets[bi].Centroid)
			if d > stats[bi].radius {
				stats[bi].radius = d
			}
		}
	}

	linkWithin := func(members []int) {
		for i, a := range members {
			for _, b := range members[i+1:] {
				if h.distance(h.leaves[a].Vector, h.leaves[b].Vector) <= threshold {
					union(a, b)
				}
			}
		}
	}
	// Bucket membership is disjoint, so every (a, b) across two buckets
	// is a distinct pair and must be examined regardless of id order:
	// buckets interleave ids as early buckets keep absorbing later
	// insertions.
	linkAcross := func(as, bs []int) {
		for _, a := range as {
			for _, b := range bs {
				if h.distance(h.leaves[a].Vector, h.leaves[b].Vector) <= threshold {
					union(a, b)
				}
			}
		}
	}

	for i := range stats {
		linkWithin(stats[i].members)
		for j := i + 1; j < len(stats); j++ {
			if len(stats[i].members) == 0 || len(stats[j].members) == 0 {
				continue
			}
			gap := h.distance(h.buckets[i].Centroid, h.buckets[j].Centroid)
			if gap <= threshold+stats[i].radius+stats[j].radius {
				linkAcross(stats[i].members, stats[j].members)
			}
		}
	}

	groups := make(map[int][]int)
	for iid := range parent {
		root := find(iid)
		groups[root] = append(groups[root], iid)
	}
	out := make([][]int, 0, len(groups))
	for _, g := range groups {
		sort.Ints(g)
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

// MostRepresentative returns the node among iids with the minimal total
// distance to the rest of the set. Ties go to the lowest id.
func (h *Hierarchy) MostRepresentative(iids []int) (int, error) {
	if len(iids) == 0 {
		return 0, fmt.Errorf("hierarchy: most representative of empty set")
	}
	for _, iid := range iids {
		if iid < 0 || iid >= len(h.leaves) {
			return 0, fmt.Errorf("%w: %d", ErrUnknownNode, iid)
		}
	}
	sorted := append([]int(nil), iids...)
	sort.Ints(sorted)

	best, bestSum := sorted[0], -1.0
	for _, a := range sorted {
		var sum float64
		for _, b := range sorted {
			if a != b {
				sum += h.distance(h.leaves[a].Vector, h.leaves[b].Vector)
			}
		}
		if bestSum < 0 || sum < bestSum {
			best, bestSum = a, sum
		}
	}
	return best, nil
}

// Prune marks the given nodes as no longer queryable for future Clusters
// calls. The external-id mapping is retained for audit; unknown ids are
// ignored.
func (h *Hierarchy) Prune(iids []int) {
	for _, iid := range iids {
		if iid >= 0 && iid < len(h.leaves) {
			h.leaves[iid].Pruned = true
		}
	}
}

// ToIID returns the most recent internal node id assigned to the given
// external id.
func (h *Hierarchy) ToIID(external string) (int, bool) {
	iids := h.external[external]
	if len(iids) == 0 {
		return 0, false
	}
	return iids[len(iids)-1], true
}

// External returns the external id owning the given internal node.
func (h *Hierarchy) External(iid int) (string, bool) {
	if iid < 0 || iid >= len(h.leaves) {
		return "", false
	}
	return h.leaves[iid].External, true
}

// Externals maps a set of internal node ids back to their owning external
// ids, in input order.
func (h *Hierarchy) Externals(iids []int) ([]string, error) {
	out := make([]string, len(iids))
	for i, iid := range iids {
		ext, ok := h.External(iid)
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownNode, iid)
		}
		out[i] = ext
	}
	return out, nil
}

func (h *Hierarchy) distance(a, b vectorize.Vector) float64 {
	if h.metric == "cosine" {
		return vectorize.CosineDistance(a, b)
	}
	return vectorize.Euclidean(a, b)
}

func cloneVec(v vectorize.Vector) vectorize.Vector {
	out := make(vectorize.Vector, len(v))
	copy(out, v)
	return out
}
