package vectorize

import "math"

// Vector is a dense feature vector.
type Vector []float64

// L2Norm returns the Euclidean norm of v.
func L2Norm(v Vector) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// JaccardDistance computes the Jaccard distance between two vectors treated
// as binary occupancy sets (a dimension is "present" when nonzero). When
// both vectors are all-zero the distance is undefined; ok is false and the
// caller applies its policy. Length mismatch is treated the same way.
func JaccardDistance(a, b Vector) (float64, bool) {
	if len(a) != len(b) {
		return 0, false
	}
	var inter, union int
	for i := range a {
		pa := a[i] != 0
		pb := b[i] != 0
		if pa || pb {
			union++
			if pa && pb {
				inter++
			}
		}
	}
	if union == 0 {
		return 0, false
	}
	return 1 - float64(inter)/float64(union), true
}

// Euclidean returns the Euclidean distance between a and b.
func Euclidean(a, b Vector) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// CosineDistance returns 1 minus the cosine similarity of a and b. A
// zero-norm operand makes the similarity undefined; two contentless vectors
// are maximally distant by policy, mirroring the Jaccard rule.
func CosineDistance(a, b Vector) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// NormalizeColumns L2-normalizes each column of rows in the half-open
// column range [lo, hi), in place, across the whole batch. All-zero columns
// are left untouched.
func NormalizeColumns(rows []Vector, lo, hi int) {
	if len(rows) == 0 {
		return
	}
	for j := lo; j < hi; j++ {
		var sum float64
		for _, row := range rows {
			sum += row[j] * row[j]
		}
		if sum == 0 {
			continue
		}
		norm := math.Sqrt(sum)
		for _, row := range rows {
			row[j] /= norm
		}
	}
}

// ScaleColumns multiplies each column of rows in [lo, hi) by w, in place.
func ScaleColumns(rows []Vector, lo, hi int, w float64) {
	for _, row := range rows {
		for j := lo; j < hi; j++ {
			row[j] *= w
		}
	}
}
