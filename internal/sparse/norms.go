package sparse

import "math"

// WeightedInfNorm returns max_i |vec[i] * weights[i]|.
// The slices must have the same length.
func WeightedInfNorm(vec, weights []float64) float64 {
	norm := 0.0
	for i := range vec {
		p := math.Abs(vec[i] * weights[i])
		if p > norm {
			norm = p
		}
	}
	return norm
}

// WeightedL2Norm returns sqrt(sum_i (vec[i] * weights[i])^2).
// The slices must have the same length.
func WeightedL2Norm(vec, weights []float64) float64 {
	sq := 0.0
	for i := range vec {
		p := vec[i] * weights[i]
		sq += p * p
	}
	return math.Sqrt(sq)
}

// WeightedInfNormSub returns the weighted infinity norm restricted to the
// entries of vec selected by idx. idx and weights must have the same length.
func WeightedInfNormSub(vec []float64, idx []int, weights []float64) float64 {
	norm := 0.0
	for i := range idx {
		p := math.Abs(vec[idx[i]] * weights[i])
		if p > norm {
			norm = p
		}
	}
	return norm
}

// WeightedL2NormSub returns the weighted L2 norm restricted to the entries of
// vec selected by idx. idx and weights must have the same length.
func WeightedL2NormSub(vec []float64, idx []int, weights []float64) float64 {
	sq := 0.0
	for i := range idx {
		p := vec[idx[i]] * weights[i]
		sq += p * p
	}
	return math.Sqrt(sq)
}
