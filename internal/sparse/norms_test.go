package sparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestWeightedInfNorm tests the weighted max-magnitude norm.
func TestWeightedInfNorm(t *testing.T) {
	vec := []float64{3.0, -4.0, 0.5}
	weights := []float64{2.0, 1.0, 10.0}

	// |3*2| = 6, |-4*1| = 4, |0.5*10| = 5
	assert.Equal(t, 6.0, WeightedInfNorm(vec, weights))
	assert.Equal(t, 0.0, WeightedInfNorm(nil, nil))
}

// TestWeightedL2Norm tests the weighted Euclidean norm.
func TestWeightedL2Norm(t *testing.T) {
	vec := []float64{3.0, 4.0}
	weights := []float64{1.0, 1.0}

	assert.InDelta(t, 5.0, WeightedL2Norm(vec, weights), 1e-12)
	assert.Equal(t, 0.0, WeightedL2Norm(nil, nil))
}

// TestWeightedNorms_Subset tests the index-restricted variants.
func TestWeightedNorms_Subset(t *testing.T) {
	vec := []float64{10.0, 3.0, 4.0, 100.0}
	idx := []int{1, 2}
	weights := []float64{1.0, 1.0}

	assert.Equal(t, 4.0, WeightedInfNormSub(vec, idx, weights))
	assert.InDelta(t, 5.0, WeightedL2NormSub(vec, idx, weights), 1e-12)
}
