package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculate(t *testing.T) {
	tests := []struct {
		name       string
		values     []float64
		wantMean   float64
		wantStdDev float64
	}{
		{name: "empty", values: nil, wantMean: 0, wantStdDev: 0},
		{name: "single value", values: []float64{5}, wantMean: 5, wantStdDev: 0},
		{name: "constant series", values: []float64{7, 7, 7, 7}, wantMean: 7, wantStdDev: 0},
		{name: "ascending", values: []float64{1, 2, 3, 4, 5}, wantMean: 3, wantStdDev: 1.4142135},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Calculate(tt.values)
			assert.InDelta(t, tt.wantMean, s.Mean, 1e-6)
			assert.InDelta(t, tt.wantStdDev, s.StdDev, 1e-6)
		})
	}
}

func TestDetectSigmaOutliers(t *testing.T) {
	t.Run("constant series never flags", func(t *testing.T) {
		values := []float64{100, 100, 100, 100, 100}
		for _, threshold := range []float64{0.1, 1, 3, 10} {
			assert.Empty(t, DetectSigmaOutliers(values, threshold))
		}
	})

	t.Run("single spike flagged", func(t *testing.T) {
		values := []float64{100, 110, 120, 105, 115, 100, 110, 120, 105, 115, 5000}
		got := DetectSigmaOutliers(values, 3)
		assert.Equal(t, []int{10}, got)
	})

	t.Run("no outliers within threshold", func(t *testing.T) {
		values := []float64{10, 11, 12, 13, 14}
		assert.Empty(t, DetectSigmaOutliers(values, 3))
	})

	t.Run("zero threshold falls back to default", func(t *testing.T) {
		values := []float64{100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 5000}
		got := DetectSigmaOutliers(values, 0)
		assert.NotEmpty(t, got)
	})

	t.Run("lower threshold is more sensitive", func(t *testing.T) {
		values := []float64{10, 10, 10, 10, 10, 10, 10, 10, 10, 16}
		assert.Empty(t, DetectSigmaOutliers(values, 3))
		assert.NotEmpty(t, DetectSigmaOutliers(values, 2))
	})
}
