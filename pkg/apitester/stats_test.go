package apitester

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentile(t *testing.T) {
	samples := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	tests := []struct {
		name   string
		sorted []float64
		p      float64
		want   float64
	}{
		{"empty returns zero", nil, 95, 0},
		{"single sample", []float64{42}, 95, 42},
		{"p0 is minimum", samples, 0, 1},
		{"p100 is maximum", samples, 100, 10},
		{"median interpolates", samples, 50, 5.5},
		{"p95 interpolates", samples, 95, 9.55},
		{"integral rank takes lower sample", []float64{10, 20, 30, 40, 50}, 25, 20},
		{"integral rank upper range", []float64{10, 20, 30, 40, 50}, 75, 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Percentile(tt.sorted, tt.p), 1e-9)
		})
	}
}

func TestPercentile_MonotonicInP(t *testing.T) {
	samples := []float64{3, 9, 14, 20, 21, 33, 47, 58, 71, 90}

	prev := Percentile(samples, 0)
	for p := 1.0; p <= 100; p++ {
		cur := Percentile(samples, p)
		assert.GreaterOrEqual(t, cur, prev, "percentile must not decrease at p=%v", p)
		prev = cur
	}
}
