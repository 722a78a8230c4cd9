package vector

import (
	"math"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 2}, []float32{-1, -2}, -1},
		{"scale invariant", []float32{1, 1}, []float32{3, 3}, 1},
		{"zero norm query", []float32{1, 0}, []float32{0, 0}, 0},
		{"zero norm record", []float32{0, 0}, []float32{0, 1}, 0},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CosineSimilarity(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
			if math.IsNaN(got) {
				t.Error("got NaN")
			}
		})
	}
}

func TestCosineSimilarity_selfIsOne(t *testing.T) {
	vectors := [][]float32{
		{0.3, -0.7, 1.2, 4},
		{1e-3, 2e-3, 3e-3},
		{-5, 0, 0, 0, 0, 9},
	}
	for _, v := range vectors {
		if got := CosineSimilarity(v, v); math.Abs(got-1) > 1e-6 {
			t.Errorf("CosineSimilarity(v, v) = %v, want 1 for %v", got, v)
		}
	}
}

func TestL2NormAndInnerProduct(t *testing.T) {
	if got := L2Norm([]float32{3, 4}); got != 5 {
		t.Errorf("L2Norm = %v, want 5", got)
	}
	if got := InnerProduct([]float32{1, 2, 3}, []float32{4, 5, 6}); got != 32 {
		t.Errorf("InnerProduct = %v, want 32", got)
	}
}
