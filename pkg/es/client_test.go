package es

import (
	"math"
	"testing"
)

func TestCosineFromScore(t *testing.T) {
	cases := []struct {
		score float64
		want  float64
	}{
		{1.0, 1.0},   // 完全同向
		{0.5, 0.0},   // 正交
		{0.0, -1.0},  // 完全反向
		{0.85, 0.7},  // 默认阈值对应的打分
		{0.95, 0.9},
	}
	for _, c := range cases {
		if got := CosineFromScore(c.score); math.Abs(got-c.want) > 1e-9 {
			t.Fatalf("CosineFromScore(%.2f) = %f, want %f", c.score, got, c.want)
		}
	}
}
