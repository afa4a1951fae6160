package simulator

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

type HeightStats struct {
	Min, Max, Mean float64
}

func StatsOf(heights []float32) HeightStats {
	if len(heights) == 0 {
		return HeightStats{}
	}
	xs := make([]float64, len(heights))
	for i, h := range heights {
		xs[i] = float64(h)
	}
	return HeightStats{
		Min:  floats.Min(xs),
		Max:  floats.Max(xs),
		Mean: stat.Mean(xs, nil),
	}
}

// MaxWindSpeed is the largest cell magnitude in the field.
func MaxWindSpeed(w WindField) float64 {
	speeds := make([]float64, len(w))
	for i, v := range w {
		speeds[i] = math.Hypot(float64(v.X), float64(v.Y))
	}
	return floats.Max(speeds)
}
