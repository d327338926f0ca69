package domain

import (
	"fmt"
	"math"
)

// AverageMode selects which values contribute to an average-sample grid.
type AverageMode string

const (
	// AverageThresholded averages only values inside the range.
	AverageThresholded AverageMode = "thresholded"
	// AverageOriginal averages every defined value.
	AverageOriginal AverageMode = "original"
)

func ParseAverageMode(s string) (AverageMode, error) {
	switch AverageMode(s) {
	case "", AverageThresholded:
		return AverageThresholded, nil
	case AverageOriginal:
		return AverageOriginal, nil
	}
	return "", fmt.Errorf("unknown average mode %q", s)
}

// AverageSample returns the per-pixel mean of the frames accepted by f.
// Pixels with no contributing value are NaN.
func AverageSample(s *RasterStack, r ValueRange, f FrameFilter, mode AverageMode) (Grid, error) {
	if mode == AverageThresholded {
		if err := r.Validate(); err != nil {
			return Grid{}, err
		}
	}
	if err := s.Validate(); err != nil {
		return Grid{}, err
	}

	sums := make([]float64, s.Width*s.Height)
	counts := make([]int, len(sums))
	for t, frame := range s.Frames {
		if !f.Matches(s.Dates[t]) {
			continue
		}
		for i, v := range frame.Bands[0].Values {
			if math.IsNaN(v) {
				continue
			}
			if mode == AverageThresholded && !r.Contains(v) {
				continue
			}
			sums[i] += v
			counts[i]++
		}
	}

	out := NewGridFilled(s.Width, s.Height, math.NaN())
	for i, c := range counts {
		if c > 0 {
			out.Values[i] = sums[i] / float64(c)
		}
	}
	return out, nil
}
