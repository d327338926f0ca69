package domain

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"time"
)

// ValueRange is an inclusive intensity window.
type ValueRange struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

func (r ValueRange) Validate() error {
	if math.IsNaN(r.Lower) || math.IsNaN(r.Upper) || r.Lower > r.Upper {
		return fmt.Errorf("%w: [%v, %v]", ErrInvalidRange, r.Lower, r.Upper)
	}
	return nil
}

// Contains is false for undefined values.
func (r ValueRange) Contains(v float64) bool {
	return !math.IsNaN(v) && v >= r.Lower && v <= r.Upper
}

// FrameFilter restricts which frames contribute to the main occurrence grids.
// Zero values place no restriction.
type FrameFilter struct {
	From   *time.Time `json:"from,omitempty"`
	To     *time.Time `json:"to,omitempty"`
	Months []int      `json:"months,omitempty"`
	Years  []int      `json:"years,omitempty"`
}

// Matches reports whether a frame dated d passes the filter. From and To are inclusive.
func (f FrameFilter) Matches(d time.Time) bool {
	if f.From != nil && d.Before(*f.From) {
		return false
	}
	if f.To != nil && d.After(*f.To) {
		return false
	}
	if len(f.Months) > 0 && !slices.Contains(f.Months, int(d.Month())) {
		return false
	}
	if len(f.Years) > 0 && !slices.Contains(f.Years, d.Year()) {
		return false
	}
	return true
}

// OccurrenceGrids are the pixel-wise timing statistics over a stack.
type OccurrenceGrids struct {
	DaysInRange         Grid `json:"days_in_range"`
	MeanDayOfOccurrence Grid `json:"mean_day_of_occurrence"`
	DayOfMaximum        Grid `json:"day_of_maximum"`
	FramesUsed          int  `json:"frames_used"`
}

// AnalyzeOccurrence computes days-in-range, mean day-of-year and day of the
// in-range maximum for every pixel over the frames accepted by f.
func AnalyzeOccurrence(s *RasterStack, r ValueRange, f FrameFilter) (OccurrenceGrids, error) {
	if err := r.Validate(); err != nil {
		return OccurrenceGrids{}, err
	}
	if err := s.Validate(); err != nil {
		return OccurrenceGrids{}, err
	}

	n := s.Width * s.Height
	counts := NewGrid(s.Width, s.Height)
	mean := NewGridFilled(s.Width, s.Height, math.NaN())
	dayOfMax := NewGridFilled(s.Width, s.Height, math.NaN())
	daySums := make([]float64, n)
	maxima := make([]float64, n)

	used := 0
	for t, frame := range s.Frames {
		if !f.Matches(s.Dates[t]) {
			continue
		}
		used++
		doy := float64(s.DaysOfYear[t])
		for i, v := range frame.Bands[0].Values {
			if !r.Contains(v) {
				continue
			}
			// Stack is date ordered, so strict > keeps the earliest frame on ties.
			if counts.Values[i] == 0 || v > maxima[i] {
				maxima[i] = v
				dayOfMax.Values[i] = doy
			}
			counts.Values[i]++
			daySums[i] += doy
		}
	}

	for i, c := range counts.Values {
		if c > 0 {
			mean.Values[i] = daySums[i] / c
		}
	}

	return OccurrenceGrids{
		DaysInRange:         counts,
		MeanDayOfOccurrence: mean,
		DayOfMaximum:        dayOfMax,
		FramesUsed:          used,
	}, nil
}

// Partition selects how grouped occurrence counts are keyed.
type Partition string

const (
	PartitionNone  Partition = "none"
	PartitionMonth Partition = "month"
	PartitionYear  Partition = "year"
)

// ParsePartition accepts "", "none", "month" or "year".
func ParsePartition(s string) (Partition, error) {
	switch Partition(s) {
	case "", PartitionNone:
		return PartitionNone, nil
	case PartitionMonth, PartitionYear:
		return Partition(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPartition, s)
}

// GroupedCount is days-in-range restricted to one month number or calendar year.
type GroupedCount struct {
	Key         int    `json:"key"`
	Label       string `json:"label"`
	Frames      int    `json:"frames"`
	DaysInRange Grid   `json:"days_in_range"`
}

// GroupDaysInRange counts in-range days per month or year over the full stack.
// It never applies a FrameFilter. Groups are ordered by key.
func GroupDaysInRange(s *RasterStack, r ValueRange, p Partition) ([]GroupedCount, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	keyOf := func(time.Time) int { return 0 }
	label := func(int) string { return "all" }
	switch p {
	case PartitionNone, "":
	case PartitionMonth:
		keyOf = func(d time.Time) int { return int(d.Month()) }
		label = func(k int) string { return time.Month(k).String() }
	case PartitionYear:
		keyOf = func(d time.Time) int { return d.Year() }
		label = strconv.Itoa
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidPartition, p)
	}

	groups := make(map[int]*GroupedCount)
	for t, frame := range s.Frames {
		k := keyOf(s.Dates[t])
		g, ok := groups[k]
		if !ok {
			g = &GroupedCount{Key: k, Label: label(k), DaysInRange: NewGrid(s.Width, s.Height)}
			groups[k] = g
		}
		g.Frames++
		for i, v := range frame.Bands[0].Values {
			if r.Contains(v) {
				g.DaysInRange.Values[i]++
			}
		}
	}

	out := make([]GroupedCount, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	slices.SortFunc(out, func(a, b GroupedCount) int { return a.Key - b.Key })
	return out, nil
}
