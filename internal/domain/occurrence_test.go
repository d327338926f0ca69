package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dateOfDay(year, doy int) time.Time {
	return time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, doy-1)
}

func singleBand(t *testing.T, doy int, rows [][]float64) RasterFrame {
	t.Helper()
	g, err := GridFromRows(rows)
	require.NoError(t, err)
	return RasterFrame{
		Date:      dateOfDay(2023, doy),
		DayOfYear: doy,
		Bands:     []Grid{g},
		Transform: Affine{0, 1, 0, float64(g.Height), 0, -1},
		Width:     g.Width,
		Height:    g.Height,
	}
}

func constantStack(t *testing.T, values []float64, days []int) *RasterStack {
	t.Helper()
	var s RasterStack
	for i, v := range values {
		require.NoError(t, s.Append(singleBand(t, days[i], [][]float64{{v, v}, {v, v}}), ""))
	}
	return &s
}

func gridOf(v float64) [][]*float64 {
	return [][]*float64{{&v, &v}, {&v, &v}}
}

func TestAnalyzeOccurrence_Scenario(t *testing.T) {
	s := constantStack(t, []float64{5, 50, 200}, []int{10, 100, 300})

	got, err := AnalyzeOccurrence(s, ValueRange{Lower: 40, Upper: 210}, FrameFilter{})
	require.NoError(t, err)

	assert.Equal(t, gridOf(2), got.DaysInRange.Rows())
	assert.Equal(t, gridOf(200), got.MeanDayOfOccurrence.Rows())
	assert.Equal(t, gridOf(300), got.DayOfMaximum.Rows())
	assert.Equal(t, 3, got.FramesUsed)
}

func TestAnalyzeOccurrence_Idempotent(t *testing.T) {
	s := constantStack(t, []float64{5, 50, 200}, []int{10, 100, 300})
	r := ValueRange{Lower: 40, Upper: 210}

	a, err := AnalyzeOccurrence(s, r, FrameFilter{})
	require.NoError(t, err)
	b, err := AnalyzeOccurrence(s, r, FrameFilter{})
	require.NoError(t, err)
	assert.Equal(t, a.DaysInRange.Values, b.DaysInRange.Values)
}

func TestAnalyzeOccurrence_BoundsInclusive(t *testing.T) {
	s := constantStack(t, []float64{40, 210, 211}, []int{1, 2, 3})

	got, err := AnalyzeOccurrence(s, ValueRange{Lower: 40, Upper: 210}, FrameFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2.0, got.DaysInRange.At(0, 0))
	assert.Equal(t, 2.0, got.DayOfMaximum.At(0, 0))
}

func TestAnalyzeOccurrence_EarliestMaximumWins(t *testing.T) {
	s := constantStack(t, []float64{50, 80, 80}, []int{10, 100, 300})

	got, err := AnalyzeOccurrence(s, ValueRange{Lower: 0, Upper: 100}, FrameFilter{})
	require.NoError(t, err)
	assert.Equal(t, 100.0, got.DayOfMaximum.At(1, 1))
}

func TestAnalyzeOccurrence_MaximumIgnoresOutOfRange(t *testing.T) {
	s := constantStack(t, []float64{50, 500, 60}, []int{10, 100, 300})

	got, err := AnalyzeOccurrence(s, ValueRange{Lower: 0, Upper: 100}, FrameFilter{})
	require.NoError(t, err)
	assert.Equal(t, 300.0, got.DayOfMaximum.At(0, 0))
}

func TestAnalyzeOccurrence_UndefinedWhereNoneInRange(t *testing.T) {
	nan := math.NaN()
	var s RasterStack
	require.NoError(t, s.Append(singleBand(t, 10, [][]float64{{nan, 1}}), ""))
	require.NoError(t, s.Append(singleBand(t, 20, [][]float64{{nan, 99}}), ""))

	got, err := AnalyzeOccurrence(&s, ValueRange{Lower: 50, Upper: 100}, FrameFilter{})
	require.NoError(t, err)

	assert.Equal(t, 0.0, got.DaysInRange.At(0, 0))
	assert.True(t, math.IsNaN(got.MeanDayOfOccurrence.At(0, 0)))
	assert.True(t, math.IsNaN(got.DayOfMaximum.At(0, 0)))

	assert.Equal(t, 1.0, got.DaysInRange.At(1, 0))
	assert.Equal(t, 20.0, got.MeanDayOfOccurrence.At(1, 0))
	assert.Equal(t, 20.0, got.DayOfMaximum.At(1, 0))
}

func TestAnalyzeOccurrence_FrameFilter(t *testing.T) {
	s := constantStack(t, []float64{50, 50, 50}, []int{10, 100, 300})
	from := dateOfDay(2023, 50)

	tests := []struct {
		name     string
		filter   FrameFilter
		wantDays float64
		wantUsed int
	}{
		{name: "from", filter: FrameFilter{From: &from}, wantDays: 2, wantUsed: 2},
		{name: "months", filter: FrameFilter{Months: []int{1}}, wantDays: 1, wantUsed: 1},
		{name: "years miss", filter: FrameFilter{Years: []int{2022}}, wantDays: 0, wantUsed: 0},
		{name: "none", filter: FrameFilter{}, wantDays: 3, wantUsed: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AnalyzeOccurrence(s, ValueRange{Lower: 0, Upper: 100}, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.wantDays, got.DaysInRange.At(0, 0))
			assert.Equal(t, tt.wantUsed, got.FramesUsed)
		})
	}
}

func TestAnalyzeOccurrence_InvalidInput(t *testing.T) {
	s := constantStack(t, []float64{1}, []int{1})

	_, err := AnalyzeOccurrence(s, ValueRange{Lower: 10, Upper: 1}, FrameFilter{})
	require.ErrorIs(t, err, ErrInvalidRange)

	_, err = AnalyzeOccurrence(&RasterStack{}, ValueRange{Lower: 0, Upper: 1}, FrameFilter{})
	require.ErrorIs(t, err, ErrNoFrames)

	broken := *s
	broken.DaysOfYear = nil
	_, err = AnalyzeOccurrence(&broken, ValueRange{Lower: 0, Upper: 1}, FrameFilter{})
	require.ErrorIs(t, err, ErrLengthMismatch)
}

func TestGroupDaysInRange(t *testing.T) {
	s := constantStack(t, []float64{50, 50, 500, 50}, []int{10, 20, 100, 300})
	r := ValueRange{Lower: 0, Upper: 100}

	months, err := GroupDaysInRange(s, r, PartitionMonth)
	require.NoError(t, err)
	require.Len(t, months, 3)
	assert.Equal(t, 1, months[0].Key)
	assert.Equal(t, "January", months[0].Label)
	assert.Equal(t, 2, months[0].Frames)
	assert.Equal(t, 2.0, months[0].DaysInRange.At(0, 0))
	assert.Equal(t, 4, months[1].Key)
	assert.Equal(t, 0.0, months[1].DaysInRange.At(0, 0))
	assert.Equal(t, 10, months[2].Key)

	years, err := GroupDaysInRange(s, r, PartitionYear)
	require.NoError(t, err)
	require.Len(t, years, 1)
	assert.Equal(t, "2023", years[0].Label)
	assert.Equal(t, 3.0, years[0].DaysInRange.At(1, 1))

	all, err := GroupDaysInRange(s, r, PartitionNone)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 4, all[0].Frames)

	_, err = GroupDaysInRange(s, r, Partition("week"))
	assert.ErrorIs(t, err, ErrInvalidPartition)
}

func TestAverageSample(t *testing.T) {
	nan := math.NaN()
	var s RasterStack
	require.NoError(t, s.Append(singleBand(t, 10, [][]float64{{10, nan, 300}}), ""))
	require.NoError(t, s.Append(singleBand(t, 20, [][]float64{{30, nan, 400}}), ""))
	r := ValueRange{Lower: 0, Upper: 100}

	thr, err := AverageSample(&s, r, FrameFilter{}, AverageThresholded)
	require.NoError(t, err)
	assert.Equal(t, 20.0, thr.At(0, 0))
	assert.True(t, math.IsNaN(thr.At(1, 0)))
	assert.True(t, math.IsNaN(thr.At(2, 0)))

	orig, err := AverageSample(&s, r, FrameFilter{}, AverageOriginal)
	require.NoError(t, err)
	assert.Equal(t, 20.0, orig.At(0, 0))
	assert.True(t, math.IsNaN(orig.At(1, 0)))
	assert.Equal(t, 350.0, orig.At(2, 0))
}
