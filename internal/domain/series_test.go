package domain

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(m time.Month, d int) time.Time { return time.Date(2023, m, d, 0, 0, 0, 0, time.UTC) }

func obs(point string, d time.Time, conc float64) SampleObservation {
	return SampleObservation{PointName: point, Date: d, Color: RGB{G: conc / 2}, Concentration: conc}
}

func TestAggregateSeries(t *testing.T) {
	input := []SampleObservation{
		obs("P2", day(7, 3), 0.4),
		obs("P1", day(7, 1), 1.0),
		obs("P1", day(7, 3), 0.8),
		obs("P3", day(7, 1), 9.0),
	}

	got := AggregateSeries(input, []string{"P1", "P2"}, nil)

	assert.NotContains(t, got.Colors, "P3")
	require.Len(t, got.Concentrations["P1"], 2)
	assert.Equal(t, day(7, 1), got.Concentrations["P1"][0].Date)
	assert.Equal(t, day(7, 3), got.Concentrations["P1"][1].Date)

	want := []DatedValue{{Date: day(7, 1), Value: 1.0}, {Date: day(7, 3), Value: 0.6}}
	require.Len(t, got.DailyMean, 2)
	for i := range want {
		assert.Equal(t, want[i].Date, got.DailyMean[i].Date)
		assert.InDelta(t, want[i].Value, got.DailyMean[i].Value, 1e-12)
	}
}

func TestAggregateSeries_EmptySelectionKeepsAll(t *testing.T) {
	got := AggregateSeries([]SampleObservation{obs("A", day(1, 1), 1), obs("B", day(1, 1), 3)}, nil, nil)
	assert.Len(t, got.Colors, 2)
	require.Len(t, got.DailyMean, 1)
	assert.Equal(t, 2.0, got.DailyMean[0].Value)
}

func TestAggregateSeries_PointWithoutObservations(t *testing.T) {
	tests := []struct {
		name     string
		obs      []SampleObservation
		selected []string
		wantMean int
	}{
		{name: "one point outside", obs: []SampleObservation{obs("A", day(1, 1), 1)}, selected: []string{"A", "Outside"}, wantMean: 1},
		{name: "no observations at all", selected: []string{"Outside"}, wantMean: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AggregateSeries(tt.obs, tt.selected, nil)

			require.Contains(t, got.Colors, "Outside")
			require.Contains(t, got.Concentrations, "Outside")
			assert.NotNil(t, got.Colors["Outside"])
			assert.Empty(t, got.Colors["Outside"])
			assert.NotNil(t, got.Concentrations["Outside"])
			assert.Empty(t, got.Concentrations["Outside"])
			assert.Len(t, got.DailyMean, tt.wantMean)
		})
	}
}

func TestAggregateSeries_MissingLevels(t *testing.T) {
	got := AggregateSeries([]SampleObservation{obs("A", day(1, 2), 1), obs("A", day(1, 1), 2)}, nil, nil)

	require.Len(t, got.Combined, len(got.DailyMean))
	for i, c := range got.Combined {
		assert.Nil(t, c.Level)
		require.NotNil(t, c.MeanConcentration)
		assert.Equal(t, got.DailyMean[i].Date, c.Date)
		assert.Equal(t, got.DailyMean[i].Value, *c.MeanConcentration)
	}
}

func TestJoinLevels_OuterJoin(t *testing.T) {
	mean := []DatedValue{{Date: day(3, 2), Value: 0.5}}
	levels := []LevelObservation{
		{Date: day(3, 3), Height: 12},
		{Date: day(3, 1), Height: 10},
		{Date: time.Date(2023, 3, 3, 18, 0, 0, 0, time.UTC), Height: 14},
	}

	got := JoinLevels(mean, levels)

	f := func(v float64) *float64 { return &v }
	want := []CombinedPoint{
		{Date: day(3, 1), Level: f(10)},
		{Date: day(3, 2), MeanConcentration: f(0.5)},
		{Date: day(3, 3), Level: f(13)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("JoinLevels mismatch (-want +got):\n%s", diff)
	}
}

func TestSortObservations_StableAndIdempotent(t *testing.T) {
	input := []SampleObservation{
		obs("B", day(5, 2), 1),
		obs("A", day(5, 1), 2),
		obs("C", day(5, 2), 3),
	}
	SortObservations(input)
	once := append([]SampleObservation(nil), input...)
	SortObservations(input)

	assert.Equal(t, once, input)
	assert.Equal(t, []string{"A", "B", "C"}, []string{input[0].PointName, input[1].PointName, input[2].PointName})
}

func TestLocatePoints(t *testing.T) {
	m, err := NewCoordinateMapper(northUp, 4, 2)
	require.NoError(t, err)
	points := []SamplingPoint{
		{Name: "in", Longitude: 100.75, Latitude: 49.25},
		{Name: "out", Longitude: 0, Latitude: 0},
		{Name: "unselected", Longitude: 100.1, Latitude: 49.9},
	}

	got := LocatePoints(points, []string{"in", "out"}, m)

	require.Len(t, got, 2)
	assert.Equal(t, PointPixel{Name: "in", Column: 1, Row: 1, InRange: true}, got[0])
	assert.False(t, got[1].InRange)
}

func TestGreenProxy(t *testing.T) {
	c := NormalizeColor(10, 127.5, 300)
	assert.InDelta(t, 0.5, c.G, 1e-12)
	assert.Equal(t, 1.0, c.B)

	p := GreenProxy{Factor: DefaultProxyFactor}
	assert.InDelta(t, 1.0, p.Concentration(c), 1e-12)
	assert.Equal(t, 0.0, GreenProxy{Factor: -1}.Concentration(c))
}
