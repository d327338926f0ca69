package domain

import (
	"slices"
	"time"
)

// SamplingPoint is a named geographic location. Names are unique per working set.
type SamplingPoint struct {
	Name      string  `json:"name"`
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

// SampleObservation is one (point, frame) pixel reading.
type SampleObservation struct {
	PointName     string    `json:"point"`
	Date          time.Time `json:"date"`
	Color         RGB       `json:"color"`
	Concentration float64   `json:"concentration"`
}

// LevelObservation is one row of the external water-level series.
type LevelObservation struct {
	Date   time.Time `json:"date"`
	Height float64   `json:"height"`
}

type DatedColor struct {
	Date  time.Time `json:"date"`
	Color RGB       `json:"color"`
}

type DatedValue struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// CombinedPoint is one date of the outer join of levels and mean concentration.
// Missing sides are nil, never zero.
type CombinedPoint struct {
	Date              time.Time `json:"date"`
	Level             *float64  `json:"level"`
	MeanConcentration *float64  `json:"mean_concentration"`
}

// SeriesSet is the aggregated view of one extraction run. Every list is
// ascending by date.
type SeriesSet struct {
	Colors         map[string][]DatedColor `json:"colors"`
	Concentrations map[string][]DatedValue `json:"concentrations"`
	DailyMean      []DatedValue            `json:"daily_mean"`
	Combined       []CombinedPoint         `json:"combined"`
}

// SortObservations orders obs by date in place. Equal dates keep their order.
func SortObservations(obs []SampleObservation) {
	slices.SortStableFunc(obs, func(a, b SampleObservation) int { return a.Date.Compare(b.Date) })
}

// calendarDay drops the clock so observations group by calendar date.
func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AggregateSeries builds per-point series, the cross-point daily mean and the
// level join for the selected points. An empty selection keeps every point.
func AggregateSeries(obs []SampleObservation, selected []string, levels []LevelObservation) SeriesSet {
	keep := func(string) bool { return true }
	if len(selected) > 0 {
		keep = func(name string) bool { return slices.Contains(selected, name) }
	}

	sorted := make([]SampleObservation, 0, len(obs))
	for _, o := range obs {
		if keep(o.PointName) {
			sorted = append(sorted, o)
		}
	}
	SortObservations(sorted)

	set := SeriesSet{
		Colors:         make(map[string][]DatedColor),
		Concentrations: make(map[string][]DatedValue),
	}
	// Selected points with no sample still get a series.
	for _, name := range selected {
		set.Colors[name] = []DatedColor{}
		set.Concentrations[name] = []DatedValue{}
	}
	sums := make(map[time.Time]float64)
	counts := make(map[time.Time]int)
	var days []time.Time
	for _, o := range sorted {
		set.Colors[o.PointName] = append(set.Colors[o.PointName], DatedColor{Date: o.Date, Color: o.Color})
		set.Concentrations[o.PointName] = append(set.Concentrations[o.PointName], DatedValue{Date: o.Date, Value: o.Concentration})
		day := calendarDay(o.Date)
		if counts[day] == 0 {
			days = append(days, day)
		}
		sums[day] += o.Concentration
		counts[day]++
	}
	for _, d := range days {
		set.DailyMean = append(set.DailyMean, DatedValue{Date: d, Value: sums[d] / float64(counts[d])})
	}
	set.Combined = JoinLevels(set.DailyMean, levels)
	return set
}

// JoinLevels outer-joins the daily mean with the level series on calendar date.
// Several level rows on one day are averaged.
func JoinLevels(mean []DatedValue, levels []LevelObservation) []CombinedPoint {
	byDay := make(map[time.Time]*CombinedPoint)
	get := func(d time.Time) *CombinedPoint {
		d = calendarDay(d)
		p, ok := byDay[d]
		if !ok {
			p = &CombinedPoint{Date: d}
			byDay[d] = p
		}
		return p
	}

	for _, m := range mean {
		v := m.Value
		get(m.Date).MeanConcentration = &v
	}

	levelSums := make(map[time.Time]float64)
	levelCounts := make(map[time.Time]int)
	for _, l := range levels {
		d := calendarDay(l.Date)
		levelSums[d] += l.Height
		levelCounts[d]++
	}
	for d, sum := range levelSums {
		v := sum / float64(levelCounts[d])
		get(d).Level = &v
	}

	out := make([]CombinedPoint, 0, len(byDay))
	for _, p := range byDay {
		out = append(out, *p)
	}
	slices.SortFunc(out, func(a, b CombinedPoint) int { return a.Date.Compare(b.Date) })
	return out
}

// PointPixel is a sampling point's location on the reference frame.
type PointPixel struct {
	Name    string `json:"name"`
	Column  int    `json:"column"`
	Row     int    `json:"row"`
	InRange bool   `json:"in_range"`
}

// LocatePoints maps the selected points onto a reference grid. Points outside
// the grid are reported with InRange false.
func LocatePoints(points []SamplingPoint, selected []string, m *CoordinateMapper) []PointPixel {
	out := make([]PointPixel, 0, len(points))
	for _, p := range points {
		if len(selected) > 0 && !slices.Contains(selected, p.Name) {
			continue
		}
		col, row, ok := m.Pixel(p.Longitude, p.Latitude)
		out = append(out, PointPixel{Name: p.Name, Column: col, Row: row, InRange: ok})
	}
	return out
}
