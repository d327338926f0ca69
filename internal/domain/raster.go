package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Grid is a row-major 2-D band of float64 samples. NaN marks an undefined pixel.
type Grid struct {
	Width  int
	Height int
	Values []float64
}

// NewGrid returns a zero-filled grid.
func NewGrid(width, height int) Grid {
	return Grid{Width: width, Height: height, Values: make([]float64, width*height)}
}

// NewGridFilled returns a grid with every pixel set to v.
func NewGridFilled(width, height int, v float64) Grid {
	g := NewGrid(width, height)
	for i := range g.Values {
		g.Values[i] = v
	}
	return g
}

// GridFromRows builds a grid from equal-length rows.
func GridFromRows(rows [][]float64) (Grid, error) {
	if len(rows) == 0 {
		return Grid{}, nil
	}
	w := len(rows[0])
	g := NewGrid(w, len(rows))
	for r, row := range rows {
		if len(row) != w {
			return Grid{}, fmt.Errorf("row %d has %d values, want %d: %w", r, len(row), w, ErrShapeMismatch)
		}
		copy(g.Values[r*w:], row)
	}
	return g, nil
}

func (g Grid) At(col, row int) float64 { return g.Values[row*g.Width+col] }

func (g Grid) Set(col, row int, v float64) { g.Values[row*g.Width+col] = v }

// SameShape reports whether g and o have identical dimensions.
func (g Grid) SameShape(o Grid) bool { return g.Width == o.Width && g.Height == o.Height }

// Clone returns a deep copy.
func (g Grid) Clone() Grid {
	c := Grid{Width: g.Width, Height: g.Height, Values: make([]float64, len(g.Values))}
	copy(c.Values, g.Values)
	return c
}

// Rows returns the grid as nested rows with undefined pixels as nil.
func (g Grid) Rows() [][]*float64 {
	rows := make([][]*float64, g.Height)
	for r := range rows {
		row := make([]*float64, g.Width)
		for c := range row {
			v := g.At(c, r)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			row[c] = &v
		}
		rows[r] = row
	}
	return rows
}

// MarshalJSON encodes undefined pixels as null; encoding/json rejects NaN.
func (g Grid) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Width  int          `json:"width"`
		Height int          `json:"height"`
		Rows   [][]*float64 `json:"rows"`
	}{g.Width, g.Height, g.Rows()})
}

// Bounds is an axis-aligned geographic extent.
type Bounds struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// Affine is a GDAL-ordered geotransform mapping pixel (col, row) to (x, y).
type Affine [6]float64

// Apply maps fractional pixel coordinates to geographic coordinates.
func (a Affine) Apply(col, row float64) (x, y float64) {
	return a[0] + col*a[1] + row*a[2], a[3] + col*a[4] + row*a[5]
}

// Invert returns the transform mapping geographic coordinates back to pixels.
func (a Affine) Invert() (Affine, error) {
	if a[1]*a[5]-a[2]*a[4] == 0 {
		return Affine{}, ErrSingularTransform
	}
	m := mat.NewDense(3, 3, []float64{
		a[1], a[2], a[0],
		a[4], a[5], a[3],
		0, 0, 1,
	})
	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return Affine{}, fmt.Errorf("%w: %v", ErrSingularTransform, err)
		}
	}
	return Affine{
		inv.At(0, 2), inv.At(0, 0), inv.At(0, 1),
		inv.At(1, 2), inv.At(1, 0), inv.At(1, 1),
	}, nil
}

// Bounds returns the geographic extent covered by a width×height raster.
func (a Affine) Bounds(width, height int) Bounds {
	w, h := float64(width), float64(height)
	b := Bounds{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
	for _, c := range [][2]float64{{0, 0}, {w, 0}, {0, h}, {w, h}} {
		x, y := a.Apply(c[0], c[1])
		b.MinX = math.Min(b.MinX, x)
		b.MaxX = math.Max(b.MaxX, x)
		b.MinY = math.Min(b.MinY, y)
		b.MaxY = math.Max(b.MaxY, y)
	}
	return b
}

// RasterFrame is one time-stamped image. All bands share Width×Height.
// BandNoData, when set, holds each band's own nodata sentinel index-aligned
// with Bands (nil entry: no sentinel) and overrides NoData. Without it NoData
// applies to every band.
type RasterFrame struct {
	Date       time.Time
	DayOfYear  int
	Bands      []Grid
	Transform  Affine
	NoData     *float64
	BandNoData []*float64
	Width      int
	Height     int
}

// Validate checks that every band matches the frame dimensions.
func (f RasterFrame) Validate() error {
	for i, b := range f.Bands {
		if b.Width != f.Width || b.Height != f.Height || len(b.Values) != f.Width*f.Height {
			return fmt.Errorf("band %d is %dx%d, frame is %dx%d: %w", i+1, b.Width, b.Height, f.Width, f.Height, ErrShapeMismatch)
		}
	}
	return nil
}

// NoDataOf returns the nodata sentinel of band (0-based), or nil.
func (f RasterFrame) NoDataOf(band int) *float64 {
	if f.BandNoData == nil {
		return f.NoData
	}
	if band < 0 || band >= len(f.BandNoData) {
		return nil
	}
	return f.BandNoData[band]
}

// NoDataTest returns a predicate reporting whether a value of band is NaN
// or that band's nodata sentinel.
func (f RasterFrame) NoDataTest(band int) func(float64) bool {
	nd := f.NoDataOf(band)
	return func(v float64) bool {
		return math.IsNaN(v) || (nd != nil && v == *nd)
	}
}

// RasterStack is a date-ordered sequence of single-band frames of identical shape.
// DaysOfYear and Dates are index-aligned with Frames.
type RasterStack struct {
	Frames     []RasterFrame
	DaysOfYear []int
	Dates      []time.Time
	Files      []string
	Width      int
	Height     int
	Transform  Affine
}

func (s *RasterStack) Len() int { return len(s.Frames) }

// Validate checks the parallel arrays and frame shapes.
func (s *RasterStack) Validate() error {
	if len(s.Frames) == 0 {
		return ErrNoFrames
	}
	if len(s.DaysOfYear) != len(s.Frames) || len(s.Dates) != len(s.Frames) {
		return ErrLengthMismatch
	}
	for i, f := range s.Frames {
		if len(f.Bands) == 0 {
			return fmt.Errorf("frame %d: %w", i, ErrInsufficientBands)
		}
		if f.Width != s.Width || f.Height != s.Height || len(f.Bands[0].Values) != s.Width*s.Height {
			return fmt.Errorf("frame %d: %w", i, ErrShapeMismatch)
		}
	}
	return nil
}

// Append adds a single-band frame. The first frame fixes the stack shape.
func (s *RasterStack) Append(f RasterFrame, file string) error {
	if len(s.Frames) == 0 {
		s.Width, s.Height, s.Transform = f.Width, f.Height, f.Transform
	} else if f.Width != s.Width || f.Height != s.Height {
		return fmt.Errorf("frame %dx%d, stack %dx%d: %w", f.Width, f.Height, s.Width, s.Height, ErrShapeMismatch)
	}
	s.Frames = append(s.Frames, f)
	s.DaysOfYear = append(s.DaysOfYear, f.DayOfYear)
	s.Dates = append(s.Dates, f.Date)
	s.Files = append(s.Files, file)
	return nil
}
