package domain

import (
	"fmt"
	"math"
)

// CoordinateMapper converts geographic coordinates to pixel indices for one raster grid.
type CoordinateMapper struct {
	inverse Affine
	width   int
	height  int
}

// NewCoordinateMapper inverts t once so repeated lookups are cheap.
func NewCoordinateMapper(t Affine, width, height int) (*CoordinateMapper, error) {
	inv, err := t.Invert()
	if err != nil {
		return nil, fmt.Errorf("coordinate mapper: %w", err)
	}
	return &CoordinateMapper{inverse: inv, width: width, height: height}, nil
}

// Fractional returns the unrounded pixel position of (lon, lat).
func (m *CoordinateMapper) Fractional(lon, lat float64) (col, row float64) {
	return m.inverse.Apply(lon, lat)
}

// Pixel truncates the pixel position toward zero and reports whether it lies
// inside the grid. Callers must check ok before reading the pixel.
func (m *CoordinateMapper) Pixel(lon, lat float64) (col, row int, ok bool) {
	fc, fr := m.Fractional(lon, lat)
	tc, tr := math.Trunc(fc), math.Trunc(fr)
	if math.IsNaN(tc) || math.IsNaN(tr) {
		return 0, 0, false
	}
	if tc < 0 || tc >= float64(m.width) || tr < 0 || tr >= float64(m.height) {
		return 0, 0, false
	}
	return int(tc), int(tr), true
}
