package domain

import (
	"math"

	"github.com/ctessum/geom"
)

// Vertex is a point of an outline, either in canvas or geographic units.
type Vertex struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Canvas is the nominal drawing area an outline was digitised on. Origin is top-left.
type Canvas struct {
	Width  float64
	Height float64
}

// DefaultCanvas matches the outline files produced by the digitising tool.
var DefaultCanvas = Canvas{Width: 518, Height: 505}

// BoundaryPolygon is a closed geographic ring; the first vertex equals the last.
type BoundaryPolygon struct {
	Ring []Vertex

	poly   geom.Polygon
	bounds *geom.Bounds
}

// RescaleOutline maps canvas vertices into the geographic extent b, inverting
// the Y axis, and closes the ring. With b nil the vertices are used as given.
// Fewer than three vertices yields ErrNoBoundary.
func RescaleOutline(vertices []Vertex, canvas Canvas, b *Bounds) (*BoundaryPolygon, error) {
	if len(vertices) < 3 {
		return nil, ErrNoBoundary
	}
	ring := make([]Vertex, 0, len(vertices)+1)
	for _, v := range vertices {
		if b != nil && canvas.Width > 0 && canvas.Height > 0 {
			v = Vertex{
				X: b.MinX + (v.X/canvas.Width)*(b.MaxX-b.MinX),
				Y: b.MaxY - (v.Y/canvas.Height)*(b.MaxY-b.MinY),
			}
		}
		ring = append(ring, v)
	}
	if ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}
	return NewBoundaryPolygon(ring), nil
}

// NewBoundaryPolygon wraps an already closed geographic ring.
func NewBoundaryPolygon(ring []Vertex) *BoundaryPolygon {
	path := make(geom.Path, len(ring))
	for i, v := range ring {
		path[i] = geom.Point{X: v.X, Y: v.Y}
	}
	poly := geom.Polygon{path}
	return &BoundaryPolygon{Ring: ring, poly: poly, bounds: poly.Bounds()}
}

// Contains reports whether (x, y) lies inside the ring or on its edge.
func (p *BoundaryPolygon) Contains(x, y float64) bool {
	if x < p.bounds.Min.X || x > p.bounds.Max.X || y < p.bounds.Min.Y || y > p.bounds.Max.Y {
		return false
	}
	return geom.Point{X: x, Y: y}.Within(p.poly) != geom.Outside
}

// MaskOutside sets every pixel whose centre falls outside p to NaN, in place.
func (p *BoundaryPolygon) MaskOutside(g Grid, t Affine) {
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			x, y := t.Apply(float64(col)+0.5, float64(row)+0.5)
			if !p.Contains(x, y) {
				g.Set(col, row, math.NaN())
			}
		}
	}
}

// SingleBandOptions controls normalisation of an occurrence-path band.
type SingleBandOptions struct {
	Boundary     *BoundaryPolygon
	ZeroAsNoData bool
}

// NormalizeSingleBand replaces the nodata sentinel (and optionally exact zero)
// with NaN and applies the boundary mask. g is modified in place.
func NormalizeSingleBand(g Grid, t Affine, nodata *float64, opts SingleBandOptions) {
	for i, v := range g.Values {
		switch {
		case nodata != nil && v == *nodata:
			g.Values[i] = math.NaN()
		case opts.ZeroAsNoData && v == 0:
			g.Values[i] = math.NaN()
		}
	}
	if opts.Boundary != nil {
		opts.Boundary.MaskOutside(g, t)
	}
}
