// Package render turns enhanced frames into PNG images, optionally annotated
// with sampling point markers.
package render

import (
	"image"
	"image/color"
	"image/png"
	"io"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/couchcryptid/lake-raster-engine/internal/domain"
)

// MarkerColor is the colour of point crosses and labels.
var MarkerColor = color.RGBA{R: 255, G: 0, B: 0, A: 255}

// OverlayOptions controls the reference overlay.
type OverlayOptions struct {
	// Scale enlarges every source pixel to Scale x Scale output pixels.
	// Values below 1 are treated as 1.
	Scale int
	// Arm is the half length of a marker cross in output pixels.
	Arm int
}

// DefaultOverlayOptions suits rasters of a few hundred pixels.
func DefaultOverlayOptions() OverlayOptions { return OverlayOptions{Scale: 2, Arm: 4} }

// EncodePNG writes img as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}

// Overlay upscales base with nearest-neighbour sampling and draws a cross and
// the point name at every in-range point's pixel centre.
func Overlay(base image.Image, points []domain.PointPixel, opts OverlayOptions) *image.RGBA {
	scale := max(opts.Scale, 1)
	b := base.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx()*scale, b.Dy()*scale))
	draw.NearestNeighbor.Scale(out, out.Bounds(), base, b, draw.Src, nil)

	d := &font.Drawer{Dst: out, Src: image.NewUniform(MarkerColor), Face: basicfont.Face7x13}
	for _, p := range points {
		if !p.InRange {
			continue
		}
		cx := p.Column*scale + scale/2
		cy := p.Row*scale + scale/2
		cross(out, cx, cy, opts.Arm)
		d.Dot = fixed.P(cx+opts.Arm+2, cy+basicfont.Face7x13.Ascent/2)
		d.DrawString(p.Name)
	}
	return out
}

func cross(img *image.RGBA, cx, cy, arm int) {
	for i := -arm; i <= arm; i++ {
		setIn(img, cx+i, cy)
		setIn(img, cx, cy+i)
	}
}

func setIn(img *image.RGBA, x, y int) {
	if image.Pt(x, y).In(img.Rect) {
		img.SetRGBA(x, y, MarkerColor)
	}
}
