package render

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/lake-raster-engine/internal/domain"
)

func grey(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func TestEncodePNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodePNG(&buf, grey(3, 2, 7)))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 3, 2), img.Bounds())
	assert.Equal(t, color.Gray{Y: 7}, color.GrayModel.Convert(img.At(2, 1)))
}

func TestOverlay(t *testing.T) {
	base := grey(20, 10, 100)
	points := []domain.PointPixel{
		{Name: "P1", Column: 5, Row: 5, InRange: true},
		{Name: "Far", Column: 99, Row: 99, InRange: false},
	}

	out := Overlay(base, points, OverlayOptions{Scale: 3, Arm: 2})

	require.Equal(t, image.Rect(0, 0, 60, 30), out.Bounds())
	// centre of source pixel (5,5) at scale 3
	assert.Equal(t, MarkerColor, out.RGBAAt(16, 16))
	assert.Equal(t, MarkerColor, out.RGBAAt(14, 16))
	assert.Equal(t, MarkerColor, out.RGBAAt(16, 18))
	assert.Equal(t, color.RGBA{R: 100, G: 100, B: 100, A: 255}, out.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{R: 100, G: 100, B: 100, A: 255}, out.RGBAAt(14, 14), "diagonal is not part of the cross")

	labelled := false
	for x := 20; x < 40 && !labelled; x++ {
		for y := 5; y < 25; y++ {
			if out.RGBAAt(x, y) == MarkerColor {
				labelled = true
				break
			}
		}
	}
	assert.True(t, labelled, "label drawn to the right of the marker")
}

func TestOverlay_MarkerClippedAtEdge(t *testing.T) {
	out := Overlay(grey(4, 4, 0), []domain.PointPixel{{Name: "", Column: 0, Row: 0, InRange: true}}, OverlayOptions{Arm: 3})

	assert.Equal(t, image.Rect(0, 0, 4, 4), out.Bounds(), "scale below 1 keeps the source size")
	assert.Equal(t, MarkerColor, out.RGBAAt(0, 0))
	assert.Equal(t, MarkerColor, out.RGBAAt(3, 0))
}
