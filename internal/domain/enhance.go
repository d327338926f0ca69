package domain

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"slices"
)

// EnhanceConfig holds the stretch percentiles and the anomaly rule thresholds.
type EnhanceConfig struct {
	LowPercentile    float64
	HighPercentile   float64
	IntensityMin     uint8
	IntensityMax     uint8
	MaxChannelSpread uint8
	Highlight        color.RGBA
}

// DefaultEnhanceConfig returns the 2/98 stretch and the 160–230 pale window.
func DefaultEnhanceConfig() EnhanceConfig {
	return EnhanceConfig{
		LowPercentile:    0.02,
		HighPercentile:   0.98,
		IntensityMin:     160,
		IntensityMax:     230,
		MaxChannelSpread: 40,
		Highlight:        color.RGBA{R: 255, G: 255, B: 0, A: 255},
	}
}

func (c EnhanceConfig) Validate() error {
	if c.LowPercentile < 0 || c.HighPercentile > 1 || c.LowPercentile >= c.HighPercentile {
		return fmt.Errorf("invalid stretch percentiles %v/%v", c.LowPercentile, c.HighPercentile)
	}
	if c.IntensityMin > c.IntensityMax {
		return fmt.Errorf("anomaly intensity min %d exceeds max %d", c.IntensityMin, c.IntensityMax)
	}
	return nil
}

// EnhancedFrame is the 8-bit rendering of one frame. AnomalyMask is row-major
// and nil for single-band frames.
type EnhancedFrame struct {
	Date        string
	Image       image.Image
	AnomalyMask []bool
	Anomalies   int
}

// Percentiles returns the lo and hi quantiles of the defined values in g,
// interpolated linearly between the closest ranks. ok is false when g has no
// defined value.
func Percentiles(g Grid, isNoData func(float64) bool, lo, hi float64) (pLo, pHi float64, ok bool) {
	vals := make([]float64, 0, len(g.Values))
	for _, v := range g.Values {
		if !isNoData(v) {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return 0, 0, false
	}
	slices.Sort(vals)
	return linearPercentile(vals, lo), linearPercentile(vals, hi), true
}

// linearPercentile reads the p quantile of sorted at rank p*(n-1).
func linearPercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	h := p * float64(n-1)
	i := int(math.Floor(h))
	if i >= n-1 {
		return sorted[n-1]
	}
	if i < 0 {
		return sorted[0]
	}
	return sorted[i] + (h-float64(i))*(sorted[i+1]-sorted[i])
}

// StretchBand rescales g between its lo and hi percentiles to 0–255.
// A flat band (pHi ≤ pLo) and every nodata pixel map to 0.
func StretchBand(g Grid, isNoData func(float64) bool, lo, hi float64) []uint8 {
	out := make([]uint8, len(g.Values))
	pLo, pHi, ok := Percentiles(g, isNoData, lo, hi)
	if !ok || pHi <= pLo {
		return out
	}
	span := pHi - pLo
	for i, v := range g.Values {
		if isNoData(v) {
			continue
		}
		s := (v - pLo) / span
		switch {
		case s < 0:
			s = 0
		case s > 1:
			s = 1
		}
		out[i] = uint8(s * 255)
	}
	return out
}

// IsAnomalous applies the pale, low-saturation rule to one stretched pixel.
func (c EnhanceConfig) IsAnomalous(r, g, b uint8) bool {
	for _, v := range [3]uint8{r, g, b} {
		if v < c.IntensityMin || v > c.IntensityMax {
			return false
		}
	}
	hi := max(r, g, b)
	lo := min(r, g, b)
	return hi-lo < c.MaxChannelSpread
}

// Enhance renders f. Frames with three or more bands produce an RGB image from
// the first three bands with anomalies painted in the highlight colour. A
// single-band frame produces a grayscale image without anomaly detection.
func Enhance(f RasterFrame, cfg EnhanceConfig) (*EnhancedFrame, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	switch {
	case len(f.Bands) >= 3:
		return enhanceRGB(f, cfg), nil
	case len(f.Bands) == 1:
		return enhanceGray(f, cfg), nil
	}
	return nil, fmt.Errorf("%d bands: %w", len(f.Bands), ErrInsufficientBands)
}

func enhanceRGB(f RasterFrame, cfg EnhanceConfig) *EnhancedFrame {
	var ch [3][]uint8
	for i := range ch {
		ch[i] = StretchBand(f.Bands[i], f.NoDataTest(i), cfg.LowPercentile, cfg.HighPercentile)
	}

	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	mask := make([]bool, f.Width*f.Height)
	anomalies := 0
	for i := range mask {
		r, g, b := ch[0][i], ch[1][i], ch[2][i]
		px := color.RGBA{R: r, G: g, B: b, A: 255}
		if cfg.IsAnomalous(r, g, b) {
			mask[i] = true
			anomalies++
			px = cfg.Highlight
		}
		img.SetRGBA(i%f.Width, i/f.Width, px)
	}
	return &EnhancedFrame{Date: formatDate(f), Image: img, AnomalyMask: mask, Anomalies: anomalies}
}

func enhanceGray(f RasterFrame, cfg EnhanceConfig) *EnhancedFrame {
	band := StretchBand(f.Bands[0], f.NoDataTest(0), cfg.LowPercentile, cfg.HighPercentile)
	img := image.NewGray(image.Rect(0, 0, f.Width, f.Height))
	for i, v := range band {
		img.SetGray(i%f.Width, i/f.Width, color.Gray{Y: v})
	}
	return &EnhancedFrame{Date: formatDate(f), Image: img}
}

func formatDate(f RasterFrame) string {
	if f.Date.IsZero() {
		return ""
	}
	return f.Date.Format(DateLayout)
}
