package domain

import "math"

// RGB is a colour with channels in [0, 1].
type RGB struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
}

// NormalizeColor divides 8-bit channel values by 255 and clamps to [0, 1].
func NormalizeColor(r, g, b float64) RGB {
	return RGB{R: unit(r / 255), G: unit(g / 255), B: unit(b / 255)}
}

func unit(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// ConcentrationProxy derives a non-negative scalar from a normalised colour.
// Implementations are stand-ins; none is a calibrated water-quality model.
type ConcentrationProxy interface {
	Concentration(c RGB) float64
}

// DefaultProxyFactor scales the green-channel proxy.
const DefaultProxyFactor = 2.0

// GreenProxy is (G/255)·Factor.
type GreenProxy struct {
	Factor float64
}

func (p GreenProxy) Concentration(c RGB) float64 {
	v := c.G * p.Factor
	if v < 0 {
		return 0
	}
	return v
}
