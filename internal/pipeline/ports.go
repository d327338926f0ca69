package pipeline

import (
	"context"
	"errors"

	"github.com/couchcryptid/lake-raster-engine/internal/domain"
)

var (
	// ErrInvalidDataset means a dataset name escapes the data root.
	ErrInvalidDataset = errors.New("invalid dataset name")
	// ErrFrameNotFound means no raster file carries the requested date.
	ErrFrameNotFound = errors.New("no frame for date")
	// ErrNoSamplingPoints means the dataset has no usable sampling point source.
	ErrNoSamplingPoints = errors.New("no sampling points")
)

// FrameReader opens raster files. Single-band reads feed the occurrence path
// and come back normalised; multi-band reads keep raw values and the nodata
// sentinel for the colour path.
type FrameReader interface {
	Bounds(path string) (domain.Bounds, error)
	ReadSingleBand(path string, opts domain.SingleBandOptions) (domain.RasterFrame, error)
	ReadMultiBand(path string) (domain.RasterFrame, error)
	OpenPixels(path string) (PixelSource, error)
}

// PixelSource reads individual pixels from an open raster.
type PixelSource interface {
	Width() int
	Height() int
	BandCount() int
	Transform() domain.Affine
	// NoData returns the nodata sentinel of band (0-based), if it has one.
	NoData(band int) (float64, bool)
	// ReadPixel returns the values of bands 1..n at (col, row).
	ReadPixel(col, row, n int) ([]float64, error)
	Close() error
}

// BoundarySource loads the canvas-space outline stored in a dataset folder.
type BoundarySource interface {
	LoadOutline(folder string) ([]domain.Vertex, error)
}

// LevelSource loads the water-level series stored in a dataset folder.
type LevelSource interface {
	LoadLevels(folder string) ([]domain.LevelObservation, error)
}

// PointSource loads sampling points from a file.
type PointSource interface {
	LoadPoints(path string) ([]domain.SamplingPoint, error)
}

// SamplePublisher forwards sampling results downstream.
type SamplePublisher interface {
	PublishSamples(ctx context.Context, dataset string, obs []domain.SampleObservation) error
}
