package domain

import "errors"

var (
	// ErrDatasetNotFound means the dataset folder does not exist. Fatal.
	ErrDatasetNotFound = errors.New("dataset folder not found")
	// ErrNoFrames means no raster frame survived ingestion filtering. Fatal.
	ErrNoFrames = errors.New("no raster frames survived ingestion")

	ErrDateNotFound      = errors.New("no date found in file name")
	ErrInsufficientBands = errors.New("insufficient raster bands")
	ErrOutOfRange        = errors.New("point outside raster bounds")
	ErrInvalidRange      = errors.New("invalid value range")
	ErrNoBoundary        = errors.New("no boundary outline")
	ErrSingularTransform = errors.New("geotransform is not invertible")
	ErrShapeMismatch     = errors.New("band shapes differ")
	ErrLengthMismatch    = errors.New("stack and day-of-year arrays differ in length")
	ErrInvalidPartition  = errors.New("invalid partition key")
)
