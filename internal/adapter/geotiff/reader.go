// Package geotiff reads and writes GeoTIFF rasters through GDAL.
package geotiff

import (
	"fmt"
	"sync"

	"github.com/airbusgeo/godal"

	"github.com/couchcryptid/lake-raster-engine/internal/domain"
	"github.com/couchcryptid/lake-raster-engine/internal/pipeline"
)

var registerOnce sync.Once

func register() { registerOnce.Do(godal.RegisterAll) }

// Reader opens rasters with GDAL. Every call opens its own dataset handle, so a
// Reader is safe for concurrent use.
type Reader struct{}

// NewReader registers the GDAL drivers and returns a Reader.
func NewReader() *Reader {
	register()
	return &Reader{}
}

func open(path string) (*godal.Dataset, error) {
	ds, err := godal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return ds, nil
}

// Bounds returns the geographic extent of the raster at path.
func (r *Reader) Bounds(path string) (domain.Bounds, error) {
	ds, err := open(path)
	if err != nil {
		return domain.Bounds{}, err
	}
	defer ds.Close() //nolint:errcheck // read-only handle

	st := ds.Structure()
	gt, err := ds.GeoTransform()
	if err != nil {
		return domain.Bounds{}, fmt.Errorf("geotransform %s: %w", path, err)
	}
	return domain.Affine(gt).Bounds(st.SizeX, st.SizeY), nil
}

// ReadSingleBand reads band 1 and normalises nodata, zeros and the boundary
// mask to NaN according to opts.
func (r *Reader) ReadSingleBand(path string, opts domain.SingleBandOptions) (domain.RasterFrame, error) {
	frame, err := read(path, 1)
	if err != nil {
		return domain.RasterFrame{}, err
	}
	domain.NormalizeSingleBand(frame.Bands[0], frame.Transform, frame.NoData, opts)
	return frame, nil
}

// ReadMultiBand reads up to the first three bands with raw values.
func (r *Reader) ReadMultiBand(path string) (domain.RasterFrame, error) {
	return read(path, 3)
}

func read(path string, maxBands int) (domain.RasterFrame, error) {
	ds, err := open(path)
	if err != nil {
		return domain.RasterFrame{}, err
	}
	defer ds.Close() //nolint:errcheck // read-only handle

	st := ds.Structure()
	bands := ds.Bands()
	n := min(len(bands), maxBands)
	if n == 0 {
		return domain.RasterFrame{}, fmt.Errorf("%s: %w", path, domain.ErrInsufficientBands)
	}
	gt, err := ds.GeoTransform()
	if err != nil {
		return domain.RasterFrame{}, fmt.Errorf("geotransform %s: %w", path, err)
	}

	frame := domain.RasterFrame{
		Bands:      make([]domain.Grid, n),
		BandNoData: make([]*float64, n),
		Transform:  domain.Affine(gt),
		Width:      st.SizeX,
		Height:     st.SizeY,
	}
	for i := range n {
		if nd, ok := bands[i].NoData(); ok {
			frame.BandNoData[i] = &nd
		}
	}
	frame.NoData = frame.BandNoData[0]
	for i := range n {
		g := domain.NewGrid(st.SizeX, st.SizeY)
		if err := bands[i].Read(0, 0, g.Values, st.SizeX, st.SizeY); err != nil {
			return domain.RasterFrame{}, fmt.Errorf("read band %d of %s: %w", i+1, path, err)
		}
		frame.Bands[i] = g
	}
	return frame, nil
}

// OpenPixels opens path for per-pixel reads. The caller must Close it.
func (r *Reader) OpenPixels(path string) (pipeline.PixelSource, error) {
	ds, err := open(path)
	if err != nil {
		return nil, err
	}
	gt, err := ds.GeoTransform()
	if err != nil {
		ds.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("geotransform %s: %w", path, err)
	}
	return &pixels{ds: ds, st: ds.Structure(), bands: ds.Bands(), gt: domain.Affine(gt)}, nil
}

type pixels struct {
	ds    *godal.Dataset
	st    godal.DatasetStructure
	bands []godal.Band
	gt    domain.Affine
}

func (p *pixels) Width() int               { return p.st.SizeX }
func (p *pixels) Height() int              { return p.st.SizeY }
func (p *pixels) BandCount() int           { return len(p.bands) }
func (p *pixels) Transform() domain.Affine { return p.gt }
func (p *pixels) Close() error             { return p.ds.Close() }

func (p *pixels) NoData(band int) (float64, bool) {
	if band < 0 || band >= len(p.bands) {
		return 0, false
	}
	return p.bands[band].NoData()
}

func (p *pixels) ReadPixel(col, row, n int) ([]float64, error) {
	if n > len(p.bands) {
		return nil, domain.ErrInsufficientBands
	}
	if col < 0 || row < 0 || col >= p.st.SizeX || row >= p.st.SizeY {
		return nil, fmt.Errorf("pixel (%d,%d): %w", col, row, domain.ErrOutOfRange)
	}
	out := make([]float64, n)
	for i := range n {
		if err := p.bands[i].Read(col, row, out[i:i+1], 1, 1); err != nil {
			return nil, fmt.Errorf("read pixel (%d,%d) band %d: %w", col, row, i+1, err)
		}
	}
	return out, nil
}
