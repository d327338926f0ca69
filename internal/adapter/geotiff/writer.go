package geotiff

import (
	"errors"
	"fmt"
	"math"

	"github.com/airbusgeo/godal"

	"github.com/couchcryptid/lake-raster-engine/internal/domain"
)

// ErrMixedNoData is returned when bands carry different nodata sentinels.
// GeoTIFF stores a single nodata tag per dataset.
var ErrMixedNoData = errors.New("bands carry different nodata values")

// WriteFrame stores frame as a Float64 GeoTIFF at path, one band per grid.
// NaN values are written as the band's nodata value when it has one.
func WriteFrame(path string, frame domain.RasterFrame) (err error) {
	register()
	if len(frame.Bands) == 0 {
		return domain.ErrInsufficientBands
	}
	if err := sameNoData(frame); err != nil {
		return err
	}
	w, h := frame.Bands[0].Width, frame.Bands[0].Height

	ds, err := godal.Create(godal.GTiff, path, len(frame.Bands), godal.Float64, w, h)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := ds.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()

	if err := ds.SetGeoTransform([6]float64(frame.Transform)); err != nil {
		return fmt.Errorf("set geotransform: %w", err)
	}
	for i, band := range ds.Bands() {
		g := frame.Bands[i]
		if !g.SameShape(frame.Bands[0]) {
			return fmt.Errorf("band %d: %w", i+1, domain.ErrShapeMismatch)
		}
		values := g.Values
		if nd := frame.NoDataOf(i); nd != nil {
			values = make([]float64, len(g.Values))
			for j, v := range g.Values {
				if math.IsNaN(v) {
					v = *nd
				}
				values[j] = v
			}
			if err := band.SetNoData(*nd); err != nil {
				return fmt.Errorf("set nodata: %w", err)
			}
		}
		if err := band.Write(0, 0, values, w, h); err != nil {
			return fmt.Errorf("write band %d: %w", i+1, err)
		}
	}
	return nil
}

func sameNoData(frame domain.RasterFrame) error {
	first := frame.NoDataOf(0)
	for i := 1; i < len(frame.Bands); i++ {
		nd := frame.NoDataOf(i)
		if (nd == nil) != (first == nil) || (nd != nil && *nd != *first) {
			return fmt.Errorf("band %d: %w", i+1, ErrMixedNoData)
		}
	}
	return nil
}
