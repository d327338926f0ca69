package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/lake-raster-engine/internal/domain"
	"github.com/couchcryptid/lake-raster-engine/internal/observability"
	"github.com/couchcryptid/lake-raster-engine/internal/pipeline"
)

// --- mocks ---

type fakeRaster struct {
	bands      []domain.Grid
	transform  domain.Affine
	nodata     *float64
	bandNoData []*float64
	err        error
}

func (r fakeRaster) frame(bands []domain.Grid) domain.RasterFrame {
	return domain.RasterFrame{
		Bands:      bands,
		Transform:  r.transform,
		NoData:     r.nodata,
		BandNoData: r.bandNoData,
		Width:      bands[0].Width,
		Height:     bands[0].Height,
	}
}

// fakeReader serves rasters keyed by file base name.
type fakeReader struct {
	mu          sync.Mutex
	rasters     map[string]fakeRaster
	masked      int
	boundsCalls int
}

func newFakeReader() *fakeReader { return &fakeReader{rasters: make(map[string]fakeRaster)} }

func (f *fakeReader) add(name string, r fakeRaster) { f.rasters[name] = r }

func (f *fakeReader) get(path string) (fakeRaster, error) {
	r, ok := f.rasters[filepath.Base(path)]
	if !ok {
		return fakeRaster{}, fmt.Errorf("open %s: no such raster", path)
	}
	if r.err != nil {
		return fakeRaster{}, r.err
	}
	return r, nil
}

func (f *fakeReader) Bounds(path string) (domain.Bounds, error) {
	f.mu.Lock()
	f.boundsCalls++
	f.mu.Unlock()
	r, err := f.get(path)
	if err != nil {
		return domain.Bounds{}, err
	}
	if len(r.bands) == 0 {
		return domain.Bounds{}, domain.ErrInsufficientBands
	}
	return r.transform.Bounds(r.bands[0].Width, r.bands[0].Height), nil
}

func (f *fakeReader) ReadSingleBand(path string, opts domain.SingleBandOptions) (domain.RasterFrame, error) {
	r, err := f.get(path)
	if err != nil {
		return domain.RasterFrame{}, err
	}
	if len(r.bands) == 0 {
		return domain.RasterFrame{}, domain.ErrInsufficientBands
	}
	if opts.Boundary != nil {
		f.mu.Lock()
		f.masked++
		f.mu.Unlock()
	}
	g := r.bands[0].Clone()
	domain.NormalizeSingleBand(g, r.transform, r.nodata, opts)
	return r.frame([]domain.Grid{g}), nil
}

func (f *fakeReader) ReadMultiBand(path string) (domain.RasterFrame, error) {
	r, err := f.get(path)
	if err != nil {
		return domain.RasterFrame{}, err
	}
	n := min(len(r.bands), 3)
	if n == 0 {
		return domain.RasterFrame{}, domain.ErrInsufficientBands
	}
	bands := make([]domain.Grid, n)
	for i := range bands {
		bands[i] = r.bands[i].Clone()
	}
	return r.frame(bands), nil
}

func (f *fakeReader) OpenPixels(path string) (pipeline.PixelSource, error) {
	r, err := f.get(path)
	if err != nil {
		return nil, err
	}
	return &fakePixels{r: r}, nil
}

type fakePixels struct{ r fakeRaster }

func (p *fakePixels) Width() int { return p.r.bands[0].Width }
func (p *fakePixels) Height() int { return p.r.bands[0].Height }
func (p *fakePixels) BandCount() int { return len(p.r.bands) }
func (p *fakePixels) Transform() domain.Affine { return p.r.transform }
func (p *fakePixels) Close() error { return nil }
func (p *fakePixels) NoData(band int) (float64, bool) {
	nd := domain.RasterFrame{NoData: p.r.nodata, BandNoData: p.r.bandNoData}.NoDataOf(band)
	if nd == nil {
		return 0, false
	}
	return *nd, true
}

func (p *fakePixels) ReadPixel(col, row, n int) ([]float64, error) {
	if n > len(p.r.bands) {
		return nil, domain.ErrInsufficientBands
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = p.r.bands[i].At(col, row)
	}
	return out, nil
}

type fakeBoundary struct {
	vertices []domain.Vertex
	err      error
}

func (b fakeBoundary) LoadOutline(string) ([]domain.Vertex, error) { return b.vertices, b.err }

type fakeLevels struct {
	levels []domain.LevelObservation
	err    error
}

func (l fakeLevels) LoadLevels(string) ([]domain.LevelObservation, error) { return l.levels, l.err }

type fakePoints struct {
	points []domain.SamplingPoint
}

func (p fakePoints) LoadPoints(path string) ([]domain.SamplingPoint, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return p.points, nil
}

type recordingPublisher struct {
	mu   sync.Mutex
	sent map[string]int
	err  error
}

func (p *recordingPublisher) PublishSamples(_ context.Context, dataset string, obs []domain.SampleObservation) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sent == nil {
		p.sent = make(map[string]int)
	}
	p.sent[dataset] += len(obs)
	return nil
}

// --- helpers ---

var (
	errCorrupt = errors.New("corrupt tiff header")
	// 2x2 pixels of 1 degree covering lon 10..12, lat 40..42.
	testTransform = domain.Affine{10, 1, 0, 42, 0, -1}
)

func newTestMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), nil, 0o644))
	}
}

func constant(v float64) domain.Grid { return domain.NewGridFilled(2, 2, v) }

func single(v float64) fakeRaster {
	return fakeRaster{bands: []domain.Grid{constant(v)}, transform: testTransform}
}

func rgb(r, g, b float64) fakeRaster {
	return fakeRaster{bands: []domain.Grid{constant(r), constant(g), constant(b)}, transform: testTransform}
}

func ingest(workers int) pipeline.IngestOptions {
	return pipeline.IngestOptions{Workers: workers, MaskFile: "mask.tif", Canvas: domain.DefaultCanvas}
}
