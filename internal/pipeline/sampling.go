package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/lake-raster-engine/internal/domain"
	"github.com/couchcryptid/lake-raster-engine/internal/observability"
)

// SampleRequest selects which points and frames the extractor visits.
type SampleRequest struct {
	Points []domain.SamplingPoint
	// Selected restricts extraction to these point names. Empty keeps all.
	Selected []string
	// From and To are an inclusive date filter.
	From  *time.Time
	To    *time.Time
	Proxy domain.ConcentrationProxy
}

func (r SampleRequest) points() []domain.SamplingPoint {
	if len(r.Selected) == 0 {
		return r.Points
	}
	out := make([]domain.SamplingPoint, 0, len(r.Selected))
	for _, p := range r.Points {
		if slices.Contains(r.Selected, p.Name) {
			out = append(out, p)
		}
	}
	return out
}

func (r SampleRequest) inRange(d time.Time) bool {
	if r.From != nil && d.Before(*r.From) {
		return false
	}
	return r.To == nil || !d.After(*r.To)
}

// SampleResult is the raw output of one extraction run.
type SampleResult struct {
	Observations []domain.SampleObservation
	Report       *domain.RunReport
}

// SamplingExtractor reads 3-band colour values at sampling points across a folder.
type SamplingExtractor struct {
	reader  FrameReader
	opts    IngestOptions
	logger  *slog.Logger
	metrics *observability.Metrics
}

func NewSamplingExtractor(r FrameReader, opts IngestOptions, logger *slog.Logger, metrics *observability.Metrics) *SamplingExtractor {
	return &SamplingExtractor{reader: r, opts: opts, logger: logger, metrics: metrics}
}

type fileSamples struct {
	result domain.FileResult
	obs    []domain.SampleObservation
	skips  []domain.PointSkip
}

// Extract samples every dated raster in folder. Each file is processed into
// its own accumulator; accumulators are merged in file order and the merged
// observations are re-sorted by date, so worker count never changes output.
func (e *SamplingExtractor) Extract(ctx context.Context, folder string, req SampleRequest) (*SampleResult, error) {
	report := domain.NewRunReport(folder)
	defer report.Finish()

	if req.Proxy == nil {
		req.Proxy = domain.GreenProxy{Factor: domain.DefaultProxyFactor}
	}
	names, err := listRasters(folder, e.opts.MaskFile)
	if err != nil {
		return &SampleResult{Report: report}, err
	}
	points := req.points()

	perFile := make([]fileSamples, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.workers())
	for i, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			perFile[i] = e.sampleFile(folder, name, points, req)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return &SampleResult{Report: report}, err
	}
	if err := ctx.Err(); err != nil {
		return &SampleResult{Report: report}, err
	}

	var all []domain.SampleObservation
	for _, fs := range perFile {
		report.Add(fs.result)
		report.PointSkips = append(report.PointSkips, fs.skips...)
		if fs.result.Status == domain.StatusSkipped {
			e.metrics.FilesSkipped.WithLabelValues(string(fs.result.Reason)).Inc()
			e.logger.Warn("raster skipped", "file", fs.result.File, "reason", fs.result.Reason, "detail", fs.result.Detail)
		}
		for _, s := range fs.skips {
			e.metrics.FilesSkipped.WithLabelValues(string(s.Reason)).Inc()
		}
		all = append(all, fs.obs...)
	}
	domain.SortObservations(all)
	e.metrics.Observations.Add(float64(len(all)))

	res := &SampleResult{Observations: all, Report: report}
	if err := report.Err(); err != nil {
		return res, fmt.Errorf("%s: %w", folder, err)
	}
	e.logger.Info("sampling complete",
		"folder", folder,
		"files", report.Survivors(),
		"points", len(points),
		"observations", len(all),
		"point_skips", len(report.PointSkips),
	)
	return res, nil
}

func (e *SamplingExtractor) sampleFile(folder, name string, points []domain.SamplingPoint, req SampleRequest) fileSamples {
	date, _, err := domain.ExtractDate(name)
	if err != nil {
		return fileSamples{result: domain.Skipped(name, domain.SkipNoDate, nil)}
	}
	if !req.inRange(date) {
		return fileSamples{result: domain.Skipped(name, domain.SkipOutsideDateRange, nil)}
	}

	src, err := e.reader.OpenPixels(filepath.Join(folder, name))
	if err != nil {
		return fileSamples{result: domain.Skipped(name, domain.SkipUnreadable, err)}
	}
	defer src.Close()

	if src.BandCount() < 3 {
		return fileSamples{result: domain.Skipped(name, domain.SkipInsufficientBands,
			fmt.Errorf("%d bands: %w", src.BandCount(), domain.ErrInsufficientBands))}
	}
	mapper, err := domain.NewCoordinateMapper(src.Transform(), src.Width(), src.Height())
	if err != nil {
		return fileSamples{result: domain.Skipped(name, domain.SkipUnreadable, err)}
	}
	e.metrics.FramesRead.WithLabelValues("pixel").Inc()
	nodata := bandNoData(src, 3)

	out := fileSamples{result: domain.OK(name, date)}
	for _, p := range points {
		col, row, ok := mapper.Pixel(p.Longitude, p.Latitude)
		if !ok {
			out.skips = append(out.skips, domain.PointSkip{File: name, Point: p.Name, Reason: domain.SkipPointOutOfRange})
			continue
		}
		vals, err := src.ReadPixel(col, row, 3)
		if err != nil || undefinedPixel(vals, nodata) {
			out.skips = append(out.skips, domain.PointSkip{File: name, Point: p.Name, Reason: domain.SkipUndefinedPixel})
			continue
		}
		c := domain.NormalizeColor(vals[0], vals[1], vals[2])
		out.obs = append(out.obs, domain.SampleObservation{
			PointName:     p.Name,
			Date:          date,
			Color:         c,
			Concentration: req.Proxy.Concentration(c),
		})
	}
	return out
}

func bandNoData(src PixelSource, n int) []*float64 {
	out := make([]*float64, n)
	for i := range out {
		if nd, ok := src.NoData(i); ok {
			out[i] = &nd
		}
	}
	return out
}

// undefinedPixel reports whether any band is NaN or equals that band's sentinel.
func undefinedPixel(vals []float64, nodata []*float64) bool {
	if len(vals) < len(nodata) {
		return true
	}
	for i, nd := range nodata {
		if math.IsNaN(vals[i]) || (nd != nil && vals[i] == *nd) {
			return true
		}
	}
	return false
}
