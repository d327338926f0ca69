package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/lake-raster-engine/internal/domain"
	"github.com/couchcryptid/lake-raster-engine/internal/observability"
)

// ErrInvalidQuery marks a malformed request parameter.
var ErrInvalidQuery = errors.New("invalid query")

// Analyzer is the engine surface consumed by the HTTP and CLI adapters.
type Analyzer interface {
	Dates(ctx context.Context, dataset string) ([]DatedFile, error)
	Occurrence(ctx context.Context, dataset string, q OccurrenceQuery) (*OccurrenceResult, error)
	Average(ctx context.Context, dataset string, q AverageQuery) (*AverageResult, error)
	Samples(ctx context.Context, dataset string, q SampleQuery) (*SampleReport, error)
	SamplesByIndex(ctx context.Context, waterbody string, indices []string, q SampleQuery) ([]IndexSamples, error)
	Enhance(ctx context.Context, dataset, date string) (*domain.EnhancedFrame, error)
	Reference(ctx context.Context, dataset string, q ReferenceQuery) (*ReferenceView, error)
}

// EngineConfig carries dataset conventions and analysis defaults.
type EngineConfig struct {
	DataRoot     string
	SamplingFile string
	ProxyFactor  float64
	Enhance      domain.EnhanceConfig
	Ingest       IngestOptions
}

// Components are the adapters the engine drives. Levels, Boundary and
// Publisher may be nil.
type Components struct {
	Reader    FrameReader
	Boundary  BoundarySource
	Levels    LevelSource
	Points    PointSource
	Publisher SamplePublisher
}

// Engine runs analyses over dataset folders under a data root. It holds no
// per-dataset state; every call recomputes from the files on disk.
type Engine struct {
	cfg     EngineConfig
	c       Components
	stacks  *StackBuilder
	sampler *SamplingExtractor
	logger  *slog.Logger
	metrics *observability.Metrics
	ready   atomic.Bool
}

// NewEngine wires the stack builder and sampling extractor over c.
func NewEngine(cfg EngineConfig, c Components, logger *slog.Logger, metrics *observability.Metrics) *Engine {
	if cfg.ProxyFactor <= 0 {
		cfg.ProxyFactor = domain.DefaultProxyFactor
	}
	return &Engine{
		cfg:     cfg,
		c:       c,
		stacks:  NewStackBuilder(c.Reader, c.Boundary, cfg.Ingest, logger, metrics),
		sampler: NewSamplingExtractor(c.Reader, cfg.Ingest, logger, metrics),
		logger:  logger,
		metrics: metrics,
	}
}

// CheckReadiness returns nil once the data root was probed or an analysis
// succeeded.
func (e *Engine) CheckReadiness(_ context.Context) error {
	if !e.ready.Load() {
		return errors.New("engine has not completed a probe or analysis yet")
	}
	return nil
}

// Probe marks the engine ready when the data root exists.
func (e *Engine) Probe(_ context.Context) error {
	if err := folderExists(e.cfg.DataRoot); err != nil {
		return fmt.Errorf("probe data root: %w", err)
	}
	e.markReady()
	return nil
}

func (e *Engine) markReady() {
	if !e.ready.Swap(true) {
		e.metrics.EngineReady.Set(1)
		e.logger.Info("engine ready", "data_root", e.cfg.DataRoot)
	}
}

func (e *Engine) observe(kind string, start time.Time) {
	e.metrics.AnalysisDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// resolve maps a dataset name to its folder. Names must stay inside the data root.
func (e *Engine) resolve(dataset string) (string, error) {
	if dataset == "" || !filepath.IsLocal(dataset) {
		return "", fmt.Errorf("%w: %q", ErrInvalidDataset, dataset)
	}
	return filepath.Join(e.cfg.DataRoot, dataset), nil
}

// Dates lists the dated frames of a dataset.
func (e *Engine) Dates(_ context.Context, dataset string) ([]DatedFile, error) {
	folder, err := e.resolve(dataset)
	if err != nil {
		return nil, err
	}
	return ListDates(folder, e.cfg.Ingest.MaskFile)
}

// OccurrenceQuery parameterises the occurrence grids.
type OccurrenceQuery struct {
	Range  domain.ValueRange  `json:"range"`
	Filter domain.FrameFilter `json:"filter"`
}

// OccurrenceResult is the occurrence analysis of one dataset.
type OccurrenceResult struct {
	Dataset string                 `json:"dataset"`
	Range   domain.ValueRange      `json:"range"`
	Grids   domain.OccurrenceGrids `json:"grids"`
	Monthly []domain.GroupedCount  `json:"monthly"`
	Yearly  []domain.GroupedCount  `json:"yearly"`
	Report  *domain.RunReport      `json:"report"`
}

// Occurrence builds the dataset stack and computes the occurrence grids plus
// monthly and yearly grouped counts over the full stack.
func (e *Engine) Occurrence(ctx context.Context, dataset string, q OccurrenceQuery) (*OccurrenceResult, error) {
	defer e.observe("occurrence", time.Now())
	if err := q.Range.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	stack, report, err := e.buildStack(ctx, dataset)
	if err != nil {
		return nil, err
	}

	grids, err := domain.AnalyzeOccurrence(stack, q.Range, q.Filter)
	if err != nil {
		return nil, err
	}
	monthly, err := domain.GroupDaysInRange(stack, q.Range, domain.PartitionMonth)
	if err != nil {
		return nil, err
	}
	yearly, err := domain.GroupDaysInRange(stack, q.Range, domain.PartitionYear)
	if err != nil {
		return nil, err
	}
	e.markReady()
	return &OccurrenceResult{
		Dataset: dataset,
		Range:   q.Range,
		Grids:   grids,
		Monthly: monthly,
		Yearly:  yearly,
		Report:  report,
	}, nil
}

// AverageQuery parameterises the average-sample grid.
type AverageQuery struct {
	Range  domain.ValueRange  `json:"range"`
	Filter domain.FrameFilter `json:"filter"`
	Mode   domain.AverageMode `json:"mode"`
}

type AverageResult struct {
	Dataset string             `json:"dataset"`
	Mode    domain.AverageMode `json:"mode"`
	Average domain.Grid        `json:"average"`
	Report  *domain.RunReport  `json:"report"`
}

// Average computes the per-pixel mean of the filtered stack.
func (e *Engine) Average(ctx context.Context, dataset string, q AverageQuery) (*AverageResult, error) {
	defer e.observe("average", time.Now())
	if q.Mode == "" {
		q.Mode = domain.AverageThresholded
	}
	if q.Mode == domain.AverageThresholded {
		if err := q.Range.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
		}
	}
	stack, report, err := e.buildStack(ctx, dataset)
	if err != nil {
		return nil, err
	}
	avg, err := domain.AverageSample(stack, q.Range, q.Filter, q.Mode)
	if err != nil {
		return nil, err
	}
	e.markReady()
	return &AverageResult{Dataset: dataset, Mode: q.Mode, Average: avg, Report: report}, nil
}

func (e *Engine) buildStack(ctx context.Context, dataset string) (*domain.RasterStack, *domain.RunReport, error) {
	folder, err := e.resolve(dataset)
	if err != nil {
		return nil, nil, err
	}
	return e.stacks.Build(ctx, folder)
}

// SampleQuery parameterises point sampling.
type SampleQuery struct {
	// Points overrides the dataset's sampling file when non-empty.
	Points   []domain.SamplingPoint `json:"points,omitempty"`
	Selected []string               `json:"selected,omitempty"`
	From     *time.Time             `json:"from,omitempty"`
	To       *time.Time             `json:"to,omitempty"`
	// Factor overrides the configured proxy factor when positive.
	Factor float64 `json:"factor,omitempty"`
	// ReferenceDate picks the reference frame; empty means the most recent.
	ReferenceDate string `json:"reference_date,omitempty"`
}

// ReferenceSummary locates the selected points on the reference frame.
type ReferenceSummary struct {
	Date   string              `json:"date"`
	File   string              `json:"file"`
	Width  int                 `json:"width"`
	Height int                 `json:"height"`
	Points []domain.PointPixel `json:"points"`
}

// SampleReport is the aggregated sampling output of one dataset.
type SampleReport struct {
	Dataset   string            `json:"dataset"`
	Series    domain.SeriesSet  `json:"series"`
	Reference *ReferenceSummary `json:"reference,omitempty"`
	Report    *domain.RunReport `json:"report"`
}

// Samples extracts point series from a dataset and aggregates them with the
// dataset's level series. A missing level series only removes the level side
// of the joined output.
func (e *Engine) Samples(ctx context.Context, dataset string, q SampleQuery) (*SampleReport, error) {
	defer e.observe("samples", time.Now())
	folder, err := e.resolve(dataset)
	if err != nil {
		return nil, err
	}
	points := q.Points
	if len(points) == 0 {
		if points, err = e.loadPoints(folder); err != nil {
			return nil, err
		}
	}
	out, err := e.samples(ctx, dataset, folder, points, q)
	if err != nil {
		return nil, err
	}
	e.markReady()
	return out, nil
}

func (e *Engine) samples(ctx context.Context, dataset, folder string, points []domain.SamplingPoint, q SampleQuery) (*SampleReport, error) {
	factor := e.cfg.ProxyFactor
	if q.Factor > 0 {
		factor = q.Factor
	}
	res, err := e.sampler.Extract(ctx, folder, SampleRequest{
		Points:   points,
		Selected: q.Selected,
		From:     q.From,
		To:       q.To,
		Proxy:    domain.GreenProxy{Factor: factor},
	})
	if err != nil {
		return nil, err
	}
	report := res.Report

	levels := e.loadLevels(folder, report)
	out := &SampleReport{
		Dataset: dataset,
		Series:  domain.AggregateSeries(res.Observations, q.Selected, levels),
		Report:  report,
	}

	ref, err := e.referenceSummary(folder, points, q.Selected, q.ReferenceDate)
	switch {
	case errors.Is(err, ErrFrameNotFound), errors.Is(err, ErrInvalidQuery):
		return nil, err
	case err != nil:
		e.logger.Warn("reference frame unavailable", "folder", folder, "error", err)
		report.Degrade("reference")
	default:
		out.Reference = ref
	}

	if e.c.Publisher != nil && len(res.Observations) > 0 {
		if err := e.c.Publisher.PublishSamples(ctx, dataset, res.Observations); err != nil {
			e.logger.Warn("publish samples failed", "dataset", dataset, "error", err)
			report.Degrade("publish")
		} else {
			e.metrics.PublishedMessages.Add(float64(len(res.Observations)))
		}
	}
	return out, nil
}

// IndexSamples is the sampling outcome of one index dataset of a water body.
type IndexSamples struct {
	Index   string        `json:"index"`
	Samples *SampleReport `json:"samples,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// SamplesByIndex samples the same points over several index datasets of a
// water body concurrently. A failing index is reported in its entry and never
// aborts the others. Points default to the water body's sampling file.
func (e *Engine) SamplesByIndex(ctx context.Context, waterbody string, indices []string, q SampleQuery) ([]IndexSamples, error) {
	defer e.observe("samples_by_index", time.Now())
	if len(indices) == 0 {
		return nil, fmt.Errorf("%w: no indices", ErrInvalidQuery)
	}
	root, err := e.resolve(waterbody)
	if err != nil {
		return nil, err
	}
	points := q.Points
	if len(points) == 0 {
		if points, err = e.loadPoints(root); err != nil {
			return nil, err
		}
	}

	out := make([]IndexSamples, len(indices))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Ingest.workers())
	for i, idx := range indices {
		g.Go(func() error {
			out[i].Index = idx
			dataset := filepath.Join(waterbody, idx)
			folder, err := e.resolve(dataset)
			if !filepath.IsLocal(idx) {
				err = fmt.Errorf("%w: index %q", ErrInvalidDataset, idx)
			}
			if err == nil {
				out[i].Samples, err = e.samples(gctx, dataset, folder, points, q)
			}
			if err != nil {
				e.logger.Warn("index sampling failed", "waterbody", waterbody, "index", idx, "error", err)
				out[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.markReady()
	return out, nil
}

// Enhance renders the frame of a dataset dated date (YYYY-MM-DD).
func (e *Engine) Enhance(_ context.Context, dataset, date string) (*domain.EnhancedFrame, error) {
	defer e.observe("enhance", time.Now())
	folder, err := e.resolve(dataset)
	if err != nil {
		return nil, err
	}
	file, err := e.pickFrame(folder, date)
	if err != nil {
		return nil, err
	}
	frame, err := e.readColourFrame(folder, file)
	if err != nil {
		return nil, err
	}
	out, err := domain.Enhance(frame, e.cfg.Enhance)
	if err != nil {
		return nil, err
	}
	e.markReady()
	return out, nil
}

// ReferenceQuery picks the reference frame and the points to annotate.
type ReferenceQuery struct {
	// Points overrides the dataset's sampling file when non-empty.
	Points   []domain.SamplingPoint `json:"points,omitempty"`
	Selected []string               `json:"selected,omitempty"`
	Date     string                 `json:"date,omitempty"`
}

// ReferenceView is the enhanced reference frame with point pixel locations.
type ReferenceView struct {
	Summary  ReferenceSummary
	Enhanced *domain.EnhancedFrame
}

// Reference renders the reference frame and locates the selected points on it.
func (e *Engine) Reference(_ context.Context, dataset string, q ReferenceQuery) (*ReferenceView, error) {
	defer e.observe("reference", time.Now())
	folder, err := e.resolve(dataset)
	if err != nil {
		return nil, err
	}
	points := q.Points
	if len(points) == 0 {
		if points, err = e.loadPoints(folder); err != nil {
			return nil, err
		}
	}
	file, err := e.pickFrame(folder, q.Date)
	if err != nil {
		return nil, err
	}
	frame, err := e.readColourFrame(folder, file)
	if err != nil {
		return nil, err
	}
	enhanced, err := domain.Enhance(frame, e.cfg.Enhance)
	if err != nil {
		return nil, err
	}
	mapper, err := domain.NewCoordinateMapper(frame.Transform, frame.Width, frame.Height)
	if err != nil {
		return nil, err
	}
	e.markReady()
	return &ReferenceView{
		Summary: ReferenceSummary{
			Date:   frame.Date.Format(domain.DateLayout),
			File:   file,
			Width:  frame.Width,
			Height: frame.Height,
			Points: domain.LocatePoints(points, q.Selected, mapper),
		},
		Enhanced: enhanced,
	}, nil
}

// referenceSummary locates points on the reference frame without reading its bands.
func (e *Engine) referenceSummary(folder string, points []domain.SamplingPoint, selected []string, date string) (*ReferenceSummary, error) {
	file, err := e.pickFrame(folder, date)
	if err != nil {
		return nil, err
	}
	src, err := e.c.Reader.OpenPixels(filepath.Join(folder, file))
	if err != nil {
		return nil, err
	}
	defer src.Close()
	mapper, err := domain.NewCoordinateMapper(src.Transform(), src.Width(), src.Height())
	if err != nil {
		return nil, err
	}
	d, _, _ := domain.ExtractDate(file)
	return &ReferenceSummary{
		Date:   d.Format(domain.DateLayout),
		File:   file,
		Width:  src.Width(),
		Height: src.Height(),
		Points: domain.LocatePoints(points, selected, mapper),
	}, nil
}

// pickFrame returns the first file dated date, or the most recent file when
// date is empty.
func (e *Engine) pickFrame(folder, date string) (string, error) {
	dated, err := ListDates(folder, e.cfg.Ingest.MaskFile)
	if err != nil {
		return "", err
	}
	if len(dated) == 0 {
		return "", fmt.Errorf("%s: %w", folder, domain.ErrNoFrames)
	}
	if date == "" {
		return dated[len(dated)-1].File, nil
	}
	want, err := time.Parse(domain.DateLayout, date)
	if err != nil {
		return "", fmt.Errorf("%w: date %q", ErrInvalidQuery, date)
	}
	for _, d := range dated {
		if d.Date.Equal(want) {
			return d.File, nil
		}
	}
	return "", fmt.Errorf("%s: %w", date, ErrFrameNotFound)
}

func (e *Engine) readColourFrame(folder, file string) (domain.RasterFrame, error) {
	frame, err := e.c.Reader.ReadMultiBand(filepath.Join(folder, file))
	if err != nil {
		return domain.RasterFrame{}, fmt.Errorf("read %s: %w", file, err)
	}
	frame.Date, frame.DayOfYear, _ = domain.ExtractDate(file)
	e.metrics.FramesRead.WithLabelValues("multi").Inc()
	return frame, nil
}

func (e *Engine) loadPoints(folder string) ([]domain.SamplingPoint, error) {
	if e.c.Points == nil {
		return nil, ErrNoSamplingPoints
	}
	points, err := e.c.Points.LoadPoints(filepath.Join(folder, e.cfg.SamplingFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoSamplingPoints, err)
	}
	if len(points) == 0 {
		return nil, ErrNoSamplingPoints
	}
	return points, nil
}

func (e *Engine) loadLevels(folder string, report *domain.RunReport) []domain.LevelObservation {
	if e.c.Levels == nil {
		return nil
	}
	levels, err := e.c.Levels.LoadLevels(folder)
	if err != nil {
		e.logger.Info("level series unavailable", "folder", folder, "error", err)
		report.Degrade("levels")
		return nil
	}
	return levels
}
