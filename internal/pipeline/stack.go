package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/lake-raster-engine/internal/domain"
	"github.com/couchcryptid/lake-raster-engine/internal/observability"
)

// IngestOptions are the dataset conventions shared by the stack builder and
// the sampling extractor.
type IngestOptions struct {
	Workers      int
	MaskFile     string
	Canvas       domain.Canvas
	ZeroAsNoData bool
}

func (o IngestOptions) workers() int {
	if o.Workers < 1 {
		return 1
	}
	return o.Workers
}

// StackBuilder assembles a single-band RasterStack from a dataset folder.
type StackBuilder struct {
	reader   FrameReader
	boundary BoundarySource
	opts     IngestOptions
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewStackBuilder creates a StackBuilder. A nil boundary source disables masking.
func NewStackBuilder(r FrameReader, b BoundarySource, opts IngestOptions, logger *slog.Logger, metrics *observability.Metrics) *StackBuilder {
	return &StackBuilder{reader: r, boundary: b, opts: opts, logger: logger, metrics: metrics}
}

type frameOutcome struct {
	frame  domain.RasterFrame
	result domain.FileResult
}

// Build reads every dated raster in folder. Per-file problems are recorded in
// the report and skipped; a missing folder or zero surviving frames is an
// error. The report is returned in both cases. On cancellation partial work is
// discarded and ctx.Err() is returned.
func (b *StackBuilder) Build(ctx context.Context, folder string) (*domain.RasterStack, *domain.RunReport, error) {
	start := time.Now()
	report := domain.NewRunReport(folder)
	defer report.Finish()

	names, err := listRasters(folder, b.opts.MaskFile)
	if err != nil {
		return nil, report, err
	}

	opts := domain.SingleBandOptions{ZeroAsNoData: b.opts.ZeroAsNoData, Boundary: b.loadBoundary(folder, names, report)}

	outcomes := make([]frameOutcome, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.workers())
	for i, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = b.readFrame(folder, name, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, report, err
	}
	if err := ctx.Err(); err != nil {
		return nil, report, err
	}

	stack := b.assemble(outcomes, report)
	b.metrics.StackBuildDuration.Observe(time.Since(start).Seconds())

	if err := report.Err(); err != nil {
		return nil, report, fmt.Errorf("%s: %w", folder, err)
	}
	b.logger.Info("raster stack built",
		"folder", folder,
		"frames", stack.Len(),
		"skipped", len(report.Skipped()),
		"width", stack.Width,
		"height", stack.Height,
	)
	return stack, report, nil
}

// loadBoundary rescales the folder's outline onto the first readable file's bounds.
func (b *StackBuilder) loadBoundary(folder string, names []string, report *domain.RunReport) *domain.BoundaryPolygon {
	if b.boundary == nil {
		return nil
	}
	for _, name := range names {
		bounds, err := b.reader.Bounds(filepath.Join(folder, name))
		if err != nil {
			continue
		}
		vertices, err := b.boundary.LoadOutline(folder)
		if err != nil {
			b.logger.Info("boundary unavailable, no mask applied", "folder", folder, "error", err)
			report.Degrade("boundary")
			return nil
		}
		poly, err := domain.RescaleOutline(vertices, b.opts.Canvas, &bounds)
		if err != nil {
			b.logger.Warn("boundary outline unusable, no mask applied", "folder", folder, "error", err)
			report.Degrade("boundary")
			return nil
		}
		b.logger.Debug("boundary loaded", "folder", folder, "reference", name, "vertices", len(poly.Ring))
		return poly
	}
	return nil
}

func (b *StackBuilder) readFrame(folder, name string, opts domain.SingleBandOptions) frameOutcome {
	date, doy, err := domain.ExtractDate(name)
	if err != nil {
		return frameOutcome{result: domain.Skipped(name, domain.SkipNoDate, nil)}
	}
	frame, err := b.reader.ReadSingleBand(filepath.Join(folder, name), opts)
	if err != nil {
		reason := domain.SkipUnreadable
		if errors.Is(err, domain.ErrInsufficientBands) {
			reason = domain.SkipInsufficientBands
		}
		return frameOutcome{result: domain.Skipped(name, reason, err)}
	}
	frame.Date, frame.DayOfYear = date, doy
	b.metrics.FramesRead.WithLabelValues("single").Inc()
	return frameOutcome{frame: frame, result: domain.OK(name, date)}
}

// assemble merges outcomes in file-name order, drops frames whose shape differs
// from the first survivor, then orders the stack by date.
func (b *StackBuilder) assemble(outcomes []frameOutcome, report *domain.RunReport) *domain.RasterStack {
	type survivor struct {
		frame domain.RasterFrame
		file  string
	}
	var kept []survivor
	for _, o := range outcomes {
		res := o.result
		if res.Status == domain.StatusOK && len(kept) > 0 {
			ref := kept[0].frame
			if o.frame.Width != ref.Width || o.frame.Height != ref.Height {
				res = domain.Skipped(res.File, domain.SkipShapeMismatch,
					fmt.Errorf("%dx%d, stack is %dx%d", o.frame.Width, o.frame.Height, ref.Width, ref.Height))
			}
		}
		report.Add(res)
		if res.Status != domain.StatusOK {
			b.metrics.FilesSkipped.WithLabelValues(string(res.Reason)).Inc()
			b.logger.Warn("raster skipped", "file", res.File, "reason", res.Reason, "detail", res.Detail)
			continue
		}
		kept = append(kept, survivor{frame: o.frame, file: res.File})
	}

	slices.SortStableFunc(kept, func(a, b survivor) int { return a.frame.Date.Compare(b.frame.Date) })

	stack := &domain.RasterStack{}
	for _, s := range kept {
		// Shapes were checked above.
		_ = stack.Append(s.frame, s.file)
	}
	return stack
}

// folderExists distinguishes a missing dataset from an empty one.
func folderExists(folder string) error {
	info, err := os.Stat(folder)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", folder, domain.ErrDatasetNotFound)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a folder: %w", folder, domain.ErrDatasetNotFound)
	}
	return nil
}
