package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/couchcryptid/lake-raster-engine/internal/adapter/ftpmirror"
	"github.com/couchcryptid/lake-raster-engine/internal/adapter/geotiff"
	"github.com/couchcryptid/lake-raster-engine/internal/adapter/kml"
	"github.com/couchcryptid/lake-raster-engine/internal/domain"
	"github.com/couchcryptid/lake-raster-engine/internal/pipeline"
	"github.com/couchcryptid/lake-raster-engine/internal/render"
)

type datesCmd struct {
	Folder string `arg:"" type:"existingdir" help:"Dataset folder."`
	Out    string `short:"o" help:"Output file (default stdout)."`
}

func (c *datesCmd) Run(g *Globals, ctx context.Context) error {
	e, dataset, err := g.engine(c.Folder, domain.DefaultProxyFactor)
	if err != nil {
		return err
	}
	dates, err := e.Dates(ctx, dataset)
	if err != nil {
		return err
	}
	return writeJSON(c.Out, dates)
}

type RangeFlags struct {
	Lower  *float64 `help:"Inclusive lower bound of the value range."`
	Upper  *float64 `help:"Inclusive upper bound of the value range."`
	Months []int    `help:"Restrict to these months (1-12)."`
	Years  []int    `help:"Restrict to these years."`
	DateFlags
}

// query builds the value range and frame filter. The range may only be left
// out when needRange is false.
func (r RangeFlags) query(needRange bool) (domain.ValueRange, domain.FrameFilter, error) {
	var rng domain.ValueRange
	switch {
	case r.Lower != nil && r.Upper != nil:
		rng = domain.ValueRange{Lower: *r.Lower, Upper: *r.Upper}
		if err := rng.Validate(); err != nil {
			return rng, domain.FrameFilter{}, err
		}
	case needRange || r.Lower != nil || r.Upper != nil:
		return rng, domain.FrameFilter{}, errors.New("--lower and --upper must be given together")
	}
	from, to, err := r.window()
	if err != nil {
		return rng, domain.FrameFilter{}, err
	}
	for _, m := range r.Months {
		if m < 1 || m > 12 {
			return rng, domain.FrameFilter{}, fmt.Errorf("--months: %d is not a month", m)
		}
	}
	return rng, domain.FrameFilter{From: from, To: to, Months: r.Months, Years: r.Years}, nil
}

type occurrenceCmd struct {
	Folder string `arg:"" type:"existingdir" help:"Dataset folder of single-band frames."`
	RangeFlags
	Out string `short:"o" help:"Output file (default stdout)."`
}

func (c *occurrenceCmd) Run(g *Globals, ctx context.Context) error {
	rng, filter, err := c.query(true)
	if err != nil {
		return err
	}
	e, dataset, err := g.engine(c.Folder, domain.DefaultProxyFactor)
	if err != nil {
		return err
	}
	res, err := e.Occurrence(ctx, dataset, pipeline.OccurrenceQuery{Range: rng, Filter: filter})
	if err != nil {
		return err
	}
	g.logger().Info("occurrence computed",
		"dataset", dataset,
		"frames", res.Report.Survivors(),
		"skipped", res.Report.Skipped(),
	)
	return writeJSON(c.Out, res)
}

type averageCmd struct {
	Folder string `arg:"" type:"existingdir" help:"Dataset folder of single-band frames."`
	Mode   string `default:"thresholded" enum:"thresholded,original" help:"Average only in-range values, or every defined value. The range is optional for original."`
	RangeFlags
	Out string `short:"o" help:"Output file (default stdout)."`
}

func (c *averageCmd) Run(g *Globals, ctx context.Context) error {
	mode, err := domain.ParseAverageMode(c.Mode)
	if err != nil {
		return err
	}
	rng, filter, err := c.query(mode == domain.AverageThresholded)
	if err != nil {
		return err
	}
	e, dataset, err := g.engine(c.Folder, domain.DefaultProxyFactor)
	if err != nil {
		return err
	}
	res, err := e.Average(ctx, dataset, pipeline.AverageQuery{Range: rng, Filter: filter, Mode: mode})
	if err != nil {
		return err
	}
	return writeJSON(c.Out, res)
}

type PointFlags struct {
	Points string   `type:"existingfile" help:"KML file of sampling points (default: the folder's sampling file)."`
	Select []string `help:"Only these point names."`
}

func (p PointFlags) load(logger *slog.Logger) ([]domain.SamplingPoint, error) {
	if p.Points == "" {
		return nil, nil
	}
	return kml.NewLoader(logger).LoadPoints(p.Points)
}

type sampleCmd struct {
	Folder string `arg:"" type:"existingdir" help:"Dataset folder of colour frames."`
	PointFlags
	DateFlags
	Factor float64 `default:"2.0" help:"Concentration proxy factor."`
	Date   string  `help:"Reference frame date (default: most recent)."`
	Out    string  `short:"o" help:"Output file (default stdout)."`
}

func (c *sampleCmd) Run(g *Globals, ctx context.Context) error {
	if c.Factor <= 0 {
		return fmt.Errorf("--factor must be positive, got %v", c.Factor)
	}
	from, to, err := c.window()
	if err != nil {
		return err
	}
	points, err := c.load(g.logger())
	if err != nil {
		return err
	}
	e, dataset, err := g.engine(c.Folder, c.Factor)
	if err != nil {
		return err
	}
	res, err := e.Samples(ctx, dataset, pipeline.SampleQuery{
		Points:        points,
		Selected:      c.Select,
		From:          from,
		To:            to,
		ReferenceDate: c.Date,
	})
	if err != nil {
		return err
	}
	g.logger().Info("samples extracted",
		"dataset", dataset,
		"frames", res.Report.Survivors(),
		"skipped", res.Report.Skipped(),
	)
	return writeJSON(c.Out, res)
}

type enhanceCmd struct {
	File           string  `arg:"" type:"existingfile" help:"Colour GeoTIFF frame."`
	Out            string  `short:"o" required:"" help:"Output PNG file."`
	IntensityMin   uint8   `default:"160" help:"Lower bound of the pale anomaly window."`
	IntensityMax   uint8   `default:"230" help:"Upper bound of the pale anomaly window."`
	MaxSpread      uint8   `default:"40" help:"Largest channel spread still counted as pale."`
	LowPercentile  float64 `default:"0.02" help:"Lower stretch quantile."`
	HighPercentile float64 `default:"0.98" help:"Upper stretch quantile."`
}

func (c *enhanceCmd) Run(g *Globals) error {
	if c.IntensityMin > c.IntensityMax {
		return fmt.Errorf("--intensity-min %d exceeds --intensity-max %d", c.IntensityMin, c.IntensityMax)
	}
	frame, err := geotiff.NewReader().ReadMultiBand(c.File)
	if err != nil {
		return err
	}
	cfg := domain.DefaultEnhanceConfig()
	cfg.LowPercentile, cfg.HighPercentile = c.LowPercentile, c.HighPercentile
	cfg.IntensityMin, cfg.IntensityMax, cfg.MaxChannelSpread = c.IntensityMin, c.IntensityMax, c.MaxSpread

	out, err := domain.Enhance(frame, cfg)
	if err != nil {
		return err
	}
	g.logger().Info("frame enhanced", "file", c.File, "anomalies", out.Anomalies)
	return writeOutput(c.Out, func(w io.Writer) error { return render.EncodePNG(w, out.Image) })
}

type referenceCmd struct {
	Folder string `arg:"" type:"existingdir" help:"Dataset folder of colour frames."`
	PointFlags
	Date  string `help:"Reference frame date (default: most recent)."`
	Scale int    `default:"2" help:"Upscaling factor of the rendered frame."`
	Out   string `short:"o" required:"" help:"Output PNG file."`
}

func (c *referenceCmd) Run(g *Globals, ctx context.Context) error {
	if c.Scale < 1 {
		return fmt.Errorf("--scale must be at least 1, got %d", c.Scale)
	}
	e, dataset, err := g.engine(c.Folder, domain.DefaultProxyFactor)
	if err != nil {
		return err
	}
	points, err := c.load(g.logger())
	if err != nil {
		return err
	}
	view, err := e.Reference(ctx, dataset, pipeline.ReferenceQuery{Points: points, Selected: c.Select, Date: c.Date})
	if err != nil {
		return err
	}
	opts := render.DefaultOverlayOptions()
	opts.Scale = c.Scale
	return writeOutput(c.Out, func(w io.Writer) error {
		return render.EncodePNG(w, render.Overlay(view.Enhanced.Image, view.Summary.Points, opts))
	})
}

type fetchCmd struct {
	Addr       string        `required:"" help:"FTP server address (host:port)."`
	User       string        `help:"FTP user (default anonymous)." env:"FTP_USER"`
	Password   string        `help:"FTP password." env:"FTP_PASSWORD"`
	RemoteDir  string        `required:"" help:"Remote folder to mirror."`
	Dest       string        `required:"" type:"path" help:"Local dataset folder."`
	Timeout    time.Duration `default:"30s" help:"Dial and transfer timeout."`
	MaxElapsed time.Duration `default:"2m" help:"Retry budget of each remote operation."`
}

func (c *fetchCmd) Run(g *Globals, ctx context.Context) error {
	m := ftpmirror.New(ftpmirror.Options{
		Addr:       c.Addr,
		User:       c.User,
		Password:   c.Password,
		RemoteDir:  c.RemoteDir,
		Dest:       c.Dest,
		Timeout:    c.Timeout,
		MaxElapsed: c.MaxElapsed,
	}, g.logger())
	res, err := m.Sync(ctx)
	if err != nil {
		return err
	}
	g.logger().Info("mirror synced", "dest", c.Dest, "downloaded", len(res.Downloaded), "skipped", len(res.Skipped))
	return nil
}
