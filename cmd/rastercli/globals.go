package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/lake-raster-engine/internal/adapter/boundaryxml"
	"github.com/couchcryptid/lake-raster-engine/internal/adapter/geotiff"
	"github.com/couchcryptid/lake-raster-engine/internal/adapter/kml"
	"github.com/couchcryptid/lake-raster-engine/internal/adapter/levels"
	"github.com/couchcryptid/lake-raster-engine/internal/domain"
	"github.com/couchcryptid/lake-raster-engine/internal/observability"
	"github.com/couchcryptid/lake-raster-engine/internal/pipeline"
)

// Globals are the flags shared by every command. Their defaults mirror the
// service's environment defaults.
type Globals struct {
	LogLevel     string   `help:"Log level (debug, info, warn, error)." default:"info" env:"LOG_LEVEL"`
	LogFormat    string   `help:"Log format (json, text)." default:"text" enum:"json,text" env:"LOG_FORMAT"`
	Workers      int      `help:"Files read concurrently." default:"4" env:"WORKERS"`
	MaskFile     string   `help:"File name excluded from the stack." default:"mask.tif" env:"MASK_FILE"`
	Boundary     []string `help:"Boundary outline candidates." default:"shapefile.xml,shapefile.txt" env:"BOUNDARY_FILES"`
	Levels       []string `help:"Level series candidates." default:"lake height.xlsx,levels.csv" env:"LEVEL_FILES"`
	SamplingFile string   `help:"Default sampling points file." default:"sampling.kml" env:"SAMPLING_FILE"`
	KeepZero     bool     `help:"Treat exact zero as a valid single-band value."`

	log *slog.Logger
}

func (g *Globals) logger() *slog.Logger {
	if g.log == nil {
		g.log = observability.NewLoggerTo(os.Stderr, g.LogLevel, g.LogFormat)
	}
	return g.log
}

// engine builds an engine rooted at the parent of folder and returns the
// dataset name it knows folder by.
func (g *Globals) engine(folder string, proxyFactor float64) (*pipeline.Engine, string, error) {
	abs, err := filepath.Abs(folder)
	if err != nil {
		return nil, "", fmt.Errorf("resolve %s: %w", folder, err)
	}
	logger := g.logger()
	e := pipeline.NewEngine(pipeline.EngineConfig{
		DataRoot:     filepath.Dir(abs),
		SamplingFile: g.SamplingFile,
		ProxyFactor:  proxyFactor,
		Enhance:      domain.DefaultEnhanceConfig(),
		Ingest: pipeline.IngestOptions{
			Workers:      g.Workers,
			MaskFile:     g.MaskFile,
			Canvas:       domain.DefaultCanvas,
			ZeroAsNoData: !g.KeepZero,
		},
	}, pipeline.Components{
		Reader:   geotiff.NewReader(),
		Boundary: boundaryxml.NewLoader(g.Boundary),
		Levels:   levels.NewLoader(g.Levels, logger),
		Points:   kml.NewLoader(logger),
	}, logger, observability.NewMetrics())
	return e, filepath.Base(abs), nil
}

// DateFlags is the optional inclusive date window shared by the analyses.
type DateFlags struct {
	From string `help:"First frame date (YYYY-MM-DD)."`
	To   string `help:"Last frame date (YYYY-MM-DD)."`
}

func (d DateFlags) window() (from, to *time.Time, err error) {
	if from, err = parseDate("from", d.From); err != nil {
		return nil, nil, err
	}
	if to, err = parseDate("to", d.To); err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

func parseDate(name, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("--%s %q: want YYYY-MM-DD", name, s)
	}
	return &t, nil
}

// writeOutput writes through fn to path, or to stdout when path is empty or "-".
func writeOutput(path string, fn func(io.Writer) error) (err error) {
	if path == "" || path == "-" {
		return fn(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(f)
}

func writeJSON(path string, v any) error {
	return writeOutput(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}
