package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	DataRoot        string
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	Workers       int
	MaskFile      string
	BoundaryFiles []string
	CanvasWidth   int
	CanvasHeight  int
	LevelFiles    []string
	SamplingFile  string
	ZeroAsNoData  bool

	ProxyFactor      float64
	IntensityMin     int
	IntensityMax     int
	MaxChannelSpread int

	// Memoization of analysis results.
	MemoEnabled bool
	MemoSize    int

	// Kafka publishing of sampling results.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	workers, err := parseInt("WORKERS", "4", 1, 64)
	if err != nil {
		return nil, err
	}
	canvasW, canvasH, err := parseCanvas(sharedcfg.EnvOrDefault("BOUNDARY_CANVAS", "518x505"))
	if err != nil {
		return nil, err
	}
	zeroAsNoData, err := parseBool("ZERO_AS_NODATA", "true")
	if err != nil {
		return nil, err
	}

	factor, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("PROXY_FACTOR", "2.0"), 64)
	if err != nil || factor <= 0 {
		return nil, errors.New("invalid PROXY_FACTOR: must be a positive number")
	}

	intensityMin, err := parseInt("ANOMALY_INTENSITY_MIN", "160", 0, 255)
	if err != nil {
		return nil, err
	}
	intensityMax, err := parseInt("ANOMALY_INTENSITY_MAX", "230", 0, 255)
	if err != nil {
		return nil, err
	}
	if intensityMin > intensityMax {
		return nil, errors.New("ANOMALY_INTENSITY_MIN must not exceed ANOMALY_INTENSITY_MAX")
	}
	spread, err := parseInt("ANOMALY_MAX_SPREAD", "40", 0, 255)
	if err != nil {
		return nil, err
	}

	memoEnabled, err := parseBool("MEMO_ENABLED", "true")
	if err != nil {
		return nil, err
	}
	memoSize, err := parseInt("MEMO_SIZE", "64", 1, 1<<16)
	if err != nil {
		return nil, err
	}
	kafkaEnabled, err := parseBool("KAFKA_ENABLED", "false")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataRoot:        sharedcfg.EnvOrDefault("DATA_ROOT", "data"),
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		Workers:       workers,
		MaskFile:      sharedcfg.EnvOrDefault("MASK_FILE", "mask.tif"),
		BoundaryFiles: splitList(sharedcfg.EnvOrDefault("BOUNDARY_FILES", "shapefile.xml,shapefile.txt")),
		CanvasWidth:   canvasW,
		CanvasHeight:  canvasH,
		LevelFiles:    splitList(sharedcfg.EnvOrDefault("LEVEL_FILES", "lake height.xlsx,levels.csv")),
		SamplingFile:  sharedcfg.EnvOrDefault("SAMPLING_FILE", "sampling.kml"),
		ZeroAsNoData:  zeroAsNoData,

		ProxyFactor:      factor,
		IntensityMin:     intensityMin,
		IntensityMax:     intensityMax,
		MaxChannelSpread: spread,

		MemoEnabled: memoEnabled,
		MemoSize:    memoSize,

		KafkaEnabled: kafkaEnabled,
		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "lake-samples"),
	}

	if cfg.DataRoot == "" {
		return nil, errors.New("DATA_ROOT is required")
	}
	if cfg.SamplingFile == "" {
		return nil, errors.New("SAMPLING_FILE is required")
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
		}
		if cfg.KafkaTopic == "" {
			return nil, errors.New("KAFKA_TOPIC is required when KAFKA_ENABLED is true")
		}
	}

	return cfg, nil
}

func parseInt(key, def string, lo, hi int) (int, error) {
	n, err := strconv.Atoi(sharedcfg.EnvOrDefault(key, def))
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s: must be an integer between %d and %d", key, lo, hi)
	}
	return n, nil
}

func parseBool(key, def string) (bool, error) {
	b, err := strconv.ParseBool(sharedcfg.EnvOrDefault(key, def))
	if err != nil {
		return false, fmt.Errorf("invalid %s: must be true or false", key)
	}
	return b, nil
}

// parseCanvas reads a WIDTHxHEIGHT pair.
func parseCanvas(s string) (int, int, error) {
	w, h, ok := strings.Cut(strings.ToLower(s), "x")
	if ok {
		width, errW := strconv.Atoi(strings.TrimSpace(w))
		height, errH := strconv.Atoi(strings.TrimSpace(h))
		if errW == nil && errH == nil && width > 0 && height > 0 {
			return width, height, nil
		}
	}
	return 0, 0, fmt.Errorf("invalid BOUNDARY_CANVAS %q: want WIDTHxHEIGHT", s)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
