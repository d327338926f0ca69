package domain

import (
	"time"

	"github.com/google/uuid"
)

// SkipReason classifies a non-fatal per-file or per-point problem.
type SkipReason string

const (
	SkipNoDate            SkipReason = "no_date"
	SkipOutsideDateRange  SkipReason = "outside_date_range"
	SkipInsufficientBands SkipReason = "insufficient_bands"
	SkipUnreadable        SkipReason = "unreadable"
	SkipShapeMismatch     SkipReason = "shape_mismatch"
	SkipPointOutOfRange   SkipReason = "point_out_of_range"
	SkipUndefinedPixel    SkipReason = "undefined_pixel"
)

// FileStatus is the outcome of ingesting one file.
type FileStatus string

const (
	StatusOK      FileStatus = "ok"
	StatusSkipped FileStatus = "skipped"
)

// FileResult records what happened to one candidate raster file.
type FileResult struct {
	File   string     `json:"file"`
	Date   string     `json:"date,omitempty"`
	Status FileStatus `json:"status"`
	Reason SkipReason `json:"reason,omitempty"`
	Detail string     `json:"detail,omitempty"`
}

// OK builds a successful file result.
func OK(file string, date time.Time) FileResult {
	return FileResult{File: file, Date: date.Format(DateLayout), Status: StatusOK}
}

// Skipped builds a skipped file result. err may be nil.
func Skipped(file string, reason SkipReason, err error) FileResult {
	r := FileResult{File: file, Status: StatusSkipped, Reason: reason}
	if err != nil {
		r.Detail = err.Error()
	}
	return r
}

// PointSkip records a point that produced no observation for one file.
type PointSkip struct {
	File   string     `json:"file"`
	Point  string     `json:"point"`
	Reason SkipReason `json:"reason"`
}

// RunReport summarises one ingestion or extraction run.
type RunReport struct {
	ID         uuid.UUID    `json:"id"`
	Folder     string       `json:"folder"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Files      []FileResult `json:"files"`
	PointSkips []PointSkip  `json:"point_skips,omitempty"`
	// Degraded lists optional inputs that were missing or malformed.
	Degraded []string `json:"degraded,omitempty"`
}

// NewRunReport stamps a fresh report with the package clock.
func NewRunReport(folder string) *RunReport {
	return &RunReport{ID: uuid.New(), Folder: folder, StartedAt: clock.Now().UTC()}
}

// Finish stamps the end time.
func (r *RunReport) Finish() { r.FinishedAt = clock.Now().UTC() }

func (r *RunReport) Add(res FileResult) { r.Files = append(r.Files, res) }

func (r *RunReport) Degrade(what string) { r.Degraded = append(r.Degraded, what) }

// Survivors counts files that were ingested.
func (r *RunReport) Survivors() int {
	n := 0
	for _, f := range r.Files {
		if f.Status == StatusOK {
			n++
		}
	}
	return n
}

// Skipped returns the skipped file results in file order.
func (r *RunReport) Skipped() []FileResult {
	var out []FileResult
	for _, f := range r.Files {
		if f.Status == StatusSkipped {
			out = append(out, f)
		}
	}
	return out
}

// SkipCounts tallies file and point skips by reason.
func (r *RunReport) SkipCounts() map[SkipReason]int {
	out := make(map[SkipReason]int)
	for _, f := range r.Files {
		if f.Status == StatusSkipped {
			out[f.Reason]++
		}
	}
	for _, p := range r.PointSkips {
		out[p.Reason]++
	}
	return out
}

// Err is ErrNoFrames when no file survived, nil otherwise.
func (r *RunReport) Err() error {
	if r.Survivors() == 0 {
		return ErrNoFrames
	}
	return nil
}
