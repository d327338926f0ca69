package httpadapter_test

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/lake-raster-engine/internal/adapter/httpadapter"
	"github.com/couchcryptid/lake-raster-engine/internal/domain"
	"github.com/couchcryptid/lake-raster-engine/internal/pipeline"
)

// --- mocks ---

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

// fakeAnalyzer records the last call and returns err when set.
type fakeAnalyzer struct {
	err       error
	dataset   string
	occ       pipeline.OccurrenceQuery
	avg       pipeline.AverageQuery
	samples   pipeline.SampleQuery
	indices   []string
	reference pipeline.ReferenceQuery
	date      string
}

func (f *fakeAnalyzer) Dates(_ context.Context, dataset string) ([]pipeline.DatedFile, error) {
	f.dataset = dataset
	if f.err != nil {
		return nil, f.err
	}
	return []pipeline.DatedFile{{Date: time.Date(2023, 1, 10, 0, 0, 0, 0, time.UTC), DayOfYear: 10, File: "a_2023-01-10.tif"}}, nil
}

func (f *fakeAnalyzer) Occurrence(_ context.Context, dataset string, q pipeline.OccurrenceQuery) (*pipeline.OccurrenceResult, error) {
	f.dataset, f.occ = dataset, q
	if f.err != nil {
		return nil, f.err
	}
	return &pipeline.OccurrenceResult{
		Dataset: dataset,
		Range:   q.Range,
		Grids: domain.OccurrenceGrids{
			DaysInRange:         domain.NewGridFilled(1, 1, 2),
			MeanDayOfOccurrence: domain.NewGridFilled(1, 1, 200),
			DayOfMaximum:        domain.NewGridFilled(1, 1, 300),
			FramesUsed:          3,
		},
		Report: domain.NewRunReport(dataset),
	}, nil
}

func (f *fakeAnalyzer) Average(_ context.Context, dataset string, q pipeline.AverageQuery) (*pipeline.AverageResult, error) {
	f.dataset, f.avg = dataset, q
	if f.err != nil {
		return nil, f.err
	}
	return &pipeline.AverageResult{Dataset: dataset, Mode: q.Mode, Average: domain.NewGridFilled(1, 1, 125)}, nil
}

func (f *fakeAnalyzer) Samples(_ context.Context, dataset string, q pipeline.SampleQuery) (*pipeline.SampleReport, error) {
	f.dataset, f.samples = dataset, q
	if f.err != nil {
		return nil, f.err
	}
	return &pipeline.SampleReport{Dataset: dataset, Report: domain.NewRunReport(dataset)}, nil
}

func (f *fakeAnalyzer) SamplesByIndex(_ context.Context, waterbody string, indices []string, q pipeline.SampleQuery) ([]pipeline.IndexSamples, error) {
	f.dataset, f.indices, f.samples = waterbody, indices, q
	if f.err != nil {
		return nil, f.err
	}
	out := make([]pipeline.IndexSamples, len(indices))
	for i, idx := range indices {
		out[i] = pipeline.IndexSamples{Index: idx, Error: "dataset folder not found"}
	}
	return out, nil
}

func (f *fakeAnalyzer) Enhance(_ context.Context, dataset, date string) (*domain.EnhancedFrame, error) {
	f.dataset, f.date = dataset, date
	if f.err != nil {
		return nil, f.err
	}
	return &domain.EnhancedFrame{Date: date, Image: image.NewRGBA(image.Rect(0, 0, 4, 3)), Anomalies: 5}, nil
}

func (f *fakeAnalyzer) Reference(_ context.Context, dataset string, q pipeline.ReferenceQuery) (*pipeline.ReferenceView, error) {
	f.dataset, f.reference = dataset, q
	if f.err != nil {
		return nil, f.err
	}
	return &pipeline.ReferenceView{
		Summary: pipeline.ReferenceSummary{
			Date:   "2023-04-01",
			Width:  4,
			Height: 3,
			Points: []domain.PointPixel{{Name: "Point 1", Column: 1, Row: 1, InRange: true}},
		},
		Enhanced: &domain.EnhancedFrame{Image: image.NewGray(image.Rect(0, 0, 4, 3))},
	}, nil
}

func newTestServer(readyErr error, a pipeline.Analyzer) *httpadapter.Server {
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, a, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func get(t *testing.T, srv http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthzReturns200(t *testing.T) {
	rec := get(t, newTestServer(nil, &fakeAnalyzer{}), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyz(t *testing.T) {
	assert.Equal(t, http.StatusOK, get(t, newTestServer(nil, &fakeAnalyzer{}), "/readyz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, newTestServer(fmt.Errorf("not ready yet"), &fakeAnalyzer{}), "/readyz").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(t, newTestServer(nil, &fakeAnalyzer{}), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestDates_EscapedDatasetName(t *testing.T) {
	a := &fakeAnalyzer{}
	rec := get(t, newTestServer(nil, a), "/v1/datasets/lake%2Freal/dates")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "lake/real", a.dataset)
	dates := decode(t, rec)["dates"].([]any)
	require.Len(t, dates, 1)
	assert.Equal(t, "a_2023-01-10.tif", dates[0].(map[string]any)["file"])
}

func TestOccurrence_ParsesQuery(t *testing.T) {
	a := &fakeAnalyzer{}
	rec := get(t, newTestServer(nil, a), "/v1/datasets/lake/occurrence?lower=40&upper=210&from=2023-01-01&months=1,7&months=12&years=2023")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "lake", a.dataset)
	assert.Equal(t, domain.ValueRange{Lower: 40, Upper: 210}, a.occ.Range)
	require.NotNil(t, a.occ.Filter.From)
	assert.Equal(t, "2023-01-01", a.occ.Filter.From.Format(domain.DateLayout))
	assert.Nil(t, a.occ.Filter.To)
	assert.Equal(t, []int{1, 7, 12}, a.occ.Filter.Months)
	assert.Equal(t, []int{2023}, a.occ.Filter.Years)

	grids := decode(t, rec)["grids"].(map[string]any)
	assert.InDelta(t, 3, grids["frames_used"], 0)
}

func TestAverage_OriginalNeedsNoRange(t *testing.T) {
	a := &fakeAnalyzer{}
	rec := get(t, newTestServer(nil, a), "/v1/datasets/lake/average?mode=original")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.AverageOriginal, a.avg.Mode)

	rec = get(t, newTestServer(nil, a), "/v1/datasets/lake/average")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "thresholded mode needs lower and upper")
}

func TestSamples_ParsesQuery(t *testing.T) {
	a := &fakeAnalyzer{}
	rec := get(t, newTestServer(nil, a), "/v1/datasets/lake%2Freal/samples?points=Point%201,Point%202&to=2023-12-31&factor=2.5&date=2023-04-01")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"Point 1", "Point 2"}, a.samples.Selected)
	assert.Nil(t, a.samples.From)
	require.NotNil(t, a.samples.To)
	assert.InDelta(t, 2.5, a.samples.Factor, 1e-12)
	assert.Equal(t, "2023-04-01", a.samples.ReferenceDate)
}

func TestIndexSamples(t *testing.T) {
	a := &fakeAnalyzer{}
	srv := newTestServer(nil, a)

	rec := get(t, srv, "/v1/waterbodies/lake/indices/samples?indices=real,chlorophyll")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"real", "chlorophyll"}, a.indices)
	body := decode(t, rec)
	assert.Len(t, body["indices"], 2)

	rec = get(t, srv, "/v1/waterbodies/lake/indices/samples")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnhancedPNG(t *testing.T) {
	a := &fakeAnalyzer{}
	rec := get(t, newTestServer(nil, a), "/v1/datasets/lake/frames/2023-02-01/enhanced.png")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "5", rec.Header().Get("X-Anomaly-Count"))
	assert.Equal(t, "2023-02-01", a.date)
	img, err := png.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 3), img.Bounds())
}

func TestReferencePNG(t *testing.T) {
	a := &fakeAnalyzer{}
	rec := get(t, newTestServer(nil, a), "/v1/datasets/lake/reference.png?points=Point%201&date=2023-04-01")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pipeline.ReferenceQuery{Selected: []string{"Point 1"}, Date: "2023-04-01"}, a.reference)
	assert.Equal(t, "2023-04-01", rec.Header().Get("X-Frame-Date"))
	img, err := png.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 6), img.Bounds(), "overlay upscales by two")
}

func TestBadParameters(t *testing.T) {
	tests := []struct {
		name   string
		target string
	}{
		{name: "missing upper", target: "/v1/datasets/lake/occurrence?lower=1"},
		{name: "non numeric lower", target: "/v1/datasets/lake/occurrence?lower=abc&upper=2"},
		{name: "inverted range", target: "/v1/datasets/lake/occurrence?lower=5&upper=1"},
		{name: "bad date", target: "/v1/datasets/lake/occurrence?lower=1&upper=2&from=01/02/2023"},
		{name: "month out of range", target: "/v1/datasets/lake/occurrence?lower=1&upper=2&months=13"},
		{name: "unknown average mode", target: "/v1/datasets/lake/average?mode=median"},
		{name: "negative factor", target: "/v1/datasets/lake/samples?factor=-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &fakeAnalyzer{}
			rec := get(t, newTestServer(nil, a), tt.target)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decode(t, rec)["error"])
			assert.Empty(t, a.dataset, "analyzer is not called")
		})
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "dataset not found", err: fmt.Errorf("list: %w", domain.ErrDatasetNotFound), want: http.StatusNotFound},
		{name: "frame not found", err: pipeline.ErrFrameNotFound, want: http.StatusNotFound},
		{name: "no frames", err: fmt.Errorf("build: %w", domain.ErrNoFrames), want: http.StatusUnprocessableEntity},
		{name: "no sampling points", err: pipeline.ErrNoSamplingPoints, want: http.StatusUnprocessableEntity},
		{name: "invalid dataset", err: pipeline.ErrInvalidDataset, want: http.StatusBadRequest},
		{name: "invalid query", err: pipeline.ErrInvalidQuery, want: http.StatusBadRequest},
		{name: "anything else", err: assert.AnError, want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(nil, &fakeAnalyzer{err: tt.err})
			for _, target := range []string{
				"/v1/datasets/lake/dates",
				"/v1/datasets/lake/samples",
				"/v1/datasets/lake/frames/2023-01-01/enhanced.png",
			} {
				rec := get(t, srv, target)
				assert.Equal(t, tt.want, rec.Code, target)
				assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
				assert.Equal(t, tt.err.Error(), decode(t, rec)["error"])
			}
		})
	}
}
