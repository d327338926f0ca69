package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/couchcryptid/lake-raster-engine/internal/domain"
	"github.com/couchcryptid/lake-raster-engine/internal/pipeline"
	"github.com/couchcryptid/lake-raster-engine/internal/render"
)

func (s *Server) handleDates(w http.ResponseWriter, r *http.Request) {
	dates, err := s.analyzer.Dates(r.Context(), r.PathValue("dataset"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dates": dates})
}

func (s *Server) handleOccurrence(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rng, err := valueRange(q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	filter, err := frameFilter(q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.analyzer.Occurrence(r.Context(), r.PathValue("dataset"), pipeline.OccurrenceQuery{Range: rng, Filter: filter})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAverage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode, err := domain.ParseAverageMode(q.Get("mode"))
	if err != nil {
		s.writeError(w, r, badParam("mode", "want thresholded or original"))
		return
	}
	var rng domain.ValueRange
	if mode == domain.AverageThresholded {
		if rng, err = valueRange(q); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	filter, err := frameFilter(q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.analyzer.Average(r.Context(), r.PathValue("dataset"), pipeline.AverageQuery{Range: rng, Filter: filter, Mode: mode})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func sampleQuery(r *http.Request) (pipeline.SampleQuery, error) {
	q := r.URL.Query()
	var sq pipeline.SampleQuery
	var err error
	sq.Selected = list(q, "points")
	if sq.From, err = optionalDate(q, "from"); err != nil {
		return sq, err
	}
	if sq.To, err = optionalDate(q, "to"); err != nil {
		return sq, err
	}
	if sq.Factor, err = optionalFloat(q, "factor"); err != nil {
		return sq, err
	}
	if sq.Factor < 0 {
		return sq, badParam("factor", "must be positive")
	}
	sq.ReferenceDate = q.Get("date")
	return sq, nil
}

func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request) {
	sq, err := sampleQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.analyzer.Samples(r.Context(), r.PathValue("dataset"), sq)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleIndexSamples(w http.ResponseWriter, r *http.Request) {
	indices := list(r.URL.Query(), "indices")
	if len(indices) == 0 {
		s.writeError(w, r, badParam("indices", "required"))
		return
	}
	sq, err := sampleQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.analyzer.SamplesByIndex(r.Context(), r.PathValue("waterbody"), indices, sq)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"waterbody": r.PathValue("waterbody"), "indices": res})
}

func (s *Server) handleEnhanced(w http.ResponseWriter, r *http.Request) {
	frame, err := s.analyzer.Enhance(r.Context(), r.PathValue("dataset"), r.PathValue("date"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("X-Anomaly-Count", strconv.Itoa(frame.Anomalies))
	s.writePNG(w, r, frame.Date, func(buf *bytes.Buffer) error {
		return render.EncodePNG(buf, frame.Image)
	})
}

func (s *Server) handleReference(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	view, err := s.analyzer.Reference(r.Context(), r.PathValue("dataset"), pipeline.ReferenceQuery{
		Selected: list(q, "points"),
		Date:     q.Get("date"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writePNG(w, r, view.Summary.Date, func(buf *bytes.Buffer) error {
		return render.EncodePNG(buf, render.Overlay(view.Enhanced.Image, view.Summary.Points, s.overlay))
	})
}

// writePNG encodes fully before writing so an encoding failure can still
// produce a JSON error response.
func (s *Server) writePNG(w http.ResponseWriter, r *http.Request, date string, encode func(*bytes.Buffer) error) {
	var buf bytes.Buffer
	if err := encode(&buf); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Frame-Date", date)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes()) //nolint:errcheck // client went away
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadParam),
		errors.Is(err, pipeline.ErrInvalidQuery),
		errors.Is(err, pipeline.ErrInvalidDataset),
		errors.Is(err, domain.ErrInvalidRange):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrDatasetNotFound),
		errors.Is(err, pipeline.ErrFrameNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNoFrames),
		errors.Is(err, pipeline.ErrNoSamplingPoints),
		errors.Is(err, domain.ErrInsufficientBands):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	} else {
		s.logger.Debug("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
