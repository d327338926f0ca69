// Package kml reads sampling points from the LineString coordinates of a KML
// document.
package kml

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/couchcryptid/lake-raster-engine/internal/domain"
)

// Loader implements pipeline.PointSource over KML files.
type Loader struct {
	logger *slog.Logger
}

func NewLoader(logger *slog.Logger) *Loader { return &Loader{logger: logger} }

// LoadPoints parses the KML file at path. Malformed coordinate tuples are
// logged and dropped.
func (l *Loader) LoadPoints(path string) ([]domain.SamplingPoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck // read-only
	points, skipped, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for _, tuple := range skipped {
		l.logger.Warn("skipping malformed kml coordinate", "file", path, "coordinate", tuple)
	}
	return points, nil
}

type lineString struct {
	Coordinates string `xml:"coordinates"`
}

// vertex is a parsed tuple and its position in the LineString.
type vertex struct {
	index int
	point domain.SamplingPoint
}

// Parse returns one point per coordinate tuple of every LineString, in
// document order. A single LineString yields "Point 1".."Point N"; with
// several, names are "LS<i>_P<j>" so they stay unique. Tuples that are not
// lon,lat[,alt] are returned in skipped; they still take up their index, so
// the names of the points after them do not shift.
func Parse(r io.Reader) (points []domain.SamplingPoint, skipped []string, err error) {
	var lines [][]vertex
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "LineString" {
			continue
		}
		var ls lineString
		if err := dec.DecodeElement(&ls, &start); err != nil {
			return nil, nil, err
		}
		coords, bad := parseCoordinates(ls.Coordinates)
		lines = append(lines, coords)
		skipped = append(skipped, bad...)
	}

	for i, line := range lines {
		for _, v := range line {
			p := v.point
			if len(lines) == 1 {
				p.Name = fmt.Sprintf("Point %d", v.index+1)
			} else {
				p.Name = fmt.Sprintf("LS%d_P%d", i+1, v.index+1)
			}
			points = append(points, p)
		}
	}
	return points, skipped, nil
}

// parseCoordinates reads whitespace-separated lon,lat[,alt] tuples.
func parseCoordinates(s string) (out []vertex, bad []string) {
	for i, tuple := range strings.Fields(s) {
		p, ok := parseTuple(tuple)
		if !ok {
			bad = append(bad, tuple)
			continue
		}
		out = append(out, vertex{index: i, point: p})
	}
	return out, bad
}

func parseTuple(tuple string) (domain.SamplingPoint, bool) {
	parts := strings.Split(tuple, ",")
	if len(parts) < 2 {
		return domain.SamplingPoint{}, false
	}
	lon, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return domain.SamplingPoint{}, false
	}
	lat, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return domain.SamplingPoint{}, false
	}
	return domain.SamplingPoint{Longitude: lon, Latitude: lat}, true
}
