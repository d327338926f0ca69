// Package boundaryxml loads water-body outlines drawn on a nominal canvas.
//
// The file holds one <point x="..." y="..."/> element per vertex directly
// under the root element. Points missing either attribute are ignored.
package boundaryxml

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/couchcryptid/lake-raster-engine/internal/domain"
)

// Loader reads the first candidate file that exists in a dataset folder.
type Loader struct {
	Candidates []string
}

// NewLoader returns a Loader trying candidates in order.
func NewLoader(candidates []string) *Loader {
	return &Loader{Candidates: candidates}
}

// LoadOutline implements pipeline.BoundarySource.
func (l *Loader) LoadOutline(folder string) ([]domain.Vertex, error) {
	for _, name := range l.Candidates {
		f, err := os.Open(filepath.Join(folder, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		vertices, err := Parse(f)
		f.Close() //nolint:errcheck // read-only
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		return vertices, nil
	}
	return nil, fmt.Errorf("no boundary file in %s: %w", folder, fs.ErrNotExist)
}

type outline struct {
	Points []struct {
		X string `xml:"x,attr"`
		Y string `xml:"y,attr"`
	} `xml:"point"`
}

// Parse decodes outline vertices in file order.
func Parse(r io.Reader) ([]domain.Vertex, error) {
	var doc outline
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, err
	}
	vertices := make([]domain.Vertex, 0, len(doc.Points))
	for _, p := range doc.Points {
		if p.X == "" || p.Y == "" {
			continue
		}
		x, err := strconv.ParseFloat(p.X, 64)
		if err != nil {
			return nil, fmt.Errorf("point x %q: %w", p.X, err)
		}
		y, err := strconv.ParseFloat(p.Y, 64)
		if err != nil {
			return nil, fmt.Errorf("point y %q: %w", p.Y, err)
		}
		vertices = append(vertices, domain.Vertex{X: x, Y: y})
	}
	if len(vertices) == 0 {
		return nil, domain.ErrNoBoundary
	}
	return vertices, nil
}
