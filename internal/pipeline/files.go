package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/lake-raster-engine/internal/domain"
)

// DatedFile is a raster file whose name carries a date.
type DatedFile struct {
	Date      time.Time `json:"date"`
	DayOfYear int       `json:"day_of_year"`
	File      string    `json:"file"`
}

func isRaster(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".tif" || ext == ".tiff"
}

// listRasters returns the raster file names in folder, sorted by name, without
// the mask file. A missing folder is ErrDatasetNotFound.
func listRasters(folder, maskFile string) ([]string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", folder, domain.ErrDatasetNotFound)
		}
		return nil, fmt.Errorf("list %s: %w", folder, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !isRaster(e.Name()) {
			continue
		}
		if maskFile != "" && strings.EqualFold(e.Name(), maskFile) {
			continue
		}
		names = append(names, e.Name())
	}
	slices.Sort(names)
	return names, nil
}

// ListDates returns the dated raster files of folder ascending by date.
// Files without a date are left out. Equal dates keep name order.
func ListDates(folder, maskFile string) ([]DatedFile, error) {
	names, err := listRasters(folder, maskFile)
	if err != nil {
		return nil, err
	}
	out := make([]DatedFile, 0, len(names))
	for _, n := range names {
		d, doy, err := domain.ExtractDate(n)
		if err != nil {
			continue
		}
		out = append(out, DatedFile{Date: d, DayOfYear: doy, File: n})
	}
	slices.SortStableFunc(out, func(a, b DatedFile) int { return a.Date.Compare(b.Date) })
	return out, nil
}
