// Package levels loads the water-level series of a water body from a
// spreadsheet or CSV file.
//
// The first column holds the date and the second the height. The first row is
// a header. Rows whose date or height cannot be parsed are dropped.
package levels

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/couchcryptid/lake-raster-engine/internal/domain"
)

var dateLayouts = []string{
	domain.DateLayout,
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01-02-06",
	"1/2/2006",
	"1/2/06",
	"2006/01/02",
	"02.01.2006",
}

// Loader reads the first candidate file present in a folder.
type Loader struct {
	candidates []string
	logger     *slog.Logger
}

func NewLoader(candidates []string, logger *slog.Logger) *Loader {
	return &Loader{candidates: candidates, logger: logger}
}

// LoadLevels implements pipeline.LevelSource. The result is sorted by date.
func (l *Loader) LoadLevels(folder string) ([]domain.LevelObservation, error) {
	for _, name := range l.candidates {
		path := filepath.Join(folder, name)
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		rows, err := readRows(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		obs, dropped := parseRows(rows)
		if dropped > 0 {
			l.logger.Debug("dropped level rows", "file", name, "count", dropped)
		}
		return obs, nil
	}
	return nil, fmt.Errorf("no level file in %s: %w", folder, fs.ErrNotExist)
}

func readRows(path string) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return readWorkbook(path)
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close() //nolint:errcheck // read-only
		return readCSV(f)
	}
}

// readWorkbook returns the raw cell values of the first sheet, so date cells
// come back as Excel serial numbers.
func readWorkbook(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck // read-only
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	return f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return cr.ReadAll()
}

func parseRows(rows [][]string) ([]domain.LevelObservation, int) {
	if len(rows) > 0 {
		rows = rows[1:]
	}
	out := make([]domain.LevelObservation, 0, len(rows))
	dropped := 0
	for _, row := range rows {
		if len(row) < 2 {
			dropped++
			continue
		}
		d, ok := parseDate(row[0])
		if !ok {
			dropped++
			continue
		}
		h, err := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
		if err != nil {
			dropped++
			continue
		}
		out = append(out, domain.LevelObservation{Date: d, Height: h})
	}
	slices.SortStableFunc(out, func(a, b domain.LevelObservation) int { return a.Date.Compare(b.Date) })
	return out, dropped
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, false
		}
		return day(t), true
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return day(t), true
		}
	}
	return time.Time{}, false
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
