package domain

import (
	"regexp"
	"strconv"
	"time"
)

// DateLayout is the wire format of frame dates.
const DateLayout = "2006-01-02"

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\d{4})[_-](\d{2})[_-](\d{2})`),
	regexp.MustCompile(`(\d{4})(\d{2})(\d{2})`),
}

// ExtractDate parses the calendar date embedded in a raster file name.
// The first pattern that matches decides the outcome: an invalid date such as
// month 13 returns ErrDateNotFound without trying the fallback pattern.
func ExtractDate(name string) (time.Time, int, error) {
	for _, re := range datePatterns {
		m := re.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		t, ok := calendarDate(m[1], m[2], m[3])
		if !ok {
			return time.Time{}, 0, ErrDateNotFound
		}
		return t, t.YearDay(), nil
	}
	return time.Time{}, 0, ErrDateNotFound
}

func calendarDate(ys, ms, ds string) (time.Time, bool) {
	y, _ := strconv.Atoi(ys)
	m, _ := strconv.Atoi(ms)
	d, _ := strconv.Atoi(ds)
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes out-of-range fields, so a round trip rejects 2023-02-30.
	if t.Year() != y || int(t.Month()) != m || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}
