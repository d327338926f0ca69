package httpadapter

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/lake-raster-engine/internal/domain"
)

var errBadParam = errors.New("bad parameter")

func badParam(name, format string, args ...any) error {
	return fmt.Errorf("%w %s: %s", errBadParam, name, fmt.Sprintf(format, args...))
}

func requiredFloat(q url.Values, name string) (float64, error) {
	s := q.Get(name)
	if s == "" {
		return 0, badParam(name, "required")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, badParam(name, "not a number")
	}
	return v, nil
}

func optionalFloat(q url.Values, name string) (float64, error) {
	if q.Get(name) == "" {
		return 0, nil
	}
	return requiredFloat(q, name)
}

func optionalDate(q url.Values, name string) (*time.Time, error) {
	s := q.Get(name)
	if s == "" {
		return nil, nil
	}
	d, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		return nil, badParam(name, "want YYYY-MM-DD")
	}
	return &d, nil
}

// list splits a comma-separated parameter, dropping empty items.
func list(q url.Values, name string) []string {
	var out []string
	for _, v := range q[name] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func intList(q url.Values, name string, lo, hi int) ([]int, error) {
	var out []int
	for _, s := range list(q, name) {
		n, err := strconv.Atoi(s)
		if err != nil || n < lo || n > hi {
			return nil, badParam(name, "%q is not an integer in [%d, %d]", s, lo, hi)
		}
		out = append(out, n)
	}
	return out, nil
}

func valueRange(q url.Values) (domain.ValueRange, error) {
	lower, err := requiredFloat(q, "lower")
	if err != nil {
		return domain.ValueRange{}, err
	}
	upper, err := requiredFloat(q, "upper")
	if err != nil {
		return domain.ValueRange{}, err
	}
	r := domain.ValueRange{Lower: lower, Upper: upper}
	if err := r.Validate(); err != nil {
		return domain.ValueRange{}, badParam("lower", "%v", err)
	}
	return r, nil
}

func frameFilter(q url.Values) (domain.FrameFilter, error) {
	var f domain.FrameFilter
	var err error
	if f.From, err = optionalDate(q, "from"); err != nil {
		return f, err
	}
	if f.To, err = optionalDate(q, "to"); err != nil {
		return f, err
	}
	if f.Months, err = intList(q, "months", 1, 12); err != nil {
		return f, err
	}
	if f.Years, err = intList(q, "years", 1, 9999); err != nil {
		return f, err
	}
	return f, nil
}
