// Package api holds the JSON handlers mounted under /api/v1.
package api

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/quarry/internal/core"
)

// parseDate accepts RFC 3339 timestamps or plain YYYY-MM-DD dates (read as UTC midnight).
func parseDate(field, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, core.Validationf("%s is required", field)
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, core.Validationf("%s: expected RFC 3339 or YYYY-MM-DD, got %q", field, s)
	}
	return t, nil
}

func parseInterval(s string) (core.Interval, error) {
	if s == "" {
		return "", nil
	}
	return core.ParseInterval(s)
}

// queryInt reads a non-negative integer parameter, returning def when absent.
func queryInt(q url.Values, name string, def int) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, core.Validationf("%s must be a non-negative integer, got %q", name, raw)
	}
	return n, nil
}
