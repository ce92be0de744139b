// Package scenario compiles scripted scenarios and replays their events
// against the population at their configured offsets.
package scenario

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"telesim/internal/core"
)

// ParseTime converts a timeline time value to seconds. Strings may carry an
// s, m or h suffix (any case); bare numbers and numeric strings are seconds.
func ParseTime(v any) (float64, error) {
	var secs float64
	switch t := v.(type) {
	case int:
		secs = float64(t)
	case int64:
		secs = float64(t)
	case uint64:
		secs = float64(t)
	case float64:
		secs = t
	case string:
		s, err := parseTimeString(t)
		if err != nil {
			return 0, err
		}
		secs = s
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", core.ErrInvalidTime, v)
	}

	if math.IsNaN(secs) || math.IsInf(secs, 0) || secs < 0 {
		return 0, fmt.Errorf("%w: %v", core.ErrInvalidTime, v)
	}
	return secs, nil
}

func parseTimeString(raw string) (float64, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", core.ErrInvalidTime)
	}

	scale := 1.0
	switch s[len(s)-1] {
	case 's':
		s = s[:len(s)-1]
	case 'm':
		scale = 60
		s = s[:len(s)-1]
	case 'h':
		scale = 3600
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", core.ErrInvalidTime, raw)
	}
	return n * scale, nil
}
