// Package apod talks to NASA's Astronomy Picture of the Day API and defines
// how APOD queries map onto cache keys.
package apod

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	// DateLayout is the calendar date format the APOD API accepts.
	DateLayout = "2006-01-02"

	// DefaultRecentCount is used when a recent query names no count.
	DefaultRecentCount = 10

	// MaxRecentCount bounds the recent window so one request cannot pull
	// an arbitrarily long range through the shared API key.
	MaxRecentCount = 100
)

// ErrInvalidCount is returned for a recent count that is not an integer in
// [1, MaxRecentCount].
var ErrInvalidCount = errors.New("count must be an integer between 1 and " + strconv.Itoa(MaxRecentCount))

// KeyForDate is the cache key of a single-day query.
func KeyForDate(date string) string {
	return "apod:" + date
}

// KeyForRange is the cache key of a start/end range query.
func KeyForRange(start, end string) string {
	return "apod_range:" + start + ":" + end
}

// KeyForRecent is the cache key of a "last count days" query. The window is
// not part of the key, so a cached window is served until its TTL runs out
// even after the date rolls over.
func KeyForRecent(count int) string {
	return "apod_recent:" + strconv.Itoa(count)
}

// Today returns now's calendar date in UTC.
func Today(now time.Time) string {
	return now.UTC().Format(DateLayout)
}

// RecentWindow returns the inclusive date range covering count days ending
// on now's UTC date.
func RecentWindow(now time.Time, count int) (start, end string) {
	day := now.UTC()
	return day.AddDate(0, 0, -(count - 1)).Format(DateLayout), day.Format(DateLayout)
}

// ParseCount parses a recent count query value. Empty means DefaultRecentCount.
//
// Parsing is strict on purpose: "2.5" and "7days" are rejected rather than
// truncated to a leading integer, and 0 or "abc" are a client error (400)
// instead of being passed upstream and surfacing as a 502.
func ParseCount(raw string) (int, error) {
	if raw == "" {
		return DefaultRecentCount, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCount, raw)
	}
	if n < 1 || n > MaxRecentCount {
		return 0, fmt.Errorf("%w: %d", ErrInvalidCount, n)
	}
	return n, nil
}
