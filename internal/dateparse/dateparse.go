// Package dateparse is the single place date strings from storage and
// external sources are parsed. Every call site goes through Parse so the
// accepted formats stay documented in one list.
package dateparse

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// formats is the ordered list of accepted layouts. Earlier entries win.
var formats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006", // US
	"02.01.2006", // EU
	"Mon, 02 Jan 2006 15:04:05 MST",
	"Mon, 02 Jan 2006 15:04:05 -0700",
	time.RFC1123,
	time.RFC1123Z,
}

// Parse tries every accepted layout in order and returns the first match in
// UTC. Unparseable input returns an error; it never panics and never
// substitutes the current time.
func Parse(value string) (time.Time, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return time.Time{}, fmt.Errorf("empty date string")
	}
	for _, layout := range formats {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", v)
}

// ParseLogged parses value, logging a warning on failure instead of making
// callers repeat the log line. The zero time and false are returned when the
// value cannot be parsed.
func ParseLogged(value string, log zerolog.Logger) (time.Time, bool) {
	t, err := Parse(value)
	if err != nil {
		log.Warn().Str("value", value).Msg("Unparseable date string")
		return time.Time{}, false
	}
	return t, true
}

// CivilDate truncates t to its UTC civil date (midnight UTC).
func CivilDate(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// FormatDate renders a civil date as ISO-8601 (storage format).
func FormatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// FormatTime renders an instant as RFC3339 (storage format).
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
