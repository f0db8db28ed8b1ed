package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimestampResolver reconstructs an absolute UTC instant from a record's time
// text and its context key.
type TimestampResolver interface {
	Resolve(timeText, contextKey string) (time.Time, error)
}

// DefaultPartitionLayout is DDMMYY, the sheet naming used by the workbook
// exports ("011024" = 1 October 2024).
const DefaultPartitionLayout = "020106"

var (
	errNoDateSegment = errors.New("no date segment in context")
	errBadClock      = errors.New("unrecognized wall-clock time")
)

// PartitionDateResolver combines a wall-clock time with a calendar date found
// in the context key. The date is the first run of exactly as many digits as
// the layout, bounded by non-digits, that parses with the layout.
type PartitionDateResolver struct {
	Layout string
}

// Resolve implements TimestampResolver.
func (r PartitionDateResolver) Resolve(timeText, contextKey string) (time.Time, error) {
	date, err := r.date(contextKey)
	if err != nil {
		return time.Time{}, err
	}
	hour, minute, err := parseWallClock(timeText)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, time.UTC), nil
}

func (r PartitionDateResolver) date(contextKey string) (time.Time, error) {
	layout := r.Layout
	if layout == "" {
		layout = DefaultPartitionLayout
	}
	for _, seg := range digitRuns(contextKey) {
		if len(seg) != len(layout) {
			continue
		}
		if d, err := time.Parse(layout, seg); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w %q (layout %s)", errNoDateSegment, contextKey, layout)
}

func digitRuns(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r < '0' || r > '9' })
}

// parseWallClock reads "12:04 AM", "3:15PM", "15:04", "15:04:05" or "1510".
// The 12-hour form is chosen when an AM/PM marker is present.
func parseWallClock(s string) (int, int, error) {
	s = strings.ToUpper(strings.TrimSpace(strings.ReplaceAll(s, "\u00a0", " ")))
	if s == "" {
		return 0, 0, fmt.Errorf("%w: empty", errBadClock)
	}

	if strings.HasSuffix(s, "AM") || strings.HasSuffix(s, "PM") {
		compact := strings.ReplaceAll(s, " ", "")
		for _, layout := range []string{"3:04PM", "3:04:05PM", "3PM"} {
			if t, err := time.Parse(layout, compact); err == nil {
				return t.Hour(), t.Minute(), nil
			}
		}
		return 0, 0, fmt.Errorf("%w: %q", errBadClock, s)
	}

	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Hour(), t.Minute(), nil
		}
	}
	if h, m, ok := parseHHMM(s); ok {
		return h, m, nil
	}
	return 0, 0, fmt.Errorf("%w: %q", errBadClock, s)
}

// parseHHMM reads a compact time string ("1510" → 15:10, "930" → 09:30).
func parseHHMM(hhmm string) (int, int, bool) {
	if len(hhmm) == 3 {
		hhmm = "0" + hhmm
	}
	if len(hhmm) != 4 {
		return 0, 0, false
	}
	hour, errH := strconv.Atoi(hhmm[:2])
	mins, errM := strconv.Atoi(hhmm[2:])
	if errH != nil || errM != nil || hour < 0 || hour > 23 || mins < 0 || mins > 59 {
		return 0, 0, false
	}
	return hour, mins, true
}

// AbsoluteResolver parses a full datetime carried by the record. Values
// without a zone are UTC.
type AbsoluteResolver struct{}

var absoluteLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02T15:04",
}

// Resolve implements TimestampResolver. The context key is ignored.
func (AbsoluteResolver) Resolve(timeText, _ string) (time.Time, error) {
	s := strings.TrimSpace(timeText)
	for _, layout := range absoluteLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Truncate(time.Minute), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized datetime %q", timeText)
}

// Resolvers dispatches on a source table's time mode.
type Resolvers map[TimeMode]TimestampResolver

// DefaultResolvers returns resolvers for both modes, using layout for
// partition dates.
func DefaultResolvers(layout string) Resolvers {
	return Resolvers{
		TimePartition: PartitionDateResolver{Layout: layout},
		TimeAbsolute:  AbsoluteResolver{},
	}
}

// Timestamp resolves n into an observation or returns a *TimestampError.
func (rs Resolvers) Timestamp(n Normalized) (Observation, error) {
	r, ok := rs[n.TimeMode]
	if !ok {
		return Observation{}, &TimestampError{
			Ref: n.Ref, TimeText: n.TimeText, Context: n.TimeContext,
			Err: fmt.Errorf("no resolver for time mode %q", n.TimeMode),
		}
	}
	ts, err := r.Resolve(n.TimeText, n.TimeContext)
	if err != nil {
		return Observation{}, &TimestampError{Ref: n.Ref, TimeText: n.TimeText, Context: n.TimeContext, Err: err}
	}
	return Observation{
		Ref:       n.Ref,
		Source:    n.Source,
		StationID: n.StationID,
		Timestamp: ts,
		Fields:    n.Fields,
	}, nil
}
