// Package status derives the temporal status of festival events from their
// start/end window and the current time in a fixed reference zone.
package status

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"festsched/internal/model"
)

// DefaultOffset is the festival's reference zone offset (UTC+5).
const DefaultOffset = 5 * time.Hour

var (
	ErrMalformedTimeRange = errors.New("status: time_end is before time_start")
	ErrInvalidTime        = errors.New("status: invalid date-time")
	ErrInvalidZone        = errors.New("status: invalid timezone")
)

// DefaultZone returns the UTC+5 reference zone.
func DefaultZone() *time.Location {
	return fixedZone(int(DefaultOffset / time.Second))
}

func fixedZone(offsetSec int) *time.Location {
	sign := '+'
	abs := offsetSec
	if abs < 0 {
		sign = '-'
		abs = -abs
	}
	name := fmt.Sprintf("UTC%c%02d:%02d", sign, abs/3600, (abs%3600)/60)
	return time.FixedZone(name, offsetSec)
}

// ParseZone resolves a configured timezone. Accepted forms:
//
//   - "" (UTC+5)
//   - fixed offsets: "+05:00", "+0530", "+5", "UTC+5", "GMT-03:30"
//   - IANA names: "Asia/Yekaterinburg"
func ParseZone(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultZone(), nil
	}

	off := name
	for _, prefix := range []string{"UTC", "GMT"} {
		if strings.HasPrefix(strings.ToUpper(off), prefix) && len(off) > len(prefix) {
			off = off[len(prefix):]
			break
		}
	}
	if off[0] == '+' || off[0] == '-' {
		sec, err := parseOffset(off)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidZone, name, err)
		}
		return fixedZone(sec), nil
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidZone, name, err)
	}
	return loc, nil
}

// parseOffset parses "+5", "+05", "+05:30", "+0530" into seconds east of UTC.
func parseOffset(s string) (int, error) {
	sign := 1
	if s[0] == '-' {
		sign = -1
	}
	body := s[1:]

	var hh, mm string
	switch {
	case strings.Contains(body, ":"):
		hh, mm, _ = strings.Cut(body, ":")
	case len(body) == 4:
		hh, mm = body[:2], body[2:]
	default:
		hh, mm = body, "0"
	}

	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 14 {
		return 0, fmt.Errorf("bad hours %q", hh)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("bad minutes %q", mm)
	}
	return sign * (h*3600 + m*60), nil
}

// Normalize converts now into the reference zone. The instant is unchanged;
// only its wall-clock representation moves, so a caller running in any
// local offset compares against the same reference clock.
func Normalize(now time.Time, zone *time.Location) time.Time {
	if zone == nil {
		zone = DefaultZone()
	}
	return now.In(zone)
}

var localLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
}

// ParseLocal parses a zone-less date-time string as wall-clock time in zone.
// Strings with an explicit offset (RFC 3339) are accepted and converted into
// zone.
func ParseLocal(s string, zone *time.Location) (time.Time, error) {
	if zone == nil {
		zone = DefaultZone()
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrInvalidTime)
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, zone); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(zone), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
}

// FormatLocal renders t as a zone-less local date-time in zone, the inverse
// of ParseLocal. Seconds and fractions are only written when non-zero.
func FormatLocal(t time.Time, zone *time.Location) string {
	if zone == nil {
		zone = DefaultZone()
	}
	t = t.In(zone)
	switch {
	case t.Nanosecond() != 0:
		return t.Format("2006-01-02T15:04:05.999999999")
	case t.Second() != 0:
		return t.Format("2006-01-02T15:04:05")
	default:
		return t.Format("2006-01-02T15:04")
	}
}

// ValidateRange rejects windows that end before they start.
func ValidateRange(start, end time.Time) error {
	if end.Before(start) {
		return ErrMalformedTimeRange
	}
	return nil
}

// Derive classifies now against the window [start, end]. Both boundaries
// are inclusive.
func Derive(start, end, now time.Time) model.Status {
	switch {
	case now.Before(start):
		return model.Queued
	case now.After(end):
		return model.Finished
	default:
		return model.Active
	}
}

// Engine binds Derive to a reference zone and a clock.
type Engine struct {
	zone  *time.Location
	clock func() time.Time
}

type Option func(*Engine)

// WithClock replaces time.Now, mostly for tests.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

func NewEngine(zone *time.Location, opts ...Option) *Engine {
	if zone == nil {
		zone = DefaultZone()
	}
	e := &Engine{zone: zone, clock: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Zone() *time.Location {
	return e.zone
}

// Now returns the current instant in the reference zone.
func (e *Engine) Now() time.Time {
	return Normalize(e.clock(), e.zone)
}

// Status derives the status of [start, end] at Now.
func (e *Engine) Status(start, end time.Time) model.Status {
	return Derive(start, end, e.Now())
}

// Parse is ParseLocal in the engine's zone.
func (e *Engine) Parse(s string) (time.Time, error) {
	return ParseLocal(s, e.zone)
}

// Format is FormatLocal in the engine's zone.
func (e *Engine) Format(t time.Time) string {
	return FormatLocal(t, e.zone)
}
