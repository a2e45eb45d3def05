package model

import (
	"fmt"
	"time"
)

// Status is the time-derived state of a festival event. The zero value is
// Queued and the order Queued < Active < Finished is the only direction an
// event moves in.
type Status int

const (
	Queued Status = iota
	Active
	Finished
)

func (s Status) String() string {
	switch s {
	case Queued:
		return "queued"
	case Active:
		return "active"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Label is the display text shown on the status badge.
func (s Status) Label() string {
	switch s {
	case Queued:
		return "Ожидает"
	case Active:
		return "Идёт"
	case Finished:
		return "Завершено"
	default:
		return ""
	}
}

// Color is the badge color name used by the board and the web UI.
func (s Status) Color() string {
	switch s {
	case Active:
		return "primary"
	case Finished:
		return "secondary"
	default:
		return "default"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	if s < Queued || s > Finished {
		return nil, fmt.Errorf("model: invalid status %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	parsed, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(v string) (Status, error) {
	switch v {
	case "queued":
		return Queued, nil
	case "active":
		return Active, nil
	case "finished":
		return Finished, nil
	}
	return Queued, fmt.Errorf("model: unknown status %q", v)
}

// Event is one scheduled festival activity.
type Event struct {
	ID          int64
	Title       string
	Description string

	// TimeStart / TimeEnd are instants in the reference zone.
	TimeStart time.Time
	TimeEnd   time.Time

	// Status is derived from the window and the current time; it is never
	// set by callers.
	Status Status
}

// Candidate carries the client-supplied fields of a new event. Times are
// local date-time strings such as "2026-07-20T12:00".
type Candidate struct {
	Title       string `json:"title" yaml:"title" validate:"required"`
	Description string `json:"description" yaml:"description"`
	TimeStart   string `json:"time_start" yaml:"time_start" validate:"required"`
	TimeEnd     string `json:"time_end" yaml:"time_end" validate:"required"`
}

// Field names an editable event field.
type Field string

const (
	FieldTitle       Field = "title"
	FieldDescription Field = "description"
	FieldTimeStart   Field = "time_start"
	FieldTimeEnd     Field = "time_end"
	FieldStatus      Field = "status"
)

// IsTime reports whether edits to f move the event window.
func (f Field) IsTime() bool {
	return f == FieldTimeStart || f == FieldTimeEnd
}
