package ics

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "festsched/internal/log"
)

// DefaultDuration is used for program entries without DTEND.
const DefaultDuration = time.Hour

// ParsedEvent is one VEVENT of a program, before recurrence expansion.
type ParsedEvent struct {
	UID         string
	Summary     string
	Description string

	Start time.Time
	End   time.Time

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID of an overridden instance
}

// IsOverride reports whether ev replaces one instance of a recurring entry.
func (ev ParsedEvent) IsOverride() bool {
	return ev.Recurrence != nil
}

// ParseICS parses a program. Floating date-times (no TZID, no Z) are read
// as wall-clock time in zone. Broken VEVENTs are logged and skipped.
func ParseICS(body []byte, zone *time.Location) ([]ParsedEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("ics: empty body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	events := make([]ParsedEvent, 0)
	for _, ve := range cal.Events() {
		ev, err := parseVEvent(ve, zone)
		if err != nil {
			appLog.Warn("program entry skipped", "reason", err)
			continue
		}
		events = append(events, ev)
	}

	appLog.Info("program parsed", "event_count", len(events))
	return events, nil
}

func parseVEvent(ve *ical.VEvent, zone *time.Location) (ParsedEvent, error) {
	var out ParsedEvent

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uid.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, errors.New("missing DTSTART: " + out.UID)
	}
	start, err := ve.GetStartAt()
	if err != nil {
		return out, err
	}
	out.Start = anchor(start, dtStart, zone)

	if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
		end, err := ve.GetEndAt()
		if err != nil {
			return out, err
		}
		out.End = anchor(end, dtEnd, zone)
	} else {
		out.End = out.Start.Add(DefaultDuration)
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(part, zone); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if p := ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")); p != nil {
		if t, err := parseICSTime(p.Value, zone); err == nil {
			out.Recurrence = &t
		}
	}

	return out, nil
}

// anchor re-reads floating times in zone; values with TZID or a UTC
// suffix are kept as parsed.
func anchor(t time.Time, prop *ical.IANAProperty, zone *time.Location) time.Time {
	if zone == nil {
		return t
	}
	if _, ok := prop.ICalParameters["TZID"]; ok || strings.HasSuffix(prop.Value, "Z") {
		return t.In(zone)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, zone)
}

// parseICSTime handles the DATE / DATE-TIME / UTC forms used by EXDATE and
// RECURRENCE-ID.
func parseICSTime(v string, zone *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if zone == nil {
		zone = time.Local
	}
	if strings.HasSuffix(v, "Z") {
		t, err := time.Parse("20060102T150405Z", v)
		return t.In(zone), err
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, zone)
	}
	return time.ParseInLocation("20060102", v, zone)
}
