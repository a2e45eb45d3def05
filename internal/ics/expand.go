package ics

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "festsched/internal/log"
	"festsched/internal/model"
	"festsched/internal/status"
)

const defaultMaxOccurrences = 500

// Window bounds expansion, normally the festival's first and last day.
type Window struct {
	Start time.Time
	End   time.Time
	// MaxOccurrences caps each recurring entry. Zero means 500.
	MaxOccurrences int
}

// Occurrence is one concrete instance of a program entry.
type Occurrence struct {
	UID         string
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
}

// ExpandOccurrences turns parsed program entries into concrete occurrences
// inside w. RRULE entries are expanded with EXDATE applied; RECURRENCE-ID
// entries replace the matching instance. Occurrences are sorted by start.
func ExpandOccurrences(events []ParsedEvent, w Window) ([]Occurrence, error) {
	if w.End.Before(w.Start) {
		return nil, errors.New("ics: window end is before start")
	}
	if w.MaxOccurrences <= 0 {
		w.MaxOccurrences = defaultMaxOccurrences
	}

	overrides := make(map[string][]ParsedEvent)
	for _, ev := range events {
		if ev.IsOverride() {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
		}
	}

	out := make([]Occurrence, 0, len(events))
	for _, ev := range events {
		if ev.IsOverride() {
			continue
		}
		if ev.RawRRule == "" {
			if overlaps(ev.Start, ev.End, w) {
				out = append(out, occurrenceOf(pick(ev, overrides[ev.UID], ev.Start), ev.Start))
			}
			continue
		}
		out = append(out, expandRecurring(ev, overrides[ev.UID], w)...)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func expandRecurring(ev ParsedEvent, overrides []ParsedEvent, w Window) []Occurrence {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Warn("program RRULE ignored", "uid", ev.UID, "rrule", ev.RawRRule, "reason", err)
		return nil
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Occurrences starting up to dur before the window still overlap it.
	dur := ev.End.Sub(ev.Start)
	loc := ev.Start.Location()
	starts := set.Between(w.Start.Add(-dur).In(loc), w.End.In(loc), true)

	out := make([]Occurrence, 0, len(starts))
	for _, s := range starts {
		src := pick(ev, overrides, s)
		occ := occurrenceOf(src, s)
		if !src.IsOverride() {
			occ.End = s.Add(dur)
		}
		if !overlaps(occ.Start, occ.End, w) {
			continue
		}
		if len(out) == w.MaxOccurrences {
			appLog.Warn("program entry truncated", "uid", ev.UID, "cap", w.MaxOccurrences)
			break
		}
		out = append(out, occ)
	}
	return out
}

// pick returns the override whose RECURRENCE-ID equals start, or base.
func pick(base ParsedEvent, overrides []ParsedEvent, start time.Time) ParsedEvent {
	for _, ov := range overrides {
		if ov.Recurrence.Equal(start) {
			return ov
		}
	}
	return base
}

func occurrenceOf(ev ParsedEvent, start time.Time) Occurrence {
	occ := Occurrence{
		UID:         ev.UID,
		Summary:     ev.Summary,
		Description: ev.Description,
		Start:       start,
		End:         ev.End,
	}
	if ev.Recurrence != nil {
		occ.Start = ev.Start
	}
	return occ
}

func overlaps(start, end time.Time, w Window) bool {
	return !end.Before(w.Start) && !w.End.Before(start)
}

// Candidates converts occurrences into add requests in zone. Entries
// without a summary keep an empty title and are rejected by the collection.
func Candidates(occs []Occurrence, zone *time.Location) []model.Candidate {
	out := make([]model.Candidate, 0, len(occs))
	for _, occ := range occs {
		out = append(out, model.Candidate{
			Title:       occ.Summary,
			Description: occ.Description,
			TimeStart:   status.FormatLocal(occ.Start, zone),
			TimeEnd:     status.FormatLocal(occ.End, zone),
		})
	}
	return out
}
