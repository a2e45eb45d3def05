// Package schedule holds the ordered list of festival events and the admin
// operations that mutate it.
package schedule

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	appLog "festsched/internal/log"
	"festsched/internal/model"
	"festsched/internal/monitoring"
	"festsched/internal/status"
)

// Change records one status transition observed by Refresh.
type Change struct {
	ID    int64        `json:"id"`
	Title string       `json:"title"`
	From  model.Status `json:"from"`
	To    model.Status `json:"to"`
}

// Collection owns the festival events in display (insertion) order.
//
// Every mutation builds a new slice and swaps it in under mu, so readers
// only ever see complete snapshots.
type Collection struct {
	engine   *status.Engine
	validate *validator.Validate

	mu     sync.RWMutex
	events []model.Event
	lastID int64
}

func New(engine *status.Engine) *Collection {
	if engine == nil {
		engine = status.NewEngine(nil)
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return &Collection{
		engine:   engine,
		validate: v,
	}
}

func (c *Collection) Engine() *status.Engine {
	return c.engine
}

// Snapshot returns a copy of the events in display order.
func (c *Collection) Snapshot() []model.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Event, len(c.events))
	copy(out, c.events)
	return out
}

func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.events)
}

func (c *Collection) Get(id int64) (model.Event, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := indexOf(c.events, id); i >= 0 {
		return c.events[i], true
	}
	return model.Event{}, false
}

// Add validates cand, assigns a fresh id, derives the initial status and
// appends the event. On error the collection is unchanged.
func (c *Collection) Add(cand model.Candidate) (model.Event, error) {
	ev, err := c.build(cand)
	if err != nil {
		monitoring.RecordMutation("add", resultOf(err))
		return model.Event{}, err
	}

	c.mu.Lock()
	ev.ID = c.nextIDLocked()
	next := make([]model.Event, len(c.events), len(c.events)+1)
	copy(next, c.events)
	c.events = append(next, ev)
	c.publishLocked()
	c.mu.Unlock()

	monitoring.RecordMutation("add", "ok")
	appLog.Info("event added",
		"id", ev.ID,
		"title", ev.Title,
		"time_start", c.engine.Format(ev.TimeStart),
		"time_end", c.engine.Format(ev.TimeEnd),
		"status", ev.Status,
	)
	return ev, nil
}

// Seed adds every valid candidate and skips the rest. It returns the number
// of events added.
func (c *Collection) Seed(cands []model.Candidate) int {
	added := 0
	for _, cand := range cands {
		if _, err := c.Add(cand); err != nil {
			appLog.Warn("seed event skipped", "title", cand.Title, "reason", err)
			continue
		}
		added++
	}
	return added
}

func (c *Collection) build(cand model.Candidate) (model.Event, error) {
	cand.Title = strings.TrimSpace(cand.Title)
	cand.TimeStart = strings.TrimSpace(cand.TimeStart)
	cand.TimeEnd = strings.TrimSpace(cand.TimeEnd)

	if err := c.validate.Struct(cand); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			return model.Event{}, &ValidationError{Fields: fields, Reason: "required fields are empty"}
		}
		return model.Event{}, err
	}

	start, err := c.engine.Parse(cand.TimeStart)
	if err != nil {
		return model.Event{}, &ValidationError{Fields: []string{"time_start"}, Reason: err.Error()}
	}
	end, err := c.engine.Parse(cand.TimeEnd)
	if err != nil {
		return model.Event{}, &ValidationError{Fields: []string{"time_end"}, Reason: err.Error()}
	}
	if err := status.ValidateRange(start, end); err != nil {
		return model.Event{}, err
	}

	return model.Event{
		Title:       cand.Title,
		Description: cand.Description,
		TimeStart:   start,
		TimeEnd:     end,
		Status:      c.engine.Status(start, end),
	}, nil
}

// Update replaces one field of the event with the given id. Title and
// description edits keep the current status; edits of the window are
// re-validated and re-derive the status immediately.
func (c *Collection) Update(id int64, field model.Field, value string) (model.Event, error) {
	ev, err := c.update(id, field, value)
	monitoring.RecordMutation("update", resultOf(err))
	if err != nil {
		if errors.Is(err, ErrEventNotFound) {
			appLog.Warn("update for unknown event", "id", id, "field", field)
		}
		return model.Event{}, err
	}
	appLog.Info("event updated", "id", id, "field", field, "status", ev.Status)
	return ev, nil
}

func (c *Collection) update(id int64, field model.Field, value string) (model.Event, error) {
	switch field {
	case model.FieldTitle, model.FieldDescription, model.FieldTimeStart, model.FieldTimeEnd:
	case model.FieldStatus:
		return model.Event{}, ErrReadOnlyField
	default:
		return model.Event{}, fmt.Errorf("%w %q", ErrUnknownField, field)
	}

	var at time.Time
	switch field {
	case model.FieldTitle:
		value = strings.TrimSpace(value)
		if value == "" {
			return model.Event{}, &ValidationError{Fields: []string{string(field)}, Reason: "required fields are empty"}
		}
	case model.FieldTimeStart, model.FieldTimeEnd:
		t, err := c.engine.Parse(value)
		if err != nil {
			return model.Event{}, &ValidationError{Fields: []string{string(field)}, Reason: err.Error()}
		}
		at = t
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	i := indexOf(c.events, id)
	if i < 0 {
		return model.Event{}, fmt.Errorf("%w: id %d", ErrEventNotFound, id)
	}

	ev := c.events[i]
	switch field {
	case model.FieldTitle:
		ev.Title = value
	case model.FieldDescription:
		ev.Description = value
	case model.FieldTimeStart:
		ev.TimeStart = at
	case model.FieldTimeEnd:
		ev.TimeEnd = at
	}
	if field.IsTime() {
		if err := status.ValidateRange(ev.TimeStart, ev.TimeEnd); err != nil {
			return model.Event{}, err
		}
		ev.Status = c.engine.Status(ev.TimeStart, ev.TimeEnd)
	}

	next := make([]model.Event, len(c.events))
	copy(next, c.events)
	next[i] = ev
	c.events = next
	c.publishLocked()
	return ev, nil
}

// Refresh re-derives every status at the engine's current time and swaps in
// the result. It returns the transitions observed.
func (c *Collection) Refresh() []Change {
	now := c.engine.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	var changes []Change
	next := make([]model.Event, len(c.events))
	for i, ev := range c.events {
		s := status.Derive(ev.TimeStart, ev.TimeEnd, now)
		if s != ev.Status {
			changes = append(changes, Change{ID: ev.ID, Title: ev.Title, From: ev.Status, To: s})
			ev.Status = s
		}
		next[i] = ev
	}
	c.events = next
	c.publishLocked()
	return changes
}

// Counts returns how many events are in each status.
func (c *Collection) Counts() map[model.Status]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return countLocked(c.events)
}

func (c *Collection) publishLocked() {
	monitoring.SetStatusCounts(countLocked(c.events))
}

func countLocked(events []model.Event) map[model.Status]int {
	out := map[model.Status]int{model.Queued: 0, model.Active: 0, model.Finished: 0}
	for _, ev := range events {
		out[ev.Status]++
	}
	return out
}

// nextIDLocked derives ids from the clock in milliseconds and bumps past
// the previous id when the clock has not moved.
func (c *Collection) nextIDLocked() int64 {
	id := c.engine.Now().UnixMilli()
	if id <= c.lastID {
		id = c.lastID + 1
	}
	c.lastID = id
	return id
}

func indexOf(events []model.Event, id int64) int {
	for i := range events {
		if events[i].ID == id {
			return i
		}
	}
	return -1
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsValidation(err), errors.Is(err, status.ErrMalformedTimeRange):
		return "invalid"
	case errors.Is(err, ErrEventNotFound):
		return "not_found"
	default:
		return "error"
	}
}
