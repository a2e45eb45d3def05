package ics

import (
	"strconv"
	"time"

	ical "github.com/arran4/golang-ical"

	"festsched/internal/model"
)

// StatusProperty carries the derived status on exported VEVENTs.
const StatusProperty = ical.ComponentProperty("X-FESTSCHED-STATUS")

// Export renders events as a published VCALENDAR. UIDs are stable per
// event id so subscribers update entries in place.
func Export(events []model.Event, name string, stamp time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//festsched//schedule//RU")
	if name != "" {
		cal.SetXWRCalName(name)
	}

	for _, ev := range events {
		ve := cal.AddEvent(strconv.FormatInt(ev.ID, 10) + "@festsched")
		ve.SetDtStampTime(stamp)
		ve.SetStartAt(ev.TimeStart)
		ve.SetEndAt(ev.TimeEnd)
		ve.SetSummary(ev.Title)
		if ev.Description != "" {
			ve.SetDescription(ev.Description)
		}
		ve.SetProperty(StatusProperty, ev.Status.String())
	}

	return cal.Serialize()
}
