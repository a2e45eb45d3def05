package ics

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appLog "festsched/internal/log"
	"festsched/internal/model"
	"festsched/internal/status"
)

const program = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//program//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:parade\r\n" +
	"DTSTAMP:20260101T000000Z\r\n" +
	"SUMMARY:Parade\r\n" +
	"DTSTART:20260720T100000\r\n" +
	"DTEND:20260720T110000\r\n" +
	"RRULE:FREQ=DAILY;COUNT=5\r\n" +
	"EXDATE:20260721T100000\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:parade\r\n" +
	"DTSTAMP:20260101T000000Z\r\n" +
	"RECURRENCE-ID:20260722T100000\r\n" +
	"SUMMARY:Parade moved\r\n" +
	"DTSTART:20260722T150000\r\n" +
	"DTEND:20260722T160000\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:quiz\r\n" +
	"DTSTAMP:20260101T000000Z\r\n" +
	"SUMMARY:Quiz\r\n" +
	"DESCRIPTION:Pop culture quiz\r\n" +
	"DTSTART:20260720T070000Z\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:warmup\r\n" +
	"DTSTAMP:20260101T000000Z\r\n" +
	"SUMMARY:Warmup\r\n" +
	"DTSTART:20260601T100000\r\n" +
	"DTEND:20260601T110000\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func festivalWindow(t *testing.T) Window {
	t.Helper()
	zone := status.DefaultZone()
	start, err := status.ParseLocal("2026-07-20T00:00", zone)
	require.NoError(t, err)
	end, err := status.ParseLocal("2026-07-22T23:59", zone)
	require.NoError(t, err)
	return Window{Start: start, End: end}
}

func TestParseICS(t *testing.T) {
	zone := status.DefaultZone()

	events, err := ParseICS([]byte(program), zone)
	require.NoError(t, err)
	require.Len(t, events, 4)

	parade := events[0]
	assert.Equal(t, "parade", parade.UID)
	assert.Equal(t, "FREQ=DAILY;COUNT=5", parade.RawRRule)
	assert.Equal(t, "2026-07-20T10:00", status.FormatLocal(parade.Start, zone))
	_, off := parade.Start.Zone()
	assert.Equal(t, 5*3600, off)
	require.Len(t, parade.ExDates, 1)

	assert.True(t, events[1].IsOverride())

	quiz := events[2]
	assert.Equal(t, "2026-07-20T12:00", status.FormatLocal(quiz.Start, zone))
	assert.Equal(t, DefaultDuration, quiz.End.Sub(quiz.Start))
	assert.Equal(t, "Pop culture quiz", quiz.Description)
}

func TestParseICS_Empty(t *testing.T) {
	_, err := ParseICS(nil, status.DefaultZone())
	assert.Error(t, err)
}

func TestExpandOccurrences(t *testing.T) {
	zone := status.DefaultZone()
	events, err := ParseICS([]byte(program), zone)
	require.NoError(t, err)

	occs, err := ExpandOccurrences(events, festivalWindow(t))
	require.NoError(t, err)

	got := make([]string, 0, len(occs))
	for _, o := range occs {
		got = append(got, o.Summary+" "+status.FormatLocal(o.Start, zone)+"/"+status.FormatLocal(o.End, zone))
	}
	assert.Equal(t, []string{
		"Parade 2026-07-20T10:00/2026-07-20T11:00",
		"Quiz 2026-07-20T12:00/2026-07-20T13:00",
		"Parade moved 2026-07-22T15:00/2026-07-22T16:00",
	}, got)
}

func TestExpandOccurrences_OverlapRuleMatchesForRecurringEntries(t *testing.T) {
	body := "BEGIN:VCALENDAR\r\n" +
		"VERSION:2.0\r\n" +
		"PRODID:-//test//program//EN\r\n" +
		"BEGIN:VEVENT\r\n" +
		"UID:a\r\n" +
		"DTSTAMP:20260101T000000Z\r\n" +
		"SUMMARY:Night shift\r\n" +
		"DTSTART:20260719T230000\r\n" +
		"DTEND:20260720T020000\r\n" +
		"END:VEVENT\r\n" +
		"BEGIN:VEVENT\r\n" +
		"UID:b\r\n" +
		"DTSTAMP:20260101T000000Z\r\n" +
		"SUMMARY:Night shift\r\n" +
		"DTSTART:20260719T230000\r\n" +
		"DTEND:20260720T020000\r\n" +
		"RRULE:FREQ=DAILY;COUNT=1\r\n" +
		"END:VEVENT\r\n" +
		"END:VCALENDAR\r\n"
	zone := status.DefaultZone()
	events, err := ParseICS([]byte(body), zone)
	require.NoError(t, err)

	occs, err := ExpandOccurrences(events, festivalWindow(t))
	require.NoError(t, err)

	require.Len(t, occs, 2)
	uids := []string{occs[0].UID, occs[1].UID}
	assert.ElementsMatch(t, []string{"a", "b"}, uids)
	for _, o := range occs {
		assert.Equal(t, "2026-07-19T23:00", status.FormatLocal(o.Start, zone))
		assert.Equal(t, "2026-07-20T02:00", status.FormatLocal(o.End, zone))
	}
}

func TestExpandOccurrences_Cap(t *testing.T) {
	zone := status.DefaultZone()
	events, err := ParseICS([]byte(program), zone)
	require.NoError(t, err)

	w := festivalWindow(t)
	w.MaxOccurrences = 1
	occs, err := ExpandOccurrences(events, w)
	require.NoError(t, err)

	parades := 0
	for _, o := range occs {
		if o.UID == "parade" {
			parades++
		}
	}
	assert.Equal(t, 1, parades)
}

func TestExpandOccurrences_BadWindow(t *testing.T) {
	w := festivalWindow(t)
	w.Start, w.End = w.End, w.Start

	_, err := ExpandOccurrences(nil, w)
	assert.Error(t, err)
}

func TestCandidates(t *testing.T) {
	zone := status.DefaultZone()
	start, _ := status.ParseLocal("2026-07-20T12:00", zone)
	occs := []Occurrence{{UID: "q", Summary: "Quiz", Start: start, End: start.Add(time.Hour)}}

	cands := Candidates(occs, zone)

	assert.Equal(t, []model.Candidate{{Title: "Quiz", TimeStart: "2026-07-20T12:00", TimeEnd: "2026-07-20T13:00"}}, cands)

	withSeconds := []Occurrence{{UID: "s", Summary: "Gong", Start: start.Add(30 * time.Second), End: start.Add(time.Minute + 15*time.Second)}}
	cands = Candidates(withSeconds, zone)
	assert.Equal(t, "2026-07-20T12:00:30", cands[0].TimeStart)
	assert.Equal(t, "2026-07-20T12:01:15", cands[0].TimeEnd)
}

func TestExport_RoundTrip(t *testing.T) {
	zone := status.DefaultZone()
	start, _ := status.ParseLocal("2026-07-20T12:00", zone)
	events := []model.Event{
		{ID: 1, Title: "Quiz", Description: "Questions", TimeStart: start, TimeEnd: start.Add(time.Hour), Status: model.Active},
		{ID: 2, Title: "Parade", TimeStart: start.Add(2 * time.Hour), TimeEnd: start.Add(3 * time.Hour)},
	}

	out := Export(events, "Festival", start)

	assert.Contains(t, out, "METHOD:PUBLISH")
	assert.Contains(t, out, "X-FESTSCHED-STATUS:active")
	assert.Contains(t, out, "X-FESTSCHED-STATUS:queued")

	parsed, err := ParseICS([]byte(out), zone)
	require.NoError(t, err)
	require.Len(t, parsed, 2)
	assert.Equal(t, "1@festsched", parsed[0].UID)
	assert.Equal(t, "Quiz", parsed[0].Summary)
	assert.True(t, parsed[0].Start.Equal(start))
	assert.True(t, parsed[1].End.Equal(start.Add(3*time.Hour)))
}

func TestFetcher_LocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "program.ics")
	require.NoError(t, os.WriteFile(path, []byte(program), 0o600))

	res, err := NewFetcher(t.TempDir()).Fetch(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, program, string(res.Body))
	assert.False(t, res.FromCache)

	_, err = NewFetcher(t.TempDir()).Fetch(context.Background(), filepath.Join(t.TempDir(), "missing.ics"))
	assert.Error(t, err)
}

func TestFetcher_RemoteConditionalGet(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(program))
	}))

	f := NewFetcher(t.TempDir())
	ctx := context.Background()
	url := srv.URL + "/program.ics?token=secret"

	first, err := f.Fetch(ctx, url)
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := f.Fetch(ctx, url)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Body, second.Body)
	assert.Equal(t, int32(2), hits.Load())

	srv.Close()
	third, err := f.Fetch(ctx, url)
	require.NoError(t, err)
	assert.True(t, third.FromCache)
}

func TestImportProgram(t *testing.T) {
	path := filepath.Join(t.TempDir(), "program.ics")
	require.NoError(t, os.WriteFile(path, []byte(program), 0o600))

	cands, err := ImportProgram(context.Background(), NewFetcher(t.TempDir()), path, festivalWindow(t), status.DefaultZone())
	require.NoError(t, err)
	require.Len(t, cands, 3)
	assert.Equal(t, "Quiz", cands[1].Title)
	assert.Equal(t, "2026-07-20T12:00", cands[1].TimeStart)
}

func TestImportProgram_LeavesSummaryLogToCaller(t *testing.T) {
	var buf bytes.Buffer
	appLog.SetOutput(&buf)
	appLog.SetLevel(appLog.LevelInfo)
	t.Cleanup(func() { appLog.SetOutput(os.Stderr) })

	path := filepath.Join(t.TempDir(), "program.ics")
	require.NoError(t, os.WriteFile(path, []byte(program), 0o600))

	_, err := ImportProgram(context.Background(), NewFetcher(t.TempDir()), path, festivalWindow(t), status.DefaultZone())
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "program imported")
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://example.com/...(redacted)", redactURL("https://example.com/private/feed.ics?token=abc"))
	assert.True(t, strings.HasPrefix(redactURL("not a url"), "ics://"))
}
