package caldav

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const eventICS = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:evt-1\r\n" +
	"SUMMARY:Team lunch\\, again\r\n" +
	"DESCRIPTION:Bring the\r\n  quarterly numbers\r\n" +
	"DTSTART:20240315T120000Z\r\n" +
	"DTEND:20240315T130000Z\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestParseEvent(t *testing.T) {
	event, err := parseEvent(eventICS, "/cal/personal/")
	if err != nil {
		t.Fatalf("parseEvent: %v", err)
	}

	if event.ID != "evt-1" {
		t.Errorf("ID = %q", event.ID)
	}
	if event.Summary != "Team lunch, again" {
		t.Errorf("Summary = %q", event.Summary)
	}
	if event.Description != "Bring the quarterly numbers" {
		t.Errorf("Description = %q (folding not undone)", event.Description)
	}
	if event.AllDay {
		t.Error("timed event flagged all-day")
	}
	if event.Start != "20240315T120000Z" {
		t.Errorf("Start = %q", event.Start)
	}
}

func TestParseEventAllDay(t *testing.T) {
	ics := strings.ReplaceAll(eventICS, "DTSTART:20240315T120000Z", "DTSTART:20240315")
	event, err := parseEvent(ics, "c")
	if err != nil {
		t.Fatalf("parseEvent: %v", err)
	}
	if !event.AllDay {
		t.Error("date-only DTSTART not flagged all-day")
	}
}

func TestParseEventMissingUID(t *testing.T) {
	ics := strings.ReplaceAll(eventICS, "UID:evt-1\r\n", "")
	if _, err := parseEvent(ics, "c"); err == nil {
		t.Error("expected error for event without UID")
	}
}

func TestParseTask(t *testing.T) {
	ics := "BEGIN:VCALENDAR\r\nBEGIN:VTODO\r\n" +
		"UID:todo-1\r\nSUMMARY:File taxes\r\nDUE:20240401\r\nSTATUS:COMPLETED\r\nPRIORITY:1\r\n" +
		"END:VTODO\r\nEND:VCALENDAR\r\n"

	task, err := parseTask(ics, "c")
	if err != nil {
		t.Fatalf("parseTask: %v", err)
	}
	if task.Summary != "File taxes" || !task.Completed || task.Priority != 1 {
		t.Errorf("task = %+v", task)
	}
}

func TestEventICSRoundTrip(t *testing.T) {
	event := &Event{
		ID:          "round-1",
		Summary:     "Escapes, everywhere; even\nnewlines",
		Description: "desc",
		Location:    "room 4",
		Start:       "20240601T090000Z",
		End:         "20240601T100000Z",
	}

	parsed, err := parseEvent(eventToICS(event), "c")
	if err != nil {
		t.Fatalf("parseEvent: %v", err)
	}
	if parsed.Summary != event.Summary || parsed.Location != event.Location {
		t.Errorf("round trip = %+v", parsed)
	}
}

func TestFetchEventsSkipsUnparseable(t *testing.T) {
	response := `<?xml version="1.0"?>
<d:multistatus xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
  <d:response>
    <d:href>/cal/evt-1.ics</d:href>
    <d:propstat><d:prop><c:calendar-data>` + xmlEscape(eventICS) + `</c:calendar-data></d:prop></d:propstat>
  </d:response>
  <d:response>
    <d:href>/cal/broken.ics</d:href>
    <d:propstat><d:prop><c:calendar-data>BEGIN:VCALENDAR
garbage
END:VCALENDAR</c:calendar-data></d:prop></d:propstat>
  </d:response>
</d:multistatus>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "REPORT" {
			t.Errorf("method = %s", r.Method)
		}
		w.WriteHeader(http.StatusMultiStatus)
		fmt.Fprint(w, response)
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/cal/", "user", "pw", false)
	events, err := client.FetchEvents(context.Background(), srv.URL+"/cal/", "20240101T000000Z", "20250101T000000Z")
	if err != nil {
		t.Fatalf("FetchEvents: %v", err)
	}
	if len(events) != 1 || events[0].ID != "evt-1" {
		t.Errorf("events = %+v, want just evt-1", events)
	}
}

func TestNormalizeColor(t *testing.T) {
	if got := normalizeColor("#FF0000FF"); got != "#FF0000" {
		t.Errorf("normalizeColor = %q", got)
	}
	if got := normalizeColor("#AABBCC"); got != "#AABBCC" {
		t.Errorf("normalizeColor = %q", got)
	}
}

func xmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}
