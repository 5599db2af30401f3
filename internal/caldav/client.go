// Package caldav implements a CalDAV (RFC 4791) client for events and
// tasks over authenticated HTTPS with PROPFIND/REPORT/PUT/DELETE.
package caldav

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/zitrone/mailengine/internal/codec"
	"github.com/zitrone/mailengine/internal/logging"
)

// Calendar is a calendar collection discovered under the DAV home
type Calendar struct {
	ID    string `json:"id"` // href path
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// Event is a VEVENT
type Event struct {
	ID          string `json:"id"` // UID
	CalendarID  string `json:"calendarId"`
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
	Start       string `json:"start"` // iCalendar date or date-time form
	End         string `json:"end,omitempty"`
	AllDay      bool   `json:"allDay"`
	Status      string `json:"status,omitempty"`
}

// Task is a VTODO
type Task struct {
	ID          string `json:"id"`
	CalendarID  string `json:"calendarId"`
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	Due         string `json:"due,omitempty"`
	Completed   bool   `json:"completed"`
	Priority    int    `json:"priority,omitempty"`
}

// Client talks to one CalDAV collection root
type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
	log      zerolog.Logger
}

// DiscoverURL returns the conventional SOGo-style calendar home when no
// richer discovery is configured.
func DiscoverURL(host, username string) string {
	return fmt.Sprintf("https://%s/SOGo/dav/%s/Calendar/", host, url.PathEscape(username))
}

// NewClient creates a CalDAV client. Self-signed certificates are
// accepted per user-level policy.
func NewClient(baseURL, username, password string, allowSelfSigned bool) *Client {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Client{
		baseURL:  baseURL,
		username: username,
		password: password,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: allowSelfSigned},
			},
		},
		log: logging.WithComponent("caldav"),
	}
}

func (c *Client) request(ctx context.Context, method, target, contentType, depth string, body string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.SetBasicAuth(c.username, c.password)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if depth != "" {
		req.Header.Set("Depth", depth)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", method, err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return nil, fmt.Errorf("authentication failed: %s", resp.Status)
	}
	return resp, nil
}

// TestConnection probes the collection root with PROPFIND
func (c *Client) TestConnection(ctx context.Context) error {
	resp, err := c.request(ctx, "PROPFIND", c.baseURL, "application/xml", "0", propfindBody)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("CalDAV server returned %s", resp.Status)
	}
	return nil
}

const propfindBody = `<?xml version="1.0" encoding="utf-8"?>
<d:propfind xmlns:d="DAV:" xmlns:cs="http://calendarserver.org/ns/" xmlns:ical="http://apple.com/ns/ical/">
  <d:prop>
    <d:displayname/>
    <d:resourcetype/>
    <ical:calendar-color/>
  </d:prop>
</d:propfind>`

// multistatus is the subset of the DAV response we consume
type multistatus struct {
	Responses []davResponse `xml:"response"`
}

type davResponse struct {
	Href      string `xml:"href"`
	Propstats []struct {
		Prop struct {
			DisplayName   string `xml:"displayname"`
			CalendarColor string `xml:"calendar-color"`
			CalendarData  string `xml:"calendar-data"`
			ResourceType  struct {
				Calendar *struct{} `xml:"calendar"`
			} `xml:"resourcetype"`
		} `xml:"prop"`
	} `xml:"propstat"`
}

func parseMultistatus(body []byte) (*multistatus, error) {
	var ms multistatus
	if err := xml.Unmarshal(body, &ms); err != nil {
		return nil, fmt.Errorf("failed to parse DAV response: %w", err)
	}
	return &ms, nil
}

// FetchCalendars lists calendar collections under the base URL
func (c *Client) FetchCalendars(ctx context.Context) ([]*Calendar, error) {
	resp, err := c.request(ctx, "PROPFIND", c.baseURL, "application/xml", "1", propfindBody)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("PROPFIND failed with %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read PROPFIND response: %w", err)
	}
	ms, err := parseMultistatus(body)
	if err != nil {
		return nil, err
	}

	var calendars []*Calendar
	for _, r := range ms.Responses {
		for _, ps := range r.Propstats {
			if ps.Prop.ResourceType.Calendar == nil {
				continue
			}
			cal := &Calendar{
				ID:    r.Href,
				Name:  ps.Prop.DisplayName,
				Color: normalizeColor(ps.Prop.CalendarColor),
			}
			if cal.Name == "" {
				cal.Name = strings.Trim(cal.ID, "/")
			}
			calendars = append(calendars, cal)
			break
		}
	}

	c.log.Debug().Int("count", len(calendars)).Msg("Fetched calendars")
	return calendars, nil
}

// normalizeColor trims SOGo's #RRGGBBAA form to #RRGGBB
func normalizeColor(color string) string {
	if len(color) == 9 && color[0] == '#' {
		return color[:7]
	}
	return color
}

func (c *Client) calendarURL(calendarID string) string {
	if strings.HasPrefix(calendarID, "http://") || strings.HasPrefix(calendarID, "https://") {
		return calendarID
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + strings.TrimPrefix(calendarID, "/")
	}
	ref, err := url.Parse(calendarID)
	if err != nil {
		return c.baseURL + strings.TrimPrefix(calendarID, "/")
	}
	return base.ResolveReference(ref).String()
}

const calendarQueryTemplate = `<?xml version="1.0" encoding="utf-8"?>
<c:calendar-query xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
  <d:prop>
    <d:getetag/>
    <c:calendar-data/>
  </d:prop>
  <c:filter>
    <c:comp-filter name="VCALENDAR">
      <c:comp-filter name="%s">%s</c:comp-filter>
    </c:comp-filter>
  </c:filter>
</c:calendar-query>`

// report runs a calendar-query REPORT and returns the calendar-data
// payloads.
func (c *Client) report(ctx context.Context, calendarID, component, rangeFilter string) ([]string, error) {
	body := fmt.Sprintf(calendarQueryTemplate, component, rangeFilter)

	resp, err := c.request(ctx, "REPORT", c.calendarURL(calendarID), "application/xml", "1", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("REPORT failed with %s", resp.Status)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read REPORT response: %w", err)
	}
	ms, err := parseMultistatus(raw)
	if err != nil {
		return nil, err
	}

	var payloads []string
	for _, r := range ms.Responses {
		for _, ps := range r.Propstats {
			if ps.Prop.CalendarData != "" {
				payloads = append(payloads, ps.Prop.CalendarData)
			}
		}
	}
	return payloads, nil
}

// FetchEvents lists VEVENTs in a time range. start and end are
// iCalendar UTC date-times (YYYYMMDDTHHMMSSZ). Items that fail to
// parse are skipped; the rest are returned.
func (c *Client) FetchEvents(ctx context.Context, calendarID, start, end string) ([]*Event, error) {
	rangeFilter := ""
	if start != "" && end != "" {
		rangeFilter = fmt.Sprintf(`<c:time-range start="%s" end="%s"/>`, start, end)
	}

	payloads, err := c.report(ctx, calendarID, "VEVENT", rangeFilter)
	if err != nil {
		return nil, err
	}

	var events []*Event
	for _, data := range payloads {
		event, err := parseEvent(data, calendarID)
		if err != nil {
			c.log.Warn().Err(err).Msg("Skipping unparseable event")
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

// FetchTasks lists VTODOs in a calendar
func (c *Client) FetchTasks(ctx context.Context, calendarID string) ([]*Task, error) {
	payloads, err := c.report(ctx, calendarID, "VTODO", "")
	if err != nil {
		return nil, err
	}

	var tasks []*Task
	for _, data := range payloads {
		task, err := parseTask(data, calendarID)
		if err != nil {
			c.log.Warn().Err(err).Msg("Skipping unparseable task")
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// CreateEvent PUTs a new event resource and returns its UID
func (c *Client) CreateEvent(ctx context.Context, calendarID string, event *Event) (string, error) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	return event.ID, c.putEvent(ctx, calendarID, event, "*") // If-None-Match: create only
}

// UpdateEvent PUTs an existing event resource
func (c *Client) UpdateEvent(ctx context.Context, calendarID string, event *Event) error {
	if event.ID == "" {
		return fmt.Errorf("event has no id")
	}
	return c.putEvent(ctx, calendarID, event, "")
}

func (c *Client) putEvent(ctx context.Context, calendarID string, event *Event, ifNoneMatch string) error {
	target := c.calendarURL(calendarID) + event.ID + ".ics"

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader([]byte(eventToICS(event))))
	if err != nil {
		return fmt.Errorf("failed to build PUT request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Content-Type", "text/calendar; charset=utf-8")
	if ifNoneMatch != "" {
		req.Header.Set("If-None-Match", ifNoneMatch)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("PUT request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("PUT failed with %s", resp.Status)
	}
	return nil
}

// DeleteEvent removes an event resource
func (c *Client) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	target := c.calendarURL(calendarID) + eventID + ".ics"

	resp, err := c.request(ctx, http.MethodDelete, target, "", "", "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("DELETE failed with %s", resp.Status)
	}
	return nil
}

// parseEvent extracts the first VEVENT from raw iCalendar data
func parseEvent(ics, calendarID string) (*Event, error) {
	props, ok := componentProps(ics, "VEVENT")
	if !ok {
		return nil, fmt.Errorf("no VEVENT component")
	}

	event := &Event{CalendarID: calendarID}
	for _, cl := range props {
		switch cl.Name {
		case "UID":
			event.ID = cl.Value
		case "SUMMARY":
			event.Summary = cl.Value
		case "DESCRIPTION":
			event.Description = cl.Value
		case "LOCATION":
			event.Location = cl.Value
		case "STATUS":
			event.Status = cl.Value
		case "DTSTART":
			event.Start = cl.Value
			if _, dateOnly, err := codec.ParseDate(cl.Value); err == nil {
				event.AllDay = dateOnly
			}
		case "DTEND":
			event.End = cl.Value
		}
	}

	if event.ID == "" {
		return nil, fmt.Errorf("event has no UID")
	}
	return event, nil
}

// parseTask extracts the first VTODO from raw iCalendar data
func parseTask(ics, calendarID string) (*Task, error) {
	props, ok := componentProps(ics, "VTODO")
	if !ok {
		return nil, fmt.Errorf("no VTODO component")
	}

	task := &Task{CalendarID: calendarID}
	for _, cl := range props {
		switch cl.Name {
		case "UID":
			task.ID = cl.Value
		case "SUMMARY":
			task.Summary = cl.Value
		case "DESCRIPTION":
			task.Description = cl.Value
		case "DUE":
			task.Due = cl.Value
		case "STATUS":
			task.Completed = cl.Value == "COMPLETED"
		case "PRIORITY":
			fmt.Sscanf(cl.Value, "%d", &task.Priority)
		}
	}

	if task.ID == "" {
		return nil, fmt.Errorf("task has no UID")
	}
	return task, nil
}

// componentProps unfolds the data and returns the content lines between
// BEGIN:<name> and END:<name>.
func componentProps(ics, name string) ([]codec.ContentLine, bool) {
	var props []codec.ContentLine
	inside := false

	for _, line := range strings.Split(codec.Unfold(ics), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "BEGIN:"+name {
			inside = true
			continue
		}
		if line == "END:"+name {
			return props, true
		}
		if !inside {
			continue
		}
		if cl, ok := codec.ParseContentLine(line); ok {
			props = append(props, cl)
		}
	}
	return nil, false
}

// eventToICS serializes an event through the line-folding codec
func eventToICS(event *Event) string {
	var b strings.Builder

	b.WriteString("BEGIN:VCALENDAR\r\n")
	b.WriteString("VERSION:2.0\r\n")
	b.WriteString("PRODID:-//mailengine//EN\r\n")
	b.WriteString("BEGIN:VEVENT\r\n")
	b.WriteString(codec.FormatContentLine("UID", nil, event.ID))
	b.WriteString(codec.FormatContentLine("DTSTAMP", nil, codec.FormatDate(time.Now(), false)))

	if event.AllDay {
		b.WriteString("DTSTART;VALUE=DATE:" + event.Start + "\r\n")
		if event.End != "" {
			b.WriteString("DTEND;VALUE=DATE:" + event.End + "\r\n")
		}
	} else {
		b.WriteString("DTSTART:" + event.Start + "\r\n")
		if event.End != "" {
			b.WriteString("DTEND:" + event.End + "\r\n")
		}
	}

	b.WriteString(codec.FormatContentLine("SUMMARY", nil, event.Summary))
	if event.Description != "" {
		b.WriteString(codec.FormatContentLine("DESCRIPTION", nil, event.Description))
	}
	if event.Location != "" {
		b.WriteString(codec.FormatContentLine("LOCATION", nil, event.Location))
	}
	if event.Status != "" {
		b.WriteString(codec.FormatContentLine("STATUS", nil, event.Status))
	}

	b.WriteString("END:VEVENT\r\n")
	b.WriteString("END:VCALENDAR\r\n")
	return b.String()
}
