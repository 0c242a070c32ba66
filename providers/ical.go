package providers

import (
	"encoding/xml"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"synchub/integration"
)

// multistatus mirrors the CalDAV REPORT response envelope. Matching is by
// local name so both DAV: and caldav-namespace prefixes resolve.
type multistatus struct {
	XMLName   xml.Name      `xml:"multistatus"`
	Responses []davResponse `xml:"response"`
}

type davResponse struct {
	Href     string        `xml:"href"`
	Propstat []davPropstat `xml:"propstat"`
}

type davPropstat struct {
	Prop davProp `xml:"prop"`
}

type davProp struct {
	CalendarData string `xml:"calendar-data"`
}

// ParseCalDAVReport extracts and normalizes every VEVENT from a CalDAV
// REPORT multistatus body. A malformed or incomplete event is logged and
// skipped; it never aborts the batch.
func ParseCalDAVReport(body []byte, loc *time.Location) ([]integration.NormalizedEvent, error) {
	var ms multistatus
	if err := xml.Unmarshal(body, &ms); err != nil {
		return nil, fmt.Errorf("failed to parse CalDAV response: %w", err)
	}

	var events []integration.NormalizedEvent
	for _, resp := range ms.Responses {
		for _, ps := range resp.Propstat {
			data := strings.TrimSpace(ps.Prop.CalendarData)
			if data == "" {
				continue
			}
			for _, ev := range parseICalBlock(data, loc) {
				events = append(events, ev)
			}
		}
	}
	return events, nil
}

// parseICalBlock decodes one calendar-data text block. The iCalendar decoder
// requires CRLF terminators, which XML extraction tends to strip.
func parseICalBlock(data string, loc *time.Location) []integration.NormalizedEvent {
	normalized := strings.ReplaceAll(data, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\n", "\r\n")

	cal, err := ical.NewDecoder(strings.NewReader(normalized)).Decode()
	if err != nil {
		log.Printf("Warning: skipping unreadable calendar data: %v", err)
		return nil
	}

	var events []integration.NormalizedEvent
	for _, raw := range cal.Events() {
		if ev := parseVEvent(raw, loc); ev != nil {
			events = append(events, *ev)
		}
	}
	return events
}

// parseVEvent normalizes one VEVENT. Events missing UID, DTSTART or DTEND
// are voided with a warning. Cancelled and transparent events are dropped
// here because CalDAV has no server-side busy filter.
func parseVEvent(ev ical.Event, loc *time.Location) *integration.NormalizedEvent {
	uid := propValue(ev, ical.PropUID)
	startRaw := propValue(ev, ical.PropDateTimeStart)
	endRaw := propValue(ev, ical.PropDateTimeEnd)
	if uid == "" || startRaw == "" || endRaw == "" {
		log.Printf("Warning: skipping VEVENT missing UID/DTSTART/DTEND (uid=%q)", uid)
		return nil
	}

	start, err := parseICalTime(startRaw, loc)
	if err != nil {
		log.Printf("Warning: skipping VEVENT %s: %v", uid, err)
		return nil
	}
	end, err := parseICalTime(endRaw, loc)
	if err != nil {
		log.Printf("Warning: skipping VEVENT %s: %v", uid, err)
		return nil
	}

	status := propValue(ev, ical.PropStatus)
	transp := propValue(ev, ical.PropTransparency)
	if status == "CANCELLED" || transp == "TRANSPARENT" {
		return nil
	}

	summary := propValue(ev, ical.PropSummary)
	if summary == "" {
		summary = "Busy"
	}

	return &integration.NormalizedEvent{
		ExternalID:    uid,
		Summary:       summary,
		StartDateTime: start,
		EndDateTime:   end,
		Updated:       time.Now().UTC(),
		Status:        integration.StatusConfirmed,
		Transparency:  integration.TransparencyOpaque,
	}
}

func propValue(ev ical.Event, name string) string {
	prop := ev.Props.Get(name)
	if prop == nil {
		return ""
	}
	return prop.Value
}

// parseICalTime handles the three iCalendar time forms: a trailing Z is UTC,
// a bare timestamp is the organizer's configured zone, and a bare date is an
// all-day event starting at midnight UTC.
func parseICalTime(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	switch {
	case strings.HasSuffix(s, "Z"):
		t, err := time.Parse("20060102T150405Z", s)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid iCalendar UTC time %q", s)
		}
		return t, nil
	case strings.Contains(s, "T"):
		t, err := time.ParseInLocation("20060102T150405", s, loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid iCalendar local time %q", s)
		}
		return t.UTC(), nil
	default:
		t, err := time.ParseInLocation("20060102", s, time.UTC)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid iCalendar date %q", s)
		}
		return t, nil
	}
}

const icalTimeLayout = "20060102T150405Z"

// GenerateEventBody builds the iCalendar document PUT to a CalDAV server for
// a booking. Field order is stable and lines end with CRLF.
func GenerateEventBody(booking *integration.Booking, organizerName, organizerEmail, uid string) string {
	start := booking.StartTime.UTC().Format(icalTimeLayout)
	end := booking.EndTime.UTC().Format(icalTimeLayout)
	created := booking.CreatedAt.UTC().Format(icalTimeLayout)

	description := fmt.Sprintf("Invitee: %s (%s)\\nEvent Type: %s",
		booking.InviteeName, booking.InviteeEmail, booking.EventTypeName)
	if booking.MeetingLink != "" {
		description += "\\n\\nMeeting Link: " + booking.MeetingLink
	}

	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//SyncHub//EN",
		"CALSCALE:GREGORIAN",
		"METHOD:PUBLISH",
		"BEGIN:VEVENT",
		"UID:" + uid,
		"DTSTART:" + start,
		"DTEND:" + end,
		"DTSTAMP:" + created,
		"CREATED:" + created,
		"SUMMARY:" + booking.Subject(),
		"DESCRIPTION:" + description,
		fmt.Sprintf("ORGANIZER;CN=%s:mailto:%s", organizerName, organizerEmail),
		fmt.Sprintf("ATTENDEE;CN=%s;RSVP=TRUE:mailto:%s", booking.InviteeName, booking.InviteeEmail),
		"STATUS:CONFIRMED",
		"TRANSP:OPAQUE",
		"SEQUENCE:0",
	}
	if booking.LocationDetails != "" {
		lines = append(lines, "LOCATION:"+booking.LocationDetails)
	}
	lines = append(lines, "END:VEVENT", "END:VCALENDAR")

	return strings.Join(lines, "\r\n")
}
