package reminder

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// Layout is the wall-clock format accepted in messages and used when rendering reminders.
const Layout = "02.01.2006 15:04"

// Reason classifies a parse failure.
type Reason string

const (
	ReasonFormatMismatch  Reason = "format mismatch"
	ReasonInvalidDateTime Reason = "invalid date/time"
	ReasonTextTooLong     Reason = "text too long"
)

// MessageLimit is the longest text, in runes, delivered as one chat message.
const MessageLimit = 4000

// MaxTextLength leaves room for the "Reminder for <when>: " prefix so a
// rendered reminder never exceeds MessageLimit.
const MaxTextLength = MessageLimit - len("Reminder for ") - len(Layout) - len(": ")

// ParseError is a user-correctable input error.
type ParseError struct {
	Reason Reason
}

func (e *ParseError) Error() string { return string(e.Reason) }

// Parsed is the validated content of a reminder message.
type Parsed struct {
	ScheduledAt time.Time
	Text        string
}

var messageRe = regexp.MustCompile(`(?s)^(\d{2}\.\d{2}\.\d{4} \d{2}:\d{2})\s+(.+)$`)

// Parse matches raw against "DD.MM.YYYY HH:MM <text>" and interprets the
// timestamp as wall-clock time in loc (time.Local when nil).
func Parse(raw string, loc *time.Location) (Parsed, error) {
	if loc == nil {
		loc = time.Local
	}
	m := messageRe.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return Parsed{}, &ParseError{Reason: ReasonFormatMismatch}
	}
	text := strings.TrimSpace(m[2])
	if text == "" {
		return Parsed{}, &ParseError{Reason: ReasonFormatMismatch}
	}
	if utf8.RuneCountInString(text) > MaxTextLength {
		return Parsed{}, &ParseError{Reason: ReasonTextTooLong}
	}
	// time.ParseInLocation rejects out-of-range days, months, hours and minutes.
	when, err := time.ParseInLocation(Layout, m[1], loc)
	if err != nil {
		return Parsed{}, &ParseError{Reason: ReasonInvalidDateTime}
	}
	return Parsed{ScheduledAt: TruncateMinute(when), Text: text}, nil
}
