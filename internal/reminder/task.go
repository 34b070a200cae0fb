// Package reminder holds the task model, the message parser and the fixed
// user-facing strings. It has no dependencies on transport or storage.
package reminder

import (
	"strconv"
	"time"
)

// TaskID is assigned by the store on insert.
type TaskID string

// Destination identifies the recipient chat.
type Destination int64

func (d Destination) String() string { return strconv.FormatInt(int64(d), 10) }

// Task is a pending one-shot reminder. Deleting it from the store marks it complete.
type Task struct {
	ID          TaskID      `json:"id"`
	Destination Destination `json:"destination"`
	ScheduledAt time.Time   `json:"scheduled_at"`
	Text        string      `json:"text"`
}

// NewTask builds an unsaved task. ScheduledAt is truncated to the minute.
func NewTask(dest Destination, p Parsed) Task {
	return Task{
		Destination: dest,
		ScheduledAt: TruncateMinute(p.ScheduledAt),
		Text:        p.Text,
	}
}

// TruncateMinute drops seconds and sub-seconds, keeping the location. It works
// on the absolute instant, so times in a repeated DST hour keep their offset.
func TruncateMinute(t time.Time) time.Time {
	return t.Truncate(time.Minute)
}
