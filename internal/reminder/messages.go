package reminder

import (
	"errors"
	"fmt"
)

// User-facing strings. Changing any of them is a visible behavior change.
const (
	WelcomeText      = "Hello! Send me a message in the format:\n01.01.2022 20:00 Do homework\nand I will remind you at the specified time!"
	ConfirmationText = "Reminder saved successfully!"
	FormatHint       = "Please use the format: DD.MM.YYYY HH:MM <reminder text>"
	BusyText         = "busy, try again"
)

// Render formats the delivered reminder: "Reminder for 01.01.2022 20:00: text".
func Render(t Task) string {
	return fmt.Sprintf("Reminder for %s: %s", t.ScheduledAt.Format(Layout), t.Text)
}

// ErrorText returns the reply sent to a chat when a message was rejected.
func ErrorText(err error) string {
	return "Error: " + reasonOf(err) + "\n" + FormatHint
}

// ShortErrorText is the single-line form returned by the HTTP trigger.
func ShortErrorText(err error) string {
	return "Error: " + reasonOf(err)
}

func reasonOf(err error) string {
	var pe *ParseError
	if errors.As(err, &pe) {
		return string(pe.Reason)
	}
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
