// Package scheduler fires once per wall-clock minute and delivers due reminders.
//
// Each tick:
//   - selects the due set from the store (exact minute, or due-or-overdue)
//   - sends every task through the gateway with bounded concurrency
//   - deletes a task only after its delivery succeeded
//
// A failed delivery leaves the task untouched. Under the exact policy it is never
// selected again; the overdue policy retries it on every following tick.
package scheduler
