// Package notifier is the delivery gateway for due reminders.
//
// Gateway.Send delegates to a transport.Sender (the Telegram adapter in
// production) with a shared rate limit and a per-call timeout. Every failure is
// returned as a *DeliveryError so callers can tell "delivered" from "not
// delivered" without inspecting transport-specific errors.
//
// # History
//
// The gateway keeps a small in-memory history of recent sends for the health
// endpoint.
package notifier
