package interfaces

import "context"

// Notification carries the user-facing payload of a match or reschedule.
type Notification struct {
	Title   string                 `json:"title"`
	Message string                 `json:"message"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
}

// Notifier delivers notifications to the user (log line, webhook, ...).
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
