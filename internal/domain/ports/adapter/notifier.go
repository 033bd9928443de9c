package adapter

import "context"

// Notifier is a fire-and-forget sink. Failures are logged by the implementation
// and reported as false, never as an error.
type Notifier interface {
	Notify(ctx context.Context, recipientEmail, subject, body string) bool
}
