// internal/sender/sender.go
package sender

import "context"

// Sender is the external mail-dispatch collaborator. Implementations must
// honor ctx so one slow send cannot hold a worker past its lease.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Message is a fully rendered email, frozen at enqueue time.
type Message struct {
	FromEmail string
	FromName  string
	ToEmail   string
	Subject   string
	HTML      string
}
