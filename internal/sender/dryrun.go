// internal/sender/dryrun.go
package sender

import (
	"context"

	"github.com/rs/zerolog"
)

// DryRunSender performs no network I/O; job state transitions still happen,
// which is what sandbox and test environments want.
type DryRunSender struct {
	Log zerolog.Logger
}

func (s *DryRunSender) Send(ctx context.Context, msg Message) error {
	s.Log.Debug().
		Str("to", msg.ToEmail).
		Str("subject", msg.Subject).
		Msg("dry-run send")
	return nil
}
