package external

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"mailroom/internal/types"
)

// ---------------------------------------------------------------------------
// Stub Implementations
//
// Stubs allow the application to boot in local/test mode without real
// provider credentials. They log all actions and return predictable, safe
// default values.
// ---------------------------------------------------------------------------

// StubMailTransport implements MailTransport by logging the send and
// returning a deterministic message id. Used when APP_ENV=local or
// IS_TEST_MODE is set.
type StubMailTransport struct {
	logger  *slog.Logger
	counter atomic.Int64
}

// NewStubMailTransport creates a new StubMailTransport.
func NewStubMailTransport(logger *slog.Logger) *StubMailTransport {
	return &StubMailTransport{logger: logger}
}

func (s *StubMailTransport) Send(ctx context.Context, input types.SendInput) (string, error) {
	n := s.counter.Add(1)
	s.logger.InfoContext(ctx, "stub: Send called",
		"to", input.To,
		"subject", input.Subject,
		"reference_id", input.ReferenceID,
	)
	return fmt.Sprintf("msg_stub_%d", n), nil
}

// Compile-time assertion that StubMailTransport satisfies MailTransport.
var _ MailTransport = (*StubMailTransport)(nil)
