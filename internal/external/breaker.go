package external

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"mailroom/internal/types"
)

// BreakerTransport wraps a MailTransport with a circuit breaker so a
// provider outage sheds load quickly instead of stacking up slow failing
// sends. While the circuit is open, Send fails fast with an upstream
// unavailability error and the inner transport is never called.
type BreakerTransport struct {
	inner   MailTransport
	breaker *gobreaker.CircuitBreaker[string]
}

// NewBreakerTransport wraps the given transport. The breaker trips after 5
// consecutive failures, stays open for 30 seconds, and allows a single
// probe request while half-open.
func NewBreakerTransport(name string, inner MailTransport) *BreakerTransport {
	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})

	return &BreakerTransport{
		inner:   inner,
		breaker: cb,
	}
}

// NewBreakerTransportWithBreaker wraps the transport with a caller-provided
// breaker. Useful for testing or sharing a breaker across transports.
func NewBreakerTransportWithBreaker(inner MailTransport, cb *gobreaker.CircuitBreaker[string]) *BreakerTransport {
	return &BreakerTransport{inner: inner, breaker: cb}
}

// Send executes the inner transport through the circuit breaker.
func (t *BreakerTransport) Send(ctx context.Context, input types.SendInput) (string, error) {
	msgID, err := t.breaker.Execute(func() (string, error) {
		return t.inner.Send(ctx, input)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", types.NewAppError(
				types.ErrCodeUpstreamUnavailable,
				"mail provider circuit open",
				err,
			)
		}
		return "", err
	}
	return msgID, nil
}

// Compile-time assertion that BreakerTransport satisfies MailTransport.
var _ MailTransport = (*BreakerTransport)(nil)
