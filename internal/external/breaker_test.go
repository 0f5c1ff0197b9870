package external

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailroom/internal/types"
)

type flakyTransport struct {
	err   error
	calls int
}

func (f *flakyTransport) Send(ctx context.Context, input types.SendInput) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "msg-ok", nil
}

func TestBreakerTransport_PassesThroughSuccess(t *testing.T) {
	inner := &flakyTransport{}
	bt := NewBreakerTransport("test", inner)

	msgID, err := bt.Send(context.Background(), types.SendInput{To: "a@b.com"})
	require.NoError(t, err)
	assert.Equal(t, "msg-ok", msgID)
	assert.Equal(t, 1, inner.calls)
}

func TestBreakerTransport_PassesThroughInnerError(t *testing.T) {
	inner := &flakyTransport{err: errors.New("smtp 451")}
	bt := NewBreakerTransport("test", inner)

	_, err := bt.Send(context.Background(), types.SendInput{To: "a@b.com"})
	require.Error(t, err)
	assert.EqualError(t, err, "smtp 451")
}

func TestBreakerTransport_OpensAfterConsecutiveFailures(t *testing.T) {
	inner := &flakyTransport{err: errors.New("provider down")}
	bt := NewBreakerTransport("test", inner)

	// Trip threshold is more than 5 consecutive failures.
	for i := 0; i < 6; i++ {
		_, err := bt.Send(context.Background(), types.SendInput{To: "a@b.com"})
		require.Error(t, err)
	}
	callsWhenTripped := inner.calls

	_, err := bt.Send(context.Background(), types.SendInput{To: "a@b.com"})
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamUnavailable, appErr.Code)

	// Fast-fail: the inner transport was not called while open.
	assert.Equal(t, callsWhenTripped, inner.calls)
}
