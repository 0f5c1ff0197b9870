// Package external contains clients for services outside the mailroom
// process boundary: the SES mail provider and its local stand-ins.
package external

import (
	"context"

	"mailroom/internal/types"
)

// MailTransport sends one rendered email and returns the provider message
// id on success. Implementations map provider failures to AppErrors and
// never retry internally; retry policy belongs to the caller.
type MailTransport interface {
	Send(ctx context.Context, input types.SendInput) (string, error)
}
