// internal/notify/errors.go
package notify

import (
	"errors"
	"time"
)

var (
	// ErrRecipientUnreachable marks a delivery failure that will not go away
	// on retry, e.g. the chat was deleted or the bot was blocked. Deliverers
	// wrap it; the dispatcher deregisters the recipient.
	ErrRecipientUnreachable = errors.New("recipient unreachable")

	ErrNoRecipients        = errors.New("no recipients registered")
	ErrAllDeliveriesFailed = errors.New("all deliveries failed")
)

// RateLimited is implemented by delivery errors that carry a server-imposed
// pause (Telegram's retry_after).
type RateLimited interface {
	RetryDelay() time.Duration
}
