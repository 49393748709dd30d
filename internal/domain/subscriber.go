// internal/domain/subscriber.go
package domain

import (
	"strconv"
	"time"
)

// Subscriber is a notification recipient, keyed by chat id.
type Subscriber struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username,omitempty"`
	FirstName   string    `json:"firstName,omitempty"`
	FirstSeenAt time.Time `json:"firstSeenAt"`
}

// DisplayName prefers @username, then first name, then the raw id.
func (s Subscriber) DisplayName() string {
	switch {
	case s.Username != "":
		return "@" + s.Username
	case s.FirstName != "":
		return s.FirstName
	default:
		return strconv.FormatInt(s.ID, 10)
	}
}
