// Package domain defines the throttled single-use code model shared by
// confirmation and password-reset flows.
package domain

import "time"

// ThrottledCode is a single-use code bound to a subject (an email address, a
// phone number, or a reset-scoped user id). The subject is the primary key;
// regenerating a code for a subject overwrites the record.
type ThrottledCode struct {
	Subject           string
	Code              string
	Payload           string // free-form side-effect payload applied on consumption
	SentCount         int
	LastSendRequestAt time.Time
	CreatedAt         time.Time
}

// IsExpired reports whether the code outlived ttl, measured from CreatedAt.
// Resends do not extend a code's life.
func (c *ThrottledCode) IsExpired(ttl time.Duration, now time.Time) bool {
	return now.Sub(c.CreatedAt) > ttl
}
