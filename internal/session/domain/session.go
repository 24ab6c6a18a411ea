package domain

import "time"

// Session is a durable record binding a long-lived opaque token to a user,
// the IPs it was created and last refreshed from, and device metadata.
// The token doubles as the primary key; at most MaxSessionsPerUser live rows
// exist per user (enforced at issuance, not retroactively).
type Session struct {
	Token         string
	UserID        string
	CreateIP      string
	LastRefreshIP string
	Browser       string // empty when the user agent was not recognized
	OS            string
	OSVersion     string
	LastUseAt     time.Time
	CreatedAt     time.Time
}
