package domain

import "time"

// User is the minimal account record the session subsystem needs; the full
// account profile lives outside this subsystem.
type User struct {
	ID        string
	Email     string
	CreatedAt time.Time
}
