package archive

import "time"

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces request IDs and artifact keys (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
