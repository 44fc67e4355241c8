package util

import "github.com/google/uuid"

// NewID returns a random UUIDv4 string, matching what Postgres generates with
// gen_random_uuid() so ids look the same regardless of backend.
func NewID() string {
	return uuid.NewString()
}
