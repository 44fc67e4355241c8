// Package ratelimit provides fixed-window request limiters for public write endpoints.
package ratelimit

import "context"

type Limiter interface {
	// Allow records one hit for key and reports whether it is within the window budget.
	Allow(ctx context.Context, key string) (bool, error)
}

// Unlimited admits every request.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string) (bool, error) { return true, nil }
