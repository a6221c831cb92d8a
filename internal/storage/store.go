package storage

import "context"

// AuthStore backs auth-side throttling and one-shot verification marks.
// Implementations: redis.Client, memory.Client (for -dev without Redis).
type AuthStore interface {
	// CheckRateLimit counts an attempt against the key's window and reports
	// whether it is still within the allowance.
	CheckRateLimit(ctx context.Context, key string) (allowed bool, err error)
	// MarkVerified records that the verification token for the email was
	// consumed; a second consume returns false.
	MarkVerified(ctx context.Context, email string) (first bool, err error)
	Close() error
}
