package domain

import "errors"

var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrStatusConflict is returned by a status update whose expected prior
	// status no longer matches the stored one.
	ErrStatusConflict = errors.New("order status changed concurrently")
	// ErrIdempotencyRace means another request committed the same
	// idempotency key first.
	ErrIdempotencyRace = errors.New("idempotency race")
)
