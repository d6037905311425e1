package outbox

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/nazeru/escrow-fulfillment-go/pkg/logging"
)

type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// Beginner is satisfied by *pgxpool.Pool and *pgx.Conn.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// relayLock is the advisory lock key held by the relay that publishes a batch.
// Every service writing to the outbox may run a relay; only the holder sends.
const relayLock int64 = 0x65736372_6f776f62 // "escrowob"

type Relay struct {
	DB        Beginner
	Publisher Publisher
	Log       logging.Logger
	BatchSize int
	Interval  time.Duration
	// OnSent is optional; used for metrics.
	OnSent func()
}

// RunOnce publishes one batch in id order and stops at the first failure so
// per-key ordering survives a broker outage. The batch runs under a
// transaction-scoped advisory lock, so concurrent relays neither publish the
// same record twice nor interleave batches; a relay that finds the lock taken
// sends nothing.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	limit := r.BatchSize
	if limit <= 0 {
		limit = 100
	}
	dbtx, err := r.DB.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = dbtx.Rollback(ctx) }()

	var leader bool
	if err := dbtx.QueryRow(ctx, `SELECT pg_try_advisory_xact_lock($1)`, relayLock).Scan(&leader); err != nil {
		return 0, err
	}
	if !leader {
		return 0, nil
	}
	recs, err := FetchPending(ctx, dbtx, limit)
	if err != nil {
		return 0, err
	}
	sent := 0
	var publishErr error
	for _, rec := range recs {
		if publishErr = r.Publisher.Publish(ctx, rec.Topic, rec.Key, rec.Payload); publishErr != nil {
			break
		}
		if err := MarkSent(ctx, dbtx, rec.ID); err != nil {
			return 0, err
		}
		sent++
		if r.OnSent != nil {
			r.OnSent()
		}
		r.Log.Log(logging.Fields{EventID: rec.EventID, Step: "outbox_relay", Status: "sent"})
	}
	// Records published before a failure stay marked.
	if err := dbtx.Commit(ctx); err != nil {
		return 0, err
	}
	return sent, publishErr
}

func (r *Relay) Run(ctx context.Context) error {
	interval := r.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.Log.Log(logging.Fields{Step: "outbox_relay", Status: "error", Error: err.Error()})
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
