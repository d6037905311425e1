// Package notify turns lifecycle events from Kafka into stored notifications
// for the buyer.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/nazeru/escrow-fulfillment-go/pkg/contracts"
	"github.com/nazeru/escrow-fulfillment-go/pkg/logging"
	"github.com/nazeru/escrow-fulfillment-go/pkg/outbox"
)

// Reader is the subset of *kafka.Reader used here. Offsets are committed
// only after the notification is stored.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

var ErrMalformed = errors.New("malformed event")

type Consumer struct {
	Reader Reader
	DB     outbox.Execer
	Log    logging.Logger
	// Backoff between failed fetches; defaults to two seconds.
	Backoff time.Duration
}

// Decode parses an event and rejects those that cannot be stored.
func Decode(value []byte) (contracts.Event, error) {
	var evt contracts.Event
	if err := json.Unmarshal(value, &evt); err != nil {
		return contracts.Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if evt.EventID == "" || evt.Type == "" || evt.OrderID <= 0 {
		return contracts.Event{}, ErrMalformed
	}
	return evt, nil
}

// Recipient is the buyer the event concerns, if the producer recorded one.
func Recipient(evt contracts.Event) string {
	email, _ := evt.Payload["buyer_email"].(string)
	return email
}

// Save is idempotent on event id, so redelivery after a crash is harmless.
func Save(ctx context.Context, db outbox.Execer, evt contracts.Event) error {
	data, err := json.Marshal(evt.Payload)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, `INSERT INTO notifications(event_id, order_id, type, recipient, payload)
		VALUES ($1, $2, $3, $4, $5) ON CONFLICT (event_id) DO NOTHING`,
		evt.EventID, evt.OrderID, evt.Type, Recipient(evt), data)
	return err
}

// Handle stores one message. Malformed messages are logged and skipped.
func (c *Consumer) Handle(ctx context.Context, msg kafka.Message) error {
	evt, err := Decode(msg.Value)
	if err != nil {
		c.Log.Log(logging.Fields{Step: "notify", Status: "skipped", Error: err.Error()})
		return nil
	}
	if err := Save(ctx, c.DB, evt); err != nil {
		return err
	}
	c.Log.Log(logging.Fields{OrderID: evt.OrderID, EventID: evt.EventID, TxHash: evt.TxHash, Step: evt.Type, Status: "notified"})
	return nil
}

// Run consumes until ctx is done. A message that cannot be stored is retried
// in place; the reader never moves past an uncommitted failure, since a later
// commit would acknowledge it too.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := c.Backoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	for {
		msg, err := c.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.Log.Log(logging.Fields{Step: "kafka_fetch", Status: "error", Error: err.Error()})
			if !sleep(ctx, backoff) {
				return nil
			}
			continue
		}
		for {
			err := c.Handle(ctx, msg)
			if err == nil {
				break
			}
			c.Log.Log(logging.Fields{Step: "notify", Status: "retry", Message: fmt.Sprintf("offset %d", msg.Offset), Error: err.Error()})
			if !sleep(ctx, backoff) {
				return nil
			}
		}
		if err := c.Reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.Log.Log(logging.Fields{Step: "kafka_commit", Status: "error", Error: err.Error()})
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
