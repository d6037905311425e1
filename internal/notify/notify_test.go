package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nazeru/escrow-fulfillment-go/pkg/contracts"
)

type execCall struct {
	sql  string
	args []any
}

type fakeDB struct {
	calls []execCall
	err   error
	// failures is how many leading calls fail with err; zero means all do.
	failures int
	// onFail runs after each failed call.
	onFail func(n int)
	failed int
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	if f.err == nil || (f.failures > 0 && f.failed >= f.failures) {
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	}
	f.failed++
	if f.onFail != nil {
		f.onFail(f.failed)
	}
	return pgconn.NewCommandTag(""), f.err
}

// queueReader hands out queued messages and cancels the run once drained.
type queueReader struct {
	msgs      []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (q *queueReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(q.msgs) == 0 {
		q.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := q.msgs[0]
	q.msgs = q.msgs[1:]
	return msg, nil
}

func (q *queueReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		q.committed = append(q.committed, m.Offset)
	}
	return nil
}

func message(t *testing.T, offset int64, evt contracts.Event) kafka.Message {
	t.Helper()
	data, err := json.Marshal(evt)
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Key: []byte(evt.Key()), Value: data}
}

func TestDecode(t *testing.T) {
	evt := contracts.NewEvent(contracts.EventOrderPickedUp, 5, "0x01", map[string]any{"buyer_email": "buyer@shop.test"})
	data, err := json.Marshal(evt)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, evt.EventID, got.EventID)
	assert.Equal(t, "buyer@shop.test", Recipient(got))

	for _, raw := range []string{`{`, `{"type":"order.paid","order_id":5}`, `{"event_id":"e1","type":"order.paid"}`} {
		_, err := Decode([]byte(raw))
		assert.ErrorIs(t, err, ErrMalformed, raw)
	}
}

func TestRecipientMissing(t *testing.T) {
	assert.Empty(t, Recipient(contracts.NewEvent(contracts.EventOrderPaid, 1, "", nil)))
	assert.Empty(t, Recipient(contracts.NewEvent(contracts.EventOrderPaid, 1, "", map[string]any{"buyer_email": 3})))
}

func TestSaveIsIdempotentInsert(t *testing.T) {
	db := &fakeDB{}
	evt := contracts.NewEvent(contracts.EventOrderDelivered, 9, "0x02", map[string]any{"buyer_email": "buyer@shop.test"})
	require.NoError(t, Save(context.Background(), db, evt))

	require.Len(t, db.calls, 1)
	assert.Contains(t, db.calls[0].sql, "ON CONFLICT (event_id) DO NOTHING")
	assert.Equal(t, []any{evt.EventID, int64(9), contracts.EventOrderDelivered, "buyer@shop.test", []byte(`{"buyer_email":"buyer@shop.test"}`)}, db.calls[0].args)
}

func TestRunCommitsAfterSave(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	good := contracts.NewEvent(contracts.EventOrderCreated, 3, "0x03", map[string]any{"buyer_email": "buyer@shop.test"})
	reader := &queueReader{
		msgs:   []kafka.Message{message(t, 10, good), {Offset: 11, Value: []byte("not json")}},
		cancel: cancel,
	}
	db := &fakeDB{}
	c := &Consumer{Reader: reader, DB: db, Backoff: time.Millisecond}

	require.NoError(t, c.Run(ctx))
	assert.Len(t, db.calls, 1)
	assert.Equal(t, []int64{10, 11}, reader.committed)
}

func TestRunRetriesFailedSaveBeforeFetchingNext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := contracts.NewEvent(contracts.EventOrderPaid, 4, "0x04", nil)
	second := contracts.NewEvent(contracts.EventOrderDelivered, 4, "0x05", nil)
	reader := &queueReader{msgs: []kafka.Message{message(t, 20, first), message(t, 21, second)}, cancel: cancel}
	db := &fakeDB{err: errors.New("db down"), failures: 2}
	c := &Consumer{Reader: reader, DB: db, Backoff: time.Millisecond}

	require.NoError(t, c.Run(ctx))
	require.Len(t, db.calls, 4)
	for _, call := range db.calls[:3] {
		assert.Equal(t, first.EventID, call.args[0])
	}
	assert.Equal(t, second.EventID, db.calls[3].args[0])
	assert.Equal(t, []int64{20, 21}, reader.committed)
}

func TestRunNeverSkipsPastFailedSave(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := contracts.NewEvent(contracts.EventOrderPaid, 4, "0x04", nil)
	second := contracts.NewEvent(contracts.EventOrderDelivered, 4, "0x05", nil)
	reader := &queueReader{msgs: []kafka.Message{message(t, 20, first), message(t, 21, second)}, cancel: cancel}
	db := &fakeDB{err: errors.New("db down"), onFail: func(n int) {
		if n == 3 {
			cancel()
		}
	}}
	c := &Consumer{Reader: reader, DB: db, Backoff: time.Millisecond}

	require.NoError(t, c.Run(ctx))
	assert.Empty(t, reader.committed)
	assert.Len(t, reader.msgs, 1, "offset 21 must not be fetched while 20 is unsaved")
	for _, call := range db.calls {
		assert.Equal(t, first.EventID, call.args[0])
	}
}
