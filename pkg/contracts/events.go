package contracts

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

type Event struct {
	EventID   string         `json:"event_id"`
	OrderID   int64          `json:"order_id"`
	TxHash    string         `json:"tx_hash,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
}

const (
	EventOrderCreated   = "order.created"
	EventOrderPickedUp  = "order.picked_up"
	EventOrderPaid      = "order.paid"
	EventOrderDelivered = "order.delivered"
)

// NewEvent stamps a fresh id and time; OrderID may be filled in later by the store
// when the order row does not exist yet.
func NewEvent(eventType string, orderID int64, txHash string, payload map[string]any) Event {
	if payload == nil {
		payload = map[string]any{}
	}
	return Event{
		EventID:   uuid.NewString(),
		OrderID:   orderID,
		TxHash:    txHash,
		CreatedAt: time.Now().UTC(),
		Type:      eventType,
		Payload:   payload,
	}
}

// Key is the Kafka partition key; events of one order stay ordered.
func (e Event) Key() string {
	return "order-" + strconv.FormatInt(e.OrderID, 10)
}
