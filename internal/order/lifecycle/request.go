package lifecycle

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/nazeru/escrow-fulfillment-go/internal/chain"
	"github.com/nazeru/escrow-fulfillment-go/internal/order/domain"
)

// Request bodies keep raw fields so that missing, mistyped and unknown values
// are told apart in the order the checks must run.

type PlaceOrderRequest struct {
	Requests json.RawMessage `json:"requests"`
	Address  json.RawMessage `json:"address"`

	IdempotencyKey string `json:"-"`
}

type LineRequest struct {
	ID       json.RawMessage `json:"id"`
	Quantity json.RawMessage `json:"quantity"`
}

type PickUpRequest struct {
	ID      json.RawMessage `json:"id"`
	Address json.RawMessage `json:"address"`
}

// PaymentRequest serves both payment and delivery confirmation. Keys is the
// keystore bundle, usually sent as a string with relaxed quoting.
type PaymentRequest struct {
	ID         json.RawMessage `json:"id"`
	Keys       json.RawMessage `json:"keys"`
	Passphrase json.RawMessage `json:"passphrase"`
}

func absent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// positiveInt accepts a JSON integer literal greater than zero. Booleans,
// strings and numbers with a fraction or exponent are rejected.
func positiveInt(raw json.RawMessage) (int64, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, false
	}
	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	i, err := n.Int64()
	if err != nil || i <= 0 {
		return 0, false
	}
	return i, true
}

// text returns the string value of raw; ok is false for any other JSON type.
func text(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// blank covers both absence and an empty string.
func blank(raw json.RawMessage) bool {
	if absent(raw) {
		return true
	}
	s, ok := text(raw)
	return ok && s == ""
}

// address validates an optional address field; missing is the message for
// null, absent or "".
func address(raw json.RawMessage, missing string) (string, error) {
	if blank(raw) {
		return "", invalid("%s", missing)
	}
	s, ok := text(raw)
	if !ok || !chain.IsAddress(strings.TrimSpace(s)) {
		return "", invalid("Invalid address.")
	}
	return strings.TrimSpace(s), nil
}

// orderID runs the id checks that precede the status check.
func orderID(raw json.RawMessage) (domain.OrderID, error) {
	if absent(raw) {
		return 0, invalid("Missing order id.")
	}
	id, ok := positiveInt(raw)
	if !ok {
		return 0, invalid("Invalid order id.")
	}
	return domain.OrderID(id), nil
}

// lines decodes the requests array. A value that is not an array is treated
// like a missing field; an element that is not an object has no id.
func lines(raw json.RawMessage, known map[domain.ProductID]bool) ([]domain.OrderItem, error) {
	if absent(raw) {
		return nil, invalid("Field requests is missing.")
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, invalid("Field requests is missing.")
	}
	items := make([]domain.OrderItem, 0, len(elems))
	for n, elem := range elems {
		var lr LineRequest
		if err := json.Unmarshal(elem, &lr); err != nil || lr.ID == nil {
			return nil, invalid("Product id is missing for request number %d.", n)
		}
		if lr.Quantity == nil {
			return nil, invalid("Product quantity is missing for request number %d.", n)
		}
		id, ok := positiveInt(lr.ID)
		if !ok {
			return nil, invalid("Invalid product id for request number %d.", n)
		}
		qty, ok := positiveInt(lr.Quantity)
		if !ok || qty > domain.MaxQuantity {
			return nil, invalid("Invalid product quantity for request number %d.", n)
		}
		if !known[domain.ProductID(id)] {
			return nil, invalid("Invalid product for request number %d.", n)
		}
		items = append(items, domain.OrderItem{ProductID: domain.ProductID(id), Quantity: qty})
	}
	return items, nil
}

// bundle returns the key bundle text; an object is accepted as is.
func bundle(raw json.RawMessage) string {
	if s, ok := text(raw); ok {
		return s
	}
	return string(raw)
}
