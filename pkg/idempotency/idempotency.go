package idempotency

import (
	"net/http"
	"strings"
)

const Header = "Idempotency-Key"

// MaxKeyLength matches the order_idempotency.idempotency_key column.
const MaxKeyLength = 128

func Key(r *http.Request) string {
	k := strings.TrimSpace(r.Header.Get(Header))
	if len(k) > MaxKeyLength {
		return ""
	}
	return k
}
