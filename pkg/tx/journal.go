package tx

import "context"

// Entry is one row of the chain transaction journal. Rows with status
// UNAVAILABLE and a hash are transactions that may still land and need
// reconciling against the order status.
type Entry struct {
	OrderID int64
	Step    StepName
	TxHash  string
	Status  TxStatus
	Detail  string
}

type Journal interface {
	Record(ctx context.Context, e Entry) error
}

// Journaled reports whether a status is worth persisting. BUILDING is only
// logged.
func Journaled(s TxStatus) bool {
	return s == TxSubmitted || s.Terminal()
}
