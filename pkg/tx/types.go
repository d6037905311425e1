package tx

// StepName identifies which escrow operation a chain transaction performs.
type StepName string

const (
	StepDeployEscrow    StepName = "deploy_escrow"
	StepCourierPickUp   StepName = "courier_pick_up"
	StepCustomerPay     StepName = "customer_pay"
	StepConfirmDelivery StepName = "confirm_delivery"
)

// TxStatus is the outcome of one pass through the orchestration protocol.
type TxStatus string

const (
	TxBuilding    TxStatus = "BUILDING"
	TxSubmitted   TxStatus = "SUBMITTED"
	TxConfirmed   TxStatus = "CONFIRMED"
	TxRejected    TxStatus = "REJECTED"
	TxUnavailable TxStatus = "UNAVAILABLE"
	// TxRefused: the node answered with an error that is not a revert,
	// e.g. insufficient funds or a nonce clash.
	TxRefused TxStatus = "REFUSED"
)

func (s TxStatus) Terminal() bool {
	switch s {
	case TxConfirmed, TxRejected, TxUnavailable, TxRefused:
		return true
	}
	return false
}
