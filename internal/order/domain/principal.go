package domain

type Role string

const (
	RoleCustomer Role = "customer"
	RoleCourier  Role = "courier"
)

// Principal is the authenticated caller. Email is the buyer identity stored
// on orders.
type Principal struct {
	Email string
	Role  Role
}

// Placement is everything persisted atomically when an order is created.
type Placement struct {
	Order          Order
	Items          []OrderItem
	IdempotencyKey string
}
