package fee

import "context"

// Customer is the payer shown on the gateway checkout page.
type Customer struct {
	Name  string
	Email string
}

// Gateway is the payment gateway collaborator.
type Gateway interface {
	// CreateOrder opens a checkout for the Order and returns its token and redirect URL.
	CreateOrder(ctx context.Context, order Order, customer Customer) (token, redirectURL string, err error)
	// VerifySignature reports whether the Notification was signed by the gateway.
	VerifySignature(n Notification) bool
}
