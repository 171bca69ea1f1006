package domain

import "context"

// PurchaseLedger checks whether a (user, course) pair already has a finalized
// purchase. Side-effect-free and safe to call speculatively. A transport
// failure is an error, never "not purchased" - callers must be able to tell
// "confirmed not purchased" from "unknown".
type PurchaseLedger interface {
	CheckPurchased(ctx context.Context, userID, courseID string) (bool, error)
}

// OrderAPI creates a pending order against the platform backend. The backend
// issues the order identifier and the gateway parameters needed to open a
// checkout session. No automatic retry; retry policy belongs to the caller.
type OrderAPI interface {
	CreateOrder(ctx context.Context, buyer BuyerProfile, course CourseSnapshot) (*PendingOrder, error)
}

// CaptureAPI forwards a gateway callback to the backend so it can validate
// the signature and finalize the order. The service never validates payment
// proofs itself.
type CaptureAPI interface {
	Capture(ctx context.Context, orderID string, cb GatewayCallback) (*VerificationResult, error)
}

// AnchorStore is the single durable "current pending order" slot per user.
// It survives a full navigation away from the application and is the
// recovery anchor for return reconciliation. At most one order may be
// current at a time; Put replaces any prior unresolved one.
type AnchorStore interface {
	// Put records orderID as the user's current pending order.
	Put(ctx context.Context, userID, orderID string) error

	// Get returns the user's current pending order ID, or ErrNoAnchor.
	Get(ctx context.Context, userID string) (string, error)

	// Clear removes the anchor. Clearing an absent anchor is not an error.
	Clear(ctx context.Context, userID string) error
}

// EventPublisher emits purchase events for downstream consumers.
type EventPublisher interface {
	PublishPurchaseEvent(ctx context.Context, ev PurchaseEvent) error
}
