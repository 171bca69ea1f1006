// Package domain contains the core business entities and interfaces for the
// purchase service. This is the innermost layer - it has no dependencies on
// external frameworks or infrastructure.
package domain

import "time"

// OrderStatus tracks a pending order through its lifecycle.
type OrderStatus string

const (
	StatusInitiated       OrderStatus = "initiated"
	StatusAwaitingGateway OrderStatus = "awaiting_gateway"
	StatusVerifying       OrderStatus = "verifying"
	StatusCaptured        OrderStatus = "captured"
	StatusFailed          OrderStatus = "failed"
	StatusAbandoned       OrderStatus = "abandoned"
)

// PurchaseRecord is the backend ledger's answer for a (user, course) pair.
// It is read-only from this service's perspective: the ledger is owned by the
// platform backend and only the backend flips Purchased.
type PurchaseRecord struct {
	UserID    string `json:"user_id"`
	CourseID  string `json:"course_id"`
	Purchased bool   `json:"purchased"`
}

// BuyerProfile identifies the purchasing learner.
type BuyerProfile struct {
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	UserEmail string `json:"user_email"`
}

// CourseSnapshot captures the course and its price at order-creation time.
// The price is snapshotted so a mid-flight price change never affects an
// order the ledger later finalizes.
type CourseSnapshot struct {
	CourseID       string `json:"course_id"`
	Title          string `json:"title"`
	Image          string `json:"image,omitempty"`
	InstructorID   string `json:"instructor_id,omitempty"`
	InstructorName string `json:"instructor_name,omitempty"`
	Pricing        int64  `json:"pricing"` // minor currency units
	Currency       string `json:"currency"`
}

// PendingOrder is a gateway order awaiting completion. The backend issues
// OrderID; the gateway's own identifier and the public key needed to open
// the checkout widget come back with it.
type PendingOrder struct {
	OrderID        string      `json:"order_id"`
	GatewayOrderID string      `json:"gateway_order_id"`
	GatewayKey     string      `json:"gateway_key"`
	Amount         int64       `json:"amount"` // minor currency units
	Currency       string      `json:"currency"`
	CourseID       string      `json:"course_id"`
	UserID         string      `json:"user_id"`
	Status         OrderStatus `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
}

// GatewayCallback is the proof payload the gateway hands back on success.
// It is client-observed and therefore untrusted; the backend validates the
// signature. Consumed exactly once per verification attempt.
type GatewayCallback struct {
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	Signature        string `json:"signature"`
}

// VerificationResult is the outcome of forwarding a gateway callback to the
// backend capture endpoint. On success the backend has flipped the ledger;
// the service re-reads the ledger rather than trusting the callback.
type VerificationResult struct {
	Success          bool   `json:"success"`
	Message          string `json:"message"`
	AlreadyFinalized bool   `json:"already_finalized,omitempty"`
}

// Purchase event types published after a capture attempt resolves.
const (
	EventPurchaseCaptured      = "purchase.captured"
	EventPurchaseCaptureFailed = "purchase.capture_failed"
)

// PurchaseEvent is emitted for downstream services (enrollment,
// notifications) once a capture attempt has a terminal outcome.
type PurchaseEvent struct {
	Type             string    `json:"type"`
	OrderID          string    `json:"order_id"`
	UserID           string    `json:"user_id"`
	CourseID         string    `json:"course_id,omitempty"`
	GatewayPaymentID string    `json:"gateway_payment_id,omitempty"`
	Message          string    `json:"message,omitempty"`
	OccurredAt       time.Time `json:"occurred_at"`
}
