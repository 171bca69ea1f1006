// Package purchase implements the purchase orchestration core: the decision
// logic that gates course access, order creation against the backend, the
// checkout session lifecycle, idempotent payment verification and the
// recovery path for users returning via gateway redirect.
package purchase

import (
	"context"

	"go.uber.org/zap"

	"github.com/learnhub/learnhub-purchases/internal/domain"
)

// OrderIntent creates pending orders and records the recovery anchor.
type OrderIntent struct {
	api     domain.OrderAPI
	anchors domain.AnchorStore
	logger  *zap.Logger
}

// NewOrderIntent creates an order intent client.
func NewOrderIntent(api domain.OrderAPI, anchors domain.AnchorStore, logger *zap.Logger) *OrderIntent {
	return &OrderIntent{
		api:     api,
		anchors: anchors,
		logger:  logger,
	}
}

// Create validates the order input, creates a pending order against the
// backend and persists the order ID as the user's current anchor BEFORE
// returning control. The anchor is what lets return reconciliation resume
// the order after a full navigation away. Backend errors surface verbatim;
// retry policy belongs to the orchestrator.
func (oi *OrderIntent) Create(ctx context.Context, buyer domain.BuyerProfile, course domain.CourseSnapshot) (*domain.PendingOrder, error) {
	if err := validateOrderInput(buyer, course); err != nil {
		return nil, err
	}

	order, err := oi.api.CreateOrder(ctx, buyer, course)
	if err != nil {
		return nil, err
	}

	if err := oi.anchors.Put(ctx, buyer.UserID, order.OrderID); err != nil {
		// Without the anchor the order cannot be recovered after a
		// redirect, so the checkout must not proceed.
		return nil, domain.NewPurchaseError(err,
			"failed to persist pending order anchor",
			"ANCHOR_WRITE_ERROR")
	}

	oi.logger.Info("pending order created",
		zap.String("order_id", order.OrderID),
		zap.String("gateway_order_id", order.GatewayOrderID),
		zap.String("user_id", buyer.UserID),
		zap.String("course_id", course.CourseID),
		zap.Int64("amount", order.Amount))

	return order, nil
}

// validateOrderInput performs basic validation on the checkout input.
func validateOrderInput(buyer domain.BuyerProfile, course domain.CourseSnapshot) error {
	if buyer.UserID == "" {
		return domain.NewPurchaseError(domain.ErrInvalidOrder,
			"user id is required",
			"VALIDATION_ERROR")
	}
	if course.CourseID == "" {
		return domain.NewPurchaseError(domain.ErrInvalidOrder,
			"course id is required",
			"VALIDATION_ERROR")
	}
	if course.Pricing <= 0 {
		return domain.NewPurchaseError(domain.ErrInvalidOrder,
			"course price must be greater than 0",
			"VALIDATION_ERROR")
	}
	return nil
}
