package purchase

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/learnhub/learnhub-purchases/internal/domain"
	"github.com/learnhub/learnhub-purchases/internal/metrics"
)

// Verifier forwards gateway callbacks to the backend capture endpoint and
// finalizes the local side of a purchase. It is the trust boundary: the
// callback is untrusted client-observed data and all signature validation
// happens in the backend.
type Verifier struct {
	capture domain.CaptureAPI
	anchors domain.AnchorStore
	events  domain.EventPublisher
	logger  *zap.Logger

	mu        sync.Mutex
	finalized map[string]string // orderID -> finalized gateway payment ID
}

// NewVerifier creates a payment verifier.
func NewVerifier(capture domain.CaptureAPI, anchors domain.AnchorStore, events domain.EventPublisher, logger *zap.Logger) *Verifier {
	return &Verifier{
		capture:   capture,
		anchors:   anchors,
		events:    events,
		logger:    logger,
		finalized: make(map[string]string),
	}
}

// Verify forwards the callback proof for orderID to the backend. Idempotent
// per (orderID, gateway payment ID): a repeat call reports "already
// finalized" without re-capturing. On success the user's anchor is cleared;
// on failure it stays intact so a retry or manual re-verification remains
// possible. Transport failures return an error and leave everything as-is.
func (v *Verifier) Verify(ctx context.Context, cb domain.GatewayCallback, orderID, userID string) (*domain.VerificationResult, error) {
	if orderID == "" {
		return nil, domain.NewPurchaseError(domain.ErrInvalidOrder,
			"order id is required for verification",
			"VALIDATION_ERROR")
	}

	v.mu.Lock()
	if paymentID, ok := v.finalized[orderID]; ok && paymentID == cb.GatewayPaymentID {
		v.mu.Unlock()
		return &domain.VerificationResult{
			Success:          true,
			Message:          "already finalized",
			AlreadyFinalized: true,
		}, nil
	}
	v.mu.Unlock()

	start := time.Now()
	result, err := v.capture.Capture(ctx, orderID, cb)
	metrics.VerificationTime.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	if result.Success || result.AlreadyFinalized {
		v.mu.Lock()
		_, wasFinalized := v.finalized[orderID]
		v.finalized[orderID] = cb.GatewayPaymentID
		v.mu.Unlock()

		if err := v.anchors.Clear(ctx, userID); err != nil {
			// The purchase is finalized in the ledger; a stale anchor only
			// costs an extra reconciliation later.
			v.logger.Warn("failed to clear anchor after capture",
				zap.String("user_id", userID),
				zap.String("order_id", orderID),
				zap.Error(err))
		}

		if !wasFinalized && !result.AlreadyFinalized {
			metrics.PurchasesCaptured.Inc()
			v.publish(ctx, domain.PurchaseEvent{
				Type:             domain.EventPurchaseCaptured,
				OrderID:          orderID,
				UserID:           userID,
				GatewayPaymentID: cb.GatewayPaymentID,
				OccurredAt:       time.Now().UTC(),
			})
		}

		result.Success = true
		if result.Message == "" {
			result.Message = "payment verified"
		}

		v.logger.Info("payment verified",
			zap.String("order_id", orderID),
			zap.String("gateway_payment_id", cb.GatewayPaymentID),
			zap.Bool("already_finalized", result.AlreadyFinalized))
		return result, nil
	}

	metrics.CaptureFailures.Inc()
	if result.Message == "" {
		result.Message = "verification failed"
	}
	v.publish(ctx, domain.PurchaseEvent{
		Type:             domain.EventPurchaseCaptureFailed,
		OrderID:          orderID,
		UserID:           userID,
		GatewayPaymentID: cb.GatewayPaymentID,
		Message:          result.Message,
		OccurredAt:       time.Now().UTC(),
	})

	v.logger.Warn("backend rejected payment proof",
		zap.String("order_id", orderID),
		zap.String("gateway_payment_id", cb.GatewayPaymentID),
		zap.String("message", result.Message))

	return result, nil
}

func (v *Verifier) publish(ctx context.Context, ev domain.PurchaseEvent) {
	if err := v.events.PublishPurchaseEvent(ctx, ev); err != nil {
		v.logger.Error("failed to publish purchase event",
			zap.String("type", ev.Type),
			zap.String("order_id", ev.OrderID),
			zap.Error(err))
	}
}
