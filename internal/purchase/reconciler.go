package purchase

import (
	"context"
	"errors"
	"net/url"

	"go.uber.org/zap"

	"github.com/learnhub/learnhub-purchases/internal/domain"
)

// Outcome classifies a return-reconciliation result for the caller.
type Outcome string

const (
	// OutcomeNoReturn means the entry carried no gateway parameters: a
	// plain page entry, not a return from payment.
	OutcomeNoReturn Outcome = "no_return"

	OutcomePurchased Outcome = "purchased"
	OutcomeFailed    Outcome = "failed"

	// OutcomeIndeterminate is distinct from both success and failure: the
	// caller must re-check the ledger rather than assume either.
	OutcomeIndeterminate Outcome = "indeterminate"
)

// ReconcileReport is the outward signal of a reconciliation pass.
type ReconcileReport struct {
	Outcome   Outcome `json:"outcome"`
	Message   string  `json:"message"`
	Purchased bool    `json:"purchased"`
}

// Reconciler is the secondary entry point used when the application is
// re-entered via gateway redirect instead of the in-page callback. It
// resumes verification from the persisted anchor, and in every branch the
// ledger - not the gateway callback - is the final authority.
type Reconciler struct {
	verifier *Verifier
	anchors  domain.AnchorStore
	ledger   domain.PurchaseLedger
	logger   *zap.Logger
}

// NewReconciler creates a return reconciler.
func NewReconciler(verifier *Verifier, anchors domain.AnchorStore, ledger domain.PurchaseLedger, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		verifier: verifier,
		anchors:  anchors,
		ledger:   ledger,
		logger:   logger,
	}
}

// parseReturnParams extracts the gateway callback from redirect query
// parameters. Presence is all-or-nothing: none means a plain page entry,
// all three mean a return from payment, anything else is a garbled
// redirect.
func parseReturnParams(query url.Values) (domain.GatewayCallback, bool, bool) {
	cb := domain.GatewayCallback{
		GatewayOrderID:   query.Get("gateway_order_id"),
		GatewayPaymentID: query.Get("gateway_payment_id"),
		Signature:        query.Get("signature"),
	}
	present := 0
	for _, v := range []string{cb.GatewayOrderID, cb.GatewayPaymentID, cb.Signature} {
		if v != "" {
			present++
		}
	}
	switch present {
	case 0:
		return domain.GatewayCallback{}, false, true
	case 3:
		return cb, true, true
	default:
		return domain.GatewayCallback{}, true, false
	}
}

// Reconcile inspects the redirect parameters and either resumes
// verification through the persisted anchor or reports an indeterminate
// outcome. courseID may be empty when the return URL did not carry it; the
// ledger re-check is then skipped and unresolved outcomes stay
// indeterminate.
func (r *Reconciler) Reconcile(ctx context.Context, userID, courseID string, query url.Values) (*ReconcileReport, error) {
	cb, isReturn, wellFormed := parseReturnParams(query)

	if !isReturn {
		report := &ReconcileReport{
			Outcome: OutcomeNoReturn,
			Message: "no payment details found",
		}
		if _, err := r.anchors.Get(ctx, userID); err == nil {
			report.Message = "payment may still be processing; check your orders"
		}
		return report, nil
	}

	if !wellFormed {
		r.logger.Warn("garbled gateway return parameters",
			zap.String("user_id", userID))
		return r.settle(ctx, userID, courseID, OutcomeIndeterminate,
			"incomplete payment details; re-check your purchases"), nil
	}

	orderID, err := r.anchors.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrNoAnchor) {
			return nil, domain.NewPurchaseError(err,
				"failed to read pending order anchor",
				"ANCHOR_READ_ERROR")
		}
		// Anchor lost (expired storage, cross-device return). The callback
		// alone proves nothing, so this is indeterminate, never a failure.
		r.logger.Info("gateway return without stored anchor",
			zap.String("user_id", userID),
			zap.String("gateway_order_id", cb.GatewayOrderID))
		return r.settle(ctx, userID, courseID, OutcomeIndeterminate,
			"no pending order found; re-check your purchases"), nil
	}

	result, err := r.verifier.Verify(ctx, cb, orderID, userID)
	if err != nil {
		// Outcome unknown; the anchor stays intact for a later attempt.
		r.logger.Warn("verification did not complete on return",
			zap.String("order_id", orderID),
			zap.Error(err))
		return r.settle(ctx, userID, courseID, OutcomeIndeterminate,
			"payment verification did not complete; re-check your purchases"), nil
	}

	if result.Success {
		return r.settle(ctx, userID, courseID, OutcomePurchased, result.Message), nil
	}
	return r.settle(ctx, userID, courseID, OutcomeFailed, result.Message), nil
}

// settle finishes every branch with a ledger re-check: a purchase the
// ledger confirms wins over whatever the gateway path reported, and an
// outcome the ledger cannot confirm is downgraded rather than trusted.
func (r *Reconciler) settle(ctx context.Context, userID, courseID string, outcome Outcome, message string) *ReconcileReport {
	report := &ReconcileReport{Outcome: outcome, Message: message}

	if courseID == "" {
		if outcome == OutcomePurchased {
			report.Purchased = true
		}
		return report
	}

	purchased, err := r.ledger.CheckPurchased(ctx, userID, courseID)
	switch {
	case err != nil:
		r.logger.Warn("ledger re-check failed during reconciliation",
			zap.String("user_id", userID),
			zap.String("course_id", courseID),
			zap.Error(err))
		if outcome == OutcomePurchased {
			// Verification succeeded; a failed re-check does not unwind it.
			report.Purchased = true
		}
	case purchased:
		report.Outcome = OutcomePurchased
		report.Purchased = true
		if outcome != OutcomePurchased {
			report.Message = "purchase confirmed"
		}
	default:
		if outcome == OutcomePurchased {
			// Backend said captured but the ledger does not show it yet.
			report.Outcome = OutcomeIndeterminate
			report.Message = "payment recorded but not yet visible; re-check your purchases"
			report.Purchased = false
		}
	}
	return report
}
