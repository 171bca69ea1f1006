package purchase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"go.uber.org/zap"

	"github.com/learnhub/learnhub-purchases/internal/domain"
	"github.com/learnhub/learnhub-purchases/internal/metrics"
	"github.com/learnhub/learnhub-purchases/internal/platform/gateway"
)

// State is the orchestrator's position in the purchase flow for one
// (user, course) pair.
type State string

const (
	StateIdle            State = "idle"
	StateChecking        State = "checking"
	StateEligible        State = "eligible"
	StateNeedsPurchase   State = "needs_purchase"
	StateOrderCreating   State = "order_creating"
	StateAwaitingGateway State = "awaiting_gateway"
	StateVerifying       State = "verifying"
	StatePurchased       State = "purchased"
	StatePurchaseFailed  State = "purchase_failed"

	// StateIndeterminate is reached when the bounded gateway wait expires
	// or a verification attempt cannot be classified; only a ledger
	// re-check resolves it.
	StateIndeterminate State = "indeterminate"
)

type flowKey struct {
	userID   string
	courseID string
}

// flow serializes one (user, course) purchase attempt. All transitions
// happen under mu, so no two checkout attempts for the same pair can run
// against the backend concurrently.
type flow struct {
	state   State
	order   *domain.PendingOrder
	session *gateway.Session
	message string
}

// Options tune the orchestrator's retry and wait policy.
type Options struct {
	// GatewayWait bounds how long an open checkout session is awaited
	// before the flow falls back to indeterminate.
	GatewayWait time.Duration

	// LedgerRetryAttempts / LedgerRetryDelay drive the transient-failure
	// retry policy for ledger checks.
	LedgerRetryAttempts uint
	LedgerRetryDelay    time.Duration
}

func (o Options) withDefaults() Options {
	if o.GatewayWait <= 0 {
		o.GatewayWait = 15 * time.Minute
	}
	if o.LedgerRetryAttempts == 0 {
		o.LedgerRetryAttempts = 3
	}
	if o.LedgerRetryDelay <= 0 {
		o.LedgerRetryDelay = 200 * time.Millisecond
	}
	return o
}

// Orchestrator sequences the purchase flow: ledger check, order creation,
// checkout session, verification. One flow per (user, course), serialized.
type Orchestrator struct {
	ledger   domain.PurchaseLedger
	intent   *OrderIntent
	opener   *gateway.Opener
	verifier *Verifier
	opts     Options
	logger   *zap.Logger

	mu    sync.Mutex // guards flows map
	flows map[flowKey]*flowEntry
}

// flowEntry carries its own mutex so flow transitions serialize without
// holding the map lock across network calls.
type flowEntry struct {
	mu   sync.Mutex
	flow *flow
}

// NewOrchestrator creates a purchase orchestrator.
func NewOrchestrator(ledger domain.PurchaseLedger, intent *OrderIntent, opener *gateway.Opener, verifier *Verifier, opts Options, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		ledger:   ledger,
		intent:   intent,
		opener:   opener,
		verifier: verifier,
		opts:     opts.withDefaults(),
		logger:   logger,
		flows:    make(map[flowKey]*flowEntry),
	}
}

func (o *Orchestrator) entryFor(userID, courseID string) *flowEntry {
	key := flowKey{userID: userID, courseID: courseID}
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.flows[key]
	if !ok {
		e = &flowEntry{flow: &flow{state: StateIdle}}
		o.flows[key] = e
	}
	return e
}

func (e *flowEntry) acquire() *flow {
	e.mu.Lock()
	return e.flow
}

func (e *flowEntry) release() {
	e.mu.Unlock()
}

// CheckAccess determines whether the course must be purchased. A ledger
// failure is surfaced, never folded into "not purchased".
func (o *Orchestrator) CheckAccess(ctx context.Context, userID, courseID string) (State, error) {
	e := o.entryFor(userID, courseID)
	f := e.acquire()
	defer e.release()

	prev := f.state
	f.state = StateChecking

	purchased, err := o.checkLedger(ctx, userID, courseID)
	if err != nil {
		f.state = prev
		return "", domain.NewPurchaseError(err,
			"could not determine purchase status",
			"LEDGER_ERROR")
	}

	if purchased {
		f.state = StateEligible
	} else {
		f.state = StateNeedsPurchase
	}
	return f.state, nil
}

// StartCheckout runs the flow up to an open checkout session:
// ledger check, order creation, anchor persistence, session open. Returns
// the pending order whose gateway parameters feed the checkout widget.
// A prior unresolved order for the same pair is superseded; its late
// events are discarded by order ID comparison.
func (o *Orchestrator) StartCheckout(ctx context.Context, buyer domain.BuyerProfile, course domain.CourseSnapshot) (*domain.PendingOrder, error) {
	e := o.entryFor(buyer.UserID, course.CourseID)
	f := e.acquire()
	defer e.release()

	// Never create an order the ledger already covers.
	f.state = StateChecking
	purchased, err := o.checkLedger(ctx, buyer.UserID, course.CourseID)
	if err != nil {
		f.state = StateIdle
		return nil, domain.NewPurchaseError(err,
			"could not determine purchase status",
			"LEDGER_ERROR")
	}
	if purchased {
		f.state = StateEligible
		return nil, domain.NewPurchaseError(domain.ErrAlreadyPurchased,
			"course is already purchased",
			"ALREADY_PURCHASED")
	}
	f.state = StateNeedsPurchase

	// Supersede any prior unresolved attempt.
	if f.session != nil {
		o.opener.Close(f.session)
		f.session = nil
	}
	if f.order != nil {
		o.logger.Info("superseding unresolved order",
			zap.String("order_id", f.order.OrderID),
			zap.String("user_id", buyer.UserID),
			zap.String("course_id", course.CourseID))
		f.order.Status = domain.StatusAbandoned
		f.order = nil
	}

	f.state = StateOrderCreating
	order, err := o.intent.Create(ctx, buyer, course)
	if err != nil {
		f.state = StateNeedsPurchase
		return nil, err
	}

	session, err := o.opener.Open(ctx, *order)
	if err != nil {
		f.state = StateNeedsPurchase
		return nil, err
	}

	order.Status = domain.StatusAwaitingGateway
	f.order = order
	f.session = session
	f.state = StateAwaitingGateway
	f.message = ""
	metrics.CheckoutAttempts.Inc()

	go o.await(e, session, buyer.UserID, course.CourseID)

	return order, nil
}

// CompleteCheckout handles the in-page gateway callback: the widget's
// success handler posts the proof back together with the locally remembered
// order ID. Verification runs synchronously so the caller gets the verdict.
// A callback referencing a superseded order is discarded.
func (o *Orchestrator) CompleteCheckout(ctx context.Context, userID, courseID, orderID string, cb domain.GatewayCallback) (*domain.VerificationResult, error) {
	e := o.entryFor(userID, courseID)
	f := e.acquire()

	if f.order != nil && f.order.OrderID != orderID {
		e.release()
		o.logger.Info("discarding callback for superseded order",
			zap.String("callback_order_id", orderID),
			zap.String("current_order_id", f.order.OrderID))
		return nil, domain.NewPurchaseError(domain.ErrOrderSuperseded,
			"a newer checkout attempt is in progress",
			"ORDER_SUPERSEDED")
	}

	inFlow := f.order != nil
	if inFlow {
		f.state = StateVerifying
		f.order.Status = domain.StatusVerifying
	}
	e.release()

	result, err := o.verifier.Verify(ctx, cb, orderID, userID)

	// The capture verdict is not trusted on its own: the ledger is the
	// source of post-verification truth.
	ledgerConfirmed := false
	ledgerChecked := false
	if err == nil && result.Success {
		if purchased, lerr := o.checkLedger(ctx, userID, courseID); lerr == nil {
			ledgerChecked = true
			ledgerConfirmed = purchased
		}
	}

	f = e.acquire()
	defer e.release()

	// The flow may have been superseded while verifying.
	if inFlow && (f.order == nil || f.order.OrderID != orderID) {
		return result, err
	}

	if err != nil {
		// Transport failure or cancellation: the outcome is unknown and
		// the anchor is intact, so leave the order resumable rather than
		// stuck in "verifying".
		if inFlow {
			f.order.Status = domain.StatusAwaitingGateway
			f.state = StateIndeterminate
			f.message = "payment verification did not complete"
		}
		return nil, domain.NewPurchaseError(domain.ErrIndeterminate,
			"payment verification did not complete; re-check your purchases",
			"VERIFY_UNRESOLVED")
	}

	if result.Success {
		if inFlow {
			if f.session != nil {
				o.opener.Deliver(f.session.Order().GatewayOrderID,
					gateway.Event{Kind: gateway.EventCaptured, Callback: cb})
				f.session = nil
			}
			if ledgerChecked && !ledgerConfirmed {
				// Backend reported captured but the ledger does not show
				// it yet; do not grant access on the callback alone.
				f.state = StateIndeterminate
				f.message = "payment recorded but not yet visible; re-check your purchases"
			} else {
				f.order.Status = domain.StatusCaptured
				f.state = StatePurchased
				f.message = result.Message
			}
		}
		return result, nil
	}

	if inFlow {
		f.order.Status = domain.StatusFailed
		f.state = StatePurchaseFailed
		f.message = result.Message
		if f.session != nil {
			o.opener.Deliver(f.session.Order().GatewayOrderID,
				gateway.Event{Kind: gateway.EventFailed, Reason: result.Message})
			f.session = nil
		}
	}
	return result, nil
}

// DismissCheckout records that the user closed the checkout widget.
// Dismissal fails this attempt only: the anchor stays persisted and a new
// checkout may be started at any time.
func (o *Orchestrator) DismissCheckout(userID, courseID, orderID string) error {
	return o.failAttempt(userID, courseID, orderID, gateway.EventDismissed, "checkout dismissed")
}

// FailCheckout records a terminal failure reported by the checkout widget.
func (o *Orchestrator) FailCheckout(userID, courseID, orderID, reason string) error {
	if reason == "" {
		reason = "payment failed"
	}
	return o.failAttempt(userID, courseID, orderID, gateway.EventFailed, reason)
}

func (o *Orchestrator) failAttempt(userID, courseID, orderID string, kind gateway.EventKind, reason string) error {
	e := o.entryFor(userID, courseID)
	f := e.acquire()
	defer e.release()

	if f.order == nil || f.order.OrderID != orderID {
		return domain.NewPurchaseError(domain.ErrOrderSuperseded,
			"no matching checkout attempt",
			"ORDER_SUPERSEDED")
	}

	if kind == gateway.EventDismissed {
		metrics.GatewayDismissals.Inc()
		f.order.Status = domain.StatusAbandoned
	} else {
		f.order.Status = domain.StatusFailed
	}
	f.state = StatePurchaseFailed
	f.message = reason

	if f.session != nil {
		o.opener.Deliver(f.session.Order().GatewayOrderID,
			gateway.Event{Kind: kind, Reason: reason})
		f.session = nil
	}

	o.logger.Info("checkout attempt failed",
		zap.String("order_id", orderID),
		zap.String("user_id", userID),
		zap.String("reason", reason))
	return nil
}

// StateOf reports the current flow state and last message for a pair.
func (o *Orchestrator) StateOf(userID, courseID string) (State, string) {
	e := o.entryFor(userID, courseID)
	f := e.acquire()
	defer e.release()
	return f.state, f.message
}

// await is the session janitor: terminal events are handled synchronously
// by their deliverers, so the only work left is the bounded-wait timeout.
func (o *Orchestrator) await(e *flowEntry, session *gateway.Session, userID, courseID string) {
	select {
	case <-session.Events():
		return
	case <-time.After(o.opts.GatewayWait):
	}

	o.opener.Close(session)
	metrics.GatewayTimeouts.Inc()

	// The gateway never reported back. The ledger is the only authority
	// that can still settle the outcome.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	purchased, err := o.checkLedger(ctx, userID, courseID)

	f := e.acquire()
	defer e.release()

	if f.session != session {
		// Superseded while waiting; the newer attempt owns the flow now.
		return
	}
	f.session = nil

	switch {
	case err == nil && purchased:
		f.order.Status = domain.StatusCaptured
		f.state = StatePurchased
		f.message = "payment confirmed by ledger"
	default:
		// Could still be in flight at the gateway; never conclude a
		// permanent denial here.
		f.state = StateIndeterminate
		f.message = "payment outcome unknown; re-check your purchases"
	}

	o.logger.Warn("checkout session timed out",
		zap.String("order_id", session.Order().OrderID),
		zap.String("user_id", userID),
		zap.String("state", string(f.state)))
}

// checkLedger queries the purchase ledger, retrying transient network
// failures only.
func (o *Orchestrator) checkLedger(ctx context.Context, userID, courseID string) (bool, error) {
	var purchased bool
	err := retry.Do(
		func() error {
			var err error
			purchased, err = o.ledger.CheckPurchased(ctx, userID, courseID)
			return err
		},
		retry.Attempts(o.opts.LedgerRetryAttempts),
		retry.Delay(o.opts.LedgerRetryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, domain.ErrNetwork) && ctx.Err() == nil
		}),
	)
	return purchased, err
}
