package purchase

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/learnhub-purchases/internal/domain"
	"github.com/learnhub/learnhub-purchases/internal/platform/anchor"
)

type reconcilerEnv struct {
	ledger     *fakeLedger
	capture    *fakeCaptureAPI
	anchors    *anchor.MemoryStore
	reconciler *Reconciler
}

func newReconcilerEnv(t *testing.T) *reconcilerEnv {
	t.Helper()
	env := &reconcilerEnv{
		ledger:  newFakeLedger(),
		capture: &fakeCaptureAPI{},
		anchors: anchor.NewMemoryStore(),
	}
	verifier := NewVerifier(env.capture, env.anchors, &fakePublisher{}, testLogger())
	env.reconciler = NewReconciler(verifier, env.anchors, env.ledger, testLogger())
	return env
}

func returnQuery(orderID, paymentID, signature string) url.Values {
	q := url.Values{}
	if orderID != "" {
		q.Set("gateway_order_id", orderID)
	}
	if paymentID != "" {
		q.Set("gateway_payment_id", paymentID)
	}
	if signature != "" {
		q.Set("signature", signature)
	}
	return q
}

func TestReconcilePlainEntryIsNoOp(t *testing.T) {
	env := newReconcilerEnv(t)

	report, err := env.reconciler.Reconcile(context.Background(), "u1", "c1", url.Values{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoReturn, report.Outcome)
	assert.Equal(t, 0, env.capture.callCount())
}

func TestReconcilePlainEntryMentionsPendingOrder(t *testing.T) {
	env := newReconcilerEnv(t)
	ctx := context.Background()
	require.NoError(t, env.anchors.Put(ctx, "u1", "order-1"))

	report, err := env.reconciler.Reconcile(ctx, "u1", "c1", url.Values{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoReturn, report.Outcome)
	assert.Contains(t, report.Message, "still be processing")
}

func TestReconcileResumesVerificationFromAnchor(t *testing.T) {
	env := newReconcilerEnv(t)
	ctx := context.Background()
	require.NoError(t, env.anchors.Put(ctx, "u1", "order-1"))
	env.ledger.set("u1", "c1", true)

	report, err := env.reconciler.Reconcile(ctx, "u1", "c1",
		returnQuery("gw-order-1", "pay-1", "sig-1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomePurchased, report.Outcome)
	assert.True(t, report.Purchased)

	// Verification went through the stored anchor's order ID.
	require.Equal(t, 1, env.capture.callCount())
	assert.Equal(t, "order-1", env.capture.calls[0].orderID)

	// Anchor consumed on success.
	_, err = env.anchors.Get(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrNoAnchor)
}

func TestReconcileWithoutAnchorIsIndeterminate(t *testing.T) {
	env := newReconcilerEnv(t)

	report, err := env.reconciler.Reconcile(context.Background(), "u1", "c1",
		returnQuery("gw-order-1", "pay-1", "sig-1"))
	require.NoError(t, err)
	// Indeterminate, never failed: the anchor may be on another device.
	assert.Equal(t, OutcomeIndeterminate, report.Outcome)
	assert.False(t, report.Purchased)
	assert.Equal(t, 0, env.capture.callCount())
}

func TestReconcileWithoutAnchorResolvedByLedger(t *testing.T) {
	env := newReconcilerEnv(t)
	env.ledger.set("u1", "c1", true)

	report, err := env.reconciler.Reconcile(context.Background(), "u1", "c1",
		returnQuery("gw-order-1", "pay-1", "sig-1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomePurchased, report.Outcome)
	assert.True(t, report.Purchased)
}

func TestReconcileGarbledParamsAreIndeterminate(t *testing.T) {
	env := newReconcilerEnv(t)

	report, err := env.reconciler.Reconcile(context.Background(), "u1", "c1",
		returnQuery("gw-order-1", "", "sig-1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIndeterminate, report.Outcome)
	assert.Equal(t, 0, env.capture.callCount())
}

func TestReconcileRejectedProofKeepsAnchor(t *testing.T) {
	env := newReconcilerEnv(t)
	env.capture.result = &domain.VerificationResult{Success: false, Message: "verification failed"}
	ctx := context.Background()
	require.NoError(t, env.anchors.Put(ctx, "u1", "order-1"))

	report, err := env.reconciler.Reconcile(ctx, "u1", "c1",
		returnQuery("gw-order-1", "pay-1", "expired-sig"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, report.Outcome)
	assert.Equal(t, "verification failed", report.Message)

	// Anchor untouched; a retry remains possible.
	orderID, err := env.anchors.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "order-1", orderID)
}

func TestReconcileFailedVerifyButLedgerSaysPurchased(t *testing.T) {
	env := newReconcilerEnv(t)
	env.capture.result = &domain.VerificationResult{Success: false, Message: "verification failed"}
	env.ledger.set("u1", "c1", true)
	ctx := context.Background()
	require.NoError(t, env.anchors.Put(ctx, "u1", "order-1"))

	report, err := env.reconciler.Reconcile(ctx, "u1", "c1",
		returnQuery("gw-order-1", "pay-1", "sig-1"))
	require.NoError(t, err)
	// The ledger is the source of truth and overrules the gateway path.
	assert.Equal(t, OutcomePurchased, report.Outcome)
	assert.True(t, report.Purchased)
}

func TestReconcileTransportErrorIsIndeterminate(t *testing.T) {
	env := newReconcilerEnv(t)
	env.capture.err = domain.ErrNetwork
	ctx := context.Background()
	require.NoError(t, env.anchors.Put(ctx, "u1", "order-1"))

	report, err := env.reconciler.Reconcile(ctx, "u1", "c1",
		returnQuery("gw-order-1", "pay-1", "sig-1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIndeterminate, report.Outcome)

	// Anchor intact for a later attempt.
	orderID, err := env.anchors.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "order-1", orderID)
}

func TestReconcileWithoutCourseSkipsLedgerRecheck(t *testing.T) {
	env := newReconcilerEnv(t)
	ctx := context.Background()
	require.NoError(t, env.anchors.Put(ctx, "u1", "order-1"))

	report, err := env.reconciler.Reconcile(ctx, "u1", "",
		returnQuery("gw-order-1", "pay-1", "sig-1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomePurchased, report.Outcome)
	assert.True(t, report.Purchased)
	assert.Equal(t, 0, env.ledger.calls)
}
