package purchase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/learnhub-purchases/internal/domain"
	"github.com/learnhub/learnhub-purchases/internal/platform/anchor"
)

func TestVerifySuccessClearsAnchor(t *testing.T) {
	capture := &fakeCaptureAPI{}
	anchors := anchor.NewMemoryStore()
	publisher := &fakePublisher{}
	v := NewVerifier(capture, anchors, publisher, testLogger())

	ctx := context.Background()
	require.NoError(t, anchors.Put(ctx, "u1", "order-1"))

	cb := domain.GatewayCallback{
		GatewayOrderID:   "gw-order-1",
		GatewayPaymentID: "pay-1",
		Signature:        "sig-1",
	}
	result, err := v.Verify(ctx, cb, "order-1", "u1")
	require.NoError(t, err)
	assert.True(t, result.Success)

	_, err = anchors.Get(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrNoAnchor)

	captured := publisher.byType(domain.EventPurchaseCaptured)
	require.Len(t, captured, 1)
	assert.Equal(t, "order-1", captured[0].OrderID)
	assert.Equal(t, "pay-1", captured[0].GatewayPaymentID)
}

func TestVerifyIsIdempotent(t *testing.T) {
	capture := &fakeCaptureAPI{}
	anchors := anchor.NewMemoryStore()
	publisher := &fakePublisher{}
	v := NewVerifier(capture, anchors, publisher, testLogger())

	ctx := context.Background()
	cb := domain.GatewayCallback{
		GatewayOrderID:   "gw-order-1",
		GatewayPaymentID: "pay-1",
		Signature:        "sig-1",
	}

	first, err := v.Verify(ctx, cb, "order-1", "u1")
	require.NoError(t, err)
	assert.True(t, first.Success)
	assert.False(t, first.AlreadyFinalized)

	second, err := v.Verify(ctx, cb, "order-1", "u1")
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.True(t, second.AlreadyFinalized)
	assert.Equal(t, "already finalized", second.Message)

	// The backend saw exactly one capture, and only one event went out.
	assert.Equal(t, 1, capture.callCount())
	assert.Len(t, publisher.byType(domain.EventPurchaseCaptured), 1)
}

func TestVerifyFailureLeavesAnchor(t *testing.T) {
	capture := &fakeCaptureAPI{
		result: &domain.VerificationResult{Success: false, Message: "verification failed"},
	}
	anchors := anchor.NewMemoryStore()
	publisher := &fakePublisher{}
	v := NewVerifier(capture, anchors, publisher, testLogger())

	ctx := context.Background()
	require.NoError(t, anchors.Put(ctx, "u1", "order-1"))

	cb := domain.GatewayCallback{
		GatewayOrderID:   "gw-order-1",
		GatewayPaymentID: "pay-1",
		Signature:        "garbled",
	}
	result, err := v.Verify(ctx, cb, "order-1", "u1")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "verification failed", result.Message)

	// Anchor intact so a retry or manual re-verification remains possible.
	orderID, err := anchors.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "order-1", orderID)

	assert.Len(t, publisher.byType(domain.EventPurchaseCaptureFailed), 1)

	// A failed proof is not finalized; re-attempting hits the backend again.
	_, err = v.Verify(ctx, cb, "order-1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, capture.callCount())
}

func TestVerifyTransportErrorSurfaces(t *testing.T) {
	capture := &fakeCaptureAPI{err: domain.ErrNetwork}
	anchors := anchor.NewMemoryStore()
	v := NewVerifier(capture, anchors, &fakePublisher{}, testLogger())

	ctx := context.Background()
	require.NoError(t, anchors.Put(ctx, "u1", "order-1"))

	_, err := v.Verify(ctx, domain.GatewayCallback{GatewayPaymentID: "pay-1"}, "order-1", "u1")
	assert.True(t, errors.Is(err, domain.ErrNetwork))

	// Unknown outcome must not consume the anchor.
	orderID, err := anchors.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "order-1", orderID)
}

func TestVerifyRequiresOrderID(t *testing.T) {
	v := NewVerifier(&fakeCaptureAPI{}, anchor.NewMemoryStore(), &fakePublisher{}, testLogger())

	_, err := v.Verify(context.Background(), domain.GatewayCallback{}, "", "u1")
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
}

func TestVerifyBackendAlreadyFinalized(t *testing.T) {
	capture := &fakeCaptureAPI{
		result: &domain.VerificationResult{Success: false, AlreadyFinalized: true, Message: "already finalized"},
	}
	publisher := &fakePublisher{}
	v := NewVerifier(capture, anchor.NewMemoryStore(), publisher, testLogger())

	result, err := v.Verify(context.Background(), domain.GatewayCallback{GatewayPaymentID: "pay-1"}, "order-1", "u1")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.AlreadyFinalized)

	// No duplicate capture event for a backend-reported repeat.
	assert.Empty(t, publisher.byType(domain.EventPurchaseCaptured))
}
