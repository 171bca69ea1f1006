package coursebackend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/learnhub-purchases/internal/domain"
)

func TestCheckPurchased(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/internal/purchases/status", r.URL.Path)
		assert.Equal(t, "u1", r.URL.Query().Get("userId"))
		assert.Equal(t, "c1", r.URL.Query().Get("courseId"))
		assert.Equal(t, "secret", r.Header.Get("X-Internal-API-Key"))
		json.NewEncoder(w).Encode(map[string]any{"success": true, "data": true})
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret")
	purchased, err := client.CheckPurchased(context.Background(), "u1", "c1")
	require.NoError(t, err)
	assert.True(t, purchased)
}

func TestCheckPurchasedNetworkErrorIsNotNotPurchased(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	client := NewClient(server.URL, "secret")
	_, err := client.CheckPurchased(context.Background(), "u1", "c1")
	assert.ErrorIs(t, err, domain.ErrNetwork)
}

func TestCheckPurchasedServerErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret")
	_, err := client.CheckPurchased(context.Background(), "u1", "c1")
	assert.ErrorIs(t, err, domain.ErrNetwork)
}

func TestCreateOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/internal/orders", r.URL.Path)

		var req createOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "u1", req.Buyer.UserID)
		assert.Equal(t, int64(10000), req.Course.Pricing)

		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]any{
				"orderId":        "order-1",
				"gatewayOrderId": "gw-order-1",
				"gatewayKey":     "key-live",
				"amount":         10000,
				"currency":       "INR",
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret")
	order, err := client.CreateOrder(context.Background(),
		domain.BuyerProfile{UserID: "u1", UserEmail: "u@example.com"},
		domain.CourseSnapshot{CourseID: "c1", Pricing: 10000, Currency: "INR"})
	require.NoError(t, err)
	assert.Equal(t, "order-1", order.OrderID)
	assert.Equal(t, "gw-order-1", order.GatewayOrderID)
	assert.Equal(t, "key-live", order.GatewayKey)
	assert.Equal(t, domain.StatusInitiated, order.Status)
	assert.Equal(t, "u1", order.UserID)
	assert.Equal(t, "c1", order.CourseID)
}

func TestCreateOrderBackendRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "course not found"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret")
	_, err := client.CreateOrder(context.Background(),
		domain.BuyerProfile{UserID: "u1"},
		domain.CourseSnapshot{CourseID: "nope", Pricing: 100, Currency: "INR"})
	assert.ErrorIs(t, err, domain.ErrBackend)
	assert.Contains(t, err.Error(), "course not found")
}

func TestCaptureForwardsProofVerbatim(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/internal/orders/order-1/capture", r.URL.Path)

		var req captureRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gw-order-1", req.GatewayOrderID)
		assert.Equal(t, "pay-1", req.GatewayPaymentID)
		assert.Equal(t, "sig-1", req.Signature)

		json.NewEncoder(w).Encode(map[string]any{"success": true, "message": "payment verified"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret")
	result, err := client.Capture(context.Background(), "order-1", domain.GatewayCallback{
		GatewayOrderID:   "gw-order-1",
		GatewayPaymentID: "pay-1",
		Signature:        "sig-1",
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "payment verified", result.Message)
}

func TestCaptureRejectionIsAVerdictNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "signature mismatch"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret")
	result, err := client.Capture(context.Background(), "order-1", domain.GatewayCallback{
		GatewayOrderID:   "gw-order-1",
		GatewayPaymentID: "pay-1",
		Signature:        "bad",
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "signature mismatch", result.Message)
}
