// Package coursebackend implements the PurchaseLedger, OrderAPI and
// CaptureAPI interfaces by communicating with the learning platform's
// internal backend API.
package coursebackend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/learnhub/learnhub-purchases/internal/domain"
)

// Client makes HTTP requests to the platform backend. It implements
// domain.PurchaseLedger, domain.OrderAPI and domain.CaptureAPI.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new platform backend client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// purchaseStatusResponse is the JSON envelope for the ledger check.
type purchaseStatusResponse struct {
	Success bool `json:"success"`
	Data    bool `json:"data"`
}

// CheckPurchased asks the backend ledger whether the user already owns the
// course. A transport failure surfaces as ErrNetwork so callers can tell
// "unknown" apart from "confirmed not purchased".
func (c *Client) CheckPurchased(ctx context.Context, userID, courseID string) (bool, error) {
	q := url.Values{}
	q.Set("userId", userID)
	q.Set("courseId", courseID)
	reqURL := fmt.Sprintf("%s/api/internal/purchases/status?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return false, err
	}

	var statusResp purchaseStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&statusResp); err != nil {
		return false, fmt.Errorf("failed to decode response: %w", err)
	}
	if !statusResp.Success {
		return false, fmt.Errorf("%w: purchase status check rejected", domain.ErrBackend)
	}

	return statusResp.Data, nil
}

// createOrderRequest is the JSON body posted to the orders endpoint.
type createOrderRequest struct {
	Buyer  domain.BuyerProfile   `json:"buyer"`
	Course domain.CourseSnapshot `json:"course"`
}

// createOrderResponse is the JSON envelope returned by the orders endpoint.
type createOrderResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		OrderID        string `json:"orderId"`
		GatewayOrderID string `json:"gatewayOrderId"`
		GatewayKey     string `json:"gatewayKey"`
		Amount         int64  `json:"amount"`
		Currency       string `json:"currency"`
	} `json:"data"`
}

// CreateOrder asks the backend to create a pending order and a matching
// gateway order. The backend holds the gateway credentials; only the public
// checkout key comes back.
func (c *Client) CreateOrder(ctx context.Context, buyer domain.BuyerProfile, course domain.CourseSnapshot) (*domain.PendingOrder, error) {
	reqURL := fmt.Sprintf("%s/api/internal/orders", c.baseURL)

	jsonBody, err := json.Marshal(createOrderRequest{Buyer: buyer, Course: course})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var orderResp createOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&orderResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !orderResp.Success {
		return nil, fmt.Errorf("%w: %s", domain.ErrBackend, orderResp.Message)
	}

	return &domain.PendingOrder{
		OrderID:        orderResp.Data.OrderID,
		GatewayOrderID: orderResp.Data.GatewayOrderID,
		GatewayKey:     orderResp.Data.GatewayKey,
		Amount:         orderResp.Data.Amount,
		Currency:       orderResp.Data.Currency,
		CourseID:       course.CourseID,
		UserID:         buyer.UserID,
		Status:         domain.StatusInitiated,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// captureRequest forwards the gateway proof verbatim. The backend validates
// the signature; this service only relays it.
type captureRequest struct {
	GatewayOrderID   string `json:"gatewayOrderId"`
	GatewayPaymentID string `json:"gatewayPaymentId"`
	Signature        string `json:"signature"`
}

type captureResponse struct {
	Success          bool   `json:"success"`
	Message          string `json:"message"`
	AlreadyFinalized bool   `json:"alreadyFinalized"`
}

// Capture asks the backend to validate the payment proof and finalize the
// order into the ledger. A backend rejection is a VerificationResult with
// Success=false, not an error; errors are reserved for transport and
// protocol failures.
func (c *Client) Capture(ctx context.Context, orderID string, cb domain.GatewayCallback) (*domain.VerificationResult, error) {
	reqURL := fmt.Sprintf("%s/api/internal/orders/%s/capture", c.baseURL, url.PathEscape(orderID))

	jsonBody, err := json.Marshal(captureRequest{
		GatewayOrderID:   cb.GatewayOrderID,
		GatewayPaymentID: cb.GatewayPaymentID,
		Signature:        cb.Signature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	// 200 and 402 both carry a capture verdict; everything else is a
	// protocol failure.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPaymentRequired {
		if err := checkStatus(resp); err != nil {
			return nil, err
		}
	}

	var capResp captureResponse
	if err := json.NewDecoder(resp.Body).Decode(&capResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &domain.VerificationResult{
		Success:          capResp.Success,
		Message:          capResp.Message,
		AlreadyFinalized: capResp.AlreadyFinalized,
	}, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("X-Internal-API-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
}

// checkStatus maps non-success HTTP codes onto domain errors.
func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: authentication failed with backend API", domain.ErrBackend)
	case resp.StatusCode >= 500:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: backend status %d: %s", domain.ErrNetwork, resp.StatusCode, string(body))
	default:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: unexpected status %d: %s", domain.ErrBackend, resp.StatusCode, string(body))
	}
}
