// Package api contains the HTTP handlers and routing for the purchase service.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/learnhub/learnhub-purchases/internal/domain"
	"github.com/learnhub/learnhub-purchases/internal/purchase"
)

// Handler contains the HTTP handlers for the purchase API.
type Handler struct {
	orchestrator *purchase.Orchestrator
	reconciler   *purchase.Reconciler
	ledger       domain.PurchaseLedger
	logger       *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(orchestrator *purchase.Orchestrator, reconciler *purchase.Reconciler, ledger domain.PurchaseLedger, logger *zap.Logger) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		reconciler:   reconciler,
		ledger:       ledger,
		logger:       logger,
	}
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

// PurchaseStatus handles GET /api/v1/purchases/status
// The speculative ledger check course pages run before offering a buy button.
func (h *Handler) PurchaseStatus(c *gin.Context) {
	userID := c.Query("userId")
	courseID := c.Query("courseId")
	if userID == "" || courseID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Error:   "userId and courseId are required",
			Code:    "VALIDATION_ERROR",
		})
		return
	}

	purchased, err := h.ledger.CheckPurchased(c.Request.Context(), userID, courseID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": purchased})
}

// CheckoutRequest represents the JSON body for the checkout endpoint.
type CheckoutRequest struct {
	UserID         string `json:"userId" binding:"required"`
	UserName       string `json:"userName"`
	UserEmail      string `json:"userEmail"`
	CourseID       string `json:"courseId" binding:"required"`
	CourseTitle    string `json:"courseTitle"`
	CourseImage    string `json:"courseImage"`
	InstructorID   string `json:"instructorId"`
	InstructorName string `json:"instructorName"`
	Pricing        int64  `json:"pricing" binding:"required,gt=0"`
	Currency       string `json:"currency" binding:"required"`
}

// gatewayOrderPayload mirrors what the checkout widget needs to open.
type gatewayOrderPayload struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// CheckoutResponse represents the response from the checkout endpoint.
type CheckoutResponse struct {
	Success          bool `json:"success"`
	AlreadyPurchased bool `json:"alreadyPurchased,omitempty"`
	Data             *struct {
		OrderID      string              `json:"orderId"`
		GatewayOrder gatewayOrderPayload `json:"gatewayOrder"`
		Key          string              `json:"key"`
	} `json:"data,omitempty"`
}

// CreateCheckout handles POST /api/v1/purchases/checkout
// Runs the flow up to an open checkout session and returns the gateway
// parameters the page feeds into the payment widget.
func (h *Handler) CreateCheckout(c *gin.Context) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Error:   "Invalid request body: " + err.Error(),
			Code:    "VALIDATION_ERROR",
		})
		return
	}

	buyer := domain.BuyerProfile{
		UserID:    req.UserID,
		UserName:  req.UserName,
		UserEmail: req.UserEmail,
	}
	course := domain.CourseSnapshot{
		CourseID:       req.CourseID,
		Title:          req.CourseTitle,
		Image:          req.CourseImage,
		InstructorID:   req.InstructorID,
		InstructorName: req.InstructorName,
		Pricing:        req.Pricing,
		Currency:       req.Currency,
	}

	order, err := h.orchestrator.StartCheckout(c.Request.Context(), buyer, course)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyPurchased) {
			c.JSON(http.StatusOK, CheckoutResponse{Success: true, AlreadyPurchased: true})
			return
		}
		handleServiceError(c, err)
		return
	}

	resp := CheckoutResponse{Success: true}
	resp.Data = &struct {
		OrderID      string              `json:"orderId"`
		GatewayOrder gatewayOrderPayload `json:"gatewayOrder"`
		Key          string              `json:"key"`
	}{
		OrderID: order.OrderID,
		GatewayOrder: gatewayOrderPayload{
			ID:       order.GatewayOrderID,
			Amount:   order.Amount,
			Currency: order.Currency,
		},
		Key: order.GatewayKey,
	}
	c.JSON(http.StatusOK, resp)
}

// VerifyRequest represents the in-page callback from the checkout widget.
type VerifyRequest struct {
	UserID           string `json:"userId" binding:"required"`
	CourseID         string `json:"courseId" binding:"required"`
	OrderID          string `json:"orderId" binding:"required"`
	GatewayOrderID   string `json:"gatewayOrderId" binding:"required"`
	GatewayPaymentID string `json:"gatewayPaymentId" binding:"required"`
	Signature        string `json:"signature" binding:"required"`
}

// VerifyPayment handles POST /api/v1/purchases/verify
// Forwards the gateway proof to the backend and reports the verdict.
func (h *Handler) VerifyPayment(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Error:   "Invalid request body: " + err.Error(),
			Code:    "VALIDATION_ERROR",
		})
		return
	}

	cb := domain.GatewayCallback{
		GatewayOrderID:   req.GatewayOrderID,
		GatewayPaymentID: req.GatewayPaymentID,
		Signature:        req.Signature,
	}

	result, err := h.orchestrator.CompleteCheckout(c.Request.Context(), req.UserID, req.CourseID, req.OrderID, cb)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusPaymentRequired
	}
	c.JSON(status, gin.H{"success": result.Success, "message": result.Message})
}

// DismissRequest represents the widget's ondismiss notification.
type DismissRequest struct {
	UserID   string `json:"userId" binding:"required"`
	CourseID string `json:"courseId" binding:"required"`
	OrderID  string `json:"orderId" binding:"required"`
	Reason   string `json:"reason"`
	Failed   bool   `json:"failed"`
}

// DismissCheckout handles POST /api/v1/purchases/dismiss
// The widget reports the user closed it, or that the payment failed in-page.
func (h *Handler) DismissCheckout(c *gin.Context) {
	var req DismissRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Error:   "Invalid request body: " + err.Error(),
			Code:    "VALIDATION_ERROR",
		})
		return
	}

	var err error
	if req.Failed {
		err = h.orchestrator.FailCheckout(req.UserID, req.CourseID, req.OrderID, req.Reason)
	} else {
		err = h.orchestrator.DismissCheckout(req.UserID, req.CourseID, req.OrderID)
	}
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// FlowState handles GET /api/v1/purchases/state
// Lets pages poll where a purchase attempt stands.
func (h *Handler) FlowState(c *gin.Context) {
	userID := c.Query("userId")
	courseID := c.Query("courseId")
	if userID == "" || courseID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Error:   "userId and courseId are required",
			Code:    "VALIDATION_ERROR",
		})
		return
	}

	state, message := h.orchestrator.StateOf(userID, courseID)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"state":   string(state),
		"message": message,
	})
}

// PaymentReturn handles GET /payment-return
// The redirect re-entry point: the gateway sent the user back here instead
// of resolving in-page.
func (h *Handler) PaymentReturn(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Error:   "userId is required",
			Code:    "VALIDATION_ERROR",
		})
		return
	}
	courseID := c.Query("courseId")

	report, err := h.reconciler.Reconcile(c.Request.Context(), userID, courseID, c.Request.URL.Query())
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   report.Outcome == purchase.OutcomePurchased,
		"outcome":   string(report.Outcome),
		"message":   report.Message,
		"purchased": report.Purchased,
	})
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "learnhub-purchases",
	})
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(c *gin.Context, err error) {
	statusCode := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidOrder):
		statusCode = http.StatusBadRequest
	case errors.Is(err, domain.ErrOrderSuperseded):
		statusCode = http.StatusConflict
	case errors.Is(err, domain.ErrGatewayUnavailable):
		statusCode = http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrNetwork), errors.Is(err, domain.ErrBackend):
		statusCode = http.StatusBadGateway
	case errors.Is(err, domain.ErrVerificationFailed):
		statusCode = http.StatusPaymentRequired
	case errors.Is(err, domain.ErrIndeterminate):
		statusCode = http.StatusAccepted
	}

	var purchaseErr *domain.PurchaseError
	if errors.As(err, &purchaseErr) {
		c.JSON(statusCode, ErrorResponse{
			Success: false,
			Error:   purchaseErr.Message,
			Code:    purchaseErr.Code,
		})
		return
	}

	c.JSON(statusCode, ErrorResponse{
		Success: false,
		Error:   err.Error(),
		Code:    "INTERNAL_ERROR",
	})
}
