// Package api contains the HTTP handlers and routing for the purchase service.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter configures the Gin router with all routes and middleware.
func SetupRouter(handler *Handler, ginMode string) *gin.Engine {
	gin.SetMode(ginMode)

	router := gin.New()

	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(CORSMiddleware())
	router.Use(RequestIDMiddleware())

	// Health and metrics (no auth required)
	router.GET("/health", handler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		purchases := v1.Group("/purchases")
		{
			purchases.GET("/status", handler.PurchaseStatus)
			purchases.GET("/state", handler.FlowState)
			purchases.POST("/checkout", handler.CreateCheckout)
			purchases.POST("/verify", handler.VerifyPayment)
			purchases.POST("/dismiss", handler.DismissCheckout)
		}
	}

	// Redirect re-entry point. The gateway sends the user's browser here,
	// so it lives outside the versioned API group.
	router.GET("/payment-return", handler.PaymentReturn)

	return router
}
