package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	CheckoutAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "purchase_checkout_attempts_total",
			Help: "Number of checkout attempts started",
		},
	)

	PurchasesCaptured = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "purchase_captures_total",
			Help: "Number of purchases captured and finalized",
		},
	)

	CaptureFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "purchase_capture_failures_total",
			Help: "Number of capture attempts rejected by the backend",
		},
	)

	GatewayDismissals = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "purchase_gateway_dismissals_total",
			Help: "Number of checkouts dismissed by the user",
		},
	)

	GatewayTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "purchase_gateway_timeouts_total",
			Help: "Number of checkout sessions that timed out waiting for the gateway",
		},
	)

	VerificationTime = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "purchase_verification_seconds",
			Help: "Time taken to verify a payment against the backend",
		},
	)
)

func Register() {
	prometheus.MustRegister(
		CheckoutAttempts,
		PurchasesCaptured,
		CaptureFailures,
		GatewayDismissals,
		GatewayTimeouts,
		VerificationTime,
	)
}
