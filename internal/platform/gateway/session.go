// Package gateway wraps the external hosted checkout widget.
//
// The widget runs in the user's browser; from the service's viewpoint a
// checkout session is non-blocking and eventually produces exactly one
// terminal event (captured, failed or dismissed), delivered back over the
// in-page callback or dismiss endpoints. A session whose user navigates
// away entirely produces no event at all; that path is handled by return
// reconciliation, not here.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/learnhub/learnhub-purchases/internal/domain"
)

// EventKind classifies a session's terminal event.
type EventKind string

const (
	EventCaptured  EventKind = "captured"
	EventFailed    EventKind = "failed"
	EventDismissed EventKind = "dismissed"
)

// Event is the single terminal event of a checkout session.
type Event struct {
	Kind     EventKind
	Callback domain.GatewayCallback // set when Kind == EventCaptured
	Reason   string                 // set when Kind == EventFailed
}

// Runtime reports whether the gateway's checkout runtime can be opened.
type Runtime interface {
	Check(ctx context.Context) error
}

// WidgetRuntime probes the gateway's hosted checkout script over HTTP.
type WidgetRuntime struct {
	checkoutURL string
	httpClient  *http.Client
}

// NewWidgetRuntime creates a runtime probe for the given checkout script URL.
func NewWidgetRuntime(checkoutURL string) *WidgetRuntime {
	return &WidgetRuntime{
		checkoutURL: checkoutURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Check verifies the checkout runtime is configured and reachable.
func (r *WidgetRuntime) Check(ctx context.Context) error {
	if r.checkoutURL == "" {
		return fmt.Errorf("checkout runtime URL not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, r.checkoutURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create probe request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("checkout runtime unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("checkout runtime returned status %d", resp.StatusCode)
	}
	return nil
}

// Session is one open checkout attempt. At most one terminal event is ever
// delivered; later deliveries are dropped.
type Session struct {
	order  domain.PendingOrder
	events chan Event
	once   sync.Once
}

// Order returns the pending order this session was opened for.
func (s *Session) Order() domain.PendingOrder {
	return s.order
}

// Events yields the session's single terminal event.
func (s *Session) Events() <-chan Event {
	return s.events
}

func (s *Session) deliver(ev Event) bool {
	delivered := false
	s.once.Do(func() {
		s.events <- ev
		delivered = true
	})
	return delivered
}

// Opener opens checkout sessions and routes terminal events back to them by
// gateway order ID.
type Opener struct {
	runtime Runtime
	logger  *zap.Logger

	mu   sync.Mutex
	open map[string]*Session
}

// NewOpener creates a session opener over the given runtime.
func NewOpener(runtime Runtime, logger *zap.Logger) *Opener {
	return &Opener{
		runtime: runtime,
		logger:  logger,
		open:    make(map[string]*Session),
	}
}

// Open starts a checkout session for a pending order. If the checkout
// runtime is unavailable it fails immediately with ErrGatewayUnavailable
// rather than opening a session that can never complete.
func (o *Opener) Open(ctx context.Context, order domain.PendingOrder) (*Session, error) {
	if err := o.runtime.Check(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}

	s := &Session{
		order:  order,
		events: make(chan Event, 1),
	}

	o.mu.Lock()
	o.open[order.GatewayOrderID] = s
	o.mu.Unlock()

	o.logger.Info("checkout session opened",
		zap.String("order_id", order.OrderID),
		zap.String("gateway_order_id", order.GatewayOrderID))

	return s, nil
}

// Deliver routes a terminal event to the session for the given gateway
// order. Returns false when no such session is open or the session already
// resolved.
func (o *Opener) Deliver(gatewayOrderID string, ev Event) bool {
	o.mu.Lock()
	s, ok := o.open[gatewayOrderID]
	if ok {
		delete(o.open, gatewayOrderID)
	}
	o.mu.Unlock()

	if !ok {
		o.logger.Debug("no open session for gateway order",
			zap.String("gateway_order_id", gatewayOrderID),
			zap.String("event", string(ev.Kind)))
		return false
	}
	return s.deliver(ev)
}

// Close deregisters a session without delivering an event, e.g. after a
// wait timeout or when a newer checkout supersedes it. A late event for a
// closed session is dropped.
func (o *Opener) Close(s *Session) {
	o.mu.Lock()
	if cur, ok := o.open[s.order.GatewayOrderID]; ok && cur == s {
		delete(o.open, s.order.GatewayOrderID)
	}
	o.mu.Unlock()
}
