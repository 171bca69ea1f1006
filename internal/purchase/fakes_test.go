package purchase

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/learnhub/learnhub-purchases/internal/domain"
)

type fakeLedger struct {
	mu        sync.Mutex
	purchased map[string]bool
	err       error
	calls     int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{purchased: make(map[string]bool)}
}

func (l *fakeLedger) set(userID, courseID string, purchased bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.purchased[userID+"/"+courseID] = purchased
}

func (l *fakeLedger) CheckPurchased(_ context.Context, userID, courseID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return false, l.err
	}
	return l.purchased[userID+"/"+courseID], nil
}

type fakeOrderAPI struct {
	mu      sync.Mutex
	nextID  int
	err     error
	created []*domain.PendingOrder
}

func (a *fakeOrderAPI) CreateOrder(_ context.Context, buyer domain.BuyerProfile, course domain.CourseSnapshot) (*domain.PendingOrder, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	a.nextID++
	order := &domain.PendingOrder{
		OrderID:        fmt.Sprintf("order-%d", a.nextID),
		GatewayOrderID: fmt.Sprintf("gw-order-%d", a.nextID),
		GatewayKey:     "key-test",
		Amount:         course.Pricing,
		Currency:       course.Currency,
		CourseID:       course.CourseID,
		UserID:         buyer.UserID,
		Status:         domain.StatusInitiated,
	}
	a.created = append(a.created, order)
	return order, nil
}

type captureCall struct {
	orderID string
	cb      domain.GatewayCallback
}

type fakeCaptureAPI struct {
	mu     sync.Mutex
	result *domain.VerificationResult
	err    error
	calls  []captureCall
}

func (a *fakeCaptureAPI) Capture(_ context.Context, orderID string, cb domain.GatewayCallback) (*domain.VerificationResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, captureCall{orderID: orderID, cb: cb})
	if a.err != nil {
		return nil, a.err
	}
	if a.result != nil {
		res := *a.result
		return &res, nil
	}
	return &domain.VerificationResult{Success: true, Message: "captured"}, nil
}

func (a *fakeCaptureAPI) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []domain.PurchaseEvent
}

func (p *fakePublisher) PublishPurchaseEvent(_ context.Context, ev domain.PurchaseEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) byType(eventType string) []domain.PurchaseEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.PurchaseEvent
	for _, ev := range p.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

// stubRuntime satisfies gateway.Runtime.
type stubRuntime struct {
	err error
}

func (r stubRuntime) Check(context.Context) error {
	return r.err
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}
