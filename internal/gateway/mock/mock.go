// Package mock is the development strategy: no hardware, a realistic
// delay, and a configurable decline rate for exercising failure paths.
package mock

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	goeen_log "github.com/eencloud/goeen/log"
	"github.com/google/uuid"

	"github.com/saweedkh/kiosk-backend-sub000/internal/config"
	"github.com/saweedkh/kiosk-backend-sub000/internal/gateway"
	"github.com/saweedkh/kiosk-backend-sub000/internal/protocol"
)

func init() {
	gateway.Register("mock", func(cfg config.Config, logger *goeen_log.Logger) (gateway.PaymentGateway, error) {
		return New(cfg, logger), nil
	})
}

// Gateway simulates a card terminal in memory.
type Gateway struct {
	cfg    config.Config
	logger *goeen_log.Logger

	mu           sync.RWMutex
	transactions map[string]gateway.PaymentResult

	randMu sync.Mutex
	rand   *rand.Rand
}

func New(cfg config.Config, logger *goeen_log.Logger) *Gateway {
	return &Gateway{
		cfg:          cfg,
		logger:       logger,
		transactions: make(map[string]gateway.PaymentResult),
		rand:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// delay returns the configured base delay with a half second of
// jitter either way, floored at one second so the kiosk UI's
// "waiting for card" state is always visible.
func (g *Gateway) delay() time.Duration {
	g.randMu.Lock()
	jitter := time.Duration(g.rand.Int63n(int64(time.Second))) - 500*time.Millisecond
	g.randMu.Unlock()

	d := g.cfg.MockDelay + jitter
	if d < time.Second {
		d = time.Second
	}
	return d
}

func (g *Gateway) roll() bool {
	g.randMu.Lock()
	defer g.randMu.Unlock()
	return g.rand.Intn(100) < g.cfg.MockSuccessRate
}

func (g *Gateway) InitiatePayment(ctx context.Context, req gateway.PaymentRequest) (gateway.PaymentResult, error) {
	if req.Amount <= 0 {
		return gateway.PaymentResult{Status: gateway.StatusFailed, Message: "amount must be positive"},
			&gateway.ProtocolError{Err: fmt.Errorf("amount %d is not positive", req.Amount)}
	}

	g.logger.Infof("Mock payment of %d started (simulated card interaction)", req.Amount)

	select {
	case <-ctx.Done():
		return gateway.PaymentResult{Status: gateway.StatusFailed, Message: "context cancelled"}, ctx.Err()
	case <-time.After(g.delay()):
	}

	transactionID := "MOCK-" + uuid.NewString()
	result := gateway.PaymentResult{
		TransactionID: transactionID,
		Amount:        req.Amount,
	}

	var payErr error
	if g.roll() {
		result.Success = true
		result.Status = gateway.StatusSuccess
		result.ResponseCode = "00"
		result.ReferenceNumber = fmt.Sprintf("%012d", time.Now().UnixNano()%1_000_000_000_000)
		result.Message = "payment approved"
	} else {
		result.Status = gateway.StatusFailed
		result.ResponseCode = "02"
		result.Message = protocol.ErrorMessage("02")
		payErr = &gateway.DeviceDeclinedError{Code: "02", Message: result.Message}
	}

	g.mu.Lock()
	g.transactions[transactionID] = result
	g.mu.Unlock()

	g.logger.Infof("Mock payment %s: %s", transactionID, result.Status)
	return result, payErr
}

func (g *Gateway) VerifyPayment(ctx context.Context, transactionID string) (gateway.PaymentResult, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	result, ok := g.transactions[transactionID]
	if !ok {
		return gateway.PaymentResult{}, fmt.Errorf("unknown transaction %q", transactionID)
	}
	return result, nil
}

func (g *Gateway) GetPaymentStatus(ctx context.Context, transactionID string) (gateway.Status, error) {
	result, err := g.VerifyPayment(ctx, transactionID)
	if err != nil {
		return "", err
	}
	return result.Status, nil
}

// CancelPayment flips an approved mock payment to cancelled, which
// the hardware strategies cannot do. Useful for UI flows.
func (g *Gateway) CancelPayment(ctx context.Context, transactionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	result, ok := g.transactions[transactionID]
	if !ok {
		return fmt.Errorf("unknown transaction %q", transactionID)
	}
	result.Status = gateway.StatusCancelled
	result.Success = false
	result.Message = "cancelled"
	g.transactions[transactionID] = result
	return nil
}

// HandleWebhook reports the payload as ignored, same as the hardware
// strategies.
func (g *Gateway) HandleWebhook(ctx context.Context, payload map[string]interface{}) (gateway.PaymentResult, error) {
	return gateway.IgnoredWebhook()
}

func (g *Gateway) TestConnection(ctx context.Context) error { return nil }

func (g *Gateway) Close() error { return nil }
