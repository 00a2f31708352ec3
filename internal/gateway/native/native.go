// Package native drives the terminal through the vendor's shared
// library instead of a raw socket. The library is Windows only; when
// it cannot be loaded the constructor hands back the direct TCP
// strategy so a kiosk never boots without a working gateway.
package native

import (
	"context"
	"fmt"
	"sync"

	goeen_log "github.com/eencloud/goeen/log"

	"github.com/saweedkh/kiosk-backend-sub000/internal/config"
	"github.com/saweedkh/kiosk-backend-sub000/internal/gateway"
	"github.com/saweedkh/kiosk-backend-sub000/internal/gateway/direct"
	"github.com/saweedkh/kiosk-backend-sub000/internal/protocol"
)

func init() {
	gateway.Register("native", New)
}

// vendorSession is one loaded library instance bound to a terminal.
type vendorSession interface {
	Send(request string) error
	// Response returns whatever the library has accumulated so far,
	// empty while the cardholder is still interacting.
	Response() (string, error)
	Close() error
}

// New loads the vendor library. Any load or init failure downgrades to
// the direct strategy; the downgrade is logged once, here.
func New(cfg config.Config, logger *goeen_log.Logger) (gateway.PaymentGateway, error) {
	session, err := newVendorSession(cfg)
	if err != nil {
		logger.Warningf("Vendor library unavailable (%v), falling back to direct TCP", err)
		return direct.New(cfg, logger)
	}
	logger.Infof("Vendor library loaded from %s", cfg.VendorLibraryPath)
	return &Gateway{
		cfg:     cfg,
		session: session,
		widths:  protocol.DefaultWidths(),
		waiter:  gateway.NewWaiter(cfg.ResponseWait, logger),
		logger:  logger,
		results: make(map[string]gateway.PaymentResult),
	}, nil
}

// Gateway wraps a live vendor session.
type Gateway struct {
	cfg     config.Config
	session vendorSession
	widths  protocol.Widths
	waiter  *gateway.Waiter
	logger  *goeen_log.Logger

	// One card interaction at a time, same as the wire.
	mu sync.Mutex

	resultsMu sync.RWMutex
	results   map[string]gateway.PaymentResult
}

// sessionSource adapts the vendor polling API for the waiter.
type sessionSource struct {
	session vendorSession
	widths  protocol.Widths
	lastErr string
	buf     string
}

func (s *sessionSource) Poll() (gateway.Snapshot, error) {
	raw, err := s.session.Response()
	if err != nil {
		s.lastErr = err.Error()
	} else if raw != "" {
		s.buf = raw
	}

	snap := gateway.Snapshot{
		Buffer:       s.buf,
		ErrorMessage: s.lastErr,
		Alive:        true,
	}
	if resp := protocol.Decode(s.buf, s.widths); resp.Parsed {
		snap.ResponseCode = resp.Code
		snap.ReferenceNumber = resp.ReferenceNumber
	}
	return snap, nil
}

func (g *Gateway) InitiatePayment(ctx context.Context, req gateway.PaymentRequest) (gateway.PaymentResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	wire, err := protocol.Encode(protocol.Request{
		Amount:       req.Amount,
		TerminalID:   g.cfg.TerminalID,
		MerchantID:   g.cfg.MerchantID,
		Order:        req.Order,
		CustomerName: req.CustomerName,
		PaymentID:    req.PaymentID,
		BillID:       req.BillID,
	}, g.widths)
	if err != nil {
		return gateway.PaymentResult{Status: gateway.StatusFailed, Amount: req.Amount, Message: err.Error()},
			&gateway.ProtocolError{Err: err}
	}

	if err := g.session.Send(string(wire)); err != nil {
		cerr := &gateway.ConnectionError{Endpoint: g.cfg.TerminalAddr(), Hint: "vendor library rejected the request", Err: err}
		return gateway.PaymentResult{Status: gateway.StatusFailed, Amount: req.Amount, Message: cerr.Error(), RawRequest: string(wire)}, cerr
	}
	g.logger.Infof("Sent payment request for amount %d via vendor library", req.Amount)

	src := &sessionSource{session: g.session, widths: g.widths}
	raw, err := g.waiter.Wait(ctx, src, "")
	if err != nil {
		return gateway.PaymentResult{Status: gateway.StatusFailed, Amount: req.Amount, Message: err.Error(), Raw: src.buf, RawRequest: string(wire)}, err
	}

	result, payErr := gateway.ResultFromResponse(protocol.Decode(raw, g.widths), req.Amount)
	result.RawRequest = string(wire)
	g.resultsMu.Lock()
	g.results[result.TransactionID] = result
	g.resultsMu.Unlock()
	return result, payErr
}

func (g *Gateway) VerifyPayment(ctx context.Context, transactionID string) (gateway.PaymentResult, error) {
	g.resultsMu.RLock()
	defer g.resultsMu.RUnlock()
	result, ok := g.results[transactionID]
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

func (g *Gateway) CancelPayment(ctx context.Context, transactionID string) error {
	return fmt.Errorf("vendor library does not support remote cancellation")
}

// HandleWebhook reports the payload as ignored; the library delivers
// outcomes through its own polling call, never by callback.
func (g *Gateway) HandleWebhook(ctx context.Context, payload map[string]interface{}) (gateway.PaymentResult, error) {
	return gateway.IgnoredWebhook()
}

// HardwareState reports a loaded library with a live session for
// health checks.
func (g *Gateway) HardwareState() gateway.HardwareState {
	return gateway.HardwareState{VendorLibraryLoaded: true, SessionReady: g.session != nil}
}

// TestConnection asks the library for its current state. A session
// that errors or reports a load failure counts as unreachable.
func (g *Gateway) TestConnection(ctx context.Context) error {
	if _, err := g.session.Response(); err != nil {
		return &gateway.ConnectionError{Endpoint: g.cfg.TerminalAddr(), Hint: "vendor session unhealthy", Err: err}
	}
	return nil
}

func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.session.Close()
}
