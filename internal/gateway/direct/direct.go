// Package direct speaks the terminal's TCP wire format with no vendor
// library in between. It is the canonical strategy: one socket, one
// payment at a time, a single request write and a polled wait for the
// reply.
package direct

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	goeen_log "github.com/eencloud/goeen/log"

	"github.com/saweedkh/kiosk-backend-sub000/internal/config"
	"github.com/saweedkh/kiosk-backend-sub000/internal/gateway"
	"github.com/saweedkh/kiosk-backend-sub000/internal/protocol"
)

func init() {
	gateway.Register("direct", func(cfg config.Config, logger *goeen_log.Logger) (gateway.PaymentGateway, error) {
		return New(cfg, logger)
	})
}

// Gateway drives the physical terminal over TCP.
type Gateway struct {
	cfg    config.Config
	widths protocol.Widths
	waiter *gateway.Waiter
	logger *goeen_log.Logger

	// RULE: the terminal handles one card interaction at a time.
	// The mutex serializes payments; concurrent callers queue.
	mu   sync.Mutex
	conn net.Conn

	resultsMu sync.RWMutex
	results   map[string]gateway.PaymentResult
}

func New(cfg config.Config, logger *goeen_log.Logger) (*Gateway, error) {
	if cfg.TerminalID == "" || cfg.MerchantID == "" {
		return nil, &gateway.ConfigurationError{Reason: "direct gateway needs terminal and merchant IDs"}
	}
	return &Gateway{
		cfg:     cfg,
		widths:  protocol.DefaultWidths(),
		waiter:  gateway.NewWaiter(cfg.ResponseWait, logger),
		logger:  logger,
		results: make(map[string]gateway.PaymentResult),
	}, nil
}

func (g *Gateway) dial(ctx context.Context) (net.Conn, error) {
	d := net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", g.cfg.TerminalAddr())
	if err != nil {
		return nil, &gateway.ConnectionError{
			Endpoint: g.cfg.TerminalAddr(),
			Hint:     "check the terminal's power and network cable",
			Err:      err,
		}
	}
	return conn, nil
}

// connect reuses the existing socket when it still looks alive and
// dials a fresh one otherwise. Caller holds g.mu.
func (g *Gateway) connect(ctx context.Context) (net.Conn, error) {
	if g.conn != nil {
		if isAlive(g.conn) {
			return g.conn, nil
		}
		_ = g.conn.Close()
		g.conn = nil
		g.logger.Infof("Terminal connection went stale, reconnecting")
	}
	conn, err := g.dial(ctx)
	if err != nil {
		return nil, err
	}
	g.conn = conn
	g.logger.Infof("Connected to terminal at %s", g.cfg.TerminalAddr())
	return conn, nil
}

// isAlive probes the socket with a zero-ish deadline read. A timeout
// means the peer is quiet but present; EOF or a hard error means dead.
func isAlive(conn net.Conn) bool {
	_ = conn.SetReadDeadline(time.Now().Add(time.Millisecond))
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	one := make([]byte, 1)
	_, err := conn.Read(one)
	if err == nil {
		// Unexpected bytes between payments; the connection is up but
		// desynced, force a fresh one.
		return false
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

// connSource accumulates response bytes off the socket for the waiter.
type connSource struct {
	conn   net.Conn
	widths protocol.Widths
	buf    []byte
}

func (c *connSource) Poll() (gateway.Snapshot, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	chunk := make([]byte, 4096)
	n, err := c.conn.Read(chunk)
	if n > 0 {
		c.buf = append(c.buf, chunk[:n]...)
	}

	snap := gateway.Snapshot{Buffer: string(c.buf), Alive: true}
	if err != nil {
		var nerr net.Error
		switch {
		case errors.As(err, &nerr) && nerr.Timeout():
			// No bytes this tick.
		case len(c.buf) > 0:
			// Device closed after replying; deliver what arrived.
		default:
			snap.Alive = false
		}
	}

	if resp := protocol.Decode(string(c.buf), c.widths); resp.Parsed {
		snap.ResponseCode = resp.Code
		snap.ReferenceNumber = resp.ReferenceNumber
	}
	return snap, nil
}

// InitiatePayment runs one full card interaction: connect, write the
// request, wait for the reply, decode. Blocks for up to the configured
// response wait.
func (g *Gateway) InitiatePayment(ctx context.Context, req gateway.PaymentRequest) (gateway.PaymentResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	conn, err := g.connect(ctx)
	if err != nil {
		return gateway.PaymentResult{Success: false, Status: gateway.StatusFailed, Amount: req.Amount, Message: err.Error()}, err
	}

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
		return gateway.PaymentResult{Success: false, Status: gateway.StatusFailed, Amount: req.Amount, Message: err.Error()},
			&gateway.ProtocolError{Err: err}
	}

	// RULE: the request goes out in a single write. The device treats
	// the first segment as the whole message.
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if _, err := conn.Write(wire); err != nil {
		_ = conn.Close()
		g.conn = nil
		cerr := &gateway.ConnectionError{Endpoint: g.cfg.TerminalAddr(), Hint: "request write failed", Err: err}
		return gateway.PaymentResult{Success: false, Status: gateway.StatusFailed, Amount: req.Amount, Message: cerr.Error(), RawRequest: string(wire)}, cerr
	}
	g.logger.Infof("Sent payment request for amount %d, waiting for cardholder", req.Amount)

	src := &connSource{conn: conn, widths: g.widths}
	raw, err := g.waiter.Wait(ctx, src, "")
	if err != nil {
		// A dead or timed out session never carries over to the next
		// payment.
		_ = conn.Close()
		g.conn = nil
		return gateway.PaymentResult{Success: false, Status: gateway.StatusFailed, Amount: req.Amount, Message: err.Error(), Raw: string(src.buf), RawRequest: string(wire)}, err
	}

	result, payErr := gateway.ResultFromResponse(protocol.Decode(raw, g.widths), req.Amount)
	result.RawRequest = string(wire)
	g.remember(result)
	if payErr != nil {
		g.logger.Warningf("Payment %s: %s", result.Status, result.Message)
	} else {
		g.logger.Infof("Payment approved, transaction %s", result.TransactionID)
	}
	return result, payErr
}

func (g *Gateway) remember(result gateway.PaymentResult) {
	g.resultsMu.Lock()
	defer g.resultsMu.Unlock()
	g.results[result.TransactionID] = result
}

// VerifyPayment reports the recorded outcome for an ID. The terminal
// offers no reconciliation query, so only payments seen by this
// process can be verified.
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

// CancelPayment cannot reach into an in-flight card interaction; the
// cardholder cancels on the PIN pad. Voids of completed payments need
// the acquirer's portal.
func (g *Gateway) CancelPayment(ctx context.Context, transactionID string) error {
	return fmt.Errorf("terminal does not support remote cancellation; use the device keypad or the acquirer portal")
}

// HandleWebhook exists to satisfy the gateway contract. The terminal
// answers on the same socket the request went out on; nothing ever
// calls back.
func (g *Gateway) HandleWebhook(ctx context.Context, payload map[string]interface{}) (gateway.PaymentResult, error) {
	return gateway.IgnoredWebhook()
}

// HardwareState reports the terminal path for health checks. No
// vendor library sits in front of a direct socket.
func (g *Gateway) HardwareState() gateway.HardwareState {
	return gateway.HardwareState{VendorLibraryLoaded: false, SessionReady: true}
}

// TestConnection dials the terminal and drops the socket. No bytes
// are exchanged.
func (g *Gateway) TestConnection(ctx context.Context) error {
	conn, err := g.dial(ctx)
	if err != nil {
		return err
	}
	_ = conn.Close()
	return nil
}

func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn != nil {
		err := g.conn.Close()
		g.conn = nil
		return err
	}
	return nil
}
