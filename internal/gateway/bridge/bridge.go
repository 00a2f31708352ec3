// Package bridge talks to a remote pos-bridge-service over HTTP. The
// typical deployment runs the bridge next to the terminal hardware and
// this client inside the kiosk backend.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	goeen_log "github.com/eencloud/goeen/log"

	"github.com/saweedkh/kiosk-backend-sub000/internal/config"
	"github.com/saweedkh/kiosk-backend-sub000/internal/core"
	"github.com/saweedkh/kiosk-backend-sub000/internal/gateway"
)

func init() {
	gateway.Register("bridge", func(cfg config.Config, logger *goeen_log.Logger) (gateway.PaymentGateway, error) {
		return New(cfg, logger), nil
	})
}

// Gateway is the HTTP client side of the bridge pair.
type Gateway struct {
	cfg    config.Config
	base   string
	client *http.Client
	health *core.HealthMonitor
	logger *goeen_log.Logger
}

func New(cfg config.Config, logger *goeen_log.Logger) *Gateway {
	timeout := cfg.BridgeTimeout
	if timeout <= 0 {
		// Response wait plus margin for the bridge's own overhead.
		timeout = 130 * time.Second
	}
	return &Gateway{
		cfg:    cfg,
		base:   cfg.BridgeURL(),
		client: &http.Client{Timeout: timeout},
		health: core.NewHealthMonitor(5, 30*time.Second),
		logger: logger,
	}
}

func (g *Gateway) connectionError(err error) *gateway.ConnectionError {
	return &gateway.ConnectionError{
		Endpoint: g.base + "/health",
		Hint:     "Make sure the bridge service is running on the machine connected to the terminal",
		Err:      err,
	}
}

// healthResponse mirrors the bridge's /health body.
type healthResponse struct {
	Status         string `json:"status"`
	DLLAvailable   bool   `json:"dllAvailable"`
	POSInitialized bool   `json:"posInitialized"`
}

// paymentResponse mirrors the bridge's /payment body.
type paymentResponse struct {
	gateway.PaymentResult
	Error string `json:"error,omitempty"`
}

func (g *Gateway) post(ctx context.Context, path string, body, out interface{}) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.base+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		g.health.RecordFailure()
		return 0, g.connectionError(err)
	}
	defer func() { _ = resp.Body.Close() }()
	g.health.RecordSuccess()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return resp.StatusCode, &gateway.ProtocolError{Err: fmt.Errorf("bridge returned malformed JSON: %w", err)}
		}
	}
	return resp.StatusCode, nil
}

// InitiatePayment forwards the payment to the bridge and blocks for
// its full response wait. A bridge that recently failed health checks
// is not even tried; the caller gets a fast ConnectionError instead of
// a two minute hang.
func (g *Gateway) InitiatePayment(ctx context.Context, req gateway.PaymentRequest) (gateway.PaymentResult, error) {
	if !g.health.CanProceed() {
		g.logger.Warningf("Bridge circuit is %s, failing fast", g.health.GetCircuitState())
		err := g.connectionError(fmt.Errorf("circuit open after repeated failures"))
		return gateway.PaymentResult{Status: gateway.StatusFailed, Amount: req.Amount, Message: err.Error()}, err
	}

	var body paymentResponse
	status, err := g.post(ctx, "/payment", req, &body)
	if err != nil {
		return gateway.PaymentResult{Status: gateway.StatusFailed, Amount: req.Amount, Message: err.Error()}, err
	}

	result := body.PaymentResult
	result.Amount = req.Amount
	if status == http.StatusOK && result.Success {
		return result, nil
	}

	msg := body.Error
	if msg == "" {
		msg = result.Message
	}
	if msg == "" {
		msg = fmt.Sprintf("bridge returned status %d", status)
	}
	if result.Status == "" {
		result.Status = gateway.StatusFailed
	}
	result.Message = msg

	switch result.Status {
	case gateway.StatusCancelled:
		return result, &gateway.UserCancelledError{}
	default:
		if result.ResponseCode != "" {
			return result, &gateway.DeviceDeclinedError{Code: result.ResponseCode, Message: msg}
		}
		return result, fmt.Errorf("bridge payment failed: %s", msg)
	}
}

// VerifyPayment and GetPaymentStatus have no bridge endpoint; the
// bridge journals outcomes on its side. Callers keep their own journal
// through the payment service.
func (g *Gateway) VerifyPayment(ctx context.Context, transactionID string) (gateway.PaymentResult, error) {
	return gateway.PaymentResult{}, fmt.Errorf("bridge gateway cannot verify %q remotely", transactionID)
}

func (g *Gateway) GetPaymentStatus(ctx context.Context, transactionID string) (gateway.Status, error) {
	return "", fmt.Errorf("bridge gateway cannot query status of %q remotely", transactionID)
}

func (g *Gateway) CancelPayment(ctx context.Context, transactionID string) error {
	return fmt.Errorf("bridge gateway does not support remote cancellation")
}

// HandleWebhook reports the payload as ignored; the bridge answers
// payments synchronously and never calls back.
func (g *Gateway) HandleWebhook(ctx context.Context, payload map[string]interface{}) (gateway.PaymentResult, error) {
	return gateway.IgnoredWebhook()
}

// TestConnection probes /health and then /test-connection, so a
// reachable bridge with an unreachable terminal still fails.
func (g *Gateway) TestConnection(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.base+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		g.health.RecordFailure()
		return g.connectionError(err)
	}
	defer func() { _ = resp.Body.Close() }()
	g.health.RecordSuccess()

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return &gateway.ProtocolError{Err: fmt.Errorf("bridge /health returned malformed JSON: %w", err)}
	}
	if resp.StatusCode != http.StatusOK || health.Status != "ok" {
		return g.connectionError(fmt.Errorf("bridge unhealthy (status %q)", health.Status))
	}

	var conn struct {
		Success   bool   `json:"success"`
		Connected bool   `json:"connected"`
		Error     string `json:"error,omitempty"`
	}
	status, err := g.post(ctx, "/test-connection", nil, &conn)
	if err != nil {
		return err
	}
	if status != http.StatusOK || !conn.Connected {
		msg := conn.Error
		if msg == "" {
			msg = fmt.Sprintf("status %d", status)
		}
		return g.connectionError(fmt.Errorf("terminal unreachable behind bridge: %s", msg))
	}
	return nil
}

func (g *Gateway) Close() error {
	g.client.CloseIdleConnections()
	return nil
}

// Health exposes the circuit state for the metrics endpoint.
func (g *Gateway) Health() *core.HealthMonitor { return g.health }
