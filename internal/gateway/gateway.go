// Package gateway defines the payment gateway contract, the strategy
// registry and the shared response waiting loop. Concrete strategies
// live in subpackages and register themselves at init time.
package gateway

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/eencloud/goeen/log"
	"github.com/google/uuid"

	"github.com/saweedkh/kiosk-backend-sub000/internal/config"
)

// PaymentRequest is what the caller wants charged. Amount is in the
// currency's minor unit.
type PaymentRequest struct {
	Amount       int64  `json:"amount" validate:"required,gt=0"`
	Order        string `json:"order,omitempty" validate:"omitempty,max=64"`
	CustomerName string `json:"customerName,omitempty" validate:"omitempty,max=100"`
	PaymentID    string `json:"paymentId,omitempty"`
	BillID       string `json:"billId,omitempty"`
}

// Status is the lifecycle state of one payment attempt.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// PaymentResult is the uniform outcome every strategy produces.
// RULE: Success is true exactly when Status is StatusSuccess.
type PaymentResult struct {
	Success         bool   `json:"success"`
	Status          Status `json:"status"`
	TransactionID   string `json:"transactionId,omitempty"`
	ReferenceNumber string `json:"referenceNumber,omitempty"`
	ResponseCode    string `json:"responseCode,omitempty"`
	MaskedPAN       string `json:"maskedPan,omitempty"`
	Amount          int64  `json:"amount"`
	Message         string `json:"responseMessage,omitempty"`
	Raw             string `json:"rawResponse,omitempty"`
	// RawRequest is the encoded wire request, kept for the audit
	// trail. Never serialized.
	RawRequest string `json:"-"`
}

// PaymentGateway is the strategy contract. InitiatePayment blocks for
// the full card interaction; everything else is bookkeeping.
type PaymentGateway interface {
	InitiatePayment(ctx context.Context, req PaymentRequest) (PaymentResult, error)
	VerifyPayment(ctx context.Context, transactionID string) (PaymentResult, error)
	GetPaymentStatus(ctx context.Context, transactionID string) (Status, error)
	CancelPayment(ctx context.Context, transactionID string) error
	HandleWebhook(ctx context.Context, payload map[string]interface{}) (PaymentResult, error)
	TestConnection(ctx context.Context) error
	Close() error
}

// IgnoredWebhook is the uniform HandleWebhook reply: the terminal
// reports outcomes inline on the wire, so webhook payloads carry
// nothing actionable.
func IgnoredWebhook() (PaymentResult, error) {
	return PaymentResult{
		Success: false,
		Status:  StatusFailed,
		Message: "webhooks are not used by card terminal payments",
	}, nil
}

// HardwareState describes the hardware path behind a gateway for
// health reporting.
type HardwareState struct {
	VendorLibraryLoaded bool
	SessionReady        bool
}

// HardwareReporter is implemented by strategies that sit in front of
// real hardware.
type HardwareReporter interface {
	HardwareState() HardwareState
}

// NewFunc builds a strategy from configuration.
type NewFunc func(cfg config.Config, logger *log.Logger) (PaymentGateway, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]NewFunc{}
)

// Register adds a strategy constructor under name. Strategies call it
// from init; a duplicate name is a programming error.
func Register(name string, fn NewFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic("gateway: Register called twice for " + name)
	}
	registry[name] = fn
}

// New builds the strategy named by cfg.GatewayName.
func New(cfg config.Config, logger *log.Logger) (PaymentGateway, error) {
	registryMu.RLock()
	fn, ok := registry[cfg.GatewayName]
	registryMu.RUnlock()
	if !ok {
		return nil, &ConfigurationError{
			Reason: fmt.Sprintf("unknown gateway %q (registered: %v)", cfg.GatewayName, Names()),
		}
	}
	return fn(cfg, logger)
}

// Names lists the registered strategies, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewTransactionID mints a local transaction ID for responses that
// carried no device serial. The uuid suffix keeps two payments within
// the same second distinct.
func NewTransactionID(amount int64) string {
	return fmt.Sprintf("POS-%d-%d-%s", time.Now().Unix(), amount, uuid.NewString()[:8])
}
