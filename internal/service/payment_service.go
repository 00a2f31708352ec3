// Package service orchestrates payments: it owns the active gateway,
// journals every attempt and writes the audit trail. HTTP handlers and
// CLI commands talk to this layer, never to a strategy directly.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/eencloud/goeen/log"

	"github.com/saweedkh/kiosk-backend-sub000/internal/config"
	"github.com/saweedkh/kiosk-backend-sub000/internal/core"
	"github.com/saweedkh/kiosk-backend-sub000/internal/gateway"
)

type PaymentService struct {
	logger  *log.Logger
	events  *core.EventLogger
	store   *core.TransactionStore
	audit   *core.AuditLogger
	gateway gateway.PaymentGateway
	name    string
}

// NewPaymentService builds the configured gateway strategy and wires
// the journal and audit trail around it. events, store and audit may
// be nil when a caller wants a bare gateway (the test CLI does).
func NewPaymentService(cfg config.Config, logger *log.Logger, events *core.EventLogger, store *core.TransactionStore, audit *core.AuditLogger) (*PaymentService, error) {
	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	if events != nil && cfg.GatewayName == "native" {
		// A downgraded native gateway is a direct one underneath; it
		// reports no vendor library.
		if hr, ok := gw.(gateway.HardwareReporter); !ok || !hr.HardwareState().VendorLibraryLoaded {
			events.LogGatewayDowngrade("native", "direct", "vendor library unavailable")
		}
	}
	return &PaymentService{
		logger:  logger,
		events:  events,
		store:   store,
		audit:   audit,
		gateway: gw,
		name:    cfg.GatewayName,
	}, nil
}

// GatewayName is the strategy that was actually configured. A native
// downgrade still reports "native"; the downgrade itself is in the
// logs.
func (ps *PaymentService) GatewayName() string { return ps.name }

// Charge runs one payment end to end: journal a pending record, drive
// the gateway, then update the record with the outcome. The pending
// record survives a crash mid-payment, so an operator can see that an
// attempt started even when no outcome was recorded.
func (ps *PaymentService) Charge(ctx context.Context, req gateway.PaymentRequest) (gateway.PaymentResult, error) {
	start := time.Now()
	pendingID := gateway.NewTransactionID(req.Amount)

	if ps.store != nil {
		if err := ps.store.Put(core.TransactionRecord{
			TransactionID: pendingID,
			Amount:        req.Amount,
			Status:        string(gateway.StatusPending),
			Order:         req.Order,
			Gateway:       ps.name,
			CreatedAt:     start,
		}); err != nil {
			ps.logger.Warningf("Failed to journal pending payment: %v", err)
		}
	}
	if ps.events != nil {
		ps.events.LogPaymentInitiated(pendingID, req.Amount, ps.name)
	}

	result, err := ps.gateway.InitiatePayment(ctx, req)

	// The device may have assigned its own serial; keep the journal
	// under the ID the caller will query with.
	if result.TransactionID == "" {
		result.TransactionID = pendingID
	}
	ps.record(pendingID, req, result, err, time.Since(start))
	return result, err
}

func (ps *PaymentService) record(pendingID string, req gateway.PaymentRequest, result gateway.PaymentResult, err error, elapsed time.Duration) {
	status := result.Status
	if status == "" {
		status = gateway.StatusFailed
	}

	if ps.store != nil {
		rec := core.TransactionRecord{
			TransactionID:   result.TransactionID,
			ReferenceNumber: result.ReferenceNumber,
			Amount:          req.Amount,
			Status:          string(status),
			ResponseCode:    result.ResponseCode,
			MaskedPAN:       result.MaskedPAN,
			Order:           req.Order,
			Gateway:         ps.name,
			Message:         result.Message,
		}
		if perr := ps.store.Put(rec); perr != nil {
			ps.logger.Warningf("Failed to journal payment outcome: %v", perr)
		}
		if result.TransactionID != pendingID {
			// The pending row got superseded by the device serial.
			if uerr := ps.store.UpdateStatus(pendingID, string(status), "superseded by "+result.TransactionID); uerr != nil && !errors.Is(uerr, core.ErrTransactionNotFound) {
				ps.logger.Warningf("Failed to close pending record: %v", uerr)
			}
		}
	}

	if ps.audit != nil {
		outcome := string(status)
		if aerr := ps.audit.LogExchange(ps.name, result.TransactionID, result.RawRequest, result.Raw, outcome); aerr != nil {
			ps.logger.Warningf("Failed to write audit entry: %v", aerr)
		}
	}

	if ps.events == nil {
		return
	}
	if result.RawRequest != "" || result.Raw != "" {
		ps.events.LogTerminalExchange(result.TransactionID, result.RawRequest, result.Raw)
	}
	switch {
	case err == nil:
		ps.events.LogPaymentCompleted(result.TransactionID, result.ReferenceNumber, req.Amount, elapsed)
	case status == gateway.StatusCancelled:
		ps.events.LogPaymentCancelled(result.TransactionID, elapsed)
	default:
		ps.events.LogPaymentFailed(result.TransactionID, result.ResponseCode, result.Message, elapsed)
	}
}

// Status answers from the journal first and falls back to the gateway
// for strategies that track their own state.
func (ps *PaymentService) Status(ctx context.Context, transactionID string) (gateway.Status, error) {
	if ps.store != nil {
		rec, err := ps.store.Get(transactionID)
		if err == nil {
			return gateway.Status(rec.Status), nil
		}
		if !errors.Is(err, core.ErrTransactionNotFound) {
			return "", err
		}
	}
	return ps.gateway.GetPaymentStatus(ctx, transactionID)
}

// Verify asks the gateway for its view of a payment.
func (ps *PaymentService) Verify(ctx context.Context, transactionID string) (gateway.PaymentResult, error) {
	return ps.gateway.VerifyPayment(ctx, transactionID)
}

// Cancel forwards to the gateway and journals the new state when it
// succeeds.
func (ps *PaymentService) Cancel(ctx context.Context, transactionID string) error {
	if err := ps.gateway.CancelPayment(ctx, transactionID); err != nil {
		return err
	}
	if ps.store != nil {
		if err := ps.store.UpdateStatus(transactionID, string(gateway.StatusCancelled), "cancelled"); err != nil && !errors.Is(err, core.ErrTransactionNotFound) {
			ps.logger.Warningf("Failed to journal cancellation: %v", err)
		}
	}
	return nil
}

// Recent lists the newest journal entries for the metrics endpoint.
func (ps *PaymentService) Recent(limit int) ([]core.TransactionRecord, error) {
	if ps.store == nil {
		return nil, nil
	}
	return ps.store.List(limit)
}

// HardwareState reports the state of the hardware path behind the
// active gateway for the /health endpoint. Strategies with no real
// hardware (mock, bridge client) report a ready session and no vendor
// library.
func (ps *PaymentService) HardwareState() gateway.HardwareState {
	if hr, ok := ps.gateway.(gateway.HardwareReporter); ok {
		return hr.HardwareState()
	}
	return gateway.HardwareState{SessionReady: true}
}

// NoteHealthCheck records a health probe in the event log.
func (ps *PaymentService) NoteHealthCheck(healthy bool) {
	if ps.events != nil {
		ps.events.LogHealthCheck(ps.name, healthy, nil)
	}
}

func (ps *PaymentService) TestConnection(ctx context.Context) error {
	err := ps.gateway.TestConnection(ctx)
	if ps.events != nil {
		ps.events.LogConnectionAttempt(ps.name, 1, err)
	}
	return err
}

func (ps *PaymentService) Close() error {
	return ps.gateway.Close()
}
