package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/eencloud/goeen/log"

	"github.com/saweedkh/kiosk-backend-sub000/internal/protocol"
)

// ResponseSource is a live view onto an in flight card interaction.
// Poll returns the current snapshot; implementations refresh it from
// the socket or vendor library on each call.
type ResponseSource interface {
	Poll() (Snapshot, error)
}

// Snapshot is one observation of the hardware state.
type Snapshot struct {
	// ResponseCode is the device result code once one has arrived,
	// empty before that.
	ResponseCode string
	// ReferenceNumber is the current RRN the stack reports, valid or
	// not. The waiter applies its own validity filter.
	ReferenceNumber string
	// Buffer is the raw accumulated response text.
	Buffer string
	// ErrorMessage is a fatal error the stack surfaced, empty when
	// none.
	ErrorMessage string
	// Alive reports whether the transport under the interaction is
	// still up.
	Alive bool
}

// waitGuidance tells the operator what to check when the terminal
// never answered.
const waitGuidance = "Check that the terminal is powered on, the amount is shown on its display, " +
	"the card was swiped or inserted, the PIN was entered, and the transaction was not cancelled on the device."

// Waiter runs the cooperative polling loop that decides when a card
// interaction is over. One Waiter serves many payments.
type Waiter struct {
	Timeout  time.Duration
	Interval time.Duration
	Logger   *log.Logger
}

// NewWaiter builds a waiter with the standard one second tick.
func NewWaiter(timeout time.Duration, logger *log.Logger) *Waiter {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Waiter{Timeout: timeout, Interval: time.Second, Logger: logger}
}

// Wait polls src until a terminal condition fires and returns the raw
// buffer that should be decoded. Conditions in priority order: a
// response code arrived, the reference number changed to a valid
// value, the raw buffer grew past placeholder noise, the stack
// reported an error, the transport died. Anything else sleeps one
// tick.
func (w *Waiter) Wait(ctx context.Context, src ResponseSource, startRRN string) (string, error) {
	deadline := time.Now().Add(w.Timeout)
	lastRRN := startRRN

	ticks := 0
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		snap, err := src.Poll()
		if err != nil {
			return "", err
		}

		if code := strings.TrimSpace(snap.ResponseCode); code != "" && code != "None" {
			return snap.Buffer, nil
		}

		if rrn := strings.TrimSpace(snap.ReferenceNumber); protocol.IsValidValue(rrn) && rrn != lastRRN {
			return snap.Buffer, nil
		}

		if buf := strings.TrimSpace(snap.Buffer); len(buf) > 5 && !protocol.IsPlaceholder(buf) {
			return buf, nil
		}

		if snap.ErrorMessage != "" {
			return "", &ProtocolError{Raw: snap.Buffer, Err: fmt.Errorf("terminal reported: %s", snap.ErrorMessage)}
		}

		if !snap.Alive {
			return "", &ConnectionError{Endpoint: "terminal", Hint: "connection lost while waiting for response"}
		}

		ticks++
		if w.Logger != nil && ticks%10 == 0 {
			w.Logger.Infof("still waiting for terminal response (%ds elapsed)", ticks)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(w.Interval):
		}
	}

	return "", &TimeoutError{
		Waited:   w.Timeout.String(),
		Guidance: waitGuidance,
	}
}
