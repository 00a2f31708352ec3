package native

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/eencloud/goeen/log"

	"github.com/saweedkh/kiosk-backend-sub000/internal/config"
	"github.com/saweedkh/kiosk-backend-sub000/internal/gateway"
	"github.com/saweedkh/kiosk-backend-sub000/internal/gateway/direct"
	"github.com/saweedkh/kiosk-backend-sub000/internal/protocol"
)

func testLogger() *log.Logger {
	customFormat := "{{eenTimeStamp .Now}}[{{.Level}}]: {{.Message}}"
	customContext := log.NewContext(os.Stderr, customFormat, log.LevelError)
	return customContext.GetLogger("test", log.LevelError)
}

func TestNewFallsBackWithoutLibrary(t *testing.T) {
	cfg := config.Config{
		GatewayName:  "native",
		TerminalID:   "12345678",
		MerchantID:   "000000123456789",
		TerminalHost: "127.0.0.1",
		TerminalPort: 1362,
	}
	g, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New failed instead of downgrading: %v", err)
	}
	if _, ok := g.(*direct.Gateway); !ok {
		t.Errorf("downgrade produced %T, want *direct.Gateway", g)
	}
}

// fakeSession scripts the vendor library's polling behavior.
type fakeSession struct {
	sent      []string
	responses []string
	i         int
	err       error
	closed    bool
}

func (f *fakeSession) Send(request string) error {
	f.sent = append(f.sent, request)
	return nil
}

func (f *fakeSession) Response() (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.i < len(f.responses) {
		r := f.responses[f.i]
		f.i++
		return r, nil
	}
	if len(f.responses) == 0 {
		return "", nil
	}
	return f.responses[len(f.responses)-1], nil
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

func newNativeWithSession(session vendorSession) *Gateway {
	g := &Gateway{
		cfg: config.Config{
			TerminalID:   "12345678",
			MerchantID:   "000000123456789",
			TerminalHost: "127.0.0.1",
			TerminalPort: 1362,
		},
		session: session,
		widths:  protocol.DefaultWidths(),
		waiter:  gateway.NewWaiter(2*time.Second, testLogger()),
		logger:  testLogger(),
		results: make(map[string]gateway.PaymentResult),
	}
	g.waiter.Interval = 10 * time.Millisecond
	return g
}

func TestNativePaymentApproved(t *testing.T) {
	session := &fakeSession{responses: []string{
		"", // cardholder still interacting
		"Intek.PcPosLibrary.Response",
		"RS013SR999888RN555444333222",
	}}
	g := newNativeWithSession(session)

	result, err := g.InitiatePayment(context.Background(), gateway.PaymentRequest{Amount: 75000})
	if err != nil {
		t.Fatalf("InitiatePayment failed: %v", err)
	}
	if !result.Success || result.TransactionID != "999888" {
		t.Errorf("result = %+v", result)
	}
	if len(session.sent) != 1 {
		t.Fatalf("library saw %d requests, want 1", len(session.sent))
	}

	status, err := g.GetPaymentStatus(context.Background(), result.TransactionID)
	if err != nil || status != gateway.StatusSuccess {
		t.Errorf("GetPaymentStatus = %v, %v", status, err)
	}
}

func TestNativePaymentLibraryError(t *testing.T) {
	session := &fakeSession{err: errors.New("device handle lost")}
	g := newNativeWithSession(session)

	_, err := g.InitiatePayment(context.Background(), gateway.PaymentRequest{Amount: 100})
	var perr *gateway.ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want ProtocolError", err)
	}
}

func TestNativeClose(t *testing.T) {
	session := &fakeSession{}
	g := newNativeWithSession(session)
	if err := g.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !session.closed {
		t.Error("session not closed")
	}
}
