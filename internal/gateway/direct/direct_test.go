package direct

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/eencloud/goeen/log"

	"github.com/saweedkh/kiosk-backend-sub000/internal/config"
	"github.com/saweedkh/kiosk-backend-sub000/internal/gateway"
	"github.com/saweedkh/kiosk-backend-sub000/internal/possim"
)

func testLogger() *log.Logger {
	customFormat := "{{eenTimeStamp .Now}}[{{.Level}}]: {{.Message}}"
	customContext := log.NewContext(os.Stderr, customFormat, log.LevelError)
	return customContext.GetLogger("test", log.LevelError)
}

func newTestGateway(t *testing.T, sim *possim.Simulator) *Gateway {
	t.Helper()
	host, port, ok := strings.Cut(sim.Addr(), ":")
	if !ok {
		t.Fatalf("bad simulator addr %q", sim.Addr())
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		t.Fatalf("bad simulator port %q", port)
	}
	cfg := config.Config{
		GatewayName:  "direct",
		TerminalID:   "12345678",
		MerchantID:   "000000123456789",
		TerminalHost: host,
		TerminalPort: portNum,
		ResponseWait: 5 * time.Second,
	}
	g, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	g.waiter.Interval = 50 * time.Millisecond
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func startSim(t *testing.T) *possim.Simulator {
	t.Helper()
	sim, err := possim.Start("127.0.0.1:0", testLogger())
	if err != nil {
		t.Fatalf("simulator start failed: %v", err)
	}
	t.Cleanup(sim.Stop)
	return sim
}

func TestInitiatePaymentApproved(t *testing.T) {
	sim := startSim(t)
	sim.SetBehavior(possim.Behavior{Response: "RS013SR555666RN123456789012"})
	g := newTestGateway(t, sim)

	result, err := g.InitiatePayment(context.Background(), gateway.PaymentRequest{Amount: 150000, Order: "ORD-1"})
	if err != nil {
		t.Fatalf("InitiatePayment failed: %v", err)
	}
	if !result.Success || result.Status != gateway.StatusSuccess {
		t.Errorf("result = %+v", result)
	}
	if result.TransactionID != "555666" || result.ReferenceNumber != "123456789012" {
		t.Errorf("ids = %q/%q", result.TransactionID, result.ReferenceNumber)
	}

	reqs := sim.Requests()
	if len(reqs) != 1 {
		t.Fatalf("simulator saw %d requests, want 1", len(reqs))
	}
	for _, want := range []string{"AM000000150000", "TE12345678", "ME000000123456789", "SOORD-1"} {
		if !strings.Contains(reqs[0], want) {
			t.Errorf("request %q missing %q", reqs[0], want)
		}
	}
	if result.RawRequest != reqs[0] {
		t.Errorf("RawRequest = %q, want the bytes the device saw", result.RawRequest)
	}
}

func TestInitiatePaymentDeclined(t *testing.T) {
	sim := startSim(t)
	sim.SetBehavior(possim.Behavior{Response: "RS0002"})
	g := newTestGateway(t, sim)

	result, err := g.InitiatePayment(context.Background(), gateway.PaymentRequest{Amount: 999})
	var derr *gateway.DeviceDeclinedError
	if !errors.As(err, &derr) {
		t.Fatalf("err = %v, want DeviceDeclinedError", err)
	}
	if derr.Message != "insufficient funds" {
		t.Errorf("decline message = %q", derr.Message)
	}
	if result.Status != gateway.StatusFailed {
		t.Errorf("status = %s", result.Status)
	}
}

func TestInitiatePaymentCancelled(t *testing.T) {
	sim := startSim(t)
	sim.SetBehavior(possim.Behavior{Response: "RS0081", Delay: 100 * time.Millisecond})
	g := newTestGateway(t, sim)

	result, err := g.InitiatePayment(context.Background(), gateway.PaymentRequest{Amount: 999})
	var cerr *gateway.UserCancelledError
	if !errors.As(err, &cerr) {
		t.Fatalf("err = %v, want UserCancelledError", err)
	}
	if result.Status != gateway.StatusCancelled || result.Success {
		t.Errorf("result = %+v", result)
	}
}

func TestInitiatePaymentConnectionDrop(t *testing.T) {
	sim := startSim(t)
	sim.SetBehavior(possim.Behavior{DropAfterRead: true})
	g := newTestGateway(t, sim)

	_, err := g.InitiatePayment(context.Background(), gateway.PaymentRequest{Amount: 999})
	var cerr *gateway.ConnectionError
	if !errors.As(err, &cerr) {
		t.Fatalf("err = %v, want ConnectionError", err)
	}
}

func TestInitiatePaymentTimeout(t *testing.T) {
	sim := startSim(t)
	sim.SetBehavior(possim.Behavior{}) // silent terminal
	g := newTestGateway(t, sim)
	g.waiter.Timeout = 500 * time.Millisecond

	_, err := g.InitiatePayment(context.Background(), gateway.PaymentRequest{Amount: 999})
	var terr *gateway.TimeoutError
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want TimeoutError", err)
	}
}

func TestStatusQueriesAfterPayment(t *testing.T) {
	sim := startSim(t)
	sim.SetBehavior(possim.Behavior{Response: "RS013SR424242"})
	g := newTestGateway(t, sim)

	result, err := g.InitiatePayment(context.Background(), gateway.PaymentRequest{Amount: 100})
	if err != nil {
		t.Fatalf("InitiatePayment failed: %v", err)
	}

	status, err := g.GetPaymentStatus(context.Background(), result.TransactionID)
	if err != nil || status != gateway.StatusSuccess {
		t.Errorf("GetPaymentStatus = %v, %v", status, err)
	}

	if _, err := g.VerifyPayment(context.Background(), "missing"); err == nil {
		t.Error("VerifyPayment accepted unknown ID")
	}
}

func TestTestConnection(t *testing.T) {
	sim := startSim(t)
	g := newTestGateway(t, sim)

	if err := g.TestConnection(context.Background()); err != nil {
		t.Errorf("TestConnection against live simulator failed: %v", err)
	}

	sim.Stop()
	var cerr *gateway.ConnectionError
	if err := g.TestConnection(context.Background()); !errors.As(err, &cerr) {
		t.Errorf("TestConnection against dead endpoint = %v, want ConnectionError", err)
	}
}

func TestCancelPaymentUnsupported(t *testing.T) {
	sim := startSim(t)
	g := newTestGateway(t, sim)
	if err := g.CancelPayment(context.Background(), "any"); err == nil {
		t.Error("CancelPayment should report unsupported")
	}
}
