package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/eencloud/goeen/log"

	"github.com/saweedkh/kiosk-backend-sub000/internal/config"
	"github.com/saweedkh/kiosk-backend-sub000/internal/core"
	"github.com/saweedkh/kiosk-backend-sub000/internal/gateway"
	_ "github.com/saweedkh/kiosk-backend-sub000/internal/gateway/mock"
	"github.com/saweedkh/kiosk-backend-sub000/internal/service"
)

func testLogger() *log.Logger {
	customFormat := "{{eenTimeStamp .Now}}[{{.Level}}]: {{.Message}}"
	customContext := log.NewContext(os.Stderr, customFormat, log.LevelError)
	return customContext.GetLogger("test", log.LevelError)
}

func newTestServer(t *testing.T, successRate int) *Server {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "api_test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })

	store, err := core.NewTransactionStore(tmpDir, 1, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	auditDir, err := os.MkdirTemp("", "api_audit")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(auditDir) })
	audit := core.NewAuditLogger(auditDir, 10, testLogger())

	cfg := config.Config{GatewayName: "mock", MockSuccessRate: successRate}
	payments, err := service.NewPaymentService(cfg, testLogger(), nil, store, audit)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = payments.Close() })

	return NewServer("127.0.0.1:0", testLogger(), payments, store, audit)
}

func doRequest(s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthHandler(t *testing.T) {
	s := newTestServer(t, 100)
	rec := doRequest(s, http.MethodGet, "/health", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" || body["gateway"] != "mock" {
		t.Errorf("body = %v", body)
	}
	// The mock strategy has no vendor library in front of it, so the
	// health body must not claim one.
	if body["dllAvailable"] != false {
		t.Errorf("dllAvailable = %v, want false for mock", body["dllAvailable"])
	}
	if body["posInitialized"] != true {
		t.Errorf("posInitialized = %v, want true", body["posInitialized"])
	}
}

func TestTestConnectionHandler(t *testing.T) {
	s := newTestServer(t, 100)
	rec := doRequest(s, http.MethodPost, "/test-connection", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["success"] != true || body["connected"] != true {
		t.Errorf("body = %v, want success and connected", body)
	}
}

func TestPaymentHandlerSuccess(t *testing.T) {
	s := newTestServer(t, 100)
	rec := doRequest(s, http.MethodPost, "/payment", gateway.PaymentRequest{Amount: 5000, Order: "ORD-1"})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var result gateway.PaymentResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if !result.Success || result.Status != gateway.StatusSuccess || result.TransactionID == "" {
		t.Errorf("result = %+v", result)
	}
}

func TestPaymentHandlerMissingAmount(t *testing.T) {
	s := newTestServer(t, 100)
	rec := doRequest(s, http.MethodPost, "/payment", map[string]interface{}{"order": "ORD-1"})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var body map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["error"] == "" {
		t.Error("400 body carries no error message")
	}
}

func TestPaymentHandlerBadJSON(t *testing.T) {
	s := newTestServer(t, 100)
	req := httptest.NewRequest(http.MethodPost, "/payment", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestPaymentHandlerDecline(t *testing.T) {
	s := newTestServer(t, 0)
	rec := doRequest(s, http.MethodPost, "/payment", gateway.PaymentRequest{Amount: 5000})

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["error"] == "" || body["success"] != false {
		t.Errorf("body = %v", body)
	}
}

func TestPaymentStatusHandler(t *testing.T) {
	s := newTestServer(t, 100)
	rec := doRequest(s, http.MethodPost, "/payment", gateway.PaymentRequest{Amount: 100})
	var result gateway.PaymentResult
	_ = json.Unmarshal(rec.Body.Bytes(), &result)

	rec = doRequest(s, http.MethodGet, "/payment/"+result.TransactionID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["status"] != "success" {
		t.Errorf("body = %v", body)
	}

	rec = doRequest(s, http.MethodGet, "/payment/unknown-id", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown ID status = %d, want 404", rec.Code)
	}
}

func TestTransactionsHandler(t *testing.T) {
	s := newTestServer(t, 100)
	_ = doRequest(s, http.MethodPost, "/payment", gateway.PaymentRequest{Amount: 100})

	rec := doRequest(s, http.MethodGet, "/transactions?limit=5", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Count        int                      `json:"count"`
		Transactions []core.TransactionRecord `json:"transactions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Count == 0 {
		t.Error("no transactions listed after a payment")
	}

	rec = doRequest(s, http.MethodGet, "/transactions?limit=bogus", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", rec.Code)
	}
}

func TestMetricsHandler(t *testing.T) {
	s := newTestServer(t, 100)
	rec := doRequest(s, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if _, ok := body["journal_lsm_bytes"]; !ok {
		t.Error("metrics missing journal sizes")
	}
	if _, ok := body["audit"]; !ok {
		t.Error("metrics missing audit stats")
	}
}

func TestCheckPortFree(t *testing.T) {
	if err := CheckPortFree("127.0.0.1:0"); err != nil {
		t.Fatalf("CheckPortFree on ephemeral port failed: %v", err)
	}
}
