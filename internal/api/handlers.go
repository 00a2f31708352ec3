package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/saweedkh/kiosk-backend-sub000/internal/gateway"
)

var validate = validator.New()

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// healthHandler reports process liveness plus whether the hardware
// path behind this bridge is usable. dllAvailable is kept for clients
// that predate the direct TCP path.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	state := s.Payments.HardwareState()
	s.Payments.NoteHealthCheck(state.SessionReady)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"dllAvailable":   state.VendorLibraryLoaded,
		"posInitialized": state.SessionReady,
		"gateway":        s.Payments.GatewayName(),
		"uptimeSeconds":  int(time.Since(s.started).Seconds()),
	})
}

func (s *Server) testConnectionHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.Payments.TestConnection(r.Context()); err != nil {
		s.Logger.Warningf("Terminal connection test failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success":   false,
			"connected": false,
			"error":     err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"connected": true,
	})
}

// paymentHandler blocks for the full card interaction. One payment at
// a time is enforced below this layer, so concurrent requests simply
// queue on the hardware session.
func (s *Server) paymentHandler(w http.ResponseWriter, r *http.Request) {
	var req gateway.PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}
	if err := validate.Struct(req); err != nil {
		if req.Amount <= 0 {
			writeError(w, http.StatusBadRequest, "amount is required and must be positive")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid payment request: "+err.Error())
		return
	}

	result, err := s.Payments.Charge(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		var cerr *gateway.ConnectionError
		if errors.As(err, &cerr) {
			status = http.StatusBadGateway
		}
		body := map[string]interface{}{
			"success":      false,
			"status":       result.Status,
			"responseCode": result.ResponseCode,
			"error":        err.Error(),
		}
		if result.TransactionID != "" {
			body["transactionId"] = result.TransactionID
		}
		writeJSON(w, status, body)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) paymentStatusHandler(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transactionID")
	status, err := s.Payments.Status(r.Context(), transactionID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"transactionId": transactionID,
		"status":        string(status),
	})
}

func (s *Server) transactionsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := s.Payments.Recent(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":        len(records),
		"transactions": records,
	})
}

func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	metrics := map[string]interface{}{
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"gateway":        s.Payments.GatewayName(),
	}
	if s.Store != nil {
		lsm, vlog := s.Store.GetDB().Size()
		metrics["journal_lsm_bytes"] = lsm
		metrics["journal_vlog_bytes"] = vlog
	}
	if s.Audit != nil {
		metrics["audit"] = s.Audit.GetStats()
	}
	writeJSON(w, http.StatusOK, metrics)
}
