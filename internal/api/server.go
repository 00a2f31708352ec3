// Package api is the HTTP surface of the bridge service: the small
// REST API a kiosk backend calls to run payments on the terminal
// attached to this machine.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/eencloud/goeen/log"

	"github.com/saweedkh/kiosk-backend-sub000/internal/core"
	"github.com/saweedkh/kiosk-backend-sub000/internal/service"
)

// Server handles HTTP communication from the kiosk backend. The
// payment service it wraps owns the single hardware session; no
// handler touches a gateway directly.
type Server struct {
	*http.Server
	Logger   *log.Logger
	Payments *service.PaymentService
	Store    *core.TransactionStore
	Audit    *core.AuditLogger
	started  time.Time
}

// NewServer wires the routes. Payments must be non nil; Store and
// Audit may be nil when the bridge runs without a journal or audit
// trail.
func NewServer(addr string, logger *log.Logger, payments *service.PaymentService, store *core.TransactionStore, audit *core.AuditLogger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	s := &Server{
		Server: &http.Server{
			Addr:           addr,
			Handler:        r,
			ReadTimeout:    5 * time.Second,
			WriteTimeout:   150 * time.Second, // payment waits block for up to the response wait
			MaxHeaderBytes: 1 << 20,
		},
		Logger:   logger,
		Payments: payments,
		Store:    store,
		Audit:    audit,
		started:  time.Now(),
	}

	r.Get("/health", s.healthHandler)
	r.Post("/test-connection", s.testConnectionHandler)
	r.Post("/payment", s.paymentHandler)
	r.Get("/payment/{transactionID}", s.paymentStatusHandler)
	r.Get("/transactions", s.transactionsHandler)
	r.Get("/metrics", s.metricsHandler)

	return s
}

// CheckPortFree fails fast when another process already owns addr,
// instead of the opaque bind error ListenAndServe would surface later.
func CheckPortFree(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port check failed, %s already in use: %w", addr, err)
	}
	return l.Close()
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.Logger.Infof("Starting API Server on %s", s.Addr)
	return s.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.Logger.Info("Shutting down API Server...")
	return s.Shutdown(ctx)
}
