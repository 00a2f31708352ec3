package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	goeen_log "github.com/eencloud/goeen/log"

	"github.com/saweedkh/kiosk-backend-sub000/internal/api"
	"github.com/saweedkh/kiosk-backend-sub000/internal/config"
	"github.com/saweedkh/kiosk-backend-sub000/internal/core"
	_ "github.com/saweedkh/kiosk-backend-sub000/internal/gateway/direct"
	_ "github.com/saweedkh/kiosk-backend-sub000/internal/gateway/mock"
	_ "github.com/saweedkh/kiosk-backend-sub000/internal/gateway/native"
	"github.com/saweedkh/kiosk-backend-sub000/internal/service"
)

func main() {
	logger := goeen_log.NewContext(os.Stdout, "", goeen_log.LevelInfo).GetLogger("pos-bridge-service", goeen_log.LevelInfo)
	logger.Info("Starting POS bridge service...")

	cfg := config.Load()
	// The bridge strategy points at another bridge service; chaining
	// bridges behind each other is never intentional.
	if cfg.GatewayName == "bridge" {
		logger.Fatalf("gateway %q cannot run inside the bridge service itself", cfg.GatewayName)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Configuration rejected: %v", err)
	}

	dataDir := core.GetDataDirectory()

	store, err := core.NewTransactionStore(filepath.Join(dataDir, "badger_db"), 2, logger)
	if err != nil {
		logger.Fatalf("Failed to open transaction journal: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Errorf("Failed to close transaction journal: %v", err)
		}
	}()

	audit := core.NewAuditLogger(filepath.Join(dataDir, "audit"), 100, logger)

	events, err := core.NewEventLogger("pos-bridge-service", "", core.INFO)
	if err != nil {
		logger.Fatalf("Failed to create event logger: %v", err)
	}
	defer func() { _ = events.Close() }()

	payments, err := service.NewPaymentService(cfg, logger, events, store, audit)
	if err != nil {
		events.LogCriticalError("gateway construction", err, map[string]interface{}{"gateway": cfg.GatewayName})
		logger.Fatalf("Failed to build payment gateway: %v", err)
	}
	defer func() {
		if err := payments.Close(); err != nil {
			logger.Errorf("Failed to close gateway: %v", err)
		}
	}()

	events.LogStartup(cfg.GatewayName, map[string]interface{}{
		"terminal": cfg.TerminalAddr(),
		"bind":     cfg.BridgeHost,
	})

	apiAddr := cfg.BridgeHost + ":" + strconv.Itoa(cfg.BridgePort)
	if err := api.CheckPortFree(apiAddr); err != nil {
		logger.Fatalf("%v", err)
	}

	server := api.NewServer(apiAddr, logger, payments, store, audit)

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("API Server failed: %v", err)
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := server.Stop(ctx); err != nil {
		logger.Errorf("API Server stop failed: %v", err)
	}
	cancel()
	logger.Info("POS bridge service stopped")
}
