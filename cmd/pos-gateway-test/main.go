// Operator utility for exercising a gateway from the command line:
// probe the terminal, run a single payment, or soak the full path
// against the built-in terminal simulator.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/eencloud/goeen/log"

	"github.com/saweedkh/kiosk-backend-sub000/internal/config"
	"github.com/saweedkh/kiosk-backend-sub000/internal/gateway"
	_ "github.com/saweedkh/kiosk-backend-sub000/internal/gateway/bridge"
	_ "github.com/saweedkh/kiosk-backend-sub000/internal/gateway/direct"
	_ "github.com/saweedkh/kiosk-backend-sub000/internal/gateway/mock"
	_ "github.com/saweedkh/kiosk-backend-sub000/internal/gateway/native"
	"github.com/saweedkh/kiosk-backend-sub000/internal/possim"
)

func main() {
	var (
		mode    = flag.String("mode", "test-connection", "test-connection | pay | soak")
		amount  = flag.Int64("amount", 1000, "amount in minor units for pay/soak")
		order   = flag.String("order", "", "order reference for pay")
		rounds  = flag.Int("rounds", 5, "payments per soak run")
		verbose = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := log.LevelInfo
	if *verbose {
		level = log.LevelDebug
	}
	customFormat := "{{eenTimeStamp .Now}}[{{.Level}}]: {{.Message}}"
	logger := log.NewContext(os.Stderr, customFormat, level).GetLogger("gateway-test", level)

	cfg := config.Load()

	switch *mode {
	case "test-connection":
		runTestConnection(cfg, logger)
	case "pay":
		runSinglePayment(cfg, logger, *amount, *order)
	case "soak":
		runSoak(cfg, logger, *amount, *rounds)
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", *mode)
		flag.Usage()
		os.Exit(2)
	}
}

func buildGateway(cfg config.Config, logger *log.Logger) gateway.PaymentGateway {
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
		os.Exit(1)
	}
	g, err := gateway.New(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
		os.Exit(1)
	}
	return g
}

func runTestConnection(cfg config.Config, logger *log.Logger) {
	fmt.Printf("=== Connection Test (%s gateway) ===\n", cfg.GatewayName)

	g := buildGateway(cfg, logger)
	defer func() { _ = g.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	start := time.Now()
	if err := g.TestConnection(ctx); err != nil {
		fmt.Printf("FAIL after %v: %v\n", time.Since(start).Round(time.Millisecond), err)
		os.Exit(1)
	}
	fmt.Printf("OK in %v\n", time.Since(start).Round(time.Millisecond))
}

func runSinglePayment(cfg config.Config, logger *log.Logger, amount int64, order string) {
	fmt.Printf("=== Single Payment (%s gateway, amount %d) ===\n", cfg.GatewayName, amount)
	fmt.Println("Follow the prompts on the terminal display...")

	g := buildGateway(cfg, logger)
	defer func() { _ = g.Close() }()

	start := time.Now()
	result, err := g.InitiatePayment(context.Background(), gateway.PaymentRequest{
		Amount: amount,
		Order:  order,
	})
	elapsed := time.Since(start).Round(time.Millisecond)

	if err != nil {
		fmt.Printf("Payment %s after %v: %v\n", result.Status, elapsed, err)
		os.Exit(1)
	}
	fmt.Printf("Payment completed in %v\n", elapsed)
	fmt.Printf("  transaction: %s\n", result.TransactionID)
	if result.ReferenceNumber != "" {
		fmt.Printf("  reference:   %s\n", result.ReferenceNumber)
	}
	if result.MaskedPAN != "" {
		fmt.Printf("  card:        %s\n", result.MaskedPAN)
	}
}

// runSoak stands up the terminal simulator, retargets the direct
// gateway at it and runs a batch of payments across the scripted
// outcomes. Exercises the whole encode/send/wait/decode path with no
// hardware on the desk.
func runSoak(cfg config.Config, logger *log.Logger, amount int64, rounds int) {
	fmt.Printf("=== Soak Run (%d payments against simulator) ===\n", rounds)

	sim, err := possim.Start("127.0.0.1:0", logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
		os.Exit(1)
	}
	defer sim.Stop()

	host, portStr, _ := strings.Cut(sim.Addr(), ":")
	cfg.GatewayName = "direct"
	cfg.TerminalHost = host
	fmt.Sscanf(portStr, "%d", &cfg.TerminalPort)
	if cfg.TerminalID == "" {
		cfg.TerminalID = "12345678"
	}
	if cfg.MerchantID == "" {
		cfg.MerchantID = "000000123456789"
	}
	cfg.ResponseWait = 10 * time.Second

	g := buildGateway(cfg, logger)
	defer func() { _ = g.Close() }()

	behaviors := []struct {
		name string
		b    possim.Behavior
	}{
		{"approved", possim.Behavior{Response: "RS013SR123456RN987654321012"}},
		{"declined", possim.Behavior{Response: "RS0002"}},
		{"cancelled", possim.Behavior{Response: "RS0081", Delay: time.Second}},
		{"slow approve", possim.Behavior{Response: "RS013SR777888", Delay: 2 * time.Second}},
	}

	var failures int
	for i := 0; i < rounds; i++ {
		script := behaviors[i%len(behaviors)]
		sim.SetBehavior(script.b)

		start := time.Now()
		result, err := g.InitiatePayment(context.Background(), gateway.PaymentRequest{Amount: amount})
		elapsed := time.Since(start).Round(time.Millisecond)

		switch {
		case err == nil:
			fmt.Printf("  %2d %-12s OK       %v  txn=%s\n", i+1, script.name, elapsed, result.TransactionID)
		case script.name == "approved" || script.name == "slow approve":
			failures++
			fmt.Printf("  %2d %-12s UNEXPECTED %v: %v\n", i+1, script.name, elapsed, err)
		default:
			fmt.Printf("  %2d %-12s %-9s %v\n", i+1, script.name, result.Status, elapsed)
		}
	}

	fmt.Printf("Soak complete: %d rounds, %d unexpected failures\n", rounds, failures)
	if failures > 0 {
		os.Exit(1)
	}
}
