package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config carries every knob the payment subsystem recognizes. All values
// come from the environment; defaults match the vendor's device defaults.
type Config struct {
	// GatewayName selects the strategy: mock, direct, native or bridge.
	GatewayName string `validate:"oneof=mock direct native bridge"`

	TerminalID string `validate:"omitempty,numeric,len=8"`
	MerchantID string `validate:"omitempty,numeric,len=15"`

	// Terminal device endpoint (direct and native strategies).
	TerminalHost string `validate:"required"`
	TerminalPort int    `validate:"gt=0,lte=65535"`

	// Bridge service endpoint (bridge strategy) and bind address
	// (bridge service binary).
	BridgeHost string
	BridgePort int `validate:"gt=0,lte=65535"`

	// VendorLibraryPath points at the vendor's shared library for the
	// native strategy. Empty means "not installed" and native falls
	// back to direct.
	VendorLibraryPath string

	// ResponseWait bounds the per-attempt hardware wait. BridgeTimeout
	// covers the full bridge round trip (ResponseWait plus margin).
	ResponseWait  time.Duration
	BridgeTimeout time.Duration

	// Mock strategy knobs.
	MockDelay       time.Duration
	MockSuccessRate int `validate:"gte=0,lte=100"`
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getSeconds(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return def
}

// Load reads the configuration from the environment. It never fails;
// use Validate to reject nonsense before wiring a gateway.
func Load() Config {
	return Config{
		GatewayName:       getenv("PAYMENT_GATEWAY_NAME", "mock"),
		TerminalID:        getenv("POS_TERMINAL_ID", ""),
		MerchantID:        getenv("POS_MERCHANT_ID", ""),
		TerminalHost:      getenv("POS_TCP_HOST", "192.168.1.100"),
		TerminalPort:      getInt("POS_TCP_PORT", 1362),
		BridgeHost:        getenv("POS_BRIDGE_HOST", "127.0.0.1"),
		BridgePort:        getInt("POS_BRIDGE_PORT", 8080),
		VendorLibraryPath: getenv("POS_VENDOR_LIBRARY", ""),
		ResponseWait:      getSeconds("POS_RESPONSE_WAIT_SECONDS", 120*time.Second),
		BridgeTimeout:     getSeconds("POS_BRIDGE_TIMEOUT_SECONDS", 130*time.Second),
		MockDelay:         getSeconds("POS_MOCK_DELAY_SECONDS", 3*time.Second),
		MockSuccessRate:   getInt("POS_MOCK_SUCCESS_RATE", 100),
	}
}

var validate = validator.New()

// Validate rejects configurations that can never produce a working
// gateway, mapping validator failures onto readable messages.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			e := errs[0]
			return fmt.Errorf("invalid configuration: field %s failed %q (value %v)", e.Field(), e.Tag(), e.Value())
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	// Hardware strategies cannot run without terminal identification.
	if c.GatewayName == "direct" || c.GatewayName == "native" {
		if c.TerminalID == "" {
			return fmt.Errorf("invalid configuration: POS_TERMINAL_ID is required for gateway %q", c.GatewayName)
		}
		if c.MerchantID == "" {
			return fmt.Errorf("invalid configuration: POS_MERCHANT_ID is required for gateway %q", c.GatewayName)
		}
	}
	return nil
}

// BridgeURL is the base URL of the remote bridge service.
func (c Config) BridgeURL() string {
	return fmt.Sprintf("http://%s:%d", c.BridgeHost, c.BridgePort)
}

// TerminalAddr is the host:port of the physical terminal.
func (c Config) TerminalAddr() string {
	return fmt.Sprintf("%s:%d", c.TerminalHost, c.TerminalPort)
}
