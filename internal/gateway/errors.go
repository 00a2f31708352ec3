package gateway

import "fmt"

// ConnectionError means the terminal or bridge endpoint could not be
// reached at all. Nothing was sent.
type ConnectionError struct {
	Endpoint string
	Hint     string
	Err      error
}

func (e *ConnectionError) Error() string {
	msg := fmt.Sprintf("cannot connect to %s", e.Endpoint)
	if e.Hint != "" {
		msg += ". " + e.Hint
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError means bytes moved but could not be understood as a
// terminal response.
type ProtocolError struct {
	Raw string
	Err error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %v (raw %q)", e.Err, e.Raw)
	}
	return fmt.Sprintf("protocol error: unintelligible response %q", e.Raw)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// TimeoutError means the wait window elapsed without a terminal
// condition. Guidance tells the operator what to check on the device.
type TimeoutError struct {
	Waited   string
	Guidance string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("no response from terminal after %s. %s", e.Waited, e.Guidance)
}

// DeviceDeclinedError is a well formed refusal from the terminal.
type DeviceDeclinedError struct {
	Code    string
	Message string
}

func (e *DeviceDeclinedError) Error() string {
	return fmt.Sprintf("payment declined (code %s): %s", e.Code, e.Message)
}

// UserCancelledError is the cardholder pressing cancel on the PIN pad.
type UserCancelledError struct{}

func (e *UserCancelledError) Error() string { return "payment cancelled by user" }

// ConfigurationError means the configured strategy cannot be built.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "gateway configuration error: " + e.Reason
}
