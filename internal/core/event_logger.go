package core

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// EventLogger writes structured JSON lines for the payment flow,
// one entry per operational event. It complements the plain text
// application logger with machine parseable output.
type EventLogger struct {
	logger      *log.Logger
	level       LogLevel
	logFile     *os.File
	mutex       sync.Mutex
	component   string
	environment string
	version     string
}

type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	LogLevel  string                 `json:"level"`
	Function  string                 `json:"function"`
	File      string                 `json:"file"`
	LineNo    int                    `json:"line"`
	Message   string                 `json:"message"`
	Extra     map[string]interface{} `json:"extra,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

func NewEventLogger(component, logFilePath string, level LogLevel) (*EventLogger, error) {
	return NewEventLoggerWithContext(component, logFilePath, "development", "1.0.0", level)
}

func NewEventLoggerWithContext(component, logFilePath, environment, version string, level LogLevel) (*EventLogger, error) {
	var logFile *os.File
	var err error

	if logFilePath != "" {
		logFile, err = os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
	}

	logger := log.New(os.Stdout, "", 0)
	if logFile != nil {
		logger.SetOutput(logFile)
	}

	return &EventLogger{
		logger:      logger,
		level:       level,
		logFile:     logFile,
		component:   component,
		environment: environment,
		version:     version,
	}, nil
}

func (a *EventLogger) log(level LogLevel, message string, data map[string]interface{}, err error) {
	if level < a.level {
		return
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	// Get caller info
	_, file, line, ok := runtime.Caller(2)
	function := "unknown"
	if ok {
		if pc, _, _, ok := runtime.Caller(2); ok {
			if fn := runtime.FuncForPC(pc); fn != nil {
				function = fn.Name()
			}
		}
	}

	// Clean up the file path - just show filename instead of full path
	if file != "" {
		if idx := strings.LastIndex(file, "/"); idx != -1 {
			file = file[idx+1:]
		}
	}

	// Skip data if it's empty to avoid NULL in logs
	var extraData map[string]interface{}
	if len(data) > 0 {
		extraData = data
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		LogLevel:  a.levelToString(level),
		Function:  function,
		File:      file,
		LineNo:    line,
		Message:   message,
		Extra:     extraData,
	}

	if err != nil {
		entry.Error = err.Error()
	}

	jsonBytes, marshalErr := json.Marshal(entry)
	if marshalErr != nil {
		a.logger.Printf("LOG_ERROR: Failed to marshal log entry: %v", marshalErr)
		return
	}

	a.logger.Println(string(jsonBytes))
}

func (a *EventLogger) levelToString(level LogLevel) string {
	switch level {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARNING"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (a *EventLogger) Debug(message string, data map[string]interface{}) {
	a.log(DEBUG, message, data, nil)
}

func (a *EventLogger) Info(message string, data map[string]interface{}) {
	a.log(INFO, message, data, nil)
}

func (a *EventLogger) Warn(message string, data map[string]interface{}) {
	a.log(WARN, message, data, nil)
}

func (a *EventLogger) Error(message string, data map[string]interface{}, err error) {
	a.log(ERROR, message, data, err)
}

// ===== ESSENTIAL OPERATIONAL LOGGING (INFO LEVEL) =====

func (a *EventLogger) LogStartup(gateway string, config map[string]interface{}) {
	a.Info("pos-bridge-service started", map[string]interface{}{
		"environment":  a.environment,
		"version":      a.version,
		"gateway":      gateway,
		"config_keys":  getMapKeys(config),
		"startup_time": time.Now().UTC().Format(time.RFC3339),
	})
}

// Payment lifecycle - MOST IMPORTANT (Human Readable)
func (a *EventLogger) LogPaymentInitiated(transactionID string, amount int64, gateway string) {
	a.Info("payment initiated", map[string]interface{}{
		"transaction_id": transactionID,
		"amount":         amount,
		"gateway":        gateway,
		"initiated_at":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *EventLogger) LogPaymentCompleted(transactionID, referenceNumber string, amount int64, duration time.Duration) {
	a.Info("payment completed", map[string]interface{}{
		"transaction_id":   transactionID,
		"reference_number": referenceNumber,
		"amount":           amount,
		"duration_ms":      duration.Milliseconds(),
		"completed_at":     time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *EventLogger) LogPaymentFailed(transactionID, code, message string, duration time.Duration) {
	a.Error("payment failed", map[string]interface{}{
		"transaction_id": transactionID,
		"response_code":  code,
		"reason":         message,
		"duration_ms":    duration.Milliseconds(),
	}, nil)
}

func (a *EventLogger) LogPaymentCancelled(transactionID string, duration time.Duration) {
	a.Info("payment cancelled by cardholder", map[string]interface{}{
		"transaction_id": transactionID,
		"duration_ms":    duration.Milliseconds(),
	})
}

// Strategy downgrade - logged once at construction time
func (a *EventLogger) LogGatewayDowngrade(from, to, reason string) {
	a.Warn("gateway downgraded", map[string]interface{}{
		"requested": from,
		"effective": to,
		"reason":    reason,
	})
}

// CRITICAL ISSUES - Always visible
func (a *EventLogger) LogCriticalError(operation string, err error, context map[string]interface{}) {
	logData := map[string]interface{}{
		"operation": operation,
		"critical":  true,
	}

	for k, v := range context {
		logData[k] = v
	}

	a.Error("critical error", logData, err)
}

// ===== DETAILED TRACKING (DEBUG LEVEL) =====

// Raw wire exchange - debug only, responses carry masked PANs
func (a *EventLogger) LogTerminalExchange(transactionID, request, response string) {
	a.Debug("terminal exchange", map[string]interface{}{
		"transaction_id": transactionID,
		"request":        request,
		"response":       response,
	})
}

func (a *EventLogger) LogConnectionAttempt(endpoint string, attempt int, err error) {
	if err != nil {
		a.Debug("connection attempt failed", map[string]interface{}{
			"endpoint": endpoint,
			"attempt":  attempt,
			"error":    err.Error(),
		})
		return
	}
	a.Debug("connected", map[string]interface{}{
		"endpoint": endpoint,
		"attempt":  attempt,
	})
}

func (a *EventLogger) LogHealthCheck(component string, healthy bool, details map[string]interface{}) {
	// Health checks are too frequent for normal logs
	a.Debug("health check", map[string]interface{}{
		"component": component,
		"healthy":   healthy,
	})
}

// Helper functions
func getMapKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func (a *EventLogger) Close() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.logFile != nil {
		return a.logFile.Close()
	}
	return nil
}
