package core

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAuditLoggerWritesJSONL(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "audit_test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })

	audit := NewAuditLogger(tmpDir, 10, testLogger())

	err = audit.LogExchange("direct", "POS-1-100-aaaa", "PR00AM000000000100", "RS013SR42", "success")
	if err != nil {
		t.Fatalf("LogExchange failed: %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(tmpDir, "audit_*.jsonl"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected one audit file, got %v (%v)", matches, err)
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	line := strings.TrimSpace(string(data))

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("audit line is not JSON: %v", err)
	}
	if entry["transaction_id"] != "POS-1-100-aaaa" || entry["outcome"] != "success" {
		t.Errorf("entry = %v", entry)
	}
}
