package core

import (
	"testing"
	"time"
)

func TestHealthMonitorOpensAfterThreshold(t *testing.T) {
	hm := NewHealthMonitor(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !hm.CanProceed() {
			t.Fatalf("circuit opened after %d failures, threshold is 3", i)
		}
		hm.RecordFailure()
	}

	if hm.CanProceed() {
		t.Error("circuit still closed after reaching failure threshold")
	}
	if hm.GetCircuitState() != "OPEN" {
		t.Errorf("state = %s, want OPEN", hm.GetCircuitState())
	}
}

func TestHealthMonitorRecoversViaHalfOpen(t *testing.T) {
	hm := NewHealthMonitor(1, 10*time.Millisecond)

	hm.RecordFailure()
	if hm.CanProceed() {
		t.Fatal("circuit should be open")
	}

	time.Sleep(20 * time.Millisecond)
	if !hm.CanProceed() {
		t.Fatal("circuit should allow a probe after recovery timeout")
	}
	if hm.GetCircuitState() != "HALF_OPEN" {
		t.Errorf("state = %s, want HALF_OPEN", hm.GetCircuitState())
	}

	hm.RecordSuccess()
	if hm.GetCircuitState() != "CLOSED" {
		t.Errorf("state = %s, want CLOSED after successful probe", hm.GetCircuitState())
	}
}
