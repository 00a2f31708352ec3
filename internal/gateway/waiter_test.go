package gateway

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/eencloud/goeen/log"
)

const customFormat = "{{eenTimeStamp .Now}}[{{.Level}}]: {{.Message}}"

func testLogger() *log.Logger {
	customContext := log.NewContext(os.Stderr, customFormat, log.LevelError)
	return customContext.GetLogger("test", log.LevelError)
}

// scriptedSource replays a fixed sequence of snapshots, repeating the
// last one once exhausted.
type scriptedSource struct {
	snaps []Snapshot
	i     int
}

func (s *scriptedSource) Poll() (Snapshot, error) {
	if s.i < len(s.snaps) {
		snap := s.snaps[s.i]
		s.i++
		return snap, nil
	}
	return s.snaps[len(s.snaps)-1], nil
}

func fastWaiter(timeout time.Duration) *Waiter {
	w := NewWaiter(timeout, testLogger())
	w.Interval = time.Millisecond
	return w
}

func TestWaitReturnsOnResponseCode(t *testing.T) {
	src := &scriptedSource{snaps: []Snapshot{
		{Alive: true},
		{Alive: true, ResponseCode: "00", Buffer: "RS013SR123456"},
	}}
	raw, err := fastWaiter(time.Second).Wait(context.Background(), src, "")
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if raw != "RS013SR123456" {
		t.Errorf("raw = %q", raw)
	}
}

func TestWaitIgnoresNoneResponseCode(t *testing.T) {
	src := &scriptedSource{snaps: []Snapshot{
		{Alive: true, ResponseCode: "None"},
		{Alive: true, ResponseCode: "81", Buffer: "RS0081"},
	}}
	raw, err := fastWaiter(time.Second).Wait(context.Background(), src, "")
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if raw != "RS0081" {
		t.Errorf("raw = %q", raw)
	}
}

func TestWaitReturnsOnChangedReferenceNumber(t *testing.T) {
	src := &scriptedSource{snaps: []Snapshot{
		{Alive: true, ReferenceNumber: "111222333"},
		{Alive: true, ReferenceNumber: "999888777", Buffer: "RN999888777"},
	}}
	raw, err := fastWaiter(time.Second).Wait(context.Background(), src, "111222333")
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if raw != "RN999888777" {
		t.Errorf("raw = %q", raw)
	}
}

func TestWaitIgnoresStaleAndInvalidReferenceNumbers(t *testing.T) {
	src := &scriptedSource{snaps: []Snapshot{
		{Alive: true, ReferenceNumber: "111222333"}, // unchanged
		{Alive: true, ReferenceNumber: "RN ="},      // junk
		{Alive: true, Buffer: "RS013SR654321"},
	}}
	_, err := fastWaiter(time.Second).Wait(context.Background(), src, "111222333")
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if src.i < 3 {
		t.Errorf("terminated after %d polls, want 3", src.i)
	}
}

func TestWaitReturnsOnGrownBuffer(t *testing.T) {
	src := &scriptedSource{snaps: []Snapshot{
		{Alive: true, Buffer: "RS"},
		{Alive: true, Buffer: "Intek.PcPosLibrary.Response"},
		{Alive: true, Buffer: "RS013SR42RN123"},
	}}
	raw, err := fastWaiter(time.Second).Wait(context.Background(), src, "")
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if raw != "RS013SR42RN123" {
		t.Errorf("raw = %q", raw)
	}
}

func TestWaitFailsOnStackError(t *testing.T) {
	src := &scriptedSource{snaps: []Snapshot{
		{Alive: true, ErrorMessage: "library fault"},
	}}
	_, err := fastWaiter(time.Second).Wait(context.Background(), src, "")
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want ProtocolError", err)
	}
}

func TestWaitFailsOnDeadConnection(t *testing.T) {
	src := &scriptedSource{snaps: []Snapshot{
		{Alive: false},
	}}
	_, err := fastWaiter(time.Second).Wait(context.Background(), src, "")
	var cerr *ConnectionError
	if !errors.As(err, &cerr) {
		t.Fatalf("err = %v, want ConnectionError", err)
	}
}

func TestWaitTimesOutWithGuidance(t *testing.T) {
	src := &scriptedSource{snaps: []Snapshot{{Alive: true}}}
	w := fastWaiter(20 * time.Millisecond)
	_, err := w.Wait(context.Background(), src, "")
	var terr *TimeoutError
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want TimeoutError", err)
	}
	if terr.Guidance == "" {
		t.Error("timeout error carries no operator guidance")
	}
}

func TestWaitHonorsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &scriptedSource{snaps: []Snapshot{{Alive: true}}}
	_, err := fastWaiter(time.Second).Wait(ctx, src, "")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
