// Package possim is a fake card terminal for tests and soak runs. It
// listens on TCP, reads whatever request arrives and answers from a
// configurable script, optionally after a delay or not at all.
package possim

import (
	"fmt"
	"net"
	"sync"
	"time"

	goeen_log "github.com/eencloud/goeen/log"
)

// Behavior scripts one terminal interaction.
type Behavior struct {
	// Response is written back after Delay. Empty means stay silent.
	Response string
	// Delay before answering. Zero answers immediately.
	Delay time.Duration
	// EchoRequest appends the received request bytes to the response,
	// like devices that mirror the purchase fields back.
	EchoRequest bool
	// DropAfterRead closes the connection right after reading the
	// request, before any response.
	DropAfterRead bool
}

// Simulator is the fake terminal. One Simulator handles connections
// sequentially, like the real single-session device.
type Simulator struct {
	listener net.Listener
	logger   *goeen_log.Logger

	mu       sync.Mutex
	behavior Behavior
	requests []string

	wg       sync.WaitGroup
	done     chan struct{}
	stopOnce sync.Once
}

// Start listens on addr ("127.0.0.1:0" picks a free port) and serves
// until Stop.
func Start(addr string, logger *goeen_log.Logger) (*Simulator, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("simulator listen on %s: %w", addr, err)
	}

	s := &Simulator{
		listener: l,
		logger:   logger,
		behavior: Behavior{Response: "RS013SR123456RN987654321012"},
		done:     make(chan struct{}),
	}

	s.wg.Add(1)
	go s.serve()

	return s, nil
}

// Addr is the host:port the simulator listens on.
func (s *Simulator) Addr() string {
	return s.listener.Addr().String()
}

// SetBehavior swaps the script for subsequent connections.
func (s *Simulator) SetBehavior(b Behavior) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.behavior = b
}

// Requests returns a copy of every request received so far.
func (s *Simulator) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.requests))
	copy(out, s.requests)
	return out
}

func (s *Simulator) serve() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				s.logger.Warningf("Simulator accept failed: %v", err)
				return
			}
		}
		s.handle(conn)
	}
}

func (s *Simulator) handle(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		s.logger.Debugf("Simulator read failed: %v", err)
		return
	}
	request := string(buf[:n])

	s.mu.Lock()
	s.requests = append(s.requests, request)
	behavior := s.behavior
	s.mu.Unlock()

	s.logger.Debugf("Simulator received %d bytes", n)

	if behavior.DropAfterRead {
		return
	}
	if behavior.Response == "" && !behavior.EchoRequest {
		// Silent terminal: hold the connection open until the client
		// gives up.
		select {
		case <-s.done:
		case <-time.After(150 * time.Second):
		}
		return
	}

	if behavior.Delay > 0 {
		select {
		case <-s.done:
			return
		case <-time.After(behavior.Delay):
		}
	}

	response := behavior.Response
	if behavior.EchoRequest {
		response += request
	}
	if _, err := conn.Write([]byte(response)); err != nil {
		s.logger.Debugf("Simulator write failed: %v", err)
	}
}

// Stop closes the listener and waits for the serve loop to exit.
// Safe to call more than once.
func (s *Simulator) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		_ = s.listener.Close()
	})
	s.wg.Wait()
}
