package possim

import (
	"net"
	"os"
	"testing"
	"time"

	"github.com/eencloud/goeen/log"
)

func testLogger() *log.Logger {
	customFormat := "{{eenTimeStamp .Now}}[{{.Level}}]: {{.Message}}"
	customContext := log.NewContext(os.Stderr, customFormat, log.LevelError)
	return customContext.GetLogger("test", log.LevelError)
}

func exchange(t *testing.T, addr, request string) string {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.Write([]byte(request)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return string(buf[:n])
}

func TestSimulatorRespondsWithScript(t *testing.T) {
	sim, err := Start("127.0.0.1:0", testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer sim.Stop()

	sim.SetBehavior(Behavior{Response: "RS013SR42"})
	if got := exchange(t, sim.Addr(), "PR00AM000000000100"); got != "RS013SR42" {
		t.Errorf("response = %q", got)
	}

	reqs := sim.Requests()
	if len(reqs) != 1 || reqs[0] != "PR00AM000000000100" {
		t.Errorf("recorded requests = %v", reqs)
	}
}

func TestSimulatorEchoesRequest(t *testing.T) {
	sim, err := Start("127.0.0.1:0", testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer sim.Stop()

	sim.SetBehavior(Behavior{Response: "RS013", EchoRequest: true})
	got := exchange(t, sim.Addr(), "PR00AM000000000500SOORDER-1             ")
	if got != "RS013PR00AM000000000500SOORDER-1             " {
		t.Errorf("response = %q", got)
	}
}

func TestSimulatorDropsConnection(t *testing.T) {
	sim, err := Start("127.0.0.1:0", testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer sim.Stop()

	sim.SetBehavior(Behavior{DropAfterRead: true})

	conn, err := net.Dial("tcp", sim.Addr())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = conn.Close() }()
	_, _ = conn.Write([]byte("PR00"))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 16)
	if n, err := conn.Read(buf); err == nil {
		t.Errorf("expected closed connection, read %d bytes", n)
	}
}
