package detect

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bigbag/slipuart/internal/serial"
)

type echoConn struct {
	frames chan []byte
	skip   int
}

func newEchoConn(skip int) *echoConn {
	return &echoConn{frames: make(chan []byte, 8), skip: skip}
}

func (c *echoConn) WriteFrame(ctx context.Context, p []byte) error {
	if c.skip > 0 {
		c.skip--
		return nil
	}
	c.frames <- bytes.Clone(p)
	return nil
}

func (c *echoConn) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case p := <-c.frames:
		return p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestCandidates_USBFirst(t *testing.T) {
	list := func() ([]serial.PortInfo, error) {
		return []serial.PortInfo{
			{Name: "/dev/ttyS1"},
			{Name: "/dev/ttyUSB1", IsUSB: true},
			{Name: "/dev/ttyS0"},
			{Name: "/dev/ttyACM0", IsUSB: true},
		}, nil
	}

	ports, err := Candidates(list)
	if err != nil {
		t.Fatalf("Candidates() error = %v", err)
	}

	want := []string{"/dev/ttyACM0", "/dev/ttyUSB1", "/dev/ttyS0", "/dev/ttyS1"}
	for i, p := range ports {
		if p.Name != want[i] {
			t.Errorf("Candidates()[%d] = %s, want %s", i, p.Name, want[i])
		}
	}

	port, err := DetectPort(list)
	if err != nil {
		t.Fatalf("DetectPort() error = %v", err)
	}
	if port.Name != "/dev/ttyACM0" {
		t.Errorf("DetectPort() = %s, want /dev/ttyACM0", port.Name)
	}
}

func TestCandidates_NoPorts(t *testing.T) {
	_, err := Candidates(func() ([]serial.PortInfo, error) { return nil, nil })
	if !errors.Is(err, ErrNoPorts) {
		t.Errorf("Candidates() error = %v, want ErrNoPorts", err)
	}
}

func TestCandidates_ListError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Candidates(func() ([]serial.PortInfo, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Errorf("Candidates() error = %v, want wrapped boom", err)
	}
}

func TestPing_Echo(t *testing.T) {
	rtt, err := Ping(context.Background(), newEchoConn(0), 3, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if rtt < 0 {
		t.Errorf("Ping() rtt = %v, want >= 0", rtt)
	}
}

func TestPing_RetriesLostProbe(t *testing.T) {
	_, err := Ping(context.Background(), newEchoConn(2), 3, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}

func TestPing_NoAnswer(t *testing.T) {
	_, err := Ping(context.Background(), newEchoConn(5), 2, 10*time.Millisecond)
	if err == nil {
		t.Fatal("Ping() expected error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Ping() error = %v, want deadline exceeded", err)
	}
}

func TestIsProbe(t *testing.T) {
	if !IsProbe(probeFrame(7)) {
		t.Error("IsProbe(probeFrame) = false, want true")
	}
	if IsProbe([]byte{0x01, 0x02}) {
		t.Error("IsProbe(data) = true, want false")
	}
}
