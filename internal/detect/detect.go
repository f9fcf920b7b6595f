// Package detect picks a serial port when none is given and checks that a
// slipuart peer answers on it.
package detect

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bigbag/slipuart/internal/serial"
	"github.com/bigbag/slipuart/internal/transfer"
)

var ErrNoPorts = errors.New("no serial ports found")

// probeMagic prefixes ping frames; the peer echoes them unchanged.
var probeMagic = []byte("slipuart-ping")

// Lister enumerates ports. serial.ListPortDetails is the default.
type Lister func() ([]serial.PortInfo, error)

// Candidates returns the available ports, USB adapters first, each group
// sorted by name.
func Candidates(list Lister) ([]serial.PortInfo, error) {
	if list == nil {
		list = serial.ListPortDetails
	}

	ports, err := list()
	if err != nil {
		return nil, fmt.Errorf("failed to list ports: %w", err)
	}
	if len(ports) == 0 {
		return nil, ErrNoPorts
	}

	sort.SliceStable(ports, func(i, j int) bool {
		if ports[i].IsUSB != ports[j].IsUSB {
			return ports[i].IsUSB
		}
		return ports[i].Name < ports[j].Name
	})

	return ports, nil
}

// DetectPort returns the preferred port.
func DetectPort(list Lister) (serial.PortInfo, error) {
	ports, err := Candidates(list)
	if err != nil {
		return serial.PortInfo{}, err
	}
	return ports[0], nil
}

// Ping sends up to attempts probe frames and returns the round-trip time of
// the first one echoed back. Each attempt waits at most timeout.
func Ping(ctx context.Context, conn transfer.FrameConn, attempts int, timeout time.Duration) (time.Duration, error) {
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		probe := probeFrame(uint32(attempt))
		start := time.Now()

		if err := conn.WriteFrame(ctx, probe); err != nil {
			return 0, err
		}

		err := waitEcho(ctx, conn, probe, timeout)
		if err == nil {
			return time.Since(start), nil
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		lastErr = err
	}

	return 0, fmt.Errorf("no answer after %d attempts: %w", attempts, lastErr)
}

// IsProbe reports whether frame is a ping frame.
func IsProbe(frame []byte) bool {
	return bytes.HasPrefix(frame, probeMagic)
}

func probeFrame(n uint32) []byte {
	frame := make([]byte, len(probeMagic)+4)
	copy(frame, probeMagic)
	binary.LittleEndian.PutUint32(frame[len(probeMagic):], n)
	return frame
}

func waitEcho(ctx context.Context, conn transfer.FrameConn, probe []byte, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		frame, err := conn.ReadFrame(ctx)
		if err != nil {
			return err
		}
		// answers to earlier attempts may still arrive
		if bytes.Equal(frame, probe) {
			return nil
		}
	}
}
