// Package serial opens and configures serial devices for non-blocking use
// and enumerates the ports present on the host.
package serial

import (
	"errors"
	"fmt"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

var (
	// ErrWouldBlock is returned by Device.Read and Device.Write when the
	// operation cannot make progress without blocking.
	ErrWouldBlock = errors.New("serial: operation would block")
	// ErrUnsupportedBaudRate is returned for rates the platform cannot set.
	ErrUnsupportedBaudRate = errors.New("serial: unsupported baud rate")
	// ErrClosed is returned by operations on a closed device.
	ErrClosed = errors.New("serial: device closed")
	// ErrNotSupported is returned on platforms without a device implementation.
	ErrNotSupported = errors.New("serial: not supported on this platform")
)

// DefaultBaudRate is used when a Mode leaves BaudRate unset.
const DefaultBaudRate = 115200

// Mode is the line configuration applied when a device is opened.
// The line is always 8 data bits, 1 stop bit; Parity selects even parity.
type Mode struct {
	BaudRate    int
	Parity      bool
	FlowControl bool
}

// Device is a serial port opened in non-blocking mode.
//
// Read and Write perform a single system call and return an error wrapping
// ErrWouldBlock instead of waiting. Fd exposes the descriptor for readiness
// notification.
type Device interface {
	Name() string
	Fd() int
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetBaudRate(rate int) error
	SetParity(enabled bool) error
	SetFlowControl(enabled bool) error
	Close() error
}

// Opener opens a device. Open is the platform implementation.
type Opener func(name string, mode Mode) (Device, error)

// PortInfo describes a port found by ListPortDetails.
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// String formats the port for display.
func (p PortInfo) String() string {
	if !p.IsUSB {
		return p.Name
	}
	s := fmt.Sprintf("%s [USB %s:%s]", p.Name, p.VID, p.PID)
	if p.Product != "" {
		s += " " + p.Product
	}
	if p.SerialNumber != "" {
		s += " sn=" + p.SerialNumber
	}
	return s
}

// ListPorts returns a list of available serial ports.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list ports: %w", err)
	}
	return ports, nil
}

// ListPortDetails returns the available ports with USB identification where
// the platform provides it.
func ListPortDetails() ([]PortInfo, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list ports: %w", err)
	}

	infos := make([]PortInfo, 0, len(ports))
	for _, p := range ports {
		infos = append(infos, PortInfo{
			Name:         p.Name,
			IsUSB:        p.IsUSB,
			VID:          p.VID,
			PID:          p.PID,
			SerialNumber: p.SerialNumber,
			Product:      p.Product,
		})
	}
	return infos, nil
}
