//go:build linux

package serial

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

var baudRates = map[int]uint32{
	9600:    unix.B9600,
	19200:   unix.B19200,
	38400:   unix.B38400,
	57600:   unix.B57600,
	115200:  unix.B115200,
	230400:  unix.B230400,
	460800:  unix.B460800,
	500000:  unix.B500000,
	576000:  unix.B576000,
	921600:  unix.B921600,
	1000000: unix.B1000000,
	1500000: unix.B1500000,
	2000000: unix.B2000000,
	3000000: unix.B3000000,
	4000000: unix.B4000000,
}

// TTY is a Linux serial device driven through termios ioctls.
type TTY struct {
	fd   int
	name string
}

var _ Device = (*TTY)(nil)

// Open opens name non-blocking and configures it for raw 8N1 transfer.
func Open(name string, mode Mode) (Device, error) {
	fd, err := unix.Open(name, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open port %s: %w", name, err)
	}

	p := &TTY{fd: fd, name: name}
	if err := p.configure(mode); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	return p, nil
}

func (p *TTY) configure(mode Mode) error {
	t, err := unix.IoctlGetTermios(p.fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("tcgetattr failed: %w", err)
	}

	// cfmakeraw
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.CSTOPB

	// 8N1, receiver on, ignore modem control lines, no software flow control
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL
	t.Iflag &^= unix.IXON | unix.IXOFF | unix.IXANY

	// one byte satisfies a read, no inter-byte timer
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0

	setParityOption(t, mode.Parity)
	setFlowControlOption(t, mode.FlowControl)

	rate := mode.BaudRate
	if rate == 0 {
		rate = DefaultBaudRate
	}
	if err := setSpeedOption(t, rate); err != nil {
		return err
	}

	if err := unix.IoctlSetTermios(p.fd, unix.TCSETS, t); err != nil {
		return fmt.Errorf("tcsetattr failed: %w", err)
	}

	return nil
}

// update applies fn to the current termios and writes it back immediately.
func (p *TTY) update(fn func(t *unix.Termios) error) error {
	if p.fd < 0 {
		return ErrClosed
	}

	t, err := unix.IoctlGetTermios(p.fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("tcgetattr failed: %w", err)
	}
	if err := fn(t); err != nil {
		return err
	}
	if err := unix.IoctlSetTermios(p.fd, unix.TCSETS, t); err != nil {
		return fmt.Errorf("tcsetattr failed: %w", err)
	}

	return nil
}

// SetBaudRate sets input and output speed.
func (p *TTY) SetBaudRate(rate int) error {
	return p.update(func(t *unix.Termios) error {
		return setSpeedOption(t, rate)
	})
}

// SetParity enables or disables even parity.
func (p *TTY) SetParity(enabled bool) error {
	return p.update(func(t *unix.Termios) error {
		setParityOption(t, enabled)
		return nil
	})
}

// SetFlowControl enables or disables RTS/CTS hardware flow control.
func (p *TTY) SetFlowControl(enabled bool) error {
	return p.update(func(t *unix.Termios) error {
		setFlowControlOption(t, enabled)
		return nil
	})
}

// Read performs a single read(2).
func (p *TTY) Read(buf []byte) (int, error) {
	if p.fd < 0 {
		return 0, ErrClosed
	}
	n, err := unix.Read(p.fd, buf)
	if err != nil {
		return 0, wrapErrno("read", err)
	}
	return n, nil
}

// Write performs a single write(2).
func (p *TTY) Write(data []byte) (int, error) {
	if p.fd < 0 {
		return 0, ErrClosed
	}
	n, err := unix.Write(p.fd, data)
	if err != nil {
		return 0, wrapErrno("write", err)
	}
	return n, nil
}

// Close closes the descriptor. Closing twice is a no-op.
func (p *TTY) Close() error {
	if p.fd < 0 {
		return nil
	}
	err := unix.Close(p.fd)
	p.fd = -1
	return err
}

// Fd returns the descriptor, or -1 once closed.
func (p *TTY) Fd() int {
	return p.fd
}

// Name returns the device path.
func (p *TTY) Name() string {
	return p.name
}

func wrapErrno(op string, err error) error {
	if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
		return fmt.Errorf("%w: %s: %w", ErrWouldBlock, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func setSpeedOption(t *unix.Termios, rate int) error {
	code, ok := baudRates[rate]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnsupportedBaudRate, rate)
	}
	t.Cflag &^= unix.CBAUD
	t.Cflag |= code
	t.Ispeed = code
	t.Ospeed = code
	return nil
}

func setParityOption(t *unix.Termios, enabled bool) {
	if enabled {
		t.Cflag |= unix.PARENB
		t.Cflag &^= unix.PARODD
	} else {
		t.Cflag &^= unix.PARENB
	}
}

func setFlowControlOption(t *unix.Termios, enabled bool) {
	if enabled {
		t.Cflag |= unix.CRTSCTS
	} else {
		t.Cflag &^= unix.CRTSCTS
	}
}
