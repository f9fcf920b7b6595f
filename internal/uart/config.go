package uart

import (
	"errors"
	"fmt"
	"time"

	"github.com/bigbag/slipuart/internal/logger"
	"github.com/bigbag/slipuart/internal/serial"
)

const (
	DefaultBaudRate          = 115200
	DefaultChunkSize         = 128 // encoded bytes per write in frame mode
	DefaultReceiveBufferSize = 128 // bytes per read in frame mode
	DefaultSettleDelay       = 100 * time.Millisecond
	DefaultSlowIOThreshold   = 10 * time.Millisecond

	MaxChunkSize         = 4096
	MaxReceiveBufferSize = 65536
)

// Config holds the transport configuration.
type Config struct {
	baudRate          int
	parity            bool
	flowControl       bool
	chunkSize         int
	receiveBufferSize int
	settleDelay       time.Duration
	slowIOThreshold   time.Duration
	opener            serial.Opener
	logger            logger.Logger
}

// NewConfig returns the default configuration with opts applied in order.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		baudRate:          DefaultBaudRate,
		chunkSize:         DefaultChunkSize,
		receiveBufferSize: DefaultReceiveBufferSize,
		settleDelay:       DefaultSettleDelay,
		slowIOThreshold:   DefaultSlowIOThreshold,
		opener:            serial.Open,
		logger:            logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// BaudRate returns the baud rate applied at open.
func (cfg *Config) BaudRate() int { return cfg.baudRate }

// Parity reports whether even parity is enabled at open.
func (cfg *Config) Parity() bool { return cfg.parity }

// FlowControl reports whether RTS/CTS flow control is enabled at open.
func (cfg *Config) FlowControl() bool { return cfg.flowControl }

// ChunkSize returns the maximum number of encoded bytes per frame-mode write.
func (cfg *Config) ChunkSize() int { return cfg.chunkSize }

// ReceiveBufferSize returns the maximum number of bytes per frame-mode read.
func (cfg *Config) ReceiveBufferSize() int { return cfg.receiveBufferSize }

// SettleDelay returns how long Open waits after configuring the device.
func (cfg *Config) SettleDelay() time.Duration { return cfg.settleDelay }

// SlowIOThreshold returns the syscall duration above which a read or write is logged.
func (cfg *Config) SlowIOThreshold() time.Duration { return cfg.slowIOThreshold }

// GetLogger returns the configured logger.
func (cfg *Config) GetLogger() logger.Logger { return cfg.logger }

// Option is a functional option for configuring a transport.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithBaudRate sets the baud rate applied at open.
func WithBaudRate(rate int) Option {
	return optFunc(func(cfg *Config) error {
		if rate <= 0 {
			return fmt.Errorf("uart: baud rate %d must be positive", rate)
		}
		cfg.baudRate = rate

		return nil
	})
}

// WithParity enables even parity after open.
func WithParity(enabled bool) Option {
	return optFunc(func(cfg *Config) error {
		cfg.parity = enabled
		return nil
	})
}

// WithFlowControl enables RTS/CTS hardware flow control at open.
func WithFlowControl(enabled bool) Option {
	return optFunc(func(cfg *Config) error {
		cfg.flowControl = enabled
		return nil
	})
}

// WithChunkSize sets the outgoing chunk size for frame mode. Range 1–4096.
func WithChunkSize(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < 1 || n > MaxChunkSize {
			return fmt.Errorf("uart: chunk size %d out of range [1, %d]", n, MaxChunkSize)
		}
		cfg.chunkSize = n

		return nil
	})
}

// WithReceiveBufferSize sets the read size for frame mode. Range 1–65536.
func WithReceiveBufferSize(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < 1 || n > MaxReceiveBufferSize {
			return fmt.Errorf("uart: receive buffer size %d out of range [1, %d]", n, MaxReceiveBufferSize)
		}
		cfg.receiveBufferSize = n

		return nil
	})
}

// WithSettleDelay sets the pause after open. Some USB adapters garble the
// first byte sent immediately after configuration.
func WithSettleDelay(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < 0 {
			return errors.New("uart: settle delay must not be negative")
		}
		cfg.settleDelay = d

		return nil
	})
}

// WithSlowIOThreshold sets the duration above which a single read or write
// is logged. Zero disables the check.
func WithSlowIOThreshold(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < 0 {
			return errors.New("uart: slow I/O threshold must not be negative")
		}
		cfg.slowIOThreshold = d

		return nil
	})
}

// WithDeviceOpener replaces serial.Open.
func WithDeviceOpener(open serial.Opener) Option {
	return optFunc(func(cfg *Config) error {
		if open == nil {
			return errors.New("uart: device opener must not be nil")
		}
		cfg.opener = open

		return nil
	})
}

// WithLogger sets the logger for the transport.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("uart: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
