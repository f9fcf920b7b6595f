package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/bigbag/slipuart/internal/config"
	"github.com/bigbag/slipuart/internal/detect"
	"github.com/bigbag/slipuart/internal/link"
	"github.com/bigbag/slipuart/internal/logger"
	"github.com/bigbag/slipuart/internal/transfer"
	"github.com/bigbag/slipuart/internal/uart"
)

// setupLogger applies the log level and, when a file is configured, sends
// logs to a size-rotated file.
func setupLogger(c config.LogConfig) error {
	level, err := logger.ParseLevel(c.Level)
	if err != nil {
		return err
	}

	if c.File == "" {
		logger.SetLevel(level)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(c.File), 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	logger.SetDefault(logger.NewSlogWriter(&lumberjack.Logger{
		Filename:   c.File,
		MaxSize:    max(c.Rotation.MaxSizeMB, 1),
		MaxBackups: c.Rotation.MaxBackups,
		MaxAge:     c.Rotation.MaxAgeDays,
		Compress:   c.Rotation.Compress,
	}, level, false))

	return nil
}

// commandContext is cancelled on SIGINT/SIGTERM and, if requested, after
// the configured timeout.
func commandContext(cmd *cobra.Command, withTimeout bool) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	if !withTimeout || cfg.Timeout <= 0 {
		return ctx, stop
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	return ctx, func() { cancel(); stop() }
}

func openLink() (*link.Link, error) {
	portName := cfg.Port
	if portName == "" {
		port, err := detect.DetectPort(nil)
		if err != nil {
			return nil, fmt.Errorf("port detection failed: %w", err)
		}
		portName = port.Name
		fmt.Printf("Using %s\n", port)
	}

	opts := append(cfg.Options(), uart.WithLogger(logger.GetLogger()))
	l, err := link.Open(portName, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open port: %w", err)
	}

	fmt.Printf("Port: %s @ %d baud\n", portName, cfg.Baud)
	return l, nil
}

// outputFile creates its file on the first write, so the name announced by
// the sender can still be applied.
type outputFile struct {
	path string
	mode os.FileMode
	f    *os.File
}

func (o *outputFile) announce(info transfer.FileInfo) error {
	if o.path == "" {
		name := filepath.Base(info.Name)
		if name == "." || name == "/" || name == "" {
			return fmt.Errorf("sender announced invalid file name %q", info.Name)
		}
		o.path = name
	}
	if info.Mode != 0 {
		o.mode = os.FileMode(info.Mode).Perm()
	}
	fmt.Printf("Incoming: %s (%d bytes) -> %s\n", info.Name, info.Size, o.path)
	return nil
}

func (o *outputFile) Write(p []byte) (int, error) {
	if o.f == nil {
		if err := o.open(); err != nil {
			return 0, err
		}
	}
	return o.f.Write(p)
}

func (o *outputFile) open() error {
	if o.path == "" {
		return fmt.Errorf("no output file given and sender did not announce a name")
	}
	mode := o.mode
	if mode == 0 {
		mode = 0o644
	}

	f, err := os.OpenFile(o.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	o.f = f
	return nil
}

// Close creates an empty file for an empty transfer.
func (o *outputFile) Close() error {
	if o.f == nil {
		if o.path == "" {
			return nil
		}
		if err := o.open(); err != nil {
			return err
		}
	}
	return o.f.Close()
}

func (o *outputFile) remove() {
	if o.f != nil && o.path != "" {
		_ = os.Remove(o.path)
	}
}
