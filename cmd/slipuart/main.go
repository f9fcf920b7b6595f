package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/bigbag/slipuart/internal/config"
	"github.com/bigbag/slipuart/internal/detect"
	"github.com/bigbag/slipuart/internal/link"
	"github.com/bigbag/slipuart/internal/serial"
	"github.com/bigbag/slipuart/internal/transfer"
	"github.com/bigbag/slipuart/internal/uart"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	configFlag  string
	detailsFlag bool
	countFlag   int
)

// cfg is loaded before any subcommand runs.
var cfg *config.Config

var _ transfer.FrameConn = (*link.Link)(nil)

func main() {
	rootCmd := &cobra.Command{
		Use:   "slipuart",
		Short: "Move SLIP framed data over a serial line",
		Long: `slipuart drives a serial port in non-blocking mode and exchanges
SLIP framed packets with a peer running "slipuart echo" or "slipuart recv".

If --port is not given, the first USB serial adapter is used.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = config.Load(configFlag, cmd.Flags()); err != nil {
				return err
			}
			return setupLogger(cfg.Log)
		},
	}
	defaults := config.Default()
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFlag, "config", "", "Config file (default ./slipuart.yaml)")
	flags.StringP("port", "p", "", "Serial port (auto-detect if not specified)")
	flags.IntP("baud", "b", defaults.Baud, "Baud rate")
	flags.Bool("flow", defaults.Flow, "Enable RTS/CTS hardware flow control")
	flags.Bool("parity", defaults.Parity, "Enable even parity")
	flags.Int("chunk", defaults.Chunk, "Encoded bytes per write")
	flags.Duration("timeout", defaults.Timeout, "Overall operation timeout (0 for none)")
	flags.String("log-level", defaults.Log.Level, "Log level (debug, info, warn, error)")
	flags.String("log-file", "", "Write logs to a rotated file instead of stderr")

	// Send command
	sendCmd := &cobra.Command{
		Use:   "send <file>",
		Short: "Send a file to a peer running recv",
		Args:  cobra.ExactArgs(1),
		RunE:  runSend,
	}

	// Receive command
	recvCmd := &cobra.Command{
		Use:   "recv [file]",
		Short: "Receive a file from a peer running send",
		Long: `Receive a file from a peer running send.

Without a file argument the name announced by the sender is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runRecv,
	}

	// Echo command
	echoCmd := &cobra.Command{
		Use:   "echo",
		Short: "Send every received frame back until interrupted",
		Args:  cobra.NoArgs,
		RunE:  runEcho,
	}

	// Ping command
	pingCmd := &cobra.Command{
		Use:   "ping",
		Short: "Check that a peer running echo answers",
		Args:  cobra.NoArgs,
		RunE:  runPing,
	}
	pingCmd.Flags().IntVarP(&countFlag, "count", "c", 3, "Number of attempts")

	// List command
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available serial ports",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
	listCmd.Flags().BoolVar(&detailsFlag, "details", false, "Show USB identification")

	// Version command
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("slipuart %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	}

	rootCmd.AddCommand(sendCmd, recvCmd, echoCmd, pingCmd, listCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runSend(cmd *cobra.Command, args []string) error {
	path := args[0]

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	fmt.Printf("File: %s (%d bytes)\n", path, info.Size())

	l, err := openLink()
	if err != nil {
		return err
	}
	defer l.Close()

	ctx, cancel := commandContext(cmd, true)
	defer cancel()

	bar := progressbar.NewOptions64(info.Size(),
		progressbar.OptionSetDescription("Sending"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)

	s := transfer.NewSender(l)
	s.SetFileInfo(transfer.FileInfoFromStat(info))
	s.SetProgressCallback(func(current, total int64) {
		_ = bar.Set64(current)
	})

	if err := s.Send(ctx, f, info.Size()); err != nil {
		return err
	}

	_ = bar.Finish()
	printStats(l.Metrics())
	fmt.Println("Send complete!")
	return nil
}

func runRecv(cmd *cobra.Command, args []string) error {
	out := &outputFile{}
	if len(args) == 1 {
		out.path = args[0]
	}

	l, err := openLink()
	if err != nil {
		return err
	}
	defer l.Close()

	ctx, cancel := commandContext(cmd, true)
	defer cancel()

	bar := progressbar.NewOptions64(-1,
		progressbar.OptionSetDescription("Receiving"),
		progressbar.OptionShowBytes(true),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)

	r := transfer.NewReceiver(l)
	r.SetInfoCallback(func(info transfer.FileInfo) error {
		bar.ChangeMax64(info.Size)
		return out.announce(info)
	})
	r.SetProgressCallback(func(current, total int64) {
		_ = bar.Set64(current)
	})

	n, err := r.Receive(ctx, out)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		out.remove()
		return err
	}

	_ = bar.Finish()
	printStats(l.Metrics())
	fmt.Printf("Received %s (%d bytes)\n", out.path, n)
	return nil
}

func runEcho(cmd *cobra.Command, args []string) error {
	l, err := openLink()
	if err != nil {
		return err
	}
	defer l.Close()

	ctx, cancel := commandContext(cmd, false)
	defer cancel()

	fmt.Println("Echoing frames, press Ctrl+C to stop")
	for {
		frame, err := l.ReadFrame(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			return err
		}
		if err := l.WriteFrame(ctx, frame); err != nil {
			return err
		}
	}

	printStats(l.Metrics())
	return nil
}

func runPing(cmd *cobra.Command, args []string) error {
	l, err := openLink()
	if err != nil {
		return err
	}
	defer l.Close()

	ctx, cancel := commandContext(cmd, true)
	defer cancel()

	rtt, err := detect.Ping(ctx, l, countFlag, time.Second)
	if err != nil {
		return fmt.Errorf("peer did not answer: %w", err)
	}

	fmt.Printf("Peer answered in %s\n", rtt.Round(time.Microsecond))
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	if detailsFlag {
		ports, err := detect.Candidates(nil)
		if errors.Is(err, detect.ErrNoPorts) {
			fmt.Println("No serial ports found")
			return nil
		}
		if err != nil {
			return err
		}

		fmt.Println("Available serial ports:")
		for _, p := range ports {
			fmt.Printf("  %s\n", p)
		}
		return nil
	}

	ports, err := serial.ListPorts()
	if err != nil {
		return err
	}

	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return nil
	}

	fmt.Println("Available serial ports:")
	for _, p := range ports {
		fmt.Printf("  %s\n", p)
	}

	return nil
}

func printStats(m *uart.Metrics) {
	fmt.Printf("Frames: %d sent, %d received; bytes: %d written, %d read\n",
		m.FrameSendCount.Load(), m.FrameRecvCount.Load(),
		m.BytesWritten.Load(), m.BytesRead.Load())
	if n := m.DecodeErrorCount.Load(); n > 0 {
		fmt.Printf("Warning: %d oversized frames dropped\n", n)
	}
	if n := m.IOErrorCount.Load(); n > 0 {
		fmt.Printf("Warning: %d I/O errors\n", n)
	}
}
