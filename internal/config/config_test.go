package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigbag/slipuart/internal/uart"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "slipuart.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func testFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.StringP("port", "p", "", "")
	fs.IntP("baud", "b", uart.DefaultBaudRate, "")
	fs.Bool("flow", false, "")
	fs.String("log-level", "warn", "")
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
port: /dev/ttyUSB3
baud: 921600
flow: true
chunk: 256
timeout: 5s
log:
  level: debug
  file: /tmp/slipuart.log
  rotation:
    max_backups: 7
    compress: true
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB3", cfg.Port)
	assert.Equal(t, 921600, cfg.Baud)
	assert.True(t, cfg.Flow)
	assert.Equal(t, 256, cfg.Chunk)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/tmp/slipuart.log", cfg.Log.File)
	assert.Equal(t, 7, cfg.Log.Rotation.MaxBackups)
	assert.Equal(t, 10, cfg.Log.Rotation.MaxSizeMB)
	assert.True(t, cfg.Log.Rotation.Compress)
}

func TestLoad_FlagsOverrideFileAndEnv(t *testing.T) {
	path := writeConfig(t, "port: /dev/ttyUSB3\nbaud: 921600\n")
	t.Setenv("SLIPUART_BAUD", "230400")
	t.Setenv("SLIPUART_LOG_LEVEL", "error")

	fs := testFlags()
	require.NoError(t, fs.Parse([]string{"--port", "/dev/ttyACM0"}))

	cfg, err := Load(path, fs)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyACM0", cfg.Port, "flag beats file")
	assert.Equal(t, 230400, cfg.Baud, "env beats file")
	assert.Equal(t, "error", cfg.Log.Level, "env beats flag default")
}

func TestLoad_ConfigFromEnv(t *testing.T) {
	path := writeConfig(t, "chunk: 64\n")
	t.Setenv("SLIPUART_CONFIG", path)

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Chunk)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"log level", "log:\n  level: loud\n"},
		{"baud", "baud: 0\n"},
		{"chunk", "chunk: 100000\n"},
		{"timeout", "timeout: -1s\n"},
		{"yaml", "baud: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body), nil)
			assert.Error(t, err)
		})
	}
}

func TestConfig_Options(t *testing.T) {
	cfg := Default()
	cfg.Baud = 9600
	cfg.Parity = true

	ucfg, err := uart.NewConfig(cfg.Options()...)
	require.NoError(t, err)
	assert.Equal(t, 9600, ucfg.BaudRate())
	assert.True(t, ucfg.Parity())
	assert.Equal(t, uart.DefaultChunkSize, ucfg.ChunkSize())
}
