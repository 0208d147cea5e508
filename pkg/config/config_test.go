package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qmi-protocol/qmi-go/pkg/device"
	"github.com/qmi-protocol/qmi-go/pkg/transport"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, device.OpenVersionInfo, cfg.OpenFlags())
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
device: /dev/cdc-wdm1
proxy: true
open: [version-info, sync]
timeouts:
  command: 60
  abort: 2
trace:
  enabled: true
protocolLog: /tmp/run.qlog
metricsAddr: ":9464"
logLevel: debug
`))
	require.NoError(t, err)

	assert.Equal(t, "/dev/cdc-wdm1", cfg.Device)
	assert.Equal(t, device.OpenVersionInfo|device.OpenSync|device.OpenProxy, cfg.OpenFlags())
	assert.Equal(t, uint(60), cfg.Timeouts.Command)
	assert.Equal(t, uint(10), cfg.Timeouts.Open, "unset fields keep defaults")
	assert.Equal(t, ":9464", cfg.MetricsAddr)

	dc := cfg.DeviceConfig()
	assert.True(t, dc.Trace.Enabled)
	assert.False(t, dc.Trace.ShowPersonalInfo)
	assert.Equal(t, 2*time.Second, dc.AbortTimeout)
	assert.Equal(t, 10*time.Second, dc.ControlTimeout)

	lvl, err := ParseLevel(cfg.LogLevel)
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "devcie: /dev/cdc-wdm0\n"},
		{"unknown flag", "open: [turbo]\n"},
		{"bad level", "logLevel: loud\n"},
		{"empty device", "device: \"\"\n"},
		{"zero control timeout", "timeouts: {control: 0}\n"},
		{"capture extension", "protocolLog: run.log\n"},
		{"negative timeout", "timeouts: {command: -1}\n"},
		{"conflicting link protocols", "open: [net-802-3, net-raw-ip]\n"},
		{"conflicting qos", "open: [net-qos-header, net-no-qos-header]\n"},
		{"proxy to qrtr", "device: qrtr://0\nproxy: true\n"},
		{"qrtr with net flags", "device: qrtr://0\nopen: [net-raw-ip]\n"},
		{"qrtr node out of range", "device: qrtr://4294967296\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestValidateWrapsErrInvalid(t *testing.T) {
	cfg := Default()
	cfg.Device = ""
	cfg.LogLevel = "loud"

	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "device is required")
	assert.Contains(t, err.Error(), "unknown log level")
}

func TestValidateAcceptsQRTR(t *testing.T) {
	cfg, err := Parse([]byte("device: qrtr://0\nopen: [version-info, sync]\n"))
	require.NoError(t, err)
	assert.Equal(t, "qrtr://0", cfg.Device)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "qmi.yaml")
	require.NoError(t, os.WriteFile(path, []byte("device: /dev/cdc-wdm2\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/dev/cdc-wdm2", cfg.Device)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("open: [sync, bogus]\n"), 0o600))
	_, err = Load(bad)
	require.True(t, errors.As(err, &le))
	assert.Equal(t, bad, le.Path)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestParseOpenFlags(t *testing.T) {
	flags, err := ParseOpenFlags([]string{"Sync", " proxy ", "expect-indications", "none"})
	require.NoError(t, err)
	assert.Equal(t, device.OpenSync|device.OpenProxy|device.OpenExpectIndications, flags)

	flags, err = ParseOpenFlags([]string{"net-raw-ip", "net-no-qos-header"})
	require.NoError(t, err)
	assert.Equal(t, device.OpenNetRawIP|device.OpenNetNoQoSHeader, flags)

	_, err = ParseOpenFlags([]string{"net-raw-ip", "NET-802-3"})
	assert.ErrorIs(t, err, device.ErrInvalidFlags)
}

func TestProxySocketName(t *testing.T) {
	cfg := Default()
	assert.Equal(t, transport.ProxySocket, cfg.ProxySocketName())
	cfg.ProxySocket = "@test-proxy"
	assert.Equal(t, "@test-proxy", cfg.ProxySocketName())

	cfg.ProxySpawn = "/usr/libexec/qmi-proxy"
	cfg.ProxyRetries = 3
	d := cfg.ProxyDialer(nil)
	assert.Equal(t, "@test-proxy", d.Socket)
	assert.Equal(t, "/usr/libexec/qmi-proxy", d.SpawnPath)
	assert.Equal(t, 3, d.Retries)
}
