package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/qmi-protocol/qmi-go/pkg/device"
	"github.com/qmi-protocol/qmi-go/pkg/log"
	"github.com/qmi-protocol/qmi-go/pkg/transport"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid configuration")

// LoadError reports a configuration file that could not be read or parsed.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load config %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Config is the file format.
type Config struct {
	// Device is the control port path, e.g. /dev/cdc-wdm0.
	Device string `yaml:"device"`

	// Proxy reaches the device through qmi-proxy instead of opening it.
	Proxy bool `yaml:"proxy"`

	// ProxySocket overrides the proxy's abstract socket name.
	ProxySocket string `yaml:"proxySocket,omitempty"`

	// ProxySpawn is the qmi-proxy binary started when no proxy answers.
	ProxySpawn string `yaml:"proxySpawn,omitempty"`

	// ProxyRetries is how often a refused proxy dial is retried. Zero
	// uses the transport default; negative never retries.
	ProxyRetries int `yaml:"proxyRetries,omitempty"`

	// Open lists the open flags: version-info, sync, expect-indications,
	// net-802-3, net-raw-ip, net-qos-header, net-no-qos-header. proxy is
	// implied by Proxy.
	Open []string `yaml:"open,omitempty"`

	Timeouts Timeouts `yaml:"timeouts"`
	Trace    Trace    `yaml:"trace"`

	// ProtocolLog is a .qlog capture file. Empty disables capture.
	ProtocolLog string `yaml:"protocolLog,omitempty"`

	// MetricsAddr serves Prometheus metrics when set, e.g. ":9464".
	MetricsAddr string `yaml:"metricsAddr,omitempty"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `yaml:"logLevel"`
}

// Timeouts in whole seconds.
type Timeouts struct {
	Open    uint `yaml:"open"`
	Command uint `yaml:"command"`
	Control uint `yaml:"control"`
	Abort   uint `yaml:"abort"`
}

// Trace mirrors log.TraceConfig.
type Trace struct {
	Enabled          bool `yaml:"enabled"`
	ShowPersonalInfo bool `yaml:"showPersonalInfo"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Device: "/dev/cdc-wdm0",
		Open:   []string{"version-info"},
		Timeouts: Timeouts{
			Open:    10,
			Command: 30,
			Control: 10,
			Abort:   5,
		},
		LogLevel: "info",
	}
}

// Load reads path on top of Default and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return cfg, nil
}

// Parse decodes YAML on top of Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field values.
func (c *Config) Validate() error {
	var errs []error
	if c.Device == "" {
		errs = append(errs, errors.New("device is required"))
	}
	flags, err := ParseOpenFlags(c.Open)
	if err != nil {
		errs = append(errs, err)
	}
	if strings.HasPrefix(c.Device, transport.QRTRScheme) {
		if _, ok := transport.ParseQRTRURI(c.Device); !ok {
			errs = append(errs, fmt.Errorf("device %q: QRTR node must be a 32-bit number", c.Device))
		}
		if c.Proxy {
			errs = append(errs, errors.New("proxy cannot reach QRTR devices"))
		}
		if flags&(device.OpenNet8023|device.OpenNetRawIP|device.OpenNetQoSHeader|device.OpenNetNoQoSHeader) != 0 {
			errs = append(errs, errors.New("net-* open flags need a QMUX control port, not QRTR"))
		}
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.Timeouts.Control == 0 {
		errs = append(errs, errors.New("timeouts.control must be at least 1 second"))
	}
	if c.Timeouts.Abort == 0 {
		errs = append(errs, errors.New("timeouts.abort must be at least 1 second"))
	}
	if c.ProtocolLog != "" && !strings.HasSuffix(c.ProtocolLog, log.FileExtension) {
		errs = append(errs, fmt.Errorf("protocolLog %q must end in %s", c.ProtocolLog, log.FileExtension))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// ParseOpenFlags converts flag names to device.OpenFlags.
func ParseOpenFlags(names []string) (device.OpenFlags, error) {
	var flags device.OpenFlags
	for _, n := range names {
		switch strings.ToLower(strings.TrimSpace(n)) {
		case "version-info":
			flags |= device.OpenVersionInfo
		case "sync":
			flags |= device.OpenSync
		case "proxy":
			flags |= device.OpenProxy
		case "expect-indications":
			flags |= device.OpenExpectIndications
		case "net-802-3":
			flags |= device.OpenNet8023
		case "net-raw-ip":
			flags |= device.OpenNetRawIP
		case "net-qos-header":
			flags |= device.OpenNetQoSHeader
		case "net-no-qos-header":
			flags |= device.OpenNetNoQoSHeader
		case "", "none":
		default:
			return 0, fmt.Errorf("unknown open flag %q", n)
		}
	}
	if err := flags.Validate(); err != nil {
		return 0, err
	}
	return flags, nil
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return l, nil
}

// Seconds converts a timeout field to a Duration.
func Seconds(n uint) time.Duration {
	return time.Duration(n) * time.Second
}

// OpenFlags returns the parsed open flags, with OpenProxy added when Proxy
// is set. It assumes Validate passed.
func (c *Config) OpenFlags() device.OpenFlags {
	flags, _ := ParseOpenFlags(c.Open)
	if c.Proxy {
		flags |= device.OpenProxy
	}
	return flags
}

// TraceConfig returns the trace settings for a device.
func (c *Config) TraceConfig() log.TraceConfig {
	return log.TraceConfig{Enabled: c.Trace.Enabled, ShowPersonalInfo: c.Trace.ShowPersonalInfo}
}

// DeviceConfig returns the device settings. Logger, ProtocolLogger and
// Registerer are left for the caller.
func (c *Config) DeviceConfig() device.Config {
	cfg := device.DefaultConfig()
	cfg.Trace = c.TraceConfig()
	cfg.ControlTimeout = Seconds(c.Timeouts.Control)
	cfg.AbortTimeout = Seconds(c.Timeouts.Abort)
	return cfg
}

// ProxyDialer returns a dialer for the configured proxy.
func (c *Config) ProxyDialer(logger *slog.Logger) *transport.ProxyDialer {
	return &transport.ProxyDialer{
		Socket:    c.ProxySocketName(),
		SpawnPath: c.ProxySpawn,
		Retries:   c.ProxyRetries,
		Logger:    logger,
	}
}

// ProxySocketName returns the proxy socket to dial.
func (c *Config) ProxySocketName() string {
	if c.ProxySocket != "" {
		return c.ProxySocket
	}
	return transport.ProxySocket
}
