// Command qmicli talks to a QMI modem control port.
//
// It opens the port directly or through qmi-proxy, runs one command and
// exits, or starts an interactive shell that keeps the port open.
//
// Usage:
//
//	qmicli [flags] <command> [args]
//
// Commands:
//
//	version-info                     List the services the modem supports
//	sync                             Release every client id on the modem
//	set-instance-id <n>              Bind the port to a data instance
//	send <svc> <msgid> [tag=hex...]  Allocate a client, send one request, release
//	shell                            Interactive session
//
// Flags:
//
//	-config string        Configuration file path (YAML)
//	-device string        Control port path or qrtr://NODE (default "/dev/cdc-wdm0")
//	-proxy                Reach the device through qmi-proxy
//	-open string          Comma separated open flags: version-info, sync,
//	                      expect-indications, net-802-3, net-raw-ip,
//	                      net-qos-header, net-no-qos-header
//	-timeout uint         Command timeout in seconds, 0 waits indefinitely
//	-client-id int        Adopt this client id for send instead of allocating one
//	-no-release           Keep the client allocated after send
//	-log-level string     Log level: debug, info, warn, error
//	-trace                Dump every message at debug level
//	-show-personal-info   Include TLV values in dumps and captures
//	-protocol-log string  File path for protocol event logging (CBOR format)
//	-metrics-addr string  Serve Prometheus metrics on this address
//
// Examples:
//
//	# Ask the modem for its service versions
//	qmicli -device /dev/cdc-wdm0 version-info
//
//	# DMS Get Manufacturer through the proxy, with a capture file
//	qmicli -proxy -protocol-log /tmp/modem.qlog send dms 0x0021
//
//	# Interactive session with message dumps
//	qmicli -trace -log-level debug shell
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/qmi-protocol/qmi-go/pkg/config"
	"github.com/qmi-protocol/qmi-go/pkg/device"
	qmilog "github.com/qmi-protocol/qmi-go/pkg/log"
	"github.com/qmi-protocol/qmi-go/pkg/transport"
	"github.com/qmi-protocol/qmi-go/pkg/wire"
)

// Options holds the command line values. Flags that were not given leave
// the configuration file value in place.
type Options struct {
	ConfigFile       string
	Device           string
	Proxy            bool
	Open             string
	Timeout          uint
	ClientID         int
	NoRelease        bool
	LogLevel         string
	Trace            bool
	ShowPersonalInfo bool
	ProtocolLog      string
	MetricsAddr      string
}

var opts Options

func init() {
	flag.StringVar(&opts.ConfigFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&opts.Device, "device", "", "Control port path or qrtr://NODE (default \"/dev/cdc-wdm0\")")
	flag.BoolVar(&opts.Proxy, "proxy", false, "Reach the device through qmi-proxy")
	flag.StringVar(&opts.Open, "open", "", "Comma separated open flags: version-info, sync, expect-indications, net-802-3, net-raw-ip, net-qos-header, net-no-qos-header")
	flag.UintVar(&opts.Timeout, "timeout", 0, "Command timeout in seconds, 0 waits indefinitely")
	flag.IntVar(&opts.ClientID, "client-id", -1, "Adopt this client id for send instead of allocating one")
	flag.BoolVar(&opts.NoRelease, "no-release", false, "Keep the client allocated after send")
	flag.StringVar(&opts.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.BoolVar(&opts.Trace, "trace", false, "Dump every message at debug level")
	flag.BoolVar(&opts.ShowPersonalInfo, "show-personal-info", false, "Include TLV values in dumps and captures")
	flag.StringVar(&opts.ProtocolLog, "protocol-log", "", "File path for protocol event logging (CBOR format)")
	flag.StringVar(&opts.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	if err := checkOptions(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		usage()
		os.Exit(2)
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg, err := loadConfig(opts, set)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, flag.Args()); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `Usage: qmicli [flags] <command> [args]

Commands:
  version-info                     List the services the modem supports
  sync                             Release every client id on the modem
  set-instance-id <n>              Bind the port to a data instance
  send <svc> <msgid> [tag=hex...]  Allocate a client, send one request, release
  shell                            Interactive session

Flags:
`)
	flag.PrintDefaults()
}

// checkOptions rejects flag values that cannot be represented on the wire.
func checkOptions(o Options) error {
	if o.ClientID < -1 || o.ClientID > math.MaxUint8 {
		return fmt.Errorf("-client-id %d out of range, want 0..%d or -1 to allocate", o.ClientID, math.MaxUint8)
	}
	return nil
}

// loadConfig reads the configuration file, if any, and applies the flags
// that were set on the command line.
func loadConfig(o Options, set map[string]bool) (*config.Config, error) {
	cfg := config.Default()
	if o.ConfigFile != "" {
		loaded, err := config.Load(o.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if set["device"] {
		cfg.Device = o.Device
	}
	if set["proxy"] {
		cfg.Proxy = o.Proxy
	}
	if set["open"] {
		cfg.Open = splitList(o.Open)
	}
	if set["timeout"] {
		cfg.Timeouts.Command = o.Timeout
	}
	if set["log-level"] {
		cfg.LogLevel = o.LogLevel
	}
	if set["trace"] {
		cfg.Trace.Enabled = o.Trace
	}
	if set["show-personal-info"] {
		cfg.Trace.ShowPersonalInfo = o.ShowPersonalInfo
	}
	if set["protocol-log"] {
		cfg.ProtocolLog = o.ProtocolLog
	}
	if set["metrics-addr"] {
		cfg.MetricsAddr = o.MetricsAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func setupLogging(level slog.Level, w io.Writer) *slog.Logger {
	log.SetFlags(log.Ltime)
	if level <= slog.LevelDebug {
		log.SetFlags(log.Ltime | log.Lmicroseconds)
	}
	log.SetOutput(w)
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func run(cfg *config.Config, args []string) error {
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := setupLogging(level, os.Stderr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			log.Printf("Received signal: %v", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	devCfg := cfg.DeviceConfig()
	devCfg.Logger = logger

	// Only set the capture logger when non-nil to avoid a typed-nil
	// interface.
	if cfg.ProtocolLog != "" {
		fileLogger, err := qmilog.NewFileLogger(cfg.ProtocolLog)
		if err != nil {
			return fmt.Errorf("create protocol logger: %w", err)
		}
		capture := qmilog.NewMultiLogger(fileLogger)
		if level <= slog.LevelDebug {
			capture = qmilog.NewMultiLogger(capture, qmilog.NewSlogAdapter(logger))
		}
		defer func() {
			capture.Close()
			if n := fileLogger.Dropped(); n > 0 {
				log.Printf("Protocol log dropped %d events", n)
			}
		}()
		devCfg.ProtocolLogger = capture
		log.Printf("Protocol logging to: %s", cfg.ProtocolLog)
	}

	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		devCfg.Registerer = reg
		stop, err := serveMetrics(cfg.MetricsAddr, reg)
		if err != nil {
			return err
		}
		defer stop()
	}

	tr, err := openTransport(ctx, cfg, logger)
	if err != nil {
		return err
	}
	dev, err := device.New(tr, devCfg)
	if err != nil {
		tr.Close()
		return err
	}

	if err := dev.Open(ctx, cfg.OpenFlags(), config.Seconds(cfg.Timeouts.Open)); err != nil {
		return fmt.Errorf("open %s: %w", cfg.Device, err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := dev.Close(closeCtx); err != nil {
			log.Printf("Close: %v", err)
		}
	}()

	cli := &CLI{
		dev:     dev,
		out:     os.Stdout,
		timeout: config.Seconds(cfg.Timeouts.Command),
		print:   wire.PrintOptions{HidePersonalInfo: !cfg.Trace.ShowPersonalInfo},
	}

	if args[0] == "shell" {
		sh, err := NewShell(cli)
		if err != nil {
			return err
		}
		// Keep log output from tearing up the prompt.
		log.SetOutput(sh.Stdout())
		slog.SetDefault(slog.New(slog.NewTextHandler(sh.Stdout(), &slog.HandlerOptions{Level: level})))
		sh.Run(ctx, cancel)
		return nil
	}

	return cli.Exec(ctx, args[0], args[1:], sendOptions{
		clientID: opts.ClientID,
		release:  !opts.NoRelease,
	})
}

func openTransport(ctx context.Context, cfg *config.Config, logger *slog.Logger) (transport.Transport, error) {
	if cfg.Timeouts.Open > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.Seconds(cfg.Timeouts.Open))
		defer cancel()
	}
	if node, ok := transport.ParseQRTRURI(cfg.Device); ok {
		return transport.OpenQRTR(ctx, node, transport.QRTRConfig{Logger: logger})
	}
	if cfg.Proxy {
		return cfg.ProxyDialer(logger).Dial(ctx, cfg.Device)
	}
	return transport.OpenFile(cfg.Device)
}

// serveMetrics exposes reg on addr under /metrics and returns a function
// that shuts the server down.
func serveMetrics(addr string, reg *prometheus.Registry) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Metrics server: %v", err)
		}
	}()
	log.Printf("Metrics on http://%s/metrics", ln.Addr())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}, nil
}
