package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/qmi-protocol/qmi-go/pkg/ctl"
	"github.com/qmi-protocol/qmi-go/pkg/indication"
	"github.com/qmi-protocol/qmi-go/pkg/log"
	"github.com/qmi-protocol/qmi-go/pkg/registry"
	"github.com/qmi-protocol/qmi-go/pkg/transaction"
	"github.com/qmi-protocol/qmi-go/pkg/transport"
	"github.com/qmi-protocol/qmi-go/pkg/wire"
)

// Device errors.
var (
	// ErrPortClosed is returned to every caller still waiting when the
	// port closes or the transport hangs up.
	ErrPortClosed = errors.New("port closed")

	// ErrNotOpen is returned when a command is issued before Open
	// completed or after Close started.
	ErrNotOpen = errors.New("device not open")

	// ErrAlreadyOpen is returned by Open on a device that is not closed.
	ErrAlreadyOpen = errors.New("device already open")

	// ErrNotRequest is returned when Command is given a response or an
	// indication.
	ErrNotRequest = errors.New("message is not a request")

	// ErrInvalidFlags is returned by Open for mutually exclusive flags.
	ErrInvalidFlags = errors.New("invalid open flags")
)

// State is the port state.
type State int32

const (
	StateClosed State = iota
	StateOpening
	StateOpen
	StateClosing
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpening:
		return "OPENING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	default:
		return "UNKNOWN"
	}
}

// OpenFlags select the handshakes Open performs.
type OpenFlags uint32

const (
	// OpenVersionInfo queries the supported services and their versions.
	// The result is advisory; requests are never refused because of it.
	OpenVersionInfo OpenFlags = 1 << iota

	// OpenSync asks the modem to release every client id it handed out.
	OpenSync

	// OpenProxy runs the qmi-proxy open handshake. Use it with a
	// transport from transport.DialProxy.
	OpenProxy

	// OpenExpectIndications states that indications are wanted. QMI ports
	// always deliver them; the flag is recorded for callers to inspect.
	OpenExpectIndications

	// OpenNet8023 sets the network interface to 802.3 framing. Excludes
	// OpenNetRawIP.
	OpenNet8023

	// OpenNetRawIP sets the network interface to raw IP framing.
	OpenNetRawIP

	// OpenNetQoSHeader makes the network interface carry QoS headers.
	// Excludes OpenNetNoQoSHeader.
	OpenNetQoSHeader

	// OpenNetNoQoSHeader strips QoS headers from the network interface.
	OpenNetNoQoSHeader
)

// netFlags are the flags that make Open run Set Data Format.
const netFlags = OpenNet8023 | OpenNetRawIP | OpenNetQoSHeader | OpenNetNoQoSHeader

// Validate rejects flag sets that ask for both sides of a data format
// choice.
func (f OpenFlags) Validate() error {
	if f&OpenNet8023 != 0 && f&OpenNetRawIP != 0 {
		return fmt.Errorf("%w: %s", ErrInvalidFlags, f&(OpenNet8023|OpenNetRawIP))
	}
	if f&OpenNetQoSHeader != 0 && f&OpenNetNoQoSHeader != 0 {
		return fmt.Errorf("%w: %s", ErrInvalidFlags, f&(OpenNetQoSHeader|OpenNetNoQoSHeader))
	}
	return nil
}

// String returns the set flags joined with "|", or "none".
func (f OpenFlags) String() string {
	names := []struct {
		flag OpenFlags
		name string
	}{
		{OpenVersionInfo, "version-info"},
		{OpenSync, "sync"},
		{OpenProxy, "proxy"},
		{OpenExpectIndications, "expect-indications"},
		{OpenNet8023, "net-802-3"},
		{OpenNetRawIP, "net-raw-ip"},
		{OpenNetQoSHeader, "net-qos-header"},
		{OpenNetNoQoSHeader, "net-no-qos-header"},
	}
	s := ""
	for _, n := range names {
		if f&n.flag == 0 {
			continue
		}
		if s != "" {
			s += "|"
		}
		s += n.name
	}
	if s == "" {
		return "none"
	}
	return s
}

// Config configures a Device.
type Config struct {
	// Logger is the operational logger. Nil uses slog.Default().
	Logger *slog.Logger

	// ProtocolLogger receives frame, message and state capture events.
	// Nil disables capture.
	ProtocolLogger log.Logger

	// Trace controls printable message dumps at debug level.
	Trace log.TraceConfig

	// SweepInterval is how often overdue transactions are expired.
	SweepInterval time.Duration

	// ControlTimeout bounds the CTL requests the device issues on its own
	// (client id allocation and release, handshakes run by Open).
	ControlTimeout time.Duration

	// AbortTimeout bounds the wait for an abort confirmation.
	AbortTimeout time.Duration

	// SendQueueSize is the capacity of the outbound frame queue.
	SendQueueSize int

	// Registerer receives the device metrics. Nil leaves them
	// unregistered.
	Registerer prometheus.Registerer
}

// DefaultConfig returns a Config with the default timings.
func DefaultConfig() Config {
	return Config{
		SweepInterval:  100 * time.Millisecond,
		ControlTimeout: 10 * time.Second,
		AbortTimeout:   5 * time.Second,
		SendQueueSize:  32,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = def.SweepInterval
	}
	if c.ControlTimeout <= 0 {
		c.ControlTimeout = def.ControlTimeout
	}
	if c.AbortTimeout <= 0 {
		c.AbortTimeout = def.AbortTimeout
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = def.SendQueueSize
	}
}

type outbound struct {
	msg  *wire.Message
	errc chan error
}

// Device multiplexes QMI clients over one transport. It owns the read
// loop, the single writer and the transaction sweeper.
type Device struct {
	cfg     Config
	tr      transport.Transport
	framer  *transport.Framer
	logger  *slog.Logger
	capture log.Logger
	portID  string
	name    string

	lifeMu sync.Mutex
	used   bool
	state  atomic.Int32
	flags  atomic.Uint32

	table      *transaction.Table
	registry   *registry.Registry
	dispatcher *indication.Dispatcher
	metrics    *Metrics

	sendq  chan outbound
	cancel context.CancelFunc
	done   chan struct{}

	versionMu sync.RWMutex
	versions  []ctl.ServiceVersion
}

// New creates a closed device on top of tr. The device takes ownership of
// tr and closes it when the port closes.
func New(tr transport.Transport, cfg Config) (*Device, error) {
	cfg.applyDefaults()

	metrics, err := NewMetrics(cfg.Registerer)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	d := &Device{
		cfg:     cfg,
		tr:      tr,
		logger:  cfg.Logger.With("device", tr.Name()),
		capture: cfg.ProtocolLogger,
		portID:  uuid.NewString(),
		name:    tr.Name(),
		metrics: metrics,
		sendq:   make(chan outbound, cfg.SendQueueSize),
		done:    make(chan struct{}),
	}
	if d.capture == nil {
		d.capture = log.NoopLogger{}
	}

	d.framer = transport.NewFramer(tr, transport.FramerConfig{
		Logger:           d.logger,
		Capture:          cfg.ProtocolLogger,
		PortID:           d.portID,
		Device:           d.name,
		ShowPersonalInfo: cfg.Trace.ShowPersonalInfo,
	})
	d.table = transaction.NewTable(transaction.Config{
		Logger: d.logger,
		OnResolve: func(tx *transaction.Transaction) {
			d.metrics.observeResolved(d.name, tx, time.Now())
		},
	})
	d.registry = registry.New(&ctlAllocator{d: d}, registry.Config{Logger: d.logger})
	d.dispatcher = indication.New(indication.Config{
		Logger: d.logger,
		OnDrop: func(_ indication.Match, msg *wire.Message) {
			d.metrics.DroppedIndications(d.name, msg.Service()).Inc()
		},
	})
	return d, nil
}

// Name returns the transport name.
func (d *Device) Name() string { return d.name }

// PortID returns the unique id stamped on this device's capture events.
func (d *Device) PortID() string { return d.portID }

// State returns the current port state.
func (d *Device) State() State { return State(d.state.Load()) }

// IsOpen reports whether the port is open.
func (d *Device) IsOpen() bool { return d.State() == StateOpen }

// Flags returns the flags the port was opened with.
func (d *Device) Flags() OpenFlags { return OpenFlags(d.flags.Load()) }

// Metrics returns the device metrics.
func (d *Device) Metrics() *Metrics { return d.metrics }

// Done is closed once the port has fully closed, whether by Close or a
// transport hang-up.
func (d *Device) Done() <-chan struct{} { return d.done }

// Open starts the I/O loops and runs the handshakes selected by flags.
// timeout bounds each handshake request; zero waits indefinitely. If a
// handshake fails the port is closed and cannot be reopened.
func (d *Device) Open(ctx context.Context, flags OpenFlags, timeout time.Duration) error {
	if err := flags.Validate(); err != nil {
		return fmt.Errorf("open %s: %w", d.name, err)
	}

	d.lifeMu.Lock()
	if d.used {
		d.lifeMu.Unlock()
		if d.State() == StateClosed {
			return fmt.Errorf("%w: %s", ErrPortClosed, d.name)
		}
		return fmt.Errorf("%w: %s is %s", ErrAlreadyOpen, d.name, d.State())
	}
	d.used = true
	d.flags.Store(uint32(flags))

	loopCtx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.transition(StateClosed, StateOpening, "open requested")

	g, gctx := errgroup.WithContext(loopCtx)
	g.Go(d.readLoop)
	g.Go(func() error { return d.writeLoop(gctx) })
	g.Go(func() error { return d.table.Run(gctx, d.cfg.SweepInterval) })
	g.Go(func() error {
		<-gctx.Done()
		return d.tr.Close()
	})
	go d.supervise(g)
	d.lifeMu.Unlock()

	if err := d.handshake(ctx, flags, timeout); err != nil {
		d.logger.Warn("open handshake failed", "flags", flags.String(), "error", err)
		d.shutdown(StateOpening)
		return fmt.Errorf("open %s: %w", d.name, err)
	}

	if !d.transition(StateOpening, StateOpen, "handshake complete") {
		return fmt.Errorf("open %s: %w", d.name, ErrPortClosed)
	}
	d.logger.Info("device open", "flags", flags.String(), "port_id", d.portID)
	return nil
}

func (d *Device) handshake(ctx context.Context, flags OpenFlags, timeout time.Duration) error {
	if flags&OpenProxy != 0 {
		if err := d.proxyOpen(ctx, timeout); err != nil {
			return fmt.Errorf("proxy open: %w", err)
		}
	}
	if flags&OpenVersionInfo != 0 {
		versions, err := d.ServiceVersionInfo(ctx, timeout)
		if err != nil {
			return fmt.Errorf("version info: %w", err)
		}
		for _, v := range versions {
			d.logger.Debug("service supported", "service", v.Service.String(), "version", fmt.Sprintf("%d.%d", v.Major, v.Minor))
		}
	}
	if flags&OpenSync != 0 {
		if err := d.Sync(ctx, timeout); err != nil {
			return fmt.Errorf("sync: %w", err)
		}
	}
	if flags&netFlags != 0 {
		link, err := d.SetDataFormat(ctx, flags&OpenNetQoSHeader != 0, linkProtocol(flags), timeout)
		if err != nil {
			return fmt.Errorf("set data format: %w", err)
		}
		d.logger.Debug("data format set", "link_protocol", link.String())
	}
	return nil
}

func linkProtocol(flags OpenFlags) ctl.LinkProtocol {
	switch {
	case flags&OpenNet8023 != 0:
		return ctl.LinkProtocol8023
	case flags&OpenNetRawIP != 0:
		return ctl.LinkProtocolRawIP
	default:
		return ctl.LinkProtocolUnknown
	}
}

// Close closes the port. Pending transactions fail with ErrPortClosed and
// the client registry is cleared without releasing ids on the wire. Close
// is idempotent and safe to call concurrently.
func (d *Device) Close(ctx context.Context) error {
	d.lifeMu.Lock()
	if !d.used {
		// Never opened; the transport is still ours to close.
		d.used = true
		d.lifeMu.Unlock()
		d.metrics.Unregister(d.cfg.Registerer)
		close(d.done)
		return d.tr.Close()
	}
	d.lifeMu.Unlock()

	for {
		switch s := d.State(); s {
		case StateClosed, StateClosing:
			return d.wait(ctx)
		default:
			if d.transition(s, StateClosing, "close requested") {
				d.cancel()
				return d.wait(ctx)
			}
		}
	}
}

func (d *Device) wait(ctx context.Context) error {
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// shutdown is Close for a failed Open.
func (d *Device) shutdown(from State) {
	if d.transition(from, StateClosing, "open failed") {
		d.cancel()
	}
	<-d.done
}

// supervise waits for the I/O loops to stop and tears the port down.
func (d *Device) supervise(g *errgroup.Group) {
	err := g.Wait()

	cause := ErrPortClosed
	reason := "closed"
	if s := d.State(); s != StateClosing {
		cause = fmt.Errorf("%w: %w", ErrPortClosed, err)
		reason = fmt.Sprintf("transport hang-up: %v", err)
		d.logger.Warn("transport hang-up", "error", err)
		d.setState(StateClosing, reason)
	}

	n := d.table.ShutdownAll(cause)
	clients := d.registry.Clear()
	d.dispatcher.Close()
	d.metrics.Clients(d.name).Set(0)
	d.metrics.Unregister(d.cfg.Registerer)
	if n > 0 || len(clients) > 0 {
		d.logger.Debug("port teardown", "failed_transactions", n, "dropped_clients", len(clients))
	}

	d.setState(StateClosed, reason)
	close(d.done)
}

func (d *Device) transition(from, to State, reason string) bool {
	if !d.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	d.logState(from, to, reason)
	return true
}

func (d *Device) setState(to State, reason string) {
	from := State(d.state.Swap(int32(to)))
	if from != to {
		d.logState(from, to, reason)
	}
}

func (d *Device) logState(from, to State, reason string) {
	d.logger.Debug("state change", "from", from.String(), "to", to.String(), "reason", reason)
	d.capture.Log(log.Event{
		Timestamp: time.Now(),
		PortID:    d.portID,
		Device:    d.name,
		Layer:     log.LayerDevice,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityPort,
			OldState: from.String(),
			NewState: to.String(),
			Reason:   reason,
		},
	})
}

func (d *Device) readLoop() error {
	for {
		frame, err := d.framer.ReadFrame()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		msg, err := wire.Decode(frame)
		if err != nil {
			d.metrics.DecodeErrors(d.name).Inc()
			d.logger.Warn("dropping unparseable frame", "bytes", len(frame), "error", err)
			d.captureError(log.LayerWire, err, "decode")
			continue
		}
		d.route(msg)
	}
}

func (d *Device) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case out := <-d.sendq:
			d.traceMessage(log.DirectionOut, out.msg, 0)
			err := d.framer.WriteFrame(out.msg.Bytes())
			out.errc <- err
			if err != nil {
				return err
			}
		}
	}
}

func (d *Device) route(msg *wire.Message) {
	switch msg.Kind() {
	case wire.KindResponse:
		key := transaction.Key{Service: msg.Service(), ClientID: msg.ClientID()}
		var elapsed time.Duration
		if tx, ok := d.table.Lookup(key, msg.TransactionID()); ok {
			elapsed = time.Since(tx.Created())
		}
		d.traceMessage(log.DirectionIn, msg, elapsed)
		if !d.table.Complete(key, msg.TransactionID(), msg) {
			d.metrics.UnmatchedResponses(d.name, msg.Service()).Inc()
		}

	case wire.KindIndication:
		d.traceMessage(log.DirectionIn, msg, 0)
		d.metrics.IndicationsTotal(d.name, msg.Service()).Inc()
		if ctl.IsSyncIndication(msg) {
			d.logger.Info("modem sent sync indication")
		}
		if d.dispatcher.Dispatch(msg) == 0 {
			d.logger.Debug("indication without listener",
				"service", msg.Service().String(),
				"cid", msg.ClientID(),
				"message", msg.Name())
		}

	default:
		d.traceMessage(log.DirectionIn, msg, 0)
		d.logger.Warn("dropping request received from modem",
			"service", msg.Service().String(),
			"message", fmt.Sprintf("0x%04x", msg.MessageID()))
	}
}

// send queues a frame for the writer and waits until it is written.
func (d *Device) send(ctx context.Context, msg *wire.Message) error {
	out := outbound{msg: msg, errc: make(chan error, 1)}
	select {
	case d.sendq <- out:
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-d.done:
		return ErrPortClosed
	}

	select {
	case err := <-out.errc:
		return err
	case <-d.done:
		return ErrPortClosed
	}
}

func (d *Device) captureError(layer log.Layer, err error, context string) {
	ev := &log.ErrorEventData{Layer: layer, Message: err.Error(), Context: context}
	if code, ok := wire.ProtocolErrorCodeOf(err); ok {
		c := int(code)
		ev.Code = &c
	}
	d.capture.Log(log.Event{
		Timestamp: time.Now(),
		PortID:    d.portID,
		Device:    d.name,
		Direction: log.DirectionIn,
		Layer:     layer,
		Category:  log.CategoryError,
		Error:     ev,
	})
}
