package indication

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/qmi-protocol/qmi-go/pkg/wire"
)

// Handler receives an indication. It runs on the device read path and must
// return quickly; use SubscribeChannel for work that may block.
type Handler func(msg *wire.Message)

// ID identifies a subscription.
type ID uint64

// Match selects the indications a subscription receives.
type Match struct {
	Service wire.Service

	// ClientID selects indications addressed to one client. Broadcast
	// indications reach every client of the service.
	ClientID uint8

	// AnyClient matches every client id of the service.
	AnyClient bool

	// MessageIDs restricts the match to these indication ids. Empty means
	// every indication.
	MessageIDs []uint16
}

// String returns a readable form of the match.
func (m Match) String() string {
	cid := fmt.Sprintf("%d", m.ClientID)
	if m.AnyClient {
		cid = "*"
	}
	if len(m.MessageIDs) == 0 {
		return fmt.Sprintf("%s/%s", m.Service, cid)
	}
	return fmt.Sprintf("%s/%s %v", m.Service, cid, m.MessageIDs)
}

func (m Match) matches(msg *wire.Message) bool {
	if msg.Service() != m.Service {
		return false
	}
	cid := msg.ClientID()
	if !m.AnyClient && cid != m.ClientID && cid != wire.CIDBroadcast {
		return false
	}
	if len(m.MessageIDs) > 0 && !slices.Contains(m.MessageIDs, msg.MessageID()) {
		return false
	}
	return true
}

type listener struct {
	id      ID
	match   Match
	handler Handler

	// Channel subscriptions only.
	mu     sync.Mutex
	ch     chan *wire.Message
	closed bool
}

// deliver hands msg to a channel subscriber without blocking.
func (l *listener) deliver(msg *wire.Message) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return true
	}
	select {
	case l.ch <- msg:
		return true
	default:
		return false
	}
}

func (l *listener) close() {
	if l.ch == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.ch)
	}
}

// Config configures a Dispatcher.
type Config struct {
	Logger *slog.Logger

	// OnDrop is called when a channel subscriber's buffer is full and an
	// indication is discarded.
	OnDrop func(m Match, msg *wire.Message)
}

// Dispatcher routes indications to subscribers. Subscribing and
// unsubscribing are safe at any time, including from inside a Handler.
type Dispatcher struct {
	mu        sync.Mutex
	listeners atomic.Pointer[[]*listener]
	nextID    ID

	dropped atomic.Uint64
	logger  *slog.Logger
	onDrop  func(Match, *wire.Message)
}

// New creates a dispatcher with no subscribers.
func New(cfg Config) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	d := &Dispatcher{
		logger: cfg.Logger,
		onDrop: cfg.OnDrop,
	}
	d.listeners.Store(&[]*listener{})
	return d
}

// Subscribe registers a handler and returns its subscription id.
func (d *Dispatcher) Subscribe(m Match, h Handler) ID {
	return d.add(&listener{match: m, handler: h})
}

// SubscribeChannel registers a buffered channel subscription. Indications
// that arrive while the buffer is full are dropped and counted. The channel
// is closed by Unsubscribe or Close.
func (d *Dispatcher) SubscribeChannel(m Match, size int) (ID, <-chan *wire.Message) {
	if size < 1 {
		size = 1
	}
	l := &listener{match: m, ch: make(chan *wire.Message, size)}
	return d.add(l), l.ch
}

func (d *Dispatcher) add(l *listener) ID {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	l.id = d.nextID

	old := *d.listeners.Load()
	next := make([]*listener, len(old), len(old)+1)
	copy(next, old)
	next = append(next, l)
	d.listeners.Store(&next)
	return l.id
}

// Unsubscribe removes a subscription. It reports whether id was active.
func (d *Dispatcher) Unsubscribe(id ID) bool {
	removed := d.remove(func(l *listener) bool { return l.id == id })
	return removed > 0
}

// UnsubscribeClient removes every subscription bound to one client of a
// service and returns how many were removed. Wildcard subscriptions stay.
func (d *Dispatcher) UnsubscribeClient(service wire.Service, cid uint8) int {
	return d.remove(func(l *listener) bool {
		return l.match.Service == service && !l.match.AnyClient && l.match.ClientID == cid
	})
}

// Close removes every subscription and closes every channel.
func (d *Dispatcher) Close() {
	d.remove(func(*listener) bool { return true })
}

func (d *Dispatcher) remove(drop func(*listener) bool) int {
	d.mu.Lock()
	old := *d.listeners.Load()
	next := make([]*listener, 0, len(old))
	var removed []*listener
	for _, l := range old {
		if drop(l) {
			removed = append(removed, l)
			continue
		}
		next = append(next, l)
	}
	if len(removed) > 0 {
		d.listeners.Store(&next)
	}
	d.mu.Unlock()

	for _, l := range removed {
		l.close()
	}
	return len(removed)
}

// Dispatch delivers msg to every matching subscriber and returns how many
// matched. Handlers run synchronously on the caller's goroutine against a
// snapshot of the subscriptions taken before the first one runs.
func (d *Dispatcher) Dispatch(msg *wire.Message) int {
	snapshot := *d.listeners.Load()

	n := 0
	for _, l := range snapshot {
		if !l.match.matches(msg) {
			continue
		}
		n++
		if l.ch != nil {
			if !l.deliver(msg) {
				d.dropped.Add(1)
				d.logger.Warn("indication dropped, subscriber is not keeping up",
					"subscription", l.match.String(),
					"message", msg.Name(),
					"id", fmt.Sprintf("0x%04x", msg.MessageID()))
				if d.onDrop != nil {
					d.onDrop(l.match, msg)
				}
			}
			continue
		}
		d.call(l, msg)
	}
	return n
}

func (d *Dispatcher) call(l *listener, msg *wire.Message) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("indication handler panicked",
				"subscription", l.match.String(),
				"message", msg.Name(),
				"panic", r)
		}
	}()
	l.handler(msg)
}

// Len returns the number of subscriptions.
func (d *Dispatcher) Len() int {
	return len(*d.listeners.Load())
}

// Dropped returns how many indications were discarded because a channel
// subscriber's buffer was full.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}
