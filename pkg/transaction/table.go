package transaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/qmi-protocol/qmi-go/pkg/wire"
)

// Transaction errors.
var (
	// ErrTimedOut is returned when no response arrived before the deadline.
	ErrTimedOut = errors.New("transaction timed out")

	// ErrAborted is returned when a transaction was cancelled or aborted
	// before its response arrived.
	ErrAborted = errors.New("transaction aborted")

	// ErrAbortFailed is returned when a confirmed abort was requested but the
	// device refused it or never confirmed it.
	ErrAbortFailed = errors.New("abort not confirmed by device")

	// ErrRoutingMismatch describes a response with no pending transaction.
	// It is only logged; no caller ever receives it.
	ErrRoutingMismatch = errors.New("no pending transaction for response")

	// ErrExhausted is returned when every transaction id of a key is in use.
	ErrExhausted = errors.New("no free transaction id")
)

// Key identifies the (service, client id) pair transaction ids are
// allocated for.
type Key struct {
	Service  wire.Service
	ClientID uint8
}

// String returns "SERVICE/cid".
func (k Key) String() string {
	return fmt.Sprintf("%s/%d", k.Service, k.ClientID)
}

// State is the lifecycle state of a transaction.
type State uint32

const (
	StatePending State = iota
	StateCompleted
	StateTimedOut
	StateAborted
	StateCancelled
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateCompleted:
		return "COMPLETED"
	case StateTimedOut:
		return "TIMED_OUT"
	case StateAborted:
		return "ABORTED"
	case StateCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	return s != StatePending
}

// Transaction is one in-flight request. It is resolved exactly once; after
// Done is closed its state and result never change.
type Transaction struct {
	table    *Table
	key      Key
	id       uint16
	created  time.Time
	timeout  time.Duration
	deadline time.Time

	state atomic.Uint32
	done  chan struct{}

	resp *wire.Message
	err  error
}

// ID returns the transaction id to put on the wire.
func (tx *Transaction) ID() uint16 { return tx.id }

// Key returns the (service, client id) the transaction belongs to.
func (tx *Transaction) Key() Key { return tx.key }

// State returns the current state.
func (tx *Transaction) State() State { return State(tx.state.Load()) }

// Created returns when the transaction was submitted.
func (tx *Transaction) Created() time.Time { return tx.created }

// Deadline returns the expiry time; zero means none.
func (tx *Transaction) Deadline() time.Time { return tx.deadline }

// Done is closed once the transaction reaches a terminal state.
func (tx *Transaction) Done() <-chan struct{} { return tx.done }

// Result returns the response or the error the transaction was resolved
// with. It must only be called after Done is closed.
func (tx *Transaction) Result() (*wire.Message, error) {
	return tx.resp, tx.err
}

// Wait blocks until the transaction is resolved or ctx is done. If ctx ends
// first the transaction is cancelled locally; a response that won the race
// is still returned.
func (tx *Transaction) Wait(ctx context.Context) (*wire.Message, error) {
	select {
	case <-tx.done:
		return tx.Result()
	case <-ctx.Done():
		tx.Cancel(ctx.Err())
		<-tx.done
		return tx.Result()
	}
}

// Cancel resolves tx locally with ErrAborted, as Table.Cancel does.
func (tx *Transaction) Cancel(cause error) bool {
	return tx.table.resolveTx(tx, StateCancelled, nil, abortedError(cause))
}

// Abort resolves tx as aborted, as Table.Abort does.
func (tx *Transaction) Abort(cause error) bool {
	return tx.table.resolveTx(tx, StateAborted, nil, abortedError(cause))
}

func abortedError(cause error) error {
	if cause == nil {
		return ErrAborted
	}
	return fmt.Errorf("%w: %w", ErrAborted, cause)
}

// Config configures a Table.
type Config struct {
	// Logger receives unmatched-response and timeout logs.
	Logger *slog.Logger

	// OnResolve, if set, is called after each transaction is resolved. It
	// runs with the table lock released and must not block.
	OnResolve func(tx *Transaction)

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns the default table configuration.
func DefaultConfig() Config {
	return Config{
		Logger: slog.Default(),
		Now:    time.Now,
	}
}

// Table tracks in-flight transactions keyed by (service, client id,
// transaction id). It is safe for concurrent use.
type Table struct {
	mu      sync.Mutex
	pending map[Key]map[uint16]*Transaction
	last    map[Key]uint16

	logger    *slog.Logger
	onResolve func(*Transaction)
	now       func() time.Time
}

// NewTable creates an empty table.
func NewTable(cfg Config) *Table {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Table{
		pending:   make(map[Key]map[uint16]*Transaction),
		last:      make(map[Key]uint16),
		logger:    cfg.Logger,
		onResolve: cfg.OnResolve,
		now:       cfg.Now,
	}
}

// Submit allocates the next free transaction id for key and registers a
// pending transaction. A zero timeout never expires.
//
// Ids increase monotonically per key, wrap at the width of the service's
// transaction id field and skip 0 and ids still in flight.
func (t *Table) Submit(key Key, timeout time.Duration) (*Transaction, error) {
	maxID := wire.MaxTransactionID(key.Service)

	t.mu.Lock()
	defer t.mu.Unlock()

	inFlight := t.pending[key]
	if len(inFlight) >= int(maxID) {
		return nil, fmt.Errorf("%w: %d transactions in flight for %s", ErrExhausted, len(inFlight), key)
	}

	id := t.last[key]
	for {
		if id >= maxID {
			id = 1
		} else {
			id++
		}
		if _, busy := inFlight[id]; !busy {
			break
		}
	}
	t.last[key] = id

	now := t.now()
	tx := &Transaction{
		table:   t,
		key:     key,
		id:      id,
		created: now,
		timeout: timeout,
		done:    make(chan struct{}),
	}
	if timeout > 0 {
		tx.deadline = now.Add(timeout)
	}

	if inFlight == nil {
		inFlight = make(map[uint16]*Transaction)
		t.pending[key] = inFlight
	}
	inFlight[id] = tx
	return tx, nil
}

// Complete resolves the pending transaction matching key and txid with
// resp. A response nobody is waiting for is logged and dropped; Complete
// then returns false.
func (t *Table) Complete(key Key, txid uint16, resp *wire.Message) bool {
	ok := t.resolve(key, txid, StateCompleted, resp, nil)
	if !ok {
		t.logger.Debug("dropping response",
			"error", ErrRoutingMismatch,
			"service", key.Service.String(),
			"cid", key.ClientID,
			"txid", txid)
	}
	return ok
}

// Cancel resolves a pending transaction locally with ErrAborted, wrapping
// cause when given. The request may still have been processed by the device.
func (t *Table) Cancel(key Key, txid uint16, cause error) bool {
	return t.resolve(key, txid, StateCancelled, nil, abortedError(cause))
}

// Abort resolves a pending transaction whose abort the device confirmed. It
// has no effect if the transaction was already resolved, so a response
// delivered first always wins.
func (t *Table) Abort(key Key, txid uint16, cause error) bool {
	return t.resolve(key, txid, StateAborted, nil, abortedError(cause))
}

// ExpireOverdue resolves every pending transaction whose deadline is not
// after now with ErrTimedOut and returns how many expired.
func (t *Table) ExpireOverdue(now time.Time) int {
	var expired []*Transaction

	t.mu.Lock()
	for _, inFlight := range t.pending {
		for _, tx := range inFlight {
			if tx.deadline.IsZero() || now.Before(tx.deadline) {
				continue
			}
			err := fmt.Errorf("%w: no response to %s txid %d after %s", ErrTimedOut, tx.key, tx.id, tx.timeout)
			if t.resolveLocked(tx, StateTimedOut, nil, err) {
				expired = append(expired, tx)
			}
		}
	}
	t.mu.Unlock()

	for _, tx := range expired {
		t.logger.Debug("transaction timed out",
			"service", tx.key.Service.String(),
			"cid", tx.key.ClientID,
			"txid", tx.id,
			"timeout", tx.timeout)
		t.notify(tx)
	}
	return len(expired)
}

// ShutdownAll resolves every pending transaction with err (ErrAborted if
// nil) and returns how many were pending. No transaction is left pending.
func (t *Table) ShutdownAll(err error) int {
	if err == nil {
		err = ErrAborted
	}

	var resolved []*Transaction
	t.mu.Lock()
	for _, inFlight := range t.pending {
		for _, tx := range inFlight {
			if t.resolveLocked(tx, StateAborted, nil, err) {
				resolved = append(resolved, tx)
			}
		}
	}
	t.pending = make(map[Key]map[uint16]*Transaction)
	t.mu.Unlock()

	for _, tx := range resolved {
		t.notify(tx)
	}
	return len(resolved)
}

// Pending returns the number of unresolved transactions.
func (t *Table) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, inFlight := range t.pending {
		n += len(inFlight)
	}
	return n
}

// Lookup returns the pending transaction for key and txid.
func (t *Table) Lookup(key Key, txid uint16) (*Transaction, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tx, ok := t.pending[key][txid]
	return tx, ok
}

// Run expires overdue transactions every interval until ctx is done.
func (t *Table) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			t.ExpireOverdue(t.now())
		}
	}
}

func (t *Table) resolve(key Key, txid uint16, state State, resp *wire.Message, err error) bool {
	t.mu.Lock()
	tx, ok := t.pending[key][txid]
	if ok {
		ok = t.resolveLocked(tx, state, resp, err)
	}
	t.mu.Unlock()

	if ok {
		t.notify(tx)
	}
	return ok
}

func (t *Table) resolveTx(tx *Transaction, state State, resp *wire.Message, err error) bool {
	t.mu.Lock()
	ok := t.resolveLocked(tx, state, resp, err)
	t.mu.Unlock()

	if ok {
		t.notify(tx)
	}
	return ok
}

// resolveLocked moves tx out of Pending. t.mu must be held.
func (t *Table) resolveLocked(tx *Transaction, state State, resp *wire.Message, err error) bool {
	if !tx.state.CompareAndSwap(uint32(StatePending), uint32(state)) {
		return false
	}
	tx.resp = resp
	tx.err = err
	if inFlight := t.pending[tx.key]; inFlight != nil {
		delete(inFlight, tx.id)
		if len(inFlight) == 0 {
			delete(t.pending, tx.key)
		}
	}
	close(tx.done)
	return true
}

func (t *Table) notify(tx *Transaction) {
	if t.onResolve != nil {
		t.onResolve(tx)
	}
}
