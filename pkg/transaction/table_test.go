package transaction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qmi-protocol/qmi-go/pkg/wire"
)

var (
	nasKey = Key{Service: wire.ServiceNAS, ClientID: 2}
	ctlKey = Key{Service: wire.ServiceCTL, ClientID: wire.CIDControl}
)

func response(t *testing.T, key Key, txid uint16) *wire.Message {
	t.Helper()
	m, err := wire.NewResponse(key.Service, key.ClientID, txid, 0x0020, wire.ResultTLV(wire.ProtocolErrorNone))
	require.NoError(t, err)
	return m
}

func TestSubmitAssignsDistinctIDs(t *testing.T) {
	table := NewTable(DefaultConfig())

	first, err := table.Submit(nasKey, time.Minute)
	require.NoError(t, err)
	second, err := table.Submit(nasKey, time.Minute)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID(), second.ID())
	assert.Equal(t, uint16(1), first.ID())
	assert.Equal(t, uint16(2), second.ID())

	other, err := table.Submit(Key{Service: wire.ServiceNAS, ClientID: 3}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), other.ID(), "ids are allocated per client")
}

func TestSubmitConcurrent(t *testing.T) {
	table := NewTable(DefaultConfig())

	const n = 200
	ids := make(chan uint16, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx, err := table.Submit(nasKey, 0)
			if assert.NoError(t, err) {
				ids <- tx.ID()
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[uint16]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
	assert.Equal(t, n, table.Pending())
}

func TestCompleteResolvesOnlyMatchingTransaction(t *testing.T) {
	table := NewTable(DefaultConfig())
	first, err := table.Submit(nasKey, time.Minute)
	require.NoError(t, err)
	second, err := table.Submit(nasKey, time.Minute)
	require.NoError(t, err)

	resp := response(t, nasKey, second.ID())
	assert.True(t, table.Complete(nasKey, second.ID(), resp))

	select {
	case <-second.Done():
	default:
		t.Fatal("second transaction not resolved")
	}
	got, err := second.Result()
	require.NoError(t, err)
	assert.Same(t, resp, got)
	assert.Equal(t, StateCompleted, second.State())

	assert.Equal(t, StatePending, first.State())
	select {
	case <-first.Done():
		t.Fatal("first transaction resolved by another response")
	default:
	}
	assert.Equal(t, 1, table.Pending())
}

func TestCompleteRequiresExactKey(t *testing.T) {
	table := NewTable(DefaultConfig())
	tx, err := table.Submit(nasKey, time.Minute)
	require.NoError(t, err)

	wrongClient := Key{Service: wire.ServiceNAS, ClientID: 9}
	assert.False(t, table.Complete(wrongClient, tx.ID(), response(t, wrongClient, tx.ID())))

	wrongService := Key{Service: wire.ServiceWDS, ClientID: nasKey.ClientID}
	assert.False(t, table.Complete(wrongService, tx.ID(), response(t, wrongService, tx.ID())))

	assert.Equal(t, StatePending, tx.State())
}

func TestUnmatchedResponseIsDropped(t *testing.T) {
	table := NewTable(DefaultConfig())
	tx, err := table.Submit(nasKey, time.Minute)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		assert.False(t, table.Complete(nasKey, 999, response(t, nasKey, 999)))
	})
	assert.Equal(t, StatePending, tx.State())
	assert.Equal(t, 1, table.Pending())

	// A late duplicate of an already completed response is also dropped.
	require.True(t, table.Complete(nasKey, tx.ID(), response(t, nasKey, tx.ID())))
	assert.False(t, table.Complete(nasKey, tx.ID(), response(t, nasKey, tx.ID())))
	assert.Equal(t, StateCompleted, tx.State())
}

func TestTimeoutWithRunningSweep(t *testing.T) {
	table := NewTable(DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go table.Run(ctx, time.Millisecond)

	tx, err := table.Submit(nasKey, time.Nanosecond)
	require.NoError(t, err)

	select {
	case <-tx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("transaction did not time out")
	}
	_, err = tx.Result()
	assert.True(t, errors.Is(err, ErrTimedOut))
	assert.Equal(t, StateTimedOut, tx.State())
	assert.Zero(t, table.Pending())
}

func TestExpireOverdue(t *testing.T) {
	now := time.Unix(1000, 0)
	cfg := DefaultConfig()
	cfg.Now = func() time.Time { return now }
	table := NewTable(cfg)

	short, err := table.Submit(nasKey, time.Second)
	require.NoError(t, err)
	long, err := table.Submit(nasKey, time.Hour)
	require.NoError(t, err)
	forever, err := table.Submit(nasKey, 0)
	require.NoError(t, err)
	assert.True(t, forever.Deadline().IsZero())

	assert.Zero(t, table.ExpireOverdue(now.Add(500*time.Millisecond)))
	assert.Equal(t, 1, table.ExpireOverdue(now.Add(time.Second)))
	assert.Equal(t, StateTimedOut, short.State())
	assert.Equal(t, StatePending, long.State())

	// A second sweep never fires the same transaction twice.
	assert.Zero(t, table.ExpireOverdue(now.Add(2*time.Second)))

	assert.Equal(t, 1, table.ExpireOverdue(now.Add(24*time.Hour)))
	assert.Equal(t, StatePending, forever.State())
}

func TestCancelResolvesImmediately(t *testing.T) {
	table := NewTable(DefaultConfig())
	tx, err := table.Submit(nasKey, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = tx.Wait(ctx)
	assert.True(t, errors.Is(err, ErrAborted))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, StateCancelled, tx.State())

	// The response arriving afterwards is dropped.
	assert.False(t, table.Complete(nasKey, tx.ID(), response(t, nasKey, tx.ID())))
}

func TestWaitReturnsResponse(t *testing.T) {
	table := NewTable(DefaultConfig())
	tx, err := table.Submit(nasKey, time.Minute)
	require.NoError(t, err)

	resp := response(t, nasKey, tx.ID())
	go table.Complete(nasKey, tx.ID(), resp)

	got, err := tx.Wait(context.Background())
	require.NoError(t, err)
	assert.Same(t, resp, got)
}

func TestAbortLosesToEarlierResponse(t *testing.T) {
	table := NewTable(DefaultConfig())
	tx, err := table.Submit(nasKey, time.Minute)
	require.NoError(t, err)

	resp := response(t, nasKey, tx.ID())
	require.True(t, table.Complete(nasKey, tx.ID(), resp))
	assert.False(t, table.Abort(nasKey, tx.ID(), nil))

	got, err := tx.Result()
	require.NoError(t, err)
	assert.Same(t, resp, got)
	assert.Equal(t, StateCompleted, tx.State())
}

func TestAbortResolvesPending(t *testing.T) {
	table := NewTable(DefaultConfig())
	tx, err := table.Submit(nasKey, time.Minute)
	require.NoError(t, err)

	assert.True(t, tx.Abort(nil))
	_, err = tx.Result()
	assert.True(t, errors.Is(err, ErrAborted))
	assert.Equal(t, StateAborted, tx.State())
}

func TestShutdownAllLeavesNothingPending(t *testing.T) {
	var resolved []State
	var mu sync.Mutex
	cfg := DefaultConfig()
	cfg.OnResolve = func(tx *Transaction) {
		mu.Lock()
		resolved = append(resolved, tx.State())
		mu.Unlock()
	}
	table := NewTable(cfg)

	var txs []*Transaction
	for _, key := range []Key{nasKey, ctlKey, {Service: wire.ServiceWDS, ClientID: 7}} {
		for i := 0; i < 3; i++ {
			tx, err := table.Submit(key, 0)
			require.NoError(t, err)
			txs = append(txs, tx)
		}
	}

	portClosed := errors.New("port closed")
	assert.Equal(t, len(txs), table.ShutdownAll(portClosed))
	assert.Zero(t, table.Pending())

	for _, tx := range txs {
		select {
		case <-tx.Done():
		default:
			t.Fatalf("transaction %d still pending", tx.ID())
		}
		_, err := tx.Result()
		assert.True(t, errors.Is(err, portClosed))
		assert.Equal(t, StateAborted, tx.State())
	}
	assert.Len(t, resolved, len(txs))

	// The table is usable again.
	tx, err := table.Submit(nasKey, 0)
	require.NoError(t, err)
	assert.Equal(t, StatePending, tx.State())
}

func TestIDsWrapAndSkipInFlight(t *testing.T) {
	table := NewTable(DefaultConfig())

	// Keep id 1 busy, then cycle through the rest of the 8-bit CTL space.
	busy, err := table.Submit(ctlKey, 0)
	require.NoError(t, err)
	require.Equal(t, uint16(1), busy.ID())

	for want := uint16(2); want <= 0xFF; want++ {
		tx, err := table.Submit(ctlKey, 0)
		require.NoError(t, err)
		require.Equal(t, want, tx.ID())
		require.True(t, tx.Cancel(nil))
	}

	tx, err := table.Submit(ctlKey, 0)
	require.NoError(t, err)
	assert.Equal(t, uint16(2), tx.ID(), "wraps past 0xFF, skipping 0 and busy id 1")
}

func TestExhausted(t *testing.T) {
	table := NewTable(DefaultConfig())
	for i := 0; i < 0xFF; i++ {
		_, err := table.Submit(ctlKey, 0)
		require.NoError(t, err)
	}
	_, err := table.Submit(ctlKey, 0)
	assert.True(t, errors.Is(err, ErrExhausted))

	table.ShutdownAll(nil)
	_, err = table.Submit(ctlKey, 0)
	assert.NoError(t, err)
}

func TestRunStopsWithContext(t *testing.T) {
	table := NewTable(DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- table.Run(ctx, time.Millisecond) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}
