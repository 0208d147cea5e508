package registry_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/qmi-protocol/qmi-go/pkg/registry"
	"github.com/qmi-protocol/qmi-go/pkg/registry/mocks"
	"github.com/qmi-protocol/qmi-go/pkg/wire"
)

func TestAllocateFromDevice(t *testing.T) {
	alloc := mocks.NewMockAllocator(t)
	alloc.EXPECT().AllocateCID(mock.Anything, wire.ServiceNAS).Return(uint8(3), nil).Once()

	r := registry.New(alloc, registry.Config{})
	c, err := r.Allocate(context.Background(), wire.ServiceNAS, wire.CIDNone)
	require.NoError(t, err)

	assert.Equal(t, wire.ServiceNAS, c.Service)
	assert.Equal(t, uint8(3), c.ClientID)
	assert.True(t, c.Allocated)
	assert.True(t, r.Routable(wire.ServiceNAS, 3))
	assert.False(t, r.Routable(wire.ServiceNAS, 4))

	got, ok := r.Lookup(wire.ServiceNAS, 3)
	require.True(t, ok)
	assert.Equal(t, c, got)
}

func TestAdoptExplicitClientID(t *testing.T) {
	// No expectations: adopting must not talk to the device.
	alloc := mocks.NewMockAllocator(t)
	r := registry.New(alloc, registry.Config{})

	c, err := r.Allocate(context.Background(), wire.ServiceDMS, 7)
	require.NoError(t, err)
	assert.Equal(t, uint8(7), c.ClientID)
	assert.False(t, c.Allocated)
	assert.True(t, r.Routable(wire.ServiceDMS, 7))
}

func TestAllocateRejectsDuplicates(t *testing.T) {
	alloc := mocks.NewMockAllocator(t)
	r := registry.New(alloc, registry.Config{})

	_, err := r.Allocate(context.Background(), wire.ServiceDMS, 7)
	require.NoError(t, err)
	_, err = r.Allocate(context.Background(), wire.ServiceDMS, 7)
	assert.True(t, errors.Is(err, registry.ErrDuplicateClient))

	// Same id on another service is fine.
	_, err = r.Allocate(context.Background(), wire.ServiceWDS, 7)
	assert.NoError(t, err)
}

func TestAllocateDuplicateFromDeviceIsReturned(t *testing.T) {
	alloc := mocks.NewMockAllocator(t)
	alloc.EXPECT().AllocateCID(mock.Anything, wire.ServiceWDS).Return(uint8(5), nil).Once()
	alloc.EXPECT().ReleaseCID(mock.Anything, wire.ServiceWDS, uint8(5)).Return(nil).Once()

	r := registry.New(alloc, registry.Config{})
	_, err := r.Allocate(context.Background(), wire.ServiceWDS, 5)
	require.NoError(t, err)

	_, err = r.Allocate(context.Background(), wire.ServiceWDS, wire.CIDNone)
	assert.True(t, errors.Is(err, registry.ErrDuplicateClient))
	assert.Equal(t, 1, r.Len())
}

func TestAllocateFailure(t *testing.T) {
	denied := &wire.ProtocolError{Code: wire.ProtocolErrorClientIDsExhausted, Service: wire.ServiceCTL}

	tests := []struct {
		name string
		cid  uint8
		err  error
	}{
		{"device error", 0, denied},
		{"reserved control id", wire.CIDControl, nil},
		{"reserved none id", wire.CIDNone, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alloc := mocks.NewMockAllocator(t)
			alloc.EXPECT().AllocateCID(mock.Anything, wire.ServiceUIM).Return(tt.cid, tt.err).Once()

			r := registry.New(alloc, registry.Config{})
			_, err := r.Allocate(context.Background(), wire.ServiceUIM, wire.CIDNone)
			assert.True(t, errors.Is(err, registry.ErrAllocationFailed))
			if tt.err != nil {
				assert.True(t, errors.Is(err, wire.ErrDeviceError))
			}
			assert.Zero(t, r.Len())
		})
	}
}

func TestAllocateInvalid(t *testing.T) {
	r := registry.New(mocks.NewMockAllocator(t), registry.Config{})

	_, err := r.Allocate(context.Background(), wire.ServiceCTL, wire.CIDNone)
	assert.True(t, errors.Is(err, registry.ErrInvalidClientID))

	_, err = r.Allocate(context.Background(), wire.ServiceNAS, wire.CIDControl)
	assert.True(t, errors.Is(err, registry.ErrInvalidClientID))
}

func TestReleaseRemovesLocallyEvenWhenDeviceFails(t *testing.T) {
	alloc := mocks.NewMockAllocator(t)
	alloc.EXPECT().AllocateCID(mock.Anything, wire.ServiceNAS).Return(uint8(2), nil).Once()
	linkDown := errors.New("link down")
	alloc.EXPECT().ReleaseCID(mock.Anything, wire.ServiceNAS, uint8(2)).Return(linkDown).Once()

	r := registry.New(alloc, registry.Config{})
	_, err := r.Allocate(context.Background(), wire.ServiceNAS, wire.CIDNone)
	require.NoError(t, err)

	err = r.Release(context.Background(), wire.ServiceNAS, 2, registry.ReleaseCID)
	assert.True(t, errors.Is(err, linkDown))
	assert.False(t, r.Routable(wire.ServiceNAS, 2))
	assert.Zero(t, r.Len())

	// The id can be taken again.
	_, err = r.Allocate(context.Background(), wire.ServiceNAS, 2)
	assert.NoError(t, err)
}

func TestReleaseWithoutFlagSkipsDevice(t *testing.T) {
	alloc := mocks.NewMockAllocator(t)
	r := registry.New(alloc, registry.Config{})
	_, err := r.Allocate(context.Background(), wire.ServiceNAS, 4)
	require.NoError(t, err)

	assert.NoError(t, r.Release(context.Background(), wire.ServiceNAS, 4, registry.ReleaseNone))
	alloc.AssertNotCalled(t, "ReleaseCID", mock.Anything, mock.Anything, mock.Anything)

	err = r.Release(context.Background(), wire.ServiceNAS, 4, registry.ReleaseNone)
	assert.True(t, errors.Is(err, registry.ErrUnknownClient))
}

func TestRoutableBroadcastAndCTL(t *testing.T) {
	r := registry.New(mocks.NewMockAllocator(t), registry.Config{})

	assert.True(t, r.Routable(wire.ServiceCTL, wire.CIDControl))
	assert.False(t, r.Routable(wire.ServiceNAS, wire.CIDBroadcast))

	_, err := r.Allocate(context.Background(), wire.ServiceNAS, 9)
	require.NoError(t, err)
	assert.True(t, r.Routable(wire.ServiceNAS, wire.CIDBroadcast))
	assert.False(t, r.Routable(wire.ServiceWDS, wire.CIDBroadcast))
}

func TestClientsAndClear(t *testing.T) {
	r := registry.New(mocks.NewMockAllocator(t), registry.Config{})
	for _, c := range []registry.Client{
		{Service: wire.ServiceWDS, ClientID: 2},
		{Service: wire.ServiceDMS, ClientID: 9},
		{Service: wire.ServiceDMS, ClientID: 1},
	} {
		_, err := r.Allocate(context.Background(), c.Service, c.ClientID)
		require.NoError(t, err)
	}

	clients := r.Clients()
	require.Len(t, clients, 3)
	assert.Equal(t, "WDS/2", clients[0].String())
	assert.Equal(t, "DMS/1", clients[1].String())
	assert.Equal(t, "DMS/9", clients[2].String())

	removed := r.Clear()
	assert.Len(t, removed, 3)
	assert.Zero(t, r.Len())
}

func TestConcurrentAllocateRelease(t *testing.T) {
	r := registry.New(mocks.NewMockAllocator(t), registry.Config{})

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(cid uint8) {
			defer wg.Done()
			_, err := r.Allocate(context.Background(), wire.ServiceVOICE, cid)
			assert.NoError(t, err)
			assert.True(t, r.Routable(wire.ServiceVOICE, cid))
			assert.NoError(t, r.Release(context.Background(), wire.ServiceVOICE, cid, registry.ReleaseNone))
		}(uint8(i))
	}
	wg.Wait()
	assert.Zero(t, r.Len())
}

func TestClearConcurrentWithAdopt(t *testing.T) {
	r := registry.New(mocks.NewMockAllocator(t), registry.Config{})

	const n = 200
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			_, err := r.Allocate(context.Background(), wire.Service(1+i/100), uint8(1+i%100))
			assert.NoError(t, err)
		}
	}()

	// Every client is either reported by exactly one Clear or still
	// registered at the end; none may vanish between snapshot and reset.
	seen := 0
	for i := 0; i < 50; i++ {
		seen += len(r.Clear())
	}
	wg.Wait()
	seen += len(r.Clear())
	assert.Equal(t, n, seen)
	assert.Zero(t, r.Len())
}
