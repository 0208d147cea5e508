package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/qmi-protocol/qmi-go/pkg/wire"
)

// Registry errors.
var (
	// ErrDuplicateClient is returned when a (service, client id) pair is
	// already active.
	ErrDuplicateClient = errors.New("client already registered")

	// ErrAllocationFailed is returned when the CTL service did not grant a
	// client id.
	ErrAllocationFailed = errors.New("client id allocation failed")

	// ErrUnknownClient is returned when releasing a client that is not
	// registered.
	ErrUnknownClient = errors.New("unknown client")

	// ErrInvalidClientID is returned for client ids that cannot be adopted.
	ErrInvalidClientID = errors.New("invalid client id")
)

// ReleaseFlags controls Release.
type ReleaseFlags uint8

const (
	// ReleaseNone only forgets the client locally.
	ReleaseNone ReleaseFlags = 0

	// ReleaseCID also asks the device to release the client id.
	ReleaseCID ReleaseFlags = 1 << 0
)

// Allocator talks to the CTL service on the registry's behalf.
type Allocator interface {
	// AllocateCID asks the device for a new client id of service.
	AllocateCID(ctx context.Context, service wire.Service) (uint8, error)

	// ReleaseCID asks the device to release a client id.
	ReleaseCID(ctx context.Context, service wire.Service, cid uint8) error
}

// Client is an active (service, client id) pair.
type Client struct {
	Service  wire.Service
	ClientID uint8

	// Allocated is true when the id came from the device rather than the
	// caller.
	Allocated bool
}

// String returns "SERVICE/cid".
func (c Client) String() string {
	return fmt.Sprintf("%s/%d", c.Service, c.ClientID)
}

type key struct {
	service wire.Service
	cid     uint8
}

// Config configures a Registry.
type Config struct {
	Logger *slog.Logger
}

// Registry tracks the clients that are active on a device and decides
// which incoming messages are routable. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	clients   map[key]Client
	allocator Allocator
	logger    *slog.Logger
}

// New creates a registry that allocates through alloc.
func New(alloc Allocator, cfg Config) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Registry{
		clients:   make(map[key]Client),
		allocator: alloc,
		logger:    cfg.Logger,
	}
}

// Allocate registers a client of service.
//
// With requested set to wire.CIDNone a new id is obtained from the device.
// Any other id is adopted as is, without talking to the device. CTL clients
// cannot be allocated.
func (r *Registry) Allocate(ctx context.Context, service wire.Service, requested uint8) (Client, error) {
	if service == wire.ServiceCTL {
		return Client{}, fmt.Errorf("%w: CTL has no allocatable clients", ErrInvalidClientID)
	}

	if requested != wire.CIDNone {
		if requested == wire.CIDControl {
			return Client{}, fmt.Errorf("%w: %d is reserved", ErrInvalidClientID, requested)
		}
		c := Client{Service: service, ClientID: requested}
		if err := r.add(c); err != nil {
			return Client{}, err
		}
		r.logger.Debug("adopted client", "service", service.String(), "cid", requested)
		return c, nil
	}

	cid, err := r.allocator.AllocateCID(ctx, service)
	if err != nil {
		return Client{}, fmt.Errorf("%w: %s: %w", ErrAllocationFailed, service, err)
	}
	if cid == wire.CIDControl || cid == wire.CIDNone {
		return Client{}, fmt.Errorf("%w: device returned reserved id %d for %s", ErrAllocationFailed, cid, service)
	}

	c := Client{Service: service, ClientID: cid, Allocated: true}
	if err := r.add(c); err != nil {
		// The device handed out an id we still consider active; give it
		// back rather than leak it.
		if rerr := r.allocator.ReleaseCID(ctx, service, cid); rerr != nil {
			r.logger.Warn("failed to release duplicate client id",
				"service", service.String(), "cid", cid, "error", rerr)
		}
		return Client{}, err
	}
	r.logger.Debug("allocated client", "service", service.String(), "cid", cid)
	return c, nil
}

func (r *Registry) add(c Client) error {
	k := key{c.Service, c.ClientID}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[k]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateClient, c)
	}
	r.clients[k] = c
	return nil
}

// Release removes a client. With ReleaseCID the device is asked to release
// the id as well. The client is removed locally whatever the device says;
// the wire error, if any, is returned.
func (r *Registry) Release(ctx context.Context, service wire.Service, cid uint8, flags ReleaseFlags) error {
	k := key{service, cid}
	r.mu.Lock()
	_, ok := r.clients[k]
	delete(r.clients, k)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s/%d", ErrUnknownClient, service, cid)
	}
	r.logger.Debug("released client", "service", service.String(), "cid", cid, "flags", flags)

	if flags&ReleaseCID == 0 {
		return nil
	}
	if err := r.allocator.ReleaseCID(ctx, service, cid); err != nil {
		return fmt.Errorf("releasing %s/%d on device: %w", service, cid, err)
	}
	return nil
}

// Lookup returns the active client for (service, cid).
func (r *Registry) Lookup(service wire.Service, cid uint8) (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[key{service, cid}]
	return c, ok
}

// Routable reports whether messages for (service, cid) have a recipient.
// CTL is always routable; broadcast ids are routable when any client of the
// service is active.
func (r *Registry) Routable(service wire.Service, cid uint8) bool {
	if service == wire.ServiceCTL {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cid == wire.CIDBroadcast {
		for k := range r.clients {
			if k.service == service {
				return true
			}
		}
		return false
	}
	_, ok := r.clients[key{service, cid}]
	return ok
}

// Clients returns the active clients ordered by service and id.
func (r *Registry) Clients() []Client {
	r.mu.RLock()
	out := r.snapshot()
	r.mu.RUnlock()
	return sorted(out)
}

// snapshot copies the client map. r.mu must be held.
func (r *Registry) snapshot() []Client {
	out := make([]Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

func sorted(out []Client) []Client {
	sort.Slice(out, func(i, j int) bool {
		if out[i].Service != out[j].Service {
			return out[i].Service < out[j].Service
		}
		return out[i].ClientID < out[j].ClientID
	})
	return out
}

// Len returns the number of active clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Clear forgets every client without talking to the device and returns
// what was removed. Used when the port goes away.
func (r *Registry) Clear() []Client {
	r.mu.Lock()
	out := r.snapshot()
	r.clients = make(map[key]Client)
	r.mu.Unlock()
	return sorted(out)
}
