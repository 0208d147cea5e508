package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os/exec"
	"time"
)

// ProxySocket is the abstract unix socket name a qmi-proxy listens on.
const ProxySocket = "@qmi-proxy"

// DefaultProxyRetries is how often ProxyDialer retries a refused dial.
const DefaultProxyRetries = 10

// ErrProxyUnavailable is returned when no proxy answered after every retry.
var ErrProxyUnavailable = errors.New("qmi-proxy unavailable")

// DialProxy connects to a running qmi-proxy. The returned transport is
// named after devicePath; the caller must still run the proxy open
// handshake before any other traffic.
func DialProxy(ctx context.Context, devicePath string) (Transport, error) {
	return DialProxyAt(ctx, ProxySocket, devicePath)
}

// DialProxyAt is DialProxy with an explicit socket address.
func DialProxyAt(ctx context.Context, socket, devicePath string) (Transport, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "unix", socket)
	if err != nil {
		return nil, fmt.Errorf("dial qmi-proxy at %s: %w", socket, err)
	}
	return &conn{Conn: c, name: devicePath}, nil
}

// ProxyDialer dials a qmi-proxy, starting one when none is listening.
type ProxyDialer struct {
	// Socket is the proxy address. Empty uses ProxySocket.
	Socket string

	// SpawnPath is the qmi-proxy binary started after a failed dial.
	// Empty only retries.
	SpawnPath string

	// Retries is the number of retries after the first attempt. Zero
	// uses DefaultProxyRetries; negative disables retrying.
	Retries int

	Backoff BackoffConfig

	// Logger receives retry diagnostics. Nil uses slog.Default().
	Logger *slog.Logger
}

// Dial connects to the proxy for devicePath. Each failed attempt spawns
// the proxy when SpawnPath is set and waits out the backoff delay.
func (p *ProxyDialer) Dial(ctx context.Context, devicePath string) (Transport, error) {
	socket := p.Socket
	if socket == "" {
		socket = ProxySocket
	}
	retries := p.Retries
	switch {
	case retries == 0:
		retries = DefaultProxyRetries
	case retries < 0:
		retries = 0
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	backoff := NewBackoff(p.Backoff)

	for {
		tr, err := DialProxyAt(ctx, socket, devicePath)
		if err == nil {
			if n := backoff.Attempts(); n > 0 {
				logger.Debug("connected to proxy", "socket", socket, "retries", n)
			}
			return tr, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		if backoff.Attempts() >= retries {
			return nil, fmt.Errorf("%w after %d attempts: %w", ErrProxyUnavailable, backoff.Attempts()+1, err)
		}

		if p.SpawnPath != "" {
			if err := spawnProxy(p.SpawnPath); err != nil {
				logger.Debug("spawn qmi-proxy failed", "path", p.SpawnPath, "error", err)
			}
		}

		delay := backoff.Next()
		logger.Debug("cannot connect to proxy", "socket", socket, "attempt", backoff.Attempts(), "retry_in", delay, "error", err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %w", ErrProxyUnavailable, ctx.Err())
		case <-timer.C:
		}
	}
}

// spawnProxy starts the proxy detached from this process. The proxy exits
// on its own once its last client is gone.
func spawnProxy(path string) error {
	cmd := exec.Command(path)
	detach(cmd)
	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait()
	return nil
}
