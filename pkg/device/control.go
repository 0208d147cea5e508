package device

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/qmi-protocol/qmi-go/pkg/ctl"
	"github.com/qmi-protocol/qmi-go/pkg/registry"
	"github.com/qmi-protocol/qmi-go/pkg/wire"
)

// control runs one CTL request. Handshakes from Open may use it while the
// port is still opening.
func (d *Device) control(ctx context.Context, req *wire.Message, timeout time.Duration) (*wire.Message, error) {
	tx, err := d.submit(ctx, req, timeout, true)
	if err != nil {
		return nil, err
	}
	return tx.Wait(ctx)
}

func (d *Device) proxyOpen(ctx context.Context, timeout time.Duration) error {
	req, err := ctl.InternalProxyOpenRequest(d.name)
	if err != nil {
		return err
	}
	resp, err := d.control(ctx, req, timeout)
	if err != nil {
		return err
	}
	return ctl.ParseInternalProxyOpenResponse(resp)
}

// ServiceVersionInfo asks the modem which services it supports. The result
// replaces the cached list returned by VersionInfo.
func (d *Device) ServiceVersionInfo(ctx context.Context, timeout time.Duration) ([]ctl.ServiceVersion, error) {
	req, err := ctl.GetVersionInfoRequest()
	if err != nil {
		return nil, err
	}
	resp, err := d.control(ctx, req, timeout)
	if err != nil {
		return nil, err
	}
	versions, err := ctl.ParseVersionInfoResponse(resp)
	if err != nil {
		return nil, err
	}

	d.versionMu.Lock()
	d.versions = versions
	d.versionMu.Unlock()
	return slices.Clone(versions), nil
}

// VersionInfo returns the service versions from the last query, or nil if
// none was made.
func (d *Device) VersionInfo() []ctl.ServiceVersion {
	d.versionMu.RLock()
	defer d.versionMu.RUnlock()
	return slices.Clone(d.versions)
}

// SetInstanceID binds the port to a data instance and returns the link id
// assigned by the modem.
func (d *Device) SetInstanceID(ctx context.Context, instance uint8, timeout time.Duration) (uint16, error) {
	req, err := ctl.SetInstanceIDRequest(instance)
	if err != nil {
		return 0, err
	}
	resp, err := d.control(ctx, req, timeout)
	if err != nil {
		return 0, err
	}
	return ctl.ParseSetInstanceIDResponse(resp)
}

// Sync asks the modem to drop every client id. Local clients are
// forgotten and their indication subscriptions removed.
func (d *Device) Sync(ctx context.Context, timeout time.Duration) error {
	req, err := ctl.SyncRequest()
	if err != nil {
		return err
	}
	resp, err := d.control(ctx, req, timeout)
	if err != nil {
		return err
	}
	if err := ctl.ParseSyncResponse(resp); err != nil {
		return err
	}
	for _, c := range d.registry.Clear() {
		d.dispatcher.UnsubscribeClient(c.Service, c.ClientID)
	}
	d.metrics.Clients(d.name).Set(0)
	return nil
}

// SetDataFormat tells the modem how the paired network interface frames
// packets and returns the link protocol it acknowledged.
func (d *Device) SetDataFormat(ctx context.Context, qos bool, link ctl.LinkProtocol, timeout time.Duration) (ctl.LinkProtocol, error) {
	req, err := ctl.SetDataFormatRequest(qos, link)
	if err != nil {
		return ctl.LinkProtocolUnknown, err
	}
	resp, err := d.control(ctx, req, timeout)
	if err != nil {
		return ctl.LinkProtocolUnknown, err
	}
	return ctl.ParseSetDataFormatResponse(resp)
}

// ctlAllocator allocates and releases client ids over CTL for the
// registry.
type ctlAllocator struct {
	d *Device
}

func (a *ctlAllocator) AllocateCID(ctx context.Context, service wire.Service) (uint8, error) {
	req, err := ctl.AllocateCIDRequest(service)
	if err != nil {
		return 0, err
	}
	resp, err := a.d.control(ctx, req, a.d.cfg.ControlTimeout)
	if err != nil {
		return 0, err
	}
	svc, cid, err := ctl.ParseAllocateCIDResponse(resp)
	if err != nil {
		return 0, err
	}
	if svc != service {
		return 0, fmt.Errorf("%w: allocated %s client for %s request", wire.ErrMalformedMessage, svc, service)
	}
	return cid, nil
}

func (a *ctlAllocator) ReleaseCID(ctx context.Context, service wire.Service, cid uint8) error {
	req, err := ctl.ReleaseCIDRequest(service, cid)
	if err != nil {
		return err
	}
	resp, err := a.d.control(ctx, req, a.d.cfg.ControlTimeout)
	if err != nil {
		return err
	}
	svc, got, err := ctl.ParseReleaseCIDResponse(resp)
	if err != nil {
		return err
	}
	if svc != service || got != cid {
		return fmt.Errorf("%w: released %s/%d for %s/%d request", wire.ErrMalformedMessage, svc, got, service, cid)
	}
	return nil
}

var _ registry.Allocator = (*ctlAllocator)(nil)
