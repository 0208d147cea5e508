package device

import (
	"context"
	"fmt"
	"time"

	"github.com/qmi-protocol/qmi-go/pkg/indication"
	"github.com/qmi-protocol/qmi-go/pkg/log"
	"github.com/qmi-protocol/qmi-go/pkg/registry"
	"github.com/qmi-protocol/qmi-go/pkg/wire"
)

// Client is one (service, client id) registration on a device.
type Client struct {
	d    *Device
	info registry.Client
}

// Service returns the client's service.
func (c *Client) Service() wire.Service { return c.info.Service }

// ClientID returns the client id.
func (c *Client) ClientID() uint8 { return c.info.ClientID }

// Allocated reports whether the id was allocated by this device, as
// opposed to adopted.
func (c *Client) Allocated() bool { return c.info.Allocated }

// Device returns the device the client lives on.
func (c *Client) Device() *Device { return c.d }

// String returns "SERVICE/cid".
func (c *Client) String() string { return c.info.String() }

// AllocateClient registers a client of service. cid wire.CIDNone asks the
// modem for a new id; any other value adopts an id allocated elsewhere.
// timeout bounds the allocation request; zero uses the control timeout.
func (d *Device) AllocateClient(ctx context.Context, service wire.Service, cid uint8, timeout time.Duration) (*Client, error) {
	if !d.IsOpen() {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotOpen, d.name, d.State())
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	info, err := d.registry.Allocate(ctx, service, cid)
	if err != nil {
		return nil, err
	}
	d.metrics.Clients(d.name).Set(float64(d.registry.Len()))
	d.logClient(info, "", "REGISTERED")
	return &Client{d: d, info: info}, nil
}

// ReleaseClient unregisters c and removes its indication subscriptions.
// With registry.ReleaseCID the id is also released on the modem; the
// client is forgotten locally even if that request fails.
func (d *Device) ReleaseClient(ctx context.Context, c *Client, flags registry.ReleaseFlags, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	d.dispatcher.UnsubscribeClient(c.Service(), c.ClientID())
	err := d.registry.Release(ctx, c.Service(), c.ClientID(), flags)
	d.metrics.Clients(d.name).Set(float64(d.registry.Len()))
	d.logClient(c.info, "REGISTERED", "RELEASED")
	return err
}

// Clients returns the registered clients.
func (d *Device) Clients() []registry.Client {
	return d.registry.Clients()
}

func (d *Device) logClient(info registry.Client, from, to string) {
	d.logger.Debug("client "+to, "client", info.String(), "allocated", info.Allocated)
	d.capture.Log(log.Event{
		Timestamp: time.Now(),
		PortID:    d.portID,
		Device:    d.name,
		Layer:     log.LayerDevice,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityClient,
			OldState: from,
			NewState: to,
			Reason:   info.String(),
		},
	})
}

// Request builds a request from this client.
func (c *Client) Request(messageID uint16, tlvs ...wire.TLV) (*wire.Message, error) {
	return wire.NewRequest(c.Service(), c.ClientID(), messageID, tlvs...)
}

// Send issues a request and checks the result TLV of the response. A
// failure result is returned as a *wire.ProtocolError together with the
// response.
func (c *Client) Send(ctx context.Context, messageID uint16, timeout time.Duration, tlvs ...wire.TLV) (*wire.Message, error) {
	req, err := c.Request(messageID, tlvs...)
	if err != nil {
		return nil, err
	}
	resp, err := c.d.Command(ctx, req, timeout)
	if err != nil {
		return nil, err
	}
	return resp, resp.Result()
}

// SendAbortable is Send through Device.CommandAbortable, using the
// service's abort request when it has one.
func (c *Client) SendAbortable(ctx context.Context, messageID uint16, timeout time.Duration, tlvs ...wire.TLV) (*wire.Message, error) {
	req, err := c.Request(messageID, tlvs...)
	if err != nil {
		return nil, err
	}
	resp, err := c.d.CommandAbortable(ctx, req, timeout, AbortMessage(c.Service(), c.ClientID()))
	if err != nil {
		return nil, err
	}
	return resp, resp.Result()
}

// OnIndication calls h for indications addressed to this client, including
// broadcasts. ids restricts the indication ids; none means all.
func (c *Client) OnIndication(h indication.Handler, ids ...uint16) indication.ID {
	return c.d.dispatcher.Subscribe(c.match(ids), h)
}

// Indications returns a buffered channel of this client's indications.
func (c *Client) Indications(size int, ids ...uint16) (indication.ID, <-chan *wire.Message) {
	return c.d.dispatcher.SubscribeChannel(c.match(ids), size)
}

func (c *Client) match(ids []uint16) indication.Match {
	return indication.Match{Service: c.Service(), ClientID: c.ClientID(), MessageIDs: ids}
}

// Subscribe registers an indication handler on the device.
func (d *Device) Subscribe(m indication.Match, h indication.Handler) indication.ID {
	return d.dispatcher.Subscribe(m, h)
}

// SubscribeChannel registers a buffered channel subscription on the device.
func (d *Device) SubscribeChannel(m indication.Match, size int) (indication.ID, <-chan *wire.Message) {
	return d.dispatcher.SubscribeChannel(m, size)
}

// Unsubscribe removes a subscription.
func (d *Device) Unsubscribe(id indication.ID) bool {
	return d.dispatcher.Unsubscribe(id)
}
