package transport_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qmi-protocol/qmi-go/pkg/ctl"
	"github.com/qmi-protocol/qmi-go/pkg/transport"
	"github.com/qmi-protocol/qmi-go/pkg/wire"
)

const (
	localNode  = 1
	modemNode  = 5
	dmsPort    = 100
	nasPort    = 101
	firstLocal = 0x4000
)

type datagram struct {
	data       []byte
	node, port uint32
}

type addr struct{ node, port uint32 }

type fakeServer struct {
	service, version uint32
	node, port       uint32
}

// qrtrBus is an in-memory QRTR bus with a name service on the local node
// and QMI services that answer every request with a fixed TLV.
type qrtrBus struct {
	mu       sync.Mutex
	next     uint32
	sockets  map[addr]*busSocket
	servers  []fakeServer
	lookups  []addr
	received []*wire.Message
}

func newQRTRBus(servers ...fakeServer) *qrtrBus {
	return &qrtrBus{next: firstLocal, sockets: make(map[addr]*busSocket), servers: servers}
}

func (b *qrtrBus) config() transport.QRTRConfig {
	return transport.QRTRConfig{Dial: b.dial}
}

func (b *qrtrBus) dial() (transport.QRTRSocket, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &busSocket{
		bus:    b,
		addr:   addr{localNode, b.next},
		inbox:  make(chan datagram, 64),
		closed: make(chan struct{}),
	}
	b.next++
	b.sockets[s.addr] = s
	return s, nil
}

func (b *qrtrBus) openSockets() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sockets)
}

func (b *qrtrBus) deliver(to addr, d datagram) {
	b.mu.Lock()
	s := b.sockets[to]
	b.mu.Unlock()
	if s != nil {
		s.inbox <- d
	}
}

func (b *qrtrBus) control(pkt transport.QRTRPacket) datagram {
	data, _ := pkt.MarshalBinary()
	return datagram{data: data, node: localNode, port: transport.QRTRPortCtrl}
}

func (b *qrtrBus) route(from addr, data []byte, node, port uint32) {
	if node == localNode && port == transport.QRTRPortCtrl {
		pkt, err := transport.ParseQRTRPacket(data)
		if err != nil || pkt.Type != transport.QRTRTypeNewLookup {
			return
		}
		b.mu.Lock()
		b.lookups = append(b.lookups, from)
		servers := append([]fakeServer(nil), b.servers...)
		b.mu.Unlock()
		for _, s := range servers {
			b.deliver(from, b.control(transport.QRTRPacket{
				Type: transport.QRTRTypeNewServer, Service: s.service, Instance: s.version,
				Node: s.node, Port: s.port,
			}))
		}
		b.deliver(from, b.control(transport.QRTRPacket{Type: transport.QRTRTypeNewServer}))
		return
	}

	b.mu.Lock()
	var srv *fakeServer
	for i := range b.servers {
		if b.servers[i].node == node && b.servers[i].port == port {
			srv = &b.servers[i]
		}
	}
	b.mu.Unlock()
	if srv == nil {
		return
	}
	req, err := wire.WrapQMUX(wire.Service(srv.service), 0, data)
	if err != nil {
		return
	}
	b.mu.Lock()
	b.received = append(b.received, req)
	b.mu.Unlock()
	resp, err := wire.NewResponse(req.Service(), 0, req.TransactionID(), req.MessageID(),
		wire.ResultTLV(wire.ProtocolErrorNone), wire.TLV{Type: 0x01, Value: []byte("fake")})
	if err != nil {
		return
	}
	b.deliver(from, datagram{data: resp.Payload(), node: srv.node, port: srv.port})
}

// removeServer withdraws a service and notifies every lookup.
func (b *qrtrBus) removeServer(service uint32) {
	b.mu.Lock()
	var gone fakeServer
	kept := b.servers[:0]
	for _, s := range b.servers {
		if s.service == service {
			gone = s
			continue
		}
		kept = append(kept, s)
	}
	b.servers = kept
	lookups := append([]addr(nil), b.lookups...)
	b.mu.Unlock()
	for _, l := range lookups {
		b.deliver(l, b.control(transport.QRTRPacket{
			Type: transport.QRTRTypeDelServer, Service: gone.service, Instance: gone.version,
			Node: gone.node, Port: gone.port,
		}))
	}
}

type busSocket struct {
	bus    *qrtrBus
	addr   addr
	inbox  chan datagram
	closed chan struct{}
	once   sync.Once
}

func (s *busSocket) SendTo(b []byte, node, port uint32) error {
	select {
	case <-s.closed:
		return io.ErrClosedPipe
	default:
	}
	s.bus.route(s.addr, append([]byte(nil), b...), node, port)
	return nil
}

func (s *busSocket) RecvFrom(b []byte) (int, uint32, uint32, error) {
	select {
	case d := <-s.inbox:
		return copy(b, d.data), d.node, d.port, nil
	case <-s.closed:
		return 0, 0, 0, io.ErrClosedPipe
	}
}

func (s *busSocket) LocalAddr() (uint32, uint32, error) {
	return s.addr.node, s.addr.port, nil
}

func (s *busSocket) Close() error {
	s.once.Do(func() {
		close(s.closed)
		s.bus.mu.Lock()
		delete(s.bus.sockets, s.addr)
		s.bus.mu.Unlock()
	})
	return nil
}

func modemServers() []fakeServer {
	return []fakeServer{
		{service: uint32(wire.ServiceDMS), version: 1, node: modemNode, port: dmsPort},
		{service: uint32(wire.ServiceNAS), version: 0x0104, node: modemNode, port: nasPort},
		{service: uint32(wire.ServiceDMS), version: 1, node: 7, port: 200},
	}
}

func openModem(t *testing.T, bus *qrtrBus) (*transport.QRTREndpoint, *transport.FrameReader) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ep, err := transport.OpenQRTR(ctx, modemNode, bus.config())
	require.NoError(t, err)
	t.Cleanup(func() { ep.Close() })
	return ep, transport.NewFrameReader(ep, transport.FramerConfig{})
}

func exchange(t *testing.T, ep *transport.QRTREndpoint, fr *transport.FrameReader, req *wire.Message, txid uint16) *wire.Message {
	t.Helper()
	req, err := req.WithTransactionID(txid)
	require.NoError(t, err)
	_, err = ep.Write(req.Bytes())
	require.NoError(t, err)
	raw, err := fr.ReadFrame()
	require.NoError(t, err)
	resp, err := wire.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, txid, resp.TransactionID())
	return resp
}

func TestQRTRVersionInfoFromLookup(t *testing.T) {
	ep, fr := openModem(t, newQRTRBus(modemServers()...))
	assert.Equal(t, "qrtr://5", ep.Name())

	req, err := ctl.GetVersionInfoRequest()
	require.NoError(t, err)
	versions, err := ctl.ParseVersionInfoResponse(exchange(t, ep, fr, req, 1))
	require.NoError(t, err)
	assert.Equal(t, []ctl.ServiceVersion{
		{Service: wire.ServiceDMS, Major: 1},
		{Service: wire.ServiceNAS, Major: 4},
	}, versions)
}

func TestQRTRClientLifecycle(t *testing.T) {
	bus := newQRTRBus(modemServers()...)
	ep, fr := openModem(t, bus)

	alloc, err := ctl.AllocateCIDRequest(wire.ServiceDMS)
	require.NoError(t, err)
	svc, cid, err := ctl.ParseAllocateCIDResponse(exchange(t, ep, fr, alloc, 1))
	require.NoError(t, err)
	assert.Equal(t, wire.ServiceDMS, svc)
	assert.Equal(t, uint8(1), cid)

	req, err := wire.NewRequest(wire.ServiceDMS, cid, wire.MessageDMSGetIDs)
	require.NoError(t, err)
	resp := exchange(t, ep, fr, req, 0x1234)
	require.NoError(t, resp.Result())
	assert.Equal(t, wire.ServiceDMS, resp.Service())
	assert.Equal(t, cid, resp.ClientID())
	assert.Equal(t, wire.MessageDMSGetIDs, resp.MessageID())
	v, ok := resp.TLV(0x01)
	require.True(t, ok)
	assert.Equal(t, []byte("fake"), v)

	bus.mu.Lock()
	received := append([]*wire.Message(nil), bus.received...)
	bus.mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, uint16(0x1234), received[0].TransactionID())

	_, second, err := ctl.ParseAllocateCIDResponse(exchange(t, ep, fr, alloc, 2))
	require.NoError(t, err)
	assert.Equal(t, uint8(2), second)

	release, err := ctl.ReleaseCIDRequest(wire.ServiceDMS, cid)
	require.NoError(t, err)
	svc, released, err := ctl.ParseReleaseCIDResponse(exchange(t, ep, fr, release, 3))
	require.NoError(t, err)
	assert.Equal(t, wire.ServiceDMS, svc)
	assert.Equal(t, cid, released)

	_, third, err := ctl.ParseAllocateCIDResponse(exchange(t, ep, fr, alloc, 4))
	require.NoError(t, err)
	assert.Equal(t, uint8(3), third, "ids keep counting up past a released one")

	resp = exchange(t, ep, fr, req, 0x1235)
	code, ok := wire.ProtocolErrorCodeOf(resp.Result())
	require.True(t, ok)
	assert.Equal(t, wire.ProtocolErrorInvalidClientID, code)

	// control socket plus clients 2 and 3
	assert.Equal(t, 3, bus.openSockets())

	syncReq, err := ctl.SyncRequest()
	require.NoError(t, err)
	require.NoError(t, ctl.ParseSyncResponse(exchange(t, ep, fr, syncReq, 5)))
	assert.Equal(t, 1, bus.openSockets())

	require.NoError(t, ep.Close())
	assert.Zero(t, bus.openSockets())
}

func TestQRTRAllocateUnknownService(t *testing.T) {
	ep, fr := openModem(t, newQRTRBus(modemServers()...))

	alloc, err := ctl.AllocateCIDRequest(wire.ServiceWDS)
	require.NoError(t, err)
	_, _, err = ctl.ParseAllocateCIDResponse(exchange(t, ep, fr, alloc, 1))
	code, ok := wire.ProtocolErrorCodeOf(err)
	require.True(t, ok)
	assert.Equal(t, wire.ProtocolErrorInternal, code)
}

func TestQRTRUnsupportedCTLMessage(t *testing.T) {
	ep, fr := openModem(t, newQRTRBus(modemServers()...))

	req, err := ctl.SetInstanceIDRequest(1)
	require.NoError(t, err)
	code, ok := wire.ProtocolErrorCodeOf(exchange(t, ep, fr, req, 1).Result())
	require.True(t, ok)
	assert.Equal(t, wire.ProtocolErrorNotSupported, code)
}

func TestQRTRNodeNotFound(t *testing.T) {
	bus := newQRTRBus(modemServers()...)
	_, err := transport.OpenQRTR(context.Background(), 9, bus.config())
	assert.ErrorIs(t, err, transport.ErrQRTRNodeNotFound)
	assert.Zero(t, bus.openSockets())
}

func TestQRTRLookupTimeout(t *testing.T) {
	bus := newQRTRBus()
	dial := func() (transport.QRTRSocket, error) {
		s, err := bus.dial()
		if err != nil {
			return nil, err
		}
		return &silentSocket{QRTRSocket: s}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := transport.OpenQRTR(ctx, modemNode, transport.QRTRConfig{Dial: dial})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, bus.openSockets())
}

// silentSocket drops everything it sends.
type silentSocket struct {
	transport.QRTRSocket
}

func (silentSocket) SendTo([]byte, uint32, uint32) error { return nil }

func TestQRTRHangUpWhenServicesLeave(t *testing.T) {
	bus := newQRTRBus(modemServers()...)
	ep, fr := openModem(t, bus)

	bus.removeServer(uint32(wire.ServiceNAS))
	req, err := ctl.GetVersionInfoRequest()
	require.NoError(t, err)
	var txid uint16
	require.Eventually(t, func() bool {
		txid++
		versions, err := ctl.ParseVersionInfoResponse(exchange(t, ep, fr, req, txid))
		return err == nil && len(versions) == 1 && versions[0].Service == wire.ServiceDMS
	}, time.Second, 5*time.Millisecond, "NAS still listed")

	bus.removeServer(uint32(wire.ServiceDMS))
	done := make(chan error, 1)
	go func() {
		_, err := fr.ReadFrame()
		done <- err
	}()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, io.EOF)
	case <-time.After(time.Second):
		t.Fatal("endpoint did not hang up")
	}

	_, err = ep.Write(req.Bytes())
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestQRTRPacket(t *testing.T) {
	pkt := transport.QRTRPacket{Type: transport.QRTRTypeNewServer, Service: 2, Instance: 0x0101, Node: 5, Port: 100}
	b, err := pkt.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x04, 0, 0, 0,
		0x02, 0, 0, 0,
		0x01, 0x01, 0, 0,
		0x05, 0, 0, 0,
		0x64, 0, 0, 0,
	}, b)

	got, err := transport.ParseQRTRPacket(b)
	require.NoError(t, err)
	assert.Equal(t, pkt, got)

	_, err = transport.ParseQRTRPacket(b[:8])
	assert.ErrorIs(t, err, transport.ErrInvalidQRTRPacket)
}

func TestParseQRTRURI(t *testing.T) {
	tests := []struct {
		in   string
		node uint32
		ok   bool
	}{
		{"qrtr://0", 0, true},
		{"qrtr://5", 5, true},
		{"qrtr://4294967295", 0xFFFFFFFF, true},
		{"qrtr://", 0, false},
		{"qrtr://-1", 0, false},
		{"qrtr://4294967296", 0, false},
		{"/dev/cdc-wdm0", 0, false},
	}
	for _, tt := range tests {
		node, ok := transport.ParseQRTRURI(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.node, node, tt.in)
	}
	assert.Equal(t, "qrtr://7", transport.QRTRURI(7))
}
