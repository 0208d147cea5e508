package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/qmi-protocol/qmi-go/pkg/ctl"
	"github.com/qmi-protocol/qmi-go/pkg/cursor"
	"github.com/qmi-protocol/qmi-go/pkg/wire"
)

// QRTRScheme prefixes device names that address a QRTR node.
const QRTRScheme = "qrtr://"

// QRTRPortCtrl is the control port of every node; the local one hosts the
// name service.
const QRTRPortCtrl uint32 = 0xFFFFFFFE

// qrtrMaxDatagram bounds one received QRTR message.
const qrtrMaxDatagram = 0x10000

// QRTRPacketType is the command of a QRTR control packet.
type QRTRPacketType uint32

const (
	QRTRTypeData      QRTRPacketType = 1
	QRTRTypeHello     QRTRPacketType = 2
	QRTRTypeBye       QRTRPacketType = 3
	QRTRTypeNewServer QRTRPacketType = 4
	QRTRTypeDelServer QRTRPacketType = 5
	QRTRTypeDelClient QRTRPacketType = 6
	QRTRTypeResumeTx  QRTRPacketType = 7
	QRTRTypeExit      QRTRPacketType = 8
	QRTRTypePing      QRTRPacketType = 9
	QRTRTypeNewLookup QRTRPacketType = 10
	QRTRTypeDelLookup QRTRPacketType = 11
)

// QRTR errors.
var (
	// ErrQRTRNodeNotFound is returned when the name service lists no QMI
	// service on the requested node.
	ErrQRTRNodeNotFound = errors.New("QRTR node not present on bus")

	// ErrInvalidQRTRPacket is returned for control packets of the wrong size.
	ErrInvalidQRTRPacket = errors.New("invalid QRTR control packet")
)

// qrtrPacketSize is the wire size of a control packet: the command and
// four server fields. Client packets use the first two of them.
const qrtrPacketSize = 20

// QRTRPacket is a control packet exchanged with the name service.
type QRTRPacket struct {
	Type QRTRPacketType

	// Server fields. Instance carries the service version in its low
	// byte.
	Service  uint32
	Instance uint32
	Node     uint32
	Port     uint32
}

// MarshalBinary encodes the packet in little endian.
func (p QRTRPacket) MarshalBinary() ([]byte, error) {
	w := cursor.NewLimitedWriter(qrtrPacketSize)
	for _, v := range []uint32{uint32(p.Type), p.Service, p.Instance, p.Node, p.Port} {
		if err := w.WriteU32(v, cursor.LittleEndian); err != nil {
			return nil, err
		}
	}
	return w.Bytes(), nil
}

// ParseQRTRPacket decodes a control packet.
func ParseQRTRPacket(b []byte) (QRTRPacket, error) {
	if len(b) < qrtrPacketSize {
		return QRTRPacket{}, fmt.Errorf("%w: %d bytes", ErrInvalidQRTRPacket, len(b))
	}
	r := cursor.NewReader(b)
	var fields [5]uint32
	for i := range fields {
		v, err := r.ReadU32(cursor.LittleEndian)
		if err != nil {
			return QRTRPacket{}, fmt.Errorf("%w: %v", ErrInvalidQRTRPacket, err)
		}
		fields[i] = v
	}
	return QRTRPacket{
		Type:     QRTRPacketType(fields[0]),
		Service:  fields[1],
		Instance: fields[2],
		Node:     fields[3],
		Port:     fields[4],
	}, nil
}

// endOfList reports whether p terminates a lookup reply.
func (p QRTRPacket) endOfList() bool {
	return p.Type == QRTRTypeNewServer && p.Service == 0 && p.Instance == 0 && p.Node == 0 && p.Port == 0
}

// QRTRSocket is one datagram socket on the QRTR bus.
type QRTRSocket interface {
	SendTo(b []byte, node, port uint32) error

	// RecvFrom blocks for the next datagram. It fails once the socket is
	// closed.
	RecvFrom(b []byte) (n int, node, port uint32, err error)

	// LocalAddr returns the node and port the socket is bound to.
	LocalAddr() (node, port uint32, err error)

	Close() error
}

// QRTRURI returns the device name of a QRTR node.
func QRTRURI(node uint32) string {
	return QRTRScheme + strconv.FormatUint(uint64(node), 10)
}

// ParseQRTRURI returns the node of a "qrtr://N" device name.
func ParseQRTRURI(name string) (uint32, bool) {
	rest, ok := strings.CutPrefix(name, QRTRScheme)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(rest, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// QRTRConfig configures a QRTR endpoint.
type QRTRConfig struct {
	// Dial opens a socket. Nil uses DialQRTR.
	Dial func() (QRTRSocket, error)

	// Logger receives endpoint diagnostics. Nil uses slog.Default().
	Logger *slog.Logger

	// QueueSize is the number of inbound frames buffered for Read.
	QueueSize int
}

type qrtrService struct {
	port    uint32
	version uint8
}

type qrtrClientKey struct {
	service wire.Service
	cid     uint8
}

type qrtrClient struct {
	service wire.Service
	cid     uint8
	port    uint32
	sock    QRTRSocket
}

// QRTREndpoint presents the QMI services of one QRTR node as a QMUX byte
// stream. The CTL service is answered locally: every allocated client id
// gets its own socket, and messages travel without their QMUX header.
type QRTREndpoint struct {
	node   uint32
	name   string
	dial   func() (QRTRSocket, error)
	logger *slog.Logger

	ctrl   QRTRSocket
	listed chan struct{}

	inbound   chan []byte
	pending   []byte
	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	mu       sync.Mutex
	services map[wire.Service]qrtrService
	clients  map[qrtrClientKey]*qrtrClient
	ready    bool
}

// OpenQRTR looks up the QMI services on node and returns an endpoint for
// them. ctx bounds the lookup.
func OpenQRTR(ctx context.Context, node uint32, cfg QRTRConfig) (*QRTREndpoint, error) {
	if cfg.Dial == nil {
		cfg.Dial = DialQRTR
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}

	ctrl, err := cfg.Dial()
	if err != nil {
		return nil, fmt.Errorf("qrtr control socket: %w", err)
	}
	e := &QRTREndpoint{
		node:     node,
		name:     QRTRURI(node),
		dial:     cfg.Dial,
		logger:   cfg.Logger.With("device", QRTRURI(node)),
		ctrl:     ctrl,
		listed:   make(chan struct{}),
		inbound:  make(chan []byte, cfg.QueueSize),
		closed:   make(chan struct{}),
		services: make(map[wire.Service]qrtrService),
		clients:  make(map[qrtrClientKey]*qrtrClient),
	}

	local, _, err := ctrl.LocalAddr()
	if err != nil {
		ctrl.Close()
		return nil, fmt.Errorf("qrtr local address: %w", err)
	}
	lookup, err := QRTRPacket{Type: QRTRTypeNewLookup}.MarshalBinary()
	if err != nil {
		ctrl.Close()
		return nil, err
	}
	if err := ctrl.SendTo(lookup, local, QRTRPortCtrl); err != nil {
		ctrl.Close()
		return nil, fmt.Errorf("qrtr lookup: %w", err)
	}

	e.wg.Add(1)
	go e.watchServices()

	select {
	case <-e.listed:
	case <-e.closed:
		return nil, fmt.Errorf("qrtr lookup: %w", io.ErrUnexpectedEOF)
	case <-ctx.Done():
		e.Close()
		return nil, fmt.Errorf("qrtr lookup: %w", ctx.Err())
	}

	e.mu.Lock()
	n := len(e.services)
	e.mu.Unlock()
	if n == 0 {
		e.Close()
		return nil, fmt.Errorf("%w: node %d", ErrQRTRNodeNotFound, node)
	}
	e.logger.Debug("qrtr node open", "services", n)
	return e, nil
}

// Name returns "qrtr://N".
func (e *QRTREndpoint) Name() string { return e.name }

// Node returns the QRTR node id.
func (e *QRTREndpoint) Node() uint32 { return e.node }

// Read returns bytes of the synthesized QMUX stream. It returns io.EOF once
// the endpoint is closed or the node left the bus.
func (e *QRTREndpoint) Read(p []byte) (int, error) {
	if len(e.pending) == 0 {
		select {
		case f := <-e.inbound:
			e.pending = f
		case <-e.closed:
			return 0, io.EOF
		}
	}
	n := copy(p, e.pending)
	e.pending = e.pending[n:]
	return n, nil
}

// Write takes exactly one QMUX frame.
func (e *QRTREndpoint) Write(p []byte) (int, error) {
	select {
	case <-e.closed:
		return 0, io.ErrClosedPipe
	default:
	}
	msg, err := wire.Decode(p)
	if err != nil {
		return 0, err
	}

	if msg.Service() == wire.ServiceCTL {
		e.reply(e.handleCTL(msg))
		return len(p), nil
	}

	e.mu.Lock()
	c := e.clients[qrtrClientKey{msg.Service(), msg.ClientID()}]
	e.mu.Unlock()
	if c == nil {
		e.logger.Debug("message for unknown client", "service", msg.Service().String(), "cid", msg.ClientID())
		e.reply(errorResponse(msg, wire.ProtocolErrorInvalidClientID))
		return len(p), nil
	}
	if err := c.sock.SendTo(msg.Payload(), e.node, c.port); err != nil {
		e.logger.Warn("qrtr send failed", "service", msg.Service().String(), "cid", msg.ClientID(), "error", err)
		e.reply(errorResponse(msg, wire.ProtocolErrorInternal))
	}
	return len(p), nil
}

// Close releases every client socket and the control socket.
func (e *QRTREndpoint) Close() error {
	var err error
	e.closeOnce.Do(func() {
		close(e.closed)
		err = e.ctrl.Close()

		e.mu.Lock()
		clients := e.clients
		e.clients = make(map[qrtrClientKey]*qrtrClient)
		e.mu.Unlock()
		for _, c := range clients {
			c.sock.Close()
		}
	})
	e.wg.Wait()
	return err
}

func (e *QRTREndpoint) deliver(frame []byte) {
	select {
	case e.inbound <- frame:
	case <-e.closed:
	}
}

func (e *QRTREndpoint) reply(msg *wire.Message) {
	if msg != nil {
		e.deliver(msg.Bytes())
	}
}

// watchServices tracks the node's services from the name service until the
// endpoint closes. Losing the last service after the initial listing is a
// hang-up.
func (e *QRTREndpoint) watchServices() {
	defer e.wg.Done()
	buf := make([]byte, qrtrMaxDatagram)
	for {
		n, _, port, err := e.ctrl.RecvFrom(buf)
		if err != nil {
			select {
			case <-e.closed:
			default:
				e.logger.Warn("qrtr control socket failed", "error", err)
				go e.Close()
			}
			return
		}
		if port != QRTRPortCtrl {
			continue
		}
		pkt, err := ParseQRTRPacket(buf[:n])
		if err != nil {
			e.logger.Debug("ignoring control packet", "error", err)
			continue
		}
		if e.track(pkt) {
			e.logger.Info("qrtr node left the bus")
			go e.Close()
			return
		}
	}
}

// track applies one name service packet and reports whether the node is
// gone.
func (e *QRTREndpoint) track(pkt QRTRPacket) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case pkt.endOfList():
		if !e.ready {
			e.ready = true
			close(e.listed)
		}
	case pkt.Node != e.node:
	case pkt.Service > 0xFF:
		// Not addressable through a one byte QMUX service field.
	case pkt.Type == QRTRTypeNewServer:
		e.services[wire.Service(pkt.Service)] = qrtrService{port: pkt.Port, version: uint8(pkt.Instance)}
	case pkt.Type == QRTRTypeDelServer:
		delete(e.services, wire.Service(pkt.Service))
		return e.ready && len(e.services) == 0
	}
	return false
}

func (e *QRTREndpoint) handleCTL(req *wire.Message) *wire.Message {
	switch req.MessageID() {
	case wire.MessageCTLAllocateCID:
		v, ok := req.TLV(0x01)
		if !ok || len(v) < 1 {
			return errorResponse(req, wire.ProtocolErrorMalformedMessage)
		}
		svc := wire.Service(v[0])
		cid, code := e.allocate(svc)
		if code != wire.ProtocolErrorNone {
			return errorResponse(req, code)
		}
		return response(req, wire.TLV{Type: 0x01, Value: []byte{uint8(svc), cid}})

	case wire.MessageCTLReleaseCID:
		v, ok := req.TLV(0x01)
		if !ok || len(v) < 2 {
			return errorResponse(req, wire.ProtocolErrorMalformedMessage)
		}
		e.release(wire.Service(v[0]), v[1])
		return response(req, wire.TLV{Type: 0x01, Value: v[:2]})

	case wire.MessageCTLSync:
		e.releaseAll()
		return response(req)

	case wire.MessageCTLGetVersionInfo:
		tlv, err := ctl.EncodeVersionInfo(e.versions())
		if err != nil {
			return errorResponse(req, wire.ProtocolErrorInternal)
		}
		return response(req, tlv)

	default:
		return errorResponse(req, wire.ProtocolErrorNotSupported)
	}
}

func (e *QRTREndpoint) versions() []ctl.ServiceVersion {
	e.mu.Lock()
	out := make([]ctl.ServiceVersion, 0, len(e.services))
	for svc, s := range e.services {
		out = append(out, ctl.ServiceVersion{Service: svc, Major: uint16(s.version)})
	}
	e.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out
}

// allocate opens a socket for a new client of svc. Ids run upwards from the
// highest one in use and wrap to the lowest free one; 0 and the broadcast
// id are never handed out.
func (e *QRTREndpoint) allocate(svc wire.Service) (uint8, wire.ProtocolErrorCode) {
	e.mu.Lock()
	s, ok := e.services[svc]
	if !ok {
		e.mu.Unlock()
		e.logger.Debug("allocate for service not on node", "service", svc.String())
		return 0, wire.ProtocolErrorInternal
	}
	cid, ok := e.freeCID(svc)
	if !ok {
		e.mu.Unlock()
		return 0, wire.ProtocolErrorClientIDsExhausted
	}
	// Reserve the id while the socket is dialed.
	key := qrtrClientKey{svc, cid}
	e.clients[key] = &qrtrClient{service: svc, cid: cid, port: s.port, sock: closedSocket{}}
	e.mu.Unlock()

	sock, err := e.dial()
	if err != nil {
		e.mu.Lock()
		delete(e.clients, key)
		e.mu.Unlock()
		e.logger.Warn("qrtr client socket", "service", svc.String(), "error", err)
		return 0, wire.ProtocolErrorInternal
	}
	c := &qrtrClient{service: svc, cid: cid, port: s.port, sock: sock}

	e.mu.Lock()
	select {
	case <-e.closed:
		e.mu.Unlock()
		sock.Close()
		return 0, wire.ProtocolErrorInternal
	default:
	}
	e.clients[key] = c
	e.wg.Add(1)
	e.mu.Unlock()

	go e.receive(c)
	return cid, wire.ProtocolErrorNone
}

// freeCID picks the next client id for svc. e.mu must be held.
func (e *QRTREndpoint) freeCID(svc wire.Service) (uint8, bool) {
	used := make(map[uint8]bool)
	var highest uint8
	for k := range e.clients {
		if k.service != svc {
			continue
		}
		used[k.cid] = true
		if k.cid > highest {
			highest = k.cid
		}
	}
	for cid := int(highest) + 1; cid < int(wire.CIDBroadcast); cid++ {
		if !used[uint8(cid)] {
			return uint8(cid), true
		}
	}
	for cid := 1; cid < int(highest); cid++ {
		if !used[uint8(cid)] {
			return uint8(cid), true
		}
	}
	return 0, false
}

func (e *QRTREndpoint) release(svc wire.Service, cid uint8) {
	key := qrtrClientKey{svc, cid}
	e.mu.Lock()
	c := e.clients[key]
	delete(e.clients, key)
	e.mu.Unlock()
	if c != nil {
		c.sock.Close()
	}
}

func (e *QRTREndpoint) releaseAll() {
	e.mu.Lock()
	clients := e.clients
	e.clients = make(map[qrtrClientKey]*qrtrClient)
	e.mu.Unlock()
	for _, c := range clients {
		c.sock.Close()
	}
}

// receive turns datagrams from the client's service into QMUX frames.
func (e *QRTREndpoint) receive(c *qrtrClient) {
	defer e.wg.Done()
	buf := make([]byte, qrtrMaxDatagram)
	for {
		n, node, port, err := c.sock.RecvFrom(buf)
		if err != nil {
			return
		}
		if node != e.node || port != c.port {
			continue
		}
		msg, err := wire.WrapQMUX(c.service, c.cid, buf[:n])
		if err != nil {
			e.logger.Warn("dropping malformed QRTR message", "service", c.service.String(), "cid", c.cid, "error", err)
			continue
		}
		e.deliver(msg.Bytes())
	}
}

func response(req *wire.Message, tlvs ...wire.TLV) *wire.Message {
	all := append([]wire.TLV{wire.ResultTLV(wire.ProtocolErrorNone)}, tlvs...)
	resp, err := wire.NewResponse(req.Service(), req.ClientID(), req.TransactionID(), req.MessageID(), all...)
	if err != nil {
		return nil
	}
	return resp
}

func errorResponse(req *wire.Message, code wire.ProtocolErrorCode) *wire.Message {
	resp, err := wire.NewResponse(req.Service(), req.ClientID(), req.TransactionID(), req.MessageID(), wire.ResultTLV(code))
	if err != nil {
		return nil
	}
	return resp
}

// closedSocket holds a client id while its socket is being dialed.
type closedSocket struct{}

func (closedSocket) SendTo([]byte, uint32, uint32) error { return io.ErrClosedPipe }
func (closedSocket) RecvFrom([]byte) (int, uint32, uint32, error) {
	return 0, 0, 0, io.ErrClosedPipe
}
func (closedSocket) LocalAddr() (uint32, uint32, error) { return 0, 0, io.ErrClosedPipe }
func (closedSocket) Close() error                       { return nil }

var _ Transport = (*QRTREndpoint)(nil)
