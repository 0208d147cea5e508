package ctl

import (
	"fmt"

	"github.com/qmi-protocol/qmi-go/pkg/cursor"
	"github.com/qmi-protocol/qmi-go/pkg/wire"
)

// TLV tags used by CTL messages.
const (
	tlvAllocationInfo uint8 = 0x01
	tlvReleaseInfo    uint8 = 0x01
	tlvServiceList    uint8 = 0x01
	tlvInstanceID     uint8 = 0x01
	tlvLinkID         uint8 = 0x01
	tlvDevicePath     uint8 = 0x01
	tlvQoSFormat      uint8 = 0x01
	tlvLinkProtocol   uint8 = 0x10
)

// LinkProtocol is the framing of the network interface paired with a port.
type LinkProtocol uint16

const (
	LinkProtocolUnknown LinkProtocol = 0
	LinkProtocol8023    LinkProtocol = 1
	LinkProtocolRawIP   LinkProtocol = 2
)

// String returns the protocol name.
func (p LinkProtocol) String() string {
	switch p {
	case LinkProtocol8023:
		return "802.3"
	case LinkProtocolRawIP:
		return "raw-ip"
	default:
		return fmt.Sprintf("unknown(%d)", uint16(p))
	}
}

// ServiceVersion is one entry of the Get Version Info response.
type ServiceVersion struct {
	Service wire.Service
	Major   uint16
	Minor   uint16
}

// String returns "SERVICE major.minor".
func (v ServiceVersion) String() string {
	return fmt.Sprintf("%s %d.%d", v.Service, v.Major, v.Minor)
}

func request(id uint16, tlvs ...wire.TLV) (*wire.Message, error) {
	return wire.NewRequest(wire.ServiceCTL, wire.CIDControl, id, tlvs...)
}

// checkResponse verifies msg answers a CTL request of the given id and that
// the device reported success.
func checkResponse(msg *wire.Message, id uint16) error {
	if msg.Service() != wire.ServiceCTL || msg.MessageID() != id || !msg.IsResponse() {
		return fmt.Errorf("%w: expected CTL response 0x%04x, got %s", wire.ErrUnsupported, id, msg)
	}
	return msg.Result()
}

// AllocateCIDRequest builds an Allocate CID request for service.
func AllocateCIDRequest(service wire.Service) (*wire.Message, error) {
	return request(wire.MessageCTLAllocateCID,
		wire.TLV{Type: tlvAllocationInfo, Value: []byte{uint8(service)}})
}

// ParseAllocateCIDResponse returns the service and client id granted by
// the device.
func ParseAllocateCIDResponse(msg *wire.Message) (wire.Service, uint8, error) {
	return parseServiceCID(msg, wire.MessageCTLAllocateCID, tlvAllocationInfo)
}

// ReleaseCIDRequest builds a Release CID request.
func ReleaseCIDRequest(service wire.Service, cid uint8) (*wire.Message, error) {
	return request(wire.MessageCTLReleaseCID,
		wire.TLV{Type: tlvReleaseInfo, Value: []byte{uint8(service), cid}})
}

// ParseReleaseCIDResponse returns the service and client id the device
// released.
func ParseReleaseCIDResponse(msg *wire.Message) (wire.Service, uint8, error) {
	return parseServiceCID(msg, wire.MessageCTLReleaseCID, tlvReleaseInfo)
}

func parseServiceCID(msg *wire.Message, id uint16, tag uint8) (wire.Service, uint8, error) {
	if err := checkResponse(msg, id); err != nil {
		return 0, 0, err
	}
	r, err := msg.TLVReader(tag)
	if err != nil {
		return 0, 0, err
	}
	svc, err := r.ReadU8()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", wire.ErrMalformedMessage, err)
	}
	cid, err := r.ReadU8()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", wire.ErrMalformedMessage, err)
	}
	return wire.Service(svc), cid, nil
}

// GetVersionInfoRequest builds a Get Version Info request.
func GetVersionInfoRequest() (*wire.Message, error) {
	return request(wire.MessageCTLGetVersionInfo)
}

// ParseVersionInfoResponse returns the services the device supports and
// their versions.
func ParseVersionInfoResponse(msg *wire.Message) ([]ServiceVersion, error) {
	if err := checkResponse(msg, wire.MessageCTLGetVersionInfo); err != nil {
		return nil, err
	}
	r, err := msg.TLVReader(tlvServiceList)
	if err != nil {
		return nil, err
	}
	n, err := r.ReadU8()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", wire.ErrMalformedMessage, err)
	}
	out := make([]ServiceVersion, 0, n)
	for i := 0; i < int(n); i++ {
		v, err := readServiceVersion(r)
		if err != nil {
			return nil, fmt.Errorf("%w: service %d of %d: %v", wire.ErrMalformedMessage, i+1, n, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func readServiceVersion(r *cursor.Reader) (ServiceVersion, error) {
	svc, err := r.ReadU8()
	if err != nil {
		return ServiceVersion{}, err
	}
	major, err := r.ReadU16(cursor.LittleEndian)
	if err != nil {
		return ServiceVersion{}, err
	}
	minor, err := r.ReadU16(cursor.LittleEndian)
	if err != nil {
		return ServiceVersion{}, err
	}
	return ServiceVersion{Service: wire.Service(svc), Major: major, Minor: minor}, nil
}

// EncodeVersionInfo builds the service list TLV of a Get Version Info
// response. Used to emulate a device.
func EncodeVersionInfo(versions []ServiceVersion) (wire.TLV, error) {
	if len(versions) > 0xFF {
		return wire.TLV{}, fmt.Errorf("%w: %d services", wire.ErrMessageTooLarge, len(versions))
	}
	w := cursor.NewLimitedWriter(0xFFFF)
	if err := w.WriteU8(uint8(len(versions))); err != nil {
		return wire.TLV{}, err
	}
	for _, v := range versions {
		if err := writeServiceVersion(w, v); err != nil {
			return wire.TLV{}, fmt.Errorf("%w: %v", wire.ErrMessageTooLarge, err)
		}
	}
	return wire.TLV{Type: tlvServiceList, Value: w.Bytes()}, nil
}

func writeServiceVersion(w *cursor.Writer, v ServiceVersion) error {
	if err := w.WriteU8(uint8(v.Service)); err != nil {
		return err
	}
	if err := w.WriteU16(v.Major, cursor.LittleEndian); err != nil {
		return err
	}
	return w.WriteU16(v.Minor, cursor.LittleEndian)
}

// SyncRequest builds a Sync request, which makes the device drop every
// client id it has handed out.
func SyncRequest() (*wire.Message, error) {
	return request(wire.MessageCTLSync)
}

// ParseSyncResponse checks the result of a Sync request.
func ParseSyncResponse(msg *wire.Message) error {
	return checkResponse(msg, wire.MessageCTLSync)
}

// SetDataFormatRequest builds a Set Data Format request. qos selects
// whether the network interface carries QoS headers; a link protocol of
// LinkProtocolUnknown leaves the framing to the device.
func SetDataFormatRequest(qos bool, link LinkProtocol) (*wire.Message, error) {
	var q uint8
	if qos {
		q = 1
	}
	tlvs := []wire.TLV{{Type: tlvQoSFormat, Value: []byte{q}}}
	if link != LinkProtocolUnknown {
		w := cursor.NewWriter()
		if err := w.WriteU16(uint16(link), cursor.LittleEndian); err != nil {
			return nil, err
		}
		tlvs = append(tlvs, wire.TLV{Type: tlvLinkProtocol, Value: w.Bytes()})
	}
	return request(wire.MessageCTLSetDataFormat, tlvs...)
}

// ParseSetDataFormatResponse returns the link protocol the device settled
// on. Devices that omit it report LinkProtocolUnknown.
func ParseSetDataFormatResponse(msg *wire.Message) (LinkProtocol, error) {
	if err := checkResponse(msg, wire.MessageCTLSetDataFormat); err != nil {
		return LinkProtocolUnknown, err
	}
	if _, ok := msg.TLV(tlvLinkProtocol); !ok {
		return LinkProtocolUnknown, nil
	}
	r, err := msg.TLVReader(tlvLinkProtocol)
	if err != nil {
		return LinkProtocolUnknown, err
	}
	v, err := r.ReadU16(cursor.LittleEndian)
	if err != nil {
		return LinkProtocolUnknown, fmt.Errorf("%w: %v", wire.ErrMalformedMessage, err)
	}
	return LinkProtocol(v), nil
}

// SetInstanceIDRequest builds a Set Instance ID request.
func SetInstanceIDRequest(instance uint8) (*wire.Message, error) {
	return request(wire.MessageCTLSetInstanceID,
		wire.TLV{Type: tlvInstanceID, Value: []byte{instance}})
}

// ParseSetInstanceIDResponse returns the link id assigned by the device.
func ParseSetInstanceIDResponse(msg *wire.Message) (uint16, error) {
	if err := checkResponse(msg, wire.MessageCTLSetInstanceID); err != nil {
		return 0, err
	}
	r, err := msg.TLVReader(tlvLinkID)
	if err != nil {
		return 0, err
	}
	link, err := r.ReadU16(cursor.LittleEndian)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", wire.ErrMalformedMessage, err)
	}
	return link, nil
}

// InternalProxyOpenRequest builds the request a qmi-proxy expects before
// it forwards traffic to devicePath.
func InternalProxyOpenRequest(devicePath string) (*wire.Message, error) {
	w := cursor.NewWriter()
	if err := w.WriteString(devicePath, 0, 0); err != nil {
		return nil, err
	}
	return request(wire.MessageCTLInternalProxyOpen,
		wire.TLV{Type: tlvDevicePath, Value: w.Bytes()})
}

// ParseInternalProxyOpenResponse checks the result of a proxy open request.
func ParseInternalProxyOpenResponse(msg *wire.Message) error {
	return checkResponse(msg, wire.MessageCTLInternalProxyOpen)
}

// ParseInternalProxyOpenRequest returns the device path of a proxy open
// request.
func ParseInternalProxyOpenRequest(msg *wire.Message) (string, error) {
	r, err := msg.TLVReader(tlvDevicePath)
	if err != nil {
		return "", err
	}
	return r.ReadString(0, 0)
}

// IsSyncIndication reports whether msg is the indication a device sends
// after a Sync, or on its own after a reset.
func IsSyncIndication(msg *wire.Message) bool {
	return msg.Service() == wire.ServiceCTL && msg.IsIndication() && msg.MessageID() == wire.IndicationCTLSync
}
