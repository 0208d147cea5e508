package wire

import (
	"fmt"
	"strings"
)

// PrintOptions controls Printable output.
type PrintOptions struct {
	// HidePersonalInfo replaces TLV values (other than the result TLV) and
	// the raw frame dump with "###".
	HidePersonalInfo bool
}

// HexString formats b as colon separated upper case hex, e.g. "01:0C:00".
func HexString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.Grow(len(b) * 3)
	for i, c := range b {
		if i > 0 {
			sb.WriteByte(':')
		}
		fmt.Fprintf(&sb, "%02X", c)
	}
	return sb.String()
}

// Printable returns a multi-line dump of the message, each line starting
// with prefix. It never fails, whatever the service or TLV tags.
func (m *Message) Printable(prefix string, opts PrintOptions) string {
	var sb strings.Builder
	line := func(format string, args ...any) {
		sb.WriteString(prefix)
		fmt.Fprintf(&sb, format, args...)
		sb.WriteByte('\n')
	}

	h := m.header
	if opts.HidePersonalInfo {
		line("raw = ###")
	} else {
		line("raw = %s", HexString(m.raw))
	}
	line("QMUX:")
	line("  length  = %d", len(m.raw)-1)
	line("  flags   = 0x%02x", h.QMUXFlags)
	line("  service = %q", strings.ToLower(h.Service.String()))
	line("  client  = %d", h.ClientID)
	line("QMI:")
	line("  flags       = %q", flagsString(h))
	line("  transaction = %d", h.TransactionID)
	line("  tlv_length  = %d", len(m.raw)-QMUXHeaderSize-headerSize(h.Service))
	line("  message     = %q (0x%04x)", m.Name(), h.MessageID)

	for _, t := range m.tlvs {
		line("TLV:")
		name := "unknown"
		if t.tag == TLVResult && !m.IsRequest() {
			name = "Result"
		}
		line("  type       = %q (0x%02x)", name, t.tag)
		line("  length     = %d", t.length)
		if opts.HidePersonalInfo && name != "Result" {
			line("  value      = ###")
			continue
		}
		line("  value      = %s", HexString(m.raw[t.offset:t.offset+t.length]))
		if name == "Result" {
			line("  translated = %s", resultString(m))
		}
	}
	return sb.String()
}

func flagsString(h Header) string {
	var parts []string
	if h.Service == ServiceCTL {
		if h.Flags&CTLFlagResponse != 0 {
			parts = append(parts, "response")
		}
		if h.Flags&CTLFlagIndication != 0 {
			parts = append(parts, "indication")
		}
	} else {
		if h.Flags&FlagCompound != 0 {
			parts = append(parts, "compound")
		}
		if h.Flags&FlagResponse != 0 {
			parts = append(parts, "response")
		}
		if h.Flags&FlagIndication != 0 {
			parts = append(parts, "indication")
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

func resultString(m *Message) string {
	err := m.Result()
	if err == nil {
		return "SUCCESS"
	}
	if code, ok := ProtocolErrorCodeOf(err); ok {
		return fmt.Sprintf("FAILURE: %s", code)
	}
	return "invalid"
}
