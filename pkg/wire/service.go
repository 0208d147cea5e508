package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// Service identifies a QMI service.
type Service uint8

// QMI services.
const (
	ServiceCTL    Service = 0
	ServiceWDS    Service = 1
	ServiceDMS    Service = 2
	ServiceNAS    Service = 3
	ServiceQOS    Service = 4
	ServiceWMS    Service = 5
	ServicePDS    Service = 6
	ServiceAUTH   Service = 7
	ServiceAT     Service = 8
	ServiceVOICE  Service = 9
	ServiceCAT2   Service = 10
	ServiceUIM    Service = 11
	ServicePBM    Service = 12
	ServiceQCHAT  Service = 13
	ServiceRMTFS  Service = 14
	ServiceTEST   Service = 15
	ServiceLOC    Service = 16
	ServiceSAR    Service = 17
	ServiceIMS    Service = 18
	ServiceADC    Service = 19
	ServiceCSD    Service = 20
	ServiceMFS    Service = 21
	ServiceTIME   Service = 22
	ServiceTS     Service = 23
	ServiceTMD    Service = 24
	ServiceSAP    Service = 25
	ServiceWDA    Service = 26
	ServiceTSYNC  Service = 27
	ServiceRFSA   Service = 28
	ServiceCSVT   Service = 29
	ServiceQCMAP  Service = 30
	ServiceIMSP   Service = 31
	ServiceIMSVT  Service = 32
	ServiceIMSA   Service = 33
	ServiceCOEX   Service = 34
	ServicePDC    Service = 36
	ServiceSTX    Service = 38
	ServiceBIT    Service = 39
	ServiceIMSRTP Service = 40
	ServiceRFRPE  Service = 41
	ServiceDSD    Service = 42
	ServiceSSCTL  Service = 43
	ServiceCAT    Service = 224
	ServiceRMS    Service = 225
	ServiceOMA    Service = 226
	ServiceGMS    Service = 231

	// ServiceUnknown is used when no service applies.
	ServiceUnknown Service = 0xFF
)

var serviceNames = map[Service]string{
	ServiceCTL:    "CTL",
	ServiceWDS:    "WDS",
	ServiceDMS:    "DMS",
	ServiceNAS:    "NAS",
	ServiceQOS:    "QOS",
	ServiceWMS:    "WMS",
	ServicePDS:    "PDS",
	ServiceAUTH:   "AUTH",
	ServiceAT:     "AT",
	ServiceVOICE:  "VOICE",
	ServiceCAT2:   "CAT2",
	ServiceUIM:    "UIM",
	ServicePBM:    "PBM",
	ServiceQCHAT:  "QCHAT",
	ServiceRMTFS:  "RMTFS",
	ServiceTEST:   "TEST",
	ServiceLOC:    "LOC",
	ServiceSAR:    "SAR",
	ServiceIMS:    "IMS",
	ServiceADC:    "ADC",
	ServiceCSD:    "CSD",
	ServiceMFS:    "MFS",
	ServiceTIME:   "TIME",
	ServiceTS:     "TS",
	ServiceTMD:    "TMD",
	ServiceSAP:    "SAP",
	ServiceWDA:    "WDA",
	ServiceTSYNC:  "TSYNC",
	ServiceRFSA:   "RFSA",
	ServiceCSVT:   "CSVT",
	ServiceQCMAP:  "QCMAP",
	ServiceIMSP:   "IMSP",
	ServiceIMSVT:  "IMSVT",
	ServiceIMSA:   "IMSA",
	ServiceCOEX:   "COEX",
	ServicePDC:    "PDC",
	ServiceSTX:    "STX",
	ServiceBIT:    "BIT",
	ServiceIMSRTP: "IMSRTP",
	ServiceRFRPE:  "RFRPE",
	ServiceDSD:    "DSD",
	ServiceSSCTL:  "SSCTL",
	ServiceCAT:    "CAT",
	ServiceRMS:    "RMS",
	ServiceOMA:    "OMA",
	ServiceGMS:    "GMS",
}

// String returns the service short name, e.g. "DMS".
func (s Service) String() string {
	if name, ok := serviceNames[s]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(0x%02x)", uint8(s))
}

// Known reports whether s is a service this package has a name for.
func (s Service) Known() bool {
	_, ok := serviceNames[s]
	return ok
}

// ParseService parses a service short name (case-insensitive) or a decimal
// or 0x-prefixed number.
func ParseService(s string) (Service, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for svc, name := range serviceNames {
		if name == upper {
			return svc, nil
		}
	}
	if n, err := strconv.ParseUint(strings.TrimSpace(s), 0, 8); err == nil {
		return Service(n), nil
	}
	return ServiceUnknown, fmt.Errorf("unknown service %q", s)
}
