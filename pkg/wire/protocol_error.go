package wire

import "fmt"

// ProtocolErrorCode is the error code a device reports in the result TLV.
type ProtocolErrorCode uint16

// QMI protocol error codes.
const (
	ProtocolErrorNone                        ProtocolErrorCode = 0
	ProtocolErrorMalformedMessage            ProtocolErrorCode = 1
	ProtocolErrorNoMemory                    ProtocolErrorCode = 2
	ProtocolErrorInternal                    ProtocolErrorCode = 3
	ProtocolErrorAborted                     ProtocolErrorCode = 4
	ProtocolErrorClientIDsExhausted          ProtocolErrorCode = 5
	ProtocolErrorUnabortableTransaction      ProtocolErrorCode = 6
	ProtocolErrorInvalidClientID             ProtocolErrorCode = 7
	ProtocolErrorNoThresholdsProvided        ProtocolErrorCode = 8
	ProtocolErrorInvalidHandle               ProtocolErrorCode = 9
	ProtocolErrorInvalidProfile              ProtocolErrorCode = 10
	ProtocolErrorInvalidPINID                ProtocolErrorCode = 11
	ProtocolErrorIncorrectPIN                ProtocolErrorCode = 12
	ProtocolErrorNoNetworkFound              ProtocolErrorCode = 13
	ProtocolErrorCallFailed                  ProtocolErrorCode = 14
	ProtocolErrorOutOfCall                   ProtocolErrorCode = 15
	ProtocolErrorNotProvisioned              ProtocolErrorCode = 16
	ProtocolErrorMissingArgument             ProtocolErrorCode = 17
	ProtocolErrorArgumentTooLong             ProtocolErrorCode = 19
	ProtocolErrorInvalidTransactionID        ProtocolErrorCode = 22
	ProtocolErrorDeviceInUse                 ProtocolErrorCode = 23
	ProtocolErrorNetworkUnsupported          ProtocolErrorCode = 24
	ProtocolErrorDeviceUnsupported           ProtocolErrorCode = 25
	ProtocolErrorNoEffect                    ProtocolErrorCode = 26
	ProtocolErrorNoFreeProfile               ProtocolErrorCode = 27
	ProtocolErrorInvalidPDPType              ProtocolErrorCode = 28
	ProtocolErrorInvalidTechnologyPreference ProtocolErrorCode = 29
	ProtocolErrorInvalidProfileType          ProtocolErrorCode = 30
	ProtocolErrorInvalidServiceType          ProtocolErrorCode = 31
	ProtocolErrorInvalidRegisterAction       ProtocolErrorCode = 32
	ProtocolErrorInvalidPSAttachAction       ProtocolErrorCode = 33
	ProtocolErrorAuthenticationFailed        ProtocolErrorCode = 34
	ProtocolErrorPINBlocked                  ProtocolErrorCode = 35
	ProtocolErrorPINAlwaysBlocked            ProtocolErrorCode = 36
	ProtocolErrorUIMUninitialized            ProtocolErrorCode = 37
	ProtocolErrorMaximumQoSRequestsInUse     ProtocolErrorCode = 38
	ProtocolErrorIncorrectFlowFilter         ProtocolErrorCode = 39
	ProtocolErrorNetworkQoSUnaware           ProtocolErrorCode = 40
	ProtocolErrorInvalidQoSID                ProtocolErrorCode = 41
	ProtocolErrorQoSUnavailable              ProtocolErrorCode = 42
	ProtocolErrorFlowSuspended               ProtocolErrorCode = 43
	ProtocolErrorGeneralError                ProtocolErrorCode = 46
	ProtocolErrorUnknownError                ProtocolErrorCode = 47
	ProtocolErrorInvalidArgument             ProtocolErrorCode = 48
	ProtocolErrorInvalidIndex                ProtocolErrorCode = 49
	ProtocolErrorNoEntry                     ProtocolErrorCode = 50
	ProtocolErrorDeviceStorageFull           ProtocolErrorCode = 51
	ProtocolErrorDeviceNotReady              ProtocolErrorCode = 52
	ProtocolErrorNetworkNotReady             ProtocolErrorCode = 53
	ProtocolErrorWMSCauseCode                ProtocolErrorCode = 54
	ProtocolErrorWMSMessageNotSent           ProtocolErrorCode = 55
	ProtocolErrorWMSMessageDeliveryFailure   ProtocolErrorCode = 56
	ProtocolErrorWMSInvalidMessageID         ProtocolErrorCode = 57
	ProtocolErrorWMSEncoding                 ProtocolErrorCode = 58
	ProtocolErrorAuthenticationLock          ProtocolErrorCode = 59
	ProtocolErrorInvalidTransition           ProtocolErrorCode = 60
	ProtocolErrorSessionInactive             ProtocolErrorCode = 65
	ProtocolErrorSessionInvalid              ProtocolErrorCode = 66
	ProtocolErrorSessionOwnership            ProtocolErrorCode = 67
	ProtocolErrorInsufficientResources       ProtocolErrorCode = 68
	ProtocolErrorDisabled                    ProtocolErrorCode = 69
	ProtocolErrorInvalidOperation            ProtocolErrorCode = 70
	ProtocolErrorInvalidQMICommand           ProtocolErrorCode = 71
	ProtocolErrorWMSTPDUType                 ProtocolErrorCode = 72
	ProtocolErrorWMSSMSCAddress              ProtocolErrorCode = 73
	ProtocolErrorInformationUnavailable      ProtocolErrorCode = 74
	ProtocolErrorSegmentTooLong              ProtocolErrorCode = 75
	ProtocolErrorSegmentOrder                ProtocolErrorCode = 76
	ProtocolErrorBundlingNotSupported        ProtocolErrorCode = 77
	ProtocolErrorPolicyMismatch              ProtocolErrorCode = 79
	ProtocolErrorSIMFileNotFound             ProtocolErrorCode = 80
	ProtocolErrorExtendedInternal            ProtocolErrorCode = 81
	ProtocolErrorAccessDenied                ProtocolErrorCode = 82
	ProtocolErrorHardwareRestricted          ProtocolErrorCode = 83
	ProtocolErrorACKNotSent                  ProtocolErrorCode = 84
	ProtocolErrorInjectTimeout               ProtocolErrorCode = 85
	ProtocolErrorIncompatibleState           ProtocolErrorCode = 90
	ProtocolErrorFDNRestrict                 ProtocolErrorCode = 91
	ProtocolErrorSUPSFailureCase             ProtocolErrorCode = 92
	ProtocolErrorNoRadio                     ProtocolErrorCode = 93
	ProtocolErrorNotSupported                ProtocolErrorCode = 94
	ProtocolErrorNoSubscription              ProtocolErrorCode = 95
	ProtocolErrorCardCallControlFailed       ProtocolErrorCode = 96
	ProtocolErrorNetworkAborted              ProtocolErrorCode = 97
	ProtocolErrorMsgBlocked                  ProtocolErrorCode = 98
	ProtocolErrorInvalidSessionType          ProtocolErrorCode = 100
	ProtocolErrorInvalidPBType               ProtocolErrorCode = 101
	ProtocolErrorNoSIM                       ProtocolErrorCode = 102
	ProtocolErrorPBNotReady                  ProtocolErrorCode = 103
	ProtocolErrorPINRestriction              ProtocolErrorCode = 104
	ProtocolErrorPIN2Restriction             ProtocolErrorCode = 105
	ProtocolErrorPUKRestriction              ProtocolErrorCode = 106
	ProtocolErrorPUK2Restriction             ProtocolErrorCode = 107
	ProtocolErrorPBAccessRestricted          ProtocolErrorCode = 108
	ProtocolErrorPBTextTooLong               ProtocolErrorCode = 109
	ProtocolErrorPBNumberTooLong             ProtocolErrorCode = 110
	ProtocolErrorPBHiddenKeyRestriction      ProtocolErrorCode = 111
	ProtocolErrorCATEventRegistrationFailed  ProtocolErrorCode = 0xF001
	ProtocolErrorCATInvalidTerminalResponse  ProtocolErrorCode = 0xF002
	ProtocolErrorCATInvalidEnvelopeCommand   ProtocolErrorCode = 0xF003
	ProtocolErrorCATEnvelopeCommandBusy      ProtocolErrorCode = 0xF004
	ProtocolErrorCATEnvelopeCommandFailed    ProtocolErrorCode = 0xF005
)

var protocolErrorDescriptions = map[ProtocolErrorCode]string{
	ProtocolErrorNone:                        "No error",
	ProtocolErrorMalformedMessage:            "Malformed message",
	ProtocolErrorNoMemory:                    "No memory",
	ProtocolErrorInternal:                    "Internal",
	ProtocolErrorAborted:                     "Aborted",
	ProtocolErrorClientIDsExhausted:          "Client IDs exhausted",
	ProtocolErrorUnabortableTransaction:      "Unabortable transaction",
	ProtocolErrorInvalidClientID:             "Invalid client ID",
	ProtocolErrorNoThresholdsProvided:        "No thresholds provided",
	ProtocolErrorInvalidHandle:               "Invalid handle",
	ProtocolErrorInvalidProfile:              "Invalid profile",
	ProtocolErrorInvalidPINID:                "Invalid PIN ID",
	ProtocolErrorIncorrectPIN:                "Incorrect PIN",
	ProtocolErrorNoNetworkFound:              "No network found",
	ProtocolErrorCallFailed:                  "Call failed",
	ProtocolErrorOutOfCall:                   "Out of call",
	ProtocolErrorNotProvisioned:              "Not provisioned",
	ProtocolErrorMissingArgument:             "Missing argument",
	ProtocolErrorArgumentTooLong:             "Argument too long",
	ProtocolErrorInvalidTransactionID:        "Invalid transaction ID",
	ProtocolErrorDeviceInUse:                 "Device in use",
	ProtocolErrorNetworkUnsupported:          "Network unsupported",
	ProtocolErrorDeviceUnsupported:           "Device unsupported",
	ProtocolErrorNoEffect:                    "No effect",
	ProtocolErrorNoFreeProfile:               "No free profile",
	ProtocolErrorInvalidPDPType:              "Invalid PDP type",
	ProtocolErrorInvalidTechnologyPreference: "Invalid technology preference",
	ProtocolErrorInvalidProfileType:          "Invalid profile type",
	ProtocolErrorInvalidServiceType:          "Invalid service type",
	ProtocolErrorInvalidRegisterAction:       "Invalid register action",
	ProtocolErrorInvalidPSAttachAction:       "Invalid PS attach action",
	ProtocolErrorAuthenticationFailed:        "Authentication failed",
	ProtocolErrorPINBlocked:                  "PIN blocked",
	ProtocolErrorPINAlwaysBlocked:            "PIN always blocked",
	ProtocolErrorUIMUninitialized:            "UIM uninitialized",
	ProtocolErrorMaximumQoSRequestsInUse:     "Maximum QoS requests in use",
	ProtocolErrorIncorrectFlowFilter:         "Incorrect flow filter",
	ProtocolErrorNetworkQoSUnaware:           "Network QoS unaware",
	ProtocolErrorInvalidQoSID:                "Invalid QoS ID",
	ProtocolErrorQoSUnavailable:              "QoS unavailable",
	ProtocolErrorFlowSuspended:               "Flow suspended",
	ProtocolErrorGeneralError:                "General error",
	ProtocolErrorUnknownError:                "Unknown error",
	ProtocolErrorInvalidArgument:             "Invalid argument",
	ProtocolErrorInvalidIndex:                "Invalid index",
	ProtocolErrorNoEntry:                     "No entry",
	ProtocolErrorDeviceStorageFull:           "Device storage full",
	ProtocolErrorDeviceNotReady:              "Device not ready",
	ProtocolErrorNetworkNotReady:             "Network not ready",
	ProtocolErrorWMSCauseCode:                "WMS cause code",
	ProtocolErrorWMSMessageNotSent:           "WMS message not sent",
	ProtocolErrorWMSMessageDeliveryFailure:   "WMS message delivery failure",
	ProtocolErrorWMSInvalidMessageID:         "WMS invalid message ID",
	ProtocolErrorWMSEncoding:                 "WMS encoding",
	ProtocolErrorAuthenticationLock:          "Authentication lock",
	ProtocolErrorInvalidTransition:           "Invalid transition",
	ProtocolErrorSessionInactive:             "Session inactive",
	ProtocolErrorSessionInvalid:              "Session invalid",
	ProtocolErrorSessionOwnership:            "Session ownership",
	ProtocolErrorInsufficientResources:       "Insufficient resources",
	ProtocolErrorDisabled:                    "Disabled",
	ProtocolErrorInvalidOperation:            "Invalid operation",
	ProtocolErrorInvalidQMICommand:           "Invalid QMI command",
	ProtocolErrorWMSTPDUType:                 "WMS T-PDU type",
	ProtocolErrorWMSSMSCAddress:              "WMS SMSC address",
	ProtocolErrorInformationUnavailable:      "Information unavailable",
	ProtocolErrorSegmentTooLong:              "Segment too long",
	ProtocolErrorSegmentOrder:                "Segment order",
	ProtocolErrorBundlingNotSupported:        "Bundling not supported",
	ProtocolErrorPolicyMismatch:              "Policy mismatch",
	ProtocolErrorSIMFileNotFound:             "SIM file not found",
	ProtocolErrorExtendedInternal:            "Extended internal error",
	ProtocolErrorAccessDenied:                "Access denied",
	ProtocolErrorHardwareRestricted:          "Hardware restricted",
	ProtocolErrorACKNotSent:                  "ACK not sent",
	ProtocolErrorInjectTimeout:               "Inject timeout",
	ProtocolErrorIncompatibleState:           "Incompatible state",
	ProtocolErrorFDNRestrict:                 "FDN restrict",
	ProtocolErrorSUPSFailureCase:             "SUPS failure case",
	ProtocolErrorNoRadio:                     "No radio",
	ProtocolErrorNotSupported:                "Not supported",
	ProtocolErrorNoSubscription:              "No subscription",
	ProtocolErrorCardCallControlFailed:       "Card call control failed",
	ProtocolErrorNetworkAborted:              "Network aborted",
	ProtocolErrorMsgBlocked:                  "Message blocked",
	ProtocolErrorInvalidSessionType:          "Invalid session type",
	ProtocolErrorInvalidPBType:               "Invalid PB type",
	ProtocolErrorNoSIM:                       "No SIM",
	ProtocolErrorPBNotReady:                  "PB not ready",
	ProtocolErrorPINRestriction:              "PIN restriction",
	ProtocolErrorPIN2Restriction:             "PIN2 restriction",
	ProtocolErrorPUKRestriction:              "PUK restriction",
	ProtocolErrorPUK2Restriction:             "PUK2 restriction",
	ProtocolErrorPBAccessRestricted:          "PB access restricted",
	ProtocolErrorPBTextTooLong:               "PB text too long",
	ProtocolErrorPBNumberTooLong:             "PB number too long",
	ProtocolErrorPBHiddenKeyRestriction:      "PB hidden key restriction",
	ProtocolErrorCATEventRegistrationFailed:  "Event registration failed",
	ProtocolErrorCATInvalidTerminalResponse:  "Invalid terminal response",
	ProtocolErrorCATInvalidEnvelopeCommand:   "Invalid envelope command",
	ProtocolErrorCATEnvelopeCommandBusy:      "Envelope command busy",
	ProtocolErrorCATEnvelopeCommandFailed:    "Envelope command failed",
}

// String returns a human readable description of the code.
func (c ProtocolErrorCode) String() string {
	if desc, ok := protocolErrorDescriptions[c]; ok {
		return desc
	}
	return fmt.Sprintf("Unknown error (%d)", uint16(c))
}

// Known reports whether c is a documented protocol error code.
func (c ProtocolErrorCode) Known() bool {
	_, ok := protocolErrorDescriptions[c]
	return ok
}
