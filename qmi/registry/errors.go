// Package registry holds the static, compile-time metadata the codec
// consults only for validation and description: service ids, the protocol
// error code table, and descriptive stringification. Nothing in qmi/ rejects
// a message for being absent from these tables; an unknown service, message,
// or TLV type is simply opaque bytes that the caller must still be able to
// read and forward.
package registry

import "fmt"

// ProtocolErrorCode is the numeric value carried in the result TLV's second
// field on a failure response.
type ProtocolErrorCode uint16

const (
	ErrNone                        ProtocolErrorCode = 0
	ErrMalformedMessage            ProtocolErrorCode = 1
	ErrNoMemory                    ProtocolErrorCode = 2
	ErrInternal                    ProtocolErrorCode = 3
	ErrAborted                     ProtocolErrorCode = 4
	ErrClientIDsExhausted          ProtocolErrorCode = 5
	ErrUnabortableTransaction      ProtocolErrorCode = 6
	ErrInvalidClientID             ProtocolErrorCode = 7
	ErrNoThresholdsProvided        ProtocolErrorCode = 8
	ErrInvalidHandle               ProtocolErrorCode = 9
	ErrInvalidProfile              ProtocolErrorCode = 10
	ErrInvalidPinID                ProtocolErrorCode = 11
	ErrIncorrectPin                ProtocolErrorCode = 12
	ErrNoNetworkFound              ProtocolErrorCode = 13
	ErrCallFailed                  ProtocolErrorCode = 14
	ErrOutOfCall                   ProtocolErrorCode = 15
	ErrNotProvisioned              ProtocolErrorCode = 16
	ErrMissingArgument             ProtocolErrorCode = 17
	ErrArgumentTooLong             ProtocolErrorCode = 19
	ErrInvalidTransactionID        ProtocolErrorCode = 22
	ErrDeviceInUse                 ProtocolErrorCode = 23
	ErrNetworkUnsupported          ProtocolErrorCode = 24
	ErrDeviceUnsupported           ProtocolErrorCode = 25
	ErrNoEffect                    ProtocolErrorCode = 26
	ErrNoFreeProfile               ProtocolErrorCode = 27
	ErrInvalidPdpType              ProtocolErrorCode = 28
	ErrInvalidTechnologyPreference ProtocolErrorCode = 29
	ErrInvalidProfileType          ProtocolErrorCode = 30
	ErrInvalidServiceType          ProtocolErrorCode = 31
	ErrInvalidRegisterAction       ProtocolErrorCode = 32
	ErrInvalidPsAttachAction       ProtocolErrorCode = 33
	ErrAuthenticationFailed        ProtocolErrorCode = 34
	ErrPinBlocked                  ProtocolErrorCode = 35
	ErrPinAlwaysBlocked            ProtocolErrorCode = 36
	ErrUimUninitialized            ProtocolErrorCode = 37
	ErrMaximumQosRequestsInUse     ProtocolErrorCode = 38
	ErrIncorrectFlowFilter         ProtocolErrorCode = 39
	ErrNetworkQosUnaware           ProtocolErrorCode = 40
	ErrInvalidQosID                ProtocolErrorCode = 41
	ErrQosUnavailable              ProtocolErrorCode = 42
	ErrFlowSuspended               ProtocolErrorCode = 43
	ErrGeneralError                ProtocolErrorCode = 46
	ErrUnknownError                ProtocolErrorCode = 47
	ErrInvalidArgument             ProtocolErrorCode = 48
	ErrInvalidIndex                ProtocolErrorCode = 49
	ErrNoEntry                     ProtocolErrorCode = 50
	ErrDeviceStorageFull           ProtocolErrorCode = 51
	ErrDeviceNotReady              ProtocolErrorCode = 52
	ErrNetworkNotReady             ProtocolErrorCode = 53
	ErrWmsCauseCode                ProtocolErrorCode = 54
	ErrWmsMessageNotSent           ProtocolErrorCode = 55
	ErrWmsMessageDeliveryFailure   ProtocolErrorCode = 56
	ErrWmsInvalidMessageID         ProtocolErrorCode = 57
	ErrWmsEncoding                 ProtocolErrorCode = 58
	ErrAuthenticationLock          ProtocolErrorCode = 59
	ErrInvalidTransition           ProtocolErrorCode = 60
	ErrSessionInactive             ProtocolErrorCode = 65
	ErrSessionInvalid              ProtocolErrorCode = 66
	ErrSessionOwnership            ProtocolErrorCode = 67
	ErrInsufficientResources       ProtocolErrorCode = 68
	ErrDisabled                    ProtocolErrorCode = 69
	ErrInvalidOperation            ProtocolErrorCode = 70
	ErrInvalidQmiCommand           ProtocolErrorCode = 71
	ErrWmsTPduType                 ProtocolErrorCode = 72
	ErrWmsSmscAddress              ProtocolErrorCode = 73
	ErrInformationUnavailable      ProtocolErrorCode = 74
	ErrSegmentTooLong              ProtocolErrorCode = 75
	ErrSegmentOrder                ProtocolErrorCode = 76
	ErrBundlingNotSupported        ProtocolErrorCode = 77
	ErrPolicyMismatch              ProtocolErrorCode = 79
	ErrSimFileNotFound             ProtocolErrorCode = 80
	ErrExtendedInternal            ProtocolErrorCode = 81
	ErrAccessDenied                ProtocolErrorCode = 82
	ErrHardwareRestricted          ProtocolErrorCode = 83
	ErrAckNotSent                  ProtocolErrorCode = 84
	ErrInjectTimeout               ProtocolErrorCode = 85
	ErrIncompatibleState           ProtocolErrorCode = 90
	ErrFdnRestrict                 ProtocolErrorCode = 91
	ErrSupsFailureCase             ProtocolErrorCode = 92
	ErrNoRadio                     ProtocolErrorCode = 93
	ErrNotSupported                ProtocolErrorCode = 94
	ErrNoSubscription              ProtocolErrorCode = 95
	ErrCardCallControlFailed       ProtocolErrorCode = 96
	ErrNetworkAborted              ProtocolErrorCode = 97
	ErrMsgBlocked                  ProtocolErrorCode = 98
	ErrInvalidSessionType          ProtocolErrorCode = 100
	ErrInvalidPbType               ProtocolErrorCode = 101
	ErrNoSim                       ProtocolErrorCode = 102
	ErrPbNotReady                  ProtocolErrorCode = 103
	ErrPinRestriction              ProtocolErrorCode = 104
	ErrPin2Restriction             ProtocolErrorCode = 105
	ErrPukRestriction              ProtocolErrorCode = 106
	ErrPuk2Restriction             ProtocolErrorCode = 107
	ErrPbAccessRestricted          ProtocolErrorCode = 108
	ErrPbTextTooLong               ProtocolErrorCode = 109
	ErrPbNumberTooLong             ProtocolErrorCode = 110
	ErrPbHiddenKeyRestriction      ProtocolErrorCode = 111

	ErrCatEventRegistrationFailed ProtocolErrorCode = 0xF001
	ErrCatInvalidTerminalResponse ProtocolErrorCode = 0xF002
	ErrCatInvalidEnvelopeCommand  ProtocolErrorCode = 0xF003
	ErrCatEnvelopeCommandBusy     ProtocolErrorCode = 0xF004
	ErrCatEnvelopeCommandFailed   ProtocolErrorCode = 0xF005
)

var protocolErrorDescription = map[ProtocolErrorCode]string{
	ErrNone:                        "no error",
	ErrMalformedMessage:            "malformed message",
	ErrNoMemory:                    "no memory",
	ErrInternal:                    "internal",
	ErrAborted:                     "aborted",
	ErrClientIDsExhausted:          "client IDs exhausted",
	ErrUnabortableTransaction:      "unabortable transaction",
	ErrInvalidClientID:             "invalid client ID",
	ErrNoThresholdsProvided:        "no thresholds provided",
	ErrInvalidHandle:               "invalid handle",
	ErrInvalidProfile:              "invalid profile",
	ErrInvalidPinID:                "invalid PIN ID",
	ErrIncorrectPin:                "incorrect PIN",
	ErrNoNetworkFound:              "no network found",
	ErrCallFailed:                  "call failed",
	ErrOutOfCall:                   "out of call",
	ErrNotProvisioned:              "not provisioned",
	ErrMissingArgument:             "missing argument",
	ErrArgumentTooLong:             "argument too long",
	ErrInvalidTransactionID:        "invalid transaction ID",
	ErrDeviceInUse:                 "device in use",
	ErrNetworkUnsupported:          "network unsupported",
	ErrDeviceUnsupported:           "device unsupported",
	ErrNoEffect:                    "no effect",
	ErrNoFreeProfile:               "no free profile",
	ErrInvalidPdpType:              "invalid PDP type",
	ErrInvalidTechnologyPreference: "invalid technology preference",
	ErrInvalidProfileType:          "invalid profile type",
	ErrInvalidServiceType:          "invalid service type",
	ErrInvalidRegisterAction:       "invalid register action",
	ErrInvalidPsAttachAction:       "invalid PS attach action",
	ErrAuthenticationFailed:        "authentication failed",
	ErrPinBlocked:                  "PIN blocked",
	ErrPinAlwaysBlocked:            "PIN always blocked",
	ErrUimUninitialized:            "UIM uninitialized",
	ErrMaximumQosRequestsInUse:     "maximum QoS requests in use",
	ErrIncorrectFlowFilter:         "incorrect flow filter",
	ErrNetworkQosUnaware:           "network QoS unaware",
	ErrInvalidQosID:                "invalid QoS ID",
	ErrQosUnavailable:              "QoS unavailable",
	ErrFlowSuspended:               "flow suspended",
	ErrGeneralError:                "general error",
	ErrUnknownError:                "unknown error",
	ErrInvalidArgument:             "invalid argument",
	ErrInvalidIndex:                "invalid index",
	ErrNoEntry:                     "no entry",
	ErrDeviceStorageFull:           "device storage full",
	ErrDeviceNotReady:              "device not ready",
	ErrNetworkNotReady:             "network not ready",
	ErrWmsCauseCode:                "WMS cause code",
	ErrWmsMessageNotSent:           "WMS message not sent",
	ErrWmsMessageDeliveryFailure:   "WMS message delivery failure",
	ErrWmsInvalidMessageID:         "WMS invalid message ID",
	ErrWmsEncoding:                 "WMS encoding",
	ErrAuthenticationLock:          "authentication lock",
	ErrInvalidTransition:           "invalid transition",
	ErrSessionInactive:             "session inactive",
	ErrSessionInvalid:              "session invalid",
	ErrSessionOwnership:            "session ownership",
	ErrInsufficientResources:       "insufficient resources",
	ErrDisabled:                    "disabled",
	ErrInvalidOperation:            "invalid operation",
	ErrInvalidQmiCommand:           "invalid QMI command",
	ErrWmsTPduType:                 "WMS T-PDU type",
	ErrWmsSmscAddress:              "WMS SMSC address",
	ErrInformationUnavailable:      "information unavailable",
	ErrSegmentTooLong:              "segment too long",
	ErrSegmentOrder:                "segment order",
	ErrBundlingNotSupported:        "bundling not supported",
	ErrPolicyMismatch:              "policy mismatch",
	ErrSimFileNotFound:             "SIM file not found",
	ErrExtendedInternal:            "extended internal error",
	ErrAccessDenied:                "access denied",
	ErrHardwareRestricted:          "hardware restricted",
	ErrAckNotSent:                  "ACK not sent",
	ErrInjectTimeout:               "inject timeout",
	ErrIncompatibleState:           "incompatible state",
	ErrFdnRestrict:                 "FDN restrict",
	ErrSupsFailureCase:             "SUPS failure case",
	ErrNoRadio:                     "no radio",
	ErrNotSupported:                "not supported",
	ErrNoSubscription:              "no subscription",
	ErrCardCallControlFailed:       "card call control failed",
	ErrNetworkAborted:              "network aborted",
	ErrMsgBlocked:                  "message blocked",
	ErrInvalidSessionType:          "invalid session type",
	ErrInvalidPbType:               "invalid PB type",
	ErrNoSim:                       "no SIM",
	ErrPbNotReady:                  "PB not ready",
	ErrPinRestriction:              "PIN restriction",
	ErrPin2Restriction:             "PIN2 restriction",
	ErrPukRestriction:              "PUK restriction",
	ErrPuk2Restriction:             "PUK2 restriction",
	ErrPbAccessRestricted:          "PB access restricted",
	ErrPbTextTooLong:               "PB text too long",
	ErrPbNumberTooLong:             "PB number too long",
	ErrPbHiddenKeyRestriction:      "PB hidden key restriction",

	ErrCatEventRegistrationFailed: "event registration failed",
	ErrCatInvalidTerminalResponse: "invalid terminal response",
	ErrCatInvalidEnvelopeCommand:  "invalid envelope command",
	ErrCatEnvelopeCommandBusy:     "envelope command busy",
	ErrCatEnvelopeCommandFailed:   "envelope command failed",
}

// Describe returns a human-readable description of a protocol error code,
// or a generic placeholder for codes not present in the static table —
// unrecognised codes are never rejected, only described generically.
func Describe(code uint16) string {
	if desc, ok := protocolErrorDescription[ProtocolErrorCode(code)]; ok {
		return desc
	}
	return fmt.Sprintf("unknown protocol error 0x%04x", code)
}
