// internal/ipmi/codes.go
package ipmi

import "fmt"

// CompletionCode is the protocol-level status byte returned by the BMC.
type CompletionCode byte

const (
	CCSuccess                    CompletionCode = 0x00
	CCNodeBusy                   CompletionCode = 0xC0
	CCInvalidCommand             CompletionCode = 0xC1
	CCInvalidLUN                 CompletionCode = 0xC2
	CCTimeout                    CompletionCode = 0xC3
	CCOutOfSpace                 CompletionCode = 0xC4
	CCInvalidReservation         CompletionCode = 0xC5
	CCDataTruncated              CompletionCode = 0xC6
	CCInvalidLength              CompletionCode = 0xC7
	CCLengthExceeded             CompletionCode = 0xC8
	CCIllegalParameter           CompletionCode = 0xC9 // parameter out of range
	CCCannotReturnRequestedData  CompletionCode = 0xCA
	CCSensorNotPresent           CompletionCode = 0xCB
	CCInvalidDataField           CompletionCode = 0xCC
	CCIllegalForSensor           CompletionCode = 0xCD
	CCResponseNotProvided        CompletionCode = 0xCE
	CCDuplicateRequest           CompletionCode = 0xCF
	CCSDRInUpdateMode            CompletionCode = 0xD0
	CCFirmwareUpdateMode         CompletionCode = 0xD1
	CCInitInProgress             CompletionCode = 0xD2
	CCDestinationUnavailable     CompletionCode = 0xD3
	CCInsufficientPrivilege      CompletionCode = 0xD4
	CCNotSupportedInPresentState CompletionCode = 0xD5
	CCSubFunctionDisabled        CompletionCode = 0xD6
	CCUnspecified                CompletionCode = 0xFF
)

var completionNames = map[CompletionCode]string{
	CCSuccess:                    "success",
	CCNodeBusy:                   "node busy",
	CCInvalidCommand:             "invalid command",
	CCInvalidLUN:                 "invalid LUN",
	CCTimeout:                    "timeout",
	CCOutOfSpace:                 "out of space",
	CCInvalidReservation:         "reservation canceled or invalid",
	CCDataTruncated:              "request data truncated",
	CCInvalidLength:              "request data length invalid",
	CCLengthExceeded:             "request data field length limit exceeded",
	CCIllegalParameter:           "parameter out of range",
	CCCannotReturnRequestedData:  "cannot return number of requested data bytes",
	CCSensorNotPresent:           "requested sensor, data, or record not present",
	CCInvalidDataField:           "invalid data field in request",
	CCIllegalForSensor:           "command illegal for specified sensor or record type",
	CCResponseNotProvided:        "command response could not be provided",
	CCDuplicateRequest:           "cannot execute duplicated request",
	CCSDRInUpdateMode:            "SDR repository in update mode",
	CCFirmwareUpdateMode:         "device in firmware update mode",
	CCInitInProgress:             "BMC initialization in progress",
	CCDestinationUnavailable:     "destination unavailable",
	CCInsufficientPrivilege:      "insufficient privilege level",
	CCNotSupportedInPresentState: "not supported in present state",
	CCSubFunctionDisabled:        "sub-function disabled",
	CCUnspecified:                "unspecified error",
}

func (c CompletionCode) String() string {
	if s, ok := completionNames[c]; ok {
		return fmt.Sprintf("0x%02X (%s)", byte(c), s)
	}
	return fmt.Sprintf("0x%02X", byte(c))
}

// TransportCode is the status byte prepended by the serial transport.
// It lives in a different domain than CompletionCode.
type TransportCode byte

const (
	TransportSuccess          TransportCode = 0x00
	TransportMalformedPacket  TransportCode = 0xA1
	TransportHandshakeTimeout TransportCode = 0xA3
	TransportIllegalParameter TransportCode = 0xA4
	TransportCannotReturnData TransportCode = 0xA7
)

func (c TransportCode) String() string {
	switch c {
	case TransportSuccess:
		return "success"
	case TransportMalformedPacket:
		return "malformed packet"
	case TransportHandshakeTimeout:
		return "handshake timeout"
	case TransportIllegalParameter:
		return "illegal parameter"
	case TransportCannotReturnData:
		return "cannot return requested data"
	default:
		return fmt.Sprintf("transport 0x%02X", byte(c))
	}
}

// IsTimeout reports whether the transport outcome is a handshake timeout.
// Every other non-success outcome is treated as a malformed exchange.
func (c TransportCode) IsTimeout() bool {
	return c == TransportHandshakeTimeout
}

// Status is embedded in every typed response.
// Callers branch on it instead of receiving errors.
type Status struct {
	Code      CompletionCode `json:"completion_code" yaml:"completion_code"`
	Transport TransportCode  `json:"transport_code,omitempty" yaml:"transport_code,omitempty"`
}

// ResponseStatus exposes the embedded status to the dispatcher.
func (s *Status) ResponseStatus() *Status { return s }

// OK reports a successful exchange with a successful completion code.
func (s Status) OK() bool {
	return s.Transport == TransportSuccess && s.Code == CCSuccess
}

// SessionLost reports the signatures that trigger re-authentication.
func (s Status) SessionLost() bool {
	return s.Transport.IsTimeout() || s.Code == CCInsufficientPrivilege
}

func (s Status) String() string {
	if s.Transport != TransportSuccess {
		return fmt.Sprintf("%s / %s", s.Transport, s.Code)
	}
	return s.Code.String()
}
