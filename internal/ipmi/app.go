// internal/ipmi/app.go
package ipmi

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// App network function commands.
const (
	CmdGetDeviceID               byte = 0x01
	CmdSendMessage               byte = 0x34
	CmdGetSystemGUID             byte = 0x37
	CmdGetChannelAuthCapabilites byte = 0x38
	CmdGetSessionChallenge       byte = 0x39
	CmdActivateSession           byte = 0x3A
	CmdSetSessionPrivilegeLevel  byte = 0x3B
	CmdCloseSession              byte = 0x3C
)

// BladeClass is reported in the OEM auxiliary byte of the channel
// authentication capabilities response.
type BladeClass byte

const (
	ClassUnknown BladeClass = 0x00
	ClassCompute BladeClass = 0x04
	ClassStorage BladeClass = 0x05
)

func (c BladeClass) String() string {
	switch c {
	case ClassCompute:
		return "compute"
	case ClassStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// ------------------------------------------------------------
// Get Device ID
// ------------------------------------------------------------

type GetDeviceIDRequest struct{}

func (GetDeviceIDRequest) NetFn() NetFn  { return NetFnApp }
func (GetDeviceIDRequest) Command() byte { return CmdGetDeviceID }
func (GetDeviceIDRequest) Data() []byte  { return nil }

type GetDeviceIDResponse struct {
	Status
	DeviceID          byte
	DeviceRevision    byte
	FirmwareMajor     byte
	FirmwareMinor     byte
	IPMIVersion       byte
	AdditionalSupport byte
	ManufacturerID    uint32
	ProductID         uint16
}

func (r *GetDeviceIDResponse) Unmarshal(data []byte) error {
	if err := need(data, 11, "device id"); err != nil {
		return err
	}
	r.DeviceID = data[0]
	r.DeviceRevision = data[1] & 0x0F
	r.FirmwareMajor = data[2] & 0x7F
	r.FirmwareMinor = data[3]
	r.IPMIVersion = data[4]
	r.AdditionalSupport = data[5]
	r.ManufacturerID = uint32(data[6]) | uint32(data[7])<<8 | uint32(data[8]&0x0F)<<16
	r.ProductID = binary.LittleEndian.Uint16(data[9:11])
	return nil
}

// FirmwareVersion formats the major/minor firmware revision (minor is BCD).
func (r *GetDeviceIDResponse) FirmwareVersion() string {
	return fmt.Sprintf("%d.%02X", r.FirmwareMajor, r.FirmwareMinor)
}

// ------------------------------------------------------------
// Get System GUID
// ------------------------------------------------------------

type GetSystemGUIDRequest struct{}

func (GetSystemGUIDRequest) NetFn() NetFn  { return NetFnApp }
func (GetSystemGUIDRequest) Command() byte { return CmdGetSystemGUID }
func (GetSystemGUIDRequest) Data() []byte  { return nil }
func (GetSystemGUIDRequest) Sessionless()  {}

type GetSystemGUIDResponse struct {
	Status
	GUID uuid.UUID
}

func (r *GetSystemGUIDResponse) Unmarshal(data []byte) error {
	if err := need(data, 16, "system guid"); err != nil {
		return err
	}
	id, err := uuid.FromBytes(data[:16])
	if err != nil {
		return err
	}
	r.GUID = id
	return nil
}

// ------------------------------------------------------------
// Get Channel Authentication Capabilities
// ------------------------------------------------------------

const channelCurrent byte = 0x0E

type GetChannelAuthCapabilitiesRequest struct {
	Privilege Privilege
}

func (GetChannelAuthCapabilitiesRequest) NetFn() NetFn  { return NetFnApp }
func (GetChannelAuthCapabilitiesRequest) Command() byte { return CmdGetChannelAuthCapabilites }
func (r GetChannelAuthCapabilitiesRequest) Data() []byte {
	return []byte{channelCurrent, byte(r.Privilege)}
}
func (GetChannelAuthCapabilitiesRequest) Sessionless() {}

type GetChannelAuthCapabilitiesResponse struct {
	Status
	Channel         byte
	AuthTypes       byte
	AuthStatus      byte
	ExtCapabilities byte
	OEMID           uint32
	OEMAux          byte
}

func (r *GetChannelAuthCapabilitiesResponse) Unmarshal(data []byte) error {
	if err := need(data, 8, "channel auth capabilities"); err != nil {
		return err
	}
	r.Channel = data[0]
	r.AuthTypes = data[1]
	r.AuthStatus = data[2]
	r.ExtCapabilities = data[3]
	r.OEMID = uint32(data[4]) | uint32(data[5])<<8 | uint32(data[6])<<16
	r.OEMAux = data[7]
	return nil
}

// Class decodes the blade class from the OEM auxiliary byte.
func (r *GetChannelAuthCapabilitiesResponse) Class() BladeClass {
	switch BladeClass(r.OEMAux) {
	case ClassCompute, ClassStorage:
		return BladeClass(r.OEMAux)
	default:
		return ClassUnknown
	}
}

// ------------------------------------------------------------
// Session establishment
// ------------------------------------------------------------

type GetSessionChallengeRequest struct {
	AuthType AuthType
	Username string
}

func (GetSessionChallengeRequest) NetFn() NetFn  { return NetFnApp }
func (GetSessionChallengeRequest) Command() byte { return CmdGetSessionChallenge }
func (r GetSessionChallengeRequest) Data() []byte {
	user := pad16(r.Username)
	return append([]byte{byte(r.AuthType)}, user[:]...)
}
func (GetSessionChallengeRequest) Sessionless() {}

type GetSessionChallengeResponse struct {
	Status
	TemporarySessionID uint32
	Challenge          [16]byte
}

func (r *GetSessionChallengeResponse) Unmarshal(data []byte) error {
	if err := need(data, 20, "session challenge"); err != nil {
		return err
	}
	r.TemporarySessionID = binary.LittleEndian.Uint32(data[0:4])
	copy(r.Challenge[:], data[4:20])
	return nil
}

type ActivateSessionRequest struct {
	AuthType     AuthType
	MaxPrivilege Privilege
	AuthCode     [16]byte
	OutboundSeq  uint32
}

func (ActivateSessionRequest) NetFn() NetFn  { return NetFnApp }
func (ActivateSessionRequest) Command() byte { return CmdActivateSession }
func (r ActivateSessionRequest) Data() []byte {
	b := make([]byte, 22)
	b[0] = byte(r.AuthType)
	b[1] = byte(r.MaxPrivilege)
	copy(b[2:18], r.AuthCode[:])
	binary.LittleEndian.PutUint32(b[18:22], r.OutboundSeq)
	return b
}
func (ActivateSessionRequest) Sessionless() {}

type ActivateSessionResponse struct {
	Status
	AuthType     AuthType
	SessionID    uint32
	InboundSeq   uint32
	MaxPrivilege Privilege
}

func (r *ActivateSessionResponse) Unmarshal(data []byte) error {
	if err := need(data, 10, "activate session"); err != nil {
		return err
	}
	r.AuthType = AuthType(data[0] & 0x0F)
	r.SessionID = binary.LittleEndian.Uint32(data[1:5])
	r.InboundSeq = binary.LittleEndian.Uint32(data[5:9])
	r.MaxPrivilege = Privilege(data[9] & 0x0F)
	return nil
}

type SetSessionPrivilegeLevelRequest struct {
	Privilege Privilege
}

func (SetSessionPrivilegeLevelRequest) NetFn() NetFn   { return NetFnApp }
func (SetSessionPrivilegeLevelRequest) Command() byte  { return CmdSetSessionPrivilegeLevel }
func (r SetSessionPrivilegeLevelRequest) Data() []byte { return []byte{byte(r.Privilege)} }

type SetSessionPrivilegeLevelResponse struct {
	Status
	Privilege Privilege
}

func (r *SetSessionPrivilegeLevelResponse) Unmarshal(data []byte) error {
	if err := need(data, 1, "session privilege"); err != nil {
		return err
	}
	r.Privilege = Privilege(data[0] & 0x0F)
	return nil
}

type CloseSessionRequest struct {
	SessionID uint32
}

func (CloseSessionRequest) NetFn() NetFn  { return NetFnApp }
func (CloseSessionRequest) Command() byte { return CmdCloseSession }
func (r CloseSessionRequest) Data() []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, r.SessionID)
	return b
}

// EmptyResponse carries only a completion code.
type EmptyResponse struct {
	Status
}

func (r *EmptyResponse) Unmarshal([]byte) error { return nil }

// ------------------------------------------------------------
// Send Message (bridging)
// ------------------------------------------------------------

// ChannelME is the IPMB channel the management engine sits on.
const ChannelME byte = 0x06

const sendMessageTrack byte = 0x40

// SendMessageRequest bridges Inner to the controller at Target on Channel.
type SendMessageRequest struct {
	Channel byte
	Target  byte
	Seq     byte
	Inner   Request
}

func (SendMessageRequest) NetFn() NetFn  { return NetFnApp }
func (SendMessageRequest) Command() byte { return CmdSendMessage }

func (r SendMessageRequest) Data() []byte {
	inner := BuildRequest(r.Target, BMCAddress, r.Inner.NetFn(), r.Inner.Command(), r.Seq, r.Inner.Data())
	// drop the framing placeholders; IPMB carries the header and checksums only
	return append([]byte{sendMessageTrack | (r.Channel & 0x0F)}, inner[1:len(inner)-1]...)
}

// SendMessageResponse holds the bridged response as returned by the target.
type SendMessageResponse struct {
	Status
	InnerCode CompletionCode
	InnerData []byte
}

func (r *SendMessageResponse) Unmarshal(data []byte) error {
	// rqAddr netFn chk1 rsAddr seq cmd cc ... chk2
	if err := need(data, 8, "bridged response"); err != nil {
		return err
	}
	r.InnerCode = CompletionCode(data[6])
	r.InnerData = append([]byte(nil), data[7:len(data)-1]...)
	return nil
}

// Into copies the bridged outcome into resp.
func (r *SendMessageResponse) Into(resp Response) error {
	st := resp.ResponseStatus()
	*st = r.Status
	if !r.OK() {
		return nil
	}
	st.Code = r.InnerCode
	if r.InnerCode != CCSuccess {
		return nil
	}
	return resp.Unmarshal(r.InnerData)
}

func pad16(s string) [16]byte {
	var b [16]byte
	copy(b[:], s)
	return b
}
