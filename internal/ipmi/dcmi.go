// internal/ipmi/dcmi.go
package ipmi

import (
	"encoding/binary"
	"fmt"
)

// DCMI group extension commands. Every request and response starts with
// the group extension identifier.
const (
	DCMIGroup byte = 0xDC

	CmdDCMIGetPowerReading    byte = 0x02
	CmdDCMIGetPowerLimit      byte = 0x03
	CmdDCMISetPowerLimit      byte = 0x04
	CmdDCMIActivatePowerLimit byte = 0x05
)

// CCNoPowerLimit is returned by Get Power Limit when no limit is set.
const CCNoPowerLimit CompletionCode = 0x80

func checkGroup(data []byte, n int, what string) error {
	if err := need(data, n, what); err != nil {
		return err
	}
	if data[0] != DCMIGroup {
		return fmt.Errorf("ipmi: %s: group extension 0x%02X", what, data[0])
	}
	return nil
}

// ------------------------------------------------------------
// Power reading
// ------------------------------------------------------------

const powerModeSystem byte = 0x01

type GetPowerReadingRequest struct{}

func (GetPowerReadingRequest) NetFn() NetFn  { return NetFnGroupExt }
func (GetPowerReadingRequest) Command() byte { return CmdDCMIGetPowerReading }
func (GetPowerReadingRequest) Data() []byte  { return []byte{DCMIGroup, powerModeSystem, 0x00, 0x00} }

type GetPowerReadingResponse struct {
	Status
	Current   uint16
	Minimum   uint16
	Maximum   uint16
	Average   uint16
	Timestamp uint32
	PeriodMs  uint32
	Active    bool
}

func (r *GetPowerReadingResponse) Unmarshal(data []byte) error {
	if err := checkGroup(data, 18, "power reading"); err != nil {
		return err
	}
	r.Current = binary.LittleEndian.Uint16(data[1:3])
	r.Minimum = binary.LittleEndian.Uint16(data[3:5])
	r.Maximum = binary.LittleEndian.Uint16(data[5:7])
	r.Average = binary.LittleEndian.Uint16(data[7:9])
	r.Timestamp = binary.LittleEndian.Uint32(data[9:13])
	r.PeriodMs = binary.LittleEndian.Uint32(data[13:17])
	r.Active = data[17]&0x40 != 0
	return nil
}

// ------------------------------------------------------------
// Power limit
// ------------------------------------------------------------

// ExceptionAction is taken when the limit cannot be held within the correction time.
type ExceptionAction byte

const (
	ExceptionNone     ExceptionAction = 0x00
	ExceptionPowerOff ExceptionAction = 0x01
	ExceptionLogSEL   ExceptionAction = 0x11
)

type GetPowerLimitRequest struct{}

func (GetPowerLimitRequest) NetFn() NetFn  { return NetFnGroupExt }
func (GetPowerLimitRequest) Command() byte { return CmdDCMIGetPowerLimit }
func (GetPowerLimitRequest) Data() []byte  { return []byte{DCMIGroup, 0x00, 0x00} }

type GetPowerLimitResponse struct {
	Status
	Action       ExceptionAction
	LimitWatts   uint16
	CorrectionMs uint32
	SamplingSec  uint16
}

func (r *GetPowerLimitResponse) Unmarshal(data []byte) error {
	if err := checkGroup(data, 14, "power limit"); err != nil {
		return err
	}
	r.Action = ExceptionAction(data[3])
	r.LimitWatts = binary.LittleEndian.Uint16(data[4:6])
	r.CorrectionMs = binary.LittleEndian.Uint32(data[6:10])
	r.SamplingSec = binary.LittleEndian.Uint16(data[12:14])
	return nil
}

type SetPowerLimitRequest struct {
	Action       ExceptionAction
	LimitWatts   uint16
	CorrectionMs uint32
	SamplingSec  uint16
}

func (SetPowerLimitRequest) NetFn() NetFn  { return NetFnGroupExt }
func (SetPowerLimitRequest) Command() byte { return CmdDCMISetPowerLimit }
func (r SetPowerLimitRequest) Data() []byte {
	b := make([]byte, 15)
	b[0] = DCMIGroup
	b[4] = byte(r.Action)
	binary.LittleEndian.PutUint16(b[5:7], r.LimitWatts)
	binary.LittleEndian.PutUint32(b[7:11], r.CorrectionMs)
	binary.LittleEndian.PutUint16(b[13:15], r.SamplingSec)
	return b
}

type ActivatePowerLimitRequest struct {
	Activate bool
}

func (ActivatePowerLimitRequest) NetFn() NetFn  { return NetFnGroupExt }
func (ActivatePowerLimitRequest) Command() byte { return CmdDCMIActivatePowerLimit }
func (r ActivatePowerLimitRequest) Data() []byte {
	var act byte
	if r.Activate {
		act = 0x01
	}
	return []byte{DCMIGroup, act, 0x00, 0x00}
}

// DCMIResponse is the bare acknowledgement of set/activate commands.
type DCMIResponse struct {
	Status
}

func (r *DCMIResponse) Unmarshal(data []byte) error {
	return checkGroup(data, 1, "dcmi ack")
}
