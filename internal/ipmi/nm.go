// internal/ipmi/nm.go
package ipmi

import "fmt"

// Node Manager commands are IANA-prefixed OEM group commands sent to the
// management engine.
const CmdNMGetVersion byte = 0xCA

// nmIANA is the little-endian IANA enterprise number carried by every NM message.
var nmIANA = [3]byte{0x57, 0x01, 0x00}

type GetNMVersionRequest struct{}

func (GetNMVersionRequest) NetFn() NetFn  { return NetFnOEMGroup }
func (GetNMVersionRequest) Command() byte { return CmdNMGetVersion }
func (GetNMVersionRequest) Data() []byte  { return nmIANA[:] }

type GetNMVersionResponse struct {
	Status
	Version       byte
	IPMIInterface byte
	Patch         byte
	FirmwareMajor byte
	FirmwareMinor byte
}

func (r *GetNMVersionResponse) Unmarshal(data []byte) error {
	if err := need(data, 8, "nm version"); err != nil {
		return err
	}
	if data[0] != nmIANA[0] || data[1] != nmIANA[1] || data[2] != nmIANA[2] {
		return fmt.Errorf("ipmi: nm version: unexpected IANA % X", data[0:3])
	}
	r.Version = data[3]
	r.IPMIInterface = data[4]
	r.Patch = data[5]
	r.FirmwareMajor = data[6]
	r.FirmwareMinor = data[7]
	return nil
}

// VersionString renders the NM version byte (0x01 = 1.0, 0x02 = 1.5, ...).
func (r *GetNMVersionResponse) VersionString() string {
	switch r.Version {
	case 0x01:
		return "1.0"
	case 0x02:
		return "1.5"
	case 0x03:
		return "2.0"
	case 0x04:
		return "2.5"
	case 0x05:
		return "3.0"
	default:
		return fmt.Sprintf("0x%02X", r.Version)
	}
}
