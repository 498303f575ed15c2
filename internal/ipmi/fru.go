// internal/ipmi/fru.go
package ipmi

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Storage network function FRU commands.
const (
	CmdGetFRUInventoryAreaInfo byte = 0x10
	CmdReadFRUData             byte = 0x11
)

// FRUReadChunk is the largest read the serial link carries in one exchange.
const FRUReadChunk = 0x10

var (
	ErrFRUHeader   = errors.New("ipmi: fru common header invalid")
	ErrFRUArea     = errors.New("ipmi: fru area invalid")
	ErrFRUChecksum = errors.New("ipmi: fru checksum mismatch")
)

type GetFRUInventoryAreaInfoRequest struct {
	DeviceID byte
}

func (GetFRUInventoryAreaInfoRequest) NetFn() NetFn   { return NetFnStorage }
func (GetFRUInventoryAreaInfoRequest) Command() byte  { return CmdGetFRUInventoryAreaInfo }
func (r GetFRUInventoryAreaInfoRequest) Data() []byte { return []byte{r.DeviceID} }

type GetFRUInventoryAreaInfoResponse struct {
	Status
	Size    uint16
	ByWords bool
}

func (r *GetFRUInventoryAreaInfoResponse) Unmarshal(data []byte) error {
	if err := need(data, 3, "fru area info"); err != nil {
		return err
	}
	r.Size = binary.LittleEndian.Uint16(data[0:2])
	r.ByWords = data[2]&0x01 != 0
	return nil
}

type ReadFRUDataRequest struct {
	DeviceID byte
	Offset   uint16
	Count    byte
}

func (ReadFRUDataRequest) NetFn() NetFn  { return NetFnStorage }
func (ReadFRUDataRequest) Command() byte { return CmdReadFRUData }
func (r ReadFRUDataRequest) Data() []byte {
	return []byte{r.DeviceID, byte(r.Offset), byte(r.Offset >> 8), r.Count}
}

type ReadFRUDataResponse struct {
	Status
	Count byte
	Bytes []byte
}

func (r *ReadFRUDataResponse) Unmarshal(data []byte) error {
	if err := need(data, 1, "fru data"); err != nil {
		return err
	}
	r.Count = data[0]
	r.Bytes = append([]byte(nil), data[1:]...)
	if int(r.Count) < len(r.Bytes) {
		r.Bytes = r.Bytes[:r.Count]
	}
	return nil
}

// ------------------------------------------------------------
// Inventory parsing
// ------------------------------------------------------------

// BoardInfo is the FRU board info area.
type BoardInfo struct {
	Manufactured time.Time `json:"manufactured" yaml:"manufactured"`
	Manufacturer string    `json:"manufacturer" yaml:"manufacturer"`
	Product      string    `json:"product" yaml:"product"`
	Serial       string    `json:"serial" yaml:"serial"`
	PartNumber   string    `json:"part_number" yaml:"part_number"`
	FileID       string    `json:"file_id" yaml:"file_id"`
}

// ProductInfo is the FRU product info area.
type ProductInfo struct {
	Manufacturer string `json:"manufacturer" yaml:"manufacturer"`
	Name         string `json:"name" yaml:"name"`
	PartNumber   string `json:"part_number" yaml:"part_number"`
	Version      string `json:"version" yaml:"version"`
	Serial       string `json:"serial" yaml:"serial"`
	AssetTag     string `json:"asset_tag" yaml:"asset_tag"`
	FileID       string `json:"file_id" yaml:"file_id"`
}

// FRUInventory is a parsed FRU image. Missing areas are nil.
type FRUInventory struct {
	Board   *BoardInfo   `json:"board,omitempty" yaml:"board,omitempty"`
	Product *ProductInfo `json:"product,omitempty" yaml:"product,omitempty"`
}

var fruEpoch = time.Date(1996, time.January, 1, 0, 0, 0, 0, time.UTC)

// fieldsEnd terminates the type/length field list of an area.
const fieldsEnd byte = 0xC1

// ParseFRU decodes the common header and the board and product areas.
func ParseFRU(raw []byte) (FRUInventory, error) {
	var inv FRUInventory

	if len(raw) < 8 {
		return inv, ErrFRUHeader
	}
	if raw[0]&0x0F != 0x01 || zeroSum(raw[:8]) != 0 {
		return inv, ErrFRUHeader
	}

	if off := int(raw[3]) * 8; off != 0 {
		fields, mfg, err := readArea(raw, off, 3)
		if err != nil {
			return inv, fmt.Errorf("board area: %w", err)
		}
		b := &BoardInfo{Manufactured: mfg}
		assign(fields, &b.Manufacturer, &b.Product, &b.Serial, &b.PartNumber, &b.FileID)
		inv.Board = b
	}

	if off := int(raw[4]) * 8; off != 0 {
		fields, _, err := readArea(raw, off, 0)
		if err != nil {
			return inv, fmt.Errorf("product area: %w", err)
		}
		p := &ProductInfo{}
		assign(fields, &p.Manufacturer, &p.Name, &p.PartNumber, &p.Version, &p.Serial, &p.AssetTag, &p.FileID)
		inv.Product = p
	}

	return inv, nil
}

// readArea validates the area at off and returns its fields. dateLen > 0
// means the area carries a manufacturing date after the language byte.
func readArea(raw []byte, off int, dateLen int) ([]string, time.Time, error) {
	var mfg time.Time

	if off+2 > len(raw) {
		return nil, mfg, ErrFRUArea
	}
	size := int(raw[off+1]) * 8
	if size == 0 || off+size > len(raw) {
		return nil, mfg, ErrFRUArea
	}
	area := raw[off : off+size]
	if zeroSum(area) != 0 {
		return nil, mfg, ErrFRUChecksum
	}

	pos := 3
	if dateLen > 0 {
		if pos+dateLen > len(area) {
			return nil, mfg, ErrFRUArea
		}
		minutes := uint32(area[pos]) | uint32(area[pos+1])<<8 | uint32(area[pos+2])<<16
		if minutes != 0 {
			mfg = fruEpoch.Add(time.Duration(minutes) * time.Minute)
		}
		pos += dateLen
	}

	var fields []string
	for pos < len(area)-1 && area[pos] != fieldsEnd {
		tl := area[pos]
		n := int(tl & 0x3F)
		pos++
		if pos+n > len(area) {
			return fields, mfg, ErrFRUArea
		}
		fields = append(fields, decodeField(tl>>6, area[pos:pos+n]))
		pos += n
	}
	return fields, mfg, nil
}

func assign(fields []string, dst ...*string) {
	for i, d := range dst {
		if i < len(fields) {
			*d = fields[i]
		}
	}
}

const bcdPlus = "0123456789 -.:,_"

func decodeField(kind byte, b []byte) string {
	switch kind {
	case 0: // binary
		return strings.ToUpper(hex.EncodeToString(b))
	case 1: // BCD plus
		var sb strings.Builder
		for _, v := range b {
			sb.WriteByte(bcdPlus[v>>4])
			sb.WriteByte(bcdPlus[v&0x0F])
		}
		return strings.TrimSpace(sb.String())
	case 2: // 6-bit packed ASCII
		var sb strings.Builder
		var acc uint32
		var bits uint
		for _, v := range b {
			acc |= uint32(v) << bits
			bits += 8
			for bits >= 6 {
				sb.WriteByte(byte(acc&0x3F) + 0x20)
				acc >>= 6
				bits -= 6
			}
		}
		return strings.TrimSpace(sb.String())
	default:
		return strings.TrimRight(string(b), "\x00 ")
	}
}

func zeroSum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return sum
}
