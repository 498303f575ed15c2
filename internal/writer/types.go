// internal/writer/types.go
package writer

// StatusPlan locates the status block of one blade in status memory.
type StatusPlan struct {
	Endpoint   string
	UnitID     uint8
	BaseSlot   uint16 // block index; address = BaseSlot * status.SlotsPerDevice
	DeviceName string
}

// Plan is the fully-built write plan for one blade.
type Plan struct {
	Slot   byte
	Status *StatusPlan // nil = status disabled
}

// EndpointClient is the exact contract the status writer uses.
type EndpointClient interface {
	WriteRegisters(area byte, unitID uint8, addr uint16, regs []uint16) error
	Close() error
}
