// Package idcode decodes device identification registers: the IEEE 1149.1
// JTAG IDCODE and the ARM debug port DPIDR.
package idcode

import "fmt"

// IDCode represents a parsed IEEE 1149.1 JTAG IDCODE
type IDCode struct {
	Raw              uint32 // full IDCODE
	Version          uint8  // [31:28]
	PartNumber       uint16 // [27:12]
	ManufacturerCode uint16 // [11:1] JEP106
	HasIDCode        bool   // bit 0 == 1
}

// ParseIDCode parses a raw 32-bit IDCODE into its component fields
func ParseIDCode(raw uint32) IDCode {
	return IDCode{
		Raw:              raw,
		Version:          uint8((raw >> 28) & 0xF),
		PartNumber:       uint16((raw >> 12) & 0xFFFF),
		ManufacturerCode: uint16((raw >> 1) & 0x7FF),
		HasIDCode:        (raw & 0x1) == 0x1,
	}
}

func (id IDCode) String() string {
	m, _ := LookupManufacturer(id.ManufacturerCode)
	return fmt.Sprintf("0x%08X (%s part 0x%04X rev %d)",
		id.Raw, m.Name, id.PartNumber, id.Version)
}

// DPIDR represents a parsed SWD debug port identification register
type DPIDR struct {
	Raw          uint32
	Revision     uint8  // [31:28] implementation revision
	PartNumber   uint8  // [27:20]
	Minimal      bool   // [16] minimal debug port
	Version      uint8  // [15:12] DP architecture version
	DesignerCode uint16 // [11:1] JEP106
}

// ParseDPIDR parses a raw 32-bit DPIDR into its component fields
func ParseDPIDR(raw uint32) DPIDR {
	return DPIDR{
		Raw:          raw,
		Revision:     uint8((raw >> 28) & 0xF),
		PartNumber:   uint8((raw >> 20) & 0xFF),
		Minimal:      (raw>>16)&0x1 == 1,
		Version:      uint8((raw >> 12) & 0xF),
		DesignerCode: uint16((raw >> 1) & 0x7FF),
	}
}

func (id DPIDR) String() string {
	m, _ := LookupManufacturer(id.DesignerCode)
	return fmt.Sprintf("0x%08X (%s DPv%d part 0x%02X rev %d)",
		id.Raw, m.Name, id.Version, id.PartNumber, id.Revision)
}
