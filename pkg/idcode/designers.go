package idcode

import "fmt"

// Manufacturer is a JEP106 designer identity. Code packs the continuation
// bank into bits [10:7] and the ID byte, parity stripped, into bits [6:0] —
// the same 11-bit form both the IDCODE [11:1] and DPIDR DESIGNER fields
// carry on the wire.
type Manufacturer struct {
	Code         uint16
	Name         string
	Abbreviation string
}

// designers lists the JEP106 codes this tool can name: bank-0 houses that
// still appear in boundary TAPs, plus the debug-port designers seen behind
// SWD. Codes not listed resolve to a synthesized unknown entry.
var designers = map[uint16]Manufacturer{
	// Bank 0
	0x001: {Code: 0x001, Name: "AMD", Abbreviation: "AMD"},
	0x004: {Code: 0x004, Name: "Fujitsu", Abbreviation: "Fujitsu"},
	0x007: {Code: 0x007, Name: "Hitachi", Abbreviation: "Hitachi"},
	0x009: {Code: 0x009, Name: "Intel", Abbreviation: "Intel"},
	0x015: {Code: 0x015, Name: "Philips Semi. (Signetics)", Abbreviation: "Philips"},
	0x017: {Code: 0x017, Name: "Texas Instruments", Abbreviation: "TI"},
	0x018: {Code: 0x018, Name: "Toshiba", Abbreviation: "Toshiba"},
	0x01F: {Code: 0x01F, Name: "Atmel", Abbreviation: "Atmel"},
	0x020: {Code: 0x020, Name: "STMicroelectronics", Abbreviation: "STM"},
	0x025: {Code: 0x025, Name: "Analog Devices", Abbreviation: "ADI"},
	0x02E: {Code: 0x02E, Name: "Cypress", Abbreviation: "Cypress"},
	0x031: {Code: 0x031, Name: "Xilinx", Abbreviation: "Xilinx"},
	0x03D: {Code: 0x03D, Name: "Altera", Abbreviation: "Altera"},
	0x041: {Code: 0x041, Name: "Lattice", Abbreviation: "Lattice"},
	0x049: {Code: 0x049, Name: "Infineon", Abbreviation: "Infineon"},
	0x06E: {Code: 0x06E, Name: "Microchip", Abbreviation: "Microchip"},

	// Continuation banks
	0x144: {Code: 0x144, Name: "Nordic Semiconductor", Abbreviation: "Nordic"},
	0x23B: {Code: 0x23B, Name: "ARM", Abbreviation: "ARM"},
	0x493: {Code: 0x493, Name: "Raspberry Pi", Abbreviation: "RPi"},
}

// LookupManufacturer resolves an 11-bit JEP106 code from an IDCODE or DPIDR.
// The second return reports whether the code was in the table.
func LookupManufacturer(code uint16) (Manufacturer, bool) {
	if m, ok := designers[code]; ok {
		return m, true
	}
	return Manufacturer{
		Code:         code,
		Name:         fmt.Sprintf("Unknown (0x%03X)", code),
		Abbreviation: "Unknown",
	}, false
}
