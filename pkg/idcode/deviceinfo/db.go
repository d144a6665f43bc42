// Package deviceinfo maps parsed IDCODEs to known silicon.
package deviceinfo

import "github.com/OpenTraceLab/OpenTraceProbe/pkg/idcode"

// DeviceInfo describes a known target device.
type DeviceInfo struct {
	IDCode       idcode.IDCode
	Manufacturer idcode.Manufacturer

	Name        string // "STM32F40x/41x"
	Family      string // "STM32F4"
	Description string // "ARM Cortex-M4 MCU with FPU"
	Core        string // "Cortex-M4", if known

	// IRLength is the JTAG instruction register width, when documented.
	IRLength int
}

// key is used for device database lookups
type key struct {
	ManufacturerCode uint16
	PartNumber       uint16
}

// db is the in-memory device database
var db = make(map[key]DeviceInfo)

// register adds a device entry to the database
func register(k key, info DeviceInfo) {
	db[k] = info
}

// Lookup returns device information for a given IDCODE.
// Falls back to generic info if the device is not in the database.
func Lookup(rawID uint32) DeviceInfo {
	id := idcode.ParseIDCode(rawID)
	m, _ := idcode.LookupManufacturer(id.ManufacturerCode)

	k := key{ManufacturerCode: id.ManufacturerCode, PartNumber: id.PartNumber}
	if info, ok := db[k]; ok {
		info.IDCode = id
		info.Manufacturer = m
		return info
	}

	return DeviceInfo{
		IDCode:       id,
		Manufacturer: m,
		Name:         "Unknown device",
		Description:  "No entry in device database",
	}
}
