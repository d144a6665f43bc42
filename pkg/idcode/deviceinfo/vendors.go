package deviceinfo

// Part numbers are the [27:12] field of the boundary TAP IDCODE.
func init() {
	const stm = 0x020 // STMicroelectronics JEP106 code

	register(key{ManufacturerCode: stm, PartNumber: 0x6410}, DeviceInfo{
		Name:        "STM32F10x (Medium-density)",
		Family:      "STM32F1",
		Description: "ARM Cortex-M3 MCU",
		Core:        "Cortex-M3",
		IRLength:    5,
	})

	register(key{ManufacturerCode: stm, PartNumber: 0x6412}, DeviceInfo{
		Name:        "STM32F10x (Low-density)",
		Family:      "STM32F1",
		Description: "ARM Cortex-M3 MCU",
		Core:        "Cortex-M3",
		IRLength:    5,
	})

	register(key{ManufacturerCode: stm, PartNumber: 0x6414}, DeviceInfo{
		Name:        "STM32F10x (High-density)",
		Family:      "STM32F1",
		Description: "ARM Cortex-M3 MCU",
		Core:        "Cortex-M3",
		IRLength:    5,
	})

	register(key{ManufacturerCode: stm, PartNumber: 0x6413}, DeviceInfo{
		Name:        "STM32F40x/41x",
		Family:      "STM32F4",
		Description: "ARM Cortex-M4 MCU with FPU",
		Core:        "Cortex-M4",
		IRLength:    5,
	})

	register(key{ManufacturerCode: stm, PartNumber: 0x6419}, DeviceInfo{
		Name:        "STM32F42x/43x",
		Family:      "STM32F4",
		Description: "ARM Cortex-M4 MCU with FPU",
		Core:        "Cortex-M4",
		IRLength:    5,
	})

	register(key{ManufacturerCode: stm, PartNumber: 0x6449}, DeviceInfo{
		Name:        "STM32F74x/75x",
		Family:      "STM32F7",
		Description: "ARM Cortex-M7 MCU with FPU",
		Core:        "Cortex-M7",
		IRLength:    5,
	})

	register(key{ManufacturerCode: stm, PartNumber: 0x6450}, DeviceInfo{
		Name:        "STM32H74x/75x",
		Family:      "STM32H7",
		Description: "ARM Cortex-M7 MCU with FPU",
		Core:        "Cortex-M7",
		IRLength:    5,
	})

	const rpi = 0x493 // Raspberry Pi (JEP106 bank 9, code 0x13)

	register(key{ManufacturerCode: rpi, PartNumber: 0x0002}, DeviceInfo{
		Name:        "RP2040",
		Family:      "RP2",
		Description: "Dual Cortex-M0+ MCU",
		Core:        "Cortex-M0+",
	})
}
