package bitbang

import (
	"fmt"

	"github.com/stianeikeland/go-rpio/v4"
)

// RPIOPinout names the BCM GPIO numbers wired to the target's debug header.
// TRST and SRST are optional; zero disables the line.
type RPIOPinout struct {
	TCK  uint8
	TMS  uint8
	TDI  uint8
	TDO  uint8
	TRST uint8
	SRST uint8
}

// RPIODriver drives JTAG signals directly from Raspberry Pi GPIO through
// /dev/gpiomem. Reset lines are treated as active low.
type RPIODriver struct {
	pins RPIOPinout
}

// NewRPIODriver opens the GPIO memory window and configures pin directions.
func NewRPIODriver(pins RPIOPinout) (*RPIODriver, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("bitbang: opening gpio: %w", err)
	}

	d := &RPIODriver{pins: pins}
	for _, p := range []uint8{pins.TCK, pins.TMS, pins.TDI} {
		rpio.Pin(p).Output()
	}
	rpio.Pin(pins.TDO).Input()
	rpio.Pin(pins.TDO).PullUp()

	for _, p := range []uint8{pins.TRST, pins.SRST} {
		if p != 0 {
			rpio.Pin(p).Output()
			rpio.Pin(p).High() // deasserted
		}
	}
	return d, nil
}

func writeLevel(pin uint8, high bool) {
	if high {
		rpio.Pin(pin).High()
	} else {
		rpio.Pin(pin).Low()
	}
}

func (d *RPIODriver) WritePins(tck, tms, tdi bool) error {
	// Data lines settle before the clock edge.
	writeLevel(d.pins.TMS, tms)
	writeLevel(d.pins.TDI, tdi)
	writeLevel(d.pins.TCK, tck)
	return nil
}

func (d *RPIODriver) ReadTDO() (bool, error) {
	return rpio.Pin(d.pins.TDO).Read() == rpio.High, nil
}

func (d *RPIODriver) Reset(trst, srst bool) error {
	if d.pins.TRST != 0 {
		writeLevel(d.pins.TRST, !trst)
	}
	if d.pins.SRST != 0 {
		writeLevel(d.pins.SRST, !srst)
	}
	return nil
}

// Close releases the GPIO mapping.
func (d *RPIODriver) Close() error {
	return rpio.Close()
}
