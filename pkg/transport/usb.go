// Package transport provides byte-stream links to debug probes. The USB
// transport talks to probes exposing a vendor bulk interface carrying the
// ASCII-hex scan protocol.
package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gousb"
	log "github.com/sirupsen/logrus"
)

const (
	// Default probe USB identifiers (Raspberry Pi Pico running the hex-stream
	// probe firmware).
	DefaultVendorID  = 0x2E8A
	DefaultProductID = 0x0004

	DefaultTimeout = 5 * time.Second
)

// USBTransport is a bulk-endpoint byte stream to a probe. Unlike packetized
// protocols the hex stream has no framing at the USB layer, so writes go out
// exactly as given, chunked to the endpoint's max packet size by the stack.
type USBTransport struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	intf *gousb.Interface

	epOut *gousb.OutEndpoint
	epIn  *gousb.InEndpoint

	timeout time.Duration

	vid uint16
	pid uint16
}

// OpenUSB opens the first probe matching vid:pid and claims its vendor
// interface.
func OpenUSB(vid, pid uint16) (*USBTransport, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("USB error: %w", err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("probe not found (VID:0x%04X PID:0x%04X)", vid, pid)
	}

	// Detach any kernel driver bound to the interface; not fatal on platforms
	// that don't support it.
	_ = dev.SetAutoDetach(true)

	t := &USBTransport{
		ctx:     ctx,
		dev:     dev,
		timeout: DefaultTimeout,
		vid:     vid,
		pid:     pid,
	}

	if err := t.claimInterface(); err != nil {
		dev.Close()
		ctx.Close()
		return nil, err
	}

	log.Debugf("transport: opened probe VID:0x%04X PID:0x%04X", vid, pid)
	return t, nil
}

// claimInterface claims the probe's vendor-specific interface and opens its
// bulk endpoint pair.
func (t *USBTransport) claimInterface() error {
	cfg, err := t.dev.Config(1)
	if err != nil {
		return fmt.Errorf("failed to get config: %w", err)
	}

	// Search for the vendor interface (class 0xFF); fall back to interface 0.
	vendorIntfNum := -1
	for _, intf := range cfg.Desc.Interfaces {
		if len(intf.AltSettings) > 0 && intf.AltSettings[0].Class == gousb.ClassVendorSpec {
			vendorIntfNum = intf.Number
			break
		}
	}
	if vendorIntfNum == -1 {
		vendorIntfNum = 0
	}

	intf, err := cfg.Interface(vendorIntfNum, 0)
	if err != nil {
		return fmt.Errorf("failed to claim interface %d: %w", vendorIntfNum, err)
	}
	t.intf = intf

	if err := t.findEndpoints(); err != nil {
		intf.Close()
		return err
	}
	return nil
}

func (t *USBTransport) findEndpoints() error {
	setting := t.intf.Setting

	var outAddr, inAddr int
	for _, ep := range setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		switch ep.Direction {
		case gousb.EndpointDirectionOut:
			if outAddr == 0 {
				outAddr = ep.Number
			}
		case gousb.EndpointDirectionIn:
			if inAddr == 0 {
				inAddr = ep.Number
			}
		}
	}

	if outAddr == 0 {
		return fmt.Errorf("bulk OUT endpoint not found")
	}
	if inAddr == 0 {
		return fmt.Errorf("bulk IN endpoint not found")
	}

	epOut, err := t.intf.OutEndpoint(outAddr)
	if err != nil {
		return fmt.Errorf("failed to open OUT endpoint: %w", err)
	}
	t.epOut = epOut

	epIn, err := t.intf.InEndpoint(inAddr)
	if err != nil {
		return fmt.Errorf("failed to open IN endpoint: %w", err)
	}
	t.epIn = epIn

	return nil
}

// opContext bounds a single endpoint transfer by the configured timeout.
func (t *USBTransport) opContext() (context.Context, context.CancelFunc) {
	if t.timeout <= 0 {
		return context.Background(), func() {}
	}
	return context.WithTimeout(context.Background(), t.timeout)
}

// Write sends bytes to the probe. Short writes are treated as errors since
// the hex stream has no way to resynchronize a torn frame.
func (t *USBTransport) Write(data []byte) (int, error) {
	ctx, cancel := t.opContext()
	defer cancel()

	n, err := t.epOut.WriteContext(ctx, data)
	if err != nil {
		return n, fmt.Errorf("USB write failed: %w", err)
	}
	if n != len(data) {
		return n, fmt.Errorf("short USB write: %d of %d bytes", n, len(data))
	}
	return n, nil
}

// Read receives bytes from the probe. A zero-length read is not an error;
// callers poll until they have decoded what they expect.
func (t *USBTransport) Read(data []byte) (int, error) {
	ctx, cancel := t.opContext()
	defer cancel()

	n, err := t.epIn.ReadContext(ctx, data)
	if err != nil {
		return 0, fmt.Errorf("USB read failed: %w", err)
	}
	return n, nil
}

// SetTimeout bounds each endpoint transfer; zero or negative disables the
// bound.
func (t *USBTransport) SetTimeout(timeout time.Duration) {
	t.timeout = timeout
}

// Close releases USB resources.
func (t *USBTransport) Close() error {
	if t.intf != nil {
		t.intf.Close()
		t.intf = nil
	}
	if t.dev != nil {
		t.dev.Close()
		t.dev = nil
	}
	if t.ctx != nil {
		t.ctx.Close()
		t.ctx = nil
	}
	return nil
}

// DeviceInfo describes a discovered probe.
type DeviceInfo struct {
	VID          uint16
	PID          uint16
	SerialNumber string
	Description  string
}

// EnumerateProbes lists connected devices matching the given vid:pid.
func EnumerateProbes(vid, pid uint16) ([]DeviceInfo, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == gousb.ID(vid) && desc.Product == gousb.ID(pid)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	devices := make([]DeviceInfo, 0, len(devs))
	for _, dev := range devs {
		serial, _ := dev.SerialNumber()
		manufacturer, _ := dev.Manufacturer()
		product, _ := dev.Product()

		devices = append(devices, DeviceInfo{
			VID:          uint16(dev.Desc.Vendor),
			PID:          uint16(dev.Desc.Product),
			SerialNumber: serial,
			Description:  fmt.Sprintf("%s %s", manufacturer, product),
		})
		dev.Close()
	}

	return devices, nil
}
