package bus

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/gousb"
)

// vendor requests understood by the USB bridge firmware
const (
	usbReqRead  = 0x01
	usbReqWrite = 0x02

	usbTimeout = 500 * time.Millisecond
)

// ErrNoUSBDevice is generated when no device matches the vendor and product ID
var ErrNoUSBDevice = errors.New("bus: USB bridge not found")

// controller is the part of *gousb.Device used by USB
type controller interface {
	Control(rType, request uint8, val, idx uint16, data []byte) (int, error)
}

// USB is a register transport for boards with a USB microcontroller bridging
// to the DAC's I2C port.  Register accesses are vendor control transfers:
// wValue carries the data byte and wIndex the I2C address (high byte) and
// register (low byte)
type USB struct {
	dev  controller
	addr uint8

	closer func() error
}

// OpenUSB opens the first device matching vid:pid
func OpenUSB(vid, pid uint16, addr uint8) (*USB, error) {
	ctx := gousb.NewContext()
	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("bus: opening USB %04x:%04x: %w", vid, pid, err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("%04x:%04x: %w", vid, pid, ErrNoUSBDevice)
	}
	dev.ControlTimeout = usbTimeout
	u := &USB{dev: dev, addr: addr}
	u.closer = func() error {
		err := dev.Close()
		ctx.Close()
		return err
	}
	return u, nil
}

func (u *USB) index(reg uint8) uint16 {
	return uint16(u.addr)<<8 | uint16(reg)
}

// ReadReg satisfies regmap.Transport
func (u *USB) ReadReg(reg uint8) (uint8, error) {
	buf := make([]byte, 1)
	n, err := u.dev.Control(gousb.ControlIn|gousb.ControlVendor|gousb.ControlDevice, usbReqRead, 0, u.index(reg), buf)
	if err != nil {
		return 0, err
	}
	if n != 1 {
		return 0, fmt.Errorf("read of register 0x%02X returned %d bytes: %w", reg, n, ErrFrame)
	}
	return buf[0], nil
}

// WriteReg satisfies regmap.Transport
func (u *USB) WriteReg(reg, val uint8) error {
	_, err := u.dev.Control(gousb.ControlOut|gousb.ControlVendor|gousb.ControlDevice, usbReqWrite, uint16(val), u.index(reg), nil)
	return err
}

// Close releases the device and its USB context
func (u *USB) Close() error {
	if u.closer == nil {
		return nil
	}
	return u.closer()
}
