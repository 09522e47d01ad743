// Package bus contains the register transports a DAC can be reached over:
// a native Linux I2C bus, an I2C bridge behind a serial port or TCP socket,
// and a USB bridge using vendor control transfers.
package bus

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// DefaultAddress is the ES9018's 7 bit I2C address; the second DAC of a
// dual mono board answers at DefaultAddress+1
const DefaultAddress i2c.Addr = 0x48

// I2C is a register transport over an I2C bus
type I2C struct {
	dev    i2c.Dev
	closer i2c.BusCloser
}

// NewI2C wraps an already opened bus
func NewI2C(b i2c.Bus, addr i2c.Addr) *I2C {
	return &I2C{dev: i2c.Dev{Bus: b, Addr: uint16(addr)}}
}

// OpenI2C initializes the host drivers and opens a bus by name, e.g. "1" or
// "/dev/i2c-1".  An empty name opens the first bus found
func OpenI2C(name string, addr i2c.Addr) (*I2C, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("bus: initializing host drivers: %w", err)
	}
	b, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("bus: opening I2C bus %q: %w", name, err)
	}
	t := NewI2C(b, addr)
	t.closer = b
	return t, nil
}

// ReadReg writes the register address, then reads one byte with a repeated start
func (t *I2C) ReadReg(addr uint8) (uint8, error) {
	var r [1]byte
	if err := t.dev.Tx([]byte{addr}, r[:]); err != nil {
		return 0, err
	}
	return r[0], nil
}

// WriteReg writes the register address followed by the value
func (t *I2C) WriteReg(addr, val uint8) error {
	return t.dev.Tx([]byte{addr, val}, nil)
}

// Close releases the bus if it was opened by OpenI2C
func (t *I2C) Close() error {
	if t.closer == nil {
		return nil
	}
	return t.closer.Close()
}

func (t *I2C) String() string {
	return t.dev.String()
}
