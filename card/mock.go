package card

import "periph.io/x/conn/v3/gpio/gpiotest"

// NewMock returns a card whose pins are in-memory test pins, for running
// the server without hardware
func NewMock() *Botic {
	return New(
		&gpiotest.Pin{N: "MOCK_POWER"},
		&gpiotest.Pin{N: "MOCK_DSD"},
		&gpiotest.Pin{N: "MOCK_MUX"},
	)
}
