// Package device assembles a DAC from configuration: transport, register
// map, card, clock selector and arbiter
package device

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tarm/serial"
	"golang.org/x/time/rate"
	"periph.io/x/conn/v3/i2c"

	"github.com/boticaudio/sabre/bus"
	"github.com/boticaudio/sabre/card"
	"github.com/boticaudio/sabre/clock"
	"github.com/boticaudio/sabre/comm"
	"github.com/boticaudio/sabre/config"
	"github.com/boticaudio/sabre/metrics"
	"github.com/boticaudio/sabre/regmap"
	"github.com/boticaudio/sabre/sabre32"
)

var (
	// ErrUnknownTransport is generated for a transport name that is not supported
	ErrUnknownTransport = errors.New("device: unknown transport")

	// ErrUnknownFamily is generated for a chip family that is not supported
	ErrUnknownFamily = errors.New("device: unknown DAC family")
)

// bridgeIdle is how long an unused bridge connection is kept open
const bridgeIdle = 30 * time.Second

// Families maps config names to chip families
var Families = map[string]sabre32.Family{
	"es9018": sabre32.ES9018,
}

// DAC is an attached DAC and its card
type DAC struct {
	Name    string
	Arbiter *sabre32.Arbiter
	Card    *card.Botic
	Regs    *regmap.Map

	transport regmap.Transport
}

// OpenTransport opens the register transport described by c
func OpenTransport(c config.Device, fam sabre32.Family) (regmap.Transport, error) {
	timeout := time.Duration(c.TimeoutMS) * time.Millisecond
	switch strings.ToLower(c.Transport) {
	case config.TransportI2C:
		return bus.OpenI2C(c.Bus, i2c.Addr(c.Address))
	case config.TransportBridge:
		var maker comm.CreationFunc
		if c.BridgeAddr != "" {
			maker = comm.TCPConnMaker(c.BridgeAddr, timeout)
		} else {
			maker = comm.SerialConnMaker(&serial.Config{Name: c.BridgeSerial, Baud: c.Baud, ReadTimeout: timeout})
		}
		pool := comm.NewPool(1, bridgeIdle, maker)
		return bus.NewBridge(pool, uint8(c.Address), timeout, rate.Limit(c.RateLimit)), nil
	case config.TransportUSB:
		return bus.OpenUSB(uint16(c.USBVID), uint16(c.USBPID), uint8(c.Address))
	case config.TransportMock:
		return regmap.NewMockTransport(fam.Registers.Defaults), nil
	default:
		return nil, fmt.Errorf("%q: %w", c.Transport, ErrUnknownTransport)
	}
}

func openCard(c config.Config) (*card.Botic, error) {
	if c.Mock {
		return card.NewMock(), nil
	}
	if c.Card == (config.Card{}) {
		return card.New(nil, nil, nil), nil
	}
	return card.Open(card.Pins{Power: c.Card.PowerPin, DSD: c.Card.DSDPin, Mux: c.Card.MuxPin})
}

// Open builds and attaches a DAC.  col may be nil to skip instrumentation
func Open(c config.Config, log logrus.FieldLogger, col *metrics.Collector) (*DAC, error) {
	d, err := Connect(c, log, col)
	if err != nil {
		return nil, err
	}
	if err := d.Arbiter.Attach(); err != nil {
		d.Release()
		return nil, err
	}
	return d, nil
}

// Connect builds a DAC without attaching it; no register is written.
// Tools that inspect or tweak a running DAC use it with Release
func Connect(c config.Config, log logrus.FieldLogger, col *metrics.Collector) (*DAC, error) {
	fam, ok := Families[strings.ToLower(c.Device.Family)]
	if !ok {
		return nil, fmt.Errorf("%q: %w", c.Device.Family, ErrUnknownFamily)
	}
	devCfg := c.Device
	if c.Mock {
		devCfg.Transport = config.TransportMock
	}
	t, err := OpenTransport(devCfg, fam)
	if err != nil {
		return nil, err
	}
	crd, err := openCard(c)
	if err != nil {
		closeTransport(t)
		return nil, err
	}
	if col != nil {
		t = col.Instrument(c.Device.Name, t)
	}
	sel := clock.NewSelector(c.Clock.F44, c.Clock.F48, crd)
	sel.Ratio = c.Clock.BCLKRatio
	if c.Clock.MaxDivisor != 0 {
		sel.MaxDivisor = c.Clock.MaxDivisor
	}
	fam.Name = c.Device.Name
	regs := regmap.New(t, fam.Registers)
	arb := sabre32.NewArbiter(regs, fam, sel, crd, log)
	if col != nil {
		if err := col.WatchArbiter(c.Device.Name, arb); err != nil {
			closeTransport(t)
			return nil, err
		}
	}
	return &DAC{Name: c.Device.Name, Arbiter: arb, Card: crd, Regs: regs, transport: t}, nil
}

// Release closes the transport and leaves the DAC and card as they are
func (d *DAC) Release() error {
	return closeTransport(d.transport)
}

// Close mutes and detaches the DAC, then releases the transport
func (d *DAC) Close() error {
	err := d.Arbiter.Detach()
	if cerr := d.Release(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func closeTransport(t regmap.Transport) error {
	if c, ok := t.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
