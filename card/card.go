// Package card drives the Botic audio cape around the DAC: the power switch
// for the analog stage, the DSD switch that reroutes the serial audio lines,
// and the mux that selects between the 44.1 kHz and 48 kHz oscillators.
package card

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/boticaudio/sabre/clock"
)

// ErrNoPin is generated when a GPIO name does not resolve to a pin
var ErrNoPin = errors.New("card: GPIO pin not found")

// Pins names the GPIOs, e.g. "GPIO60" or "P9_12".  An empty name means the
// signal is not wired on this board
type Pins struct {
	Power string
	DSD   string
	Mux   string
}

// State is the last level driven on each signal
type State struct {
	Power  bool         `json:"power"`
	DSD    bool         `json:"dsd"`
	Family clock.Family `json:"family"`
}

// Botic is the card.  It satisfies clock.Mux and the DAC's card collaborator
type Botic struct {
	mu    sync.Mutex
	power gpio.PinOut
	dsd   gpio.PinOut
	mux   gpio.PinOut
	state State
}

// New creates a card from pins; any of them may be nil
func New(power, dsd, mux gpio.PinOut) *Botic {
	return &Botic{power: power, dsd: dsd, mux: mux}
}

// Open initializes the host GPIO drivers and looks up the pins by name.
// All outputs are driven low, which is power off, PCM, and the 44.1k oscillator
func Open(p Pins) (*Botic, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("card: initializing host drivers: %w", err)
	}
	var pins [3]gpio.PinOut
	for i, name := range []string{p.Power, p.DSD, p.Mux} {
		if name == "" {
			continue
		}
		pin := gpioreg.ByName(name)
		if pin == nil {
			return nil, fmt.Errorf("%q: %w", name, ErrNoPin)
		}
		if err := pin.Out(gpio.Low); err != nil {
			return nil, fmt.Errorf("card: driving %s low: %w", name, err)
		}
		pins[i] = pin
	}
	b := New(pins[0], pins[1], pins[2])
	b.state.Family = clock.Family44
	return b, nil
}

func drive(p gpio.PinOut, on bool) error {
	if p == nil {
		return nil
	}
	return p.Out(gpio.Level(on))
}

// SetPower switches the analog stage
func (b *Botic) SetPower(on bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := drive(b.power, on); err != nil {
		return fmt.Errorf("card: power switch: %w", err)
	}
	b.state.Power = on
	return nil
}

// SetDSD routes the serial audio lines to the DAC's DSD inputs
func (b *Botic) SetDSD(on bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := drive(b.dsd, on); err != nil {
		return fmt.Errorf("card: DSD switch: %w", err)
	}
	b.state.DSD = on
	return nil
}

// SelectClock drives the oscillator mux; high selects the 48k family
func (b *Botic) SelectClock(f clock.Family) error {
	if f != clock.Family44 && f != clock.Family48 {
		return fmt.Errorf("card: cannot select the %s oscillator", f)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := drive(b.mux, f == clock.Family48); err != nil {
		return fmt.Errorf("card: clock mux: %w", err)
	}
	b.state.Family = f
	return nil
}

// State returns the levels last driven
func (b *Botic) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
