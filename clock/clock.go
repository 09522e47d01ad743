// Package clock chooses the reference oscillator and bit clock divisor for a
// sample rate.  Boards carry two oscillators, one a multiple of 44.1 kHz and
// one a multiple of 48 kHz, and a mux routes one of them to the DAC.
package clock

import (
	"errors"
	"fmt"
)

const (
	// DefaultF44 is the 44.1 kHz family oscillator, 512 * 44100
	DefaultF44 = 22579200

	// DefaultF48 is the 48 kHz family oscillator, 512 * 48000
	DefaultF48 = 24576000

	// DefaultRatio is the PCM bit clock to frame clock ratio
	DefaultRatio = 64

	// DefaultMaxDivisor is the largest value the CPU DAI divider accepts
	DefaultMaxDivisor = 32

	// MinRate and MaxRate bound the sample rates the card supports
	MinRate = 22050
	MaxRate = 384000
)

var (
	// ErrUnsupportedRate is generated when neither oscillator is an integer
	// multiple of the requested rate, or the rate is outside [MinRate, MaxRate]
	ErrUnsupportedRate = errors.New("clock: unsupported sample rate")

	// ErrUnsupportedRatio is generated when the bit clock cannot be derived
	// from the chosen oscillator with an integer divider the hardware accepts
	ErrUnsupportedRatio = errors.New("clock: unsupported bit clock ratio")
)

// Family is a reference clock family
type Family int

const (
	// Unknown is the state before any clock has been selected
	Unknown Family = iota
	// Family44 holds rates that divide a multiple of 44100 Hz
	Family44
	// Family48 holds rates that divide a multiple of 48000 Hz
	Family48
)

func (f Family) String() string {
	switch f {
	case Family44:
		return "44.1k"
	case Family48:
		return "48k"
	default:
		return "unknown"
	}
}

// MarshalText encodes the family as its name
func (f Family) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// Mux routes one of the oscillators to the DAC system clock input
type Mux interface {
	SelectClock(Family) error
}

// Sample describes the stream a clock is requested for
type Sample struct {
	// Rate is the frame rate in Hz
	Rate int

	// Channels and Width are used to size the frame when Ratio is zero
	Channels int
	Width    int

	// DSD streams use DSDBits (8, 16, or 32) bits of the container per frame clock
	DSD     bool
	DSDBits int
}

// Config is a resolved clock plan
type Config struct {
	Family  Family `json:"family"`
	Sysclk  int    `json:"sysclk"`
	BCLK    int    `json:"bclk"`
	Ratio   int    `json:"ratio"`
	Divisor int    `json:"divisor"`
}

// Selector turns sample descriptions into clock plans and drives the mux.
// The zero value is not usable; call NewSelector or fill every field
type Selector struct {
	F44, F48   int
	Ratio      int
	MaxDivisor int

	mux Mux
}

// NewSelector returns a Selector with the default ratio and divider limit.
// mux may be nil, in which case Apply only reports the plan
func NewSelector(f44, f48 int, mux Mux) *Selector {
	if f44 == 0 {
		f44 = DefaultF44
	}
	if f48 == 0 {
		f48 = DefaultF48
	}
	return &Selector{F44: f44, F48: f48, Ratio: DefaultRatio, MaxDivisor: DefaultMaxDivisor, mux: mux}
}

// SelectFamily picks the oscillator for rate, preferring the 44.1k family
func (s *Selector) SelectFamily(rate int) (Family, int, error) {
	if rate <= 0 {
		return Unknown, 0, fmt.Errorf("%d Hz: %w", rate, ErrUnsupportedRate)
	}
	if s.F44%rate == 0 {
		return Family44, s.F44, nil
	}
	if s.F48%rate == 0 {
		return Family48, s.F48, nil
	}
	return Unknown, 0, fmt.Errorf("%d Hz: %w", rate, ErrUnsupportedRate)
}

// BitClock returns the bit clock for a sample and the ratio used to derive it
func (s *Selector) BitClock(smp Sample) (bclk, ratio int, err error) {
	if smp.DSD {
		switch smp.DSDBits {
		case 8, 16, 32:
			return smp.DSDBits * smp.Rate, smp.DSDBits, nil
		default:
			return 0, 0, fmt.Errorf("DSD container of %d bits: %w", smp.DSDBits, ErrUnsupportedRatio)
		}
	}
	ratio = s.Ratio
	if ratio == 0 {
		ratio = smp.Channels * smp.Width
	}
	if ratio <= 0 || ratio%2 != 0 {
		return 0, 0, fmt.Errorf("ratio %d: %w", ratio, ErrUnsupportedRatio)
	}
	return ratio * smp.Rate, ratio, nil
}

// Divisor rounds sysclk/bclk to the nearest integer
func Divisor(sysclk, bclk int) int {
	return (sysclk + bclk/2) / bclk
}

// Plan computes the clock configuration for a sample without touching hardware
func (s *Selector) Plan(smp Sample) (Config, error) {
	if smp.Rate < MinRate || smp.Rate > MaxRate {
		return Config{}, fmt.Errorf("%d Hz: %w", smp.Rate, ErrUnsupportedRate)
	}
	fam, sysclk, err := s.SelectFamily(smp.Rate)
	if err != nil {
		return Config{}, err
	}
	bclk, ratio, err := s.BitClock(smp)
	if err != nil {
		return Config{}, err
	}
	div := Divisor(sysclk, bclk)
	max := s.MaxDivisor
	if max == 0 {
		max = DefaultMaxDivisor
	}
	if div < 1 || div > max {
		return Config{}, fmt.Errorf("divisor %d for %d/%d: %w", div, sysclk, bclk, ErrUnsupportedRatio)
	}
	return Config{Family: fam, Sysclk: sysclk, BCLK: bclk, Ratio: ratio, Divisor: div}, nil
}

// Apply switches the mux to the plan's family.  Redundant switches are not
// suppressed
func (s *Selector) Apply(c Config) error {
	if s.mux == nil {
		return nil
	}
	if err := s.mux.SelectClock(c.Family); err != nil {
		return fmt.Errorf("clock: selecting %s oscillator: %w", c.Family, err)
	}
	return nil
}

// Select is Plan followed by Apply
func (s *Selector) Select(smp Sample) (Config, error) {
	c, err := s.Plan(smp)
	if err != nil {
		return c, err
	}
	return c, s.Apply(c)
}
