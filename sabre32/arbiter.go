package sabre32

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/boticaudio/sabre/clock"
	"github.com/boticaudio/sabre/regmap"
)

// Path is a signal source feeding the DAC
type Path int

const (
	// StreamDriven is PCM or DSD played by the host over the serial audio port
	StreamDriven Path = iota
	// ExternalPassthrough is an SPDIF source decoded by the DAC itself
	ExternalPassthrough
)

func (p Path) String() string {
	if p == ExternalPassthrough {
		return "external"
	}
	return "stream"
}

// MarshalText encodes the path as its name
func (p Path) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// ErrUnknownPath is generated for a Path that is neither stream nor external
var ErrUnknownPath = errors.New("sabre32: unknown signal path")

// ParsePath parses "stream" or "external"
func ParsePath(s string) (Path, error) {
	switch strings.ToLower(s) {
	case "stream", "master":
		return StreamDriven, nil
	case "external", "spdif":
		return ExternalPassthrough, nil
	}
	return 0, fmt.Errorf("%q: %w", s, ErrUnknownPath)
}

func (p Path) check() error {
	if p != StreamDriven && p != ExternalPassthrough {
		return fmt.Errorf("%d: %w", int(p), ErrUnknownPath)
	}
	return nil
}

// Card is the board around the DAC.  It may be nil when the board has no
// power switch or DSD router
type Card interface {
	// SetPower switches the analog stage on or off
	SetPower(on bool) error

	// SetDSD routes the serial audio lines to the DAC's DSD inputs
	SetDSD(on bool) error
}

// Clock plans and applies the reference clock for a stream.
// *clock.Selector satisfies this interface
type Clock interface {
	Plan(clock.Sample) (clock.Config, error)
	Apply(clock.Config) error
}

// PathState is the volume and mute of one signal path
type PathState struct {
	Level int  `json:"level"`
	Mute  bool `json:"mute"`
}

// State is a snapshot of an Arbiter
type State struct {
	Active     Path         `json:"active"`
	Stream     PathState    `json:"stream"`
	External   PathState    `json:"external"`
	LastFamily clock.Family `json:"lastFamily"`
	Clock      clock.Config `json:"clock"`
	Format     string       `json:"format"`
	Channels   int          `json:"channels"`
}

// Arbiter owns one DAC and serializes every change to it.  Each transition
// writes the mute bit before anything else and unmutes only when the
// active path allows it.  A failed bus transaction aborts the transition,
// leaving the DAC muted
type Arbiter struct {
	mu sync.Mutex

	regs *regmap.Map
	fam  Family
	law  VolumeLaw
	clk  Clock
	card Card
	log  logrus.FieldLogger

	active     Path
	paths      [2]PathState
	lastFamily clock.Family
	clockCfg   clock.Config
	format     Format
	channels   int

	controls map[string]*control
	order    []*control
}

// NewArbiter creates an Arbiter.  No bus traffic is generated until Attach.
// card and log may be nil
func NewArbiter(regs *regmap.Map, fam Family, clk Clock, card Card, log logrus.FieldLogger) *Arbiter {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	a := &Arbiter{
		regs:   regs,
		fam:    fam,
		law:    VolumeLaw{MaxAtten: fam.MaxAtten},
		clk:    clk,
		card:   card,
		log:    log.WithField("dac", fam.Name),
		active: StreamDriven,
		paths: [2]PathState{
			StreamDriven:        {Mute: false},
			ExternalPassthrough: {Mute: true},
		},
		lastFamily: clock.Unknown,
		controls:   map[string]*control{},
	}
	a.order = newControlTable(fam)
	for _, c := range a.order {
		a.controls[c.Name] = c
	}
	return a
}

// Family returns the device family the arbiter was created for
func (a *Arbiter) Family() Family {
	return a.fam
}

// Attach mutes the DAC and powers up the card
func (a *Arbiter) Attach() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.mute(); err != nil {
		return a.fail("attach", err)
	}
	if a.card != nil {
		if err := a.card.SetPower(true); err != nil {
			return fmt.Errorf("sabre32: powering up card: %w", err)
		}
	}
	a.log.Info("DAC attached")
	return nil
}

// Detach mutes the DAC and powers down the card.  The card is powered down
// even if the mute fails
func (a *Arbiter) Detach() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	muteErr := a.mute()
	if muteErr != nil {
		muteErr = a.fail("detach", muteErr)
	}
	if a.card != nil {
		if err := a.card.SetPower(false); err != nil && muteErr == nil {
			return fmt.Errorf("sabre32: powering down card: %w", err)
		}
	}
	a.log.Info("DAC detached")
	return muteErr
}

// EnterPath makes p the active path: mute, route, restore p's volume, then
// unmute if p's mute flags allow it
func (a *Arbiter) EnterPath(p Path) error {
	if err := p.check(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enterPath(p)
}

func (a *Arbiter) enterPath(p Path) error {
	a.active = p
	if err := a.mute(); err != nil {
		return a.fail("entering "+p.String()+" path", err)
	}
	external := p == ExternalPassthrough
	var force, auto uint8
	if external {
		force, auto = forceSPDIFBit, spdifAutoBit
	}
	if err := a.regs.UpdateBits(RegAutomuteLevel, forceSPDIFBit, force); err != nil {
		return a.fail("routing "+p.String()+" path", err)
	}
	if err := a.regs.UpdateBits(RegMode5, spdifAutoBit, auto); err != nil {
		return a.fail("routing "+p.String()+" path", err)
	}
	if err := writeTrim(a.regs, a.law.Encode(a.paths[p].Level)); err != nil {
		return a.fail("restoring "+p.String()+" volume", err)
	}
	if a.audible() {
		if err := a.regs.UpdateBits(RegMode1, muteBit, 0); err != nil {
			return a.fail("unmute", err)
		}
	}
	a.log.WithField("path", p).Debug("entered signal path")
	return nil
}

// ActivePath returns the path currently feeding the DAC
func (a *Arbiter) ActivePath() Path {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// SetMute sets the mute flag of a path.  The mute bit is rewritten when p is
// active, or when the external path is active and p is the stream path,
// whose mute also silences SPDIF playback
func (a *Arbiter) SetMute(p Path, mute bool) error {
	if err := p.check(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.paths[p].Mute = mute
	if p != a.active && a.active != ExternalPassthrough {
		return nil
	}
	var bit uint8
	if !a.audible() {
		bit = muteBit
	}
	if err := a.regs.UpdateBits(RegMode1, muteBit, bit); err != nil {
		return a.fail("mute", err)
	}
	return nil
}

// Mute returns the stored mute flag of a path.  Unknown paths are reported muted
func (a *Arbiter) Mute(p Path) bool {
	if p.check() != nil {
		return true
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.paths[p].Mute
}

// SetVolume sets the attenuation level of a path, in [0, MaxAtten].
// The master trim is written only if p is active
func (a *Arbiter) SetVolume(p Path, level int) error {
	if err := p.check(); err != nil {
		return err
	}
	if level < 0 || level > a.fam.MaxAtten {
		return fmt.Errorf("volume %d, must be in [0, %d]: %w", level, a.fam.MaxAtten, ErrOutOfRange)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.paths[p].Level = level
	if p != a.active {
		return nil
	}
	if err := writeTrim(a.regs, a.law.Encode(level)); err != nil {
		return a.fail("volume", err)
	}
	return nil
}

// Volume returns the attenuation level of a path.  The active path's level is
// decoded from the master trim, others return the level last set
func (a *Arbiter) Volume(p Path) (int, error) {
	if err := p.check(); err != nil {
		return 0, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if p != a.active {
		return a.paths[p].Level, nil
	}
	mag, err := readTrim(a.regs)
	if err != nil {
		return 0, err
	}
	a.paths[p].Level = a.law.Decode(mag)
	return a.paths[p].Level, nil
}

// SetFormat configures the DAC and clock for a stream.  Everything is
// validated before the first register write; an invalid request changes
// nothing.  The DAC is muted and stays muted until the stream path is entered.
// The DPLL is relocked when the clock family changes
func (a *Arbiter) SetFormat(rate int, f Format, channels int) (clock.Config, error) {
	if channels < 2 || channels > a.fam.Channels {
		return clock.Config{}, fmt.Errorf("%d channels: %w", channels, ErrInvalidFormat)
	}
	ff, err := TranslateFormat(f)
	if err != nil {
		return clock.Config{}, err
	}
	plan, err := a.clk.Plan(clock.Sample{
		Rate:     rate,
		Channels: channels,
		Width:    ff.Width,
		DSD:      ff.DSD,
		DSDBits:  ff.DSDBits,
	})
	if err != nil {
		return clock.Config{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	log := a.log.WithFields(logrus.Fields{"rate": rate, "format": f})
	if err := a.mute(); err != nil {
		return plan, a.fail("hw params", err)
	}
	if err := a.clk.Apply(plan); err != nil {
		return plan, err
	}
	if plan.Family != a.lastFamily {
		if err := a.relock(); err != nil {
			return plan, a.fail("DPLL relock", err)
		}
		log.WithField("family", plan.Family).Debug("DPLL relocked")
		a.lastFamily = plan.Family
	}
	if err := a.regs.WriteField(RegMode1, bitDepthField, uint8(ff.BitDepth)); err != nil {
		return plan, a.fail("bit depth", err)
	}
	if a.card != nil {
		if err := a.card.SetDSD(ff.DSD); err != nil {
			return plan, fmt.Errorf("sabre32: DSD switch: %w", err)
		}
	}
	a.clockCfg = plan
	a.format = f
	a.channels = channels
	log.Info("hw params applied")
	return plan, nil
}

// SetDAIFormat sets the serial audio framing.  The DAC is muted first
func (a *Arbiter) SetDAIFormat(d DAIFormat) error {
	v, err := d.field()
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.mute(); err != nil {
		return a.fail("serial format", err)
	}
	if err := a.regs.WriteField(RegMode1, daiFormatField, v); err != nil {
		return a.fail("serial format", err)
	}
	return nil
}

// ClockConfig returns the clock plan applied by the last successful SetFormat
func (a *Arbiter) ClockConfig() clock.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.clockCfg
}

// State returns a snapshot of the arbiter
func (a *Arbiter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := State{
		Active:     a.active,
		Stream:     a.paths[StreamDriven],
		External:   a.paths[ExternalPassthrough],
		LastFamily: a.lastFamily,
		Clock:      a.clockCfg,
		Channels:   a.channels,
	}
	if a.format != FormatUnknown {
		s.Format = a.format.String()
	}
	return s
}

// Controls lists every control, path controls first
func (a *Arbiter) Controls() []ControlInfo {
	out := []ControlInfo{
		{Name: MasterVolume, Kind: KindInt, Max: a.fam.MaxAtten},
		{Name: MasterSwitch, Kind: KindBool, Max: 1},
		{Name: ExternalVolume, Kind: KindInt, Max: a.fam.MaxAtten},
		{Name: ExternalSwitch, Kind: KindBool, Max: 1},
	}
	for _, c := range a.order {
		out = append(out, c.ControlInfo)
	}
	return out
}

// Get returns the value of a control.  Switches are 1 when the path is
// audible, as a mixer shows them
func (a *Arbiter) Get(name string) (int, error) {
	switch name {
	case MasterVolume:
		return a.Volume(StreamDriven)
	case ExternalVolume:
		return a.Volume(ExternalPassthrough)
	case MasterSwitch:
		return switchValue(a.Mute(StreamDriven)), nil
	case ExternalSwitch:
		return switchValue(a.Mute(ExternalPassthrough)), nil
	}
	c, ok := a.controls[name]
	if !ok {
		return 0, fmt.Errorf("%q: %w", name, ErrUnknownControl)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return c.get(a.regs)
}

// Set changes the value of a control
func (a *Arbiter) Set(name string, v int) error {
	switch name {
	case MasterVolume:
		return a.SetVolume(StreamDriven, v)
	case ExternalVolume:
		return a.SetVolume(ExternalPassthrough, v)
	case MasterSwitch, ExternalSwitch:
		if v != 0 && v != 1 {
			return fmt.Errorf("%s = %d: %w", name, v, ErrOutOfRange)
		}
		p := StreamDriven
		if name == ExternalSwitch {
			p = ExternalPassthrough
		}
		return a.SetMute(p, v == 0)
	}
	c, ok := a.controls[name]
	if !ok {
		return fmt.Errorf("%q: %w", name, ErrUnknownControl)
	}
	if err := checkRange(c.ControlInfo, v); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := c.set(a.regs, v); err != nil {
		return a.fail(name, err)
	}
	return nil
}

// Dump reads every register of the device
func (a *Arbiter) Dump() []regmap.Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.regs.Dump()
}

// audible reports whether the active path's flags allow the DAC to play.
// External playback is also gated by the stream mute
func (a *Arbiter) audible() bool {
	if a.active == ExternalPassthrough {
		return !a.paths[StreamDriven].Mute && !a.paths[ExternalPassthrough].Mute
	}
	return !a.paths[StreamDriven].Mute
}

func (a *Arbiter) mute() error {
	return a.regs.UpdateBits(RegMode1, muteBit, muteBit)
}

// relock pulses the DPLL lock reset
func (a *Arbiter) relock() error {
	if err := a.regs.UpdateBits(RegMode5, relockBit, relockBit); err != nil {
		return err
	}
	return a.regs.UpdateBits(RegMode5, relockBit, 0)
}

func (a *Arbiter) fail(op string, err error) error {
	entry := a.log.WithError(err).WithField("op", op)
	if errors.Is(err, regmap.ErrBus) {
		entry.Warn("unable to configure DAC over the bus")
	} else {
		entry.Error("DAC register access rejected")
	}
	return fmt.Errorf("sabre32: %s: %w", op, err)
}

func switchValue(mute bool) int {
	if mute {
		return 0
	}
	return 1
}
