package sabre32

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/boticaudio/sabre/regmap"
	"github.com/boticaudio/sabre/util"
)

var (
	// ErrUnknownControl is generated when a control name is not in the table
	ErrUnknownControl = errors.New("sabre32: unknown control")

	// ErrOutOfRange is generated when a control value is outside its item list or maximum
	ErrOutOfRange = errors.New("sabre32: value out of range")
)

// names of the controls owned by the arbiter rather than the register table
const (
	MasterVolume   = "Master Playback Volume"
	MasterSwitch   = "Master Playback Switch"
	ExternalVolume = "External Playback Volume"
	ExternalSwitch = "External Playback Switch"
)

// Kind is the type of a control's value
type Kind int

const (
	// KindInt is an integer in [0, Max]
	KindInt Kind = iota
	// KindEnum is an index into Items
	KindEnum
	// KindBool is 0 or 1
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindEnum:
		return "enum"
	case KindBool:
		return "bool"
	default:
		return "int"
	}
}

// MarshalText encodes the kind as its name
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ControlInfo describes a control to a host
type ControlInfo struct {
	Name  string   `json:"name"`
	Kind  Kind     `json:"kind"`
	Items []string `json:"items,omitempty"`
	Max   int      `json:"max"`
}

// Index returns the position of item in an enum control's Items, or -1
func (c ControlInfo) Index(item string) int {
	for i, s := range c.Items {
		if s == item {
			return i
		}
	}
	return -1
}

// field is a bit field of one register
type field struct {
	reg, mask uint8
}

// keep in an encoded value list leaves that field untouched
const keep = -1

// control is a register backed control.  encode returns one value per field,
// written in order; decode receives the fields' current values in the same order
type control struct {
	ControlInfo
	fields []field
	encode func(v int) []int
	decode func(raw []uint8) int
}

func (c *control) get(regs *regmap.Map) (int, error) {
	raw := make([]uint8, len(c.fields))
	for i, f := range c.fields {
		v, err := regs.ReadField(f.reg, f.mask)
		if err != nil {
			return 0, err
		}
		raw[i] = v
	}
	if c.decode == nil {
		return int(raw[0]), nil
	}
	return c.decode(raw), nil
}

func (c *control) set(regs *regmap.Map, v int) error {
	vals := []int{v}
	if c.encode != nil {
		vals = c.encode(v)
	}
	for i, f := range c.fields {
		if vals[i] == keep {
			continue
		}
		if err := regs.WriteField(f.reg, f.mask, uint8(vals[i])); err != nil {
			return err
		}
	}
	return nil
}

func enum(name string, items []string, fields ...field) *control {
	return &control{
		ControlInfo: ControlInfo{Name: name, Kind: KindEnum, Items: items, Max: len(items) - 1},
		fields:      fields,
	}
}

// DPLL values 0 and 1 are the automatic modes, 2 disables the DPLL and
// 3..16 are explicit bandwidths.  The bandwidth field holds 0..7 and the low
// mode bit selects the 128x multiplier for the upper seven
func encodeDPLL(v int) []int {
	if v < 2 {
		return []int{0, 2 + v}
	}
	w := v - 2
	if w <= 7 {
		return []int{w, 0}
	}
	return []int{w - 7, 1}
}

func decodeDPLL(raw []uint8) int {
	bw, mode := int(raw[0]), int(raw[1])
	if mode&2 != 0 {
		return mode & 1
	}
	v := bw
	if bw > 0 && mode&1 != 0 {
		v += 7
	}
	return v + 2
}

func newControlTable(fam Family) []*control {
	spdif := enum("SPDIF Source", []string{"1", "2", "3", "4", "5", "6", "7", "8"},
		field{RegSPDIFSource, 0xFF})
	spdif.encode = func(v int) []int { return []int{1 << uint(v)} }
	spdif.decode = func(raw []uint8) int {
		return util.Clamp(util.HighestBit(raw[0]), 0, 7)
	}

	deemph := enum("De-emphasis Filter", []string{"Bypass", "32kHz", "44.1kHz", "48kHz"},
		field{RegMode2, deemphField}, field{RegMode1, deemphBypassBit})
	deemph.encode = func(v int) []int {
		if v == 0 {
			return []int{keep, 1}
		}
		return []int{v - 1, 0}
	}
	deemph.decode = func(raw []uint8) int {
		if raw[1] != 0 {
			return 0
		}
		v := int(raw[0]) + 1
		if v > 3 {
			// reserved
			return 0
		}
		return v
	}

	dpll := enum("DPLL", []string{"1x Auto", "128x Auto", "No",
		"1x", "2x", "4x", "8x", "16x", "32x", "64x",
		"128x", "256x", "512x", "1024x", "2048x", "4096x", "8192x"},
		field{RegMode2, dpllBWField}, field{RegDPLLMode, dpllModeField})
	dpll.encode = encodeDPLL
	dpll.decode = decodeDPLL

	mono := enum("True Mono", []string{"Left", "Off", "Right"}, field{RegMode5, trueMonoField})
	// bit 0 enables mono, bit 7 selects the right channel
	mono.encode = func(v int) []int {
		return []int{int(util.SetBit(util.BoolByte(v != 1), 7, v == 2))}
	}
	mono.decode = func(raw []uint8) int {
		switch {
		case !util.GetBit(raw[0], 0):
			return 1
		case util.GetBit(raw[0], 7):
			return 2
		}
		return 0
	}

	notch := enum("MCLK Notch", []string{"No Notch", "MCLK/4", "MCLK/8", "MCLK/16", "MCLK/32", "MCLK/64"},
		field{RegMode3, notchField})
	notch.encode = func(v int) []int { return []int{1<<uint(v) - 1} }
	notch.decode = func(raw []uint8) int { return util.HighestBit(raw[0]) + 1 }

	remapOut := enum("Remap Output", []string{"q6true", "q7pseudo", "q7true", "q8pseudo", "q8true", "q9pseudo"},
		field{RegDACSource, remapOutBit}, field{RegMode4, 0xFF})
	remapOut.encode = func(v int) []int {
		return []int{1 - v%2, 0x55 * ((v + 1) / 2)}
	}
	remapOut.decode = func(raw []uint8) int {
		v := 2 * int(raw[1]&0x03)
		if raw[0] == 0 {
			v--
		}
		if v < 0 || v > 5 {
			return 0
		}
		return v
	}

	table := []*control{
		spdif,
		enum("Jitter Reduction", []string{"Bypass", "Use"}, field{RegMode1, jitterBit}),
		deemph,
		dpll,
		enum("IIR Bandwidth", []string{"Normal", "50k", "60k", "70k"}, field{RegDACSource, iirField}),
		enum("FIR Rolloff", []string{"Slow", "Fast"}, field{RegDACSource, firRolloffBit}),
		mono,
		enum("DPLL Phase", []string{"Normal", "Flip"}, field{RegMode5, dpllPhaseBit}),
		enum("Oversampling Filter", []string{"Use", "Bypass"}, field{RegMode5, osBypassBit}),
		enum("Remap Inputs", []string{
			"12345678", "12345676", "12345658", "12345656",
			"12325678", "12325676", "12325658", "12325656",
			"12145678", "12145676", "12145658", "12145656",
			"12125678", "12125676", "12125658", "12125656",
		}, field{RegDACSource, remapInField}),
		notch,
		remapOut,
	}
	for ch := 0; ch < fam.Channels; ch++ {
		table = append(table, &control{
			ControlInfo: ControlInfo{Name: "DAC" + strconv.Itoa(ch+1) + " Playback Volume", Kind: KindInt, Max: 255},
			fields:      []field{{RegVolume0 + uint8(ch), 0xFF}},
		})
	}
	return table
}

func checkRange(info ControlInfo, v int) error {
	if v < 0 || v > info.Max {
		return fmt.Errorf("%s = %d, must be in [0, %d]: %w", info.Name, v, info.Max, ErrOutOfRange)
	}
	return nil
}
