package sabre32

import (
	"fmt"

	"github.com/boticaudio/sabre/regmap"
)

// halfSteps is the number of steps that halve the master trim magnitude
const halfSteps = 20

// volumeSteps is one octave of the master trim law, about 0.3 dB per step
var volumeSteps = [halfSteps + 1]uint32{
	0x7fffffff,
	0x7ba3cd36,
	0x776da003,
	0x735c2cd6,
	0x6f6e336a,
	0x6ba27e64,
	0x67f7e2f2,
	0x646d406f,
	0x6101800e,
	0x5db3947c,
	0x5a827999,
	0x576d341c,
	0x5472d14e,
	0x519266bc,
	0x4ecb11ef,
	0x4c1bf828,
	0x4984461a,
	0x47032fac,
	0x4497efb8,
	0x4241c7cf,
	0x3fffffff,
}

// VolumeLaw converts between attenuation levels and master trim magnitudes.
// Level 0 is full scale and level MaxAtten is silence
type VolumeLaw struct {
	MaxAtten int
}

// Encode returns the magnitude for an attenuation level.
// Levels at or beyond MaxAtten encode to zero, negative levels to full scale
func (l VolumeLaw) Encode(level int) uint32 {
	if level >= l.MaxAtten {
		return 0
	}
	if level < 0 {
		level = 0
	}
	return volumeSteps[level%halfSteps] >> uint(level/halfSteps)
}

// Decode returns the attenuation level nearest above a magnitude.
// Decode(Encode(L)) is within one step of L; it is not an exact inverse
func (l VolumeLaw) Decode(mag uint32) int {
	if mag == 0 {
		return l.MaxAtten
	}
	// work in 64 bits so doubling cannot overflow
	m := uint64(mag)
	level := 0
	for m <= uint64(volumeSteps[halfSteps]) {
		m <<= 1
		level += halfSteps
	}
	for i := 1; i < halfSteps; i++ {
		if m > uint64(volumeSteps[i]) {
			break
		}
		level++
	}
	if level > l.MaxAtten {
		level = l.MaxAtten
	}
	return level
}

// writeTrim stores a magnitude in the four master trim registers, LSB first.
// The first failing write aborts the rest
func writeTrim(regs *regmap.Map, mag uint32) error {
	for i := uint8(0); i < 4; i++ {
		if err := regs.Write(RegMasterTrim+i, uint8(mag>>(8*i))); err != nil {
			return err
		}
	}
	return nil
}

// readTrim assembles the master trim magnitude; the sign bit is masked off
func readTrim(regs *regmap.Map) (uint32, error) {
	var mag uint32
	for i := 3; i >= 0; i-- {
		b, err := regs.Read(RegMasterTrim + uint8(i))
		if err != nil {
			return 0, fmt.Errorf("reading master trim: %w", err)
		}
		if i == 3 {
			b &= trimTopByteMask
		}
		mag = mag<<8 | uint32(b)
	}
	return mag, nil
}
