package sabre32

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidFormat is generated when a sample format, serial audio format,
// or channel count is not supported by the DAC
var ErrInvalidFormat = errors.New("sabre32: invalid format")

// Format is a host sample format
type Format int

const (
	// FormatUnknown is the zero value and is always rejected
	FormatUnknown Format = iota
	// S16LE is 16 bit signed PCM
	S16LE
	// S24_3LE is 24 bit signed PCM packed in 3 bytes
	S24_3LE
	// S24LE is 24 bit signed PCM padded to 4 bytes
	S24LE
	// S32LE is 32 bit signed PCM
	S32LE
	// DSDU8 is DSD with 8 one bit samples per byte container
	DSDU8
	// DSDU16LE is DSD in a 16 bit container
	DSDU16LE
	// DSDU32LE is DSD in a 32 bit container
	DSDU32LE
)

var formatNames = map[Format]string{
	S16LE:    "S16_LE",
	S24_3LE:  "S24_3LE",
	S24LE:    "S24_LE",
	S32LE:    "S32_LE",
	DSDU8:    "DSD_U8",
	DSDU16LE: "DSD_U16_LE",
	DSDU32LE: "DSD_U32_LE",
}

func (f Format) String() string {
	if s, ok := formatNames[f]; ok {
		return s
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// ParseFormat converts an ALSA style format name, e.g. "S24_LE", to a Format.
// Unknown names return FormatUnknown and ErrInvalidFormat
func ParseFormat(s string) (Format, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for f, name := range formatNames {
		if name == s {
			return f, nil
		}
	}
	return FormatUnknown, fmt.Errorf("%q: %w", s, ErrInvalidFormat)
}

// BitDepth is the value of the bit depth field of mode control 1
type BitDepth uint8

const (
	// Depth24 is 24 bit input
	Depth24 BitDepth = 0
	// Depth20 is 20 bit input; the host formats never select it
	Depth20 BitDepth = 1
	// Depth16 is 16 bit input
	Depth16 BitDepth = 2
	// Depth32 is 32 bit input, also used for DSD
	Depth32 BitDepth = 3
)

// FormatFields is the register level result of translating a Format
type FormatFields struct {
	BitDepth BitDepth

	// DSD routes the input through the card's DSD switch
	DSD bool

	// Width is the PCM sample width in bits, DSDBits the DSD container width
	Width   int
	DSDBits int
}

var formatTable = map[Format]FormatFields{
	S16LE:    {BitDepth: Depth16, Width: 16},
	S24_3LE:  {BitDepth: Depth24, Width: 24},
	S24LE:    {BitDepth: Depth24, Width: 24},
	S32LE:    {BitDepth: Depth32, Width: 32},
	DSDU8:    {BitDepth: Depth32, DSD: true, DSDBits: 8},
	DSDU16LE: {BitDepth: Depth32, DSD: true, DSDBits: 16},
	DSDU32LE: {BitDepth: Depth32, DSD: true, DSDBits: 32},
}

// TranslateFormat returns the register fields for a sample format
func TranslateFormat(f Format) (FormatFields, error) {
	ff, ok := formatTable[f]
	if !ok {
		return FormatFields{}, fmt.Errorf("sample format %s: %w", f, ErrInvalidFormat)
	}
	return ff, nil
}

// DAIFormat is the serial audio interface framing
type DAIFormat int

const (
	// I2S is Philips I2S framing
	I2S DAIFormat = iota
	// LeftJustified aligns the MSB with the frame clock edge
	LeftJustified
	// RightJustified aligns the LSB with the end of the frame
	RightJustified
)

var daiNames = map[string]DAIFormat{
	"i2s":   I2S,
	"left":  LeftJustified,
	"lj":    LeftJustified,
	"right": RightJustified,
	"rj":    RightJustified,
}

// ParseDAIFormat parses i2s, left / lj, or right / rj
func ParseDAIFormat(s string) (DAIFormat, error) {
	d, ok := daiNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("serial format %q: %w", s, ErrInvalidFormat)
	}
	return d, nil
}

func (d DAIFormat) String() string {
	switch d {
	case I2S:
		return "i2s"
	case LeftJustified:
		return "left"
	case RightJustified:
		return "right"
	default:
		return fmt.Sprintf("DAIFormat(%d)", int(d))
	}
}

// field returns the value of the serial format field of mode control 1
func (d DAIFormat) field() (uint8, error) {
	switch d {
	case I2S, LeftJustified, RightJustified:
		return uint8(d), nil
	default:
		return 0, fmt.Errorf("serial format %s: %w", d, ErrInvalidFormat)
	}
}
