/*Package sabre32 drives the ESS Sabre32 family of 8 channel audio DACs
(ES9018 and relatives).

The package is organized around an Arbiter which owns one device's register
map and sequences every change to it so the DAC is always muted before it is
reconfigured.  The DAC is shared by two signal paths: the stream path, carrying
PCM or DSD over the serial audio port, and the external path, where the DAC
plays an SPDIF source directly.  Each path has its own volume and mute.

Basic usage is as followed:
 regs := regmap.New(transport, sabre32.ES9018.Registers)
 sel := clock.NewSelector(clock.DefaultF44, clock.DefaultF48, card)
 dac := sabre32.NewArbiter(regs, sabre32.ES9018, sel, card, log)
 if err := dac.Attach(); err != nil {
 	log.Fatal(err)
 }
 defer dac.Detach()
 dac.SetFormat(44100, sabre32.S24LE, 2)
 dac.EnterPath(sabre32.StreamDriven)
 dac.SetVolume(sabre32.StreamDriven, 40) // 40 steps of attenuation
 dac.Set("DPLL", 5)
*/
package sabre32

import "github.com/boticaudio/sabre/regmap"

// ES9018 register addresses
const (
	RegVolume0       = 0x00 // through RegVolume0+7, one per DAC channel
	RegAutomuteLevel = 0x08
	RegAutomuteTime  = 0x09
	RegMode1         = 0x0A
	RegMode2         = 0x0B
	RegMode3         = 0x0C
	RegDACPolarity   = 0x0D
	RegDACSource     = 0x0E
	RegMode4         = 0x0F
	RegAutomuteLoop  = 0x10
	RegMode5         = 0x11
	RegSPDIFSource   = 0x12
	RegDACBPolarity  = 0x13
	RegMasterTrim    = 0x14 // four bytes, LSB first
	RegPhaseShift    = 0x18
	RegDPLLMode      = 0x19
	RegStatus        = 0x1B
	RegDPLLNum       = 0x1C // four bytes, LSB first
	RegFIRProgEnable = 0x25
	RegStage1FIR     = 0x26 // four bytes
	RegStage2FIR     = 0x2A // four bytes
)

// bits and fields of the mode registers
const (
	muteBit          = 0x01 // RegMode1
	jitterBit        = 0x04 // RegMode1
	deemphBypassBit  = 0x02 // RegMode1
	daiFormatField   = 0x30 // RegMode1
	bitDepthField    = 0xC0 // RegMode1
	deemphField      = 0x03 // RegMode2
	dpllBWField      = 0x1C // RegMode2
	notchField       = 0x1F // RegMode3
	firRolloffBit    = 0x01 // RegDACSource
	iirField         = 0x06 // RegDACSource
	remapOutBit      = 0x08 // RegDACSource
	remapInField     = 0xF0 // RegDACSource
	forceSPDIFBit    = 0x80 // RegAutomuteLevel
	trueMonoField    = 0x81 // RegMode5
	dpllPhaseBit     = 0x02 // RegMode5
	spdifAutoBit     = 0x08 // RegMode5
	relockBit        = 0x20 // RegMode5
	osBypassBit      = 0x40 // RegMode5
	dpllModeField    = 0x03 // RegDPLLMode
	trimTopByteMask  = 0x7F
	defaultVolumeMax = 201
)

// Family describes one member of the Sabre32 line.  Everything that differs
// between parts lives here so the arbiter and control table are shared
type Family struct {
	// Name is used in logs and metrics
	Name string

	// MaxAtten is the number of attenuation steps of the master trim;
	// MaxAtten itself means full attenuation
	MaxAtten int

	// Channels is the number of DAC channels with a per channel trim
	Channels int

	// Registers describes the address space
	Registers regmap.Config
}

// ES9018 is the 8 channel Sabre32 Reference DAC
var ES9018 = Family{
	Name:     "es9018",
	MaxAtten: defaultVolumeMax,
	Channels: 8,
	Registers: regmap.Config{
		Name:        "es9018",
		MaxRegister: 72,
		Readable: regmap.Ranges{
			{Lo: RegVolume0, Hi: RegDPLLMode},
			{Lo: RegStatus, Hi: RegDPLLNum + 3},
			{Lo: RegFIRProgEnable, Hi: RegFIRProgEnable},
		},
		Writable: regmap.Ranges{
			{Lo: RegVolume0, Hi: RegDPLLMode},
			{Lo: RegFIRProgEnable, Hi: RegStage2FIR + 3},
		},
		Volatile: regmap.Ranges{
			{Lo: RegStatus, Hi: RegDPLLNum + 3},
		},
		Defaults: map[uint8]uint8{
			RegVolume0 + 0: 0x00,
			RegVolume0 + 1: 0x00,
			RegVolume0 + 2: 0x00,
			RegVolume0 + 3: 0x00,
			RegVolume0 + 4: 0x00,
			RegVolume0 + 5: 0x00,
			RegVolume0 + 6: 0x00,
			RegVolume0 + 7: 0x00,

			RegAutomuteLevel: 0x68,
			RegAutomuteTime:  0x04,
			RegMode1:         0xCE,
			RegMode2:         0x85,
			RegMode3:         0x20,
			RegDACPolarity:   0x00,
			RegDACSource:     0x09,
			RegMode4:         0x00,
			RegAutomuteLoop:  0x00,
			RegMode5:         0x1C,
			RegSPDIFSource:   0x01,
			RegDACBPolarity:  0x00,

			RegMasterTrim + 0: 0xFF,
			RegMasterTrim + 1: 0xFF,
			RegMasterTrim + 2: 0xFF,
			RegMasterTrim + 3: 0x7F,

			RegPhaseShift:    0x00,
			RegDPLLMode:      0x02,
			RegFIRProgEnable: 0x00,
		},
	},
}
