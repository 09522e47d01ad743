package sabre32

import (
	"testing"

	"github.com/boticaudio/sabre/regmap"
)

func TestVolumeRoundTripWithinOneStep(t *testing.T) {
	law := VolumeLaw{MaxAtten: ES9018.MaxAtten}
	for l := 0; l < law.MaxAtten; l++ {
		got := law.Decode(law.Encode(l))
		d := got - l
		if d < -1 || d > 1 {
			t.Errorf("level %d decoded as %d", l, got)
		}
	}
}

func TestVolumeEndpoints(t *testing.T) {
	law := VolumeLaw{MaxAtten: ES9018.MaxAtten}
	if got := law.Encode(0); got != 0x7fffffff {
		t.Errorf("level 0 should be full scale, got 0x%08x", got)
	}
	if got := law.Encode(law.MaxAtten); got != 0 {
		t.Errorf("level MaxAtten should be silence, got 0x%08x", got)
	}
	if got := law.Decode(0); got != law.MaxAtten {
		t.Errorf("magnitude 0 should decode to %d, got %d", law.MaxAtten, got)
	}
	if got := law.Encode(20); got != 0x3fffffff {
		t.Errorf("one octave down should be 0x3fffffff, got 0x%08x", got)
	}
}

func TestVolumeMonotonic(t *testing.T) {
	law := VolumeLaw{MaxAtten: ES9018.MaxAtten}
	prev := law.Encode(0)
	for l := 1; l <= law.MaxAtten; l++ {
		e := law.Encode(l)
		if e > prev {
			t.Errorf("level %d encodes louder than level %d", l, l-1)
		}
		prev = e
	}
}

func TestVolumeOutOfRangeLevels(t *testing.T) {
	law := VolumeLaw{MaxAtten: 100}
	if law.Encode(500) != 0 {
		t.Error("levels above MaxAtten should encode to silence")
	}
	if law.Encode(-3) != law.Encode(0) {
		t.Error("negative levels should encode to full scale")
	}
	if got := law.Decode(1); got != 100 {
		t.Errorf("tiny magnitudes clamp to MaxAtten, got %d", got)
	}
}

func TestTrimRegistersLSBFirst(t *testing.T) {
	bus := regmap.NewMockTransport(nil)
	regs := regmap.New(bus, ES9018.Registers)
	if err := writeTrim(regs, 0x12345678); err != nil {
		t.Fatal(err)
	}
	w := bus.Writes()
	want := []struct{ addr, val uint8 }{{0x14, 0x78}, {0x15, 0x56}, {0x16, 0x34}, {0x17, 0x12}}
	if len(w) != len(want) {
		t.Fatalf("expected 4 writes, got %d", len(w))
	}
	for i, x := range want {
		if w[i].Addr != x.addr || w[i].Val != x.val {
			t.Errorf("write %d: got 0x%02X=0x%02X, want 0x%02X=0x%02X", i, w[i].Addr, w[i].Val, x.addr, x.val)
		}
	}
	bus.Poke(0x17, 0xFF)
	regs = regmap.New(bus, regmap.Config{
		MaxRegister: ES9018.Registers.MaxRegister,
		Readable:    ES9018.Registers.Readable,
		Writable:    ES9018.Registers.Writable,
	})
	mag, err := readTrim(regs)
	if err != nil {
		t.Fatal(err)
	}
	if mag != 0x7f345678 {
		t.Errorf("sign bit should be masked on read, got 0x%08x", mag)
	}
}
