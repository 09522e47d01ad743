package sabre32_test

import (
	"errors"
	"testing"

	"github.com/boticaudio/sabre/sabre32"
)

func TestEveryControlRoundTrips(t *testing.T) {
	r := newRig(t)
	for _, c := range r.dac.Controls() {
		values := []int{0, c.Max / 2, c.Max}
		if c.Kind == sabre32.KindEnum {
			values = values[:0]
			for i := range c.Items {
				values = append(values, i)
			}
		}
		for _, v := range values {
			if err := r.dac.Set(c.Name, v); err != nil {
				t.Errorf("%s = %d: %v", c.Name, v, err)
				continue
			}
			got, err := r.dac.Get(c.Name)
			if err != nil {
				t.Errorf("get %s: %v", c.Name, err)
				continue
			}
			d := got - v
			if c.Name == sabre32.MasterVolume && d >= -1 && d <= 1 {
				continue
			}
			if d != 0 {
				t.Errorf("%s: set %d, got %d", c.Name, v, got)
			}
		}
	}
}

func TestSPDIFSourceOneHot(t *testing.T) {
	r := newRig(t)
	for i := 0; i < 8; i++ {
		if err := r.dac.Set("SPDIF Source", i); err != nil {
			t.Fatal(err)
		}
		if got := r.bus.Peek(sabre32.RegSPDIFSource); got != 1<<uint(i) {
			t.Errorf("source %d wrote 0x%02X", i, got)
		}
	}
}

func TestDeemphasisBypassKeepsRate(t *testing.T) {
	r := newRig(t)
	if err := r.dac.Set("De-emphasis Filter", 3); err != nil {
		t.Fatal(err)
	}
	rate := r.bus.Peek(sabre32.RegMode2) & 0x03
	if rate != 2 {
		t.Errorf("48kHz should write sub-field 2, got %d", rate)
	}
	if r.bus.Peek(sabre32.RegMode1)&0x02 != 0 {
		t.Error("bypass bit should be clear")
	}
	r.bus.ResetLog()
	if err := r.dac.Set("De-emphasis Filter", 0); err != nil {
		t.Fatal(err)
	}
	for _, w := range r.bus.Writes() {
		if w.Addr == sabre32.RegMode2 {
			t.Errorf("bypass rewrote the rate register: %+v", w)
		}
	}
	if r.bus.Peek(sabre32.RegMode1)&0x02 == 0 {
		t.Error("bypass bit should be set")
	}
}

func TestDeemphasisReservedDecodesAsBypass(t *testing.T) {
	r := newRig(t)
	if err := r.regs.UpdateBits(sabre32.RegMode1, 0x02, 0x00); err != nil {
		t.Fatal(err)
	}
	if err := r.regs.UpdateBits(sabre32.RegMode2, 0x03, 0x03); err != nil {
		t.Fatal(err)
	}
	if v, err := r.dac.Get("De-emphasis Filter"); err != nil || v != 0 {
		t.Errorf("reserved rate should read as Bypass, got %d, %v", v, err)
	}
}

func TestDPLLRegisters(t *testing.T) {
	r := newRig(t)
	cases := []struct {
		v        int
		bw, mode uint8
	}{
		{0, 0, 2},
		{1, 0, 3},
		{2, 0, 0},
		{9, 7, 0},
		{10, 1, 1},
		{16, 7, 1},
	}
	for _, c := range cases {
		if err := r.dac.Set("DPLL", c.v); err != nil {
			t.Fatal(err)
		}
		bw := (r.bus.Peek(sabre32.RegMode2) & 0x1C) >> 2
		mode := r.bus.Peek(sabre32.RegDPLLMode) & 0x03
		if bw != c.bw || mode != c.mode {
			t.Errorf("DPLL %d: bandwidth %d mode %d, want %d %d", c.v, bw, mode, c.bw, c.mode)
		}
	}
}

func TestControlErrors(t *testing.T) {
	r := newRig(t)
	if _, err := r.dac.Get("Bass Boost"); !errors.Is(err, sabre32.ErrUnknownControl) {
		t.Errorf("expected ErrUnknownControl, got %v", err)
	}
	if err := r.dac.Set("Bass Boost", 1); !errors.Is(err, sabre32.ErrUnknownControl) {
		t.Errorf("expected ErrUnknownControl, got %v", err)
	}
	for name, v := range map[string]int{"SPDIF Source": 8, "DPLL": 17, "DAC3 Playback Volume": 256, "FIR Rolloff": -1, sabre32.MasterSwitch: 2} {
		if err := r.dac.Set(name, v); !errors.Is(err, sabre32.ErrOutOfRange) {
			t.Errorf("%s = %d: expected ErrOutOfRange, got %v", name, v, err)
		}
	}
	if ops := r.bus.Ops(); len(ops) != 0 {
		t.Errorf("rejected values generated bus traffic: %v", ops)
	}
}

func TestSwitchControlsAreInverted(t *testing.T) {
	r := newRig(t)
	if err := r.dac.Set(sabre32.MasterSwitch, 0); err != nil {
		t.Fatal(err)
	}
	if !r.dac.Mute(sabre32.StreamDriven) {
		t.Error("switch off should mute the stream path")
	}
	if v, _ := r.dac.Get(sabre32.ExternalSwitch); v != 0 {
		t.Errorf("external path starts muted, switch should read 0, got %d", v)
	}
}
