package sabre32

import (
	"errors"
	"testing"
)

func TestTranslateFormat(t *testing.T) {
	cases := []struct {
		f     Format
		field uint8
		dsd   bool
	}{
		{S16LE, 0x80, false},
		{S24_3LE, 0x00, false},
		{S24LE, 0x00, false},
		{S32LE, 0xC0, false},
		{DSDU8, 0xC0, true},
		{DSDU16LE, 0xC0, true},
		{DSDU32LE, 0xC0, true},
	}
	for _, c := range cases {
		ff, err := TranslateFormat(c.f)
		if err != nil {
			t.Errorf("%s: %v", c.f, err)
			continue
		}
		if got := uint8(ff.BitDepth) << 6; got != c.field {
			t.Errorf("%s: bit depth field 0x%02X, want 0x%02X", c.f, got, c.field)
		}
		if ff.DSD != c.dsd {
			t.Errorf("%s: DSD %v, want %v", c.f, ff.DSD, c.dsd)
		}
	}
}

func TestTranslateFormatRejects(t *testing.T) {
	for _, f := range []Format{FormatUnknown, Format(42)} {
		if _, err := TranslateFormat(f); !errors.Is(err, ErrInvalidFormat) {
			t.Errorf("%s: expected ErrInvalidFormat, got %v", f, err)
		}
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" s24_le")
	if err != nil || f != S24LE {
		t.Errorf("expected S24_LE, got %s, %v", f, err)
	}
	if _, err := ParseFormat("FLOAT_LE"); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("expected ErrInvalidFormat, got %v", err)
	}
	for f, name := range formatNames {
		if f.String() != name {
			t.Errorf("%d: String %q, want %q", int(f), f.String(), name)
		}
	}
}

func TestParseDAIFormat(t *testing.T) {
	cases := map[string]DAIFormat{"I2S": I2S, "lj": LeftJustified, "right": RightJustified}
	for s, want := range cases {
		got, err := ParseDAIFormat(s)
		if err != nil || got != want {
			t.Errorf("%s: got %s, %v", s, got, err)
		}
	}
	if _, err := ParseDAIFormat("dsp_a"); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("expected ErrInvalidFormat, got %v", err)
	}
}
