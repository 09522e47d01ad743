package card

import (
	"testing"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"github.com/boticaudio/sabre/clock"
)

func TestPinsFollowCalls(t *testing.T) {
	power := &gpiotest.Pin{N: "P"}
	dsd := &gpiotest.Pin{N: "D"}
	mux := &gpiotest.Pin{N: "M"}
	b := New(power, dsd, mux)

	if err := b.SetPower(true); err != nil {
		t.Fatal(err)
	}
	if err := b.SetDSD(true); err != nil {
		t.Fatal(err)
	}
	if err := b.SelectClock(clock.Family48); err != nil {
		t.Fatal(err)
	}
	if power.Read() != gpio.High || dsd.Read() != gpio.High || mux.Read() != gpio.High {
		t.Error("expected every pin high")
	}
	if err := b.SelectClock(clock.Family44); err != nil {
		t.Fatal(err)
	}
	if mux.Read() != gpio.Low {
		t.Error("44.1k family should drive the mux low")
	}
	want := State{Power: true, DSD: true, Family: clock.Family44}
	if got := b.State(); got != want {
		t.Errorf("state %+v, want %+v", got, want)
	}
}

func TestSelectUnknownFamily(t *testing.T) {
	b := NewMock()
	if err := b.SelectClock(clock.Unknown); err == nil {
		t.Error("selecting the unknown family should fail")
	}
}

func TestUnwiredPins(t *testing.T) {
	b := New(nil, nil, nil)
	if err := b.SetPower(true); err != nil {
		t.Error(err)
	}
	if err := b.SelectClock(clock.Family48); err != nil {
		t.Error(err)
	}
	if !b.State().Power {
		t.Error("state should track calls even without a pin")
	}
}
