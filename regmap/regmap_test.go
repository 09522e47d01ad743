package regmap_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/boticaudio/sabre/regmap"
)

func testConfig() regmap.Config {
	return regmap.Config{
		Name:        "test",
		MaxRegister: 0x10,
		Readable:    regmap.Ranges{{0x00, 0x08}, {0x0A, 0x0C}},
		Writable:    regmap.Ranges{{0x00, 0x09}},
		Volatile:    regmap.Ranges{{0x0A, 0x0C}},
		Defaults:    map[uint8]uint8{0x00: 0x11, 0x01: 0x22, 0x0A: 0x99},
	}
}

func TestNewSeedsCacheWithoutTraffic(t *testing.T) {
	bus := regmap.NewMockTransport(nil)
	m := regmap.New(bus, testConfig())
	v, err := m.Read(0x01)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0x22 {
		t.Errorf("expected default 0x22, got 0x%02X", v)
	}
	if ops := bus.Ops(); len(ops) != 0 {
		t.Errorf("expected no bus traffic, got %v", ops)
	}
	if _, ok := m.Cached(0x0A); ok {
		t.Error("volatile default should not be cached")
	}
}

func TestReadDeviceDownServesCache(t *testing.T) {
	bus := regmap.NewMockTransport(nil)
	bus.SetDown(true)
	m := regmap.New(bus, testConfig())
	if v, err := m.Read(0x00); err != nil || v != 0x11 {
		t.Errorf("expected cached 0x11, got 0x%02X, %v", v, err)
	}
	if _, err := m.Read(0x0B); !errors.Is(err, regmap.ErrBus) {
		t.Errorf("volatile read with device down should be a bus error, got %v", err)
	}
}

func TestReadMissThenCache(t *testing.T) {
	bus := regmap.NewMockTransport(map[uint8]uint8{0x05: 0x5A})
	m := regmap.New(bus, testConfig())
	for i := 0; i < 3; i++ {
		v, err := m.Read(0x05)
		if err != nil {
			t.Fatal(err)
		}
		if v != 0x5A {
			t.Errorf("expected 0x5A, got 0x%02X", v)
		}
	}
	if n := len(bus.Ops()); n != 1 {
		t.Errorf("expected exactly one bus read, got %d", n)
	}
}

func TestVolatileAlwaysHitsBus(t *testing.T) {
	bus := regmap.NewMockTransport(nil)
	m := regmap.New(bus, testConfig())
	bus.Poke(0x0B, 1)
	a, _ := m.Read(0x0B)
	bus.Poke(0x0B, 2)
	b, _ := m.Read(0x0B)
	if a != 1 || b != 2 {
		t.Errorf("expected fresh reads 1, 2; got %d, %d", a, b)
	}
}

func TestAccessErrors(t *testing.T) {
	m := regmap.New(regmap.NewMockTransport(nil), testConfig())
	if _, err := m.Read(0x09); !errors.Is(err, regmap.ErrNotReadable) {
		t.Errorf("write-only register: expected ErrNotReadable, got %v", err)
	}
	if _, err := m.Read(0x20); !errors.Is(err, regmap.ErrNotReadable) {
		t.Errorf("out of range register: expected ErrNotReadable, got %v", err)
	}
	if err := m.Write(0x0A, 1); !errors.Is(err, regmap.ErrNotWritable) {
		t.Errorf("read-only register: expected ErrNotWritable, got %v", err)
	}
	if err := m.UpdateBits(0x0A, 1, 1); !errors.Is(err, regmap.ErrNotWritable) {
		t.Errorf("UpdateBits on read-only register: expected ErrNotWritable, got %v", err)
	}
}

func TestWriteFailureKeepsCache(t *testing.T) {
	bus := regmap.NewMockTransport(nil)
	m := regmap.New(bus, testConfig())
	bus.FailOn(0x00)
	err := m.Write(0x00, 0xFF)
	var be *regmap.BusError
	if !errors.As(err, &be) {
		t.Fatalf("expected *BusError, got %v", err)
	}
	if be.Op != "write" || be.Addr != 0x00 {
		t.Errorf("unexpected BusError contents %+v", be)
	}
	if !errors.Is(err, regmap.ErrMockFault) {
		t.Error("BusError should unwrap to the transport's error")
	}
	if v, _ := m.Cached(0x00); v != 0x11 {
		t.Errorf("failed write altered cache to 0x%02X", v)
	}
}

func TestUpdateBits(t *testing.T) {
	bus := regmap.NewMockTransport(nil)
	m := regmap.New(bus, testConfig())
	// 0x11 = 0001_0001; replace the high nibble with 1010
	if err := m.UpdateBits(0x00, 0xF0, 0xAF); err != nil {
		t.Fatal(err)
	}
	if v, _ := m.Read(0x00); v != 0xA1 {
		t.Errorf("expected 0xA1, got 0x%02X", v)
	}
	if got := bus.Peek(0x00); got != 0xA1 {
		t.Errorf("device holds 0x%02X, expected 0xA1", got)
	}
}

func TestUpdateBitsAlwaysWrites(t *testing.T) {
	bus := regmap.NewMockTransport(nil)
	m := regmap.New(bus, testConfig())
	if err := m.UpdateBits(0x00, 0x01, 0x01); err != nil {
		t.Fatal(err)
	}
	if n := len(bus.Writes()); n != 1 {
		t.Errorf("expected one write for an unchanged value, got %d", n)
	}
}

func TestFieldHelpers(t *testing.T) {
	m := regmap.New(regmap.NewMockTransport(nil), testConfig())
	if err := m.WriteField(0x01, 0x30, 2); err != nil {
		t.Fatal(err)
	}
	v, err := m.ReadField(0x01, 0x30)
	if err != nil {
		t.Fatal(err)
	}
	if v != 2 {
		t.Errorf("expected field value 2, got %d", v)
	}
	if raw, _ := m.Read(0x01); raw != 0x22 {
		t.Errorf("expected 0x22, got 0x%02X", raw)
	}
}

func TestFailAfter(t *testing.T) {
	bus := regmap.NewMockTransport(nil)
	m := regmap.New(bus, testConfig())
	bus.FailAfter(2)
	for i := uint8(0); i < 2; i++ {
		if err := m.Write(i, i); err != nil {
			t.Fatalf("write %d should succeed: %v", i, err)
		}
	}
	if err := m.Write(2, 2); !errors.Is(err, regmap.ErrBus) {
		t.Errorf("third write should fail, got %v", err)
	}
	bus.ClearFaults()
	if err := m.Write(2, 2); err != nil {
		t.Errorf("write after ClearFaults: %v", err)
	}
}

func TestSequenceNumbersIncrease(t *testing.T) {
	bus := regmap.NewMockTransport(nil)
	m := regmap.New(bus, testConfig())
	m.Write(0, 1)
	m.Write(1, 1)
	bus.ResetLog()
	m.Write(2, 1)
	ops := bus.Ops()
	want := []regmap.Op{{Seq: 3, Kind: regmap.OpWrite, Addr: 2, Val: 1}}
	if diff := cmp.Diff(want, ops); diff != "" {
		t.Errorf("ops mismatch (-want +got):\n%s", diff)
	}
}

func TestDump(t *testing.T) {
	bus := regmap.NewMockTransport(map[uint8]uint8{0x0B: 0x42})
	m := regmap.New(bus, testConfig())
	d := m.Dump()
	if len(d) != 0x11 {
		t.Fatalf("expected 17 entries, got %d", len(d))
	}
	if d[0x00].Value != 0x11 || d[0x00].Err != "" {
		t.Errorf("bad entry for 0x00: %+v", d[0x00])
	}
	if d[0x09].Err == "" {
		t.Error("write-only register 0x09 should report an error")
	}
	if d[0x0B].Value != 0x42 {
		t.Errorf("volatile 0x0B should be read from device, got %+v", d[0x0B])
	}
	if d[0x10].Addr != 0x10 {
		t.Errorf("last entry should be MaxRegister, got %+v", d[0x10])
	}
}
