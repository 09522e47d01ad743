package bus

import (
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/gousb"
	"periph.io/x/conn/v3/i2c/i2ctest"

	"github.com/boticaudio/sabre/comm"
)

func TestRequestFraming(t *testing.T) {
	req := Request{Write: true, Addr: 0x48, Reg: 0x0A, Val: 0x5E}
	frame := EncodeRequest(req)
	if len(frame) != requestLen || frame[0] != frameStart {
		t.Fatalf("bad frame % X", frame)
	}
	got, err := DecodeRequest(frame)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(req, got); diff != "" {
		t.Errorf("request (-want +got):\n%s", diff)
	}
	frame[3] ^= 0x01
	if _, err := DecodeRequest(frame); !errors.Is(err, ErrCRC) {
		t.Errorf("corrupted frame: expected ErrCRC, got %v", err)
	}
}

func TestResponseCRCMismatch(t *testing.T) {
	frame := EncodeResponse(Response{Status: statusOK, Reg: 0x12, Val: 0x01})
	if _, err := DecodeResponse(frame); err != nil {
		t.Fatal(err)
	}
	frame[5] ^= 0xFF
	if _, err := DecodeResponse(frame); !errors.Is(err, ErrCRC) {
		t.Errorf("expected ErrCRC, got %v", err)
	}
	if _, err := DecodeResponse(frame[:4]); !errors.Is(err, ErrFrame) {
		t.Errorf("short frame: expected ErrFrame, got %v", err)
	}
}

// firmware emulates the bridge microcontroller and a DAC behind it
type firmware struct {
	mu    sync.Mutex
	regs  [256]uint8
	nack  map[uint8]bool
	noise bool
}

func (f *firmware) serve(conn net.Conn) {
	defer conn.Close()
	buf := make([]byte, requestLen)
	for {
		if _, err := io.ReadFull(conn, buf); err != nil {
			return
		}
		f.mu.Lock()
		var resp Response
		req, err := DecodeRequest(buf)
		switch {
		case err != nil:
			resp.Status = statusCRC
		case f.nack[req.Reg]:
			resp = Response{Status: statusNack, Reg: req.Reg}
		case req.Write:
			f.regs[req.Reg] = req.Val
			resp = Response{Reg: req.Reg, Val: req.Val}
		default:
			resp = Response{Reg: req.Reg, Val: f.regs[req.Reg]}
		}
		out := EncodeResponse(resp)
		if f.noise {
			out[2] ^= 0x40
		}
		f.mu.Unlock()
		if _, err := conn.Write(out); err != nil {
			return
		}
	}
}

func newTestBridge(t *testing.T, fw *firmware) (*Bridge, *int) {
	t.Helper()
	var (
		mu   sync.Mutex
		made int
	)
	maker := func() (io.ReadWriteCloser, error) {
		mu.Lock()
		made++
		mu.Unlock()
		a, b := net.Pipe()
		go fw.serve(b)
		return a, nil
	}
	br := NewBridge(comm.NewPool(1, time.Second, maker), 0x48, time.Second, 0)
	t.Cleanup(func() { br.Close() })
	return br, &made
}

func TestBridgeReadWrite(t *testing.T) {
	fw := &firmware{nack: map[uint8]bool{}}
	fw.regs[0x1B] = 0x42
	br, made := newTestBridge(t, fw)
	if err := br.WriteReg(0x0A, 0xCF); err != nil {
		t.Fatal(err)
	}
	fw.mu.Lock()
	got := fw.regs[0x0A]
	fw.mu.Unlock()
	if got != 0xCF {
		t.Errorf("firmware holds 0x%02X", got)
	}
	v, err := br.ReadReg(0x1B)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0x42 {
		t.Errorf("expected 0x42, got 0x%02X", v)
	}
	if *made != 1 {
		t.Errorf("connection should be reused, made %d", *made)
	}
}

func TestBridgeNackKeepsConnection(t *testing.T) {
	fw := &firmware{nack: map[uint8]bool{0x30: true}}
	br, made := newTestBridge(t, fw)
	if _, err := br.ReadReg(0x30); !errors.Is(err, ErrNack) {
		t.Errorf("expected ErrNack, got %v", err)
	}
	if _, err := br.ReadReg(0x00); err != nil {
		t.Fatal(err)
	}
	if *made != 1 {
		t.Errorf("a NACK should not drop the connection, made %d", *made)
	}
}

func TestBridgeCorruptResponseDropsConnection(t *testing.T) {
	fw := &firmware{nack: map[uint8]bool{}, noise: true}
	br, made := newTestBridge(t, fw)
	if _, err := br.ReadReg(0x00); !errors.Is(err, ErrCRC) {
		t.Errorf("expected ErrCRC, got %v", err)
	}
	fw.mu.Lock()
	fw.noise = false
	fw.mu.Unlock()
	if _, err := br.ReadReg(0x00); err != nil {
		t.Fatal(err)
	}
	if *made != 2 {
		t.Errorf("expected a fresh connection after corruption, made %d", *made)
	}
}

func TestBridgeTimeout(t *testing.T) {
	maker := func() (io.ReadWriteCloser, error) {
		a, b := net.Pipe()
		go io.Copy(io.Discard, b) // swallows requests, never answers
		return a, nil
	}
	br := NewBridge(comm.NewPool(1, time.Second, maker), 0x48, 20*time.Millisecond, 0)
	defer br.Close()
	_, err := br.ReadReg(0x00)
	var ne net.Error
	if !errors.As(err, &ne) || !ne.Timeout() {
		t.Errorf("expected a timeout, got %v", err)
	}
}

type fakeController struct {
	calls [][5]uint16
	reply byte
	err   error
}

func (f *fakeController) Control(rType, request uint8, val, idx uint16, data []byte) (int, error) {
	f.calls = append(f.calls, [5]uint16{uint16(rType), uint16(request), val, idx, uint16(len(data))})
	if f.err != nil {
		return 0, f.err
	}
	if len(data) > 0 {
		data[0] = f.reply
	}
	return len(data), nil
}

func TestUSBControlTransfers(t *testing.T) {
	fc := &fakeController{reply: 0x85}
	u := &USB{dev: fc, addr: 0x48}
	v, err := u.ReadReg(0x0B)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0x85 {
		t.Errorf("expected 0x85, got 0x%02X", v)
	}
	if err := u.WriteReg(0x0B, 0x86); err != nil {
		t.Fatal(err)
	}
	in := uint16(gousb.ControlIn | gousb.ControlVendor | gousb.ControlDevice)
	out := uint16(gousb.ControlOut | gousb.ControlVendor | gousb.ControlDevice)
	want := [][5]uint16{
		{in, usbReqRead, 0, 0x480B, 1},
		{out, usbReqWrite, 0x86, 0x480B, 0},
	}
	if diff := cmp.Diff(want, fc.calls); diff != "" {
		t.Errorf("control transfers (-want +got):\n%s", diff)
	}
	if err := u.Close(); err != nil {
		t.Errorf("closing an unopened device: %v", err)
	}
}

func TestUSBError(t *testing.T) {
	boom := errors.New("pipe stall")
	u := &USB{dev: &fakeController{err: boom}, addr: 0x48}
	if _, err := u.ReadReg(0); !errors.Is(err, boom) {
		t.Errorf("expected transfer error, got %v", err)
	}
}

func TestI2CRegisterAccess(t *testing.T) {
	pb := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: 0x48, W: []byte{0x0A}, R: []byte{0xCE}},
			{Addr: 0x48, W: []byte{0x0A, 0xCF}},
		},
		DontPanic: true,
	}
	dev := NewI2C(pb, DefaultAddress)
	v, err := dev.ReadReg(0x0A)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0xCE {
		t.Errorf("expected 0xCE, got 0x%02X", v)
	}
	if err := dev.WriteReg(0x0A, 0xCF); err != nil {
		t.Fatal(err)
	}
	if err := dev.Close(); err != nil {
		t.Errorf("closing a borrowed bus: %v", err)
	}
}
