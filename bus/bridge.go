package bus

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/snksoft/crc"
	"golang.org/x/time/rate"

	"github.com/boticaudio/sabre/comm"
)

// frames are fixed length so no byte stuffing is needed.
// request:  [SOF] [CMD] [I2C ADDR] [REG] [VAL] [CRC HI] [CRC LO]
// response: [SOF] [STATUS] [REG] [VAL] [CRC HI] [CRC LO]
// the CRC is CRC-16/XMODEM over the bytes between SOF and CRC
const (
	frameStart = 0xA5

	cmdRead  = 0x01
	cmdWrite = 0x02

	statusOK   = 0x00
	statusNack = 0x01
	statusCRC  = 0x02

	requestLen  = 7
	responseLen = 6

	// DefaultBridgeTimeout bounds one request/response exchange
	DefaultBridgeTimeout = 250 * time.Millisecond
)

var (
	// ErrCRC is generated when a response fails its checksum, or the bridge
	// reports that a request failed its checksum
	ErrCRC = errors.New("bus: CRC mismatch")

	// ErrNack is generated when the DAC did not acknowledge on the I2C side of the bridge
	ErrNack = errors.New("bus: no acknowledge from device")

	// ErrFrame is generated for responses that are malformed or do not match the request
	ErrFrame = errors.New("bus: malformed frame")

	crcTable = crc.NewTable(crc.XMODEM)
)

func crcHelper(buf []byte) []byte {
	crcUint := crcTable.InitCrc()
	crcUint = crcTable.UpdateCrc(crcUint, buf)
	crcBytes := make([]byte, 2)
	binary.BigEndian.PutUint16(crcBytes, crcTable.CRC16(crcUint))
	return crcBytes
}

// Request is one bridge command
type Request struct {
	Write bool
	Addr  uint8 // I2C address
	Reg   uint8
	Val   uint8
}

// Response is the bridge's answer to a Request
type Response struct {
	Status uint8
	Reg    uint8
	Val    uint8
}

// EncodeRequest packs a request into a frame
func EncodeRequest(r Request) []byte {
	cmd := byte(cmdRead)
	if r.Write {
		cmd = cmdWrite
	}
	body := []byte{cmd, r.Addr, r.Reg, r.Val}
	out := append([]byte{frameStart}, body...)
	return append(out, crcHelper(body)...)
}

// DecodeRequest is the inverse of EncodeRequest
func DecodeRequest(b []byte) (Request, error) {
	if len(b) != requestLen || b[0] != frameStart {
		return Request{}, ErrFrame
	}
	body := b[1:5]
	if sum := crcHelper(body); sum[0] != b[5] || sum[1] != b[6] {
		return Request{}, ErrCRC
	}
	if body[0] != cmdRead && body[0] != cmdWrite {
		return Request{}, fmt.Errorf("command 0x%02X: %w", body[0], ErrFrame)
	}
	return Request{Write: body[0] == cmdWrite, Addr: body[1], Reg: body[2], Val: body[3]}, nil
}

// EncodeResponse packs a response into a frame
func EncodeResponse(r Response) []byte {
	body := []byte{r.Status, r.Reg, r.Val}
	out := append([]byte{frameStart}, body...)
	return append(out, crcHelper(body)...)
}

// DecodeResponse unpacks a frame and verifies its checksum
func DecodeResponse(b []byte) (Response, error) {
	if len(b) != responseLen || b[0] != frameStart {
		return Response{}, ErrFrame
	}
	body := b[1:4]
	if sum := crcHelper(body); sum[0] != b[4] || sum[1] != b[5] {
		return Response{}, ErrCRC
	}
	return Response{Status: body[0], Reg: body[1], Val: body[2]}, nil
}

type deadliner interface {
	SetDeadline(time.Time) error
}

// Bridge is a register transport tunnelled through a serial or TCP I2C bridge.
// Connections are leased from a comm.Pool for each transaction
type Bridge struct {
	pool    *comm.Pool
	addr    uint8
	timeout time.Duration
	limiter *rate.Limiter
}

// NewBridge creates a Bridge talking to the device at I2C address addr.
// limit caps transactions per second; zero or rate.Inf disables pacing
func NewBridge(pool *comm.Pool, addr uint8, timeout time.Duration, limit rate.Limit) *Bridge {
	if timeout == 0 {
		timeout = DefaultBridgeTimeout
	}
	var lim *rate.Limiter
	if limit > 0 && limit != rate.Inf {
		lim = rate.NewLimiter(limit, 1)
	}
	return &Bridge{pool: pool, addr: addr, timeout: timeout, limiter: lim}
}

// ReadReg satisfies regmap.Transport
func (b *Bridge) ReadReg(reg uint8) (uint8, error) {
	resp, err := b.transact(Request{Addr: b.addr, Reg: reg})
	return resp.Val, err
}

// WriteReg satisfies regmap.Transport
func (b *Bridge) WriteReg(reg, val uint8) error {
	_, err := b.transact(Request{Write: true, Addr: b.addr, Reg: reg, Val: val})
	return err
}

// Close closes the bridge's connections
func (b *Bridge) Close() error {
	return b.pool.Close()
}

func (b *Bridge) transact(req Request) (Response, error) {
	if b.limiter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		err := b.limiter.Wait(ctx)
		cancel()
		if err != nil {
			return Response{}, fmt.Errorf("bus: bridge pacing: %w", err)
		}
	}
	conn, err := b.pool.Get()
	if err != nil {
		return Response{}, err
	}
	resp, err := b.exchange(conn, req)
	// a connection that failed mid frame may have stale bytes in flight,
	// throw it away.  Device level errors leave the stream in sync
	if errors.Is(err, ErrNack) {
		b.pool.Put(conn)
	} else {
		b.pool.ReturnWithError(conn, err)
	}
	return resp, err
}

func (b *Bridge) exchange(conn io.ReadWriter, req Request) (Response, error) {
	if d, ok := conn.(deadliner); ok {
		if err := d.SetDeadline(time.Now().Add(b.timeout)); err != nil {
			return Response{}, err
		}
		defer d.SetDeadline(time.Time{})
	}
	if _, err := conn.Write(EncodeRequest(req)); err != nil {
		return Response{}, err
	}
	buf := make([]byte, responseLen)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return Response{}, err
	}
	resp, err := DecodeResponse(buf)
	if err != nil {
		return resp, err
	}
	switch resp.Status {
	case statusOK:
	case statusNack:
		return resp, fmt.Errorf("register 0x%02X: %w", req.Reg, ErrNack)
	case statusCRC:
		return resp, fmt.Errorf("bridge rejected request: %w", ErrCRC)
	default:
		return resp, fmt.Errorf("status 0x%02X: %w", resp.Status, ErrFrame)
	}
	if resp.Reg != req.Reg {
		return resp, fmt.Errorf("answer for register 0x%02X, asked for 0x%02X: %w", resp.Reg, req.Reg, ErrFrame)
	}
	return resp, nil
}
