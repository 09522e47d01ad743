// Package regmap provides validated, cached access to a small byte-wide
// register address space over an abstract bus transport.
//
// Which addresses may be read, written, or must never be cached is a pure
// function of the address, described by static range tables in a Config.
// The cache is populated from the table of power-on defaults before the
// transport is touched, so non-volatile registers can be read even while the
// device is unreachable.
package regmap

import (
	"errors"
	"fmt"
	"sync"

	"github.com/boticaudio/sabre/util"
)

var (
	// ErrBus is matched (errors.Is) by every failure of the underlying transport
	ErrBus = errors.New("regmap: bus transaction failed")

	// ErrNotReadable is generated when a read is issued to an address
	// that is reserved or write-only
	ErrNotReadable = errors.New("regmap: register is not readable")

	// ErrNotWritable is generated when a write is issued to an address
	// that is reserved or read-only
	ErrNotWritable = errors.New("regmap: register is not writable")
)

// Transport moves single bytes to and from device registers.
// Implementations need not be safe for concurrent use; Map serializes access.
type Transport interface {
	// ReadReg reads the register at addr
	ReadReg(addr uint8) (uint8, error)

	// WriteReg writes val to the register at addr
	WriteReg(addr, val uint8) error
}

// BusError decorates a transport failure with the operation and address
type BusError struct {
	Op   string
	Addr uint8
	Err  error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("regmap: %s of register 0x%02X failed: %v", e.Op, e.Addr, e.Err)
}

// Unwrap returns the transport's error
func (e *BusError) Unwrap() error { return e.Err }

// Is reports true for ErrBus
func (e *BusError) Is(target error) bool { return target == ErrBus }

// Range is a closed interval of register addresses
type Range struct {
	Lo, Hi uint8
}

// Contains returns true if addr is inside the range
func (r Range) Contains(addr uint8) bool {
	return addr >= r.Lo && addr <= r.Hi
}

// Ranges is a set of address ranges
type Ranges []Range

// Contains returns true if any range holds addr
func (rs Ranges) Contains(addr uint8) bool {
	for _, r := range rs {
		if r.Contains(addr) {
			return true
		}
	}
	return false
}

// Config describes a register address space
type Config struct {
	// Name identifies the device family, e.g. "es9018"
	Name string

	// MaxRegister is the highest valid address
	MaxRegister uint8

	// Readable, Writable, and Volatile are the access tables.
	// Volatile registers are never served from cache
	Readable Ranges
	Writable Ranges
	Volatile Ranges

	// Defaults holds power-on values used to seed the cache
	Defaults map[uint8]uint8
}

// IsReadable returns true if addr may be read
func (c Config) IsReadable(addr uint8) bool {
	return addr <= c.MaxRegister && c.Readable.Contains(addr)
}

// IsWritable returns true if addr may be written
func (c Config) IsWritable(addr uint8) bool {
	return addr <= c.MaxRegister && c.Writable.Contains(addr)
}

// IsVolatile returns true if addr must always be read from the device
func (c Config) IsVolatile(addr uint8) bool {
	return c.Volatile.Contains(addr)
}

// Map is a cached view of a device's registers.  It is safe for concurrent use;
// UpdateBits holds the map for the full read-modify-write
type Map struct {
	cfg Config
	bus Transport

	mu    sync.Mutex
	cache [256]uint8
	valid [256]bool
}

// New creates a Map over bus, seeding the cache from cfg.Defaults.
// No bus traffic is generated
func New(bus Transport, cfg Config) *Map {
	m := &Map{cfg: cfg, bus: bus}
	for addr, v := range cfg.Defaults {
		if cfg.IsVolatile(addr) {
			continue
		}
		m.cache[addr] = v
		m.valid[addr] = true
	}
	return m
}

// Config returns the address space description
func (m *Map) Config() Config {
	return m.cfg
}

// Read returns the value of a register.  Volatile registers are read from the
// device, others from the cache if it holds a value
func (m *Map) Read(addr uint8) (uint8, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read(addr)
}

// Write writes a register and updates the cache.  The cache is not updated
// if the transport reports a failure
func (m *Map) Write(addr, val uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.write(addr, val)
}

// UpdateBits replaces the bits of addr selected by mask with those of val:
// new = (old &^ mask) | (val & mask).  The write is always issued, even if
// the value does not change
func (m *Map) UpdateBits(addr, mask, val uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.cfg.IsWritable(addr) {
		return fmt.Errorf("0x%02X: %w", addr, ErrNotWritable)
	}
	old, err := m.read(addr)
	if err != nil {
		return err
	}
	return m.write(addr, (old&^mask)|(val&mask))
}

// ReadField reads addr and returns the bits under mask shifted down to bit 0
func (m *Map) ReadField(addr, mask uint8) (uint8, error) {
	v, err := m.Read(addr)
	if err != nil {
		return 0, err
	}
	return util.Field(v, mask), nil
}

// WriteField shifts v up into mask and updates those bits of addr
func (m *Map) WriteField(addr, mask, v uint8) error {
	return m.UpdateBits(addr, mask, util.PutField(0, mask, v))
}

// Cached returns the cached value of addr and whether there is one
func (m *Map) Cached(addr uint8) (uint8, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache[addr], m.valid[addr]
}

// Entry is one line of a register dump
type Entry struct {
	Addr  uint8  `json:"addr"`
	Value uint8  `json:"value"`
	Err   string `json:"err,omitempty"`
}

// Dump reads every address from 0 to MaxRegister.  Addresses that are not
// readable or fail to read are reported in Err rather than aborting the dump
func (m *Map) Dump() []Entry {
	addrs := util.ArangeByte(0, m.cfg.MaxRegister)
	addrs = append(addrs, m.cfg.MaxRegister)
	out := make([]Entry, 0, len(addrs))
	for _, addr := range addrs {
		v, err := m.Read(addr)
		e := Entry{Addr: addr, Value: v}
		if err != nil {
			e.Err = err.Error()
		}
		out = append(out, e)
	}
	return out
}

func (m *Map) read(addr uint8) (uint8, error) {
	if !m.cfg.IsReadable(addr) {
		return 0, fmt.Errorf("0x%02X: %w", addr, ErrNotReadable)
	}
	volatile := m.cfg.IsVolatile(addr)
	if !volatile && m.valid[addr] {
		return m.cache[addr], nil
	}
	v, err := m.bus.ReadReg(addr)
	if err != nil {
		return 0, &BusError{Op: "read", Addr: addr, Err: err}
	}
	if !volatile {
		m.cache[addr] = v
		m.valid[addr] = true
	}
	return v, nil
}

func (m *Map) write(addr, val uint8) error {
	if !m.cfg.IsWritable(addr) {
		return fmt.Errorf("0x%02X: %w", addr, ErrNotWritable)
	}
	if err := m.bus.WriteReg(addr, val); err != nil {
		return &BusError{Op: "write", Addr: addr, Err: err}
	}
	if !m.cfg.IsVolatile(addr) {
		m.cache[addr] = val
		m.valid[addr] = true
	}
	return nil
}
