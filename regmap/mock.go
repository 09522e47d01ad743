package regmap

import (
	"errors"
	"sync"
)

// ErrMockFault is returned by MockTransport when a fault is injected
var ErrMockFault = errors.New("mock: injected bus fault")

// OpKind is a read or a write
type OpKind int

const (
	// OpRead is a register read
	OpRead OpKind = iota
	// OpWrite is a register write
	OpWrite
)

func (k OpKind) String() string {
	if k == OpWrite {
		return "write"
	}
	return "read"
}

// Op is one transaction seen by a MockTransport
type Op struct {
	Seq  uint64
	Kind OpKind
	Addr uint8
	Val  uint8
}

// MockTransport is an in-memory register file that records every transaction
// with a monotonic sequence number.  Faults may be injected per address or
// after a number of successful transactions
type MockTransport struct {
	mu    sync.Mutex
	regs  [256]uint8
	ops   []Op
	seq   uint64
	fail  map[uint8]bool
	after int
	down  bool
}

// NewMockTransport returns a MockTransport whose registers hold init
func NewMockTransport(init map[uint8]uint8) *MockTransport {
	m := &MockTransport{fail: map[uint8]bool{}, after: -1}
	for k, v := range init {
		m.regs[k] = v
	}
	return m
}

// ReadReg satisfies Transport
func (m *MockTransport) ReadReg(addr uint8) (uint8, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.faulted(addr) {
		return 0, ErrMockFault
	}
	m.log(OpRead, addr, m.regs[addr])
	return m.regs[addr], nil
}

// WriteReg satisfies Transport
func (m *MockTransport) WriteReg(addr, val uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.faulted(addr) {
		return ErrMockFault
	}
	m.regs[addr] = val
	m.log(OpWrite, addr, val)
	return nil
}

// FailOn makes every transaction to addr fail until ClearFaults
func (m *MockTransport) FailOn(addr uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[addr] = true
}

// FailAfter lets n more transactions succeed, then fails all that follow
func (m *MockTransport) FailAfter(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.after = n
}

// SetDown simulates the device dropping off (true) or returning to (false) the bus
func (m *MockTransport) SetDown(down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.down = down
}

// ClearFaults removes all injected faults
func (m *MockTransport) ClearFaults() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = map[uint8]bool{}
	m.after = -1
	m.down = false
}

// Peek returns the device-side value of a register without logging
func (m *MockTransport) Peek(addr uint8) uint8 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.regs[addr]
}

// Poke sets the device-side value of a register without logging,
// as the hardware itself would for a status register
func (m *MockTransport) Poke(addr, val uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regs[addr] = val
}

// Snapshot returns a copy of the whole register file
func (m *MockTransport) Snapshot() [256]uint8 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.regs
}

// Ops returns a copy of the transaction log
func (m *MockTransport) Ops() []Op {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Op, len(m.ops))
	copy(out, m.ops)
	return out
}

// Writes returns only the writes from the transaction log
func (m *MockTransport) Writes() []Op {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Op
	for _, op := range m.ops {
		if op.Kind == OpWrite {
			out = append(out, op)
		}
	}
	return out
}

// ResetLog discards the transaction log; sequence numbers keep increasing
func (m *MockTransport) ResetLog() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = nil
}

func (m *MockTransport) faulted(addr uint8) bool {
	if m.down || m.fail[addr] {
		return true
	}
	if m.after == 0 {
		return true
	}
	if m.after > 0 {
		m.after--
	}
	return false
}

func (m *MockTransport) log(kind OpKind, addr, val uint8) {
	m.seq++
	m.ops = append(m.ops, Op{Seq: m.seq, Kind: kind, Addr: addr, Val: val})
}
