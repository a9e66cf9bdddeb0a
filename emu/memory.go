// Package emu provides the flat backing memory of the machine model.
//
// Memory is the terminal of the cache hierarchy: pure byte storage with no
// cache semantics. All cache fills and write-backs eventually resolve here.
package emu

import (
	"encoding/binary"
	"fmt"
	"math/bits"
)

// Memory size limits in bytes. The size must be a power of two.
const (
	MinMemorySize = 128
	MaxMemorySize = 4 * 1024 * 1024
)

// ErrOutOfBounds is wrapped by every addressing error Memory returns.
var ErrOutOfBounds = fmt.Errorf("address out of bounds")

// Memory is a byte-addressable flat store.
type Memory struct {
	data []byte
}

// NewMemory creates a memory of the given size. The size must be a power of
// two between MinMemorySize and MaxMemorySize.
func NewMemory(size uint64) (*Memory, error) {
	if size < MinMemorySize || size > MaxMemorySize {
		return nil, fmt.Errorf(
			"memory size %d outside [%d, %d]", size, MinMemorySize, MaxMemorySize)
	}
	if bits.OnesCount64(size) != 1 {
		return nil, fmt.Errorf("memory size %d is not a power of two", size)
	}

	return &Memory{data: make([]byte, size)}, nil
}

// Size returns the memory size in bytes.
func (m *Memory) Size() uint64 {
	return uint64(len(m.data))
}

// Read returns a copy of length bytes starting at addr.
func (m *Memory) Read(addr uint64, length int) ([]byte, error) {
	if err := m.checkRange(addr, length); err != nil {
		return nil, err
	}

	out := make([]byte, length)
	copy(out, m.data[addr:])
	return out, nil
}

// Write stores data starting at addr.
func (m *Memory) Write(addr uint64, data []byte) error {
	if err := m.checkRange(addr, len(data)); err != nil {
		return err
	}

	copy(m.data[addr:], data)
	return nil
}

// ReadByte returns the byte at addr.
func (m *Memory) ReadByte(addr uint64) (byte, error) {
	if err := m.checkRange(addr, 1); err != nil {
		return 0, err
	}
	return m.data[addr], nil
}

// WriteByte stores one byte at addr.
func (m *Memory) WriteByte(addr uint64, value byte) error {
	if err := m.checkRange(addr, 1); err != nil {
		return err
	}
	m.data[addr] = value
	return nil
}

// ReadWord returns the little-endian 16-bit word at addr.
func (m *Memory) ReadWord(addr uint64) (uint16, error) {
	b, err := m.Read(addr, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// WriteWord stores a little-endian 16-bit word at addr.
func (m *Memory) WriteWord(addr uint64, value uint16) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], value)
	return m.Write(addr, b[:])
}

// Clear zeroes all storage.
func (m *Memory) Clear() {
	for i := range m.data {
		m.data[i] = 0
	}
}

func (m *Memory) checkRange(addr uint64, length int) error {
	// Compared against the remaining room so addr+length cannot wrap.
	size := uint64(len(m.data))
	if length < 0 || addr > size || uint64(length) > size-addr {
		return fmt.Errorf(
			"%w: [%d, +%d) exceeds memory size %d",
			ErrOutOfBounds, addr, length, size)
	}
	return nil
}
