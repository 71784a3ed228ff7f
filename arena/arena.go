// Package arena models the raw heap region an allocator operates on: a
// single contiguous, exclusively-owned address range backed by a byte slice.
// Addresses handed out by allocators are absolute values in
// [Base(), End()) and map to offsets into the backing slice, with every
// access bounds-checked.
package arena

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// NoAddr marks the absence of a node in an in-heap chain. It is encoded
// in heap memory as an all-ones link word.
const NoAddr = -1

const linkSize = 8

// Arena is the backing store for one heap. It is created once, never
// resized, and owned by exactly one allocator for its entire lifetime. No
// other component may touch the range except through blocks the allocator
// has handed out.
type Arena struct {
	base int
	data []byte
}

// New reserves a zeroed heap of the given size at the given base address.
// The size must be positive and the base address non-negative.
func New(base, size int) *Arena {
	if base < 0 || size <= 0 {
		panic(errors.Errorf("invalid heap bounds: base %d, size %d", base, size))
	}
	return &Arena{base: base, data: make([]byte, size)}
}

// FromBytes wraps caller-provided storage, such as a region mapped with
// ReserveHeap, as a heap at the given base address. The caller must not
// touch the storage afterward.
func FromBytes(base int, data []byte) *Arena {
	if base < 0 || len(data) == 0 {
		panic(errors.Errorf("invalid heap bounds: base %d, size %d", base, len(data)))
	}
	return &Arena{base: base, data: data}
}

// Base returns the first address of the heap.
func (a *Arena) Base() int { return a.base }

// Size returns the heap size in bytes.
func (a *Arena) Size() int { return len(a.data) }

// End returns the first address past the heap.
func (a *Arena) End() int { return a.base + len(a.data) }

// Contains reports whether [addr, addr+size) lies fully inside the heap.
func (a *Arena) Contains(addr, size int) bool {
	return addr >= a.base && size >= 0 && addr <= a.End()-size
}

// Slice returns the heap bytes backing [addr, addr+size).
func (a *Arena) Slice(addr, size int) ([]byte, error) {
	if !a.Contains(addr, size) {
		return nil, errors.Errorf("range [%d, %d) escapes the heap [%d, %d)", addr, addr+size, a.base, a.End())
	}
	offset := addr - a.base
	return a.data[offset : offset+size : offset+size], nil
}

// PutWord stores a non-negative integer at addr.
func (a *Arena) PutWord(addr, value int) error {
	buf, err := a.Slice(addr, linkSize)
	if err != nil {
		return err
	}
	if value < 0 {
		return errors.Errorf("cannot store negative word %d at address %d", value, addr)
	}
	binary.LittleEndian.PutUint64(buf, uint64(value))
	return nil
}

// Word loads an integer previously stored with PutWord.
func (a *Arena) Word(addr int) (int, error) {
	buf, err := a.Slice(addr, linkSize)
	if err != nil {
		return 0, err
	}
	value := binary.LittleEndian.Uint64(buf)
	if value > math.MaxInt {
		return 0, errors.Errorf("word at address %d is not a valid size", addr)
	}
	return int(value), nil
}

// PutLink stores a chain link at addr. NoAddr is encoded as all-ones.
func (a *Arena) PutLink(addr, target int) error {
	buf, err := a.Slice(addr, linkSize)
	if err != nil {
		return err
	}
	encoded := uint64(target)
	if target == NoAddr {
		encoded = math.MaxUint64
	} else if target < 0 {
		return errors.Errorf("cannot link to negative address %d", target)
	}
	binary.LittleEndian.PutUint64(buf, encoded)
	return nil
}

// Link loads a chain link previously stored with PutLink.
func (a *Arena) Link(addr int) (int, error) {
	buf, err := a.Slice(addr, linkSize)
	if err != nil {
		return NoAddr, err
	}
	encoded := binary.LittleEndian.Uint64(buf)
	if encoded == math.MaxUint64 {
		return NoAddr, nil
	}
	if encoded > math.MaxInt {
		return NoAddr, errors.Errorf("link at address %d is not a valid address", addr)
	}
	return int(encoded), nil
}
