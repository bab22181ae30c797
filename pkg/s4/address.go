// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package s4

import "fmt"

// Width is the number of consecutive memory bytes composing one value.
type Width int

// Width values
const (
	Single Width = 1
	Double Width = 2
	Triple Width = 3
)

// String returns the width name.
func (w Width) String() string {
	switch w {
	case Single:
		return "single"
	case Double:
		return "double"
	case Triple:
		return "triple"
	default:
		return fmt.Sprintf("width(%d)", int(w))
	}
}

// Valid reports whether w is one of Single, Double or Triple.
func (w Width) Valid() bool {
	return w >= Single && w <= Triple
}

// Compose combines raw memory bytes into a value, most significant byte first.
//
//	Single: v0
//	Double: v0*256 + v1
//	Triple: v0*65536 + v1*256 + v2
func (w Width) Compose(values []byte) (uint32, error) {
	if !w.Valid() {
		return 0, fmt.Errorf("invalid width %d", int(w))
	}
	if len(values) != int(w) {
		return 0, fmt.Errorf("%s value needs %d bytes, got %d", w, int(w), len(values))
	}
	var v uint32
	for _, b := range values {
		v = v<<8 | uint32(b)
	}
	return v, nil
}

// MemoryAddress is a validated S4 memory location together with the width of
// the value stored there.
type MemoryAddress struct {
	Location uint16
	Width    Width
}

// NewMemoryAddress validates location and width.
func NewMemoryAddress(location int, width Width) (MemoryAddress, error) {
	if location < MinLocation || location > MaxLocation {
		return MemoryAddress{}, &ValidationError{
			Field: "location",
			Value: location,
			Min:   MinLocation,
			Max:   MaxLocation,
		}
	}
	if !width.Valid() {
		return MemoryAddress{}, &ValidationError{
			Field: "width",
			Value: int(width),
			Min:   int(Single),
			Max:   int(Triple),
		}
	}
	return MemoryAddress{Location: uint16(location), Width: width}, nil
}

// MustMemoryAddress is like NewMemoryAddress but panics on invalid input.
// Intended for package-level tables of known locations.
func MustMemoryAddress(location int, width Width) MemoryAddress {
	a, err := NewMemoryAddress(location, width)
	if err != nil {
		panic(fmt.Sprintf("s4: %v", err))
	}
	return a
}

// String formats the address as "0x055/double".
func (a MemoryAddress) String() string {
	return fmt.Sprintf("0x%03X/%s", a.Location, a.Width)
}

// MiscFlags decodes the misc flags byte at LocationMiscFlags.
type MiscFlags uint8

// ZoneWork reports bit 0.
func (f MiscFlags) ZoneWork() bool { return f.Bit(0) }

// ZoneRest reports bit 1.
func (f MiscFlags) ZoneRest() bool { return f.Bit(1) }

// Bit reports whether bit n (0 = least significant) is set.
func (f MiscFlags) Bit(n uint) bool {
	if n > 7 {
		return false
	}
	return f&(1<<n) != 0
}

// Bits returns all eight bits, index 0 being the least significant.
func (f MiscFlags) Bits() [8]bool {
	var bits [8]bool
	for i := range bits {
		bits[i] = f.Bit(uint(i))
	}
	return bits
}
