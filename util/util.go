// Package util contains misc internal utilities.
package util

import "math/bits"

// GetBit returns the value of a given bit in a byte
func GetBit(b byte, bitIndex uint) bool {
	return b&(1<<bitIndex) != 0
}

// SetBit returns b with the bit at bitIndex set to value
func SetBit(b byte, bitIndex uint, value bool) byte {
	if value {
		return b | 1<<bitIndex
	}
	return b &^ (1 << bitIndex)
}

// BoolByte is 1 for true and 0 for false
func BoolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// MaskShift is the position of the lowest set bit of mask, 8 for an empty mask
func MaskShift(mask byte) uint {
	return uint(bits.TrailingZeros8(mask))
}

// Field extracts the bits of b selected by mask and shifts them down to bit 0
func Field(b, mask byte) byte {
	if mask == 0 {
		return 0
	}
	return (b & mask) >> MaskShift(mask)
}

// PutField is the inverse of Field; v is shifted up into mask and spliced into b
func PutField(b, mask, v byte) byte {
	if mask == 0 {
		return b
	}
	return (b &^ mask) | ((v << MaskShift(mask)) & mask)
}

// HighestBit returns the index of the most significant set bit of b,
// or -1 if b is zero
func HighestBit(b byte) int {
	return bits.Len8(b) - 1
}

// ArangeByte returns a slice of bytes in the half open interval [start, end)
// it is called like python's range: ArangeByte(end), ArangeByte(start, end),
// or ArangeByte(start, end, step).  Extra arguments are ignored.
func ArangeByte(args ...byte) []byte {
	var start, end, step byte = 0, 0, 1
	switch len(args) {
	case 0:
		return []byte{}
	case 1:
		end = args[0]
	case 2:
		start, end = args[0], args[1]
	default:
		start, end, step = args[0], args[1], args[2]
	}
	if step == 0 || end <= start {
		return []byte{}
	}
	out := make([]byte, 0, (int(end)-int(start)+int(step)-1)/int(step))
	for i := int(start); i < int(end); i += int(step) {
		out = append(out, byte(i))
	}
	return out
}

// Clamp limits v to the closed interval [low, high]
func Clamp(v, low, high int) int {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}
