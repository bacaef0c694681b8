// Package crc implements the additive checksum used by the BL-NET bootloader
// protocol: last byte of every multi-byte frame is the sum of preceding bytes mod 256.
package crc

func Sum8(b []byte) byte {
	var sum byte
	for _, x := range b {
		sum += x
	}
	return sum
}

// Verify reports whether the last byte of b is Sum8 of the rest.
// Empty input never verifies.
func Verify(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	last := len(b) - 1
	return Sum8(b[:last]) == b[last]
}

// Append returns b with checksum byte appended.
func Append(b []byte) []byte {
	return append(b, Sum8(b))
}
