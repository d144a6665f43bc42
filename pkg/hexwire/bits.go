package hexwire

// Bit-addressed buffer helpers. Bit i lives at bit (i % 8) of byte (i / 8),
// so bit 0 is the least significant bit of byte 0.

// GetBits extracts n bits (n <= 32) starting at bit first and returns them as
// an LSB-aligned value.
func GetBits(buf []byte, first, n int) uint32 {
	var v uint32
	for i := 0; i < n; i++ {
		bit := first + i
		if buf[bit/8]&(1<<(bit%8)) != 0 {
			v |= 1 << uint(i)
		}
	}
	return v
}

// SetBits stores the low n bits (n <= 32) of v starting at bit first.
func SetBits(buf []byte, first, n int, v uint32) {
	for i := 0; i < n; i++ {
		bit := first + i
		mask := byte(1) << (bit % 8)
		if v&(1<<uint(i)) != 0 {
			buf[bit/8] |= mask
		} else {
			buf[bit/8] &^= mask
		}
	}
}
