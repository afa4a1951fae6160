// Package bitpack reads and writes the bit-packed layout used by layer data
// sub-streams: bits are consumed MSB-first within each source byte and every
// run of eight bits fills the next byte of a little-endian result.
package bitpack

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrTruncated is returned when the cursor cannot supply the requested bits.
var ErrTruncated = errors.New("bitpack: stream truncated")

const maxWidth = 32

type Cursor struct {
	data    []byte
	bytePos int
	bitPos  int
}

func NewCursor(data []byte) *Cursor {
	return &Cursor{data: data}
}

// Remaining reports how many unread bits are left.
func (c *Cursor) Remaining() int {
	return (len(c.data)-c.bytePos)*8 - c.bitPos
}

// Unpack reads the next bits-wide unsigned value. On failure the cursor is
// left where it was.
func (c *Cursor) Unpack(bits int) (uint32, error) {
	if bits < 0 || bits > maxWidth {
		return 0, fmt.Errorf("bitpack: invalid width %d", bits)
	}
	if rem := c.Remaining(); bits > rem {
		return 0, fmt.Errorf("%w: need %d bits, have %d", ErrTruncated, bits, rem)
	}

	var out [4]byte
	outByte, outBit := 0, 0
	for i := 0; i < bits; i++ {
		out[outByte] <<= 1
		if c.data[c.bytePos]&(0x80>>c.bitPos) != 0 {
			out[outByte]++
		}
		c.bitPos++
		if c.bitPos == 8 {
			c.bitPos = 0
			c.bytePos++
		}
		outBit++
		if outBit == 8 {
			outBit = 0
			outByte++
		}
	}
	return binary.LittleEndian.Uint32(out[:]), nil
}

func (c *Cursor) UnpackFloat() (float32, error) {
	v, err := c.Unpack(32)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}
