package bitpack

import (
	"encoding/binary"
	"math"
)

// Writer is the inverse of Cursor. Tools and fixtures use it to build
// sub-streams; the client itself never produces layer data.
type Writer struct {
	buf    []byte
	bitPos int
}

func (w *Writer) Pack(v uint32, bits int) {
	if bits <= 0 {
		return
	}
	if bits > maxWidth {
		bits = maxWidth
	}
	var in [4]byte
	binary.LittleEndian.PutUint32(in[:], v)
	for i := 0; bits > 0; i++ {
		n := bits
		if n > 8 {
			n = 8
		}
		b := in[i]
		for k := n - 1; k >= 0; k-- {
			w.writeBit((b>>k)&1 == 1)
		}
		bits -= n
	}
}

func (w *Writer) PackFloat(f float32) {
	w.Pack(math.Float32bits(f), 32)
}

func (w *Writer) PackBool(b bool) {
	w.writeBit(b)
}

// Bytes returns the packed buffer; a partial final byte is zero padded.
func (w *Writer) Bytes() []byte {
	out := make([]byte, len(w.buf))
	copy(out, w.buf)
	return out
}

// Len returns the number of bits written so far.
func (w *Writer) Len() int {
	if w.bitPos == 0 {
		return len(w.buf) * 8
	}
	return (len(w.buf)-1)*8 + w.bitPos
}

func (w *Writer) writeBit(set bool) {
	if w.bitPos == 0 {
		w.buf = append(w.buf, 0)
	}
	if set {
		w.buf[len(w.buf)-1] |= 0x80 >> w.bitPos
	}
	w.bitPos = (w.bitPos + 1) % 8
}
