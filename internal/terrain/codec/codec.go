// Package codec decodes individual terrain patches: the patch header, the
// prefix-coded coefficient grid, and the dequantize + inverse DCT
// reconstruction into heights.
package codec

import (
	"errors"
	"fmt"

	"gridlayer.ai/internal/bitpack"
	"gridlayer.ai/internal/terrain/wire"
)

// ErrPatchSize is returned by Reconstruct for patch sizes without tables.
var ErrPatchSize = errors.New("codec: unsupported patch size")

// Codec is stateless; the zero value is ready to use.
type Codec struct{}

func (Codec) DecodeHeader(c *bitpack.Cursor) (wire.PatchHeader, error) {
	var h wire.PatchHeader
	q, err := c.Unpack(8)
	if err != nil {
		return h, fmt.Errorf("patch header quant bits: %w", err)
	}
	h.QuantWBits = uint8(q)
	if h.End() {
		return h, nil
	}

	dc, err := c.UnpackFloat()
	if err != nil {
		return h, fmt.Errorf("patch header dc offset: %w", err)
	}
	rng, err := c.Unpack(16)
	if err != nil {
		return h, fmt.Errorf("patch header range: %w", err)
	}
	ids, err := c.Unpack(10)
	if err != nil {
		return h, fmt.Errorf("patch header ids: %w", err)
	}
	h.DCOffset = dc
	h.Range = float32(rng)
	h.PatchIDs = ids
	h.X = ids >> 5
	h.Y = ids & 0x1f
	h.WordBits = uint32(h.QuantWBits&0x0f) + 2
	return h, nil
}

// DecodeGrid reads size*size coefficients. A zero bit is a zero
// coefficient, "10" ends the block, "11" is followed by a sign bit and a
// WordBits-wide magnitude.
func (Codec) DecodeGrid(c *bitpack.Cursor, h wire.PatchHeader, size int) ([]int32, error) {
	n := size * size
	out := make([]int32, n)
	for i := 0; i < n; i++ {
		set, err := c.Unpack(1)
		if err != nil {
			return nil, fmt.Errorf("patch grid %d: %w", i, err)
		}
		if set == 0 {
			continue
		}
		value, err := c.Unpack(1)
		if err != nil {
			return nil, fmt.Errorf("patch grid %d: %w", i, err)
		}
		if value == 0 {
			return out, nil
		}
		neg, err := c.Unpack(1)
		if err != nil {
			return nil, fmt.Errorf("patch grid %d sign: %w", i, err)
		}
		mag, err := c.Unpack(int(h.WordBits))
		if err != nil {
			return nil, fmt.Errorf("patch grid %d magnitude: %w", i, err)
		}
		if neg != 0 {
			out[i] = -int32(mag)
		} else {
			out[i] = int32(mag)
		}
	}
	return out, nil
}

// Reconstruct turns a decoded grid into heights (or wind components) using
// the patch quantization parameters and the group patch size.
func (Codec) Reconstruct(grid []int32, h wire.PatchHeader, g wire.GroupHeader) ([]float32, error) {
	size := int(g.PatchSize)
	t := tablesFor(size)
	if t == nil {
		return nil, fmt.Errorf("%w: %d", ErrPatchSize, size)
	}
	n := size * size
	if len(grid) < n {
		return nil, fmt.Errorf("codec: grid has %d values, need %d", len(grid), n)
	}

	prequant := int(h.QuantWBits>>4) + 2
	mult := h.Range / float32(int(1)<<prequant)
	addval := mult*float32(int(1)<<(prequant-1)) + h.DCOffset

	block := make([]float32, n)
	for k := 0; k < n; k++ {
		block[k] = float32(grid[t.copyIdx[k]]) * t.dequant[k]
	}
	tmp := make([]float32, n)
	for col := 0; col < size; col++ {
		t.idctColumn(block, tmp, col)
	}
	for line := 0; line < size; line++ {
		t.idctLine(tmp, block, line)
	}
	for k := range block {
		block[k] = block[k]*mult + addval
	}
	return block, nil
}
