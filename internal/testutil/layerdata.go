// Package testutil builds layer data sub-streams for tests and tools.
package testutil

import (
	"gridlayer.ai/internal/bitpack"
	"gridlayer.ai/internal/terrain/wire"
)

// Patch is one encoded patch. Coeffs are written in stream order; trailing
// zeros are collapsed into an end-of-block marker.
type Patch struct {
	X, Y       uint32
	QuantWBits uint8
	DCOffset   float32
	Range      uint16
	Coeffs     []int32
}

func (p Patch) wordBits() int {
	return int(p.QuantWBits&0x0f) + 2
}

func WriteGroupHeader(w *bitpack.Writer, stride uint16, patchSize uint8, typ uint8) {
	w.Pack(uint32(stride), 16)
	w.Pack(uint32(patchSize), 8)
	w.Pack(uint32(typ), 8)
}

func WritePatchHeader(w *bitpack.Writer, p Patch) {
	w.Pack(uint32(p.QuantWBits), 8)
	w.PackFloat(p.DCOffset)
	w.Pack(uint32(p.Range), 16)
	w.Pack(p.X<<5|p.Y&0x1f, 10)
}

func WriteEnd(w *bitpack.Writer) {
	w.Pack(uint32(wire.EndOfPatches), 8)
}

// WriteGrid encodes coefficients for a size x size patch.
func WriteGrid(w *bitpack.Writer, p Patch, size int) {
	n := size * size
	last := -1
	for i, v := range p.Coeffs {
		if i < n && v != 0 {
			last = i
		}
	}
	for i := 0; i <= last; i++ {
		v := p.Coeffs[i]
		if v == 0 {
			w.PackBool(false)
			continue
		}
		w.PackBool(true)
		w.PackBool(true)
		mag := v
		w.PackBool(v < 0)
		if v < 0 {
			mag = -v
		}
		w.Pack(uint32(mag), p.wordBits())
	}
	if last+1 < n {
		w.PackBool(true)
		w.PackBool(false)
	}
}

// LandStream returns a complete land sub-stream terminated by the sentinel.
func LandStream(patchSize uint8, patches ...Patch) []byte {
	var w bitpack.Writer
	WriteGroupHeader(&w, uint16(patchSize), patchSize, uint8(wire.Land))
	for _, p := range patches {
		WritePatchHeader(&w, p)
		WriteGrid(&w, p, int(patchSize))
	}
	WriteEnd(&w)
	return w.Bytes()
}

// WindStream returns a wind sub-stream made of the x and y patches. The
// declared stride is deliberately different from the patch size.
func WindStream(x, y Patch) []byte {
	var w bitpack.Writer
	WriteGroupHeader(&w, 256, 16, uint8(wire.Wind))
	for _, p := range []Patch{x, y} {
		WritePatchHeader(&w, p)
		WriteGrid(&w, p, 16)
	}
	return w.Bytes()
}

// HeaderOnly returns a group header with no body.
func HeaderOnly(patchSize uint8, typ uint8) []byte {
	var w bitpack.Writer
	WriteGroupHeader(&w, uint16(patchSize), patchSize, typ)
	return w.Bytes()
}

// Flat returns a patch whose reconstructed heights are all equal to dc:
// zero range and no coefficients.
func Flat(x, y uint32, dc float32) Patch {
	return Patch{X: x, Y: y, QuantWBits: 0x11, DCOffset: dc}
}
