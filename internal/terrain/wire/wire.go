// Package wire holds the headers shared by every layer data sub-stream.
package wire

import (
	"fmt"

	"gridlayer.ai/internal/bitpack"
)

// EndOfPatches is the quantization-bits value that terminates a land
// sub-stream. It is owned by the patch codec; callers only compare with it.
const EndOfPatches uint8 = 97

type LayerType uint8

const (
	Land LayerType = iota
	Water
	Wind
	Cloud
	Other
)

// ClassifyLayer maps a raw type code onto a known layer family. Codes outside
// the known set are Other; that is a normal outcome, not an error.
func ClassifyLayer(code uint8) LayerType {
	if code < uint8(Other) {
		return LayerType(code)
	}
	return Other
}

func (t LayerType) String() string {
	switch t {
	case Land:
		return "LAND"
	case Water:
		return "WATER"
	case Wind:
		return "WIND"
	case Cloud:
		return "CLOUD"
	default:
		return "OTHER"
	}
}

// GroupHeader prefixes every sub-stream.
type GroupHeader struct {
	Stride    uint16
	PatchSize uint8
	Type      LayerType
	RawType   uint8
}

// ParseGroupHeader reads stride (16 bits), patch size (8) and raw type (8) in
// that order.
func ParseGroupHeader(c *bitpack.Cursor) (GroupHeader, error) {
	var g GroupHeader
	stride, err := c.Unpack(16)
	if err != nil {
		return g, fmt.Errorf("group header stride: %w", err)
	}
	size, err := c.Unpack(8)
	if err != nil {
		return g, fmt.Errorf("group header patch size: %w", err)
	}
	raw, err := c.Unpack(8)
	if err != nil {
		return g, fmt.Errorf("group header type: %w", err)
	}
	g.Stride = uint16(stride)
	g.PatchSize = uint8(size)
	g.RawType = uint8(raw)
	g.Type = ClassifyLayer(g.RawType)
	return g, nil
}

// PatchHeader describes one encoded patch. Only QuantWBits is meaningful when
// End reports true.
type PatchHeader struct {
	X, Y       uint32
	QuantWBits uint8
	DCOffset   float32
	Range      float32
	PatchIDs   uint32
	WordBits   uint32
}

func (h PatchHeader) End() bool {
	return h.QuantWBits == EndOfPatches
}
