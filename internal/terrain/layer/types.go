// Package layer decodes layer data sub-streams into simulator terrain and
// wind state.
package layer

import (
	"gridlayer.ai/internal/bitpack"
	"gridlayer.ai/internal/sim/simulator"
	"gridlayer.ai/internal/terrain/wire"
)

// PatchCodec decodes one patch at a time from a sub-stream.
type PatchCodec interface {
	DecodeHeader(c *bitpack.Cursor) (wire.PatchHeader, error)
	DecodeGrid(c *bitpack.Cursor, h wire.PatchHeader, patchSize int) ([]int32, error)
	Reconstruct(grid []int32, h wire.PatchHeader, g wire.GroupHeader) ([]float32, error)
}

// FieldDecoder turns a whole-region sub-stream into one field value.
type FieldDecoder[F any] interface {
	DecodeField(g wire.GroupHeader, c *bitpack.Cursor) (F, error)
}

// Message is one inbound layer data payload. Type is the transport's
// discriminant; routing uses the type declared inside Data.
type Message struct {
	Type wire.LayerType
	Data []byte
}

// LandPatchEvent is published once per decoded land patch.
type LandPatchEvent struct {
	Origin    *simulator.Simulator
	X, Y      int
	PatchSize int
	Heights   []float32
}
