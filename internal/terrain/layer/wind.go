package layer

import (
	"errors"
	"fmt"

	"gridlayer.ai/internal/bitpack"
	"gridlayer.ai/internal/sim/simulator"
	"gridlayer.ai/internal/terrain/wire"
)

var errFieldShape = errors.New("layer: field shape mismatch")

// WindFieldProcessor decodes the two fixed wind patches: x components first,
// then y components.
type WindFieldProcessor struct {
	codec PatchCodec
}

func NewWindFieldProcessor(pc PatchCodec) WindFieldProcessor {
	return WindFieldProcessor{codec: pc}
}

func (w WindFieldProcessor) DecodeField(g wire.GroupHeader, c *bitpack.Cursor) (simulator.WindField, error) {
	var field simulator.WindField

	// Wind payloads carry no independent stride.
	g.Stride = uint16(g.PatchSize)

	var comps [2][]float32
	for i := range comps {
		h, err := w.codec.DecodeHeader(c)
		if err != nil {
			return field, fmt.Errorf("wind patch %d header: %w", i, err)
		}
		grid, err := w.codec.DecodeGrid(c, h, int(g.PatchSize))
		if err != nil {
			return field, fmt.Errorf("wind patch %d grid: %w", i, err)
		}
		values, err := w.codec.Reconstruct(grid, h, g)
		if err != nil {
			return field, fmt.Errorf("wind patch %d: %w", i, err)
		}
		if len(values) != simulator.WindCells {
			return field, fmt.Errorf("%w: wind patch %d has %d values, want %d", errFieldShape, i, len(values), simulator.WindCells)
		}
		comps[i] = values
	}
	for i := range field {
		field[i] = simulator.Vector2{X: comps[0][i], Y: comps[1][i]}
	}
	return field, nil
}
