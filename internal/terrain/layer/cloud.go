package layer

import (
	"gridlayer.ai/internal/bitpack"
	"gridlayer.ai/internal/sim/simulator"
	"gridlayer.ai/internal/terrain/wire"
)

// CloudFieldProcessor leaves cloud sub-streams unparsed.
type CloudFieldProcessor struct{}

func (CloudFieldProcessor) DecodeField(wire.GroupHeader, *bitpack.Cursor) (simulator.CloudField, error) {
	return simulator.CloudField{}, nil
}
