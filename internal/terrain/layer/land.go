package layer

import (
	"errors"
	"fmt"

	"gridlayer.ai/internal/bitpack"
	"gridlayer.ai/internal/observer"
	"gridlayer.ai/internal/sim/simulator"
	"gridlayer.ai/internal/terrain/wire"
)

// LandPatchProcessor decodes a land sub-stream patch by patch until the
// end-of-patches sentinel.
type LandPatchProcessor struct {
	codec   PatchCodec
	events  *observer.Publisher[LandPatchEvent]
	persist bool
	rep     reporter
}

type landResult struct {
	emitted int
	aborted bool
}

// Process publishes one event per patch in stream order and, when
// persisting, overwrites the simulator's cache slot. A patch outside the
// simulator grid stops the stream in place; patches already emitted stay.
// Only truncation is returned as an error.
func (p *LandPatchProcessor) Process(sim *simulator.Simulator, g wire.GroupHeader, c *bitpack.Cursor) (landResult, error) {
	var res landResult
	edge := uint32(sim.PatchesPerEdge())
	for {
		h, err := p.codec.DecodeHeader(c)
		if err != nil {
			return p.fail(sim, g, h, res, err)
		}
		if h.End() {
			return res, nil
		}

		if h.X >= edge || h.Y >= edge {
			p.rep.report(Diagnostic{
				Level: LevelWarn,
				Kind:  KindInvalidCoordinate,
				Sim:   sim.String(),
				Layer: g.Type.String(),
				Detail: fmt.Sprintf("x=%d y=%d edge=%d dc_offset=%g range=%g quant_wbits=%d patch_ids=%#x patches=%d",
					h.X, h.Y, edge, h.DCOffset, h.Range, h.QuantWBits, h.PatchIDs, res.emitted),
			})
			res.aborted = true
			return res, nil
		}

		grid, err := p.codec.DecodeGrid(c, h, int(g.PatchSize))
		if err != nil {
			return p.fail(sim, g, h, res, err)
		}
		heights, err := p.codec.Reconstruct(grid, h, g)
		if err != nil {
			return p.fail(sim, g, h, res, err)
		}

		x, y := int(h.X), int(h.Y)
		p.events.Publish(LandPatchEvent{
			Origin:    sim,
			X:         x,
			Y:         y,
			PatchSize: int(g.PatchSize),
			Heights:   heights,
		})
		if p.persist {
			cached := make([]float32, len(heights))
			copy(cached, heights)
			sim.StorePatch(&simulator.HeightmapPatch{X: x, Y: y, PatchSize: int(g.PatchSize), Heights: cached})
		}
		res.emitted++
	}
}

// fail hands truncation back to the caller. Any other codec error abandons
// the rest of the stream as an undecodable patch.
func (p *LandPatchProcessor) fail(sim *simulator.Simulator, g wire.GroupHeader, h wire.PatchHeader, res landResult, err error) (landResult, error) {
	if errors.Is(err, bitpack.ErrTruncated) {
		return res, err
	}
	p.rep.report(Diagnostic{
		Level:  LevelWarn,
		Kind:   KindUndecodable,
		Sim:    sim.String(),
		Layer:  g.Type.String(),
		Detail: fmt.Sprintf("x=%d y=%d patch_size=%d patches=%d err=%q", h.X, h.Y, g.PatchSize, res.emitted, err.Error()),
	})
	res.aborted = true
	return res, nil
}
