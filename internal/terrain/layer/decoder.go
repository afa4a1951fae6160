package layer

import (
	"errors"
	"fmt"
	"log"
	"sync/atomic"

	"gridlayer.ai/internal/bitpack"
	"gridlayer.ai/internal/observer"
	"gridlayer.ai/internal/sim/simulator"
	"gridlayer.ai/internal/terrain/codec"
	"gridlayer.ai/internal/terrain/wire"
)

type Config struct {
	// Codec defaults to codec.Codec.
	Codec PatchCodec
	// Events receives land patches. It may be nil.
	Events *observer.Publisher[LandPatchEvent]
	// PersistState stores decoded land patches, wind and cloud in the simulator.
	PersistState bool

	Logger *log.Logger
	Sink   DiagnosticSink
}

type Stats struct {
	Messages    uint64
	LandPatches uint64
	LandSkipped uint64
	WindFields  uint64
	Discarded   uint64
	Aborted     uint64
}

// Decoder routes each message to the processor for its declared layer type.
// Decode runs synchronously on the caller's goroutine.
type Decoder struct {
	land    *LandPatchProcessor
	wind    FieldDecoder[simulator.WindField]
	cloud   FieldDecoder[simulator.CloudField]
	events  *observer.Publisher[LandPatchEvent]
	persist bool
	rep     reporter

	messages    atomic.Uint64
	landPatches atomic.Uint64
	landSkipped atomic.Uint64
	windFields  atomic.Uint64
	discarded   atomic.Uint64
	aborted     atomic.Uint64
}

func NewDecoder(cfg Config) *Decoder {
	pc := cfg.Codec
	if pc == nil {
		pc = codec.Codec{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	rep := reporter{log: logger, sink: cfg.Sink}
	return &Decoder{
		land: &LandPatchProcessor{
			codec:   pc,
			events:  cfg.Events,
			persist: cfg.PersistState,
			rep:     rep,
		},
		wind:    NewWindFieldProcessor(pc),
		cloud:   CloudFieldProcessor{},
		events:  cfg.Events,
		persist: cfg.PersistState,
		rep:     rep,
	}
}

// landWanted reports whether decoded land would reach anyone.
func (d *Decoder) landWanted() bool {
	return d.persist || d.events.Len() > 0
}

// Decode processes one message for sim. The only error it returns wraps
// bitpack.ErrTruncated; every other problem is logged and contained.
func (d *Decoder) Decode(sim *simulator.Simulator, msg Message) error {
	d.messages.Add(1)
	if sim == nil {
		d.discarded.Add(1)
		d.rep.report(Diagnostic{
			Level:  LevelError,
			Kind:   KindNoSimulator,
			Sim:    sim.String(),
			Layer:  msg.Type.String(),
			Detail: fmt.Sprintf("bytes=%d", len(msg.Data)),
		})
		return nil
	}

	c := bitpack.NewCursor(msg.Data)
	g, err := wire.ParseGroupHeader(c)
	if err != nil {
		return fmt.Errorf("layer data from %s: %w", sim, err)
	}

	switch g.Type {
	case wire.Land:
		if !d.landWanted() {
			d.landSkipped.Add(1)
			return nil
		}
		res, err := d.land.Process(sim, g, c)
		d.landPatches.Add(uint64(res.emitted))
		if res.aborted {
			d.aborted.Add(1)
		}
		if err != nil {
			return fmt.Errorf("land layer from %s after %d patches: %w", sim, res.emitted, err)
		}

	case wire.Water:
		d.discarded.Add(1)
		d.rep.report(Diagnostic{
			Level:  LevelError,
			Kind:   KindUnimplemented,
			Sim:    sim.String(),
			Layer:  g.Type.String(),
			Detail: fmt.Sprintf("bytes=%d", len(msg.Data)),
		})

	case wire.Wind:
		field, err := d.wind.DecodeField(g, c)
		if err != nil {
			return d.contain(sim, g, err)
		}
		d.windFields.Add(1)
		if d.persist {
			sim.SetWind(field)
		}

	case wire.Cloud:
		field, err := d.cloud.DecodeField(g, c)
		if err != nil {
			return d.contain(sim, g, err)
		}
		if d.persist {
			sim.SetCloud(field)
		}

	default:
		d.discarded.Add(1)
		d.rep.report(Diagnostic{
			Level:  LevelWarn,
			Kind:   KindUnrecognized,
			Sim:    sim.String(),
			Layer:  g.Type.String(),
			Detail: fmt.Sprintf("type=%#02x declared=%s bytes=%d", g.RawType, msg.Type, len(msg.Data)),
		})
	}
	return nil
}

func (d *Decoder) contain(sim *simulator.Simulator, g wire.GroupHeader, err error) error {
	if errors.Is(err, bitpack.ErrTruncated) {
		return fmt.Errorf("%s layer from %s: %w", g.Type, sim, err)
	}
	d.aborted.Add(1)
	d.rep.report(Diagnostic{
		Level:  LevelWarn,
		Kind:   KindUndecodable,
		Sim:    sim.String(),
		Layer:  g.Type.String(),
		Detail: fmt.Sprintf("patch_size=%d err=%q", g.PatchSize, err.Error()),
	})
	return nil
}

func (d *Decoder) Stats() Stats {
	return Stats{
		Messages:    d.messages.Load(),
		LandPatches: d.landPatches.Load(),
		LandSkipped: d.landSkipped.Load(),
		WindFields:  d.windFields.Load(),
		Discarded:   d.discarded.Load(),
		Aborted:     d.aborted.Load(),
	}
}
