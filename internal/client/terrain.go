// Package client connects received LAYER_DATA envelopes to per-simulator
// terrain state.
package client

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"gridlayer.ai/internal/observer"
	"gridlayer.ai/internal/persistence/snapshot"
	"gridlayer.ai/internal/protocol"
	"gridlayer.ai/internal/sim/simulator"
	"gridlayer.ai/internal/terrain/layer"
	"gridlayer.ai/internal/terrain/wire"
)

type Options struct {
	PersistState   bool
	PatchesPerEdge int

	Logger *log.Logger
	Sink   layer.DiagnosticSink
	// Codec overrides the patch codec; nil uses the standard one.
	Codec layer.PatchCodec
	// OnWind runs after a wind field is stored on a simulator.
	OnWind func(*simulator.Simulator, simulator.WindField)
}

// Terrain owns the simulator registry, the land event publisher and the
// decoder. Messages are decoded one at a time, which keeps each
// simulator's cache single-writer.
type Terrain struct {
	reg    *simulator.Registry
	events *observer.Publisher[layer.LandPatchEvent]
	dec    *layer.Decoder
	log    *log.Logger
	onWind func(*simulator.Simulator, simulator.WindField)

	mu sync.Mutex
}

func New(opts Options) *Terrain {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	edge := opts.PatchesPerEdge
	if edge == 0 {
		edge = simulator.DefaultPatchesPerEdge
	}
	events := observer.NewPublisher[layer.LandPatchEvent]("land", logger)
	return &Terrain{
		reg:    simulator.NewRegistry(edge),
		events: events,
		dec: layer.NewDecoder(layer.Config{
			Codec:        opts.Codec,
			Events:       events,
			PersistState: opts.PersistState,
			Logger:       logger,
			Sink:         opts.Sink,
		}),
		log:    logger,
		onWind: opts.OnWind,
	}
}

func (t *Terrain) Registry() *simulator.Registry                     { return t.reg }
func (t *Terrain) Events() *observer.Publisher[layer.LandPatchEvent] { return t.events }
func (t *Terrain) Stats() layer.Stats                                { return t.dec.Stats() }

// HandleLayerData decodes one envelope. Envelope problems and stream
// truncation are returned; everything else the decoder contains.
func (t *Terrain) HandleLayerData(msg protocol.LayerDataMsg) error {
	id, err := uuid.Parse(msg.SimID)
	if err != nil {
		return fmt.Errorf("%s: sim_id %q: %w", protocol.ErrSimUnknown, msg.SimID, err)
	}
	if msg.Layer < 0 || msg.Layer > 0xff {
		return fmt.Errorf("%s: layer %d", protocol.ErrLayerUnknown, msg.Layer)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	sim := t.reg.GetOrCreate(id, msg.SimName)
	windBefore := t.dec.Stats().WindFields
	err = t.dec.Decode(sim, layer.Message{Type: wire.ClassifyLayer(uint8(msg.Layer)), Data: msg.Data})
	if err != nil {
		return fmt.Errorf("%s: seq %d: %w", protocol.ErrLayerTruncated, msg.Seq, err)
	}
	if t.onWind != nil && t.dec.Stats().WindFields != windBefore {
		if w, ok := sim.Wind(); ok {
			t.onWind(sim, w)
		}
	}
	return nil
}

// HeightAt samples the cached terrain of one simulator.
func (t *Terrain) HeightAt(id uuid.UUID, x, y float32) (float32, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.reg.Get(id)
	if s == nil {
		return 0, false
	}
	return s.HeightAt(x, y)
}

func (t *Terrain) Snapshot(clientID string) snapshot.TerrainSnapshotV1 {
	t.mu.Lock()
	sims := simulator.Export(t.reg.All())
	t.mu.Unlock()
	return snapshot.TerrainSnapshotV1{
		Header: snapshot.Header{
			Version:   snapshot.Version,
			ClientID:  clientID,
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
			Sims:      len(sims),
		},
		Sims: sims,
	}
}

// SaveSnapshot writes the snapshot and returns how many patches it holds.
func (t *Terrain) SaveSnapshot(path, clientID string) (int, error) {
	snap := t.Snapshot(clientID)
	patches := 0
	for _, s := range snap.Sims {
		patches += len(s.Patches)
	}
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		return 0, err
	}
	return patches, nil
}

// Restore replaces registry entries with the snapshot's simulators.
func (t *Terrain) Restore(snap snapshot.TerrainSnapshotV1) error {
	sims, err := simulator.Import(snap.Sims)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range sims {
		t.reg.Put(s)
	}
	t.log.Printf("restored sims=%d client=%s created_at=%s", len(sims), snap.Header.ClientID, snap.Header.CreatedAt)
	return nil
}
