// Package simulator holds the per-region terrain cache filled by the layer
// decoder.
//
// A Simulator has exactly one writer at a time: the transport delivers
// messages for one region sequentially and the decoder runs on that
// goroutine. Readers on other goroutines may observe a patch slot or the
// wind field mid-update; nothing here locks the cache.
package simulator

import (
	"github.com/google/uuid"
)

const (
	// PatchesPerRow is the row stride of the linear terrain index y*16+x.
	PatchesPerRow = 16
	// DefaultPatchesPerEdge matches a standard 256m region of 16m patches.
	DefaultPatchesPerEdge = 16
	// MaxPatchesPerEdge is the largest edge patch ids can address (5 bits).
	MaxPatchesPerEdge = 32
	// PatchMetres is the region-space width of one patch.
	PatchMetres = 16
	WindCells   = 256
)

type Vector2 struct {
	X, Y float32
}

// WindField is the whole-region wind: cell i holds (x[i], y[i]).
type WindField [WindCells]Vector2

// CloudField is empty until cloud layers are decoded.
type CloudField struct{}

type HeightmapPatch struct {
	X, Y      int
	PatchSize int
	Heights   []float32 // PatchSize*PatchSize, row-major
}

type Simulator struct {
	ID   uuid.UUID
	Name string

	edge    int
	terrain []*HeightmapPatch
	wind     WindField
	hasWind  bool
	cloud    CloudField
	hasCloud bool
}

// New returns an empty simulator. patchesPerEdge outside (0, 32] falls back
// to the default.
func New(id uuid.UUID, name string, patchesPerEdge int) *Simulator {
	if patchesPerEdge <= 0 || patchesPerEdge > MaxPatchesPerEdge {
		patchesPerEdge = DefaultPatchesPerEdge
	}
	return &Simulator{
		ID:      id,
		Name:    name,
		edge:    patchesPerEdge,
		terrain: make([]*HeightmapPatch, slotCount(patchesPerEdge)),
	}
}

func slotCount(edge int) int {
	return PatchIndex(edge-1, edge-1) + 1
}

func PatchIndex(x, y int) int {
	return y*PatchesPerRow + x
}

func (s *Simulator) PatchesPerEdge() int { return s.edge }

// String renders the simulator for log lines.
func (s *Simulator) String() string {
	if s == nil {
		return "<nil>"
	}
	if s.Name != "" {
		return s.Name
	}
	return s.ID.String()
}
