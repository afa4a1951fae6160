package simulator

import (
	"fmt"

	"github.com/google/uuid"

	snapv1 "gridlayer.ai/internal/persistence/snapshot"
)

// Export converts cached state into snapshot records.
func Export(sims []*Simulator) []snapv1.SimV1 {
	out := make([]snapv1.SimV1, 0, len(sims))
	for _, s := range sims {
		if s == nil {
			continue
		}
		rec := snapv1.SimV1{
			ID:             s.ID.String(),
			Name:           s.Name,
			PatchesPerEdge: s.edge,
		}
		for _, p := range s.LoadedPatches() {
			heights := make([]float32, len(p.Heights))
			copy(heights, p.Heights)
			rec.Patches = append(rec.Patches, snapv1.PatchV1{
				X:         p.X,
				Y:         p.Y,
				PatchSize: p.PatchSize,
				Heights:   heights,
			})
		}
		if w, ok := s.Wind(); ok {
			rec.Wind = make([][2]float32, len(w))
			for i, v := range w {
				rec.Wind[i] = [2]float32{v.X, v.Y}
			}
		}
		out = append(out, rec)
	}
	return out
}

// Import rebuilds simulators from snapshot records.
func Import(recs []snapv1.SimV1) ([]*Simulator, error) {
	out := make([]*Simulator, 0, len(recs))
	for _, rec := range recs {
		id, err := uuid.Parse(rec.ID)
		if err != nil {
			return nil, fmt.Errorf("snapshot sim id %q: %w", rec.ID, err)
		}
		s := New(id, rec.Name, rec.PatchesPerEdge)
		for _, p := range rec.Patches {
			if p.PatchSize <= 0 || len(p.Heights) != p.PatchSize*p.PatchSize {
				return nil, fmt.Errorf("snapshot patch %d,%d of %s: %d heights for size %d", p.X, p.Y, rec.ID, len(p.Heights), p.PatchSize)
			}
			heights := make([]float32, len(p.Heights))
			copy(heights, p.Heights)
			if !s.StorePatch(&HeightmapPatch{X: p.X, Y: p.Y, PatchSize: p.PatchSize, Heights: heights}) {
				return nil, fmt.Errorf("snapshot patch %d,%d outside %dx%d grid of %s", p.X, p.Y, s.edge, s.edge, rec.ID)
			}
		}
		if len(rec.Wind) > 0 {
			if len(rec.Wind) != WindCells {
				return nil, fmt.Errorf("snapshot wind of %s: got %d cells want %d", rec.ID, len(rec.Wind), WindCells)
			}
			var w WindField
			for i, v := range rec.Wind {
				w[i] = Vector2{X: v[0], Y: v[1]}
			}
			s.SetWind(w)
		}
		out = append(out, s)
	}
	return out, nil
}
