package simulator

func (s *Simulator) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < s.edge && y < s.edge
}

// StorePatch overwrites the slot for p's coordinates. Out-of-range patches
// are refused.
func (s *Simulator) StorePatch(p *HeightmapPatch) bool {
	if p == nil || !s.InBounds(p.X, p.Y) {
		return false
	}
	s.terrain[PatchIndex(p.X, p.Y)] = p
	return true
}

// PatchAt returns the cached patch at (x, y). Coordinates sharing a slot
// with a later write (x >= 16 on wide grids) miss.
func (s *Simulator) PatchAt(x, y int) *HeightmapPatch {
	if !s.InBounds(x, y) {
		return nil
	}
	p := s.terrain[PatchIndex(x, y)]
	if p == nil || p.X != x || p.Y != y {
		return nil
	}
	return p
}

// Terrain returns the cache slots indexed by y*16+x. The slice is a copy; the
// patches are shared.
func (s *Simulator) Terrain() []*HeightmapPatch {
	out := make([]*HeightmapPatch, len(s.terrain))
	copy(out, s.terrain)
	return out
}

// LoadedPatches returns the cached patches in index order.
func (s *Simulator) LoadedPatches() []*HeightmapPatch {
	var out []*HeightmapPatch
	for _, p := range s.terrain {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

func (s *Simulator) Wind() (WindField, bool) {
	return s.wind, s.hasWind
}

// SetWind replaces the wind field wholesale.
func (s *Simulator) SetWind(w WindField) {
	s.wind = w
	s.hasWind = true
}

func (s *Simulator) Cloud() (CloudField, bool) {
	return s.cloud, s.hasCloud
}

func (s *Simulator) SetCloud(c CloudField) {
	s.cloud = c
	s.hasCloud = true
}

// HeightAt samples cached terrain at a region-local position in metres.
func (s *Simulator) HeightAt(x, y float32) (float32, bool) {
	if x < 0 || y < 0 {
		return 0, false
	}
	px, py := int(x)/PatchMetres, int(y)/PatchMetres
	p := s.PatchAt(px, py)
	if p == nil || p.PatchSize <= 0 {
		return 0, false
	}
	lx := int((x - float32(px*PatchMetres)) * float32(p.PatchSize) / PatchMetres)
	ly := int((y - float32(py*PatchMetres)) * float32(p.PatchSize) / PatchMetres)
	i := ly*p.PatchSize + lx
	if i < 0 || i >= len(p.Heights) {
		return 0, false
	}
	return p.Heights[i], true
}
