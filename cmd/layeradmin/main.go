package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"gridlayer.ai/internal/persistence/snapshot"
	"gridlayer.ai/internal/sim/simulator"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "height":
			heightCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		}
	}
	snapshotCmd(os.Args[1:])
}

func loadSnapshot(path string) []*simulator.Simulator {
	if strings.TrimSpace(path) == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	sims, err := simulator.Import(snap.Sims)
	if err != nil {
		fmt.Fprintln(os.Stderr, "import snapshot:", err)
		os.Exit(1)
	}
	if fi, err := os.Stat(path); err == nil {
		fmt.Fprintf(os.Stderr, "snapshot v%d client=%s created=%s size=%s sims=%d\n",
			snap.Header.Version, snap.Header.ClientID, snap.Header.CreatedAt, humanize.Bytes(uint64(fi.Size())), len(sims))
	}
	return sims
}

// snapshotCmd prints one summary line per simulator.
func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	snapPath := fs.String("snapshot", "./data/terrain.snap.zst", "snapshot path")
	_ = fs.Parse(args)

	for _, s := range loadSnapshot(*snapPath) {
		var all []float32
		patches := s.LoadedPatches()
		for _, p := range patches {
			all = append(all, p.Heights...)
		}
		st := simulator.StatsOf(all)
		r := struct {
			SimID    string  `json:"sim_id"`
			Name     string  `json:"name"`
			Edge     int     `json:"patches_per_edge"`
			Patches  int     `json:"patches"`
			MinH     float64 `json:"min_h"`
			MaxH     float64 `json:"max_h"`
			MeanH    float64 `json:"mean_h"`
			HasWind  bool    `json:"has_wind"`
			MaxSpeed float64 `json:"max_wind_speed,omitempty"`
		}{
			SimID:   s.ID.String(),
			Name:    s.Name,
			Edge:    s.PatchesPerEdge(),
			Patches: len(patches),
			MinH:    st.Min,
			MaxH:    st.Max,
			MeanH:   st.Mean,
		}
		if w, ok := s.Wind(); ok {
			r.HasWind = true
			r.MaxSpeed = simulator.MaxWindSpeed(w)
		}
		printJSON(r)
	}
}

// heightCmd samples terrain height at a region-local position.
func heightCmd(args []string) {
	fs := flag.NewFlagSet("height", flag.ExitOnError)
	snapPath := fs.String("snapshot", "./data/terrain.snap.zst", "snapshot path")
	simID := fs.String("sim", "", "simulator id")
	x := fs.Float64("x", 128, "x in metres")
	y := fs.Float64("y", 128, "y in metres")
	_ = fs.Parse(args)

	id, err := uuid.Parse(strings.TrimSpace(*simID))
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -sim:", err)
		os.Exit(2)
	}
	for _, s := range loadSnapshot(*snapPath) {
		if s.ID != id {
			continue
		}
		h, ok := s.HeightAt(float32(*x), float32(*y))
		if !ok {
			fmt.Fprintf(os.Stderr, "no terrain cached at %.1f,%.1f\n", *x, *y)
			os.Exit(1)
		}
		printJSON(map[string]any{"sim_id": id.String(), "x": *x, "y": *y, "height": h})
		return
	}
	fmt.Fprintln(os.Stderr, "sim not in snapshot:", id)
	os.Exit(1)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
