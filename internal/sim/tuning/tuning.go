package tuning

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"gridlayer.ai/internal/protocol"
	"gridlayer.ai/internal/sim/simulator"
)

// Tuning is the client configuration file. Zero values take defaults.
type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`
	ClientName      string `yaml:"client_name"`
	WSURL           string `yaml:"ws_url"`

	// PersistReceivedState keeps decoded land patches and wind on each
	// simulator. Land is only decoded when this is set or something
	// subscribes to land events.
	PersistReceivedState bool `yaml:"persist_received_state"`
	PatchesPerEdge       int  `yaml:"patches_per_edge"`

	RecordDir    string `yaml:"record_dir"`
	SnapshotPath string `yaml:"snapshot_path"`
	IndexDB      string `yaml:"index_db"`

	ReconnectEveryMs int `yaml:"reconnect_every_ms"`
	SnapshotEveryS   int `yaml:"snapshot_every_s"`
	LogLinesPerSec   int `yaml:"log_lines_per_sec"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:      protocol.Version,
		ClientName:           "layerclient",
		WSURL:                "ws://localhost:8080/v1/layers",
		PersistReceivedState: true,
		PatchesPerEdge:       simulator.DefaultPatchesPerEdge,
		ReconnectEveryMs:     2000,
		SnapshotEveryS:       300,
		LogLinesPerSec:       50,
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("%s: %w", path, err)
	}
	t.fill()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// fill restores defaults for keys set to zero explicitly.
func (t *Tuning) fill() {
	d := Defaults()
	if t.ProtocolVersion == "" {
		t.ProtocolVersion = d.ProtocolVersion
	}
	if t.ClientName == "" {
		t.ClientName = d.ClientName
	}
	if t.PatchesPerEdge == 0 {
		t.PatchesPerEdge = d.PatchesPerEdge
	}
	if t.ReconnectEveryMs == 0 {
		t.ReconnectEveryMs = d.ReconnectEveryMs
	}
}

func (t Tuning) Validate() error {
	if t.ProtocolVersion != protocol.Version {
		return fmt.Errorf("protocol_version %q not supported (want %q)", t.ProtocolVersion, protocol.Version)
	}
	if t.PatchesPerEdge < 1 || t.PatchesPerEdge > simulator.MaxPatchesPerEdge {
		return fmt.Errorf("patches_per_edge %d out of range 1..%d", t.PatchesPerEdge, simulator.MaxPatchesPerEdge)
	}
	if t.ReconnectEveryMs < 0 || t.SnapshotEveryS < 0 || t.LogLinesPerSec < 0 {
		return fmt.Errorf("negative interval or rate")
	}
	return nil
}

func (t Tuning) ReconnectEvery() time.Duration {
	return time.Duration(t.ReconnectEveryMs) * time.Millisecond
}

func (t Tuning) SnapshotEvery() time.Duration {
	return time.Duration(t.SnapshotEveryS) * time.Second
}
