package protocol

import (
	"encoding/json"
	"fmt"
)

// HELLO (client -> server)
type HelloMsg struct {
	Type              string   `json:"type"`
	ProtocolVersion   string   `json:"protocol_version"`
	SupportedVersions []string `json:"supported_versions,omitempty"`
	ClientName        string   `json:"client_name"`
	// Layers the client wants streamed. Empty means all.
	Layers []int `json:"layers,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	SessionID       string   `json:"session_id,omitempty"`
	Sims            []SimRef `json:"sims,omitempty"`
}

type SimRef struct {
	SimID          string `json:"sim_id"`
	Name           string `json:"name,omitempty"`
	PatchesPerEdge int    `json:"patches_per_edge,omitempty"`
}

// Layer discriminants carried on LAYER_DATA.
const (
	LayerLand  = 0
	LayerWater = 1
	LayerWind  = 2
	LayerCloud = 3
)

// LAYER_DATA (server -> client). Data is one layer sub-stream, base64 on
// the wire.
type LayerDataMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Seq             uint64 `json:"seq,omitempty"`
	SimID           string `json:"sim_id"`
	SimName         string `json:"sim_name,omitempty"`
	Layer           int    `json:"layer"`
	Data            []byte `json:"data"`
}

// ERROR (either direction)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}

func (m ErrorMsg) Error() string {
	if m.Message == "" {
		return m.Code
	}
	return m.Code + ": " + m.Message
}

// DecodeLayerData parses a LAYER_DATA envelope and checks its type, version
// and layer discriminant.
func DecodeLayerData(b []byte) (LayerDataMsg, error) {
	var m LayerDataMsg
	if err := json.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("%s: %w", ErrProtoBadRequest, err)
	}
	if m.Type != TypeLayerData {
		return m, fmt.Errorf("%s: type %q is not %s", ErrProtoBadRequest, m.Type, TypeLayerData)
	}
	if m.ProtocolVersion != "" && m.ProtocolVersion != Version {
		return m, fmt.Errorf("%s: protocol_version %q", ErrProtoVersion, m.ProtocolVersion)
	}
	if m.Layer < 0 || m.Layer > 0xff {
		return m, fmt.Errorf("%s: layer %d", ErrLayerUnknown, m.Layer)
	}
	return m, nil
}
