package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"

	// Simulator routing.
	ErrSimUnknown = "E_SIM_UNKNOWN"
	ErrSimDenied  = "E_SIM_DENIED"

	// Layer stream.
	ErrLayerUnknown   = "E_LAYER_UNKNOWN"
	ErrLayerTruncated = "E_LAYER_TRUNCATED"

	ErrRateLimit = "E_RATE_LIMIT"
	ErrInternal  = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrSimUnknown:      {},
	ErrSimDenied:       {},
	ErrLayerUnknown:    {},
	ErrLayerTruncated:  {},
	ErrRateLimit:       {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
