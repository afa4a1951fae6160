package layer

import (
	"fmt"
	"log"
	"time"
)

const (
	LevelWarn  = "warn"
	LevelError = "error"
)

const (
	KindInvalidCoordinate = "invalid_coordinate"
	KindUnimplemented     = "unimplemented_layer"
	KindUnrecognized      = "unrecognized_layer"
	KindUndecodable       = "undecodable_patch"
	KindNoSimulator       = "no_simulator"
)

// Diagnostic is a non-fatal decode problem. Detail is pre-rendered
// key=value text.
type Diagnostic struct {
	Time   time.Time `json:"time"`
	Level  string    `json:"level"`
	Kind   string    `json:"kind"`
	Sim    string    `json:"sim"`
	Layer  string    `json:"layer"`
	Detail string    `json:"detail,omitempty"`
}

func (d Diagnostic) String() string {
	s := fmt.Sprintf("level=%s kind=%s sim=%s layer=%s", d.Level, d.Kind, d.Sim, d.Layer)
	if d.Detail != "" {
		s += " " + d.Detail
	}
	return s
}

// DiagnosticSink receives a copy of every diagnostic the decoder logs.
type DiagnosticSink interface {
	WriteDiagnostic(Diagnostic) error
}

type reporter struct {
	log  *log.Logger
	sink DiagnosticSink
}

func (r reporter) report(d Diagnostic) {
	if d.Time.IsZero() {
		d.Time = time.Now().UTC()
	}
	r.log.Print(d.String())
	if r.sink != nil {
		if err := r.sink.WriteDiagnostic(d); err != nil {
			r.log.Printf("level=warn kind=diagnostic_sink err=%v", err)
		}
	}
}
