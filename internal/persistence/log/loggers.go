package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"gridlayer.ai/internal/protocol"
	"gridlayer.ai/internal/terrain/layer"
)

// JSONLZstdWriter appends JSON lines to hourly zstd files named
// <prefix>-YYYY-MM-DD-HH.jsonl.zst. Lines become readable once the file is
// rotated or closed.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
	lines   uint64
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	w.lines++
	return w.w.Flush()
}

// Lines returns how many lines were written since creation.
func (w *JSONLZstdWriter) Lines() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lines
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

const (
	RecordingPrefix  = "layers"
	DiagnosticPrefix = "diagnostics"
)

// RecordEntry is one received LAYER_DATA envelope.
type RecordEntry struct {
	Time    time.Time `json:"time"`
	Seq     uint64    `json:"seq,omitempty"`
	SimID   string    `json:"sim_id"`
	SimName string    `json:"sim_name,omitempty"`
	Layer   int       `json:"layer"`
	Data    []byte    `json:"data"`
}

func (e RecordEntry) Message() protocol.LayerDataMsg {
	return protocol.LayerDataMsg{
		Type:            protocol.TypeLayerData,
		ProtocolVersion: protocol.Version,
		Seq:             e.Seq,
		SimID:           e.SimID,
		SimName:         e.SimName,
		Layer:           e.Layer,
		Data:            e.Data,
	}
}

// Recorder writes every received envelope so a session can be replayed.
type Recorder struct{ w *JSONLZstdWriter }

func NewRecorder(dir string) *Recorder {
	return &Recorder{w: NewJSONLZstdWriter(dir, RecordingPrefix)}
}

func (r *Recorder) Record(m protocol.LayerDataMsg) error {
	return r.w.Write(RecordEntry{
		Time:    r.w.now().UTC(),
		Seq:     m.Seq,
		SimID:   m.SimID,
		SimName: m.SimName,
		Layer:   m.Layer,
		Data:    m.Data,
	})
}

func (r *Recorder) Close() error { return r.w.Close() }

// DiagnosticLogger keeps a compressed record of decoder diagnostics.
type DiagnosticLogger struct{ w *JSONLZstdWriter }

func NewDiagnosticLogger(dir string) *DiagnosticLogger {
	return &DiagnosticLogger{w: NewJSONLZstdWriter(dir, DiagnosticPrefix)}
}

func (l *DiagnosticLogger) WriteDiagnostic(d layer.Diagnostic) error { return l.w.Write(d) }
func (l *DiagnosticLogger) Close() error                             { return l.w.Close() }
