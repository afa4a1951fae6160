package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"gridlayer.ai/internal/bitpack"
	"gridlayer.ai/internal/capture"
	"gridlayer.ai/internal/client"
	persistlog "gridlayer.ai/internal/persistence/log"
	"gridlayer.ai/internal/protocol"
)

type source struct {
	path string
	pcap bool
}

type result struct {
	Path        string
	Messages    int
	Bytes       uint64
	Truncated   int
	BadEnvelope int
	Sims        int
	Patches     uint64
	Wind        uint64
	Aborted     uint64
	Discarded   uint64
	Elapsed     time.Duration
	Snapshot    string
}

// collectSources expands directories into their recordings, oldest first.
func collectSources(args []string) ([]source, error) {
	var out []source
	for _, a := range args {
		fi, err := os.Stat(a)
		if err != nil {
			return nil, err
		}
		if fi.IsDir() {
			files, err := persistlog.ListRecordings(a)
			if err != nil {
				return nil, err
			}
			for _, f := range files {
				out = append(out, source{path: f})
			}
			continue
		}
		out = append(out, source{path: a, pcap: strings.HasSuffix(a, ".pcap")})
	}
	return out, nil
}

// forEachMessage calls fn for every envelope in src. Envelopes that fail to
// parse are counted in bad and skipped.
func forEachMessage(ctx context.Context, src source, port int, fn func(protocol.LayerDataMsg) error) (bad int, err error) {
	if !src.pcap {
		_, err = persistlog.ReadRecordings(src.path, func(e persistlog.RecordEntry) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(e.Message())
		})
		return 0, err
	}

	f, err := os.Open(src.path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	_, err = capture.ReadPCAP(ctx, f, port, func(p capture.Packet) error {
		m, err := protocol.DecodeLayerData(p.Payload)
		if err != nil {
			bad++
			return nil
		}
		return fn(m)
	})
	return bad, err
}

// replay decodes one source into a fresh terrain cache.
func replay(ctx context.Context, src source, port int, snapshotDir string, logger *log.Logger) (result, error) {
	res := result{Path: src.path}
	start := time.Now()
	terrain := client.New(client.Options{PersistState: true, Logger: logger})

	bad, err := forEachMessage(ctx, src, port, func(m protocol.LayerDataMsg) error {
		res.Messages++
		res.Bytes += uint64(len(m.Data))
		if err := terrain.HandleLayerData(m); err != nil {
			if errors.Is(err, bitpack.ErrTruncated) {
				res.Truncated++
			} else {
				res.BadEnvelope++
			}
			logger.Printf("level=warn kind=replay_message file=%s seq=%d err=%v", filepath.Base(src.path), m.Seq, err)
		}
		return nil
	})
	res.BadEnvelope += bad
	if err != nil {
		return res, fmt.Errorf("%s: %w", src.path, err)
	}

	st := terrain.Stats()
	res.Sims = terrain.Registry().Len()
	res.Patches = st.LandPatches
	res.Wind = st.WindFields
	res.Aborted = st.Aborted
	res.Discarded = st.Discarded

	if snapshotDir != "" {
		res.Snapshot = filepath.Join(snapshotDir, snapshotName(src.path))
		if _, err := terrain.SaveSnapshot(res.Snapshot, "replay-"+uuid.NewString()); err != nil {
			return res, fmt.Errorf("%s: snapshot: %w", src.path, err)
		}
	}
	res.Elapsed = time.Since(start)
	return res, nil
}

func snapshotName(path string) string {
	base := filepath.Base(path)
	for _, ext := range []string{".jsonl.zst", ".pcap"} {
		base = strings.TrimSuffix(base, ext)
	}
	return base + ".snap.zst"
}

// writeJSON emits results as one JSON document for scripting.
func writeJSON(w io.Writer, results []result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}
