package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"gridlayer.ai/internal/client"
	"gridlayer.ai/internal/logutil"
	"gridlayer.ai/internal/persistence/indexdb"
	persistlog "gridlayer.ai/internal/persistence/log"
	"gridlayer.ai/internal/persistence/snapshot"
	"gridlayer.ai/internal/protocol"
	"gridlayer.ai/internal/sim/tuning"
	"gridlayer.ai/internal/transport/ws"
)

func main() {
	var (
		configPath = flag.String("config", "./configs/client.yaml", "client config (optional)")
		url        = flag.String("url", "", "layer feed ws url (overrides config)")
		name       = flag.String("name", "", "client name (overrides config)")
		recordDir  = flag.String("record", "", "directory for recordings and diagnostics (overrides config)")
		snapPath   = flag.String("snapshot", "", "terrain snapshot path (overrides config)")
		dbPath     = flag.String("db", "", "sqlite patch index path (overrides config)")
		noPersist  = flag.Bool("no_persist", false, "do not keep received terrain")
		restore    = flag.Bool("restore", true, "load the snapshot at startup if present")
	)
	flag.Parse()

	tune := tuning.Defaults()
	if p := strings.TrimSpace(*configPath); p != "" {
		t, err := tuning.Load(p)
		switch {
		case err == nil:
			tune = t
		case errors.Is(err, os.ErrNotExist):
		default:
			log.Fatalf("config: %v", err)
		}
	}
	override := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	override(&tune.WSURL, *url)
	override(&tune.ClientName, *name)
	override(&tune.RecordDir, *recordDir)
	override(&tune.SnapshotPath, *snapPath)
	override(&tune.IndexDB, *dbPath)
	if *noPersist {
		tune.PersistReceivedState = false
	}

	// console bypasses the throttle for startup failures and the exit summary.
	console := log.New(os.Stdout, "[layerclient] ", log.LstdFlags|log.Lmicroseconds)
	throttle := logutil.NewThrottledWriter(os.Stdout, tune.LogLinesPerSec)
	logger := log.New(throttle, "[layerclient] ", log.LstdFlags|log.Lmicroseconds)

	clientID := uuid.NewString()
	opts := client.Options{
		PersistState:   tune.PersistReceivedState,
		PatchesPerEdge: tune.PatchesPerEdge,
		Logger:         logger,
	}

	var recorder *persistlog.Recorder
	if tune.RecordDir != "" {
		recorder = persistlog.NewRecorder(tune.RecordDir)
		defer recorder.Close()
		diags := persistlog.NewDiagnosticLogger(filepath.Join(tune.RecordDir, "diagnostics"))
		defer diags.Close()
		opts.Sink = diags
	}

	var idx *indexdb.SQLiteIndex
	if tune.IndexDB != "" {
		var err error
		idx, err = indexdb.OpenSQLite(tune.IndexDB)
		if err != nil {
			console.Fatalf("open index db: %v", err)
		}
		defer idx.Close()
		opts.OnWind = idx.RecordWind
	}

	terrain := client.New(opts)
	if idx != nil {
		terrain.Events().Subscribe(idx.Subscriber())
	}

	if *restore && tune.SnapshotPath != "" && tune.PersistReceivedState {
		snap, err := snapshot.ReadSnapshot(tune.SnapshotPath)
		switch {
		case err == nil:
			if err := terrain.Restore(snap); err != nil {
				console.Fatalf("restore snapshot: %v", err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			logger.Printf("level=warn kind=snapshot_unreadable path=%s err=%v", tune.SnapshotPath, err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var snaps *snapshotter
	if tune.SnapshotPath != "" && tune.PersistReceivedState {
		snaps = &snapshotter{terrain: terrain, path: tune.SnapshotPath, clientID: clientID, idx: idx, logger: logger}
		snaps.start(ctx, tune.SnapshotEvery())
	}

	var received, bytesIn uint64
	handle := func(m protocol.LayerDataMsg) error {
		received++
		bytesIn += uint64(len(m.Data))
		if recorder != nil {
			if err := recorder.Record(m); err != nil {
				logger.Printf("level=warn kind=record_failed err=%v", err)
			}
		}
		return terrain.HandleLayerData(m)
	}
	dial := func(ctx context.Context) (*ws.Client, error) {
		return ws.Dial(ctx, tune.WSURL, tune.ClientName, logger)
	}

	logger.Printf("starting url=%s persist=%t edge=%d", tune.WSURL, tune.PersistReceivedState, tune.PatchesPerEdge)
	lim := rate.NewLimiter(rate.Every(tune.ReconnectEvery()), 1)
	if err := ws.RunForever(ctx, dial, handle, lim, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Printf("level=error kind=feed_stopped err=%v", err)
	}

	if snaps != nil {
		snaps.finish()
	}
	st := terrain.Stats()
	console.Printf("done messages=%s data=%s land_patches=%s skipped=%d wind=%d discarded=%d aborted=%d log_dropped=%d index=%+v",
		humanize.Comma(int64(received)), humanize.Bytes(bytesIn), humanize.Comma(int64(st.LandPatches)),
		st.LandSkipped, st.WindFields, st.Discarded, st.Aborted, throttle.Dropped(), idx.Stats())
}
