package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"gridlayer.ai/internal/sim/simulator"
	"gridlayer.ai/internal/terrain/layer"
)

// SQLiteIndex is a queryable side index of received terrain. Writes are
// queued and applied by one goroutine in batched transactions; when the
// queue is full they are dropped and counted.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropPatch    atomic.Uint64
	dropWind     atomic.Uint64
	dropSnapshot atomic.Uint64
	writeErrors  atomic.Uint64
}

type reqKind int

const (
	reqPatch reqKind = iota + 1
	reqWind
	reqSnapshot
	reqSync
)

type req struct {
	kind reqKind

	patch    PatchRow
	wind     windRow
	snapshot snapshotRow
	done     chan struct{}
}

// PatchRow summarizes one decoded land patch.
type PatchRow struct {
	SimID     string
	SimName   string
	X, Y      int
	PatchSize int
	Min       float64
	Max       float64
	Mean      float64
	At        time.Time
}

type windRow struct {
	SimID    string
	MaxSpeed float64
	At       time.Time
}

type snapshotRow struct {
	Path    string
	Sims    int
	Patches int
	At      time.Time
}

type Stats struct {
	QueueDepth        int
	QueueCapacity     int
	DropPatchTotal    uint64
	DropWindTotal     uint64
	DropSnapshotTotal uint64
	WriteErrorTotal   uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// A full region resend is 256 patches per simulator; leave room for bursts.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the append/upsert workload; NORMAL is enough for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
		`CREATE TABLE IF NOT EXISTS patches (
			sim_id TEXT NOT NULL,
			sim_name TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			patch_size INTEGER NOT NULL,
			min_h REAL NOT NULL,
			max_h REAL NOT NULL,
			mean_h REAL NOT NULL,
			updated_at TEXT NOT NULL,
			updates INTEGER NOT NULL DEFAULT 1,
			PRIMARY KEY (sim_id, x, y)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_patches_updated ON patches(updated_at);`,
		`CREATE TABLE IF NOT EXISTS winds (
			sim_id TEXT PRIMARY KEY,
			max_speed REAL NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			path TEXT NOT NULL,
			sims INTEGER NOT NULL,
			patches INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) RecordPatch(r PatchRow) {
	if s == nil || s.closed.Load() {
		return
	}
	if r.At.IsZero() {
		r.At = time.Now().UTC()
	}
	select {
	case s.ch <- req{kind: reqPatch, patch: r}:
	default:
		// Drop if the indexer falls behind; the simulator cache stays authoritative.
		s.dropPatch.Add(1)
	}
}

// RecordWind stores the strongest wind cell seen for a simulator.
func (s *SQLiteIndex) RecordWind(sim *simulator.Simulator, field simulator.WindField) {
	if s == nil || s.closed.Load() || sim == nil {
		return
	}
	r := windRow{SimID: sim.ID.String(), MaxSpeed: simulator.MaxWindSpeed(field), At: time.Now().UTC()}
	select {
	case s.ch <- req{kind: reqWind, wind: r}:
	default:
		s.dropWind.Add(1)
	}
}

func (s *SQLiteIndex) RecordSnapshot(path string, sims, patches int) {
	if s == nil || s.closed.Load() || path == "" {
		return
	}
	r := snapshotRow{Path: path, Sims: sims, Patches: patches, At: time.Now().UTC()}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

// Subscriber returns a land event handler that indexes every patch.
func (s *SQLiteIndex) Subscriber() func(layer.LandPatchEvent) {
	return func(ev layer.LandPatchEvent) {
		st := simulator.StatsOf(ev.Heights)
		r := PatchRow{
			X:         ev.X,
			Y:         ev.Y,
			PatchSize: ev.PatchSize,
			Min:       st.Min,
			Max:       st.Max,
			Mean:      st.Mean,
		}
		if ev.Origin != nil {
			r.SimID = ev.Origin.ID.String()
			r.SimName = ev.Origin.Name
		}
		s.RecordPatch(r)
	}
}

// Sync blocks until every queued write is committed or ctx is done.
func (s *SQLiteIndex) Sync(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqSync, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropPatchTotal:    s.dropPatch.Load(),
		DropWindTotal:     s.dropWind.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
		WriteErrorTotal:   s.writeErrors.Load(),
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	upsertPatch, _ := s.db.Prepare(`INSERT INTO patches(sim_id,sim_name,x,y,patch_size,min_h,max_h,mean_h,updated_at,updates)
		VALUES(?,?,?,?,?,?,?,?,?,1)
		ON CONFLICT(sim_id,x,y) DO UPDATE SET
			sim_name=excluded.sim_name,
			patch_size=excluded.patch_size,
			min_h=excluded.min_h,
			max_h=excluded.max_h,
			mean_h=excluded.mean_h,
			updated_at=excluded.updated_at,
			updates=patches.updates+1`)
	upsertWind, _ := s.db.Prepare(`INSERT OR REPLACE INTO winds(sim_id,max_speed,updated_at) VALUES(?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT INTO snapshots(path,sims,patches,recorded_at) VALUES(?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{upsertPatch, upsertWind, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 512
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.writeErrors.Add(1)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		s.writeErrors.Add(1)
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil || tx == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return
		}
		opCount++
	}

	for r := range s.ch {
		if r.kind == reqSync {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			s.writeErrors.Add(1)
			continue
		}
		switch r.kind {
		case reqPatch:
			p := r.patch
			exec(upsertPatch, p.SimID, p.SimName, p.X, p.Y, p.PatchSize, p.Min, p.Max, p.Mean, p.At.Format(time.RFC3339Nano))
		case reqWind:
			exec(upsertWind, r.wind.SimID, r.wind.MaxSpeed, r.wind.At.Format(time.RFC3339Nano))
		case reqSnapshot:
			exec(insertSnapshot, r.snapshot.Path, r.snapshot.Sims, r.snapshot.Patches, r.snapshot.At.Format(time.RFC3339Nano))
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}
	commit()
}
