package indexdb

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PatchRecord is the indexed state of one patch.
type PatchRecord struct {
	PatchRow
	Updates int
}

func (s *SQLiteIndex) PatchCount(ctx context.Context, simID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM patches WHERE sim_id=?`, simID).Scan(&n)
	return n, err
}

// LatestPatch returns the indexed patch at (x, y), or ok=false when none
// has been recorded.
func (s *SQLiteIndex) LatestPatch(ctx context.Context, simID string, x, y int) (PatchRecord, bool, error) {
	var (
		r  PatchRecord
		at string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT sim_id,sim_name,x,y,patch_size,min_h,max_h,mean_h,updated_at,updates FROM patches WHERE sim_id=? AND x=? AND y=?`,
		simID, x, y,
	).Scan(&r.SimID, &r.SimName, &r.X, &r.Y, &r.PatchSize, &r.Min, &r.Max, &r.Mean, &at, &r.Updates)
	if errors.Is(err, sql.ErrNoRows) {
		return r, false, nil
	}
	if err != nil {
		return r, false, err
	}
	r.At, err = time.Parse(time.RFC3339Nano, at)
	return r, true, err
}

func (s *SQLiteIndex) WindMaxSpeed(ctx context.Context, simID string) (float64, bool, error) {
	var v float64
	err := s.db.QueryRowContext(ctx, `SELECT max_speed FROM winds WHERE sim_id=?`, simID).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	return v, err == nil, err
}

func (s *SQLiteIndex) SnapshotCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots`).Scan(&n)
	return n, err
}
