package main

import (
	"context"
	"log"
	"sync"
	"time"

	"gridlayer.ai/internal/client"
	"gridlayer.ai/internal/persistence/indexdb"
)

// snapshotter writes terrain snapshots on a ticker and once more at
// shutdown. Saves never overlap; they share one temp file.
type snapshotter struct {
	terrain  *client.Terrain
	path     string
	clientID string
	idx      *indexdb.SQLiteIndex
	logger   *log.Logger

	mu     sync.Mutex
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func (s *snapshotter) save() {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.terrain.SaveSnapshot(s.path, s.clientID)
	if err != nil {
		s.logger.Printf("level=error kind=snapshot_failed path=%s err=%v", s.path, err)
		return
	}
	sims := s.terrain.Registry().Len()
	s.idx.RecordSnapshot(s.path, sims, n)
	s.logger.Printf("snapshot path=%s sims=%d patches=%d", s.path, sims, n)
}

func (s *snapshotter) start(ctx context.Context, every time.Duration) {
	ctx, s.cancel = context.WithCancel(ctx)
	if every <= 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.save()
			}
		}
	}()
}

// finish stops the ticker, waits for an in-flight save and writes the final
// snapshot. The index must still be open.
func (s *snapshotter) finish() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.save()
}
