package main

import (
	"bytes"
	"context"
	"log"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	persistlog "gridlayer.ai/internal/persistence/log"
	"gridlayer.ai/internal/persistence/snapshot"
	"gridlayer.ai/internal/protocol"
	"gridlayer.ai/internal/terrain/wire"
	"gridlayer.ai/internal/testutil"
)

func TestReplayRecording(t *testing.T) {
	dir := t.TempDir()
	rec := persistlog.NewRecorder(dir)
	sim := uuid.NewString()

	land := testutil.LandStream(16, testutil.Flat(0, 0, 1), testutil.Flat(5, 5, 2))
	msgs := []protocol.LayerDataMsg{
		{Seq: 1, SimID: sim, SimName: "Ahern", Layer: protocol.LayerLand, Data: land},
		{Seq: 2, SimID: sim, Layer: protocol.LayerWind, Data: testutil.WindStream(testutil.Flat(0, 0, 1), testutil.Flat(0, 0, 1))},
		{Seq: 3, SimID: sim, Layer: protocol.LayerLand, Data: land[:16]},
		{Seq: 4, SimID: "bogus", Layer: protocol.LayerLand, Data: land},
		{Seq: 5, SimID: sim, Layer: protocol.LayerWater, Data: testutil.HeaderOnly(16, uint8(wire.Water))},
	}
	for _, m := range msgs {
		require.NoError(t, rec.Record(m))
	}
	require.NoError(t, rec.Close())

	sources, err := collectSources([]string{dir})
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.False(t, sources[0].pcap)

	snapDir := t.TempDir()
	var logs bytes.Buffer
	res, err := replay(context.Background(), sources[0], 0, snapDir, log.New(&logs, "", 0))
	require.NoError(t, err)

	assert.Equal(t, 5, res.Messages)
	assert.Equal(t, 1, res.Sims)
	assert.Equal(t, uint64(3), res.Patches)
	assert.Equal(t, uint64(1), res.Wind)
	assert.Equal(t, uint64(1), res.Discarded)
	assert.Equal(t, 1, res.Truncated)
	assert.Equal(t, 1, res.BadEnvelope)
	assert.Contains(t, logs.String(), "kind=unimplemented_layer")

	snap, err := snapshot.ReadSnapshot(res.Snapshot)
	require.NoError(t, err)
	require.Len(t, snap.Sims, 1)
	assert.Len(t, snap.Sims[0].Patches, 2)
	assert.Len(t, snap.Sims[0].Wind, 256)
}

func TestSnapshotName(t *testing.T) {
	assert.Equal(t, "layers-2026-01-01-00.snap.zst", snapshotName(filepath.Join("x", "layers-2026-01-01-00.jsonl.zst")))
	assert.Equal(t, "mirror.snap.zst", snapshotName("mirror.pcap"))
}
