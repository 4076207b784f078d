package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/telemetry-collector/internal/coremodel"
)

func TestSink_AppendLoad(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "records.db"), "trial-a")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Ping(ctx))

	arrival := time.UnixMicro(1_700_000_000_000_001)
	require.NoError(t, s.Append(ctx, &coremodel.Record{DeviceID: 3, Seq: 1, SendTimestamp: 10, ArrivalTime: arrival, ProcessingCost: 250 * time.Microsecond}))
	require.NoError(t, s.Append(ctx, &coremodel.Record{DeviceID: 3, Seq: 4, SendTimestamp: 20, ArrivalTime: arrival, Gap: true, GapSize: 2}))
	require.NoError(t, s.Append(ctx, &coremodel.Record{TrialID: "trial-b", DeviceID: 9, Seq: 1, ArrivalTime: arrival, Duplicate: true}))

	got, err := s.Load(ctx, "trial-a")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "trial-a", got[0].TrialID)
	assert.Equal(t, uint16(3), got[0].DeviceID)
	assert.Equal(t, arrival.UnixMicro(), got[0].ArrivalTime.UnixMicro())
	assert.Equal(t, 250*time.Microsecond, got[0].ProcessingCost)
	assert.True(t, got[1].Gap)
	assert.Equal(t, 2, got[1].GapSize)

	other, err := s.Load(ctx, "trial-b")
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.True(t, other[0].Duplicate)

	trials, err := s.Trials(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"trial-a", "trial-b"}, trials)
}
