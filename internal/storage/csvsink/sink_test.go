package csvsink

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/telemetry-collector/internal/coremodel"
)

func TestSink_AppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trial.csv")
	s, err := Open(path, true)
	require.NoError(t, err)

	arrival := time.UnixMicro(1_700_000_000_123_456)
	recs := []coremodel.Record{
		{DeviceID: 1, Seq: 0, SendTimestamp: 100, ArrivalTime: arrival, ProcessingCost: 1500 * time.Microsecond},
		{DeviceID: 1, Seq: 5, SendTimestamp: 200, ArrivalTime: arrival.Add(time.Second), Gap: true, GapSize: 4},
		{DeviceID: 1, Seq: 5, SendTimestamp: 200, ArrivalTime: arrival.Add(2 * time.Second), Duplicate: true},
		{DeviceID: 2, Seq: 3, SendTimestamp: 0xFFFFFFFF, ArrivalTime: arrival, OutOfOrder: true},
	}
	for i := range recs {
		require.NoError(t, s.Append(context.Background(), &recs[i]))
	}

	// 写入即可读取，无需关闭
	got, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, got, len(recs))
	for i := range recs {
		assert.Equal(t, recs[i].DeviceID, got[i].DeviceID)
		assert.Equal(t, recs[i].Seq, got[i].Seq)
		assert.Equal(t, recs[i].SendTimestamp, got[i].SendTimestamp)
		assert.Equal(t, recs[i].ArrivalTime.UnixMicro(), got[i].ArrivalTime.UnixMicro())
		assert.Equal(t, recs[i].Duplicate, got[i].Duplicate)
		assert.Equal(t, recs[i].Gap, got[i].Gap)
		assert.Equal(t, recs[i].OutOfOrder, got[i].OutOfOrder)
		assert.Equal(t, recs[i].ProcessingCost, got[i].ProcessingCost)
	}

	loaded, err := s.Load(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, loaded, len(recs))
	require.NoError(t, s.Close())
}

func TestSink_HeaderWrittenOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trial.csv")
	for i := 0; i < 2; i++ {
		s, err := Open(path, false)
		require.NoError(t, err)
		require.NoError(t, s.Append(context.Background(), &coremodel.Record{DeviceID: 1, Seq: uint16(i), ArrivalTime: time.Now()}))
		require.NoError(t, s.Close())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(coremodel.Columns, ","), lines[0])
}

func TestRead_LegacyColumns(t *testing.T) {
	in := "device_id, seq, timestamp, arrival_time, duplicate_flag, gap_flag\n" +
		"1,0,1700000000,1700000000.5,0,0\n" +
		"1,2,1700000002,1700000002.25,0,1\n"

	got, err := Read(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1_700_000_000_500_000), got[0].ArrivalTime.UnixMicro())
	assert.True(t, got[1].Gap)
	assert.False(t, got[1].OutOfOrder)
	assert.Zero(t, got[1].ProcessingCost)
}

func TestRead_Errors(t *testing.T) {
	_, err := Read(strings.NewReader("device_id,seq\n1,2\n"))
	assert.Error(t, err, "缺少必需列")

	got, err := Read(strings.NewReader(""))
	assert.NoError(t, err)
	assert.Empty(t, got)
}

func TestDecode_SkipsBadRows(t *testing.T) {
	header := strings.Join(coremodel.Columns, ",") + "\n"
	good := "1,0,1700000000,1700000000.5,0,0,0,0.01\n" +
		"1,1,1700000001,1700000001.5,0,0,0,0.01\n"

	tests := []struct {
		name     string
		in       string
		wantRecs int
		wantLine int
	}{
		{"崩溃留下的半行", header + good + "1,2,12", 2, 4},
		{"中间行 device_id 非数字", header + "x,1,1,1.0,0,0,0,0\n" + good, 2, 2},
		{"引号未闭合", header + good + "1,\"2,3\n", 2, 4},
		{"标志列非法", header + "1,5,1,1.0,maybe,0,0,0\n" + good, 2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Decode(strings.NewReader(tt.in))
			require.NoError(t, err)
			assert.Len(t, res.Records, tt.wantRecs)
			require.Len(t, res.Skipped, 1)
			assert.Equal(t, tt.wantLine, res.Skipped[0].Line)
			assert.Contains(t, res.Skipped[0].Error(), "line")
		})
	}
}

func TestRead_TornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trial.csv")
	s, err := Open(path, false)
	require.NoError(t, err)
	base := time.UnixMicro(1_700_000_000_000_000)
	for i := 0; i < 2; i++ {
		require.NoError(t, s.Append(context.Background(), &coremodel.Record{
			DeviceID: 1, Seq: uint16(i), SendTimestamp: uint32(i), ArrivalTime: base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, s.Close())

	// 模拟写到一半时进程被杀
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("1,2,12")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	recs, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, uint16(1), recs[1].Seq)

	res, err := DecodeFile(path)
	require.NoError(t, err)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, 4, res.Skipped[0].Line)
}

func TestParseArrival(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"12", 12_000_000},
		{"12.5", 12_500_000},
		{"12.000001", 12_000_001},
		{"12.1234567", 12_123_456},
	}
	for _, tt := range tests {
		got, err := parseArrival(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.want, mustParse(t, formatArrival(tt.want)))
	}
}

func mustParse(t *testing.T, s string) int64 {
	t.Helper()
	v, err := parseArrival(s)
	require.NoError(t, err)
	return v
}
