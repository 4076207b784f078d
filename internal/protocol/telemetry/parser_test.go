package telemetry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
	}{
		{
			name:  "INIT",
			frame: Frame{Version: Version, Type: MsgInit, DeviceID: 1, Seq: 0, SendTimestamp: 123456},
		},
		{
			name:  "HEARTBEAT",
			frame: Frame{Version: Version, Type: MsgHeartbeat, DeviceID: 0xFFFF, Seq: 0xFFFF, SendTimestamp: 0xFFFFFFFF},
		},
		{
			name:  "DATA 五个读数",
			frame: Frame{Version: Version, Type: MsgData, DeviceID: 12, Seq: 300, SendTimestamp: 0xFFFFFFF0, BatchSize: 5, Readings: []float32{20.5, 21.25, -3, 0, 29.99}},
		},
		{
			name:  "DATA 空批次",
			frame: Frame{Version: Version, Type: MsgData, DeviceID: 3, Seq: 9, SendTimestamp: 1},
		},
		{
			name:  "未知类型",
			frame: Frame{Version: Version, Type: MsgType(9), DeviceID: 4, Seq: 2, SendTimestamp: 77, BatchSize: 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Encode(&tt.frame)
			require.NoError(t, err)
			require.Len(t, b, HeaderSize+len(tt.frame.Readings)*ReadingSize)

			got, err := Decode(b)
			require.NoError(t, err)

			want := tt.frame
			want.Checksum = Checksum(b[:checksumOffset])
			assert.Equal(t, want, *got)
			assert.Equal(t, b[checksumOffset], got.Checksum)
		})
	}
}

func TestEncode_TooManyReadings(t *testing.T) {
	_, err := Encode(&Frame{Type: MsgData, Readings: make([]float32, MaxBatchSize+1)})
	assert.Error(t, err)
}

func TestDecode_TooShort(t *testing.T) {
	for n := 0; n < HeaderSize; n++ {
		_, err := Decode(make([]byte, n))
		assert.True(t, errors.Is(err, ErrTooShort), "len=%d err=%v", n, err)
	}
}

// 翻转帧头任意一位（校验字节除外）都必须导致校验失败
func TestDecode_ChecksumSensitivity(t *testing.T) {
	orig := BuildData(0x0102, 0x0304, 0x05060708, []float32{1, 2})

	for i := 0; i < checksumOffset; i++ {
		for bit := 0; bit < 8; bit++ {
			b := append([]byte(nil), orig...)
			b[i] ^= 1 << bit
			fr, err := Decode(b)
			assert.Nil(t, fr)
			assert.True(t, errors.Is(err, ErrChecksumMismatch), "byte=%d bit=%d err=%v", i, bit, err)
		}
	}
}

func TestDecode_UnsupportedVersion(t *testing.T) {
	b := BuildControl(MsgHeartbeat, 1, 1, 1)
	b[0] = 2
	b[checksumOffset] = Checksum(b[:checksumOffset])

	fr, err := Decode(b)
	assert.Nil(t, fr)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecode_PayloadTruncated(t *testing.T) {
	b := BuildData(5, 10, 1000, []float32{1, 2, 3, 4, 5})
	truncated := b[:len(b)-3]

	fr, err := Decode(truncated)
	require.ErrorIs(t, err, ErrPayloadTruncated)
	require.NotNil(t, fr, "帧头仍然有效")
	assert.Equal(t, uint16(5), fr.DeviceID)
	assert.Equal(t, uint16(10), fr.Seq)
	assert.Equal(t, uint8(5), fr.BatchSize)
	assert.Nil(t, fr.Readings)
}

func TestDecode_ControlFrameIgnoresPayload(t *testing.T) {
	b := BuildControl(MsgHeartbeat, 5, 10, 1000)
	b = append(b, 0xDE, 0xAD)

	fr, err := Decode(b)
	require.NoError(t, err)
	assert.True(t, fr.IsHeartbeat())
	assert.Nil(t, fr.Readings)
}

func TestMsgType_String(t *testing.T) {
	assert.Equal(t, "init", MsgInit.String())
	assert.Equal(t, "data", MsgData.String())
	assert.Equal(t, "heartbeat", MsgHeartbeat.String())
	assert.Equal(t, "unknown(7)", MsgType(7).String())
	assert.False(t, MsgType(7).Known())
}
