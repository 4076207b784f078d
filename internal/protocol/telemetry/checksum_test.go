package telemetry

import (
	"errors"
	"testing"
)

func TestChecksum(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected byte
	}{
		{
			name:     "空数据",
			data:     []byte{},
			expected: 0x00,
		},
		{
			name:     "单字节",
			data:     []byte{0xAA},
			expected: 0xAA,
		},
		{
			name:     "溢出回绕",
			data:     []byte{0xAA, 0xAA},
			expected: 0x54, // 0x154 截断
		},
		{
			name:     "帧头11字节",
			data:     []byte{0x01, 0x01, 0x00, 0x07, 0x00, 0x2A, 0x00, 0x00, 0x10, 0x00, 0x05},
			expected: byte(0x01 + 0x01 + 0x07 + 0x2A + 0x10 + 0x05),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Checksum(tt.data); got != tt.expected {
				t.Errorf("Checksum() = 0x%02X, expected 0x%02X", got, tt.expected)
			}
		})
	}
}

func TestVerifyChecksum(t *testing.T) {
	good := BuildControl(MsgHeartbeat, 7, 42, 0x1000)

	if err := VerifyChecksum(good); err != nil {
		t.Fatalf("VerifyChecksum() unexpected error: %v", err)
	}
	if err := VerifyChecksum(good[:5]); !errors.Is(err, ErrTooShort) {
		t.Errorf("VerifyChecksum(short) = %v, want ErrTooShort", err)
	}

	bad := append([]byte(nil), good...)
	bad[checksumOffset]++
	if err := VerifyChecksum(bad); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("VerifyChecksum(bad) = %v, want ErrChecksumMismatch", err)
	}
}
