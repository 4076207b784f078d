package telemetry

// Checksum 计算校验和：所有字节累加，byte 溢出自动丢弃高位（即 mod 256）
func Checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}

// VerifyChecksum 校验 12 字节帧头
// 最后一个字节为校验和，其余 11 字节参与累加
func VerifyChecksum(header []byte) error {
	if len(header) < HeaderSize {
		return ErrTooShort
	}
	if Checksum(header[:checksumOffset]) != header[checksumOffset] {
		return ErrChecksumMismatch
	}
	return nil
}
