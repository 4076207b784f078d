package csvsink

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/taoyao-code/telemetry-collector/internal/coremodel"
)

// 必需列；out_of_order_flag 与 cpu_ms_per_report 缺失时按零值处理（兼容旧格式）
var requiredColumns = []string{"device_id", "seq", "timestamp", "arrival_time"}

// RowError 无法解析而被跳过的数据行
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }

func (e RowError) Unwrap() error { return e.Err }

// Result 解析结果；进程崩溃留下的半行等坏行记入 Skipped，不影响其余记录
type Result struct {
	Records []coremodel.Record
	Skipped []RowError
}

// ReadFile 读取 CSV 记录文件，坏行跳过
func ReadFile(path string) ([]coremodel.Record, error) {
	res, err := DecodeFile(path)
	return res.Records, err
}

// DecodeFile 读取 CSV 记录文件并返回被跳过的行
func DecodeFile(path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()
	res, err := Decode(f)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", path, err)
	}
	return res, nil
}

// Read 按表头定位列并解析全部记录，坏行跳过
func Read(r io.Reader) ([]coremodel.Record, error) {
	res, err := Decode(r)
	return res.Records, err
}

// Decode 按表头定位列逐行解析；表头缺列或底层读失败返回错误，单行解析失败只跳过该行
func Decode(r io.Reader) (Result, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var res Result
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return res, nil
		}
		return res, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	for _, c := range requiredColumns {
		if _, ok := idx[c]; !ok {
			return res, fmt.Errorf("missing column %q", c)
		}
	}

	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return res, nil
		}
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			res.Skipped = append(res.Skipped, RowError{Line: pe.StartLine, Err: pe.Err})
			continue
		}
		if err != nil {
			return Result{}, err
		}
		rec, err := parseRow(row, idx)
		if err != nil {
			line, _ := cr.FieldPos(0)
			res.Skipped = append(res.Skipped, RowError{Line: line, Err: err})
			continue
		}
		res.Records = append(res.Records, rec)
	}
}

func parseRow(row []string, idx map[string]int) (coremodel.Record, error) {
	get := func(col string) string {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var rec coremodel.Record
	dev, err := strconv.ParseUint(get("device_id"), 10, 16)
	if err != nil {
		return rec, fmt.Errorf("device_id: %w", err)
	}
	seq, err := strconv.ParseUint(get("seq"), 10, 16)
	if err != nil {
		return rec, fmt.Errorf("seq: %w", err)
	}
	ts, err := strconv.ParseUint(get("timestamp"), 10, 32)
	if err != nil {
		return rec, fmt.Errorf("timestamp: %w", err)
	}
	us, err := parseArrival(get("arrival_time"))
	if err != nil {
		return rec, fmt.Errorf("arrival_time: %w", err)
	}

	rec.DeviceID = uint16(dev)
	rec.Seq = uint16(seq)
	rec.SendTimestamp = uint32(ts)
	rec.ArrivalTime = time.UnixMicro(us)
	if rec.Duplicate, err = parseFlag(get("duplicate_flag")); err != nil {
		return rec, fmt.Errorf("duplicate_flag: %w", err)
	}
	if rec.Gap, err = parseFlag(get("gap_flag")); err != nil {
		return rec, fmt.Errorf("gap_flag: %w", err)
	}
	if rec.OutOfOrder, err = parseFlag(get("out_of_order_flag")); err != nil {
		return rec, fmt.Errorf("out_of_order_flag: %w", err)
	}
	if v := get("cpu_ms_per_report"); v != "" {
		ms, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return rec, fmt.Errorf("cpu_ms_per_report: %w", err)
		}
		rec.ProcessingCost = time.Duration(ms * float64(time.Millisecond))
	}
	return rec, nil
}

func parseFlag(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}

// formatArrival 微秒时间戳格式化为 "秒.微秒"
func formatArrival(us int64) string {
	return fmt.Sprintf("%d.%06d", us/1e6, us%1e6)
}

// parseArrival 按整数拆分解析 "秒.小数"，避免浮点误差把毫秒边界算错
func parseArrival(v string) (int64, error) {
	secStr, fracStr, _ := strings.Cut(v, ".")
	sec, err := strconv.ParseInt(secStr, 10, 64)
	if err != nil {
		return 0, err
	}
	if len(fracStr) > 6 {
		fracStr = fracStr[:6]
	}
	var frac int64
	if fracStr != "" {
		frac, err = strconv.ParseInt(fracStr+strings.Repeat("0", 6-len(fracStr)), 10, 64)
		if err != nil {
			return 0, err
		}
	}
	return sec*1e6 + frac, nil
}
