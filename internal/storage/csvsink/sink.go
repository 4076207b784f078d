package csvsink

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/taoyao-code/telemetry-collector/internal/coremodel"
	"github.com/taoyao-code/telemetry-collector/internal/storage"
)

// Sink CSV 追加写入，每条记录写完即 Flush（可选 fsync）
type Sink struct {
	mu    sync.Mutex
	path  string
	f     *os.File
	w     *csv.Writer
	fsync bool
}

// Open 以追加模式打开 CSV 文件；新文件或空文件先写表头
func Open(path string, fsync bool) (*Sink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open csv sink: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat csv sink: %w", err)
	}

	s := &Sink{path: path, f: f, w: csv.NewWriter(f), fsync: fsync}
	if st.Size() == 0 {
		if err := s.writeRow(coremodel.Columns); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return s, nil
}

// Path 文件路径
func (s *Sink) Path() string { return s.path }

// Append 写入一行
func (s *Sink) Append(_ context.Context, rec *coremodel.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeRow(formatRow(rec))
}

func (s *Sink) writeRow(row []string) error {
	if err := s.w.Write(row); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrSinkWrite, err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrSinkWrite, err)
	}
	if s.fsync {
		if err := s.f.Sync(); err != nil {
			return fmt.Errorf("%w: fsync: %v", storage.ErrSinkWrite, err)
		}
	}
	return nil
}

// Load 读取本文件全部记录（文件即一次试验，trialID 忽略）
func (s *Sink) Load(_ context.Context, _ string) ([]coremodel.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ReadFile(s.path)
}

// Ping 文件仍可写
func (s *Sink) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.f.Stat()
	return err
}

// Close 关闭文件
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Flush()
	return s.f.Close()
}

func formatRow(r *coremodel.Record) []string {
	return []string{
		strconv.Itoa(int(r.DeviceID)),
		strconv.Itoa(int(r.Seq)),
		strconv.FormatUint(uint64(r.SendTimestamp), 10),
		formatArrival(r.ArrivalTime.UnixMicro()),
		flag(r.Duplicate),
		flag(r.Gap),
		flag(r.OutOfOrder),
		strconv.FormatFloat(r.CPUMillis(), 'f', 3, 64),
	}
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
