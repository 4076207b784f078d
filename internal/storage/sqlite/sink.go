package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/taoyao-code/telemetry-collector/internal/coremodel"
	"github.com/taoyao-code/telemetry-collector/internal/storage"
)

//go:embed schema.sql
var schemaSQL string

// Sink 基于 SQLite 的记录存储；synchronous=FULL 保证每次提交落盘
type Sink struct {
	mu      sync.Mutex
	db      *sql.DB
	trialID string
}

// Open 打开（或创建）数据库并初始化表结构
func Open(path, trialID string) (*Sink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Sink{db: db, trialID: trialID}, nil
}

// DB 底层连接
func (s *Sink) DB() *sql.DB { return s.db }

// Append 插入一条记录；未指定 TrialID 时使用打开时的试验ID
func (s *Sink) Append(ctx context.Context, rec *coremodel.Record) error {
	trial := rec.TrialID
	if trial == "" {
		trial = s.trialID
	}
	const q = `INSERT INTO classified_records
		(trial_id, device_id, seq, msg_type, timestamp, arrival_time, duplicate_flag, gap_flag, gap_size, out_of_order_flag, cpu_ms_per_report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, q,
		trial, int(rec.DeviceID), int(rec.Seq), int(rec.MsgType), int64(rec.SendTimestamp), rec.ArrivalTime.UnixMicro(),
		rec.Duplicate, rec.Gap, rec.GapSize, rec.OutOfOrder, rec.CPUMillis())
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrSinkWrite, err)
	}
	return nil
}

// Load 按写入顺序读取试验记录
func (s *Sink) Load(ctx context.Context, trialID string) ([]coremodel.Record, error) {
	const q = `SELECT trial_id, device_id, seq, msg_type, timestamp, arrival_time, duplicate_flag, gap_flag, gap_size, out_of_order_flag, cpu_ms_per_report
		FROM classified_records WHERE trial_id = ? ORDER BY id`
	rows, err := s.db.QueryContext(ctx, q, trialID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []coremodel.Record
	for rows.Next() {
		var (
			r                 coremodel.Record
			dev, seq, msgType int
			ts, arrivalUs     int64
			cpuMs             float64
		)
		if err := rows.Scan(&r.TrialID, &dev, &seq, &msgType, &ts, &arrivalUs, &r.Duplicate, &r.Gap, &r.GapSize, &r.OutOfOrder, &cpuMs); err != nil {
			return nil, err
		}
		r.DeviceID = uint16(dev)
		r.Seq = uint16(seq)
		r.MsgType = uint8(msgType)
		r.SendTimestamp = uint32(ts)
		r.ArrivalTime = time.UnixMicro(arrivalUs)
		r.ProcessingCost = time.Duration(cpuMs * float64(time.Millisecond))
		out = append(out, r)
	}
	return out, rows.Err()
}

// Trials 列出库中已有的试验ID
func (s *Sink) Trials(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT trial_id FROM classified_records ORDER BY trial_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Ping 探活
func (s *Sink) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close 关闭数据库
func (s *Sink) Close() error { return s.db.Close() }
