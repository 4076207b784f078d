package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taoyao-code/telemetry-collector/internal/coremodel"
	"github.com/taoyao-code/telemetry-collector/internal/storage"
)

// Repository 分类记录的 PostgreSQL 存储
// 每次 Append 为一条自动提交的 INSERT，返回即已持久化
type Repository struct {
	Pool    *pgxpool.Pool
	TrialID string
}

// Append 插入一条分类记录
func (r *Repository) Append(ctx context.Context, rec *coremodel.Record) error {
	trial := rec.TrialID
	if trial == "" {
		trial = r.TrialID
	}
	const q = `INSERT INTO classified_records
               (trial_id, device_id, seq, msg_type, timestamp, arrival_time, duplicate_flag, gap_flag, gap_size, out_of_order_flag, cpu_ms_per_report)
               VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	_, err := r.Pool.Exec(ctx, q,
		trial, int32(rec.DeviceID), int32(rec.Seq), int16(rec.MsgType), int64(rec.SendTimestamp), rec.ArrivalTime.UnixMicro(),
		rec.Duplicate, rec.Gap, int32(rec.GapSize), rec.OutOfOrder, rec.CPUMillis())
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrSinkWrite, err)
	}
	return nil
}

// Load 按写入顺序读取试验记录
func (r *Repository) Load(ctx context.Context, trialID string) ([]coremodel.Record, error) {
	const q = `SELECT trial_id, device_id, seq, msg_type, timestamp, arrival_time, duplicate_flag, gap_flag, gap_size, out_of_order_flag, cpu_ms_per_report
               FROM classified_records WHERE trial_id = $1 ORDER BY id`
	rows, err := r.Pool.Query(ctx, q, trialID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []coremodel.Record
	for rows.Next() {
		var (
			rec          coremodel.Record
			dev, seq     int32
			msgType      int16
			ts, arriveUs int64
			gapSize      int32
			cpuMs        float64
		)
		if err := rows.Scan(&rec.TrialID, &dev, &seq, &msgType, &ts, &arriveUs, &rec.Duplicate, &rec.Gap, &gapSize, &rec.OutOfOrder, &cpuMs); err != nil {
			return nil, err
		}
		rec.DeviceID = uint16(dev)
		rec.Seq = uint16(seq)
		rec.MsgType = uint8(msgType)
		rec.SendTimestamp = uint32(ts)
		rec.ArrivalTime = time.UnixMicro(arriveUs)
		rec.GapSize = int(gapSize)
		rec.ProcessingCost = time.Duration(cpuMs * float64(time.Millisecond))
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Ping 探活
func (r *Repository) Ping(ctx context.Context) error {
	return r.Pool.Ping(ctx)
}

// Close 关闭连接池
func (r *Repository) Close() error {
	r.Pool.Close()
	return nil
}
