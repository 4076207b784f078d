package sequence

import (
	"sort"
	"sync"
)

// DefaultShards 默认分片数
const DefaultShards = 16

// Stats 单设备累计计数（仅用于观测，不参与分类）
type Stats struct {
	Frames     int64 `json:"frames"`
	Duplicates int64 `json:"duplicates"`
	Gaps       int64 `json:"gaps"`
	Missing    int64 `json:"missing"`
	OutOfOrder int64 `json:"out_of_order"`
}

// DeviceSnapshot 设备状态快照
type DeviceSnapshot struct {
	DeviceID uint16 `json:"device_id"`
	Highest  int    `json:"highest_seq"`
	Window   int    `json:"window"`
	Stats
}

type entry struct {
	state *DeviceState
	stats Stats
}

type shard struct {
	mu      sync.Mutex
	devices map[uint16]*entry
}

// Registry 设备状态注册表
// 按设备ID分片加锁：同一设备的更新串行，不同设备之间互不阻塞
type Registry struct {
	shards []*shard
	window int
}

// NewRegistry 创建注册表
func NewRegistry(shards, window int) *Registry {
	if shards <= 0 {
		shards = DefaultShards
	}
	if window <= 0 {
		window = DefaultWindow
	}
	r := &Registry{shards: make([]*shard, shards), window: window}
	for i := range r.shards {
		r.shards[i] = &shard{devices: make(map[uint16]*entry)}
	}
	return r
}

func (r *Registry) shardFor(deviceID uint16) *shard {
	return r.shards[int(deviceID)%len(r.shards)]
}

// Classify 对设备的一个序号进行在线分类，首次出现的设备自动建档
func (r *Registry) Classify(deviceID uint16, seq int) Outcome {
	s := r.shardFor(deviceID)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.devices[deviceID]
	if !ok {
		e = &entry{state: newDeviceState(r.window)}
		s.devices[deviceID] = e
	}
	out := e.state.Observe(seq)

	e.stats.Frames++
	switch {
	case out.Duplicate:
		e.stats.Duplicates++
	case out.Gap:
		e.stats.Gaps++
		e.stats.Missing += int64(out.GapSize)
	case out.OutOfOrder:
		e.stats.OutOfOrder++
	}
	return out
}

// Highest 返回设备最高序号；未知设备返回 NoSequence
func (r *Registry) Highest(deviceID uint16) int {
	s := r.shardFor(deviceID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.devices[deviceID]; ok {
		return e.state.highest
	}
	return NoSequence
}

// Len 已建档设备数
func (r *Registry) Len() int {
	n := 0
	for _, s := range r.shards {
		s.mu.Lock()
		n += len(s.devices)
		s.mu.Unlock()
	}
	return n
}

// Snapshot 所有设备状态快照，按设备ID排序
func (r *Registry) Snapshot() []DeviceSnapshot {
	var out []DeviceSnapshot
	for _, s := range r.shards {
		s.mu.Lock()
		for id, e := range s.devices {
			out = append(out, DeviceSnapshot{
				DeviceID: id,
				Highest:  e.state.highest,
				Window:   e.state.recent.Len(),
				Stats:    e.stats,
			})
		}
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}
