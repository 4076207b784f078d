package session

import (
	"sort"
	"sync"
	"time"
)

// Device 设备在线快照
type Device struct {
	DeviceID      uint16    `json:"device_id"`
	FirstSeen     time.Time `json:"first_seen"`
	LastSeen      time.Time `json:"last_seen"`
	LastHeartbeat time.Time `json:"last_heartbeat,omitempty"`
	Frames        uint64    `json:"frames"`
	Online        bool      `json:"online"`
}

type entry struct {
	first, last, heartbeat time.Time
	frames                 uint64
}

// Manager 记录设备最近一次收到帧（含心跳）的时间，判断是否在线
// 在线判定只用于运维展示，不参与序号分类
type Manager struct {
	mu      sync.RWMutex
	devices map[uint16]*entry
	timeout time.Duration
}

func New(timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Manager{devices: make(map[uint16]*entry), timeout: timeout}
}

// Timeout 在线超时
func (m *Manager) Timeout() time.Duration { return m.timeout }

// OnFrame 任意合法帧都刷新最近活动时间
func (m *Manager) OnFrame(dev uint16, t time.Time) {
	m.mu.Lock()
	e := m.touch(dev, t)
	e.frames++
	m.mu.Unlock()
}

// OnHeartbeat 更新设备最近心跳时间
func (m *Manager) OnHeartbeat(dev uint16, t time.Time) {
	m.mu.Lock()
	e := m.touch(dev, t)
	if t.After(e.heartbeat) {
		e.heartbeat = t
	}
	m.mu.Unlock()
}

func (m *Manager) touch(dev uint16, t time.Time) *entry {
	e, ok := m.devices[dev]
	if !ok {
		e = &entry{first: t, last: t}
		m.devices[dev] = e
		return e
	}
	if t.After(e.last) {
		e.last = t
	}
	return e
}

// IsOnline 判断设备是否在线
func (m *Manager) IsOnline(dev uint16, now time.Time) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.devices[dev]
	if !ok {
		return false
	}
	return now.Sub(e.last) <= m.timeout
}

// OnlineCount 返回当前在线设备数量
func (m *Manager) OnlineCount(now time.Time) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, e := range m.devices {
		if now.Sub(e.last) <= m.timeout {
			count++
		}
	}
	return count
}

// Snapshot 按设备号排序的全部设备状态
func (m *Manager) Snapshot(now time.Time) []Device {
	m.mu.RLock()
	out := make([]Device, 0, len(m.devices))
	for id, e := range m.devices {
		out = append(out, Device{
			DeviceID:      id,
			FirstSeen:     e.first,
			LastSeen:      e.last,
			LastHeartbeat: e.heartbeat,
			Frames:        e.frames,
			Online:        now.Sub(e.last) <= m.timeout,
		})
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}
