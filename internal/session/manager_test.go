package session

import (
	"sync"
	"testing"
	"time"
)

func TestManager_OnHeartbeat_IsOnline(t *testing.T) {
	m := New(2 * time.Second)
	now := time.Now()
	if m.IsOnline(1, now) {
		t.Fatalf("expected offline initially")
	}
	m.OnHeartbeat(1, now)
	if !m.IsOnline(1, now) {
		t.Fatalf("expected online after heartbeat")
	}
	if m.IsOnline(2, now) {
		t.Fatalf("other device should be offline")
	}
}

func TestManager_Timeout(t *testing.T) {
	m := New(500 * time.Millisecond)
	ts := time.Now()
	m.OnFrame(9, ts)
	if !m.IsOnline(9, ts.Add(400*time.Millisecond)) {
		t.Fatalf("should still be online before timeout")
	}
	if m.IsOnline(9, ts.Add(600*time.Millisecond)) {
		t.Fatalf("should be offline after timeout")
	}
}

func TestManager_OutOfOrderTimesKeepLatest(t *testing.T) {
	m := New(time.Second)
	ts := time.Now()
	m.OnFrame(3, ts)
	m.OnFrame(3, ts.Add(-5*time.Second))

	snap := m.Snapshot(ts)
	if len(snap) != 1 {
		t.Fatalf("expected 1 device, got %d", len(snap))
	}
	if !snap[0].LastSeen.Equal(ts) {
		t.Fatalf("last seen moved backwards: %v", snap[0].LastSeen)
	}
	if snap[0].Frames != 2 {
		t.Fatalf("expected 2 frames, got %d", snap[0].Frames)
	}
}

func TestManager_SnapshotAndCount(t *testing.T) {
	m := New(time.Second)
	now := time.Now()
	m.OnFrame(20, now)
	m.OnHeartbeat(10, now.Add(-3*time.Second))

	if got := m.OnlineCount(now); got != 1 {
		t.Fatalf("expected 1 online, got %d", got)
	}
	snap := m.Snapshot(now)
	if len(snap) != 2 || snap[0].DeviceID != 10 || snap[1].DeviceID != 20 {
		t.Fatalf("unexpected snapshot order: %+v", snap)
	}
	if snap[0].Online || !snap[1].Online {
		t.Fatalf("unexpected online flags: %+v", snap)
	}
	if snap[0].LastHeartbeat.IsZero() {
		t.Fatalf("heartbeat time not recorded")
	}
}

func TestNew_DefaultTimeout(t *testing.T) {
	if got := New(0).Timeout(); got != 30*time.Second {
		t.Fatalf("unexpected default timeout %s", got)
	}
}

// 并发刷新与查询（配合 -race 运行）
func TestManager_ConcurrentFrameAndQuery(t *testing.T) {
	m := New(time.Second)
	base := time.Now()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			m.OnFrame(1, base.Add(time.Duration(i)*time.Millisecond))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			_ = m.IsOnline(1, base.Add(time.Duration(i)*time.Millisecond))
		}
	}()
	wg.Wait()
	if !m.IsOnline(1, base.Add(999*time.Millisecond)) {
		t.Fatalf("device should be online after last frame")
	}
}
