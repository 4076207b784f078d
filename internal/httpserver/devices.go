package httpserver

import (
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/taoyao-code/telemetry-collector/internal/sequence"
	"github.com/taoyao-code/telemetry-collector/internal/session"
)

// DeviceView 设备在线状态与在线分类计数
type DeviceView struct {
	DeviceID      uint16     `json:"device_id"`
	Online        bool       `json:"online"`
	LastSeen      *time.Time `json:"last_seen,omitempty"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`
	HighestSeq    int        `json:"highest_seq"`
	sequence.Stats
}

// DeviceAPI 只读设备查询接口
type DeviceAPI struct {
	Sessions *session.Manager
	Registry *sequence.Registry
	Stats    func() any // 接收计数，可为空
	now      func() time.Time
}

// Register 挂载 /api 路由
func (a *DeviceAPI) Register(r gin.IRouter) {
	g := r.Group("/api")
	g.GET("/devices", a.listDevices)
	g.GET("/devices/:id", a.getDevice)
	g.GET("/stats", a.stats)
}

func (a *DeviceAPI) clock() time.Time {
	if a.now != nil {
		return a.now()
	}
	return time.Now()
}

func (a *DeviceAPI) views() []DeviceView {
	now := a.clock()
	byID := make(map[uint16]*DeviceView)
	var order []uint16
	get := func(id uint16) *DeviceView {
		v, ok := byID[id]
		if !ok {
			v = &DeviceView{DeviceID: id, HighestSeq: sequence.NoSequence}
			byID[id] = v
			order = append(order, id)
		}
		return v
	}
	if a.Registry != nil {
		for _, s := range a.Registry.Snapshot() {
			v := get(s.DeviceID)
			v.HighestSeq = s.Highest
			v.Stats = s.Stats
		}
	}
	if a.Sessions != nil {
		for _, d := range a.Sessions.Snapshot(now) {
			v := get(d.DeviceID)
			v.Online = d.Online
			last := d.LastSeen
			v.LastSeen = &last
			if !d.LastHeartbeat.IsZero() {
				hb := d.LastHeartbeat
				v.LastHeartbeat = &hb
			}
		}
	}

	out := make([]DeviceView, 0, len(order))
	slices.Sort(order)
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out
}

func (a *DeviceAPI) listDevices(c *gin.Context) {
	devices := a.views()
	if c.Query("online") == "true" {
		filtered := devices[:0]
		for _, d := range devices {
			if d.Online {
				filtered = append(filtered, d)
			}
		}
		devices = filtered
	}
	c.JSON(http.StatusOK, gin.H{"total": len(devices), "devices": devices})
}

func (a *DeviceAPI) getDevice(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 16)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid device id"})
		return
	}
	for _, d := range a.views() {
		if d.DeviceID == uint16(id) {
			c.JSON(http.StatusOK, d)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
}

func (a *DeviceAPI) stats(c *gin.Context) {
	resp := gin.H{}
	if a.Registry != nil {
		resp["devices_tracked"] = a.Registry.Len()
	}
	if a.Sessions != nil {
		resp["devices_online"] = a.Sessions.OnlineCount(a.clock())
	}
	if a.Stats != nil {
		resp["ingest"] = a.Stats()
	}
	c.JSON(http.StatusOK, resp)
}
