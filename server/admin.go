package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Settings 可热更新的房间参数（毫秒字段便于手工 curl）
type Settings struct {
	SoftLimit     *int   `json:"softLimit,omitempty"`
	HardLimit     *int   `json:"hardLimit,omitempty"`
	KeyframeEvery *int   `json:"keyframeEvery,omitempty"`
	AIIntervalMs  *int64 `json:"aiIntervalMs,omitempty"`
	TagFreezeMs   *int64 `json:"tagFreezeMs,omitempty"`
	CloakMs       *int64 `json:"cloakMs,omitempty"`
	IdleTimeoutMs *int64 `json:"idleTimeoutMs,omitempty"`
}

func intp(v int) *int { return &v }

func msp(d time.Duration) *int64 {
	v := d.Milliseconds()
	return &v
}

// settings 读取当前参数（Tick 线程内调用）
func (r *Room) settings() Settings {
	g := r.gate.Config()
	return Settings{
		SoftLimit:     intp(g.SoftLimit),
		HardLimit:     intp(g.HardLimit),
		KeyframeEvery: intp(r.bcast.keyframeEvery),
		AIIntervalMs:  msp(r.tuning.Interval),
		TagFreezeMs:   msp(r.sim.TagFreeze),
		CloakMs:       msp(r.sim.CloakDuration),
		IdleTimeoutMs: msp(r.sim.IdleTimeout),
	}
}

// apply 更新部分字段（Tick 线程内调用）；不合法的限流组合被 gate 忽略
func (r *Room) apply(s Settings) {
	g := r.gate.Config()
	soft, hard := g.SoftLimit, g.HardLimit
	if s.SoftLimit != nil {
		soft = *s.SoftLimit
	}
	if s.HardLimit != nil {
		hard = *s.HardLimit
	}
	r.gate.SetLimits(soft, hard)
	if s.KeyframeEvery != nil && *s.KeyframeEvery > 0 {
		r.bcast.keyframeEvery = *s.KeyframeEvery
	}
	if s.AIIntervalMs != nil && *s.AIIntervalMs > 0 {
		r.tuning.Interval = time.Duration(*s.AIIntervalMs) * time.Millisecond
		for _, id := range r.order {
			if b := r.actors[id].brain; b != nil {
				b.SetTuning(r.tuning)
			}
		}
	}
	if s.TagFreezeMs != nil && *s.TagFreezeMs >= 0 {
		r.sim.TagFreeze = time.Duration(*s.TagFreezeMs) * time.Millisecond
	}
	if s.CloakMs != nil && *s.CloakMs >= 0 {
		r.sim.CloakDuration = time.Duration(*s.CloakMs) * time.Millisecond
	}
	if s.IdleTimeoutMs != nil && *s.IdleTimeoutMs >= 0 {
		r.sim.IdleTimeout = time.Duration(*s.IdleTimeoutMs) * time.Millisecond
	}
}

// HandleAdminConfig 提供房间配置的读取与更新（热更新基本规则）
// GET /admin/config?room=room-1  返回当前配置
// POST /admin/config?room=room-1 以 JSON 载荷更新部分字段
func (m *RoomManager) HandleAdminConfig(c *gin.Context) {
	roomID := c.DefaultQuery("room", DefaultRoom)
	room, err := m.GetOrCreateRoom(roomID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	var body Settings
	if c.Request.Method == http.MethodPost {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}

	var cur Settings
	err = room.Do(c.Request.Context(), func(r *Room) {
		if c.Request.Method == http.MethodPost {
			r.apply(body)
		}
		cur = r.settings()
	})
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if c.Request.Method == http.MethodPost {
		Log.Infow("config updated", "room", roomID,
			"softLimit", *cur.SoftLimit, "hardLimit", *cur.HardLimit,
			"keyframeEvery", *cur.KeyframeEvery, "aiIntervalMs", *cur.AIIntervalMs)
	}
	c.JSON(http.StatusOK, cur)
}

// HandleMetrics 输出指定房间的运行指标
// GET /metrics?room=room-1
func (m *RoomManager) HandleMetrics(c *gin.Context) {
	roomID := c.DefaultQuery("room", DefaultRoom)
	room, ok := m.Room(roomID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found", "rooms": m.RoomIDs()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"room":    roomID,
		"metrics": room.metrics.Snapshot(),
	})
}

// NewRouter 注册所有 HTTP 路由
func NewRouter(m *RoomManager) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), accessLog())
	r.GET("/ws", m.HandleWS)
	r.GET("/admin/config", m.HandleAdminConfig)
	r.POST("/admin/config", m.HandleAdminConfig)
	r.GET("/metrics", m.HandleMetrics)
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

// accessLog 用 zap 记录 HTTP 请求（WebSocket 升级也会记录一次）
func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		Log.Debugw("http", "method", c.Request.Method, "path", c.Request.URL.Path,
			"status", c.Writer.Status(), "elapsed", time.Since(start), "ip", c.ClientIP())
	}
}
