package server

import (
	"sync/atomic"

	"arenasync/gate"
)

// RoomMetrics 记录房间运行期的关键指标（用于监控与调试）。
// 只有模拟循环写入，HTTP 侧通过 Snapshot 读取。
type RoomMetrics struct {
	TickCount     int64 // 统计的 Tick 次数
	TotalTickNs   int64 // Tick 累计耗时（纳秒）
	TickOverruns  int64 // 超过 Tick 间隔的次数
	Broadcasts    int64
	Keyframes     int64
	BytesSent     int64
	FramesDropped int64 // 发送队列满被丢弃的帧

	InputsAccepted  int64 // 直接进入生效槽
	InputsBuffered  int64 // 超过软上限进入回放缓冲
	InputsBackedOff int64 // 冷却期内或触发退避
	InputsLate      int64 // 乱序到达被丢弃
	InputsMalformed int64 // 结构不合法
	InputsThrottled int64 // 读协程帧速守卫丢弃
	ChanFull        int64 // 因通道满被丢弃的输入数

	BackoffEntries  int64 // 进入退避的次数
	ReplayPromoted  int64 // 回放缓冲补发
	StaleSubstitute int64 // 过期采样被缓冲采样替代
	StaleExpired    int64 // 过期采样被清空

	MovesBlocked int64 // 有输入但被障碍或冻结挡住的移动

	Tags      int64
	Collected int64
	IdleKicks int64

	Players int64
	Bots    int64
}

func (m *RoomMetrics) add(p *int64)      { atomic.AddInt64(p, 1) }
func (m *RoomMetrics) IncMalformed()     { m.add(&m.InputsMalformed) }
func (m *RoomMetrics) IncThrottled()     { m.add(&m.InputsThrottled) }
func (m *RoomMetrics) IncChanFull()      { m.add(&m.ChanFull) }
func (m *RoomMetrics) IncFramesDropped() { m.add(&m.FramesDropped) }
func (m *RoomMetrics) AddBytes(n int)    { atomic.AddInt64(&m.BytesSent, int64(n)) }

func (m *RoomMetrics) SetPopulation(humans, bots int) {
	atomic.StoreInt64(&m.Players, int64(humans))
	atomic.StoreInt64(&m.Bots, int64(bots))
}

func (m *RoomMetrics) AddTick(ns int64) {
	atomic.AddInt64(&m.TickCount, 1)
	atomic.AddInt64(&m.TotalTickNs, ns)
}

// RecordVerdict 统计 gate 的提交结果
func (m *RoomMetrics) RecordVerdict(v gate.Verdict) {
	switch v {
	case gate.Accepted:
		m.add(&m.InputsAccepted)
	case gate.Buffered:
		m.add(&m.InputsBuffered)
	case gate.BackedOff:
		m.add(&m.InputsBackedOff)
	case gate.Late:
		m.add(&m.InputsLate)
	case gate.Dropped:
		m.add(&m.InputsMalformed)
	}
}

// RecordSlot 统计每个 Tick 槽位的来源
func (m *RoomMetrics) RecordSlot(s gate.Slot) {
	switch s {
	case gate.SlotReplay:
		m.add(&m.ReplayPromoted)
	case gate.SlotSubstituted:
		m.add(&m.StaleSubstitute)
	case gate.SlotExpired:
		m.add(&m.StaleExpired)
	}
}

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *RoomMetrics) Snapshot() map[string]any {
	tick := atomic.LoadInt64(&m.TickCount)
	total := atomic.LoadInt64(&m.TotalTickNs)
	var avgMs float64
	if tick > 0 {
		avgMs = float64(total) / float64(tick) / 1e6
	}
	load := atomic.LoadInt64
	return map[string]any{
		"tick_count":        tick,
		"avg_tick_ms":       avgMs,
		"tick_overruns":     load(&m.TickOverruns),
		"broadcasts":        load(&m.Broadcasts),
		"keyframes":         load(&m.Keyframes),
		"bytes_sent":        load(&m.BytesSent),
		"frames_dropped":    load(&m.FramesDropped),
		"inputs_accepted":   load(&m.InputsAccepted),
		"inputs_buffered":   load(&m.InputsBuffered),
		"inputs_backed_off": load(&m.InputsBackedOff),
		"inputs_late":       load(&m.InputsLate),
		"inputs_malformed":  load(&m.InputsMalformed),
		"inputs_throttled":  load(&m.InputsThrottled),
		"chan_full":         load(&m.ChanFull),
		"backoff_entries":   load(&m.BackoffEntries),
		"replay_promoted":   load(&m.ReplayPromoted),
		"stale_substituted": load(&m.StaleSubstitute),
		"stale_expired":     load(&m.StaleExpired),
		"moves_blocked":     load(&m.MovesBlocked),
		"tags":              load(&m.Tags),
		"collected":         load(&m.Collected),
		"idle_kicks":        load(&m.IdleKicks),
		"players":           load(&m.Players),
		"bots":              load(&m.Bots),
	}
}
