// Package gate 是服务端输入入口：按连接校验、限流并缓冲移动意图。
//
// 限流策略是"缓冲 + 指数退避"：超过软上限的采样进入有界回放缓冲，
// 超过硬上限会让连接进入冷却期，冷却时长随连续违规翻倍；冷却期内的
// 采样同样只缓冲不拒绝。所有时间都由调用方传入，便于测试。
package gate

import (
	"time"

	"arenasync/intent"
)

// ConnID 连接标识（与实体 ID 一一对应）
type ConnID string

// Config 限流参数
type Config struct {
	SoftLimit      int           // 窗口内可直接生效的采样数
	HardLimit      int           // 超过即触发退避
	Window         time.Duration // 滑动窗口长度
	ReplayCapacity int           // 回放缓冲容量，满时丢弃最旧
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	StaleAfter     time.Duration // 采样过期阈值
}

// DefaultConfig 默认参数：30/s 软上限，45/s 硬上限
func DefaultConfig() Config {
	return Config{
		SoftLimit:      30,
		HardLimit:      45,
		Window:         time.Second,
		ReplayCapacity: 16,
		BackoffBase:    50 * time.Millisecond,
		BackoffMax:     500 * time.Millisecond,
		StaleAfter:     3 * time.Second,
	}
}

// Verdict 提交结果；发送方永远看不到它，只用于统计
type Verdict uint8

const (
	Accepted  Verdict = iota // 进入生效槽
	Buffered                 // 超过软上限，进入回放缓冲
	BackedOff                // 触发或处于退避，进入回放缓冲
	Late                     // 采集时间早于当前槽内采样（乱序到达），丢弃
	Dropped                  // 结构不合法，静默丢弃
)

func (v Verdict) String() string {
	switch v {
	case Accepted:
		return "accepted"
	case Buffered:
		return "buffered"
	case BackedOff:
		return "backed_off"
	case Late:
		return "late"
	case Dropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Valid 采样本身合法（无论是否立即生效）
func (v Verdict) Valid() bool { return v != Dropped }

// Slot Drain 的来源
type Slot uint8

const (
	SlotEmpty       Slot = iota // 没有可用采样
	SlotHeld                    // 槽内采样仍然新鲜
	SlotReplay                  // 从回放缓冲补发
	SlotSubstituted             // 槽内采样过期，用缓冲中的采样替代
	SlotExpired                 // 槽内采样过期且无替代，槽被清空
)

// Usable 本 Tick 是否有采样可用
func (s Slot) Usable() bool {
	return s == SlotHeld || s == SlotReplay || s == SlotSubstituted
}

// Gate 每个连接一份状态，由模拟循环独占持有（不加锁）
type Gate struct {
	cfg   Config
	conns map[ConnID]*connState
}

// New 创建入口
func New(cfg Config) *Gate {
	return &Gate{cfg: cfg, conns: make(map[ConnID]*connState)}
}

// Config 当前参数
func (g *Gate) Config() Config { return g.cfg }

// SetLimits 热更新软/硬上限（管理接口使用）
func (g *Gate) SetLimits(soft, hard int) {
	if soft <= 0 || hard < soft {
		return
	}
	g.cfg.SoftLimit = soft
	g.cfg.HardLimit = hard
}

// Submit 接收一个采样
func (g *Gate) Submit(id ConnID, s intent.Sample, now time.Time) Verdict {
	if err := intent.Validate(s); err != nil {
		return Dropped
	}
	c := g.state(id)
	s.ReceivedAt = now

	n := c.hit(now, g.cfg)

	if c.inBackoff(now) {
		c.buffer(s, g.cfg.ReplayCapacity)
		return BackedOff
	}
	if n > g.cfg.HardLimit {
		c.escalate(now, g.cfg)
		c.buffer(s, g.cfg.ReplayCapacity)
		return BackedOff
	}
	if n > g.cfg.SoftLimit {
		c.buffer(s, g.cfg.ReplayCapacity)
		return Buffered
	}
	if c.held != nil && s.CapturedAt < c.held.CapturedAt {
		return Late
	}
	c.hold(s)
	return Accepted
}

// Drain 每个 Tick 每个连接调用一次，返回本 Tick 应用的采样
func (g *Gate) Drain(id ConnID, now time.Time) (intent.Sample, Slot) {
	c, ok := g.conns[id]
	if !ok {
		return intent.Sample{}, SlotEmpty
	}
	c.relax(now, g.cfg)
	c.expireReplay(now, g.cfg.StaleAfter)

	slot := SlotHeld
	// 退避结束且窗口有余量时，按到达顺序补发一个缓冲采样
	if len(c.replay) > 0 && !c.inBackoff(now) && c.count(now, g.cfg.Window) < g.cfg.SoftLimit {
		s := c.popFront()
		if c.held == nil || s.CapturedAt >= c.held.CapturedAt {
			c.hold(s)
			c.hits = append(c.hits, now)
			slot = SlotReplay
		}
	}

	if c.held == nil {
		return intent.Sample{}, SlotEmpty
	}
	if now.Sub(c.held.ReceivedAt) <= g.cfg.StaleAfter {
		return *c.held, slot
	}
	// 过期：优先用缓冲中最新的采样替代，否则清空槽
	if len(c.replay) > 0 {
		s := c.popBack()
		c.replay = c.replay[:0]
		c.hold(s)
		return s, SlotSubstituted
	}
	c.held = nil
	return intent.Sample{}, SlotExpired
}

// Forget 连接离开时清理所有状态（包括挂起的冷却计时）
func (g *Gate) Forget(id ConnID) {
	delete(g.conns, id)
}

// Backoff 当前退避级别（最近一次冷却时长），0 表示未受罚
func (g *Gate) Backoff(id ConnID) time.Duration {
	if c, ok := g.conns[id]; ok {
		return c.backoff
	}
	return 0
}

// InBackoff 连接此刻是否处于冷却期
func (g *Gate) InBackoff(id ConnID, now time.Time) bool {
	c, ok := g.conns[id]
	return ok && c.inBackoff(now)
}

// Restore 恢复之前记住的退避级别（重连不能清零惩罚），立即进入一次冷却
func (g *Gate) Restore(id ConnID, level time.Duration, now time.Time) {
	if level <= 0 {
		return
	}
	if level > g.cfg.BackoffMax {
		level = g.cfg.BackoffMax
	}
	c := g.state(id)
	c.backoff = level
	c.backoffUntil = now.Add(level)
}

// Pending 回放缓冲中的采样数
func (g *Gate) Pending(id ConnID) int {
	if c, ok := g.conns[id]; ok {
		return len(c.replay)
	}
	return 0
}

// Len 被跟踪的连接数
func (g *Gate) Len() int { return len(g.conns) }

func (g *Gate) state(id ConnID) *connState {
	c, ok := g.conns[id]
	if !ok {
		c = &connState{}
		g.conns[id] = c
	}
	return c
}
