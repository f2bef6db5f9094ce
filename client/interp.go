package client

import (
	"time"

	"arenasync/game"
)

// InterpConfig 远端实体插值参数
type InterpConfig struct {
	Capacity         int // 每个实体保留的历史样本数
	MinDelay         time.Duration
	MaxDelay         time.Duration
	ExpectedInterval time.Duration
	JitterGain       float64 // 延迟 = 预期间隔 + JitterGain × 抖动
	Smoothing        float64 // 延迟调整的平滑系数 (0,1]
	MaxExtrapolation time.Duration
	ArrivalWindow    int
}

// DefaultInterpConfig 默认参数
func DefaultInterpConfig() InterpConfig {
	return InterpConfig{
		Capacity:         32,
		MinDelay:         100 * time.Millisecond,
		MaxDelay:         500 * time.Millisecond,
		ExpectedInterval: time.Second / game.BroadcastHz,
		JitterGain:       4,
		Smoothing:        0.2,
		MaxExtrapolation: 100 * time.Millisecond,
		ArrivalWindow:    16,
	}
}

type timedPos struct {
	at  time.Time
	pos game.Vec2
}

// Interpolator 远端实体按"当前时间 - 渲染延迟"的时刻在相邻快照之间线性插值。
// 渲染延迟根据到达抖动自适应，范围 [MinDelay, MaxDelay]。
type Interpolator struct {
	cfg      InterpConfig
	delay    time.Duration
	arrivals arrivalTracker
	history  map[game.EntityID][]timedPos
}

// NewInterpolator 创建插值器，初始延迟为 MinDelay
func NewInterpolator(cfg InterpConfig) *Interpolator {
	if cfg.Capacity < 2 {
		cfg.Capacity = 2
	}
	return &Interpolator{
		cfg:      cfg,
		delay:    cfg.MinDelay,
		arrivals: newArrivalTracker(cfg.ArrivalWindow),
		history:  make(map[game.EntityID][]timedPos),
	}
}

// Delay 当前渲染延迟
func (ip *Interpolator) Delay() time.Duration { return ip.delay }

// ObserveArrival 每收到一个快照调用一次，按抖动调整渲染延迟
func (ip *Interpolator) ObserveArrival(now time.Time) {
	ip.arrivals.observe(now)
	if ip.arrivals.count() < 2 {
		return
	}
	want := ip.cfg.ExpectedInterval + time.Duration(ip.cfg.JitterGain*float64(ip.arrivals.jitter()))
	if want < ip.cfg.MinDelay {
		want = ip.cfg.MinDelay
	}
	if want > ip.cfg.MaxDelay {
		want = ip.cfg.MaxDelay
	}
	k := ip.cfg.Smoothing
	if k <= 0 || k > 1 {
		k = 1
	}
	ip.delay += time.Duration(k * float64(want-ip.delay))
	if ip.delay < ip.cfg.MinDelay {
		ip.delay = ip.cfg.MinDelay
	}
	if ip.delay > ip.cfg.MaxDelay {
		ip.delay = ip.cfg.MaxDelay
	}
}

// Push 记录实体在 at 时刻的权威位置。早于最新样本的数据被丢弃。
func (ip *Interpolator) Push(id game.EntityID, pos game.Vec2, at time.Time) {
	h := ip.history[id]
	if n := len(h); n > 0 && !at.After(h[n-1].at) {
		return
	}
	h = append(h, timedPos{at: at, pos: pos})
	if len(h) > ip.cfg.Capacity {
		h = append(h[:0], h[len(h)-ip.cfg.Capacity:]...)
	}
	ip.history[id] = h
}

// Position 以当前渲染延迟计算实体在 now 的显示位置
func (ip *Interpolator) Position(id game.EntityID, now time.Time) (game.Vec2, bool) {
	return ip.PositionAt(id, now.Add(-ip.delay))
}

// PositionAt 实体在渲染时刻 at 的位置：
// 早于最旧样本时返回最旧样本，介于两样本之间线性插值，
// 晚于最新样本时沿最后两点外推，外推时长不超过 MaxExtrapolation。
func (ip *Interpolator) PositionAt(id game.EntityID, at time.Time) (game.Vec2, bool) {
	h := ip.history[id]
	switch len(h) {
	case 0:
		return game.Vec2{}, false
	case 1:
		return h[0].pos, true
	}
	if !at.After(h[0].at) {
		return h[0].pos, true
	}
	last := h[len(h)-1]
	if !at.Before(last.at) {
		prev := h[len(h)-2]
		ahead := at.Sub(last.at)
		if ahead > ip.cfg.MaxExtrapolation {
			ahead = ip.cfg.MaxExtrapolation
		}
		span := last.at.Sub(prev.at)
		if ahead == 0 || span <= 0 {
			return last.pos, true
		}
		vel := last.pos.Sub(prev.pos).Scale(1 / span.Seconds())
		return last.pos.Add(vel.Scale(ahead.Seconds())), true
	}
	for i := len(h) - 1; i > 0; i-- {
		a, b := h[i-1], h[i]
		if at.Before(a.at) {
			continue
		}
		t := float64(at.Sub(a.at)) / float64(b.at.Sub(a.at))
		return game.Lerp(a.pos, b.pos, t), true
	}
	return h[0].pos, true
}

// Drop 实体离开时清除历史
func (ip *Interpolator) Drop(id game.EntityID) { delete(ip.history, id) }

// Len 实体的历史样本数
func (ip *Interpolator) Len(id game.EntityID) int { return len(ip.history[id]) }

// Tracked 正在插值的实体数
func (ip *Interpolator) Tracked() int { return len(ip.history) }

// Velocity 根据最后两个样本估计的速度（每秒）
func (ip *Interpolator) Velocity(id game.EntityID) game.Vec2 {
	h := ip.history[id]
	if len(h) < 2 {
		return game.Vec2{}
	}
	a, b := h[len(h)-2], h[len(h)-1]
	return b.pos.Sub(a.pos).Scale(1 / b.at.Sub(a.at).Seconds())
}
