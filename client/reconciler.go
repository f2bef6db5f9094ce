package client

import (
	"math"
	"time"

	"arenasync/game"
)

// ReconcilerConfig 预测纠正参数
type ReconcilerConfig struct {
	BaseThreshold float64 // 基础纠正阈值（距离单位）
	MaxThreshold  float64

	ExpectedInterval time.Duration // 正常的快照间隔
	SlowFactor       float64       // 平均间隔超出预期时阈值的放大系数
	JitterFactor     float64       // 抖动 / 预期间隔 的放大系数
	StreakFactor     float64       // 每次连续纠正的放大系数
	ArrivalWindow    int

	CorrectionDuration time.Duration

	BreakerLimit    int           // 时间跨度内的连续纠正上限
	BreakerSpan     time.Duration
	BreakerCooldown time.Duration // 熔断后禁止纠正的时长
	QuietReset      time.Duration // 无纠正多久后清零连续计数
}

// DefaultReconcilerConfig 默认参数
func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		BaseThreshold:      12,
		MaxThreshold:       48,
		ExpectedInterval:   time.Second / game.BroadcastHz,
		SlowFactor:         0.5,
		JitterFactor:       1.0,
		StreakFactor:       0.25,
		ArrivalWindow:      8,
		CorrectionDuration: 150 * time.Millisecond,
		BreakerLimit:       3,
		BreakerSpan:        time.Second,
		BreakerCooldown:    2 * time.Second,
		QuietReset:         1500 * time.Millisecond,
	}
}

// Authoritative 快照中本地实体的权威状态
type Authoritative struct {
	Pos         game.Vec2
	Chaser      bool
	Immobilized bool
}

// Reconciler 本地实体的预测与纠正。
// 同一时刻只有一个纠正在进行；纠正进行期间输入不推进预测，两者互斥。
type Reconciler struct {
	cfg   ReconcilerConfig
	self  game.Entity
	world *game.World

	tween    *Tween
	arrivals arrivalTracker

	streak         int
	streakStart    time.Time
	lastCorrection time.Time
	cooldownUntil  time.Time

	corrections int
	trips       int
}

// NewReconciler self 为本地实体的初始镜像，world 与服务端使用同一份边界和障碍
func NewReconciler(cfg ReconcilerConfig, self game.Entity, world *game.World) *Reconciler {
	return &Reconciler{
		cfg:      cfg,
		self:     self,
		world:    world,
		arrivals: newArrivalTracker(cfg.ArrivalWindow),
	}
}

// Position 当前预测位置
func (r *Reconciler) Position() game.Vec2 { return r.self.Pos }

// Entity 本地实体镜像
func (r *Reconciler) Entity() game.Entity { return r.self }

// Correcting 是否有纠正在进行
func (r *Reconciler) Correcting() bool { return r.tween != nil }

// CoolingDown 熔断冷却中
func (r *Reconciler) CoolingDown(now time.Time) bool { return now.Before(r.cooldownUntil) }

// Corrections 已发起的纠正次数
func (r *Reconciler) Corrections() int { return r.corrections }

// BreakerTrips 熔断次数
func (r *Reconciler) BreakerTrips() int { return r.trips }

// Predict 本地输入立即按服务端同一规则推进。纠正进行中时只推进纠正，输入不生效。
func (r *Reconciler) Predict(in game.Vec2, elapsed time.Duration, now time.Time) game.Vec2 {
	if r.tween != nil {
		return r.Frame(now)
	}
	res := game.Step(&r.self, in, elapsed, r.world)
	game.Apply(&r.self, res, now)
	return r.self.Pos
}

// Frame 渲染帧调用：推进纠正（若有）并返回当前位置
func (r *Reconciler) Frame(now time.Time) game.Vec2 {
	if r.tween == nil {
		return r.self.Pos
	}
	pos, done := r.tween.At(now)
	r.self.Pos = pos
	if done {
		r.tween = nil
	}
	return pos
}

// Threshold 当前的自适应纠正阈值
func (r *Reconciler) Threshold() float64 {
	t := r.cfg.BaseThreshold
	if r.arrivals.count() >= 2 && r.cfg.ExpectedInterval > 0 {
		expected := float64(r.cfg.ExpectedInterval)
		if mean := float64(r.arrivals.mean()); mean > expected {
			t *= 1 + r.cfg.SlowFactor*(mean/expected-1)
		}
		t *= 1 + r.cfg.JitterFactor*float64(r.arrivals.jitter())/expected
	}
	t *= 1 + r.cfg.StreakFactor*float64(r.streak)
	return math.Min(t, r.cfg.MaxThreshold)
}

// Reconcile 每个快照调用一次，返回是否发起了新的纠正
func (r *Reconciler) Reconcile(auth Authoritative, now time.Time) bool {
	r.arrivals.observe(now)
	r.self.Chaser = auth.Chaser
	r.self.Immobilized = auth.Immobilized

	if r.tween != nil {
		r.Frame(now)
		if r.tween != nil {
			return false
		}
	}
	if r.streak > 0 && now.Sub(r.lastCorrection) >= r.cfg.QuietReset {
		r.streak = 0
	}
	if r.CoolingDown(now) {
		return false
	}
	if !(auth.Pos.Dist(r.self.Pos) > r.Threshold()) {
		return false
	}

	r.tween = &Tween{From: r.self.Pos, To: auth.Pos, Start: now, Duration: r.cfg.CorrectionDuration}
	r.corrections++

	if r.streak == 0 || now.Sub(r.streakStart) > r.cfg.BreakerSpan {
		r.streak = 0
		r.streakStart = now
	}
	r.streak++
	r.lastCorrection = now
	if r.streak >= r.cfg.BreakerLimit {
		r.cooldownUntil = now.Add(r.cfg.BreakerCooldown)
		r.streak = 0
		r.trips++
	}
	return true
}

// Snap 直接把预测置为权威位置（重新加入或关键帧重置时使用），会取消正在进行的纠正
func (r *Reconciler) Snap(pos game.Vec2) {
	r.tween = nil
	r.self.Pos = pos
}
