package game

import "time"

// EntityID 实体唯一标识（玩家与机器人共用）
type EntityID string

// Timers 状态标记的绝对过期时间，每个 Tick 与 now 比较，不使用回调
type Timers struct {
	ImmobilizedUntil time.Time
	HiddenUntil      time.Time
}

// Entity 服务端权威实体；客户端持有的是镜像副本
type Entity struct {
	ID     EntityID
	Pos    Vec2
	Chaser bool

	// 状态标记：定身 / 隐身（降低可见度）
	Immobilized bool
	Hidden      bool

	Speed     float64
	Radius    float64
	UpdatedAt time.Time

	Timers Timers
}

// NewEntity 以默认速度与半径创建实体
func NewEntity(id EntityID, pos Vec2, now time.Time) *Entity {
	return &Entity{
		ID:        id,
		Pos:       pos,
		Speed:     BaseSpeed,
		Radius:    EntityRadius,
		UpdatedAt: now,
	}
}

// Immobilize 定身到 until；已有更晚的过期时间时不缩短
func (e *Entity) Immobilize(until time.Time) {
	e.Immobilized = true
	if until.After(e.Timers.ImmobilizedUntil) {
		e.Timers.ImmobilizedUntil = until
	}
}

// Cloak 隐身到 until
func (e *Entity) Cloak(until time.Time) {
	e.Hidden = true
	if until.After(e.Timers.HiddenUntil) {
		e.Timers.HiddenUntil = until
	}
}

// ExpireStatus 清除已到期的状态标记，返回是否有变化
func (e *Entity) ExpireStatus(now time.Time) bool {
	changed := false
	if e.Immobilized && !now.Before(e.Timers.ImmobilizedUntil) {
		e.Immobilized = false
		e.Timers.ImmobilizedUntil = time.Time{}
		changed = true
	}
	if e.Hidden && !now.Before(e.Timers.HiddenUntil) {
		e.Hidden = false
		e.Timers.HiddenUntil = time.Time{}
		changed = true
	}
	return changed
}

// ClearTimers 实体离开世界时清理所有挂起的计时
func (e *Entity) ClearTimers() {
	e.Timers = Timers{}
	e.Immobilized = false
	e.Hidden = false
}
