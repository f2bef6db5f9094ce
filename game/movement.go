package game

import "time"

// Outcome 单次移动校验的结果类型；被阻挡不是错误，只是本 Tick 不移动
type Outcome uint8

const (
	Moved Outcome = iota
	SlidX
	SlidY
	Blocked
	Immobile
	Idle
)

func (o Outcome) String() string {
	switch o {
	case Moved:
		return "moved"
	case SlidX:
		return "slid_x"
	case SlidY:
		return "slid_y"
	case Blocked:
		return "blocked"
	case Immobile:
		return "immobile"
	case Idle:
		return "idle"
	default:
		return "unknown"
	}
}

// Result 移动后的位置与结果
type Result struct {
	Pos     Vec2
	Outcome Outcome
}

// Rejected 实体保持原位（被阻挡或被定身）
func (r Result) Rejected() bool {
	return r.Outcome == Blocked || r.Outcome == Immobile
}

// ClampIntent 意图模长超过 1 时按模长缩放，斜向移动不会比轴向更快
func ClampIntent(v Vec2) Vec2 {
	if !v.Finite() {
		return Vec2{}
	}
	m := v.Len()
	if m > MaxIntentMagnitude {
		return v.Scale(MaxIntentMagnitude / m)
	}
	return v
}

// SpeedFor 实体当前的有效速度（追捕者 ×1.3）
func SpeedFor(e *Entity) float64 {
	s := e.Speed
	if s <= 0 {
		s = BaseSpeed
	}
	if e.Chaser {
		s *= ChaserSpeedMult
	}
	return s
}

// Step 权威移动规则：服务端对玩家与机器人、客户端预测都调用同一函数。
// 不修改实体，由调用方决定是否落地结果。
func Step(e *Entity, intent Vec2, elapsed time.Duration, w *World) Result {
	if e.Immobilized {
		return Result{Pos: e.Pos, Outcome: Immobile}
	}
	intent = ClampIntent(intent)
	if elapsed <= 0 || intent.IsZero() {
		return Result{Pos: e.Pos, Outcome: Idle}
	}

	d := intent.Scale(SpeedFor(e) * elapsed.Seconds())
	r := e.Radius

	full := w.ClampToBounds(e.Pos.Add(d), r)
	if !w.Blocked(full, r) {
		return Result{Pos: full, Outcome: Moved}
	}
	// 整体被挡：依次尝试只沿 X、只沿 Y 滑动
	if d.X != 0 {
		p := w.ClampToBounds(Vec2{e.Pos.X + d.X, e.Pos.Y}, r)
		if !w.Blocked(p, r) {
			return Result{Pos: p, Outcome: SlidX}
		}
	}
	if d.Y != 0 {
		p := w.ClampToBounds(Vec2{e.Pos.X, e.Pos.Y + d.Y}, r)
		if !w.Blocked(p, r) {
			return Result{Pos: p, Outcome: SlidY}
		}
	}
	return Result{Pos: e.Pos, Outcome: Blocked}
}

// Apply 落地移动结果，返回实体是否真的移动
func Apply(e *Entity, res Result, now time.Time) bool {
	moved := res.Pos != e.Pos
	e.Pos = res.Pos
	if moved {
		e.UpdatedAt = now
	}
	return moved
}
