// Package ai 为电脑控制的实体生成移动意图。
//
// 行为选择是一个封闭枚举 + 纯函数 Decide；随机数通过 Draws 注入，
// 同样的输入总是得到同样的决策。Agent 负责节奏、卡住检测和随机源，
// 它的输出与人类输入走同一个 gate 入口。
package ai

import (
	"math"
	"time"

	"arenasync/game"
)

// Behavior 行为状态
type Behavior uint8

const (
	Explore Behavior = iota
	Pursue
	Evade
	Acquire
)

func (b Behavior) String() string {
	switch b {
	case Explore:
		return "explore"
	case Pursue:
		return "pursue"
	case Evade:
		return "evade"
	case Acquire:
		return "acquire"
	default:
		return "unknown"
	}
}

// Tuning 决策参数
type Tuning struct {
	Interval            time.Duration // 重新决策的间隔
	EvadeRadius         float64       // 谨慎度为 0 时的躲避半径
	EvadeDistance       float64
	RevealRadius        float64 // 隐身实体在此距离内才可见
	AcquireRange        float64
	ExploreDistance     float64
	ArriveRadius        float64
	HeadingChangeChance float64 // 每次决策完全换方向的概率
	LeadTime            time.Duration
	MaxNoise            float64 // 规划能力为 0 时的最大方向扰动（弧度）
	StuckWindow         int
	StuckThreshold      float64
}

// DefaultTuning 默认参数（20 Hz 决策）
func DefaultTuning() Tuning {
	return Tuning{
		Interval:            50 * time.Millisecond,
		EvadeRadius:         180,
		EvadeDistance:       220,
		RevealRadius:        80,
		AcquireRange:        260,
		ExploreDistance:     160,
		ArriveRadius:        6,
		HeadingChangeChance: 0.08,
		LeadTime:            300 * time.Millisecond,
		MaxNoise:            0.6,
		StuckWindow:         6,
		StuckThreshold:      4,
	}
}

// Neighbor 决策看到的其他实体
type Neighbor struct {
	ID     game.EntityID
	Pos    game.Vec2
	Vel    game.Vec2
	Chaser bool
	Hidden bool
}

// View 与人类观察到的同一份世界快照
type View struct {
	Self   Neighbor
	Width  float64
	Height float64
	Radius float64
	Others []Neighbor
	Items  []game.Vec2
}

// Draws 一次决策使用的随机数，均在 [0,1)
type Draws struct {
	Curiosity float64
	Turn      float64
	Heading   float64
	Side      float64
}

// Decision 决策结果
type Decision struct {
	Behavior Behavior
	Target   game.Vec2
	TargetID game.EntityID
	Heading  float64 // 弧度，探索时沿用
}

// Input Decide 的全部输入
type Input struct {
	View        View
	Personality Personality
	Draws       Draws
	Stuck       bool
	Tuning      Tuning
}

// Decide 纯函数：(当前决策, 世界视图) -> 下一个决策
func Decide(prev Decision, in Input) Decision {
	v := in.View
	self := v.Self.Pos

	if in.Stuck {
		return explore(self, in.Draws.Heading*2*math.Pi, in)
	}

	if v.Self.Chaser {
		if prey, ok := nearest(v, in.Tuning, func(n Neighbor) bool { return !n.Chaser }); ok {
			lead := prey.Vel.Scale(in.Personality.Aggressiveness * in.Tuning.LeadTime.Seconds())
			return Decision{
				Behavior: Pursue,
				Target:   clampTarget(prey.Pos.Add(lead), v),
				TargetID: prey.ID,
				Heading:  angle(prey.Pos.Sub(self), prev.Heading),
			}
		}
	} else if chaser, ok := nearest(v, in.Tuning, func(n Neighbor) bool { return n.Chaser }); ok {
		radius := in.Tuning.EvadeRadius * (1 + 0.75*in.Personality.Caution)
		if self.Dist(chaser.Pos) < radius {
			return evade(self, chaser, in)
		}
	}

	if !v.Self.Chaser && in.Personality.Curiosity > in.Draws.Curiosity {
		if item, ok := nearestItem(v, in.Tuning.AcquireRange); ok {
			return Decision{
				Behavior: Acquire,
				Target:   item,
				Heading:  angle(item.Sub(self), prev.Heading),
			}
		}
	}

	heading := prev.Heading
	switch {
	case in.Draws.Turn < in.Tuning.HeadingChangeChance:
		heading = in.Draws.Heading * 2 * math.Pi
	case prev.Behavior != Explore:
		// 刚从其他状态切回：沿着当前运动方向继续
		heading = angle(prev.Target.Sub(self), in.Draws.Heading*2*math.Pi)
	}
	return explore(self, heading, in)
}

func explore(self game.Vec2, heading float64, in Input) Decision {
	v := in.View
	target := clampTarget(self.Add(game.FromAngle(heading).Scale(in.Tuning.ExploreDistance)), v)
	if target.Dist(self) < in.Tuning.ExploreDistance/4 {
		// 贴墙了：调头
		heading = math.Mod(heading+math.Pi, 2*math.Pi)
		target = clampTarget(self.Add(game.FromAngle(heading).Scale(in.Tuning.ExploreDistance)), v)
	}
	return Decision{Behavior: Explore, Target: target, Heading: heading}
}

// evade 以追捕者为镜像点反射出逃离目标；被逼到角落时沿墙横向逃
func evade(self game.Vec2, chaser Neighbor, in Input) Decision {
	v := in.View
	away := self.Sub(chaser.Pos).Normalize()
	if away.IsZero() {
		away = game.FromAngle(in.Draws.Heading * 2 * math.Pi)
	}
	target := clampTarget(self.Add(away.Scale(in.Tuning.EvadeDistance)), v)
	if target.Dist(self) < in.Tuning.EvadeDistance/4 {
		side := math.Pi / 2
		if in.Draws.Side < 0.5 {
			side = -side
		}
		target = clampTarget(self.Add(away.Rotate(side).Scale(in.Tuning.EvadeDistance)), v)
	}
	return Decision{
		Behavior: Evade,
		Target:   target,
		TargetID: chaser.ID,
		Heading:  angle(target.Sub(self), 0),
	}
}

// visible 隐身实体只有在揭示半径内可见
func visible(self game.Vec2, n Neighbor, t Tuning) bool {
	return !n.Hidden || self.Dist(n.Pos) <= t.RevealRadius
}

func nearest(v View, t Tuning, keep func(Neighbor) bool) (Neighbor, bool) {
	best := -1
	bestDist := math.Inf(1)
	for i, n := range v.Others {
		if n.ID == v.Self.ID || !keep(n) || !visible(v.Self.Pos, n, t) {
			continue
		}
		// 距离相同按 ID 决定，保证结果与遍历顺序无关
		if d := v.Self.Pos.Dist(n.Pos); d < bestDist || (d == bestDist && n.ID < v.Others[best].ID) {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return Neighbor{}, false
	}
	return v.Others[best], true
}

func nearestItem(v View, rangeLimit float64) (game.Vec2, bool) {
	var best game.Vec2
	bestDist := math.Inf(1)
	for _, it := range v.Items {
		if d := v.Self.Pos.Dist(it); d <= rangeLimit && d < bestDist {
			best, bestDist = it, d
		}
	}
	return best, !math.IsInf(bestDist, 1)
}

func clampTarget(p game.Vec2, v View) game.Vec2 {
	w := game.World{Width: v.Width, Height: v.Height}
	return w.ClampToBounds(p, v.Radius)
}

func angle(d game.Vec2, fallback float64) float64 {
	if d.IsZero() {
		return fallback
	}
	return math.Atan2(d.Y, d.X)
}
