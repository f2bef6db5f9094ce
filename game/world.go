package game

import (
	"fmt"
	"math/rand"
)

// ObstacleKind 障碍物形状
type ObstacleKind uint8

const (
	ObstacleRect ObstacleKind = iota
	ObstacleCircle
)

func (k ObstacleKind) String() string {
	switch k {
	case ObstacleRect:
		return "rect"
	case ObstacleCircle:
		return "circle"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Obstacle 静态障碍：矩形使用 X/Y/W/H（左上角 + 尺寸），圆形使用 X/Y 圆心与 R
type Obstacle struct {
	ID   string
	Kind ObstacleKind
	X, Y float64
	W, H float64
	R    float64
}

// Item 可拾取物（拾取效果由房间决定）
type Item struct {
	ID     string
	Pos    Vec2
	Radius float64
}

// World 世界边界与障碍集合；关卡布局由外部提供
type World struct {
	Width     float64
	Height    float64
	Obstacles []Obstacle
}

// NewWorld 创建无障碍的世界
func NewWorld(width, height float64) *World {
	return &World{Width: width, Height: height}
}

// ClampToBounds 将圆心限制在边界内（边界减去半径）
func (w *World) ClampToBounds(p Vec2, radius float64) Vec2 {
	return Vec2{
		X: clamp(p.X, radius, w.Width-radius),
		Y: clamp(p.Y, radius, w.Height-radius),
	}
}

// Blocked 半径为 radius 的圆放在 p 是否与任一障碍重叠
func (w *World) Blocked(p Vec2, radius float64) bool {
	for i := range w.Obstacles {
		if overlaps(p, radius, &w.Obstacles[i]) {
			return true
		}
	}
	return false
}

// RandomFreePoint 随机找一个不与障碍重叠的位置，找不到时退回世界中心
func (w *World) RandomFreePoint(rng *rand.Rand, radius float64) Vec2 {
	for attempt := 0; attempt < 64; attempt++ {
		p := Vec2{
			X: radius + rng.Float64()*(w.Width-2*radius),
			Y: radius + rng.Float64()*(w.Height-2*radius),
		}
		if !w.Blocked(p, radius) {
			return p
		}
	}
	return Vec2{w.Width / 2, w.Height / 2}
}

func overlaps(p Vec2, radius float64, obs *Obstacle) bool {
	switch obs.Kind {
	case ObstacleCircle:
		return circleCircleOverlap(p, radius, Vec2{obs.X, obs.Y}, obs.R)
	default:
		return circleRectOverlap(p, radius, obs)
	}
}

// circleRectOverlap 圆与轴对齐矩形：圆心到矩形最近点的距离小于半径即重叠（相切不算）
func circleRectOverlap(p Vec2, radius float64, obs *Obstacle) bool {
	closestX := clamp(p.X, obs.X, obs.X+obs.W)
	closestY := clamp(p.Y, obs.Y, obs.Y+obs.H)
	dx := p.X - closestX
	dy := p.Y - closestY
	return dx*dx+dy*dy < radius*radius
}

func circleCircleOverlap(a Vec2, ra float64, b Vec2, rb float64) bool {
	dx := a.X - b.X
	dy := a.Y - b.Y
	r := ra + rb
	return dx*dx+dy*dy < r*r
}

// Touching 两个实体是否接触
func Touching(a, b *Entity) bool {
	return circleCircleOverlap(a.Pos, a.Radius, b.Pos, b.Radius)
}

// TouchingItem 实体是否碰到可拾取物
func TouchingItem(e *Entity, it *Item) bool {
	return circleCircleOverlap(e.Pos, e.Radius, it.Pos, it.Radius)
}
