package client

import (
	"time"

	"arenasync/game"
)

// Tween 一次纠正：在 Duration 内从 From 缓动到 To
type Tween struct {
	From     game.Vec2
	To       game.Vec2
	Start    time.Time
	Duration time.Duration
}

// At 返回 now 时刻的位置；到达终点时精确返回 To 且 done=true
func (t *Tween) At(now time.Time) (pos game.Vec2, done bool) {
	elapsed := now.Sub(t.Start)
	if elapsed >= t.Duration || t.Duration <= 0 {
		return t.To, true
	}
	if elapsed <= 0 {
		return t.From, false
	}
	x := float64(elapsed) / float64(t.Duration)
	return game.Lerp(t.From, t.To, easeOutCubic(x)), false
}

func easeOutCubic(x float64) float64 {
	inv := 1 - x
	return 1 - inv*inv*inv
}
