package intent

import (
	"time"

	"arenasync/game"
)

// Source 产生移动意图的来源：人类输入采集或 AI 决策
type Source interface {
	// Next 返回本次应当提交的采样；ok=false 表示本轮无需提交
	Next(now time.Time) (Sample, bool)
}

// KeyState 方向键状态
type KeyState struct {
	Up, Down, Left, Right bool
}

// Vector 方向键转换为意图（屏幕坐标系，向下为 +Y）
func (k KeyState) Vector() game.Vec2 {
	var v game.Vec2
	if k.Right {
		v.X++
	}
	if k.Left {
		v.X--
	}
	if k.Down {
		v.Y++
	}
	if k.Up {
		v.Y--
	}
	return v
}

// Capture 人类输入采集：保存最新的按键/摇杆状态，按固定频率产出采样
type Capture struct {
	keys  KeyState
	axis  game.Vec2
	useAx bool
	seq   uint32
}

// SetKeys 更新方向键状态（会关闭摇杆模式）
func (c *Capture) SetKeys(k KeyState) {
	c.keys = k
	c.useAx = false
}

// SetAxis 更新摇杆值，active=false 表示手指离开
func (c *Capture) SetAxis(v game.Vec2, active bool) {
	c.axis = v
	c.useAx = active
}

// Next 实现 Source；人类输入每次都提交（由采样频率控制速率）
func (c *Capture) Next(now time.Time) (Sample, bool) {
	c.seq++
	s := Sample{CapturedAt: now.UnixMilli(), Seq: c.seq, AxisActive: c.useAx}
	if c.useAx {
		s.Intent = c.axis
	} else {
		s.Intent = c.keys.Vector()
	}
	return s, true
}
