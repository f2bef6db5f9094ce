package game

import "time"

// 网络与模拟节奏（与客户端约定，修改需同步）
const (
	SimTickHz   = 60
	BroadcastHz = 30
)

const (
	BaseSpeed          = 200.0 // 单位/秒
	EntityRadius       = 16.0
	ChaserSpeedMult    = 1.3
	MaxIntentMagnitude = 1.0
	// AxisTolerance 客户端摇杆允许的浮点误差上限
	AxisTolerance = 1.1
	WorldWidth    = 1600.0
	WorldHeight   = 1200.0
	ItemRadius    = 10.0
)

// TickInterval 单个模拟 Tick 的时长
const TickInterval = time.Second / SimTickHz
