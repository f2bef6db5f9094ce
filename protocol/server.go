package protocol

import "arenasync/game"

// Welcome 加入成功后发送给客户端
type Welcome struct {
	V           int       `json:"v" msgpack:"v"`
	EntityID    string    `json:"entityId" msgpack:"entityId"`
	TickHz      int       `json:"tickHz" msgpack:"tickHz"`
	BroadcastHz int       `json:"broadcastHz" msgpack:"broadcastHz"`
	ServerTime  int64     `json:"serverTime" msgpack:"serverTime"`
	Speed       float64   `json:"speed" msgpack:"speed"`   // 基础移动速度
	Radius      float64   `json:"radius" msgpack:"radius"` // 实体半径
	World       WorldInfo `json:"world" msgpack:"world"`
}

// WorldInfo 世界尺寸与障碍，客户端预测需要与服务端一致
type WorldInfo struct {
	Width     float64        `json:"width" msgpack:"width"`
	Height    float64        `json:"height" msgpack:"height"`
	Obstacles []ObstacleInfo `json:"obstacles,omitempty" msgpack:"obstacles,omitempty"`
}

type ObstacleInfo struct {
	ID   string  `json:"id" msgpack:"id"`
	Kind string  `json:"kind" msgpack:"kind"`
	X    float64 `json:"x" msgpack:"x"`
	Y    float64 `json:"y" msgpack:"y"`
	W    float64 `json:"w,omitempty" msgpack:"w,omitempty"`
	H    float64 `json:"h,omitempty" msgpack:"h,omitempty"`
	R    float64 `json:"r,omitempty" msgpack:"r,omitempty"`
}

// EntityState 快照中的单个实体
type EntityState struct {
	ID          string  `json:"id" msgpack:"id"`
	X           float64 `json:"x" msgpack:"x"`
	Y           float64 `json:"y" msgpack:"y"`
	Chaser      bool    `json:"chaser,omitempty" msgpack:"chaser,omitempty"`
	Immobilized bool    `json:"immobilized,omitempty" msgpack:"immobilized,omitempty"`
	Hidden      bool    `json:"hidden,omitempty" msgpack:"hidden,omitempty"`
	Bot         bool    `json:"bot,omitempty" msgpack:"bot,omitempty"`
}

type ItemState struct {
	ID string  `json:"id" msgpack:"id"`
	X  float64 `json:"x" msgpack:"x"`
	Y  float64 `json:"y" msgpack:"y"`
}

// WorldTimer 世界计时字段
type WorldTimer struct {
	Tick      uint64 `json:"tick" msgpack:"tick"`
	ElapsedMs int64  `json:"elapsedMs" msgpack:"elapsedMs"`
}

// Snapshot 服务端权威状态。Full=false 时只包含自上次广播以来变化的实体，
// Removed 列出离开的实体。ServerTime 严格递增。
type Snapshot struct {
	Seq        uint64        `json:"seq" msgpack:"seq"`
	ServerTime int64         `json:"serverTime" msgpack:"serverTime"`
	Full       bool          `json:"full,omitempty" msgpack:"full,omitempty"`
	Timer      WorldTimer    `json:"timer" msgpack:"timer"`
	Width      float64       `json:"width" msgpack:"width"`
	Height     float64       `json:"height" msgpack:"height"`
	Entities   []EntityState `json:"entities" msgpack:"entities"`
	Removed    []string      `json:"removed,omitempty" msgpack:"removed,omitempty"`
	Items      []ItemState   `json:"items,omitempty" msgpack:"items,omitempty"`
}

// NewWorldInfo 把服务端世界描述转换为线上格式
func NewWorldInfo(w *game.World) WorldInfo {
	info := WorldInfo{Width: w.Width, Height: w.Height}
	for _, o := range w.Obstacles {
		info.Obstacles = append(info.Obstacles, ObstacleInfo{
			ID: o.ID, Kind: o.Kind.String(),
			X: o.X, Y: o.Y, W: o.W, H: o.H, R: o.R,
		})
	}
	return info
}

// World 还原出与服务端相同的世界，客户端预测使用
func (wi WorldInfo) World() *game.World {
	w := game.NewWorld(wi.Width, wi.Height)
	for _, o := range wi.Obstacles {
		kind := game.ObstacleRect
		if o.Kind == game.ObstacleCircle.String() {
			kind = game.ObstacleCircle
		}
		w.Obstacles = append(w.Obstacles, game.Obstacle{
			ID: o.ID, Kind: kind,
			X: o.X, Y: o.Y, W: o.W, H: o.H, R: o.R,
		})
	}
	return w
}

// Pos 实体位置
func (e EntityState) Pos() game.Vec2 { return game.Vec2{X: e.X, Y: e.Y} }
