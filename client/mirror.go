// Package client 是客户端的状态镜像：本地实体预测 + 纠正，远端实体插值。
//
// 服务端是唯一权威。本地实体在输入时立即按与服务端相同的移动规则推进，
// 收到快照后与权威位置比较，超过自适应阈值才发起一次平滑纠正；
// 远端实体按带延迟的时间轴在相邻快照间插值。
package client

import (
	"errors"
	"time"

	"arenasync/ai"
	"arenasync/game"
	"arenasync/protocol"
)

// ErrNoKeyframe 还没有收到完整快照，增量快照无法应用
var ErrNoKeyframe = errors.New("no keyframe received yet")

// Config 镜像参数
type Config struct {
	Reconciler  ReconcilerConfig
	Interp      InterpConfig
	ClockWindow int
}

// DefaultConfig 默认参数
func DefaultConfig() Config {
	return Config{
		Reconciler:  DefaultReconcilerConfig(),
		Interp:      DefaultInterpConfig(),
		ClockWindow: 32,
	}
}

// Mirror 一个连接看到的世界
type Mirror struct {
	selfID game.EntityID
	world  *game.World

	rec    *Reconciler
	interp *Interpolator
	clock  *ServerClock

	placed  bool
	keyed   bool
	lastSeq uint64
	remote  map[game.EntityID]protocol.EntityState
	items   []game.Vec2
}

// NewMirror 由 Welcome 构建镜像；本地实体的位置在第一个包含它的快照中确定
func NewMirror(cfg Config, w protocol.Welcome) *Mirror {
	world := w.World.World()
	self := game.NewEntity(game.EntityID(w.EntityID), game.Vec2{}, time.Time{})
	if w.Speed > 0 {
		self.Speed = w.Speed
	}
	if w.Radius > 0 {
		self.Radius = w.Radius
	}
	return &Mirror{
		selfID: self.ID,
		world:  world,
		rec:    NewReconciler(cfg.Reconciler, *self, world),
		interp: NewInterpolator(cfg.Interp),
		clock:  NewServerClock(cfg.ClockWindow),
		remote: make(map[game.EntityID]protocol.EntityState),
	}
}

func (m *Mirror) SelfID() game.EntityID       { return m.selfID }
func (m *Mirror) World() *game.World          { return m.world }
func (m *Mirror) Reconciler() *Reconciler     { return m.rec }
func (m *Mirror) Interpolator() *Interpolator { return m.interp }
func (m *Mirror) Clock() *ServerClock         { return m.clock }
func (m *Mirror) Placed() bool                { return m.placed }
func (m *Mirror) Remotes() int                { return len(m.remote) }

// Apply 应用一个快照，返回是否因此发起了纠正。
// 序号不大于已应用快照的（乱序或重复）被忽略。
func (m *Mirror) Apply(s protocol.Snapshot, now time.Time) (bool, error) {
	if !s.Full && !m.keyed {
		return false, ErrNoKeyframe
	}
	if m.keyed && s.Seq <= m.lastSeq {
		return false, nil
	}
	m.keyed = true
	m.lastSeq = s.Seq

	m.clock.Observe(s.ServerTime, now)
	m.interp.ObserveArrival(now)
	at := m.clock.ToLocal(s.ServerTime)

	if s.Full {
		seen := make(map[game.EntityID]struct{}, len(s.Entities))
		for _, e := range s.Entities {
			seen[game.EntityID(e.ID)] = struct{}{}
		}
		for id := range m.remote {
			if _, ok := seen[id]; !ok {
				m.drop(id)
			}
		}
	}
	m.items = m.items[:0]
	for _, it := range s.Items {
		m.items = append(m.items, game.Vec2{X: it.X, Y: it.Y})
	}
	for _, id := range s.Removed {
		m.drop(game.EntityID(id))
	}

	corrected := false
	present := make(map[game.EntityID]struct{}, len(s.Entities))
	for _, e := range s.Entities {
		id := game.EntityID(e.ID)
		if id == m.selfID {
			corrected = m.applySelf(e, now) || corrected
			continue
		}
		present[id] = struct{}{}
		m.remote[id] = e
		m.interp.Push(id, e.Pos(), at)
	}
	// 增量快照省略了未变化的实体：它们在这一时刻仍在原地，补一个样本，
	// 否则停下的实体会被外推越过停止点
	for id, e := range m.remote {
		if _, ok := present[id]; !ok {
			m.interp.Push(id, e.Pos(), at)
		}
	}
	return corrected, nil
}

func (m *Mirror) applySelf(e protocol.EntityState, now time.Time) bool {
	auth := Authoritative{Pos: e.Pos(), Chaser: e.Chaser, Immobilized: e.Immobilized}
	if !m.placed {
		m.placed = true
		m.rec.Snap(auth.Pos)
		m.rec.Reconcile(auth, now)
		return false
	}
	return m.rec.Reconcile(auth, now)
}

func (m *Mirror) drop(id game.EntityID) {
	delete(m.remote, id)
	m.interp.Drop(id)
}

// Predict 本地输入立即生效
func (m *Mirror) Predict(in game.Vec2, elapsed time.Duration, now time.Time) game.Vec2 {
	if !m.placed {
		return game.Vec2{}
	}
	return m.rec.Predict(in, elapsed, now)
}

// Render 一帧中所有实体的显示位置
func (m *Mirror) Render(now time.Time) map[game.EntityID]game.Vec2 {
	out := make(map[game.EntityID]game.Vec2, len(m.remote)+1)
	if m.placed {
		out[m.selfID] = m.rec.Frame(now)
	}
	for id := range m.remote {
		if p, ok := m.interp.Position(id, now); ok {
			out[id] = p
		}
	}
	return out
}

// View 以渲染位置构造决策视图，AI 与人类观察到的是同一份镜像
func (m *Mirror) View(now time.Time) ai.View {
	self := m.rec.Entity()
	v := ai.View{
		Self:   ai.Neighbor{ID: self.ID, Pos: self.Pos, Chaser: self.Chaser, Hidden: self.Hidden},
		Width:  m.world.Width,
		Height: m.world.Height,
		Radius: self.Radius,
		Items:  append([]game.Vec2(nil), m.items...),
	}
	for id, e := range m.remote {
		pos, ok := m.interp.Position(id, now)
		if !ok {
			continue
		}
		v.Others = append(v.Others, ai.Neighbor{
			ID:     id,
			Pos:    pos,
			Vel:    m.interp.Velocity(id),
			Chaser: e.Chaser,
			Hidden: e.Hidden,
		})
	}
	return v
}
