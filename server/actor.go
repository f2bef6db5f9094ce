package server

import (
	"time"

	"arenasync/ai"
	"arenasync/game"
	"arenasync/gate"
	"arenasync/protocol"
)

// Peer 一个下行连接；ClientConn 是 WebSocket 实现，测试里可以替换
type Peer interface {
	// Enqueue 非阻塞发送一帧，队列满时返回 false
	Enqueue(frame []byte) bool
	Codec() protocol.Codec
	Close() error
}

// Actor 房间内的参与者：权威实体 + 可选的连接（人类）或大脑（机器人）。
// 两者走同一条移动与校验路径，区别只在意图来源。
type Actor struct {
	Entity *game.Entity

	peer  Peer      // 人类连接；机器人为 nil
	brain *ai.Agent // 机器人大脑；人类为 nil
	host  string    // 远端地址，用于惩罚记忆

	joinedAt  time.Time
	lastInput time.Time // 最近一次合法输入，用于空闲超时
	vel       game.Vec2 // 上一 Tick 的实际速度（每秒）
	needsFull bool      // 下一次广播发送完整快照
}

// Bot 是否由 AI 控制
func (a *Actor) Bot() bool { return a.brain != nil }

// ConnID 在 gate 中的标识
func (a *Actor) ConnID() gate.ConnID { return gate.ConnID(a.Entity.ID) }

// State 快照中的实体状态
func (a *Actor) State() protocol.EntityState {
	e := a.Entity
	return protocol.EntityState{
		ID:          string(e.ID),
		X:           e.Pos.X,
		Y:           e.Pos.Y,
		Chaser:      e.Chaser,
		Immobilized: e.Immobilized,
		Hidden:      e.Hidden,
		Bot:         a.Bot(),
	}
}

// neighbor AI 视角下的实体
func (a *Actor) neighbor() ai.Neighbor {
	return ai.Neighbor{
		ID:     a.Entity.ID,
		Pos:    a.Entity.Pos,
		Vel:    a.vel,
		Chaser: a.Entity.Chaser,
		Hidden: a.Entity.Hidden,
	}
}

// sameState 两次广播之间实体是否没有变化
func sameState(a, b protocol.EntityState) bool {
	return a.ID == b.ID && a.X == b.X && a.Y == b.Y &&
		a.Chaser == b.Chaser && a.Immobilized == b.Immobilized &&
		a.Hidden == b.Hidden && a.Bot == b.Bot
}
