package server

import (
	"time"

	"arenasync/game"
	"arenasync/intent"
)

// inbound 读协程解析出的合法采样，等待 Tick 线程送入 gate
type inbound struct {
	id     game.EntityID
	sample intent.Sample
}

// joinRequest 连接建立后请求加入房间，由 Tick 线程创建实体
type joinRequest struct {
	id   game.EntityID
	host string
	peer Peer
}

// command 在 Tick 线程中执行的管理操作（热更新、查询）
type command struct {
	fn   func(r *Room)
	done chan struct{}
}

// EventSink 接收房间内的游戏事件；计分等外部子系统实现它
type EventSink interface {
	Tagged(room string, chaser, runner game.EntityID, at time.Time)
	Collected(room string, id game.EntityID, item string, at time.Time)
}

// logSink 默认实现：只写日志
type logSink struct{}

func (logSink) Tagged(room string, chaser, runner game.EntityID, at time.Time) {
	Log.Infow("tag", "room", room, "chaser", chaser, "runner", runner)
}

func (logSink) Collected(room string, id game.EntityID, item string, at time.Time) {
	Log.Infow("collected", "room", room, "entity", id, "item", item)
}
