package server

import (
	"time"

	"arenasync/game"
	"arenasync/protocol"
)

// broadcaster 记录上一次广播的实体状态，用于生成增量快照
type broadcaster struct {
	seq           uint64
	sent          int
	keyframeEvery int
	lastMs        int64
	last          map[game.EntityID]protocol.EntityState
}

func newBroadcaster(keyframeEvery int) broadcaster {
	if keyframeEvery <= 0 {
		keyframeEvery = 1
	}
	return broadcaster{keyframeEvery: keyframeEvery, last: make(map[game.EntityID]protocol.EntityState)}
}

// serverTime 快照时间戳严格递增，即使墙钟回拨或同一毫秒内广播两次
func (b *broadcaster) serverTime(now time.Time) int64 {
	ms := now.UnixMilli()
	if ms <= b.lastMs {
		ms = b.lastMs + 1
	}
	b.lastMs = ms
	return ms
}

// frameCache 同一次广播中每种编码只编码一次
type frameCache map[protocol.Codec][]byte

// Broadcast 将当前世界状态广播给所有连接：
// 常规广播只携带变化的实体，每 keyframeEvery 次以及新加入的连接发送完整快照
func (r *Room) Broadcast(now time.Time) {
	b := &r.bcast
	b.seq++
	keyframe := b.sent%b.keyframeEvery == 0
	b.sent++

	base := protocol.Snapshot{
		Seq:        b.seq,
		ServerTime: b.serverTime(now),
		Timer:      protocol.WorldTimer{Tick: r.tickSeq, ElapsedMs: (time.Duration(r.tickSeq) * r.dt).Round(time.Millisecond).Milliseconds()},
		Width:      r.world.Width,
		Height:     r.world.Height,
		Items:      make([]protocol.ItemState, 0, len(r.items)),
	}
	for _, it := range r.items {
		base.Items = append(base.Items, protocol.ItemState{ID: it.ID, X: it.Pos.X, Y: it.Pos.Y})
	}

	full := base
	full.Full = true
	full.Entities = make([]protocol.EntityState, 0, len(r.order))
	delta := base
	delta.Entities = []protocol.EntityState{}
	delta.Removed = r.removed

	current := make(map[game.EntityID]protocol.EntityState, len(r.order))
	for _, id := range r.order {
		st := r.actors[id].State()
		current[id] = st
		full.Entities = append(full.Entities, st)
		if prev, ok := b.last[id]; !ok || !sameState(prev, st) {
			delta.Entities = append(delta.Entities, st)
		}
	}
	b.last = current
	r.removed = nil

	if keyframe {
		r.metrics.add(&r.metrics.Keyframes)
	}
	fulls, deltas := frameCache{}, frameCache{}
	for _, id := range r.order {
		a := r.actors[id]
		if a.peer == nil {
			continue
		}
		if keyframe || a.needsFull {
			a.needsFull = false
			r.sendCached(a, fulls, full)
		} else {
			r.sendCached(a, deltas, delta)
		}
	}
	r.metrics.add(&r.metrics.Broadcasts)
}

func (r *Room) sendCached(a *Actor, cache frameCache, snap protocol.Snapshot) {
	codec := a.peer.Codec()
	frame, ok := cache[codec]
	if !ok {
		var err error
		frame, err = codec.Encode(protocol.MsgState, snap)
		if err != nil {
			r.log.Errorw("encode snapshot", "codec", codec, "err", err)
			return
		}
		cache[codec] = frame
	}
	r.deliver(a, frame)
}

// send 单独发送一帧（Welcome 等）
func (r *Room) send(a *Actor, t string, payload any) {
	if a.peer == nil {
		return
	}
	frame, err := a.peer.Codec().Encode(t, payload)
	if err != nil {
		r.log.Errorw("encode frame", "type", t, "err", err)
		return
	}
	r.deliver(a, frame)
}

func (r *Room) deliver(a *Actor, frame []byte) {
	if !a.peer.Enqueue(frame) {
		// 为了实时性，队列满直接丢弃；下一个关键帧会补齐状态
		r.metrics.IncFramesDropped()
		return
	}
	r.metrics.AddBytes(len(frame))
}
