package server

import (
	"errors"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"arenasync/ai"
	"arenasync/config"
	"arenasync/game"
	"arenasync/gate"
	"arenasync/intent"
	"arenasync/protocol"
)

// ErrRoomClosed 房间已关闭
var ErrRoomClosed = errors.New("room closed")

// Room 房间世界：权威状态维护在内存，单线程 Tick 推进。
// 除 channel 与 metrics 外，所有字段只由 Tick 线程访问。
type Room struct {
	ID string

	sim    config.Sim
	world  *game.World
	gate   *gate.Gate
	tuning ai.Tuning
	dt     time.Duration

	actors   map[game.EntityID]*Actor
	order    []game.EntityID // 按 ID 排序，保证每个 Tick 的处理顺序确定
	items    []*game.Item
	respawns []time.Time
	removed  []string // 自上次广播以来离开的实体

	rng       *rand.Rand
	sink      EventSink
	penalties *PenaltyMemory
	metrics   *RoomMetrics
	bcast     broadcaster
	log       *zap.SugaredLogger

	tickSeq  uint64
	lastTick time.Time

	joinChan  chan joinRequest
	leaveChan chan game.EntityID
	inputChan chan inbound
	cmdChan   chan command
	quit      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	running   atomic.Bool
}

// Option 房间可选项
type Option func(*Room)

// WithSink 设置事件接收者
func WithSink(s EventSink) Option { return func(r *Room) { r.sink = s } }

// WithPenalties 设置跨连接的惩罚记忆
func WithPenalties(p *PenaltyMemory) Option { return func(r *Room) { r.penalties = p } }

// WithSeed 固定随机种子（出生点、机器人性格、道具位置）
func WithSeed(seed int64) Option { return func(r *Room) { r.rng = rand.New(rand.NewSource(seed)) } }

// WithObstacles 替换默认关卡布局
func WithObstacles(obs ...game.Obstacle) Option {
	return func(r *Room) { r.world.Obstacles = append([]game.Obstacle(nil), obs...) }
}

// NewRoom 创建房间，初始化数据结构，生成机器人与道具
func NewRoom(id string, cfg config.Config, opts ...Option) *Room {
	world := game.NewWorld(cfg.Sim.WorldWidth, cfg.Sim.WorldHeight)
	world.Obstacles = DefaultLayout(world.Width, world.Height)
	r := &Room{
		ID:        id,
		sim:       cfg.Sim,
		world:     world,
		gate:      gate.New(cfg.GateConfig()),
		tuning:    cfg.AITuning(),
		dt:        time.Second / time.Duration(cfg.Sim.TickHz),
		actors:    make(map[game.EntityID]*Actor),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		sink:      logSink{},
		metrics:   &RoomMetrics{},
		log:       roomLog(id),
		joinChan:  make(chan joinRequest, 64),
		leaveChan: make(chan game.EntityID, 64),
		inputChan: make(chan inbound, 1024), // 足够缓冲，避免网络读阻塞影响 Tick
		cmdChan:   make(chan command, 16),
		quit:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	r.bcast = newBroadcaster(cfg.Sim.KeyframeEvery)
	for _, o := range opts {
		o(r)
	}
	for i := 0; i < cfg.Sim.Bots; i++ {
		r.spawnBot(time.Time{})
	}
	for i := 0; i < cfg.Sim.Items; i++ {
		r.spawnItem()
	}
	r.ensureChaser()
	return r
}

// Metrics 房间指标
func (r *Room) Metrics() *RoomMetrics { return r.metrics }

// World 关卡（只读）
func (r *Room) World() *game.World { return r.world }

// Join 连接建立后调用，实体在下一个 Tick 创建
func (r *Room) Join(id game.EntityID, host string, p Peer) {
	select {
	case r.joinChan <- joinRequest{id: id, host: host, peer: p}:
	case <-r.quit:
		_ = p.Close()
	}
}

// Leave 请求在 Tick 线程中移除实体，避免并发改动房间状态
func (r *Room) Leave(id game.EntityID) {
	select {
	case r.leaveChan <- id:
	case <-r.quit:
	}
}

// Submit 入站输入（不立即改变位置），等下一次 Tick 送入 gate
func (r *Room) Submit(id game.EntityID, s intent.Sample) {
	// 不阻塞：输入拥塞时直接丢弃，保证 Tick 准时
	select {
	case r.inputChan <- inbound{id: id, sample: s}:
	default:
		r.metrics.IncChanFull()
	}
}

// Step 推进一个 Tick：输入 → 状态计时 → 移动 → AI → 事件 → 空闲清理 → 广播
func (r *Room) Step(now time.Time) {
	r.tickSeq++
	r.lastTick = now

	r.ProcessInputs(now)
	r.expireStatus(now)
	r.move(now)
	r.think(now)
	r.checkTags(now)
	r.checkItems(now)
	r.reapIdle(now)

	every := uint64(r.sim.TickHz / r.sim.BroadcastHz)
	if every == 0 {
		every = 1
	}
	if r.tickSeq%every == 0 {
		r.Broadcast(now)
	}
}

// ProcessInputs 处理当前帧的所有入站消息（非阻塞 drain）
func (r *Room) ProcessInputs(now time.Time) {
	for {
		select {
		case req := <-r.joinChan:
			r.join(req, now)
		case id := <-r.leaveChan:
			r.leave(id, "disconnect")
		case in := <-r.inputChan:
			r.submit(in.id, in.sample, now)
		default:
			return
		}
	}
}

func (r *Room) submit(id game.EntityID, s intent.Sample, now time.Time) {
	a, ok := r.actors[id]
	if !ok {
		return
	}
	cid := a.ConnID()
	wasCooling := r.gate.InBackoff(cid, now)
	v := r.gate.Submit(cid, s, now)
	r.metrics.RecordVerdict(v)
	if v.Valid() {
		a.lastInput = now
	}
	if v == gate.BackedOff && !wasCooling {
		r.metrics.add(&r.metrics.BackoffEntries)
		r.log.Debugw("backoff", "entity", id, "level", r.gate.Backoff(cid))
	}
}

func (r *Room) join(req joinRequest, now time.Time) {
	if _, dup := r.actors[req.id]; dup {
		_ = req.peer.Close()
		return
	}
	e := game.NewEntity(req.id, r.world.RandomFreePoint(r.rng, r.sim.Radius), now)
	a := &Actor{Entity: e, peer: req.peer, host: req.host, joinedAt: now, lastInput: now, needsFull: true}
	r.add(a)

	if level, ok := r.penalties.Recall(req.host); ok {
		r.gate.Restore(a.ConnID(), level, now)
		r.log.Infow("penalty resumed", "entity", req.id, "host", req.host, "level", level)
	}
	r.ensureChaser()

	welcome := protocol.Welcome{
		V:           protocol.Version,
		EntityID:    string(req.id),
		TickHz:      r.sim.TickHz,
		BroadcastHz: r.sim.BroadcastHz,
		ServerTime:  now.UnixMilli(),
		Speed:       r.sim.BaseSpeed,
		Radius:      r.sim.Radius,
		World:       protocol.NewWorldInfo(r.world),
	}
	r.send(a, protocol.MsgWelcome, welcome)
	r.log.Infow("join", "entity", req.id, "host", req.host, "codec", req.peer.Codec())
}

func (r *Room) spawnBot(now time.Time) *Actor {
	id := game.EntityID("bot-" + uuid.NewString()[:8])
	e := game.NewEntity(id, r.world.RandomFreePoint(r.rng, r.sim.Radius), now)
	brain := ai.NewAgent(id, rand.New(rand.NewSource(r.rng.Int63())), r.tuning)
	a := &Actor{Entity: e, brain: brain, joinedAt: now}
	r.add(a)
	return a
}

func (r *Room) add(a *Actor) {
	a.Entity.Speed = r.sim.BaseSpeed
	a.Entity.Radius = r.sim.Radius
	r.actors[a.Entity.ID] = a
	i := sort.Search(len(r.order), func(i int) bool { return r.order[i] >= a.Entity.ID })
	r.order = append(r.order, "")
	copy(r.order[i+1:], r.order[i:])
	r.order[i] = a.Entity.ID
}

// leave 移除实体并清理它的所有挂起状态
func (r *Room) leave(id game.EntityID, reason string) {
	a, ok := r.actors[id]
	if !ok {
		return
	}
	cid := a.ConnID()
	if level := r.gate.Backoff(cid); level > 0 && a.host != "" {
		r.penalties.Remember(a.host, level)
	}
	r.gate.Forget(cid)
	a.Entity.ClearTimers()
	if a.peer != nil {
		_ = a.peer.Close()
	}

	delete(r.actors, id)
	if i := sort.Search(len(r.order), func(i int) bool { return r.order[i] >= id }); i < len(r.order) && r.order[i] == id {
		r.order = append(r.order[:i], r.order[i+1:]...)
	}
	r.removed = append(r.removed, string(id))
	r.ensureChaser()
	r.log.Infow("leave", "entity", id, "reason", reason)
}

// ensureChaser 场上没有追捕者时指定排序最靠前的实体
func (r *Room) ensureChaser() {
	for _, id := range r.order {
		if r.actors[id].Entity.Chaser {
			return
		}
	}
	if len(r.order) > 0 {
		r.actors[r.order[0]].Entity.Chaser = true
	}
}

func (r *Room) expireStatus(now time.Time) {
	for _, id := range r.order {
		r.actors[id].Entity.ExpireStatus(now)
	}
}

// move 每个实体取出本 Tick 的采样并按权威规则移动
func (r *Room) move(now time.Time) {
	for _, id := range r.order {
		a := r.actors[id]
		s, slot := r.gate.Drain(a.ConnID(), now)
		r.metrics.RecordSlot(slot)
		var in game.Vec2
		if slot.Usable() {
			in = s.Normalized()
		}
		prev := a.Entity.Pos
		res := game.Step(a.Entity, in, r.dt, r.world)
		if !in.IsZero() && res.Rejected() {
			r.metrics.add(&r.metrics.MovesBlocked)
		}
		game.Apply(a.Entity, res, now)
		a.vel = a.Entity.Pos.Sub(prev).Scale(1 / r.dt.Seconds())
	}
}

// think 到期的机器人观察世界并产出采样，与人类输入走同一个 gate 入口
func (r *Room) think(now time.Time) {
	for _, id := range r.order {
		a := r.actors[id]
		if a.brain == nil || !a.brain.Due(now) {
			continue
		}
		a.brain.Observe(r.viewFor(a))
		if s, ok := a.brain.Next(now); ok {
			r.submit(id, s, now)
		}
	}
}

func (r *Room) viewFor(self *Actor) ai.View {
	v := ai.View{
		Self:   self.neighbor(),
		Width:  r.world.Width,
		Height: r.world.Height,
		Radius: self.Entity.Radius,
		Others: make([]ai.Neighbor, 0, len(r.order)-1),
		Items:  make([]game.Vec2, 0, len(r.items)),
	}
	for _, id := range r.order {
		if id != self.Entity.ID {
			v.Others = append(v.Others, r.actors[id].neighbor())
		}
	}
	for _, it := range r.items {
		v.Items = append(v.Items, it.Pos)
	}
	return v
}

// checkTags 追捕者碰到逃跑者时交换角色；新追捕者被定身，定身期间不能立即反抓
func (r *Room) checkTags(now time.Time) {
	for _, cid := range r.order {
		chaser := r.actors[cid].Entity
		if !chaser.Chaser || chaser.Immobilized {
			continue
		}
		for _, rid := range r.order {
			runner := r.actors[rid].Entity
			if runner.Chaser || !game.Touching(chaser, runner) {
				continue
			}
			chaser.Chaser = false
			runner.Chaser = true
			runner.Immobilize(now.Add(r.sim.TagFreeze))
			r.metrics.add(&r.metrics.Tags)
			r.sink.Tagged(r.ID, chaser.ID, runner.ID, now)
			break
		}
	}
}

// checkItems 拾取道具获得隐身；到期的道具在别处重生
func (r *Room) checkItems(now time.Time) {
	kept := r.items[:0]
	for _, it := range r.items {
		taken := false
		for _, id := range r.order {
			e := r.actors[id].Entity
			if game.TouchingItem(e, it) {
				e.Cloak(now.Add(r.sim.CloakDuration))
				r.metrics.add(&r.metrics.Collected)
				r.sink.Collected(r.ID, e.ID, it.ID, now)
				r.respawns = append(r.respawns, now.Add(r.sim.ItemRespawn))
				taken = true
				break
			}
		}
		if !taken {
			kept = append(kept, it)
		}
	}
	r.items = kept

	due := r.respawns[:0]
	for _, at := range r.respawns {
		if now.Before(at) {
			due = append(due, at)
			continue
		}
		r.spawnItem()
	}
	r.respawns = due
}

func (r *Room) spawnItem() {
	r.items = append(r.items, &game.Item{
		ID:     "item-" + uuid.NewString()[:8],
		Pos:    r.world.RandomFreePoint(r.rng, game.ItemRadius),
		Radius: game.ItemRadius,
	})
}

// reapIdle 长时间没有合法输入的人类被移出
func (r *Room) reapIdle(now time.Time) {
	var idle []game.EntityID
	humans, bots := 0, 0
	for _, id := range r.order {
		a := r.actors[id]
		if a.Bot() {
			bots++
			continue
		}
		humans++
		if r.sim.IdleTimeout > 0 && now.Sub(a.lastInput) > r.sim.IdleTimeout {
			idle = append(idle, id)
		}
	}
	for _, id := range idle {
		r.metrics.add(&r.metrics.IdleKicks)
		r.leave(id, "idle")
	}
	r.metrics.SetPopulation(humans-len(idle), bots)
}

// Close 停止 Tick 循环并关闭所有连接
func (r *Room) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.quit)
		if r.running.Load() {
			<-r.stopped
		}
		for _, id := range r.order {
			if p := r.actors[id].peer; p != nil {
				err = multierr.Append(err, p.Close())
			}
		}
	})
	return err
}
