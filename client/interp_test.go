package client

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"

	"arenasync/game"
	"arenasync/protocol"
)

func zeroDelay() InterpConfig {
	cfg := DefaultInterpConfig()
	cfg.MinDelay = 0
	cfg.MaxDelay = 0
	return cfg
}

func near(a, b game.Vec2) bool {
	return math.Abs(a.X-b.X) < 1e-9 && math.Abs(a.Y-b.Y) < 1e-9
}

func TestInterpolatesBetweenSnapshots(t *testing.T) {
	ip := NewInterpolator(zeroDelay())
	ip.Push("o", game.Vec2{}, t0)
	ip.Push("o", game.Vec2{X: 100, Y: 40}, t0.Add(100*time.Millisecond))

	got, ok := ip.Position("o", t0.Add(50*time.Millisecond))
	if !ok || got != (game.Vec2{X: 50, Y: 20}) {
		t.Fatalf("midpoint = %+v ok=%v", got, ok)
	}
	if got, _ := ip.PositionAt("o", t0.Add(-time.Second)); got != (game.Vec2{}) {
		t.Fatalf("before oldest sample = %+v, want oldest", got)
	}
	if _, ok := ip.Position("missing", t0); ok {
		t.Fatalf("unknown entity should report ok=false")
	}
}

func TestExtrapolationIsCapped(t *testing.T) {
	cfg := zeroDelay()
	ip := NewInterpolator(cfg)
	ip.Push("o", game.Vec2{}, t0)
	ip.Push("o", game.Vec2{X: 100, Y: 40}, t0.Add(100*time.Millisecond))

	short, _ := ip.PositionAt("o", t0.Add(150*time.Millisecond))
	if !near(short, game.Vec2{X: 150, Y: 60}) {
		t.Fatalf("extrapolated 50ms = %+v", short)
	}
	far, _ := ip.PositionAt("o", t0.Add(5*time.Second))
	if !near(far, game.Vec2{X: 200, Y: 80}) {
		t.Fatalf("extrapolation should stop after %v, got %+v", cfg.MaxExtrapolation, far)
	}
}

func TestPushKeepsOrderAndCapacity(t *testing.T) {
	cfg := zeroDelay()
	cfg.Capacity = 4
	ip := NewInterpolator(cfg)
	for i := 0; i < 10; i++ {
		ip.Push("o", game.Vec2{X: float64(i)}, t0.Add(time.Duration(i)*time.Millisecond))
	}
	if ip.Len("o") != 4 {
		t.Fatalf("history length = %d, want 4", ip.Len("o"))
	}
	ip.Push("o", game.Vec2{X: -1}, t0)
	if got, _ := ip.PositionAt("o", t0.Add(9*time.Millisecond)); got.X != 9 {
		t.Fatalf("out-of-order sample was applied: %+v", got)
	}
	ip.Drop("o")
	if ip.Len("o") != 0 || ip.Tracked() != 0 {
		t.Fatalf("Drop left history behind")
	}
}

func TestDelayAdaptsToJitter(t *testing.T) {
	cfg := DefaultInterpConfig()
	ip := NewInterpolator(cfg)
	now := t0
	for i := 0; i < 20; i++ {
		ip.ObserveArrival(now)
		now = now.Add(cfg.ExpectedInterval)
	}
	if ip.Delay() != cfg.MinDelay {
		t.Fatalf("steady delay = %v, want %v", ip.Delay(), cfg.MinDelay)
	}

	gaps := []time.Duration{10 * time.Millisecond, 150 * time.Millisecond}
	for i := 0; i < 40; i++ {
		now = now.Add(gaps[i%2])
		ip.ObserveArrival(now)
	}
	if ip.Delay() <= cfg.MinDelay || ip.Delay() > cfg.MaxDelay {
		t.Fatalf("jittery delay = %v, want within (%v, %v]", ip.Delay(), cfg.MinDelay, cfg.MaxDelay)
	}
}

func TestServerClockUsesFastestSample(t *testing.T) {
	c := NewServerClock(4)
	if c.Synced() {
		t.Fatalf("clock synced before any sample")
	}
	c.Observe(1000, time.UnixMilli(1050))
	c.Observe(1100, time.UnixMilli(1120))
	c.Observe(1200, time.UnixMilli(1290))
	if c.Offset() != 20*time.Millisecond {
		t.Fatalf("offset = %v, want 20ms", c.Offset())
	}
	if got := c.ToLocal(2000); !got.Equal(time.UnixMilli(2020)) {
		t.Fatalf("ToLocal = %v", got)
	}
	if !c.Synced() {
		t.Fatalf("clock not synced after samples")
	}
	if got := c.Now(time.UnixMilli(2020)); !got.Equal(time.UnixMilli(2000)) {
		t.Fatalf("Now = %v, want server time 2000", got)
	}
}

func TestMirrorHoldsStoppedEntityUnderDeltas(t *testing.T) {
	m := NewMirror(DefaultConfig(), testWelcome())
	const step = 33
	arrive := func(i int) time.Time { return t0.Add(time.Duration(i*step) * time.Millisecond) }
	apply := func(i int, full bool, ents ...protocol.EntityState) {
		t.Helper()
		s := protocol.Snapshot{Seq: uint64(i + 1), ServerTime: 1000 + int64(i*step), Full: full, Entities: ents}
		if _, err := m.Apply(s, arrive(i)); err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
	}

	apply(0, true, protocol.EntityState{ID: "me", X: 50, Y: 50}, protocol.EntityState{ID: "o", X: 100, Y: 300})
	apply(1, false, protocol.EntityState{ID: "o", X: 106.6, Y: 300})
	apply(2, false, protocol.EntityState{ID: "o", X: 113.2, Y: 300})
	// 停下之后的增量快照不再携带 "o"
	last := 2
	for i := 3; i < 23; i++ {
		apply(i, false)
		last = i
	}

	now := arrive(last)
	stop := game.Vec2{X: 113.2, Y: 300}
	got, ok := m.Interpolator().Position("o", now)
	if !ok || !near(got, stop) {
		t.Fatalf("stopped entity rendered at %+v, want %+v (delay %v)", got, stop, m.Interpolator().Delay())
	}
	if v := m.Interpolator().Velocity("o"); v.X != 0 || v.Y != 0 {
		t.Fatalf("stopped entity still has velocity %+v", v)
	}

	// 重新起步时只在最后一个静止样本与新样本之间插值
	apply(last+1, false, protocol.EntityState{ID: "o", X: 120, Y: 300})
	mid, _ := m.Interpolator().PositionAt("o", arrive(last).Add(-time.Millisecond))
	if !near(mid, stop) {
		t.Fatalf("motion leaked into the idle gap: %+v", mid)
	}
}

func testWelcome() protocol.Welcome {
	return protocol.Welcome{
		V:        protocol.Version,
		EntityID: "me",
		World: protocol.WorldInfo{
			Width:  1600,
			Height: 1200,
			Obstacles: []protocol.ObstacleInfo{
				{ID: "rock", Kind: "circle", X: 800, Y: 600, R: 40},
			},
		},
	}
}

func TestMirrorAppliesKeyframeThenDeltas(t *testing.T) {
	m := NewMirror(DefaultConfig(), testWelcome())
	if m.World().Obstacles[0].Kind != game.ObstacleCircle {
		t.Fatalf("world obstacles not restored: %s", spew.Sdump(m.World()))
	}

	delta := protocol.Snapshot{Seq: 1, ServerTime: 1000}
	if _, err := m.Apply(delta, t0); !errors.Is(err, ErrNoKeyframe) {
		t.Fatalf("delta before keyframe err = %v", err)
	}

	full := protocol.Snapshot{
		Seq: 2, ServerTime: 1033, Full: true,
		Entities: []protocol.EntityState{
			{ID: "me", X: 100, Y: 100, Chaser: true},
			{ID: "o1", X: 400, Y: 400},
			{ID: "o2", X: 500, Y: 500, Hidden: true},
		},
		Items: []protocol.ItemState{{ID: "i1", X: 10, Y: 10}},
	}
	if corrected, err := m.Apply(full, t0); err != nil || corrected {
		t.Fatalf("keyframe apply corrected=%v err=%v", corrected, err)
	}
	if !m.Placed() || m.Reconciler().Position() != (game.Vec2{X: 100, Y: 100}) || m.Remotes() != 2 {
		t.Fatalf("mirror after keyframe: %s", spew.Sdump(m.Render(t0)))
	}
	if !m.Reconciler().Entity().Chaser {
		t.Fatalf("chaser flag not mirrored")
	}

	removal := protocol.Snapshot{Seq: 3, ServerTime: 1066, Removed: []string{"o1"}}
	if _, err := m.Apply(removal, t0.Add(33*time.Millisecond)); err != nil {
		t.Fatalf("delta apply: %v", err)
	}
	if m.Remotes() != 1 || m.Interpolator().Len("o1") != 0 {
		t.Fatalf("removed entity still mirrored")
	}

	stale := protocol.Snapshot{Seq: 2, ServerTime: 1033, Entities: []protocol.EntityState{{ID: "o1", X: 1, Y: 1}}}
	if _, err := m.Apply(stale, t0.Add(40*time.Millisecond)); err != nil || m.Remotes() != 1 {
		t.Fatalf("stale snapshot should be ignored (remotes=%d err=%v)", m.Remotes(), err)
	}

	v := m.View(t0.Add(40 * time.Millisecond))
	if v.Self.ID != "me" || len(v.Others) != 1 || !v.Others[0].Hidden || len(v.Items) != 0 {
		t.Fatalf("view = %s", spew.Sdump(v))
	}
}

func TestMirrorCorrectsDivergentSelf(t *testing.T) {
	m := NewMirror(DefaultConfig(), testWelcome())
	m.Apply(protocol.Snapshot{Seq: 1, ServerTime: 1000, Full: true, Entities: []protocol.EntityState{{ID: "me", X: 100, Y: 100}}}, t0)

	now := t0.Add(16 * time.Millisecond)
	m.Predict(game.Vec2{X: 1}, 16*time.Millisecond, now)
	predicted := m.Reconciler().Position()
	if predicted.X <= 100 {
		t.Fatalf("prediction did not move: %+v", predicted)
	}

	corrected, err := m.Apply(protocol.Snapshot{Seq: 2, ServerTime: 1033, Entities: []protocol.EntityState{{ID: "me", X: 100, Y: 300}}}, t0.Add(33*time.Millisecond))
	if err != nil || !corrected {
		t.Fatalf("expected a correction (err=%v)", err)
	}
}
