package ai

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"

	"arenasync/game"
)

func baseView(self Neighbor, others ...Neighbor) View {
	return View{Self: self, Width: 1000, Height: 1000, Radius: 16, Others: others}
}

func calmDraws() Draws {
	return Draws{Curiosity: 0.99, Turn: 0.99, Heading: 0.25, Side: 0.9}
}

func TestDecideChaserPursuesNearestRunner(t *testing.T) {
	v := baseView(
		Neighbor{ID: "me", Pos: game.Vec2{X: 500, Y: 500}, Chaser: true},
		Neighbor{ID: "far", Pos: game.Vec2{X: 900, Y: 500}},
		Neighbor{ID: "near", Pos: game.Vec2{X: 400, Y: 500}},
	)
	d := Decide(Decision{}, Input{View: v, Draws: calmDraws(), Tuning: DefaultTuning()})
	if d.Behavior != Pursue || d.TargetID != "near" {
		t.Fatalf("decision = %s", spew.Sdump(d))
	}
	if d.Target != (game.Vec2{X: 400, Y: 500}) {
		t.Fatalf("target = %+v, want the runner position (no lead without velocity)", d.Target)
	}
}

func TestDecideChaserLeadsMovingTarget(t *testing.T) {
	v := baseView(
		Neighbor{ID: "me", Pos: game.Vec2{X: 500, Y: 500}, Chaser: true},
		Neighbor{ID: "runner", Pos: game.Vec2{X: 400, Y: 500}, Vel: game.Vec2{Y: 100}},
	)
	in := Input{View: v, Draws: calmDraws(), Tuning: DefaultTuning(), Personality: Personality{Aggressiveness: 1}}
	d := Decide(Decision{}, in)
	wantY := 500 + 100*in.Tuning.LeadTime.Seconds()
	if math.Abs(d.Target.Y-wantY) > 1e-9 {
		t.Fatalf("lead target y = %f, want %f", d.Target.Y, wantY)
	}
}

func TestDecideIgnoresHiddenBeyondRevealRadius(t *testing.T) {
	tuning := DefaultTuning()
	v := baseView(
		Neighbor{ID: "me", Pos: game.Vec2{X: 500, Y: 500}, Chaser: true},
		Neighbor{ID: "ghost", Pos: game.Vec2{X: 500 + tuning.RevealRadius + 50, Y: 500}, Hidden: true},
	)
	d := Decide(Decision{}, Input{View: v, Draws: calmDraws(), Tuning: tuning})
	if d.Behavior != Explore {
		t.Fatalf("hidden runner should not be pursued: %s", spew.Sdump(d))
	}

	v.Others[0].Pos.X = 500 + tuning.RevealRadius - 1
	d = Decide(Decision{}, Input{View: v, Draws: calmDraws(), Tuning: tuning})
	if d.Behavior != Pursue {
		t.Fatalf("hidden runner within reveal radius should be pursued: %s", spew.Sdump(d))
	}
}

func TestDecideEvadesNearbyChaser(t *testing.T) {
	v := baseView(
		Neighbor{ID: "me", Pos: game.Vec2{X: 500, Y: 500}},
		Neighbor{ID: "it", Pos: game.Vec2{X: 450, Y: 500}, Chaser: true},
	)
	d := Decide(Decision{}, Input{View: v, Draws: calmDraws(), Tuning: DefaultTuning()})
	if d.Behavior != Evade || d.TargetID != "it" {
		t.Fatalf("decision = %s", spew.Sdump(d))
	}
	if d.Target.X <= 500 || d.Target.Y != 500 {
		t.Fatalf("evade target %+v should point away from the chaser along +X", d.Target)
	}
}

func TestDecideEvadeClampedAndSlidesWhenCornered(t *testing.T) {
	v := baseView(
		Neighbor{ID: "me", Pos: game.Vec2{X: 984, Y: 500}},
		Neighbor{ID: "it", Pos: game.Vec2{X: 900, Y: 500}, Chaser: true},
	)
	d := Decide(Decision{}, Input{View: v, Draws: calmDraws(), Tuning: DefaultTuning()})
	if d.Behavior != Evade {
		t.Fatalf("decision = %s", spew.Sdump(d))
	}
	if d.Target.X > 984 || d.Target.Y == 500 {
		t.Fatalf("cornered evade target %+v should slide along the wall inside bounds", d.Target)
	}
}

func TestDecideCautionWidensEvadeRadius(t *testing.T) {
	tuning := DefaultTuning()
	dist := tuning.EvadeRadius + 50
	v := baseView(
		Neighbor{ID: "me", Pos: game.Vec2{X: 500, Y: 500}},
		Neighbor{ID: "it", Pos: game.Vec2{X: 500 - dist, Y: 500}, Chaser: true},
	)
	bold := Decide(Decision{}, Input{View: v, Draws: calmDraws(), Tuning: tuning})
	careful := Decide(Decision{}, Input{View: v, Draws: calmDraws(), Tuning: tuning, Personality: Personality{Caution: 1}})
	if bold.Behavior == Evade || careful.Behavior != Evade {
		t.Fatalf("bold=%v careful=%v, want explore/evade", bold.Behavior, careful.Behavior)
	}
}

func TestDecideAcquireDependsOnCuriosityDraw(t *testing.T) {
	v := baseView(Neighbor{ID: "me", Pos: game.Vec2{X: 500, Y: 500}})
	v.Items = []game.Vec2{{X: 600, Y: 500}, {X: 520, Y: 480}}

	curious := Input{View: v, Draws: Draws{Curiosity: 0.2, Turn: 0.99}, Tuning: DefaultTuning(), Personality: Personality{Curiosity: 0.5}}
	d := Decide(Decision{}, curious)
	if d.Behavior != Acquire || d.Target != (game.Vec2{X: 520, Y: 480}) {
		t.Fatalf("decision = %s", spew.Sdump(d))
	}

	curious.Draws.Curiosity = 0.7
	if d := Decide(Decision{}, curious); d.Behavior == Acquire {
		t.Fatalf("draw above curiosity must not acquire")
	}
}

func TestDecideExploreKeepsHeadingUnlessTurnDraw(t *testing.T) {
	v := baseView(Neighbor{ID: "me", Pos: game.Vec2{X: 500, Y: 500}})
	prev := Decision{Behavior: Explore, Heading: 0}
	tuning := DefaultTuning()

	keep := Decide(prev, Input{View: v, Draws: Draws{Curiosity: 1, Turn: 0.5, Heading: 0.5}, Tuning: tuning})
	if keep.Heading != 0 || keep.Target != (game.Vec2{X: 500 + tuning.ExploreDistance, Y: 500}) {
		t.Fatalf("heading should persist: %s", spew.Sdump(keep))
	}

	turn := Decide(prev, Input{View: v, Draws: Draws{Curiosity: 1, Turn: 0.01, Heading: 0.5}, Tuning: tuning})
	if math.Abs(turn.Heading-math.Pi) > 1e-9 {
		t.Fatalf("heading after turn draw = %f, want pi", turn.Heading)
	}
}

func TestDecideExploreTurnsAroundAtWall(t *testing.T) {
	v := baseView(Neighbor{ID: "me", Pos: game.Vec2{X: 980, Y: 500}})
	d := Decide(Decision{Behavior: Explore, Heading: 0}, Input{View: v, Draws: Draws{Curiosity: 1, Turn: 0.99}, Tuning: DefaultTuning()})
	if d.Target.X >= 980 {
		t.Fatalf("explore target %+v should turn away from the wall", d.Target)
	}
}

func TestDecideStuckForcesRandomHeading(t *testing.T) {
	v := baseView(
		Neighbor{ID: "me", Pos: game.Vec2{X: 500, Y: 500}, Chaser: true},
		Neighbor{ID: "runner", Pos: game.Vec2{X: 400, Y: 500}},
	)
	d := Decide(Decision{Behavior: Pursue}, Input{View: v, Draws: Draws{Heading: 0.25}, Stuck: true, Tuning: DefaultTuning()})
	if d.Behavior != Explore || math.Abs(d.Heading-math.Pi/2) > 1e-9 {
		t.Fatalf("stuck override = %s", spew.Sdump(d))
	}
}

func TestDecideIsPure(t *testing.T) {
	v := baseView(
		Neighbor{ID: "me", Pos: game.Vec2{X: 300, Y: 300}},
		Neighbor{ID: "it", Pos: game.Vec2{X: 350, Y: 320}, Chaser: true},
	)
	in := Input{View: v, Draws: Draws{Curiosity: 0.4, Turn: 0.3, Heading: 0.7, Side: 0.1}, Tuning: DefaultTuning(), Personality: Personality{Caution: 0.3}}
	a := Decide(Decision{Heading: 1}, in)
	b := Decide(Decision{Heading: 1}, in)
	if a != b {
		t.Fatalf("Decide not deterministic:\n%s\n%s", spew.Sdump(a), spew.Sdump(b))
	}
}

func TestSteerClampsAndAddsNoise(t *testing.T) {
	tuning := DefaultTuning()
	d := Decision{Target: game.Vec2{X: 600, Y: 500}}
	self := game.Vec2{X: 500, Y: 500}

	exact := Steer(d, self, Personality{Planning: 1}, 0.9, tuning)
	if math.Abs(exact.X-1) > 1e-12 || math.Abs(exact.Y) > 1e-12 {
		t.Fatalf("perfect planner should steer straight, got %+v", exact)
	}
	noisy := Steer(d, self, Personality{Planning: 0}, 1, tuning)
	if noisy.Len() > 1+1e-12 || math.Abs(math.Atan2(noisy.Y, noisy.X)) < 0.5 {
		t.Fatalf("poor planner should deviate up to MaxNoise, got %+v", noisy)
	}
	if arrived := Steer(Decision{Target: self}, self, Personality{}, 0.5, tuning); !arrived.IsZero() {
		t.Fatalf("arrived agent should stop, got %+v", arrived)
	}
}

func TestAgentCadenceAndImmutablePersonality(t *testing.T) {
	tuning := DefaultTuning()
	a := NewAgent("bot-1", rand.New(rand.NewSource(7)), tuning)
	p := a.Personality()
	for _, f := range []float64{p.Aggressiveness, p.Caution, p.Curiosity, p.Planning} {
		if f < 0 || f > 1 {
			t.Fatalf("personality out of range: %+v", p)
		}
	}
	a.Observe(baseView(Neighbor{ID: "bot-1", Pos: game.Vec2{X: 500, Y: 500}}))

	now := time.Unix(10, 0)
	s, ok := a.Next(now)
	if !ok || s.Seq != 1 || !s.AxisActive || s.Intent.Len() > 1+1e-9 {
		t.Fatalf("first evaluation = %+v ok=%v", s, ok)
	}
	if a.Intent() != s.Intent {
		t.Fatalf("held intent %+v differs from emitted %+v", a.Intent(), s.Intent)
	}
	if _, ok := a.Next(now.Add(tuning.Interval / 2)); ok {
		t.Fatalf("agent evaluated before its cadence")
	}
	if _, ok := a.Next(now.Add(tuning.Interval)); !ok {
		t.Fatalf("agent did not evaluate on cadence")
	}
	if a.Personality() != p {
		t.Fatalf("personality changed after evaluation")
	}
}

func TestAgentStuckDetectorOverridesHeading(t *testing.T) {
	tuning := DefaultTuning()
	a := NewAgent("bot-1", rand.New(rand.NewSource(3)), tuning)
	a.Observe(baseView(Neighbor{ID: "bot-1", Pos: game.Vec2{X: 500, Y: 500}}))

	now := time.Unix(10, 0)
	for i := 0; i < tuning.StuckWindow+1; i++ {
		a.Next(now.Add(time.Duration(i) * tuning.Interval))
	}
	if a.StuckOverrides() == 0 {
		t.Fatalf("agent that never moves should trigger the stuck override")
	}
}
