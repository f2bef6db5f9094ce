package ai

import (
	"math"
	"math/rand"
	"time"

	"arenasync/game"
	"arenasync/intent"
)

// Personality 创建时生成、之后不再改变的性格向量，各分量在 [0,1]
type Personality struct {
	Aggressiveness float64
	Caution        float64
	Curiosity      float64
	Planning       float64
}

// NewPersonality 随机生成性格
func NewPersonality(rng *rand.Rand) Personality {
	return Personality{
		Aggressiveness: rng.Float64(),
		Caution:        rng.Float64(),
		Curiosity:      rng.Float64(),
		Planning:       rng.Float64(),
	}
}

// Steer 把目标点转换成意图：方向归一化，叠加随规划能力下降而变大的扰动，
// 最后经过与移动校验相同的模长限制
func Steer(d Decision, self game.Vec2, p Personality, noise float64, t Tuning) game.Vec2 {
	dir := d.Target.Sub(self)
	if dir.Len() <= t.ArriveRadius {
		return game.Vec2{}
	}
	jitter := (noise*2 - 1) * t.MaxNoise * (1 - p.Planning)
	return game.ClampIntent(dir.Normalize().Rotate(jitter))
}

// Agent 一个电脑控制实体的大脑；实现 intent.Source
type Agent struct {
	id          game.EntityID
	personality Personality
	tuning      Tuning
	rng         *rand.Rand

	view     View
	decision Decision
	intent   game.Vec2
	nextEval time.Time
	stuck    stuckDetector
	seq      uint32

	overrides int
}

// NewAgent 创建 AI；性格由 rng 生成一次
func NewAgent(id game.EntityID, rng *rand.Rand, tuning Tuning) *Agent {
	return &Agent{
		id:          id,
		personality: NewPersonality(rng),
		tuning:      tuning,
		rng:         rng,
		decision:    Decision{Behavior: Explore, Heading: rng.Float64() * 2 * math.Pi},
		stuck:       newStuckDetector(tuning.StuckWindow),
	}
}

func (a *Agent) ID() game.EntityID        { return a.id }
func (a *Agent) Personality() Personality { return a.personality }
func (a *Agent) Decision() Decision       { return a.decision }
func (a *Agent) Intent() game.Vec2        { return a.intent }
func (a *Agent) StuckOverrides() int      { return a.overrides }
func (a *Agent) SetTuning(t Tuning)       { a.tuning = t }
func (a *Agent) Observe(v View)           { a.view = v }
func (a *Agent) Due(now time.Time) bool   { return !now.Before(a.nextEval) }

// Next 按决策节奏产出采样；未到节奏时返回 ok=false（上一次的意图仍在 gate 槽内生效）
func (a *Agent) Next(now time.Time) (intent.Sample, bool) {
	if !a.Due(now) {
		return intent.Sample{}, false
	}
	a.nextEval = now.Add(a.tuning.Interval)

	self := a.view.Self.Pos
	a.stuck.push(self)
	stuck := !a.intent.IsZero() && a.stuck.stuck(a.tuning.StuckThreshold)
	if stuck {
		a.stuck.reset()
		a.overrides++
	}

	a.decision = Decide(a.decision, Input{
		View:        a.view,
		Personality: a.personality,
		Draws:       Draws{Curiosity: a.rng.Float64(), Turn: a.rng.Float64(), Heading: a.rng.Float64(), Side: a.rng.Float64()},
		Stuck:       stuck,
		Tuning:      a.tuning,
	})
	a.intent = Steer(a.decision, self, a.personality, a.rng.Float64(), a.tuning)

	a.seq++
	return intent.Sample{
		Intent:     a.intent,
		AxisActive: true,
		CapturedAt: now.UnixMilli(),
		Seq:        a.seq,
	}, true
}

// stuckDetector 记录最近若干次决策时的位置
type stuckDetector struct {
	ring []game.Vec2
	next int
	full bool
}

func newStuckDetector(n int) stuckDetector {
	if n < 2 {
		n = 2
	}
	return stuckDetector{ring: make([]game.Vec2, n)}
}

func (s *stuckDetector) push(p game.Vec2) {
	s.ring[s.next] = p
	s.next = (s.next + 1) % len(s.ring)
	if s.next == 0 {
		s.full = true
	}
}

// stuck 窗口填满且首尾位移低于阈值
func (s *stuckDetector) stuck(threshold float64) bool {
	if !s.full {
		return false
	}
	oldest := s.ring[s.next]
	newest := s.ring[(s.next+len(s.ring)-1)%len(s.ring)]
	return oldest.Dist(newest) < threshold
}

func (s *stuckDetector) reset() {
	s.next = 0
	s.full = false
}
