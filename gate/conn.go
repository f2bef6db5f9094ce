package gate

import (
	"time"

	"arenasync/intent"
)

type connState struct {
	hits   []time.Time // 窗口内的提交时间（升序）
	held   *intent.Sample
	replay []intent.Sample

	backoff      time.Duration // 最近一次冷却时长
	backoffUntil time.Time
}

// hit 记录一次提交并返回窗口内的提交数（含本次）
func (c *connState) hit(now time.Time, cfg Config) int {
	c.prune(now, cfg.Window)
	c.hits = append(c.hits, now)
	// 洪泛时只需知道"超过硬上限"，多余的记录没有意义
	if limit := cfg.HardLimit + 1; len(c.hits) > limit {
		c.hits = append(c.hits[:0], c.hits[len(c.hits)-limit:]...)
	}
	return len(c.hits)
}

func (c *connState) count(now time.Time, window time.Duration) int {
	c.prune(now, window)
	return len(c.hits)
}

func (c *connState) prune(now time.Time, window time.Duration) {
	cut := 0
	for cut < len(c.hits) && now.Sub(c.hits[cut]) >= window {
		cut++
	}
	if cut > 0 {
		c.hits = append(c.hits[:0], c.hits[cut:]...)
	}
}

func (c *connState) inBackoff(now time.Time) bool {
	return now.Before(c.backoffUntil)
}

// escalate 连续违规翻倍，上限 BackoffMax；上次冷却结束后安静满一个窗口则从 BackoffBase 重新开始
func (c *connState) escalate(now time.Time, cfg Config) {
	switch {
	case c.backoff == 0 || now.Sub(c.backoffUntil) >= cfg.Window:
		c.backoff = cfg.BackoffBase
	default:
		c.backoff *= 2
	}
	if c.backoff > cfg.BackoffMax {
		c.backoff = cfg.BackoffMax
	}
	c.backoffUntil = now.Add(c.backoff)
}

// relax 冷却结束后满一个窗口无违规，清除退避级别
func (c *connState) relax(now time.Time, cfg Config) {
	if c.backoff > 0 && now.Sub(c.backoffUntil) >= cfg.Window {
		c.backoff = 0
		c.backoffUntil = time.Time{}
	}
}

func (c *connState) hold(s intent.Sample) {
	c.held = &s
}

func (c *connState) buffer(s intent.Sample, capacity int) {
	if capacity <= 0 {
		return
	}
	if len(c.replay) >= capacity {
		c.replay = append(c.replay[:0], c.replay[len(c.replay)-capacity+1:]...)
	}
	c.replay = append(c.replay, s)
}

func (c *connState) expireReplay(now time.Time, staleAfter time.Duration) {
	cut := 0
	for cut < len(c.replay) && now.Sub(c.replay[cut].ReceivedAt) > staleAfter {
		cut++
	}
	if cut > 0 {
		c.replay = append(c.replay[:0], c.replay[cut:]...)
	}
}

func (c *connState) popFront() intent.Sample {
	s := c.replay[0]
	c.replay = append(c.replay[:0], c.replay[1:]...)
	return s
}

func (c *connState) popBack() intent.Sample {
	s := c.replay[len(c.replay)-1]
	c.replay = c.replay[:len(c.replay)-1]
	return s
}
