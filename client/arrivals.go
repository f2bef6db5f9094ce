package client

import "time"

// arrivalTracker 记录最近若干次快照到达的间隔，用于估计延迟与抖动
type arrivalTracker struct {
	last      time.Time
	intervals []time.Duration
	next      int
	n         int
}

func newArrivalTracker(size int) arrivalTracker {
	if size < 2 {
		size = 2
	}
	return arrivalTracker{intervals: make([]time.Duration, size)}
}

func (a *arrivalTracker) observe(now time.Time) {
	if !a.last.IsZero() && now.After(a.last) {
		a.intervals[a.next] = now.Sub(a.last)
		a.next = (a.next + 1) % len(a.intervals)
		if a.n < len(a.intervals) {
			a.n++
		}
	}
	if now.After(a.last) {
		a.last = now
	}
}

// count 已记录的间隔数
func (a *arrivalTracker) count() int { return a.n }

// mean 平均到达间隔
func (a *arrivalTracker) mean() time.Duration {
	if a.n == 0 {
		return 0
	}
	var sum time.Duration
	for i := 0; i < a.n; i++ {
		sum += a.intervals[i]
	}
	return sum / time.Duration(a.n)
}

// jitter 平均绝对偏差
func (a *arrivalTracker) jitter() time.Duration {
	if a.n < 2 {
		return 0
	}
	m := a.mean()
	var dev time.Duration
	for i := 0; i < a.n; i++ {
		d := a.intervals[i] - m
		if d < 0 {
			d = -d
		}
		dev += d
	}
	return dev / time.Duration(a.n)
}
