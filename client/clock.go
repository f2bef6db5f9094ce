package client

import "time"

// ServerClock 估计服务端时钟。每个快照给出一个 (本地到达时间 - 服务端时间) 样本，
// 取窗口内的最小值：它对应传输延迟最小的那一次。
type ServerClock struct {
	deltas []time.Duration
	next   int
	n      int
}

// NewServerClock window 为参与估计的样本数
func NewServerClock(window int) *ServerClock {
	if window < 1 {
		window = 1
	}
	return &ServerClock{deltas: make([]time.Duration, window)}
}

// Observe serverMs 为快照中的服务端毫秒时间
func (c *ServerClock) Observe(serverMs int64, local time.Time) {
	c.deltas[c.next] = local.Sub(time.UnixMilli(serverMs))
	c.next = (c.next + 1) % len(c.deltas)
	if c.n < len(c.deltas) {
		c.n++
	}
}

// Synced 至少观察过一个样本
func (c *ServerClock) Synced() bool { return c.n > 0 }

// Offset 本地时间减去服务端时间的估计值
func (c *ServerClock) Offset() time.Duration {
	if c.n == 0 {
		return 0
	}
	best := c.deltas[0]
	for i := 1; i < c.n; i++ {
		if c.deltas[i] < best {
			best = c.deltas[i]
		}
	}
	return best
}

// ToLocal 把服务端毫秒时间换算到本地时钟
func (c *ServerClock) ToLocal(serverMs int64) time.Time {
	return time.UnixMilli(serverMs).Add(c.Offset())
}

// Now 估计的服务端当前时间
func (c *ServerClock) Now(local time.Time) time.Time {
	return local.Add(-c.Offset())
}
