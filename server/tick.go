package server

import (
	"context"
	"time"
)

// Start 启动房间的 Tick 循环（单线程推进世界），ctx 结束或 Close 时退出
func (r *Room) Start(ctx context.Context) {
	if !r.running.CompareAndSwap(false, true) {
		return
	}
	go r.run(ctx)
}

func (r *Room) run(ctx context.Context) {
	defer close(r.stopped)
	ticker := time.NewTicker(r.dt)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.quit:
			return
		case cmd := <-r.cmdChan:
			cmd.fn(r)
			close(cmd.done)
		case <-ticker.C:
			// 核心循环：处理输入 → 更新世界 → 广播结果
			start := time.Now()
			r.Step(start)
			elapsed := time.Since(start)
			r.metrics.AddTick(elapsed.Nanoseconds())
			if elapsed > r.dt {
				r.metrics.add(&r.metrics.TickOverruns)
				r.log.Warnw("tick overrun", "tick", r.tickSeq, "elapsed", elapsed, "budget", r.dt)
			}
		}
	}
}

// Do 在 Tick 线程中执行 fn 并等待完成；管理接口通过它读写房间状态
func (r *Room) Do(ctx context.Context, fn func(r *Room)) error {
	if !r.running.Load() {
		return ErrRoomClosed
	}
	cmd := command{fn: fn, done: make(chan struct{})}
	select {
	case r.cmdChan <- cmd:
	case <-r.quit:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-cmd.done:
		return nil
	case <-r.stopped:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}
