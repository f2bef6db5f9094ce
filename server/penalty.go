package server

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// PenaltyMemory 按远端地址记住断线时的退避级别，重连后恢复，
// 断线重连不能清零惩罚。记录在 TTL 后自然过期。
type PenaltyMemory struct {
	cache *ristretto.Cache[string, time.Duration]
	ttl   time.Duration
}

// NewPenaltyMemory ttl 通常取退避重置窗口的 10 倍
func NewPenaltyMemory(ttl time.Duration) (*PenaltyMemory, error) {
	cache, err := ristretto.NewCache[string, time.Duration](&ristretto.Config[string, time.Duration]{
		NumCounters:        10000,
		MaxCost:            1000, // 每条记录 cost=1，最多约 1000 个地址
		BufferItems:        64,
		IgnoreInternalCost: true, // 只按条数计费
	})
	if err != nil {
		return nil, err
	}
	return &PenaltyMemory{cache: cache, ttl: ttl}, nil
}

// Remember 记录退避级别；nil 接收者什么也不做
func (p *PenaltyMemory) Remember(host string, level time.Duration) {
	if p == nil || host == "" || level <= 0 {
		return
	}
	p.cache.SetWithTTL(host, level, 1, p.ttl)
	p.cache.Wait()
}

// Recall 取出并清除记录
func (p *PenaltyMemory) Recall(host string) (time.Duration, bool) {
	if p == nil || host == "" {
		return 0, false
	}
	level, ok := p.cache.Get(host)
	if !ok {
		return 0, false
	}
	p.cache.Del(host)
	return level, true
}

// Close 释放缓存的后台协程
func (p *PenaltyMemory) Close() {
	if p != nil {
		p.cache.Close()
	}
}
