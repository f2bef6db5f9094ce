package server

import (
	"context"
	"fmt"
	"sort"

	"github.com/sasha-s/go-deadlock"
	"go.uber.org/multierr"

	"arenasync/config"
)

// DefaultRoom 未指定房间时使用
const DefaultRoom = "room-1"

// RoomManager 管理多个房间的生命周期
type RoomManager struct {
	mu     deadlock.RWMutex
	rooms  map[string]*Room
	closed bool

	ctx       context.Context
	cfg       config.Config
	opts      []Option
	penalties *PenaltyMemory
}

// NewRoomManager 创建房间管理器；ctx 结束时所有房间停止 Tick。
// 惩罚记忆在所有房间之间共享。
func NewRoomManager(ctx context.Context, cfg config.Config, opts ...Option) (*RoomManager, error) {
	penalties, err := NewPenaltyMemory(10 * cfg.Gate.Window)
	if err != nil {
		return nil, err
	}
	return &RoomManager{
		rooms:     make(map[string]*Room),
		ctx:       ctx,
		cfg:       cfg,
		opts:      append([]Option{WithPenalties(penalties)}, opts...),
		penalties: penalties,
	}, nil
}

// GetOrCreateRoom 获取或创建房间，并确保开始 Tick
func (m *RoomManager) GetOrCreateRoom(id string) (*Room, error) {
	m.mu.RLock()
	r, ok := m.rooms[id]
	closed := m.closed
	m.mu.RUnlock()
	if ok {
		return r, nil
	}
	if closed {
		return nil, ErrRoomClosed
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrRoomClosed
	}
	if r, ok = m.rooms[id]; !ok {
		r = NewRoom(id, m.cfg, m.opts...)
		m.rooms[id] = r
		r.Start(m.ctx)
		Log.Infow("room created", "room", id, "bots", m.cfg.Sim.Bots)
	}
	return r, nil
}

// Room 查找已存在的房间
func (m *RoomManager) Room(id string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	return r, ok
}

// RoomIDs 当前房间列表（排序）
func (m *RoomManager) RoomIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Shutdown 关闭所有房间，汇总关闭错误
func (m *RoomManager) Shutdown() error {
	m.mu.Lock()
	m.closed = true
	rooms := m.rooms
	m.rooms = make(map[string]*Room)
	m.mu.Unlock()

	var err error
	for id, r := range rooms {
		if cerr := r.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("room %s: %w", id, cerr))
		}
	}
	m.penalties.Close()
	return err
}
