package presence

import (
	"context"
	"sync"

	"github.com/samber/lo"
)

// Memory is a process-local Table.
type Memory struct {
	mu    sync.RWMutex
	conns map[string]map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{conns: make(map[string]map[string]struct{})}
}

func (m *Memory) MarkOnline(_ context.Context, userID, connID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.conns[userID]
	if !ok {
		set = make(map[string]struct{})
		m.conns[userID] = set
	}
	first := len(set) == 0
	set[connID] = struct{}{}
	return first, nil
}

func (m *Memory) MarkOffline(_ context.Context, userID, connID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.conns[userID]
	if !ok {
		return true, nil
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(m.conns, userID)
		return true, nil
	}
	return false, nil
}

func (m *Memory) IsOnline(_ context.Context, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns[userID]) > 0, nil
}

func (m *Memory) OnlineSubsetOf(_ context.Context, userIDs []string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lo.Filter(userIDs, func(id string, _ int) bool {
		return len(m.conns[id]) > 0
	}), nil
}

func (m *Memory) Close() error { return nil }
