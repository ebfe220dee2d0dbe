package infra

import (
	"context"
	"sync"

	"github.com/eliteGoblin/focusd/discipline/internal/domain"
)

// mockProcessManager is a test double for domain.ProcessManager
type mockProcessManager struct {
	mu         sync.Mutex
	procs      []domain.ProcessInfo
	killedPIDs []int
	killErr    map[int]error
	listErr    error
}

func newMockProcessManager(procs ...domain.ProcessInfo) *mockProcessManager {
	return &mockProcessManager{procs: procs, killErr: make(map[int]error)}
}

func (m *mockProcessManager) FindByName(pattern string) ([]int, error) {
	return nil, nil
}

func (m *mockProcessManager) Kill(pid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.killErr[pid]; err != nil {
		return err
	}
	m.killedPIDs = append(m.killedPIDs, pid)
	for i, p := range m.procs {
		if p.PID == pid {
			m.procs = append(m.procs[:i], m.procs[i+1:]...)
			break
		}
	}
	return nil
}

func (m *mockProcessManager) Running(ctx context.Context) ([]domain.ProcessInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]domain.ProcessInfo(nil), m.procs...), nil
}
