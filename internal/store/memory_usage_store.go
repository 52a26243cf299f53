package store

import (
	"context"
	"sync"

	"github.com/pixelgate/pixelgate/internal/domain"
)

// MemoryUsageStore keeps usage rows in process memory. Dev and test only.
type MemoryUsageStore struct {
	mu   sync.Mutex
	logs []domain.UsageLog
}

func NewMemoryUsageStore() *MemoryUsageStore {
	return &MemoryUsageStore{}
}

func (s *MemoryUsageStore) CreateUsageLog(_ context.Context, usage domain.UsageLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, usage)
	return nil
}

func (s *MemoryUsageStore) UsageLogs() []domain.UsageLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UsageLog, len(s.logs))
	copy(out, s.logs)
	return out
}
