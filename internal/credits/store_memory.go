package credits

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string]int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string]int)}
}

func (s *memoryStore) Balance(ctx context.Context, userID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLocked(userID), nil
}

func (s *memoryStore) Debit(ctx context.Context, userID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	balance := s.ensureLocked(userID)
	if balance > 0 {
		balance--
	}
	s.data[userID] = balance
	return balance, nil
}

func (s *memoryStore) Reset(ctx context.Context, userID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[userID] = starterBalance
	return starterBalance, nil
}

func (s *memoryStore) ensureLocked(userID string) int {
	balance, ok := s.data[userID]
	if !ok {
		balance = starterBalance
		s.data[userID] = balance
	}
	return balance
}
