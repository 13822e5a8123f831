package payment

import (
	"context"
	"sync"
)

type memoryRepository struct {
	mu       sync.RWMutex
	receipts []Receipt
}

// NewMemoryRepository builds an in-memory receipt store for tests and the
// development fallback.
func NewMemoryRepository() Repository {
	return &memoryRepository{}
}

func (r *memoryRepository) Record(_ context.Context, receipt Receipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receipts = append(r.receipts, receipt)
	return nil
}

func (r *memoryRepository) ListByCaller(_ context.Context, callerID string) ([]Receipt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Receipt
	for i := len(r.receipts) - 1; i >= 0; i-- {
		if r.receipts[i].CallerID == callerID {
			out = append(out, r.receipts[i])
		}
	}
	return out, nil
}
