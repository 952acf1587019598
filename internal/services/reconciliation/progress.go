package reconciliation

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"itc-reconciliation-backend/internal/models"

	"github.com/google/uuid"
)

type memoryProgress struct {
	processed atomic.Int64
	total     int
	mu        sync.Mutex
	status    models.ImportStatus
	updatedAt time.Time
}

// MemoryProgress keeps progress in process memory. It is the default when no
// Redis is configured.
type MemoryProgress struct {
	entries sync.Map // batchID -> *memoryProgress
}

func NewMemoryProgress() *MemoryProgress {
	return &MemoryProgress{}
}

func (m *MemoryProgress) Start(_ context.Context, batchID uuid.UUID, total int) error {
	m.entries.Store(batchID, &memoryProgress{
		total:     total,
		status:    models.ImportProcessing,
		updatedAt: time.Now().UTC(),
	})
	return nil
}

func (m *MemoryProgress) Advance(_ context.Context, batchID uuid.UUID) error {
	val, ok := m.entries.Load(batchID)
	if !ok {
		return nil
	}
	p := val.(*memoryProgress)
	p.processed.Add(1)
	p.mu.Lock()
	p.updatedAt = time.Now().UTC()
	p.mu.Unlock()
	return nil
}

func (m *MemoryProgress) Finish(_ context.Context, batchID uuid.UUID, status models.ImportStatus) error {
	val, ok := m.entries.Load(batchID)
	if !ok {
		return nil
	}
	p := val.(*memoryProgress)
	p.mu.Lock()
	p.status = status
	p.updatedAt = time.Now().UTC()
	p.mu.Unlock()
	return nil
}

// Get returns nil when no pass has been tracked for the batch.
func (m *MemoryProgress) Get(_ context.Context, batchID uuid.UUID) (*models.Progress, error) {
	val, ok := m.entries.Load(batchID)
	if !ok {
		return nil, nil
	}
	p := val.(*memoryProgress)
	p.mu.Lock()
	defer p.mu.Unlock()
	return &models.Progress{
		ImportBatchID: batchID,
		Processed:     int(p.processed.Load()),
		Total:         p.total,
		Status:        p.status,
		UpdatedAt:     p.updatedAt,
	}, nil
}
