package saga

import (
	"context"
	"sync"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Store — хранилище compensation records.
//
// Контракт одинаковый для in-memory и Postgres реализации:
// Put перезаписывает живую запись саги, Delete без записи — no-op.
type Store interface {
	// Get возвращает живую запись саги.
	Get(ctx context.Context, sagaID string) (*domain.CompensationRecord, error)

	// Put записывает (или перезаписывает) запись саги.
	Put(ctx context.Context, record *domain.CompensationRecord) error

	// Delete удаляет запись саги. Отсутствие записи — не ошибка.
	Delete(ctx context.Context, sagaID string) error

	// MarkManual помечает запись для ручного вмешательства.
	MarkManual(ctx context.Context, sagaID, reason string) error

	// Count возвращает количество живых записей (бэклог компенсаций).
	Count(ctx context.Context) (int, error)
}

// MemoryStore — in-memory реализация Store.
//
// Используется без DB_URL: записи не переживают рестарт процесса,
// что приемлемо для dev/test окружений.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*domain.CompensationRecord
}

// NewMemoryStore создаёт MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*domain.CompensationRecord)}
}

// Get возвращает запись саги.
func (s *MemoryStore) Get(_ context.Context, sagaID string) (*domain.CompensationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[sagaID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	copied := *record
	return &copied, nil
}

// Put записывает запись саги, перезаписывая существующую.
func (s *MemoryStore) Put(_ context.Context, record *domain.CompensationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *record
	if copied.RecordedAt.IsZero() {
		copied.RecordedAt = time.Now()
	}
	s.records[record.SagaID] = &copied
	return nil
}

// Delete удаляет запись саги.
func (s *MemoryStore) Delete(_ context.Context, sagaID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, sagaID)
	return nil
}

// MarkManual помечает запись для ручного вмешательства.
func (s *MemoryStore) MarkManual(_ context.Context, sagaID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[sagaID]
	if !ok {
		return ErrRecordNotFound
	}
	record.ManualIntervention = true
	record.FailureReason = reason
	return nil
}

// Count возвращает количество живых записей.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}
