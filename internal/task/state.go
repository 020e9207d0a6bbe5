package task

import (
	"sync"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Default configuration values.
const (
	defaultHistoryLimit = 10
)

// StateStore — in-memory хранилище WorkflowState.
//
// Принадлежит исключительно ядру выполнения; наружу уходят только
// снапшоты. Read-modify-write атомарен на вызов (под мьютексом
// стора), но порядок применения конкурентных вызовов одного workflow
// не гарантируется — история команд advisory, не транзакционная.
//
// Записи не удаляются при выполнении; рост ограничивает EvictIdle,
// который janitor зовёт по расписанию.
type StateStore struct {
	mu           sync.RWMutex
	states       map[string]*domain.WorkflowState
	historyLimit int

	// now подменяется в тестах.
	now func() time.Time
}

// NewStateStore создаёт StateStore.
// historyLimit <= 0 заменяется дефолтом (10).
func NewStateStore(historyLimit int) *StateStore {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	return &StateStore{
		states:       make(map[string]*domain.WorkflowState),
		historyLimit: historyLimit,
		now:          time.Now,
	}
}

// Record применяет выполнение команды к состоянию workflow.
//
// Создаёт запись при первом обращении; дальше — добавляет команду в
// bounded историю и инкрементирует счётчик. Возвращает снапшот
// состояния ПОСЛЕ применения.
func (s *StateStore) Record(workflowID, command string) domain.WorkflowState {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	state, ok := s.states[workflowID]
	if !ok {
		state = &domain.WorkflowState{
			WorkflowID: workflowID,
			CreatedAt:  now,
		}
		s.states[workflowID] = state
	}

	state.CommandHistory = append(state.CommandHistory, command)
	if len(state.CommandHistory) > s.historyLimit {
		state.CommandHistory = state.CommandHistory[len(state.CommandHistory)-s.historyLimit:]
	}
	state.ExecutionCount++
	state.LastUpdated = now

	return snapshot(state)
}

// Get возвращает снапшот состояния workflow.
func (s *StateStore) Get(workflowID string) (domain.WorkflowState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[workflowID]
	if !ok {
		return domain.WorkflowState{}, false
	}
	return snapshot(state), true
}

// Len возвращает количество резидентных workflow states.
func (s *StateStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}

// EvictIdle удаляет состояния, не обновлявшиеся дольше maxIdle.
// Возвращает количество удалённых записей.
func (s *StateStore) EvictIdle(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxIdle)
	evicted := 0
	for id, state := range s.states {
		if state.LastUpdated.Before(cutoff) {
			delete(s.states, id)
			evicted++
		}
	}
	return evicted
}

// snapshot копирует состояние (история — отдельный slice).
func snapshot(state *domain.WorkflowState) domain.WorkflowState {
	copied := *state
	copied.CommandHistory = append([]string(nil), state.CommandHistory...)
	return copied
}
