package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/saga"
)

// SagaRepo — Postgres-реализация saga.Store.
//
// Одна живая запись на saga_id обеспечивается первичным ключом
// и UPSERT'ом в Put.
type SagaRepo struct {
	pool *pgxpool.Pool
}

// NewSagaRepo создаёт SagaRepo.
func NewSagaRepo(pool *pgxpool.Pool) *SagaRepo {
	return &SagaRepo{pool: pool}
}

// EnsureSchema создаёт таблицу компенсаций, если её нет.
func (r *SagaRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS saga_compensations (
			saga_id             TEXT PRIMARY KEY,
			step_name           TEXT NOT NULL,
			data                JSONB NOT NULL,
			recorded_at         TIMESTAMPTZ NOT NULL,
			manual_intervention BOOLEAN NOT NULL DEFAULT FALSE,
			failure_reason      TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure saga schema: %w", err)
	}
	return nil
}

// Get возвращает живую запись саги.
func (r *SagaRepo) Get(ctx context.Context, sagaID string) (*domain.CompensationRecord, error) {
	query := `
		SELECT saga_id, step_name, data, recorded_at, manual_intervention, failure_reason
		FROM saga_compensations
		WHERE saga_id = $1
	`

	var record domain.CompensationRecord
	var dataJSON []byte
	var failureReason *string

	err := r.pool.QueryRow(ctx, query, sagaID).Scan(
		&record.SagaID,
		&record.StepName,
		&dataJSON,
		&record.RecordedAt,
		&record.ManualIntervention,
		&failureReason,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, saga.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan compensation record: %w", err)
	}

	if err := json.Unmarshal(dataJSON, &record.Data); err != nil {
		return nil, fmt.Errorf("unmarshal compensation data: %w", err)
	}
	if failureReason != nil {
		record.FailureReason = *failureReason
	}

	return &record, nil
}

// Put записывает (или перезаписывает) запись саги.
func (r *SagaRepo) Put(ctx context.Context, record *domain.CompensationRecord) error {
	dataJSON, err := json.Marshal(record.Data)
	if err != nil {
		return fmt.Errorf("marshal compensation data: %w", err)
	}

	query := `
		INSERT INTO saga_compensations (saga_id, step_name, data, recorded_at, manual_intervention, failure_reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (saga_id) DO UPDATE
		SET step_name = $2, data = $3, recorded_at = $4,
		    manual_intervention = $5, failure_reason = $6
	`
	_, err = r.pool.Exec(ctx, query,
		record.SagaID,
		record.StepName,
		dataJSON,
		record.RecordedAt,
		record.ManualIntervention,
		nullString(record.FailureReason),
	)
	if err != nil {
		return fmt.Errorf("upsert compensation record: %w", err)
	}
	return nil
}

// Delete удаляет запись саги. Отсутствие записи — не ошибка.
func (r *SagaRepo) Delete(ctx context.Context, sagaID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM saga_compensations WHERE saga_id = $1`, sagaID)
	if err != nil {
		return fmt.Errorf("delete compensation record: %w", err)
	}
	return nil
}

// MarkManual помечает запись для ручного вмешательства.
func (r *SagaRepo) MarkManual(ctx context.Context, sagaID, reason string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE saga_compensations
		SET manual_intervention = TRUE, failure_reason = $2
		WHERE saga_id = $1
	`, sagaID, reason)
	if err != nil {
		return fmt.Errorf("mark compensation record: %w", err)
	}
	if result.RowsAffected() == 0 {
		return saga.ErrRecordNotFound
	}
	return nil
}

// Count возвращает количество живых записей.
func (r *SagaRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM saga_compensations`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count compensation records: %w", err)
	}
	return count, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
