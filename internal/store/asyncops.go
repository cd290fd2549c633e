package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// EnqueueAsyncOp records a durable job in pending status (consolidation
// batch, mental model generation/refresh) (§4.1, §4.7). The scheduler does
// not read async_operations; it runs consolidation passes on its timer.
func (s *Store) EnqueueAsyncOp(ctx context.Context, bankID uuid.UUID, operationType string, payload map[string]any) (uuid.UUID, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	var id uuid.UUID
	err := s.Pool.QueryRow(ctx, `
INSERT INTO async_operations (bank_id, operation_type, status, payload)
VALUES ($1, $2, 'pending', $3)
RETURNING id`, bankID, operationType, payload).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("enqueue async op %s: %w", operationType, err)
	}
	return id, nil
}

// StartAsyncOp transitions a job to processing and stamps started_at,
// recording which worker claimed it.
func (s *Store) StartAsyncOp(ctx context.Context, id uuid.UUID, workerID string) error {
	_, err := s.Pool.Exec(ctx, `
UPDATE async_operations SET status = 'processing', worker_id = $2, started_at = now()
WHERE id = $1`, id, workerID)
	if err != nil {
		return fmt.Errorf("start async op %s: %w", id, err)
	}
	return nil
}

// FinishAsyncOp marks an operation completed or failed, recording its result
// or error message and stamping completed_at. async_operations has no
// updated_at column — this call, not a trigger, is the only writer after
// StartAsyncOp.
func (s *Store) FinishAsyncOp(ctx context.Context, id uuid.UUID, status AsyncOperationStatus, result map[string]any, errMsg string) error {
	if result == nil {
		result = map[string]any{}
	}
	_, err := s.Pool.Exec(ctx, `
UPDATE async_operations SET status = $2, result = $3, error_message = $4, completed_at = now()
WHERE id = $1`, id, string(status), result, errMsg)
	if err != nil {
		return fmt.Errorf("finish async op %s: %w", id, err)
	}
	return nil
}

// GetAsyncOp loads one job by id.
func (s *Store) GetAsyncOp(ctx context.Context, id uuid.UUID) (AsyncOperation, error) {
	var op AsyncOperation
	var status string
	err := s.Pool.QueryRow(ctx, `
SELECT id, bank_id, operation_type, status, worker_id, payload, result, error_message,
       created_at, started_at, completed_at
FROM async_operations WHERE id = $1`, id).Scan(
		&op.ID, &op.BankID, &op.OperationType, &status, &op.WorkerID, &op.Payload, &op.Result,
		&op.ErrorMessage, &op.CreatedAt, &op.StartedAt, &op.CompletedAt)
	op.Status = AsyncOperationStatus(status)
	if err != nil {
		return AsyncOperation{}, fmt.Errorf("get async op %s: %w", id, err)
	}
	return op, nil
}

// ListPendingAsyncOps returns jobs a worker can claim, oldest first, a
// query backed by the partial index on pending jobs (§4.1, §5).
func (s *Store) ListPendingAsyncOps(ctx context.Context, bankID uuid.UUID, limit int) ([]AsyncOperation, error) {
	rows, err := s.Pool.Query(ctx, `
SELECT id, bank_id, operation_type, status, worker_id, payload, result, error_message,
       created_at, started_at, completed_at
FROM async_operations
WHERE bank_id = $1 AND status = 'pending'
ORDER BY created_at ASC
LIMIT $2`, bankID, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending async ops: %w", err)
	}
	defer rows.Close()
	var out []AsyncOperation
	for rows.Next() {
		var op AsyncOperation
		var status string
		if err := rows.Scan(&op.ID, &op.BankID, &op.OperationType, &status, &op.WorkerID, &op.Payload,
			&op.Result, &op.ErrorMessage, &op.CreatedAt, &op.StartedAt, &op.CompletedAt); err != nil {
			return nil, err
		}
		op.Status = AsyncOperationStatus(status)
		out = append(out, op)
	}
	return out, rows.Err()
}
