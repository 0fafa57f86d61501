package leave

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"parahr/internal/platform/querier"
)

// txRetryLimit bounds transparent retries of serialization failures before
// the operation is surfaced as ErrTransactionAborted.
const txRetryLimit = 3

// PgStore is the production TxStore backed by Postgres. Row locks taken by
// the FOR UPDATE reads serialize racing decisions: same-request races on the
// request row, same-employee races on the employee row.
type PgStore struct {
	Pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{Pool: pool}
}

func (s *PgStore) InTx(ctx context.Context, fn func(Accessor) error) error {
	for attempt := 0; ; attempt++ {
		err := s.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !retryableTxError(err) {
			return err
		}
		if attempt >= txRetryLimit {
			return ErrTransactionAborted
		}
	}
}

func (s *PgStore) runTx(ctx context.Context, fn func(Accessor) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	if err := fn(&pgData{DB: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func retryableTxError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// serialization_failure, deadlock_detected
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

type pgData struct {
	DB querier.Querier
}

func (d *pgData) RequestForUpdate(ctx context.Context, tenantID, requestID string) (Request, error) {
	var req Request
	err := d.DB.QueryRow(ctx, `
    SELECT id, employee_id, kind, start_date, end_date, day_count, reason, status, decided_by, decided_at, created_at
    FROM leave_requests
    WHERE tenant_id = $1 AND id = $2
    FOR UPDATE
  `, tenantID, requestID).Scan(&req.ID, &req.EmployeeID, &req.Kind, &req.StartDate, &req.EndDate, &req.DayCount, &req.Reason, &req.Status, &req.DecidedBy, &req.DecidedAt, &req.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Request{}, ErrNotFound
	}
	if err != nil {
		return Request{}, err
	}
	return req, nil
}

func (d *pgData) InsertRequest(ctx context.Context, tenantID string, req Request) (string, error) {
	var id string
	err := d.DB.QueryRow(ctx, `
    INSERT INTO leave_requests (tenant_id, employee_id, kind, start_date, end_date, day_count, reason, status, created_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
    RETURNING id
  `, tenantID, req.EmployeeID, req.Kind, req.StartDate, req.EndDate, req.DayCount, req.Reason, req.Status, req.CreatedAt).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (d *pgData) UpdateRequestStatus(ctx context.Context, tenantID, requestID string, status Status, decidedBy string, decidedAt time.Time) error {
	tag, err := d.DB.Exec(ctx, `
    UPDATE leave_requests
    SET status = $1, decided_by = $2, decided_at = $3
    WHERE tenant_id = $4 AND id = $5
  `, status, decidedBy, decidedAt, tenantID, requestID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *pgData) DeleteRequest(ctx context.Context, tenantID, requestID string) error {
	tag, err := d.DB.Exec(ctx, "DELETE FROM leave_requests WHERE tenant_id = $1 AND id = $2", tenantID, requestID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *pgData) BalanceForUpdate(ctx context.Context, tenantID, employeeID string) (int, error) {
	var balance int
	err := d.DB.QueryRow(ctx, `
    SELECT leave_balance
    FROM employees
    WHERE tenant_id = $1 AND id = $2
    FOR UPDATE
  `, tenantID, employeeID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrEmployeeNotFound
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (d *pgData) SetBalance(ctx context.Context, tenantID, employeeID string, days int) error {
	tag, err := d.DB.Exec(ctx, `
    UPDATE employees
    SET leave_balance = $1, updated_at = now()
    WHERE tenant_id = $2 AND id = $3
  `, days, tenantID, employeeID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEmployeeNotFound
	}
	return nil
}
