package leave

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"parahr/internal/domain/auth"
	"parahr/internal/platform/querier"
)

// Service is the lifecycle API handed to transport. Mutations delegate to the
// engine; reads query the store directly.
type Service struct {
	DB     querier.Querier
	Engine *Engine
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{DB: pool, Engine: NewEngine(NewPgStore(pool))}
}

func (s *Service) Submit(ctx context.Context, tenantID string, p SubmitParams) (Request, error) {
	return s.Engine.Submit(ctx, tenantID, p)
}

func (s *Service) Decide(ctx context.Context, tenantID, requestID string, outcome Outcome, actorUserID string) error {
	return s.Engine.Decide(ctx, tenantID, requestID, outcome, actorUserID)
}

func (s *Service) Cancel(ctx context.Context, tenantID, requestID, actorEmployeeID string) error {
	return s.Engine.Cancel(ctx, tenantID, requestID, actorEmployeeID)
}

func (s *Service) WithdrawApproved(ctx context.Context, tenantID, requestID, actorEmployeeID string) error {
	return s.Engine.WithdrawApproved(ctx, tenantID, requestID, actorEmployeeID)
}

func (s *Service) GetRequest(ctx context.Context, tenantID, requestID string) (Request, error) {
	var req Request
	err := s.DB.QueryRow(ctx, `
    SELECT id, employee_id, kind, start_date, end_date, day_count, reason, status, decided_by, decided_at, created_at
    FROM leave_requests
    WHERE tenant_id = $1 AND id = $2
  `, tenantID, requestID).Scan(&req.ID, &req.EmployeeID, &req.Kind, &req.StartDate, &req.EndDate, &req.DayCount, &req.Reason, &req.Status, &req.DecidedBy, &req.DecidedAt, &req.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Request{}, ErrNotFound
	}
	if err != nil {
		return Request{}, err
	}
	return req, nil
}

type RequestListResult struct {
	Requests []Request
	Total    int
}

func (s *Service) ListRequests(ctx context.Context, tenantID, roleName, employeeID, managerEmployeeID string, limit, offset int) (RequestListResult, error) {
	query := `
    SELECT id, employee_id, kind, start_date, end_date, day_count, reason, status, decided_by, decided_at, created_at
    FROM leave_requests
    WHERE tenant_id = $1
  `
	countQuery := `
    SELECT COUNT(1)
    FROM leave_requests
    WHERE tenant_id = $1
  `
	args := []any{tenantID}
	if roleName == auth.RoleEmployee {
		query += " AND employee_id = $2"
		countQuery += " AND employee_id = $2"
		args = append(args, employeeID)
	}
	if roleName == auth.RoleManager {
		query += " AND employee_id IN (SELECT id FROM employees WHERE tenant_id = $1 AND manager_id = $2)"
		countQuery += " AND employee_id IN (SELECT id FROM employees WHERE tenant_id = $1 AND manager_id = $2)"
		args = append(args, managerEmployeeID)
	}

	var total int
	if err := s.DB.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		total = 0
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return RequestListResult{}, err
	}
	defer rows.Close()

	var requests []Request
	for rows.Next() {
		var req Request
		if err := rows.Scan(&req.ID, &req.EmployeeID, &req.Kind, &req.StartDate, &req.EndDate, &req.DayCount, &req.Reason, &req.Status, &req.DecidedBy, &req.DecidedAt, &req.CreatedAt); err != nil {
			return RequestListResult{}, err
		}
		requests = append(requests, req)
	}
	return RequestListResult{Requests: requests, Total: total}, nil
}

type CalendarEntry struct {
	ID         string    `json:"id"`
	EmployeeID string    `json:"employeeId"`
	Kind       Kind      `json:"kind"`
	StartDate  time.Time `json:"startDate"`
	EndDate    time.Time `json:"endDate"`
	Status     Status    `json:"status"`
}

func (s *Service) Calendar(ctx context.Context, tenantID, roleName, employeeID string) ([]CalendarEntry, error) {
	query := `
    SELECT id, employee_id, kind, start_date, end_date, status
    FROM leave_requests
    WHERE tenant_id = $1 AND status IN ($2,$3)
  `
	args := []any{tenantID, StatusPending, StatusApproved}
	if roleName == auth.RoleEmployee || roleName == auth.RoleManager {
		if employeeID != "" {
			query += " AND (employee_id = $4 OR employee_id IN (SELECT id FROM employees WHERE tenant_id = $1 AND manager_id = $4))"
			args = append(args, employeeID)
		}
	}
	query += " ORDER BY start_date"

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CalendarEntry
	for rows.Next() {
		var entry CalendarEntry
		if err := rows.Scan(&entry.ID, &entry.EmployeeID, &entry.Kind, &entry.StartDate, &entry.EndDate, &entry.Status); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *Service) ReportBalances(ctx context.Context, tenantID string) ([]map[string]any, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, first_name, last_name, leave_allotment, leave_balance
    FROM employees
    WHERE tenant_id = $1
    ORDER BY last_name, first_name
  `, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		var id, first, last string
		var allotment, balance int
		if err := rows.Scan(&id, &first, &last, &allotment, &balance); err != nil {
			return nil, err
		}
		out = append(out, map[string]any{
			"employeeId":     id,
			"firstName":      first,
			"lastName":       last,
			"leaveAllotment": allotment,
			"leaveBalance":   balance,
		})
	}
	return out, nil
}

func (s *Service) ReportUsage(ctx context.Context, tenantID string) ([]map[string]any, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT kind, SUM(day_count)
    FROM leave_requests
    WHERE tenant_id = $1 AND status = $2
    GROUP BY kind
    ORDER BY kind
  `, tenantID, StatusApproved)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		var kind string
		var total int
		if err := rows.Scan(&kind, &total); err != nil {
			return nil, err
		}
		out = append(out, map[string]any{
			"kind":      kind,
			"totalDays": total,
		})
	}
	return out, nil
}

func (s *Service) EmployeeIDByUserID(ctx context.Context, tenantID, userID string) (string, error) {
	var employeeID string
	err := s.DB.QueryRow(ctx, "SELECT id FROM employees WHERE tenant_id = $1 AND user_id = $2", tenantID, userID).Scan(&employeeID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return employeeID, nil
}

// UserIDByEmployeeID resolves the login user linked to an employee record.
// Returns "" for employees without a user account.
func (s *Service) UserIDByEmployeeID(ctx context.Context, tenantID, employeeID string) (string, error) {
	var userID string
	err := s.DB.QueryRow(ctx, "SELECT COALESCE(user_id::text, '') FROM employees WHERE tenant_id = $1 AND id = $2", tenantID, employeeID).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}

// ManagerUserIDByEmployeeID resolves the login user of an employee's manager.
func (s *Service) ManagerUserIDByEmployeeID(ctx context.Context, tenantID, employeeID string) (string, error) {
	var userID string
	err := s.DB.QueryRow(ctx, `
    SELECT COALESCE(m.user_id::text, '')
    FROM employees e
    JOIN employees m ON m.tenant_id = e.tenant_id AND m.id = e.manager_id
    WHERE e.tenant_id = $1 AND e.id = $2
  `, tenantID, employeeID).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *Service) IsManagerOf(ctx context.Context, tenantID, managerEmployeeID, employeeID string) (bool, error) {
	var count int
	if err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1)
    FROM employees
    WHERE tenant_id = $1 AND id = $2 AND manager_id = $3
  `, tenantID, employeeID, managerEmployeeID).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}
