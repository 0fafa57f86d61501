package employee

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"parahr/internal/platform/querier"
)

var ErrNotFound = errors.New("employee not found")

type Store struct {
	DB querier.Querier
}

func NewStore(db querier.Querier) *Store {
	return &Store{DB: db}
}

const employeeColumns = `
    id, COALESCE(user_id::text, ''), first_name, last_name, email, position,
    COALESCE(manager_id::text, ''), leave_allotment, leave_balance, status, created_at, updated_at
`

func scanEmployee(row pgx.Row) (Employee, error) {
	var e Employee
	err := row.Scan(&e.ID, &e.UserID, &e.FirstName, &e.LastName, &e.Email, &e.Position,
		&e.ManagerID, &e.LeaveAllotment, &e.LeaveBalance, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Employee{}, ErrNotFound
	}
	return e, err
}

func (s *Store) List(ctx context.Context, tenantID string, limit, offset int) ([]Employee, int, error) {
	var total int
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM employees WHERE tenant_id = $1", tenantID).Scan(&total); err != nil {
		total = 0
	}

	rows, err := s.DB.Query(ctx, `
    SELECT `+employeeColumns+`
    FROM employees
    WHERE tenant_id = $1
    ORDER BY last_name, first_name
    LIMIT $2 OFFSET $3
  `, tenantID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, nil
}

func (s *Store) Get(ctx context.Context, tenantID, employeeID string) (Employee, error) {
	return scanEmployee(s.DB.QueryRow(ctx, `
    SELECT `+employeeColumns+`
    FROM employees
    WHERE tenant_id = $1 AND id = $2
  `, tenantID, employeeID))
}

// Create sets leave_balance to the granted allotment; after creation the
// balance column is owned by the leave engine.
func (s *Store) Create(ctx context.Context, tenantID string, e Employee) (string, error) {
	var id string
	err := s.DB.QueryRow(ctx, `
    INSERT INTO employees (tenant_id, user_id, first_name, last_name, email, position, manager_id, leave_allotment, leave_balance, status)
    VALUES ($1, NULLIF($2,'')::uuid, $3, $4, $5, $6, NULLIF($7,'')::uuid, $8, $8, 'active')
    RETURNING id
  `, tenantID, e.UserID, e.FirstName, e.LastName, e.Email, e.Position, e.ManagerID, e.LeaveAllotment).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// Update deliberately leaves leave_allotment and leave_balance untouched.
func (s *Store) Update(ctx context.Context, tenantID string, e Employee) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE employees
    SET first_name = $1, last_name = $2, email = $3, position = $4,
        manager_id = NULLIF($5,'')::uuid, status = $6, updated_at = now()
    WHERE tenant_id = $7 AND id = $8
  `, e.FirstName, e.LastName, e.Email, e.Position, e.ManagerID, e.Status, tenantID, e.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Balance is the read-only view of the leave counter exposed outside the
// leave engine.
func (s *Store) Balance(ctx context.Context, tenantID, employeeID string) (BalanceView, error) {
	var view BalanceView
	err := s.DB.QueryRow(ctx, `
    SELECT id, leave_allotment, leave_balance
    FROM employees
    WHERE tenant_id = $1 AND id = $2
  `, tenantID, employeeID).Scan(&view.EmployeeID, &view.LeaveAllotment, &view.LeaveBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return BalanceView{}, ErrNotFound
	}
	if err != nil {
		return BalanceView{}, err
	}
	return view, nil
}
