package employee

import (
	"context"
	"errors"
	"strings"
)

type Service struct {
	Store *Store
}

func NewService(store *Store) *Service {
	return &Service{Store: store}
}

func (s *Service) List(ctx context.Context, tenantID string, limit, offset int) ([]Employee, int, error) {
	return s.Store.List(ctx, tenantID, limit, offset)
}

func (s *Service) Get(ctx context.Context, tenantID, employeeID string) (Employee, error) {
	return s.Store.Get(ctx, tenantID, employeeID)
}

func (s *Service) Create(ctx context.Context, tenantID string, e Employee) (string, error) {
	if err := validate(e); err != nil {
		return "", err
	}
	return s.Store.Create(ctx, tenantID, e)
}

func (s *Service) Update(ctx context.Context, tenantID string, e Employee) error {
	if err := validate(e); err != nil {
		return err
	}
	return s.Store.Update(ctx, tenantID, e)
}

func (s *Service) Balance(ctx context.Context, tenantID, employeeID string) (BalanceView, error) {
	return s.Store.Balance(ctx, tenantID, employeeID)
}

func validate(e Employee) error {
	if strings.TrimSpace(e.FirstName) == "" || strings.TrimSpace(e.LastName) == "" {
		return errors.New("first and last name are required")
	}
	if strings.TrimSpace(e.Email) == "" {
		return errors.New("email is required")
	}
	if e.LeaveAllotment < 0 {
		return errors.New("leave allotment cannot be negative")
	}
	return nil
}
