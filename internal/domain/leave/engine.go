package leave

import (
	"context"
	"fmt"
	"time"
)

// Engine owns every write to employees' leave balances and is the sole
// authority for request status transitions. Each operation runs as a single
// store transaction: it either commits with the balance consistent with the
// set of approved annual requests, or rolls back with no visible effect.
type Engine struct {
	store TxStore
	now   func() time.Time
}

func NewEngine(store TxStore) *Engine {
	return &Engine{store: store, now: time.Now}
}

type SubmitParams struct {
	EmployeeID string
	Kind       Kind
	StartDate  time.Time
	EndDate    time.Time
	Reason     string
}

// Submit creates a pending request. The day count is computed here, once, and
// cached on the record. For balance-consuming kinds the sufficiency check is
// advisory: a shortfall flags the returned request for early feedback but does
// not block submission, and the binding check runs again at approval against a
// fresh read. No balance is debited on this path.
func (e *Engine) Submit(ctx context.Context, tenantID string, p SubmitParams) (Request, error) {
	days, err := CountDays(p.StartDate, p.EndDate)
	if err != nil {
		return Request{}, err
	}

	req := Request{
		EmployeeID: p.EmployeeID,
		Kind:       p.Kind,
		StartDate:  dateOnly(p.StartDate),
		EndDate:    dateOnly(p.EndDate),
		DayCount:   days,
		Reason:     p.Reason,
		Status:     StatusPending,
		CreatedAt:  e.now().UTC(),
	}

	var warning bool
	err = e.store.InTx(ctx, func(s Accessor) error {
		if req.Kind.ConsumesBalance() {
			balance, err := s.BalanceForUpdate(ctx, tenantID, p.EmployeeID)
			if err != nil {
				return err
			}
			warning = days > balance
		}
		id, err := s.InsertRequest(ctx, tenantID, req)
		if err != nil {
			return err
		}
		req.ID = id
		return nil
	})
	req.BalanceWarning = warning
	if err != nil {
		return Request{}, err
	}
	return req, nil
}

// Decide applies an approve or reject outcome to a pending request, or
// reverses a prior approval when reject is applied to an approved request.
// The balance check at approval is mandatory even though Submit already
// checked: other approvals may have drained the balance since submission.
func (e *Engine) Decide(ctx context.Context, tenantID, requestID string, outcome Outcome, actorUserID string) error {
	var target Status
	switch outcome {
	case OutcomeApprove:
		target = StatusApproved
	case OutcomeReject:
		target = StatusRejected
	default:
		return fmt.Errorf("unknown outcome %q", outcome)
	}

	return e.store.InTx(ctx, func(s Accessor) error {
		req, err := s.RequestForUpdate(ctx, tenantID, requestID)
		if err != nil {
			return err
		}
		if !CanTransition(req.Status, target) {
			return &TransitionError{RequestID: requestID, From: req.Status, Op: string(outcome)}
		}

		if req.Kind.ConsumesBalance() {
			switch {
			case target == StatusApproved:
				balance, err := s.BalanceForUpdate(ctx, tenantID, req.EmployeeID)
				if err != nil {
					return err
				}
				if req.DayCount > balance {
					return &InsufficientBalanceError{EmployeeID: req.EmployeeID, Available: balance, Requested: req.DayCount}
				}
				if err := s.SetBalance(ctx, tenantID, req.EmployeeID, balance-req.DayCount); err != nil {
					return err
				}
			case target == StatusRejected && req.Status == StatusApproved:
				// Reversal: credit back the day count stored at submission,
				// never a recomputed span.
				balance, err := s.BalanceForUpdate(ctx, tenantID, req.EmployeeID)
				if err != nil {
					return err
				}
				if err := s.SetBalance(ctx, tenantID, req.EmployeeID, balance+req.DayCount); err != nil {
					return err
				}
			}
		}

		return s.UpdateRequestStatus(ctx, tenantID, requestID, target, actorUserID, e.now().UTC())
	})
}

// Cancel withdraws a pending request and deletes the record. Pending requests
// never debited the balance, so there is nothing to credit. Ownership is
// re-verified here even though handlers gate the route.
func (e *Engine) Cancel(ctx context.Context, tenantID, requestID, actorEmployeeID string) error {
	return e.store.InTx(ctx, func(s Accessor) error {
		req, err := s.RequestForUpdate(ctx, tenantID, requestID)
		if err != nil {
			return err
		}
		if req.EmployeeID != actorEmployeeID {
			return ErrForbidden
		}
		if req.Status != StatusPending {
			return &TransitionError{RequestID: requestID, From: req.Status, Op: "cancel"}
		}
		return s.DeleteRequest(ctx, tenantID, requestID)
	})
}

// WithdrawApproved lets the owner take back an already approved request.
// The credit and the delete commit together; a crash between them must not
// be able to lose the credit or keep a deleted request's debit.
func (e *Engine) WithdrawApproved(ctx context.Context, tenantID, requestID, actorEmployeeID string) error {
	return e.store.InTx(ctx, func(s Accessor) error {
		req, err := s.RequestForUpdate(ctx, tenantID, requestID)
		if err != nil {
			return err
		}
		if req.EmployeeID != actorEmployeeID {
			return ErrForbidden
		}
		if req.Status != StatusApproved {
			return &TransitionError{RequestID: requestID, From: req.Status, Op: "withdraw"}
		}
		if req.Kind.ConsumesBalance() {
			balance, err := s.BalanceForUpdate(ctx, tenantID, req.EmployeeID)
			if err != nil {
				return err
			}
			if err := s.SetBalance(ctx, tenantID, req.EmployeeID, balance+req.DayCount); err != nil {
				return err
			}
		}
		return s.DeleteRequest(ctx, tenantID, requestID)
	})
}
