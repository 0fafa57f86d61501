package leave

import "time"

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Kind is an open tag set: unknown kinds are tracked like the named ones,
// and only annual leave consumes the employee's balance.
type Kind string

const (
	KindAnnual      Kind = "annual"
	KindSick        Kind = "sick"
	KindExceptional Kind = "exceptional"
	KindUnpaid      Kind = "unpaid"
)

func (k Kind) ConsumesBalance() bool {
	return k == KindAnnual
}

type Outcome string

const (
	OutcomeApprove Outcome = "approve"
	OutcomeReject  Outcome = "reject"
)

// transitions is the closed status graph. Rejecting an approved request is
// the reversal path; a pending request can additionally be deleted by its
// owner, which is not a transition and is guarded separately.
var transitions = map[Status]map[Status]bool{
	StatusPending:  {StatusApproved: true, StatusRejected: true},
	StatusApproved: {StatusRejected: true},
	StatusRejected: {},
}

func CanTransition(from, to Status) bool {
	return transitions[from][to]
}

type Request struct {
	ID         string     `json:"id"`
	EmployeeID string     `json:"employeeId"`
	Kind       Kind       `json:"kind"`
	StartDate  time.Time  `json:"startDate"`
	EndDate    time.Time  `json:"endDate"`
	DayCount   int        `json:"dayCount"`
	Reason     string     `json:"reason"`
	Status     Status     `json:"status"`
	DecidedBy  string     `json:"decidedBy,omitempty"`
	DecidedAt  *time.Time `json:"decidedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`

	// BalanceWarning is set on the value returned by Submit when the span
	// exceeds the available balance at submission time. Advisory only, never
	// persisted; the binding check happens at approval.
	BalanceWarning bool `json:"balanceWarning,omitempty"`
}
