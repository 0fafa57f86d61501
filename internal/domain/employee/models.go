package employee

import "time"

type Employee struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId,omitempty"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	Position  string    `json:"position"`
	ManagerID string    `json:"managerId,omitempty"`
	// LeaveAllotment is the granted annual allotment; LeaveBalance is the
	// remaining days. The balance is written only by the leave engine.
	LeaveAllotment int       `json:"leaveAllotment"`
	LeaveBalance   int       `json:"leaveBalance"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type BalanceView struct {
	EmployeeID     string `json:"employeeId"`
	LeaveAllotment int    `json:"leaveAllotment"`
	LeaveBalance   int    `json:"leaveBalance"`
}
