package leave

import (
	"context"
	"time"
)

// RecordAccessor reads and writes leave request records inside an ambient
// transaction. No validation, no retries; both belong to the engine.
type RecordAccessor interface {
	// RequestForUpdate returns the request and locks it for the rest of the
	// transaction, so racing decisions on the same request serialize.
	RequestForUpdate(ctx context.Context, tenantID, requestID string) (Request, error)
	InsertRequest(ctx context.Context, tenantID string, req Request) (string, error)
	UpdateRequestStatus(ctx context.Context, tenantID, requestID string, status Status, decidedBy string, decidedAt time.Time) error
	DeleteRequest(ctx context.Context, tenantID, requestID string) error
}

// BalanceAccessor reads and writes the employee's remaining leave days inside
// an ambient transaction. The engine is the only caller of SetBalance.
type BalanceAccessor interface {
	// BalanceForUpdate locks the employee row, which serializes decisions on
	// different requests that share the same balance.
	BalanceForUpdate(ctx context.Context, tenantID, employeeID string) (int, error)
	SetBalance(ctx context.Context, tenantID, employeeID string, days int) error
}

type Accessor interface {
	RecordAccessor
	BalanceAccessor
}

// TxStore runs fn as one atomic transaction. If fn returns an error nothing
// is visible outside; write conflicts are retried within a fixed budget and
// past it the call fails with ErrTransactionAborted.
type TxStore interface {
	InTx(ctx context.Context, fn func(Accessor) error) error
}
