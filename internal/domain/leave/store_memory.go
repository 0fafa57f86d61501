package leave

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory TxStore for tests and local development.
// Transactions run one at a time under a single lock and commit by swapping
// in a staged copy of the state, so an aborted fn leaves no visible effect.
type MemoryStore struct {
	mu    sync.Mutex
	state memState
}

type memState struct {
	requests map[string]Request
	balances map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: memState{
		requests: make(map[string]Request),
		balances: make(map[string]int),
	}}
}

func (s memState) clone() memState {
	out := memState{
		requests: make(map[string]Request, len(s.requests)),
		balances: make(map[string]int, len(s.balances)),
	}
	for k, v := range s.requests {
		out.requests[k] = v
	}
	for k, v := range s.balances {
		out.balances[k] = v
	}
	return out
}

func memKey(tenantID, id string) string {
	return tenantID + "/" + id
}

// Seed registers an employee's granted allotment outside any transaction.
// Setup only; runtime balance writes go through the engine.
func (m *MemoryStore) Seed(tenantID, employeeID string, days int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.balances[memKey(tenantID, employeeID)] = days
}

// Balance reads the committed balance without a transaction.
func (m *MemoryStore) Balance(tenantID, employeeID string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	days, ok := m.state.balances[memKey(tenantID, employeeID)]
	return days, ok
}

// Request reads a committed request without a transaction.
func (m *MemoryStore) Request(tenantID, requestID string) (Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.state.requests[memKey(tenantID, requestID)]
	return req, ok
}

func (m *MemoryStore) InTx(_ context.Context, fn func(Accessor) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	staged := m.state.clone()
	if err := fn(&memData{state: &staged}); err != nil {
		return err
	}
	m.state = staged
	return nil
}

type memData struct {
	state *memState
}

func (d *memData) RequestForUpdate(_ context.Context, tenantID, requestID string) (Request, error) {
	req, ok := d.state.requests[memKey(tenantID, requestID)]
	if !ok {
		return Request{}, ErrNotFound
	}
	return req, nil
}

func (d *memData) InsertRequest(_ context.Context, tenantID string, req Request) (string, error) {
	req.ID = uuid.NewString()
	d.state.requests[memKey(tenantID, req.ID)] = req
	return req.ID, nil
}

func (d *memData) UpdateRequestStatus(_ context.Context, tenantID, requestID string, status Status, decidedBy string, decidedAt time.Time) error {
	key := memKey(tenantID, requestID)
	req, ok := d.state.requests[key]
	if !ok {
		return ErrNotFound
	}
	req.Status = status
	req.DecidedBy = decidedBy
	at := decidedAt
	req.DecidedAt = &at
	d.state.requests[key] = req
	return nil
}

func (d *memData) DeleteRequest(_ context.Context, tenantID, requestID string) error {
	key := memKey(tenantID, requestID)
	if _, ok := d.state.requests[key]; !ok {
		return ErrNotFound
	}
	delete(d.state.requests, key)
	return nil
}

func (d *memData) BalanceForUpdate(_ context.Context, tenantID, employeeID string) (int, error) {
	days, ok := d.state.balances[memKey(tenantID, employeeID)]
	if !ok {
		return 0, ErrEmployeeNotFound
	}
	return days, nil
}

func (d *memData) SetBalance(_ context.Context, tenantID, employeeID string, days int) error {
	key := memKey(tenantID, employeeID)
	if _, ok := d.state.balances[key]; !ok {
		return ErrEmployeeNotFound
	}
	d.state.balances[key] = days
	return nil
}
