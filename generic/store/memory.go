// Package store provides in-memory generic.Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/fulfillment-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps every counter in its own entry with its own mutex (arena +
// index): the map lock only guards the index, never a quantity, so two
// resources are never serialized behind each other.
//
// Transactions are an undo journal carried in the context. Writes are
// visible to other goroutines before commit; rollback replays the journal
// in reverse. That is enough isolation for tests and single-node dev runs.
type Memory struct {
	mu          sync.RWMutex
	resources   map[generic.ResourceID]*resourceEntry
	allocations map[generic.AllocationKey]allocationRef
	approvals   map[generic.EntityID]*approvalEntry

	Now func() time.Time
}

type resourceEntry struct {
	mu        sync.Mutex
	res       generic.Resource
	movements []generic.Movement
}

type allocationRef struct {
	resourceID generic.ResourceID
	movementID generic.MovementID
}

type approvalEntry struct {
	mu sync.Mutex
	a  generic.Approval
}

var _ generic.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		resources:   make(map[generic.ResourceID]*resourceEntry),
		allocations: make(map[generic.AllocationKey]allocationRef),
		approvals:   make(map[generic.EntityID]*approvalEntry),
		Now:         time.Now,
	}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

type journalKey struct{}

type journal struct {
	mu   sync.Mutex
	undo []func()
}

func (j *journal) record(fn func()) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.undo = append(j.undo, fn)
}

func (j *journal) rollback() {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.undo = nil
}

// RunInTx executes fn with an undo journal. Nested calls join the outer journal.
func (m *Memory) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(journalKey{}).(*journal); ok {
		return fn(ctx)
	}
	j := &journal{}
	if err := fn(context.WithValue(ctx, journalKey{}, j)); err != nil {
		j.rollback()
		return err
	}
	return nil
}

func onRollback(ctx context.Context, fn func()) {
	if j, ok := ctx.Value(journalKey{}).(*journal); ok {
		j.record(fn)
	}
}

func (m *Memory) now() time.Time {
	if m.Now == nil {
		return time.Now().UTC()
	}
	return m.Now().UTC()
}

// =============================================================================
// RESOURCES
// =============================================================================

func (m *Memory) entry(id generic.ResourceID) (*resourceEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.resources[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", generic.ErrResourceNotFound, id)
	}
	return e, nil
}

func (m *Memory) SaveResource(ctx context.Context, r generic.Resource) error {
	r.UpdatedAt = m.now()

	m.mu.Lock()
	e, ok := m.resources[r.ID]
	if !ok {
		m.resources[r.ID] = &resourceEntry{res: r}
		m.mu.Unlock()
		onRollback(ctx, func() {
			m.mu.Lock()
			delete(m.resources, r.ID)
			m.mu.Unlock()
		})
		return nil
	}
	m.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	prev := e.res
	r.OnHand = prev.OnHand
	e.res = r
	onRollback(ctx, func() {
		e.mu.Lock()
		e.res = prev
		e.mu.Unlock()
	})
	return nil
}

func (m *Memory) GetResource(_ context.Context, id generic.ResourceID) (*generic.Resource, error) {
	e, err := m.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	r := e.res
	return &r, nil
}

func (m *Memory) ListResources(_ context.Context) ([]generic.Resource, error) {
	m.mu.RLock()
	entries := make([]*resourceEntry, 0, len(m.resources))
	for _, e := range m.resources {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	result := make([]generic.Resource, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		result = append(result, e.res)
		e.mu.Unlock()
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Decrement is the guarded check-and-decrement: the comparison and the
// subtraction happen under the entry's mutex.
func (m *Memory) Decrement(ctx context.Context, id generic.ResourceID, amount generic.Amount, key generic.AllocationKey, reason string) (generic.Movement, error) {
	e, err := m.entry(id)
	if err != nil {
		return generic.Movement{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	m.mu.Lock()
	if _, dup := m.allocations[key]; dup {
		m.mu.Unlock()
		return generic.Movement{}, generic.ErrDuplicateAllocation
	}
	if e.res.OnHand.LessThan(amount) {
		m.mu.Unlock()
		return generic.Movement{}, &generic.InsufficientStockError{
			ResourceID: id,
			Available:  e.res.OnHand,
			Requested:  amount,
		}
	}
	mv := generic.Movement{
		ID:         generic.MovementID(uuid.NewString()),
		ResourceID: id,
		Type:       generic.MovementAllocation,
		Key:        key,
		Delta:      amount.Neg(),
		Reason:     reason,
		CreatedAt:  m.now(),
	}
	m.allocations[key] = allocationRef{resourceID: id, movementID: mv.ID}
	m.mu.Unlock()

	e.res.OnHand = e.res.OnHand.Sub(amount)
	e.res.UpdatedAt = mv.CreatedAt
	mv.Remaining = e.res.OnHand
	e.movements = append(e.movements, mv)

	onRollback(ctx, func() {
		e.mu.Lock()
		e.res.OnHand = e.res.OnHand.Add(amount)
		e.movements = removeMovement(e.movements, mv.ID)
		e.mu.Unlock()
		m.mu.Lock()
		delete(m.allocations, key)
		m.mu.Unlock()
	})
	return mv, nil
}

func (m *Memory) Release(ctx context.Context, key generic.AllocationKey, reason string) (generic.Movement, error) {
	m.mu.RLock()
	ref, ok := m.allocations[key]
	m.mu.RUnlock()
	if !ok {
		return generic.Movement{}, fmt.Errorf("%w: %s", generic.ErrAllocationNotFound, key)
	}
	e, err := m.entry(ref.resourceID)
	if err != nil {
		return generic.Movement{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	idx := indexOfMovement(e.movements, ref.movementID)
	if idx < 0 {
		return generic.Movement{}, fmt.Errorf("%w: %s", generic.ErrAllocationNotFound, key)
	}
	if e.movements[idx].Released {
		return generic.Movement{}, fmt.Errorf("%w: %s", generic.ErrAlreadyReleased, key)
	}

	credit := e.movements[idx].Delta.Neg()
	e.movements[idx].Released = true
	e.res.OnHand = e.res.OnHand.Add(credit)
	mv := generic.Movement{
		ID:         generic.MovementID(uuid.NewString()),
		ResourceID: ref.resourceID,
		Type:       generic.MovementRelease,
		Key:        key,
		Delta:      credit,
		Remaining:  e.res.OnHand,
		Reason:     reason,
		CreatedAt:  m.now(),
	}
	e.res.UpdatedAt = mv.CreatedAt
	e.movements = append(e.movements, mv)

	onRollback(ctx, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.res.OnHand = e.res.OnHand.Sub(credit)
		e.movements = removeMovement(e.movements, mv.ID)
		if i := indexOfMovement(e.movements, ref.movementID); i >= 0 {
			e.movements[i].Released = false
		}
	})
	return mv, nil
}

func (m *Memory) Restock(ctx context.Context, id generic.ResourceID, amount generic.Amount, reason string) (generic.Movement, error) {
	e, err := m.entry(id)
	if err != nil {
		return generic.Movement{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.res.OnHand.Unit != amount.Unit {
		return generic.Movement{}, fmt.Errorf("%w: %s is tracked in %s", generic.ErrInvalidAmount, id, e.res.OnHand.Unit)
	}
	e.res.OnHand = e.res.OnHand.Add(amount)
	mv := generic.Movement{
		ID:         generic.MovementID(uuid.NewString()),
		ResourceID: id,
		Type:       generic.MovementRestock,
		Delta:      amount,
		Remaining:  e.res.OnHand,
		Reason:     reason,
		CreatedAt:  m.now(),
	}
	e.res.UpdatedAt = mv.CreatedAt
	e.movements = append(e.movements, mv)

	onRollback(ctx, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.res.OnHand = e.res.OnHand.Sub(amount)
		e.movements = removeMovement(e.movements, mv.ID)
	})
	return mv, nil
}

func (m *Memory) GetAllocation(_ context.Context, key generic.AllocationKey) (*generic.Movement, error) {
	m.mu.RLock()
	ref, ok := m.allocations[key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", generic.ErrAllocationNotFound, key)
	}
	e, err := m.entry(ref.resourceID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	idx := indexOfMovement(e.movements, ref.movementID)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", generic.ErrAllocationNotFound, key)
	}
	mv := e.movements[idx]
	return &mv, nil
}

func (m *Memory) AllocationsByOwner(ctx context.Context, ownerID string) ([]generic.Movement, error) {
	m.mu.RLock()
	var keys []generic.AllocationKey
	for k := range m.allocations {
		if k.OwnerID == ownerID {
			keys = append(keys, k)
		}
	}
	m.mu.RUnlock()

	result := make([]generic.Movement, 0, len(keys))
	for _, k := range keys {
		mv, err := m.GetAllocation(ctx, k)
		if err != nil {
			return nil, err
		}
		result = append(result, *mv)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (m *Memory) Movements(_ context.Context, id generic.ResourceID) ([]generic.Movement, error) {
	e, err := m.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	result := make([]generic.Movement, len(e.movements))
	copy(result, e.movements)
	return result, nil
}

func indexOfMovement(mvs []generic.Movement, id generic.MovementID) int {
	for i := range mvs {
		if mvs[i].ID == id {
			return i
		}
	}
	return -1
}

func removeMovement(mvs []generic.Movement, id generic.MovementID) []generic.Movement {
	if i := indexOfMovement(mvs, id); i >= 0 {
		return append(mvs[:i], mvs[i+1:]...)
	}
	return mvs
}

// =============================================================================
// APPROVALS
// =============================================================================

func (m *Memory) CreateApproval(ctx context.Context, a generic.Approval) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.approvals[a.ID]; exists {
		return fmt.Errorf("%w: approval %s", generic.ErrDuplicateRecord, a.ID)
	}
	if a.Status == "" {
		a.Status = generic.ApprovalPending
	}
	m.approvals[a.ID] = &approvalEntry{a: a}
	onRollback(ctx, func() {
		m.mu.Lock()
		delete(m.approvals, a.ID)
		m.mu.Unlock()
	})
	return nil
}

func (m *Memory) GetApproval(_ context.Context, id generic.EntityID) (*generic.Approval, error) {
	m.mu.RLock()
	e, ok := m.approvals[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", generic.ErrApprovalNotFound, id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	a := e.a
	return &a, nil
}

func (m *Memory) DecideApproval(ctx context.Context, id generic.EntityID, d generic.Decision, at time.Time) (*generic.Approval, error) {
	m.mu.RLock()
	e, ok := m.approvals[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", generic.ErrApprovalNotFound, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.a.Status != generic.ApprovalPending {
		current := e.a
		return &current, &generic.AlreadyAppliedError{EntityID: id, Current: current.Status}
	}

	prev := e.a
	e.a.Status = d.Status
	e.a.DecidedBy = d.Actor
	e.a.DecidedAt = &at
	e.a.Reason = d.Reason
	e.a.Token = d.Token
	onRollback(ctx, func() {
		e.mu.Lock()
		e.a = prev
		e.mu.Unlock()
	})

	a := e.a
	return &a, nil
}
