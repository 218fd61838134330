// Package store provides in-memory Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warp/house-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements ledger.Store and household.Store.
type Memory struct {
	mu            sync.RWMutex
	houses        map[ledger.HouseID]ledger.House
	members       map[ledger.UserID]ledger.Member // one house per user
	expenses      map[ledger.HouseID][]ledger.Expense
	contributions []ledger.Contribution

	// failures maps an operation name ("insert_expense", "insert_contribution")
	// to the error it should return. Tests use it to exercise rollback.
	failures map[string]error
}

func NewMemory() *Memory {
	return &Memory{
		houses:   make(map[ledger.HouseID]ledger.House),
		members:  make(map[ledger.UserID]ledger.Member),
		expenses: make(map[ledger.HouseID][]ledger.Expense),
		failures: make(map[string]error),
	}
}

// FailOn makes every later call of op return err. A nil err clears it.
func (m *Memory) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

// -----------------------------------------------------------------------------
// Houses & members
// -----------------------------------------------------------------------------

func (m *Memory) GetHouse(_ context.Context, id ledger.HouseID) (ledger.House, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getHouseLocked(id)
}

func (m *Memory) getHouseLocked(id ledger.HouseID) (ledger.House, error) {
	h, ok := m.houses[id]
	if !ok {
		return ledger.House{}, ledger.NotFound("house", id)
	}
	return h, nil
}

func (m *Memory) FindHouseByInviteCode(_ context.Context, code string) (ledger.House, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, h := range m.houses {
		if h.InviteCode == code {
			return h, nil
		}
	}
	return ledger.House{}, ledger.NotFound("house", code)
}

func (m *Memory) ListMembers(_ context.Context, houseID ledger.HouseID) ([]ledger.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listMembersLocked(houseID), nil
}

func (m *Memory) listMembersLocked(houseID ledger.HouseID) []ledger.Member {
	var out []ledger.Member
	for _, mem := range m.members {
		if mem.HouseID == houseID {
			out = append(out, mem)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

func (m *Memory) MembershipOf(_ context.Context, userID ledger.UserID) (ledger.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mem, ok := m.members[userID]
	if !ok {
		return ledger.Member{}, ledger.NotFound("member", userID)
	}
	return mem, nil
}

// CreateHouse inserts h and makes creator its first member, replacing any
// membership creator had.
func (m *Memory) CreateHouse(_ context.Context, h ledger.House, creator ledger.Member) (ledger.House, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h.ID == "" {
		h.ID = ledger.HouseID(uuid.NewString())
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
	for _, existing := range m.houses {
		if existing.InviteCode == h.InviteCode {
			return ledger.House{}, ledger.ErrDuplicateInviteCode
		}
	}
	m.houses[h.ID] = h
	creator.HouseID = h.ID
	m.putMemberLocked(creator)
	return h, nil
}

// PutMember replaces the user's membership with mem.
func (m *Memory) PutMember(_ context.Context, mem ledger.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.getHouseLocked(mem.HouseID); err != nil {
		return err
	}
	m.putMemberLocked(mem)
	return nil
}

func (m *Memory) putMemberLocked(mem ledger.Member) {
	if mem.JoinedAt.IsZero() {
		mem.JoinedAt = time.Now().UTC()
	}
	m.members[mem.UserID] = mem
}

func (m *Memory) DeleteMember(_ context.Context, userID ledger.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.members[userID]; !ok {
		return ledger.NotFound("member", userID)
	}
	delete(m.members, userID)
	return nil
}

// -----------------------------------------------------------------------------
// Expenses & contributions
// -----------------------------------------------------------------------------

func (m *Memory) ListExpenses(_ context.Context, houseID ledger.HouseID) ([]ledger.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ledger.Expense(nil), m.expenses[houseID]...), nil
}

func (m *Memory) GetExpense(_ context.Context, id ledger.ExpenseID) (ledger.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getExpenseLocked(id)
}

func (m *Memory) getExpenseLocked(id ledger.ExpenseID) (ledger.Expense, error) {
	for _, list := range m.expenses {
		for _, e := range list {
			if e.ID == id {
				return e, nil
			}
		}
	}
	return ledger.Expense{}, ledger.NotFound("expense", id)
}

func (m *Memory) ListContributions(_ context.Context, filter ledger.ContributionFilter) ([]ledger.Contribution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listContributionsLocked(filter), nil
}

func (m *Memory) listContributionsLocked(filter ledger.ContributionFilter) []ledger.Contribution {
	var out []ledger.Contribution
	for _, c := range m.contributions {
		if filter.Matches(c) {
			out = append(out, c)
		}
	}
	return out
}

// InsertExpense adds e. Append-only.
func (m *Memory) InsertExpense(_ context.Context, e ledger.Expense) (ledger.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertExpenseLocked(e)
}

func (m *Memory) insertExpenseLocked(e ledger.Expense) (ledger.Expense, error) {
	if err := m.failures["insert_expense"]; err != nil {
		return ledger.Expense{}, err
	}
	if e.ID == "" {
		e.ID = ledger.ExpenseID(uuid.NewString())
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	e.SplitBetween = append([]ledger.UserID(nil), e.SplitBetween...)

	// Keep the per-house list ordered by CreatedAt.
	list := m.expenses[e.HouseID]
	i := sort.Search(len(list), func(i int) bool {
		return list[i].CreatedAt.After(e.CreatedAt)
	})
	list = append(list, ledger.Expense{})
	copy(list[i+1:], list[i:])
	list[i] = e
	m.expenses[e.HouseID] = list
	return e, nil
}

// InsertContribution adds c. Append-only.
func (m *Memory) InsertContribution(_ context.Context, c ledger.Contribution) (ledger.Contribution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertContributionLocked(c)
}

func (m *Memory) insertContributionLocked(c ledger.Contribution) (ledger.Contribution, error) {
	if err := m.failures["insert_contribution"]; err != nil {
		return ledger.Contribution{}, err
	}
	if c.ID == "" {
		c.ID = ledger.ContributionID(uuid.NewString())
	}
	if c.Date.IsZero() {
		c.Date = time.Now().UTC()
	}
	m.contributions = append(m.contributions, c)
	return c, nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	if err := fn(&txMemoryView{parent: tm}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	expenses      map[ledger.HouseID][]ledger.Expense
	contributions []ledger.Contribution
}

// Houses and members are not writable through ledger.Store, so only the
// ledger rows are snapshotted.
func (tm *TxMemory) snapshot() memorySnapshot {
	expensesCopy := make(map[ledger.HouseID][]ledger.Expense, len(tm.expenses))
	for k, v := range tm.expenses {
		expensesCopy[k] = append([]ledger.Expense{}, v...)
	}
	return memorySnapshot{
		expenses:      expensesCopy,
		contributions: append([]ledger.Contribution{}, tm.contributions...),
	}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.expenses = s.expenses
	tm.contributions = s.contributions
}

// txMemoryView runs with the parent's lock already held.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) GetHouse(_ context.Context, id ledger.HouseID) (ledger.House, error) {
	return tv.parent.getHouseLocked(id)
}

func (tv *txMemoryView) ListMembers(_ context.Context, houseID ledger.HouseID) ([]ledger.Member, error) {
	return tv.parent.listMembersLocked(houseID), nil
}

func (tv *txMemoryView) ListExpenses(_ context.Context, houseID ledger.HouseID) ([]ledger.Expense, error) {
	return append([]ledger.Expense(nil), tv.parent.expenses[houseID]...), nil
}

func (tv *txMemoryView) GetExpense(_ context.Context, id ledger.ExpenseID) (ledger.Expense, error) {
	return tv.parent.getExpenseLocked(id)
}

func (tv *txMemoryView) ListContributions(_ context.Context, filter ledger.ContributionFilter) ([]ledger.Contribution, error) {
	return tv.parent.listContributionsLocked(filter), nil
}

func (tv *txMemoryView) InsertExpense(_ context.Context, e ledger.Expense) (ledger.Expense, error) {
	return tv.parent.insertExpenseLocked(e)
}

func (tv *txMemoryView) InsertContribution(_ context.Context, c ledger.Contribution) (ledger.Contribution, error) {
	return tv.parent.insertContributionLocked(c)
}
