/*
store.go - Persistence contract for houses, expenses and contributions

PURPOSE:
  Defines the interface between the engine and whatever persists its data.
  The engine only needs simple filtered reads and two inserts. Everything
  it computes is derived from those reads.

KEY INTERFACES:
  Store:   filtered reads + append-only inserts
  TxStore: Store plus an atomic boundary for multi-row writes

APPEND-ONLY CONTRACT:
  - InsertExpense / InsertContribution are the ONLY writes
  - NO Update() or Delete() for expenses or contributions
  - Inserts assign ID and timestamps when the caller left them empty

ATOMICITY:
  Creating an expense writes two rows (the expense and the payer's own
  share). WithTx makes both land or neither.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite
  - ledger/store: in-memory for tests and dev
*/
package ledger

import "context"

// ContributionFilter selects contributions. Empty fields are ignored; at
// least one field should be set.
type ContributionFilter struct {
	HouseID   HouseID
	ExpenseID ExpenseID
	UserID    UserID
}

// Matches reports whether c satisfies every non-empty field of f.
func (f ContributionFilter) Matches(c Contribution) bool {
	if f.HouseID != "" && c.HouseID != f.HouseID {
		return false
	}
	if f.ExpenseID != "" && c.ExpenseID != f.ExpenseID {
		return false
	}
	if f.UserID != "" && c.UserID != f.UserID {
		return false
	}
	return true
}

// Store handles persistence of the ledger's records.
type Store interface {
	// GetHouse returns a *NotFoundError when the house does not exist.
	GetHouse(ctx context.Context, id HouseID) (House, error)

	ListMembers(ctx context.Context, houseID HouseID) ([]Member, error)

	// ListExpenses returns a house's expenses ordered by CreatedAt.
	ListExpenses(ctx context.Context, houseID HouseID) ([]Expense, error)

	// GetExpense returns a *NotFoundError when the expense does not exist.
	GetExpense(ctx context.Context, id ExpenseID) (Expense, error)

	ListContributions(ctx context.Context, filter ContributionFilter) ([]Contribution, error)

	// InsertExpense persists e, assigning ID and CreatedAt when empty.
	InsertExpense(ctx context.Context, e Expense) (Expense, error)

	// InsertContribution persists c, assigning ID and Date when empty.
	InsertContribution(ctx context.Context, c Contribution) (Contribution, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
