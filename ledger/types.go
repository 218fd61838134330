/*
Package ledger provides the expense-splitting and balance-settlement engine.

PURPOSE:
  A house shares expenses. Each expense has one payer and a set of other
  members who owe an equal share. Members pay their share back through
  contributions. This package answers "who owes whom, and how much?" from
  nothing but the list of expenses and the list of contributions.

KEY CONCEPTS IN THIS FILE (types.go):
  - House / Member: the tenant boundary and its membership records
  - Expense: a shared cost, immutable once written
  - Contribution: a payment toward one expense by one member
  - Type-safe identifiers for houses, users, expenses and contributions

DESIGN PRINCIPLES:
  1. Derived, never stored: balances are recomputed from expenses and
     contributions on every read. There is no balance column to drift.
  2. Precision: money uses decimal.Decimal in whole minor units (cents).
     Debtor shares are truncated to cents and the payer absorbs the
     leftover cents, so every expense settles exactly.
  3. Append-only: expenses and contributions are inserted, never updated.
  4. Pure core: settlement.go and balance.go are functions over snapshots.
     Only writer.go touches a Store.

USAGE:
  expense := ledger.Expense{
      ID:           "exp-1",
      Amount:       decimal.NewFromInt(300),
      PayerID:      "alice",
      SplitBetween: []ledger.UserID{"bob", "carol"},
  }
  owed := ledger.AmountOwedBy("bob", expense, contributions)

SEE ALSO:
  - settlement.go: per-expense share and owed amounts
  - balance.go: viewer summary and house-wide balances
  - writer.go: validated writes of expenses and contributions
  - store.go: persistence contract
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type HouseID string
type UserID string
type ExpenseID string
type ContributionID string

// =============================================================================
// HOUSE & MEMBERSHIP
// =============================================================================

type House struct {
	ID         HouseID
	Name       string
	InviteCode string
	CreatedBy  UserID
	CreatedAt  time.Time
}

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Member is a user's membership in one house. A user belongs to at most one
// house at a time.
type Member struct {
	HouseID  HouseID
	UserID   UserID
	Role     Role
	Name     string // display name snapshot taken on join
	JoinedAt time.Time
}

// =============================================================================
// EXPENSE - A shared cost
// =============================================================================

// Expense is a single shared cost.
//
// INVARIANTS:
//   - Amount > 0
//   - SplitBetween never contains PayerID
//   - PayerID and every SplitBetween entry are members of HouseID
//
// The payer always counts as one of the len(SplitBetween)+1 equal shares.
type Expense struct {
	ID           ExpenseID
	HouseID      HouseID
	Title        string
	Amount       decimal.Decimal
	PayerID      UserID
	SplitBetween []UserID
	CreatedAt    time.Time
}

// Participants returns the payer followed by the split members.
func (e Expense) Participants() []UserID {
	out := make([]UserID, 0, len(e.SplitBetween)+1)
	out = append(out, e.PayerID)
	return append(out, e.SplitBetween...)
}

func (e Expense) splitsWith(user UserID) bool {
	for _, u := range e.SplitBetween {
		if u == user {
			return true
		}
	}
	return false
}

// =============================================================================
// CONTRIBUTION - A payment toward one expense
// =============================================================================

// PayerShareNote marks the contribution synthesized for the payer's own share
// when an expense is created.
const PayerShareNote = "Owner of expense: already paid"

type Contribution struct {
	ID        ContributionID
	ExpenseID ExpenseID
	HouseID   HouseID
	UserID    UserID
	Amount    decimal.Decimal
	Date      time.Time
	Note      string
}

// =============================================================================
// DISPLAY ROUNDING
// =============================================================================

// DisplayPlaces is the number of fractional digits of the minor unit. Stored
// amounts never carry more.
const DisplayPlaces = 2

// WholeMinorUnits reports whether d has no digits below DisplayPlaces.
func WholeMinorUnits(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(DisplayPlaces))
}

// Display rounds an amount half away from zero to DisplayPlaces.
func Display(d decimal.Decimal) decimal.Decimal {
	return d.Round(DisplayPlaces)
}
