/*
writer.go - Validated writes of expenses and contributions

PURPOSE:
  The only mutating entry point of the engine. Records new expenses and new
  contributions while keeping the ledger's invariants.

CREATE EXPENSE:
  1. Validate input (house present, amount > 0 in whole cents, payer not in
     split set, ...)
  2. Check the house exists and every participant is a member
  3. Insert the expense
  4. Insert PayerShare as the payer's contribution, so the payer never
     shows as owing themselves and RemainingOnExpense only counts the
     non-payer shares
  Steps 2-4 run inside one WithTx: both rows land or neither does.

ADD CONTRIBUTION:
  1. Validate input (expense id present, amount > 0 in whole cents)
  2. Load the expense and its contributions
  3. Reject amounts above what the contributor still owes
  4. Insert
  Steps 2-4 run inside one WithTx so two concurrent contributions cannot
  both pass the check against the same snapshot.

DERIVED STATE:
  Nothing derived is written. Balances are recomputed on read.

SEE ALSO:
  - settlement.go: Share, AmountOwedBy used by the checks
  - store.go: TxStore
*/
package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Writer records expenses and contributions.
type Writer struct {
	Store TxStore
	Now   func() time.Time
	NewID func() string // leave nil to let the store assign ids
}

func NewWriter(store TxStore) *Writer {
	return &Writer{Store: store, Now: time.Now, NewID: uuid.NewString}
}

func (w *Writer) id() string {
	if w.NewID == nil {
		return ""
	}
	return w.NewID()
}

func (w *Writer) now() time.Time {
	if w.Now == nil {
		return time.Now().UTC()
	}
	return w.Now().UTC()
}

// =============================================================================
// CREATE EXPENSE
// =============================================================================

type NewExpense struct {
	HouseID      HouseID
	Title        string
	Amount       decimal.Decimal
	PayerID      UserID
	SplitBetween []UserID
	Date         time.Time // defaults to now
}

func (in NewExpense) validate() error {
	if in.HouseID == "" {
		return Invalid("house_id", "member needs to be in a house")
	}
	if strings.TrimSpace(in.Title) == "" {
		return Invalid("title", "must not be empty")
	}
	if !in.Amount.IsPositive() {
		return Invalid("amount", "must be positive, got %s", in.Amount)
	}
	if !WholeMinorUnits(in.Amount) {
		return Invalid("amount", "at most %d decimal places, got %s", DisplayPlaces, in.Amount)
	}
	if in.PayerID == "" {
		return Invalid("paid_by", "must not be empty")
	}
	seen := make(map[UserID]bool, len(in.SplitBetween))
	for _, u := range in.SplitBetween {
		if u == in.PayerID {
			return Invalid("split_between", "must not contain the payer %s", u)
		}
		if seen[u] {
			return Invalid("split_between", "duplicate member %s", u)
		}
		seen[u] = true
	}
	return nil
}

// CreateExpense validates and records an expense together with the payer's
// own-share contribution.
func (w *Writer) CreateExpense(ctx context.Context, in NewExpense) (Expense, error) {
	if err := in.validate(); err != nil {
		return Expense{}, err
	}
	date := in.Date
	if date.IsZero() {
		date = w.now()
	}

	var created Expense
	err := w.Store.WithTx(ctx, func(s Store) error {
		if _, err := s.GetHouse(ctx, in.HouseID); err != nil {
			return err
		}
		members, err := s.ListMembers(ctx, in.HouseID)
		if err != nil {
			return err
		}
		if err := requireMembers(in.HouseID, members, in.PayerID, in.SplitBetween); err != nil {
			return err
		}

		created, err = s.InsertExpense(ctx, Expense{
			ID:           ExpenseID(w.id()),
			HouseID:      in.HouseID,
			Title:        strings.TrimSpace(in.Title),
			Amount:       in.Amount,
			PayerID:      in.PayerID,
			SplitBetween: append([]UserID(nil), in.SplitBetween...),
			CreatedAt:    date,
		})
		if err != nil {
			return err
		}

		_, err = s.InsertContribution(ctx, Contribution{
			ID:        ContributionID(w.id()),
			ExpenseID: created.ID,
			HouseID:   created.HouseID,
			UserID:    created.PayerID,
			Amount:    PayerShare(created),
			Date:      date,
			Note:      PayerShareNote,
		})
		return err
	})
	if err != nil {
		return Expense{}, Persistence("create expense", err)
	}
	return created, nil
}

func requireMembers(house HouseID, members []Member, payer UserID, split []UserID) error {
	in := make(map[UserID]bool, len(members))
	for _, m := range members {
		in[m.UserID] = true
	}
	if !in[payer] {
		return Invalid("paid_by", "%s is not a member of house %s", payer, house)
	}
	for _, u := range split {
		if !in[u] {
			return Invalid("split_between", "%s is not a member of house %s", u, house)
		}
	}
	return nil
}

// =============================================================================
// ADD CONTRIBUTION
// =============================================================================

type NewContribution struct {
	ExpenseID ExpenseID
	UserID    UserID
	Amount    decimal.Decimal
	Date      time.Time // defaults to now
	Note      string
}

func (in NewContribution) validate() error {
	if in.ExpenseID == "" {
		return Invalid("expense_id", "expense needs to be valid")
	}
	if in.UserID == "" {
		return Invalid("paid_by", "must not be empty")
	}
	if !in.Amount.IsPositive() {
		return Invalid("amount", "must be positive, got %s", in.Amount)
	}
	if !WholeMinorUnits(in.Amount) {
		return Invalid("amount", "at most %d decimal places, got %s", DisplayPlaces, in.Amount)
	}
	return nil
}

// AddContribution records a payment toward an expense. The amount may not
// exceed what the contributor still owes on that expense.
func (w *Writer) AddContribution(ctx context.Context, in NewContribution) (Contribution, error) {
	if err := in.validate(); err != nil {
		return Contribution{}, err
	}
	date := in.Date
	if date.IsZero() {
		date = w.now()
	}

	var created Contribution
	err := w.Store.WithTx(ctx, func(s Store) error {
		expense, err := s.GetExpense(ctx, in.ExpenseID)
		if err != nil {
			return err
		}
		switch {
		case in.UserID == expense.PayerID:
			return Invalid("paid_by", "%s paid for this expense; their share is already covered", in.UserID)
		case !IsMemberInvolved(in.UserID, expense):
			return Invalid("paid_by", "%s does not split this expense", in.UserID)
		}

		existing, err := s.ListContributions(ctx, ContributionFilter{ExpenseID: expense.ID})
		if err != nil {
			return err
		}
		owed := AmountOwedBy(in.UserID, expense, existing)
		if in.Amount.GreaterThan(owed) {
			return Invalid("amount", "%s exceeds the %s still owed", in.Amount, owed.StringFixed(DisplayPlaces))
		}

		created, err = s.InsertContribution(ctx, Contribution{
			ID:        ContributionID(w.id()),
			ExpenseID: expense.ID,
			HouseID:   expense.HouseID,
			UserID:    in.UserID,
			Amount:    in.Amount,
			Date:      date,
			Note:      strings.TrimSpace(in.Note),
		})
		return err
	})
	if err != nil {
		return Contribution{}, Persistence("add contribution", err)
	}
	return created, nil
}
