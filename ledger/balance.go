/*
balance.go - House-wide and per-viewer balance aggregation

PURPOSE:
  Combines the per-expense answers from settlement.go into the numbers a
  member actually looks at: "what do I owe", "what am I owed", and the
  house-wide "who owes what" ledger.

VIEWER SUMMARY:
  TotalOwed:  Σ AmountOwedBy(viewer, e) over expenses the viewer splits
  TotalOwing: Σ max(0, share - paid_m) over expenses the viewer paid,
              for every m in SplitBetween
  NetBalance: TotalOwing - TotalOwed

HOUSE BALANCES:
  Same two accumulations for every member, then for every former member
  still named on an expense (payer or split set). A member who leaves
  keeps their ledger position, so the list must carry them too.
  Balance > 0: net creditor. Balance < 0: net debtor. Zero: settled.

CRITICAL INVARIANT:
  For a closed house the balances sum to exactly zero. Every outstanding
  amount is added to the payer and subtracted from the member who owes it,
  with the same decimal value, so no rounding can leak in.

SEE ALSO:
  - settlement.go: Share, AmountOwedBy
*/
package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// VIEWER SUMMARY
// =============================================================================

type ViewerSummary struct {
	Viewer     UserID
	TotalOwed  decimal.Decimal // what the viewer still owes others
	TotalOwing decimal.Decimal // what others still owe the viewer
	NetBalance decimal.Decimal // TotalOwing - TotalOwed
}

// ComputeViewerSummary aggregates viewer's position across expenses.
func ComputeViewerSummary(viewer UserID, expenses []Expense, contributions []Contribution) ViewerSummary {
	paid := indexPaid(contributions)
	owes, owed := accumulate(viewer, expenses, paid)
	return ViewerSummary{
		Viewer:     viewer,
		TotalOwed:  owes,
		TotalOwing: owed,
		NetBalance: owed.Sub(owes),
	}
}

// =============================================================================
// HOUSE BALANCES
// =============================================================================

type MemberBalance struct {
	UserID     UserID
	Name       string
	Owes       decimal.Decimal // what this member still owes others
	OwedToThem decimal.Decimal // what others still owe this member
	Balance    decimal.Decimal // OwedToThem - Owes
	Left       bool            // no longer in the house; Name is the user id
}

// ComputeHouseBalances returns one balance per member, in members order,
// followed by one per former member found on expenses, ordered by UserID.
func ComputeHouseBalances(members []Member, expenses []Expense, contributions []Contribution) []MemberBalance {
	paid := indexPaid(contributions)
	balanceOf := func(user UserID, name string, left bool) MemberBalance {
		owes, owed := accumulate(user, expenses, paid)
		return MemberBalance{
			UserID:     user,
			Name:       name,
			Owes:       owes,
			OwedToThem: owed,
			Balance:    owed.Sub(owes),
			Left:       left,
		}
	}

	current := make(map[UserID]bool, len(members))
	out := make([]MemberBalance, 0, len(members))
	for _, m := range members {
		current[m.UserID] = true
		out = append(out, balanceOf(m.UserID, m.Name, false))
	}

	var former []UserID
	for _, e := range expenses {
		for _, u := range e.Participants() {
			if !current[u] {
				current[u] = true
				former = append(former, u)
			}
		}
	}
	sort.Slice(former, func(i, j int) bool { return former[i] < former[j] })
	for _, u := range former {
		out = append(out, balanceOf(u, string(u), true))
	}
	return out
}

// accumulate returns (what user owes others, what others owe user).
func accumulate(user UserID, expenses []Expense, paid paidIndex) (owes, owed decimal.Decimal) {
	owes, owed = decimal.Zero, decimal.Zero
	for _, e := range expenses {
		share := Share(e)
		if e.PayerID == user {
			// Computed per other member; AmountOwedBy is indexed by the
			// viewer so it cannot be reused here.
			for _, m := range e.SplitBetween {
				owed = owed.Add(nonNegative(share.Sub(paid.of(e.ID, m))))
			}
			continue
		}
		if e.splitsWith(user) {
			owes = owes.Add(nonNegative(share.Sub(paid.of(e.ID, user))))
		}
	}
	return owes, owed
}

type paidKey struct {
	expense ExpenseID
	user    UserID
}

type paidIndex map[paidKey]decimal.Decimal

func indexPaid(contributions []Contribution) paidIndex {
	idx := make(paidIndex, len(contributions))
	for _, c := range contributions {
		k := paidKey{c.ExpenseID, c.UserID}
		idx[k] = idx.of(c.ExpenseID, c.UserID).Add(c.Amount)
	}
	return idx
}

func (p paidIndex) of(e ExpenseID, u UserID) decimal.Decimal {
	if v, ok := p[paidKey{e, u}]; ok {
		return v
	}
	return decimal.Zero
}

// =============================================================================
// SUGGESTED TRANSFERS - Settle the house in as few payments as possible
// =============================================================================

// Transfer is a suggested payment: From pays To Amount.
type Transfer struct {
	From   UserID
	To     UserID
	Amount decimal.Decimal
}

// SuggestTransfers greedily matches the largest debtor with the largest
// creditor until every balance is cleared. Ties break on UserID so the
// result is deterministic. The suggestions are advisory: the ledger itself
// only settles through contributions on specific expenses.
func SuggestTransfers(balances []MemberBalance) []Transfer {
	type position struct {
		user   UserID
		amount decimal.Decimal
	}
	var debtors, creditors []position
	for _, b := range balances {
		switch {
		case b.Balance.IsNegative():
			debtors = append(debtors, position{b.UserID, b.Balance.Neg()})
		case b.Balance.IsPositive():
			creditors = append(creditors, position{b.UserID, b.Balance})
		}
	}
	byAmount := func(ps []position) func(i, j int) bool {
		return func(i, j int) bool {
			if c := ps[i].amount.Cmp(ps[j].amount); c != 0 {
				return c > 0
			}
			return ps[i].user < ps[j].user
		}
	}
	sort.Slice(debtors, byAmount(debtors))
	sort.Slice(creditors, byAmount(creditors))

	var transfers []Transfer
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		amount := decimal.Min(debtors[i].amount, creditors[j].amount)
		transfers = append(transfers, Transfer{
			From:   debtors[i].user,
			To:     creditors[j].user,
			Amount: amount,
		})
		debtors[i].amount = debtors[i].amount.Sub(amount)
		creditors[j].amount = creditors[j].amount.Sub(amount)
		if debtors[i].amount.IsZero() {
			i++
		}
		if creditors[j].amount.IsZero() {
			j++
		}
	}
	return transfers
}
