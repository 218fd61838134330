/*
settlement.go - Per-expense share and owed amounts

PURPOSE:
  Stateless answers to "how much does member M still owe on expense E?" and
  "how much is still outstanding on E?", given E and the contribution list.

SPLIT RULE:
  share       = truncate(amount / (k + 1), 2)    k = len(SplitBetween)
  payer share = amount - k * share

  The payer always counts as one of the k+1 shares. Debtor shares are cut
  down to whole cents and the payer takes the leftover cents, so
  k*share + payerShare == amount exactly:

      100.00 / 3  ->  bob 33.33, carol 33.33, alice (payer) 33.34

  An expense with an empty split set is a personal expense: the payer's
  share is the whole amount.

DEGENERATE INPUTS:
  These functions never fail. "Not involved" and "is the payer" both mean
  zero owed. Overpayment is absorbed (clamped at zero), never reported as a
  credit here.

SEE ALSO:
  - balance.go: aggregates these per member and per viewer
*/
package ledger

import "github.com/shopspring/decimal"

// Share returns what each member of e.SplitBetween owes, in whole cents.
func Share(e Expense) decimal.Decimal {
	n := decimal.NewFromInt(int64(len(e.SplitBetween) + 1))
	return e.Amount.Div(n).Truncate(DisplayPlaces)
}

// PayerShare returns the payer's own part of e: the amount less every debtor
// share. It exceeds Share by the leftover cents, if any.
func PayerShare(e Expense) decimal.Decimal {
	k := decimal.NewFromInt(int64(len(e.SplitBetween)))
	return e.Amount.Sub(Share(e).Mul(k))
}

// PaidBy sums user's contributions toward e.
func PaidBy(user UserID, e Expense, contributions []Contribution) decimal.Decimal {
	paid := decimal.Zero
	for _, c := range contributions {
		if c.ExpenseID == e.ID && c.UserID == user {
			paid = paid.Add(c.Amount)
		}
	}
	return paid
}

// AmountOwedBy returns what member still owes on e. Zero when member is the
// payer or not in the split set.
func AmountOwedBy(member UserID, e Expense, contributions []Contribution) decimal.Decimal {
	if member == e.PayerID || !e.splitsWith(member) {
		return decimal.Zero
	}
	return nonNegative(Share(e).Sub(PaidBy(member, e, contributions)))
}

// RemainingOnExpense returns amount minus every contribution on e, floored
// at zero.
func RemainingOnExpense(e Expense, contributions []Contribution) decimal.Decimal {
	paid := decimal.Zero
	for _, c := range contributions {
		if c.ExpenseID == e.ID {
			paid = paid.Add(c.Amount)
		}
	}
	return nonNegative(e.Amount.Sub(paid))
}

// IsPaidInFull reports whether nothing remains on e.
func IsPaidInFull(e Expense, contributions []Contribution) bool {
	return RemainingOnExpense(e, contributions).IsZero()
}

// IsMemberInvolved reports whether member paid for e or splits it.
func IsMemberInvolved(member UserID, e Expense) bool {
	return member == e.PayerID || e.splitsWith(member)
}

// =============================================================================
// EXPENSE BREAKDOWN - Per-expense per-member state for display
// =============================================================================

// ParticipantShare is one participant's position on one expense.
type ParticipantShare struct {
	UserID  UserID
	IsPayer bool
	Share   decimal.Decimal // PayerShare for the payer
	Paid    decimal.Decimal
	Owed    decimal.Decimal // always zero for the payer
}

type ExpenseBreakdown struct {
	Expense      Expense
	Share        decimal.Decimal // per debtor
	PayerShare   decimal.Decimal
	Remaining    decimal.Decimal
	PaidInFull   bool
	Participants []ParticipantShare // payer first, then SplitBetween order
}

// Breakdown computes the per-participant view of e.
func Breakdown(e Expense, contributions []Contribution) ExpenseBreakdown {
	share, payerShare := Share(e), PayerShare(e)
	remaining := RemainingOnExpense(e, contributions)

	rows := make([]ParticipantShare, 0, len(e.SplitBetween)+1)
	for _, u := range e.Participants() {
		row := ParticipantShare{
			UserID:  u,
			IsPayer: u == e.PayerID,
			Share:   share,
			Paid:    PaidBy(u, e, contributions),
			Owed:    AmountOwedBy(u, e, contributions),
		}
		if row.IsPayer {
			row.Share = payerShare
		}
		rows = append(rows, row)
	}

	return ExpenseBreakdown{
		Expense:      e,
		Share:        share,
		PayerShare:   payerShare,
		Remaining:    remaining,
		PaidInFull:   remaining.IsZero(),
		Participants: rows,
	}
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
