package ledger_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/warp/house-ledger/ledger"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func rent() ledger.Expense {
	return ledger.Expense{
		ID:           "rent",
		HouseID:      "h1",
		Title:        "Rent",
		Amount:       dec("300"),
		PayerID:      "alice",
		SplitBetween: []ledger.UserID{"bob", "carol"},
	}
}

func contribution(expense ledger.ExpenseID, user ledger.UserID, amount string) ledger.Contribution {
	return ledger.Contribution{
		ID:        ledger.ContributionID(string(expense) + "-" + string(user) + "-" + amount),
		ExpenseID: expense,
		HouseID:   "h1",
		UserID:    user,
		Amount:    dec(amount),
	}
}

// payerShare is the contribution the writer synthesizes on creation.
func payerShare(e ledger.Expense) ledger.Contribution {
	return ledger.Contribution{
		ID:        ledger.ContributionID(string(e.ID) + "-payer"),
		ExpenseID: e.ID,
		HouseID:   e.HouseID,
		UserID:    e.PayerID,
		Amount:    ledger.PayerShare(e),
		Note:      ledger.PayerShareNote,
	}
}

// =============================================================================
// SHARE
// =============================================================================

func TestShare_EqualSplitIncludesPayer(t *testing.T) {
	assert.True(t, dec("100").Equal(ledger.Share(rent())))
}

func TestShare_EmptySplit_PersonalExpense(t *testing.T) {
	e := rent()
	e.SplitBetween = nil
	assert.True(t, dec("300").Equal(ledger.Share(e)))
}

func TestShare_DebtorSharesPlusPayerShareReproduceAmount(t *testing.T) {
	cases := []struct {
		amount     string
		split      []ledger.UserID
		share      string
		payerShare string
	}{
		{"100", []ledger.UserID{"b", "c"}, "33.33", "33.34"},
		{"10", []ledger.UserID{"b", "c", "d", "e", "f"}, "1.66", "1.70"},
		{"0.01", []ledger.UserID{"b", "c"}, "0", "0.01"},
		{"1234.56", []ledger.UserID{"b", "c", "d", "e", "f", "g"}, "176.36", "176.40"},
		{"90", []ledger.UserID{"b", "c"}, "30", "30"},
		{"7", nil, "7", "7"},
	}
	for _, tc := range cases {
		t.Run(tc.amount, func(t *testing.T) {
			e := ledger.Expense{Amount: dec(tc.amount), PayerID: "a", SplitBetween: tc.split}
			share, payerShare := ledger.Share(e), ledger.PayerShare(e)

			assert.True(t, dec(tc.share).Equal(share), "share %s", share)
			assert.True(t, dec(tc.payerShare).Equal(payerShare), "payer share %s", payerShare)
			assert.True(t, ledger.WholeMinorUnits(share))

			k := decimal.NewFromInt(int64(len(tc.split)))
			assert.True(t, e.Amount.Equal(share.Mul(k).Add(payerShare)), "split must add back to %s", e.Amount)
		})
	}
}

// =============================================================================
// AMOUNT OWED
// =============================================================================

func TestAmountOwedBy_RentScenario(t *testing.T) {
	// GIVEN: Rent 300 paid by alice, split with bob and carol
	// WHEN: Only the payer's own share is recorded
	// THEN: 200 remains, bob and carol owe 100 each

	e := rent()
	contribs := []ledger.Contribution{payerShare(e)}

	assert.True(t, dec("200").Equal(ledger.RemainingOnExpense(e, contribs)))
	assert.True(t, dec("100").Equal(ledger.AmountOwedBy("bob", e, contribs)))
	assert.True(t, dec("100").Equal(ledger.AmountOwedBy("carol", e, contribs)))
}

func TestAmountOwedBy_PartialContribution(t *testing.T) {
	e := rent()
	contribs := []ledger.Contribution{payerShare(e), contribution("rent", "bob", "40")}

	assert.True(t, dec("60").Equal(ledger.AmountOwedBy("bob", e, contribs)))
	assert.True(t, dec("160").Equal(ledger.RemainingOnExpense(e, contribs)))
	assert.False(t, ledger.IsPaidInFull(e, contribs))
}

func TestAmountOwedBy_EveryonePaid(t *testing.T) {
	e := rent()
	contribs := []ledger.Contribution{
		payerShare(e),
		contribution("rent", "bob", "100"),
		contribution("rent", "carol", "60"),
		contribution("rent", "carol", "40"),
	}

	assert.True(t, ledger.RemainingOnExpense(e, contribs).IsZero())
	assert.True(t, ledger.IsPaidInFull(e, contribs))
	assert.True(t, ledger.AmountOwedBy("carol", e, contribs).IsZero())
}

func TestAmountOwedBy_PayerOwesNothing(t *testing.T) {
	e := rent()
	assert.True(t, ledger.AmountOwedBy("alice", e, nil).IsZero())
}

func TestAmountOwedBy_NonParticipantOwesNothing(t *testing.T) {
	e := rent()
	assert.True(t, ledger.AmountOwedBy("dave", e, nil).IsZero())
	assert.False(t, ledger.IsMemberInvolved("dave", e))
	assert.True(t, ledger.IsMemberInvolved("alice", e))
	assert.True(t, ledger.IsMemberInvolved("bob", e))
}

func TestAmountOwedBy_IgnoresOtherExpenses(t *testing.T) {
	e := rent()
	contribs := []ledger.Contribution{contribution("groceries", "bob", "100")}
	assert.True(t, dec("100").Equal(ledger.AmountOwedBy("bob", e, contribs)))
	assert.True(t, dec("300").Equal(ledger.RemainingOnExpense(e, contribs)))
}

func TestOverpayment_NeverNegative(t *testing.T) {
	// GIVEN: Contributions recorded outside the writer that overshoot
	// THEN: Owed and remaining clamp at zero

	e := rent()
	contribs := []ledger.Contribution{
		payerShare(e),
		contribution("rent", "bob", "150"),
		contribution("rent", "carol", "150"),
	}

	assert.True(t, ledger.AmountOwedBy("bob", e, contribs).IsZero())
	assert.True(t, ledger.RemainingOnExpense(e, contribs).IsZero())
	assert.False(t, ledger.RemainingOnExpense(e, contribs).IsNegative())
}

// =============================================================================
// BREAKDOWN
// =============================================================================

func TestBreakdown_PayerFirstThenSplitOrder(t *testing.T) {
	e := rent()
	contribs := []ledger.Contribution{payerShare(e), contribution("rent", "bob", "40")}

	b := ledger.Breakdown(e, contribs)

	assert.True(t, dec("100").Equal(b.Share))
	assert.True(t, dec("160").Equal(b.Remaining))
	assert.False(t, b.PaidInFull)
	if assert.Len(t, b.Participants, 3) {
		assert.Equal(t, ledger.UserID("alice"), b.Participants[0].UserID)
		assert.True(t, b.Participants[0].IsPayer)
		assert.True(t, b.Participants[0].Owed.IsZero())
		assert.True(t, dec("100").Equal(b.Participants[0].Paid))

		assert.Equal(t, ledger.UserID("bob"), b.Participants[1].UserID)
		assert.True(t, dec("40").Equal(b.Participants[1].Paid))
		assert.True(t, dec("60").Equal(b.Participants[1].Owed))

		assert.Equal(t, ledger.UserID("carol"), b.Participants[2].UserID)
		assert.True(t, dec("100").Equal(b.Participants[2].Owed))
	}
}

func TestBreakdown_PayerCarriesOddCent(t *testing.T) {
	e := ledger.Expense{ID: "net", Amount: dec("100"), PayerID: "alice", SplitBetween: []ledger.UserID{"bob", "carol"}}
	contribs := []ledger.Contribution{
		payerShare(e),
		contribution("net", "bob", "33.33"),
		contribution("net", "carol", "33.33"),
	}

	b := ledger.Breakdown(e, contribs)

	assert.True(t, dec("33.33").Equal(b.Share))
	assert.True(t, dec("33.34").Equal(b.PayerShare))
	assert.True(t, dec("33.34").Equal(b.Participants[0].Share))
	assert.True(t, dec("33.33").Equal(b.Participants[1].Share))
	assert.True(t, b.PaidInFull)
	assert.True(t, b.Remaining.IsZero())
}

func TestDisplay_RoundsHalfAwayFromZero(t *testing.T) {
	e := ledger.Expense{Amount: dec("100"), PayerID: "a", SplitBetween: []ledger.UserID{"b", "c"}}
	assert.Equal(t, "33.33", ledger.Display(ledger.Share(e)).StringFixed(2))
	assert.Equal(t, "0.01", ledger.Display(dec("0.005")).StringFixed(2))
}
