package ledger_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/house-ledger/ledger"
)

func members(ids ...ledger.UserID) []ledger.Member {
	out := make([]ledger.Member, 0, len(ids))
	for _, id := range ids {
		out = append(out, ledger.Member{HouseID: "h1", UserID: id, Name: string(id), Role: ledger.RoleMember})
	}
	return out
}

// houseFixture is three expenses across three members, partly settled.
func houseFixture() ([]ledger.Expense, []ledger.Contribution) {
	r := rent() // 300 by alice, split bob + carol
	groceries := ledger.Expense{
		ID:           "groceries",
		HouseID:      "h1",
		Amount:       dec("100"),
		PayerID:      "bob",
		SplitBetween: []ledger.UserID{"alice", "carol"},
	}
	internet := ledger.Expense{
		ID:           "internet",
		HouseID:      "h1",
		Amount:       dec("45.50"),
		PayerID:      "carol",
		SplitBetween: []ledger.UserID{"alice"},
	}
	expenses := []ledger.Expense{r, groceries, internet}
	contribs := []ledger.Contribution{
		payerShare(r), payerShare(groceries), payerShare(internet),
		contribution("rent", "bob", "40"),
		contribution("groceries", "carol", "10"),
	}
	return expenses, contribs
}

func sumBalances(bs []ledger.MemberBalance) decimal.Decimal {
	total := decimal.Zero
	for _, b := range bs {
		total = total.Add(b.Balance)
	}
	return total
}

// =============================================================================
// VIEWER SUMMARY
// =============================================================================

func TestViewerSummary_PayerSeesWhatOthersOwe(t *testing.T) {
	// GIVEN: Rent 300 paid by alice, bob contributed 40
	// WHEN: alice views her summary
	// THEN: others owe her 160, she owes nothing

	e := rent()
	contribs := []ledger.Contribution{payerShare(e), contribution("rent", "bob", "40")}

	s := ledger.ComputeViewerSummary("alice", []ledger.Expense{e}, contribs)

	assert.True(t, dec("160").Equal(s.TotalOwing))
	assert.True(t, s.TotalOwed.IsZero())
	assert.True(t, dec("160").Equal(s.NetBalance))
}

func TestViewerSummary_DebtorSeesNegativeNet(t *testing.T) {
	e := rent()
	contribs := []ledger.Contribution{payerShare(e), contribution("rent", "bob", "40")}

	s := ledger.ComputeViewerSummary("bob", []ledger.Expense{e}, contribs)

	assert.True(t, dec("60").Equal(s.TotalOwed))
	assert.True(t, s.TotalOwing.IsZero())
	assert.True(t, dec("-60").Equal(s.NetBalance))
}

func TestViewerSummary_MixedPosition(t *testing.T) {
	expenses, contribs := houseFixture()

	// groceries share 33.33, carol paid 10 of hers
	s := ledger.ComputeViewerSummary("bob", expenses, contribs)
	share := ledger.Share(expenses[1])
	wantOwing := share.Mul(dec("2")).Sub(dec("10"))

	assert.True(t, dec("60").Equal(s.TotalOwed))
	assert.True(t, wantOwing.Equal(s.TotalOwing), "got %s", s.TotalOwing)
	assert.True(t, wantOwing.Sub(dec("60")).Equal(s.NetBalance))
}

func TestViewerSummary_UninvolvedViewerIsZero(t *testing.T) {
	expenses, contribs := houseFixture()
	s := ledger.ComputeViewerSummary("dave", expenses, contribs)
	assert.True(t, s.TotalOwed.IsZero())
	assert.True(t, s.TotalOwing.IsZero())
	assert.True(t, s.NetBalance.IsZero())
}

// =============================================================================
// HOUSE BALANCES
// =============================================================================

func TestHouseBalances_SumToZero(t *testing.T) {
	expenses, contribs := houseFixture()

	balances := ledger.ComputeHouseBalances(members("alice", "bob", "carol"), expenses, contribs)

	require.Len(t, balances, 3)
	assert.True(t, sumBalances(balances).IsZero(), "sum = %s", sumBalances(balances))
}

func TestHouseBalances_SumToZero_RepeatingShares(t *testing.T) {
	// GIVEN: Amounts that do not divide evenly
	// THEN: The balances still cancel exactly

	var expenses []ledger.Expense
	var contribs []ledger.Contribution
	payers := []ledger.UserID{"a", "b", "c", "d"}
	for i, amount := range []string{"100", "10", "0.07", "999.99", "13"} {
		payer := payers[i%len(payers)]
		var split []ledger.UserID
		for _, p := range payers {
			if p != payer {
				split = append(split, p)
			}
		}
		e := ledger.Expense{
			ID:           ledger.ExpenseID("e" + amount),
			Amount:       dec(amount),
			PayerID:      payer,
			SplitBetween: split[:1+i%len(split)],
		}
		expenses = append(expenses, e)
		contribs = append(contribs, payerShare(e))
	}
	contribs = append(contribs, contribution("e100", "b", "12.34"))

	balances := ledger.ComputeHouseBalances(members(payers...), expenses, contribs)
	assert.True(t, sumBalances(balances).IsZero(), "sum = %s", sumBalances(balances))
}

func TestHouseBalances_FormerMembersKeepTheirPosition(t *testing.T) {
	// GIVEN: alice paid rent 300 and bob contributed 40
	// WHEN: alice and a departed member "zed" are no longer in the house
	// THEN: Both still get a row after the current members and the
	//       balances cancel

	e := rent()
	old := ledger.Expense{ID: "old", Amount: dec("20"), PayerID: "bob", SplitBetween: []ledger.UserID{"zed"}}
	contribs := []ledger.Contribution{payerShare(e), payerShare(old), contribution("rent", "bob", "40")}

	balances := ledger.ComputeHouseBalances(members("carol", "bob"), []ledger.Expense{e, old}, contribs)

	require.Len(t, balances, 4)
	assert.Equal(t, ledger.UserID("carol"), balances[0].UserID)
	assert.Equal(t, ledger.UserID("bob"), balances[1].UserID)
	assert.False(t, balances[1].Left)

	assert.Equal(t, ledger.UserID("alice"), balances[2].UserID)
	assert.Equal(t, "alice", balances[2].Name)
	assert.True(t, balances[2].Left)
	assert.True(t, dec("160").Equal(balances[2].Balance))

	assert.Equal(t, ledger.UserID("zed"), balances[3].UserID)
	assert.True(t, dec("-10").Equal(balances[3].Balance))

	assert.True(t, sumBalances(balances).IsZero(), "sum = %s", sumBalances(balances))
	transfers := ledger.SuggestTransfers(balances)
	total := decimal.Zero
	for _, tr := range transfers {
		assert.Equal(t, ledger.UserID("alice"), tr.To)
		total = total.Add(tr.Amount)
	}
	assert.True(t, dec("160").Equal(total))
}

func TestHouseBalances_PreservesMemberOrderAndSigns(t *testing.T) {
	e := rent()
	contribs := []ledger.Contribution{payerShare(e), contribution("rent", "bob", "100")}

	balances := ledger.ComputeHouseBalances(members("carol", "alice", "bob"), []ledger.Expense{e}, contribs)

	require.Len(t, balances, 3)
	assert.Equal(t, ledger.UserID("carol"), balances[0].UserID)
	assert.True(t, dec("-100").Equal(balances[0].Balance))
	assert.Equal(t, ledger.UserID("alice"), balances[1].UserID)
	assert.True(t, dec("100").Equal(balances[1].Balance))
	assert.True(t, dec("100").Equal(balances[1].OwedToThem))
	assert.Equal(t, ledger.UserID("bob"), balances[2].UserID)
	assert.True(t, balances[2].Balance.IsZero(), "settled member")
}

// =============================================================================
// SUGGESTED TRANSFERS
// =============================================================================

func TestSuggestTransfers_LargestFirst(t *testing.T) {
	balances := []ledger.MemberBalance{
		{UserID: "alice", Balance: dec("160")},
		{UserID: "bob", Balance: dec("-60")},
		{UserID: "carol", Balance: dec("-100")},
	}

	transfers := ledger.SuggestTransfers(balances)

	require.Len(t, transfers, 2)
	assert.Equal(t, ledger.UserID("carol"), transfers[0].From)
	assert.Equal(t, ledger.UserID("alice"), transfers[0].To)
	assert.True(t, dec("100").Equal(transfers[0].Amount))
	assert.Equal(t, ledger.UserID("bob"), transfers[1].From)
	assert.True(t, dec("60").Equal(transfers[1].Amount))
}

func TestSuggestTransfers_CoverOutstandingDebt(t *testing.T) {
	expenses, contribs := houseFixture()
	balances := ledger.ComputeHouseBalances(members("alice", "bob", "carol"), expenses, contribs)

	debt := decimal.Zero
	for _, b := range balances {
		if b.Balance.IsNegative() {
			debt = debt.Add(b.Balance.Neg())
		}
	}
	paid := decimal.Zero
	for _, tr := range ledger.SuggestTransfers(balances) {
		assert.True(t, tr.Amount.IsPositive())
		assert.NotEqual(t, tr.From, tr.To)
		paid = paid.Add(tr.Amount)
	}
	assert.True(t, debt.Equal(paid), "debt %s, transfers %s", debt, paid)
}

func TestSuggestTransfers_SettledHouse(t *testing.T) {
	balances := []ledger.MemberBalance{{UserID: "a", Balance: decimal.Zero}}
	assert.Empty(t, ledger.SuggestTransfers(balances))
}
