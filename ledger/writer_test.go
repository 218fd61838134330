package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/house-ledger/ledger"
	"github.com/warp/house-ledger/ledger/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var testNow = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

type writerFixture struct {
	ctx    context.Context
	store  *store.TxMemory
	writer *ledger.Writer
	house  ledger.House
}

// newWriterFixture seeds a house with alice (admin), bob and carol, plus
// dave living in another house.
func newWriterFixture(t *testing.T) *writerFixture {
	t.Helper()
	ctx := context.Background()
	s := store.NewTxMemory()

	house, err := s.CreateHouse(ctx,
		ledger.House{ID: "h1", Name: "Flat 4", InviteCode: "ABCD2345", CreatedBy: "alice"},
		ledger.Member{UserID: "alice", Name: "Alice", Role: ledger.RoleAdmin, JoinedAt: testNow},
	)
	require.NoError(t, err)
	for i, u := range []ledger.UserID{"bob", "carol"} {
		require.NoError(t, s.PutMember(ctx, ledger.Member{
			HouseID: house.ID, UserID: u, Name: string(u), Role: ledger.RoleMember,
			JoinedAt: testNow.Add(time.Duration(i+1) * time.Minute),
		}))
	}
	_, err = s.CreateHouse(ctx,
		ledger.House{ID: "h2", Name: "Elsewhere", InviteCode: "ZZZZ9999", CreatedBy: "dave"},
		ledger.Member{UserID: "dave", Name: "Dave", Role: ledger.RoleAdmin},
	)
	require.NoError(t, err)

	seq := 0
	w := ledger.NewWriter(s)
	w.Now = func() time.Time { return testNow }
	w.NewID = func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	}
	return &writerFixture{ctx: ctx, store: s, writer: w, house: house}
}

func (f *writerFixture) rent(t *testing.T) ledger.Expense {
	t.Helper()
	e, err := f.writer.CreateExpense(f.ctx, ledger.NewExpense{
		HouseID:      f.house.ID,
		Title:        "Rent",
		Amount:       dec("300"),
		PayerID:      "alice",
		SplitBetween: []ledger.UserID{"bob", "carol"},
	})
	require.NoError(t, err)
	return e
}

func (f *writerFixture) contributions(t *testing.T, e ledger.Expense) []ledger.Contribution {
	t.Helper()
	cs, err := f.store.ListContributions(f.ctx, ledger.ContributionFilter{ExpenseID: e.ID})
	require.NoError(t, err)
	return cs
}

// =============================================================================
// CREATE EXPENSE
// =============================================================================

func TestCreateExpense_RecordsPayerShare(t *testing.T) {
	// GIVEN: A house with alice, bob and carol
	// WHEN: alice records rent of 300 split with bob and carol
	// THEN: The expense exists and alice's own 100 is already paid

	f := newWriterFixture(t)
	e := f.rent(t)

	assert.Equal(t, ledger.ExpenseID("id-1"), e.ID)
	assert.Equal(t, testNow, e.CreatedAt)

	cs := f.contributions(t, e)
	require.Len(t, cs, 1)
	assert.Equal(t, ledger.UserID("alice"), cs[0].UserID)
	assert.Equal(t, ledger.PayerShareNote, cs[0].Note)
	assert.Equal(t, f.house.ID, cs[0].HouseID)
	assert.True(t, dec("100").Equal(cs[0].Amount))
	assert.Equal(t, testNow, cs[0].Date)

	assert.True(t, dec("200").Equal(ledger.RemainingOnExpense(e, cs)))
	assert.True(t, ledger.AmountOwedBy("alice", e, cs).IsZero())
}

func TestCreateExpense_ValidationFailures(t *testing.T) {
	base := ledger.NewExpense{
		HouseID:      "h1",
		Title:        "Rent",
		Amount:       dec("300"),
		PayerID:      "alice",
		SplitBetween: []ledger.UserID{"bob"},
	}
	cases := []struct {
		name   string
		mutate func(*ledger.NewExpense)
		field  string
	}{
		{"no house", func(in *ledger.NewExpense) { in.HouseID = "" }, "house_id"},
		{"blank title", func(in *ledger.NewExpense) { in.Title = "  " }, "title"},
		{"zero amount", func(in *ledger.NewExpense) { in.Amount = dec("0") }, "amount"},
		{"negative amount", func(in *ledger.NewExpense) { in.Amount = dec("-5") }, "amount"},
		{"sub-cent amount", func(in *ledger.NewExpense) { in.Amount = dec("10.005") }, "amount"},
		{"payer in split", func(in *ledger.NewExpense) { in.SplitBetween = []ledger.UserID{"bob", "alice"} }, "split_between"},
		{"duplicate split", func(in *ledger.NewExpense) { in.SplitBetween = []ledger.UserID{"bob", "bob"} }, "split_between"},
		{"payer outside house", func(in *ledger.NewExpense) { in.PayerID = "dave" }, "paid_by"},
		{"split outside house", func(in *ledger.NewExpense) { in.SplitBetween = []ledger.UserID{"dave"} }, "split_between"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newWriterFixture(t)
			in := base
			tc.mutate(&in)

			_, err := f.writer.CreateExpense(f.ctx, in)

			require.Error(t, err)
			assert.True(t, ledger.IsValidation(err), "got %v", err)
			var verr *ledger.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tc.field, verr.Field)

			expenses, _ := f.store.ListExpenses(f.ctx, "h1")
			assert.Empty(t, expenses, "nothing written")
		})
	}
}

func TestCreateExpense_UnknownHouse(t *testing.T) {
	f := newWriterFixture(t)
	_, err := f.writer.CreateExpense(f.ctx, ledger.NewExpense{
		HouseID: "nope", Title: "Rent", Amount: dec("10"), PayerID: "alice",
	})
	assert.True(t, ledger.IsNotFound(err), "got %v", err)
}

func TestCreateExpense_PersonalExpense(t *testing.T) {
	f := newWriterFixture(t)
	e, err := f.writer.CreateExpense(f.ctx, ledger.NewExpense{
		HouseID: f.house.ID, Title: "Shoes", Amount: dec("80"), PayerID: "bob",
	})
	require.NoError(t, err)
	assert.True(t, ledger.IsPaidInFull(e, f.contributions(t, e)))
}

func TestCreateExpense_PayerContributionFails_RollsBack(t *testing.T) {
	// GIVEN: A store that fails contribution inserts
	// WHEN: Creating an expense
	// THEN: A persistence error, and no orphan expense is left behind

	f := newWriterFixture(t)
	boom := errors.New("disk full")
	f.store.FailOn("insert_contribution", boom)

	_, err := f.writer.CreateExpense(f.ctx, ledger.NewExpense{
		HouseID: f.house.ID, Title: "Rent", Amount: dec("300"),
		PayerID: "alice", SplitBetween: []ledger.UserID{"bob", "carol"},
	})

	require.Error(t, err)
	assert.True(t, ledger.IsPersistence(err))
	assert.ErrorIs(t, err, boom)

	expenses, err := f.store.ListExpenses(f.ctx, f.house.ID)
	require.NoError(t, err)
	assert.Empty(t, expenses)
}

func TestCreateExpense_OrderedByCreation(t *testing.T) {
	f := newWriterFixture(t)
	for i, title := range []string{"second", "first", "third"} {
		offsets := []int{2, 1, 3}
		_, err := f.writer.CreateExpense(f.ctx, ledger.NewExpense{
			HouseID: f.house.ID, Title: title, Amount: dec("10"), PayerID: "alice",
			Date: testNow.Add(time.Duration(offsets[i]) * time.Hour),
		})
		require.NoError(t, err)
	}

	expenses, err := f.store.ListExpenses(f.ctx, f.house.ID)
	require.NoError(t, err)
	require.Len(t, expenses, 3)
	assert.Equal(t, "first", expenses[0].Title)
	assert.Equal(t, "second", expenses[1].Title)
	assert.Equal(t, "third", expenses[2].Title)
}

// =============================================================================
// ADD CONTRIBUTION
// =============================================================================

func TestAddContribution_PartialThenFull(t *testing.T) {
	f := newWriterFixture(t)
	e := f.rent(t)

	_, err := f.writer.AddContribution(f.ctx, ledger.NewContribution{ExpenseID: e.ID, UserID: "bob", Amount: dec("40")})
	require.NoError(t, err)
	assert.True(t, dec("60").Equal(ledger.AmountOwedBy("bob", e, f.contributions(t, e))))

	c, err := f.writer.AddContribution(f.ctx, ledger.NewContribution{ExpenseID: e.ID, UserID: "bob", Amount: dec("60"), Note: " venmo "})
	require.NoError(t, err)
	assert.Equal(t, "venmo", c.Note)
	assert.Equal(t, f.house.ID, c.HouseID)

	_, err = f.writer.AddContribution(f.ctx, ledger.NewContribution{ExpenseID: e.ID, UserID: "carol", Amount: dec("100")})
	require.NoError(t, err)

	assert.True(t, ledger.IsPaidInFull(e, f.contributions(t, e)))
}

func TestAddContribution_Rejected(t *testing.T) {
	cases := []struct {
		name  string
		in    func(e ledger.Expense) ledger.NewContribution
		check func(t *testing.T, err error)
	}{
		{
			name: "overpayment",
			in: func(e ledger.Expense) ledger.NewContribution {
				return ledger.NewContribution{ExpenseID: e.ID, UserID: "bob", Amount: dec("100.01")}
			},
			check: func(t *testing.T, err error) { assert.True(t, ledger.IsValidation(err)) },
		},
		{
			name: "payer",
			in: func(e ledger.Expense) ledger.NewContribution {
				return ledger.NewContribution{ExpenseID: e.ID, UserID: "alice", Amount: dec("1")}
			},
			check: func(t *testing.T, err error) { assert.True(t, ledger.IsValidation(err)) },
		},
		{
			name: "not in split",
			in: func(e ledger.Expense) ledger.NewContribution {
				return ledger.NewContribution{ExpenseID: e.ID, UserID: "dave", Amount: dec("1")}
			},
			check: func(t *testing.T, err error) { assert.True(t, ledger.IsValidation(err)) },
		},
		{
			name: "sub-cent amount",
			in: func(e ledger.Expense) ledger.NewContribution {
				return ledger.NewContribution{ExpenseID: e.ID, UserID: "bob", Amount: dec("0.001")}
			},
			check: func(t *testing.T, err error) { assert.True(t, ledger.IsValidation(err)) },
		},
		{
			name: "zero amount",
			in: func(e ledger.Expense) ledger.NewContribution {
				return ledger.NewContribution{ExpenseID: e.ID, UserID: "bob", Amount: dec("0")}
			},
			check: func(t *testing.T, err error) { assert.True(t, ledger.IsValidation(err)) },
		},
		{
			name: "missing expense id",
			in: func(ledger.Expense) ledger.NewContribution {
				return ledger.NewContribution{UserID: "bob", Amount: dec("1")}
			},
			check: func(t *testing.T, err error) { assert.True(t, ledger.IsValidation(err)) },
		},
		{
			name: "unknown expense",
			in: func(ledger.Expense) ledger.NewContribution {
				return ledger.NewContribution{ExpenseID: "ghost", UserID: "bob", Amount: dec("1")}
			},
			check: func(t *testing.T, err error) { assert.True(t, ledger.IsNotFound(err)) },
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newWriterFixture(t)
			e := f.rent(t)

			_, err := f.writer.AddContribution(f.ctx, tc.in(e))

			require.Error(t, err)
			tc.check(t, err)
			assert.Len(t, f.contributions(t, e), 1, "only the payer share")
		})
	}
}

func TestAddContribution_RepeatingShareSettlesInCents(t *testing.T) {
	// GIVEN: 100 paid by alice, split with bob and carol
	// WHEN: bob pays 33.33 in two parts and carol pays 33.33
	// THEN: Both are settled, alice's 33.34 covers the odd cent, and the
	//       expense is paid in full

	f := newWriterFixture(t)
	e, err := f.writer.CreateExpense(f.ctx, ledger.NewExpense{
		HouseID:      f.house.ID,
		Title:        "Internet",
		Amount:       dec("100"),
		PayerID:      "alice",
		SplitBetween: []ledger.UserID{"bob", "carol"},
	})
	require.NoError(t, err)

	cs := f.contributions(t, e)
	require.Len(t, cs, 1)
	assert.True(t, dec("33.34").Equal(cs[0].Amount), "payer share %s", cs[0].Amount)
	assert.True(t, dec("33.33").Equal(ledger.AmountOwedBy("bob", e, cs)))

	for _, p := range []struct {
		user   ledger.UserID
		amount string
	}{
		{"bob", "33.00"},
		{"bob", "0.33"},
		{"carol", "33.33"},
	} {
		_, err := f.writer.AddContribution(f.ctx, ledger.NewContribution{ExpenseID: e.ID, UserID: p.user, Amount: dec(p.amount)})
		require.NoError(t, err, "%s pays %s", p.user, p.amount)
	}

	cs = f.contributions(t, e)
	assert.True(t, ledger.AmountOwedBy("bob", e, cs).IsZero())
	assert.True(t, ledger.AmountOwedBy("carol", e, cs).IsZero())
	assert.True(t, ledger.RemainingOnExpense(e, cs).IsZero(), "remaining %s", ledger.RemainingOnExpense(e, cs))
	assert.True(t, ledger.IsPaidInFull(e, cs))

	_, err = f.writer.AddContribution(f.ctx, ledger.NewContribution{ExpenseID: e.ID, UserID: "bob", Amount: dec("0.01")})
	assert.True(t, ledger.IsValidation(err))
}

func TestAddContribution_OverpaymentReportsOwedInCents(t *testing.T) {
	f := newWriterFixture(t)
	e := f.rent(t)
	_, err := f.writer.AddContribution(f.ctx, ledger.NewContribution{ExpenseID: e.ID, UserID: "bob", Amount: dec("99.99")})
	require.NoError(t, err)

	_, err = f.writer.AddContribution(f.ctx, ledger.NewContribution{ExpenseID: e.ID, UserID: "bob", Amount: dec("0.02")})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds the 0.01 still owed")
}

func TestAddContribution_AlreadySettledRejected(t *testing.T) {
	f := newWriterFixture(t)
	e := f.rent(t)
	_, err := f.writer.AddContribution(f.ctx, ledger.NewContribution{ExpenseID: e.ID, UserID: "carol", Amount: dec("100")})
	require.NoError(t, err)

	_, err = f.writer.AddContribution(f.ctx, ledger.NewContribution{ExpenseID: e.ID, UserID: "carol", Amount: dec("0.01")})
	assert.True(t, ledger.IsValidation(err))
}

func TestAddContribution_ConcurrentOverpaymentPrevented(t *testing.T) {
	// GIVEN: bob owes 100
	// WHEN: Ten goroutines each try to pay 30
	// THEN: At most three succeed and bob never pays more than his share

	f := newWriterFixture(t)
	e := f.rent(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.writer.AddContribution(f.ctx, ledger.NewContribution{ExpenseID: e.ID, UserID: "bob", Amount: dec("30")})
		}()
	}
	wg.Wait()

	cs := f.contributions(t, e)
	assert.True(t, ledger.PaidBy("bob", e, cs).Equal(dec("90")))
	assert.True(t, dec("10").Equal(ledger.AmountOwedBy("bob", e, cs)))
}
