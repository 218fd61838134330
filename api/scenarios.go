/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built households that populate the database with realistic
	data for demos. Each scenario creates a house, its members, expenses,
	contributions and polls through the same services the API uses, so the
	demo data obeys every rule real data does.

AVAILABLE SCENARIOS:

	shared-flat:    Three flatmates, rent and groceries, partly repaid
	settled-up:     Two housemates whose only expense is fully repaid
	house-polls:    An open multiple-choice poll and an expired tied poll

USERS:

	Scenario members use fixed ids (alice, bob, carol) so a client can act
	as any of them with the X-User-ID header. alice is always the admin.

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. alice creates the house
 3. Others join with the invite code
 4. Expenses, contributions and votes are written through the services

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "shared-flat"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: services used by the loaders
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/house-ledger/household"
	"github.com/warp/house-ledger/ledger"
	"github.com/warp/house-ledger/polls"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "shared-flat",
		Name:        "Shared Flat",
		Description: "Three flatmates splitting rent and groceries, partly repaid",
	},
	{
		ID:          "settled-up",
		Name:        "Settled Up",
		Description: "Two housemates with one expense repaid in full",
	},
	{
		ID:          "house-polls",
		Name:        "House Polls",
		Description: "An open multiple-choice poll and an expired poll with a tie",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current, Description: "Currently loaded scenario"})
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var loader func(context.Context) (ledger.HouseID, error)
	switch req.ScenarioID {
	case "shared-flat":
		loader = h.loadSharedFlatScenario
	case "settled-up":
		loader = h.loadSettledUpScenario
	case "house-polls":
		loader = h.loadHousePollsScenario
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("no scenario %q", req.ScenarioID))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	houseID, err := loader(ctx)
	if err != nil {
		writeDomainError(w, "Failed to load scenario", err)
		return
	}
	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "loaded",
		"scenario": req.ScenarioID,
		"house_id": string(houseID),
	})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadSharedFlatScenario(ctx context.Context) (ledger.HouseID, error) {
	house, err := h.seedHouse(ctx, "Maple Street Flat", "alice", "bob", "carol")
	if err != nil {
		return "", err
	}
	month := h.now().AddDate(0, 0, -20)

	// Rent: 900 split three ways, bob has paid half his share.
	rent, err := h.seedExpense(ctx, house, "Rent", "900", "alice", month, "bob", "carol")
	if err != nil {
		return "", err
	}
	if err := h.seedContribution(ctx, rent, "bob", "150", month.AddDate(0, 0, 2), "First half"); err != nil {
		return "", err
	}

	// Groceries: 84.60 paid by bob for everyone, carol already settled.
	groceries, err := h.seedExpense(ctx, house, "Groceries", "84.60", "bob", month.AddDate(0, 0, 5), "alice", "carol")
	if err != nil {
		return "", err
	}
	if err := h.seedContribution(ctx, groceries, "carol", "28.20", month.AddDate(0, 0, 6), ""); err != nil {
		return "", err
	}

	// Internet: 10 split three ways, carol covers the odd cent.
	if _, err := h.seedExpense(ctx, house, "Internet", "10", "carol", month.AddDate(0, 0, 8), "alice", "bob"); err != nil {
		return "", err
	}
	return house.ID, nil
}

func (h *Handler) loadSettledUpScenario(ctx context.Context) (ledger.HouseID, error) {
	house, err := h.seedHouse(ctx, "Cottage", "alice", "bob")
	if err != nil {
		return "", err
	}
	day := h.now().AddDate(0, 0, -3)

	power, err := h.seedExpense(ctx, house, "Electricity", "120", "alice", day, "bob")
	if err != nil {
		return "", err
	}
	if err := h.seedContribution(ctx, power, "bob", "60", day.AddDate(0, 0, 1), "Bank transfer"); err != nil {
		return "", err
	}
	return house.ID, nil
}

func (h *Handler) loadHousePollsScenario(ctx context.Context) (ledger.HouseID, error) {
	house, err := h.seedHouse(ctx, "Oak Lane House", "alice", "bob", "carol")
	if err != nil {
		return "", err
	}
	now := h.now()
	store := h.Store.Polls()

	// Open poll: members vote through the voter like any client would.
	open, options, err := store.InsertPoll(ctx, polls.Poll{
		HouseID:        house.ID,
		CreatedBy:      "alice",
		Question:       "Snacks for movie night?",
		MultipleChoice: true,
		CreatedAt:      now.Add(-time.Hour),
		ExpiresAt:      now.Add(48 * time.Hour),
	}, []polls.Option{{Text: "Popcorn"}, {Text: "Chips"}, {Text: "Fruit"}})
	if err != nil {
		return "", err
	}
	ballots := []polls.CastVote{
		{PollID: open.ID, UserID: "alice", OptionIDs: []polls.OptionID{options[0].ID, options[2].ID}},
		{PollID: open.ID, UserID: "bob", OptionIDs: []polls.OptionID{options[0].ID}},
	}
	for _, ballot := range ballots {
		if _, err := h.Voter.Cast(ctx, ballot); err != nil {
			return "", err
		}
	}

	// Expired poll: the votes predate expiry, so they are written directly.
	created := now.Add(-72 * time.Hour)
	closed, closedOptions, err := store.InsertPoll(ctx, polls.Poll{
		HouseID:   house.ID,
		CreatedBy: "bob",
		Question:  "Cleaning day?",
		CreatedAt: created,
		ExpiresAt: created.Add(24 * time.Hour),
	}, []polls.Option{{Text: "Saturday"}, {Text: "Sunday"}})
	if err != nil {
		return "", err
	}
	_, err = store.InsertVotes(ctx, []polls.Vote{
		{PollID: closed.ID, UserID: "alice", OptionID: closedOptions[0].ID, CreatedAt: created.Add(time.Hour)},
		{PollID: closed.ID, UserID: "bob", OptionID: closedOptions[1].ID, CreatedAt: created.Add(2 * time.Hour)},
	})
	if err != nil {
		return "", err
	}
	return house.ID, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// seedHouse has admin create a house and everyone else join it.
func (h *Handler) seedHouse(ctx context.Context, name string, admin ledger.UserID, others ...ledger.UserID) (ledger.House, error) {
	house, err := h.Household.CreateHouse(ctx, household.CreateHouse{
		UserID:      admin,
		DisplayName: displayNameOf(admin),
		Name:        name,
	})
	if err != nil {
		return ledger.House{}, err
	}
	for _, u := range others {
		_, _, err := h.Household.JoinHouse(ctx, household.JoinHouse{
			UserID:      u,
			DisplayName: displayNameOf(u),
			InviteCode:  house.InviteCode,
		})
		if err != nil {
			return ledger.House{}, err
		}
	}
	return house, nil
}

func (h *Handler) seedExpense(ctx context.Context, house ledger.House, title, amount string, payer ledger.UserID, date time.Time, split ...ledger.UserID) (ledger.Expense, error) {
	return h.Writer.CreateExpense(ctx, ledger.NewExpense{
		HouseID:      house.ID,
		Title:        title,
		Amount:       decimal.RequireFromString(amount),
		PayerID:      payer,
		SplitBetween: split,
		Date:         date,
	})
}

func (h *Handler) seedContribution(ctx context.Context, e ledger.Expense, user ledger.UserID, amount string, date time.Time, note string) error {
	_, err := h.Writer.AddContribution(ctx, ledger.NewContribution{
		ExpenseID: e.ID,
		UserID:    user,
		Amount:    decimal.RequireFromString(amount),
		Date:      date,
		Note:      note,
	})
	return err
}

func displayNameOf(id ledger.UserID) string {
	s := string(id)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
