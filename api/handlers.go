/*
handlers.go - HTTP API handlers for the house ledger

PURPOSE:
  Exposes the ledger, polls and membership services via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Houses:
    POST   /api/houses                           Create house (caller is admin)
    POST   /api/houses/join                      Join by invite code
    POST   /api/houses/leave                     Leave current house
    GET    /api/me/house                         Caller's house with members
    GET    /api/houses/{houseID}                 House with members

  Expenses:
    GET    /api/houses/{houseID}/expenses        Expenses with breakdown
    POST   /api/houses/{houseID}/expenses        Record an expense
    GET    /api/expenses/{expenseID}/contributions  Contribution history
    POST   /api/expenses/{expenseID}/contributions  Pay toward an expense

  Balances:
    GET    /api/houses/{houseID}/balances        Balances + suggested transfers
    GET    /api/houses/{houseID}/summary         Viewer summary (?viewer=)

  Polls:
    GET    /api/houses/{houseID}/polls           Polls with tallies
    POST   /api/houses/{houseID}/polls           Create poll
    GET    /api/polls/{pollID}                   Tally and winners
    POST   /api/polls/{pollID}/votes             Cast
    DELETE /api/polls/{pollID}/votes             Remove own votes

IDENTITY:
  Authentication is handled upstream. The acting user arrives in the
  X-User-ID header; every house-scoped route checks that this user is a
  member of the house.

REQUEST FLOW:
  1. Resolve caller and check membership
  2. Parse and validate input
  3. Call domain logic (writer, voter, household service)
  4. Publish a change event and bump metrics on successful writes
  5. Serialize response

ERROR HANDLING:
  - 400: Validation errors, invalid input
  - 401: Missing X-User-ID
  - 403: Caller is not a member of the house
  - 404: Resource not found
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/house-ledger/changefeed"
	"github.com/warp/house-ledger/household"
	"github.com/warp/house-ledger/ledger"
	"github.com/warp/house-ledger/polls"
	"github.com/warp/house-ledger/store/sqlite"
)

// UserHeader carries the authenticated user id.
const UserHeader = "X-User-ID"

var (
	errNoUser    = errors.New("missing " + UserHeader + " header")
	errForbidden = errors.New("not a member of this house")
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     *sqlite.Store
	Writer    *ledger.Writer
	Voter     *polls.Voter
	Household *household.Service
	Feed      changefeed.Publisher
	Metrics   *Metrics
	Now       func() time.Time

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires the services over store. The services read the clock
// through the handler so tests can move time for all of them at once.
func NewHandler(store *sqlite.Store, feed changefeed.Publisher, metrics *Metrics) *Handler {
	if metrics == nil {
		metrics = NewMetrics()
	}
	h := &Handler{
		Store:     store,
		Writer:    ledger.NewWriter(store),
		Voter:     polls.NewVoter(store.Polls()),
		Household: household.NewService(store),
		Feed:      feed,
		Metrics:   metrics,
		Now:       time.Now,
	}
	h.Writer.Now = h.now
	h.Voter.Now = h.now
	h.Household.Now = h.now
	return h
}

func (h *Handler) now() time.Time {
	if h.Now == nil {
		return time.Now().UTC()
	}
	return h.Now().UTC()
}

// Health reports liveness, including the database.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HOUSE HANDLERS
// =============================================================================

func (h *Handler) CreateHouse(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req CreateHouseRequest
	if !decodeBody(w, r, &req) {
		return
	}

	house, err := h.Household.CreateHouse(r.Context(), household.CreateHouse{
		UserID:      caller,
		DisplayName: req.DisplayName,
		Name:        req.Name,
	})
	if err != nil {
		writeDomainError(w, "Failed to create house", err)
		return
	}
	h.publish(r.Context(), house.ID, changefeed.TableHouses, changefeed.OpInsert, string(house.ID))
	h.houseDetail(w, r, house, http.StatusCreated)
}

func (h *Handler) JoinHouse(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req JoinHouseRequest
	if !decodeBody(w, r, &req) {
		return
	}

	previous, prevErr := h.Store.MembershipOf(r.Context(), caller)
	house, member, err := h.Household.JoinHouse(r.Context(), household.JoinHouse{
		UserID:      caller,
		DisplayName: req.DisplayName,
		InviteCode:  req.InviteCode,
	})
	if err != nil {
		writeDomainError(w, "Failed to join house", err)
		return
	}
	if prevErr == nil && previous.HouseID != house.ID {
		h.publish(r.Context(), previous.HouseID, changefeed.TableMembers, changefeed.OpDelete, string(caller))
	}
	h.publish(r.Context(), house.ID, changefeed.TableMembers, changefeed.OpInsert, string(caller))

	dto := toHouseDTO(house)
	writeJSON(w, http.StatusOK, MembershipDTO{House: &dto, Member: toMemberDTO(member)})
}

func (h *Handler) LeaveHouse(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	member, err := h.Household.LeaveHouse(r.Context(), caller)
	if err != nil {
		writeDomainError(w, "Failed to leave house", err)
		return
	}
	h.publish(r.Context(), member.HouseID, changefeed.TableMembers, changefeed.OpDelete, string(caller))
	writeJSON(w, http.StatusOK, MembershipDTO{Member: toMemberDTO(member)})
}

// MyHouse returns the caller's current house.
func (h *Handler) MyHouse(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	house, err := h.Household.HouseOf(r.Context(), caller)
	if err != nil {
		writeDomainError(w, "Failed to get house", err)
		return
	}
	h.houseDetail(w, r, house, http.StatusOK)
}

func (h *Handler) GetHouse(w http.ResponseWriter, r *http.Request) {
	houseID, ok := h.memberOf(w, r, ledger.HouseID(chi.URLParam(r, "houseID")))
	if !ok {
		return
	}
	house, err := h.Store.GetHouse(r.Context(), houseID)
	if err != nil {
		writeDomainError(w, "Failed to get house", err)
		return
	}
	h.houseDetail(w, r, house, http.StatusOK)
}

func (h *Handler) houseDetail(w http.ResponseWriter, r *http.Request, house ledger.House, status int) {
	members, err := h.Household.Members(r.Context(), house.ID)
	if err != nil {
		writeDomainError(w, "Failed to list members", err)
		return
	}
	writeJSON(w, status, HouseDetailDTO{House: toHouseDTO(house), Members: toMemberDTOs(members)})
}

// =============================================================================
// EXPENSE HANDLERS
// =============================================================================

func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	houseID, ok := h.memberOf(w, r, ledger.HouseID(chi.URLParam(r, "houseID")))
	if !ok {
		return
	}
	snap, err := h.snapshot(r.Context(), houseID)
	if err != nil {
		writeDomainError(w, "Failed to list expenses", err)
		return
	}

	dtos := make([]ExpenseDTO, len(snap.expenses))
	for i, e := range snap.expenses {
		dtos[i] = toExpenseDTO(ledger.Breakdown(e, snap.contributions))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	houseID, ok := h.memberOf(w, r, ledger.HouseID(chi.URLParam(r, "houseID")))
	if !ok {
		return
	}
	var req CreateExpenseRequest
	if !decodeBody(w, r, &req) {
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeDomainError(w, "Invalid expense", err)
		return
	}
	date, err := parseOptionalTime("date", req.Date)
	if err != nil {
		writeDomainError(w, "Invalid expense", err)
		return
	}
	payer := ledger.UserID(req.PaidBy)
	if payer == "" {
		payer = callerID(r)
	}
	split := make([]ledger.UserID, len(req.SplitBetween))
	for i, u := range req.SplitBetween {
		split[i] = ledger.UserID(u)
	}

	expense, err := h.Writer.CreateExpense(r.Context(), ledger.NewExpense{
		HouseID:      houseID,
		Title:        req.Title,
		Amount:       amount,
		PayerID:      payer,
		SplitBetween: split,
		Date:         date,
	})
	if err != nil {
		writeDomainError(w, "Failed to create expense", err)
		return
	}
	slog.Info("Expense created", "expense_id", expense.ID, "house_id", houseID, "amount", expense.Amount.String())
	h.Metrics.ExpensesCreated.Inc()
	h.publish(r.Context(), houseID, changefeed.TableExpenses, changefeed.OpInsert, string(expense.ID))

	contributions, err := h.Store.ListContributions(r.Context(), ledger.ContributionFilter{ExpenseID: expense.ID})
	if err != nil {
		writeDomainError(w, "Failed to load expense", err)
		return
	}
	writeJSON(w, http.StatusCreated, toExpenseDTO(ledger.Breakdown(expense, contributions)))
}

// =============================================================================
// CONTRIBUTION HANDLERS
// =============================================================================

func (h *Handler) ListContributions(w http.ResponseWriter, r *http.Request) {
	expense, ok := h.expenseForCaller(w, r)
	if !ok {
		return
	}
	contributions, err := h.Store.ListContributions(r.Context(), ledger.ContributionFilter{ExpenseID: expense.ID})
	if err != nil {
		writeDomainError(w, "Failed to list contributions", err)
		return
	}
	dtos := make([]ContributionDTO, len(contributions))
	for i, c := range contributions {
		dtos[i] = toContributionDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AddContribution pays toward an expense as the caller.
func (h *Handler) AddContribution(w http.ResponseWriter, r *http.Request) {
	expense, ok := h.expenseForCaller(w, r)
	if !ok {
		return
	}
	var req AddContributionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeDomainError(w, "Invalid contribution", err)
		return
	}
	date, err := parseOptionalTime("date", req.Date)
	if err != nil {
		writeDomainError(w, "Invalid contribution", err)
		return
	}

	c, err := h.Writer.AddContribution(r.Context(), ledger.NewContribution{
		ExpenseID: expense.ID,
		UserID:    callerID(r),
		Amount:    amount,
		Date:      date,
		Note:      req.Note,
	})
	if err != nil {
		writeDomainError(w, "Failed to add contribution", err)
		return
	}
	slog.Info("Contribution added", "contribution_id", c.ID, "expense_id", expense.ID, "user_id", c.UserID, "amount", c.Amount.String())
	h.Metrics.ContributionsAdded.Inc()
	h.publish(r.Context(), expense.HouseID, changefeed.TableContributions, changefeed.OpInsert, string(c.ID))
	writeJSON(w, http.StatusCreated, toContributionDTO(c))
}

func (h *Handler) expenseForCaller(w http.ResponseWriter, r *http.Request) (ledger.Expense, bool) {
	caller, ok := h.caller(w, r)
	if !ok {
		return ledger.Expense{}, false
	}
	expense, err := h.Store.GetExpense(r.Context(), ledger.ExpenseID(chi.URLParam(r, "expenseID")))
	if err != nil {
		writeDomainError(w, "Failed to get expense", err)
		return ledger.Expense{}, false
	}
	if !h.checkMember(w, r, caller, expense.HouseID) {
		return ledger.Expense{}, false
	}
	return expense, true
}

// =============================================================================
// BALANCE HANDLERS
// =============================================================================

// GetBalances returns every member's balance and a settle-up plan.
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	houseID, ok := h.memberOf(w, r, ledger.HouseID(chi.URLParam(r, "houseID")))
	if !ok {
		return
	}
	snap, err := h.snapshot(r.Context(), houseID)
	if err != nil {
		writeDomainError(w, "Failed to load balances", err)
		return
	}
	balances := ledger.ComputeHouseBalances(snap.members, snap.expenses, snap.contributions)
	writeJSON(w, http.StatusOK, toHouseBalancesDTO(houseID, balances, ledger.SuggestTransfers(balances)))
}

// GetSummary returns one viewer's totals; the viewer defaults to the caller.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	houseID, ok := h.memberOf(w, r, ledger.HouseID(chi.URLParam(r, "houseID")))
	if !ok {
		return
	}
	viewer := ledger.UserID(r.URL.Query().Get("viewer"))
	if viewer == "" {
		viewer = callerID(r)
	}
	snap, err := h.snapshot(r.Context(), houseID)
	if err != nil {
		writeDomainError(w, "Failed to load summary", err)
		return
	}
	writeJSON(w, http.StatusOK, toViewerSummaryDTO(ledger.ComputeViewerSummary(viewer, snap.expenses, snap.contributions)))
}

type houseSnapshot struct {
	members       []ledger.Member
	expenses      []ledger.Expense
	contributions []ledger.Contribution
}

// snapshot reads everything the pure calculations need for one house.
func (h *Handler) snapshot(ctx context.Context, houseID ledger.HouseID) (houseSnapshot, error) {
	var snap houseSnapshot
	var err error
	if snap.members, err = h.Store.ListMembers(ctx, houseID); err != nil {
		return snap, err
	}
	if snap.expenses, err = h.Store.ListExpenses(ctx, houseID); err != nil {
		return snap, err
	}
	if snap.contributions, err = h.Store.ListContributions(ctx, ledger.ContributionFilter{HouseID: houseID}); err != nil {
		return snap, err
	}
	return snap, nil
}

// =============================================================================
// POLL HANDLERS
// =============================================================================

func (h *Handler) ListPolls(w http.ResponseWriter, r *http.Request) {
	houseID, ok := h.memberOf(w, r, ledger.HouseID(chi.URLParam(r, "houseID")))
	if !ok {
		return
	}
	list, err := h.Store.Polls().ListPolls(r.Context(), houseID)
	if err != nil {
		writeDomainError(w, "Failed to list polls", err)
		return
	}
	dtos := make([]PollDTO, 0, len(list))
	for _, p := range list {
		dto, err := h.pollDTO(r.Context(), p, callerID(r))
		if err != nil {
			writeDomainError(w, "Failed to load poll", err)
			return
		}
		dtos = append(dtos, dto)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreatePoll(w http.ResponseWriter, r *http.Request) {
	houseID, ok := h.memberOf(w, r, ledger.HouseID(chi.URLParam(r, "houseID")))
	if !ok {
		return
	}
	var req CreatePollRequest
	if !decodeBody(w, r, &req) {
		return
	}
	expiresAt, err := parseOptionalTime("expires_at", req.ExpiresAt)
	if err != nil {
		writeDomainError(w, "Invalid poll", err)
		return
	}

	poll, options, err := polls.NewPoll{
		HouseID:        houseID,
		CreatedBy:      callerID(r),
		Question:       req.Question,
		Options:        req.Options,
		MultipleChoice: req.MultipleChoice,
		ExpiresAt:      expiresAt,
	}.Prepare(h.now())
	if err != nil {
		writeDomainError(w, "Invalid poll", err)
		return
	}
	poll, options, err = h.Store.Polls().InsertPoll(r.Context(), poll, options)
	if err != nil {
		writeDomainError(w, "Failed to create poll", err)
		return
	}
	slog.Info("Poll created", "poll_id", poll.ID, "house_id", houseID, "options", len(options))
	h.publish(r.Context(), houseID, changefeed.TablePolls, changefeed.OpInsert, string(poll.ID))
	writeJSON(w, http.StatusCreated, toPollDTO(polls.Results(poll, options, nil, h.now()), nil, callerID(r)))
}

func (h *Handler) GetPoll(w http.ResponseWriter, r *http.Request) {
	poll, ok := h.pollForCaller(w, r)
	if !ok {
		return
	}
	dto, err := h.pollDTO(r.Context(), poll, callerID(r))
	if err != nil {
		writeDomainError(w, "Failed to load poll", err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) CastVote(w http.ResponseWriter, r *http.Request) {
	poll, ok := h.pollForCaller(w, r)
	if !ok {
		return
	}
	var req VoteRequest
	if !decodeBody(w, r, &req) {
		return
	}

	votes, err := h.Voter.Cast(r.Context(), polls.CastVote{
		PollID:    poll.ID,
		UserID:    callerID(r),
		OptionIDs: optionIDs(req.OptionIDs),
	})
	if err != nil {
		writeDomainError(w, "Failed to cast vote", err)
		return
	}
	h.Metrics.VotesCast.Add(float64(len(votes)))
	for _, v := range votes {
		h.publish(r.Context(), poll.HouseID, changefeed.TableVotes, changefeed.OpInsert, string(v.ID))
	}

	dto, err := h.pollDTO(r.Context(), poll, callerID(r))
	if err != nil {
		writeDomainError(w, "Failed to load poll", err)
		return
	}
	writeJSON(w, http.StatusCreated, dto)
}

// RemoveVotes deletes the caller's own votes for the listed options.
func (h *Handler) RemoveVotes(w http.ResponseWriter, r *http.Request) {
	poll, ok := h.pollForCaller(w, r)
	if !ok {
		return
	}
	var req VoteRequest
	if !decodeBody(w, r, &req) {
		return
	}

	removed, err := h.Voter.Remove(r.Context(), polls.RemoveVote{
		PollID:    poll.ID,
		UserID:    callerID(r),
		OptionIDs: optionIDs(req.OptionIDs),
	})
	if err != nil {
		writeDomainError(w, "Failed to remove vote", err)
		return
	}
	h.publish(r.Context(), poll.HouseID, changefeed.TableVotes, changefeed.OpDelete, string(poll.ID))
	writeJSON(w, http.StatusOK, RemoveVotesResponse{Removed: removed})
}

func (h *Handler) pollForCaller(w http.ResponseWriter, r *http.Request) (polls.Poll, bool) {
	caller, ok := h.caller(w, r)
	if !ok {
		return polls.Poll{}, false
	}
	poll, err := h.Store.Polls().GetPoll(r.Context(), polls.PollID(chi.URLParam(r, "pollID")))
	if err != nil {
		writeDomainError(w, "Failed to get poll", err)
		return polls.Poll{}, false
	}
	if !h.checkMember(w, r, caller, poll.HouseID) {
		return polls.Poll{}, false
	}
	return poll, true
}

func (h *Handler) pollDTO(ctx context.Context, poll polls.Poll, viewer ledger.UserID) (PollDTO, error) {
	store := h.Store.Polls()
	options, err := store.ListOptions(ctx, poll.ID)
	if err != nil {
		return PollDTO{}, err
	}
	votes, err := store.ListVotes(ctx, poll.ID)
	if err != nil {
		return PollDTO{}, err
	}
	return toPollDTO(polls.Results(poll, options, votes, h.now()), votes, viewer), nil
}

func optionIDs(ids []string) []polls.OptionID {
	out := make([]polls.OptionID, len(ids))
	for i, id := range ids {
		out[i] = polls.OptionID(id)
	}
	return out
}

// =============================================================================
// IDENTITY & MEMBERSHIP
// =============================================================================

func callerID(r *http.Request) ledger.UserID {
	return ledger.UserID(strings.TrimSpace(r.Header.Get(UserHeader)))
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (ledger.UserID, bool) {
	id := callerID(r)
	if id == "" {
		writeError(w, http.StatusUnauthorized, "Unauthenticated", errNoUser)
		return "", false
	}
	return id, true
}

// memberOf resolves the caller and checks they belong to houseID.
func (h *Handler) memberOf(w http.ResponseWriter, r *http.Request, houseID ledger.HouseID) (ledger.HouseID, bool) {
	caller, ok := h.caller(w, r)
	if !ok {
		return "", false
	}
	if _, err := h.Store.GetHouse(r.Context(), houseID); err != nil {
		writeDomainError(w, "Failed to get house", err)
		return "", false
	}
	if !h.checkMember(w, r, caller, houseID) {
		return "", false
	}
	return houseID, true
}

func (h *Handler) checkMember(w http.ResponseWriter, r *http.Request, caller ledger.UserID, houseID ledger.HouseID) bool {
	m, err := h.Store.MembershipOf(r.Context(), caller)
	switch {
	case ledger.IsNotFound(err) || (err == nil && m.HouseID != houseID):
		writeError(w, http.StatusForbidden, "Forbidden", errForbidden)
		return false
	case err != nil:
		writeDomainError(w, "Failed to check membership", err)
		return false
	}
	return true
}

// =============================================================================
// CHANGE FEED
// =============================================================================

// publish announces a successful write. Delivery is advisory, so a failure
// is logged and the request still succeeds.
func (h *Handler) publish(ctx context.Context, house ledger.HouseID, table changefeed.Table, op changefeed.Op, recordID string) {
	if h.Feed == nil {
		return
	}
	err := h.Feed.Publish(ctx, changefeed.Event{
		HouseID:  house,
		Table:    table,
		Op:       op,
		RecordID: recordID,
		At:       h.now(),
	})
	if err != nil {
		slog.Warn("Failed to publish change event", "house_id", house, "table", table, "error", err)
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ledger.Invalid("amount", "must not be empty")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ledger.Invalid("amount", "%q is not a decimal number", s)
	}
	return d, nil
}

// parseOptionalTime parses an RFC 3339 value; empty means zero time.
func parseOptionalTime(field, s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, ledger.Invalid(field, "%q is not an RFC 3339 timestamp", s)
	}
	return t, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps the ledger error taxonomy onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	resp := ErrorResponse{Error: message, Details: err.Error()}
	status := http.StatusInternalServerError
	switch {
	case ledger.IsValidation(err):
		status, resp.Code = http.StatusBadRequest, "validation"
	case ledger.IsNotFound(err):
		status, resp.Code = http.StatusNotFound, "not_found"
	default:
		resp.Code = "internal"
		slog.Error(message, "error", err)
	}
	writeJSON(w, status, resp)
}
