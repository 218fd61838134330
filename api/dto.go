/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  Amounts travel as decimal strings in both directions ("12.50"), never as
  JSON numbers, always in whole cents. Requests with more than two
  decimal places are rejected by the ledger.

TIMESTAMPS:
  RFC 3339, UTC.

TYPES:
  House:        HouseDTO, MemberDTO, HouseDetailDTO, MembershipDTO,
                CreateHouseRequest, JoinHouseRequest
  Expenses:     ExpenseDTO, ParticipantDTO, CreateExpenseRequest
  Contribution: ContributionDTO, AddContributionRequest
  Balances:     HouseBalancesDTO, MemberBalanceDTO, TransferDTO,
                ViewerSummaryDTO
  Polls:        PollDTO, OptionResultDTO, CreatePollRequest, VoteRequest,
                RemoveVotesResponse
  Scenarios:    ScenarioDTO, LoadScenarioRequest

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/house-ledger/ledger"
	"github.com/warp/house-ledger/polls"
)

// =============================================================================
// HOUSES
// =============================================================================

type HouseDTO struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	InviteCode string `json:"invite_code"`
	CreatedBy  string `json:"created_by"`
	CreatedAt  string `json:"created_at"`
}

type MemberDTO struct {
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	JoinedAt string `json:"joined_at"`
}

// HouseDetailDTO is a house with its members.
type HouseDetailDTO struct {
	House   HouseDTO    `json:"house"`
	Members []MemberDTO `json:"members"`
}

// MembershipDTO is returned after joining or leaving.
type MembershipDTO struct {
	House  *HouseDTO `json:"house,omitempty"`
	Member MemberDTO `json:"member"`
}

type CreateHouseRequest struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

type JoinHouseRequest struct {
	InviteCode  string `json:"invite_code"`
	DisplayName string `json:"display_name"`
}

// =============================================================================
// EXPENSES & CONTRIBUTIONS
// =============================================================================

// ExpenseDTO is an expense with its derived per-participant breakdown.
type ExpenseDTO struct {
	ID           string           `json:"id"`
	HouseID      string           `json:"house_id"`
	Title        string           `json:"title"`
	Amount       string           `json:"amount"`
	PaidBy       string           `json:"paid_by"`
	SplitBetween []string         `json:"split_between"`
	CreatedAt    string           `json:"created_at"`
	Share        string           `json:"share"`
	PayerShare   string           `json:"payer_share"`
	Remaining    string           `json:"remaining"`
	PaidInFull   bool             `json:"paid_in_full"`
	Participants []ParticipantDTO `json:"participants"`
}

type ParticipantDTO struct {
	UserID  string `json:"user_id"`
	IsPayer bool   `json:"is_payer"`
	Share   string `json:"share"`
	Paid    string `json:"paid"`
	Owed    string `json:"owed"`
}

// CreateExpenseRequest records an expense. PaidBy defaults to the caller.
type CreateExpenseRequest struct {
	Title        string   `json:"title"`
	Amount       string   `json:"amount"`
	PaidBy       string   `json:"paid_by,omitempty"`
	SplitBetween []string `json:"split_between"`
	Date         string   `json:"date,omitempty"` // RFC 3339, defaults to now
}

type ContributionDTO struct {
	ID        string `json:"id"`
	ExpenseID string `json:"expense_id"`
	HouseID   string `json:"house_id"`
	UserID    string `json:"user_id"`
	Amount    string `json:"amount"`
	Date      string `json:"date"`
	Note      string `json:"note,omitempty"`
}

// AddContributionRequest pays toward an expense on behalf of the caller.
type AddContributionRequest struct {
	Amount string `json:"amount"`
	Note   string `json:"note,omitempty"`
	Date   string `json:"date,omitempty"`
}

// =============================================================================
// BALANCES
// =============================================================================

type MemberBalanceDTO struct {
	UserID     string `json:"user_id"`
	Name       string `json:"name"`
	Owes       string `json:"owes"`
	OwedToThem string `json:"owed_to_them"`
	Balance    string `json:"balance"`
	Member     bool   `json:"member"`
}

type TransferDTO struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type HouseBalancesDTO struct {
	HouseID   string             `json:"house_id"`
	Balances  []MemberBalanceDTO `json:"balances"`
	Transfers []TransferDTO      `json:"transfers"`
}

type ViewerSummaryDTO struct {
	Viewer     string `json:"viewer"`
	TotalOwed  string `json:"total_owed"`
	TotalOwing string `json:"total_owing"`
	NetBalance string `json:"net_balance"`
}

// =============================================================================
// POLLS
// =============================================================================

// PollDTO is a poll with its live tally. Winners are only marked once the
// poll is closed.
type PollDTO struct {
	ID             string            `json:"id"`
	HouseID        string            `json:"house_id"`
	CreatedBy      string            `json:"created_by"`
	Question       string            `json:"question"`
	MultipleChoice bool              `json:"multiple_choice"`
	CreatedAt      string            `json:"created_at"`
	ExpiresAt      string            `json:"expires_at"`
	Closed         bool              `json:"closed"`
	Voters         int               `json:"voters"`
	Options        []OptionResultDTO `json:"options"`
	MyVotes        []string          `json:"my_votes"`
}

type OptionResultDTO struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Votes  int    `json:"votes"`
	Winner bool   `json:"winner"`
}

type CreatePollRequest struct {
	Question       string   `json:"question"`
	Options        []string `json:"options"`
	MultipleChoice bool     `json:"multiple_choice"`
	ExpiresAt      string   `json:"expires_at"` // RFC 3339
}

type VoteRequest struct {
	OptionIDs []string `json:"option_ids"`
}

type RemoveVotesResponse struct {
	Removed int `json:"removed"`
}

// =============================================================================
// SCENARIOS & ERRORS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func money(d decimal.Decimal) string {
	return ledger.Display(d).StringFixed(ledger.DisplayPlaces)
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func toHouseDTO(h ledger.House) HouseDTO {
	return HouseDTO{
		ID:         string(h.ID),
		Name:       h.Name,
		InviteCode: h.InviteCode,
		CreatedBy:  string(h.CreatedBy),
		CreatedAt:  timestamp(h.CreatedAt),
	}
}

func toMemberDTO(m ledger.Member) MemberDTO {
	return MemberDTO{
		UserID:   string(m.UserID),
		Name:     m.Name,
		Role:     string(m.Role),
		JoinedAt: timestamp(m.JoinedAt),
	}
}

func toMemberDTOs(members []ledger.Member) []MemberDTO {
	dtos := make([]MemberDTO, len(members))
	for i, m := range members {
		dtos[i] = toMemberDTO(m)
	}
	return dtos
}

func userIDs(ids []ledger.UserID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func toExpenseDTO(b ledger.ExpenseBreakdown) ExpenseDTO {
	e := b.Expense
	participants := make([]ParticipantDTO, len(b.Participants))
	for i, p := range b.Participants {
		participants[i] = ParticipantDTO{
			UserID:  string(p.UserID),
			IsPayer: p.IsPayer,
			Share:   money(p.Share),
			Paid:    money(p.Paid),
			Owed:    money(p.Owed),
		}
	}
	return ExpenseDTO{
		ID:           string(e.ID),
		HouseID:      string(e.HouseID),
		Title:        e.Title,
		Amount:       money(e.Amount),
		PaidBy:       string(e.PayerID),
		SplitBetween: userIDs(e.SplitBetween),
		CreatedAt:    timestamp(e.CreatedAt),
		Share:        money(b.Share),
		PayerShare:   money(b.PayerShare),
		Remaining:    money(b.Remaining),
		PaidInFull:   b.PaidInFull,
		Participants: participants,
	}
}

func toContributionDTO(c ledger.Contribution) ContributionDTO {
	return ContributionDTO{
		ID:        string(c.ID),
		ExpenseID: string(c.ExpenseID),
		HouseID:   string(c.HouseID),
		UserID:    string(c.UserID),
		Amount:    money(c.Amount),
		Date:      timestamp(c.Date),
		Note:      c.Note,
	}
}

func toHouseBalancesDTO(house ledger.HouseID, balances []ledger.MemberBalance, transfers []ledger.Transfer) HouseBalancesDTO {
	dto := HouseBalancesDTO{
		HouseID:   string(house),
		Balances:  make([]MemberBalanceDTO, len(balances)),
		Transfers: make([]TransferDTO, len(transfers)),
	}
	for i, b := range balances {
		dto.Balances[i] = MemberBalanceDTO{
			UserID:     string(b.UserID),
			Name:       b.Name,
			Owes:       money(b.Owes),
			OwedToThem: money(b.OwedToThem),
			Balance:    money(b.Balance),
			Member:     !b.Left,
		}
	}
	for i, t := range transfers {
		dto.Transfers[i] = TransferDTO{From: string(t.From), To: string(t.To), Amount: money(t.Amount)}
	}
	return dto
}

func toViewerSummaryDTO(s ledger.ViewerSummary) ViewerSummaryDTO {
	return ViewerSummaryDTO{
		Viewer:     string(s.Viewer),
		TotalOwed:  money(s.TotalOwed),
		TotalOwing: money(s.TotalOwing),
		NetBalance: money(s.NetBalance),
	}
}

// toPollDTO renders a poll result; viewer's own votes are listed in MyVotes.
func toPollDTO(r polls.Result, votes []polls.Vote, viewer ledger.UserID) PollDTO {
	winners := make(map[polls.OptionID]bool, len(r.Winners))
	for _, w := range r.Winners {
		winners[w.ID] = true
	}
	options := make([]OptionResultDTO, len(r.Tallies))
	for i, t := range r.Tallies {
		options[i] = OptionResultDTO{
			ID:     string(t.Option.ID),
			Text:   t.Option.Text,
			Votes:  t.Votes,
			Winner: winners[t.Option.ID],
		}
	}
	mine := []string{}
	for _, v := range votes {
		if v.UserID == viewer {
			mine = append(mine, string(v.OptionID))
		}
	}
	p := r.Poll
	return PollDTO{
		ID:             string(p.ID),
		HouseID:        string(p.HouseID),
		CreatedBy:      string(p.CreatedBy),
		Question:       p.Question,
		MultipleChoice: p.MultipleChoice,
		CreatedAt:      timestamp(p.CreatedAt),
		ExpiresAt:      timestamp(p.ExpiresAt),
		Closed:         r.Closed,
		Voters:         r.Voters,
		Options:        options,
		MyVotes:        mine,
	}
}
