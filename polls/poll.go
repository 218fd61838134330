/*
Package polls implements the house poll voting sub-ledger.

PURPOSE:
  A poll is a question with a fixed list of options. Members cast votes, one
  row per (user, option). Counts and winners are never stored: they are
  derived from the vote rows every time, like balances in package ledger.

KEY CONCEPTS:
  - Poll: question, single or multiple choice, expiry time
  - Option: one answer of a poll
  - Vote: one user's ballot for one option

LIFECYCLE:
  open    now < ExpiresAt   votes may be cast and removed, no winners yet
  closed  now >= ExpiresAt  votes are frozen, winners are the options
                            sharing the highest positive count

SEE ALSO:
  - voter.go: Cast / Remove
  - tally.go: Tally / Winners / Results
  - ledger/errors.go: error types shared with the ledger
*/
package polls

import (
	"context"
	"strings"
	"time"

	"github.com/warp/house-ledger/ledger"
)

type PollID string
type OptionID string
type VoteID string

type Poll struct {
	ID             PollID
	HouseID        ledger.HouseID
	CreatedBy      ledger.UserID
	Question       string
	MultipleChoice bool
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// IsClosed reports whether voting has ended at now.
func (p Poll) IsClosed(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

type Option struct {
	ID     OptionID
	PollID PollID
	Text   string
}

type Vote struct {
	ID        VoteID
	PollID    PollID
	UserID    ledger.UserID
	OptionID  OptionID
	CreatedAt time.Time
}

// =============================================================================
// STORE
// =============================================================================

// Store handles persistence of polls and votes.
type Store interface {
	// GetPoll returns a *ledger.NotFoundError when the poll does not exist.
	GetPoll(ctx context.Context, id PollID) (Poll, error)

	// ListOptions returns the poll's options in creation order.
	ListOptions(ctx context.Context, pollID PollID) ([]Option, error)

	ListVotes(ctx context.Context, pollID PollID) ([]Vote, error)

	// InsertVotes persists all votes or none. A second vote by the same user
	// for the same option fails with ledger.ErrDuplicateVote.
	InsertVotes(ctx context.Context, votes []Vote) ([]Vote, error)

	// DeleteVotes removes userID's votes for optionIDs and reports how many
	// rows went away.
	DeleteVotes(ctx context.Context, pollID PollID, userID ledger.UserID, optionIDs []OptionID) (int, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// CREATE
// =============================================================================

// NewPoll is a poll as submitted by a member.
type NewPoll struct {
	HouseID        ledger.HouseID
	CreatedBy      ledger.UserID
	Question       string
	Options        []string
	MultipleChoice bool
	ExpiresAt      time.Time
}

// Prepare validates in and builds the poll and options to store. Ids are
// left for the store to assign.
func (in NewPoll) Prepare(now time.Time) (Poll, []Option, error) {
	if in.HouseID == "" {
		return Poll{}, nil, ledger.Invalid("house_id", "member needs to be in a house")
	}
	if in.CreatedBy == "" {
		return Poll{}, nil, ledger.Invalid("created_by", "must not be empty")
	}
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return Poll{}, nil, ledger.Invalid("question", "must not be empty")
	}
	if len(in.Options) < 2 {
		return Poll{}, nil, ledger.Invalid("options", "need at least 2, got %d", len(in.Options))
	}
	if !in.ExpiresAt.After(now) {
		return Poll{}, nil, ledger.Invalid("expires_at", "must be in the future")
	}

	seen := make(map[string]bool, len(in.Options))
	options := make([]Option, 0, len(in.Options))
	for _, text := range in.Options {
		text = strings.TrimSpace(text)
		if text == "" {
			return Poll{}, nil, ledger.Invalid("options", "must not contain empty options")
		}
		key := strings.ToLower(text)
		if seen[key] {
			return Poll{}, nil, ledger.Invalid("options", "duplicate option %q", text)
		}
		seen[key] = true
		options = append(options, Option{Text: text})
	}

	poll := Poll{
		HouseID:        in.HouseID,
		CreatedBy:      in.CreatedBy,
		Question:       question,
		MultipleChoice: in.MultipleChoice,
		CreatedAt:      now.UTC(),
		ExpiresAt:      in.ExpiresAt.UTC(),
	}
	return poll, options, nil
}
