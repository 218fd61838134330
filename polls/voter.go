/*
voter.go - Casting and removing poll votes

CAST:
  Single choice: exactly one option, and one ballot per user per poll.
  Multiple choice: one row per selected option, written all-or-nothing.
  Voting on a closed poll is rejected so winners never change after expiry.

REMOVE:
  Deletes the caller's own votes for the given options. Other users' votes
  are never touched.

Both run inside WithTx: the "already voted?" check and the write see the
same state.
*/
package polls

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/warp/house-ledger/ledger"
)

type Voter struct {
	Store TxStore
	Now   func() time.Time
	NewID func() string
}

func NewVoter(store TxStore) *Voter {
	return &Voter{Store: store, Now: time.Now, NewID: uuid.NewString}
}

func (v *Voter) now() time.Time {
	if v.Now == nil {
		return time.Now().UTC()
	}
	return v.Now().UTC()
}

func (v *Voter) id() string {
	if v.NewID == nil {
		return ""
	}
	return v.NewID()
}

type CastVote struct {
	PollID    PollID
	UserID    ledger.UserID
	OptionIDs []OptionID
}

type RemoveVote struct {
	PollID    PollID
	UserID    ledger.UserID
	OptionIDs []OptionID
}

func validateBallot(pollID PollID, userID ledger.UserID, optionIDs []OptionID) error {
	if pollID == "" {
		return ledger.Invalid("poll_id", "must not be empty")
	}
	if userID == "" {
		return ledger.Invalid("user_id", "must not be empty")
	}
	if len(optionIDs) == 0 {
		return ledger.Invalid("option_id", "select at least one option")
	}
	seen := make(map[OptionID]bool, len(optionIDs))
	for _, id := range optionIDs {
		if seen[id] {
			return ledger.Invalid("option_id", "duplicate option %s", id)
		}
		seen[id] = true
	}
	return nil
}

// Cast records in.UserID's ballot.
func (v *Voter) Cast(ctx context.Context, in CastVote) ([]Vote, error) {
	if err := validateBallot(in.PollID, in.UserID, in.OptionIDs); err != nil {
		return nil, err
	}
	now := v.now()

	var created []Vote
	err := v.Store.WithTx(ctx, func(s Store) error {
		poll, err := openPoll(ctx, s, in.PollID, now)
		if err != nil {
			return err
		}
		if !poll.MultipleChoice && len(in.OptionIDs) > 1 {
			return ledger.Invalid("option_id", "poll accepts a single option")
		}

		options, err := s.ListOptions(ctx, poll.ID)
		if err != nil {
			return err
		}
		known := make(map[OptionID]bool, len(options))
		for _, o := range options {
			known[o.ID] = true
		}
		for _, id := range in.OptionIDs {
			if !known[id] {
				return ledger.Invalid("option_id", "%s is not an option of poll %s", id, poll.ID)
			}
		}

		existing, err := s.ListVotes(ctx, poll.ID)
		if err != nil {
			return err
		}
		mine := make(map[OptionID]bool)
		for _, vote := range existing {
			if vote.UserID == in.UserID {
				mine[vote.OptionID] = true
			}
		}
		if !poll.MultipleChoice && len(mine) > 0 {
			return ledger.Invalid("poll_id", "%s already voted; remove the vote first", in.UserID)
		}
		for _, id := range in.OptionIDs {
			if mine[id] {
				return ledger.ErrDuplicateVote
			}
		}

		votes := make([]Vote, 0, len(in.OptionIDs))
		for _, id := range in.OptionIDs {
			votes = append(votes, Vote{
				ID:        VoteID(v.id()),
				PollID:    poll.ID,
				UserID:    in.UserID,
				OptionID:  id,
				CreatedAt: now,
			})
		}
		created, err = s.InsertVotes(ctx, votes)
		return err
	})
	if err != nil {
		return nil, ledger.Persistence("cast vote", err)
	}
	return created, nil
}

// Remove deletes in.UserID's votes for in.OptionIDs and returns how many were
// removed. A *ledger.NotFoundError means the user had none of them.
func (v *Voter) Remove(ctx context.Context, in RemoveVote) (int, error) {
	if err := validateBallot(in.PollID, in.UserID, in.OptionIDs); err != nil {
		return 0, err
	}
	now := v.now()

	var removed int
	err := v.Store.WithTx(ctx, func(s Store) error {
		poll, err := openPoll(ctx, s, in.PollID, now)
		if err != nil {
			return err
		}
		removed, err = s.DeleteVotes(ctx, poll.ID, in.UserID, in.OptionIDs)
		if err != nil {
			return err
		}
		if removed == 0 {
			return ledger.NotFound("vote", in.OptionIDs[0])
		}
		return nil
	})
	if err != nil {
		return 0, ledger.Persistence("remove vote", err)
	}
	return removed, nil
}

func openPoll(ctx context.Context, s Store, id PollID, now time.Time) (Poll, error) {
	poll, err := s.GetPoll(ctx, id)
	if err != nil {
		return Poll{}, err
	}
	if poll.IsClosed(now) {
		return Poll{}, ledger.Invalid("poll_id", "poll closed at %s", poll.ExpiresAt.Format(time.RFC3339))
	}
	return poll, nil
}
