/*
tally.go - Vote counting and winners

PURPOSE:
  Pure functions over a poll's options and votes. Nothing here touches a
  store.

WINNERS:
  Empty while the poll is open. After ExpiresAt, every option sharing the
  highest positive count wins, so a tie yields several winners. A poll
  with no votes has none.

SEE ALSO:
  - voter.go: writes the votes counted here
  - api/scheduler.go: records winners once a poll expires
*/
package polls

import (
	"time"

	"github.com/warp/house-ledger/ledger"
)

// OptionTally is the vote count of one option.
type OptionTally struct {
	Option Option
	Votes  int
}

// Tally counts votes per option, in options order. Votes for options not in
// the list are ignored.
func Tally(options []Option, votes []Vote) []OptionTally {
	counts := make(map[OptionID]int, len(options))
	for _, v := range votes {
		counts[v.OptionID]++
	}
	out := make([]OptionTally, 0, len(options))
	for _, o := range options {
		out = append(out, OptionTally{Option: o, Votes: counts[o.ID]})
	}
	return out
}

// Winners returns every option sharing the highest vote count once the poll
// is closed. Before expiry, or when nobody voted, there are no winners.
func Winners(poll Poll, options []Option, votes []Vote, now time.Time) []Option {
	if !poll.IsClosed(now) {
		return nil
	}
	return leaders(Tally(options, votes))
}

func leaders(tallies []OptionTally) []Option {
	top := 0
	for _, t := range tallies {
		if t.Votes > top {
			top = t.Votes
		}
	}
	if top == 0 {
		return nil
	}
	var out []Option
	for _, t := range tallies {
		if t.Votes == top {
			out = append(out, t.Option)
		}
	}
	return out
}

// Result is the derived state of a poll at one instant.
type Result struct {
	Poll    Poll
	Closed  bool
	Tallies []OptionTally
	Winners []Option
	Voters  int // distinct users with at least one vote
}

func Results(poll Poll, options []Option, votes []Vote, now time.Time) Result {
	tallies := Tally(options, votes)
	voters := make(map[ledger.UserID]bool)
	for _, v := range votes {
		voters[v.UserID] = true
	}
	r := Result{
		Poll:    poll,
		Closed:  poll.IsClosed(now),
		Tallies: tallies,
		Voters:  len(voters),
	}
	if r.Closed {
		r.Winners = leaders(tallies)
	}
	return r
}
