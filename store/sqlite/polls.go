/*
polls.go - Polls, options, votes and closures in SQLite

PURPOSE:
  Implements polls.TxStore through the PollStore view, plus the closure
  bookkeeping the poll closer uses so each expired poll is closed once.

SEE ALSO:
  - sqlite.go: schema
  - polls/voter.go: transactional vote writes
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/warp/house-ledger/ledger"
	"github.com/warp/house-ledger/polls"
)

// =============================================================================
// POLL STORE (polls.TxStore interface)
// =============================================================================

// PollStore is the polls view of a Store. It shares the Store's database
// and lock.
type PollStore struct {
	s *Store
}

// Polls returns the polls.TxStore backed by s.
func (s *Store) Polls() *PollStore {
	return &PollStore{s: s}
}

func (p *PollStore) GetPoll(ctx context.Context, id polls.PollID) (polls.Poll, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()
	return getPoll(ctx, p.s.db, id)
}

func (p *PollStore) ListOptions(ctx context.Context, pollID polls.PollID) ([]polls.Option, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()
	return listOptions(ctx, p.s.db, pollID)
}

func (p *PollStore) ListVotes(ctx context.Context, pollID polls.PollID) ([]polls.Vote, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()
	return listVotes(ctx, p.s.db, pollID)
}

// InsertVotes adds all votes atomically.
func (p *PollStore) InsertVotes(ctx context.Context, votes []polls.Vote) ([]polls.Vote, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	var out []polls.Vote
	err := p.s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = insertVotes(ctx, tx, votes)
		return err
	})
	return out, err
}

func (p *PollStore) DeleteVotes(ctx context.Context, pollID polls.PollID, userID ledger.UserID, optionIDs []polls.OptionID) (int, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	return deleteVotes(ctx, p.s.db, pollID, userID, optionIDs)
}

// WithTx executes a function within a database transaction.
func (p *PollStore) WithTx(ctx context.Context, fn func(store polls.Store) error) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	return p.s.inTx(ctx, func(tx *sql.Tx) error {
		return fn(&txPollStore{tx: tx})
	})
}

type txPollStore struct {
	tx *sql.Tx
}

func (ts *txPollStore) GetPoll(ctx context.Context, id polls.PollID) (polls.Poll, error) {
	return getPoll(ctx, ts.tx, id)
}

func (ts *txPollStore) ListOptions(ctx context.Context, pollID polls.PollID) ([]polls.Option, error) {
	return listOptions(ctx, ts.tx, pollID)
}

func (ts *txPollStore) ListVotes(ctx context.Context, pollID polls.PollID) ([]polls.Vote, error) {
	return listVotes(ctx, ts.tx, pollID)
}

func (ts *txPollStore) InsertVotes(ctx context.Context, votes []polls.Vote) ([]polls.Vote, error) {
	return insertVotes(ctx, ts.tx, votes)
}

func (ts *txPollStore) DeleteVotes(ctx context.Context, pollID polls.PollID, userID ledger.UserID, optionIDs []polls.OptionID) (int, error) {
	return deleteVotes(ctx, ts.tx, pollID, userID, optionIDs)
}

// -----------------------------------------------------------------------------
// Queries shared by PollStore and txPollStore
// -----------------------------------------------------------------------------

const pollColumns = `id, house_id, created_by, question, multiple_choice, created_at, expires_at`

func getPoll(ctx context.Context, q querier, id polls.PollID) (polls.Poll, error) {
	poll, err := scanPoll(q.QueryRowContext(ctx, `SELECT `+pollColumns+` FROM polls WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return polls.Poll{}, ledger.NotFound("poll", id)
	}
	return poll, err
}

func scanPoll(row scanner) (polls.Poll, error) {
	var (
		p                    polls.Poll
		createdAt, expiresAt string
	)
	if err := row.Scan(&p.ID, &p.HouseID, &p.CreatedBy, &p.Question, &p.MultipleChoice, &createdAt, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, err
		}
		return p, fmt.Errorf("failed to scan poll: %w", err)
	}
	var err error
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return p, err
	}
	if p.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return p, err
	}
	return p, nil
}

func listOptions(ctx context.Context, q querier, pollID polls.PollID) ([]polls.Option, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, poll_id, option_text
		FROM poll_options
		WHERE poll_id = ?
		ORDER BY position ASC
	`, pollID)
	if err != nil {
		return nil, fmt.Errorf("failed to query poll options: %w", err)
	}
	defer rows.Close()

	var options []polls.Option
	for rows.Next() {
		var o polls.Option
		if err := rows.Scan(&o.ID, &o.PollID, &o.Text); err != nil {
			return nil, fmt.Errorf("failed to scan poll option: %w", err)
		}
		options = append(options, o)
	}
	return options, rows.Err()
}

func listVotes(ctx context.Context, q querier, pollID polls.PollID) ([]polls.Vote, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, poll_id, user_id, option_id, created_at
		FROM poll_votes
		WHERE poll_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, pollID)
	if err != nil {
		return nil, fmt.Errorf("failed to query votes: %w", err)
	}
	defer rows.Close()

	var votes []polls.Vote
	for rows.Next() {
		var (
			v         polls.Vote
			createdAt string
		)
		if err := rows.Scan(&v.ID, &v.PollID, &v.UserID, &v.OptionID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan vote: %w", err)
		}
		if v.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		votes = append(votes, v)
	}
	return votes, rows.Err()
}

func insertVotes(ctx context.Context, q querier, votes []polls.Vote) ([]polls.Vote, error) {
	out := make([]polls.Vote, 0, len(votes))
	for _, v := range votes {
		if v.ID == "" {
			v.ID = polls.VoteID(uuid.NewString())
		}
		if v.CreatedAt.IsZero() {
			v.CreatedAt = time.Now().UTC()
		}
		_, err := q.ExecContext(ctx, `
			INSERT INTO poll_votes (id, poll_id, user_id, option_id, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, v.ID, v.PollID, v.UserID, v.OptionID, formatTime(v.CreatedAt))
		if err != nil {
			if isUniqueConstraintError(err) {
				return nil, ledger.ErrDuplicateVote
			}
			return nil, fmt.Errorf("failed to insert vote: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}

func deleteVotes(ctx context.Context, q querier, pollID polls.PollID, userID ledger.UserID, optionIDs []polls.OptionID) (int, error) {
	if len(optionIDs) == 0 {
		return 0, nil
	}
	args := []any{pollID, userID}
	for _, id := range optionIDs {
		args = append(args, id)
	}
	res, err := q.ExecContext(ctx, `
		DELETE FROM poll_votes
		WHERE poll_id = ? AND user_id = ? AND option_id IN (`+placeholders(len(optionIDs))+`)
	`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete votes: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted votes: %w", err)
	}
	return int(n), nil
}

// =============================================================================
// POLL ADMINISTRATION - creation, listing and closure
// =============================================================================

// InsertPoll stores a poll with its options. Options keep the given order.
func (p *PollStore) InsertPoll(ctx context.Context, poll polls.Poll, options []polls.Option) (polls.Poll, []polls.Option, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	if poll.ID == "" {
		poll.ID = polls.PollID(uuid.NewString())
	}
	if poll.CreatedAt.IsZero() {
		poll.CreatedAt = time.Now().UTC()
	}
	stored := make([]polls.Option, 0, len(options))

	err := p.s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO polls (`+pollColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			poll.ID, poll.HouseID, poll.CreatedBy, poll.Question, poll.MultipleChoice,
			formatTime(poll.CreatedAt), formatTime(poll.ExpiresAt))
		if err != nil {
			return fmt.Errorf("failed to insert poll: %w", err)
		}
		for i, o := range options {
			if o.ID == "" {
				o.ID = polls.OptionID(uuid.NewString())
			}
			o.PollID = poll.ID
			_, err := tx.ExecContext(ctx,
				`INSERT INTO poll_options (id, poll_id, option_text, position) VALUES (?, ?, ?, ?)`,
				o.ID, o.PollID, o.Text, i)
			if err != nil {
				return fmt.Errorf("failed to insert poll option: %w", err)
			}
			stored = append(stored, o)
		}
		return nil
	})
	if err != nil {
		return polls.Poll{}, nil, err
	}
	return poll, stored, nil
}

// ListPolls returns a house's polls, newest first.
func (p *PollStore) ListPolls(ctx context.Context, houseID ledger.HouseID) ([]polls.Poll, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()
	return queryPolls(ctx, p.s.db, `
		SELECT `+pollColumns+` FROM polls WHERE house_id = ? ORDER BY created_at DESC, id
	`, houseID)
}

// ListUnclosedExpired returns polls that expired at or before now and have
// no closure record yet.
func (p *PollStore) ListUnclosedExpired(ctx context.Context, now time.Time) ([]polls.Poll, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()
	return queryPolls(ctx, p.s.db, `
		SELECT `+pollColumns+`
		FROM polls
		WHERE expires_at <= ?
		  AND id NOT IN (SELECT poll_id FROM poll_closures)
		ORDER BY expires_at ASC
	`, formatTime(now))
}

func queryPolls(ctx context.Context, q querier, query string, args ...any) ([]polls.Poll, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query polls: %w", err)
	}
	defer rows.Close()

	var out []polls.Poll
	for rows.Next() {
		poll, err := scanPoll(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, poll)
	}
	return out, rows.Err()
}

// SaveClosure records that a poll was closed with the given winners. Closing
// twice keeps the first record.
func (p *PollStore) SaveClosure(ctx context.Context, pollID polls.PollID, winners []polls.OptionID, closedAt time.Time) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	if winners == nil {
		winners = []polls.OptionID{}
	}
	winnersJSON, err := json.Marshal(winners)
	if err != nil {
		return fmt.Errorf("failed to encode winners: %w", err)
	}
	_, err = p.s.db.ExecContext(ctx, `
		INSERT INTO poll_closures (poll_id, winners_json, closed_at)
		VALUES (?, ?, ?)
		ON CONFLICT(poll_id) DO NOTHING
	`, pollID, string(winnersJSON), formatTime(closedAt))
	return err
}

// IsPollClosed reports whether a closure record exists for pollID.
func (p *PollStore) IsPollClosed(ctx context.Context, pollID polls.PollID) (bool, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()

	var count int
	err := p.s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM poll_closures WHERE poll_id = ?`, pollID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
