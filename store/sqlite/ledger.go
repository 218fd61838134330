/*
ledger.go - Houses, members, expenses and contributions in SQLite

PURPOSE:
  Implements ledger.Store, ledger.TxStore and household.Store. Most
  methods have a package-level twin taking a querier, so the same SQL
  runs on the database and inside WithTx.

STORAGE NOTES:
  - Amounts are TEXT holding the decimal string, so they round-trip
    exactly
  - split_between is a JSON array of user ids
  - A duplicate invite code maps to ledger.ErrDuplicateInviteCode

SEE ALSO:
  - sqlite.go: schema, Reset
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
)

// =============================================================================
// HOUSES & MEMBERS (ledger.Store reads, household.Store)
// =============================================================================

func (s *Store) GetHouse(ctx context.Context, id ledger.HouseID) (ledger.House, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getHouse(ctx, s.db, id)
}

func (s *Store) FindHouseByInviteCode(ctx context.Context, code string) (ledger.House, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, err := scanHouse(s.db.QueryRowContext(ctx,
		`SELECT id, name, code, created_by, created_at FROM houses WHERE code = ?`, code))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.House{}, ledger.NotFound("house", code)
	}
	return h, err
}

func getHouse(ctx context.Context, q querier, id ledger.HouseID) (ledger.House, error) {
	h, err := scanHouse(q.QueryRowContext(ctx,
		`SELECT id, name, code, created_by, created_at FROM houses WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.House{}, ledger.NotFound("house", id)
	}
	return h, err
}

func scanHouse(row *sql.Row) (ledger.House, error) {
	var (
		h         ledger.House
		createdAt string
	)
	if err := row.Scan(&h.ID, &h.Name, &h.InviteCode, &h.CreatedBy, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return h, err
		}
		return h, fmt.Errorf("failed to scan house: %w", err)
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return h, err
	}
	h.CreatedAt = t
	return h, nil
}

// ListHouses returns every house, oldest first.
func (s *Store) ListHouses(ctx context.Context) ([]ledger.House, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, code, created_by, created_at FROM houses ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query houses: %w", err)
	}
	defer rows.Close()

	var houses []ledger.House
	for rows.Next() {
		var (
			h         ledger.House
			createdAt string
		)
		if err := rows.Scan(&h.ID, &h.Name, &h.InviteCode, &h.CreatedBy, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan house: %w", err)
		}
		if h.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		houses = append(houses, h)
	}
	return houses, rows.Err()
}

func (s *Store) ListMembers(ctx context.Context, houseID ledger.HouseID) ([]ledger.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listMembers(ctx, s.db, houseID)
}

func listMembers(ctx context.Context, q querier, houseID ledger.HouseID) ([]ledger.Member, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT house_id, user_id, role, name, joined_at
		FROM house_members
		WHERE house_id = ?
		ORDER BY joined_at ASC, user_id ASC
	`, houseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	var members []ledger.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMember(row scanner) (ledger.Member, error) {
	var (
		m        ledger.Member
		role     string
		joinedAt string
	)
	if err := row.Scan(&m.HouseID, &m.UserID, &role, &m.Name, &joinedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return m, err
		}
		return m, fmt.Errorf("failed to scan member: %w", err)
	}
	m.Role = ledger.Role(role)
	t, err := parseTime(joinedAt)
	if err != nil {
		return m, err
	}
	m.JoinedAt = t
	return m, nil
}

func (s *Store) MembershipOf(ctx context.Context, userID ledger.UserID) (ledger.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, err := scanMember(s.db.QueryRowContext(ctx,
		`SELECT house_id, user_id, role, name, joined_at FROM house_members WHERE user_id = ?`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Member{}, ledger.NotFound("member", userID)
	}
	return m, err
}

// CreateHouse inserts h and creator's membership in one transaction,
// replacing any membership creator had.
func (s *Store) CreateHouse(ctx context.Context, h ledger.House, creator ledger.Member) (ledger.House, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h.ID == "" {
		h.ID = ledger.HouseID(uuid.NewString())
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
	creator.HouseID = h.ID

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO houses (id, name, code, created_by, created_at) VALUES (?, ?, ?, ?, ?)`,
			h.ID, h.Name, h.InviteCode, h.CreatedBy, formatTime(h.CreatedAt))
		if err != nil {
			if isUniqueConstraintError(err) {
				return ledger.ErrDuplicateInviteCode
			}
			return fmt.Errorf("failed to insert house: %w", err)
		}
		return replaceMember(ctx, tx, creator)
	})
	if err != nil {
		return ledger.House{}, err
	}
	return h, nil
}

// PutMember replaces the user's membership with m.
func (s *Store) PutMember(ctx context.Context, m ledger.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := getHouse(ctx, tx, m.HouseID); err != nil {
			return err
		}
		return replaceMember(ctx, tx, m)
	})
}

func replaceMember(ctx context.Context, q querier, m ledger.Member) error {
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now().UTC()
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM house_members WHERE user_id = ?`, m.UserID); err != nil {
		return fmt.Errorf("failed to remove prior membership: %w", err)
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO house_members (user_id, house_id, role, name, joined_at)
		VALUES (?, ?, ?, ?, ?)
	`, m.UserID, m.HouseID, string(m.Role), m.Name, formatTime(m.JoinedAt))
	if err != nil {
		return fmt.Errorf("failed to insert member: %w", err)
	}
	return nil
}

func (s *Store) DeleteMember(ctx context.Context, userID ledger.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM house_members WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete member: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.NotFound("member", userID)
	}
	return nil
}

// =============================================================================
// EXPENSES
// =============================================================================

const expenseColumns = `id, house_id, title, amount, paid_by, split_between, created_at`

func (s *Store) ListExpenses(ctx context.Context, houseID ledger.HouseID) ([]ledger.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listExpenses(ctx, s.db, houseID)
}

func listExpenses(ctx context.Context, q querier, houseID ledger.HouseID) ([]ledger.Expense, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+expenseColumns+`
		FROM expenses
		WHERE house_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, houseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses: %w", err)
	}
	defer rows.Close()

	var expenses []ledger.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

func (s *Store) GetExpense(ctx context.Context, id ledger.ExpenseID) (ledger.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getExpense(ctx, s.db, id)
}

func getExpense(ctx context.Context, q querier, id ledger.ExpenseID) (ledger.Expense, error) {
	e, err := scanExpense(q.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Expense{}, ledger.NotFound("expense", id)
	}
	return e, err
}

func scanExpense(row scanner) (ledger.Expense, error) {
	var (
		e         ledger.Expense
		amount    string
		splitJSON string
		createdAt string
	)
	if err := row.Scan(&e.ID, &e.HouseID, &e.Title, &amount, &e.PayerID, &splitJSON, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e, err
		}
		return e, fmt.Errorf("failed to scan expense: %w", err)
	}

	var err error
	if e.Amount, err = parseDecimal(amount); err != nil {
		return e, err
	}
	if err := json.Unmarshal([]byte(splitJSON), &e.SplitBetween); err != nil {
		return e, fmt.Errorf("invalid split_between for expense %s: %w", e.ID, err)
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return e, err
	}
	return e, nil
}

func (s *Store) InsertExpense(ctx context.Context, e ledger.Expense) (ledger.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertExpense(ctx, s.db, e)
}

func insertExpense(ctx context.Context, q querier, e ledger.Expense) (ledger.Expense, error) {
	if e.ID == "" {
		e.ID = ledger.ExpenseID(uuid.NewString())
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.SplitBetween == nil {
		e.SplitBetween = []ledger.UserID{}
	}
	splitJSON, err := json.Marshal(e.SplitBetween)
	if err != nil {
		return ledger.Expense{}, fmt.Errorf("failed to encode split_between: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO expenses (`+expenseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID,
		e.HouseID,
		e.Title,
		e.Amount.String(),
		e.PayerID,
		string(splitJSON),
		formatTime(e.CreatedAt),
	)
	if err != nil {
		return ledger.Expense{}, fmt.Errorf("failed to insert expense: %w", err)
	}
	return e, nil
}

// =============================================================================
// CONTRIBUTIONS
// =============================================================================

func (s *Store) ListContributions(ctx context.Context, filter ledger.ContributionFilter) ([]ledger.Contribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listContributions(ctx, s.db, filter)
}

func listContributions(ctx context.Context, q querier, filter ledger.ContributionFilter) ([]ledger.Contribution, error) {
	query := `
		SELECT id, expense_id, house_id, user_id, amount, date, note
		FROM contributions
		WHERE 1 = 1`
	var args []any
	if filter.HouseID != "" {
		query += ` AND house_id = ?`
		args = append(args, filter.HouseID)
	}
	if filter.ExpenseID != "" {
		query += ` AND expense_id = ?`
		args = append(args, filter.ExpenseID)
	}
	if filter.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	query += ` ORDER BY date ASC, rowid ASC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query contributions: %w", err)
	}
	defer rows.Close()

	var contributions []ledger.Contribution
	for rows.Next() {
		var (
			c      ledger.Contribution
			amount string
			date   string
			note   sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.ExpenseID, &c.HouseID, &c.UserID, &amount, &date, &note); err != nil {
			return nil, fmt.Errorf("failed to scan contribution: %w", err)
		}
		if c.Amount, err = parseDecimal(amount); err != nil {
			return nil, err
		}
		if c.Date, err = parseTime(date); err != nil {
			return nil, err
		}
		c.Note = note.String
		contributions = append(contributions, c)
	}
	return contributions, rows.Err()
}

func (s *Store) InsertContribution(ctx context.Context, c ledger.Contribution) (ledger.Contribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertContribution(ctx, s.db, c)
}

func insertContribution(ctx context.Context, q querier, c ledger.Contribution) (ledger.Contribution, error) {
	if c.ID == "" {
		c.ID = ledger.ContributionID(uuid.NewString())
	}
	if c.Date.IsZero() {
		c.Date = time.Now().UTC()
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO contributions (id, expense_id, house_id, user_id, amount, date, note)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID,
		c.ExpenseID,
		c.HouseID,
		c.UserID,
		c.Amount.String(),
		formatTime(c.Date),
		nullString(c.Note),
	)
	if err != nil {
		return ledger.Contribution{}, fmt.Errorf("failed to insert contribution: %w", err)
	}
	return c, nil
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		return fn(&txStore{tx: tx})
	})
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) GetHouse(ctx context.Context, id ledger.HouseID) (ledger.House, error) {
	return getHouse(ctx, ts.tx, id)
}

func (ts *txStore) ListMembers(ctx context.Context, houseID ledger.HouseID) ([]ledger.Member, error) {
	return listMembers(ctx, ts.tx, houseID)
}

func (ts *txStore) ListExpenses(ctx context.Context, houseID ledger.HouseID) ([]ledger.Expense, error) {
	return listExpenses(ctx, ts.tx, houseID)
}

func (ts *txStore) GetExpense(ctx context.Context, id ledger.ExpenseID) (ledger.Expense, error) {
	return getExpense(ctx, ts.tx, id)
}

func (ts *txStore) ListContributions(ctx context.Context, filter ledger.ContributionFilter) ([]ledger.Contribution, error) {
	return listContributions(ctx, ts.tx, filter)
}

func (ts *txStore) InsertExpense(ctx context.Context, e ledger.Expense) (ledger.Expense, error) {
	return insertExpense(ctx, ts.tx, e)
}

func (ts *txStore) InsertContribution(ctx context.Context, c ledger.Contribution) (ledger.Contribution, error) {
	return insertContribution(ctx, ts.tx, c)
}
