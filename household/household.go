/*
Package household manages house creation and membership.

PURPOSE:
  A house is the tenant boundary of the ledger: every expense, contribution
  and poll belongs to exactly one. This package owns how users get into and
  out of houses.

RULES:
  - A user belongs to at most one house at a time
  - Creating a house makes the creator its admin and drops any membership
    they had
  - Joining by invite code drops any prior membership and joins as member
  - Joining the house you are already in changes nothing
  - Leaving deletes the membership row; the user's expenses stay in the
    house's ledger

INVITE CODES:
  Eight characters from an alphabet without look-alikes (no 0/O, 1/I).
  Uniqueness is enforced by the store; a collision is retried with a fresh
  code.

SEE ALSO:
  - invite.go: code generation
  - ledger/types.go: House, Member
*/
package household

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/warp/house-ledger/ledger"
)

// Store handles persistence of houses and memberships.
type Store interface {
	// GetHouse returns a *ledger.NotFoundError when the house does not exist.
	GetHouse(ctx context.Context, id ledger.HouseID) (ledger.House, error)

	// FindHouseByInviteCode returns a *ledger.NotFoundError for unknown codes.
	FindHouseByInviteCode(ctx context.Context, code string) (ledger.House, error)

	ListMembers(ctx context.Context, houseID ledger.HouseID) ([]ledger.Member, error)

	// MembershipOf returns a *ledger.NotFoundError when the user is in no house.
	MembershipOf(ctx context.Context, userID ledger.UserID) (ledger.Member, error)

	// CreateHouse inserts h and creator's membership atomically, replacing
	// any membership creator had. Fails with ledger.ErrDuplicateInviteCode
	// when h.InviteCode is taken.
	CreateHouse(ctx context.Context, h ledger.House, creator ledger.Member) (ledger.House, error)

	// PutMember replaces the user's membership with m.
	PutMember(ctx context.Context, m ledger.Member) error

	// DeleteMember returns a *ledger.NotFoundError when the user is in no house.
	DeleteMember(ctx context.Context, userID ledger.UserID) error
}

const maxInviteCodeAttempts = 5

type Service struct {
	Store   Store
	Now     func() time.Time
	NewCode func() (string, error)
}

func NewService(store Store) *Service {
	return &Service{Store: store, Now: time.Now, NewCode: NewInviteCode}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// =============================================================================
// CREATE
// =============================================================================

type CreateHouse struct {
	UserID      ledger.UserID
	DisplayName string
	Name        string
}

// CreateHouse creates a house with in.UserID as admin.
func (s *Service) CreateHouse(ctx context.Context, in CreateHouse) (ledger.House, error) {
	if in.UserID == "" {
		return ledger.House{}, ledger.Invalid("user_id", "must not be empty")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return ledger.House{}, ledger.Invalid("name", "must not be empty")
	}
	now := s.now()

	for attempt := 1; ; attempt++ {
		code, err := s.NewCode()
		if err != nil {
			return ledger.House{}, ledger.Persistence("generate invite code", err)
		}
		house, err := s.Store.CreateHouse(ctx,
			ledger.House{Name: name, InviteCode: code, CreatedBy: in.UserID, CreatedAt: now},
			ledger.Member{
				UserID:   in.UserID,
				Role:     ledger.RoleAdmin,
				Name:     displayName(in.DisplayName, in.UserID),
				JoinedAt: now,
			},
		)
		if errors.Is(err, ledger.ErrDuplicateInviteCode) && attempt < maxInviteCodeAttempts {
			slog.Warn("Invite code collision, retrying", "attempt", attempt)
			continue
		}
		if err != nil {
			return ledger.House{}, ledger.Persistence("create house", err)
		}
		slog.Info("House created", "house_id", house.ID, "created_by", in.UserID)
		return house, nil
	}
}

// =============================================================================
// JOIN / LEAVE
// =============================================================================

type JoinHouse struct {
	UserID      ledger.UserID
	DisplayName string
	InviteCode  string
}

// JoinHouse moves in.UserID into the house owning in.InviteCode.
func (s *Service) JoinHouse(ctx context.Context, in JoinHouse) (ledger.House, ledger.Member, error) {
	if in.UserID == "" {
		return ledger.House{}, ledger.Member{}, ledger.Invalid("user_id", "must not be empty")
	}
	code := NormalizeInviteCode(in.InviteCode)
	if code == "" {
		return ledger.House{}, ledger.Member{}, ledger.Invalid("invite_code", "must not be empty")
	}

	house, err := s.Store.FindHouseByInviteCode(ctx, code)
	if err != nil {
		return ledger.House{}, ledger.Member{}, ledger.Persistence("find house", err)
	}

	current, err := s.Store.MembershipOf(ctx, in.UserID)
	switch {
	case err == nil && current.HouseID == house.ID:
		return house, current, nil
	case err != nil && !ledger.IsNotFound(err):
		return ledger.House{}, ledger.Member{}, ledger.Persistence("check membership", err)
	}

	member := ledger.Member{
		HouseID:  house.ID,
		UserID:   in.UserID,
		Role:     ledger.RoleMember,
		Name:     displayName(in.DisplayName, in.UserID),
		JoinedAt: s.now(),
	}
	if err := s.Store.PutMember(ctx, member); err != nil {
		return ledger.House{}, ledger.Member{}, ledger.Persistence("join house", err)
	}
	slog.Info("Member joined house", "house_id", house.ID, "user_id", in.UserID, "left", current.HouseID)
	return house, member, nil
}

// LeaveHouse removes userID from their house and returns the membership that
// was removed.
func (s *Service) LeaveHouse(ctx context.Context, userID ledger.UserID) (ledger.Member, error) {
	if userID == "" {
		return ledger.Member{}, ledger.Invalid("user_id", "must not be empty")
	}
	member, err := s.Store.MembershipOf(ctx, userID)
	if err != nil {
		return ledger.Member{}, ledger.Persistence("check membership", err)
	}
	if err := s.Store.DeleteMember(ctx, userID); err != nil {
		return ledger.Member{}, ledger.Persistence("leave house", err)
	}
	slog.Info("Member left house", "house_id", member.HouseID, "user_id", userID)
	return member, nil
}

// =============================================================================
// QUERIES
// =============================================================================

func (s *Service) Members(ctx context.Context, houseID ledger.HouseID) ([]ledger.Member, error) {
	if _, err := s.Store.GetHouse(ctx, houseID); err != nil {
		return nil, ledger.Persistence("get house", err)
	}
	members, err := s.Store.ListMembers(ctx, houseID)
	if err != nil {
		return nil, ledger.Persistence("list members", err)
	}
	return members, nil
}

// HouseOf returns the house userID currently belongs to.
func (s *Service) HouseOf(ctx context.Context, userID ledger.UserID) (ledger.House, error) {
	member, err := s.Store.MembershipOf(ctx, userID)
	if err != nil {
		return ledger.House{}, ledger.Persistence("check membership", err)
	}
	house, err := s.Store.GetHouse(ctx, member.HouseID)
	if err != nil {
		return ledger.House{}, ledger.Persistence("get house", err)
	}
	return house, nil
}

func displayName(name string, fallback ledger.UserID) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	return string(fallback)
}
