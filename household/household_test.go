package household_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/house-ledger/household"
	"github.com/warp/house-ledger/ledger"
	"github.com/warp/house-ledger/ledger/store"
)

func newService(t *testing.T, codes ...string) (*household.Service, *store.Memory) {
	t.Helper()
	s := store.NewMemory()
	svc := household.NewService(s)
	svc.Now = func() time.Time { return time.Date(2025, time.May, 1, 9, 0, 0, 0, time.UTC) }
	if len(codes) > 0 {
		i := 0
		svc.NewCode = func() (string, error) {
			c := codes[i%len(codes)]
			i++
			return c, nil
		}
	}
	return svc, s
}

// =============================================================================
// CREATE
// =============================================================================

func TestCreateHouse_CreatorBecomesAdmin(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, "HOUSE001")

	house, err := svc.CreateHouse(ctx, household.CreateHouse{UserID: "alice", DisplayName: "Alice", Name: " Flat 4 "})
	require.NoError(t, err)

	assert.Equal(t, "Flat 4", house.Name)
	assert.Equal(t, "HOUSE001", house.InviteCode)
	assert.Equal(t, ledger.UserID("alice"), house.CreatedBy)

	members, err := svc.Members(ctx, house.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, ledger.RoleAdmin, members[0].Role)
	assert.Equal(t, "Alice", members[0].Name)
}

func TestCreateHouse_ReplacesPriorMembership(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, "FIRST001", "SECOND02")

	first, err := svc.CreateHouse(ctx, household.CreateHouse{UserID: "alice", Name: "First"})
	require.NoError(t, err)
	second, err := svc.CreateHouse(ctx, household.CreateHouse{UserID: "alice", Name: "Second"})
	require.NoError(t, err)

	current, err := svc.HouseOf(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, second.ID, current.ID)

	members, err := svc.Members(ctx, first.ID)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestCreateHouse_RetriesOnCodeCollision(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, "SAMECODE", "SAMECODE", "FRESH001")

	_, err := svc.CreateHouse(ctx, household.CreateHouse{UserID: "alice", Name: "A"})
	require.NoError(t, err)
	house, err := svc.CreateHouse(ctx, household.CreateHouse{UserID: "bob", Name: "B"})
	require.NoError(t, err)
	assert.Equal(t, "FRESH001", house.InviteCode)
}

func TestCreateHouse_GivesUpAfterRepeatedCollisions(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, "SAMECODE")

	_, err := svc.CreateHouse(ctx, household.CreateHouse{UserID: "alice", Name: "A"})
	require.NoError(t, err)
	_, err = svc.CreateHouse(ctx, household.CreateHouse{UserID: "bob", Name: "B"})
	assert.True(t, errors.Is(err, ledger.ErrDuplicateInviteCode))
}

func TestCreateHouse_Validation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	_, err := svc.CreateHouse(ctx, household.CreateHouse{Name: "A"})
	assert.True(t, ledger.IsValidation(err))
	_, err = svc.CreateHouse(ctx, household.CreateHouse{UserID: "alice", Name: "   "})
	assert.True(t, ledger.IsValidation(err))
}

// =============================================================================
// JOIN / LEAVE
// =============================================================================

func TestJoinHouse_MovesMembership(t *testing.T) {
	// GIVEN: bob is the admin of his own house
	// WHEN: bob joins alice's house with her invite code
	// THEN: bob is a plain member of alice's house and gone from his own

	ctx := context.Background()
	svc, _ := newService(t, "ALICE001", "BOBHOUSE")

	alices, err := svc.CreateHouse(ctx, household.CreateHouse{UserID: "alice", Name: "Alice's"})
	require.NoError(t, err)
	bobs, err := svc.CreateHouse(ctx, household.CreateHouse{UserID: "bob", Name: "Bob's"})
	require.NoError(t, err)

	house, member, err := svc.JoinHouse(ctx, household.JoinHouse{UserID: "bob", DisplayName: "Bob", InviteCode: " alice001 "})
	require.NoError(t, err)

	assert.Equal(t, alices.ID, house.ID)
	assert.Equal(t, ledger.RoleMember, member.Role)
	assert.Equal(t, "Bob", member.Name)

	members, err := svc.Members(ctx, alices.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	members, err = svc.Members(ctx, bobs.ID)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestJoinHouse_SameHouseIsNoop(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t, "ALICE001")

	house, err := svc.CreateHouse(ctx, household.CreateHouse{UserID: "alice", Name: "A"})
	require.NoError(t, err)

	_, member, err := svc.JoinHouse(ctx, household.JoinHouse{UserID: "alice", InviteCode: house.InviteCode})
	require.NoError(t, err)
	assert.Equal(t, ledger.RoleAdmin, member.Role, "admin keeps their role")

	stored, err := s.MembershipOf(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, ledger.RoleAdmin, stored.Role)
}

func TestJoinHouse_UnknownCode(t *testing.T) {
	svc, _ := newService(t)
	_, _, err := svc.JoinHouse(context.Background(), household.JoinHouse{UserID: "bob", InviteCode: "NOPE0000"})
	assert.True(t, ledger.IsNotFound(err))
}

func TestLeaveHouse(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, "ALICE001")

	house, err := svc.CreateHouse(ctx, household.CreateHouse{UserID: "alice", Name: "A"})
	require.NoError(t, err)

	left, err := svc.LeaveHouse(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, house.ID, left.HouseID)

	_, err = svc.HouseOf(ctx, "alice")
	assert.True(t, ledger.IsNotFound(err))

	_, err = svc.LeaveHouse(ctx, "alice")
	assert.True(t, ledger.IsNotFound(err))
}

// =============================================================================
// INVITE CODES
// =============================================================================

func TestNewInviteCode_Alphabet(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := household.NewInviteCode()
		require.NoError(t, err)
		assert.Len(t, code, household.InviteCodeLength)
		assert.False(t, strings.ContainsAny(code, "01IO"), code)
		assert.Equal(t, strings.ToUpper(code), code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 190, "codes should not repeat")
}

func TestNormalizeInviteCode(t *testing.T) {
	assert.Equal(t, "ABCD2345", household.NormalizeInviteCode(" abcd 2345\n"))
}
