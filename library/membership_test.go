package library

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterUser(t *testing.T) {
	s, clock := newTestSession(t)

	u, err := s.RegisterUser(NewUser{Name: "  Ada Lovelace ", Email: "Ada@Example.org"})
	require.NoError(t, err)
	assert.Equal(t, "U-1", u.ID)
	assert.Equal(t, "Ada Lovelace", u.Name)
	assert.Equal(t, "ada@example.org", u.Email)
	assert.Equal(t, CategoryStudent, u.Category)
	assert.Equal(t, StandingActive, u.Standing)
	assert.True(t, u.PenaltyBalance.IsZero())
	assert.Equal(t, clock.Now(), u.RegisteredAt)

	_, err = s.RegisterUser(NewUser{Name: "Impostor", Email: "ada@example.org"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestRegisterUserValidation(t *testing.T) {
	tests := []struct {
		name string
		in   NewUser
	}{
		{"missing name", NewUser{Email: "x@example.org"}},
		{"bad email", NewUser{Name: "X", Email: "nowhere"}},
		{"unknown category", NewUser{Name: "X", Email: "x@example.org", Category: "alumni"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestSession(t)
			_, err := s.RegisterUser(tt.in)
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.Empty(t, s.Users())
		})
	}
}

func TestApplyPenaltyThresholdIsStrict(t *testing.T) {
	s, clock := newTestSession(t)
	u := addUser(t, s, "grace", CategoryTeacher)

	_, err := s.ApplyPenalty(u.ID, decimal.NewFromInt(20), "lost bookmark")
	require.NoError(t, err)
	assert.Equal(t, StandingActive, u.Standing, "reaching the threshold is not enough")

	_, err = s.ApplyPenalty(u.ID, decimal.NewFromInt(5), "")
	require.NoError(t, err)
	assert.Equal(t, StandingSuspended, u.Standing)
	require.NotNil(t, u.SuspendedUntil)
	assert.Equal(t, clock.Now().Add(30*day), *u.SuspendedUntil)
	assert.True(t, decimal.NewFromInt(25).Equal(u.PenaltyBalance))
}

func TestApplyPenaltyCreditFloorsAtZero(t *testing.T) {
	s, _ := newTestSession(t)
	u := addUser(t, s, "linus", CategoryStaff)

	_, err := s.ApplyPenalty(u.ID, decimal.NewFromInt(3), "")
	require.NoError(t, err)
	_, err = s.ApplyPenalty(u.ID, decimal.NewFromInt(-10), "goodwill")
	require.NoError(t, err)
	assert.True(t, u.PenaltyBalance.IsZero())

	_, err = s.ApplyPenalty(u.ID, decimal.Zero, "")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = s.ApplyPenalty("U-404", decimal.NewFromInt(1), "")
	assert.ErrorIs(t, err, ErrUnknownUser)
}

func TestPayPenaltyKeepsSuspension(t *testing.T) {
	s, _ := newTestSession(t)
	u := addUser(t, s, "ken", CategoryStudent)
	_, err := s.ApplyPenalty(u.ID, decimal.NewFromInt(30), "")
	require.NoError(t, err)
	require.Equal(t, StandingSuspended, u.Standing)

	_, err = s.PayPenalty(u.ID, decimal.NewFromInt(30))
	require.NoError(t, err)
	assert.True(t, u.PenaltyBalance.IsZero())
	assert.Equal(t, StandingSuspended, u.Standing)

	_, err = s.PayPenalty(u.ID, decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestLiftSuspension(t *testing.T) {
	s, _ := newTestSession(t)
	u := addUser(t, s, "barbara", CategoryStudent)
	_, err := s.ApplyPenalty(u.ID, decimal.NewFromInt(21), "")
	require.NoError(t, err)
	s.Drain()

	_, err = s.LiftSuspension(u.ID)
	require.NoError(t, err)
	assert.Equal(t, StandingActive, u.Standing)
	assert.Nil(t, u.SuspendedUntil)
	assert.True(t, decimal.NewFromInt(21).Equal(u.PenaltyBalance), "the ledger is untouched")

	events, _, _ := s.Drain()
	require.Equal(t, []string{EventSuspensionLifted}, eventKinds(events))
	assert.Equal(t, "ADMIN", events[0].Actor)

	// Lifting an active member is a no-op.
	_, err = s.LiftSuspension(u.ID)
	require.NoError(t, err)
	_, _, dirty := s.Drain()
	assert.False(t, dirty)
}

func TestSuspensionExpiresOnRead(t *testing.T) {
	s, clock := newTestSession(t)
	u := addUser(t, s, "dennis", CategoryStudent)
	_, err := s.ApplyPenalty(u.ID, decimal.NewFromInt(50), "")
	require.NoError(t, err)
	s.Drain()

	clock.Advance(29 * day)
	assert.Len(t, s.Suspensions(), 1)

	clock.Advance(day)
	assert.Empty(t, s.Suspensions())
	assert.Equal(t, StandingActive, u.Standing)
	assert.True(t, decimal.NewFromInt(50).Equal(u.PenaltyBalance))

	events, _, _ := s.Drain()
	require.Equal(t, []string{EventSuspensionExpired}, eventKinds(events))
	assert.Equal(t, ActorSystem, events[0].Actor)
}

func TestAuthenticate(t *testing.T) {
	s, _ := newTestSession(t)
	u, err := s.RegisterUser(NewUser{Name: "Margaret", Email: "mh@example.org", Password: "1969"})
	require.NoError(t, err)
	assert.NotEqual(t, "1969", u.PasswordHash)

	assert.NoError(t, s.Authenticate(u.ID, "1969"))
	assert.ErrorIs(t, s.Authenticate(u.ID, "0000"), ErrAuthFailed)

	require.NoError(t, s.SetPassword(u.ID, "2024"))
	assert.ErrorIs(t, s.Authenticate(u.ID, "1969"), ErrAuthFailed)
	assert.NoError(t, s.Authenticate(u.ID, "2024"))

	require.NoError(t, s.SetPassword(u.ID, ""))
	assert.NoError(t, s.Authenticate(u.ID, "anything"))

	assert.ErrorIs(t, s.Authenticate("U-404", ""), ErrUnknownUser)
}
