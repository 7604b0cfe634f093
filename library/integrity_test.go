package library

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixture is one book with two copies and two members, nothing lent.
func fixture() LibraryData {
	return LibraryData{
		Books: []*Book{{
			ID: "BK-1", ISBN: "111", Title: "Middlemarch", Author: "George Eliot",
			Copies: []*Copy{
				{ID: "CP-1", BookID: "BK-1", Barcode: "MM-1", Status: CopyAvailable},
				{ID: "CP-2", BookID: "BK-1", Barcode: "MM-2", Status: CopyAvailable},
			},
		}},
		Users: []*User{
			{ID: "U-1", Name: "Dorothea", Email: "d@example.org", Category: CategoryStudent, Standing: StandingActive, PenaltyBalance: decimal.Zero},
			{ID: "U-2", Name: "Lydgate", Email: "l@example.org", Category: CategoryStaff, Standing: StandingActive, PenaltyBalance: decimal.Zero},
		},
	}
}

func entities(vs []Violation) []string {
	var out []string
	for _, v := range vs {
		out = append(out, v.Entity)
	}
	return out
}

func TestHealthyDataHasNoViolations(t *testing.T) {
	s, _ := sessionFrom(t, fixture())
	assert.Empty(t, s.Violations())
	assert.NoError(t, s.CheckIntegrity())
}

func TestLoanedCopyWithoutLoan(t *testing.T) {
	data := fixture()
	data.Books[0].Copies[0].Status = CopyLoaned
	s, _ := sessionFrom(t, data)

	require.Equal(t, []string{"CP-1"}, entities(s.Violations()))
	err := s.CheckIntegrity()
	require.ErrorIs(t, err, ErrIntegrity)
	var ie *IntegrityError
	require.True(t, errors.As(err, &ie))
	assert.Contains(t, ie.Error(), "LOANED without an open loan")

	_, err = s.ReturnCopy("MM-1")
	assert.ErrorIs(t, err, ErrIntegrity)
	assert.False(t, IsBusinessRule(err))

	_, err = s.WithdrawCopy("CP-1")
	assert.ErrorIs(t, err, ErrIntegrity)

	// The healthy copy still circulates.
	l, err := s.RegisterLoan("U-1", "BK-1", "")
	require.NoError(t, err)
	assert.Equal(t, "CP-2", l.CopyID)
}

func TestReservedCopyWithoutReservation(t *testing.T) {
	data := fixture()
	data.Books[0].Copies[1].Status = CopyReserved
	s, _ := sessionFrom(t, data)

	require.Equal(t, []string{"CP-2"}, entities(s.Violations()))
	_, err := s.WithdrawCopy("MM-2")
	assert.ErrorIs(t, err, ErrIntegrity)
}

func TestOpenLoanOnAvailableCopy(t *testing.T) {
	data := fixture()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	data.Loans = []*Loan{{
		ID: "LN-1", CopyID: "CP-1", BookID: "BK-1", UserID: "U-1",
		LoanedAt: now, DueAt: now.Add(14 * day), AccruedPenalty: decimal.Zero,
	}}
	s, _ := sessionFrom(t, data)

	require.Equal(t, []string{"CP-1"}, entities(s.Violations()))
	_, err := s.ReturnLoan("LN-1")
	assert.ErrorIs(t, err, ErrIntegrity)
}

func TestLoanWithUnknownUser(t *testing.T) {
	data := fixture()
	data.Books[0].Copies[0].Status = CopyLoaned
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	data.Loans = []*Loan{{
		ID: "LN-1", CopyID: "CP-1", BookID: "BK-1", UserID: "U-9",
		LoanedAt: now, DueAt: now.Add(14 * day), AccruedPenalty: decimal.Zero,
	}}
	s, _ := sessionFrom(t, data)

	assert.Subset(t, entities(s.Violations()), []string{"LN-1", "CP-1", "BK-1"})
	_, err := s.ReturnLoan("LN-1")
	assert.ErrorIs(t, err, ErrIntegrity)
	_, err = s.AddCopy("BK-1", "")
	assert.ErrorIs(t, err, ErrIntegrity)
}

func TestNonContiguousQueue(t *testing.T) {
	data := fixture()
	for _, c := range data.Books[0].Copies {
		c.Status = CopyWithdrawn
	}
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	data.Reservations = []*Reservation{
		{ID: "RS-1", BookID: "BK-1", UserID: "U-1", Position: 1, Status: ReservationWaiting, CreatedAt: created},
		{ID: "RS-2", BookID: "BK-1", UserID: "U-2", Position: 3, Status: ReservationWaiting, CreatedAt: created},
	}
	s, _ := sessionFrom(t, data)

	require.Equal(t, []string{"BK-1"}, entities(s.Violations()))
	_, err := s.CancelReservation("RS-1")
	assert.ErrorIs(t, err, ErrIntegrity)
	assert.Equal(t, ReservationWaiting, data.Reservations[0].Status)
}

func TestTwoNotifiedReservationsForOneBook(t *testing.T) {
	data := fixture()
	data.Books[0].Copies[0].Status = CopyReserved
	data.Books[0].Copies[1].Status = CopyReserved
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	deadline := at.Add(48 * time.Hour)
	data.Reservations = []*Reservation{
		{ID: "RS-1", BookID: "BK-1", UserID: "U-1", Position: 1, Status: ReservationNotified, CreatedAt: at, NotifiedAt: &at, ClaimDeadline: &deadline, CopyID: "CP-1"},
		{ID: "RS-2", BookID: "BK-1", UserID: "U-2", Position: 2, Status: ReservationNotified, CreatedAt: at, NotifiedAt: &at, ClaimDeadline: &deadline, CopyID: "CP-2"},
	}
	s, _ := sessionFrom(t, data)

	assert.Contains(t, entities(s.Violations()), "BK-1")
	assert.Empty(t, s.SweepExpired(), "corrupt books are skipped")
}

func TestSuspendedWithoutEndDate(t *testing.T) {
	data := fixture()
	data.Users[0].Standing = StandingSuspended
	s, _ := sessionFrom(t, data)

	require.Equal(t, []string{"U-1"}, entities(s.Violations()))
	_, err := s.ApplyPenalty("U-1", decimal.NewFromInt(1), "")
	assert.ErrorIs(t, err, ErrIntegrity)
	_, err = s.ApplyPenalty("U-2", decimal.NewFromInt(1), "")
	assert.NoError(t, err)
}
