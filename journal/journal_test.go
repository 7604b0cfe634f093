package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-circulation/library"
)

func tempJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestAppendAndRecent(t *testing.T) {
	j := tempJournal(t)
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, j.Append(ctx,
		library.Event{OccurredAt: at, Actor: "U-1", Kind: library.EventLoanRegistered, UserID: "U-1", BookID: "BK-1", CopyID: "CP-1", LoanID: "LN-1"},
		library.Event{OccurredAt: at.Add(time.Hour), Actor: library.ActorSystem, Kind: library.EventReservationNotified, UserID: "U-2", BookID: "BK-1", ReservationID: "RS-1"},
	))

	recent, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, library.EventReservationNotified, recent[0].Action)
	assert.Equal(t, library.ActorSystem, recent[0].Actor)
	assert.Equal(t, "LN-1", recent[1].LoanID)
	assert.True(t, recent[1].OccurredAt.Equal(at))

	limited, err := j.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestAppendNothing(t *testing.T) {
	j := tempJournal(t)
	require.NoError(t, j.Append(context.Background()))
	recent, err := j.Recent(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestForUserAndBook(t *testing.T) {
	j := tempJournal(t)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, j.Append(ctx,
		library.Event{OccurredAt: now, Actor: "U-1", Kind: library.EventLoanRegistered, UserID: "U-1", BookID: "BK-1"},
		library.Event{OccurredAt: now, Actor: "U-2", Kind: library.EventReservationCreated, UserID: "U-2", BookID: "BK-1"},
		library.Event{OccurredAt: now, Actor: "U-1", Kind: library.EventLoanReturned, UserID: "U-1", BookID: "BK-2"},
	))

	mine, err := j.ForUser(ctx, "U-1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, library.EventLoanRegistered, mine[0].Action)
	assert.Equal(t, library.EventLoanReturned, mine[1].Action)

	book, err := j.ForBook(ctx, "BK-1")
	require.NoError(t, err)
	assert.Len(t, book, 2)
}

func TestReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Append(ctx, library.Event{OccurredAt: time.Now(), Actor: "ADMIN", Kind: library.EventBookAdded, BookID: "BK-1"}))
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()
	recent, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "BK-1", recent[0].BookID)
}

func TestEntryString(t *testing.T) {
	e := Entry{
		OccurredAt:    time.Date(2025, 3, 1, 10, 0, 0, 0, time.Local),
		Actor:         library.ActorSystem,
		Action:        library.EventReservationExpired,
		BookID:        "BK-1",
		CopyID:        "CP-1",
		ReservationID: "RS-1",
	}
	assert.Equal(t, "2025-03-01 10:00:00 | SYSTEM | reservation.expired | RS-1 | ", e.String())
}
