package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"library-circulation/library"
)

func TestObserveCountsEventsAndSetsGauges(t *testing.T) {
	m, err := New(Options{Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)

	m.Observe([]library.Event{
		{Kind: library.EventLoanRegistered},
		{Kind: library.EventLoanRegistered},
		{Kind: library.EventReservationNotified},
	}, library.Stats{
		Users:                4,
		SuspendedUsers:       1,
		OpenLoans:            2,
		OverdueLoans:         1,
		WaitingReservations:  3,
		NotifiedReservations: 1,
		CopiesByStatus:       map[library.CopyStatus]int{library.CopyLoaned: 2, library.CopyReserved: 1},
		OutstandingPenalties: decimal.RequireFromString("12.5"),
	})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Events.WithLabelValues(library.EventLoanRegistered)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Events.WithLabelValues(library.EventReservationNotified)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Copies.WithLabelValues("LOANED")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Copies.WithLabelValues("AVAILABLE")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Reservations.WithLabelValues("WAITING")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SuspendedUsers))
	assert.Equal(t, 12.5, testutil.ToFloat64(m.OutstandingPenalties))
}

func TestObserveWritesTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library.prom")
	m, err := New(Options{Textfile: path})
	require.NoError(t, err)

	m.Observe([]library.Event{{Kind: library.EventBookAdded}}, library.Stats{})

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `library_events_total{kind="book.added"} 1`)
	assert.Contains(t, string(raw), "library_open_loans 0")
}
