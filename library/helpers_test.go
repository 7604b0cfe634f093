package library

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const day = 24 * time.Hour

type fakeClock struct{ t time.Time }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// sequentialIDs yields BK-1, BK-2, CP-1, ... so tests can name records.
func sequentialIDs() func(prefix string) string {
	seq := make(map[string]int)
	return func(prefix string) string {
		seq[prefix]++
		return fmt.Sprintf("%s-%d", prefix, seq[prefix])
	}
}

// testPolicy charges 2 per day late and suspends above 20.
func testPolicy() Policy {
	p := DefaultPolicy()
	p.PerDayPenaltyRate = decimal.NewFromInt(2)
	p.SuspensionThreshold = decimal.NewFromInt(20)
	return p
}

func newTestSession(t *testing.T) (*Session, *fakeClock) {
	t.Helper()
	return sessionFrom(t, LibraryData{})
}

func sessionFrom(t *testing.T, data LibraryData) (*Session, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	s := NewSession(data, testPolicy(), WithClock(clock.Now), WithIDGenerator(sequentialIDs()))
	return s, clock
}

func addBook(t *testing.T, s *Session, title string, copies int) *Book {
	t.Helper()
	b, err := s.AddBook(NewBook{ISBN: "isbn-" + title, Title: title, Author: "Author of " + title})
	require.NoError(t, err)
	for i := 0; i < copies; i++ {
		_, err := s.AddCopy(b.ID, "")
		require.NoError(t, err)
	}
	return b
}

func addUser(t *testing.T, s *Session, name string, category Category) *User {
	t.Helper()
	u, err := s.RegisterUser(NewUser{Name: name, Email: name + "@example.org", Category: category})
	require.NoError(t, err)
	return u
}

func mustLoan(t *testing.T, s *Session, userID, bookID string) *Loan {
	t.Helper()
	l, err := s.RegisterLoan(userID, bookID, "")
	require.NoError(t, err)
	return l
}

func mustReserve(t *testing.T, s *Session, userID, bookID string) *Reservation {
	t.Helper()
	r, err := s.CreateReservation(userID, bookID)
	require.NoError(t, err)
	return r
}

// requireConsistent re-runs the load-time cross-check on the live graph.
func requireConsistent(t *testing.T, s *Session) {
	t.Helper()
	require.Empty(t, checkIntegrity(s))
}

func eventKinds(events []Event) []string {
	kinds := make([]string, len(events))
	for i, e := range events {
		kinds[i] = e.Kind
	}
	return kinds
}

type memJournal struct {
	events []Event
	err    error
}

func (m *memJournal) Append(_ context.Context, events ...Event) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, events...)
	return nil
}

type memNotifier struct {
	notes []Notification
}

func (m *memNotifier) Notify(notes ...Notification) error {
	m.notes = append(m.notes, notes...)
	return nil
}
