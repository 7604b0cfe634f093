package library

import (
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

// Stats is a point-in-time summary of the collection. Computing it never
// changes state.
type Stats struct {
	Books                int
	Copies               int
	CopiesByStatus       map[CopyStatus]int
	Users                int
	SuspendedUsers       int
	TotalLoans           int
	OpenLoans            int
	OverdueLoans         int
	WaitingReservations  int
	NotifiedReservations int
	OutstandingPenalties decimal.Decimal
}

// Ranked is one row of a top-N listing.
type Ranked struct {
	ID    string
	Label string
	Count int
}

// Stats summarises inventory, circulation and the penalty ledger.
func (s *Session) Stats() Stats {
	now := s.now()
	st := Stats{
		Books:                len(s.books),
		CopiesByStatus:       make(map[CopyStatus]int),
		Users:                len(s.users),
		TotalLoans:           len(s.loans),
		OutstandingPenalties: decimal.Zero,
	}
	for _, b := range s.books {
		for _, c := range b.Copies {
			st.Copies++
			st.CopiesByStatus[c.Status]++
		}
	}
	for _, u := range s.users {
		// Read-only view of standing: a lapsed suspension counts as ended.
		if u.Standing == StandingSuspended && (u.SuspendedUntil == nil || now.Before(*u.SuspendedUntil)) {
			st.SuspendedUsers++
		}
		st.OutstandingPenalties = st.OutstandingPenalties.Add(u.PenaltyBalance)
	}
	for _, l := range s.loans {
		if !l.Open() {
			continue
		}
		st.OpenLoans++
		if l.Overdue(now) {
			st.OverdueLoans++
		}
	}
	for _, r := range s.reservations {
		switch r.Status {
		case ReservationWaiting:
			st.WaitingReservations++
		case ReservationNotified:
			st.NotifiedReservations++
		}
	}
	return st
}

// TopBooks ranks books by lifetime loan count. Books never lent are left out.
func (s *Session) TopBooks(n int) []Ranked {
	var out []Ranked
	for _, b := range s.books {
		if b.LoanCount > 0 {
			out = append(out, Ranked{ID: b.ID, Label: b.Title, Count: b.LoanCount})
		}
	}
	return topN(out, n)
}

// TopBorrowers ranks members by number of loans, open and closed.
func (s *Session) TopBorrowers(n int) []Ranked {
	counts := make(map[string]int)
	for _, l := range s.loans {
		counts[l.UserID]++
	}
	var out []Ranked
	for _, u := range s.users {
		if c := counts[u.ID]; c > 0 {
			out = append(out, Ranked{ID: u.ID, Label: u.Name, Count: c})
		}
	}
	return topN(out, n)
}

// NeverBorrowed lists books that have never been lent.
func (s *Session) NeverBorrowed() []*Book {
	var out []*Book
	for _, b := range s.books {
		if b.LoanCount == 0 {
			out = append(out, b)
		}
	}
	return out
}

func topN(rows []Ranked, n int) []Ranked {
	slices.SortStableFunc(rows, func(a, b Ranked) int { return b.Count - a.Count })
	if n > 0 && len(rows) > n {
		rows = rows[:n]
	}
	return rows
}

// Report renders the statistics screen.
func (s *Session) Report() string {
	st := s.Stats()
	var sb strings.Builder
	fmt.Fprintf(&sb, "Books: %d   Copies: %d\n", st.Books, st.Copies)
	for _, status := range []CopyStatus{CopyAvailable, CopyLoaned, CopyReserved, CopyWithdrawn} {
		fmt.Fprintf(&sb, "  %-10s %d\n", status, st.CopiesByStatus[status])
	}
	fmt.Fprintf(&sb, "Members: %d (%d suspended)\n", st.Users, st.SuspendedUsers)
	fmt.Fprintf(&sb, "Loans: %d total, %d open, %d overdue\n", st.TotalLoans, st.OpenLoans, st.OverdueLoans)
	fmt.Fprintf(&sb, "Reservations: %d waiting, %d notified\n", st.WaitingReservations, st.NotifiedReservations)
	fmt.Fprintf(&sb, "Outstanding penalties: %s\n", st.OutstandingPenalties.StringFixed(2))

	sb.WriteString("\nMost borrowed books:\n")
	writeRanked(&sb, s.TopBooks(5))
	sb.WriteString("\nMost active members:\n")
	writeRanked(&sb, s.TopBorrowers(5))

	never := s.NeverBorrowed()
	fmt.Fprintf(&sb, "\nNever borrowed (%d):\n", len(never))
	for _, b := range never {
		fmt.Fprintf(&sb, "  %s  %s\n", b.ID, b.Title)
	}
	return sb.String()
}

func writeRanked(sb *strings.Builder, rows []Ranked) {
	if len(rows) == 0 {
		sb.WriteString("  (none)\n")
		return
	}
	for i, r := range rows {
		fmt.Fprintf(sb, "  %d. %s  %s (%d)\n", i+1, r.ID, r.Label, r.Count)
	}
}
