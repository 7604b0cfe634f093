package library

import (
	"fmt"
	"slices"
)

// checkIntegrity cross-validates stored copy status against loans and
// reservations. A violation is attached to every record an operation could
// reach it through, so the operation refuses instead of acting on bad data.
func checkIntegrity(s *Session) []Violation {
	var out []Violation
	flag := func(detail string, entities ...string) {
		for _, e := range entities {
			if e != "" {
				out = append(out, Violation{Entity: e, Detail: detail})
			}
		}
	}

	for _, b := range s.books {
		for _, c := range b.Copies {
			if c.BookID != b.ID {
				flag(fmt.Sprintf("copy %s listed under book %s but owned by %s", c.ID, b.ID, c.BookID), c.ID, b.ID)
			}
			switch c.Status {
			case CopyAvailable, CopyLoaned, CopyReserved, CopyWithdrawn:
			default:
				flag(fmt.Sprintf("copy %s has unknown status %q", c.ID, c.Status), c.ID)
			}
		}
	}

	openByCopy := make(map[string][]*Loan)
	for _, l := range s.loans {
		c, copyOK := s.copyByID[l.CopyID]
		_, userOK := s.userByID[l.UserID]
		_, bookOK := s.bookByID[l.BookID]
		if !copyOK || !userOK || !bookOK {
			flag(fmt.Sprintf("loan %s references unknown copy, user or book", l.ID), l.ID, l.CopyID, l.BookID)
			continue
		}
		if c.BookID != l.BookID {
			flag(fmt.Sprintf("loan %s names book %s but copy %s belongs to %s", l.ID, l.BookID, c.ID, c.BookID), l.ID, c.ID)
		}
		if l.Open() {
			openByCopy[l.CopyID] = append(openByCopy[l.CopyID], l)
		}
	}

	notifiedByCopy := make(map[string][]*Reservation)
	notifiedByBook := make(map[string]int)
	for _, r := range s.reservations {
		_, userOK := s.userByID[r.UserID]
		_, bookOK := s.bookByID[r.BookID]
		if !userOK || !bookOK {
			flag(fmt.Sprintf("reservation %s references unknown user or book", r.ID), r.ID, r.BookID)
			continue
		}
		if r.Status != ReservationNotified {
			continue
		}
		notifiedByBook[r.BookID]++
		c, ok := s.copyByID[r.CopyID]
		switch {
		case !ok:
			flag(fmt.Sprintf("notified reservation %s holds unknown copy %q", r.ID, r.CopyID), r.ID, r.BookID)
		case c.BookID != r.BookID:
			flag(fmt.Sprintf("notified reservation %s holds copy %s of another book", r.ID, c.ID), r.ID, r.BookID, c.ID)
		default:
			notifiedByCopy[c.ID] = append(notifiedByCopy[c.ID], r)
		}
		if r.ClaimDeadline == nil {
			flag(fmt.Sprintf("notified reservation %s has no claim deadline", r.ID), r.ID, r.BookID)
		}
	}

	for _, b := range s.books {
		for _, c := range b.Copies {
			open := len(openByCopy[c.ID])
			held := len(notifiedByCopy[c.ID])
			switch {
			case open > 1:
				flag(fmt.Sprintf("copy %s is referenced by %d open loans", c.ID, open), c.ID)
			case open == 1 && c.Status != CopyLoaned:
				flag(fmt.Sprintf("copy %s has an open loan but status %s", c.ID, c.Status), c.ID)
			case open == 0 && c.Status == CopyLoaned:
				flag(fmt.Sprintf("copy %s is LOANED without an open loan", c.ID), c.ID)
			}
			switch {
			case held > 1:
				flag(fmt.Sprintf("copy %s is held by %d notified reservations", c.ID, held), c.ID, b.ID)
			case held == 1 && c.Status != CopyReserved:
				flag(fmt.Sprintf("copy %s is held for a reservation but status %s", c.ID, c.Status), c.ID, b.ID)
			case held == 0 && c.Status == CopyReserved:
				flag(fmt.Sprintf("copy %s is RESERVED without a notified reservation", c.ID), c.ID)
			}
		}
		if n := notifiedByBook[b.ID]; n > 1 {
			flag(fmt.Sprintf("book %s has %d notified reservations", b.ID, n), b.ID)
		}
		if !contiguous(s.activeReservations(b.ID)) {
			flag(fmt.Sprintf("book %s has non-contiguous queue positions", b.ID), b.ID)
		}
	}

	for _, u := range s.users {
		if u.Standing == StandingSuspended && u.SuspendedUntil == nil {
			flag(fmt.Sprintf("user %s is suspended without an end date", u.ID), u.ID)
		}
		if u.PenaltyBalance.IsNegative() {
			flag(fmt.Sprintf("user %s has a negative penalty balance", u.ID), u.ID)
		}
	}
	return out
}

func contiguous(queue []*Reservation) bool {
	positions := make([]int, len(queue))
	for i, r := range queue {
		positions[i] = r.Position
	}
	slices.Sort(positions)
	for i, p := range positions {
		if p != i+1 {
			return false
		}
	}
	return true
}

// CheckIntegrity returns an *IntegrityError listing every violation found at
// load time, or nil.
func (s *Session) CheckIntegrity() error {
	if len(s.violations) == 0 {
		return nil
	}
	return &IntegrityError{Violations: s.violations}
}
