package library

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ReturnResult describes what a return triggered.
type ReturnResult struct {
	Loan        *Loan
	OverdueDays int
	Penalty     decimal.Decimal
	// Suspended is true when this return pushed the member over the threshold.
	Suspended bool
	// Notified is the reservation offered the freed copy, if any.
	Notified *Reservation
}

// RegisterLoan lends a copy of a book to a member. With an empty barcode the
// first AVAILABLE copy is used, or the copy held for the member when they have
// been notified. Nobody may borrow ahead of a WAITING member; a member's own
// reservation is fulfilled by the loan.
func (s *Session) RegisterLoan(userID, bookRef, barcode string) (*Loan, error) {
	u, err := s.lookupUser(userID)
	if err != nil {
		return nil, err
	}
	b, err := s.lookupBook(bookRef)
	if err != nil {
		return nil, err
	}
	if err := s.guard(u.ID, b.ID); err != nil {
		return nil, err
	}
	s.expireLapsed(b)

	if err := s.checkBorrower(u); err != nil {
		return nil, err
	}
	own := s.reservationOf(u.ID, b.ID)
	if s.waitingAhead(b.ID, own) {
		return nil, fmt.Errorf("%w: %s", ErrReservationPending, b.Title)
	}

	var c *Copy
	barcode = strings.TrimSpace(barcode)
	if own != nil && own.Status == ReservationNotified {
		if held := s.copyByID[own.CopyID]; barcode == "" || barcode == held.ID || barcode == held.Barcode {
			c = held
		}
	}
	switch {
	case c != nil:
	case barcode != "":
		c, err = s.lookupCopy(barcode)
		if err != nil {
			return nil, err
		}
		if c.BookID != b.ID {
			return nil, fmt.Errorf("%w: %s is not a copy of %s", ErrUnknownCopy, barcode, b.ID)
		}
		if c.Status != CopyAvailable {
			return nil, fmt.Errorf("%w: %s is %s", ErrCopyNotAvailable, c.Barcode, c.Status)
		}
	default:
		available := availableCopies(b)
		if len(available) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoAvailableCopy, b.Title)
		}
		c = available[0]
	}
	if err := s.guard(c.ID); err != nil {
		return nil, err
	}

	loan := s.lend(u, b, c)
	if own != nil {
		held := s.copyByID[own.CopyID]
		s.fulfil(own, loan)
		if held != nil && held != c {
			held.Status = CopyAvailable
			s.notifyNext(b, held)
		}
	}
	return loan, nil
}

// checkBorrower enforces standing and the category loan limit.
func (s *Session) checkBorrower(u *User) error {
	if u.Standing == StandingSuspended {
		until := ""
		if u.SuspendedUntil != nil {
			until = " until " + u.SuspendedUntil.Format("2006-01-02")
		}
		return fmt.Errorf("%w%s", ErrUserSuspended, until)
	}
	if limit := s.policy.LoanLimit(u.Category); limit > 0 && s.openLoanCount(u.ID) >= limit {
		return fmt.Errorf("%w: %d of %d", ErrLoanLimitReached, s.openLoanCount(u.ID), limit)
	}
	return nil
}

// lend creates the loan and moves the copy to LOANED. Callers have already
// validated the member and the copy.
func (s *Session) lend(u *User, b *Book, c *Copy) *Loan {
	now := s.now()
	l := &Loan{
		ID:             s.nextID("LN", func(id string) bool { return s.loanByID[id] != nil }),
		CopyID:         c.ID,
		BookID:         b.ID,
		UserID:         u.ID,
		LoanedAt:       now,
		DueAt:          now.Add(s.policy.LoanPeriod),
		AccruedPenalty: decimal.Zero,
	}
	s.loans = append(s.loans, l)
	s.loanByID[l.ID] = l
	c.Status = CopyLoaned
	b.LoanCount++
	s.emit(Event{
		Actor: u.ID, Kind: EventLoanRegistered,
		UserID: u.ID, BookID: b.ID, CopyID: c.ID, LoanID: l.ID,
		Details: "due " + l.DueAt.Format(time.RFC3339),
	})
	return l
}

// ReturnLoan closes a loan by identifier.
func (s *Session) ReturnLoan(loanID string) (*ReturnResult, error) {
	l, err := s.lookupLoan(loanID)
	if err != nil {
		return nil, err
	}
	if !l.Open() {
		return nil, fmt.Errorf("%w: %s", ErrLoanAlreadyClosed, l.ID)
	}
	if err := s.guard(l.ID, l.CopyID, l.BookID, l.UserID); err != nil {
		return nil, err
	}
	return s.closeLoan(l), nil
}

// ReturnCopy closes the open loan on a copy, given its identifier or barcode.
func (s *Session) ReturnCopy(copyRef string) (*ReturnResult, error) {
	c, err := s.lookupCopy(copyRef)
	if err != nil {
		return nil, err
	}
	if err := s.guard(c.ID, c.BookID); err != nil {
		return nil, err
	}
	l := s.openLoanFor(c.ID)
	if l == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoOpenLoan, c.Barcode)
	}
	if err := s.guard(l.ID, l.UserID); err != nil {
		return nil, err
	}
	return s.closeLoan(l), nil
}

func (s *Session) closeLoan(l *Loan) *ReturnResult {
	now := s.now()
	b := s.bookByID[l.BookID]
	c := s.copyByID[l.CopyID]
	u := s.userByID[l.UserID]
	s.refreshStanding(u)
	s.expireLapsed(b)

	res := &ReturnResult{Loan: l, OverdueDays: l.OverdueDays(now), Penalty: decimal.Zero}
	l.ReturnedAt = &now
	if res.OverdueDays > 0 {
		res.Penalty = s.policy.Penalty(res.OverdueDays)
		l.AccruedPenalty = res.Penalty
		wasSuspended := u.Standing == StandingSuspended
		s.chargePenalty(u, res.Penalty, u.ID, l.ID, fmt.Sprintf("%d days overdue", res.OverdueDays))
		res.Suspended = !wasSuspended && u.Standing == StandingSuspended
	}
	c.Status = CopyAvailable
	s.emit(Event{
		Actor: u.ID, Kind: EventLoanReturned,
		UserID: u.ID, BookID: b.ID, CopyID: c.ID, LoanID: l.ID,
		Details: fmt.Sprintf("overdue_days=%d", res.OverdueDays),
	})

	res.Notified = s.notifyNext(b, c)
	return res
}

// RenewLoan pushes the due date back by one loan period.
func (s *Session) RenewLoan(loanID string) (*Loan, error) {
	l, err := s.lookupLoan(loanID)
	if err != nil {
		return nil, err
	}
	if !l.Open() {
		return nil, fmt.Errorf("%w: %s", ErrLoanAlreadyClosed, l.ID)
	}
	if err := s.guard(l.ID, l.CopyID, l.BookID, l.UserID); err != nil {
		return nil, err
	}
	b := s.bookByID[l.BookID]
	s.expireLapsed(b)

	if l.Overdue(s.now()) {
		return nil, fmt.Errorf("%w: due %s", ErrLoanOverdue, l.DueAt.Format("2006-01-02"))
	}
	if l.Renewals >= s.policy.MaxRenewals {
		return nil, fmt.Errorf("%w: %d renewals used", ErrRenewalLimitExceeded, l.Renewals)
	}
	if len(s.activeReservations(b.ID)) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrReservationPending, b.Title)
	}

	l.DueAt = l.DueAt.Add(s.policy.LoanPeriod)
	l.Renewals++
	s.emit(Event{
		Actor: l.UserID, Kind: EventLoanRenewed,
		UserID: l.UserID, BookID: l.BookID, CopyID: l.CopyID, LoanID: l.ID,
		Details: "due " + l.DueAt.Format(time.RFC3339),
	})
	return l, nil
}

// Loan resolves a loan by identifier.
func (s *Session) Loan(id string) (*Loan, error) { return s.lookupLoan(id) }

// Loans lists every loan, open and closed, in creation order.
func (s *Session) Loans() []*Loan { return s.loans }

// OpenLoans lists loans not yet returned.
func (s *Session) OpenLoans() []*Loan {
	var out []*Loan
	for _, l := range s.loans {
		if l.Open() {
			out = append(out, l)
		}
	}
	return out
}

// OverdueLoans lists open loans at least one whole day past their due date.
func (s *Session) OverdueLoans() []*Loan {
	now := s.now()
	var out []*Loan
	for _, l := range s.loans {
		if l.Open() && l.Overdue(now) {
			out = append(out, l)
		}
	}
	return out
}

// SuspendOverdue suspends every active member holding an overdue loan and
// returns them. The penalty ledger is left alone: the loan is charged when it
// comes back.
func (s *Session) SuspendOverdue() []*User {
	now := s.now()
	var out []*User
	for _, l := range s.loans {
		if !l.Open() || !l.Overdue(now) || s.guard(l.ID, l.UserID) != nil {
			continue
		}
		u := s.userByID[l.UserID]
		s.refreshStanding(u)
		if u.Standing == StandingSuspended {
			continue
		}
		s.suspend(u, ActorSystem)
		out = append(out, u)
	}
	return out
}

// LoansByUser lists a member's loans, open and closed.
func (s *Session) LoansByUser(userID string) ([]*Loan, error) {
	u, err := s.lookupUser(userID)
	if err != nil {
		return nil, err
	}
	var out []*Loan
	for _, l := range s.loans {
		if l.UserID == u.ID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *Session) lookupLoan(id string) (*Loan, error) {
	l, ok := s.loanByID[strings.TrimSpace(id)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLoan, id)
	}
	return l, nil
}

func (s *Session) openLoanFor(copyID string) *Loan {
	for _, l := range s.loans {
		if l.CopyID == copyID && l.Open() {
			return l
		}
	}
	return nil
}

func (s *Session) openLoanCount(userID string) int {
	n := 0
	for _, l := range s.loans {
		if l.UserID == userID && l.Open() {
			n++
		}
	}
	return n
}
