package library

import (
	"fmt"
	"slices"
	"strings"
)

// CreateReservation queues a member for a book that has no AVAILABLE copy.
func (s *Session) CreateReservation(userID, bookRef string) (*Reservation, error) {
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

	if u.Standing == StandingSuspended {
		return nil, ErrUserSuspended
	}
	// Free copies go to the members already waiting, so a newcomer may queue.
	if len(availableCopies(b)) > 0 && !s.hasWaiting(b.ID) {
		return nil, fmt.Errorf("%w: %s", ErrCopyAvailable, b.Title)
	}
	queue := s.activeReservations(b.ID)
	for _, r := range queue {
		if r.UserID == u.ID {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateReservation, r.ID)
		}
	}
	for _, l := range s.loans {
		if l.Open() && l.BookID == b.ID && l.UserID == u.ID {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyBorrowed, l.ID)
		}
	}

	r := &Reservation{
		ID:        s.nextID("RS", func(id string) bool { return s.resByID[id] != nil }),
		BookID:    b.ID,
		UserID:    u.ID,
		Position:  len(queue) + 1,
		Status:    ReservationWaiting,
		CreatedAt: s.now(),
	}
	s.reservations = append(s.reservations, r)
	s.resByID[r.ID] = r
	s.emit(Event{
		Actor: u.ID, Kind: EventReservationCreated,
		UserID: u.ID, BookID: b.ID, ReservationID: r.ID,
		Details: fmt.Sprintf("position=%d", r.Position),
	})
	return r, nil
}

// NotifyNext offers an AVAILABLE copy to the head of the book's queue. It
// returns nil when nobody is waiting or someone already holds a notification.
func (s *Session) NotifyNext(bookRef, copyRef string) (*Reservation, error) {
	b, err := s.lookupBook(bookRef)
	if err != nil {
		return nil, err
	}
	c, err := s.lookupCopy(copyRef)
	if err != nil {
		return nil, err
	}
	if c.BookID != b.ID {
		return nil, fmt.Errorf("%w: %s is not a copy of %s", ErrUnknownCopy, c.Barcode, b.ID)
	}
	if err := s.guard(b.ID, c.ID); err != nil {
		return nil, err
	}
	s.expireLapsed(b)
	if c.Status != CopyAvailable {
		return nil, fmt.Errorf("%w: %s is %s", ErrCopyNotAvailable, c.Barcode, c.Status)
	}
	return s.notifyNext(b, c), nil
}

func (s *Session) notifyNext(b *Book, c *Copy) *Reservation {
	if c.Status != CopyAvailable || s.notifiedFor(b.ID) != nil {
		return nil
	}
	var next *Reservation
	for _, r := range s.activeReservations(b.ID) {
		if r.Status == ReservationWaiting {
			next = r
			break
		}
	}
	if next == nil {
		return nil
	}

	now := s.now()
	deadline := now.Add(s.policy.ClaimExpiry)
	next.Status = ReservationNotified
	next.NotifiedAt = &now
	next.ClaimDeadline = &deadline
	next.CopyID = c.ID
	c.Status = CopyReserved

	u := s.userByID[next.UserID]
	s.notes = append(s.notes, Notification{
		At:            now,
		UserID:        u.ID,
		Name:          u.Name,
		Email:         u.Email,
		BookID:        b.ID,
		Title:         b.Title,
		Barcode:       c.Barcode,
		ReservationID: next.ID,
		Deadline:      deadline,
	})
	s.emit(Event{
		Actor: ActorSystem, Kind: EventReservationNotified,
		UserID: u.ID, BookID: b.ID, CopyID: c.ID, ReservationID: next.ID,
		Details: "claim before " + deadline.Format("2006-01-02 15:04"),
	})
	return next
}

// ConfirmReservation turns a NOTIFIED reservation into a loan of the held
// copy. A lapsed claim window expires the reservation, passes the copy on and
// returns ErrReservationExpired; those effects stand.
func (s *Session) ConfirmReservation(reservationID string) (*Loan, error) {
	r, err := s.lookupReservation(reservationID)
	if err != nil {
		return nil, err
	}
	if err := s.guard(r.ID, r.BookID, r.UserID, r.CopyID); err != nil {
		return nil, err
	}
	switch r.Status {
	case ReservationNotified:
	case ReservationExpired:
		return nil, fmt.Errorf("%w: %s", ErrReservationExpired, r.ID)
	default:
		return nil, fmt.Errorf("%w: %s is %s", ErrReservationNotNotified, r.ID, r.Status)
	}

	b := s.bookByID[r.BookID]
	if s.now().After(*r.ClaimDeadline) {
		s.expire(r, b)
		return nil, fmt.Errorf("%w: deadline was %s", ErrReservationExpired, r.ClaimDeadline.Format("2006-01-02 15:04"))
	}

	u, err := s.lookupUser(r.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.checkBorrower(u); err != nil {
		return nil, err
	}

	loan := s.lend(u, b, s.copyByID[r.CopyID])
	s.fulfil(r, loan)
	s.offerAvailable(b)
	return loan, nil
}

// fulfil closes an active reservation as CONFIRMED by loan.
func (s *Session) fulfil(r *Reservation, loan *Loan) {
	now := s.now()
	r.Status = ReservationConfirmed
	r.LoanID = loan.ID
	r.ClosedAt = &now
	r.Position = 0
	s.emit(Event{
		Actor: loan.UserID, Kind: EventReservationConfirmed,
		UserID: loan.UserID, BookID: loan.BookID, CopyID: loan.CopyID, LoanID: loan.ID, ReservationID: r.ID,
	})
	s.renumber(loan.BookID)
}

// CancelReservation withdraws a WAITING or NOTIFIED reservation. A held copy
// goes to the next member in line.
func (s *Session) CancelReservation(reservationID string) (*Reservation, error) {
	r, err := s.lookupReservation(reservationID)
	if err != nil {
		return nil, err
	}
	if err := s.guard(r.ID, r.BookID, r.UserID, r.CopyID); err != nil {
		return nil, err
	}
	b := s.bookByID[r.BookID]
	s.expireLapsed(b)
	if !r.Status.Active() {
		return nil, fmt.Errorf("%w: %s is %s", ErrReservationClosed, r.ID, r.Status)
	}

	wasNotified := r.Status == ReservationNotified
	now := s.now()
	r.Status = ReservationCancelled
	r.ClosedAt = &now
	r.Position = 0
	s.emit(Event{
		Actor: r.UserID, Kind: EventReservationCancelled,
		UserID: r.UserID, BookID: b.ID, CopyID: r.CopyID, ReservationID: r.ID,
	})
	s.renumber(b.ID)

	if wasNotified {
		c := s.copyByID[r.CopyID]
		c.Status = CopyAvailable
		s.notifyNext(b, c)
	}
	return r, nil
}

// SweepExpired evaluates every book's claim window and returns the
// reservations that expired.
func (s *Session) SweepExpired() []*Reservation {
	var expired []*Reservation
	for _, b := range s.books {
		if s.guard(b.ID) != nil {
			continue
		}
		if r := s.expireLapsed(b); r != nil {
			expired = append(expired, r)
		}
	}
	return expired
}

// expireLapsed expires the book's NOTIFIED reservation when its claim window
// has passed.
func (s *Session) expireLapsed(b *Book) *Reservation {
	r := s.notifiedFor(b.ID)
	if r == nil || r.ClaimDeadline == nil || !s.now().After(*r.ClaimDeadline) {
		return nil
	}
	s.expire(r, b)
	return r
}

func (s *Session) expire(r *Reservation, b *Book) {
	now := s.now()
	r.Status = ReservationExpired
	r.ClosedAt = &now
	r.Position = 0
	s.emit(Event{
		Actor: ActorSystem, Kind: EventReservationExpired,
		UserID: r.UserID, BookID: b.ID, CopyID: r.CopyID, ReservationID: r.ID,
	})
	s.renumber(b.ID)

	c := s.copyByID[r.CopyID]
	c.Status = CopyAvailable
	s.notifyNext(b, c)
}

// offerAvailable hands an AVAILABLE copy to the queue when nobody holds a
// notification for the book.
func (s *Session) offerAvailable(b *Book) {
	if s.notifiedFor(b.ID) != nil {
		return
	}
	if available := availableCopies(b); len(available) > 0 {
		s.notifyNext(b, available[0])
	}
}

// renumber closes gaps so active positions run 1..n in queue order.
func (s *Session) renumber(bookID string) {
	for i, r := range s.activeReservations(bookID) {
		if r.Position != i+1 {
			r.Position = i + 1
			s.touch()
		}
	}
}

// activeReservations returns the book's WAITING and NOTIFIED reservations
// ordered by queue position.
func (s *Session) activeReservations(bookID string) []*Reservation {
	var out []*Reservation
	for _, r := range s.reservations {
		if r.BookID == bookID && r.Status.Active() {
			out = append(out, r)
		}
	}
	slices.SortStableFunc(out, func(a, b *Reservation) int { return a.Position - b.Position })
	return out
}

// reservationOf returns the member's active reservation for the book, if any.
func (s *Session) reservationOf(userID, bookID string) *Reservation {
	for _, r := range s.reservations {
		if r.UserID == userID && r.BookID == bookID && r.Status.Active() {
			return r
		}
	}
	return nil
}

// waitingAhead reports whether a WAITING reservation precedes own in the
// book's queue. With own nil every WAITING reservation counts.
func (s *Session) waitingAhead(bookID string, own *Reservation) bool {
	for _, r := range s.activeReservations(bookID) {
		if r == own {
			return false
		}
		if r.Status == ReservationWaiting {
			return true
		}
	}
	return false
}

func (s *Session) hasWaiting(bookID string) bool {
	for _, r := range s.reservations {
		if r.BookID == bookID && r.Status == ReservationWaiting {
			return true
		}
	}
	return false
}

func (s *Session) notifiedFor(bookID string) *Reservation {
	for _, r := range s.reservations {
		if r.BookID == bookID && r.Status == ReservationNotified {
			return r
		}
	}
	return nil
}

// Queue lists a book's active reservations in position order.
func (s *Session) Queue(bookRef string) ([]*Reservation, error) {
	b, err := s.lookupBook(bookRef)
	if err != nil {
		return nil, err
	}
	return s.activeReservations(b.ID), nil
}

// Reservation resolves a reservation by identifier.
func (s *Session) Reservation(id string) (*Reservation, error) { return s.lookupReservation(id) }

// Reservations lists all reservations, whatever their status, in creation order.
func (s *Session) Reservations() []*Reservation { return s.reservations }

// ReservationsByUser lists a member's reservations in creation order.
func (s *Session) ReservationsByUser(userID string) ([]*Reservation, error) {
	u, err := s.lookupUser(userID)
	if err != nil {
		return nil, err
	}
	var out []*Reservation
	for _, r := range s.reservations {
		if r.UserID == u.ID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Session) lookupReservation(id string) (*Reservation, error) {
	r, ok := s.resByID[strings.TrimSpace(id)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownReservation, id)
	}
	return r, nil
}
