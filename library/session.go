package library

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Session owns the in-memory entity graph for the lifetime of the process.
// Every operation runs to completion against it before the next one starts;
// the caller persists Data() after each mutating operation.
//
// Events and notifications produced by an operation are buffered until the
// caller drains them, so nothing leaves the session before the snapshot that
// explains it has been written.
type Session struct {
	policy   Policy
	now      func() time.Time
	newID    func(prefix string) string
	operator string

	books        []*Book
	users        []*User
	loans        []*Loan
	reservations []*Reservation

	bookByID      map[string]*Book
	bookByISBN    map[string]*Book
	copyByID      map[string]*Copy
	copyByBarcode map[string]*Copy
	userByID      map[string]*User
	loanByID      map[string]*Loan
	resByID       map[string]*Reservation

	violations []Violation
	corrupt    map[string][]Violation

	events []Event
	notes  []Notification
	dirty  bool
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// WithIDGenerator replaces the identifier generator. gen receives an entity
// prefix such as "LN" and must return an identifier unique within the session.
func WithIDGenerator(gen func(prefix string) string) SessionOption {
	return func(s *Session) { s.newID = gen }
}

// WithOperator sets the actor recorded for administrative actions.
func WithOperator(name string) SessionOption {
	return func(s *Session) { s.operator = name }
}

// NewSession indexes data and runs the integrity check. Records flagged by the
// check stay loaded, but operations touching them fail with *IntegrityError.
func NewSession(data LibraryData, policy Policy, opts ...SessionOption) *Session {
	s := &Session{
		policy:   policy,
		now:      time.Now,
		newID:    shortID,
		operator: "ADMIN",

		books:        data.Books,
		users:        data.Users,
		loans:        data.Loans,
		reservations: data.Reservations,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.index()
	s.violations = checkIntegrity(s)
	s.corrupt = make(map[string][]Violation)
	for _, v := range s.violations {
		s.corrupt[v.Entity] = append(s.corrupt[v.Entity], v)
	}
	return s
}

func shortID(prefix string) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "-" + strings.ToUpper(raw[:8])
}

func (s *Session) index() {
	s.bookByID = make(map[string]*Book, len(s.books))
	s.bookByISBN = make(map[string]*Book, len(s.books))
	s.copyByID = make(map[string]*Copy)
	s.copyByBarcode = make(map[string]*Copy)
	for _, b := range s.books {
		s.bookByID[b.ID] = b
		s.bookByISBN[b.ISBN] = b
		for _, c := range b.Copies {
			s.copyByID[c.ID] = c
			s.copyByBarcode[c.Barcode] = c
		}
	}
	s.userByID = make(map[string]*User, len(s.users))
	for _, u := range s.users {
		s.userByID[u.ID] = u
	}
	s.loanByID = make(map[string]*Loan, len(s.loans))
	for _, l := range s.loans {
		s.loanByID[l.ID] = l
	}
	s.resByID = make(map[string]*Reservation, len(s.reservations))
	for _, r := range s.reservations {
		s.resByID[r.ID] = r
	}
}

// Policy returns the circulation rules in force.
func (s *Session) Policy() Policy { return s.policy }

// Now returns the session clock's current time.
func (s *Session) Now() time.Time { return s.now() }

// Data returns the collections for persistence, in insertion order.
func (s *Session) Data() LibraryData {
	return LibraryData{
		Books:        s.books,
		Users:        s.users,
		Loans:        s.loans,
		Reservations: s.reservations,
	}
}

// Violations lists the integrity problems found when the session was built.
func (s *Session) Violations() []Violation { return s.violations }

// Drain hands over the buffered events and notifications and reports whether
// anything changed since the previous call.
func (s *Session) Drain() ([]Event, []Notification, bool) {
	events, notes, dirty := s.events, s.notes, s.dirty
	s.events, s.notes, s.dirty = nil, nil, false
	return events, notes, dirty
}

func (s *Session) emit(e Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = s.now()
	}
	s.events = append(s.events, e)
	s.dirty = true
}

func (s *Session) touch() { s.dirty = true }

func (s *Session) nextID(prefix string, taken func(string) bool) string {
	for {
		id := s.newID(prefix)
		if !taken(id) {
			return id
		}
	}
}

// guard fails when any of ids was flagged by the integrity check.
func (s *Session) guard(ids ...string) error {
	var found []Violation
	for _, id := range ids {
		found = append(found, s.corrupt[id]...)
	}
	if len(found) > 0 {
		return &IntegrityError{Violations: found}
	}
	return nil
}
