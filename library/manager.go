package library

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LibraryManager is a thin façade over the Session, keeping CLI code simple.
// Each call runs one operation, rewrites the snapshot if anything changed and
// only then hands the operation's events to the journal, notifier and
// observer.
type LibraryManager struct {
	store       Snapshotter
	session     *Session
	policy      Policy
	sessionOpts []SessionOption

	journal  Journal
	notifier Notifier
	observer Observer
	log      *zap.Logger
}

// Snapshotter loads and rewrites the whole library. *Store is the flat-file
// implementation.
type Snapshotter interface {
	Load() (LibraryData, error)
	Save(data LibraryData) error
}

// Option configures a LibraryManager.
type Option func(*LibraryManager)

// WithPolicy replaces DefaultPolicy.
func WithPolicy(p Policy) Option { return func(lm *LibraryManager) { lm.policy = p } }

// WithStore replaces the flat-file store rooted at the data directory.
func WithStore(st Snapshotter) Option { return func(lm *LibraryManager) { lm.store = st } }

// WithJournal sets where committed events are recorded.
func WithJournal(j Journal) Option { return func(lm *LibraryManager) { lm.journal = j } }

// WithNotifier replaces the notifications.txt ledger.
func WithNotifier(n Notifier) Option { return func(lm *LibraryManager) { lm.notifier = n } }

// WithObserver registers an observer of committed events.
func WithObserver(o Observer) Option { return func(lm *LibraryManager) { lm.observer = o } }

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option { return func(lm *LibraryManager) { lm.log = l } }

// WithSessionOptions passes options to every Session the manager builds.
func WithSessionOptions(opts ...SessionOption) Option {
	return func(lm *LibraryManager) { lm.sessionOpts = append(lm.sessionOpts, opts...) }
}

// NewLibraryManager loads the data directory and runs the integrity check.
// Violations are logged, not returned: the affected records are refused one
// operation at a time.
func NewLibraryManager(dataDir string, opts ...Option) (*LibraryManager, error) {
	lm := &LibraryManager{
		store:    NewStore(dataDir),
		policy:   DefaultPolicy(),
		journal:  nopJournal{},
		notifier: NewFileLedger(filepath.Join(dataDir, NotificationsFile)),
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(lm)
	}
	if err := lm.Reload(); err != nil {
		return nil, err
	}
	for _, v := range lm.session.Violations() {
		lm.log.Error("data integrity violation", zap.String("entity", v.Entity), zap.String("detail", v.Detail))
	}
	lm.log.Info("library loaded",
		zap.String("data_dir", dataDir),
		zap.Int("books", len(lm.session.books)),
		zap.Int("users", len(lm.session.users)),
		zap.Int("loans", len(lm.session.loans)),
		zap.Int("reservations", len(lm.session.reservations)),
		zap.Int("violations", len(lm.session.Violations())))
	return lm, nil
}

// Reload discards the in-memory session and rebuilds it from disk.
func (lm *LibraryManager) Reload() error {
	data, err := lm.store.Load()
	if err != nil {
		return fmt.Errorf("load library: %w", err)
	}
	lm.session = NewSession(data, lm.policy, lm.sessionOpts...)
	return nil
}

// run executes fn against the session and commits whatever it changed.
func (lm *LibraryManager) run(action string, fn func(s *Session) error) error {
	opErr := fn(lm.session)
	events, notes, dirty := lm.session.Drain()
	if !dirty {
		lm.logOutcome(action, opErr)
		return opErr
	}

	if err := lm.store.Save(lm.session.Data()); err != nil {
		lm.log.Error("snapshot write failed, reloading", zap.String("action", action), zap.Error(err))
		if rerr := lm.Reload(); rerr != nil {
			lm.log.Error("reload after failed write", zap.Error(rerr))
		}
		return fmt.Errorf("%s: save library: %w", action, err)
	}

	if err := lm.journal.Append(context.Background(), events...); err != nil {
		lm.log.Error("journal append failed", zap.String("action", action), zap.Int("events", len(events)), zap.Error(err))
	}
	if err := lm.notifier.Notify(notes...); err != nil {
		lm.log.Error("notification ledger write failed", zap.String("action", action), zap.Int("notifications", len(notes)), zap.Error(err))
	}
	if lm.observer != nil {
		lm.observer.Observe(events, lm.session.Stats())
	}
	lm.log.Debug("committed", zap.String("action", action), zap.Int("events", len(events)), zap.Int("notifications", len(notes)))
	lm.logOutcome(action, opErr)
	return opErr
}

func (lm *LibraryManager) logOutcome(action string, err error) {
	switch {
	case err == nil:
	case IsBusinessRule(err):
		lm.log.Info("refused", zap.String("action", action), zap.Error(err))
	default:
		lm.log.Warn("failed", zap.String("action", action), zap.Error(err))
	}
}

func runValue[T any](lm *LibraryManager, action string, fn func(s *Session) (T, error)) (T, error) {
	var out T
	err := lm.run(action, func(s *Session) error {
		var err error
		out, err = fn(s)
		return err
	})
	return out, err
}

func query[T any](lm *LibraryManager, action string, fn func(s *Session) T) T {
	var out T
	_ = lm.run(action, func(s *Session) error {
		out = fn(s)
		return nil
	})
	return out
}

// ------------------ Catalog ------------------

func (lm *LibraryManager) AddBook(in NewBook) (*Book, error) {
	return runValue(lm, "add book", func(s *Session) (*Book, error) { return s.AddBook(in) })
}

func (lm *LibraryManager) AddCopy(bookRef, barcode string) (*Copy, error) {
	return runValue(lm, "add copy", func(s *Session) (*Copy, error) { return s.AddCopy(bookRef, barcode) })
}

func (lm *LibraryManager) WithdrawCopy(copyRef string) (*Copy, error) {
	return runValue(lm, "withdraw copy", func(s *Session) (*Copy, error) { return s.WithdrawCopy(copyRef) })
}

func (lm *LibraryManager) Book(ref string) (*Book, error) {
	return lm.session.Book(ref)
}

func (lm *LibraryManager) Copy(ref string) (*Copy, error) {
	return lm.session.Copy(ref)
}

func (lm *LibraryManager) Books() []*Book {
	return lm.session.Books()
}

func (lm *LibraryManager) SearchBooks(q string) []*Book {
	return lm.session.SearchBooks(q)
}

func (lm *LibraryManager) AvailableCopies(bookRef string) ([]*Copy, error) {
	return runValue(lm, "available copies", func(s *Session) ([]*Copy, error) {
		b, err := s.lookupBook(bookRef)
		if err != nil {
			return nil, err
		}
		s.expireLapsed(b)
		return availableCopies(b), nil
	})
}

// ------------------ Membership ------------------

func (lm *LibraryManager) RegisterUser(in NewUser) (*User, error) {
	return runValue(lm, "register user", func(s *Session) (*User, error) { return s.RegisterUser(in) })
}

func (lm *LibraryManager) User(id string) (*User, error) {
	return runValue(lm, "user", func(s *Session) (*User, error) { return s.User(id) })
}

func (lm *LibraryManager) Users() []*User {
	return query(lm, "users", func(s *Session) []*User { return s.Users() })
}

func (lm *LibraryManager) Suspensions() []*User {
	return query(lm, "suspensions", func(s *Session) []*User { return s.Suspensions() })
}

func (lm *LibraryManager) Authenticate(userID, password string) error {
	return lm.run("authenticate", func(s *Session) error { return s.Authenticate(userID, password) })
}

func (lm *LibraryManager) SetPassword(userID, password string) error {
	return lm.run("set password", func(s *Session) error { return s.SetPassword(userID, password) })
}

// ------------------ Circulation ------------------

func (lm *LibraryManager) RegisterLoan(userID, bookRef, barcode string) (*Loan, error) {
	return runValue(lm, "register loan", func(s *Session) (*Loan, error) { return s.RegisterLoan(userID, bookRef, barcode) })
}

func (lm *LibraryManager) ReturnLoan(loanID string) (*ReturnResult, error) {
	return runValue(lm, "return loan", func(s *Session) (*ReturnResult, error) { return s.ReturnLoan(loanID) })
}

func (lm *LibraryManager) ReturnCopy(copyRef string) (*ReturnResult, error) {
	return runValue(lm, "return copy", func(s *Session) (*ReturnResult, error) { return s.ReturnCopy(copyRef) })
}

func (lm *LibraryManager) RenewLoan(loanID string) (*Loan, error) {
	return runValue(lm, "renew loan", func(s *Session) (*Loan, error) { return s.RenewLoan(loanID) })
}

func (lm *LibraryManager) Loan(id string) (*Loan, error) {
	return lm.session.Loan(id)
}

func (lm *LibraryManager) Loans() []*Loan {
	return lm.session.Loans()
}

func (lm *LibraryManager) OpenLoans() []*Loan {
	return lm.session.OpenLoans()
}

func (lm *LibraryManager) OverdueLoans() []*Loan {
	return lm.session.OverdueLoans()
}

func (lm *LibraryManager) LoansByUser(userID string) ([]*Loan, error) {
	return runValue(lm, "loans by user", func(s *Session) ([]*Loan, error) { return s.LoansByUser(userID) })
}

// ------------------ Penalties ------------------

func (lm *LibraryManager) ApplyPenalty(userID string, amount decimal.Decimal, reason string) (*User, error) {
	return runValue(lm, "apply penalty", func(s *Session) (*User, error) { return s.ApplyPenalty(userID, amount, reason) })
}

func (lm *LibraryManager) PayPenalty(userID string, amount decimal.Decimal) (*User, error) {
	return runValue(lm, "pay penalty", func(s *Session) (*User, error) { return s.PayPenalty(userID, amount) })
}

func (lm *LibraryManager) LiftSuspension(userID string) (*User, error) {
	return runValue(lm, "lift suspension", func(s *Session) (*User, error) { return s.LiftSuspension(userID) })
}

// ------------------ Reservations ------------------

func (lm *LibraryManager) CreateReservation(userID, bookRef string) (*Reservation, error) {
	return runValue(lm, "create reservation", func(s *Session) (*Reservation, error) { return s.CreateReservation(userID, bookRef) })
}

func (lm *LibraryManager) NotifyNext(bookRef, copyRef string) (*Reservation, error) {
	return runValue(lm, "notify next", func(s *Session) (*Reservation, error) { return s.NotifyNext(bookRef, copyRef) })
}

func (lm *LibraryManager) ConfirmReservation(reservationID string) (*Loan, error) {
	return runValue(lm, "confirm reservation", func(s *Session) (*Loan, error) { return s.ConfirmReservation(reservationID) })
}

func (lm *LibraryManager) CancelReservation(reservationID string) (*Reservation, error) {
	return runValue(lm, "cancel reservation", func(s *Session) (*Reservation, error) { return s.CancelReservation(reservationID) })
}

// SweepExpired expires lapsed claim windows across every book.
func (lm *LibraryManager) SweepExpired() []*Reservation {
	return query(lm, "sweep expired", func(s *Session) []*Reservation { return s.SweepExpired() })
}

// SuspendOverdue suspends members holding overdue loans.
func (lm *LibraryManager) SuspendOverdue() []*User {
	return query(lm, "suspend overdue", func(s *Session) []*User { return s.SuspendOverdue() })
}

// ProcessQueues is the periodic housekeeping pass: expire lapsed claims, then
// suspend members sitting on overdue loans. Both are committed together.
func (lm *LibraryManager) ProcessQueues() ([]*Reservation, []*User) {
	var (
		expired   []*Reservation
		suspended []*User
	)
	_ = lm.run("process queues", func(s *Session) error {
		expired = s.SweepExpired()
		suspended = s.SuspendOverdue()
		return nil
	})
	return expired, suspended
}

func (lm *LibraryManager) Queue(bookRef string) ([]*Reservation, error) {
	return runValue(lm, "queue", func(s *Session) ([]*Reservation, error) {
		b, err := s.lookupBook(bookRef)
		if err != nil {
			return nil, err
		}
		s.expireLapsed(b)
		return s.activeReservations(b.ID), nil
	})
}

func (lm *LibraryManager) Reservation(id string) (*Reservation, error) {
	return lm.session.Reservation(id)
}

func (lm *LibraryManager) Reservations() []*Reservation {
	return lm.session.Reservations()
}

func (lm *LibraryManager) ReservationsByUser(userID string) ([]*Reservation, error) {
	return runValue(lm, "reservations by user", func(s *Session) ([]*Reservation, error) { return s.ReservationsByUser(userID) })
}

// ------------------ Reporting ------------------

func (lm *LibraryManager) Stats() Stats {
	return lm.session.Stats()
}

func (lm *LibraryManager) Report() string {
	return lm.session.Report()
}

func (lm *LibraryManager) Policy() Policy {
	return lm.session.Policy()
}

func (lm *LibraryManager) Now() time.Time {
	return lm.session.Now()
}

func (lm *LibraryManager) CheckIntegrity() error {
	return lm.session.CheckIntegrity()
}

func (lm *LibraryManager) Violations() []Violation {
	return lm.session.Violations()
}

// ------------------ Utilities ------------------

// PrettyBook formats a book for lists.
func PrettyBook(b *Book) string {
	return fmt.Sprintf("%-12s %-15s %-30s %-22s %d/%d", b.ID, b.ISBN, clip(b.Title, 30), clip(b.Author, 22),
		len(availableCopies(b)), len(b.Copies))
}

// PrettyLoan formats a loan for lists.
func PrettyLoan(l *Loan) string {
	state := "open"
	if !l.Open() {
		state = "returned " + l.ReturnedAt.Format("2006-01-02")
	}
	return fmt.Sprintf("%-12s %-12s %-12s %-12s due %s  renewals=%d  %s", l.ID, l.UserID, l.BookID, l.CopyID,
		l.DueAt.Format("2006-01-02"), l.Renewals, state)
}

// PrettyUser formats a member for lists.
func PrettyUser(u *User) string {
	standing := string(u.Standing)
	if u.SuspendedUntil != nil {
		standing += " until " + u.SuspendedUntil.Format("2006-01-02")
	}
	return fmt.Sprintf("%-12s %-22s %-28s %-8s penalties=%s  %s", u.ID, clip(u.Name, 22), clip(u.Email, 28),
		u.Category, u.PenaltyBalance.StringFixed(2), standing)
}

// PrettyReservation formats a reservation for lists.
func PrettyReservation(r *Reservation) string {
	line := fmt.Sprintf("%-12s %-12s %-12s #%d %s", r.ID, r.UserID, r.BookID, r.Position, r.Status)
	if r.Status == ReservationNotified && r.ClaimDeadline != nil {
		line += fmt.Sprintf("  copy %s, claim before %s", r.CopyID, r.ClaimDeadline.Format("2006-01-02 15:04"))
	}
	return line
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
