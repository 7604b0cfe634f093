package library

import (
	"time"

	"github.com/shopspring/decimal"
)

// CopyStatus is the circulation state of one physical copy.
type CopyStatus string

const (
	CopyAvailable CopyStatus = "AVAILABLE"
	CopyLoaned    CopyStatus = "LOANED"
	CopyReserved  CopyStatus = "RESERVED"
	CopyWithdrawn CopyStatus = "WITHDRAWN"
)

// Standing is a user's eligibility to borrow.
type Standing string

const (
	StandingActive    Standing = "ACTIVE"
	StandingSuspended Standing = "SUSPENDED"
)

// Category determines how many loans a user may hold at once.
type Category string

const (
	CategoryStudent Category = "student"
	CategoryTeacher Category = "teacher"
	CategoryStaff   Category = "staff"
)

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	ReservationWaiting   ReservationStatus = "WAITING"
	ReservationNotified  ReservationStatus = "NOTIFIED"
	ReservationConfirmed ReservationStatus = "CONFIRMED"
	ReservationCancelled ReservationStatus = "CANCELLED"
	ReservationExpired   ReservationStatus = "EXPIRED"
)

// Active reports whether the reservation still holds a place in its book's queue.
func (s ReservationStatus) Active() bool {
	return s == ReservationWaiting || s == ReservationNotified
}

// Book is a catalog title. Copies are kept in acquisition order.
type Book struct {
	ID        string    `json:"id"`
	ISBN      string    `json:"isbn"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	Publisher string    `json:"publisher,omitempty"`
	Year      int       `json:"year,omitempty"`
	Keywords  []string  `json:"keywords,omitempty"`
	LoanCount int       `json:"loan_count"`
	AddedAt   time.Time `json:"added_at"`
	Copies    []*Copy   `json:"copies"`
}

// Copy is one physical, independently loanable instance of a Book.
type Copy struct {
	ID      string     `json:"id"`
	BookID  string     `json:"book_id"`
	Barcode string     `json:"barcode"`
	Status  CopyStatus `json:"status"`
}

// User is a registered library member, identified by matricule.
type User struct {
	ID             string          `json:"matricule"`
	Name           string          `json:"name"`
	Email          string          `json:"email"`
	Category       Category        `json:"category"`
	Standing       Standing        `json:"standing"`
	SuspendedUntil *time.Time      `json:"suspended_until,omitempty"`
	PenaltyBalance decimal.Decimal `json:"penalty_balance"`
	PasswordHash   string          `json:"password_hash,omitempty"`
	RegisteredAt   time.Time       `json:"registered_at"`
}

// Loan records one copy lent to one user. ReturnedAt is nil while the loan is open.
type Loan struct {
	ID             string          `json:"id"`
	CopyID         string          `json:"copy_id"`
	BookID         string          `json:"book_id"`
	UserID         string          `json:"user_id"`
	LoanedAt       time.Time       `json:"loaned_at"`
	DueAt          time.Time       `json:"due_at"`
	ReturnedAt     *time.Time      `json:"returned_at,omitempty"`
	Renewals       int             `json:"renewals"`
	AccruedPenalty decimal.Decimal `json:"accrued_penalty"`
}

// Open reports whether the loan has not been returned yet.
func (l *Loan) Open() bool { return l.ReturnedAt == nil }

// OverdueDays is the number of whole days past due at now, never negative.
func (l *Loan) OverdueDays(now time.Time) int {
	if !now.After(l.DueAt) {
		return 0
	}
	return int(now.Sub(l.DueAt) / (24 * time.Hour))
}

// Overdue reports whether the loan is at least one whole day late, the point
// from which returning it costs a penalty.
func (l *Loan) Overdue(now time.Time) bool { return l.OverdueDays(now) > 0 }

// Reservation is a user's place in a book's waiting queue. Position is only
// meaningful while the reservation is WAITING or NOTIFIED.
type Reservation struct {
	ID            string            `json:"id"`
	BookID        string            `json:"book_id"`
	UserID        string            `json:"user_id"`
	Position      int               `json:"position,omitempty"`
	Status        ReservationStatus `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
	NotifiedAt    *time.Time        `json:"notified_at,omitempty"`
	ClaimDeadline *time.Time        `json:"claim_deadline,omitempty"`
	CopyID        string            `json:"copy_id,omitempty"`
	LoanID        string            `json:"loan_id,omitempty"`
	ClosedAt      *time.Time        `json:"closed_at,omitempty"`
}

// LibraryData represents the complete library state for persistence.
type LibraryData struct {
	Books        []*Book
	Users        []*User
	Loans        []*Loan
	Reservations []*Reservation
}
