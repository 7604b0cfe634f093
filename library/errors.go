package library

import (
	"errors"
	"fmt"
	"strings"
)

// Business-rule errors. All of them are raised before an operation mutates
// anything, except ErrReservationExpired which also records the expiry.
var (
	// ErrUserSuspended is returned when a suspended user tries to borrow or reserve.
	ErrUserSuspended = errors.New("user is suspended")

	// ErrNoAvailableCopy is returned when a book has no AVAILABLE copy to lend.
	ErrNoAvailableCopy = errors.New("no available copy")

	// ErrCopyNotAvailable is returned when the targeted copy is not AVAILABLE.
	ErrCopyNotAvailable = errors.New("copy is not available")

	// ErrNoOpenLoan is returned when returning a copy nobody has borrowed.
	ErrNoOpenLoan = errors.New("no open loan for copy")

	// ErrLoanAlreadyClosed is returned when acting on a loan that was already returned.
	ErrLoanAlreadyClosed = errors.New("loan already closed")

	// ErrRenewalLimitExceeded is returned when a loan has used all its renewals.
	ErrRenewalLimitExceeded = errors.New("renewal limit exceeded")

	// ErrLoanOverdue is returned when renewing a loan that is past due.
	ErrLoanOverdue = errors.New("loan is overdue")

	// ErrReservationPending is returned when renewing a loan other users are waiting for.
	ErrReservationPending = errors.New("reservation pending for book")

	// ErrCopyAvailable is returned when reserving a book that can be borrowed directly.
	ErrCopyAvailable = errors.New("a copy is available, borrow it directly")

	// ErrDuplicateReservation is returned when the user is already queued for the book.
	ErrDuplicateReservation = errors.New("user already has a reservation for this book")

	// ErrReservationExpired is returned when the claim window of a reservation has lapsed.
	ErrReservationExpired = errors.New("reservation claim window expired")

	// ErrLoanLimitReached is returned when the user holds as many loans as their category allows.
	ErrLoanLimitReached = errors.New("loan limit reached")

	// ErrAlreadyBorrowed is returned when reserving a book the user currently has on loan.
	ErrAlreadyBorrowed = errors.New("user already has this book on loan")

	// ErrReservationNotNotified is returned when confirming a reservation that was never offered a copy.
	ErrReservationNotNotified = errors.New("reservation has not been notified")

	// ErrReservationClosed is returned when cancelling a confirmed, cancelled or expired reservation.
	ErrReservationClosed = errors.New("reservation is closed")

	// ErrInvalidAmount is returned for zero penalty adjustments and non-positive payments.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrAuthFailed is returned when a member PIN does not match.
	ErrAuthFailed = errors.New("authentication failed")
)

// Lookup and catalog errors.
var (
	ErrUnknownUser        = errors.New("unknown user")
	ErrUnknownBook        = errors.New("unknown book")
	ErrUnknownCopy        = errors.New("unknown copy")
	ErrUnknownLoan        = errors.New("unknown loan")
	ErrUnknownReservation = errors.New("unknown reservation")
	ErrDuplicateISBN      = errors.New("isbn already in catalog")
	ErrDuplicateBarcode   = errors.New("barcode already in catalog")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrInvalidInput       = errors.New("invalid input")
)

// ErrIntegrity matches every *IntegrityError.
var ErrIntegrity = errors.New("data integrity violation")

// Violation is one inconsistency between persisted records.
type Violation struct {
	// Entity is the identifier of the record the violation is attached to.
	Entity string
	Detail string
}

func (v Violation) String() string { return v.Entity + ": " + v.Detail }

// IntegrityError reports persisted-state corruption, as opposed to a
// disallowed request.
type IntegrityError struct {
	Violations []Violation
}

func (e *IntegrityError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return fmt.Sprintf("%s: %s", ErrIntegrity, strings.Join(parts, "; "))
}

// Is lets errors.Is(err, ErrIntegrity) match.
func (e *IntegrityError) Is(target error) bool { return target == ErrIntegrity }

// IsBusinessRule reports whether err is an ordinary refusal the operator can
// act on, rather than corruption or an I/O failure.
func IsBusinessRule(err error) bool {
	if err == nil || errors.Is(err, ErrIntegrity) {
		return false
	}
	for _, target := range businessErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

var businessErrors = []error{
	ErrUserSuspended, ErrNoAvailableCopy, ErrCopyNotAvailable, ErrNoOpenLoan,
	ErrLoanAlreadyClosed, ErrRenewalLimitExceeded, ErrLoanOverdue, ErrReservationPending,
	ErrCopyAvailable, ErrDuplicateReservation, ErrReservationExpired, ErrLoanLimitReached,
	ErrAlreadyBorrowed, ErrReservationNotNotified, ErrReservationClosed, ErrInvalidAmount,
	ErrAuthFailed, ErrUnknownUser, ErrUnknownBook, ErrUnknownCopy, ErrUnknownLoan,
	ErrUnknownReservation, ErrDuplicateISBN, ErrDuplicateBarcode, ErrDuplicateEmail, ErrInvalidInput,
}
