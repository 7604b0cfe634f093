package library

import (
	"context"
	"time"
)

// Event kinds written to the journal.
const (
	EventBookAdded            = "book.added"
	EventCopyAdded            = "copy.added"
	EventCopyWithdrawn        = "copy.withdrawn"
	EventUserRegistered       = "user.registered"
	EventLoanRegistered       = "loan.registered"
	EventLoanReturned         = "loan.returned"
	EventLoanRenewed          = "loan.renewed"
	EventPenaltyApplied       = "penalty.applied"
	EventUserSuspended        = "user.suspended"
	EventSuspensionLifted     = "suspension.lifted"
	EventSuspensionExpired    = "suspension.expired"
	EventReservationCreated   = "reservation.created"
	EventReservationNotified  = "reservation.notified"
	EventReservationConfirmed = "reservation.confirmed"
	EventReservationCancelled = "reservation.cancelled"
	EventReservationExpired   = "reservation.expired"
)

// ActorSystem is the actor recorded for effects nobody asked for directly,
// such as claim expiry or automatic reactivation.
const ActorSystem = "SYSTEM"

// Event is one journal entry describing a committed state change.
type Event struct {
	OccurredAt    time.Time
	Actor         string
	Kind          string
	UserID        string
	BookID        string
	CopyID        string
	LoanID        string
	ReservationID string
	Details       string
}

// Journal receives the events of each committed operation.
type Journal interface {
	Append(ctx context.Context, events ...Event) error
}

// Observer is told about every committed batch of events.
type Observer interface {
	Observe(events []Event, stats Stats)
}

type nopJournal struct{}

func (nopJournal) Append(context.Context, ...Event) error { return nil }
