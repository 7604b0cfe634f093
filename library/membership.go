package library

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

// NewUser carries the details of a member being registered.
type NewUser struct {
	Name     string
	Email    string
	Category Category
	// Password is optional; members without one are not asked to authenticate.
	Password string
}

// RegisterUser adds an ACTIVE member with an empty penalty ledger.
func (s *Session) RegisterUser(in NewUser) (*User, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if name == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: a name and a valid email are required", ErrInvalidInput)
	}
	for _, u := range s.users {
		if u.Email == email {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEmail, email)
		}
	}
	category := in.Category
	if category == "" {
		category = CategoryStudent
	}
	switch category {
	case CategoryStudent, CategoryTeacher, CategoryStaff:
	default:
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidInput, category)
	}

	u := &User{
		ID:             s.nextID("U", func(id string) bool { return s.userByID[id] != nil }),
		Name:           name,
		Email:          email,
		Category:       category,
		Standing:       StandingActive,
		PenaltyBalance: decimal.Zero,
		RegisteredAt:   s.now(),
	}
	if in.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		u.PasswordHash = string(hash)
	}
	s.users = append(s.users, u)
	s.userByID[u.ID] = u
	s.emit(Event{Actor: s.operator, Kind: EventUserRegistered, UserID: u.ID, Details: u.Name})
	return u, nil
}

// User resolves a member, applying automatic reactivation first.
func (s *Session) User(id string) (*User, error) {
	return s.lookupUser(id)
}

// Users lists all members with their current standing.
func (s *Session) Users() []*User {
	for _, u := range s.users {
		s.refreshStanding(u)
	}
	return s.users
}

// Suspensions lists the members currently suspended.
func (s *Session) Suspensions() []*User {
	var out []*User
	for _, u := range s.Users() {
		if u.Standing == StandingSuspended {
			out = append(out, u)
		}
	}
	return out
}

// Authenticate checks a member's PIN. Members without a PIN always pass.
func (s *Session) Authenticate(userID, password string) error {
	u, err := s.lookupUser(userID)
	if err != nil {
		return err
	}
	if u.PasswordHash == "" {
		return nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrAuthFailed
		}
		return fmt.Errorf("compare password: %w", err)
	}
	return nil
}

// SetPassword replaces a member's PIN. An empty password removes it.
func (s *Session) SetPassword(userID, password string) error {
	u, err := s.lookupUser(userID)
	if err != nil {
		return err
	}
	if password == "" {
		u.PasswordHash = ""
		s.touch()
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = string(hash)
	s.touch()
	return nil
}

// ApplyPenalty adjusts a member's penalty ledger by amount: positive values
// charge, negative values credit. The ledger never goes below zero. A charge
// that takes the ledger over the suspension threshold suspends the member.
func (s *Session) ApplyPenalty(userID string, amount decimal.Decimal, reason string) (*User, error) {
	if amount.IsZero() {
		return nil, fmt.Errorf("%w: adjustment must not be zero", ErrInvalidAmount)
	}
	u, err := s.lookupUser(userID)
	if err != nil {
		return nil, err
	}
	if err := s.guard(u.ID); err != nil {
		return nil, err
	}
	s.chargePenalty(u, amount, s.operator, "", reason)
	return u, nil
}

// PayPenalty credits a payment against the ledger. Paying never lifts a
// suspension; that takes LiftSuspension.
func (s *Session) PayPenalty(userID string, amount decimal.Decimal) (*User, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: payment must be positive", ErrInvalidAmount)
	}
	return s.ApplyPenalty(userID, amount.Neg(), "payment")
}

// LiftSuspension reactivates a member explicitly.
func (s *Session) LiftSuspension(userID string) (*User, error) {
	u, err := s.lookupUser(userID)
	if err != nil {
		return nil, err
	}
	if err := s.guard(u.ID); err != nil {
		return nil, err
	}
	if u.Standing != StandingSuspended {
		return u, nil
	}
	u.Standing = StandingActive
	u.SuspendedUntil = nil
	s.emit(Event{Actor: s.operator, Kind: EventSuspensionLifted, UserID: u.ID})
	return u, nil
}

func (s *Session) lookupUser(id string) (*User, error) {
	u, ok := s.userByID[strings.TrimSpace(id)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, id)
	}
	s.refreshStanding(u)
	return u, nil
}

// refreshStanding reactivates a member whose suspension has run out. Every
// read of standing goes through here.
func (s *Session) refreshStanding(u *User) {
	if u.Standing != StandingSuspended || u.SuspendedUntil == nil {
		return
	}
	if s.now().Before(*u.SuspendedUntil) {
		return
	}
	u.Standing = StandingActive
	u.SuspendedUntil = nil
	s.emit(Event{Actor: ActorSystem, Kind: EventSuspensionExpired, UserID: u.ID})
}

// chargePenalty moves the ledger and re-evaluates the threshold.
func (s *Session) chargePenalty(u *User, amount decimal.Decimal, actor, loanID, reason string) {
	balance := u.PenaltyBalance.Add(amount)
	if balance.IsNegative() {
		balance = decimal.Zero
	}
	u.PenaltyBalance = balance
	details := "amount=" + amount.String() + " balance=" + balance.String()
	if reason != "" {
		details += " reason=" + reason
	}
	s.emit(Event{Actor: actor, Kind: EventPenaltyApplied, UserID: u.ID, LoanID: loanID, Details: details})

	if amount.IsPositive() && balance.GreaterThan(s.policy.SuspensionThreshold) {
		s.suspend(u, actor)
	}
}

func (s *Session) suspend(u *User, actor string) {
	until := s.now().Add(s.policy.SuspensionPeriod)
	if u.Standing == StandingSuspended && u.SuspendedUntil != nil && u.SuspendedUntil.After(until) {
		until = *u.SuspendedUntil
	}
	u.Standing = StandingSuspended
	u.SuspendedUntil = &until
	s.emit(Event{Actor: actor, Kind: EventUserSuspended, UserID: u.ID, Details: "until " + until.Format("2006-01-02")})
}
