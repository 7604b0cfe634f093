package library

import (
	"time"

	"github.com/shopspring/decimal"
)

// Policy holds the circulation constants. Zero values are not meaningful; use
// DefaultPolicy or build one from configuration.
type Policy struct {
	LoanPeriod        time.Duration
	PerDayPenaltyRate decimal.Decimal
	// SuspensionThreshold is exceeded (strictly) by the penalty ledger to suspend a user.
	SuspensionThreshold decimal.Decimal
	SuspensionPeriod    time.Duration
	ClaimExpiry         time.Duration
	MaxRenewals         int
	LoanLimits          map[Category]int
}

// DefaultPolicy returns the library's standard rules.
func DefaultPolicy() Policy {
	return Policy{
		LoanPeriod:          14 * 24 * time.Hour,
		PerDayPenaltyRate:   decimal.RequireFromString("0.50"),
		SuspensionThreshold: decimal.NewFromInt(20),
		SuspensionPeriod:    30 * 24 * time.Hour,
		ClaimExpiry:         48 * time.Hour,
		MaxRenewals:         2,
		LoanLimits: map[Category]int{
			CategoryStudent: 3,
			CategoryTeacher: 10,
			CategoryStaff:   5,
		},
	}
}

// LoanLimit returns how many open loans a user of category c may hold.
// Zero means unlimited.
func (p Policy) LoanLimit(c Category) int {
	return p.LoanLimits[c]
}

// Penalty is the charge for returning a loan overdueDays late.
func (p Policy) Penalty(overdueDays int) decimal.Decimal {
	if overdueDays <= 0 {
		return decimal.Zero
	}
	return p.PerDayPenaltyRate.Mul(decimal.NewFromInt(int64(overdueDays)))
}
