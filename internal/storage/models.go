package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// VerificationRecord is one append-only audit row. Rows are never mutated;
// a later verification of the same claim inserts a fresh row and the latest
// row per claim_ref is the effective state.
type VerificationRecord struct {
	ID           int64
	ClaimRef     string
	MinAmount    decimal.Decimal
	FromAddress  *string
	SinceTS      *time.Time
	Verified     bool
	Via          string
	TxHash       *string
	TxSource     *string
	TxAmountNano *int64
	Error        *string
	Reviewer     *string
	Note         *string
	EvidenceRef  *string
	CreatedAt    time.Time
}

// DailyTotal aggregates verified donations for one calendar day.
type DailyTotal struct {
	Day       time.Time
	Count     int64
	AmountTon decimal.Decimal
}
