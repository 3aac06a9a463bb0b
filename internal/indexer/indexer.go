// Package indexer adapts third-party TON transaction indexers into a single
// candidate-transaction shape.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Candidate is an inbound transaction normalised from a provider response.
// Amounts are always in nanoton; string/number variance across indexer
// versions is resolved at the adapter boundary, never later.
type Candidate struct {
	Hash    string
	Dest    string
	Account string // owning account of the transaction; indexers may render it and in_msg.destination in different address forms
	Source  string
	Amount  int64
	At      time.Time
}

// Provider exposes one indexer backend. Supports reports whether the
// provider has the credentials it needs; an unsupported provider is a
// routing decision, not a failure.
type Provider interface {
	Tag() string
	Supports() bool
	Recent(ctx context.Context, account string, limit int) ([]Candidate, error)
}

// parseAmount normalises a provider amount field that may arrive as a JSON
// number or a numeric string.
func parseAmount(raw json.Number) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := raw.Int64()
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	return v, nil
}
