// Package verify reconciles claimed donations against TON indexer data.
package verify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tondonate/internal/indexer"
	"tondonate/internal/metrics"
	"tondonate/internal/storage"
)

// Via tags for the human-attestation paths. On-chain paths use the
// provider's own tag.
const (
	ViaManual     = "manual"
	ViaScreenshot = "screenshot"
)

var (
	// ErrSellerNotConfigured means the destination address is missing from
	// configuration. Deployment misconfiguration, not retryable.
	ErrSellerNotConfigured = errors.New("verify: seller address not configured")

	// ErrVerifyFailed means no provider produced a structured answer.
	ErrVerifyFailed = errors.New("verify: no provider could answer")
)

var nanoPerTon = decimal.NewFromInt(1_000_000_000)

// ToNano converts a whole-TON amount to nanoton. Rounds rather than
// truncates so borderline transfers are not systematically under-counted.
func ToNano(amount decimal.Decimal) int64 {
	return amount.Mul(nanoPerTon).Round(0).IntPart()
}

// Claim is the caller-asserted shape of an expected donation. The seller
// address deliberately lives in verifier configuration, not here; untrusted
// callers must not choose the destination.
type Claim struct {
	Ref         string
	MinAmount   decimal.Decimal
	FromAddress string
	Since       time.Time // zero value means "now minus the configured lookback"
	Comment     string    // free-form claim context, audited but not matched
}

// Result is the verdict for one claim, answered by exactly one provider.
type Result struct {
	Verified bool
	Via      string
	TxHash   string
	Source   string
	Amount   int64
}

// Recorder is an audit sink. Sink failures are logged and swallowed by the
// verifier; the verdict never depends on audit availability.
type Recorder interface {
	Name() string
	Record(ctx context.Context, rec storage.VerificationRecord) error
}

// Options parameterise the verifier.
type Options struct {
	SellerAddress string
	Lookback      time.Duration
	PageLimit     int
}

// Verifier checks claims against an ordered provider chain. Providers are
// tried sequentially, never raced, so a working primary does not burn the
// secondary's rate-limit budget.
type Verifier struct {
	opts      Options
	providers []indexer.Provider
	sinks     []Recorder
	logger    zerolog.Logger
	now       func() time.Time
}

// New constructs a verifier over the given provider chain.
func New(opts Options, providers []indexer.Provider, sinks []Recorder, logger zerolog.Logger) *Verifier {
	if opts.Lookback <= 0 {
		opts.Lookback = 15 * time.Minute
	}
	if opts.PageLimit <= 0 {
		opts.PageLimit = 50
	}

	return &Verifier{
		opts:      opts,
		providers: providers,
		sinks:     sinks,
		logger:    logger.With().Str("component", "verifier").Logger(),
		now:       time.Now,
	}
}

// Verify answers whether a matching inbound transaction exists. The first
// configured provider that returns a structured answer decides; "no match"
// from a healthy provider stops the chain. Unconfigured providers are
// skipped, transport failures fall through to the next provider, and when
// every provider is exhausted the error is ErrVerifyFailed.
func (v *Verifier) Verify(ctx context.Context, claim Claim) (Result, error) {
	if v.opts.SellerAddress == "" {
		return Result{}, ErrSellerNotConfigured
	}

	minNano := ToNano(claim.MinAmount)
	since := claim.Since
	if since.IsZero() {
		since = v.now().Add(-v.opts.Lookback)
	}

	result, err := v.query(ctx, claim, minNano, since)

	v.record(ctx, claim, since, result, err)

	if err != nil {
		metrics.Verify("none", "failed")
		return Result{}, err
	}

	outcome := "not_verified"
	if result.Verified {
		outcome = "verified"
	}
	metrics.Verify(result.Via, outcome)
	v.logger.Info().Str("claim_ref", claim.Ref).Stringer("verdict", &result).Msg("claim answered")
	return result, nil
}

func (v *Verifier) query(ctx context.Context, claim Claim, minNano int64, since time.Time) (Result, error) {
	for _, p := range v.providers {
		if !p.Supports() {
			v.logger.Debug().Str("provider", p.Tag()).Msg("provider not configured, skipping")
			metrics.ProviderSkip(p.Tag(), "unsupported")
			continue
		}

		candidates, err := p.Recent(ctx, v.opts.SellerAddress, v.opts.PageLimit)
		if err != nil {
			v.logger.Warn().Err(err).Str("provider", p.Tag()).Msg("provider call failed, trying next")
			metrics.ProviderSkip(p.Tag(), "transport")
			continue
		}

		// Structured answer: this provider decides, match or not.
		for _, c := range candidates {
			if v.matches(c, claim.FromAddress, minNano, since) {
				return Result{
					Verified: true,
					Via:      p.Tag(),
					TxHash:   c.Hash,
					Source:   c.Source,
					Amount:   c.Amount,
				}, nil
			}
		}
		return Result{Verified: false, Via: p.Tag()}, nil
	}

	return Result{}, ErrVerifyFailed
}

// matches accepts a candidate when either the message destination or the
// transaction's owning account equals the seller; indexers disagree on
// which of the two carries the friendly address form.
func (v *Verifier) matches(c indexer.Candidate, from string, minNano int64, since time.Time) bool {
	if c.Dest != v.opts.SellerAddress && c.Account != v.opts.SellerAddress {
		return false
	}
	if c.Amount < minNano {
		return false
	}
	if c.At.Before(since) {
		return false
	}
	if from != "" && c.Source != from {
		return false
	}
	return true
}

// RecordProof stores an unverified record pointing at user-submitted
// evidence. It is an explicit trust escape hatch, tagged so downstream
// consumers can tell attestation from chain verification. The returned
// record is an acknowledgement; sink failures are swallowed.
func (v *Verifier) RecordProof(ctx context.Context, claimRef, evidenceRef, note string) storage.VerificationRecord {
	rec := storage.VerificationRecord{
		ClaimRef:    claimRef,
		MinAmount:   decimal.Zero,
		Verified:    false,
		Via:         ViaScreenshot,
		EvidenceRef: optional(evidenceRef),
		Note:        optional(note),
		CreatedAt:   v.now().UTC(),
	}
	v.write(ctx, rec)
	return rec
}

// AdminApprove stores a verified record attributed to a human reviewer.
func (v *Verifier) AdminApprove(ctx context.Context, claimRef, reviewerID, note string) storage.VerificationRecord {
	rec := storage.VerificationRecord{
		ClaimRef:  claimRef,
		MinAmount: decimal.Zero,
		Verified:  true,
		Via:       ViaManual,
		Reviewer:  optional(reviewerID),
		Note:      optional(note),
		CreatedAt: v.now().UTC(),
	}
	v.write(ctx, rec)
	return rec
}

func (v *Verifier) record(ctx context.Context, claim Claim, since time.Time, result Result, verifyErr error) {
	rec := storage.VerificationRecord{
		ClaimRef:    claim.Ref,
		MinAmount:   claim.MinAmount,
		FromAddress: optional(claim.FromAddress),
		SinceTS:     &since,
		Note:        optional(claim.Comment),
		Verified:    result.Verified,
		Via:         result.Via,
		CreatedAt:   v.now().UTC(),
	}
	if result.Verified {
		rec.TxHash = optional(result.TxHash)
		rec.TxSource = optional(result.Source)
		amount := result.Amount
		rec.TxAmountNano = &amount
	}
	if verifyErr != nil {
		msg := verifyErr.Error()
		rec.Error = &msg
	}
	v.write(ctx, rec)
}

// write fans the record out to every sink, logging and swallowing failures.
func (v *Verifier) write(ctx context.Context, rec storage.VerificationRecord) {
	for _, sink := range v.sinks {
		if err := sink.Record(ctx, rec); err != nil {
			metrics.AuditRecord(sink.Name(), "error")
			v.logger.Warn().Err(err).
				Str("sink", sink.Name()).
				Str("claim_ref", rec.ClaimRef).
				Msg("audit write failed")
			continue
		}
		metrics.AuditRecord(sink.Name(), "ok")
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ fmt.Stringer = (*Result)(nil)

// String renders a compact verdict for logs.
func (r *Result) String() string {
	if r.Verified {
		return fmt.Sprintf("verified via %s (amount=%d)", r.Via, r.Amount)
	}
	return fmt.Sprintf("not verified (via %s)", r.Via)
}
