package verify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tondonate/internal/indexer"
	"tondonate/internal/storage"
)

const seller = "EQSeller"

type stubProvider struct {
	tag        string
	supports   bool
	candidates []indexer.Candidate
	err        error
	calls      int
}

func (s *stubProvider) Tag() string    { return s.tag }
func (s *stubProvider) Supports() bool { return s.supports }
func (s *stubProvider) Recent(context.Context, string, int) ([]indexer.Candidate, error) {
	s.calls++
	return s.candidates, s.err
}

type captureSink struct {
	records []storage.VerificationRecord
	err     error
}

func (c *captureSink) Name() string { return "capture" }
func (c *captureSink) Record(_ context.Context, rec storage.VerificationRecord) error {
	c.records = append(c.records, rec)
	return c.err
}

func newTestVerifier(providers []indexer.Provider, sinks []Recorder) *Verifier {
	return New(Options{SellerAddress: seller, Lookback: time.Hour}, providers, sinks, zerolog.Nop())
}

func matchingCandidate(amount int64) indexer.Candidate {
	return indexer.Candidate{
		Hash:   "hash1",
		Dest:   seller,
		Source: "EQDonor",
		Amount: amount,
		At:     time.Now(),
	}
}

func TestToNanoRounds(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"1", 1_000_000_000},
		{"1.2345", 1_234_500_000},
		{"0.001", 1_000_000},
		{"0.0000000015", 2},
		{"2.9999999996", 3_000_000_000},
	}
	for _, tc := range cases {
		amount, err := decimal.NewFromString(tc.in)
		if err != nil {
			t.Fatalf("bad case %q: %v", tc.in, err)
		}
		if got := ToNano(amount); got != tc.want {
			t.Fatalf("ToNano(%s) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestVerifyMatchesOwningAccount(t *testing.T) {
	// Some indexers render in_msg.destination in raw form while the
	// transaction's owning account carries the friendly form; either one
	// equalling the seller must count.
	provider := &stubProvider{tag: "p", supports: true, candidates: []indexer.Candidate{{
		Hash:    "tx-raw",
		Dest:    "0:rawformseller",
		Account: seller,
		Source:  "EQDonor",
		Amount:  5_000_000_000,
		At:      time.Now(),
	}}}

	v := newTestVerifier([]indexer.Provider{provider}, nil)
	result, err := v.Verify(context.Background(), Claim{Ref: "c-acct", MinAmount: decimal.NewFromInt(1)})
	if err != nil {
		t.Fatalf("Verify should succeed: %v", err)
	}
	if !result.Verified || result.TxHash != "tx-raw" {
		t.Fatalf("owning account equal to seller should match, got %+v", result)
	}

	// Neither field matching still rejects.
	provider.candidates[0].Account = "EQElse"
	result, err = v.Verify(context.Background(), Claim{Ref: "c-acct2", MinAmount: decimal.NewFromInt(1)})
	if err != nil {
		t.Fatalf("Verify should succeed: %v", err)
	}
	if result.Verified {
		t.Fatal("candidate addressed elsewhere should not match")
	}
}

func TestVerifySellerNotConfigured(t *testing.T) {
	v := New(Options{}, nil, nil, zerolog.Nop())
	if _, err := v.Verify(context.Background(), Claim{MinAmount: decimal.NewFromInt(1)}); !errors.Is(err, ErrSellerNotConfigured) {
		t.Fatalf("expected ErrSellerNotConfigured, got %v", err)
	}
}

func TestVerifyFirstProviderMatch(t *testing.T) {
	primary := &stubProvider{tag: "primary", supports: true, candidates: []indexer.Candidate{matchingCandidate(2_000_000_000)}}
	secondary := &stubProvider{tag: "secondary", supports: true}
	sink := &captureSink{}

	v := newTestVerifier([]indexer.Provider{primary, secondary}, []Recorder{sink})
	result, err := v.Verify(context.Background(), Claim{Ref: "c1", MinAmount: decimal.NewFromInt(1)})
	if err != nil {
		t.Fatalf("Verify should succeed: %v", err)
	}
	if !result.Verified || result.Via != "primary" || result.TxHash != "hash1" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if secondary.calls != 0 {
		t.Fatal("secondary should not be queried after a primary answer")
	}

	if len(sink.records) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(sink.records))
	}
	rec := sink.records[0]
	if !rec.Verified || rec.TxHash == nil || *rec.TxHash != "hash1" || rec.TxAmountNano == nil || *rec.TxAmountNano != 2_000_000_000 {
		t.Fatalf("audit record incomplete: %+v", rec)
	}
}

func TestVerifyHealthyNoMatchStopsChain(t *testing.T) {
	// Primary answers with transactions that do not match; secondary must
	// not get a vote.
	primary := &stubProvider{tag: "primary", supports: true, candidates: []indexer.Candidate{matchingCandidate(100)}}
	secondary := &stubProvider{tag: "secondary", supports: true, candidates: []indexer.Candidate{matchingCandidate(5_000_000_000)}}

	v := newTestVerifier([]indexer.Provider{primary, secondary}, nil)
	result, err := v.Verify(context.Background(), Claim{Ref: "c2", MinAmount: decimal.NewFromInt(1)})
	if err != nil {
		t.Fatalf("Verify should succeed: %v", err)
	}
	if result.Verified {
		t.Fatal("underpaying transaction should not verify")
	}
	if result.Via != "primary" {
		t.Fatalf("healthy primary should decide, got via %q", result.Via)
	}
	if secondary.calls != 0 {
		t.Fatal("secondary should not be queried after a structured no-match")
	}
}

func TestVerifySkipsAndFallsThrough(t *testing.T) {
	unconfigured := &stubProvider{tag: "unconfigured", supports: false}
	broken := &stubProvider{tag: "broken", supports: true, err: errors.New("timeout")}
	healthy := &stubProvider{tag: "healthy", supports: true, candidates: []indexer.Candidate{matchingCandidate(1_000_000_000)}}

	v := newTestVerifier([]indexer.Provider{unconfigured, broken, healthy}, nil)
	result, err := v.Verify(context.Background(), Claim{Ref: "c3", MinAmount: decimal.NewFromInt(1)})
	if err != nil {
		t.Fatalf("Verify should succeed: %v", err)
	}
	if !result.Verified || result.Via != "healthy" {
		t.Fatalf("expected healthy provider to decide, got %+v", result)
	}
	if unconfigured.calls != 0 {
		t.Fatal("unconfigured provider should be skipped without a call")
	}
	if broken.calls != 1 {
		t.Fatal("failing provider should be attempted once")
	}
}

func TestVerifyAllProvidersExhausted(t *testing.T) {
	unconfigured := &stubProvider{tag: "unconfigured", supports: false}
	broken := &stubProvider{tag: "broken", supports: true, err: errors.New("timeout")}
	sink := &captureSink{}

	v := newTestVerifier([]indexer.Provider{unconfigured, broken}, []Recorder{sink})
	if _, err := v.Verify(context.Background(), Claim{Ref: "c4", MinAmount: decimal.NewFromInt(1)}); !errors.Is(err, ErrVerifyFailed) {
		t.Fatalf("expected ErrVerifyFailed, got %v", err)
	}

	if len(sink.records) != 1 {
		t.Fatalf("failed verification should still be audited, got %d records", len(sink.records))
	}
	if sink.records[0].Error == nil {
		t.Fatal("audit record should carry the failure reason")
	}
}

func TestVerifyMatchCriteria(t *testing.T) {
	now := time.Now()
	candidates := []indexer.Candidate{
		{Hash: "wrong-dest", Dest: "EQElse", Source: "EQDonor", Amount: 9_000_000_000, At: now},
		{Hash: "too-old", Dest: seller, Source: "EQDonor", Amount: 9_000_000_000, At: now.Add(-2 * time.Hour)},
		{Hash: "wrong-source", Dest: seller, Source: "EQStranger", Amount: 9_000_000_000, At: now},
		{Hash: "good", Dest: seller, Source: "EQDonor", Amount: 9_000_000_000, At: now},
	}
	provider := &stubProvider{tag: "p", supports: true, candidates: candidates}

	v := newTestVerifier([]indexer.Provider{provider}, nil)
	result, err := v.Verify(context.Background(), Claim{
		Ref:         "c5",
		MinAmount:   decimal.NewFromInt(1),
		FromAddress: "EQDonor",
		Since:       now.Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("Verify should succeed: %v", err)
	}
	if !result.Verified || result.TxHash != "good" {
		t.Fatalf("expected the only conforming transaction to match, got %+v", result)
	}
}

func TestRecordProofAcknowledgesDespiteSinkFailure(t *testing.T) {
	sink := &captureSink{err: errors.New("disk full")}
	v := newTestVerifier(nil, []Recorder{sink})

	rec := v.RecordProof(context.Background(), "c6", "uploads/abc.png", "looks fine")
	if rec.Verified {
		t.Fatal("screenshot proof must not count as verified")
	}
	if rec.Via != ViaScreenshot {
		t.Fatalf("expected via %q, got %q", ViaScreenshot, rec.Via)
	}
	if rec.EvidenceRef == nil || *rec.EvidenceRef != "uploads/abc.png" {
		t.Fatalf("evidence reference lost: %+v", rec)
	}
	if len(sink.records) != 1 {
		t.Fatal("sink should still have been attempted")
	}
}

func TestAdminApprove(t *testing.T) {
	sink := &captureSink{}
	v := newTestVerifier(nil, []Recorder{sink})

	rec := v.AdminApprove(context.Background(), "c7", "reviewer-9", "confirmed on explorer")
	if !rec.Verified {
		t.Fatal("admin approval should mark the claim verified")
	}
	if rec.Via != ViaManual {
		t.Fatalf("expected via %q, got %q", ViaManual, rec.Via)
	}
	if rec.Reviewer == nil || *rec.Reviewer != "reviewer-9" {
		t.Fatalf("reviewer attribution lost: %+v", rec)
	}
}
