package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tondonate/internal/config"
	"tondonate/internal/indexer"
	"tondonate/internal/price"
	"tondonate/internal/verify"
)

type stubProvider struct {
	candidates []indexer.Candidate
	err        error
}

func (s *stubProvider) Tag() string    { return "stub" }
func (s *stubProvider) Supports() bool { return true }
func (s *stubProvider) Recent(context.Context, string, int) ([]indexer.Candidate, error) {
	return s.candidates, s.err
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "tondonate"},
		Ton: config.TonConfig{
			SellerAddress:  "EQSeller",
			MinDonationTon: 1.0,
			Lookback:       time.Hour,
			DonationText:   "Thanks!",
		},
		Price: config.PriceConfig{Currency: "ils"},
	}
}

func newTestServer(t *testing.T, cfg *config.Config, oracle *price.Oracle, provider indexer.Provider) *Server {
	t.Helper()
	var providers []indexer.Provider
	if provider != nil {
		providers = append(providers, provider)
	}
	verifier := verify.New(verify.Options{
		SellerAddress: cfg.Ton.SellerAddress,
		Lookback:      cfg.Ton.Lookback,
	}, providers, nil, zerolog.Nop())
	return New(cfg, oracle, verifier, nil, nil, zerolog.Nop())
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	body := make(map[string]any)
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return body
}

func TestDonationLink(t *testing.T) {
	link := DonationLink("EQSeller", decimal.NewFromFloat(1.5), "Thanks!")
	if link != "ton://transfer/EQSeller?amount=1500000000&text=Thanks%21" {
		t.Fatalf("unexpected deeplink: %s", link)
	}

	if DonationLink("", decimal.NewFromInt(1), "x") != "" {
		t.Fatal("missing seller should yield an empty link")
	}
}

func TestHandleConfig(t *testing.T) {
	srv := newTestServer(t, testConfig(), price.New(price.Options{}, zerolog.Nop()), nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/config", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["seller_address"] != "EQSeller" {
		t.Fatalf("seller missing from config payload: %#v", body)
	}
	link, _ := body["donation_link"].(string)
	if !strings.HasPrefix(link, "ton://transfer/EQSeller?amount=1000000000") {
		t.Fatalf("unexpected donation link: %s", link)
	}
}

func TestHandleRateUnavailable(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer upstream.Close()

	oracle := price.New(price.Options{BaseURL: upstream.URL, Currency: "ils"}, zerolog.Nop())
	srv := newTestServer(t, testConfig(), oracle, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rate", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("price failure should map to 503, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if msg, _ := body["error"].(string); !strings.Contains(msg, "TON directly") {
		t.Fatalf("error should steer callers to manual entry: %#v", body)
	}
}

func TestHandleRateOK(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]map[string]float64{
			"the-open-network": {"ils": 11.25},
		})
	}))
	defer upstream.Close()

	oracle := price.New(price.Options{BaseURL: upstream.URL, Currency: "ils"}, zerolog.Nop())
	srv := newTestServer(t, testConfig(), oracle, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rate", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["rate"] != "11.25" || body["currency"] != "ils" {
		t.Fatalf("unexpected rate payload: %#v", body)
	}
}

func TestHandleVerify(t *testing.T) {
	provider := &stubProvider{candidates: []indexer.Candidate{{
		Hash:   "tx9",
		Dest:   "EQSeller",
		Source: "EQDonor",
		Amount: 2_000_000_000,
		At:     time.Now(),
	}}}
	srv := newTestServer(t, testConfig(), price.New(price.Options{}, zerolog.Nop()), provider)

	req := httptest.NewRequest(http.MethodPost, "/verify",
		strings.NewReader(`{"claim_ref": "c1", "amount_ton": 1.5}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["verified"] != true || body["tx_hash"] != "tx9" {
		t.Fatalf("unexpected verify payload: %#v", body)
	}
}

func TestHandleVerifyBackendsDown(t *testing.T) {
	srv := newTestServer(t, testConfig(), price.New(price.Options{}, zerolog.Nop()), nil)

	req := httptest.NewRequest(http.MethodPost, "/verify", strings.NewReader(`{"claim_ref": "c1"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("no providers should map to 503, got %d", rec.Code)
	}
}

func TestHandleProofRequiresClaimRef(t *testing.T) {
	srv := newTestServer(t, testConfig(), price.New(price.Options{}, zerolog.Nop()), nil)

	req := httptest.NewRequest(http.MethodPost, "/proof", strings.NewReader(`{"note": "no ref"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleProofAccepted(t *testing.T) {
	srv := newTestServer(t, testConfig(), price.New(price.Options{}, zerolog.Nop()), nil)

	req := httptest.NewRequest(http.MethodPost, "/proof",
		strings.NewReader(`{"claim_ref": "c1", "evidence_ref": "uploads/x.png"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["via"] != "screenshot" || body["verified"] != false {
		t.Fatalf("unexpected proof payload: %#v", body)
	}
}

func TestAdminApproveAuth(t *testing.T) {
	cfg := testConfig()
	srv := newTestServer(t, cfg, price.New(price.Options{}, zerolog.Nop()), nil)

	// Disabled without a configured token.
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/approve", strings.NewReader(`{}`)))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without configured token, got %d", rec.Code)
	}

	cfg.HTTP.AdminToken = "s3cret"
	srv = newTestServer(t, cfg, price.New(price.Options{}, zerolog.Nop()), nil)

	req := httptest.NewRequest(http.MethodPost, "/admin/approve", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/admin/approve",
		strings.NewReader(`{"claim_ref": "c1", "reviewer": "rev-1"}`))
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid token, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["via"] != "manual" || body["verified"] != true {
		t.Fatalf("unexpected approve payload: %#v", body)
	}
}
