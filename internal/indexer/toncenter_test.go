package indexer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestToncenterSupportsAlways(t *testing.T) {
	p := NewToncenter(ToncenterOptions{}, noopLogger())
	if !p.Supports() {
		t.Fatal("toncenter should always report supported")
	}
}

func TestToncenterRecent(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		_, _ = w.Write([]byte(`{
			"ok": true,
			"result": [
				{
					"utime": 1700000000,
					"transaction_id": {"hash": "cc33"},
					"in_msg": {"source": "EQDonor", "destination": "EQSeller", "value": "3000000000"}
				},
				{
					"utime": 1700000200,
					"transaction_id": {"hash": "dd44"},
					"in_msg": {"source": "EQOther", "destination": "", "value": 750000000}
				}
			]
		}`))
	}))
	defer srv.Close()

	p := NewToncenter(ToncenterOptions{BaseURL: srv.URL, APIKey: "tck"}, noopLogger())
	candidates, err := p.Recent(context.Background(), "EQSeller", 10)
	if err != nil {
		t.Fatalf("Recent should succeed: %v", err)
	}
	if gotKey != "tck" {
		t.Fatalf("expected X-API-Key header, got %q", gotKey)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}

	if candidates[0].Amount != 3000000000 {
		t.Fatalf("string value mis-parsed: %d", candidates[0].Amount)
	}
	if candidates[1].Amount != 750000000 {
		t.Fatalf("numeric value mis-parsed: %d", candidates[1].Amount)
	}
	if candidates[1].Dest != "EQSeller" {
		t.Fatalf("missing destination should fall back to the queried account, got %q", candidates[1].Dest)
	}
}

func TestToncenterRecentNotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok": false, "result": []}`))
	}))
	defer srv.Close()

	p := NewToncenter(ToncenterOptions{BaseURL: srv.URL}, noopLogger())
	if _, err := p.Recent(context.Background(), "EQSeller", 10); err == nil {
		t.Fatal("ok=false should return an error")
	}
}

func TestToncenterRecentHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewToncenter(ToncenterOptions{BaseURL: srv.URL}, noopLogger())
	if _, err := p.Recent(context.Background(), "EQSeller", 10); err == nil {
		t.Fatal("HTTP 429 should return an error")
	}
}
