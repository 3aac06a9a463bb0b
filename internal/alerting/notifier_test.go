package alerting

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
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("path should contain sendMessage, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	note := Notification{
		Kind:      EventDonationVerified,
		ClaimRef:  "c1",
		AmountTon: decimal.NewFromFloat(2.5),
		Via:       "tonapi",
		At:        time.Now(),
	}

	if err := notifier.Notify(context.Background(), note); err != nil {
		t.Fatalf("Notify should succeed: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("wrong chat_id: %#v", received)
	}
	if !strings.Contains(received["text"], "c1") || !strings.Contains(received["text"], "2.500 TON") {
		t.Fatalf("rendered message missing fields: %q", received["text"])
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), Notification{Kind: EventAdminApproved, ClaimRef: "c2"}); err == nil {
		t.Fatal("ok=false should return an error")
	}
}

func TestRenderMessageKinds(t *testing.T) {
	cases := map[string]string{
		EventDonationVerified: "Donation verified",
		EventProofSubmitted:   "proof submitted",
		EventAdminApproved:    "approved by reviewer",
	}
	for kind, want := range cases {
		text := renderMessage(Notification{Kind: kind, ClaimRef: "x", At: time.Now()})
		if !strings.Contains(text, want) {
			t.Fatalf("message for %s should contain %q, got %q", kind, want, text)
		}
	}
}
