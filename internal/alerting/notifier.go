package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Event kinds pushed to the operator chat.
const (
	EventDonationVerified = "donation_verified"
	EventProofSubmitted   = "proof_submitted"
	EventAdminApproved    = "admin_approved"
)

// Notification carries the context of one operator event.
type Notification struct {
	Kind      string
	ClaimRef  string
	AmountTon decimal.Decimal
	Via       string
	Reviewer  string
	Note      string
	At        time.Time
}

// Notifier delivers operator notifications. Callers treat delivery as
// fire-and-forget: a failed notification is logged, never propagated.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier pushes messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "notify_telegram").Logger(),
	}
}

// Notify sends the rendered event via sendMessage.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram unexpected status: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().Str("kind", note.Kind).Str("claim_ref", note.ClaimRef).Msg("operator notified")
	return nil
}

func renderMessage(note Notification) string {
	at := note.At
	if at.IsZero() {
		at = time.Now()
	}

	builder := strings.Builder{}
	switch note.Kind {
	case EventDonationVerified:
		builder.WriteString("✅ Donation verified\n")
	case EventProofSubmitted:
		builder.WriteString("🖼 Screenshot proof submitted (awaiting review)\n")
	case EventAdminApproved:
		builder.WriteString("👤 Donation approved by reviewer\n")
	default:
		builder.WriteString("[tondonate]\n")
	}
	builder.WriteString(fmt.Sprintf("Claim: %s\n", note.ClaimRef))
	if !note.AmountTon.IsZero() {
		builder.WriteString(fmt.Sprintf("Amount: %s TON\n", note.AmountTon.StringFixed(3)))
	}
	if note.Via != "" {
		builder.WriteString(fmt.Sprintf("Via: %s\n", note.Via))
	}
	if note.Reviewer != "" {
		builder.WriteString(fmt.Sprintf("Reviewer: %s\n", note.Reviewer))
	}
	if note.Note != "" {
		builder.WriteString(fmt.Sprintf("Note: %s\n", note.Note))
	}
	builder.WriteString(fmt.Sprintf("Time: %s UTC", at.UTC().Format(time.RFC3339)))
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
