package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// TagTonAPI identifies the primary indexer in verification results.
const TagTonAPI = "tonapi"

// TonAPIOptions parameterise the TonAPI adapter.
type TonAPIOptions struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// TonAPI queries tonapi.io for recent account transactions. It requires a
// bearer credential and reports itself unsupported without one.
type TonAPI struct {
	opts    TonAPIOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewTonAPI constructs the primary indexer adapter.
func NewTonAPI(opts TonAPIOptions, logger zerolog.Logger) *TonAPI {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://tonapi.io"
	}

	return &TonAPI{
		opts:    opts,
		logger:  logger.With().Str("component", "tonapi").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Tag returns the provider tag.
func (t *TonAPI) Tag() string { return TagTonAPI }

// Supports reports whether a bearer key is configured.
func (t *TonAPI) Supports() bool { return t.opts.APIKey != "" }

type tonapiResponse struct {
	Transactions []struct {
		Hash    string `json:"hash"`
		Utime   int64  `json:"utime"`
		Account struct {
			Address string `json:"address"`
		} `json:"account"`
		InMsg struct {
			Value       json.Number `json:"value"`
			Destination struct {
				Address string `json:"address"`
			} `json:"destination"`
			Source struct {
				Address string `json:"address"`
			} `json:"source"`
		} `json:"in_msg"`
	} `json:"transactions"`
}

// Recent returns the most recent inbound transactions for an account.
func (t *TonAPI) Recent(ctx context.Context, account string, limit int) ([]Candidate, error) {
	endpoint := fmt.Sprintf("%s/v2/blockchain/accounts/%s/transactions?limit=%d",
		t.baseURL, url.PathEscape(account), limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.opts.APIKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tonapi error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var decoded tonapiResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("decode tonapi response: %w", err)
	}

	candidates := make([]Candidate, 0, len(decoded.Transactions))
	for _, tx := range decoded.Transactions {
		amount, err := parseAmount(tx.InMsg.Value)
		if err != nil {
			t.logger.Warn().Err(err).Str("hash", tx.Hash).Msg("skipping transaction with unparseable value")
			continue
		}

		// Some indexer versions omit in_msg.destination; the owning
		// account is the destination in that case.
		dest := tx.InMsg.Destination.Address
		if dest == "" {
			dest = tx.Account.Address
		}

		candidates = append(candidates, Candidate{
			Hash:    tx.Hash,
			Dest:    dest,
			Account: tx.Account.Address,
			Source:  tx.InMsg.Source.Address,
			Amount:  amount,
			At:      time.Unix(tx.Utime, 0).UTC(),
		})
	}
	return candidates, nil
}

var _ Provider = (*TonAPI)(nil)
