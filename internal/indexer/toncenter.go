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

// TagToncenter identifies the secondary indexer in verification results.
const TagToncenter = "toncenter"

// ToncenterOptions parameterise the Toncenter adapter.
type ToncenterOptions struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Toncenter queries the toncenter.com HTTP API. The public endpoint works
// without a key, so this adapter always reports itself supported; a
// configured key is sent along for the higher rate limit tier.
type Toncenter struct {
	opts    ToncenterOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewToncenter constructs the secondary indexer adapter.
func NewToncenter(opts ToncenterOptions, logger zerolog.Logger) *Toncenter {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://toncenter.com"
	}

	return &Toncenter{
		opts:    opts,
		logger:  logger.With().Str("component", "toncenter").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Tag returns the provider tag.
func (t *Toncenter) Tag() string { return TagToncenter }

// Supports always reports true; Toncenter does not require credentials.
func (t *Toncenter) Supports() bool { return true }

type toncenterResponse struct {
	OK     bool `json:"ok"`
	Result []struct {
		Utime         int64 `json:"utime"`
		TransactionID struct {
			Hash string `json:"hash"`
		} `json:"transaction_id"`
		InMsg struct {
			Source      string `json:"source"`
			Destination string `json:"destination"`
			// Older deployments return value as a number, newer ones
			// as a decimal string.
			Value json.Number `json:"value"`
		} `json:"in_msg"`
	} `json:"result"`
}

// Recent returns the most recent inbound transactions for an address.
func (t *Toncenter) Recent(ctx context.Context, account string, limit int) ([]Candidate, error) {
	endpoint := fmt.Sprintf("%s/api/v2/getTransactions?address=%s&limit=%d",
		t.baseURL, url.QueryEscape(account), limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if t.opts.APIKey != "" {
		req.Header.Set("X-API-Key", t.opts.APIKey)
	}

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
		return nil, fmt.Errorf("toncenter error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var decoded toncenterResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("decode toncenter response: %w", err)
	}
	if !decoded.OK {
		return nil, fmt.Errorf("toncenter returned ok=false")
	}

	candidates := make([]Candidate, 0, len(decoded.Result))
	for _, tx := range decoded.Result {
		amount, err := parseAmount(tx.InMsg.Value)
		if err != nil {
			t.logger.Warn().Err(err).Str("hash", tx.TransactionID.Hash).Msg("skipping transaction with unparseable value")
			continue
		}

		dest := tx.InMsg.Destination
		if dest == "" {
			dest = account
		}

		candidates = append(candidates, Candidate{
			Hash:    tx.TransactionID.Hash,
			Dest:    dest,
			Account: account,
			Source:  tx.InMsg.Source,
			Amount:  amount,
			At:      time.Unix(tx.Utime, 0).UTC(),
		})
	}
	return candidates, nil
}

var _ Provider = (*Toncenter)(nil)
