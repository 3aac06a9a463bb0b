package price

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tondonate/internal/metrics"
)

const coinGeckoID = "the-open-network"

// ErrPriceUnavailable indicates the price index was unreachable or returned
// an unusable rate. The stale cached value is never served in its place;
// callers offer a manual TON-amount entry path instead.
var ErrPriceUnavailable = errors.New("price: rate unavailable")

// minConverted is the floor applied when converting fiat to TON.
var minConverted = decimal.NewFromFloat(0.001)

// Options parameterise the oracle.
type Options struct {
	BaseURL   string
	Currency  string
	CacheTTL  time.Duration
	Timeout   time.Duration
	UserAgent string
}

// Oracle fetches the fiat/TON rate from CoinGecko and caches it in a single
// slot. A cached rate younger than the TTL is returned without a network
// call; two concurrent callers observing a stale slot may both refresh it,
// which costs one redundant fetch and is deliberately not locked out.
type Oracle struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string

	mu        sync.Mutex
	rate      decimal.Decimal
	fetchedAt time.Time

	now func() time.Time
}

// New constructs a price oracle.
func New(opts Options, logger zerolog.Logger) *Oracle {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Minute
	}
	if opts.Currency == "" {
		opts.Currency = "ils"
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}

	return &Oracle{
		opts:    opts,
		logger:  logger.With().Str("component", "price_oracle").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		now:     time.Now,
	}
}

// Rate returns the fiat price of 1 TON in the configured currency.
func (o *Oracle) Rate(ctx context.Context) (decimal.Decimal, error) {
	if cached, ok := o.cached(); ok {
		metrics.PriceCache("hit")
		return cached, nil
	}

	rate, err := o.fetch(ctx)
	if err != nil {
		metrics.PriceCache("error")
		return decimal.Decimal{}, err
	}

	o.mu.Lock()
	o.rate = rate
	o.fetchedAt = o.now()
	o.mu.Unlock()

	metrics.PriceCache("refresh")
	o.logger.Debug().Str("rate", rate.String()).Str("currency", o.opts.Currency).Msg("price refreshed")
	return rate, nil
}

// ConvertFiat translates a fiat amount into TON using the current rate,
// rounded to milli-TON with a 0.001 TON floor.
func (o *Oracle) ConvertFiat(ctx context.Context, fiat decimal.Decimal) (decimal.Decimal, error) {
	if fiat.Sign() <= 0 {
		return decimal.Decimal{}, fmt.Errorf("price: fiat amount must be positive")
	}

	rate, err := o.Rate(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}

	ton := fiat.DivRound(rate, 3)
	if ton.LessThan(minConverted) {
		ton = minConverted
	}
	return ton, nil
}

func (o *Oracle) cached() (decimal.Decimal, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fetchedAt.IsZero() || o.isStale(o.now()) {
		return decimal.Decimal{}, false
	}
	return o.rate, true
}

// isStale must be called with mu held.
func (o *Oracle) isStale(now time.Time) bool {
	return now.Sub(o.fetchedAt) >= o.opts.CacheTTL
}

func (o *Oracle) fetch(ctx context.Context) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=%s",
		o.baseURL, coinGeckoID, url.QueryEscape(strings.ToLower(o.opts.Currency)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(o.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, fmt.Errorf("%w: status %d", ErrPriceUnavailable, resp.StatusCode)
	}

	var payload map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: decode: %v", ErrPriceUnavailable, err)
	}

	raw, ok := payload[coinGeckoID][strings.ToLower(o.opts.Currency)]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: currency %q missing from response", ErrPriceUnavailable, o.opts.Currency)
	}
	if raw <= 0 || math.IsNaN(raw) || math.IsInf(raw, 0) {
		return decimal.Decimal{}, fmt.Errorf("%w: unusable rate %v", ErrPriceUnavailable, raw)
	}

	return decimal.NewFromFloat(raw), nil
}
