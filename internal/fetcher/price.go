package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	priceSource     = "price"
	simplePricePath = "/simple/price"
)

// PriceOptions parameterise the reference price fetcher.
type PriceOptions struct {
	BaseURL   string
	Asset     string
	Currency  string
	Timeout   time.Duration
	UserAgent string
}

// Price fetches a spot price from the CoinGecko simple price API.
type Price struct {
	opts    PriceOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewPrice constructs a price fetcher.
func NewPrice(opts PriceOptions, logger zerolog.Logger) *Price {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}
	if opts.Asset == "" {
		opts.Asset = "bitcoin"
	}
	if opts.Currency == "" {
		opts.Currency = "usd"
	}

	return &Price{
		opts:    opts,
		logger:  logger.With().Str("component", "price_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchPrice retrieves the current asset price in the configured currency.
func (p *Price) FetchPrice(ctx context.Context) (decimal.Decimal, error) {
	query := url.Values{}
	query.Set("ids", p.opts.Asset)
	query.Set("vs_currencies", p.opts.Currency)
	endpoint := p.baseURL + simplePricePath + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Decimal{}, fetchErr(priceSource, err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(p.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "whalewatcher/1.0")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, fetchErr(priceSource, err)
	}
	defer resp.Body.Close()

	payloadBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Decimal{}, fetchErr(priceSource, err)
	}

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, fetchErr(priceSource, parseHTTPError(resp.StatusCode, payloadBytes))
	}

	price, err := p.decodePrice(payloadBytes)
	if err != nil {
		return decimal.Decimal{}, fetchErr(priceSource, err)
	}
	return price, nil
}

// decodePrice expects {"<asset>": {"<currency>": <number>}}.
func (p *Price) decodePrice(payload []byte) (decimal.Decimal, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var body map[string]map[string]any
	if err := dec.Decode(&body); err != nil {
		return decimal.Decimal{}, fmt.Errorf("decode price response: %w", err)
	}

	quotes, ok := body[p.opts.Asset]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("price response missing asset %q", p.opts.Asset)
	}
	raw, ok := quotes[p.opts.Currency]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("price response missing currency %q", p.opts.Currency)
	}
	num, ok := raw.(json.Number)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("price for %s/%s is not numeric: %v", p.opts.Asset, p.opts.Currency, raw)
	}

	price, err := decimal.NewFromString(num.String())
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse price: %w", err)
	}
	if price.IsNegative() {
		return decimal.Decimal{}, errors.New("price returned negative")
	}
	return price, nil
}

type errorResponse struct {
	Error  string `json:"error"`
	Status struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Status.ErrorMessage != "" {
			return fmt.Errorf("coingecko api error (%d): %s", status, apiErr.Status.ErrorMessage)
		}
		if apiErr.Error != "" {
			return fmt.Errorf("coingecko api error (%d): %s", status, apiErr.Error)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("coingecko api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("coingecko api error (%d)", status)
}

var _ PriceFetcher = (*Price)(nil)
