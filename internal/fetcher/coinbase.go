package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	exchangeRatesPath = "/exchange-rates"
	defaultBaseURL    = "https://api.coinbase.com/v2"
	defaultJSONPath   = "$.data.rates.USD"
)

// CoinbaseOptions parameterise the exchange-rates fetcher.
type CoinbaseOptions struct {
	BaseURL   string
	Currency  string
	JSONPath  string
	Timeout   time.Duration
	UserAgent string
}

// Coinbase fetches a spot quote from the Coinbase exchange-rates endpoint.
type Coinbase struct {
	opts    CoinbaseOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewCoinbase constructs a Coinbase fetcher.
func NewCoinbase(opts CoinbaseOptions, logger zerolog.Logger) *Coinbase {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if opts.Currency == "" {
		opts.Currency = "BTC"
	}
	if opts.JSONPath == "" {
		opts.JSONPath = defaultJSONPath
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Coinbase{
		opts:    opts,
		logger:  logger.With().Str("component", "coinbase_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchQuote retrieves the exchange rates document and extracts the quote.
func (c *Coinbase) FetchQuote(ctx context.Context) (decimal.Decimal, error) {
	endpoint := c.baseURL + exchangeRatesPath + "?currency=" + url.QueryEscape(c.opts.Currency)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: build request: %v", ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "rateledger/1.0")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, parseHTTPError(resp.StatusCode, payload)
	}

	rate, err := extractQuote(payload, c.opts.JSONPath)
	if err != nil {
		return decimal.Decimal{}, err
	}
	c.logger.Debug().Str("currency", c.opts.Currency).Str("rate", rate.String()).Msg("quote fetched")
	return rate, nil
}

// extractQuote evaluates path against payload. jsonpath may answer with a
// single value or a one-element list; both are accepted.
func extractQuote(payload []byte, path string) (decimal.Decimal, error) {
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	val, err := jsonpath.Get(path, doc)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: evaluate %q: %v", ErrDecode, path, err)
	}
	if list, ok := val.([]any); ok {
		if len(list) == 0 {
			return decimal.Decimal{}, fmt.Errorf("%w: %q matched nothing", ErrDecode, path)
		}
		val = list[0]
	}

	var rate decimal.Decimal
	switch v := val.(type) {
	case string:
		rate, err = decimal.NewFromString(v)
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("%w: parse %q: %v", ErrDecode, v, err)
		}
	case float64:
		rate = decimal.NewFromFloat(v)
	default:
		return decimal.Decimal{}, fmt.Errorf("%w: %q is %T, not a number", ErrDecode, path, val)
	}

	if !rate.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%w: non-positive rate %s", ErrDecode, rate)
	}
	return rate, nil
}

type errorResponse struct {
	Errors []struct {
		ID      string `json:"id"`
		Message string `json:"message"`
	} `json:"errors"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil && len(apiErr.Errors) > 0 {
		if msg := apiErr.Errors[0].Message; msg != "" {
			return fmt.Errorf("%w: coinbase api error (%d): %s", ErrTransport, status, msg)
		}
		if id := apiErr.Errors[0].ID; id != "" {
			return fmt.Errorf("%w: coinbase api error (%d): %s", ErrTransport, status, id)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("%w: coinbase api error (%d): %s", ErrTransport, status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("%w: coinbase api error (%d)", ErrTransport, status)
}

var _ RateSource = (*Coinbase)(nil)
