package fetcher

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrTransport marks a quote that could not be reached or timed out.
	ErrTransport = errors.New("fetcher: transport error")
	// ErrDecode marks a malformed quote payload.
	ErrDecode = errors.New("fetcher: decode error")
)

// RateSource performs one fetch of the current quote per call.
// Retries are left to the caller's scheduling.
type RateSource interface {
	FetchQuote(ctx context.Context) (decimal.Decimal, error)
}

// Static always returns the same quote.
type Static struct {
	Rate decimal.Decimal
}

// FetchQuote returns the configured rate.
func (s Static) FetchQuote(ctx context.Context) (decimal.Decimal, error) {
	return s.Rate, nil
}

var _ RateSource = Static{}
