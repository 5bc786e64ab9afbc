package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sample is one accepted quote and the moment it was observed.
type Sample struct {
	Value      decimal.Decimal
	ObservedAt time.Time
}

// NewSample builds a Sample, normalising the timestamp to UTC.
func NewSample(value decimal.Decimal, observedAt time.Time) Sample {
	return Sample{Value: value, ObservedAt: observedAt.UTC()}
}
