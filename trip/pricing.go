package trip

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// PricingStrategy computes the charge for a ride. Strategies are
// referenced by name on the trip record so the rate in force at unlock
// time is the one billed at return time.
type PricingStrategy interface {
	Name() string
	Cost(duration time.Duration) decimal.Decimal
}

// PricingStandard is the default strategy name.
const PricingStandard = "standard"

// StandardPricing charges a flat unlock fee plus a per-minute rate,
// with partial minutes rounded up.
type StandardPricing struct {
	BaseFee       decimal.Decimal
	PerMinuteRate decimal.Decimal
}

func NewStandardPricing() StandardPricing {
	return StandardPricing{
		BaseFee:       decimal.NewFromFloat(1.00),
		PerMinuteRate: decimal.NewFromFloat(0.50),
	}
}

func (p StandardPricing) Name() string { return PricingStandard }

func (p StandardPricing) Cost(duration time.Duration) decimal.Decimal {
	minutes := int64(math.Ceil(duration.Minutes()))
	if minutes < 0 {
		minutes = 0
	}
	return p.BaseFee.Add(p.PerMinuteRate.Mul(decimal.NewFromInt(minutes))).Round(2)
}

// StrategyByName resolves a stored strategy name. Unknown names fall back
// to standard pricing rather than failing a return.
func StrategyByName(name string) PricingStrategy {
	switch name {
	case PricingStandard:
		return NewStandardPricing()
	default:
		return NewStandardPricing()
	}
}
