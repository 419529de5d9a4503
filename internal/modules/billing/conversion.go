package billing

import (
	"context"

	"github.com/aristath/subwatch/internal/modules/currency"
	"github.com/shopspring/decimal"
)

type quoteResult struct {
	err   error
	quote currency.RateQuote
}

// conversion memoizes one quote per source currency for a single aggregation
type conversion struct {
	ctx      context.Context
	engine   *Engine
	quotes   map[string]quoteResult
	target   string
	degraded bool
}

func (e *Engine) newConversion(ctx context.Context, target string) *conversion {
	return &conversion{
		ctx:    ctx,
		engine: e,
		quotes: make(map[string]quoteResult),
		target: target,
	}
}

// apply converts amount from the given currency into the target.
// When no rate can be obtained the unconverted amount is returned and the result is degraded.
func (c *conversion) apply(amount decimal.Decimal, from string) decimal.Decimal {
	if from == c.target {
		return amount
	}

	result, ok := c.quotes[from]
	if !ok {
		quote, err := c.engine.converter.Quote(c.ctx, from, c.target)
		result = quoteResult{quote: quote, err: err}
		c.quotes[from] = result
	}

	if result.err != nil {
		c.degraded = true
		c.engine.log.Warn().
			Err(result.err).
			Str("from", from).
			Str("to", c.target).
			Str("amount", amount.String()).
			Msg("Conversion failed - using unconverted amount")
		return amount
	}
	if result.quote.Degraded() {
		c.degraded = true
	}
	return currency.ApplyRate(amount, result.quote.Rate)
}
