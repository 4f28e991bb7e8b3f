package sdk

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/domain"
)

// modelPrice is the USD price per million tokens.
type modelPrice struct {
	input  decimal.Decimal
	output decimal.Decimal
}

// Matched by substring of the model name, first match wins.
var modelPrices = []struct {
	family string
	price  modelPrice
}{
	{"opus", modelPrice{decimal.NewFromInt(15), decimal.NewFromInt(75)}},
	{"sonnet", modelPrice{decimal.NewFromInt(3), decimal.NewFromInt(15)}},
	{"haiku-4", modelPrice{decimal.NewFromInt(1), decimal.NewFromInt(5)}},
	{"haiku", modelPrice{decimal.RequireFromString("0.80"), decimal.NewFromInt(4)}},
}

var (
	perMillion      = decimal.NewFromInt(1_000_000)
	cacheWriteRatio = decimal.RequireFromString("1.25")
	cacheReadRatio  = decimal.RequireFromString("0.10")
)

// EstimateCost prices usage for model. It returns nil when the model is unknown.
func EstimateCost(model string, usage *domain.Usage) *float64 {
	if usage == nil {
		return nil
	}
	name := strings.ToLower(model)
	for _, p := range modelPrices {
		if !strings.Contains(name, p.family) {
			continue
		}
		in := p.price.input.Mul(decimal.NewFromInt(usage.InputTokens))
		in = in.Add(p.price.input.Mul(cacheWriteRatio).Mul(decimal.NewFromInt(usage.CacheCreationInputTokens)))
		in = in.Add(p.price.input.Mul(cacheReadRatio).Mul(decimal.NewFromInt(usage.CacheReadInputTokens)))
		out := p.price.output.Mul(decimal.NewFromInt(usage.OutputTokens))
		cost := in.Add(out).Div(perMillion).Round(6).InexactFloat64()
		return &cost
	}
	return nil
}
