package price

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"fundscope/internal/model"
)

const defaultTimeout = 10 * time.Second

// Client values token totals with a USD quote service.
type Client struct {
	http *resty.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := resty.New()
	c.SetTimeout(timeout)
	c.SetBaseURL(baseURL)
	c.SetHeader("Accept", "application/json")
	return &Client{http: c}
}

// Quotes fetches GET /prices?symbols=A,B. Symbols are upper-cased.
func (c *Client) Quotes(ctx context.Context, symbols ...string) (map[string]decimal.Decimal, error) {
	symbols = lo.Uniq(lo.FilterMap(symbols, func(s string, _ int) (string, bool) {
		s = strings.ToUpper(strings.TrimSpace(s))
		return s, s != ""
	}))
	if len(symbols) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	raw := map[string]string{}
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("symbols", strings.Join(symbols, ",")).
		SetResult(&raw).
		Get("/prices")
	if err != nil {
		return nil, fmt.Errorf("get prices: %w", err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("get prices: %d %s", res.StatusCode(), res.Status())
	}

	out := make(map[string]decimal.Decimal, len(raw))
	for symbol, value := range raw {
		d, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("price for %s: %w", symbol, err)
		}
		out[strings.ToUpper(symbol)] = d
	}
	return out, nil
}

// USDValue sums total × price. Symbols without a quote contribute zero.
func (c *Client) USDValue(ctx context.Context, totals ...model.TotalFund) (decimal.Decimal, error) {
	quotes, err := c.Quotes(ctx, lo.Map(totals, func(t model.TotalFund, _ int) string { return t.TokenSymbol })...)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return lo.Reduce(totals, func(sum decimal.Decimal, t model.TotalFund, _ int) decimal.Decimal {
		q, ok := quotes[strings.ToUpper(t.TokenSymbol)]
		if !ok {
			return sum
		}
		return sum.Add(t.TotalAmount.Mul(q))
	}, decimal.Zero), nil
}
