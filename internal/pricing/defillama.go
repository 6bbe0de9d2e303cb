package pricing

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"treasury-ledger/internal/upstream"
)

const llamaService = "prices"

// DefiLlama search widths for current and historical lookups.
const (
	currentSearchWidth    = "4h"
	historicalSearchWidth = "12h"
)

// DefiLlama implements Provider against the coins.llama.fi price API,
// addressing tokens as coingecko:<id>.
type DefiLlama struct {
	client  *upstream.Client
	baseURL string
}

// NewDefiLlama creates a DefiLlama provider for baseURL (e.g. https://coins.llama.fi).
func NewDefiLlama(client *upstream.Client, baseURL string) (*DefiLlama, error) {
	if baseURL == "" {
		return nil, upstream.ConfigError(llamaService, errors.New("base url is empty"))
	}
	return &DefiLlama{client: client, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

var _ Provider = (*DefiLlama)(nil)

type llamaCoin struct {
	Price decimal.Decimal `json:"price"`
}

type llamaResponse struct {
	Coins map[string]llamaCoin `json:"coins"`
}

func coinKey(id string) string {
	return "coingecko:" + id
}

// Current returns the latest price of each id.
func (d *DefiLlama) Current(ctx context.Context, ids []string) (map[string]decimal.Decimal, error) {
	if len(ids) == 0 {
		return map[string]decimal.Decimal{}, nil
	}
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	keys := make([]string, len(sorted))
	for i, id := range sorted {
		keys[i] = coinKey(id)
	}

	var resp llamaResponse
	endpoint := d.baseURL + "/prices/current/" + strings.Join(keys, ",")
	if err := d.client.GetJSON(ctx, llamaService, endpoint, url.Values{"searchWidth": {currentSearchWidth}}, &resp); err != nil {
		return nil, err
	}

	prices := make(map[string]decimal.Decimal, len(sorted))
	for _, id := range sorted {
		if coin, ok := resp.Coins[coinKey(id)]; ok {
			prices[id] = coin.Price
		}
	}
	return prices, nil
}

// Historical returns the price of id closest to at within a 12h search window.
func (d *DefiLlama) Historical(ctx context.Context, id string, at time.Time) (decimal.Decimal, error) {
	var resp llamaResponse
	endpoint := fmt.Sprintf("%s/prices/historical/%s/%s", d.baseURL, strconv.FormatInt(at.Unix(), 10), coinKey(id))
	if err := d.client.GetJSON(ctx, llamaService, endpoint, url.Values{"searchWidth": {historicalSearchWidth}}, &resp); err != nil {
		return decimal.Zero, err
	}
	return resp.Coins[coinKey(id)].Price, nil
}
