package pricing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treasury-ledger/internal/upstream"
)

func newTestLlama(t *testing.T, handler http.HandlerFunc) *DefiLlama {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := upstream.NewClient(upstream.WithRetryDelay(time.Millisecond), upstream.WithMaxDelay(time.Millisecond))
	d, err := NewDefiLlama(client, srv.URL+"/")
	require.NoError(t, err)
	return d
}

func TestDefiLlama_Current(t *testing.T) {
	d := newTestLlama(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/prices/current/coingecko:ethereum,coingecko:scroll", r.URL.Path)
		assert.Equal(t, "4h", r.URL.Query().Get("searchWidth"))
		w.Write([]byte(`{"coins":{"coingecko:ethereum":{"price":3012.55,"symbol":"ETH"}}}`))
	})

	prices, err := d.Current(context.Background(), []string{"scroll", "ethereum"})
	require.NoError(t, err)
	require.Len(t, prices, 1)
	assert.Equal(t, "3012.55", prices["ethereum"].String())
}

func TestDefiLlama_Historical(t *testing.T) {
	at := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	d := newTestLlama(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/prices/historical/1709640000/coingecko:scroll", r.URL.Path)
		assert.Equal(t, "12h", r.URL.Query().Get("searchWidth"))
		w.Write([]byte(`{"coins":{"coingecko:scroll":{"price":0.92}}}`))
	})

	price, err := d.Historical(context.Background(), "scroll", at)
	require.NoError(t, err)
	assert.Equal(t, "0.92", price.String())
}

func TestDefiLlama_HistoricalMissingCoin(t *testing.T) {
	d := newTestLlama(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"coins":{}}`))
	})

	price, err := d.Historical(context.Background(), "nothing", time.Unix(0, 0))
	require.NoError(t, err)
	assert.True(t, price.IsZero())
}

func TestDefiLlama_PermanentError(t *testing.T) {
	d := newTestLlama(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := d.Current(context.Background(), []string{"ethereum"})
	require.Error(t, err)
	assert.Equal(t, upstream.KindPermanent, upstream.KindOf(err))
}

func TestNewDefiLlama_EmptyURL(t *testing.T) {
	_, err := NewDefiLlama(upstream.NewClient(), "")
	require.Error(t, err)
	assert.Equal(t, upstream.KindConfig, upstream.KindOf(err))
}
