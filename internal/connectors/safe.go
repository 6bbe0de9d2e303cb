package connectors

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"treasury-ledger/internal/upstream"
)

const safeService = "safe"

// DefaultSafePageSize is the number of most recent executed proposals requested.
const DefaultSafePageSize = 100

// SignerConnector reads executed multisig proposals from the Safe transaction service.
type SignerConnector struct {
	client  *upstream.Client
	baseURL string
	limit   int
	logger  zerolog.Logger
}

// NewSignerConnector creates a SignerConnector for baseURL (e.g. https://safe-transaction-scroll.safe.global/api/v1).
func NewSignerConnector(client *upstream.Client, baseURL string, logger zerolog.Logger) (*SignerConnector, error) {
	if baseURL == "" {
		return nil, upstream.ConfigError(safeService, errors.New("base url is empty"))
	}
	return &SignerConnector{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		limit:   DefaultSafePageSize,
		logger:  logger.With().Str("component", "connector").Str("kind", "signers").Logger(),
	}, nil
}

type safeConfirmation struct {
	Owner string `json:"owner"`
}

type safeMultisigTx struct {
	TransactionHash string             `json:"transactionHash"`
	Confirmations   []safeConfirmation `json:"confirmations"`
}

type safePage struct {
	Results []safeMultisigTx `json:"results"`
}

// FetchSigners returns tx hash → sorted, comma-joined confirming owners for the
// executed proposals of the Safe at address. Proposals without a hash or
// confirmations are skipped.
func (c *SignerConnector) FetchSigners(ctx context.Context, address string) (map[string]string, error) {
	q := url.Values{}
	q.Set("executed", "true")
	q.Set("limit", strconv.Itoa(c.limit))
	q.Set("ordering", "-executionDate")

	var page safePage
	endpoint := c.baseURL + "/safes/" + url.PathEscape(address) + "/multisig-transactions/"
	if err := c.client.GetJSON(ctx, safeService, endpoint, q, &page); err != nil {
		c.logger.Warn().Err(err).Str("address", address).Msg("safe fetch failed")
		return nil, err
	}

	signers := make(map[string]string, len(page.Results))
	for _, tx := range page.Results {
		if tx.TransactionHash == "" || len(tx.Confirmations) == 0 {
			continue
		}
		owners := make([]string, 0, len(tx.Confirmations))
		for _, conf := range tx.Confirmations {
			owners = append(owners, conf.Owner)
		}
		sort.Strings(owners)
		signers[tx.TransactionHash] = strings.Join(owners, ",")
	}
	return signers, nil
}
