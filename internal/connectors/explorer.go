// Package connectors fetches and normalizes wallet activity from upstream services:
// an Etherscan-v2 compatible explorer for transfers and balances, and the Safe
// transaction service for multisig signers.
package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"treasury-ledger/internal/upstream"
)

const explorerService = "explorer"

// Explorer list parameters. endblock is the explorer's "latest" placeholder.
const (
	explorerEndBlock = "99999999"
	explorerPageSize = "10000"
)

// ExplorerConfig configures an Explorer.
type ExplorerConfig struct {
	BaseURL string // e.g. https://api.etherscan.io/v2/api
	APIKey  string // optional
	ChainID int64
}

// Explorer calls the account module of an Etherscan-v2 compatible API.
type Explorer struct {
	client *upstream.Client
	cfg    ExplorerConfig
}

// NewExplorer creates an Explorer. Returns a KindConfig error for a missing base URL or chain id.
func NewExplorer(client *upstream.Client, cfg ExplorerConfig) (*Explorer, error) {
	if cfg.BaseURL == "" {
		return nil, upstream.ConfigError(explorerService, errors.New("base url is empty"))
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, upstream.ConfigError(explorerService, fmt.Errorf("base url: %w", err))
	}
	if cfg.ChainID <= 0 {
		return nil, upstream.ConfigError(explorerService, errors.New("chain id must be positive"))
	}
	return &Explorer{client: client, cfg: cfg}, nil
}

// envelope is the explorer response wrapper.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// Check classifies a status "0" body. An empty result set is not a failure.
func (e *envelope) Check() error {
	if e.Status == "1" || e.noRecords() {
		return nil
	}
	detail := e.Message
	var text string
	if json.Unmarshal(e.Result, &text) == nil && text != "" {
		detail += ": " + text
	}
	if strings.Contains(strings.ToLower(detail), "invalid api key") {
		return upstream.NewPermanent(errors.New(detail))
	}
	return upstream.NewTransient(errors.New(detail))
}

func (e *envelope) noRecords() bool {
	msg := strings.ToLower(e.Message)
	return e.Status == "0" && (strings.HasPrefix(msg, "no transactions found") || strings.HasPrefix(msg, "no records found"))
}

// explorerTransfer is one txlist/tokentx/txlistinternal record. The explorer encodes every field as a string.
type explorerTransfer struct {
	BlockNumber     string `json:"blockNumber"`
	TimeStamp       string `json:"timeStamp"`
	Hash            string `json:"hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	ContractAddress string `json:"contractAddress"`
	TokenName       string `json:"tokenName"`
	TokenSymbol     string `json:"tokenSymbol"`
	TokenDecimal    string `json:"tokenDecimal"`
	GasUsed         string `json:"gasUsed"`
	GasPrice        string `json:"gasPrice"`
	IsError         string `json:"isError"`
}

func (e *Explorer) params(action, address string) url.Values {
	q := url.Values{}
	q.Set("chainid", strconv.FormatInt(e.cfg.ChainID, 10))
	q.Set("module", "account")
	q.Set("action", action)
	q.Set("address", address)
	if e.cfg.APIKey != "" {
		q.Set("apikey", e.cfg.APIKey)
	}
	return q
}

// ListTransfers returns the records of action for address from startBlock (inclusive), ascending.
func (e *Explorer) ListTransfers(ctx context.Context, action, address string, startBlock int64) ([]explorerTransfer, error) {
	q := e.params(action, address)
	q.Set("startblock", strconv.FormatInt(startBlock, 10))
	q.Set("endblock", explorerEndBlock)
	q.Set("sort", "asc")
	q.Set("offset", explorerPageSize)
	q.Set("page", "1")

	var env envelope
	if err := e.client.GetJSON(ctx, explorerService, e.cfg.BaseURL, q, &env); err != nil {
		return nil, err
	}
	if env.Status != "1" {
		return nil, nil
	}

	var records []explorerTransfer
	if err := json.Unmarshal(env.Result, &records); err != nil {
		return nil, &upstream.Error{Kind: upstream.KindPermanent, Service: explorerService, Err: fmt.Errorf("decode %s result: %w", action, err)}
	}
	return records, nil
}

// Balance returns the native balance of address in wei at the latest block.
func (e *Explorer) Balance(ctx context.Context, address string) (string, error) {
	q := e.params("balance", address)
	q.Set("tag", "latest")

	var env envelope
	if err := e.client.GetJSON(ctx, explorerService, e.cfg.BaseURL, q, &env); err != nil {
		return "", err
	}

	var wei string
	if env.Status != "1" || json.Unmarshal(env.Result, &wei) != nil || wei == "" {
		return "", &upstream.Error{Kind: upstream.KindPermanent, Service: explorerService, Err: fmt.Errorf("unexpected balance result: %s", string(env.Result))}
	}
	return wei, nil
}
