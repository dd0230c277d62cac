package bitcoin

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"bettabuckz/internal/payments"
)

// ChainTx is one transaction paying into a watched address.
type ChainTx struct {
	Hash          string
	Address       string
	AmountSats    int64
	Confirmations int
}

// apiTx is the BlockCypher transaction shape shared by the REST API and the
// websocket feed.
type apiTx struct {
	Hash          string `json:"hash"`
	Confirmations int    `json:"confirmations"`
	Outputs       []struct {
		Value     int64    `json:"value"`
		Addresses []string `json:"addresses"`
	} `json:"outputs"`
}

// paidTo sums the outputs of tx that pay address.
func (tx apiTx) paidTo(address string) int64 {
	var total int64
	for _, out := range tx.Outputs {
		for _, a := range out.Addresses {
			if a == address {
				total += out.Value
				break
			}
		}
	}
	return total
}

// ChainClient reads address activity from a BlockCypher-compatible API.
type ChainClient struct {
	client  *payments.Client
	baseURL string
	token   string
}

func NewChainClient(client *payments.Client, baseURL, token string) *ChainClient {
	return &ChainClient{client: client, baseURL: strings.TrimRight(baseURL, "/"), token: token}
}

// AddressTransactions lists transactions with at least one output to address.
func (c *ChainClient) AddressTransactions(ctx context.Context, address string) ([]ChainTx, error) {
	var body struct {
		Txs []apiTx `json:"txs"`
	}
	endpoint := c.endpoint("addrs/" + url.PathEscape(address) + "/full")
	if err := c.client.DoJSON(ctx, http.MethodGet, endpoint, nil, nil, &body); err != nil {
		return nil, fmt.Errorf("address transactions: %w", err)
	}
	txs := make([]ChainTx, 0, len(body.Txs))
	for _, tx := range body.Txs {
		amount := tx.paidTo(address)
		if amount <= 0 {
			continue
		}
		txs = append(txs, ChainTx{Hash: tx.Hash, Address: address, AmountSats: amount, Confirmations: tx.Confirmations})
	}
	return txs, nil
}

func (c *ChainClient) Confirmations(ctx context.Context, txHash string) (int, error) {
	var body apiTx
	if err := c.client.DoJSON(ctx, http.MethodGet, c.endpoint("txs/"+url.PathEscape(txHash)), nil, nil, &body); err != nil {
		return 0, fmt.Errorf("transaction confirmations: %w", err)
	}
	return body.Confirmations, nil
}

func (c *ChainClient) endpoint(path string) string {
	endpoint := c.baseURL + "/" + path
	if c.token != "" {
		endpoint += "?token=" + url.QueryEscape(c.token)
	}
	return endpoint
}
