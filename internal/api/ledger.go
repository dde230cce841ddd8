package api

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"lol-dashboard/internal/config"

	"github.com/valyala/fasthttp"
)

// LedgerClient talks to the credit ledger service. Its consume call is the
// single point of truth for whether a credit was spent.
type LedgerClient struct {
	baseURL string
	client  *fasthttp.Client
}

func NewLedgerClient(cfg *config.Config) *LedgerClient {
	return &LedgerClient{
		baseURL: cfg.LedgerURL,
		client: &fasthttp.Client{
			MaxConnsPerHost: 20,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
		},
	}
}

type BalanceResponse struct {
	Balance int `json:"balance"`
}

func (c *LedgerClient) GetBalance(ctx context.Context, userID string) (int, error) {
	endpoint := fmt.Sprintf("%s/credits/%s", c.baseURL, url.PathEscape(userID))
	body, status, err := do(ctx, c.client, fasthttp.MethodGet, endpoint, "", nil, nil)
	if err != nil {
		return 0, err
	}
	resp, err := decode[BalanceResponse](body, status)
	if err != nil {
		return 0, err
	}
	return resp.Balance, nil
}

type ConsumeResponse struct {
	Success          bool `json:"success"`
	RemainingBalance int  `json:"remaining_balance"`
}

// ConsumeCredit spends one credit for userID. An empty balance comes back as
// ErrInsufficientCredits (the ledger answers 402).
func (c *LedgerClient) ConsumeCredit(ctx context.Context, userID string) (*ConsumeResponse, error) {
	endpoint := fmt.Sprintf("%s/credits/%s/consume", c.baseURL, url.PathEscape(userID))
	body, status, err := do(ctx, c.client, fasthttp.MethodPost, endpoint, "", nil, nil)
	if err != nil {
		return nil, err
	}
	return decode[ConsumeResponse](body, status)
}
