package api

import (
	"context"
	"fmt"
	"time"

	"lol-dashboard/internal/config"
	"lol-dashboard/internal/domain"

	"github.com/valyala/fasthttp"
)

// ComputeClient submits analysis requests and blocks for the result. No read
// timeout: the compute service is trusted to answer or error eventually, and
// the caller holds the single in-flight slot for the match meanwhile.
type ComputeClient struct {
	baseURL string
	client  *fasthttp.Client
}

func NewComputeClient(cfg *config.Config) *ComputeClient {
	return &ComputeClient{
		baseURL: cfg.ComputeURL,
		client: &fasthttp.Client{
			MaxConnsPerHost: 10,
			WriteTimeout:    10 * time.Second,
		},
	}
}

type analysisRequest struct {
	MatchID string `json:"match_id"`
	Puuid   string `json:"puuid"`
	Region  string `json:"region"`
}

func (c *ComputeClient) SubmitAnalysis(ctx context.Context, matchID string, identity *domain.IdentityRecord) (*domain.AnalysisResult, error) {
	payload := analysisRequest{
		MatchID: matchID,
		Puuid:   identity.StableID,
		Region:  identity.Region,
	}
	endpoint := fmt.Sprintf("%s/analysis", c.baseURL)
	body, status, err := do(ctx, c.client, fasthttp.MethodPost, endpoint, "", payload, nil)
	if err != nil {
		return nil, err
	}
	return decode[domain.AnalysisResult](body, status)
}
