package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"lol-dashboard/internal/config"
	"lol-dashboard/internal/domain"

	"github.com/valyala/fasthttp"
)

// RiotClient talks to the match-data provider: account resolution, match
// history, aggregate stats and live-game status.
type RiotClient struct {
	baseURL     string
	apiKey      string
	client      *fasthttp.Client
	rateLimitMu sync.RWMutex
	rateLimit   RateLimitInfo
}

type RateLimitInfo struct {
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`

	// seconds until reset
	Reset int `json:"reset"`

	UpdatedAt time.Time `json:"updated_at"`
}

func NewRiotClient(cfg *config.Config) *RiotClient {
	return &RiotClient{
		baseURL: cfg.ProviderURL,
		apiKey:  cfg.RiotAPIKey,
		client: &fasthttp.Client{
			MaxConnsPerHost:     100,
			ReadTimeout:         10 * time.Second,
			WriteTimeout:        10 * time.Second,
			MaxIdleConnDuration: 1 * time.Minute,
		},
		rateLimit: RateLimitInfo{
			Limit:     100,
			Remaining: 100,
			Reset:     60,
			UpdatedAt: time.Now(),
		},
	}
}

func (c *RiotClient) GetRateLimitInfo() RateLimitInfo {
	c.rateLimitMu.RLock()
	defer c.rateLimitMu.RUnlock()
	return c.rateLimit
}

func (c *RiotClient) updateRateLimit(resp *fasthttp.Response) {
	c.rateLimitMu.Lock()
	defer c.rateLimitMu.Unlock()

	if limit := string(resp.Header.Peek("X-Ratelimit-Limit")); limit != "" {
		if val, err := strconv.Atoi(limit); err == nil {
			c.rateLimit.Limit = val
		}
	}
	if remaining := string(resp.Header.Peek("X-Ratelimit-Remaining")); remaining != "" {
		if val, err := strconv.Atoi(remaining); err == nil {
			c.rateLimit.Remaining = val
		}
	}
	if reset := string(resp.Header.Peek("X-Ratelimit-Reset")); reset != "" {
		if val, err := strconv.Atoi(reset); err == nil {
			c.rateLimit.Reset = val
		}
	}
	c.rateLimit.UpdatedAt = time.Now()
}

func (c *RiotClient) get(ctx context.Context, endpoint string) ([]byte, int, error) {
	return do(ctx, c.client, fasthttp.MethodGet, c.baseURL+endpoint, c.apiKey, nil, c.updateRateLimit)
}

type AccountResponse struct {
	Puuid         string `json:"puuid"`
	GameName      string `json:"game_name"`
	TagLine       string `json:"tag_line"`
	Region        string `json:"region"`
	ProfileIconID int    `json:"profile_icon_id"`
	SummonerLevel int    `json:"summoner_level"`
	Rank          string `json:"rank"`
}

// ResolveHandle maps a Riot ID to its stable PUUID plus profile summary.
// This is the most rate-limit-expensive provider call.
func (c *RiotClient) ResolveHandle(ctx context.Context, name, tag, region string) (*AccountResponse, error) {
	endpoint := fmt.Sprintf("/lol/account/v1/by-riot-id/%s/%s?region=%s",
		url.PathEscape(name), url.PathEscape(tag), url.QueryEscape(region))
	body, status, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return decode[AccountResponse](body, status)
}

type ProviderMatch struct {
	MatchID     string    `json:"match_id"`
	Champion    string    `json:"champion"`
	Queue       string    `json:"queue"`
	Win         bool      `json:"win"`
	Kills       int       `json:"kills"`
	Deaths      int       `json:"deaths"`
	Assists     int       `json:"assists"`
	DamageDealt int       `json:"damage_dealt"`
	DamageTaken int       `json:"damage_taken"`
	GoldEarned  int       `json:"gold_earned"`
	DurationSec int       `json:"duration_sec"`
	StartedAt   time.Time `json:"started_at"`
}

type MatchesResponse struct {
	Data []ProviderMatch `json:"data"`
}

// ListMatches returns one page of finished games, most recent first.
func (c *RiotClient) ListMatches(ctx context.Context, puuid, region string, offset, limit int) (*MatchesResponse, error) {
	endpoint := fmt.Sprintf("/lol/match/v1/by-puuid/%s?region=%s&offset=%d&limit=%d",
		url.PathEscape(puuid), url.QueryEscape(region), offset, limit)
	body, status, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return decode[MatchesResponse](body, status)
}

type StatsResponse struct {
	TotalMatches int     `json:"total_matches"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	AvgKills     float64 `json:"avg_kills"`
	AvgDeaths    float64 `json:"avg_deaths"`
	AvgAssists   float64 `json:"avg_assists"`
}

func (c *RiotClient) GetAggregateStats(ctx context.Context, puuid, region string) (*StatsResponse, error) {
	endpoint := fmt.Sprintf("/lol/stats/v1/by-puuid/%s?region=%s",
		url.PathEscape(puuid), url.QueryEscape(region))
	body, status, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return decode[StatsResponse](body, status)
}

type ActiveGameResponse struct {
	Active        bool   `json:"active"`
	Queue         string `json:"queue,omitempty"`
	GameLengthSec int    `json:"game_length_sec,omitempty"`
}

func (c *RiotClient) GetActiveGame(ctx context.Context, puuid, region string) (*ActiveGameResponse, error) {
	endpoint := fmt.Sprintf("/lol/active-game/v1/by-puuid/%s?region=%s",
		url.PathEscape(puuid), url.QueryEscape(region))
	body, status, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return decode[ActiveGameResponse](body, status)
}

// ToRecord converts a provider match into the domain shape with analysis
// fields zeroed; the analysis controller projects job state on top later.
func (m ProviderMatch) ToRecord() domain.MatchRecord {
	return domain.MatchRecord{
		MatchID:       m.MatchID,
		Champion:      m.Champion,
		Queue:         m.Queue,
		Win:           m.Win,
		Kills:         m.Kills,
		Deaths:        m.Deaths,
		Assists:       m.Assists,
		DamageDealt:   m.DamageDealt,
		DamageTaken:   m.DamageTaken,
		GoldEarned:    m.GoldEarned,
		DurationSec:   m.DurationSec,
		StartedAt:     m.StartedAt,
		AnalysisState: domain.AnalysisNotStarted,
	}
}
