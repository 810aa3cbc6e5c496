package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"football-predictor/internal/config"

	"github.com/valyala/fasthttp"
)

// FootballClient talks to API-Football v3.
type FootballClient struct {
	baseURL     string
	apiKey      string
	client      *fasthttp.Client
	rateLimitMu sync.RWMutex
	rateLimit   RateLimitInfo
}

type RateLimitInfo struct {
	// per-day quota
	DailyLimit     int `json:"daily_limit"`
	DailyRemaining int `json:"daily_remaining"`

	// per-minute quota
	MinuteLimit     int `json:"minute_limit"`
	MinuteRemaining int `json:"minute_remaining"`

	UpdatedAt time.Time `json:"updated_at"`
}

func NewFootballClient(cfg *config.Config) *FootballClient {
	return newFootballClient(cfg.APIFootballBaseURL, cfg.APIFootballKey, &fasthttp.Client{
		MaxConnsPerHost:     16,
		ReadTimeout:         cfg.ProviderTimeout,
		WriteTimeout:        10 * time.Second,
		MaxIdleConnDuration: 1 * time.Minute,
	}, cfg.APIFootballDailyLimit)
}

func newFootballClient(baseURL, apiKey string, client *fasthttp.Client, dailyLimit int) *FootballClient {
	return &FootballClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  client,
		rateLimit: RateLimitInfo{
			DailyLimit:     dailyLimit,
			DailyRemaining: dailyLimit,
			UpdatedAt:      time.Now(),
		},
	}
}

func (c *FootballClient) GetRateLimitInfo() RateLimitInfo {
	c.rateLimitMu.RLock()
	defer c.rateLimitMu.RUnlock()
	return c.rateLimit
}

func (c *FootballClient) updateRateLimit(resp *fasthttp.Response) {
	c.rateLimitMu.Lock()
	defer c.rateLimitMu.Unlock()

	headerInt := func(name string, dst *int) {
		if v := string(resp.Header.Peek(name)); v != "" {
			if val, err := strconv.Atoi(v); err == nil {
				*dst = val
			}
		}
	}
	headerInt("X-Ratelimit-Requests-Limit", &c.rateLimit.DailyLimit)
	headerInt("X-Ratelimit-Requests-Remaining", &c.rateLimit.DailyRemaining)
	headerInt("X-Ratelimit-Limit", &c.rateLimit.MinuteLimit)
	headerInt("X-Ratelimit-Remaining", &c.rateLimit.MinuteRemaining)
	c.rateLimit.UpdatedAt = time.Now()
}

// GetFixturesByDate lists every fixture on a calendar day (YYYY-MM-DD).
func (c *FootballClient) GetFixturesByDate(ctx context.Context, date string) (*FixturesResponse, error) {
	u := fmt.Sprintf("%s/fixtures?date=%s", c.baseURL, url.QueryEscape(date))
	return doRequest[FixturesResponse](ctx, c, u)
}

// StatusError is a non-200 answer from the provider.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error: %d", e.StatusCode)
}

// DecodeError is a body that is not the JSON we expect.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode response: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func doRequest[T any](ctx context.Context, client *FootballClient, url string) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("x-apisports-key", client.apiKey)

	deadline, ok := ctx.Deadline()
	if ok {
		if err := client.client.DoDeadline(req, resp, deadline); err != nil {
			return nil, err
		}
	} else {
		if err := client.client.Do(req, resp); err != nil {
			return nil, err
		}
	}

	client.updateRateLimit(resp)

	if resp.StatusCode() != fasthttp.StatusOK {
		body := resp.Body()
		if len(body) > 256 {
			body = body[:256]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode(), Body: string(body)}
	}

	var result T
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, &DecodeError{Err: err}
	}
	return &result, nil
}

type FixturesResponse struct {
	Get        string            `json:"get"`
	Parameters map[string]string `json:"parameters"`
	// [] on success, an object keyed by field on failure
	Errors   json.RawMessage `json:"errors"`
	Results  int             `json:"results"`
	Paging   Paging          `json:"paging"`
	Response []FixtureItem   `json:"response"`
}

// ErrorMessages flattens the errors field, which the provider sends either as
// an array or as an object.
func (r *FixturesResponse) ErrorMessages() []string {
	if len(r.Errors) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(r.Errors, &list); err == nil {
		return list
	}
	var obj map[string]string
	if err := json.Unmarshal(r.Errors, &obj); err == nil {
		msgs := make([]string, 0, len(obj))
		for k, v := range obj {
			msgs = append(msgs, k+": "+v)
		}
		return msgs
	}
	return []string{string(r.Errors)}
}

type Paging struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

type FixtureItem struct {
	Fixture Fixture      `json:"fixture"`
	League  League       `json:"league"`
	Teams   FixtureTeams `json:"teams"`
	Goals   FixtureGoals `json:"goals"`
}

type Fixture struct {
	ID        int64         `json:"id"`
	Referee   *string       `json:"referee"`
	Timezone  string        `json:"timezone"`
	Date      string        `json:"date"`
	Timestamp int64         `json:"timestamp"`
	Status    FixtureStatus `json:"status"`
}

type FixtureStatus struct {
	Long    string `json:"long"`
	Short   string `json:"short"`
	Elapsed *int   `json:"elapsed"`
}

type League struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Country string `json:"country"`
	Season  int    `json:"season"`
	Round   string `json:"round"`
}

type FixtureTeams struct {
	Home Team `json:"home"`
	Away Team `json:"away"`
}

type Team struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type FixtureGoals struct {
	Home *int `json:"home"`
	Away *int `json:"away"`
}
