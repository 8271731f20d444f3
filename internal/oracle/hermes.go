package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"stakecast/pkg/types"
)

// HermesSource reads prices from a Pyth Hermes-style HTTP service:
// GET /v2/updates/price/latest?ids[]=<feed>&parsed=true returns the most
// recent signed update for each requested feed, with the parsed price
// attached. Requests are rate-limited and automatically retried on 5xx.
type HermesSource struct {
	http   *resty.Client
	rl     *TokenBucket
	logger *slog.Logger
}

// hermesResponse is the JSON shape returned by /v2/updates/price/latest.
type hermesResponse struct {
	Parsed []struct {
		ID    string `json:"id"`
		Price struct {
			Price       string `json:"price"` // fixed-point integer as string
			Conf        string `json:"conf"`
			Expo        int32  `json:"expo"`
			PublishTime int64  `json:"publish_time"` // unix seconds
		} `json:"price"`
	} `json:"parsed"`
}

// NewHermesSource creates a price source with rate limiting and retry.
func NewHermesSource(baseURL string, timeout time.Duration, logger *slog.Logger) *HermesSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Accept", "application/json")

	return &HermesSource{
		http:   httpClient,
		rl:     NewTokenBucket(30, 10), // public Hermes allows ~10 req/s sustained
		logger: logger.With("component", "hermes"),
	}
}

// Latest fetches the most recent reading for feedID.
func (h *HermesSource) Latest(ctx context.Context, feedID string) (types.OracleReading, error) {
	if err := h.rl.Wait(ctx); err != nil {
		return types.OracleReading{}, err
	}

	var result hermesResponse
	resp, err := h.http.R().
		SetContext(ctx).
		SetQueryParam("ids[]", feedID).
		SetQueryParam("parsed", "true").
		SetResult(&result).
		Get("/v2/updates/price/latest")
	if err != nil {
		return types.OracleReading{}, fmt.Errorf("fetch latest price: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound || resp.StatusCode() == http.StatusBadRequest {
		return types.OracleReading{}, fmt.Errorf("feed %s: %w", feedID, types.ErrPriceFeedNotFound)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.OracleReading{}, fmt.Errorf("fetch latest price: status %d: %s", resp.StatusCode(), resp.String())
	}
	if len(result.Parsed) == 0 {
		return types.OracleReading{}, fmt.Errorf("feed %s: empty response: %w", feedID, types.ErrPriceFeedNotFound)
	}

	p := result.Parsed[0].Price
	price, err := strconv.ParseInt(p.Price, 10, 64)
	if err != nil {
		return types.OracleReading{}, fmt.Errorf("parse price %q: %w", p.Price, err)
	}
	conf, err := strconv.ParseUint(p.Conf, 10, 64)
	if err != nil {
		return types.OracleReading{}, fmt.Errorf("parse conf %q: %w", p.Conf, err)
	}

	return types.OracleReading{
		Price:       price,
		Confidence:  conf,
		Exponent:    p.Expo,
		PublishTime: time.Unix(p.PublishTime, 0),
	}, nil
}
