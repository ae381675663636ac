package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vietddude/boardcheck/internal/core/domain"
	"github.com/vietddude/boardcheck/internal/verify/metrics"
)

// HTTPClient implements Client over the provider's REST endpoints.
type HTTPClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewHTTPClient creates a provider client with a bounded per-call timeout.
func NewHTTPClient(cfg Config, timeout time.Duration) *HTTPClient {
	if cfg.FollowersURL == "" {
		cfg.FollowersURL = "https://api.ethfollow.xyz/api/v1"
	}
	if cfg.BoardsURL == "" {
		cfg.BoardsURL = "https://api.phi.box"
	}
	return &HTTPClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type followersResponse struct {
	FollowerCount *int `json:"follower_count"`
}

type boardResponse struct {
	HoldersCount *int `json:"holders_count"`
}

// FetchFollowerCount returns the follower count of a wallet.
func (c *HTTPClient) FetchFollowerCount(ctx context.Context, wallet string) (int, error) {
	url := fmt.Sprintf("%s/users/%s/stats", strings.TrimRight(c.cfg.FollowersURL, "/"), wallet)
	body, err := c.get(ctx, "followers", url)
	if err != nil {
		return 0, err
	}

	var parsed followersResponse
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.FollowerCount == nil {
		metrics.ProviderErrorsTotal.WithLabelValues("followers", string(domain.ProviderMalformed)).Inc()
		return 0, &domain.ProviderError{Kind: domain.ProviderMalformed, Cause: err}
	}
	return *parsed.FollowerCount, nil
}

// FetchTokenHolders returns the holder count of a wallet's creator token.
func (c *HTTPClient) FetchTokenHolders(ctx context.Context, wallet string) (int, error) {
	url := fmt.Sprintf("%s/wallets/%s/token", strings.TrimRight(c.cfg.BoardsURL, "/"), wallet)
	body, err := c.get(ctx, "holders", url)
	if err != nil {
		return 0, err
	}

	var parsed boardResponse
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.HoldersCount == nil {
		metrics.ProviderErrorsTotal.WithLabelValues("holders", string(domain.ProviderMalformed)).Inc()
		return 0, &domain.ProviderError{Kind: domain.ProviderMalformed, Cause: err}
	}
	return *parsed.HoldersCount, nil
}

func (c *HTTPClient) get(ctx context.Context, endpoint, url string) ([]byte, error) {
	start := time.Now()
	metrics.ProviderCallsTotal.WithLabelValues(endpoint).Inc()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &domain.ProviderError{Kind: domain.ProviderUnknown, Cause: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		kind := domain.ProviderUnknown
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			kind = domain.ProviderTimeout
		}
		metrics.ProviderErrorsTotal.WithLabelValues(endpoint, string(kind)).Inc()
		return nil, &domain.ProviderError{Kind: kind, Cause: err}
	}
	defer resp.Body.Close()

	metrics.ProviderLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

	if pe := classifyStatus(resp); pe != nil {
		metrics.ProviderErrorsTotal.WithLabelValues(endpoint, string(pe.Kind)).Inc()
		return nil, pe
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ProviderErrorsTotal.WithLabelValues(endpoint, string(domain.ProviderUnknown)).Inc()
		return nil, &domain.ProviderError{Kind: domain.ProviderUnknown, Cause: err}
	}
	return body, nil
}

// classifyStatus maps HTTP status codes onto the provider error taxonomy.
func classifyStatus(resp *http.Response) *domain.ProviderError {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return &domain.ProviderError{
			Kind:       domain.ProviderRateLimited,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Cause:      fmt.Errorf("status %d", resp.StatusCode),
		}
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest:
		return &domain.ProviderError{
			Kind:  domain.ProviderInvalidWallet,
			Cause: fmt.Errorf("status %d", resp.StatusCode),
		}
	default:
		return &domain.ProviderError{
			Kind:  domain.ProviderUnknown,
			Cause: fmt.Errorf("status %d", resp.StatusCode),
		}
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func isTimeout(err error) bool {
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}
