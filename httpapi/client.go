package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	authcontext "github.com/nasermirzaei89/threads/auth/context"
	"github.com/nasermirzaei89/threads/discuss"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout        = 10 * time.Second
	DefaultMaxRetries     = 3
	DefaultInitialBackoff = 200 * time.Millisecond
	DefaultMaxBackoff     = 5 * time.Second

	userAgent = "threads/1.0"
)

type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	MaxRetries int

	// RateLimit is the number of requests per second; zero disables limiting.
	RateLimit float64
	RateBurst int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
}

// Client talks to the remote comments API. Idempotent requests are retried
// with exponential backoff on network failures, 429 and 5xx responses;
// creates are never retried.
type Client struct {
	baseURL        string
	token          string
	httpClient     *http.Client
	rateLimiter    *rate.Limiter
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

var _ discuss.Transport = (*Client)(nil)

func NewClient(cfg Config) (*Client, error) {
	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base url: %w", err)
	}

	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported base url scheme %q", baseURL.Scheme)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}

	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	burst := max(cfg.RateBurst, 1)

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	return &Client{
		baseURL:        strings.TrimRight(baseURL.String(), "/"),
		token:          cfg.Token,
		httpClient:     httpClient,
		rateLimiter:    rate.NewLimiter(limit, burst),
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
	}, nil
}

func (c *Client) Create(ctx context.Context, input discuss.CreateCommentInput) (*discuss.Comment, error) {
	var comment discuss.Comment

	err := c.doRequest(ctx, discuss.OpCreate, http.MethodPost, pathComments, nil, input, &comment)
	if err != nil {
		return nil, err
	}

	return &comment, nil
}

func (c *Client) Update(ctx context.Context, id string, input discuss.UpdateCommentInput) (*discuss.Comment, error) {
	var comment discuss.Comment

	err := c.doRequest(ctx, discuss.OpUpdate, http.MethodPut, commentPath(id), nil, input, &comment)
	if err != nil {
		return nil, err
	}

	return &comment, nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.doRequest(ctx, discuss.OpDelete, http.MethodDelete, commentPath(id), nil, nil, nil)
}

func (c *Client) React(ctx context.Context, id string, input discuss.ReactInput) (*discuss.ReactResult, error) {
	var result discuss.ReactResult

	err := c.doRequest(ctx, discuss.OpReact, http.MethodPost, commentPath(id)+"/reactions", nil, input, &result)
	if err != nil {
		return nil, err
	}

	return &result, nil
}

func (c *Client) Unreact(ctx context.Context, id string) (*discuss.Comment, error) {
	var comment discuss.Comment

	err := c.doRequest(ctx, discuss.OpUnreact, http.MethodDelete, commentPath(id)+"/reactions", nil, nil, &comment)
	if err != nil {
		return nil, err
	}

	return &comment, nil
}

func (c *Client) List(
	ctx context.Context,
	contentID, contentType string,
	page, limit int,
) (*discuss.CommentPage, error) {
	params := scopeParams(contentID, contentType)
	params.Set("page", strconv.Itoa(page))
	params.Set("limit", strconv.Itoa(limit))

	var commentPage discuss.CommentPage

	err := c.doRequest(ctx, discuss.OpList, http.MethodGet, pathComments, params, nil, &commentPage)
	if err != nil {
		return nil, err
	}

	return &commentPage, nil
}

func (c *Client) Stats(ctx context.Context, contentID, contentType string) (*discuss.CommentStats, error) {
	var stats discuss.CommentStats

	err := c.doRequest(
		ctx,
		discuss.OpStats,
		http.MethodGet,
		pathComments+"/stats",
		scopeParams(contentID, contentType),
		nil,
		&stats,
	)
	if err != nil {
		return nil, err
	}

	return &stats, nil
}

func commentPath(id string) string {
	return pathComments + "/" + url.PathEscape(id)
}

func scopeParams(contentID, contentType string) url.Values {
	params := url.Values{}
	params.Set("contentId", contentID)
	params.Set("contentType", contentType)

	return params
}

// doRequest sends one API call and decodes the data envelope into result.
// Every failure is a *discuss.TransportError.
func (c *Client) doRequest(
	ctx context.Context,
	op, method, endpoint string,
	params url.Values,
	body any,
	result any,
) error {
	fullURL := c.baseURL + endpoint
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	var payload []byte

	if body != nil {
		var err error

		payload, err = json.Marshal(body)
		if err != nil {
			return &discuss.TransportError{Op: op, Message: "failed to encode request", Err: err}
		}
	}

	retryable := method != http.MethodPost
	delay := c.initialBackoff

	for attempt := 0; ; attempt++ {
		err := c.rateLimiter.Wait(ctx)
		if err != nil {
			return networkError(op, "rate limiter wait failed", err)
		}

		retry, retryAfter, err := c.send(ctx, op, method, fullURL, payload, result)
		if err == nil {
			return nil
		}

		if !retry || !retryable || attempt >= c.maxRetries {
			return err
		}

		if retryAfter > 0 {
			delay = retryAfter
		}

		slog.WarnContext(
			ctx,
			"comments api request failed, retrying",
			"op", op,
			"attempt", attempt+1,
			"maxRetries", c.maxRetries,
			"delay", delay,
			"error", err,
		)

		err = sleep(ctx, delay)
		if err != nil {
			return networkError(op, "retry wait failed", err)
		}

		delay = min(delay*2, c.maxBackoff)
	}
}

// send performs a single attempt and reports whether it may be retried.
func (c *Client) send(
	ctx context.Context,
	op, method, fullURL string,
	payload []byte,
	result any,
) (bool, time.Duration, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return false, 0, &discuss.TransportError{Op: op, Message: "failed to create request", Err: err}
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	if userID := authcontext.GetSubject(ctx); userID != authcontext.Anonymous {
		req.Header.Set(HeaderActingUser, userID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ctx.Err() == nil, 0, networkError(op, "request failed", err)
	}

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			slog.ErrorContext(ctx, "failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return shouldRetry(resp.StatusCode), retryAfter(resp), statusError(op, resp)
	}

	if result == nil || resp.StatusCode == http.StatusNoContent {
		return false, 0, nil
	}

	var envelope rawDataEnvelope

	err = json.NewDecoder(resp.Body).Decode(&envelope)
	if err != nil {
		return false, 0, &discuss.TransportError{
			Op:      op,
			Status:  resp.StatusCode,
			Message: "failed to parse response",
			Err:     err,
		}
	}

	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return false, 0, &discuss.TransportError{Op: op, Status: resp.StatusCode, Message: "response has no data"}
	}

	err = json.Unmarshal(envelope.Data, result)
	if err != nil {
		return false, 0, &discuss.TransportError{
			Op:      op,
			Status:  resp.StatusCode,
			Message: "failed to parse response data",
			Err:     err,
		}
	}

	return false, 0, nil
}

func statusError(op string, resp *http.Response) *discuss.TransportError {
	transportErr := &discuss.TransportError{Op: op, Status: resp.StatusCode}

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err == nil {
		var envelope errorEnvelope
		if json.Unmarshal(bodyBytes, &envelope) == nil && envelope.Error.Code != "" {
			transportErr.Code = envelope.Error.Code
			transportErr.Message = envelope.Error.Message

			return transportErr
		}

		transportErr.Message = strings.TrimSpace(string(bodyBytes))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		transportErr.Code = discuss.CodeRateLimited
	case resp.StatusCode >= http.StatusInternalServerError:
		transportErr.Code = discuss.CodeInternal
	}

	return transportErr
}

func networkError(op, message string, err error) *discuss.TransportError {
	code := discuss.CodeNetwork

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		code = discuss.CodeTimeout
	}

	return &discuss.TransportError{Op: op, Code: code, Message: message, Err: err}
}

// shouldRetry determines if an HTTP status code warrants a retry.
func shouldRetry(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode >= http.StatusInternalServerError
}

func retryAfter(resp *http.Response) time.Duration {
	value := resp.Header.Get("Retry-After")
	if value == "" {
		return 0
	}

	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0
	}

	return time.Duration(seconds) * time.Second
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
