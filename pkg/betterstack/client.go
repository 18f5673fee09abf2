// Package betterstack pages through the Better Stack log query API.
package betterstack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/yurykabanov/archiver/pkg/domain"
)

const (
	DefaultEndpoint = "https://telemetry.betterstack.com/api/v2/query/explore-logs"

	// Layout of the from/to query parameters
	TimeLayout = "2006-01-02 15:04:05"

	maxRetries   = 3
	maxErrorBody = 512

	// Longest Retry-After honoured, longer values are cut down to it
	maxRetryAfter = time.Minute
)

const queryTemplate = "SELECT {{time}} as time, " +
	"JSONExtract(json, 'level', 'Nullable(String)') AS level, " +
	"JSONExtract(json, 'message', 'Nullable(String)') AS message, " +
	"json FROM {{source}} " +
	"WHERE time BETWEEN {{start_time}} AND {{end_time}} " +
	"ORDER BY {{time}} ASC LIMIT %d OFFSET %d FORMAT JSON"

// APIError is a non-2xx response of the query API.
type APIError struct {
	StatusCode int
	Body       string
	retryAfter string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

type Option func(*Client)

func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		if endpoint != "" {
			c.endpoint = endpoint
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithBackoff sets the delay before the first retry, doubled on every next one.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.backoff = d
	}
}

// Client holds no credentials: every request carries the token of the source
// it belongs to.
type Client struct {
	endpoint   string
	httpClient *http.Client
	backoff    time.Duration
}

func New(opts ...Option) *Client {
	c := &Client{
		endpoint: DefaultEndpoint,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		backoff: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type PageRequest struct {
	SourceID string
	Token    string
	From     time.Time
	To       time.Time
	Limit    int
	Offset   int
}

type WindowRequest struct {
	SourceID string
	Token    string
	From     time.Time
	To       time.Time
	PageSize int
}

type row struct {
	Time    json.RawMessage `json:"time"`
	Level   json.RawMessage `json:"level"`
	Message json.RawMessage `json:"message"`
	JSON    json.RawMessage `json:"json"`
}

type response struct {
	Data []row `json:"data"`
}

func Query(limit, offset int) string {
	return fmt.Sprintf(queryTemplate, limit, offset)
}

// FetchWindow requests successive pages of the window and hands each of them
// to fn, until a page is shorter than the page size. It returns the number of
// fetched records. Errors of fn are returned as is.
func (c *Client) FetchWindow(ctx context.Context, req WindowRequest, fn func([]domain.LogRecord) error) (int, error) {
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = domain.DefaultPageSize
	}

	total := 0

	for offset := 0; ; offset += pageSize {
		records, err := c.FetchPage(ctx, PageRequest{
			SourceID: req.SourceID,
			Token:    req.Token,
			From:     req.From,
			To:       req.To,
			Limit:    pageSize,
			Offset:   offset,
		})
		if err != nil {
			return total, err
		}

		if len(records) == 0 {
			return total, nil
		}

		total += len(records)

		if err := fn(records); err != nil {
			return total, err
		}

		if len(records) < pageSize {
			return total, nil
		}
	}
}

// FetchPage requests a single page. Every failure is a *domain.FetchError.
func (c *Client) FetchPage(ctx context.Context, req PageRequest) ([]domain.LogRecord, error) {
	form := url.Values{}
	form.Set("source_ids", req.SourceID)
	form.Set("query", Query(req.Limit, req.Offset))
	form.Set("from", req.From.Format(TimeLayout))
	form.Set("to", req.To.Format(TimeLayout))

	body, err := c.post(ctx, req.Token, form.Encode())
	if err != nil {
		return nil, &domain.FetchError{Err: err}
	}

	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &domain.FetchError{Err: errors.Wrap(err, "unable to decode response")}
	}

	records := make([]domain.LogRecord, 0, len(resp.Data))
	for _, r := range resp.Data {
		records = append(records, domain.LogRecord{
			Time:    text(r.Time),
			Level:   text(r.Level),
			Message: text(r.Message),
			Payload: payload(r.JSON),
		})
	}

	return records, nil
}

// post retries 429 (honouring Retry-After) and 5xx responses with
// exponential backoff.
func (c *Client) post(ctx context.Context, token, form string) ([]byte, error) {
	var lastErr *APIError

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(c.backoffDelay(attempt, lastErr))
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			case <-t.C:
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}

		body, err := ioutil.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return body, nil
		}

		bodyStr := string(body)
		if len(bodyStr) > maxErrorBody {
			bodyStr = bodyStr[:maxErrorBody]
		}

		apiErr := &APIError{StatusCode: resp.StatusCode, Body: bodyStr}

		if resp.StatusCode == http.StatusTooManyRequests {
			apiErr.retryAfter = resp.Header.Get("Retry-After")
			lastErr = apiErr
			continue
		}
		if resp.StatusCode >= 500 {
			lastErr = apiErr
			continue
		}

		return nil, apiErr
	}

	return nil, lastErr
}

func (c *Client) backoffDelay(attempt int, lastErr *APIError) time.Duration {
	if lastErr != nil && lastErr.StatusCode == http.StatusTooManyRequests && lastErr.retryAfter != "" {
		if secs, err := strconv.Atoi(lastErr.retryAfter); err == nil && secs > 0 {
			if secs > int(maxRetryAfter/time.Second) {
				return maxRetryAfter
			}
			return time.Duration(secs) * time.Second
		}
	}
	return c.backoff * time.Duration(1<<uint(attempt-1))
}

// text renders a column the way it appears in the text export: strings
// unquoted, anything else verbatim.
func text(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "null"
	}

	var s string
	if raw[0] == '"' && json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}

// payload returns the record JSON object. The API returns it either as an
// object or as a string holding one.
func payload(raw json.RawMessage) json.RawMessage {
	raw = bytes.TrimSpace(raw)

	var s string
	if len(raw) > 0 && raw[0] == '"' && json.Unmarshal(raw, &s) == nil {
		raw = []byte(s)
	}

	// the text export keeps a payload on a single line
	var buf bytes.Buffer
	if json.Compact(&buf, raw) == nil {
		return buf.Bytes()
	}
	return raw
}
