package betterstack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yurykabanov/archiver/pkg/domain"
)

type capturedRequest struct {
	Auth     string
	SourceID string
	Query    string
	From     string
	To       string
}

// logServer serves total records, honouring the LIMIT/OFFSET of the query.
func logServer(t *testing.T, total int) (*httptest.Server, *[]capturedRequest) {
	var mu sync.Mutex
	var requests []capturedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseForm()) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		mu.Lock()
		requests = append(requests, capturedRequest{
			Auth:     r.Header.Get("Authorization"),
			SourceID: r.PostForm.Get("source_ids"),
			Query:    r.PostForm.Get("query"),
			From:     r.PostForm.Get("from"),
			To:       r.PostForm.Get("to"),
		})
		mu.Unlock()

		var limit, offset int
		q := r.PostForm.Get("query")
		_, err := fmt.Sscanf(q[strings.Index(q, "LIMIT"):], "LIMIT %d OFFSET %d", &limit, &offset)
		assert.NoError(t, err)

		var data []map[string]interface{}
		for i := offset; i < offset+limit && i < total; i++ {
			data = append(data, map[string]interface{}{
				"time":    fmt.Sprintf("2025-07-14 08:00:%02d", i%60),
				"level":   "info",
				"message": fmt.Sprintf("message %d", i),
				"json":    fmt.Sprintf(`{"n": %d}`, i),
			})
		}

		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": data})
	}))

	return srv, &requests
}

var (
	from = time.Date(2025, 7, 14, 8, 0, 0, 0, time.UTC)
	to   = time.Date(2025, 7, 14, 8, 59, 59, 0, time.UTC)
)

func TestClient_FetchWindow_Pages(t *testing.T) {
	srv, requests := logServer(t, 25)
	defer srv.Close()

	c := New(WithEndpoint(srv.URL))

	var got []domain.LogRecord
	total, err := c.FetchWindow(context.Background(), WindowRequest{
		SourceID: "42", Token: "token", From: from, To: to, PageSize: 10,
	}, func(records []domain.LogRecord) error {
		got = append(got, records...)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 25, total)
	assert.Len(t, got, 25)
	require.Len(t, *requests, 3)

	assert.Contains(t, (*requests)[0].Query, "LIMIT 10 OFFSET 0")
	assert.Contains(t, (*requests)[1].Query, "LIMIT 10 OFFSET 10")
	assert.Contains(t, (*requests)[2].Query, "LIMIT 10 OFFSET 20")
	assert.Equal(t, "Bearer token", (*requests)[0].Auth)
	assert.Equal(t, "42", (*requests)[0].SourceID)
	assert.Equal(t, "2025-07-14 08:00:00", (*requests)[0].From)
	assert.Equal(t, "2025-07-14 08:59:59", (*requests)[0].To)

	assert.Equal(t, domain.LogRecord{
		Time:    "2025-07-14 08:00:24",
		Level:   "info",
		Message: "message 24",
		Payload: json.RawMessage(`{"n":24}`),
	}, got[24])
}

func TestClient_FetchWindow_StopsOnEmptyPage(t *testing.T) {
	srv, requests := logServer(t, 20)
	defer srv.Close()

	total, err := New(WithEndpoint(srv.URL)).FetchWindow(context.Background(), WindowRequest{PageSize: 10},
		func([]domain.LogRecord) error { return nil })

	require.NoError(t, err)
	assert.Equal(t, 20, total)
	assert.Len(t, *requests, 3)
}

func TestClient_FetchWindow_NoRecords(t *testing.T) {
	srv, requests := logServer(t, 0)
	defer srv.Close()

	called := false
	total, err := New(WithEndpoint(srv.URL)).FetchWindow(context.Background(), WindowRequest{PageSize: 10},
		func([]domain.LogRecord) error { called = true; return nil })

	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.False(t, called)
	assert.Len(t, *requests, 1)
}

func TestClient_FetchPage_ObjectPayloadAndNulls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"time":"2025-07-14 08:00:00","level":null,"message":"hi","json":{"a": 1}}]}`))
	}))
	defer srv.Close()

	records, err := New(WithEndpoint(srv.URL)).FetchPage(context.Background(), PageRequest{Limit: 10})

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "null", records[0].Level)
	assert.Equal(t, json.RawMessage(`{"a":1}`), records[0].Payload)
}

func TestClient_FetchPage_RetriesServerErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	records, err := New(WithEndpoint(srv.URL), WithBackoff(time.Millisecond)).FetchPage(context.Background(), PageRequest{Limit: 10})

	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, 3, attempts)
}

func TestClient_FetchPage_ClientError(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("invalid token"))
	}))
	defer srv.Close()

	_, err := New(WithEndpoint(srv.URL), WithBackoff(time.Millisecond)).FetchPage(context.Background(), PageRequest{Limit: 10})

	require.Error(t, err)
	fetchErr, ok := err.(*domain.FetchError)
	require.True(t, ok)
	apiErr, ok := fetchErr.Err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "invalid token", apiErr.Body)
	assert.Equal(t, 1, attempts)
}

func TestClient_FetchPage_GivesUpAfterRetries(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(WithEndpoint(srv.URL), WithBackoff(time.Millisecond)).FetchPage(context.Background(), PageRequest{Limit: 10})

	assert.IsType(t, &domain.FetchError{}, err)
	assert.Equal(t, maxRetries+1, attempts)
}

func TestClient_FetchPage_InvalidBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))
	defer srv.Close()

	_, err := New(WithEndpoint(srv.URL)).FetchPage(context.Background(), PageRequest{Limit: 10})

	assert.IsType(t, &domain.FetchError{}, err)
}

func TestClient_BackoffDelay(t *testing.T) {
	c := New(WithBackoff(time.Second))

	throttled := func(retryAfter string) *APIError {
		return &APIError{StatusCode: http.StatusTooManyRequests, retryAfter: retryAfter}
	}

	tests := []struct {
		name     string
		attempt  int
		lastErr  *APIError
		expected time.Duration
	}{
		{"first retry", 1, nil, time.Second},
		{"third retry", 3, &APIError{StatusCode: http.StatusBadGateway}, 4 * time.Second},
		{"retry after", 1, throttled("7"), 7 * time.Second},
		{"retry after is capped", 1, throttled("86400"), maxRetryAfter},
		{"huge retry after is capped", 1, throttled("9223372036854775807"), maxRetryAfter},
		{"invalid retry after", 2, throttled("soon"), 2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, c.backoffDelay(tt.attempt, tt.lastErr))
		})
	}
}
