package aiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echo struct {
	Value string `json:"value"`
}

func TestClient_PostJSON_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var in echo
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		json.NewEncoder(w).Encode(echo{Value: in.Value + "!"})
	}))
	defer server.Close()

	c := New(server.URL+"/", "sk-test")
	var out echo
	err := c.PostJSON(context.Background(), "/chat/completions", echo{Value: "hi"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "hi!", out.Value)
}

func TestClient_PostJSON_RetriesTemporaryErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(echo{Value: "ok"})
	}))
	defer server.Close()

	c := New(server.URL, "", WithRetry(3, time.Millisecond))
	var out echo
	err := c.PostJSON(context.Background(), "/x", echo{}, &out)
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Value)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_PostJSON_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad"}`))
	}))
	defer server.Close()

	c := New(server.URL, "", WithRetry(3, time.Millisecond))
	err := c.PostJSON(context.Background(), "/x", echo{}, nil)
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.False(t, se.Temporary())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_PostJSON_GivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := New(server.URL, "", WithRetry(2, time.Millisecond), WithRateLimit(1000))
	err := c.PostJSON(context.Background(), "/x", echo{}, nil)
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_PostJSON_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	c := New(server.URL, "", WithRetry(3, time.Millisecond))
	err := c.PostJSON(ctx, "/x", echo{}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestStatusError_Temporary(t *testing.T) {
	assert.True(t, (&StatusError{Code: 429}).Temporary())
	assert.True(t, (&StatusError{Code: 502}).Temporary())
	assert.False(t, (&StatusError{Code: 401}).Temporary())
}
