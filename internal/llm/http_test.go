package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSendJSONProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"slow down"}`))
	}))
	defer srv.Close()

	_, err := SendJSON(context.Background(), srv.Client(), "test", srv.URL, map[string]any{"a": 1},
		map[string]string{"Authorization": "Bearer k"}, nil)
	require.Error(t, err)

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, http.StatusTooManyRequests, pe.StatusCode)
	require.Equal(t, 7*time.Second, pe.RetryAfter)
	require.True(t, pe.Retryable())
	require.Contains(t, pe.Error(), "slow down")
}

func TestSendJSONOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	raw, err := SendJSON(context.Background(), nil, "test", srv.URL, map[string]any{}, nil, nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true}`, string(raw))
}

func TestProviderErrorRetryable(t *testing.T) {
	require.True(t, (&ProviderError{StatusCode: 500}).Retryable())
	require.True(t, (&ProviderError{StatusCode: 503}).Retryable())
	require.False(t, (&ProviderError{StatusCode: 400}).Retryable())
	require.False(t, (&ProviderError{StatusCode: 401}).Retryable())
}
