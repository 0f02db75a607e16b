package generation

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brandforge/brandforge/config"
)

// newLoopbackBackend builds an HTTPBackend the way production does, allowed
// to talk to an httptest server on 127.0.0.1.
func newLoopbackBackend(t *testing.T, baseURL string) *HTTPBackend {
	t.Helper()
	return NewHTTPBackend(config.GenerationConfig{
		BaseURL:             baseURL,
		APIKey:              "test-key",
		AllowPrivateBackend: true,
	}, zap.NewNop().Sugar())
}

func TestHTTPBackendSubmit(t *testing.T) {
	var gotAuth string
	var gotBody Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/generations", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]string{"handle": "op-42"})
	}))
	defer srv.Close()

	backend := newLoopbackBackend(t, srv.URL)
	handle, err := backend.Submit(context.Background(), Request{
		Kind:  "mascot.image",
		Input: map[string]interface{}{"prompt": "a friendly robot"},
	})

	require.NoError(t, err)
	assert.Equal(t, "op-42", handle)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "mascot.image", gotBody.Kind)
}

func TestHTTPBackendSubmitErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"code": "rate_limited", "message": "slow down"},
		})
	}))
	defer srv.Close()

	backend := newLoopbackBackend(t, srv.URL)
	_, err := backend.Submit(context.Background(), Request{Kind: "mascot.image"})

	require.Error(t, err)
	assert.Equal(t, FailureRateLimited, Classify(err))
}

func TestHTTPBackendPoll(t *testing.T) {
	payload := []byte("inline-result")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/generations/op-42", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"done":           true,
			"payload_base64": base64.StdEncoding.EncodeToString(payload),
		})
	}))
	defer srv.Close()

	backend := newLoopbackBackend(t, srv.URL)
	status, err := backend.Poll(context.Background(), "op-42")

	require.NoError(t, err)
	assert.True(t, status.Done)
	assert.Equal(t, payload, status.Payload)
}

func TestHTTPBackendPollReportsHandleFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"done":  true,
			"error": map[string]string{"code": "content_blocked", "message": "rejected by safety filter"},
		})
	}))
	defer srv.Close()

	backend := newLoopbackBackend(t, srv.URL)
	_, err := backend.Poll(context.Background(), "op-42")

	require.Error(t, err)
	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "content_blocked", be.Code)
	assert.Equal(t, FailureContentBlocked, Classify(err))
}

func TestHTTPBackendFetchFollowsLocation(t *testing.T) {
	artifact := []byte{0x89, 0x50, 0x4e, 0x47} // png magic
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/v1/generations/op-42/result", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"location": srv.URL + "/artifacts/op-42.png"})
	})
	mux.HandleFunc("/artifacts/op-42.png", func(w http.ResponseWriter, r *http.Request) {
		w.Write(artifact)
	})

	backend := newLoopbackBackend(t, srv.URL)
	payload, err := backend.Fetch(context.Background(), "op-42")

	require.NoError(t, err)
	assert.Equal(t, artifact, payload)
}

func TestHTTPBackendPrivateBaseURLBlockedUnlessAllowed(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		json.NewEncoder(w).Encode(map[string]string{"handle": "op-1"})
	}))
	defer srv.Close()

	backend := NewHTTPBackend(config.GenerationConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
	}, zap.NewNop().Sugar())

	_, err := backend.Submit(context.Background(), Request{Kind: "mascot.image"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked")
	assert.Zero(t, hits, "guard must reject before the request leaves")
}

func TestHTTPBackendFetchRejectsLocationOffBackendHost(t *testing.T) {
	var leaked int
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		leaked++
		w.Write([]byte("internal"))
	}))
	defer other.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"location": other.URL + "/secret"})
	}))
	defer srv.Close()

	backend := newLoopbackBackend(t, srv.URL)
	_, err := backend.Fetch(context.Background(), "op-42")

	// The backend itself is allowed to be private, but a location it hands
	// out pointing at a different private host is not.
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected")
	assert.Zero(t, leaked)
}

func TestHTTPBackendCircuitBreakerOpensAfterRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	backend := newLoopbackBackend(t, srv.URL)
	backend.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "test",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.TotalFailures >= 2
		},
	})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := backend.Submit(ctx, Request{Kind: "video.promo"})
		require.Error(t, err)
	}

	_, err := backend.Submit(ctx, Request{Kind: "video.promo"})
	require.Error(t, err)
	assert.Equal(t, FailureUnavailable, Classify(err), "open breaker should read as unavailable")
}
