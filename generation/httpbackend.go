package generation

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/brandforge/brandforge/config"
	"github.com/brandforge/brandforge/errors"
	"github.com/brandforge/brandforge/internal/httpclient"
)

// maxPayloadBytes caps how much of a backend response body we will read.
const maxPayloadBytes = 64 << 20 // 64 MiB

// HTTPBackend talks to a generation service over HTTP. All calls go through
// an SSRF-guarded client, are paced by a token bucket, and submits are guarded
// by a circuit breaker so a dead backend fails fast instead of tying up
// runner slots for the full hard timeout.
//
// Two clients with different trust levels: the backend client may be allowed
// onto private addresses when base_url is operator-configured to a local
// backend, while the fetcher used for artifact location downloads keeps the
// full guard because locations arrive in backend responses.
type HTTPBackend struct {
	baseURL  string
	baseHost string
	apiKey   string
	client   *httpclient.SaferClient
	fetcher  *httpclient.SaferClient
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	logger   *zap.SugaredLogger
}

// NewHTTPBackend creates an HTTP backend from application settings.
func NewHTTPBackend(gc config.GenerationConfig, logger *zap.SugaredLogger) *HTTPBackend {
	limit := rate.Inf
	if gc.MaxCallsPerSecond > 0 {
		limit = rate.Limit(gc.MaxCallsPerSecond)
	}

	blockPrivate := !gc.AllowPrivateBackend
	baseHost := ""
	if u, err := url.Parse(gc.BaseURL); err == nil {
		baseHost = u.Host
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "generation-backend",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
	})

	return &HTTPBackend{
		baseURL:  strings.TrimRight(gc.BaseURL, "/"),
		baseHost: baseHost,
		apiKey:   gc.APIKey,
		client: httpclient.NewSaferClientWithOptions(30*time.Second, httpclient.SaferClientOptions{
			BlockPrivateIP: &blockPrivate,
		}),
		fetcher: httpclient.NewSaferClient(30 * time.Second),
		limiter: rate.NewLimiter(limit, 1),
		breaker: breaker,
		logger:  logger,
	}
}

type submitResponse struct {
	Handle string `json:"handle"`
}

type pollResponse struct {
	Done          bool   `json:"done"`
	PayloadBase64 string `json:"payload_base64,omitempty"`
	Error         *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type resultResponse struct {
	PayloadBase64 string `json:"payload_base64,omitempty"`
	Location      string `json:"location,omitempty"`
}

// Submit sends a generation request and returns the operation handle.
func (b *HTTPBackend) Submit(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", errors.Wrap(err, "marshal request")
	}

	out, err := b.breaker.Execute(func() (interface{}, error) {
		var resp submitResponse
		if err := b.doJSON(ctx, http.MethodPost, b.baseURL+"/v1/generations", body, &resp); err != nil {
			return nil, err
		}
		if resp.Handle == "" {
			return nil, errors.New("backend returned empty handle")
		}
		return resp.Handle, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", errors.Wrap(errors.ErrServiceUnavailable, "circuit breaker open")
		}
		return "", err
	}
	return out.(string), nil
}

// Poll reports the state of a handle. A failure the backend reports on the
// handle comes back as a *BackendError.
func (b *HTTPBackend) Poll(ctx context.Context, handle string) (*Poll, error) {
	var resp pollResponse
	if err := b.doJSON(ctx, http.MethodGet, b.baseURL+"/v1/generations/"+url.PathEscape(handle), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, &BackendError{Code: resp.Error.Code, Message: resp.Error.Message}
	}

	status := &Poll{Done: resp.Done}
	if resp.PayloadBase64 != "" {
		payload, err := base64.StdEncoding.DecodeString(resp.PayloadBase64)
		if err != nil {
			return nil, errors.Wrap(err, "decode inline payload")
		}
		status.Payload = payload
	}
	return status, nil
}

// Fetch retrieves the final payload for a finished handle. The backend either
// inlines it base64-encoded or hands back a location reference to download.
func (b *HTTPBackend) Fetch(ctx context.Context, handle string) ([]byte, error) {
	var resp resultResponse
	if err := b.doJSON(ctx, http.MethodGet, b.baseURL+"/v1/generations/"+url.PathEscape(handle)+"/result", nil, &resp); err != nil {
		return nil, err
	}

	if resp.PayloadBase64 != "" {
		payload, err := base64.StdEncoding.DecodeString(resp.PayloadBase64)
		if err != nil {
			return nil, errors.Wrap(err, "decode payload")
		}
		return payload, nil
	}
	if resp.Location == "" {
		return nil, errors.Newf("result for handle %s has neither payload nor location", handle)
	}
	return b.download(ctx, resp.Location)
}

func (b *HTTPBackend) download(ctx context.Context, location string) ([]byte, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid result location %q", location)
	}
	// Locations on the backend's own host ride the backend client; anywhere
	// else gets the strict fetcher, so a private backend cannot redirect us
	// to other internal addresses.
	client := b.fetcher
	if u.Host == b.baseHost {
		client = b.client
	}
	if err := client.ValidateURL(u); err != nil {
		return nil, errors.Wrapf(err, "result location %q rejected", location)
	}

	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "download result")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &BackendError{Status: resp.StatusCode, Message: "result download failed"}
	}
	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return nil, errors.Wrap(err, "read result body")
	}
	return payload, nil
}

// doJSON performs one paced, authenticated JSON round trip against the
// backend API. Non-2xx responses become *BackendError.
func (b *HTTPBackend) doJSON(ctx context.Context, method, rawURL string, body []byte, out interface{}) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return errors.Wrapf(err, "invalid URL %q", rawURL)
	}
	if err := b.client.ValidateURL(u); err != nil {
		return err
	}

	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, rawURL)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return errors.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		be := &BackendError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var apiErr struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Code != "" {
			be.Code = apiErr.Error.Code
			be.Message = apiErr.Error.Message
		}
		return be
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrapf(err, "decode %s response", rawURL)
	}
	return nil
}
