package shopify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exchangerFor(srv *httptest.Server) OAuthExchanger {
	return OAuthExchanger{
		APIKey:    "key",
		APISecret: "secret",
		Timeout:   time.Second,
		TokenURL:  func(string) string { return srv.URL + "/admin/oauth/access_token" },
	}
}

func TestExchangeCodeForToken_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "key", in["client_id"])
		assert.Equal(t, "secret", in["client_secret"])
		assert.Equal(t, "the-code", in["code"])
		_, _ = w.Write([]byte(`{"access_token":"shpat_123","scope":"read_products"}`))
	}))
	defer srv.Close()

	tok, err := exchangerFor(srv).ExchangeCodeForToken(context.Background(), "foo.myshopify.com", "the-code")
	require.NoError(t, err)
	assert.Equal(t, "shpat_123", tok.Value)
	assert.Equal(t, "read_products", tok.Scope)
}

func TestExchangeCodeForToken_Classification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		kind   ExchangeErrorKind
	}{
		{"http error", http.StatusBadRequest, `{"error":"invalid_request"}`, ExchangeHTTPError},
		{"malformed json", http.StatusOK, `not json`, ExchangeMalformedResponse},
		{"missing field", http.StatusOK, `{"scope":"x"}`, ExchangeMalformedResponse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := exchangerFor(srv).ExchangeCodeForToken(context.Background(), "foo.myshopify.com", "c")
			var xe *ExchangeError
			require.ErrorAs(t, err, &xe)
			assert.Equal(t, tc.kind, xe.Kind)
			if tc.kind == ExchangeHTTPError {
				assert.Equal(t, tc.status, xe.StatusCode)
			}
		})
	}
}

func TestExchangeCodeForToken_EmptyTokenIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":""}`))
	}))
	defer srv.Close()

	tok, err := exchangerFor(srv).ExchangeCodeForToken(context.Background(), "foo.myshopify.com", "c")
	require.NoError(t, err)
	assert.Empty(t, tok.Value)
}

func TestExchangeCodeForToken_TimeoutNoRetry(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ex := exchangerFor(srv)
	ex.Timeout = 50 * time.Millisecond
	_, err := ex.ExchangeCodeForToken(context.Background(), "foo.myshopify.com", "c")

	var xe *ExchangeError
	require.ErrorAs(t, err, &xe)
	assert.Equal(t, ExchangeTimeout, xe.Kind)
	assert.Equal(t, int32(1), calls.Load())
}

func TestExchangeCodeForToken_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	ex := OAuthExchanger{Timeout: time.Second, TokenURL: func(string) string { return url }}
	_, err := ex.ExchangeCodeForToken(context.Background(), "foo.myshopify.com", "c")

	var xe *ExchangeError
	require.ErrorAs(t, err, &xe)
	assert.Equal(t, ExchangeNetworkError, xe.Kind)
}

func TestExchangeCodeForToken_MissingTokenField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"scope":"read_products"}`))
	}))
	defer srv.Close()

	_, err := exchangerFor(srv).ExchangeCodeForToken(context.Background(), "foo.myshopify.com", "c")
	assert.ErrorIs(t, err, ErrNoAccessToken)
	var xe *ExchangeError
	require.ErrorAs(t, err, &xe)
	assert.Equal(t, "malformed_response", xe.Detail())
}

func TestExchangeError_Detail(t *testing.T) {
	assert.Equal(t, "http_error:502", (&ExchangeError{Kind: ExchangeHTTPError, StatusCode: 502}).Detail())
	assert.Equal(t, "timeout", (&ExchangeError{Kind: ExchangeTimeout}).Detail())
}

func TestExchangeCodeForToken_SharedClientIsNotReconfigured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"shpat_1"}`))
	}))
	defer srv.Close()

	client := resty.New().SetRetryCount(2)
	ex := exchangerFor(srv)
	ex.HTTPClient = client

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ex.ExchangeCodeForToken(context.Background(), "foo.myshopify.com", "c")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 2, client.RetryCount)
	assert.Equal(t, 0, NewTokenClient().RetryCount)
}
