package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const DefaultTokenExchangeTimeout = 10 * time.Second

// ExchangeErrorKind classifies why a code-for-token exchange failed.
type ExchangeErrorKind string

const (
	ExchangeTimeout           ExchangeErrorKind = "timeout"
	ExchangeHTTPError         ExchangeErrorKind = "http_error"
	ExchangeMalformedResponse ExchangeErrorKind = "malformed_response"
	ExchangeNetworkError      ExchangeErrorKind = "network_error"
)

type ExchangeError struct {
	Kind       ExchangeErrorKind
	StatusCode int
	Cause      error
}

func (e *ExchangeError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("token exchange %s: status=%d", e.Kind, e.StatusCode)
	case e.Cause != nil:
		return fmt.Sprintf("token exchange %s: %v", e.Kind, e.Cause)
	default:
		return "token exchange " + string(e.Kind)
	}
}

func (e *ExchangeError) Unwrap() error { return e.Cause }

// ErrNoAccessToken is the cause of a malformed response that carried no access_token field.
var ErrNoAccessToken = errors.New("access_token field missing")

// Detail is a short diagnostic such as "http_error:502" or "timeout".
func (e *ExchangeError) Detail() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s:%d", e.Kind, e.StatusCode)
	}
	return string(e.Kind)
}

// AccessToken is the offline credential returned for a shop.
type AccessToken struct {
	Value string
	Scope string
}

type OAuthExchanger struct {
	// HTTPClient lets callers share a resty client; NewTokenClient is used when nil.
	// It must be configured without retries, see NewTokenClient.
	HTTPClient *resty.Client
	APIKey     string
	APISecret  string
	Timeout    time.Duration

	// TokenURL overrides the token endpoint for a shop (tests point it at a local server).
	TokenURL func(shopDomain string) string
}

// NewTokenClient returns a resty client suited to the token endpoint: a single attempt, no retries.
// The client is safe to share between concurrent exchanges; the exchanger never reconfigures it.
func NewTokenClient() *resty.Client {
	return resty.New().SetRetryCount(0).SetHeader("User-Agent", "shoppulse")
}

type accessTokenResponse struct {
	AccessToken *string `json:"access_token"`
	Scope       string  `json:"scope"`
}

// ExchangeCodeForToken trades a one-time authorization code for an offline access token.
// It issues exactly one request; any failure is an *ExchangeError.
func (o OAuthExchanger) ExchangeCodeForToken(ctx context.Context, shopDomain, code string) (AccessToken, error) {
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = DefaultTokenExchangeTimeout
	}
	client := o.HTTPClient
	if client == nil {
		client = NewTokenClient()
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	endpoint := fmt.Sprintf("https://%s/admin/oauth/access_token", shopDomain)
	if o.TokenURL != nil {
		endpoint = o.TokenURL(shopDomain)
	}

	resp, err := client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetBody(map[string]string{
			"client_id":     o.APIKey,
			"client_secret": o.APISecret,
			"code":          code,
		}).
		Post(endpoint)
	if err != nil {
		if isTimeout(ctx, err) {
			return AccessToken{}, &ExchangeError{Kind: ExchangeTimeout, Cause: err}
		}
		return AccessToken{}, &ExchangeError{Kind: ExchangeNetworkError, Cause: err}
	}

	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		return AccessToken{}, &ExchangeError{Kind: ExchangeHTTPError, StatusCode: resp.StatusCode()}
	}

	var body accessTokenResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return AccessToken{}, &ExchangeError{Kind: ExchangeMalformedResponse, Cause: err}
	}
	if body.AccessToken == nil {
		return AccessToken{}, &ExchangeError{Kind: ExchangeMalformedResponse, Cause: ErrNoAccessToken}
	}

	// An empty token is a successful exchange with nothing usable; callers map it to no_access_token.
	return AccessToken{Value: strings.TrimSpace(*body.AccessToken), Scope: body.Scope}, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
