package auth

import (
	"errors"
	"fmt"

	"shoppulse/pkg/shopify"
)

// State is a position in the install flow. Error absorbs: a failed callback
// never advances, and the user must start again from /install.
type State string

const (
	StateAnonymous      State = "anonymous"
	StateNonceIssued    State = "nonce_issued"
	StateTokenExchanged State = "token_exchanged"
	StateAuthenticated  State = "authenticated"
	StateError          State = "error"
)

// Error codes surfaced to the error page.
const (
	CodeHMACValidationFailed = "hmac_validation_failed"
	CodePlatformError        = "platform_error"
	CodeMissingParameters    = "missing_parameters"
	CodeInvalidShop          = "invalid_shop"
	CodeStateMismatch        = "state_mismatch"
	CodeTokenRequestTimeout  = "token_request_timeout"
	CodeTokenRequestFailed   = "token_request_failed"
	CodeNoAccessToken        = "no_access_token"
	CodeSessionError         = "session_error"
	CodeRedirectLoopDetected = "redirect_loop_detected"
)

type Kind string

const (
	KindValidation Kind = "validation"
	KindSecurity   Kind = "security"
	KindUpstream   Kind = "upstream"
	KindState      Kind = "state"
)

// FlowError is the single error type produced by the install flow.
// Message and Detail are safe to show; Cause is for logs only.
type FlowError struct {
	Code    string
	Kind    Kind
	Message string
	// Detail names the upstream failure, e.g. "http_error:502".
	Detail string
	Cause  error
}

func (e *FlowError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Cause)
	}
	return e.Code
}

func (e *FlowError) Unwrap() error { return e.Cause }

func flowErr(code string, kind Kind, msg string, cause error) *FlowError {
	return &FlowError{Code: code, Kind: kind, Message: msg, Cause: cause}
}

// classifyExchange maps token-exchange failures to error codes, keeping the
// failure kind and upstream status as the detail.
func classifyExchange(err error) *FlowError {
	var fe *FlowError
	switch {
	case errors.Is(err, shopify.ErrNoAccessToken):
		fe = flowErr(CodeNoAccessToken, KindUpstream, "no access token issued", err)
	default:
		var xe *shopify.ExchangeError
		if errors.As(err, &xe) && xe.Kind == shopify.ExchangeTimeout {
			fe = flowErr(CodeTokenRequestTimeout, KindUpstream, "token request timed out", err)
		} else {
			fe = flowErr(CodeTokenRequestFailed, KindUpstream, "token request failed", err)
		}
	}
	var xe *shopify.ExchangeError
	if errors.As(err, &xe) {
		fe.Detail = xe.Detail()
	}
	return fe
}

func shopError(err error) *FlowError {
	if errors.Is(err, shopify.ErrShopMissing) {
		return flowErr(CodeMissingParameters, KindValidation, "shop parameter is required", err)
	}
	return flowErr(CodeInvalidShop, KindValidation, "shop must be a valid myshopify.com domain", err)
}
