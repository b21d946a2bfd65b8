package web

import (
	"html/template"
	"net/http"
	"regexp"
)

var detailPattern = regexp.MustCompile(`^[a-z_]{1,32}(:[0-9]{3})?$`)

// errorMessages are the user-facing texts for OAuth error codes. Nothing here may echo request data.
var errorMessages = map[string]string{
	"hmac_validation_failed": "The request could not be verified as coming from Shopify.",
	"platform_error":         "Shopify reported a problem while authorizing the app.",
	"missing_parameters":     "The authorization request was incomplete.",
	"invalid_shop":           "The shop address is not a valid Shopify store.",
	"state_mismatch":         "The authorization session expired or was started in another window.",
	"token_request_timeout":  "Shopify took too long to respond. Please try again.",
	"token_request_failed":   "The request to Shopify for an access token failed. Please try again.",
	"no_access_token":        "Shopify did not issue an access token.",
	"session_error":          "Your session could not be saved. Please try again.",
	"redirect_loop_detected": "Authentication kept redirecting. Open the app again from your Shopify admin.",
}

// ErrorMessage returns the canonical text for code, or a generic one.
func ErrorMessage(code string) string {
	if m, ok := errorMessages[code]; ok {
		return m
	}
	return "Something went wrong while installing the app."
}

var pages = template.Must(template.New("").Parse(`
{{define "layout-start"}}<!doctype html>
<html lang="en"><head><meta charset="utf-8"><title>{{.Title}}</title>
<meta name="viewport" content="width=device-width, initial-scale=1">
<link rel="stylesheet" href="/static/app.css"></head><body><main>{{end}}
{{define "layout-end"}}</main></body></html>{{end}}

{{define "oauth-error"}}{{template "layout-start" .}}
<h1>Installation failed</h1>
<p>{{.Message}}</p>
<p class="code">Error code: <code>{{.Code}}</code>{{if .Detail}} (<code>{{.Detail}}</code>){{end}}</p>
{{if .Shop}}<p><a href="/install?shop={{.Shop}}">Try again</a></p>{{end}}
{{template "layout-end" .}}{{end}}

{{define "auth-required"}}{{template "layout-start" .}}
<h1>Authentication required</h1>
<p>Open this app from your Shopify admin, or enter your store to install it.</p>
<form action="/install" method="get">
  <input name="shop" placeholder="your-store.myshopify.com" required>
  <button type="submit">Install</button>
</form>
{{template "layout-end" .}}{{end}}

{{define "dashboard"}}{{template "layout-start" .}}
<h1>{{.Shop}}</h1>
<p>Connected since {{.AuthenticatedAt}}.</p>
<p><a href="/logout">Log out</a></p>
{{template "layout-end" .}}{{end}}
`))

type ErrorPage struct {
	Title   string
	Code    string
	Detail  string
	Message string
	Shop    string
}

type DashboardPage struct {
	Title           string
	Shop            string
	Host            string
	AuthenticatedAt string
}

// RenderError shows the page for an error code. detail is a short diagnostic
// such as "http_error:502"; anything else is dropped.
func RenderError(w http.ResponseWriter, status int, code, detail, shop string) {
	if !detailPattern.MatchString(detail) {
		detail = ""
	}
	render(w, status, "oauth-error", ErrorPage{
		Title:   "Installation failed",
		Code:    code,
		Detail:  detail,
		Message: ErrorMessage(code),
		Shop:    shop,
	})
}

func RenderAuthRequired(w http.ResponseWriter) {
	render(w, http.StatusUnauthorized, "auth-required", struct{ Title string }{"Authentication required"})
}

func RenderDashboard(w http.ResponseWriter, p DashboardPage) {
	if p.Title == "" {
		p.Title = "Dashboard"
	}
	render(w, http.StatusOK, "dashboard", p)
}

func render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = pages.ExecuteTemplate(w, name, data)
}
