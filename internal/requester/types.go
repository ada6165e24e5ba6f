package requester

import (
	"net/http"
	"net/url"
)

// RequestOptions describes one call to the backend
type RequestOptions struct {
	Method  string            // defaults to GET
	Body    any               // JSON encoded when non-nil
	Query   url.Values        // appended to the endpoint
	Headers map[string]string // extra headers

	// SkipAuth sends the request without a bearer token and never refreshes.
	// Used for the code exchange and the refresh call itself.
	SkipAuth bool
	// NoRefresh attaches the bearer token but treats a 401 as a plain APIError.
	NoRefresh bool
}

// Response represents an HTTP response
type Response struct {
	URL        string
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// OK reports a 2xx status
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
