package httpclient

import (
	"encoding/json"
	"net/http"
	"net/url"
)

type requestOptions struct {
	query   url.Values
	headers http.Header
	body    []byte
	bodyErr error
}

// RequestOption shapes a single outgoing request.
type RequestOption func(*requestOptions)

// WithQuery adds one query parameter.
func WithQuery(key, value string) RequestOption {
	return func(o *requestOptions) {
		o.query.Add(key, value)
	}
}

// WithHeader sets one header, replacing any previous value.
func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		o.headers.Set(key, value)
	}
}

// WithBearerToken forwards a caller's token as an Authorization header.
// An empty token leaves the request anonymous.
func WithBearerToken(token string) RequestOption {
	return func(o *requestOptions) {
		if token != "" {
			o.headers.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithBody sends raw bytes as the request body. The content type is left
// untouched when empty.
func WithBody(contentType string, body []byte) RequestOption {
	return func(o *requestOptions) {
		o.body = body
		if contentType != "" {
			o.headers.Set("Content-Type", contentType)
		}
	}
}

// WithJSONBody marshals v and sends it as the request body with a JSON
// content type.
func WithJSONBody(v any) RequestOption {
	return func(o *requestOptions) {
		data, err := json.Marshal(v)
		if err != nil {
			o.bodyErr = err
			return
		}
		o.body = data
		o.headers.Set("Content-Type", "application/json")
	}
}

func buildRequestOptions(opts []RequestOption) *requestOptions {
	o := &requestOptions{
		query:   url.Values{},
		headers: http.Header{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
