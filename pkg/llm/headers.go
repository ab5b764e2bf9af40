package llm

import (
	"net/http"
)

const (
	requestIDHeader          = "X-Request-Id"
	endpointIdentifierHeader = "x-alltrue-llm-endpoint-identifier"
	userSessionHeader        = "x-alltrue-llm-firewall-user-session"
)

// Endpoint describes how to reach an OpenAI-compatible provider.
type Endpoint struct {
	BaseURL            string // e.g. "https://api.openai.com/v1"
	APIKey             string // Optional for local endpoints
	EndpointIdentifier string // Gateway routing identifier, sent when non-empty
	UserSession        string // Gateway user-session JSON, sent when non-empty
}

// ProviderHeaders returns the headers every request to the provider carries.
func ProviderHeaders(ep Endpoint) http.Header {
	h := http.Header{}
	if ep.APIKey != "" {
		h.Set("Authorization", "Bearer "+ep.APIKey)
	}
	h.Set("Content-Type", "application/json")
	if ep.EndpointIdentifier != "" {
		h.Set(endpointIdentifierHeader, ep.EndpointIdentifier)
	}
	if ep.UserSession != "" {
		h.Set(userSessionHeader, ep.UserSession)
	}
	return h
}

// headerTransport adds the gateway headers and the invocation id from the
// request context to every outgoing request.
type headerTransport struct {
	base    http.RoundTripper
	headers http.Header
}

func newHeaderTransport(base http.RoundTripper, headers http.Header) *headerTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &headerTransport{base: base, headers: headers}
}

// RoundTrip implements http.RoundTripper.
func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, vals := range t.headers {
		// go-openai sets its own Authorization and Content-Type
		if req.Header.Get(k) != "" {
			continue
		}
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	if id, ok := InvocationID(req.Context()); ok {
		req.Header.Set(requestIDHeader, id.String())
	}
	return t.base.RoundTrip(req)
}
