package geocode

import (
	"net/http"
	"strings"

	"golang.org/x/time/rate"
)

// unthrottled returns a limiter that never blocks, so tests are not paced by
// the production rate limits.
func unthrottled() *rate.Limiter {
	return rate.NewLimiter(rate.Inf, 1)
}

// redirectClient returns an HTTP client that sends requests for the given
// upstream URL prefixes to local test servers instead. targets maps an
// upstream prefix (the Census or Google base URL) to the httptest server
// that should receive it; unmatched requests pass through untouched.
func redirectClient(targets map[string]string) *http.Client {
	return &http.Client{Transport: &redirectTransport{targets: targets}}
}

type redirectTransport struct {
	targets map[string]string
}

func (t *redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	orig := req.URL.String()
	for prefix, server := range t.targets {
		if !strings.HasPrefix(orig, prefix) {
			continue
		}
		redirected, err := req.URL.Parse(server + strings.TrimPrefix(orig, prefix))
		if err != nil {
			return nil, err
		}
		clone := req.Clone(req.Context())
		clone.URL = redirected
		clone.Host = redirected.Host
		return http.DefaultTransport.RoundTrip(clone)
	}
	return http.DefaultTransport.RoundTrip(req)
}
