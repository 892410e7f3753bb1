package embed

import "net/http"

type config struct {
	model      string
	dim        int
	baseURL    string
	httpClient *http.Client
}

func (c *config) apply(opts []Option) {
	for _, o := range opts {
		o(c)
	}
}

// Option tunes an embedder constructor.
type Option func(*config)

// WithModel overrides the provider's default embedding model.
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithDimension requests a specific output vector size. The value
// must match what the model actually returns or the cache will
// reject the vectors with a dimension mismatch.
func WithDimension(dim int) Option {
	return func(c *config) { c.dim = dim }
}

// WithBaseURL points the embedder at a different API endpoint, for
// proxies and OpenAI-compatible servers.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithHTTPClient substitutes the transport. Tests use this to stub
// the provider API.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) { c.httpClient = client }
}
