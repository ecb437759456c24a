package ingest

import (
	"context"
	"errors"
	"strings"

	"solana-token-feed/internal/domain"
	"solana-token-feed/internal/fetcher"
)

// Request is the body of POST /ingest.
type Request struct {
	Source string               `json:"source"`
	Tokens []domain.Observation `json:"tokens"`
}

// Validate reports whether the request names a source and carries a token list.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.Source) == "" {
		return ErrMissingSource
	}
	if r.Tokens == nil {
		return errors.New("ingest batch without tokens")
	}
	return nil
}

// Client posts observations to a remote ingest endpoint.
type Client struct {
	http *fetcher.HTTPClient
	url  string
}

var _ fetcher.Sink = (*Client)(nil)

// NewClient creates a client for the server at baseURL. If httpClient is
// nil, a default retrying client is used.
func NewClient(baseURL string, httpClient *fetcher.HTTPClient) *Client {
	if httpClient == nil {
		httpClient = fetcher.NewHTTPClient()
	}
	return &Client{
		http: httpClient,
		url:  strings.TrimRight(baseURL, "/") + "/ingest",
	}
}

// Ingest posts one source's observations and returns how many were sent.
func (c *Client) Ingest(ctx context.Context, source string, observations []domain.Observation) (int, error) {
	if len(observations) == 0 {
		return 0, nil
	}
	req := Request{Source: source, Tokens: observations}
	if err := c.http.PostJSON(ctx, c.url, req, nil); err != nil {
		return 0, err
	}
	return len(observations), nil
}
