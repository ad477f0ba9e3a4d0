package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"golang.org/x/time/rate"
)

// maxErrorBody caps how much of an error response is quoted in errors.
const maxErrorBody = 512

// restClient is the paced JSON GET helper shared by the plain HTTP adapters.
type restClient struct {
	name    string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

func newRESTClient(name, defaultBase string, opts Options) *restClient {
	return &restClient{
		name:    name,
		baseURL: opts.baseURL(defaultBase),
		http:    opts.httpClient(),
		limiter: opts.limiter(),
	}
}

// getJSON waits for the limiter, issues GET path?query and decodes the body
// into out.
func (c *restClient) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("venue: %s: rate wait: %w", c.name, err)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("venue: %s: build request: %w", c.name, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("venue: %s: GET %s: %w", c.name, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("venue: %s: GET %s: status %d: %s", c.name, path, resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("venue: %s: decode %s: %w", c.name, path, err)
	}
	return nil
}

func (c *restClient) close() error {
	c.http.CloseIdleConnections()
	return nil
}
