package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Client queries a running daemon's control API.
type Client struct {
	base   string
	client *http.Client
}

// NewClient creates a client for the API listening on addr (host:port or URL).
func NewClient(addr string) *Client {
	base := strings.TrimRight(addr, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{base: base, client: &http.Client{}}
}

// Status fetches the daemon status.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var out StatusResponse
	err := c.get(ctx, "/v1/status", &out)
	return out, err
}

// Brotherhood fetches the partner link state.
func (c *Client) Brotherhood(ctx context.Context) (BrotherhoodResponse, error) {
	var out BrotherhoodResponse
	err := c.get(ctx, "/v1/brotherhood", &out)
	return out, err
}

func (c *Client) get(ctx context.Context, path string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("GET %s: %d %s", path, resp.StatusCode, e.Error)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
