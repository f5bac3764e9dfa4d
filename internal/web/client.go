package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to the /state attribute of a running daemon.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(addr string) *Client {
	base := strings.TrimRight(addr, "/")
	if !strings.Contains(base, "://") {
		if strings.HasPrefix(base, ":") {
			base = "127.0.0.1" + base
		}
		base = "http://" + base
	}
	return &Client{BaseURL: base, HTTP: &http.Client{Timeout: 10 * time.Second}}
}

// State returns the canonical token ("enabled" or "disabled").
func (c *Client) State(ctx context.Context) (string, error) {
	body, err := c.do(ctx, http.MethodGet, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(body, "\n"), nil
}

// SetState writes token. Like the attribute itself it succeeds even when the
// supply refuses the transition; read the state back to confirm.
func (c *Client) SetState(ctx context.Context, token string) error {
	_, err := c.do(ctx, http.MethodPut, strings.NewReader(token))
	return err
}

func (c *Client) do(ctx context.Context, method string, body io.Reader) (string, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+"/state", body)
	if err != nil {
		return "", err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s /state: %s: %s", method, resp.Status, strings.TrimSpace(string(b)))
	}
	return string(b), nil
}
