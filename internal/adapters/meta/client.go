// Package meta talks to the session metadata service.
package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mcastano/reunion/internal/core"
	"github.com/mcastano/reunion/internal/domain"
)

type Client struct {
	base string
	cred domain.Credential
	http *http.Client
}

func NewClient(base string, cred domain.Credential) *Client {
	return &Client{
		base: base,
		cred: cred,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.cred != "" {
		req.Header.Set("Authorization", "Bearer "+string(c.cred))
	}
	return c.http.Do(req)
}

// Fetch returns the session record; used once per session to determine
// ownership and to reject joining an already ended session.
func (c *Client) Fetch(ctx context.Context, id domain.SessionID) (domain.SessionMeta, error) {
	url := fmt.Sprintf("%s/sessions/%s", c.base, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.SessionMeta{}, err
	}
	resp, err := c.do(req)
	if err != nil {
		return domain.SessionMeta{}, fmt.Errorf("fetch session: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.SessionMeta{}, fmt.Errorf("fetch session: status %d", resp.StatusCode)
	}
	var m domain.SessionMeta
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return domain.SessionMeta{}, fmt.Errorf("fetch session: %w", err)
	}
	return m, nil
}

// End terminates the server-side record. Called only by the owner.
func (c *Client) End(ctx context.Context, id domain.SessionID) error {
	url := fmt.Sprintf("%s/sessions/%s/end", c.base, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("end session: status %d", resp.StatusCode)
	}
	return nil
}

var _ core.Metadata = (*Client)(nil)
