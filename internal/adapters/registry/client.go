// Package registry is the REST client for the backend session registry.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mkhas/Rescue/internal/core"
	"github.com/mkhas/Rescue/internal/domain"
)

// Client talks to the registry's /api/sos endpoints with bearer auth.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Start creates a session and returns its server-issued id.
func (c *Client) Start(ctx context.Context, loc domain.Location) (domain.SessionID, error) {
	var out struct {
		EmergencyID string `json:"emergencyId"`
	}
	if err := c.post(ctx, "/api/sos/start", loc, &out); err != nil {
		return "", err
	}
	return domain.SessionID(out.EmergencyID), nil
}

// Update uploads a fresh location for the caller's active session.
func (c *Client) Update(ctx context.Context, loc domain.Location) error {
	return c.post(ctx, "/api/sos/update", loc, nil)
}

// Stop terminates the caller's active session.
func (c *Client) Stop(ctx context.Context) error {
	return c.post(ctx, "/api/sos/stop", nil, nil)
}

// ListActive fetches the sessions a responder can join.
func (c *Client) ListActive(ctx context.Context) ([]core.SessionSummary, error) {
	var rows []struct {
		ID        string    `json:"_id"`
		Name      string    `json:"name"`
		Email     string    `json:"email"`
		Latitude  float64   `json:"latitude"`
		Longitude float64   `json:"longitude"`
		UpdatedAt time.Time `json:"updatedAt"`
	}
	if err := c.get(ctx, "/api/sos/active", &rows); err != nil {
		return nil, err
	}
	out := make([]core.SessionSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, core.SessionSummary{
			ID:        domain.SessionID(r.ID),
			Name:      r.Name,
			Email:     r.Email,
			Latitude:  r.Latitude,
			Longitude: r.Longitude,
			UpdatedAt: r.UpdatedAt,
		})
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, path, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, path, out)
}

func (c *Client) do(req *http.Request, path string, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return &core.TransientError{Op: req.Method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return c.apiError(req.Method, path, resp)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// apiError maps the registry's error body. An expired-credential signal is
// distinct from every other failure and must force a logout upstream.
func (c *Client) apiError(method, path string, resp *http.Response) error {
	var body struct {
		Message string `json:"message"`
		Expired bool   `json:"expired"`
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(raw, &body)
	if body.Expired {
		return core.ErrCredentialExpired
	}
	msg := body.Message
	if msg == "" {
		msg = string(raw)
	}
	return &core.TransientError{
		Op:  method + " " + path,
		Err: fmt.Errorf("registry returned %d: %s", resp.StatusCode, msg),
	}
}
