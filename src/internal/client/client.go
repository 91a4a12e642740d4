// Package client is a small HTTP client for the moodmeal API, shared by the
// browser SDK and tests.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"moodmeal/src/internal/recommend"
)

type Client struct {
	BaseURL   string
	ServerKey string
	AdminUser string
	AdminPass string
	HTTP      *http.Client
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func (c *Client) do(ctx context.Context, method, path string, in, out any, admin bool) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.BaseURL, "/")+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if admin {
		if c.AdminUser != "" && c.AdminPass != "" {
			req.SetBasicAuth(c.AdminUser, c.AdminPass)
		}
	} else if c.ServerKey != "" {
		req.Header.Set("X-Server-Key", c.ServerKey)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Body: string(data)}
	}
	if out == nil {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], data...)
		return nil
	}
	return json.Unmarshal(data, out)
}

func (c *Client) Recommend(ctx context.Context, q recommend.Query) ([]recommend.Result, error) {
	var res struct {
		Results []recommend.Result `json:"results"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/recommend", q, &res, false); err != nil {
		return nil, err
	}
	return res.Results, nil
}

func (c *Client) RecommendText(ctx context.Context, q recommend.TextQuery) (recommend.TextResult, error) {
	var res recommend.TextResult
	err := c.do(ctx, http.MethodPost, "/api/v1/recommend/text", q, &res, false)
	return res, err
}

// Rate submits a rating. A 202 answer (saved in memory only) is not an error.
func (c *Client) Rate(ctx context.Context, r recommend.Rating) error {
	return c.do(ctx, http.MethodPost, "/api/v1/ratings", r, nil, false)
}

type Resolution struct {
	Label     string `json:"label"`
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
	Method    string `json:"method"`
	Confident bool   `json:"confident"`
}

func (c *Client) ResolveMood(ctx context.Context, label string) (Resolution, error) {
	var res Resolution
	err := c.do(ctx, http.MethodGet, "/api/v1/moods/resolve?label="+url.QueryEscape(label), nil, &res, false)
	return res, err
}

func (c *Client) Reminder(ctx context.Context, userID string) (recommend.Reminder, error) {
	var res recommend.Reminder
	err := c.do(ctx, http.MethodGet, "/api/v1/users/"+url.PathEscape(userID)+"/reminder", nil, &res, false)
	return res, err
}

func (c *Client) Stats(ctx context.Context) (recommend.Stats, error) {
	var res recommend.Stats
	err := c.do(ctx, http.MethodGet, "/api/v1/stats", nil, &res, false)
	return res, err
}

// Config returns the server's redacted config as raw JSON.
func (c *Client) Config(ctx context.Context) (string, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/admin/v1/config", nil, &raw, true); err != nil {
		return "", err
	}
	return string(raw), nil
}
