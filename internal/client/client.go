// Package client is the HTTP control client the CLI commands use to
// talk to a running daemon.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/clicktrail/clicktrail/internal/event"
	"github.com/clicktrail/clicktrail/internal/tracker"
)

// Client talks to the control server at a fixed address.
type Client struct {
	base string
	http *http.Client
}

// New creates a client for the given address. A bare host:port gets
// the http scheme prepended.
func New(addr string) *Client {
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 5 * time.Second},
	}
}

// CaptureConfig mirrors the /config response.
type CaptureConfig struct {
	Hz         float64 `json:"hz"`
	OutputRoot string  `json:"output_root"`
}

// ExtResult mirrors the /ext_event response.
type ExtResult struct {
	OK             bool    `json:"ok"`
	Merged         bool    `json:"merged"`
	ScreenshotPath *string `json:"screenshot_path"`
}

// Health checks whether a daemon answers at all.
func (c *Client) Health() error {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.do(http.MethodGet, "/health", nil, &resp); err != nil {
		return err
	}
	if resp.Status != "ok" {
		return fmt.Errorf("client: unexpected health status %q", resp.Status)
	}
	return nil
}

// Status fetches the daemon's operational snapshot.
func (c *Client) Status() (tracker.Status, error) {
	var st tracker.Status
	err := c.do(http.MethodGet, "/status", nil, &st)
	return st, err
}

// Start asks the daemon to launch capture and listener loops.
func (c *Client) Start() error {
	return c.do(http.MethodPost, "/start", nil, nil)
}

// Stop asks the daemon to halt both loops.
func (c *Client) Stop() error {
	return c.do(http.MethodPost, "/stop", nil, nil)
}

// Configure applies runtime capture changes; nil fields are left
// untouched. Returns the applied configuration.
func (c *Client) Configure(hz *float64, outputRoot *string) (CaptureConfig, error) {
	req := struct {
		Hz         *float64 `json:"hz,omitempty"`
		OutputRoot *string  `json:"output_root,omitempty"`
	}{hz, outputRoot}
	var resp CaptureConfig
	err := c.do(http.MethodPost, "/config", req, &resp)
	return resp, err
}

// SendExternal posts a synthetic or real external event.
func (c *Client) SendExternal(ev event.ExternalEvent) (ExtResult, error) {
	var resp ExtResult
	err := c.do(http.MethodPost, "/ext_event", ev, &resp)
	return resp, err
}

// Records fetches recent activity records from the daemon's index.
// Zero-valued filters are omitted from the query.
func (c *Client) Records(limit int, source, since string) ([]event.ActivityRecord, error) {
	q := make([]string, 0, 3)
	if limit > 0 {
		q = append(q, "limit="+strconv.Itoa(limit))
	}
	if source != "" {
		q = append(q, "source="+source)
	}
	if since != "" {
		q = append(q, "since="+since)
	}
	path := "/records"
	if len(q) > 0 {
		path += "?" + strings.Join(q, "&")
	}

	var resp struct {
		Records []event.ActivityRecord `json:"records"`
		Count   int                    `json:"count"`
	}
	if err := c.do(http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

func (c *Client) do(method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("client: marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: daemon unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
			return fmt.Errorf("client: %s %s: %s", method, path, e.Error)
		}
		return fmt.Errorf("client: %s %s: status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("client: decode response: %w", err)
		}
	}
	return nil
}
