package daemon

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/majorcontext/tabclose/internal/tabs"
	"github.com/majorcontext/tabclose/internal/timer"
)

// Client communicates with the daemon over a Unix socket.
type Client struct {
	sockPath   string
	httpClient *http.Client
}

// NewClient creates a daemon client connected to the given socket path.
func NewClient(sockPath string) *Client {
	return &Client{
		sockPath: sockPath,
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", sockPath)
				},
			},
		},
	}
}

// SockPath returns the socket the client dials.
func (c *Client) SockPath() string { return c.sockPath }

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, "http://daemon"+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connecting to daemon: %w", err)
	}
	return resp, nil
}

// Health returns the daemon's health status.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/health", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, err
	}
	return &health, nil
}

// Start asks the daemon to start a timer on the active tab. A 409 from the
// daemon is reported as tabs.ErrNoActiveTab.
func (c *Client) Start(ctx context.Context, req StartRequest) error {
	resp, err := c.do(ctx, http.MethodPost, "/v1/timer", req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResult(resp)
}

// Reset asks the daemon to discard the pending timer.
func (c *Client) Reset(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodDelete, "/v1/timer", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResult(resp)
}

func decodeResult(resp *http.Response) error {
	var result StartResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("daemon returned %d", resp.StatusCode)
	}
	if resp.StatusCode == http.StatusConflict {
		return tabs.ErrNoActiveTab
	}
	if !result.Success {
		if result.Error == "" {
			return fmt.Errorf("daemon returned %d", resp.StatusCode)
		}
		return fmt.Errorf("daemon: %s", result.Error)
	}
	return nil
}

// State returns the pending timer, if any.
func (c *Client) State(ctx context.Context) (*StateResponse, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/timer", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("daemon returned %d", resp.StatusCode)
	}
	var st StateResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Watch streams timer events to fn until fn returns false, ctx is done or
// the daemon closes the stream.
func (c *Client) Watch(ctx context.Context, fn func(timer.Event) bool) error {
	resp, err := c.do(ctx, http.MethodGet, "/v1/events", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon returned %d", resp.StatusCode)
	}

	sc := bufio.NewScanner(resp.Body)
	var data string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && data != "":
			var ev timer.Event
			if err := json.Unmarshal([]byte(data), &ev); err != nil {
				return fmt.Errorf("decoding event: %w", err)
			}
			data = ""
			if !fn(ev) {
				return nil
			}
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return sc.Err()
}

// Tabs lists the browser's open tabs.
func (c *Client) Tabs(ctx context.Context) ([]TabInfo, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/tabs", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("daemon returned %d", resp.StatusCode)
	}
	var list []TabInfo
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, err
	}
	return list, nil
}

// OpenTab opens url in a new tab and focuses it.
func (c *Client) OpenTab(ctx context.Context, url string) (*TabInfo, error) {
	resp, err := c.do(ctx, http.MethodPost, "/v1/tabs", OpenTabRequest{URL: url})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("daemon returned %d", resp.StatusCode)
	}
	var tab TabInfo
	if err := json.NewDecoder(resp.Body).Decode(&tab); err != nil {
		return nil, err
	}
	return &tab, nil
}

// Shutdown requests the daemon to shut down gracefully.
func (c *Client) Shutdown(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodPost, "/v1/shutdown", nil)
	if err != nil {
		return nil // Connection refused/reset is expected after shutdown
	}
	defer resp.Body.Close()
	return nil
}
