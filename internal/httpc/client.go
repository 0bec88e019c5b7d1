// Package httpc is a small client for a running semiconductor server's
// REST API.
package httpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-semiconductor/pkg/conductor"
)

// Default timeouts for HTTP operations.
const (
	DefaultTimeout        = 10 * time.Second
	DefaultConnectTimeout = 3 * time.Second
)

// Actions accepted by Client.Action, mapped to their endpoints.
var actions = map[string]string{
	"calibrate": "/api/calibration",
	"restart":   "/api/restart",
	"stop":      "/api/stop",
	"resume":    "/api/resume",
}

// Actions lists the names Client.Action accepts.
func Actions() []string {
	return []string{"calibrate", "restart", "stop", "resume"}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Client talks to one server.
type Client struct {
	base string
	http *http.Client
}

// New creates a client for base, e.g. "http://localhost:8080".
func New(base string) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: DefaultConnectTimeout,
				}).DialContext,
				MaxIdleConnsPerHost: 2,
			},
		},
	}
}

// Status returns the current session snapshot.
func (c *Client) Status(ctx context.Context) (conductor.Snapshot, error) {
	var snap conductor.Snapshot
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &snap)
	return snap, err
}

// Songs lists the bundled songs.
func (c *Client) Songs(ctx context.Context) ([]string, error) {
	var out struct {
		Songs []string `json:"songs"`
	}
	err := c.do(ctx, http.MethodGet, "/api/songs", nil, &out)
	return out.Songs, err
}

// Action runs a UI action by name and returns the resulting snapshot.
func (c *Client) Action(ctx context.Context, name string) (conductor.Snapshot, error) {
	var snap conductor.Snapshot
	path, ok := actions[name]
	if !ok {
		return snap, fmt.Errorf("unknown action %q", name)
	}
	err := c.do(ctx, http.MethodPost, path, nil, &snap)
	return snap, err
}

// LoadSong asks the server to queue another song.
func (c *Client) LoadSong(ctx context.Context, name string) (conductor.Snapshot, error) {
	var snap conductor.Snapshot
	err := c.do(ctx, http.MethodPut, "/api/song", map[string]string{"name": name}, &snap)
	return snap, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}
