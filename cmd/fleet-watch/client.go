package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type statusItem struct {
	Kind          string     `json:"kind"`
	ID            string     `json:"id"`
	DeviceID      string     `json:"device_id"`
	DeviceName    string     `json:"device_name"`
	Label         string     `json:"label"`
	State         string     `json:"state"`
	Progress      int        `json:"progress"`
	Indeterminate bool       `json:"indeterminate"`
	Stale         bool       `json:"stale"`
	FailureReason string     `json:"failure_reason"`
	CreatedAt     time.Time  `json:"created_at"`
	ExecutedAt    *time.Time `json:"executed_at"`
}

// client talks to the status feed as one viewer.
type client struct {
	base   string
	viewer string
	http   *http.Client
}

func newClient(base, viewer string) *client {
	return &client{
		base:   strings.TrimSuffix(base, "/"),
		viewer: viewer,
		http:   &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *client) do(method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("X-Viewer-ID", c.viewer)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, e.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *client) status() ([]statusItem, error) {
	var resp struct {
		Data []statusItem `json:"data"`
	}
	if err := c.do(http.MethodGet, "/api/v1/status", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *client) dismiss(id string) error {
	return c.do(http.MethodPost, "/api/v1/status/dismiss", map[string]string{"id": id}, nil)
}

func (c *client) dismissAll() (int, error) {
	var resp struct {
		Dismissed int `json:"dismissed"`
	}
	err := c.do(http.MethodPost, "/api/v1/status/dismiss-all", nil, &resp)
	return resp.Dismissed, err
}
