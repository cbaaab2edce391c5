// Copyright 2026 The CollabCanvas Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/kennyu/gauntlet-collabcanvas/canvas"
)

// Compile-time interface check.
var _ Backend = (*Client)(nil)

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// ServerURL is the base URL of the collaboration server
	// (e.g., "http://localhost:8420").
	ServerURL string
	// HTTPClient is used for all REST requests. If nil,
	// http.DefaultClient is used.
	HTTPClient *http.Client
	// Dialer is used for websocket subscriptions. If nil,
	// websocket.DefaultDialer is used.
	Dialer *websocket.Dialer
	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// Client talks to a collaboration server over HTTP (object API) and
// websocket (change feed, presence channel). It is safe for concurrent
// use; subscriptions each own their connection.
type Client struct {
	baseURL    string
	wsBaseURL  string
	httpClient *http.Client
	dialer     *websocket.Dialer
	logger     *slog.Logger
}

// NewClient creates a backend client for the given server.
func NewClient(config ClientConfig) (*Client, error) {
	if config.ServerURL == "" {
		return nil, fmt.Errorf("backend: ServerURL is required")
	}
	parsed, err := url.Parse(config.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("backend: invalid ServerURL %q: %w", config.ServerURL, err)
	}

	// Subscriptions ride the same host; only the scheme differs.
	wsScheme := "ws"
	if parsed.Scheme == "https" {
		wsScheme = "wss"
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	dialer := config.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := strings.TrimRight(config.ServerURL, "/")
	return &Client{
		baseURL:    base,
		wsBaseURL:  wsScheme + strings.TrimPrefix(base, parsed.Scheme),
		httpClient: httpClient,
		dialer:     dialer,
		logger:     logger,
	}, nil
}

// CloseIdleConnections drops idle pooled HTTP connections. Call after
// a network disruption so subsequent requests open fresh sockets
// instead of reusing a poisoned pooled connection.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// listObjectsResponse is returned by the objects listing endpoint.
type listObjectsResponse struct {
	Objects []Record `json:"objects"`
}

// LoadAll fetches every object in the workspace, ordered by creation
// time.
func (c *Client) LoadAll(ctx context.Context, workspace canvas.WorkspaceID) ([]Record, error) {
	body, err := c.doRequest(ctx, http.MethodGet, c.workspacePath(workspace)+"/objects", nil)
	if err != nil {
		return nil, fmt.Errorf("backend: load objects: %w", err)
	}

	var response listObjectsResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("backend: failed to parse objects response: %w", err)
	}
	return response.Objects, nil
}

// CreateObject durably inserts a record, preserving the client-chosen
// id. The server clamps geometry and echoes the canonical record.
func (c *Client) CreateObject(ctx context.Context, record Record) (Record, error) {
	if err := record.Validate(); err != nil {
		return Record{}, fmt.Errorf("backend: create object: %w", err)
	}

	body, err := c.doRequest(ctx, http.MethodPost,
		c.workspacePath(canvas.WorkspaceID(record.WorkspaceID))+"/objects", record)
	if err != nil {
		return Record{}, fmt.Errorf("backend: create object %s: %w", record.ID, err)
	}

	var created Record
	if err := json.Unmarshal(body, &created); err != nil {
		return Record{}, fmt.Errorf("backend: failed to parse create response: %w", err)
	}
	return created, nil
}

// UpdateObject applies a partial update to one object in the
// workspace.
func (c *Client) UpdateObject(ctx context.Context, workspace canvas.WorkspaceID, id canvas.ObjectID, patch ObjectPatch) (Record, error) {
	if patch.UpdatedAt <= 0 {
		return Record{}, fmt.Errorf("backend: update object %s: patch missing updatedAt", id)
	}

	body, err := c.doRequest(ctx, http.MethodPatch,
		c.workspacePath(workspace)+"/objects/"+url.PathEscape(string(id)), patch)
	if err != nil {
		return Record{}, fmt.Errorf("backend: update object %s: %w", id, err)
	}

	var updated Record
	if err := json.Unmarshal(body, &updated); err != nil {
		return Record{}, fmt.Errorf("backend: failed to parse update response: %w", err)
	}
	return updated, nil
}

func (c *Client) workspacePath(workspace canvas.WorkspaceID) string {
	return "/v1/workspaces/" + url.PathEscape(string(workspace))
}

// doRequest performs an HTTP request against the server and returns
// the response body. On 2xx, returns the body. On 4xx/5xx, returns a
// *Error.
func (c *Client) doRequest(ctx context.Context, method, path string, requestBody any) ([]byte, error) {
	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(response.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}

	// All server error responses use the same JSON shape.
	var backendErr Error
	if jsonErr := json.Unmarshal(responseBody, &backendErr); jsonErr != nil || backendErr.Code == "" {
		return nil, fmt.Errorf("unexpected %d response from %s %s: %s",
			response.StatusCode, method, path, string(responseBody))
	}
	backendErr.StatusCode = response.StatusCode

	return nil, &backendErr
}
