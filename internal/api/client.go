// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jeranaias/projchat/internal/model"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error talking to the collaborator.
type ClientError struct {
	Type    ErrorType
	Status  int // HTTP status for ErrTypeStatus, 0 otherwise
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Is makes every collaborator failure match model.ErrNetwork. Request
// construction errors are local and do not.
func (e *ClientError) Is(target error) bool {
	return target == model.ErrNetwork && e.Type != ErrTypeRequest
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeRequest
	ErrTypeConnection
	ErrTypeTimeout
	ErrTypeStatus
	ErrTypeInvalidResponse
	ErrTypeStream
)

// String returns a short name for the error type.
func (t ErrorType) String() string {
	switch t {
	case ErrTypeRequest:
		return "request"
	case ErrTypeConnection:
		return "connection"
	case ErrTypeTimeout:
		return "timeout"
	case ErrTypeStatus:
		return "status"
	case ErrTypeInvalidResponse:
		return "invalid_response"
	case ErrTypeStream:
		return "stream"
	default:
		return "unknown"
	}
}

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the collaborator client.
type ClientConfig struct {
	// BaseURL is the collaborator origin (default: http://127.0.0.1:5001).
	// Every endpoint lives under BaseURL + "/api".
	BaseURL string

	// Timeout for non-streaming requests (default: 120s). Assistant turns
	// can take a long time, so this is generous.
	Timeout time.Duration

	// UserAgent sent with every request.
	UserAgent string
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:   "http://127.0.0.1:5001",
		Timeout:   120 * time.Second,
		UserAgent: "projchat",
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client issues requests against the collaborator's /api surface. Every
// method corresponds to one endpoint.
//
// The Client is safe for concurrent use.
//
// Example:
//
//	client := api.NewClient()
//	projects, err := client.ListProjects(ctx)
//	if api.IsNetworkFailure(err) {
//	    log.Fatal("collaborator unreachable:", err)
//	}
type Client struct {
	config       *ClientConfig
	httpClient   *http.Client
	streamClient *http.Client
}

// NewClient creates a new client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a new client with custom configuration.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	// Fill in defaults for any zero values
	if config.BaseURL == "" {
		config.BaseURL = "http://127.0.0.1:5001"
	}
	config.BaseURL = strings.TrimSuffix(config.BaseURL, "/")
	if config.Timeout == 0 {
		config.Timeout = 120 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = "projchat"
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		// Streams are bounded by the caller's context, not a fixed timeout.
		streamClient: &http.Client{},
	}
}

// BaseURL returns the collaborator origin the client talks to.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// =============================================================================
// AGENTS & PROJECTS
// =============================================================================

// ListAgents returns the agent descriptors offered by the collaborator.
func (c *Client) ListAgents(ctx context.Context) ([]model.Agent, error) {
	var agents []model.Agent
	if err := c.do(ctx, http.MethodGet, "/agents", nil, &agents); err != nil {
		return nil, err
	}
	return agents, nil
}

// ListProjects returns every known project.
func (c *Client) ListProjects(ctx context.Context) ([]model.Project, error) {
	var projects []model.Project
	if err := c.do(ctx, http.MethodGet, "/projects", nil, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// CreateProject creates a project rooted at path.
func (c *Client) CreateProject(ctx context.Context, name, path string) (*model.Project, error) {
	var project model.Project
	req := CreateProjectRequest{Name: name, Path: path}
	if err := c.do(ctx, http.MethodPost, "/projects", req, &project); err != nil {
		return nil, err
	}
	return &project, nil
}

// DeleteProject removes a project. The collaborator acknowledges unknown IDs.
func (c *Client) DeleteProject(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/projects/"+url.PathEscape(id), nil, nil)
}

// ListFiles returns the children of the project's root directory. With
// recursive set, nested directories arrive with their children loaded.
func (c *Client) ListFiles(ctx context.Context, projectID string, recursive bool) ([]model.Node, error) {
	path := "/projects/" + url.PathEscape(projectID) + "/files?recursive=" + strconv.FormatBool(recursive)

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}

	nodes, err := model.DecodeNodes(raw)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode file tree", Cause: err}
	}
	return nodes, nil
}

// ReadFile returns the content of a file. The path is percent-encoded; the
// collaborator resolves it.
func (c *Client) ReadFile(ctx context.Context, path string) (*FileContent, error) {
	var content FileContent
	if err := c.do(ctx, http.MethodGet, "/files/read?path="+url.QueryEscape(path), nil, &content); err != nil {
		return nil, err
	}
	return &content, nil
}

// =============================================================================
// ASSISTANT PROCESS
// =============================================================================

// StartAssistant asks the collaborator to start the assistant process.
func (c *Client) StartAssistant(ctx context.Context, mode, workingDir string) (*AssistantStatus, error) {
	var status AssistantStatus
	req := StartRequest{Mode: mode, WorkingDir: workingDir}
	if err := c.do(ctx, http.MethodPost, "/claude/start", req, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// AssistantStatus reads the current assistant process status.
func (c *Client) AssistantStatus(ctx context.Context) (*AssistantStatus, error) {
	var status AssistantStatus
	if err := c.do(ctx, http.MethodGet, "/claude/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// AssistantChat sends one message to the assistant process and returns its reply.
func (c *Client) AssistantChat(ctx context.Context, message, workingDir string) (string, error) {
	var reply AssistantReply
	req := AssistantChatRequest{Message: message, WorkingDir: workingDir}
	if err := c.do(ctx, http.MethodPost, "/claude/chat", req, &reply); err != nil {
		return "", err
	}
	return reply.Reply, nil
}

// StopAssistant asks the collaborator to stop the assistant process.
func (c *Client) StopAssistant(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/claude/stop", nil, nil)
}

// =============================================================================
// AGENT CHAT
// =============================================================================

// Chat sends a message to an agent with the given history.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var resp ChatResponse
	if err := c.do(ctx, http.MethodPost, "/chat", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StreamCallback is called for each chunk received during streaming.
type StreamCallback func(chunk StreamChunk)

// ChatStream sends a message to an agent and calls callback for each chunk of
// the reply as it arrives. It returns the full reply once the stream ends.
func (c *Client) ChatStream(ctx context.Context, req ChatRequest, callback StreamCallback) (string, error) {
	httpReq, err := c.newRequest(ctx, http.MethodPost, "/chat/stream", req)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return "", transportError(err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return "", err
	}

	reader := NewStreamReader(resp.Body)
	if err := reader.Process(ctx, callback); err != nil {
		return reader.Accumulated(), err
	}
	return reader.Accumulated(), nil
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, &ClientError{Type: ErrTypeRequest, Message: "failed to marshal request", Cause: err}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+"/api"+path, reader)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeRequest, Message: "failed to create request", Cause: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	return req, nil
}

// do performs a JSON round trip. A nil out discards the response body.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer drainAndClose(resp.Body)

	if err := checkStatus(resp); err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}
	return nil
}

// checkStatus turns a non-2xx response into a ClientError carrying the
// collaborator's {error} text when present.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var body errorBody
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		return &ClientError{Type: ErrTypeStatus, Status: resp.StatusCode, Message: body.Error}
	}
	return &ClientError{
		Type:    ErrTypeStatus,
		Status:  resp.StatusCode,
		Message: "unexpected status: " + resp.Status,
	}
}

func transportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &ClientError{Type: ErrTypeTimeout, Message: "request timed out", Cause: err}
	}
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return &ClientError{Type: ErrTypeTimeout, Message: "request timed out", Cause: err}
	}
	return &ClientError{Type: ErrTypeConnection, Message: "collaborator unreachable", Cause: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNetworkFailure reports whether err is any collaborator failure.
func IsNetworkFailure(err error) bool {
	return errors.Is(err, model.ErrNetwork)
}

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeTimeout
	}
	return false
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Status
	}
	return 0
}

// Describe renders err for display, preferring the collaborator's message.
func Describe(err error) string {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		if clientErr.Type == ErrTypeStatus {
			return fmt.Sprintf("%s (HTTP %d)", clientErr.Message, clientErr.Status)
		}
		return clientErr.Error()
	}
	return err.Error()
}

// Helper to drain response body
func drainAndClose(r io.ReadCloser) {
	io.Copy(io.Discard, r)
	r.Close()
}
