package modelclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/tokligence/docchat/internal/stream"
)

const (
	DefaultBaseURL      = "http://localhost:11434"
	DefaultModel        = "llama3"
	DefaultHistoryTurns = 10
	maxErrorBody        = 4096
)

// Roles used in the chat history.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Config holds configuration for the model client.
type Config struct {
	BaseURL string // optional, defaults to http://localhost:11434
	Model   string // optional, defaults to llama3
	// HistoryTurns bounds how many prior messages accompany a prompt. Zero
	// uses DefaultHistoryTurns; a negative value sends no history.
	HistoryTurns int
	// RequestTimeout bounds a whole call including the streamed body. Zero
	// leaves calls bounded only by their context.
	RequestTimeout time.Duration
	HTTPClient     *http.Client
}

// Request is one prompt sent to the model.
type Request struct {
	// Model overrides the configured model when set.
	Model   string
	System  string
	History []api.Message
	Prompt  string
}

// UpstreamError reports a non-2xx answer from the model server.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("model server returned HTTP %d", e.Status)
	}
	return fmt.Sprintf("model server returned HTTP %d: %s", e.Status, body)
}

// Client talks to an Ollama-compatible chat endpoint.
type Client struct {
	baseURL      string
	model        string
	historyTurns int
	httpClient   *http.Client
	api          *api.Client
}

// New creates a Client instance.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	base, err := url.Parse(baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("modelclient: invalid base url %q", cfg.BaseURL)
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}

	turns := cfg.HistoryTurns
	if turns == 0 {
		turns = DefaultHistoryTurns
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}

	return &Client{
		baseURL:      baseURL,
		model:        model,
		historyTurns: turns,
		httpClient:   httpClient,
		api:          api.NewClient(base, httpClient),
	}, nil
}

// Model returns the default model name.
func (c *Client) Model() string {
	return c.model
}

// BaseURL returns the model server address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Messages builds the message list for req: the system prompt, the most
// recent history turns and the prompt as the final user message.
func (c *Client) Messages(req Request) []api.Message {
	history := req.History
	if c.historyTurns < 0 {
		history = nil
	} else if len(history) > c.historyTurns {
		history = history[len(history)-c.historyTurns:]
	}
	msgs := make([]api.Message, 0, len(history)+2)
	if strings.TrimSpace(req.System) != "" {
		msgs = append(msgs, api.Message{Role: RoleSystem, Content: req.System})
	}
	msgs = append(msgs, history...)
	msgs = append(msgs, api.Message{Role: RoleUser, Content: req.Prompt})
	return msgs
}

// Stream posts req to <base>/api/chat with streaming enabled and forwards
// each content fragment to onContent as it arrives. The returned Result
// describes the stream; a non-2xx status yields an *UpstreamError.
func (c *Client) Stream(ctx context.Context, req Request, onContent func(string)) (stream.Result, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return stream.Result{}, errors.New("modelclient: empty prompt")
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.model
	}
	streaming := true
	payload := api.ChatRequest{
		Model:    model,
		Messages: c.Messages(req),
		Stream:   &streaming,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return stream.Result{}, fmt.Errorf("modelclient: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return stream.Result{}, fmt.Errorf("modelclient: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return stream.Result{}, fmt.Errorf("modelclient: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return stream.Result{}, &UpstreamError{Status: resp.StatusCode, Body: upstreamMessage(raw)}
	}

	var respBody io.Reader = resp.Body
	if resp.Body == http.NoBody {
		respBody = nil
	}
	res, err := stream.Run(ctx, respBody, onContent, nil)
	if err != nil {
		return res, fmt.Errorf("modelclient: read stream: %w", err)
	}
	return res, nil
}

// Complete runs Stream and returns the accumulated text.
func (c *Client) Complete(ctx context.Context, req Request) (string, stream.Result, error) {
	var acc stream.Accumulator
	res, err := c.Stream(ctx, req, acc.Append)
	return acc.String(), res, err
}

// Heartbeat checks that the model server is reachable.
func (c *Client) Heartbeat(ctx context.Context) error {
	return c.api.Heartbeat(ctx)
}

// ModelInfo describes one locally available model.
type ModelInfo struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	Family     string    `json:"family,omitempty"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Models lists the models installed on the model server.
func (c *Client) Models(ctx context.Context) ([]ModelInfo, error) {
	resp, err := c.api.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("modelclient: list models: %w", err)
	}
	out := make([]ModelInfo, 0, len(resp.Models))
	for _, m := range resp.Models {
		out = append(out, ModelInfo{
			Name:       m.Name,
			Size:       m.Size,
			Family:     m.Details.Family,
			ModifiedAt: m.ModifiedAt,
		})
	}
	return out, nil
}

// upstreamMessage prefers the {"error": "..."} field of a JSON error body.
func upstreamMessage(raw []byte) string {
	var env struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &env); err == nil && env.Error != "" {
		return env.Error
	}
	return string(raw)
}
