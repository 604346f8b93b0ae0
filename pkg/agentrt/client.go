// Package agentrt is a client for the agent-runtime service. A completion
// is a conversation thread: create thread, post a user message, start a
// run, poll until the run reaches a terminal state, then read the
// assistant's reply.
package agentrt

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL      = "https://agents.internal.pacificworks.dev/v1"
	defaultPollInterval = 1 * time.Second
)

// Terminal run states reported by the runtime.
const (
	RunQueued     = "queued"
	RunInProgress = "in_progress"
	RunCompleted  = "completed"
	RunFailed     = "failed"
	RunCancelled  = "cancelled"
	RunExpired    = "expired"
)

// Client performs thread and run operations against the agent runtime.
type Client interface {
	CreateThread(ctx context.Context) (*Thread, error)
	PostMessage(ctx context.Context, threadID, content string) (*ThreadMessage, error)
	StartRun(ctx context.Context, threadID string) (*Run, error)
	GetRun(ctx context.Context, threadID, runID string) (*Run, error)
	WaitForRun(ctx context.Context, threadID, runID string) (*Run, error)
	ListMessages(ctx context.Context, threadID string) ([]ThreadMessage, error)
}

// Thread is a conversation container.
type Thread struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"created_at"`
}

// ThreadMessage is a single message in a thread.
type ThreadMessage struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Run is one execution of the agent over a thread.
type Run struct {
	ID        string `json:"id"`
	ThreadID  string `json:"thread_id"`
	Status    string `json:"status"`
	LastError string `json:"last_error,omitempty"`
}

// Terminal reports whether the run has finished (successfully or not).
func (r *Run) Terminal() bool {
	switch r.Status {
	case RunCompleted, RunFailed, RunCancelled, RunExpired:
		return true
	}
	return false
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithPollInterval overrides the default 1s run poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.poller = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// WithAgentID selects the agent configuration runs execute under.
func WithAgentID(id string) Option {
	return func(c *httpClient) {
		c.agentID = id
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	agentID string
	http    *http.Client
	poller  *rate.Limiter
}

// NewClient creates an agent-runtime client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		poller: rate.NewLimiter(rate.Every(defaultPollInterval), 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) CreateThread(ctx context.Context) (*Thread, error) {
	var thread Thread
	if err := c.do(ctx, http.MethodPost, "/threads", map[string]any{}, &thread); err != nil {
		return nil, eris.Wrap(err, "agentrt: create thread")
	}
	return &thread, nil
}

func (c *httpClient) PostMessage(ctx context.Context, threadID, content string) (*ThreadMessage, error) {
	body := map[string]any{"role": "user", "content": content}
	var msg ThreadMessage
	if err := c.do(ctx, http.MethodPost, "/threads/"+threadID+"/messages", body, &msg); err != nil {
		return nil, eris.Wrapf(err, "agentrt: post message to thread %s", threadID)
	}
	return &msg, nil
}

func (c *httpClient) StartRun(ctx context.Context, threadID string) (*Run, error) {
	body := map[string]any{}
	if c.agentID != "" {
		body["agent_id"] = c.agentID
	}
	var run Run
	if err := c.do(ctx, http.MethodPost, "/threads/"+threadID+"/runs", body, &run); err != nil {
		return nil, eris.Wrapf(err, "agentrt: start run on thread %s", threadID)
	}
	return &run, nil
}

func (c *httpClient) GetRun(ctx context.Context, threadID, runID string) (*Run, error) {
	var run Run
	if err := c.do(ctx, http.MethodGet, "/threads/"+threadID+"/runs/"+runID, nil, &run); err != nil {
		return nil, eris.Wrapf(err, "agentrt: get run %s", runID)
	}
	return &run, nil
}

// WaitForRun polls the run at the configured interval until it reaches a
// terminal state or ctx expires. Runs that end failed or cancelled are
// returned as-is; the caller decides how to surface them.
func (c *httpClient) WaitForRun(ctx context.Context, threadID, runID string) (*Run, error) {
	for {
		if err := c.poller.Wait(ctx); err != nil {
			return nil, eris.Wrapf(err, "agentrt: wait for run %s", runID)
		}
		run, err := c.GetRun(ctx, threadID, runID)
		if err != nil {
			return nil, err
		}
		if run.Terminal() {
			return run, nil
		}
	}
}

func (c *httpClient) ListMessages(ctx context.Context, threadID string) ([]ThreadMessage, error) {
	var resp struct {
		Data []ThreadMessage `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/threads/"+threadID+"/messages", nil, &resp); err != nil {
		return nil, eris.Wrapf(err, "agentrt: list messages for thread %s", threadID)
	}
	return resp.Data, nil
}

func (c *httpClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return eris.Wrap(err, "marshal request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return eris.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return eris.Wrap(err, "unmarshal response")
		}
	}
	return nil
}
