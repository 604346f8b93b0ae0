// Package backend defines the text-generation strategy the analysis
// pipeline runs against, with one implementation per backing provider.
// The strategy is selected once at construction, never per call.
package backend

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/pacificworks/licensing-portal/pkg/agentrt"
	"github.com/pacificworks/licensing-portal/pkg/genai"
)

// DefaultTimeout bounds a single backend invocation.
const DefaultTimeout = 60 * time.Second

// InvokeOptions tunes a single invocation.
type InvokeOptions struct {
	Timeout   time.Duration
	MaxTokens int64
}

// Invocation is the raw outcome of one backend call.
type Invocation struct {
	Response string
	Duration time.Duration
}

// TextGeneration submits one prompt to a backing service and returns the
// raw response text with timing metadata.
type TextGeneration interface {
	Name() string
	Invoke(ctx context.Context, prompt string, opts InvokeOptions) (*Invocation, error)
}

func (o InvokeOptions) timeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return DefaultTimeout
}

// Generative invokes the generative-model service directly.
type Generative struct {
	client    genai.Client
	model     string
	maxTokens int64
}

// NewGenerative creates the single-shot generative backend.
func NewGenerative(client genai.Client, model string, maxTokens int64) *Generative {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Generative{client: client, model: model, maxTokens: maxTokens}
}

func (g *Generative) Name() string { return "generative" }

func (g *Generative) Invoke(ctx context.Context, prompt string, opts InvokeOptions) (*Invocation, error) {
	if g.client == nil {
		return nil, ErrConfiguration
	}

	ctx, cancel := context.WithTimeout(ctx, opts.timeout())
	defer cancel()

	maxTokens := g.maxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}

	start := time.Now()
	resp, err := g.client.CreateMessage(ctx, genai.MessageRequest{
		Model:     g.model,
		MaxTokens: maxTokens,
		Messages: []genai.Message{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		if IsTimeout(err) {
			return nil, eris.Wrap(ErrTimeout, err.Error())
		}
		return nil, eris.Wrap(ErrTransport, err.Error())
	}

	return &Invocation{
		Response: resp.Text(),
		Duration: time.Since(start),
	}, nil
}

// AgentRuntime invokes the agent-runtime service: create thread, post the
// prompt, start a run, poll to completion, read the assistant reply.
type AgentRuntime struct {
	client agentrt.Client
}

// NewAgentRuntime creates the polling agent-runtime backend.
func NewAgentRuntime(client agentrt.Client) *AgentRuntime {
	return &AgentRuntime{client: client}
}

func (a *AgentRuntime) Name() string { return "agent-runtime" }

func (a *AgentRuntime) Invoke(ctx context.Context, prompt string, opts InvokeOptions) (*Invocation, error) {
	if a.client == nil {
		return nil, ErrConfiguration
	}

	ctx, cancel := context.WithTimeout(ctx, opts.timeout())
	defer cancel()

	start := time.Now()

	thread, err := a.client.CreateThread(ctx)
	if err != nil {
		return nil, a.classify(err)
	}
	if _, err := a.client.PostMessage(ctx, thread.ID, prompt); err != nil {
		return nil, a.classify(err)
	}
	run, err := a.client.StartRun(ctx, thread.ID)
	if err != nil {
		return nil, a.classify(err)
	}

	run, err = a.client.WaitForRun(ctx, thread.ID, run.ID)
	if err != nil {
		return nil, a.classify(err)
	}
	// Fail fast on failed/cancelled instead of treating them as output.
	if run.Status != agentrt.RunCompleted {
		detail := run.Status
		if run.LastError != "" {
			detail += ": " + run.LastError
		}
		return nil, eris.Wrap(ErrRunFailed, detail)
	}

	msgs, err := a.client.ListMessages(ctx, thread.ID)
	if err != nil {
		return nil, a.classify(err)
	}
	var reply strings.Builder
	for _, m := range msgs {
		if m.Role == "assistant" {
			if reply.Len() > 0 {
				reply.WriteString("\n")
			}
			reply.WriteString(m.Content)
		}
	}

	return &Invocation{
		Response: reply.String(),
		Duration: time.Since(start),
	}, nil
}

func (a *AgentRuntime) classify(err error) error {
	if IsTimeout(err) {
		return eris.Wrap(ErrTimeout, err.Error())
	}
	return eris.Wrap(ErrTransport, err.Error())
}
