package backend

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacificworks/licensing-portal/pkg/agentrt"
	"github.com/pacificworks/licensing-portal/pkg/genai"
)

// fakeGenAI returns a canned response or error.
type fakeGenAI struct {
	resp *genai.MessageResponse
	err  error
	last genai.MessageRequest
}

func (f *fakeGenAI) CreateMessage(_ context.Context, req genai.MessageRequest) (*genai.MessageResponse, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func TestGenerative_Invoke(t *testing.T) {
	fake := &fakeGenAI{
		resp: &genai.MessageResponse{
			Content: []genai.ContentBlock{{Type: "text", Text: `{"riskScore": "LOW"}`}},
		},
	}

	g := NewGenerative(fake, "test-model", 2048)
	inv, err := g.Invoke(context.Background(), "assess this", InvokeOptions{})
	require.NoError(t, err)

	assert.Equal(t, `{"riskScore": "LOW"}`, inv.Response)
	assert.Equal(t, "test-model", fake.last.Model)
	assert.Equal(t, int64(2048), fake.last.MaxTokens)
	require.Len(t, fake.last.Messages, 1)
	assert.Equal(t, "user", fake.last.Messages[0].Role)
	assert.Equal(t, "assess this", fake.last.Messages[0].Content)
}

func TestGenerative_PerCallMaxTokensOverride(t *testing.T) {
	fake := &fakeGenAI{resp: &genai.MessageResponse{}}
	g := NewGenerative(fake, "test-model", 2048)

	_, err := g.Invoke(context.Background(), "p", InvokeOptions{MaxTokens: 512})
	require.NoError(t, err)
	assert.Equal(t, int64(512), fake.last.MaxTokens)
}

func TestGenerative_NilClient(t *testing.T) {
	g := NewGenerative(nil, "m", 0)
	_, err := g.Invoke(context.Background(), "p", InvokeOptions{})
	assert.True(t, IsConfiguration(err))
}

func TestGenerative_TimeoutClassified(t *testing.T) {
	fake := &fakeGenAI{err: context.DeadlineExceeded}
	g := NewGenerative(fake, "m", 0)

	_, err := g.Invoke(context.Background(), "p", InvokeOptions{Timeout: 10 * time.Millisecond})
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
}

// blockingGenAI never answers; it parks until the call's context expires.
type blockingGenAI struct{}

func (blockingGenAI) CreateMessage(ctx context.Context, _ genai.MessageRequest) (*genai.MessageResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestGenerative_DeadlineCutsOffBlockingCall(t *testing.T) {
	g := NewGenerative(blockingGenAI{}, "m", 0)

	start := time.Now()
	_, err := g.Invoke(context.Background(), "p", InvokeOptions{Timeout: 10 * time.Millisecond})
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestGenerative_TransportClassified(t *testing.T) {
	fake := &fakeGenAI{err: eris.New("connection refused")}
	g := NewGenerative(fake, "m", 0)

	_, err := g.Invoke(context.Background(), "p", InvokeOptions{})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrTransport))
	assert.False(t, IsTimeout(err))
}

// fakeAgentRT walks a scripted thread/run lifecycle.
type fakeAgentRT struct {
	runStatus string
	lastError string
	messages  []agentrt.ThreadMessage
	posted    string
	waitErr   error
}

func (f *fakeAgentRT) CreateThread(context.Context) (*agentrt.Thread, error) {
	return &agentrt.Thread{ID: "thr_1"}, nil
}

func (f *fakeAgentRT) PostMessage(_ context.Context, _, content string) (*agentrt.ThreadMessage, error) {
	f.posted = content
	return &agentrt.ThreadMessage{ID: "msg_1", Role: "user", Content: content}, nil
}

func (f *fakeAgentRT) StartRun(context.Context, string) (*agentrt.Run, error) {
	return &agentrt.Run{ID: "run_1", ThreadID: "thr_1", Status: agentrt.RunQueued}, nil
}

func (f *fakeAgentRT) GetRun(context.Context, string, string) (*agentrt.Run, error) {
	return &agentrt.Run{ID: "run_1", Status: f.runStatus, LastError: f.lastError}, nil
}

func (f *fakeAgentRT) WaitForRun(context.Context, string, string) (*agentrt.Run, error) {
	if f.waitErr != nil {
		return nil, f.waitErr
	}
	return &agentrt.Run{ID: "run_1", Status: f.runStatus, LastError: f.lastError}, nil
}

func (f *fakeAgentRT) ListMessages(context.Context, string) ([]agentrt.ThreadMessage, error) {
	return f.messages, nil
}

func TestAgentRuntime_Invoke(t *testing.T) {
	fake := &fakeAgentRT{
		runStatus: agentrt.RunCompleted,
		messages: []agentrt.ThreadMessage{
			{Role: "user", Content: "prompt"},
			{Role: "assistant", Content: `{"riskScore":`},
			{Role: "assistant", Content: `"HIGH"}`},
		},
	}

	a := NewAgentRuntime(fake)
	inv, err := a.Invoke(context.Background(), "assess this", InvokeOptions{})
	require.NoError(t, err)

	assert.Equal(t, "assess this", fake.posted)
	// Assistant messages concatenate; user messages are excluded.
	assert.Equal(t, "{\"riskScore\":\n\"HIGH\"}", inv.Response)
}

func TestAgentRuntime_RunFailed(t *testing.T) {
	fake := &fakeAgentRT{runStatus: agentrt.RunFailed, lastError: "tool execution error"}

	a := NewAgentRuntime(fake)
	_, err := a.Invoke(context.Background(), "p", InvokeOptions{})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrRunFailed))
	assert.Contains(t, err.Error(), "tool execution error")
}

func TestAgentRuntime_WaitTimeout(t *testing.T) {
	fake := &fakeAgentRT{waitErr: context.DeadlineExceeded}

	a := NewAgentRuntime(fake)
	_, err := a.Invoke(context.Background(), "p", InvokeOptions{Timeout: 10 * time.Millisecond})
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
}

// blockingAgentRT hangs in WaitForRun until the call's context expires.
type blockingAgentRT struct {
	fakeAgentRT
}

func (b *blockingAgentRT) WaitForRun(ctx context.Context, _, _ string) (*agentrt.Run, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestAgentRuntime_DeadlineCutsOffBlockingWait(t *testing.T) {
	a := NewAgentRuntime(&blockingAgentRT{})

	start := time.Now()
	_, err := a.Invoke(context.Background(), "p", InvokeOptions{Timeout: 10 * time.Millisecond})
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestAgentRuntime_NilClient(t *testing.T) {
	a := NewAgentRuntime(nil)
	_, err := a.Invoke(context.Background(), "p", InvokeOptions{})
	assert.True(t, IsConfiguration(err))
}

func TestInvokeOptionsTimeoutDefault(t *testing.T) {
	assert.Equal(t, DefaultTimeout, InvokeOptions{}.timeout())
	assert.Equal(t, time.Second, InvokeOptions{Timeout: time.Second}.timeout())
}
