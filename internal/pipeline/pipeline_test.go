package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/KaramelBytes/vizloom-cli/internal/ai"
	"github.com/KaramelBytes/vizloom-cli/internal/dataset"
	"github.com/KaramelBytes/vizloom-cli/internal/prompt"
	"github.com/KaramelBytes/vizloom-cli/internal/sandbox"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubRuntime struct {
	reply string
	err   error
	calls int
	last  ai.GenerateRequest
}

func (s *stubRuntime) Generate(_ context.Context, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
	s.calls++
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	return &ai.GenerateResponse{
		Model:     "stub-model",
		RequestID: "req-1",
		Choices:   []ai.Choice{{Message: ai.Message{Role: "assistant", Content: s.reply}}},
	}, nil
}

type streamStub struct {
	stubRuntime
	chunks []string
}

func (s *streamStub) GenerateStream(_ context.Context, _ ai.GenerateRequest, onDelta func(string)) error {
	for _, c := range s.chunks {
		onDelta(c)
	}
	return nil
}

func scores() *dataset.Frame {
	return dataset.MustNew("scores.csv", []dataset.Column{
		{Name: "class", Values: []any{"A", "B", "A", "C"}},
		{Name: "score", Values: []any{int64(80), int64(70), int64(90), int64(60)}},
	})
}

func analyzer(rt ai.Runtime) *Analyzer {
	return &Analyzer{
		Runtimes: func(string) (ai.Runtime, error) { return rt, nil },
		Runner:   sandbox.NewStarlarkRunner(nil),
		Model:    "gemini-2.0-flash",
	}
}

func fenced(code string) string {
	return "Here you go:\n```python\n" + code + "\n```\nDone."
}

func TestAnalyzeMissingCredentialSkipsModel(t *testing.T) {
	rt := &stubRuntime{reply: fenced("x = 1")}
	res, err := analyzer(rt).Analyze(context.Background(), Session{Dataset: scores()}, "q")
	require.ErrorIs(t, err, ErrMissingCredential)
	assert.Nil(t, res)
	assert.Zero(t, rt.calls)
}

func TestAnalyzeNoDataset(t *testing.T) {
	rt := &stubRuntime{}
	_, err := analyzer(rt).Analyze(context.Background(), Session{Credential: "k"}, "q")
	require.ErrorIs(t, err, ErrNoDataset)
	assert.Zero(t, rt.calls)
}

func TestAnalyzeHappyPath(t *testing.T) {
	rt := &stubRuntime{reply: fenced(`import pandas as pd
means = df.groupby("class")["score"].mean()
plt.bar(["A", "B", "C"], [85, 70, 60])
plt.title("Averages")
print("groups:", len(means))`)}
	res, err := analyzer(rt).Analyze(context.Background(), Session{Credential: "k", Dataset: scores()}, "compare classes")
	require.NoError(t, err)

	assert.Equal(t, StateSucceeded, res.State)
	assert.True(t, res.OK())
	assert.Equal(t, "groups: 3\n", res.Output)
	assert.Contains(t, res.Code, "groupby")
	assert.Equal(t, "stub-model", res.Model)
	assert.Equal(t, "req-1", res.RequestID)

	var got []string
	for _, a := range res.Artifacts {
		got = append(got, string(a.Kind)+":"+a.Label)
	}
	if diff := cmp.Diff([]string{"figure:Averages", "table:means"}, got); diff != "" {
		t.Fatalf("artifacts (-want +got):\n%s", diff)
	}

	require.Len(t, rt.last.Messages, 1)
	sent := rt.last.Messages[0].Content
	assert.Contains(t, sent, "scores.csv")
	assert.True(t, strings.HasSuffix(sent, "User query: compare classes"))
	assert.Contains(t, sent, "[RUNTIME NOTES]")
}

func TestAnalyzeEmptyQueryUsesDefault(t *testing.T) {
	rt := &stubRuntime{reply: fenced("x = 1")}
	res, err := analyzer(rt).Analyze(context.Background(), Session{Credential: "k", Dataset: scores()}, "")
	require.NoError(t, err)
	assert.Equal(t, prompt.DefaultQuery, res.Query)
	assert.True(t, strings.HasSuffix(rt.last.Messages[0].Content, prompt.DefaultQuery))
	assert.Equal(t, StateSucceeded, res.State)
	assert.Empty(t, res.Artifacts)
}

func TestAnalyzeNoCode(t *testing.T) {
	rt := &stubRuntime{reply: "I cannot help with that."}
	res, err := analyzer(rt).Analyze(context.Background(), Session{Credential: "k", Dataset: scores()}, "q")
	require.NoError(t, err)
	assert.Equal(t, StateNoCode, res.State)
	assert.Equal(t, []string{NoCodeWarning}, res.Warnings)
	assert.Empty(t, res.Output)
}

func TestAnalyzeScriptFailure(t *testing.T) {
	rt := &stubRuntime{reply: fenced(`print("start")
bad = df["missing"]`)}
	res, err := analyzer(rt).Analyze(context.Background(), Session{Credential: "k", Dataset: scores()}, "q")
	require.NoError(t, err)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, "start\n", res.Output)
	assert.Contains(t, res.Error, "line 2")
	assert.Empty(t, res.Artifacts)
}

func TestAnalyzeWrapsModelErrors(t *testing.T) {
	apiErr := &ai.RateLimitError{APIError: &ai.APIError{StatusCode: 429, Message: "slow down"}}
	rt := &stubRuntime{err: apiErr}
	_, err := analyzer(rt).Analyze(context.Background(), Session{Credential: "k", Dataset: scores()}, "q")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "generate: "))
	var rl *ai.RateLimitError
	assert.True(t, errors.As(err, &rl))
}

func TestAnalyzeStreamsWhenRequested(t *testing.T) {
	rt := &streamStub{chunks: []string{"```python\n", "total = df[\"score\"].sum()\n", "```"}}
	a := analyzer(rt)
	var seen []string
	a.OnDelta = func(s string) { seen = append(seen, s) }
	res, err := a.Analyze(context.Background(), Session{Credential: "k", Dataset: scores()}, "q")
	require.NoError(t, err)
	assert.Len(t, seen, 3)
	assert.Zero(t, rt.calls)
	assert.Equal(t, StateSucceeded, res.State)
	assert.Equal(t, `total = df["score"].sum()`, res.Code)
}

func TestPromptIncludesSchema(t *testing.T) {
	a := analyzer(&stubRuntime{})
	a.IncludeSchema = true
	p := a.Prompt(scores(), "q")
	assert.Contains(t, p, "[DATASET SCHEMA]")
	assert.Contains(t, p, "score: numeric")
}
