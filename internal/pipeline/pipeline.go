// Package pipeline runs one analysis request: prompt, model call, code
// extraction, execution and rendering.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/KaramelBytes/vizloom-cli/internal/ai"
	"github.com/KaramelBytes/vizloom-cli/internal/dataset"
	"github.com/KaramelBytes/vizloom-cli/internal/extract"
	"github.com/KaramelBytes/vizloom-cli/internal/figure"
	"github.com/KaramelBytes/vizloom-cli/internal/prompt"
	"github.com/KaramelBytes/vizloom-cli/internal/render"
	"github.com/KaramelBytes/vizloom-cli/internal/sandbox"
)

var (
	// ErrMissingCredential is returned before any model call when the
	// session has no API key.
	ErrMissingCredential = errors.New("missing API key: set one before running an analysis")
	// ErrNoDataset is returned when no dataset has been loaded.
	ErrNoDataset = errors.New("no dataset loaded")
)

// State is the terminal state of a request.
type State string

const (
	StateSucceeded State = "succeeded"
	StateNoCode    State = "no_code"
	StateFailed    State = "failed"
)

// NoCodeWarning is attached when the response has no python block.
const NoCodeWarning = "No Python code block found in the response."

// Session is the per-user state a request needs.
type Session struct {
	Credential string
	Dataset    *dataset.Frame
}

// RuntimeFactory builds a model runtime for a credential.
type RuntimeFactory func(credential string) (ai.Runtime, error)

// ProviderFactory returns a RuntimeFactory for a registered provider.
func ProviderFactory(provider string, cfg ai.RuntimeConfig) RuntimeFactory {
	return func(credential string) (ai.Runtime, error) {
		c := cfg
		c.APIKey = credential
		return ai.NewRuntime(provider, c)
	}
}

// Analyzer wires the stages together. It holds no per-user state.
type Analyzer struct {
	Runtimes    RuntimeFactory
	Runner      sandbox.Runner
	Model       string
	MaxTokens   int
	Temperature float64
	// IncludeSchema appends the "column: kind" listing to the prompt.
	IncludeSchema bool
	// OnDelta, when set and the runtime streams, receives response chunks.
	OnDelta func(string)
	Logger  *zap.Logger
}

// Result is everything a front end shows for one request.
type Result struct {
	Query     string
	Prompt    string
	Response  string
	Code      string
	Output    string
	State     State
	Error     string
	Artifacts []render.Artifact
	Warnings  []string
	Model     string
	RequestID string
	Usage     ai.Usage
	Elapsed   time.Duration
}

// OK reports whether the script ran to completion.
func (r *Result) OK() bool { return r != nil && r.State == StateSucceeded }

type dialect interface {
	DialectNotes() []string
}

func (a *Analyzer) logger() *zap.Logger {
	if a.Logger == nil {
		return zap.NewNop()
	}
	return a.Logger
}

// Prompt returns the prompt Analyze would send for ds and query.
func (a *Analyzer) Prompt(ds *dataset.Frame, query string) string {
	return prompt.Build(a.PromptInput(ds, query))
}

// PromptInput returns the parts the prompt for ds and query is built from.
func (a *Analyzer) PromptInput(ds *dataset.Frame, query string) prompt.Input {
	in := prompt.Input{Query: query, DatasetName: ds.Name()}
	if a.IncludeSchema {
		in.Schema = ds.SchemaLine()
	}
	if d, ok := a.Runner.(dialect); ok {
		in.DialectNotes = d.DialectNotes()
	}
	return in
}

// Analyze runs the full pipeline for one query. Model errors are returned;
// extraction misses and script failures are reported in the Result.
func (a *Analyzer) Analyze(ctx context.Context, s Session, query string) (*Result, error) {
	if s.Credential == "" {
		return nil, ErrMissingCredential
	}
	if s.Dataset == nil {
		return nil, ErrNoDataset
	}
	if query == "" {
		query = prompt.DefaultQuery
	}
	log := a.logger().With(zap.String("dataset", s.Dataset.Name()), zap.String("model", a.Model))
	start := time.Now()
	res := &Result{Query: query, Prompt: a.Prompt(s.Dataset, query), Model: a.Model}

	resp, err := a.generate(ctx, s.Credential, res.Prompt)
	if err != nil {
		log.Warn("generate failed", zap.Error(err))
		return nil, fmt.Errorf("generate: %w", err)
	}
	res.Response = resp.Text()
	res.RequestID = resp.RequestID
	res.Usage = resp.Usage
	if resp.Model != "" {
		res.Model = resp.Model
	}

	res.Code = extract.Code(res.Response)
	if res.Code == "" {
		res.State = StateNoCode
		res.Warnings = append(res.Warnings, NoCodeWarning)
		res.Elapsed = time.Since(start)
		log.Info("no code in response", zap.Duration("elapsed", res.Elapsed))
		return res, nil
	}

	reg := figure.NewRegistry()
	out := a.Runner.Run(ctx, sandbox.Params{
		Code:      res.Code,
		Namespace: sandbox.Namespace(s.Dataset),
		Figures:   reg,
	})
	res.Output = out.Output
	if out.Failed() {
		res.State = StateFailed
		if out.Err != nil {
			res.Error = out.Err.Error()
		}
		reg.CloseAll()
		res.Elapsed = time.Since(start)
		log.Info("script failed", zap.String("error", res.Error), zap.Duration("exec", out.Duration))
		return res, nil
	}

	report := render.Collect(reg, out.Bindings, render.Options{Logger: log})
	res.State = StateSucceeded
	res.Artifacts = report.Artifacts()
	res.Warnings = append(res.Warnings, report.Warnings...)
	res.Elapsed = time.Since(start)
	log.Info("analysis complete",
		zap.Int("artifacts", len(res.Artifacts)),
		zap.Duration("exec", out.Duration),
		zap.Duration("elapsed", res.Elapsed))
	return res, nil
}

func (a *Analyzer) generate(ctx context.Context, credential, text string) (*ai.GenerateResponse, error) {
	if a.Runtimes == nil {
		return nil, errors.New("no runtime configured")
	}
	rt, err := a.Runtimes(credential)
	if err != nil {
		return nil, err
	}
	req := ai.GenerateRequest{
		Model:       a.Model,
		Messages:    []ai.Message{{Role: "user", Content: text}},
		MaxTokens:   a.MaxTokens,
		Temperature: a.Temperature,
	}
	if sr, ok := rt.(ai.StreamRuntime); ok && a.OnDelta != nil {
		return ai.Collect(ctx, sr, req, a.OnDelta)
	}
	return rt.Generate(ctx, req)
}
