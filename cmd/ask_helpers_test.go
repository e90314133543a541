package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/KaramelBytes/vizloom-cli/internal/ai"
	cfgpkg "github.com/KaramelBytes/vizloom-cli/internal/config"
	"github.com/KaramelBytes/vizloom-cli/internal/dataset"
	"github.com/KaramelBytes/vizloom-cli/internal/pipeline"
	"github.com/KaramelBytes/vizloom-cli/internal/render"
	"github.com/KaramelBytes/vizloom-cli/internal/sandbox"
)

type stubRuntime struct {
	reply string
	err   error
}

func (s *stubRuntime) Generate(context.Context, ai.GenerateRequest) (*ai.GenerateResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &ai.GenerateResponse{
		Model:   "stub",
		Choices: []ai.Choice{{Message: ai.Message{Role: "assistant", Content: s.reply}}},
		Usage:   ai.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

func TestSelectModelPrecedence(t *testing.T) {
	cfg := &cfgpkg.Global{DefaultProvider: "openai", DefaultModel: "cfg-model"}

	if got := selectModel("openai", cfg, "cli-model"); got != "cli-model" {
		t.Fatalf("expected CLI model, got %q", got)
	}
	if got := selectModel("openai", cfg, ""); got != "cfg-model" {
		t.Fatalf("expected config model, got %q", got)
	}
	// A configured model belongs to the configured provider only.
	if got := selectModel("gemini", cfg, ""); got != "gemini-2.0-flash" {
		t.Fatalf("expected gemini default, got %q", got)
	}
	cfg.DefaultModel = ""
	if got := selectModel("openai", cfg, ""); got != "gpt-4o-mini" {
		t.Fatalf("expected fallback model, got %q", got)
	}
}

func TestResolveProvider(t *testing.T) {
	cases := map[string]string{
		"":             "gemini",
		"google":       "gemini",
		"OpenAI":       "openai",
		" openrouter ": "openrouter",
	}
	for in, want := range cases {
		got, err := resolveProvider(in, nil)
		if err != nil {
			t.Fatalf("resolveProvider(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("resolveProvider(%q) = %q, want %q", in, got, want)
		}
	}
	if got, _ := resolveProvider("", &cfgpkg.Global{DefaultProvider: "openai"}); got != "openai" {
		t.Fatalf("expected config provider, got %q", got)
	}
	if _, err := resolveProvider("ollama", nil); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestLoadOptions(t *testing.T) {
	opt, err := loadOptions("tab", "comma", "space")
	if err != nil {
		t.Fatalf("loadOptions: %v", err)
	}
	if opt.Delimiter != '\t' || opt.DecimalSeparator != ',' || opt.ThousandsSeparator != ' ' {
		t.Fatalf("unexpected options: %+v", opt)
	}
	for _, bad := range [][3]string{{"|", "", ""}, {"", "x", ""}, {"", "", "_"}} {
		if _, err := loadOptions(bad[0], bad[1], bad[2]); err == nil {
			t.Fatalf("expected error for %v", bad)
		}
	}
}

func TestBuildRunner(t *testing.T) {
	cfg := &cfgpkg.Global{Runner: "python", PythonPath: "/usr/bin/python3", ExecTimeoutSec: 30}
	r, name, err := buildRunner(cfg, "", 0, nil)
	if err != nil {
		t.Fatalf("buildRunner: %v", err)
	}
	py, ok := r.(*sandbox.PythonRunner)
	if !ok || name != "python" {
		t.Fatalf("expected python runner, got %T %q", r, name)
	}
	if py.Python != "/usr/bin/python3" || py.Timeout != 30*time.Second {
		t.Fatalf("unexpected python runner: %+v", py)
	}

	r, name, err = buildRunner(cfg, "starlark", 5, nil)
	if err != nil {
		t.Fatalf("buildRunner: %v", err)
	}
	st, ok := r.(*sandbox.StarlarkRunner)
	if !ok || name != "starlark" || st.Timeout != 5*time.Second {
		t.Fatalf("expected starlark runner with flag timeout, got %T %+v", r, r)
	}

	if _, _, err := buildRunner(cfg, "lua", 0, nil); err == nil {
		t.Fatalf("expected error for unknown runner")
	}
}

func TestFormatAskError(t *testing.T) {
	err := formatAskError(pipeline.ErrMissingCredential, "gemini")
	if !strings.Contains(err.Error(), "GEMINI_API_KEY") {
		t.Fatalf("expected env var hint, got %v", err)
	}
	rl := fmt.Errorf("generate: %w", &ai.RateLimitError{APIError: &ai.APIError{StatusCode: 429}, RetryAfter: 3 * time.Second})
	err = formatAskError(rl, "gemini")
	if !strings.Contains(err.Error(), "retry in about 3s") {
		t.Fatalf("expected rate limit hint, got %v", err)
	}
	var target *ai.RateLimitError
	if !errors.As(err, &target) {
		t.Fatalf("expected wrapped RateLimitError")
	}
	if err := formatAskError(errors.New("boom"), "gemini"); !strings.Contains(err.Error(), "analysis failed") {
		t.Fatalf("unexpected generic error: %v", err)
	}
}

func scoresFrame() *dataset.Frame {
	return dataset.MustNew("scores.csv", []dataset.Column{
		{Name: "class", Values: []any{"A", "B", "A", "C"}},
		{Name: "score", Values: []any{int64(80), int64(70), int64(90), int64(60)}},
	})
}

func TestWriteArtifacts(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	arts := []render.Artifact{
		{Kind: render.KindFigure, Label: "Averages", PNG: []byte("\x89PNG")},
		{Kind: render.KindChart, Label: "", HTML: "<html></html>"},
		{Kind: render.KindTable, Label: "means by class", Table: scoresFrame()},
	}
	paths, err := writeArtifacts(dir, arts)
	if err != nil {
		t.Fatalf("writeArtifacts: %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("expected 3 paths, got %v", paths)
	}
	if filepath.Base(paths[0]) != "01-Averages.png" {
		t.Fatalf("unexpected figure path %s", paths[0])
	}
	if !strings.HasPrefix(filepath.Base(paths[1]), "02-") || filepath.Ext(paths[1]) != ".html" {
		t.Fatalf("unexpected chart path %s", paths[1])
	}
	if filepath.Base(paths[2]) != "03-means_by_class.csv" {
		t.Fatalf("unexpected table path %s", paths[2])
	}
	b, err := os.ReadFile(paths[2])
	if err != nil {
		t.Fatalf("read table: %v", err)
	}
	if string(b) != "class,score\nA,80\nB,70\nA,90\nC,60\n" {
		t.Fatalf("unexpected csv:\n%s", b)
	}
	if paths, err := writeArtifacts(dir, nil); err != nil || paths != nil {
		t.Fatalf("expected no-op for empty artifacts, got %v %v", paths, err)
	}
}

func TestPrintFrameTruncates(t *testing.T) {
	var buf bytes.Buffer
	printFrame(&buf, scoresFrame(), 2)
	out := buf.String()
	if !strings.Contains(out, "(2 of 4 rows)") {
		t.Fatalf("expected truncation note, got:\n%s", out)
	}
	if !strings.Contains(out, "class") || strings.Contains(out, "60") {
		t.Fatalf("unexpected table:\n%s", out)
	}
}

func analyzeStub(t *testing.T, reply string) *pipeline.Result {
	t.Helper()
	an := &pipeline.Analyzer{
		Runtimes: func(string) (ai.Runtime, error) { return &stubRuntime{reply: reply}, nil },
		Runner:   sandbox.NewStarlarkRunner(nil),
		Model:    "gemini-2.0-flash",
	}
	res, err := an.Analyze(context.Background(), pipeline.Session{Credential: "k", Dataset: scoresFrame()}, "compare")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	return res
}

func TestPrintResult(t *testing.T) {
	res := analyzeStub(t, "```python\nmeans = df.groupby(\"class\")[\"score\"].mean()\nprint(\"n\", len(means))\n```")
	var buf bytes.Buffer
	askNoMarkdownOut = true
	defer func() { askNoMarkdownOut = false }()
	printResult(&buf, res, true)
	out := buf.String()
	for _, want := range []string{"=== Generated Code ===", "groupby", "n 3", "=== means ===", "10 prompt + 5 completion", "✓ Analysis complete"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintResultNoCode(t *testing.T) {
	res := analyzeStub(t, "I cannot help with that.")
	var buf bytes.Buffer
	askNoMarkdownOut = true
	defer func() { askNoMarkdownOut = false }()
	printResult(&buf, res, true)
	out := buf.String()
	if !strings.Contains(out, pipeline.NoCodeWarning) {
		t.Fatalf("expected no-code warning:\n%s", out)
	}
	if strings.Contains(out, "Analysis complete") {
		t.Fatalf("no-code result must not report completion:\n%s", out)
	}
}

func TestWriteAskJSON(t *testing.T) {
	res := analyzeStub(t, "```python\nprint(1)\nt = df.head(2)\n```")
	var buf bytes.Buffer
	if err := writeAskJSON(&buf, res, []string{"out/01-t.csv"}); err != nil {
		t.Fatalf("writeAskJSON: %v", err)
	}
	var got struct {
		State     string `json:"state"`
		Output    string `json:"output"`
		Artifacts []struct {
			Kind string `json:"kind"`
			Path string `json:"path"`
			Rows int    `json:"rows"`
		} `json:"artifacts"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v\n%s", err, buf.String())
	}
	if got.State != "succeeded" || got.Output != "1\n" {
		t.Fatalf("unexpected result: %+v", got)
	}
	if len(got.Artifacts) != 1 || got.Artifacts[0].Kind != "table" || got.Artifacts[0].Rows != 2 || got.Artifacts[0].Path != "out/01-t.csv" {
		t.Fatalf("unexpected artifacts: %+v", got.Artifacts)
	}
}

func TestPrintBlocks(t *testing.T) {
	var buf bytes.Buffer
	printBlocks(&buf, "```bash\npip install pandas\n```\ntext\n```python\nx = 1\ny = 2\n```")
	out := buf.String()
	if !strings.Contains(out, "Fenced blocks (2)") || !strings.Contains(out, "1. bash, 1 lines") || !strings.Contains(out, "2. python, 2 lines") {
		t.Fatalf("unexpected block listing:\n%s", out)
	}
}
