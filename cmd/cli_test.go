package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KaramelBytes/vizloom-cli/internal/ai"
	"github.com/KaramelBytes/vizloom-cli/internal/dataset"
	"github.com/KaramelBytes/vizloom-cli/internal/pipeline"
)

// runCmd executes the root command with args and returns stdout.
func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	}()
	err := rootCmd.Execute()
	return out.String(), err
}

// isolate points HOME at a temp dir and drops any loaded config.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, k := range []string{"GEMINI_API_KEY", "GOOGLE_API_KEY", "OPENAI_API_KEY", "OPENROUTER_API_KEY", "VIZLOOM_API_KEY", "VIZLOOM_DEFAULT_PROVIDER", "VIZLOOM_DEFAULT_MODEL"} {
		t.Setenv(k, "")
	}
	cfg = nil
	t.Cleanup(func() { cfg = nil })
	return home
}

func writeCSV(t *testing.T, dir string) string {
	t.Helper()
	p := filepath.Join(dir, "scores.csv")
	if err := os.WriteFile(p, []byte("class,score\nA,80\nB,70\nA,90\nC,60\nB,75\nA,85\nC,65\n"), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return p
}

func TestCLI_Preview(t *testing.T) {
	home := isolate(t)
	csv := writeCSV(t, home)

	out, err := runCmd(t, "preview", "--file", csv)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if !strings.Contains(out, "Loaded scores.csv: 7 rows, 2 columns") {
		t.Fatalf("missing load line:\n%s", out)
	}
	if !strings.Contains(out, "(5 of 7 rows)") || !strings.Contains(out, "score: numeric") {
		t.Fatalf("unexpected preview:\n%s", out)
	}

	out, err = runCmd(t, "preview", "--file", csv, "--full")
	if err != nil {
		t.Fatalf("preview --full: %v", err)
	}
	if !strings.Contains(out, "(7 rows)") {
		t.Fatalf("expected full table:\n%s", out)
	}

	out, err = runCmd(t, "preview", "--file", csv, "--describe")
	if err != nil {
		t.Fatalf("preview --describe: %v", err)
	}
	if !strings.Contains(out, "mean") || !strings.Contains(out, "numeric") {
		t.Fatalf("expected summary table:\n%s", out)
	}
}

func TestCLI_PreviewMissingFile(t *testing.T) {
	isolate(t)
	if _, err := runCmd(t, "preview"); err == nil || !strings.Contains(err.Error(), "--file is required") {
		t.Fatalf("expected --file error, got %v", err)
	}
}

func TestCLI_AskDryRun(t *testing.T) {
	home := isolate(t)
	csv := writeCSV(t, home)

	out, err := runCmd(t, "ask", "--file", csv, "--query", "average score per class", "--dry-run", "--schema")
	if err != nil {
		t.Fatalf("ask --dry-run: %v", err)
	}
	for _, want := range []string{"average score per class", "score: numeric", "Token breakdown:", "schema", "runtime notes", "Dry run", "gemini/gemini-2.0-flash"} {
		if !strings.Contains(out, want) {
			t.Fatalf("dry run output missing %q:\n%s", want, out)
		}
	}
}

func TestCLI_AskWithoutKey(t *testing.T) {
	home := isolate(t)
	csv := writeCSV(t, home)

	_, err := runCmd(t, "ask", "--file", csv, "--provider", "openai")
	if err == nil || !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Fatalf("expected missing key error, got %v", err)
	}
}

// countingRuntimes swaps the ask runtime factory for a stub and returns
// the number of model calls made through it.
func countingRuntimes(t *testing.T, reply string) *int {
	t.Helper()
	calls := new(int)
	orig := runtimeFactory
	runtimeFactory = func(string, ai.RuntimeConfig) pipeline.RuntimeFactory {
		return func(string) (ai.Runtime, error) {
			*calls++
			return &stubRuntime{reply: reply}, nil
		}
	}
	t.Cleanup(func() { runtimeFactory = orig })
	return calls
}

func TestCLI_AskBadFileNeverCallsModel(t *testing.T) {
	home := isolate(t)
	t.Setenv("GEMINI_API_KEY", "test-key")
	calls := countingRuntimes(t, "```python\nprint(len(df))\n```")

	out, err := runCmd(t, "ask", "--file", writeCSV(t, home), "--query", "rows")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if *calls != 1 || !strings.Contains(out, "✓ Analysis complete") {
		t.Fatalf("expected one model call, got %d:\n%s", *calls, out)
	}

	files := map[string]string{
		"binary.csv":    "a,b\n\x00\x01\x02",
		"malformed.csv": "a,b\n1,2\n1,2,3\n",
	}
	for name, content := range files {
		p := filepath.Join(home, name)
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		out, err := runCmd(t, "ask", "--file", p, "--query", "rows")
		var pe *dataset.ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("%s: expected ParseError, got %v", name, err)
		}
		if strings.Contains(out, "Generating") {
			t.Fatalf("%s: model step reached:\n%s", name, out)
		}
	}
	if *calls != 1 {
		t.Fatalf("bad files reached the model: %d calls", *calls)
	}
}

func TestCLI_ConfigSetAndShow(t *testing.T) {
	home := isolate(t)

	if _, err := runCmd(t, "config", "set", "default_provider", "google"); err != nil {
		t.Fatalf("config set: %v", err)
	}
	if _, err := runCmd(t, "config", "set", "api_key", "sk-test-123456"); err != nil {
		t.Fatalf("config set: %v", err)
	}
	if _, err := runCmd(t, "config", "set", "bogus", "1"); err == nil {
		t.Fatalf("expected error for unknown key")
	}
	if _, err := os.Stat(filepath.Join(home, ".vizloom", "config.yaml")); err != nil {
		t.Fatalf("config not saved: %v", err)
	}

	out, err := runCmd(t, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out, "default_provider: gemini") {
		t.Fatalf("expected provider in output:\n%s", out)
	}
	if strings.Contains(out, "sk-test-123456") || !strings.Contains(out, "3456") {
		t.Fatalf("api key not masked:\n%s", out)
	}
}

func TestCLI_ModelsShow(t *testing.T) {
	isolate(t)
	out, err := runCmd(t, "models", "show", "--provider", "openai")
	if err != nil {
		t.Fatalf("models show: %v", err)
	}
	if !strings.Contains(out, "gpt-4o-mini") || strings.Contains(out, "gemini-2.0-flash") {
		t.Fatalf("unexpected catalog:\n%s", out)
	}
	out, err = runCmd(t, "models", "recommend", "--provider", "gemini", "--tier", "cheap")
	if err != nil {
		t.Fatalf("models recommend: %v", err)
	}
	if strings.TrimSpace(out) != "gemini-2.0-flash-lite" {
		t.Fatalf("unexpected recommendation %q", out)
	}
}
