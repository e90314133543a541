package cmd

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"go.uber.org/zap"

	"github.com/KaramelBytes/vizloom-cli/internal/ai"
	cfgpkg "github.com/KaramelBytes/vizloom-cli/internal/config"
	"github.com/KaramelBytes/vizloom-cli/internal/dataset"
	"github.com/KaramelBytes/vizloom-cli/internal/pipeline"
	"github.com/KaramelBytes/vizloom-cli/internal/render"
	"github.com/KaramelBytes/vizloom-cli/internal/sandbox"
	"github.com/KaramelBytes/vizloom-cli/internal/utils"
)

// runtimeConfig maps the HTTP/retry settings onto ai.RuntimeConfig.
func runtimeConfig(c *cfgpkg.Global) ai.RuntimeConfig {
	rc := ai.RuntimeConfig{}
	if c == nil {
		return rc
	}
	if c.HTTPTimeoutSec > 0 {
		rc.HTTPTimeout = time.Duration(c.HTTPTimeoutSec) * time.Second
	}
	rc.RetryMax = c.RetryMaxAttempts
	if c.RetryBaseDelayMs > 0 {
		rc.BaseDelay = time.Duration(c.RetryBaseDelayMs) * time.Millisecond
	}
	if c.RetryMaxDelayMs > 0 {
		rc.MaxDelay = time.Duration(c.RetryMaxDelayMs) * time.Millisecond
	}
	return rc
}

// resolveProvider normalizes a provider name and checks it is registered.
func resolveProvider(name string, c *cfgpkg.Global) (string, error) {
	p := strings.ToLower(strings.TrimSpace(name))
	if p == "" && c != nil {
		p = strings.ToLower(c.DefaultProvider)
	}
	switch p {
	case "":
		p = ai.ProviderGemini
	case "google":
		p = ai.ProviderGemini
	}
	for _, known := range ai.Providers() {
		if known == p {
			return p, nil
		}
	}
	return "", fmt.Errorf("unsupported provider: %s (use %s)", name, strings.Join(ai.Providers(), "|"))
}

// selectModel picks the explicit model, then the configured default, then
// the provider default.
func selectModel(provider string, c *cfgpkg.Global, explicit string) string {
	if m := strings.TrimSpace(explicit); m != "" {
		return m
	}
	if c != nil && c.DefaultModel != "" && (c.DefaultProvider == "" || c.DefaultProvider == provider) {
		return c.DefaultModel
	}
	return ai.DefaultModel(provider)
}

// buildRunner returns the script runner named by flag, or by config.
func buildRunner(c *cfgpkg.Global, name string, execTimeoutSec int, log *zap.Logger) (sandbox.Runner, string, error) {
	if name == "" && c != nil {
		name = c.Runner
	}
	if execTimeoutSec <= 0 && c != nil {
		execTimeoutSec = c.ExecTimeoutSec
	}
	timeout := time.Duration(execTimeoutSec) * time.Second
	switch strings.ToLower(name) {
	case "", "starlark":
		r := sandbox.NewStarlarkRunner(log)
		r.Timeout = timeout
		return r, "starlark", nil
	case "python", "python3":
		py := ""
		if c != nil {
			py = c.PythonPath
		}
		r := sandbox.NewPythonRunner(py, log)
		r.Timeout = timeout
		return r, "python", nil
	default:
		return nil, "", fmt.Errorf("unsupported --runner: %s (use starlark|python)", name)
	}
}

// loadOptions parses the delimiter and number locale flags.
func loadOptions(delimiter, decimal, thousands string) (dataset.Options, error) {
	opt := dataset.DefaultOptions()
	switch delimiter {
	case "":
	case ",":
		opt.Delimiter = ','
	case "\t", "tab":
		opt.Delimiter = '\t'
	case ";":
		opt.Delimiter = ';'
	default:
		return opt, fmt.Errorf("unsupported --delimiter: %s", delimiter)
	}
	switch strings.ToLower(strings.TrimSpace(decimal)) {
	case ",", "comma":
		opt.DecimalSeparator = ','
	case ".", "dot":
		opt.DecimalSeparator = '.'
	case "":
	default:
		return opt, fmt.Errorf("unsupported --decimal: %s (use '.'|'comma')", decimal)
	}
	switch strings.ToLower(strings.TrimSpace(thousands)) {
	case ",":
		opt.ThousandsSeparator = ','
	case ".":
		opt.ThousandsSeparator = '.'
	case "space", " ":
		opt.ThousandsSeparator = ' '
	case "":
	default:
		return opt, fmt.Errorf("unsupported --thousands: %s (use ','|'.'|'space')", thousands)
	}
	return opt, nil
}

// formatAskError wraps a pipeline error with what the user can do next.
func formatAskError(err error, provider string) error {
	switch {
	case errors.Is(err, pipeline.ErrMissingCredential):
		envs := cfgpkg.CredentialEnv(provider)
		return fmt.Errorf("no API key for %s: set %s or run 'vizloom config set api_key <key>'", provider, strings.Join(envs, " or "))
	case errors.Is(err, pipeline.ErrNoDataset):
		return errors.New("no dataset loaded: pass --file <path.csv>")
	}
	if hint := ai.Hint(err); hint != "" {
		return fmt.Errorf("%s: %w", hint, err)
	}
	return fmt.Errorf("analysis failed: %w", err)
}

// writeArtifacts saves figures as PNG, charts as HTML and tables as CSV
// under dir and returns the written paths.
func writeArtifacts(dir string, arts []render.Artifact) ([]string, error) {
	if len(arts) == 0 {
		return nil, nil
	}
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	var paths []string
	for i, a := range arts {
		var (
			ext  string
			data []byte
		)
		switch a.Kind {
		case render.KindFigure:
			ext, data = ".png", a.PNG
		case render.KindChart:
			ext, data = ".html", []byte(a.HTML)
		case render.KindTable:
			ext, data = ".csv", tableCSV(a.Table)
		default:
			continue
		}
		p := utils.ArtifactPath(dir, i+1, a.Label, ext)
		if err := utils.SafeWriteFile(p, data); err != nil {
			return paths, fmt.Errorf("write %s: %w", a.Label, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func tableCSV(f *dataset.Frame) []byte {
	if f == nil {
		return nil
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(f.Columns())
	_ = w.WriteAll(f.Records())
	return buf.Bytes()
}

// printFrame renders up to limit rows of f as a terminal table.
func printFrame(w io.Writer, f *dataset.Frame, limit int) {
	if f == nil {
		return
	}
	shown := f
	if limit > 0 && f.Len() > limit {
		shown = f.Head(limit)
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.Style().Format.Header = text.FormatDefault
	header := table.Row{}
	for _, c := range f.Columns() {
		header = append(header, c)
	}
	t.AppendHeader(header)
	for _, rec := range shown.Records() {
		row := make(table.Row, len(rec))
		for i, v := range rec {
			row[i] = v
		}
		t.AppendRow(row)
	}
	t.Render()
	if shown.Len() < f.Len() {
		fmt.Fprintf(w, "(%d of %d rows)\n", shown.Len(), f.Len())
	} else {
		fmt.Fprintf(w, "(%d rows)\n", f.Len())
	}
}

// renderMarkdown formats model output for the terminal. Plain text is
// returned when styling is unavailable.
func renderMarkdown(src string, width int) string {
	if width <= 0 {
		width = 100
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(width))
	if err != nil {
		return src
	}
	out, err := r.Render(src)
	if err != nil {
		return src
	}
	return out
}

// isTerminal reports whether f looks like an interactive terminal.
func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
