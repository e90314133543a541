package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/KaramelBytes/vizloom-cli/internal/ai"
	"github.com/KaramelBytes/vizloom-cli/internal/dataset"
	"github.com/KaramelBytes/vizloom-cli/internal/extract"
	"github.com/KaramelBytes/vizloom-cli/internal/pipeline"
	"github.com/KaramelBytes/vizloom-cli/internal/prompt"
	"github.com/KaramelBytes/vizloom-cli/internal/render"
	"github.com/KaramelBytes/vizloom-cli/internal/sandbox"
	"github.com/KaramelBytes/vizloom-cli/internal/utils"
)

var (
	askFile          string
	askQuery         string
	askProvider      string
	askModel         string
	askStream        bool
	askOut           string
	askJSON          bool
	askPrintPrompt   bool
	askDryRun        bool
	askSchema        bool
	askTimeoutSec    int
	askExecTimeout   int
	askRunner        string
	askMaxTokens     int
	askTemperature   float64
	askDelimiter     string
	askDecimal       string
	askThousands     string
	askTableRows     int
	askNoMarkdownOut bool
	askShowBlocks    bool
)

// runtimeFactory builds model runtimes for ask.
var runtimeFactory = pipeline.ProviderFactory

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Ask a question about a dataset and run the generated analysis",
	Example: `  vizloom ask --file scores.csv --query "average score per class as a bar chart"
  vizloom ask --file sales.tsv --provider openai --model gpt-4o-mini --out ./charts
  vizloom ask --file data.csv --runner python --stream
  vizloom ask --file data.csv --print-prompt --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		defer func() {
			// Reset flags so repeated Execute calls in one process start clean.
			cmd.Flags().Visit(func(fl *pflag.Flag) { _ = fl.Value.Set(fl.DefValue); fl.Changed = false })
		}()
		if askFile == "" {
			return fmt.Errorf("--file is required")
		}
		c := currentConfig()
		opt, err := loadOptions(askDelimiter, askDecimal, askThousands)
		if err != nil {
			return err
		}
		ds, err := dataset.LoadFile(askFile, opt)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "✓ Loaded %s: %d rows, %d columns\n", ds.Name(), ds.Len(), ds.Width())

		provider, err := resolveProvider(askProvider, c)
		if err != nil {
			return err
		}
		model := selectModel(provider, c, askModel)
		runner, runnerName, err := buildRunner(c, askRunner, askExecTimeout, logger)
		if err != nil {
			return err
		}
		rc := runtimeConfig(c)
		if askTimeoutSec > 0 {
			rc.HTTPTimeout = time.Duration(askTimeoutSec) * time.Second
		}
		an := &pipeline.Analyzer{
			Runtimes:      runtimeFactory(provider, rc),
			Runner:        runner,
			Model:         model,
			MaxTokens:     c.MaxTokens,
			Temperature:   c.Temperature,
			IncludeSchema: askSchema,
			Logger:        logger,
		}
		if cmd.Flags().Changed("max-tokens") {
			an.MaxTokens = askMaxTokens
		}
		if cmd.Flags().Changed("temperature") {
			an.Temperature = askTemperature
		}

		query := askQuery
		if askPrintPrompt || askDryRun {
			fmt.Fprintln(out, "\n--print-prompt: sending the following prompt --")
			fmt.Fprintln(out, an.Prompt(ds, queryOrDefault(query)))
		}
		tokens := utils.CountTokens(an.Prompt(ds, queryOrDefault(query)))
		if info, ok := ai.LookupModel(model); ok && info.ContextTokens > 0 && !utils.FitsContext(tokens, an.MaxTokens, info.ContextTokens) {
			fmt.Fprintf(out, "⚠ Prompt (~%d tokens) plus max_tokens may exceed the %d token context of %s\n", tokens, info.ContextTokens, model)
		}
		if askDryRun {
			printTokenBreakdown(out, an.PromptInput(ds, queryOrDefault(query)))
			fmt.Fprintf(out, "✓ Dry run: ~%d prompt tokens for %s/%s\n", tokens, provider, model)
			return nil
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "⚠ %s\n", sandbox.Warning)
		fmt.Fprintf(out, "⚙ Generating with provider=%s model=%s runner=%s\n", provider, model, runnerName)
		if askStream && !askJSON {
			fmt.Fprintln(out, "(streaming)")
			an.OnDelta = func(d string) { fmt.Fprint(out, d) }
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		res, err := an.Analyze(ctx, pipeline.Session{Credential: c.Credential(provider), Dataset: ds}, query)
		if err != nil {
			return formatAskError(err, provider)
		}
		if askStream && !askJSON {
			fmt.Fprintln(out)
		}
		logger.Debug("analysis finished", zap.String("state", string(res.State)), zap.Int("artifacts", len(res.Artifacts)))

		var paths []string
		if askOut != "" {
			if paths, err = writeArtifacts(askOut, res.Artifacts); err != nil {
				return err
			}
		}
		if askJSON {
			return writeAskJSON(out, res, paths)
		}
		printResult(out, res, !askStream)
		if askShowBlocks {
			printBlocks(out, res.Response)
		}
		for _, p := range paths {
			fmt.Fprintf(out, "💾 Saved %s\n", p)
		}
		if res.State == pipeline.StateFailed {
			return fmt.Errorf("generated code failed: %s", res.Error)
		}
		return nil
	},
}

func section(w io.Writer, title string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render("=== "+title+" ==="))
}

func queryOrDefault(q string) string {
	if q == "" {
		return prompt.DefaultQuery
	}
	return q
}

// printTokenBreakdown lists estimated tokens per prompt section.
func printTokenBreakdown(w io.Writer, in prompt.Input) {
	order := []string{"instructions", "schema", "runtime notes", "query"}
	counts := utils.TokenBreakdown(map[string]string{
		"instructions":  prompt.System(prompt.Input{DatasetName: in.DatasetName}),
		"schema":        in.Schema,
		"runtime notes": strings.Join(in.DialectNotes, "\n"),
		"query":         in.Query,
	})
	fmt.Fprintln(w, "Token breakdown:")
	for _, k := range order {
		if counts[k] > 0 {
			fmt.Fprintf(w, "  %-14s ~%d\n", k, counts[k])
		}
	}
}

// printResult writes a terminal rendering of res.
func printResult(w io.Writer, res *pipeline.Result, showResponse bool) {
	if showResponse {
		section(w, "Model Response")
		if askNoMarkdownOut || !isTerminal(os.Stdout) {
			fmt.Fprintln(w, res.Response)
		} else {
			fmt.Fprint(w, renderMarkdown(res.Response, 100))
		}
	}
	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "⚠ %s\n", warn)
	}
	if res.Code != "" {
		section(w, "Generated Code")
		fmt.Fprintln(w, res.Code)
	}
	if res.Output != "" {
		section(w, "Output")
		fmt.Fprint(w, res.Output)
	}
	if res.Error != "" {
		fmt.Fprintf(w, "✗ Error while executing code: %s\n", res.Error)
	}
	var figures, charts int
	for _, a := range res.Artifacts {
		switch a.Kind {
		case render.KindTable:
			section(w, a.Label)
			printFrame(w, a.Table, askTableRows)
		case render.KindFigure:
			figures++
		case render.KindChart:
			charts++
		}
	}
	if figures+charts > 0 {
		fmt.Fprintf(w, "\n%d figure(s), %d interactive chart(s); pass --out <dir> to save them\n", figures, charts)
	}
	fmt.Fprintf(w, "\n%s · %s", res.Model, res.Elapsed.Round(time.Millisecond))
	if u := res.Usage; u.TotalTokens > 0 {
		fmt.Fprintf(w, " · %d prompt + %d completion tokens", u.PromptTokens, u.CompletionTokens)
		if cost, ok := ai.EstimateCostUSD(res.Model, u.PromptTokens, u.CompletionTokens); ok && cost > 0 {
			fmt.Fprintf(w, " (~$%.4f)", cost)
		}
	}
	fmt.Fprintln(w)
	if res.OK() {
		fmt.Fprintln(w, "✓ Analysis complete")
	}
}

// printBlocks lists every fenced block in the response with its language
// tag. Only the first python block is executed.
func printBlocks(w io.Writer, response string) {
	blocks := extract.Blocks(response)
	section(w, fmt.Sprintf("Fenced blocks (%d)", len(blocks)))
	for i, b := range blocks {
		lang := b.Lang
		if lang == "" {
			lang = "(none)"
		}
		fmt.Fprintf(w, "%d. %s, %d lines\n", i+1, lang, strings.Count(b.Body, "\n")+1)
	}
}

type askArtifactJSON struct {
	Kind  string `json:"kind"`
	Label string `json:"label"`
	Path  string `json:"path,omitempty"`
	Rows  int    `json:"rows,omitempty"`
}

func writeAskJSON(w io.Writer, res *pipeline.Result, paths []string) error {
	arts := make([]askArtifactJSON, 0, len(res.Artifacts))
	for i, a := range res.Artifacts {
		aj := askArtifactJSON{Kind: string(a.Kind), Label: a.Label}
		if i < len(paths) {
			aj.Path = paths[i]
		}
		if a.Table != nil {
			aj.Rows = a.Table.Len()
		}
		arts = append(arts, aj)
	}
	out := map[string]any{
		"query":         res.Query,
		"model":         res.Model,
		"state":         res.State,
		"response":      res.Response,
		"code":          res.Code,
		"output":        res.Output,
		"error":         res.Error,
		"warnings":      res.Warnings,
		"artifacts":     arts,
		"request_id":    res.RequestID,
		"prompt_tokens": res.Usage.PromptTokens,
		"output_tokens": res.Usage.CompletionTokens,
		"elapsed_ms":    res.Elapsed.Milliseconds(),
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	fmt.Fprintln(w, string(b))
	return nil
}

func init() {
	rootCmd.AddCommand(askCmd)
	f := askCmd.Flags()
	f.StringVarP(&askFile, "file", "f", "", "path to a CSV/TSV dataset")
	f.StringVarP(&askQuery, "query", "q", "", "question to ask about the dataset (default: compare averages by category)")
	f.StringVar(&askProvider, "provider", "", "model provider: gemini|openai|openrouter (default from config)")
	f.StringVar(&askModel, "model", "", "model name (default from config or provider)")
	f.BoolVar(&askStream, "stream", false, "stream the model response as it arrives")
	f.StringVar(&askOut, "out", "", "directory to save figures (PNG), charts (HTML) and tables (CSV)")
	f.BoolVar(&askJSON, "json", false, "print the result as JSON")
	f.BoolVar(&askPrintPrompt, "print-prompt", false, "print the prompt before sending it")
	f.BoolVar(&askDryRun, "dry-run", false, "build the prompt and stop before calling the model")
	f.BoolVar(&askSchema, "schema", false, "include column names and types in the prompt")
	f.IntVar(&askTimeoutSec, "timeout-sec", 0, "model request timeout in seconds (overrides config)")
	f.IntVar(&askExecTimeout, "exec-timeout-sec", 0, "stop generated code after this many seconds (0 = no limit)")
	f.StringVar(&askRunner, "runner", "", "script runner: starlark|python (default from config)")
	f.IntVar(&askMaxTokens, "max-tokens", 0, "max completion tokens (overrides config)")
	f.Float64Var(&askTemperature, "temperature", 0, "sampling temperature (overrides config)")
	f.StringVar(&askDelimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab'")
	f.StringVar(&askDecimal, "decimal", "", "decimal separator for numbers: '.'|'comma' (auto-detect if omitted)")
	f.StringVar(&askThousands, "thousands", "", "thousands separator for numbers: ','|'.'|'space' (auto-detect if omitted)")
	f.IntVar(&askTableRows, "table-rows", 20, "max rows printed per result table (0 = all)")
	f.BoolVar(&askNoMarkdownOut, "plain", false, "print the model response without terminal styling")
	f.BoolVar(&askShowBlocks, "show-blocks", false, "list every fenced block found in the response")
}
