package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaramelBytes/vizloom-cli/internal/pipeline"
	"github.com/KaramelBytes/vizloom-cli/internal/sandbox"
	"github.com/KaramelBytes/vizloom-cli/internal/web"
)

var (
	srvAddr          string
	srvSessionSecret string
	srvProvider      string
	srvModel         string
	srvRunner        string
	srvExecTimeout   int
	srvMaxUploadMB   int
	srvSchema        bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the browser UI",
	Long: `Start a local web UI: upload a dataset, enter an API key, ask a question
and view the generated code, its output, figures, charts and tables.

Each browser session keeps its own key and dataset in memory.`,
	Example: `  vizloom serve
  vizloom serve --addr 127.0.0.1:9000 --provider openai --model gpt-4o-mini
  vizloom serve --runner python --exec-timeout-sec 60`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := currentConfig()
		provider, err := resolveProvider(srvProvider, c)
		if err != nil {
			return err
		}
		model := selectModel(provider, c, srvModel)
		runner, runnerName, err := buildRunner(c, srvRunner, srvExecTimeout, logger)
		if err != nil {
			return err
		}
		opt, err := loadOptions("", "", "")
		if err != nil {
			return err
		}

		addr := c.ListenAddr
		if srvAddr != "" {
			addr = srvAddr
		}
		secret := c.SessionSecret
		if srvSessionSecret != "" {
			secret = srvSessionSecret
		}
		uploadMB := c.MaxUploadMB
		if srvMaxUploadMB > 0 {
			uploadMB = srvMaxUploadMB
		}

		srv := web.NewServer(web.Config{
			Analyzer: &pipeline.Analyzer{
				Runtimes:      pipeline.ProviderFactory(provider, runtimeConfig(c)),
				Runner:        runner,
				Model:         model,
				MaxTokens:     c.MaxTokens,
				Temperature:   c.Temperature,
				IncludeSchema: srvSchema,
				Logger:        logger,
			},
			Addr:           addr,
			SessionSecret:  secret,
			MaxUploadBytes: int64(uploadMB) << 20,
			PreviewRows:    c.PreviewRows,
			LoadOptions:    opt,
			Credential:     c.Credential(provider),
			Provider:       provider,
			Logger:         logger,
		})

		fmt.Fprintf(cmd.ErrOrStderr(), "⚠ %s\n", sandbox.Warning)
		if secret == "" {
			fmt.Fprintln(cmd.ErrOrStderr(), "⚠ No session_secret configured; sessions end when the server restarts.")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Serving on http://%s (provider=%s model=%s runner=%s)\n", displayAddr(addr), provider, model, runnerName)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		start := time.Now()
		if err := srv.Serve(ctx); err != nil {
			return err
		}
		logger.Info("server stopped", zap.Duration("uptime", time.Since(start)))
		return nil
	},
}

func displayAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}

func init() {
	rootCmd.AddCommand(serveCmd)
	f := serveCmd.Flags()
	f.StringVar(&srvAddr, "addr", "", "listen address (default from config listen_addr, :8501)")
	f.StringVar(&srvSessionSecret, "session-secret", "", "cookie signing secret (default from config; random when unset)")
	f.StringVar(&srvProvider, "provider", "", "model provider: gemini|openai|openrouter (default from config)")
	f.StringVar(&srvModel, "model", "", "model name (default from config or provider)")
	f.StringVar(&srvRunner, "runner", "", "script runner: starlark|python (default from config)")
	f.IntVar(&srvExecTimeout, "exec-timeout-sec", 0, "stop generated code after this many seconds (0 = no limit)")
	f.IntVar(&srvMaxUploadMB, "max-upload-mb", 0, "upload size limit in MB (default from config, 50)")
	f.BoolVar(&srvSchema, "schema", false, "include column names and types in the prompt")
}
