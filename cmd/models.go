package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/vizloom-cli/internal/ai"
	"github.com/KaramelBytes/vizloom-cli/internal/utils"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage or inspect model catalog and pricing",
	Example: `  vizloom models show
  vizloom models show --json
  vizloom models recommend --provider openai --tier cheap
  vizloom models sync --file ./models.json --merge
  vizloom models fetch --provider openrouter --merge --output models.json`,
}

var (
	showJSON     bool
	showProvider string
)

var modelsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current model catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat := ai.Catalog()
		keys := make([]string, 0, len(cat))
		for k, m := range cat {
			if showProvider != "" && m.Provider != showProvider {
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if showJSON {
			m := make(map[string]ai.ModelInfo, len(keys))
			for _, k := range keys {
				m[k] = cat[k]
			}
			b, err := utils.PrettyJSON(m)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		}
		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"model", "provider", "context", "$/1K in", "$/1K out"})
		for _, k := range keys {
			m := cat[k]
			t.AppendRow(table.Row{k, m.Provider, m.ContextTokens, m.InputPerK, m.OutputPerK})
		}
		t.Render()
		return nil
	},
}

var (
	recProvider string
	recTier     string
)

var modelsRecommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Suggest a model for a cost tier (cheap|balanced|high-context)",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := resolveProvider(recProvider, cfg)
		if err != nil {
			return err
		}
		m, ok := ai.RecommendModel(p, recTier)
		if !ok {
			return fmt.Errorf("unknown tier %q (use cheap|balanced|high-context)", recTier)
		}
		fmt.Fprintln(cmd.OutOrStdout(), m)
		return nil
	},
}

var (
	syncPath  string
	syncMerge bool
)

var modelsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Load model catalog/pricing from a JSON file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if syncPath == "" {
			return fmt.Errorf("--file is required")
		}
		m, err := ai.LoadCatalogFromJSON(syncPath)
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
		ai.ApplyCatalog(m, syncMerge)
		if syncMerge {
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Merged model catalog from file")
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Replaced model catalog from file")
		}
		return nil
	},
}

// providerURL returns the catalog URL for a provider, from
// VIZLOOM_<PROVIDER>_CATALOG_URL. Empty when unset.
func providerURL(name string) string {
	return os.Getenv("VIZLOOM_" + strings.ToUpper(name) + "_CATALOG_URL")
}

var (
	fetchURL      string
	fetchOutput   string
	fetchMerge    bool
	fetchProvider string
)

var modelsFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch model catalog/pricing JSON from a URL and apply it",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		url := fetchURL
		if url == "" && fetchProvider != "" {
			url = providerURL(fetchProvider)
		}
		var (
			m   map[string]ai.ModelInfo
			src string
		)
		switch {
		case url != "":
			got, err := ai.FetchCatalog(cmd.Context(), url)
			if err != nil {
				return err
			}
			m, src = got, "fetched catalog"
		case fetchProvider != "":
			preset, ok := ai.PresetCatalog(fetchProvider)
			if !ok {
				return fmt.Errorf("no catalog URL or built-in preset for provider %q", fetchProvider)
			}
			m, src = preset, fmt.Sprintf("built-in '%s' preset", fetchProvider)
		default:
			return fmt.Errorf("--url is required (or specify --provider with a known preset)")
		}
		if fetchOutput != "" {
			b, err := utils.PrettyJSON(m)
			if err != nil {
				return err
			}
			if err := utils.SafeWriteFile(fetchOutput, b); err != nil {
				return fmt.Errorf("write file: %w", err)
			}
			fmt.Fprintf(out, "💾 Saved catalog to %s\n", fetchOutput)
		}
		ai.ApplyCatalog(m, fetchMerge)
		if fetchMerge {
			fmt.Fprintf(out, "✓ Merged %s into in-memory catalog\n", src)
		} else {
			fmt.Fprintf(out, "✓ Replaced in-memory catalog with %s\n", src)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.AddCommand(modelsShowCmd)
	modelsCmd.AddCommand(modelsRecommendCmd)
	modelsCmd.AddCommand(modelsSyncCmd)
	modelsCmd.AddCommand(modelsFetchCmd)

	modelsShowCmd.Flags().BoolVar(&showJSON, "json", false, "print the catalog as JSON")
	modelsShowCmd.Flags().StringVar(&showProvider, "provider", "", "only show models for this provider")

	modelsRecommendCmd.Flags().StringVar(&recProvider, "provider", "", "provider (default from config)")
	modelsRecommendCmd.Flags().StringVar(&recTier, "tier", "balanced", "cheap|balanced|high-context")

	modelsSyncCmd.Flags().StringVar(&syncPath, "file", "", "path to JSON catalog file")
	modelsSyncCmd.Flags().BoolVar(&syncMerge, "merge", false, "merge into existing catalog instead of replacing")

	modelsFetchCmd.Flags().StringVar(&fetchURL, "url", "", "URL to JSON catalog file")
	modelsFetchCmd.Flags().StringVar(&fetchOutput, "output", "", "optional path to save the fetched JSON")
	modelsFetchCmd.Flags().BoolVar(&fetchMerge, "merge", false, "merge into existing catalog instead of replacing")
	modelsFetchCmd.Flags().StringVar(&fetchProvider, "provider", "", "provider preset (e.g. 'openrouter') to resolve the catalog URL if --url is not set")
}
