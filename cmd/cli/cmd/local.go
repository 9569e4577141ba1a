package cmd

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"shipyard/internal/analyzer"
	"shipyard/internal/config"
	"shipyard/internal/generate"
	"shipyard/internal/llm"
	"shipyard/internal/worker"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// profileSource analyzes source, cloning it into a temporary directory when it is not
// a local path. The returned cleanup removes the clone.
func profileSource(ctx context.Context, source string, opts analyzer.Options) (analyzer.Profile, func(), error) {
	cleanup := func() {}
	if _, err := os.Stat(source); err == nil {
		abs, err := filepath.Abs(source)
		if err != nil {
			return analyzer.Profile{}, cleanup, err
		}
		source = abs
	}

	tmp, err := os.MkdirTemp("", "shipctl-")
	if err != nil {
		return analyzer.Profile{}, cleanup, err
	}
	cleanup = func() { os.RemoveAll(tmp) }

	fetcher := &analyzer.Fetcher{Token: viper.GetString("github_token")}
	root, err := fetcher.Fetch(ctx, source, filepath.Join(tmp, "repo"))
	if err != nil {
		return analyzer.Profile{}, cleanup, err
	}
	profile, err := analyzer.New(opts).Analyze(root)
	if err != nil {
		return analyzer.Profile{}, cleanup, err
	}
	if profile.Name == "" || profile.Name == "repo" {
		profile.Name = analyzer.ProjectName(source)
	}
	return profile, cleanup, nil
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [path_or_repo_url]",
	Short: "Profile a repository locally",
	Long: `Scan a repository the way the worker does and print its profile: source files,
notebooks, dependency and model files, detected frameworks and entry points.

Example:
  shipctl analyze ./churn-model
  shipctl analyze https://github.com/acme/churn-model --format json`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		format, _ := cmd.Flags().GetString("format")
		depth, _ := cmd.Flags().GetInt("tree-depth")

		profile, cleanup, err := profileSource(cmd.Context(), args[0], analyzer.Options{TreeDepth: depth})
		defer cleanup()
		if err != nil {
			cmd.Printf("Analysis failed: %v\n", err)
			return
		}

		switch format {
		case "json":
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			enc.Encode(profile)
		default:
			printProfile(cmd, profile)
		}
	},
}

func printProfile(cmd *cobra.Command, p analyzer.Profile) {
	cmd.Printf("%sRepository Profile%s\n", colorBold, colorReset)
	cmd.Println("──────────────────────────────")
	list := func(label string, items []string) {
		value := "-"
		if len(items) > 0 {
			value = strings.Join(items, ", ")
		}
		cmd.Printf("%s%-13s%s %s\n", colorDim, label+":", colorReset, value)
	}
	cmd.Printf("%s%-13s%s %s\n", colorDim, "Name:", colorReset, p.Name)
	cmd.Printf("%s%-13s%s %d\n", colorDim, "Source files:", colorReset, len(p.SourceFiles))
	cmd.Printf("%s%-13s%s %d\n", colorDim, "Notebooks:", colorReset, len(p.NotebookFiles))
	list("Frameworks", p.Frameworks)
	list("Entry points", p.EntryPoints)
	list("Dependencies", p.DependencyFiles)
	list("Models", p.ModelFiles)
	cmd.Printf("%s%-13s%s %t\n", colorDim, "GPU:", colorReset, p.NeedsGPU())
	if p.Tree != "" {
		cmd.Println()
		cmd.Println(p.Tree)
	}
}

var generateCmd = &cobra.Command{
	Use:   "generate [path_or_repo_url]",
	Short: "Generate deployment artifacts locally",
	Long: `Profile a repository and write the full artifact set (Dockerfile, serving app,
training script, CI workflows and Kubernetes manifests) into a directory.

The text-generation backend comes from the worker configuration (shipyard.yaml and
GROQ_API_KEY/GEMINI_API_KEY); with --provider none every artifact uses its template.

Example:
  shipctl generate ./churn-model --out ./deploy --provider none`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		out, _ := flags.GetString("out")
		provider, _ := flags.GetString("provider")
		workerConfig, _ := flags.GetString("worker-config")
		params := generate.Params{}
		params.ProjectName, _ = flags.GetString("name")
		params.RegistryURL, _ = flags.GetString("registry")
		params.Namespace, _ = flags.GetString("namespace")

		cfg, err := config.Load(workerConfig)
		if err != nil {
			cmd.Printf("Failed to load config: %v\n", err)
			return
		}
		if provider != "" {
			cfg.LLM.Provider = strings.ToLower(provider)
		}
		backend, err := llm.New(cfg.LLM)
		if err != nil {
			cmd.Printf("Failed to configure text generation: %v\n", err)
			return
		}

		profile, cleanup, err := profileSource(cmd.Context(), args[0], analyzer.Options{
			FrameworkScanLimit: cfg.Analyzer.FrameworkScanLimit,
			TreeDepth:          cfg.Analyzer.TreeDepth,
		})
		defer cleanup()
		if err != nil {
			cmd.Printf("Analysis failed: %v\n", err)
			return
		}

		gen := generate.NewGenerator(generate.DefaultSpecs(backend), nil, nil)
		var set worker.ArtifactSet
		for _, a := range gen.GenerateAll(cmd.Context(), profile, params.Resolve(profile)) {
			set.Put(a)
		}
		if err := set.WriteDir(out); err != nil {
			cmd.Printf("Failed to write artifacts: %v\n", err)
			return
		}

		for _, a := range set.All() {
			marker := colorGreen + "✓" + colorReset
			if a.Source == generate.Fallback {
				marker = colorYellow + "◯" + colorReset
			}
			cmd.Printf("%s %s %s(%s)%s\n", marker, a.Path, colorDim, a.Source, colorReset)
		}
		cmd.Printf("Wrote %d artifacts to %s\n", set.Len(), out)
	},
}

func init() {
	analyzeCmd.Flags().StringP("format", "f", "text", "Output format: text or json")
	analyzeCmd.Flags().Int("tree-depth", 3, "Depth of the rendered directory tree")

	flags := generateCmd.Flags()
	flags.StringP("out", "o", "shipyard-out", "Directory to write the artifacts to (replaced if it exists)")
	flags.String("provider", "", "Text-generation backend: groq, gemini or none (default from config)")
	flags.String("worker-config", "", "Path to the worker config file (default: ./shipyard.yaml)")
	flags.String("name", "", "Project name (default: derived from the repository)")
	flags.String("registry", "", "Container registry for the image reference")
	flags.String("namespace", "", "Kubernetes namespace for the manifests")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(generateCmd)
}
