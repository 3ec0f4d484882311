package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/ashwinyue/next-datakit/internal/model"
	"github.com/ashwinyue/next-datakit/internal/service/watch"
)

// =============================================================================
// Pipeline Commands
// =============================================================================

func buildRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline over the input directory",
		Long: `Run ingest, generation, tool-use building, curation and compilation
over every matching document in data.input_dir. Artifacts are written under
data.output_dir and the final dataset to final_training_dataset.json.`,
		Example: `  next-datakit run
  next-datakit run --input ./papers --output ./out --per-document`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.perDocumentSet = cmd.Flags().Changed("per-document")
			return runPipeline(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.input, "input", "", "Input directory (overrides data.input_dir)")
	cmd.Flags().StringVar(&opts.output, "output", "", "Output directory (overrides data.output_dir)")
	cmd.Flags().BoolVar(&opts.perDocument, "per-document", false, "Generate and curate each document separately")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print the run summary as JSON")
	return cmd
}

func buildIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Extract and clean the text of one document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, args[0])
		},
	}
	return cmd
}

func buildCreateCmd() *cobra.Command {
	var (
		kind     string
		numPairs int
	)

	cmd := &cobra.Command{
		Use:   "create <file>",
		Short: "Generate QA or chain-of-thought pairs from one document",
		Example: `  next-datakit create paper.pdf --type qa --num-pairs 25
  next-datakit create notes.md --type cot`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := model.ParseKind(kind)
			if err != nil {
				return err
			}
			return runCreate(cmd, args[0], k, numPairs)
		},
	}

	cmd.Flags().StringVarP(&kind, "type", "t", string(model.KindQA), "Generation type: qa or cot")
	cmd.Flags().IntVarP(&numPairs, "num-pairs", "n", 0, "Number of pairs (default from generation config)")
	return cmd
}

func buildCurateCmd() *cobra.Command {
	var (
		kind      string
		threshold float64
	)

	cmd := &cobra.Command{
		Use:   "curate <generated.json>",
		Short: "Rate generated pairs and keep those above the threshold",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := model.ParseKind(kind)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("threshold") {
				threshold = -1
			}
			return runCurate(cmd, args[0], k, threshold)
		},
	}

	cmd.Flags().StringVarP(&kind, "type", "t", string(model.KindQA), "Generation type of the input: qa or cot")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Minimum combined score (default from curate config)")
	return cmd
}

func buildToolUseCmd() *cobra.Command {
	var queries int

	cmd := &cobra.Command{
		Use:   "tooluse <file>",
		Short: "Build tool-use conversations from one document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToolUse(cmd, args[0], queries)
		},
	}

	cmd.Flags().IntVar(&queries, "queries", 0, "Queries per chunk (default from tool_use config)")
	return cmd
}

// =============================================================================
// Server Commands
// =============================================================================

func buildServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API for triggering runs and reading artifacts.

Only one pipeline run executes at a time; a second trigger returns 409.
Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
	return cmd
}

func buildWatchCmd() *cobra.Command {
	var (
		debounce time.Duration
		runFirst bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-run the pipeline when documents are added to the input directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, debounce, runFirst)
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "Quiet period before a run is triggered")
	cmd.Flags().BoolVar(&runFirst, "run-first", false, "Run once before watching")
	return cmd
}

// =============================================================================
// Config Commands
// =============================================================================

func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	printCmd := &cobra.Command{
		Use:   "print",
		Short: "Print the effective configuration as YAML (secrets masked)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigPrint(cmd)
		},
	}

	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSchema(cmd)
		},
	}

	cmd.AddCommand(printCmd, schemaCmd)
	return cmd
}
