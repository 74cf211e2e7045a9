package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/withObsrvr/whr-pipeline/internal/cli/runner"
	"github.com/withObsrvr/whr-pipeline/internal/config"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Pipeline configuration commands",
	Long:  `Commands for validating and explaining pipeline configuration files.`,
}

var validateCmd = &cobra.Command{
	Use:   "validate [config file]",
	Short: "Validate a pipelines file",
	Long:  `Check every pipeline for unknown component types and bad config values, with suggestions for typos.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFile(cmd, args[0]); err != nil {
			return err
		}
		color.New(color.FgGreen).Fprintln(cmd.OutOrStdout(), "✓ configuration is valid")
		return nil
	},
}

var componentDescriptions = map[string]string{
	"TabularSourceAdapter":  "reads yearly CSV/TSV/XLSX report files",
	"ArtifactSourceAdapter": "replays per-year JSON artifacts of a previous stage",
	"IdentityAssigner":      "assigns country, region and report ids",
	"RecordNormalizer":      "clamps, rounds and fills measures",
	"IntegrityFilter":       "drops invalid records and validates the corpus",
	"WriteArtifacts":        "writes per-year JSON artifacts and a run manifest",
	"EmitDML":               "renders the corpus as SQL DML",
	"SaveToParquet":         "exports records as parquet",
	"SaveToExcel":           "exports records as an xlsx workbook",
	"StdoutConsumer":        "prints records as JSON lines",
}

var explainCmd = &cobra.Command{
	Use:   "explain [config file]",
	Short: "Explain what a pipelines file does",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := runner.LoadConfig(args[0])
		if err != nil {
			return err
		}
		resolver, err := config.NewAliasResolver()
		if err != nil {
			return err
		}

		names := make([]string, 0, len(cfg.Pipelines))
		for name := range cfg.Pipelines {
			names = append(names, name)
		}
		sort.Strings(names)

		out := cmd.OutOrStdout()
		for _, name := range names {
			pc := runner.Resolve(cfg.Pipelines[name], resolver)
			color.New(color.FgCyan).Fprintf(out, "Pipeline: %s\n", name)
			fmt.Fprintln(out, strings.Repeat("─", 40))

			fmt.Fprintf(out, "Source: %s\n", describe(pc.Source.Type))
			if len(pc.Processors) > 0 {
				fmt.Fprintf(out, "Processors (%d):\n", len(pc.Processors))
				for i, p := range pc.Processors {
					fmt.Fprintf(out, "  %d. %s\n", i+1, describe(p.Type))
				}
			}
			if len(pc.Consumers) > 0 {
				fmt.Fprintf(out, "Consumers (%d):\n", len(pc.Consumers))
				for i, c := range pc.Consumers {
					fmt.Fprintf(out, "  %d. %s\n", i+1, describe(c.Type))
				}
			}
			fmt.Fprintln(out)
		}
		return nil
	},
}

func describe(typ string) string {
	if d, ok := componentDescriptions[typ]; ok {
		return fmt.Sprintf("%s - %s", typ, d)
	}
	return typ + " - unknown component"
}

var examplesCmd = &cobra.Command{
	Use:   "examples",
	Short: "Print an example pipelines file",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := fmt.Fprint(cmd.OutOrStdout(), examplePipelines)
		return errors.Wrap(err, "writing example")
	},
}

const examplePipelines = `# whrctl run pipelines.yaml
pipelines:
  whr:
    source:
      type: tabular
      config:
        input_dir: data
    processors:
      - type: assign_ids
      - type: artifacts
        config:
          output_dir: artifacts/identified
          stage: assign-ids
      - type: normalize
      - type: filter
        config:
          fail_on_issues: true
    consumers:
      - type: artifacts
        config:
          output_dir: artifacts/filtered
          stage: filter
      - type: parquet
        config:
          local_path: exports/parquet
          partition_by: year
      - type: dml
        config:
          output_dir: .
          mode: dense
          seed: 42
          years: 2015-2024
`

func init() {
	configCmd.AddCommand(validateCmd, explainCmd, examplesCmd)
	rootCmd.AddCommand(configCmd)
}
