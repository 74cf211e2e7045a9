package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/withObsrvr/whr-pipeline/consumer"
	"github.com/withObsrvr/whr-pipeline/internal/cli/runner"
	"github.com/withObsrvr/whr-pipeline/processor"
)

const (
	stageIngest    = "ingest"
	stageAssignIDs = "assign-ids"
	stageNormalize = "normalize"
	stageFilter    = "filter"
)

var (
	ingestCmd = &cobra.Command{
		Use:     stageIngest,
		Short:   "Read yearly CSV/TSV/XLSX exports into per-year JSON artifacts",
		Example: `  whrctl ingest --input-dir data --output-dir artifacts/ingested`,
		Args:    cobra.NoArgs,
		PreRunE: bindStageFlags,
		RunE:    runIngest,
	}

	assignIDsCmd = &cobra.Command{
		Use:     stageAssignIDs,
		Short:   "Assign stable country, region and report ids",
		Args:    cobra.NoArgs,
		PreRunE: bindStageFlags,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := runArtifactStage(cmd, "IdentityAssigner", stageIngest, nil)
			return err
		},
	}

	normalizeCmd = &cobra.Command{
		Use:     stageNormalize,
		Short:   "Clamp, round and fill record measures",
		Args:    cobra.NoArgs,
		PreRunE: bindStageFlags,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := runArtifactStage(cmd, "RecordNormalizer", stageAssignIDs, nil)
			return err
		},
	}

	filterCmd = &cobra.Command{
		Use:     stageFilter,
		Short:   "Drop invalid records and validate the corpus identifiers",
		Example: `  whrctl filter --fail-on-issues --parquet-dir exports/parquet`,
		Args:    cobra.NoArgs,
		PreRunE: bindStageFlags,
		RunE:    runFilter,
	}
)

func init() {
	ingestCmd.Flags().String("input-dir", "data", "directory of yearly report files")
	ingestCmd.Flags().String("pattern", "", "glob for year files inside the input dir (default: world_happiness_*)")
	ingestCmd.Flags().String("output-dir", "artifacts/ingested", "artifact output directory")

	addArtifactFlags(assignIDsCmd, "artifacts/ingested", "artifacts/identified")
	addArtifactFlags(normalizeCmd, "artifacts/identified", "artifacts/normalized")
	addArtifactFlags(filterCmd, "artifacts/normalized", "artifacts/filtered")

	filterCmd.Flags().Bool("fail-on-issues", false, "exit non-zero when corpus validation finds issues")
	filterCmd.Flags().String("parquet-dir", "", "also export the filtered corpus as parquet")
	filterCmd.Flags().String("excel-file", "", "also export the filtered corpus as an xlsx workbook")

	for _, c := range []*cobra.Command{ingestCmd, assignIDsCmd, normalizeCmd, filterCmd} {
		c.Flags().Bool("print", false, "print every record as a JSON line")
		rootCmd.AddCommand(c)
	}
}

func addArtifactFlags(cmd *cobra.Command, in, out string) {
	cmd.Flags().String("input-dir", in, "artifact input directory")
	cmd.Flags().String("output-dir", out, "artifact output directory")
}

// bindStageFlags binds the command's flags under "<command>.<flag>", so
// each stage reads its own section of .whrctl.yaml and WHR_<STAGE>_* vars.
func bindStageFlags(cmd *cobra.Command, args []string) error {
	var err error
	cmd.LocalFlags().VisitAll(func(f *pflag.Flag) {
		if bindErr := viper.BindPFlag(stageKey(cmd, f.Name), f); bindErr != nil && err == nil {
			err = bindErr
		}
	})
	return err
}

func stageKey(cmd *cobra.Command, flag string) string {
	return cmd.Name() + "." + strings.ReplaceAll(flag, "-", "_")
}

func stageString(cmd *cobra.Command, flag string) string {
	return viper.GetString(stageKey(cmd, flag))
}

func stageBool(cmd *cobra.Command, flag string) bool {
	return viper.GetBool(stageKey(cmd, flag))
}

func artifactsConsumer(cmd *cobra.Command) consumer.ConsumerConfig {
	return consumer.ConsumerConfig{
		Type: "WriteArtifacts",
		Config: map[string]interface{}{
			"output_dir": stageString(cmd, "output-dir"),
			"stage":      cmd.Name(),
		},
	}
}

func withPrint(cmd *cobra.Command, consumers []consumer.ConsumerConfig) []consumer.ConsumerConfig {
	if stageBool(cmd, "print") {
		consumers = append(consumers, consumer.ConsumerConfig{Type: "StdoutConsumer"})
	}
	return consumers
}

// runStage runs a programmatically built pipeline and prints its summary.
func runStage(cmd *cobra.Command, pc runner.PipelineConfig) (*runner.Result, error) {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	res, err := runner.RunPipeline(ctx, cmd.Name(), pc, factories)
	printResult(cmd.OutOrStdout(), res)
	printStatus(cmd.OutOrStdout(), err)
	if err != nil {
		return res, errors.Wrapf(err, "%s failed", cmd.Name())
	}
	return res, nil
}

// applyStorage merges the global storage settings into an output config.
func applyStorage(cfg map[string]interface{}) {
	if settings != nil {
		settings.Storage.Apply(cfg)
	}
}

func runIngest(cmd *cobra.Command, args []string) error {
	pc := runner.PipelineConfig{
		Source: runner.SourceConfig{
			Type: "TabularSourceAdapter",
			Config: map[string]interface{}{
				"input_dir": stageString(cmd, "input-dir"),
				"pattern":   stageString(cmd, "pattern"),
			},
		},
		Consumers: withPrint(cmd, []consumer.ConsumerConfig{artifactsConsumer(cmd)}),
	}
	_, err := runStage(cmd, pc)
	return err
}

// runArtifactStage reads the previous stage's artifacts, applies one
// processor and writes this stage's artifacts.
func runArtifactStage(cmd *cobra.Command, processorType, previous string, procConfig map[string]interface{}, extra ...consumer.ConsumerConfig) (*runner.Result, error) {
	pc := runner.PipelineConfig{
		Source: runner.SourceConfig{
			Type: "ArtifactSourceAdapter",
			Config: map[string]interface{}{
				"input_dir":    stageString(cmd, "input-dir"),
				"expect_stage": previous,
			},
		},
		Processors: []processor.ProcessorConfig{{Type: processorType, Config: procConfig}},
		Consumers:  withPrint(cmd, append([]consumer.ConsumerConfig{artifactsConsumer(cmd)}, extra...)),
	}
	return runStage(cmd, pc)
}

func runFilter(cmd *cobra.Command, args []string) error {
	var extra []consumer.ConsumerConfig
	if dir := stageString(cmd, "parquet-dir"); dir != "" {
		cfg := map[string]interface{}{"local_path": dir}
		applyStorage(cfg)
		extra = append(extra, consumer.ConsumerConfig{Type: "SaveToParquet", Config: cfg})
	}
	if file := stageString(cmd, "excel-file"); file != "" {
		extra = append(extra, consumer.ConsumerConfig{Type: "SaveToExcel", Config: map[string]interface{}{"file_path": file}})
	}

	res, err := runArtifactStage(cmd, "IntegrityFilter", stageNormalize,
		map[string]interface{}{"fail_on_issues": stageBool(cmd, "fail-on-issues")}, extra...)
	printCorpusReport(cmd, res)
	return err
}

// printCorpusReport lists the corpus validation issues found by the
// filter, if it got far enough to see the corpus.
func printCorpusReport(cmd *cobra.Command, res *runner.Result) {
	if res == nil {
		return
	}
	for _, c := range res.Components {
		f, ok := c.(*processor.IntegrityFilter)
		if !ok {
			continue
		}
		report := f.CorpusReport()
		out := cmd.OutOrStdout()
		if report.OK() {
			color.New(color.FgGreen).Fprintf(out, "corpus: %d countries, identifiers consistent\n", report.Countries)
			return
		}
		color.New(color.FgYellow).Fprintf(out, "corpus: %d issues\n", len(report.Issues))
		for _, issue := range report.Issues {
			fmt.Fprintf(out, "  - %s\n", issue)
		}
		return
	}
}
