package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/withObsrvr/whr-pipeline/consumer"
	"github.com/withObsrvr/whr-pipeline/consumer/dml"
	"github.com/withObsrvr/whr-pipeline/internal/cli/runner"
	"github.com/withObsrvr/whr-pipeline/internal/quality"
)

var emitCmd = &cobra.Command{
	Use:   "emit",
	Short: "Render filtered artifacts as SQL DML for the six-table schema",
	Example: `  whrctl emit --mode strict
  whrctl emit --mode dense --seed 7 --years 2015-2024 --verify`,
	Args:    cobra.NoArgs,
	PreRunE: bindStageFlags,
	RunE:    runEmit,
}

func init() {
	f := emitCmd.Flags()
	f.String("input-dir", "artifacts/filtered", "filtered artifact directory")
	f.String("output-dir", ".", "directory (or object prefix) for the SQL file")
	f.String("sql-file", consumer.DefaultSQLFile, "SQL file name")
	f.String("mode", string(dml.ModeStrict), "strict (observed rows only) or dense (countries x years)")
	f.Int64("seed", dml.DefaultSeed, "seed for values fabricated in dense mode")
	f.String("years", "", "year range for dense mode, e.g. 2015-2024 (default: discovered years)")
	f.String("run-id", "", "run id for the SQL banner (default: random uuid)")
	f.Bool("verify", false, "load the written SQL into an in-memory database and check it")
	rootCmd.AddCommand(emitCmd)
}

func emitConsumer(cmd *cobra.Command) consumer.ConsumerConfig {
	cfg := map[string]interface{}{
		"output_dir": stageString(cmd, "output-dir"),
		"sql_file":   stageString(cmd, "sql-file"),
		"mode":       strings.ToLower(stageString(cmd, "mode")),
		"seed":       stageString(cmd, "seed"),
	}
	if years := stageString(cmd, "years"); years != "" {
		cfg["years"] = years
	}
	if runID := stageString(cmd, "run-id"); runID != "" {
		cfg["run_id"] = runID
	}
	applyStorage(cfg)
	return consumer.ConsumerConfig{Type: "EmitDML", Config: cfg}
}

func runEmit(cmd *cobra.Command, args []string) error {
	pc := runner.PipelineConfig{
		Source: runner.SourceConfig{
			Type: "ArtifactSourceAdapter",
			Config: map[string]interface{}{
				"input_dir":    stageString(cmd, "input-dir"),
				"expect_stage": stageFilter,
			},
		},
		Consumers: []consumer.ConsumerConfig{emitConsumer(cmd)},
	}

	res, err := runStage(cmd, pc)
	if res != nil {
		warnIncomplete(cmd, res)
	}
	if err != nil || !stageBool(cmd, "verify") {
		return err
	}

	if t := pc.Consumers[0].Config["storage_type"]; t != nil && !strings.EqualFold(t.(string), "FS") {
		color.New(color.FgYellow).Fprintln(cmd.OutOrStdout(), "--verify only checks local SQL files; skipped")
		return nil
	}
	path := filepath.Join(stageString(cmd, "output-dir"), stageString(cmd, "sql-file"))
	return verifySQL(cmd, path, quality.Options{EnforceForeignKeys: true})
}

// warnIncomplete flags artifacts that did not come out of the filter stage.
func warnIncomplete(cmd *cobra.Command, res *runner.Result) {
	src, ok := res.Source.(interface{ ManifestStage() string })
	if !ok {
		return
	}
	switch stage := src.ManifestStage(); stage {
	case stageFilter:
	case "":
		color.New(color.FgYellow).Fprintln(cmd.OutOrStdout(), "⚠ input has no manifest; cannot tell which stage produced it")
	default:
		color.New(color.FgYellow).Fprintf(cmd.OutOrStdout(), "⚠ input was produced by %q, not %q: the pipeline is incomplete\n", stage, stageFilter)
	}
}

var verifyCmd = &cobra.Command{
	Use:   "verify [sql file]",
	Short: "Load emitted DML into an in-memory database and check integrity",
	Long: `Load an emitted SQL file into an in-memory SQLite (default) or DuckDB
database with the six-table schema, then report row counts, NULLs,
duplicate (country, year) pairs, orphans, year distribution, indicator
completeness and score/ranking ranges. Exits non-zero on orphans or
duplicate pairs.`,
	Args:    cobra.MaximumNArgs(1),
	PreRunE: bindStageFlags,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := consumer.DefaultSQLFile
		if len(args) == 1 {
			path = args[0]
		}
		engine, err := quality.ParseEngine(stageString(cmd, "engine"))
		if err != nil {
			return err
		}
		return verifySQL(cmd, path, quality.Options{
			Engine:             engine,
			EnforceForeignKeys: stageBool(cmd, "enforce-fk"),
		})
	},
}

func init() {
	verifyCmd.Flags().String("engine", string(quality.EngineSQLite), "database engine: sqlite or duckdb")
	verifyCmd.Flags().Bool("enforce-fk", false, "declare foreign keys so the load itself fails on the first violation")
	rootCmd.AddCommand(verifyCmd)
}

func verifySQL(cmd *cobra.Command, path string, opts quality.Options) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	out := cmd.OutOrStdout()
	report, err := quality.VerifyFile(ctx, path, opts)
	if err != nil {
		printStatus(out, err)
		return errors.Wrapf(err, "verifying %s", path)
	}

	color.New(color.FgCyan, color.Bold).Fprintf(out, "\nverify %s\n", path)
	for _, line := range report.Lines() {
		fmt.Fprintln(out, line)
	}
	for _, p := range report.Problems() {
		c := color.FgRed
		if strings.HasPrefix(p, "warning:") {
			c = color.FgYellow
		}
		color.New(c).Fprintf(out, "  %s\n", p)
	}
	if !report.OK() {
		err := errors.Errorf("%s failed verification", path)
		printStatus(out, err)
		return err
	}
	printStatus(out, nil)
	return nil
}
