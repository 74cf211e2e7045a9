package cmd

import (
	"context"
	"os"
	"os/signal"
	"sort"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/withObsrvr/whr-pipeline/internal/cli/runner"
	"github.com/withObsrvr/whr-pipeline/internal/config"
)

var (
	// factories is set by main.go during initialization
	factories runner.Factories

	dryRun       bool
	pipelineName string

	runCmd = &cobra.Command{
		Use:   "run [config file]",
		Short: "Run pipelines from a configuration file",
		Long:  "Execute every pipeline defined in a YAML file, in name order, stopping at the first failure",
		Args:  cobra.ExactArgs(1),
		Example: `  whrctl run pipelines.yaml
  whrctl run --pipeline emit pipelines.yaml
  whrctl run --dry-run pipelines.yaml`,
		RunE: runPipelines,
	}
)

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate configuration without running the pipelines")
	runCmd.Flags().StringVar(&pipelineName, "pipeline", "", "Run only the named pipeline")
	rootCmd.AddCommand(runCmd)
}

// SetFactories sets the factory functions for creating pipeline components
func SetFactories(f runner.Factories) {
	factories = f
}

func runPipelines(cmd *cobra.Command, args []string) error {
	configFile := args[0]
	out := cmd.OutOrStdout()

	if dryRun {
		color.New(color.FgYellow).Fprintf(out, "Validating pipeline configuration from %s\n", configFile)
		if err := validateFile(cmd, configFile); err != nil {
			return errors.Wrap(err, "configuration validation failed")
		}
		color.New(color.FgGreen).Fprintln(out, "✓ configuration is valid")
		return nil
	}

	color.New(color.FgGreen).Fprintf(out, "Starting pipelines from %s\n", configFile)

	ctx, cancel := signalContext(cmd)
	defer cancel()

	results, err := runner.New(runner.Options{
		ConfigFile: configFile,
		Pipeline:   pipelineName,
		Verbose:    verbose,
	}, factories).Run(ctx)

	for _, res := range results {
		printResult(out, res)
	}
	printStatus(out, err)
	if err != nil {
		return errors.Wrap(err, "pipeline failed")
	}
	return nil
}

// validateFile loads a pipelines file and validates every pipeline in it,
// printing warnings as it goes.
func validateFile(cmd *cobra.Command, path string) error {
	cfg, err := runner.LoadConfig(path)
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

	var failed int
	for _, name := range names {
		warnings, err := runner.Validate(name, cfg.Pipelines[name], resolver, factories.Known)
		for _, w := range warnings {
			color.New(color.FgYellow).Fprintf(cmd.OutOrStdout(), "  ⚠ %s\n", w)
		}
		if err != nil {
			failed++
			color.New(color.FgRed).Fprintln(cmd.OutOrStdout(), err)
		}
	}
	if failed > 0 {
		return errors.Errorf("%d of %d pipelines are invalid", failed, len(names))
	}
	return nil
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt)
}
