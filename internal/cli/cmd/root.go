package cmd

import (
	"os"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cliconfig "github.com/withObsrvr/whr-pipeline/internal/cli/config"
	"github.com/withObsrvr/whr-pipeline/internal/logging"
)

var (
	cfgFile string
	verbose bool

	settings *cliconfig.Settings

	rootCmd = &cobra.Command{
		Use:   "whrctl",
		Short: "World Happiness Report ETL",
		Long: color.CyanString(`whrctl turns yearly World Happiness Report exports into a normalized
relational dataset: ingest, assign ids, normalize, filter and emit SQL DML.`),
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}
)

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: $HOME/.whrctl.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output (same as --log-level debug)")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-format", "text", "log format: text or json")
	flags.String("storage-type", "", "output storage for SQL and parquet: FS, GCS or S3")
	flags.String("bucket", "", "bucket for GCS/S3 output")
	flags.String("path-prefix", "", "object key prefix for GCS/S3 output")

	viper.BindPFlag("verbose", flags.Lookup("verbose"))
	viper.BindPFlag("log_level", flags.Lookup("log-level"))
	viper.BindPFlag("log_format", flags.Lookup("log-format"))
	viper.BindPFlag("storage.storage_type", flags.Lookup("storage-type"))
	viper.BindPFlag("storage.bucket_name", flags.Lookup("bucket"))
	viper.BindPFlag("storage.path_prefix", flags.Lookup("path-prefix"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, _ := os.UserHomeDir()
		viper.AddConfigPath(home)
		viper.SetConfigName(".whrctl")
	}

	cliconfig.SetDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil {
		log.WithField("file", viper.ConfigFileUsed()).Debug("using config file")
	}
}

func setup(cmd *cobra.Command, args []string) error {
	s, err := cliconfig.Load(viper.GetViper())
	if err != nil {
		return err
	}
	if viper.GetBool("verbose") {
		s.LogLevel = "debug"
	}
	logging.SetOutput(cmd.ErrOrStderr())
	if err := logging.Setup(s.LogLevel, s.LogFormat); err != nil {
		return err
	}
	settings = s
	return nil
}
