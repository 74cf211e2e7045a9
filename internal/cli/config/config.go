package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Settings are the whrctl defaults read from .whrctl.yaml, WHR_* env vars
// and flags.
type Settings struct {
	LogLevel  string          `mapstructure:"log_level"`
	LogFormat string          `mapstructure:"log_format"`
	Storage   StorageSettings `mapstructure:"storage"`
}

// StorageSettings select where stage outputs go. They are merged into
// every consumer config built by the stage commands.
type StorageSettings struct {
	Type            string `mapstructure:"storage_type"`
	BucketName      string `mapstructure:"bucket_name"`
	PathPrefix      string `mapstructure:"path_prefix"`
	Region          string `mapstructure:"region"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// SetDefaults registers the defaults and the env binding on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("storage.storage_type", "FS")

	v.SetEnvPrefix("WHR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

func Load(v *viper.Viper) (*Settings, error) {
	var cfg Settings
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decoding settings")
	}
	return &cfg, nil
}

// Apply copies the non-empty storage settings into a consumer config.
// Keys already present in config win.
func (s StorageSettings) Apply(config map[string]interface{}) {
	set := func(key, value string) {
		if value == "" {
			return
		}
		if _, ok := config[key]; !ok {
			config[key] = value
		}
	}
	set("storage_type", s.Type)
	set("bucket_name", s.BucketName)
	set("path_prefix", s.PathPrefix)
	set("region", s.Region)
	set("credentials_file", s.CredentialsFile)
}
