package config

import (
	"time"

	"github.com/procscope/procscope/pkg/projectgroup"
	"github.com/spf13/viper"
)

type Config struct {
	RulesPath        string        `mapstructure:"rulesPath"`
	RootSentinels    []uint32      `mapstructure:"rootSentinels"`
	MarkerFiles      []string      `mapstructure:"markerFiles"`
	MaxLabelLength   int           `mapstructure:"maxLabelLength"`
	ProjectCacheSize int           `mapstructure:"projectCacheSize"`
	ProjectCacheTTL  time.Duration `mapstructure:"projectCacheTTL"`
	ProcfsPath       string        `mapstructure:"procfsPath"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("rulesPath", "rules.yaml")
	viper.SetDefault("rootSentinels", []uint32{0})
	viper.SetDefault("markerFiles", projectgroup.DefaultMarkers)
	viper.SetDefault("maxLabelLength", 120)
	viper.SetDefault("projectCacheSize", 1024)
	viper.SetDefault("projectCacheTTL", time.Minute)
	viper.SetDefault("procfsPath", "/proc")

	viper.AutomaticEnv()

	err := viper.ReadInConfig()
	if err != nil {
		return Config{}, err
	}

	var config Config
	err = viper.Unmarshal(&config)
	return config, err
}
