package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/scalarorg/ismp-relayer/internal/api"
	"github.com/scalarorg/ismp-relayer/internal/relayer"
	"github.com/scalarorg/ismp-relayer/pkg/clients/common"
	"github.com/scalarorg/ismp-relayer/pkg/events"
	"github.com/scalarorg/ismp-relayer/pkg/tracing"
	"github.com/scalarorg/ismp-relayer/pkg/tracker"
	"github.com/spf13/viper"
)

const ENV_PREFIX = "RELAYER"

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type Config struct {
	LogLevel    string               `mapstructure:"log_level" validate:"oneof=trace debug info warn error"`
	LogFormat   string               `mapstructure:"log_format" validate:"oneof=console json"`
	Database    DatabaseConfig       `mapstructure:"database"`
	Api         api.Config           `mapstructure:"api"`
	Tracing     tracing.Config       `mapstructure:"tracing"`
	EventBus    events.Config        `mapstructure:"event_bus"`
	Tracker     relayer.Config       `mapstructure:"tracker"`
	Hyperbridge common.ChainConfig   `mapstructure:"hyperbridge"`
	Chains      []common.ChainConfig `mapstructure:"chains" validate:"required,min=2,dive"`
}

var GlobalConfig *Config

// LoadEnv reads the dotenv file into the process environment. A missing file is not an error.
func LoadEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	viper.AutomaticEnv()
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("database.url", "")
	v.SetDefault("api.listen_address", api.DEFAULT_LISTEN_ADDRESS)
	v.SetDefault("api.shutdown_timeout", api.DEFAULT_SHUTDOWN_TIMEOUT)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.insecure", false)
	v.SetDefault("tracing.service_name", "ismp-relayer")
	v.SetDefault("event_bus.subscriber_buffer", events.DEFAULT_SUBSCRIBER_BUFFER)
	v.SetDefault("tracker.max_streams", relayer.DEFAULT_MAX_STREAMS)
	v.SetDefault("tracker.submit_timeouts", false)
	v.SetDefault("tracker.stream_retries", relayer.DEFAULT_STREAM_RETRIES)
	v.SetDefault("tracker.stream_retry_interval", relayer.DEFAULT_STREAM_RETRY_INTERVAL)
	v.SetDefault("tracker.delivery_scan_window", tracker.DEFAULT_DELIVERY_SCAN_WINDOW)
	v.SetDefault("tracker.challenge_poll_interval", common.DEFAULT_CHALLENGE_POLL_INTERVAL)
	v.SetDefault("tracker.timeout_poll_interval", tracker.DEFAULT_TIMEOUT_POLL_INTERVAL)
	v.SetDefault("tracker.signer", "")
}

// Load reads the config file at path, applies RELAYER_ prefixed env overrides and validates it.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(ENV_PREFIX)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	//Database url from the environment, as loaded by LoadEnv
	if cfg.Database.URL == "" {
		cfg.Database.URL = viper.GetString("DATABASE_URL")
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	GlobalConfig = &cfg
	return &cfg, nil
}
