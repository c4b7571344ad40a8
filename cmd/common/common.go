// Package common holds the configuration and wiring shared by every command.
package common

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/jonesrussell/re-search/internal/bootstrap"
	"github.com/jonesrussell/re-search/internal/config"
	"github.com/jonesrussell/re-search/internal/logger"
)

// Viper keys bound to persistent flags.
const (
	KeyConfig   = "config"
	KeyDebug    = "debug"
	KeyLogLevel = "log_level"
)

// InitConfig locates the configuration file. An explicit path wins; otherwise
// config.yml is searched in the working directory and ./config. A missing
// file is fine: defaults and the environment still apply.
func InitConfig() error {
	if path := viper.GetString(KeyConfig); path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// LoadConfig loads the configuration found by InitConfig and applies the
// --debug and LOG_LEVEL overrides.
func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.ConfigFileUsed())
	if err != nil {
		return nil, err
	}

	if level := viper.GetString(KeyLogLevel); level != "" {
		cfg.Logging.Level = level
	}
	if viper.GetBool(KeyDebug) {
		cfg.Logging.Level = "debug"
		cfg.Logging.Development = true
		cfg.Server.Debug = true
	}
	return cfg, nil
}

// NewLogger builds the process logger for cfg.
func NewLogger(cfg *config.Config) (logger.Logger, error) {
	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return log, nil
}

// NewApp loads configuration and assembles the service. The caller must
// Close the returned App.
func NewApp(ctx context.Context) (*bootstrap.App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	log, err := NewLogger(cfg)
	if err != nil {
		return nil, err
	}

	app, err := bootstrap.New(ctx, cfg, log)
	if err != nil {
		log.Error("Startup failed", logger.Error(err))
		_ = log.Sync()
		return nil, err
	}
	return app, nil
}
