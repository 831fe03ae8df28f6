package cli

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tansive/tenancy/internal/common/logtrace"
	"github.com/tansive/tenancy/internal/tenancy"
	"github.com/tansive/tenancy/internal/tenancy/config"
	"github.com/tansive/tenancy/internal/tenancy/db/dberror"
)

// DefaultConfigFile is the config file looked up in the working directory.
const DefaultConfigFile = "tenancy.conf"

// ConfigEnv names the environment variable holding the config file path.
const ConfigEnv = "TENANCY_CONFIG"

// GetDefaultConfigPath returns $TENANCY_CONFIG, then ./tenancy.conf, then the file in the
// OS-specific config directory (e.g. ~/.config/tenancy on Linux).
func GetDefaultConfigPath() string {
	if p := os.Getenv(ConfigEnv); p != "" {
		return p
	}
	if _, err := os.Stat(DefaultConfigFile); err == nil {
		return DefaultConfigFile
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		return DefaultConfigFile
	}
	return filepath.Join(configDir, "tenancy", DefaultConfigFile)
}

// loadConfig reads the configuration and initializes the logger from it. Log output
// goes to the command's error stream.
func loadConfig(cmd *cobra.Command, opts *globalOptions) (*config.ConfigParam, error) {
	file := opts.configFile
	if file == "" {
		file = GetDefaultConfigPath()
	}
	cfg, err := config.LoadConfig(file)
	if err != nil {
		return nil, dberror.ErrInvalidInput.MsgErr("unable to load configuration "+file, err)
	}
	logtrace.InitLoggerTo(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Pretty)
	return cfg, nil
}

// withService opens the tenancy service for the duration of fn and flushes metrics
// afterwards, whatever fn returned.
func withService(cmd *cobra.Command, opts *globalOptions, fn func(ctx context.Context, s *tenancy.Service) error) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	ctx := log.Logger.WithContext(cmd.Context())
	ctx = log.Ctx(ctx).With().Str("command", cmd.CommandPath()).Logger().WithContext(ctx)

	s, err := tenancy.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("unable to close database pools")
		}
	}()

	runErr := fn(ctx, s)
	if err := s.FlushMetrics(); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("metrics not written")
	}
	return runErr
}
