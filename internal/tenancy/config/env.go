package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TENANCY_"

// envOverrides lists the settings that may come from the environment. Secrets belong
// here rather than in the config file.
type envOverrides struct {
	DBDriver    *string `mapstructure:"TENANCY_DB_DRIVER"`
	DBHost      *string `mapstructure:"TENANCY_DB_HOST"`
	DBPort      *int    `mapstructure:"TENANCY_DB_PORT"`
	DBName      *string `mapstructure:"TENANCY_DB_NAME"`
	DBUser      *string `mapstructure:"TENANCY_DB_USER"`
	DBPassword  *string `mapstructure:"TENANCY_DB_PASSWORD"`
	DBDataDir   *string `mapstructure:"TENANCY_DB_DATA_DIR"`
	AppKey      *string `mapstructure:"TENANCY_APP_KEY"`
	LogLevel    *string `mapstructure:"TENANCY_LOG_LEVEL"`
	SitesDir    *string `mapstructure:"TENANCY_WEBSERVER_SITES_DIR"`
	Concurrency *int    `mapstructure:"TENANCY_MIGRATION_CONCURRENCY"`
}

// ApplyEnv overlays TENANCY_* variables onto cfg. Variables in envFile are loaded first
// without replacing ones already set in the process environment; a missing file is fine.
func ApplyEnv(cfg *ConfigParam, envFile string) error {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return fmt.Errorf("error loading %s: %w", envFile, err)
			}
		}
	}

	env := map[string]string{}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok && strings.HasPrefix(k, EnvPrefix) {
			env[k] = v
		}
	}
	if len(env) == 0 {
		return nil
	}

	var o envOverrides
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &o,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(env); err != nil {
		return fmt.Errorf("error decoding environment overrides: %w", err)
	}

	set(&cfg.DB.Driver, o.DBDriver)
	set(&cfg.DB.Host, o.DBHost)
	set(&cfg.DB.Port, o.DBPort)
	set(&cfg.DB.DBName, o.DBName)
	set(&cfg.DB.User, o.DBUser)
	set(&cfg.DB.Password, o.DBPassword)
	set(&cfg.DB.DataDir, o.DBDataDir)
	set(&cfg.Tenancy.AppKey, o.AppKey)
	set(&cfg.Log.Level, o.LogLevel)
	set(&cfg.Webserver.SitesDir, o.SitesDir)
	set(&cfg.Tenancy.MigrationConcurrency, o.Concurrency)
	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
