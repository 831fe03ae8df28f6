// Package config loads the tenancy configuration from a TOML file, applies environment
// overrides and validates the result.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"
)

// Version is the configuration file format this build writes and understands.
const Version = "1.0"

// versionConstraint accepts any 1.x patch of the current format.
const versionConstraint = "~1.0"

const (
	DriverPostgres = "postgresql"
	DriverSQLite   = "sqlite"
)

// DBConfig describes how to reach the system database.
type DBConfig struct {
	Driver   string `toml:"driver" validate:"required,oneof=postgresql sqlite"`
	Host     string `toml:"host" validate:"required_if=Driver postgresql"`
	Port     int    `toml:"port" validate:"required_if=Driver postgresql,gte=0,lte=65535"`
	DBName   string `toml:"dbname" validate:"required"`
	User     string `toml:"user" validate:"required_if=Driver postgresql"`
	Password string `toml:"password"`
	SSLMode  string `toml:"sslmode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	DataDir  string `toml:"data_dir" validate:"required_if=Driver sqlite"` // directory holding one file per database (sqlite)
}

// PoolConfig holds per-database pool settings. Every tenant database gets its own pool.
type PoolConfig struct {
	MaxOpenConns    int    `toml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int    `toml:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime string `toml:"conn_max_lifetime"`
	ConnMaxIdleTime string `toml:"conn_max_idle_time"`
	PingAttempts    uint   `toml:"ping_attempts" validate:"gte=1"`
}

// TenancyConfig controls provisioning and migrations.
type TenancyConfig struct {
	// TenantRoles creates a dedicated login role per tenant database (postgresql only).
	TenantRoles bool `toml:"tenant_roles"`
	// AppKey seeds the derivation of tenant database passwords.
	AppKey                string `toml:"app_key" validate:"required_if=TenantRoles true"`
	DefaultMigrationsPath string `toml:"default_migrations_path"`
	MigrationConcurrency  int    `toml:"migration_concurrency" validate:"gte=1"`
}

// WebserverConfig describes where virtual host files are written.
type WebserverConfig struct {
	SitesDir string `toml:"sites_dir"`
	RootDir  string `toml:"root_dir"`
}

// MetricsConfig configures Prometheus collectors.
type MetricsConfig struct {
	Namespace string `toml:"namespace" validate:"required"`
	Textfile  string `toml:"textfile"` // written after each command when set
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level  string `toml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Pretty bool   `toml:"pretty"`
}

// ConfigParam holds all configuration parameters for the tenancy service
type ConfigParam struct {
	FormatVersion string `toml:"format_version" validate:"required"`

	DB        DBConfig        `toml:"db"`
	Pool      PoolConfig      `toml:"pool"`
	Tenancy   TenancyConfig   `toml:"tenancy"`
	Webserver WebserverConfig `toml:"webserver"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Log       LogConfig       `toml:"log"`
}

// Default returns a configuration with every optional value filled in.
func Default() *ConfigParam {
	return &ConfigParam{
		FormatVersion: Version,
		DB: DBConfig{
			Driver:  DriverPostgres,
			Host:    "localhost",
			Port:    5432,
			DBName:  "tenancy",
			User:    "tenancy",
			SSLMode: "disable",
		},
		Pool: PoolConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: "30m",
			ConnMaxIdleTime: "5m",
			PingAttempts:    3,
		},
		Tenancy: TenancyConfig{
			MigrationConcurrency: 4,
		},
		Metrics: MetricsConfig{
			Namespace: "tenancy",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DSN returns the PostgreSQL connection string for the named database using the system
// credentials unless user is set.
func (c *DBConfig) DSN(dbname, user, password string) string {
	if user == "" {
		user, password = c.User, c.Password
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	parts := []string{
		"host=" + dsnValue(c.Host),
		fmt.Sprintf("port=%d", c.Port),
		"user=" + dsnValue(user),
		"dbname=" + dsnValue(dbname),
		"sslmode=" + sslmode,
	}
	if password != "" {
		parts = append(parts, "password="+dsnValue(password))
	}
	return strings.Join(parts, " ")
}

func dsnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// Durations parses the pool lifetimes. Empty values mean zero (no limit).
func (p *PoolConfig) Durations() (lifetime, idle time.Duration, err error) {
	if p.ConnMaxLifetime != "" {
		if lifetime, err = time.ParseDuration(p.ConnMaxLifetime); err != nil {
			return 0, 0, fmt.Errorf("invalid pool.conn_max_lifetime: %w", err)
		}
	}
	if p.ConnMaxIdleTime != "" {
		if idle, err = time.ParseDuration(p.ConnMaxIdleTime); err != nil {
			return 0, 0, fmt.Errorf("invalid pool.conn_max_idle_time: %w", err)
		}
	}
	return lifetime, idle, nil
}

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// ValidateConfig checks if all required configuration values are present and valid
func ValidateConfig(cfg *ConfigParam) error {
	if err := validateConfigFormatVersion(cfg); err != nil {
		return err
	}
	if err := configValidator.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, _, err := cfg.Pool.Durations(); err != nil {
		return err
	}
	if cfg.Tenancy.TenantRoles && cfg.DB.Driver != DriverPostgres {
		return fmt.Errorf("tenancy.tenant_roles requires the %s driver", DriverPostgres)
	}
	return nil
}

func validateConfigFormatVersion(cfg *ConfigParam) error {
	if cfg.FormatVersion == "" {
		return fmt.Errorf("format_version is required")
	}
	v, err := semver.NewVersion(cfg.FormatVersion)
	if err != nil {
		return fmt.Errorf("invalid format_version %q: %w", cfg.FormatVersion, err)
	}
	c, err := semver.NewConstraint(versionConstraint)
	if err != nil {
		return err
	}
	if !c.Check(v) {
		return fmt.Errorf("unsupported config file format version: %s", cfg.FormatVersion)
	}
	return nil
}

// LoadConfig reads filename, applies environment overrides and validates the result.
// Values missing from the file keep their defaults.
func LoadConfig(filename string) (*ConfigParam, error) {
	if filename == "" {
		return nil, fmt.Errorf("config filename is required")
	}

	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg := Default()
	if _, err := toml.Decode(string(content), cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := ApplyEnv(cfg, filepath.Join(filepath.Dir(filename), ".env")); err != nil {
		return nil, err
	}
	cfg.resolvePaths(filepath.Dir(filename))

	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolvePaths makes relative paths in the file relative to the file's directory.
func (c *ConfigParam) resolvePaths(base string) {
	for _, p := range []*string{&c.DB.DataDir, &c.Tenancy.DefaultMigrationsPath, &c.Webserver.SitesDir, &c.Webserver.RootDir, &c.Metrics.Textfile} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
}
