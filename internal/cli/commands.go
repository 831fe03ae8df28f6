package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tansive/tenancy/internal/common/apperrors"
	"github.com/tansive/tenancy/internal/tenancy/config"
	"github.com/tansive/tenancy/internal/tenancy/db/dberror"
)

// Version is the CLI release, set at build time with -ldflags.
var Version = "v0.1.0"

// handledError marks a failure the command already reported in its output. It keeps
// the exit code of the wrapped error.
type handledError struct{ error }

func (e handledError) Unwrap() error { return e.error }

func alreadyHandled(err error) error {
	if err == nil {
		return nil
	}
	return handledError{err}
}

var okLabel = color.New(color.FgGreen)
var errorLabel = color.New(color.FgRed)
var warnLabel = color.New(color.FgYellow)

// globalOptions holds the persistent flags.
type globalOptions struct {
	configFile string
	jsonOutput bool
	yamlOutput bool
}

func newRootCmd(opts *globalOptions) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tenancy [command] [flags]",
		Short: "Provision tenants and run per-tenant migrations",
		Long: `tenancy manages multi-tenant deployments where every tenant gets its own database.

Examples:
  # Provision a tenant with its first hostname
  tenancy setup --tenant example --hostname example.org --email info@example.org

  # Migrate every tenant database
  tenancy migrate --tenant true --path ./migrations/tenant

  # Show pending system migrations
  tenancy migrate status`,
		SilenceErrors: true, // Execute prints errors itself
		SilenceUsage:  true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configFile, "config", "", "", "Path to the configuration file (default $TENANCY_CONFIG or ./tenancy.conf)")
	rootCmd.PersistentFlags().BoolVarP(&opts.jsonOutput, "json", "j", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&opts.yamlOutput, "yaml", "y", false, "Output in YAML format")
	rootCmd.MarkFlagsMutuallyExclusive("json", "yaml")
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return dberror.ErrInvalidInput.MsgErr(cmd.CommandPath(), err)
	})

	rootCmd.AddCommand(newVersionCmd(opts))
	rootCmd.AddCommand(newSetupCmd(opts))
	rootCmd.AddCommand(newMigrateCmd(opts))
	rootCmd.AddCommand(newHostnameCmd(opts))
	rootCmd.AddCommand(newTenantsCmd(opts))
	rootCmd.AddCommand(newDatabasesCmd(opts))
	return rootCmd
}

// Execute runs the command line and returns the process exit code. It is called by
// main.main().
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts := &globalOptions{}
	rootCmd := newRootCmd(opts)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return apperrors.ExitOK
	}
	code := apperrors.ExitCode(err)
	if errors.As(err, new(handledError)) {
		return code
	}
	if opts.jsonOutput || opts.yamlOutput {
		kv := map[string]any{
			"error":     apperrors.Describe(err),
			"exit_code": code,
		}
		if perr := printStructured(stdout, opts, kv); perr != nil {
			errorLabel.Fprintf(stderr, "Error: %v\n", perr)
		}
	} else {
		errorLabel.Fprintf(stderr, "Error: %s\n", apperrors.Describe(err))
	}
	return code
}

func newVersionCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of tenancy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := opts.configFile
			if configPath == "" {
				configPath = GetDefaultConfigPath()
			}
			kv := map[string]string{
				"version":       Version,
				"config_format": config.Version,
				"config_file":   configPath,
			}
			return output(cmd, opts, kv, func(w io.Writer) {
				fprintf(w, "tenancy %s\n", Version)
				fprintf(w, "Config format: %s\n", config.Version)
				fprintf(w, "Config file: %s\n", configPath)
			})
		},
	}
}
