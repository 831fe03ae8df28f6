package cli

import (
	"context"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tansive/tenancy/internal/tenancy"
	"github.com/tansive/tenancy/internal/tenancy/migrator"
)

type migrateFlags struct {
	tenant string
	path   string
}

func (f *migrateFlags) register(cmd *cobra.Command, persistent bool) {
	flags := cmd.Flags()
	if persistent {
		flags = cmd.PersistentFlags()
	}
	flags.StringVarP(&f.tenant, "tenant", "t", "", `Target databases: empty for the system database, "true" for every tenant, or a tenant name`)
	flags.StringVarP(&f.path, "path", "p", "", "Directory of .sql migrations (default: system schema or tenancy.default_migrations_path)")
}

func newMigrateCmd(opts *globalOptions) *cobra.Command {
	f := &migrateFlags{}
	cmd := &cobra.Command{
		Use:   "migrate [--tenant true|NAME] [--path DIR]",
		Short: "Apply pending migrations to the system or tenant databases",
		Long: `Apply pending migrations. Each database keeps its own migrations table; a failure on
one tenant database does not stop the others.

Examples:
  # Bring the system database up to date
  tenancy migrate

  # Migrate every tenant
  tenancy migrate --tenant true --path ./migrations/tenant

  # Migrate one tenant
  tenancy migrate --tenant example --path ./migrations/tenant`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, opts, func(ctx context.Context, s *tenancy.Service) error {
				report, err := s.Migrate(ctx, f.tenant, f.path)
				if report == nil {
					return err
				}
				if perr := output(cmd, opts, report, func(w io.Writer) { printReport(w, report, false) }); perr != nil {
					return perr
				}
				return alreadyHandled(err)
			})
		},
	}
	f.register(cmd, true)
	cmd.AddCommand(newMigrateStatusCmd(opts, f))
	return cmd
}

func newMigrateStatusCmd(opts *globalOptions, f *migrateFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status [--tenant true|NAME] [--path DIR]",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, opts, func(ctx context.Context, s *tenancy.Service) error {
				report, err := s.MigrateStatus(ctx, f.tenant, f.path)
				if report == nil {
					return err
				}
				if perr := output(cmd, opts, report, func(w io.Writer) { printReport(w, report, true) }); perr != nil {
					return perr
				}
				return alreadyHandled(err)
			})
		},
	}
}

func printReport(w io.Writer, report *migrator.Report, status bool) {
	if len(report.Targets) == 0 {
		warnLabel.Fprintf(w, "No databases selected by %s\n", report.Selector)
		return
	}
	for _, t := range report.Targets {
		switch {
		case t.Error != "":
			errorLabel.Fprintf(w, "%s: %s\n", t.Database, t.Error)
		case status:
			fprintf(w, "%s: %d applied, %d pending\n", t.Database, len(t.Applied), len(t.Pending))
		case len(t.Ran) == 0:
			okLabel.Fprintf(w, "%s: nothing to migrate\n", t.Database)
		default:
			okLabel.Fprintf(w, "%s: batch %d\n", t.Database, t.Batch)
		}
		for _, id := range t.Ran {
			fprintf(w, "  migrated %s\n", id)
		}
		if status || t.Error != "" {
			for _, id := range t.Pending {
				fprintf(w, "  pending  %s\n", id)
			}
		}
	}
	if failed := report.Failed(); len(failed) > 0 {
		names := make([]string, 0, len(failed))
		for _, t := range failed {
			names = append(names, t.Database)
		}
		errorLabel.Fprintf(w, "Failed: %s\n", strings.Join(names, ", "))
	}
}
