package cli

import (
	"context"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tansive/tenancy/internal/tenancy"
	"github.com/tansive/tenancy/internal/tenancy/db/dberror"
	"github.com/tansive/tenancy/internal/tenancy/provisioner"
)

func newSetupCmd(opts *globalOptions) *cobra.Command {
	var (
		tenantName string
		hostname   string
		email      string
		webserver  string
	)
	cmd := &cobra.Command{
		Use:   "setup --tenant NAME --hostname HOST --email EMAIL [--webserver yes|no]",
		Short: "Provision a tenant with its first hostname, website and database",
		Long: `Provision a tenant. The tenant, its database, a website and the hostname are created
together; when any step fails everything created so far is removed again.

Examples:
  # Provision without a virtual host
  tenancy setup --tenant example --hostname example.org --email info@example.org

  # Also write a Caddy site file
  tenancy setup --tenant example --hostname example.org --email info@example.org --webserver yes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			web, err := parseYesNo(webserver)
			if err != nil {
				return err
			}
			req := provisioner.Request{
				TenantName: tenantName,
				Hostname:   hostname,
				AdminEmail: email,
				Options:    provisioner.Options{Webserver: web},
			}
			return withService(cmd, opts, func(ctx context.Context, s *tenancy.Service) error {
				res, err := s.Provisioner.SetupTenant(ctx, req)
				if err != nil {
					return err
				}
				return output(cmd, opts, res, func(w io.Writer) {
					okLabel.Fprintf(w, "Tenant %s provisioned\n", res.Tenant.Name)
					fprintf(w, "  Tenant ID: %d\n", res.Tenant.ID)
					fprintf(w, "  Hostname:  %s\n", res.Hostname.Hostname)
					fprintf(w, "  Website:   %d\n", res.Website.ID)
					fprintf(w, "  Database:  %s (%s)\n", res.Database.Name, res.Database.Driver)
					if res.Webserver {
						fprintf(w, "  Webserver: configured\n")
					}
					fprintf(w, "  Run ID:    %s\n", res.RunID)
				})
			})
		},
	}
	cmd.Flags().StringVarP(&tenantName, "tenant", "t", "", "Tenant name")
	cmd.Flags().StringVarP(&hostname, "hostname", "H", "", "First hostname of the tenant")
	cmd.Flags().StringVarP(&email, "email", "e", "", "Administrator email")
	cmd.Flags().StringVar(&webserver, "webserver", "no", "Write a virtual host for the website (yes|no)")
	cmd.MarkFlagRequired("tenant")
	cmd.MarkFlagRequired("hostname")
	cmd.MarkFlagRequired("email")
	return cmd
}

func parseYesNo(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes", "y", "true":
		return true, nil
	case "no", "n", "false", "":
		return false, nil
	}
	return false, dberror.ErrInvalidInput.Msg("expected yes or no, got " + v)
}
