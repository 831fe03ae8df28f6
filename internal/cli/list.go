package cli

import (
	"context"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/tansive/tenancy/internal/tenancy"
	"github.com/tansive/tenancy/internal/tenancy/db/models"
)

func newHostnameCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hostname",
		Short: "Manage hostnames of existing websites",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	var (
		websiteID int64
		hostname  string
	)
	add := &cobra.Command{
		Use:   "add --website ID --hostname HOST",
		Short: "Bind another hostname to a website",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, opts, func(ctx context.Context, s *tenancy.Service) error {
				h, err := s.Provisioner.AddHostname(ctx, websiteID, hostname)
				if err != nil {
					return err
				}
				return output(cmd, opts, h, func(w io.Writer) {
					okLabel.Fprintf(w, "Hostname %s added to website %d\n", h.Hostname, h.WebsiteID)
				})
			})
		},
	}
	add.Flags().Int64VarP(&websiteID, "website", "w", 0, "Website ID")
	add.Flags().StringVarP(&hostname, "hostname", "H", "", "Hostname to add")
	add.MarkFlagRequired("website")
	add.MarkFlagRequired("hostname")
	cmd.AddCommand(add)
	return cmd
}

func newTenantsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenants",
		Short: "Inspect tenants",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tenants",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, opts, func(ctx context.Context, s *tenancy.Service) error {
				tenants, err := s.Store.ListTenants(ctx)
				if err != nil {
					return err
				}
				if tenants == nil {
					tenants = []*models.Tenant{}
				}
				return output(cmd, opts, tenants, func(w io.Writer) {
					fprintf(w, "Tenants:\n")
					for _, t := range tenants {
						fprintf(w, "- %d %s <%s> %s\n", t.ID, t.Name, t.Email, t.CreatedAt.Local().Format(time.DateTime))
					}
				})
			})
		},
	})
	return cmd
}

// catalogueEntry is a database known to the engine. Tenant is set when a tenant
// database descriptor refers to it.
type catalogueEntry struct {
	Name   string `json:"name" yaml:"name"`
	Tenant bool   `json:"tenant" yaml:"tenant"`
}

func newDatabasesCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "databases",
		Short: "Inspect the database engine catalogue",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List databases known to the engine",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, opts, func(ctx context.Context, s *tenancy.Service) error {
				names, err := s.Driver.ListDatabases(ctx, s.Registry.System())
				if err != nil {
					return err
				}
				tracked, err := s.Store.ListDatabases(ctx)
				if err != nil {
					return err
				}
				known := make(map[string]bool, len(tracked))
				for _, d := range tracked {
					known[d.Name] = true
				}
				entries := make([]catalogueEntry, 0, len(names))
				for _, n := range names {
					entries = append(entries, catalogueEntry{Name: n, Tenant: known[n]})
				}
				return output(cmd, opts, entries, func(w io.Writer) {
					fprintf(w, "Databases:\n")
					for _, e := range entries {
						if e.Tenant {
							fprintf(w, "- %s (tenant)\n", e.Name)
						} else {
							fprintf(w, "- %s\n", e.Name)
						}
					}
				})
			})
		},
	})
	return cmd
}
