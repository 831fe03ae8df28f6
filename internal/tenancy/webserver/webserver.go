// Package webserver writes virtual host configuration for provisioned websites. Each
// website gets one Caddy site file under the configured sites directory, meant to be
// pulled in with an import directive from the main Caddyfile.
package webserver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/tansive/tenancy/internal/tenancy/config"
	"github.com/tansive/tenancy/internal/tenancy/naming"
)

const siteExt = ".caddy"

// Site is the virtual host of one website.
type Site struct {
	WebsiteID int64
	Tenant    string
	Hostnames []string
}

// Configurator creates and removes virtual hosts.
type Configurator interface {
	Configure(ctx context.Context, site Site) error
	Remove(ctx context.Context, site Site) error
}

// Noop is the Configurator used when webserver integration is off.
type Noop struct{}

func (Noop) Configure(context.Context, Site) error { return nil }
func (Noop) Remove(context.Context, Site) error    { return nil }

// Caddy writes one Caddy site file per website.
type Caddy struct {
	sitesDir string
	rootDir  string
}

// NewCaddy returns a Caddy configurator for cfg. Both directories are required.
func NewCaddy(cfg config.WebserverConfig) (*Caddy, error) {
	if strings.TrimSpace(cfg.SitesDir) == "" || strings.TrimSpace(cfg.RootDir) == "" {
		return nil, fmt.Errorf("webserver sites_dir and root_dir are required")
	}
	return &Caddy{sitesDir: cfg.SitesDir, rootDir: cfg.RootDir}, nil
}

// SitePath is the site file of a website.
func (c *Caddy) SitePath(websiteID int64) string {
	return filepath.Join(c.sitesDir, fmt.Sprintf("website-%d%s", websiteID, siteExt))
}

// RootPath is the document root of a website.
func (c *Caddy) RootPath(websiteID int64) string {
	return filepath.Join(c.rootDir, fmt.Sprintf("website-%d", websiteID))
}

// Configured reports whether a site file exists for the website.
func (c *Caddy) Configured(websiteID int64) bool {
	_, err := os.Stat(c.SitePath(websiteID))
	return err == nil
}

// Configure creates the document root and (re)writes the site file. Writing an existing
// site replaces it atomically.
func (c *Caddy) Configure(ctx context.Context, site Site) error {
	root := c.RootPath(site.WebsiteID)
	content, err := GenerateSite(site, root)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create document root %s: %w", root, err)
	}
	if err := WriteConfig(c.SitePath(site.WebsiteID), content); err != nil {
		return err
	}
	log.Ctx(ctx).Info().Int64("website_id", site.WebsiteID).Strs("hostnames", site.Hostnames).Msg("configured virtual host")
	return nil
}

// Remove deletes the site file and the document root if it is empty. Missing files are
// not an error.
func (c *Caddy) Remove(ctx context.Context, site Site) error {
	if err := os.Remove(c.SitePath(site.WebsiteID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove site file: %w", err)
	}
	root := c.RootPath(site.WebsiteID)
	if entries, err := os.ReadDir(root); err == nil && len(entries) == 0 {
		if err := os.Remove(root); err != nil {
			return fmt.Errorf("remove document root: %w", err)
		}
	}
	log.Ctx(ctx).Info().Int64("website_id", site.WebsiteID).Msg("removed virtual host")
	return nil
}

// GenerateSite renders the site block of one website. Hostnames are normalised and sorted
// so the output is deterministic.
func GenerateSite(site Site, root string) (string, error) {
	if len(site.Hostnames) == 0 {
		return "", fmt.Errorf("website %d has no hostnames", site.WebsiteID)
	}
	if strings.TrimSpace(root) == "" {
		return "", fmt.Errorf("site root is required for website %d", site.WebsiteID)
	}
	if strings.ContainsAny(root, "\n{} ") {
		return "", fmt.Errorf("site root for website %d contains forbidden characters", site.WebsiteID)
	}
	hosts := make([]string, 0, len(site.Hostnames))
	for _, h := range site.Hostnames {
		host, err := naming.NormalizeHostname(h)
		if err != nil {
			return "", fmt.Errorf("invalid hostname %q: %w", h, err)
		}
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)

	var b strings.Builder
	b.WriteString("# managed by tenancy\n")
	if tenant := strings.Map(commentSafe, site.Tenant); tenant != "" {
		fmt.Fprintf(&b, "# tenant: %s\n", tenant)
	}
	fmt.Fprintf(&b, "%s {\n", strings.Join(hosts, ", "))
	fmt.Fprintf(&b, "\troot * %s\n", root)
	b.WriteString("\tfile_server\n")
	b.WriteString("}\n")
	return b.String(), nil
}

func commentSafe(r rune) rune {
	if r == '\n' || r == '\r' {
		return -1
	}
	return r
}

// WriteConfig replaces the file at path with content through a temporary file and a rename.
func WriteConfig(path string, content string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("config path is required")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory %s: %w", dir, err)
	}

	tmpFile, err := os.CreateTemp(dir, ".site-*.tmp")
	if err != nil {
		return fmt.Errorf("create temporary config file: %w", err)
	}
	tmpPath := tmpFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := tmpFile.Chmod(0o644); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("chmod temporary config file: %w", err)
	}
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("write temporary config file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temporary config file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace config file %s: %w", path, err)
	}
	cleanup = false
	return nil
}
