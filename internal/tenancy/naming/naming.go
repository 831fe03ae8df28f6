// Package naming normalises hostnames and derives database names that are safe to use
// as identifiers in administrative SQL.
package naming

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/net/idna"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxDatabaseNameLength is the PostgreSQL identifier limit (NAMEDATALEN - 1).
const MaxDatabaseNameLength = 63

// SystemDatabaseAlias is what a switcher reports when no tenant database is current.
const SystemDatabaseAlias = "system"

var (
	databaseNamePattern = regexp.MustCompile(`^[0-9]+_[a-z0-9_]*$`)
	tenantNamePattern   = regexp.MustCompile(`^[\p{L}\p{N}][\p{L}\p{N} ._-]{0,127}$`)
	slugStrip           = regexp.MustCompile(`[^a-z0-9]+`)
)

var hostnameProfile = idna.New(
	idna.MapForLookup(),
	idna.Transitional(false),
	idna.StrictDomainName(true),
	idna.ValidateLabels(true),
	idna.BidiRule(),
)

// NormalizeHostname lower-cases host, drops a port and a trailing dot and converts
// unicode labels to their ASCII form.
func NormalizeHostname(host string) (string, error) {
	h := strings.TrimSpace(host)
	if i := strings.LastIndexByte(h, ':'); i >= 0 && !strings.Contains(h[i+1:], "]") {
		if _, err := strconv.Atoi(h[i+1:]); err == nil {
			h = h[:i]
		}
	}
	h = strings.TrimSuffix(h, ".")
	if h == "" {
		return "", fmt.Errorf("hostname is required")
	}
	ascii, err := hostnameProfile.ToASCII(h)
	if err != nil {
		return "", fmt.Errorf("invalid hostname %q: %w", host, err)
	}
	return strings.ToLower(ascii), nil
}

// ValidateTenantName checks the characters allowed in a tenant name.
func ValidateTenantName(name string) error {
	if name == "" {
		return fmt.Errorf("tenant name is required")
	}
	if !tenantNamePattern.MatchString(name) {
		return fmt.Errorf("tenant name must match %q", tenantNamePattern.String())
	}
	return nil
}

// Slug folds s to lower-case ASCII letters, digits and single underscores.
func Slug(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)
	return strings.Trim(slugStrip.ReplaceAllString(folded, "_"), "_")
}

// DatabaseName derives the physical database name for a tenant: the numeric tenant id,
// an underscore and the slug of the tenant name, cut to MaxDatabaseNameLength.
// Only the id makes the name unique; the slug is for operators reading the catalogue.
func DatabaseName(tenantID int64, tenantName string) string {
	prefix := strconv.FormatInt(tenantID, 10) + "_"
	slug := Slug(tenantName)
	if room := MaxDatabaseNameLength - len(prefix); len(slug) > room {
		slug = strings.TrimRight(slug[:room], "_")
	}
	return prefix + slug
}

// WithSuffix returns name with a numeric collision suffix, keeping the length limit.
func WithSuffix(name string, n int) string {
	suffix := "_" + strconv.Itoa(n)
	if len(name)+len(suffix) > MaxDatabaseNameLength {
		name = name[:MaxDatabaseNameLength-len(suffix)]
	}
	return name + suffix
}

// ValidateDatabaseName is the allowlist every name passes before it reaches an
// administrative statement.
func ValidateDatabaseName(name string) error {
	if len(name) == 0 || len(name) > MaxDatabaseNameLength {
		return fmt.Errorf("database name must be 1..%d characters", MaxDatabaseNameLength)
	}
	if !databaseNamePattern.MatchString(name) {
		return fmt.Errorf("database name %q must match %q", name, databaseNamePattern.String())
	}
	return nil
}
