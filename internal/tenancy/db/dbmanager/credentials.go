package dbmanager

import (
	"crypto/sha256"
	"encoding/base64"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	passwordBytes = 24
	passwordInfo  = "tenancy database password v1"
)

// Credentials derives tenant database passwords from the application key, so the system
// database only needs to store the role name.
type Credentials struct {
	key []byte
}

// NewCredentials returns a deriver for appKey. An empty key disables per-tenant roles.
func NewCredentials(appKey string) *Credentials {
	return &Credentials{key: []byte(appKey)}
}

// Enabled reports whether tenant roles can be derived.
func (c *Credentials) Enabled() bool {
	return c != nil && len(c.key) > 0
}

// Password returns the deterministic password for the role that owns database.
func (c *Credentials) Password(database string) (string, error) {
	r := hkdf.New(sha256.New, c.key, []byte(database), []byte(passwordInfo))
	buf := make([]byte, passwordBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Target builds the connection target for a database reached as username.
func (c *Credentials) Target(database, username string) (Target, error) {
	t := Target{Database: database, Username: username}
	if username == "" || !c.Enabled() {
		t.Username = ""
		return t, nil
	}
	p, err := c.Password(database)
	if err != nil {
		return Target{}, err
	}
	t.Password = p
	return t, nil
}
