// Package schema embeds the system database schema as migrations, one directory per driver.
package schema

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed postgresql/*.sql sqlite/*.sql
var files embed.FS

// FS returns the system migrations for the named driver.
func FS(driver string) (fs.FS, error) {
	sub, err := fs.Sub(files, driver)
	if err != nil {
		return nil, err
	}
	if _, err := fs.Stat(sub, "."); err != nil {
		return nil, fmt.Errorf("no system schema for driver %q", driver)
	}
	entries, err := fs.ReadDir(sub, ".")
	if err != nil || len(entries) == 0 {
		return nil, fmt.Errorf("no system schema for driver %q", driver)
	}
	return sub, nil
}
