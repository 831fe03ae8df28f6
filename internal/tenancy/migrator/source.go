package migrator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/tansive/tenancy/internal/tenancy/db/dberror"
)

const migrationExt = ".sql"

// Migration is one migration offered by a Source. ID is the file name without extension
// and is what gets recorded in the migrations table.
type Migration struct {
	ID  string
	key []uint64
}

// Source lists and loads migrations. List returns them in application order.
type Source interface {
	List(ctx context.Context) ([]Migration, error)
	Load(ctx context.Context, id string) (string, error)
}

// FSSource reads *.sql files from the root of a file system.
type FSSource struct {
	fsys fs.FS
}

// NewFSSource returns a Source over fsys, for example an embed.FS.
func NewFSSource(fsys fs.FS) *FSSource {
	return &FSSource{fsys: fsys}
}

// DirSource returns a Source over the directory at dir.
func DirSource(dir string) (*FSSource, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, dberror.ErrMigrationSource.MsgErr(fmt.Sprintf("migration path %s", dir), err)
	}
	if !info.IsDir() {
		return nil, dberror.ErrMigrationSource.Msg(fmt.Sprintf("migration path %s is not a directory", dir))
	}
	return NewFSSource(os.DirFS(dir)), nil
}

// List returns the migrations ordered by their numeric prefix, then by name. A file whose
// name does not start with a number is an error.
func (s *FSSource) List(ctx context.Context) ([]Migration, error) {
	entries, err := fs.ReadDir(s.fsys, ".")
	if err != nil {
		return nil, dberror.ErrMigrationSource.MsgErr("unable to read migrations", err)
	}
	var list []Migration
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != migrationExt {
			continue
		}
		id := strings.TrimSuffix(e.Name(), migrationExt)
		key, err := orderKey(id)
		if err != nil {
			return nil, err
		}
		list = append(list, Migration{ID: id, key: key})
	}
	sortMigrations(list)
	return list, nil
}

// Load returns the SQL of migration id.
func (s *FSSource) Load(ctx context.Context, id string) (string, error) {
	b, err := fs.ReadFile(s.fsys, id+migrationExt)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", dberror.ErrMigrationSource.Msg(fmt.Sprintf("migration %s not found", id))
		}
		return "", dberror.ErrMigrationSource.MsgErr(fmt.Sprintf("unable to read migration %s", id), err)
	}
	return string(b), nil
}

// orderKey extracts the leading numeric prefix of id: the digit groups up to the first
// group that is not all digits. "2015_01_01_000000_create_users" is {2015, 1, 1, 0}.
func orderKey(id string) ([]uint64, error) {
	var key []uint64
	for _, part := range strings.Split(id, "_") {
		if part == "" || strings.TrimLeft(part, "0123456789") != "" {
			break
		}
		n, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, dberror.ErrMigrationSource.MsgErr(fmt.Sprintf("migration %s has an invalid prefix", id), err)
		}
		key = append(key, n)
	}
	if len(key) == 0 {
		return nil, dberror.ErrMigrationSource.Msg(fmt.Sprintf("migration %s has no numeric prefix", id))
	}
	return key, nil
}

func sortMigrations(list []Migration) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i].key, list[j].key
		for k := 0; k < len(a) && k < len(b); k++ {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		return list[i].ID < list[j].ID
	})
}
