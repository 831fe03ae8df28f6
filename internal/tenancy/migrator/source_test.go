package migrator

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tansive/tenancy/internal/tenancy/db/dberror"
)

func TestOrderKey(t *testing.T) {
	tests := []struct {
		id      string
		want    []uint64
		wantErr bool
	}{
		{"0001_create_tenants", []uint64{1}, false},
		{"2015_01_01_000000_create_users", []uint64{2015, 1, 1, 0}, false},
		{"42", []uint64{42}, false},
		{"12_v2_users", []uint64{12}, false},
		{"create_users", nil, true},
		{"_0001_users", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, err := orderKey(tt.id)
			if tt.wantErr {
				assert.ErrorIs(t, err, dberror.ErrMigrationSource)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFSSourceOrder(t *testing.T) {
	fsys := fstest.MapFS{
		"10_tenth.sql":                  {Data: []byte("SELECT 10")},
		"2_second.sql":                  {Data: []byte("SELECT 2")},
		"2_a_also_second.sql":           {Data: []byte("SELECT 2")},
		"2015_01_01_000001_later.sql":   {Data: []byte("SELECT 1")},
		"2015_01_01_000000_earlier.sql": {Data: []byte("SELECT 0")},
		"README.md":                     {Data: []byte("ignored")},
		"nested/0001_ignored.sql":       {Data: []byte("SELECT 1")},
	}
	src := NewFSSource(fsys)
	list, err := src.List(context.Background())
	require.NoError(t, err)

	var ids []string
	for _, m := range list {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{
		"2_a_also_second",
		"2_second",
		"10_tenth",
		"2015_01_01_000000_earlier",
		"2015_01_01_000001_later",
	}, ids)

	body, err := src.Load(context.Background(), "10_tenth")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 10", body)

	_, err = src.Load(context.Background(), "99_missing")
	assert.ErrorIs(t, err, dberror.ErrMigrationSource)
}

func TestDirSource(t *testing.T) {
	_, err := DirSource("testdata/does-not-exist")
	assert.ErrorIs(t, err, dberror.ErrMigrationSource)
	_, err = DirSource("testdata/tenant/2017_02_24_000000_create_tenant_migration_test_table.sql")
	assert.ErrorIs(t, err, dberror.ErrMigrationSource)

	src, err := DirSource("testdata/unprefixed")
	require.NoError(t, err)
	_, err = src.List(context.Background())
	assert.ErrorIs(t, err, dberror.ErrMigrationSource)
}

func TestParseSelector(t *testing.T) {
	assert.True(t, ParseSelector("").IsSystem())
	assert.Equal(t, "all tenants", ParseSelector("true").String())
	assert.Equal(t, "all tenants", ParseSelector("ALL").String())
	assert.Equal(t, "tenant example", ParseSelector(" example ").String())
}
