package naming

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeHostname(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"example.org", "example.org", false},
		{"Example.ORG", "example.org", false},
		{"example.org:8080", "example.org", false},
		{"example.org.", "example.org", false},
		{" www.example.org ", "www.example.org", false},
		{"bücher.example", "xn--bcher-kva.example", false},
		{"", "", true},
		{"exa mple.org", "", true},
		{"under_score.org", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeHostname(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDatabaseName(t *testing.T) {
	assert.Equal(t, "1_example", DatabaseName(1, "example"))
	assert.Equal(t, "42_cafe_creme", DatabaseName(42, "Café Crème"))
	assert.Equal(t, "7_", DatabaseName(7, "株式会社"))
	assert.Equal(t, "3_robert_drop_table_students", DatabaseName(3, `Robert"; DROP TABLE students;--`))

	long := DatabaseName(123456, strings.Repeat("tenant ", 20))
	assert.LessOrEqual(t, len(long), MaxDatabaseNameLength)
	assert.True(t, strings.HasPrefix(long, "123456_"))
	assert.NoError(t, ValidateDatabaseName(long))

	for _, n := range []string{"1_example", "42_cafe_creme", "7_", long} {
		assert.NoError(t, ValidateDatabaseName(n), n)
	}
}

func TestWithSuffix(t *testing.T) {
	assert.Equal(t, "1_example_2", WithSuffix("1_example", 2))
	n := WithSuffix(strings.Repeat("a", MaxDatabaseNameLength), 12)
	assert.Len(t, n, MaxDatabaseNameLength)
	assert.True(t, strings.HasSuffix(n, "_12"))
}

func TestValidateDatabaseName(t *testing.T) {
	for _, bad := range []string{"", "example", "system", "1_Example", "1_ex-ample", `1_a"b`, "1_a;drop", strings.Repeat("1", 64)} {
		assert.Error(t, ValidateDatabaseName(bad), bad)
	}
}

func TestValidateTenantName(t *testing.T) {
	assert.NoError(t, ValidateTenantName("example"))
	assert.NoError(t, ValidateTenantName("Acme Corp."))
	assert.NoError(t, ValidateTenantName("Bücher"))
	assert.Error(t, ValidateTenantName(""))
	assert.Error(t, ValidateTenantName("-leading"))
	assert.Error(t, ValidateTenantName("semi;colon"))
}
