package migrate

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscover(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_add_index_up.sql":          {Data: []byte("CREATE INDEX x ON t(a);")},
		"0002_add_index_down.sql":        {Data: []byte("DROP INDEX x;")},
		"0001_classified_records_up.sql": {Data: []byte("CREATE TABLE t(a int);")},
		"nested/0010_late_up.sql":        {Data: []byte("SELECT 1;")},
		"README.md":                      {Data: []byte("docs")},
		"init_up.sql":                    {Data: []byte("SELECT 1;")},
	}

	got, err := Discover(fsys)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(1), got[0].Version)
	assert.Equal(t, int64(2), got[1].Version)
	assert.Equal(t, "0002_add_index_up.sql", got[1].Path)
	assert.Equal(t, int64(10), got[2].Version)
	assert.Equal(t, "nested/0010_late_up.sql", got[2].Path)
}

func TestDiscover_DuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"0001_a_up.sql": {Data: []byte("SELECT 1;")},
		"001_b_up.sql":  {Data: []byte("SELECT 2;")},
	}
	_, err := Discover(fsys)
	assert.Error(t, err)
}

func TestRunner_EmptyDir(t *testing.T) {
	_, err := Runner{}.fsys()
	assert.Error(t, err)
}

func TestDiscover_RepositoryMigrations(t *testing.T) {
	fsys, err := Runner{Dir: "../../db/migrations"}.fsys()
	require.NoError(t, err)

	got, err := Discover(fsys)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, int64(1), got[0].Version)
}
