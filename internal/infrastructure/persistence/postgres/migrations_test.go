package postgres

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedSchema(t *testing.T) {
	all, err := loadSchema()
	require.NoError(t, err)
	require.Len(t, all, 3)

	for i, mig := range all {
		assert.Equal(t, i+1, mig.Version)
		assert.NotEmpty(t, mig.UpSQL, mig.Name)
		assert.NotEmpty(t, mig.DownSQL, mig.Name)
	}
	assert.Equal(t, "members_and_pairs", all[0].Name)
	assert.Contains(t, all[0].UpSQL, "CREATE TABLE IF NOT EXISTS pairs")
}

func TestParseMigrations_SortsByVersion(t *testing.T) {
	all, err := parseMigrations(fstest.MapFS{
		"0010_late.up.sql":  {Data: []byte("SELECT 10")},
		"0002_early.up.sql": {Data: []byte("SELECT 2")},
	})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 2, all[0].Version)
	assert.Equal(t, 10, all[1].Version)
	assert.Empty(t, all[0].DownSQL)
}

func TestParseMigrations_Rejects(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"bad name":     {"init.sql": {Data: []byte("SELECT 1")}},
		"down only":    {"0001_a.down.sql": {Data: []byte("SELECT 1")}},
		"name clashes": {"0001_a.up.sql": {Data: []byte("SELECT 1")}, "0001_b.down.sql": {Data: []byte("SELECT 1")}},
	}
	for name, fsys := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseMigrations(fsys)
			assert.ErrorIs(t, err, ErrMigrationFailed)
		})
	}
}
