package migrations

import (
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations(t *testing.T) {
	pg, err := fs.ReadDir(PostgresFS, "postgres")
	require.NoError(t, err)
	require.NotEmpty(t, pg)

	ch, err := fs.ReadDir(ClickhouseFS, "clickhouse")
	require.NoError(t, err)
	require.NotEmpty(t, ch)

	for _, e := range ch {
		data, err := fs.ReadFile(ClickhouseFS, "clickhouse/"+e.Name())
		require.NoError(t, err)
		assert.NoError(t, validateNoSemicolonInStrings(string(data)), e.Name())
	}
}

func TestPostgresMigrationsCreateTables(t *testing.T) {
	var all strings.Builder
	entries, err := fs.ReadDir(PostgresFS, "postgres")
	require.NoError(t, err)
	for _, e := range entries {
		data, err := fs.ReadFile(PostgresFS, "postgres/"+e.Name())
		require.NoError(t, err)
		all.Write(data)
	}

	assert.Contains(t, all.String(), "CREATE TABLE IF NOT EXISTS batch_records")
	assert.Contains(t, all.String(), "CREATE TABLE IF NOT EXISTS reclaim_history")
}

func TestSplitStatements(t *testing.T) {
	input := `-- header comment
CREATE TABLE a (x UInt8) ENGINE = Memory;

-- second
CREATE TABLE b (y String)
ENGINE = Memory;
`
	stmts := splitStatements(input)
	require.Len(t, stmts, 2)
	assert.True(t, strings.HasPrefix(stmts[0], "CREATE TABLE a"))
	assert.True(t, strings.HasPrefix(stmts[1], "CREATE TABLE b"))
	assert.NotContains(t, stmts[1], "--")
}

func TestValidateNoSemicolonInStrings(t *testing.T) {
	assert.NoError(t, validateNoSemicolonInStrings(`SELECT 'it''s fine';`))
	assert.Error(t, validateNoSemicolonInStrings(`SELECT 'a;b';`))
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://default:@localhost:9000/reclaim")
	require.NoError(t, err)
	assert.Equal(t, "reclaim", db)

	_, err = databaseFromDSN("clickhouse://localhost:9000")
	assert.Error(t, err)
}

func TestLoad_OrdersAndSkipsEmpty(t *testing.T) {
	fsys := fstest.MapFS{
		"pg/002_b.sql":   {Data: []byte("CREATE TABLE b ();")},
		"pg/001_a.sql":   {Data: []byte("CREATE TABLE a ();")},
		"pg/003_c.sql":   {Data: []byte("  \n")},
		"pg/README.md":   {Data: []byte("docs")},
		"pg/sub/004.sql": {Data: []byte("CREATE TABLE d ();")},
	}

	ms, err := load(fsys, "pg")
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, "001_a.sql", ms[0].Version)
	assert.Equal(t, "002_b.sql", ms[1].Version)
}

func TestPending(t *testing.T) {
	all := []migration{{Version: "001.sql"}, {Version: "002.sql"}, {Version: "003.sql"}}

	got := pending(all, map[string]bool{"001.sql": true, "003.sql": true})
	require.Len(t, got, 1)
	assert.Equal(t, "002.sql", got[0].Version)

	assert.Len(t, pending(all, nil), 3)
}

func TestLoad_Embedded(t *testing.T) {
	pg, err := load(PostgresFS, "postgres")
	require.NoError(t, err)
	assert.Equal(t, "001_batch_records.sql", pg[0].Version)

	_, err = load(PostgresFS, "missing")
	assert.Error(t, err)
}
