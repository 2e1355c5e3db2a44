package migrations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilesAreEmbedded(t *testing.T) {
	my, err := MySQL()
	require.NoError(t, err)
	require.NotEmpty(t, my)
	assert.Equal(t, "001_init.sql", my[0].Name)
	for _, table := range []string{"collection_versions", "families", "outbox_messages", "group_provisions", "notification_deliveries"} {
		assert.Contains(t, my[0].SQL, "CREATE TABLE "+table)
	}

	ch, err := ClickHouse()
	require.NoError(t, err)
	require.NotEmpty(t, ch)
	assert.True(t, strings.Contains(ch[0].SQL, "ReplacingMergeTree"))
}

func tableDDL(t *testing.T, sql, table string) string {
	t.Helper()
	start := strings.Index(sql, "CREATE TABLE "+table+" (")
	require.GreaterOrEqual(t, start, 0, "table %s not declared", table)
	end := strings.Index(sql[start:], ") ENGINE=")
	require.Greater(t, end, 0)
	return sql[start : start+end]
}

func TestVersionTableHasWrittenColumns(t *testing.T) {
	my, err := MySQL()
	require.NoError(t, err)

	ddl := tableDDL(t, my[0].SQL, "collection_versions")
	for _, col := range []string{"retreat_id", "kind", "version", "locked", "updated_at"} {
		assert.Contains(t, ddl, "\n    "+col+" ", "collection_versions lacks %s", col)
	}
}

func TestRetreatScopedTablesReferenceRetreats(t *testing.T) {
	my, err := MySQL()
	require.NoError(t, err)

	for _, table := range []string{"collection_versions", "families", "service_spaces", "tents", "roster_entries"} {
		ddl := tableDDL(t, my[0].SQL, table)
		assert.Contains(t, ddl, "FOREIGN KEY (retreat_id) REFERENCES retreats(id)", table)
	}
}
