package journal

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	// In-memory SQLite: keep everything on one connection.
	db.SetMaxOpenConns(1)
	return db
}

func TestSQLiteJournalRoundTrip(t *testing.T) {
	j, err := NewSQLite(openTestDB(t))
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	j.Record(Entry{Run: "run-1", Node: 0, Activity: "NID:0:EID:0:AID:1", Label: "hello", Kind: KindSubmitted, At: now})
	j.Record(Entry{Run: "run-1", Node: 0, Activity: "NID:0:EID:0:AID:1", Kind: KindStarted, At: now})
	j.Record(Entry{Run: "run-1", Node: 0, Activity: "NID:0:EID:0:AID:1", Kind: KindCompleted, At: now})
	j.Record(Entry{Run: "run-1", Node: 0, Activity: "NID:0:EID:0:AID:2", Kind: KindSubmitted, At: now})

	got, err := j.EntriesFor("NID:0:EID:0:AID:1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, KindSubmitted, got[0].Kind)
	assert.Equal(t, KindStarted, got[1].Kind)
	assert.Equal(t, KindCompleted, got[2].Kind)
	assert.Equal(t, "hello", got[0].Label)
	assert.Equal(t, "run-1", got[0].Run)
}

func TestSQLiteJournalSchemaIdempotent(t *testing.T) {
	db := openTestDB(t)

	_, err := NewSQLite(db)
	require.NoError(t, err)
	_, err = NewSQLite(db)
	require.NoError(t, err)
}

func TestMemoryJournalCounts(t *testing.T) {
	m := NewMemory()
	m.Record(Entry{Kind: KindSubmitted})
	m.Record(Entry{Kind: KindSubmitted})
	m.Record(Entry{Kind: KindCompleted})

	assert.Equal(t, 2, m.CountByKind(KindSubmitted))
	assert.Equal(t, 1, m.CountByKind(KindCompleted))
	assert.Len(t, m.Entries(), 3)
}
