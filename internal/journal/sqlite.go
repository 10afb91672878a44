package journal

import (
	"database/sql"

	"github.com/petrijr/constellation/internal/logging"
	"github.com/rs/zerolog"
)

// SQLite persists journal entries in a SQLite database.
//
// It expects an *sql.DB using a SQLite driver (for example
// "modernc.org/sqlite"). The caller is responsible for importing the driver:
//
//	import _ "modernc.org/sqlite"
type SQLite struct {
	db  *sql.DB
	log zerolog.Logger
}

var _ Journal = (*SQLite)(nil)

// NewSQLite initializes the schema in the given database and returns the
// journal. The database handle is owned by the caller; Close does not close
// it.
func NewSQLite(db *sql.DB) (*SQLite, error) {
	j := &SQLite{db: db, log: logging.Component("journal")}
	if err := j.initSchema(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *SQLite) initSchema() error {
	if _, err := j.db.Exec(`
		CREATE TABLE IF NOT EXISTS activity_journal (
			run      TEXT NOT NULL,
			node     INTEGER NOT NULL,
			activity TEXT NOT NULL,
			label    TEXT,
			kind     TEXT NOT NULL,
			detail   TEXT,
			at       TIMESTAMP NOT NULL
		)`,
	); err != nil {
		return err
	}
	_, err := j.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_activity_journal_activity
			ON activity_journal (activity)`,
	)
	return err
}

func (j *SQLite) Record(e Entry) {
	_, err := j.db.Exec(`
		INSERT INTO activity_journal (run, node, activity, label, kind, detail, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Run, e.Node, e.Activity, e.Label, string(e.Kind), e.Detail, e.At,
	)
	if err != nil {
		j.log.Warn().Err(err).Str("activity", e.Activity).Msg("journal insert failed")
	}
}

func (j *SQLite) Close() error { return nil }

// EntriesFor reads back the rows recorded for one activity, oldest first.
func (j *SQLite) EntriesFor(activityID string) ([]Entry, error) {
	rows, err := j.db.Query(`
		SELECT run, node, activity, label, kind, detail, at
		FROM activity_journal WHERE activity = ? ORDER BY rowid`,
		activityID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var kind string
		if err := rows.Scan(&e.Run, &e.Node, &e.Activity, &e.Label, &kind, &e.Detail, &e.At); err != nil {
			return nil, err
		}
		e.Kind = Kind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}
