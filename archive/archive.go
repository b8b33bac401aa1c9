// Package archive persists finished sessions to a SQLite file so
// transcripts, findings and exchanges survive after the session
// directory is pruned.
package archive

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
PRAGMA journal_mode = WAL;
PRAGMA busy_timeout = 5000;

CREATE TABLE IF NOT EXISTS sessions (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    started       TEXT NOT NULL,
    ended         TEXT NOT NULL,
    device        TEXT NOT NULL DEFAULT '',
    engine        TEXT NOT NULL DEFAULT '',
    model         TEXT NOT NULL DEFAULT '',
    audio_path    TEXT NOT NULL DEFAULT '',
    line_count    INTEGER NOT NULL DEFAULT 0,
    finding_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS lines (
    session_id INTEGER NOT NULL,
    pos        INTEGER NOT NULL,
    text       TEXT NOT NULL,
    PRIMARY KEY (session_id, pos)
);

CREATE TABLE IF NOT EXISTS findings (
    session_id INTEGER NOT NULL,
    category   TEXT NOT NULL,
    pos        INTEGER NOT NULL,
    text       TEXT NOT NULL,
    PRIMARY KEY (session_id, category, pos)
);

CREATE TABLE IF NOT EXISTS exchanges (
    session_id INTEGER NOT NULL,
    kind       TEXT NOT NULL,
    pos        INTEGER NOT NULL,
    question   TEXT NOT NULL,
    answer     TEXT NOT NULL,
    PRIMARY KEY (session_id, pos)
);
`

type Finding struct {
	Category string
	Text     string
}

type Exchange struct {
	Kind     string
	Question string
	Answer   string
}

// Session is one finished recording session. Lines keep transcript
// order; Findings and Exchanges keep insertion order.
type Session struct {
	Started   time.Time
	Ended     time.Time
	Device    string
	Engine    string
	Model     string
	AudioPath string
	Lines     []string
	Findings  []Finding
	Exchanges []Exchange
}

// Save appends one session to the archive at path. The database file
// and schema are created on first use.
func Save(path string, s Session) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer db.Close()
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return insert(db, s)
}

func insert(db *sql.DB, s Session) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO sessions (started, ended, device, engine, model, audio_path, line_count, finding_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		timestamp(s.Started),
		timestamp(s.Ended),
		s.Device,
		s.Engine,
		s.Model,
		s.AudioPath,
		len(s.Lines),
		len(s.Findings),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("session id: %w", err)
	}

	lstmt, err := tx.Prepare(`INSERT INTO lines (session_id, pos, text) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer lstmt.Close()
	for i, text := range s.Lines {
		if _, err := lstmt.Exec(id, i, text); err != nil {
			return fmt.Errorf("insert line %d: %w", i, err)
		}
	}

	fstmt, err := tx.Prepare(`INSERT INTO findings (session_id, category, pos, text) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer fstmt.Close()
	catPos := make(map[string]int)
	for _, f := range s.Findings {
		pos := catPos[f.Category]
		catPos[f.Category] = pos + 1
		if _, err := fstmt.Exec(id, f.Category, pos, f.Text); err != nil {
			return fmt.Errorf("insert finding: %w", err)
		}
	}

	estmt, err := tx.Prepare(`INSERT INTO exchanges (session_id, kind, pos, question, answer) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer estmt.Close()
	for i, e := range s.Exchanges {
		if _, err := estmt.Exec(id, e.Kind, i, e.Question, e.Answer); err != nil {
			return fmt.Errorf("insert exchange %d: %w", i, err)
		}
	}

	return tx.Commit()
}

func timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}
