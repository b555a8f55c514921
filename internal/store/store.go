// Package store implements a durable, embedded table store for scanner
// channels, lockouts and hit history, backed by mattn/go-sqlite3. No
// networked database is involved.
package store

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Channel is a seeded or user-added scanner channel.
type Channel struct {
	ID        int64
	Frequency uint64
	Label     string
	Category  string
	Mode      string
	Priority  int
	Enabled   bool
}

// ChannelPatch is a partial update applied to an existing Channel; nil
// fields are left unchanged.
type ChannelPatch struct {
	Label    *string
	Category *string
	Mode     *string
	Priority *int
	Enabled  *bool
}

// Lockout is a frequency the scanner must never park on.
type Lockout struct {
	ID        int64
	Frequency uint64
	Label     string
	AddedTS   int64
}

// Hit is one logged scanner park event.
type Hit struct {
	ID            int64
	TS            int64
	Frequency     uint64
	StrengthDB    float64
	DurationMs    int64
	ChannelID     *int64
	AudioClipPath *string
}

const hitRetentionLimit = 1000

const schema = `
CREATE TABLE IF NOT EXISTS scanner_channels (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	frequency INTEGER NOT NULL,
	label     TEXT NOT NULL,
	category  TEXT NOT NULL DEFAULT '',
	mode      TEXT NOT NULL,
	priority  INTEGER NOT NULL DEFAULT 0,
	enabled   INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS scanner_lockouts (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	frequency INTEGER NOT NULL UNIQUE,
	label     TEXT NOT NULL DEFAULT '',
	added_ts  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS scanner_hits (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	ts              INTEGER NOT NULL,
	frequency       INTEGER NOT NULL,
	strength_db     REAL NOT NULL,
	duration_ms     INTEGER NOT NULL,
	channel_id      INTEGER,
	audio_clip_path TEXT
);
CREATE INDEX IF NOT EXISTS idx_scanner_hits_ts ON scanner_hits(ts DESC);
CREATE INDEX IF NOT EXISTS idx_scanner_hits_channel ON scanner_hits(channel_id);
`

// Store is a sqlite-backed handle for all scanner persistence. Safe for
// concurrent use; database/sql pools its own connections.
type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// Open opens (creating if necessary) the sqlite database at path, enables
// write-ahead journaling, creates the schema if absent, and seeds a
// curated channel list on first boot.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}

	s := &Store{db: db, logger: log.New(log.Writer(), "[store] ", log.LstdFlags)}
	if err := s.seedIfEmpty(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) seedIfEmpty() error {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM scanner_channels").Scan(&count); err != nil {
		return fmt.Errorf("store: count channels: %w", err)
	}
	if count > 0 {
		return nil
	}
	s.logger.Printf("seeding default channel list (%d entries)", len(seedChannels))
	return s.withTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT INTO scanner_channels(frequency,label,category,mode,priority,enabled) VALUES (?,?,?,?,?,?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, c := range seedChannels {
			if _, err := stmt.Exec(c.Frequency, c.Label, c.Category, c.Mode, c.Priority, c.Enabled); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit tx: %w", err)
	}
	return nil
}

// AddChannel inserts a new scanner channel and returns its assigned ID.
func (s *Store) AddChannel(c Channel) (int64, error) {
	var id int64
	err := s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`INSERT INTO scanner_channels(frequency,label,category,mode,priority,enabled) VALUES (?,?,?,?,?,?)`,
			c.Frequency, c.Label, c.Category, c.Mode, c.Priority, c.Enabled)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("store: add channel: %w", err)
	}
	return id, nil
}

// UpdateChannel applies patch to the channel with the given id.
func (s *Store) UpdateChannel(id int64, patch ChannelPatch) error {
	return s.withTx(func(tx *sql.Tx) error {
		if patch.Label != nil {
			if _, err := tx.Exec(`UPDATE scanner_channels SET label=? WHERE id=?`, *patch.Label, id); err != nil {
				return err
			}
		}
		if patch.Category != nil {
			if _, err := tx.Exec(`UPDATE scanner_channels SET category=? WHERE id=?`, *patch.Category, id); err != nil {
				return err
			}
		}
		if patch.Mode != nil {
			if _, err := tx.Exec(`UPDATE scanner_channels SET mode=? WHERE id=?`, *patch.Mode, id); err != nil {
				return err
			}
		}
		if patch.Priority != nil {
			if _, err := tx.Exec(`UPDATE scanner_channels SET priority=? WHERE id=?`, *patch.Priority, id); err != nil {
				return err
			}
		}
		if patch.Enabled != nil {
			if _, err := tx.Exec(`UPDATE scanner_channels SET enabled=? WHERE id=?`, *patch.Enabled, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteChannel removes a channel by id; idempotent.
func (s *Store) DeleteChannel(id int64) error {
	_, err := s.db.Exec(`DELETE FROM scanner_channels WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("store: delete channel: %w", err)
	}
	return nil
}

// ListChannels returns enabled channels ordered by (priority asc,
// frequency asc), the order the sweep-interleave planner needs.
func (s *Store) ListChannels() ([]Channel, error) {
	rows, err := s.db.Query(`SELECT id,frequency,label,category,mode,priority,enabled FROM scanner_channels WHERE enabled=1 ORDER BY priority ASC, frequency ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: list channels: %w", err)
	}
	defer rows.Close()

	var out []Channel
	for rows.Next() {
		var c Channel
		if err := rows.Scan(&c.ID, &c.Frequency, &c.Label, &c.Category, &c.Mode, &c.Priority, &c.Enabled); err != nil {
			return nil, fmt.Errorf("store: scan channel: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AddLockout inserts a lockout; frequency is unique, so re-adding the
// same frequency is a no-op success.
func (s *Store) AddLockout(frequencyHz uint64, label string) error {
	_, err := s.db.Exec(`INSERT OR IGNORE INTO scanner_lockouts(frequency,label,added_ts) VALUES (?,?,?)`,
		frequencyHz, label, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("store: add lockout: %w", err)
	}
	return nil
}

// RemoveLockout deletes a lockout by id; idempotent.
func (s *Store) RemoveLockout(id int64) error {
	_, err := s.db.Exec(`DELETE FROM scanner_lockouts WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("store: remove lockout: %w", err)
	}
	return nil
}

// ListLockouts returns every lockout entry.
func (s *Store) ListLockouts() ([]Lockout, error) {
	rows, err := s.db.Query(`SELECT id,frequency,label,added_ts FROM scanner_lockouts`)
	if err != nil {
		return nil, fmt.Errorf("store: list lockouts: %w", err)
	}
	defer rows.Close()

	var out []Lockout
	for rows.Next() {
		var l Lockout
		if err := rows.Scan(&l.ID, &l.Frequency, &l.Label, &l.AddedTS); err != nil {
			return nil, fmt.Errorf("store: scan lockout: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// InsertHit appends a ScannerHit and prunes the table to the newest 1000
// rows in the same transaction.
func (s *Store) InsertHit(h Hit) (int64, error) {
	var id int64
	err := s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`INSERT INTO scanner_hits(ts,frequency,strength_db,duration_ms,channel_id,audio_clip_path) VALUES (?,?,?,?,?,?)`,
			h.TS, h.Frequency, h.StrengthDB, h.DurationMs, h.ChannelID, h.AudioClipPath)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		if err != nil {
			return err
		}
		_, err = tx.Exec(`DELETE FROM scanner_hits WHERE id NOT IN (SELECT id FROM scanner_hits ORDER BY ts DESC LIMIT ?)`, hitRetentionLimit)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("store: insert hit: %w", err)
	}
	return id, nil
}

// UpdateHitAudioPath records the VOX recording's persisted path against
// the hit with id hitID, used once recording finishes after the
// hit row was already written on park exit.
func (s *Store) UpdateHitAudioPath(hitID int64, path string) error {
	_, err := s.db.Exec(`UPDATE scanner_hits SET audio_clip_path=? WHERE id=?`, path, hitID)
	if err != nil {
		return fmt.Errorf("store: update hit audio path: %w", err)
	}
	return nil
}

// RecentHits returns up to limit hits, newest first.
func (s *Store) RecentHits(limit int) ([]Hit, error) {
	rows, err := s.db.Query(`SELECT id,ts,frequency,strength_db,duration_ms,channel_id,audio_clip_path FROM scanner_hits ORDER BY ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent hits: %w", err)
	}
	defer rows.Close()

	var out []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.ID, &h.TS, &h.Frequency, &h.StrengthDB, &h.DurationMs, &h.ChannelID, &h.AudioClipPath); err != nil {
			return nil, fmt.Errorf("store: scan hit: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
