package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/ppiankov/biosbias/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS bios (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	first_name TEXT NOT NULL,
	middle_name TEXT NOT NULL,
	last_name TEXT NOT NULL,
	title TEXT NOT NULL,
	raw_title TEXT NOT NULL,
	gender TEXT NOT NULL,
	start_pos INTEGER NOT NULL,
	raw TEXT NOT NULL,
	bio TEXT,
	uri TEXT NOT NULL,
	path TEXT
);

CREATE INDEX IF NOT EXISTS idx_bios_title ON bios(title);
CREATE INDEX IF NOT EXISTS idx_bios_gender ON bios(gender);
`

// SQLiteStore holds a corpus of bios in a SQLite database
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates a database file and ensures the schema
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite only supports one writer
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Insert adds records in a single transaction
func (s *SQLiteStore) Insert(ctx context.Context, records []model.BioRecord) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO bios
		(first_name, middle_name, last_name, title, raw_title, gender, start_pos, raw, bio, uri, path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range records {
		r := &records[i]
		if _, err = stmt.ExecContext(ctx,
			r.Name.First(), r.Name.Middle(), r.Name.Last(),
			r.Title, r.RawTitle, string(r.Gender), r.StartPos,
			r.Raw, nullable(r.Bio), r.URI, nullable(r.Path),
		); err != nil {
			return fmt.Errorf("insert record %d: %w", i, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// TitleCount is the number of bios per title and gender
type TitleCount struct {
	Title  string
	Gender model.Gender
	Count  int
}

// CountByTitle summarizes the corpus by title and gender
func (s *SQLiteStore) CountByTitle(ctx context.Context) ([]TitleCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT title, gender, COUNT(*) FROM bios GROUP BY title, gender ORDER BY title, gender`)
	if err != nil {
		return nil, fmt.Errorf("query counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var counts []TitleCount
	for rows.Next() {
		var c TitleCount
		var gender string
		if err := rows.Scan(&c.Title, &gender, &c.Count); err != nil {
			return nil, fmt.Errorf("scan counts: %w", err)
		}
		c.Gender = model.Gender(gender)
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
