// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package library keeps a searchable SQLite index of a project's BibTeX
// entries.
package library

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/grant-engine/internal/logging"
	"github.com/pdiddy/grant-engine/internal/refs"
	"github.com/pdiddy/grant-engine/pkg/types"
)

const (
	// DefaultDir is the library directory relative to the project root.
	DefaultDir = ".grant-engine"

	dbFile     = "references.db"
	exportFile = "export.yaml"

	defaultMaxResults = 20
)

// Store manages the reference library database.
type Store struct {
	db         *sql.DB
	dir        string
	maxResults int

	// fts is false when the sqlite3 driver was built without FTS5; queries
	// then fall back to substring matching.
	fts bool
}

// Open opens or creates dir/references.db.
func Open(dir string, maxResults int) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating library directory: %w", err)
	}
	db, err := sql.Open("sqlite3", filepath.Join(dir, dbFile)+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	s := &Store{db: db, dir: dir, maxResults: maxResults}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dir returns the library directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS entries (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			key TEXT NOT NULL UNIQUE,
			type TEXT NOT NULL,
			title TEXT,
			authors TEXT,
			year TEXT,
			journal TEXT,
			doi TEXT,
			url TEXT,
			abstract TEXT,
			keywords TEXT,
			fields TEXT,
			raw TEXT,
			source TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_source ON entries(source)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_type ON entries(type)`,
		`CREATE TABLE IF NOT EXISTS indexing_status (
			file TEXT PRIMARY KEY,
			file_mod_time TEXT
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='entries_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}
	if ftsExists > 0 {
		s.fts = true
		return nil
	}

	if _, err := s.db.Exec(`CREATE VIRTUAL TABLE entries_fts USING fts5(
		title, authors, abstract, keywords, content=entries, content_rowid=rowid)`); err != nil {
		if strings.Contains(err.Error(), "no such module") {
			return nil
		}
		return fmt.Errorf("creating FTS table: %w", err)
	}
	triggers := []string{
		`CREATE TRIGGER entries_ai AFTER INSERT ON entries BEGIN
			INSERT INTO entries_fts(rowid, title, authors, abstract, keywords)
			VALUES (new.rowid, new.title, new.authors, new.abstract, new.keywords);
		END`,
		`CREATE TRIGGER entries_ad AFTER DELETE ON entries BEGIN
			INSERT INTO entries_fts(entries_fts, rowid, title, authors, abstract, keywords)
			VALUES ('delete', old.rowid, old.title, old.authors, old.abstract, old.keywords);
		END`,
		`CREATE TRIGGER entries_au AFTER UPDATE ON entries BEGIN
			INSERT INTO entries_fts(entries_fts, rowid, title, authors, abstract, keywords)
			VALUES ('delete', old.rowid, old.title, old.authors, old.abstract, old.keywords);
			INSERT INTO entries_fts(rowid, title, authors, abstract, keywords)
			VALUES (new.rowid, new.title, new.authors, new.abstract, new.keywords);
		END`,
	}
	for _, stmt := range triggers {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("creating FTS infrastructure: %w", err)
		}
	}
	s.fts = true
	return nil
}

// IndexSummary holds counts from one indexing run.
type IndexSummary struct {
	Indexed int
	Updated int
	Skipped int
	Failed  int
	Entries int
}

// Total returns the number of files processed.
func (s IndexSummary) Total() int {
	return s.Indexed + s.Updated + s.Skipped + s.Failed
}

// Index loads each .bib file into the library. Files whose modification
// time matches the last run are skipped; changed files replace their
// previous entries. Progress goes to w. When anything changed,
// export.yaml is rewritten in the library directory.
func (s *Store) Index(ctx context.Context, files []string, w io.Writer) (IndexSummary, error) {
	log := logging.FromContext(ctx)
	var summary IndexSummary

	for _, file := range files {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		info, err := os.Stat(file)
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", file, err)
			summary.Failed++
			continue
		}
		modTime := info.ModTime().UTC().Format(time.RFC3339Nano)

		var stored string
		err = s.db.QueryRowContext(ctx,
			`SELECT file_mod_time FROM indexing_status WHERE file = ?`, file,
		).Scan(&stored)
		if err == nil && stored == modTime {
			fmt.Fprintf(w, "skipped %s\n", file)
			summary.Skipped++
			continue
		}
		isUpdate := err == nil

		f, err := os.Open(file)
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", file, err)
			summary.Failed++
			continue
		}
		entries, err := refs.ParseBibTeX(f)
		f.Close()
		if err != nil {
			fmt.Fprintf(w, "failed  %s: parse error: %v\n", file, err)
			summary.Failed++
			continue
		}

		if err := s.indexFile(ctx, file, entries, modTime); err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", file, err)
			summary.Failed++
			continue
		}
		summary.Entries += len(entries)
		if isUpdate {
			fmt.Fprintf(w, "updated %s (%d entries)\n", file, len(entries))
			summary.Updated++
		} else {
			fmt.Fprintf(w, "indexing %s (%d entries)\n", file, len(entries))
			summary.Indexed++
		}
	}

	fmt.Fprintf(w, "\nindexed: %d, updated: %d, skipped: %d, failed: %d\n",
		summary.Indexed, summary.Updated, summary.Skipped, summary.Failed)

	if summary.Indexed > 0 || summary.Updated > 0 {
		if err := s.writeExport(ctx); err != nil {
			fmt.Fprintf(w, "warning: %s write failed: %v\n", exportFile, err)
		}
	}
	log.Debug().Int("files", summary.Total()).Int("entries", summary.Entries).Msg("indexed library")
	return summary, nil
}

func (s *Store) writeExport(ctx context.Context) error {
	f, err := os.Create(filepath.Join(s.dir, exportFile))
	if err != nil {
		return err
	}
	if err := s.Export(ctx, FormatYAML, QueryOptions{}, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *Store) indexFile(ctx context.Context, file string, entries []types.BibEntry, modTime string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE source = ?`, file); err != nil {
		return fmt.Errorf("deleting old entries: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO entries
			(key, type, title, authors, year, journal, doi, url, abstract, keywords, fields, raw, source)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		authorsJSON, _ := json.Marshal(e.Authors)
		fieldsJSON, _ := json.Marshal(e.Fields)
		_, err := stmt.ExecContext(ctx,
			e.Key, e.EntryType, e.Title, string(authorsJSON), e.Year, e.Journal,
			e.DOI, e.URL, e.Field("abstract"), e.Field("keywords"),
			string(fieldsJSON), e.Raw, file,
		)
		if err != nil {
			return fmt.Errorf("inserting entry %s: %w", e.Key, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO indexing_status (file, file_mod_time) VALUES (?, ?)
		 ON CONFLICT(file) DO UPDATE SET file_mod_time=excluded.file_mod_time`,
		file, modTime,
	)
	if err != nil {
		return fmt.Errorf("updating indexing status: %w", err)
	}
	return tx.Commit()
}
