// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package library

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pdiddy/grant-engine/pkg/types"
)

// ErrNotFound is returned when a key is not in the library.
var ErrNotFound = errors.New("entry not found")

// QueryOptions holds parameters for library queries.
type QueryOptions struct {
	// Query is an FTS5 query over title, authors, abstract and keywords.
	Query string

	// Type filters by BibTeX entry type.
	Type string

	// YearFrom and YearTo bound the publication year, inclusive. Zero is
	// unbounded.
	YearFrom int
	YearTo   int

	// MaxResults limits result count. Zero uses the store default.
	MaxResults int
}

const selectColumns = `e.key, e.type, e.title, e.authors, e.year, e.journal, e.doi, e.url, e.fields, e.raw, e.source`

// Search returns matching entries ranked by relevance for full-text
// queries, or ordered by key otherwise.
func (s *Store) Search(ctx context.Context, opts QueryOptions) ([]types.BibEntry, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = s.maxResults
	}

	var (
		qb     strings.Builder
		args   []any
		useFTS = opts.Query != "" && s.fts
	)
	switch {
	case useFTS:
		qb.WriteString(`SELECT ` + selectColumns + `
			FROM entries_fts
			JOIN entries e ON e.rowid = entries_fts.rowid
			WHERE entries_fts MATCH ?`)
		args = append(args, opts.Query)
	case opts.Query != "":
		qb.WriteString(`SELECT ` + selectColumns + ` FROM entries e WHERE 1=1`)
		for _, term := range strings.Fields(opts.Query) {
			qb.WriteString(` AND (e.title LIKE ? OR e.authors LIKE ? OR e.abstract LIKE ? OR e.keywords LIKE ?)`)
			like := "%" + term + "%"
			args = append(args, like, like, like, like)
		}
	default:
		qb.WriteString(`SELECT ` + selectColumns + ` FROM entries e WHERE 1=1`)
	}

	if opts.Type != "" {
		qb.WriteString(` AND e.type = ?`)
		args = append(args, strings.ToLower(opts.Type))
	}
	if opts.YearFrom > 0 {
		qb.WriteString(` AND CAST(e.year AS INTEGER) >= ?`)
		args = append(args, opts.YearFrom)
	}
	if opts.YearTo > 0 {
		qb.WriteString(` AND CAST(e.year AS INTEGER) <= ?`)
		args = append(args, opts.YearTo)
	}

	if useFTS {
		qb.WriteString(` ORDER BY entries_fts.rank`)
	} else {
		qb.WriteString(` ORDER BY e.key`)
	}
	qb.WriteString(` LIMIT ?`)
	args = append(args, maxResults)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying library: %w", err)
	}
	defer rows.Close()

	var out []types.BibEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Get returns the entry with the given key.
func (s *Store) Get(ctx context.Context, key string) (types.BibEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM entries e WHERE e.key = ?`, key)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.BibEntry{}, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return e, err
}

// Count returns the number of indexed entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting entries: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(r scanner) (types.BibEntry, error) {
	var (
		e                                                types.BibEntry
		title, authorsJSON, year, journal, doi, url, raw sql.NullString
		fieldsJSON                                       sql.NullString
	)
	if err := r.Scan(&e.Key, &e.EntryType, &title, &authorsJSON, &year, &journal,
		&doi, &url, &fieldsJSON, &raw, &e.Source); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e, err
		}
		return e, fmt.Errorf("scanning row: %w", err)
	}
	e.Title = title.String
	e.Year = year.String
	e.Journal = journal.String
	e.DOI = doi.String
	e.URL = url.String
	e.Raw = raw.String
	if authorsJSON.Valid {
		json.Unmarshal([]byte(authorsJSON.String), &e.Authors)
	}
	if fieldsJSON.Valid {
		json.Unmarshal([]byte(fieldsJSON.String), &e.Fields)
	}
	e.Volume = e.Field("volume")
	e.Pages = e.Field("pages")
	return e, nil
}
