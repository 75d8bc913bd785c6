// Package sqlite stores the genealogy archive in a single SQLite file and
// serves it through storage.ChunkSource. The file is produced by
// kinship-import from the static archive directory.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/kinship/internal/storage"
	"github.com/scrypster/kinship/pkg/types"
)

// Schema creates the persons table. Every statement is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS persons (
	id         TEXT PRIMARY KEY,
	lineage_id TEXT NOT NULL,
	name       TEXT NOT NULL DEFAULT '',
	sex        TEXT NOT NULL DEFAULT '',
	father_id  TEXT,
	mother_id  TEXT,
	spouse_ids TEXT,
	child_ids  TEXT,
	birth      TEXT,
	death      TEXT
);
CREATE INDEX IF NOT EXISTS idx_persons_lineage ON persons(lineage_id);
`

const selectColumns = `id, lineage_id, name, sex, father_id, mother_id, spouse_ids, child_ids, birth, death`

// Store implements storage.ChunkSource using SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the archive database at dsn. A stale
// WAL left by a killed import is removed and the open retried once.
func NewStore(dsn string) (*Store, error) {
	s, err := openStore(dsn)
	if err == nil {
		return s, nil
	}
	if !walOpenFailed(err) {
		return nil, err
	}
	path := archivePath(dsn)
	if path == "" || !walAbandoned(path) {
		return nil, err
	}
	dropWAL(path)

	s, retryErr := openStore(dsn)
	if retryErr != nil {
		return nil, fmt.Errorf("sqlite: open after WAL recovery: %w (original: %v)", retryErr, err)
	}
	log.Printf("sqlite: recovered from abandoned WAL files for %s", path)
	return s, nil
}

func openStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}

	// One connection serialises the importer's writes; readers share it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// FetchMetadata implements storage.ChunkSource.
func (s *Store) FetchMetadata(ctx context.Context) (*types.Metadata, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, lineage_id FROM persons`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query metadata: %w", err)
	}
	defer rows.Close()

	meta := &types.Metadata{PersonToLineage: make(map[types.PersonID]string)}
	for rows.Next() {
		var id, lineage string
		if err := rows.Scan(&id, &lineage); err != nil {
			return nil, fmt.Errorf("sqlite: scan metadata: %w", err)
		}
		meta.PersonToLineage[types.PersonID(id)] = lineage
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate metadata: %w", err)
	}
	if len(meta.PersonToLineage) == 0 {
		return nil, fmt.Errorf("sqlite: persons table is empty: %w", storage.ErrNotFound)
	}
	return meta, nil
}

// FetchChunk implements storage.ChunkSource.
func (s *Store) FetchChunk(ctx context.Context, lineageID string) (*types.Document, error) {
	doc, err := s.query(ctx, `SELECT `+selectColumns+` FROM persons WHERE lineage_id = ? ORDER BY rowid`, lineageID)
	if err != nil {
		return nil, err
	}
	if len(doc.People) == 0 {
		return nil, fmt.Errorf("sqlite: lineage %s: %w", lineageID, storage.ErrNotFound)
	}
	return doc, nil
}

// FetchDataset implements storage.ChunkSource.
func (s *Store) FetchDataset(ctx context.Context) (*types.Document, error) {
	return s.query(ctx, `SELECT `+selectColumns+` FROM persons ORDER BY rowid`)
}

// Import upserts records into the persons table inside one transaction.
// Records without a lineage id are rejected. An id repeated within records
// keeps its first record; later ones are skipped and listed in the report.
// Rows left by earlier runs are replaced.
func (s *Store) Import(ctx context.Context, records []types.PersonRecord) (*storage.ImportReport, error) {
	for i, rec := range records {
		if rec.ID == "" || rec.LineageID == "" {
			return nil, fmt.Errorf("sqlite: record %d needs id and lineage: %w", i, storage.ErrInvalidInput)
		}
	}
	kept, conflicts := storage.FirstOccurrences(records)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: begin import: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO persons (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			lineage_id = excluded.lineage_id,
			name       = excluded.name,
			sex        = excluded.sex,
			father_id  = excluded.father_id,
			mother_id  = excluded.mother_id,
			spouse_ids = excluded.spouse_ids,
			child_ids  = excluded.child_ids,
			birth      = excluded.birth,
			death      = excluded.death
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: prepare import: %w", err)
	}
	defer stmt.Close()

	for _, rec := range kept {
		spouses, err := encodeIDs(rec.SpouseIDs)
		if err != nil {
			return nil, err
		}
		children, err := encodeIDs(rec.ChildIDs)
		if err != nil {
			return nil, err
		}
		if _, err := stmt.ExecContext(ctx,
			string(rec.ID), rec.LineageID, rec.Name, rec.Sex,
			nullableID(rec.FatherID), nullableID(rec.MotherID),
			spouses, children,
			nullableString(rec.Birth), nullableString(rec.Death),
		); err != nil {
			return nil, fmt.Errorf("sqlite: import person %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: commit import: %w", err)
	}
	return &storage.ImportReport{Imported: len(kept), Conflicts: conflicts}, nil
}

func (s *Store) query(ctx context.Context, q string, args ...interface{}) (*types.Document, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query persons: %w", err)
	}
	defer rows.Close()

	doc := &types.Document{}
	for rows.Next() {
		var (
			rec               types.PersonRecord
			id                string
			father, mother    sql.NullString
			spouses, children sql.NullString
			birth, death      sql.NullString
		)
		if err := rows.Scan(&id, &rec.LineageID, &rec.Name, &rec.Sex,
			&father, &mother, &spouses, &children, &birth, &death); err != nil {
			return nil, fmt.Errorf("sqlite: scan person: %w", err)
		}
		rec.ID = types.PersonID(id)
		rec.FatherID = types.PersonID(father.String)
		rec.MotherID = types.PersonID(mother.String)
		rec.Birth = birth.String
		rec.Death = death.String
		if rec.SpouseIDs, err = decodeIDs(spouses); err != nil {
			return nil, fmt.Errorf("sqlite: person %s spouse_ids: %v: %w", id, err, storage.ErrMalformed)
		}
		if rec.ChildIDs, err = decodeIDs(children); err != nil {
			return nil, fmt.Errorf("sqlite: person %s child_ids: %v: %w", id, err, storage.ErrMalformed)
		}
		doc.People = append(doc.People, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate persons: %w", err)
	}
	return doc, nil
}

func encodeIDs(ids []types.PersonID) (sql.NullString, error) {
	if len(ids) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("sqlite: marshal ids: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeIDs(v sql.NullString) ([]types.PersonID, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	var ids []types.PersonID
	if err := json.Unmarshal([]byte(v.String), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func nullableID(id types.PersonID) sql.NullString {
	return nullableString(string(id))
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
