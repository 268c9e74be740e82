package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/structprune/internal/split"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - structures and active_versions tables
const currentSchemaVersion = 1

// SQLite is a Store backed by a local SQLite file.
// Uses WAL mode so a snapshot can be inspected while it is being written.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite creates or opens a SQLite mirror at path.
// Applies required pragmas and the schema automatically.
//
// This function is idempotent - safe to call multiple times.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, split.NewStoreUnavailable("open sqlite", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, split.NewStoreUnavailable("connect sqlite", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, split.NewStoreUnavailable("apply pragmas", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, split.NewStoreUnavailable("apply schema", err)
	}

	return &SQLite{db: db}, nil
}

// OpenExistingSQLite opens the SQLite mirror at path and fails with
// STORE_UNAVAILABLE when the file does not exist. Planning or applying
// against a mistyped path would otherwise see an empty store.
func OpenExistingSQLite(path string) (*SQLite, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, split.NewStoreUnavailable("open sqlite", err).WithID(path)
	}
	if fi.IsDir() {
		return nil, split.NewStoreUnavailable("open sqlite", fmt.Errorf("%s is a directory", path)).WithID(path)
	}
	return OpenSQLite(path)
}

// Close implements Store.
func (s *SQLite) Close(context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// PutStructures upserts structures in one transaction.
func (s *SQLite) PutStructures(ctx context.Context, structures []split.Structure) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return split.NewStoreUnavailable("put structures", err)
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO structures (id, original_id, previous_id)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			original_id = excluded.original_id,
			previous_id = excluded.previous_id
	`)
	if err != nil {
		return split.NewStoreUnavailable("put structures", err)
	}
	defer stmt.Close()

	for _, st := range structures {
		if _, err := stmt.ExecContext(ctx, st.ID, st.OriginalID, st.PreviousID); err != nil {
			return split.NewStoreUnavailable("put structures", err).WithID(st.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return split.NewStoreUnavailable("put structures", err)
	}
	return nil
}

// PutBranches upserts active version branches in one transaction.
func (s *SQLite) PutBranches(ctx context.Context, branches []split.Branch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return split.NewStoreUnavailable("put branches", err)
	}
	defer tx.Rollback()

	for _, b := range branches {
		editedOn := ""
		if !b.EditedOn.IsZero() {
			editedOn = b.EditedOn.UTC().Format(time.RFC3339Nano)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO active_versions (id, branch, structure_id, context_key, edited_on)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id, branch) DO UPDATE SET
				structure_id = excluded.structure_id,
				context_key = excluded.context_key,
				edited_on = excluded.edited_on
		`, b.ActiveVersionID, b.Name, b.StructureID, b.Key, editedOn)
		if err != nil {
			return split.NewStoreUnavailable("put branches", err).WithID(b.ActiveVersionID)
		}
	}

	if err := tx.Commit(); err != nil {
		return split.NewStoreUnavailable("put branches", err)
	}
	return nil
}

// IterateActiveBranches implements Store.
func (s *SQLite) IterateActiveBranches(ctx context.Context, fn func(split.Branch) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, branch, structure_id, context_key, edited_on
		FROM active_versions
		ORDER BY id COLLATE BINARY ASC, branch COLLATE BINARY ASC
	`)
	if err != nil {
		return split.NewStoreUnavailable("query active versions", err)
	}
	defer rows.Close()

	var branches []split.Branch
	for rows.Next() {
		var b split.Branch
		var editedOn string
		if err := rows.Scan(&b.ActiveVersionID, &b.Name, &b.StructureID, &b.Key, &editedOn); err != nil {
			return split.NewStoreUnavailable("scan active version", err)
		}
		if editedOn != "" {
			t, err := time.Parse(time.RFC3339Nano, editedOn)
			if err != nil {
				return fmt.Errorf("parse edited_on for %s: %w", b.ActiveVersionID, err)
			}
			b.EditedOn = t
		}
		branches = append(branches, b)
	}
	if err := rows.Err(); err != nil {
		return split.NewStoreUnavailable("iterate active versions", err)
	}

	// Rows are fully read before calling fn so fn may use the store.
	for _, b := range branches {
		if err := fn(b); err != nil {
			return err
		}
	}
	return nil
}

// IterateStructures implements Store using keyset pagination: each page of
// b.Size rows is one batch.
func (s *SQLite) IterateStructures(ctx context.Context, b Batch, fn func(split.Structure) error) error {
	after := ""
	for page := 0; ; page++ {
		if page > 0 {
			if err := b.Pause(ctx); err != nil {
				return err
			}
		}

		structures, err := s.structurePage(ctx, after, b.size())
		if err != nil {
			return err
		}
		for _, st := range structures {
			if err := fn(st); err != nil {
				return err
			}
		}
		if len(structures) < b.size() {
			return nil
		}
		after = structures[len(structures)-1].ID
	}
}

func (s *SQLite) structurePage(ctx context.Context, after string, limit int) ([]split.Structure, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, original_id, previous_id
		FROM structures
		WHERE id > ?
		ORDER BY id COLLATE BINARY ASC
		LIMIT ?
	`, after, limit)
	if err != nil {
		return nil, split.NewStoreUnavailable("query structures", err)
	}
	defer rows.Close()

	var out []split.Structure
	for rows.Next() {
		var st split.Structure
		if err := rows.Scan(&st.ID, &st.OriginalID, &st.PreviousID); err != nil {
			return nil, split.NewStoreUnavailable("scan structure", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, split.NewStoreUnavailable("iterate structures", err)
	}
	return out, nil
}

// GetStructure implements Store.
func (s *SQLite) GetStructure(ctx context.Context, id string) (split.Structure, bool, error) {
	var st split.Structure
	err := s.db.QueryRowContext(ctx, `
		SELECT id, original_id, previous_id FROM structures WHERE id = ?
	`, id).Scan(&st.ID, &st.OriginalID, &st.PreviousID)
	if errors.Is(err, sql.ErrNoRows) {
		return split.Structure{}, false, nil
	}
	if err != nil {
		return split.Structure{}, false, split.NewStoreUnavailable("get structure", err).WithID(id)
	}
	return st, true, nil
}

// UpdatePreviousIDs implements Store. Each batch is one transaction of
// per-row updates.
func (s *SQLite) UpdatePreviousIDs(ctx context.Context, relinks []split.Relink, b Batch) ([]BatchResult, error) {
	var results []BatchResult
	err := ForEachBatch(ctx, len(relinks), b, func(index, lo, hi int) error {
		res := BatchResult{Index: index, Requested: hi - lo}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return split.NewStoreUnavailable("update previous_id", err)
		}
		defer tx.Rollback()

		for _, r := range relinks[lo:hi] {
			var current string
			err := tx.QueryRowContext(ctx, `SELECT previous_id FROM structures WHERE id = ?`, r.StructureID).Scan(&current)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return split.NewPartialBatch("update previous_id", index, res.Requested, err)
			}
			res.Matched++
			if current == r.PreviousID {
				continue
			}
			if _, err := tx.ExecContext(ctx, `UPDATE structures SET previous_id = ? WHERE id = ?`, r.PreviousID, r.StructureID); err != nil {
				return split.NewPartialBatch("update previous_id", index, res.Requested, err)
			}
			res.Modified++
		}

		if err := tx.Commit(); err != nil {
			return split.NewPartialBatch("update previous_id", index, res.Requested, err)
		}
		results = append(results, res)
		return nil
	})
	return results, err
}

// maxSQLVariables bounds the placeholders bound by one statement. Larger
// batches are deleted in several statements inside one transaction.
const maxSQLVariables = 500

// DeleteStructures implements Store.
func (s *SQLite) DeleteStructures(ctx context.Context, ids []string, b Batch) ([]BatchResult, error) {
	var results []BatchResult
	err := ForEachBatch(ctx, len(ids), b, func(index, lo, hi int) error {
		chunk := ids[lo:hi]
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return split.NewStoreUnavailable("begin delete", err)
		}
		defer tx.Rollback()

		deleted := 0
		for start := 0; start < len(chunk); start += maxSQLVariables {
			part := chunk[start:min(start+maxSQLVariables, len(chunk))]
			args := make([]any, len(part))
			for i, id := range part {
				args[i] = id
			}
			placeholders := strings.TrimSuffix(strings.Repeat("?,", len(part)), ",")

			res, err := tx.ExecContext(ctx, `DELETE FROM structures WHERE id IN (`+placeholders+`)`, args...)
			if err != nil {
				return split.NewPartialBatch("delete structures", index, len(chunk), err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return split.NewPartialBatch("delete structures", index, len(chunk), err)
			}
			deleted += int(n)
		}

		if err := tx.Commit(); err != nil {
			return split.NewPartialBatch("delete structures", index, len(chunk), err)
		}
		results = append(results, BatchResult{Index: index, Requested: len(chunk), Deleted: deleted})
		return nil
	})
	return results, err
}
