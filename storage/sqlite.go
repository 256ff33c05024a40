// Package storage persists the node tree in an embedded SQLite database.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/brettbedarf/webmirror"
	"github.com/brettbedarf/webmirror/filesystem"
	"github.com/brettbedarf/webmirror/internal/util"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	path TEXT NOT NULL,
	kind INTEGER NOT NULL DEFAULT 0,
	size INTEGER,
	favorite INTEGER NOT NULL DEFAULT 0,
	root INTEGER NOT NULL DEFAULT 0,
	modification_time INTEGER, -- unix nanoseconds
	parent_id TEXT REFERENCES nodes(id) ON DELETE CASCADE
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_nodes_parent_name ON nodes(parent_id, name);
CREATE UNIQUE INDEX IF NOT EXISTS idx_nodes_single_root ON nodes(root) WHERE root = 1;
`

const upsertNode = `
INSERT INTO nodes (id, name, path, kind, size, favorite, root, modification_time, parent_id)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	path = excluded.path,
	kind = excluded.kind,
	size = excluded.size,
	favorite = excluded.favorite,
	modification_time = excluded.modification_time`

// DB is a [filesystem.Persister] backed by SQLite
type DB struct {
	conn *sql.DB
	path string
}

var _ filesystem.Persister = (*DB)(nil)

// Open opens (creating if needed) the node database at path and initializes
// the schema.
//
// The caller MUST call Close() when done.
func Open(ctx context.Context, path string) (*DB, error) {
	logger := util.GetLogger("storage.Open")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)", path)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// single writer; the node store serializes batches anyway
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := conn.ExecContext(ctx, schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logger.Debug().Str("path", path).Msg("Opened node database")
	return &DB{conn: conn, path: path}, nil
}

// Path returns the database file location
func (db *DB) Path() string {
	return db.path
}

// Close checkpoints the WAL and closes the connection
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		logger := util.GetLogger("storage.Close")
		logger.Warn().Err(err).Msg("Failed to checkpoint WAL")
	}
	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	db.conn = nil
	return nil
}

// Load returns every persisted node
func (db *DB) Load(ctx context.Context) ([]webmirror.Node, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, name, path, kind, size, favorite, root, modification_time, parent_id
		FROM nodes`)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()

	var nodes []webmirror.Node
	for rows.Next() {
		var (
			n        webmirror.Node
			size     sql.NullInt64
			mtime    sql.NullInt64
			parentID sql.NullString
		)
		if err := rows.Scan(&n.ID, &n.Name, &n.Path, &n.Kind, &size, &n.IsFavorite, &n.IsRoot, &mtime, &parentID); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		if size.Valid {
			n.Size = &size.Int64
		}
		if mtime.Valid {
			t := time.Unix(0, mtime.Int64)
			n.ModifiedAt = &t
		}
		n.ParentID = parentID.String
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read nodes: %w", err)
	}
	return nodes, nil
}

// Apply writes b in a single transaction, deletes first
func (db *DB) Apply(ctx context.Context, b filesystem.Batch) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if len(b.Deletes) > 0 {
		del, err := tx.PrepareContext(ctx, `DELETE FROM nodes WHERE id = ?`)
		if err != nil {
			return fmt.Errorf("failed to prepare delete: %w", err)
		}
		defer del.Close()
		for _, id := range b.Deletes {
			if _, err := del.ExecContext(ctx, id); err != nil {
				return fmt.Errorf("failed to delete node %s: %w", id, err)
			}
		}
	}

	if len(b.Upserts) > 0 {
		up, err := tx.PrepareContext(ctx, upsertNode)
		if err != nil {
			return fmt.Errorf("failed to prepare upsert: %w", err)
		}
		defer up.Close()
		for _, n := range b.Upserts {
			if _, err := up.ExecContext(ctx, nodeArgs(n)...); err != nil {
				return fmt.Errorf("failed to upsert node %s: %w", n.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

func nodeArgs(n webmirror.Node) []any {
	var size, mtime, parentID any
	if n.Size != nil {
		size = *n.Size
	}
	if n.ModifiedAt != nil {
		mtime = n.ModifiedAt.UnixNano()
	}
	if n.ParentID != "" {
		parentID = n.ParentID
	}
	return []any{n.ID, n.Name, n.Path, int64(n.Kind), size, n.IsFavorite, n.IsRoot, mtime, parentID}
}
