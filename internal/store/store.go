// Package store persists story histories in SQLite. Snapshots are stored once
// per BLAKE3 digest as zstd-compressed canonical JSON.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"github.com/kobst/project-apollo-sub005/cas"
	"github.com/kobst/project-apollo-sub005/graph"
	"github.com/kobst/project-apollo-sub005/history"
	"github.com/kobst/project-apollo-sub005/validate"
)

//go:embed schema.sql
var schemaSQL string

const (
	metaCurrentVersion = "current_version_id"
	metaCurrentBranch  = "current_branch"
)

var (
	ErrNoHistory      = errors.New("no history stored")
	ErrObjectNotFound = errors.New("object not found")
)

// DigestMismatchError reports a stored snapshot whose bytes no longer hash to
// its address.
type DigestMismatchError struct {
	Digest string
	Actual string
}

func (e *DigestMismatchError) Error() string {
	return fmt.Sprintf("snapshot %s is corrupt: content hashes to %s", e.Digest, e.Actual)
}

// DB wraps the SQLite database holding one story.
type DB struct {
	conn *sql.DB
	// mu serializes writers; one process owns a story at a time.
	mu  sync.Mutex
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Open opens or creates the database at the given path.
func Open(dbPath string) (*DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Wait up to 5s on lock instead of failing immediately
	conn.Exec("PRAGMA busy_timeout=5000")
	conn.Exec("PRAGMA foreign_keys=ON")

	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		conn.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}

	return &DB{conn: conn, enc: enc, dec: dec}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.dec.Close()
	if err := db.enc.Close(); err != nil {
		db.conn.Close()
		return fmt.Errorf("closing encoder: %w", err)
	}
	return db.conn.Close()
}

// BeginTxCtx starts a new transaction with context for cancellation support.
func (db *DB) BeginTxCtx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return db.conn.BeginTx(ctx, opts)
}

// HasHistory reports whether a history has been saved.
func (db *DB) HasHistory(ctx context.Context) (bool, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM meta WHERE key = ?`, metaCurrentVersion,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking history: %w", err)
	}
	return count > 0, nil
}

// SaveHistory writes h in one transaction. Versions are immutable, so only
// versions not yet stored are written; branches and the current position are
// replaced.
func (db *DB) SaveHistory(ctx context.Context, h *history.History) error {
	if err := h.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid history: %w", err)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.BeginTxCtx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stored, err := storedVersionIDs(ctx, tx)
	if err != nil {
		return err
	}

	for _, id := range sortedVersionIDs(h) {
		if stored[id] {
			continue
		}
		v := h.Versions[id]
		if err := db.putSnapshot(ctx, tx, v); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO versions (id, parent_id, label, created_at, digest) VALUES (?, ?, ?, ?, ?)`,
			v.ID, nullable(v.ParentID), v.Label, v.CreatedAt, v.Digest,
		)
		if err != nil {
			return fmt.Errorf("inserting version %s: %w", v.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM branches`); err != nil {
		return fmt.Errorf("clearing branches: %w", err)
	}
	for _, b := range h.BranchList() {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO branches (name, head, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			b.Name, b.Head, b.CreatedAt, b.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting branch %s: %w", b.Name, err)
		}
	}

	if err := setMeta(ctx, tx, metaCurrentVersion, h.CurrentVersionID); err != nil {
		return err
	}
	if err := setMeta(ctx, tx, metaCurrentBranch, h.CurrentBranch); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing history: %w", err)
	}
	return nil
}

// putSnapshot stores v's graph under its digest unless already present.
func (db *DB) putSnapshot(ctx context.Context, tx *sql.Tx, v *history.Version) error {
	digest, data, err := cas.Digest(v.Graph)
	if err != nil {
		return fmt.Errorf("digesting version %s: %w", v.ID, err)
	}
	if digest != v.Digest {
		return &DigestMismatchError{Digest: v.Digest, Actual: digest}
	}
	compressed := db.enc.EncodeAll(data, nil)
	_, err = tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO objects (digest, size, data) VALUES (?, ?, ?)`,
		digest, len(data), compressed,
	)
	if err != nil {
		return fmt.Errorf("inserting object: %w", err)
	}
	return nil
}

// LoadHistory reads the stored history, verifying every snapshot digest and
// the structural invariants of the result.
func (db *DB) LoadHistory(ctx context.Context) (*history.History, error) {
	h := &history.History{
		Versions: make(map[string]*history.Version),
		Branches: make(map[string]*history.Branch),
	}

	var ok bool
	var err error
	if h.CurrentVersionID, ok, err = db.getMeta(ctx, metaCurrentVersion); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrNoHistory
	}
	if h.CurrentBranch, _, err = db.getMeta(ctx, metaCurrentBranch); err != nil {
		return nil, err
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, parent_id, label, created_at, digest FROM versions`)
	if err != nil {
		return nil, fmt.Errorf("querying versions: %w", err)
	}
	defer rows.Close()

	snapshots := make(map[string]*graph.State)
	var versions []*history.Version
	for rows.Next() {
		var v history.Version
		var parent sql.NullString
		if err := rows.Scan(&v.ID, &parent, &v.Label, &v.CreatedAt, &v.Digest); err != nil {
			return nil, fmt.Errorf("scanning version: %w", err)
		}
		v.ParentID = parent.String
		versions = append(versions, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating versions: %w", err)
	}
	rows.Close()

	for _, v := range versions {
		g, ok := snapshots[v.Digest]
		if !ok {
			g, err = db.Snapshot(ctx, v.Digest)
			if err != nil {
				return nil, fmt.Errorf("loading version %s: %w", v.ID, err)
			}
			snapshots[v.Digest] = g
		}
		v.Graph = g
		h.Versions[v.ID] = v
	}

	branches, err := db.conn.QueryContext(ctx,
		`SELECT name, head, created_at, updated_at FROM branches`)
	if err != nil {
		return nil, fmt.Errorf("querying branches: %w", err)
	}
	defer branches.Close()
	for branches.Next() {
		var b history.Branch
		if err := branches.Scan(&b.Name, &b.Head, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning branch: %w", err)
		}
		h.Branches[b.Name] = &b
	}
	if err := branches.Err(); err != nil {
		return nil, fmt.Errorf("iterating branches: %w", err)
	}

	if err := h.Validate(); err != nil {
		return nil, fmt.Errorf("stored history is inconsistent: %w", err)
	}
	return h, nil
}

// Snapshot reads and verifies the graph stored under digest: the digest must
// match and the graph must pass validate.ValidateGraph. Versions with equal
// content share one snapshot.
func (db *DB) Snapshot(ctx context.Context, digest string) (*graph.State, error) {
	var compressed []byte
	err := db.conn.QueryRowContext(ctx,
		`SELECT data FROM objects WHERE digest = ?`, digest,
	).Scan(&compressed)
	if err == sql.ErrNoRows {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying object: %w", err)
	}

	data, err := db.dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing: %w", err)
	}
	if actual := cas.Blake3HashHex(data); actual != digest {
		return nil, &DigestMismatchError{Digest: digest, Actual: actual}
	}

	g := graph.NewState()
	if err := json.Unmarshal(data, g); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	if g.Nodes == nil {
		g.Nodes = make(map[string]*graph.Node)
	}
	if g.Edges == nil {
		g.Edges = []*graph.Edge{}
	}
	if err := validate.ValidateGraph(g).Err(); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", digest, err)
	}
	return g, nil
}

func storedVersionIDs(ctx context.Context, tx *sql.Tx) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM versions`)
	if err != nil {
		return nil, fmt.Errorf("querying versions: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning version: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// sortedVersionIDs orders versions so parents are inserted before children.
func sortedVersionIDs(h *history.History) []string {
	var out []string
	done := make(map[string]bool, len(h.Versions))
	var visit func(id string)
	visit = func(id string) {
		if done[id] {
			return
		}
		done[id] = true
		if v := h.Versions[id]; v != nil && v.ParentID != "" {
			visit(v.ParentID)
		}
		out = append(out, id)
	}
	ids := make([]string, 0, len(h.Versions))
	for id := range h.Versions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		visit(id)
	}
	return out
}

func setMeta(ctx context.Context, tx *sql.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return nil
}

func (db *DB) getMeta(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := db.conn.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading %s: %w", key, err)
	}
	return value, true, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Meta reads a free-form setting stored alongside the history.
func (db *DB) Meta(ctx context.Context, key string) (string, bool, error) {
	return db.getMeta(ctx, key)
}

// SetMeta stores a free-form setting.
func (db *DB) SetMeta(ctx context.Context, key, value string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.BeginTxCtx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()
	if err := setMeta(ctx, tx, key, value); err != nil {
		return err
	}
	return tx.Commit()
}
