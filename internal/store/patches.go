package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kobst/project-apollo-sub005/patch"
)

// AppendPatch journals p as the patch that produced versionID. The version
// must already be saved. Re-journaling the same patch ID is a no-op.
func (db *DB) AppendPatch(ctx context.Context, versionID string, p *patch.Patch) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshaling patch: %w", err)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	_, err = db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO patches (id, version_id, created_at, source, action, body)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, versionID, p.CreatedAt, p.Metadata.Source, p.Metadata.Action, body,
	)
	if err != nil {
		return fmt.Errorf("inserting patch: %w", err)
	}
	return nil
}

// Patches returns the patches journaled for versionID, oldest first.
func (db *DB) Patches(ctx context.Context, versionID string) ([]*patch.Patch, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT body FROM patches WHERE version_id = ? ORDER BY created_at, rowid`, versionID)
	if err != nil {
		return nil, fmt.Errorf("querying patches: %w", err)
	}
	defer rows.Close()

	var out []*patch.Patch
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scanning patch: %w", err)
		}
		p, err := patch.Decode(body)
		if err != nil {
			return nil, fmt.Errorf("decoding patch: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating patches: %w", err)
	}
	return out, nil
}
