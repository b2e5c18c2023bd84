package journal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/steady/pkg/object"
	"github.com/roach88/steady/pkg/ownership"
)

// Manifest is one row of the manifests table.
type Manifest struct {
	Kind     object.Kind     `json:"kind"`
	Name     string          `json:"name"`
	Manifest json.RawMessage `json:"manifest"`
	Digest   string          `json:"digest"`
	Seq      int64           `json:"seq"`
}

// Change is one row of the change log.
type Change struct {
	Seq    int64       `json:"seq"`
	Kind   object.Kind `json:"kind"`
	Name   string      `json:"name"`
	Change string      `json:"change"`
	Patch  bool        `json:"patch,omitempty"`
	Owner  string      `json:"owner,omitempty"`
	Digest string      `json:"digest,omitempty"`
}

// ChangeFilter narrows Changes. Zero fields match everything.
type ChangeFilter struct {
	Kind  object.Kind
	Name  string
	Since int64
}

// Manifests returns the current manifests ordered by seq, then kind and name.
//
// Returns an empty slice (not nil) for an empty journal.
func (j *Journal) Manifests(ctx context.Context) ([]Manifest, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT kind, name, manifest, digest, seq
		FROM manifests
		ORDER BY seq ASC, kind COLLATE BINARY ASC, name COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query manifests: %w", err)
	}
	defer rows.Close()

	out := []Manifest{}
	for rows.Next() {
		var (
			m    Manifest
			kind string
			data string
		)
		if err := rows.Scan(&kind, &m.Name, &data, &m.Digest, &m.Seq); err != nil {
			return nil, fmt.Errorf("scan manifest: %w", err)
		}
		m.Kind = object.Kind(kind)
		m.Manifest = json.RawMessage(data)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate manifests: %w", err)
	}
	return out, nil
}

// Edges returns the current ownership edges ordered by seq.
func (j *Journal) Edges(ctx context.Context) ([]ownership.Edge, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT owner_kind, owner_name, owned_kind, owned_name
		FROM owners
		ORDER BY seq ASC, owned_kind COLLATE BINARY ASC, owned_name COLLATE BINARY ASC,
			owner_kind COLLATE BINARY ASC, owner_name COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query owners: %w", err)
	}
	defer rows.Close()

	out := []ownership.Edge{}
	for rows.Next() {
		var ownerKind, ownerName, ownedKind, ownedName string
		if err := rows.Scan(&ownerKind, &ownerName, &ownedKind, &ownedName); err != nil {
			return nil, fmt.Errorf("scan owner: %w", err)
		}
		out = append(out, ownership.Edge{
			Owner: object.Ref{Kind: object.Kind(ownerKind), Name: ownerName},
			Owned: object.Ref{Kind: object.Kind(ownedKind), Name: ownedName},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate owners: %w", err)
	}
	return out, nil
}

// Changes returns the change log ordered by seq.
func (j *Journal) Changes(ctx context.Context, f ChangeFilter) ([]Change, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT seq, kind, name, change, patch, owner, digest
		FROM changes
		WHERE seq > ?
		  AND (? = '' OR kind = ?)
		  AND (? = '' OR name = ?)
		ORDER BY seq ASC
	`, f.Since, string(f.Kind), string(f.Kind), f.Name, f.Name)
	if err != nil {
		return nil, fmt.Errorf("query changes: %w", err)
	}
	defer rows.Close()

	out := []Change{}
	for rows.Next() {
		var (
			c    Change
			kind string
		)
		if err := rows.Scan(&c.Seq, &kind, &c.Name, &c.Change, &c.Patch, &c.Owner, &c.Digest); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		c.Kind = object.Kind(kind)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate changes: %w", err)
	}
	return out, nil
}
