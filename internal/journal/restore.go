package journal

import (
	"context"
	"fmt"

	"github.com/roach88/steady/pkg/engine"
	"github.com/roach88/steady/pkg/object"
)

// Restore re-inserts every journaled manifest into e, with its owners, and
// waits for each insert. e must be running. Restored mutations update the
// manifests and owners tables but add no change-log rows; mutations that
// reconciles make meanwhile to other objects are logged as usual.
//
// Manifests of kinds e does not know are skipped with a warning. An edge
// that a reconcile re-created before Restore reached it is not an error.
func (j *Journal) Restore(ctx context.Context, e *engine.Engine) (int, error) {
	manifests, err := j.Manifests(ctx)
	if err != nil {
		return 0, err
	}
	edges, err := j.Edges(ctx)
	if err != nil {
		return 0, err
	}

	owners := make(map[object.Ref][]object.Ref, len(edges))
	for _, edge := range edges {
		owners[edge.Owned] = append(owners[edge.Owned], edge.Owner)
	}

	restored := 0
	for _, row := range manifests {
		st, ok := e.Store(row.Kind)
		if !ok {
			j.logger.Warn("skipping journaled manifest of unknown kind", "kind", row.Kind, "name", row.Name)
			continue
		}

		m, err := st.Decode(row.Manifest)
		if err != nil {
			return restored, fmt.Errorf("restore %s/%s: %w", row.Kind, row.Name, err)
		}

		ref := m.Ref()
		j.holdChanges(ref)
		err = j.restoreOne(ctx, e, m, owners[ref])
		j.releaseChanges(ref)
		if err != nil {
			return restored, fmt.Errorf("restore %s/%s: %w", row.Kind, row.Name, err)
		}
		restored++
	}

	j.logger.Info("journal restored", "manifests", restored, "edges", len(edges))
	return restored, nil
}

// restoreOne inserts m once per owner, so every edge is re-registered. An
// edge that already exists is skipped.
func (j *Journal) restoreOne(ctx context.Context, e *engine.Engine, m object.AnyManifest, owners []object.Ref) error {
	cmd := e.Command()

	inserted := false
	for _, owner := range owners {
		err := cmd.InsertOwnedAndWait(ctx, owner, m)
		if object.HasCode(err, object.ErrCodeAlreadyOwned) {
			continue
		}
		if err != nil {
			return err
		}
		inserted = true
	}
	if inserted {
		return nil
	}
	return cmd.InsertAndWait(ctx, m)
}
