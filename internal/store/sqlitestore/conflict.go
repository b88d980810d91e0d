package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dmmcore/dmm/internal/dmmerrors"
	"github.com/dmmcore/dmm/internal/dmmtypes"
)

func (s *SQLiteStore) PutConflict(ctx context.Context, c *dmmtypes.Conflict) error {
	memoriesJSON, err := json.Marshal(c.Memories)
	if err != nil {
		return fmt.Errorf("sqlitestore: marshal conflict memories: %w", err)
	}
	evidenceJSON, err := json.Marshal(c.Evidence)
	if err != nil {
		return fmt.Errorf("sqlitestore: marshal conflict evidence: %w", err)
	}
	pair := dmmtypes.NewPairKey(c.Memories[0].MemoryID, c.Memories[1].MemoryID)

	_, err = s.ex.ExecContext(ctx, `
		INSERT INTO conflict (
			conflict_id, detected_at, scan_id, memory_a_id, memory_b_id, pair_key, memories_json,
			conflict_type, detection_method, confidence, description, evidence_json, status,
			resolved_at, resolution_action, resolution_target, resolution_reason, resolved_by
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(conflict_id) DO UPDATE SET
			status=excluded.status, resolved_at=excluded.resolved_at,
			resolution_action=excluded.resolution_action, resolution_target=excluded.resolution_target,
			resolution_reason=excluded.resolution_reason, resolved_by=excluded.resolved_by
	`,
		c.ConflictID, c.DetectedAt.UTC().Format(rfc3339), c.ScanID,
		pair[0], pair[1], pair[0]+"|"+pair[1], string(memoriesJSON),
		string(c.ConflictType), string(c.DetectionMethod), c.Confidence, c.Description, string(evidenceJSON),
		string(c.Status), nullableTime(c.ResolvedAt), c.ResolutionAction, c.ResolutionTarget,
		c.ResolutionReason, c.ResolvedBy,
	)
	return dmmerrors.WrapStoreErr("put conflict", err)
}

const conflictColumns = `
	conflict_id, detected_at, scan_id, memories_json, conflict_type, detection_method,
	confidence, description, evidence_json, status,
	resolved_at, resolution_action, resolution_target, resolution_reason, resolved_by
`

func scanConflict(row interface{ Scan(dest ...any) error }) (*dmmtypes.Conflict, error) {
	var c dmmtypes.Conflict
	var detectedAt, memoriesJSON, conflictType, method, evidenceJSON, status string
	var resolvedAt sql.NullString

	err := row.Scan(
		&c.ConflictID, &detectedAt, &c.ScanID, &memoriesJSON, &conflictType, &method,
		&c.Confidence, &c.Description, &evidenceJSON, &status,
		&resolvedAt, &c.ResolutionAction, &c.ResolutionTarget, &c.ResolutionReason, &c.ResolvedBy,
	)
	if err != nil {
		return nil, err
	}

	t, err := parseTimestamp(detectedAt)
	if err != nil {
		return nil, err
	}
	c.DetectedAt = t
	c.ConflictType = dmmtypes.ConflictType(conflictType)
	c.DetectionMethod = dmmtypes.DetectionMethod(method)
	c.Status = dmmtypes.ConflictStatus(status)
	c.ResolvedAt = parseNullableTime(resolvedAt)

	if err := json.Unmarshal([]byte(memoriesJSON), &c.Memories); err != nil {
		return nil, fmt.Errorf("sqlitestore: unmarshal conflict memories: %w", err)
	}
	c.Evidence = make(map[string]any)
	if evidenceJSON != "" {
		_ = json.Unmarshal([]byte(evidenceJSON), &c.Evidence)
	}

	return &c, nil
}

func (s *SQLiteStore) GetConflict(ctx context.Context, id string) (*dmmtypes.Conflict, error) {
	row := s.ex.QueryRowContext(ctx, "SELECT "+conflictColumns+" FROM conflict WHERE conflict_id = ?", id)
	c, err := scanConflict(row)
	if err == sql.ErrNoRows {
		return nil, dmmerrors.ErrNotFound
	}
	if err != nil {
		return nil, dmmerrors.WrapStoreErr("get conflict", err)
	}
	return c, nil
}

func (s *SQLiteStore) ListConflicts(ctx context.Context, status dmmtypes.ConflictStatus) ([]*dmmtypes.Conflict, error) {
	query := "SELECT " + conflictColumns + " FROM conflict"
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY detected_at"

	rows, err := s.ex.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dmmerrors.WrapStoreErr("list conflicts", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*dmmtypes.Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, dmmerrors.WrapStoreErr("scan conflict row", err)
		}
		out = append(out, c)
	}
	return out, dmmerrors.WrapStoreErr("iterate conflict rows", rows.Err())
}

// FindConflictByPair returns (nil, nil) when no conflict is persisted for
// pair yet, matching ListMemories/other lookups' "absence is not an error"
// contract for this per-pair existence check.
func (s *SQLiteStore) FindConflictByPair(ctx context.Context, pair dmmtypes.PairKey) (*dmmtypes.Conflict, error) {
	row := s.ex.QueryRowContext(ctx, "SELECT "+conflictColumns+" FROM conflict WHERE pair_key = ?", pair[0]+"|"+pair[1])
	c, err := scanConflict(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, dmmerrors.WrapStoreErr("find conflict by pair", err)
	}
	return c, nil
}
