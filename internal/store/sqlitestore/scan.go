package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dmmcore/dmm/internal/dmmerrors"
	"github.com/dmmcore/dmm/internal/dmmtypes"
)

func (s *SQLiteStore) PutScanRecord(ctx context.Context, r *dmmtypes.ScanRecord) error {
	methods := make([]string, len(r.MethodsUsed))
	for i, m := range r.MethodsUsed {
		methods[i] = string(m)
	}
	methodsJSON, _ := json.Marshal(methods)
	errorsJSON, _ := json.Marshal(r.Errors)

	var completedAt sql.NullString
	if !r.CompletedAt.IsZero() {
		completedAt = sql.NullString{String: r.CompletedAt.UTC().Format(rfc3339), Valid: true}
	}

	_, err := s.ex.ExecContext(ctx, `
		INSERT INTO scan_log (
			scan_id, scan_type, started_at, completed_at, duration_ms, memories_scanned,
			methods_used, detected, new_count, existing_count, errors_json
		) VALUES (?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(scan_id) DO UPDATE SET
			completed_at=excluded.completed_at, duration_ms=excluded.duration_ms,
			memories_scanned=excluded.memories_scanned, methods_used=excluded.methods_used,
			detected=excluded.detected, new_count=excluded.new_count,
			existing_count=excluded.existing_count, errors_json=excluded.errors_json
	`,
		r.ScanID, string(r.ScanType), r.StartedAt.UTC().Format(rfc3339), completedAt, r.DurationMS,
		r.MemoriesScanned, string(methodsJSON), r.Detected, r.New, r.Existing, string(errorsJSON),
	)
	return dmmerrors.WrapStoreErr("put scan record", err)
}

func (s *SQLiteStore) LastScan(ctx context.Context, scanType dmmtypes.ScanType) (*dmmtypes.ScanRecord, error) {
	row := s.ex.QueryRowContext(ctx, `
		SELECT scan_id, scan_type, started_at, completed_at, duration_ms, memories_scanned,
			methods_used, detected, new_count, existing_count, errors_json
		FROM scan_log WHERE scan_type = ? ORDER BY started_at DESC LIMIT 1
	`, string(scanType))

	var r dmmtypes.ScanRecord
	var typ, startedAt, methodsJSON, errorsJSON string
	var completedAt sql.NullString

	err := row.Scan(
		&r.ScanID, &typ, &startedAt, &completedAt, &r.DurationMS, &r.MemoriesScanned,
		&methodsJSON, &r.Detected, &r.New, &r.Existing, &errorsJSON,
	)
	if err == sql.ErrNoRows {
		return nil, dmmerrors.ErrNotFound
	}
	if err != nil {
		return nil, dmmerrors.WrapStoreErr("last scan", err)
	}

	r.ScanType = dmmtypes.ScanType(typ)
	started, err := parseTimestamp(startedAt)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: parse scan started_at: %w", err)
	}
	r.StartedAt = started
	if completedAt.Valid {
		if t := parseNullableTime(completedAt); t != nil {
			r.CompletedAt = *t
		}
	}

	var methods []string
	_ = json.Unmarshal([]byte(methodsJSON), &methods)
	for _, m := range methods {
		r.MethodsUsed = append(r.MethodsUsed, dmmtypes.DetectionMethod(m))
	}
	_ = json.Unmarshal([]byte(errorsJSON), &r.Errors)

	return &r, nil
}
