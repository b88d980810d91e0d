//go:build cgo

package doltstore

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/dmmcore/dmm/internal/dmmerrors"
	"github.com/dmmcore/dmm/internal/dmmtypes"
)

func (s *DoltStore) PutScanRecord(ctx context.Context, r *dmmtypes.ScanRecord) error {
	methods := make([]string, len(r.MethodsUsed))
	for i, m := range r.MethodsUsed {
		methods[i] = string(m)
	}
	methodsJSON, _ := json.Marshal(methods)
	errorsJSON, _ := json.Marshal(r.Errors)

	var completedAt sql.NullTime
	if !r.CompletedAt.IsZero() {
		completedAt = sql.NullTime{Time: r.CompletedAt.UTC(), Valid: true}
	}

	_, err := s.ex.ExecContext(ctx, `
		INSERT INTO scan_log (
			scan_id, scan_type, started_at, completed_at, duration_ms, memories_scanned,
			methods_used, detected, new_count, existing_count, errors_json
		) VALUES (?,?,?,?,?,?,?,?,?,?,?)
		ON DUPLICATE KEY UPDATE
			completed_at=VALUES(completed_at), duration_ms=VALUES(duration_ms),
			memories_scanned=VALUES(memories_scanned), methods_used=VALUES(methods_used),
			detected=VALUES(detected), new_count=VALUES(new_count),
			existing_count=VALUES(existing_count), errors_json=VALUES(errors_json)
	`,
		r.ScanID, string(r.ScanType), r.StartedAt.UTC(), completedAt, r.DurationMS,
		r.MemoriesScanned, string(methodsJSON), r.Detected, r.New, r.Existing, string(errorsJSON),
	)
	return dmmerrors.WrapStoreErr("put scan record", err)
}

func (s *DoltStore) LastScan(ctx context.Context, scanType dmmtypes.ScanType) (*dmmtypes.ScanRecord, error) {
	row := s.ex.QueryRowContext(ctx, `
		SELECT scan_id, scan_type, started_at, completed_at, duration_ms, memories_scanned,
			methods_used, detected, new_count, existing_count, errors_json
		FROM scan_log WHERE scan_type = ? ORDER BY started_at DESC LIMIT 1
	`, string(scanType))

	var r dmmtypes.ScanRecord
	var typ, methodsJSON, errorsJSON string
	var startedAt, completedAt sql.NullTime

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
	if t := fromNullableTime(startedAt); t != nil {
		r.StartedAt = *t
	}
	if t := fromNullableTime(completedAt); t != nil {
		r.CompletedAt = *t
	}

	var methods []string
	_ = json.Unmarshal([]byte(methodsJSON), &methods)
	for _, m := range methods {
		r.MethodsUsed = append(r.MethodsUsed, dmmtypes.DetectionMethod(m))
	}
	_ = json.Unmarshal([]byte(errorsJSON), &r.Errors)

	return &r, nil
}
