package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/dmmcore/dmm/internal/dmmerrors"
	"github.com/dmmcore/dmm/internal/dmmtypes"
	"github.com/dmmcore/dmm/internal/store"
)

func jsonList(ss []string) string {
	if len(ss) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(ss)
	return string(b)
}

func parseJSONList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func parseNullableTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

func (s *SQLiteStore) PutMemory(ctx context.Context, m *dmmtypes.Memory) error {
	_, err := s.ex.ExecContext(ctx, `
		INSERT INTO memory (
			id, path, title, body, token_count, tags, scope, priority, confidence, status,
			created, last_used, expires, supersedes, related, file_hash,
			deprecated_at, deprecation_reason, promoted_at, promoted_from
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			path=excluded.path, title=excluded.title, body=excluded.body,
			token_count=excluded.token_count, tags=excluded.tags, scope=excluded.scope,
			priority=excluded.priority, confidence=excluded.confidence, status=excluded.status,
			created=excluded.created, last_used=excluded.last_used, expires=excluded.expires,
			supersedes=excluded.supersedes, related=excluded.related, file_hash=excluded.file_hash,
			deprecated_at=excluded.deprecated_at, deprecation_reason=excluded.deprecation_reason,
			promoted_at=excluded.promoted_at, promoted_from=excluded.promoted_from
	`,
		m.ID, m.Path, m.Title, m.Body, m.TokenCount, jsonList(m.Tags), string(m.Scope),
		m.Priority, string(m.Confidence), string(m.Status),
		nullableTime(m.Created), nullableTime(m.LastUsed), nullableTime(m.Expires),
		jsonList(m.Supersedes), jsonList(m.Related), m.FileHash,
		nullableTime(m.DeprecatedAt), m.DeprecationReason, nullableTime(m.PromotedAt), string(m.PromotedFrom),
	)
	return dmmerrors.WrapStoreErr("put memory", err)
}

const memoryColumns = `
	id, path, title, body, token_count, tags, scope, priority, confidence, status,
	created, last_used, expires, supersedes, related, file_hash,
	deprecated_at, deprecation_reason, promoted_at, promoted_from
`

func scanMemory(row interface {
	Scan(dest ...any) error
}) (*dmmtypes.Memory, error) {
	var m dmmtypes.Memory
	var tags, scope, confidence, status, supersedes, related, promotedFrom string
	var created, lastUsed, expires, deprecatedAt, promotedAt sql.NullString

	err := row.Scan(
		&m.ID, &m.Path, &m.Title, &m.Body, &m.TokenCount, &tags, &scope, &m.Priority, &confidence, &status,
		&created, &lastUsed, &expires, &supersedes, &related, &m.FileHash,
		&deprecatedAt, &m.DeprecationReason, &promotedAt, &promotedFrom,
	)
	if err != nil {
		return nil, err
	}

	m.Tags = parseJSONList(tags)
	m.Scope = dmmtypes.Scope(scope)
	m.Confidence = dmmtypes.Confidence(confidence)
	m.Status = dmmtypes.Status(status)
	m.Created = parseNullableTime(created)
	m.LastUsed = parseNullableTime(lastUsed)
	m.Expires = parseNullableTime(expires)
	m.Supersedes = parseJSONList(supersedes)
	m.Related = parseJSONList(related)
	m.DeprecatedAt = parseNullableTime(deprecatedAt)
	m.PromotedAt = parseNullableTime(promotedAt)
	m.PromotedFrom = dmmtypes.Scope(promotedFrom)

	return &m, nil
}

func (s *SQLiteStore) GetMemory(ctx context.Context, id string) (*dmmtypes.Memory, error) {
	row := s.ex.QueryRowContext(ctx, "SELECT "+memoryColumns+" FROM memory WHERE id = ?", id)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, dmmerrors.ErrNotFound
	}
	if err != nil {
		return nil, dmmerrors.WrapStoreErr("get memory", err)
	}
	return m, nil
}

func (s *SQLiteStore) GetMemoryByPath(ctx context.Context, path string) (*dmmtypes.Memory, error) {
	row := s.ex.QueryRowContext(ctx, "SELECT "+memoryColumns+" FROM memory WHERE path = ?", path)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, dmmerrors.ErrNotFound
	}
	if err != nil {
		return nil, dmmerrors.WrapStoreErr("get memory by path", err)
	}
	return m, nil
}

func (s *SQLiteStore) DeleteMemory(ctx context.Context, id string) error {
	_, err := s.ex.ExecContext(ctx, "DELETE FROM memory WHERE id = ?", id)
	if err != nil {
		return dmmerrors.WrapStoreErr("delete memory", err)
	}
	_, err = s.ex.ExecContext(ctx, "DELETE FROM embedding WHERE memory_id = ?", id)
	return dmmerrors.WrapStoreErr("delete memory embeddings", err)
}

func (s *SQLiteStore) ListMemories(ctx context.Context, filter store.MemoryFilter) ([]*dmmtypes.Memory, error) {
	query := "SELECT " + memoryColumns + " FROM memory WHERE 1=1"
	var args []any

	if filter.Scope != "" {
		query += " AND scope = ?"
		args = append(args, string(filter.Scope))
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.PathGlob != "" {
		query += " AND path GLOB ?"
		args = append(args, filter.PathGlob)
	}
	query += " ORDER BY path"

	rows, err := s.ex.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dmmerrors.WrapStoreErr("list memories", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*dmmtypes.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, dmmerrors.WrapStoreErr("scan memory row", err)
		}
		if len(filter.Tags) > 0 && !hasAllTags(m.Tags, filter.Tags) {
			continue
		}
		out = append(out, m)
	}
	return out, dmmerrors.WrapStoreErr("iterate memory rows", rows.Err())
}

func hasAllTags(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, t := range have {
		set[strings.ToLower(t)] = struct{}{}
	}
	for _, t := range want {
		if _, ok := set[strings.ToLower(t)]; !ok {
			return false
		}
	}
	return true
}

func (s *SQLiteStore) GetSystemMeta(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.ex.QueryRowContext(ctx, "SELECT value FROM system_meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, dmmerrors.WrapStoreErr("get system meta", err)
	}
	return value, true, nil
}

func (s *SQLiteStore) SetSystemMeta(ctx context.Context, key, value string) error {
	_, err := s.ex.ExecContext(ctx, `
		INSERT INTO system_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return dmmerrors.WrapStoreErr("set system meta", err)
}
