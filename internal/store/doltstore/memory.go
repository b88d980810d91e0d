//go:build cgo

package doltstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

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

func (s *DoltStore) PutMemory(ctx context.Context, m *dmmtypes.Memory) error {
	_, err := s.ex.ExecContext(ctx, `
		INSERT INTO memory (
			id, path, title, body, token_count, tags, scope, priority, confidence, status,
			created, last_used, expires, supersedes, related, file_hash,
			deprecated_at, deprecation_reason, promoted_at, promoted_from
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON DUPLICATE KEY UPDATE
			path=VALUES(path), title=VALUES(title), body=VALUES(body),
			token_count=VALUES(token_count), tags=VALUES(tags), scope=VALUES(scope),
			priority=VALUES(priority), confidence=VALUES(confidence), status=VALUES(status),
			created=VALUES(created), last_used=VALUES(last_used), expires=VALUES(expires),
			supersedes=VALUES(supersedes), related=VALUES(related), file_hash=VALUES(file_hash),
			deprecated_at=VALUES(deprecated_at), deprecation_reason=VALUES(deprecation_reason),
			promoted_at=VALUES(promoted_at), promoted_from=VALUES(promoted_from)
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

func scanMemory(row interface{ Scan(dest ...any) error }) (*dmmtypes.Memory, error) {
	var m dmmtypes.Memory
	var tags, scope, confidence, status, supersedes, related, promotedFrom string
	var created, lastUsed, expires, deprecatedAt, promotedAt sql.NullTime

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
	m.Created = fromNullableTime(created)
	m.LastUsed = fromNullableTime(lastUsed)
	m.Expires = fromNullableTime(expires)
	m.Supersedes = parseJSONList(supersedes)
	m.Related = parseJSONList(related)
	m.DeprecatedAt = fromNullableTime(deprecatedAt)
	m.PromotedAt = fromNullableTime(promotedAt)
	m.PromotedFrom = dmmtypes.Scope(promotedFrom)

	return &m, nil
}

func (s *DoltStore) GetMemory(ctx context.Context, id string) (*dmmtypes.Memory, error) {
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

func (s *DoltStore) GetMemoryByPath(ctx context.Context, path string) (*dmmtypes.Memory, error) {
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

func (s *DoltStore) DeleteMemory(ctx context.Context, id string) error {
	_, err := s.ex.ExecContext(ctx, "DELETE FROM memory WHERE id = ?", id)
	if err != nil {
		return dmmerrors.WrapStoreErr("delete memory", err)
	}
	_, err = s.ex.ExecContext(ctx, "DELETE FROM embedding WHERE memory_id = ?", id)
	return dmmerrors.WrapStoreErr("delete memory embeddings", err)
}

func (s *DoltStore) ListMemories(ctx context.Context, filter store.MemoryFilter) ([]*dmmtypes.Memory, error) {
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
		query += " AND path LIKE ?"
		args = append(args, globToLike(filter.PathGlob))
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

// globToLike translates the shell-glob path filters the Store interface
// takes into a SQL LIKE pattern, since Dolt/MySQL has no GLOB operator
// (unlike sqlitestore, which passes the glob straight through to SQLite's
// native GLOB).
func globToLike(glob string) string {
	r := strings.NewReplacer("%", `\%`, "_", `\_`, "*", "%", "?", "_")
	return r.Replace(glob)
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

func (s *DoltStore) GetSystemMeta(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.ex.QueryRowContext(ctx, "SELECT meta_value FROM system_meta WHERE meta_key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, dmmerrors.WrapStoreErr("get system meta", err)
	}
	return value, true, nil
}

func (s *DoltStore) SetSystemMeta(ctx context.Context, key, value string) error {
	_, err := s.ex.ExecContext(ctx, `
		INSERT INTO system_meta (meta_key, meta_value) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE meta_value = VALUES(meta_value)
	`, key, value)
	return dmmerrors.WrapStoreErr("set system meta", err)
}
