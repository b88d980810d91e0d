//go:build cgo

package doltstore

import (
	"context"
	"database/sql"

	"github.com/dmmcore/dmm/internal/dmmerrors"
	"github.com/dmmcore/dmm/internal/dmmtypes"
)

func (s *DoltStore) PutProposal(ctx context.Context, p *dmmtypes.WriteProposal) error {
	_, err := s.ex.ExecContext(ctx, `
		INSERT INTO proposal (
			proposal_id, created_at, proposed_by, type, target_path, memory_id, content,
			reason, deprecation_reason, new_scope, source_scope, status, review_notes, commit_error
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON DUPLICATE KEY UPDATE
			status=VALUES(status), review_notes=VALUES(review_notes),
			commit_error=VALUES(commit_error), content=VALUES(content)
	`,
		p.ProposalID, p.CreatedAt.UTC(), p.ProposedBy, string(p.Type), p.TargetPath, p.MemoryID,
		p.Content, p.Reason, p.DeprecationReason, string(p.NewScope), string(p.SourceScope),
		string(p.Status), p.ReviewNotes, p.CommitError,
	)
	return dmmerrors.WrapStoreErr("put proposal", err)
}

const proposalColumns = `
	proposal_id, created_at, proposed_by, type, target_path, memory_id, content,
	reason, deprecation_reason, new_scope, source_scope, status, review_notes, commit_error
`

func scanProposal(row interface{ Scan(dest ...any) error }) (*dmmtypes.WriteProposal, error) {
	var p dmmtypes.WriteProposal
	var typ, newScope, sourceScope, status string
	var createdAt sql.NullTime

	err := row.Scan(
		&p.ProposalID, &createdAt, &p.ProposedBy, &typ, &p.TargetPath, &p.MemoryID, &p.Content,
		&p.Reason, &p.DeprecationReason, &newScope, &sourceScope, &status, &p.ReviewNotes, &p.CommitError,
	)
	if err != nil {
		return nil, err
	}

	if t := fromNullableTime(createdAt); t != nil {
		p.CreatedAt = *t
	}
	p.Type = dmmtypes.ProposalType(typ)
	p.NewScope = dmmtypes.Scope(newScope)
	p.SourceScope = dmmtypes.Scope(sourceScope)
	p.Status = dmmtypes.ProposalStatus(status)

	return &p, nil
}

func (s *DoltStore) GetProposal(ctx context.Context, id string) (*dmmtypes.WriteProposal, error) {
	row := s.ex.QueryRowContext(ctx, "SELECT "+proposalColumns+" FROM proposal WHERE proposal_id = ?", id)
	p, err := scanProposal(row)
	if err == sql.ErrNoRows {
		return nil, dmmerrors.ErrNotFound
	}
	if err != nil {
		return nil, dmmerrors.WrapStoreErr("get proposal", err)
	}
	return p, nil
}

func (s *DoltStore) ListProposals(ctx context.Context, status dmmtypes.ProposalStatus) ([]*dmmtypes.WriteProposal, error) {
	query := "SELECT " + proposalColumns + " FROM proposal"
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at"

	rows, err := s.ex.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dmmerrors.WrapStoreErr("list proposals", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*dmmtypes.WriteProposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, dmmerrors.WrapStoreErr("scan proposal row", err)
		}
		out = append(out, p)
	}
	return out, dmmerrors.WrapStoreErr("iterate proposal rows", rows.Err())
}

func (s *DoltStore) HasPendingForPath(ctx context.Context, path string) (bool, error) {
	var n int
	err := s.ex.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM proposal
		WHERE target_path = ? AND status IN (?, ?, ?, ?, ?)
	`, path, string(dmmtypes.StatusPending), string(dmmtypes.StatusInReview), string(dmmtypes.StatusApproved),
		string(dmmtypes.StatusModified), string(dmmtypes.StatusDeferred)).Scan(&n)
	if err != nil {
		return false, dmmerrors.WrapStoreErr("check pending proposal for path", err)
	}
	return n > 0, nil
}

func (s *DoltStore) AppendProposalHistory(ctx context.Context, entry *dmmtypes.HistoryEntry) error {
	_, err := s.ex.ExecContext(ctx, `
		INSERT INTO proposal_history (proposal_id, at, actor, from_status, to_status, note)
		VALUES (?,?,?,?,?,?)
	`, entry.ProposalID, entry.Timestamp.UTC(), entry.Action,
		string(entry.FromStatus), string(entry.ToStatus), entry.Notes)
	return dmmerrors.WrapStoreErr("append proposal history", err)
}

func (s *DoltStore) GetProposalHistory(ctx context.Context, proposalID string) ([]*dmmtypes.HistoryEntry, error) {
	rows, err := s.ex.QueryContext(ctx, `
		SELECT proposal_id, at, actor, from_status, to_status, note
		FROM proposal_history WHERE proposal_id = ? ORDER BY id
	`, proposalID)
	if err != nil {
		return nil, dmmerrors.WrapStoreErr("get proposal history", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*dmmtypes.HistoryEntry
	for rows.Next() {
		var e dmmtypes.HistoryEntry
		var at sql.NullTime
		var from, to string
		if err := rows.Scan(&e.ProposalID, &at, &e.Action, &from, &to, &e.Notes); err != nil {
			return nil, dmmerrors.WrapStoreErr("scan proposal history row", err)
		}
		if t := fromNullableTime(at); t != nil {
			e.Timestamp = *t
		}
		e.FromStatus = dmmtypes.ProposalStatus(from)
		e.ToStatus = dmmtypes.ProposalStatus(to)
		out = append(out, &e)
	}
	return out, dmmerrors.WrapStoreErr("iterate proposal history rows", rows.Err())
}

func (s *DoltStore) QueueStats(ctx context.Context) (*dmmtypes.QueueStats, error) {
	stats := &dmmtypes.QueueStats{
		ByStatus: make(map[dmmtypes.ProposalStatus]int),
		ByType:   make(map[dmmtypes.ProposalType]int),
	}

	rows, err := s.ex.QueryContext(ctx, `SELECT status, type, COUNT(*) FROM proposal GROUP BY status, type`)
	if err != nil {
		return nil, dmmerrors.WrapStoreErr("queue stats", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var status, typ string
		var n int
		if err := rows.Scan(&status, &typ, &n); err != nil {
			return nil, dmmerrors.WrapStoreErr("scan queue stats row", err)
		}
		stats.ByStatus[dmmtypes.ProposalStatus(status)] += n
		stats.ByType[dmmtypes.ProposalType(typ)] += n
		stats.Total += n
	}
	return stats, dmmerrors.WrapStoreErr("iterate queue stats rows", rows.Err())
}
