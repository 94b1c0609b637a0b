package journals

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/meridian-erp/meridian-erp/internal/accounting/shared"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Store persists journals and their lines.
type Store interface {
	InsertJournal(ctx context.Context, j Journal) (int64, error)
	InsertLines(ctx context.Context, journalID int64, lines []Line) error
	GetJournal(ctx context.Context, tenantID uuid.UUID, id int64) (Journal, error)
	ListJournals(ctx context.Context, tenantID uuid.UUID, status Status, limit, offset int) ([]Journal, error)
	// UpdateStatus moves the journal to `to` only if its current status is
	// one of `from`; anything else is a forbidden transition.
	UpdateStatus(ctx context.Context, tenantID uuid.UUID, id int64, to Status, from ...Status) error
	SetReversedBy(ctx context.Context, tenantID uuid.UUID, id, reversalID int64) error
}

// PgStore implements Store over PostgreSQL.
type PgStore struct {
	q db.Querier
}

// NewPgStore constructs a PgStore over a pool or a pgx.Tx.
func NewPgStore(q db.Querier) *PgStore {
	return &PgStore{q: q}
}

func (s *PgStore) InsertJournal(ctx context.Context, j Journal) (int64, error) {
	var id int64
	err := s.q.QueryRow(ctx, `INSERT INTO journals (tenant_id, date, ref_no, description, source_type, source_id, status, total_debit, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW()) RETURNING id`,
		j.TenantID, j.Date, j.RefNo, j.Description, j.SourceType, j.SourceID, j.Status, j.TotalDebit).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, fmt.Errorf("%w: %s", shared.ErrDuplicateRefNo, j.RefNo)
		}
		return 0, fmt.Errorf("journals: insert: %w", err)
	}
	return id, nil
}

func (s *PgStore) InsertLines(ctx context.Context, journalID int64, lines []Line) error {
	for _, line := range lines {
		_, err := s.q.Exec(ctx, `INSERT INTO journal_lines (journal_id, account_id, debit, credit, memo, partner_id)
VALUES ($1, $2, $3, $4, $5, $6)`,
			journalID, line.AccountID, line.Debit, line.Credit, line.Memo, line.PartnerID)
		if err != nil {
			return fmt.Errorf("journals: insert line: %w", err)
		}
	}
	return nil
}

func (s *PgStore) GetJournal(ctx context.Context, tenantID uuid.UUID, id int64) (Journal, error) {
	var j Journal
	err := s.q.QueryRow(ctx, `SELECT id, tenant_id, date, ref_no, description, source_type, source_id, status, reversed_by, total_debit, created_at
FROM journals WHERE tenant_id = $1 AND id = $2`, tenantID, id).
		Scan(&j.ID, &j.TenantID, &j.Date, &j.RefNo, &j.Description, &j.SourceType, &j.SourceID, &j.Status, &j.ReversedBy, &j.TotalDebit, &j.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Journal{}, shared.ErrJournalNotFound
		}
		return Journal{}, fmt.Errorf("journals: get: %w", err)
	}

	rows, err := s.q.Query(ctx, `SELECT id, journal_id, account_id, debit, credit, memo, partner_id
FROM journal_lines WHERE journal_id = $1 ORDER BY id`, id)
	if err != nil {
		return Journal{}, fmt.Errorf("journals: get lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.JournalID, &l.AccountID, &l.Debit, &l.Credit, &l.Memo, &l.PartnerID); err != nil {
			return Journal{}, err
		}
		j.Lines = append(j.Lines, l)
	}
	return j, rows.Err()
}

func (s *PgStore) ListJournals(ctx context.Context, tenantID uuid.UUID, status Status, limit, offset int) ([]Journal, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.q.Query(ctx, `SELECT id, tenant_id, date, ref_no, description, source_type, source_id, status, reversed_by, total_debit, created_at
FROM journals
WHERE tenant_id = $1 AND ($2 = '' OR status = $2)
ORDER BY date DESC, id DESC
LIMIT $3 OFFSET $4`, tenantID, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("journals: list: %w", err)
	}
	defer rows.Close()
	var out []Journal
	for rows.Next() {
		var j Journal
		if err := rows.Scan(&j.ID, &j.TenantID, &j.Date, &j.RefNo, &j.Description, &j.SourceType, &j.SourceID, &j.Status, &j.ReversedBy, &j.TotalDebit, &j.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *PgStore) UpdateStatus(ctx context.Context, tenantID uuid.UUID, id int64, to Status, from ...Status) error {
	cmd, err := s.q.Exec(ctx, `UPDATE journals SET status = $3 WHERE tenant_id = $1 AND id = $2 AND status = ANY($4)`,
		tenantID, id, to, statusStrings(from))
	if err != nil {
		return fmt.Errorf("journals: update status: %w", err)
	}
	if cmd.RowsAffected() == 1 {
		return nil
	}
	// Distinguish a missing journal from a forbidden transition.
	j, err := s.GetJournal(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if j.Status == StatusPosted {
		return fmt.Errorf("%w: journal %d", shared.ErrJournalImmutable, id)
	}
	return fmt.Errorf("%w: %s -> %s", shared.ErrInvalidStatus, j.Status, to)
}

func (s *PgStore) SetReversedBy(ctx context.Context, tenantID uuid.UUID, id, reversalID int64) error {
	cmd, err := s.q.Exec(ctx, `UPDATE journals SET reversed_by = $3 WHERE tenant_id = $1 AND id = $2 AND reversed_by IS NULL`,
		tenantID, id, reversalID)
	if err != nil {
		return fmt.Errorf("journals: set reversed_by: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: journal %d already reversed", shared.ErrInvalidStatus, id)
	}
	return nil
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}
