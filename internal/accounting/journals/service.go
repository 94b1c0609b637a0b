package journals

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/accounting/accounts"
	"github.com/meridian-erp/meridian-erp/internal/accounting/shared"
	"github.com/meridian-erp/meridian-erp/internal/observability"
)

// AccountResolver resolves an account code for a tenant. Satisfied by
// accounts.Resolver.
type AccountResolver interface {
	Resolve(ctx context.Context, tenantID uuid.UUID, code string) (accounts.Account, error)
}

// Service records double-entry journals and drives their lifecycle.
type Service struct {
	store    Store
	resolver AccountResolver
	logger   *slog.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewService constructs a Service. metrics may be nil.
func NewService(store Store, resolver AccountResolver, logger *slog.Logger, metrics *observability.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, resolver: resolver, logger: logger, metrics: metrics, now: time.Now}
}

// WithNow overrides the clock, used in tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Post validates and records a journal. Every line's account code must
// resolve to an active account; a single unknown code aborts the whole
// posting. New journals land in pending unless PostImmediately is set.
func (s *Service) Post(ctx context.Context, in PostingInput) (Journal, error) {
	if err := in.Validate(); err != nil {
		return Journal{}, err
	}

	lines := make([]Line, 0, len(in.Lines))
	totalDebit := decimal.Zero
	for _, li := range in.Lines {
		account, err := s.resolver.Resolve(ctx, in.TenantID, li.AccountCode)
		if err != nil {
			return Journal{}, fmt.Errorf("resolve line account %q: %w", li.AccountCode, err)
		}
		lines = append(lines, Line{
			AccountID: account.ID,
			Debit:     li.Debit,
			Credit:    li.Credit,
			Memo:      li.Memo,
			PartnerID: li.PartnerID,
		})
		totalDebit = totalDebit.Add(li.Debit)
	}

	status := StatusPending
	if in.PostImmediately {
		status = StatusPosted
	}
	sourceType := in.SourceType
	if sourceType == "" {
		sourceType = SourceTypeManual
	}

	journal := Journal{
		TenantID:    in.TenantID,
		Date:        in.Date,
		RefNo:       in.RefNo,
		Description: in.Description,
		SourceType:  sourceType,
		SourceID:    in.SourceID,
		Status:      status,
		TotalDebit:  totalDebit,
	}
	id, err := s.store.InsertJournal(ctx, journal)
	if err != nil {
		return Journal{}, err
	}
	if err := s.store.InsertLines(ctx, id, lines); err != nil {
		return Journal{}, err
	}
	journal.ID = id
	for i := range lines {
		lines[i].JournalID = id
	}
	journal.Lines = lines

	if s.metrics != nil && status == StatusPosted {
		s.metrics.JournalsPosted.WithLabelValues(sourceType).Inc()
	}
	s.logger.Info("journal recorded",
		slog.String("tenant_id", in.TenantID.String()),
		slog.Int64("journal_id", id),
		slog.String("ref_no", in.RefNo),
		slog.String("status", string(status)))
	return journal, nil
}

// Get returns one journal with its lines.
func (s *Service) Get(ctx context.Context, tenantID uuid.UUID, id int64) (Journal, error) {
	return s.store.GetJournal(ctx, tenantID, id)
}

// List returns journal headers, optionally filtered by status.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID, status Status, limit, offset int) ([]Journal, error) {
	return s.store.ListJournals(ctx, tenantID, status, limit, offset)
}

// Approve moves a pending journal to approved.
func (s *Service) Approve(ctx context.Context, tenantID uuid.UUID, id int64) error {
	return s.store.UpdateStatus(ctx, tenantID, id, StatusApproved, StatusPending)
}

// PostApproved moves an approved journal to posted, after which it is
// immutable.
func (s *Service) PostApproved(ctx context.Context, tenantID uuid.UUID, id int64) error {
	if err := s.store.UpdateStatus(ctx, tenantID, id, StatusPosted, StatusApproved); err != nil {
		return err
	}
	if s.metrics != nil {
		sourceType := SourceTypeManual
		if j, err := s.store.GetJournal(ctx, tenantID, id); err == nil {
			sourceType = j.SourceType
		}
		s.metrics.JournalsPosted.WithLabelValues(sourceType).Inc()
	}
	return nil
}

// Cancel voids a journal that has not been posted yet.
func (s *Service) Cancel(ctx context.Context, tenantID uuid.UUID, id int64) error {
	return s.store.UpdateStatus(ctx, tenantID, id, StatusCancelled, StatusDraft, StatusPending, StatusApproved)
}

// Reverse records a compensating journal for a posted one: same lines with
// debits and credits swapped, posted immediately, linked back to the
// original. The original is never edited.
func (s *Service) Reverse(ctx context.Context, tenantID uuid.UUID, id int64, refNo string) (Journal, error) {
	original, err := s.store.GetJournal(ctx, tenantID, id)
	if err != nil {
		return Journal{}, err
	}
	if original.Status != StatusPosted {
		return Journal{}, fmt.Errorf("%w: only posted journals can be reversed, journal is %s", shared.ErrInvalidStatus, original.Status)
	}
	if original.ReversedBy != nil {
		return Journal{}, fmt.Errorf("%w: journal %d already reversed by %d", shared.ErrInvalidStatus, id, *original.ReversedBy)
	}

	reversal := Journal{
		TenantID:    tenantID,
		Date:        s.now().UTC(),
		RefNo:       refNo,
		Description: fmt.Sprintf("Reversal of %s", original.RefNo),
		SourceType:  SourceTypeReversal,
		Status:      StatusPosted,
		TotalDebit:  original.TotalDebit,
	}
	reversalID, err := s.store.InsertJournal(ctx, reversal)
	if err != nil {
		return Journal{}, err
	}
	lines := make([]Line, 0, len(original.Lines))
	for _, l := range original.Lines {
		lines = append(lines, Line{
			JournalID: reversalID,
			AccountID: l.AccountID,
			Debit:     l.Credit,
			Credit:    l.Debit,
			Memo:      l.Memo,
			PartnerID: l.PartnerID,
		})
	}
	if err := s.store.InsertLines(ctx, reversalID, lines); err != nil {
		return Journal{}, err
	}
	if err := s.store.SetReversedBy(ctx, tenantID, id, reversalID); err != nil {
		return Journal{}, err
	}
	reversal.ID = reversalID
	reversal.Lines = lines

	if s.metrics != nil {
		s.metrics.JournalsPosted.WithLabelValues(SourceTypeReversal).Inc()
	}
	s.logger.Info("journal reversed",
		slog.String("tenant_id", tenantID.String()),
		slog.Int64("journal_id", id),
		slog.Int64("reversal_id", reversalID))
	return reversal, nil
}
