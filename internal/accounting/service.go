package accounting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-assets/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetJournal(ctx context.Context, entryID int64) (JournalEntry, error)
	FindBySource(ctx context.Context, module string, ref uuid.UUID) (int64, error)
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service posts and reads journal entries.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// PostJournal validates and persists a new journal entry. A source id may be
// posted only once; a repeat returns ErrSourceAlreadyLinked.
func (s *Service) PostJournal(ctx context.Context, input PostingInput) (JournalEntry, error) {
	if err := input.Validate(); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ids, err := tx.ResolveAccounts(ctx, input.CompanyID, input.AccountCodes())
		if err != nil {
			return err
		}
		lines := make([]JournalLine, 0, len(input.Lines))
		for _, line := range input.Lines {
			id, ok := ids[line.AccountCode]
			if !ok {
				return fmt.Errorf("%w: %s", ErrAccountNotFound, line.AccountCode)
			}
			lines = append(lines, JournalLine{AccountID: id, AccountCode: line.AccountCode, Debit: line.Debit, Credit: line.Credit})
		}
		inserted, err := tx.InsertJournalEntry(ctx, input)
		if err != nil {
			return err
		}
		if err := tx.InsertJournalLines(ctx, inserted.ID, lines); err != nil {
			return err
		}
		if err := tx.LinkSource(ctx, input.SourceModule, input.SourceID, inserted.ID); err != nil {
			if errors.Is(err, ErrSourceConflict) {
				return ErrSourceAlreadyLinked
			}
			return err
		}
		now := s.now()
		for i := range lines {
			lines[i].JournalID = inserted.ID
			lines[i].CreatedAt = now
		}
		inserted.Lines = lines
		entry = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.PostedBy,
			Action:   "journal.post",
			Entity:   "journal_entry",
			EntityID: fmt.Sprintf("%d", entry.ID),
			Meta: map[string]any{
				"number":        entry.Number,
				"source_module": input.SourceModule,
				"source_id":     input.SourceID.String(),
			},
			At: s.now(),
		})
	}
	return entry, nil
}

// GetJournal returns an entry with its lines.
func (s *Service) GetJournal(ctx context.Context, entryID int64) (JournalEntry, error) {
	if entryID <= 0 {
		return JournalEntry{}, ErrJournalNotFound
	}
	return s.repo.GetJournal(ctx, entryID)
}

// FindBySource returns the entry id booked for a source reference.
func (s *Service) FindBySource(ctx context.Context, module string, ref uuid.UUID) (int64, error) {
	return s.repo.FindBySource(ctx, module, ref)
}
