package integration

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-assets/internal/accounting"
	"github.com/odyssey-erp/odyssey-assets/internal/fixedassets"
	"github.com/odyssey-erp/odyssey-assets/internal/shared"
)

// SourceModuleDepreciation tags journal entries booked by period posting.
const SourceModuleDepreciation = "FIXED_ASSETS.DEPRECIATION"

// JournalPoster exposes the general-ledger operations required by integrations.
type JournalPoster interface {
	PostJournal(ctx context.Context, input accounting.PostingInput) (accounting.JournalEntry, error)
	FindBySource(ctx context.Context, module string, ref uuid.UUID) (int64, error)
	GetJournal(ctx context.Context, entryID int64) (accounting.JournalEntry, error)
}

// DepreciationLedger books depreciation journals in the general ledger.
type DepreciationLedger struct {
	ledger JournalPoster
}

var _ fixedassets.Ledger = (*DepreciationLedger)(nil)

// NewDepreciationLedger constructs the adapter.
func NewDepreciationLedger(ledger JournalPoster) *DepreciationLedger {
	return &DepreciationLedger{ledger: ledger}
}

// CreateJournalEntry posts the period journal. When the source id was booked by an
// earlier attempt the existing entry id is returned instead of posting twice, provided
// its lines match the request; otherwise fixedassets.ErrJournalMismatch is returned.
func (l *DepreciationLedger) CreateJournalEntry(ctx context.Context, req fixedassets.JournalRequest) (int64, error) {
	if l == nil || l.ledger == nil {
		return 0, errors.New("integration: ledger not configured")
	}
	if req.SourceID == uuid.Nil {
		return 0, errors.New("integration: source id required")
	}
	lines := toPostingLines(req.Lines)
	entry, err := l.ledger.PostJournal(ctx, accounting.PostingInput{
		CompanyID:    req.CompanyID,
		Date:         req.Date,
		SourceModule: SourceModuleDepreciation,
		SourceID:     req.SourceID,
		Memo:         req.Description,
		PostedBy:     shared.ActorFromContext(ctx),
		Lines:        lines,
	})
	if err == nil {
		return entry.ID, nil
	}
	if !errors.Is(err, accounting.ErrSourceAlreadyLinked) {
		return 0, err
	}
	return l.existingEntry(ctx, req, lines)
}

func (l *DepreciationLedger) existingEntry(ctx context.Context, req fixedassets.JournalRequest, lines []accounting.PostingLineInput) (int64, error) {
	id, err := l.ledger.FindBySource(ctx, SourceModuleDepreciation, req.SourceID)
	if err != nil {
		return 0, err
	}
	existing, err := l.ledger.GetJournal(ctx, id)
	if err != nil {
		return 0, err
	}
	if existing.CompanyID != req.CompanyID || !sameAmounts(existing.Lines, lines) {
		return 0, fmt.Errorf("%w: journal %d", fixedassets.ErrJournalMismatch, id)
	}
	return id, nil
}
