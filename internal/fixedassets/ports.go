package fixedassets

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-assets/internal/shared"
)

// Registry is the asset store. It owns committed book values and status, plus the
// calculated preview which is kept apart so recalculation always starts from the
// last posted values.
type Registry interface {
	ListActiveAssets(ctx context.Context, companyID int64, asOf time.Time) ([]FixedAsset, error)
	GetBookValue(ctx context.Context, assetID int64) (BookValue, error)
	CommitBookValue(ctx context.Context, in BookValueCommit) error
	SetPendingBookValue(ctx context.Context, assetID int64, accounting, tax decimal.Decimal) error
	// ClearPendingBookValues drops the preview of assets holding calculated entries for key.
	ClearPendingBookValues(ctx context.Context, key PeriodKey) error
}

// BookValueCommit carries the values persisted for an asset when a period posts.
type BookValueCommit struct {
	AssetID          int64
	Accounting       decimal.Decimal
	Tax              decimal.Decimal
	AccountingAmount decimal.Decimal
	TaxAmount        decimal.Decimal
	Status           AssetStatus
	Period           Period
}

// PeriodLedger owns period rows and their entries.
type PeriodLedger interface {
	// LockPeriod loads the period row for update, creating it when missing.
	LockPeriod(ctx context.Context, key PeriodKey) (DepreciationPeriod, error)
	ListEntries(ctx context.Context, key PeriodKey) ([]DepreciationEntry, error)
	DeleteCalculatedEntries(ctx context.Context, key PeriodKey) (int64, error)
	UpsertEntry(ctx context.Context, entry DepreciationEntry) (DepreciationEntry, error)
	MarkEntriesPosted(ctx context.Context, key PeriodKey, journalID *int64, at time.Time) (int64, error)
	MarkPeriodPosted(ctx context.Context, key PeriodKey, journalID *int64, at time.Time) error
}

// TxRepository exposes the registry and period ledger inside one transaction.
type TxRepository interface {
	Registry
	PeriodLedger
}

// RepositoryPort abstracts transactional repository behaviour and read models.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPeriod(ctx context.Context, key PeriodKey) (DepreciationPeriod, error)
	ListCalculatedPeriods(ctx context.Context, companyID int64) ([]CalculatedPeriod, error)
	ListJournal(ctx context.Context, companyID int64, year, month int) ([]DepreciationEntry, error)
	ListAssets(ctx context.Context, filter AssetFilter) ([]FixedAsset, error)
	GetAsset(ctx context.Context, id int64) (FixedAsset, error)
	ListCompaniesWithActiveAssets(ctx context.Context) ([]int64, error)
}

// JournalLine is a single debit or credit line submitted to the ledger.
type JournalLine struct {
	AccountCode string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// JournalRequest is the consolidated journal entry for a posted period.
type JournalRequest struct {
	CompanyID   int64
	SourceID    uuid.UUID
	Description string
	Date        time.Time
	Lines       []JournalLine
}

// Ledger is the general-ledger collaborator.
type Ledger interface {
	CreateJournalEntry(ctx context.Context, req JournalRequest) (int64, error)
}

// Locker serialises work on a single company period.
type Locker interface {
	Acquire(ctx context.Context, key string) (shared.ReleaseFunc, error)
}

// AuditPort records depreciation events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Recorder receives depreciation metrics.
type Recorder interface {
	ObserveCalculation(companyID int64, calculated, failed, skipped int)
	ObservePosting(companyID int64, outcome string)
}

type noopRecorder struct{}

func (noopRecorder) ObserveCalculation(int64, int, int, int) {}
func (noopRecorder) ObservePosting(int64, string)            {}
