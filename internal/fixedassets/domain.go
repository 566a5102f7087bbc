package fixedassets

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DepreciationMethod enumerates supported depreciation schedules.
type DepreciationMethod string

const (
	MethodLinear           DepreciationMethod = "LINEAR"
	MethodDecliningBalance DepreciationMethod = "DECLINING_BALANCE"
)

// Valid reports whether the method is one of the supported schedules.
func (m DepreciationMethod) Valid() bool {
	switch m {
	case MethodLinear, MethodDecliningBalance:
		return true
	default:
		return false
	}
}

// AssetStatus enumerates asset lifecycle values.
type AssetStatus string

const (
	AssetStatusActive      AssetStatus = "ACTIVE"
	AssetStatusDepreciated AssetStatus = "DEPRECIATED"
	AssetStatusDisposed    AssetStatus = "DISPOSED"
	AssetStatusSold        AssetStatus = "SOLD"
)

// Valid reports whether the status is known.
func (s AssetStatus) Valid() bool {
	switch s {
	case AssetStatusActive, AssetStatusDepreciated, AssetStatusDisposed, AssetStatusSold:
		return true
	default:
		return false
	}
}

// EntryStatus tracks a depreciation entry through calculation and posting.
type EntryStatus string

const (
	EntryStatusNotCalculated EntryStatus = "NOT_CALCULATED"
	EntryStatusCalculated    EntryStatus = "CALCULATED"
	EntryStatusPosted        EntryStatus = "POSTED"
)

// Category groups assets sharing rate limits and posting accounts.
type Category struct {
	ID                     int64
	CompanyID              int64
	Name                   string
	MinDepreciationRate    *decimal.Decimal
	MaxDepreciationRate    *decimal.Decimal
	ExpenseAccountCode     string
	AccumulatedAccountCode string
}

// FixedAsset is the registry record for a depreciable asset.
type FixedAsset struct {
	ID                 int64
	CompanyID          int64
	CategoryID         int64
	Name               string
	InventoryNumber    string
	AcquisitionDate    time.Time
	AcquisitionCost    decimal.Decimal
	ResidualValue      decimal.Decimal
	Method             DepreciationMethod
	AccountingRate     decimal.Decimal
	TaxRate            decimal.Decimal
	PutIntoServiceDate *time.Time

	AccountingBookValue               decimal.Decimal
	TaxBookValue                      decimal.Decimal
	AccountingAccumulatedDepreciation decimal.Decimal
	TaxAccumulatedDepreciation        decimal.Decimal
	PendingAccountingBookValue        *decimal.Decimal
	PendingTaxBookValue               *decimal.Decimal
	LastDepreciationPeriod            *Period
	Status                            AssetStatus

	Category  *Category
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ServiceStart returns the date depreciation starts counting from.
func (a FixedAsset) ServiceStart() time.Time {
	if a.PutIntoServiceDate != nil && !a.PutIntoServiceDate.IsZero() {
		return *a.PutIntoServiceDate
	}
	return a.AcquisitionDate
}

// BookValue holds both committed book values of an asset.
type BookValue struct {
	AssetID       int64
	Accounting    decimal.Decimal
	Tax           decimal.Decimal
	ResidualValue decimal.Decimal
	Status        AssetStatus
	LastPeriod    *Period
}

// DepreciationPeriod is the per-company ledger row for one calendar month.
type DepreciationPeriod struct {
	CompanyID      int64
	Period         Period
	IsPosted       bool
	PostedAt       *time.Time
	JournalEntryID *int64
}

// DepreciationEntry is one asset's depreciation for one period.
type DepreciationEntry struct {
	ID                        int64
	CompanyID                 int64
	AssetID                   int64
	AssetName                 string
	InventoryNumber           string
	Period                    Period
	AccountingAmount          decimal.Decimal
	AccountingBookValueBefore decimal.Decimal
	AccountingBookValueAfter  decimal.Decimal
	TaxAmount                 decimal.Decimal
	TaxBookValueBefore        decimal.Decimal
	TaxBookValueAfter         decimal.Decimal
	ResidualValue             decimal.Decimal
	Status                    EntryStatus
	JournalEntryRef           *int64
	ExpenseAccountCode        string
	AccumulatedAccountCode    string
	CalculatedAt              time.Time
	PostedAt                  *time.Time
}

// IsPosted reports whether the entry is frozen.
func (e DepreciationEntry) IsPosted() bool {
	return e.Status == EntryStatusPosted
}

// CalculatedAsset is a per-asset line of a calculation result.
type CalculatedAsset struct {
	AssetID          int64           `json:"fixedAssetId"`
	AssetName        string          `json:"fixedAssetName"`
	AccountingAmount decimal.Decimal `json:"accountingDepreciationAmount"`
	TaxAmount        decimal.Decimal `json:"taxDepreciationAmount"`
}

// CalculationError describes an asset that could not be calculated.
type CalculationError struct {
	AssetID   int64  `json:"fixedAssetId"`
	AssetName string `json:"assetName"`
	Message   string `json:"errorMessage"`
}

// SkippedAsset describes an asset that was intentionally left out.
type SkippedAsset struct {
	AssetID int64  `json:"fixedAssetId"`
	Reason  string `json:"reason"`
}

// CalculationResult summarises a CalculatePeriod run.
type CalculationResult struct {
	CompanyID             int64              `json:"companyId"`
	Year                  int                `json:"year"`
	Month                 int                `json:"month"`
	Calculated            []CalculatedAsset  `json:"calculated"`
	Errors                []CalculationError `json:"errors"`
	Skipped               []SkippedAsset     `json:"skipped"`
	TotalAccountingAmount decimal.Decimal    `json:"totalAccountingAmount"`
	TotalTaxAmount        decimal.Decimal    `json:"totalTaxAmount"`
}

// PostResult summarises a successful PostPeriod run.
type PostResult struct {
	JournalEntryID int64           `json:"journalEntryId"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	AssetsCount    int             `json:"assetsCount"`
}

// CalculatedPeriod summarises a period that holds entries.
type CalculatedPeriod struct {
	Year                  int             `json:"year"`
	Month                 int             `json:"month"`
	PeriodDisplay         string          `json:"periodDisplay"`
	IsPosted              bool            `json:"isPosted"`
	TotalAccountingAmount decimal.Decimal `json:"totalAccountingAmount"`
	TotalTaxAmount        decimal.Decimal `json:"totalTaxAmount"`
	AssetsCount           int             `json:"assetsCount"`
}

// AssetFilter narrows registry listings.
type AssetFilter struct {
	CompanyID int64
	Status    AssetStatus
}

var (
	// ErrPeriodAlreadyPosted indicates an attempt to mutate a frozen period.
	ErrPeriodAlreadyPosted = errors.New("fixedassets: period already posted")
	// ErrNothingToPost indicates the period has no calculated entries.
	ErrNothingToPost = errors.New("fixedassets: nothing to post for period")
	// ErrInvalidAssetState indicates the asset is already at its residual value.
	ErrInvalidAssetState = errors.New("fixedassets: asset already fully depreciated")
	// ErrPostingFailed indicates the ledger rejected or failed the journal submission.
	ErrPostingFailed = errors.New("fixedassets: posting to ledger failed")
	// ErrConcurrentModification indicates the period lock could not be acquired.
	ErrConcurrentModification = errors.New("fixedassets: period is being modified concurrently")
	// ErrInvalidPeriod indicates a malformed company/year/month triple.
	ErrInvalidPeriod = errors.New("fixedassets: invalid period")
	// ErrAssetNotFound indicates a missing registry record.
	ErrAssetNotFound = errors.New("fixedassets: asset not found")
	// ErrUnbalancedJournal indicates debit and credit totals differ.
	ErrUnbalancedJournal = errors.New("fixedassets: journal lines must balance")
	// ErrRateOutOfRange indicates a rate outside its category bounds.
	ErrRateOutOfRange = errors.New("fixedassets: depreciation rate outside category range")
	// ErrInvalidRate indicates a non-positive annual rate.
	ErrInvalidRate = errors.New("fixedassets: depreciation rate must be positive")
	// ErrUnknownMethod indicates an unsupported depreciation method.
	ErrUnknownMethod = errors.New("fixedassets: unknown depreciation method")
	// ErrInvalidResidual indicates residual value outside [0, cost].
	ErrInvalidResidual = errors.New("fixedassets: residual value must be between zero and acquisition cost")
	// ErrPreviousPeriodNotPosted indicates a gap in the asset's posted history.
	ErrPreviousPeriodNotPosted = errors.New("fixedassets: previous period not posted for asset")
	// ErrStaleEntry indicates an entry no longer starts from the committed book value.
	ErrStaleEntry = errors.New("fixedassets: entry is stale, recalculate the period")
	// ErrNotInService indicates the period precedes the asset's service start.
	ErrNotInService = errors.New("fixedassets: asset not yet in service")
	// ErrJournalMismatch indicates the ledger already holds a different journal for the
	// period's source id. Retrying cannot resolve it.
	ErrJournalMismatch = errors.New("fixedassets: ledger journal for period differs from calculated entries")
	// ErrAlreadyPostedForAsset indicates the asset already carries a posted entry for the period.
	ErrAlreadyPostedForAsset = errors.New("fixedassets: asset already posted for period")
)

// AssetError attaches an asset id to a per-asset failure.
type AssetError struct {
	AssetID int64
	Err     error
}

func (e *AssetError) Error() string {
	return fmt.Sprintf("asset %d: %v", e.AssetID, e.Err)
}

func (e *AssetError) Unwrap() error {
	return e.Err
}
