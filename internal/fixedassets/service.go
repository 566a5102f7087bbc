package fixedassets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-assets/internal/shared"
)

const defaultWorkers = 4

// Skip reasons reported in CalculationResult.Skipped.
const (
	SkipFullyDepreciated = "fully depreciated"
	SkipAlreadyPosted    = "already posted"
	SkipNotInService     = "not in service"
)

// DefaultAccounts are the posting accounts used when a category does not set its own.
type DefaultAccounts struct {
	Expense     string
	Accumulated string
}

// ServiceConfig carries optional collaborators and tuning.
type ServiceConfig struct {
	Accounts DefaultAccounts
	Workers  int
	Logger   *slog.Logger
	Audit    AuditPort
	Metrics  Recorder
}

// Service runs period calculation and posting.
type Service struct {
	repo     RepositoryPort
	ledger   Ledger
	locker   Locker
	audit    AuditPort
	metrics  Recorder
	logger   *slog.Logger
	accounts DefaultAccounts
	workers  int
	now      func() time.Time
}

// NewService constructs the depreciation service.
func NewService(repo RepositoryPort, ledger Ledger, locker Locker, cfg ServiceConfig) *Service {
	s := &Service{
		repo:     repo,
		ledger:   ledger,
		locker:   locker,
		audit:    cfg.Audit,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		accounts: cfg.Accounts,
		workers:  cfg.Workers,
		now:      time.Now,
	}
	if s.metrics == nil {
		s.metrics = noopRecorder{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.workers <= 0 {
		s.workers = defaultWorkers
	}
	if s.accounts.Expense == "" {
		s.accounts.Expense = "603"
	}
	if s.accounts.Accumulated == "" {
		s.accounts.Accumulated = "241"
	}
	return s
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CalculatePeriod computes depreciation for every eligible asset of the company
// and stores the entries as CALCULATED. Earlier unposted entries of the period are
// replaced, so repeated calls yield the same result.
func (s *Service) CalculatePeriod(ctx context.Context, companyID int64, year, month int) (CalculationResult, error) {
	key, err := NewPeriodKey(companyID, year, month)
	if err != nil {
		return CalculationResult{}, err
	}
	release, err := s.lock(ctx, key)
	if err != nil {
		return CalculationResult{}, err
	}
	defer s.release(release, key)

	result := newCalculationResult(key)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := tx.LockPeriod(ctx, key)
		if err != nil {
			return err
		}
		if period.IsPosted {
			return fmt.Errorf("%w: %s", ErrPeriodAlreadyPosted, key.Period)
		}
		existing, err := tx.ListEntries(ctx, key)
		if err != nil {
			return err
		}
		posted := make(map[int64]bool, len(existing))
		for _, entry := range existing {
			if entry.IsPosted() {
				posted[entry.AssetID] = true
			}
		}
		if err := tx.ClearPendingBookValues(ctx, key); err != nil {
			return err
		}
		if _, err := tx.DeleteCalculatedEntries(ctx, key); err != nil {
			return err
		}
		assets, err := tx.ListActiveAssets(ctx, key.CompanyID, key.Period.End())
		if err != nil {
			return err
		}
		outcomes, err := s.evaluateAll(ctx, assets, key.Period, posted)
		if err != nil {
			return err
		}
		calculatedAt := s.now()
		for _, out := range outcomes {
			switch {
			case out.skip != "":
				result.Skipped = append(result.Skipped, SkippedAsset{AssetID: out.asset.ID, Reason: out.skip})
			case out.err != nil:
				s.logger.Warn("depreciation asset failed",
					slog.Int64("company_id", key.CompanyID),
					slog.String("period", key.Period.String()),
					slog.Int64("asset_id", out.asset.ID),
					slog.Any("error", out.err))
				result.Errors = append(result.Errors, CalculationError{
					AssetID:   out.asset.ID,
					AssetName: out.asset.Name,
					Message:   out.err.Error(),
				})
			default:
				entry := s.entryFromCalculation(key, out.calc, calculatedAt)
				if _, err := tx.UpsertEntry(ctx, entry); err != nil {
					return &AssetError{AssetID: out.asset.ID, Err: err}
				}
				if err := tx.SetPendingBookValue(ctx, out.asset.ID, out.calc.Accounting.BookValueAfter, out.calc.Tax.BookValueAfter); err != nil {
					return &AssetError{AssetID: out.asset.ID, Err: err}
				}
				result.Calculated = append(result.Calculated, CalculatedAsset{
					AssetID:          out.asset.ID,
					AssetName:        out.asset.Name,
					AccountingAmount: out.calc.Accounting.Amount,
					TaxAmount:        out.calc.Tax.Amount,
				})
				result.TotalAccountingAmount = result.TotalAccountingAmount.Add(out.calc.Accounting.Amount)
				result.TotalTaxAmount = result.TotalTaxAmount.Add(out.calc.Tax.Amount)
			}
		}
		return nil
	})
	if err != nil {
		return CalculationResult{}, err
	}

	s.metrics.ObserveCalculation(key.CompanyID, len(result.Calculated), len(result.Errors), len(result.Skipped))
	s.logger.Info("depreciation calculated",
		slog.Int64("company_id", key.CompanyID),
		slog.String("period", key.Period.String()),
		slog.Int("calculated", len(result.Calculated)),
		slog.Int("errors", len(result.Errors)),
		slog.Int("skipped", len(result.Skipped)),
		slog.String("total_accounting", result.TotalAccountingAmount.StringFixed(2)),
		slog.String("total_tax", result.TotalTaxAmount.StringFixed(2)))
	s.record(ctx, "depreciation.calculate", key, map[string]any{
		"calculated":       len(result.Calculated),
		"errors":           len(result.Errors),
		"total_accounting": result.TotalAccountingAmount.StringFixed(2),
		"total_tax":        result.TotalTaxAmount.StringFixed(2),
	})
	return result, nil
}

// PeriodStatus returns the stored period row. A period never touched reports unposted.
// Callers deciding whether to retry a failed PostPeriod should consult this.
func (s *Service) PeriodStatus(ctx context.Context, companyID int64, year, month int) (DepreciationPeriod, error) {
	key, err := NewPeriodKey(companyID, year, month)
	if err != nil {
		return DepreciationPeriod{}, err
	}
	return s.repo.GetPeriod(ctx, key)
}

// ListCalculatedPeriods returns periods holding entries, newest first.
func (s *Service) ListCalculatedPeriods(ctx context.Context, companyID int64) ([]CalculatedPeriod, error) {
	if companyID <= 0 {
		return nil, fmt.Errorf("%w: company id required", ErrInvalidPeriod)
	}
	return s.repo.ListCalculatedPeriods(ctx, companyID)
}

// Journal lists entries of a year, or of a single month when month is non-zero.
func (s *Service) Journal(ctx context.Context, companyID int64, year, month int) ([]DepreciationEntry, error) {
	if companyID <= 0 {
		return nil, fmt.Errorf("%w: company id required", ErrInvalidPeriod)
	}
	if month != 0 {
		if _, err := NewPeriod(year, month); err != nil {
			return nil, err
		}
	} else if _, err := NewPeriod(year, 1); err != nil {
		return nil, err
	}
	return s.repo.ListJournal(ctx, companyID, year, month)
}

// ListAssets returns registry records for a company.
func (s *Service) ListAssets(ctx context.Context, filter AssetFilter) ([]FixedAsset, error) {
	if filter.CompanyID <= 0 {
		return nil, fmt.Errorf("%w: company id required", ErrInvalidPeriod)
	}
	return s.repo.ListAssets(ctx, filter)
}

// GetAsset returns a single registry record.
func (s *Service) GetAsset(ctx context.Context, id int64) (FixedAsset, error) {
	return s.repo.GetAsset(ctx, id)
}

// CompaniesWithActiveAssets lists companies the scheduler should calculate.
func (s *Service) CompaniesWithActiveAssets(ctx context.Context) ([]int64, error) {
	return s.repo.ListCompaniesWithActiveAssets(ctx)
}

type assetOutcome struct {
	asset FixedAsset
	calc  AssetCalculation
	skip  string
	err   error
}

// evaluateAll calculates assets in parallel; results keep the input order.
func (s *Service) evaluateAll(ctx context.Context, assets []FixedAsset, period Period, posted map[int64]bool) ([]assetOutcome, error) {
	outcomes := make([]assetOutcome, len(assets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range assets {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = evaluateAsset(assets[i], period, posted[assets[i].ID])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func evaluateAsset(asset FixedAsset, period Period, postedInPeriod bool) assetOutcome {
	out := assetOutcome{asset: asset}
	if postedInPeriod {
		out.skip = SkipAlreadyPosted
		return out
	}
	if last := asset.LastDepreciationPeriod; last != nil {
		if !last.Before(period) {
			out.skip = SkipAlreadyPosted
			return out
		}
		if last.Next() != period {
			out.err = fmt.Errorf("%w: last posted %s", ErrPreviousPeriodNotPosted, last)
			return out
		}
	}
	calc, err := CalculateAsset(asset, period)
	switch {
	case errors.Is(err, ErrInvalidAssetState):
		out.skip = SkipFullyDepreciated
	case errors.Is(err, ErrNotInService):
		out.skip = SkipNotInService
	case err != nil:
		out.err = err
	case asset.LastDepreciationPeriod == nil && PeriodOf(asset.ServiceStart()).Before(period):
		// never posted: depreciation has to start at the service month
		first := PeriodOf(asset.ServiceStart())
		out.err = fmt.Errorf("%w: nothing posted yet, first unposted period %s", ErrPreviousPeriodNotPosted, first)
	default:
		out.calc = calc
	}
	return out
}

func (s *Service) entryFromCalculation(key PeriodKey, calc AssetCalculation, at time.Time) DepreciationEntry {
	expense, accumulated := s.accountsFor(calc.Asset)
	return DepreciationEntry{
		CompanyID:                 key.CompanyID,
		AssetID:                   calc.Asset.ID,
		AssetName:                 calc.Asset.Name,
		InventoryNumber:           calc.Asset.InventoryNumber,
		Period:                    key.Period,
		AccountingAmount:          calc.Accounting.Amount,
		AccountingBookValueBefore: calc.Accounting.BookValueBefore,
		AccountingBookValueAfter:  calc.Accounting.BookValueAfter,
		TaxAmount:                 calc.Tax.Amount,
		TaxBookValueBefore:        calc.Tax.BookValueBefore,
		TaxBookValueAfter:         calc.Tax.BookValueAfter,
		ResidualValue:             calc.Asset.ResidualValue,
		Status:                    EntryStatusCalculated,
		ExpenseAccountCode:        expense,
		AccumulatedAccountCode:    accumulated,
		CalculatedAt:              at,
	}
}

func (s *Service) accountsFor(asset FixedAsset) (string, string) {
	expense, accumulated := s.accounts.Expense, s.accounts.Accumulated
	if asset.Category != nil {
		if asset.Category.ExpenseAccountCode != "" {
			expense = asset.Category.ExpenseAccountCode
		}
		if asset.Category.AccumulatedAccountCode != "" {
			accumulated = asset.Category.AccumulatedAccountCode
		}
	}
	return expense, accumulated
}

func (s *Service) lock(ctx context.Context, key PeriodKey) (shared.ReleaseFunc, error) {
	if s.locker == nil {
		return nil, nil
	}
	release, err := s.locker.Acquire(ctx, shared.DepreciationLockKey(key.CompanyID, key.Period.Year, key.Period.Month))
	if err != nil {
		if errors.Is(err, shared.ErrLockNotAcquired) {
			return nil, fmt.Errorf("%w: %s", ErrConcurrentModification, key)
		}
		return nil, err
	}
	return release, nil
}

func (s *Service) release(release shared.ReleaseFunc, key PeriodKey) {
	if release == nil {
		return
	}
	if err := release(context.Background()); err != nil {
		s.logger.Warn("release period lock", slog.String("key", key.String()), slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, action string, key PeriodKey, meta map[string]any) {
	if s.audit == nil {
		return
	}
	meta["company_id"] = key.CompanyID
	meta["period"] = key.Period.String()
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "depreciation_period",
		EntityID: key.String(),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func newCalculationResult(key PeriodKey) CalculationResult {
	return CalculationResult{
		CompanyID:             key.CompanyID,
		Year:                  key.Period.Year,
		Month:                 key.Period.Month,
		Calculated:            []CalculatedAsset{},
		Errors:                []CalculationError{},
		Skipped:               []SkippedAsset{},
		TotalAccountingAmount: decimal.Zero,
		TotalTaxAmount:        decimal.Zero,
	}
}
