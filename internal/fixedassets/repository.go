package fixedassets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-assets/internal/platform/db"
)

// dbtx is satisfied by both the pool and a transaction.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists the asset registry and the depreciation period ledger.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

var (
	_ RepositoryPort = (*Repository)(nil)
	_ TxRepository   = (*txRepository)(nil)
)

// WithTx executes fn within a repeatable-read transaction. Serialization failures
// surface as ErrConcurrentModification.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("fixedassets repository not initialised")
	}
	err := db.WithTx(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
	return translatePgError(err)
}

func translatePgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %s", ErrConcurrentModification, pgErr.Message)
		}
	}
	return err
}

const assetColumns = `a.id, a.company_id, COALESCE(a.category_id, 0), a.name, a.inventory_number,
a.acquisition_date, a.acquisition_cost, a.residual_value, a.depreciation_method,
a.accounting_rate, a.tax_rate, a.put_into_service_date,
a.accounting_book_value, a.tax_book_value,
a.accounting_accumulated_depreciation, a.tax_accumulated_depreciation,
a.pending_accounting_book_value, a.pending_tax_book_value,
a.last_depreciation_year, a.last_depreciation_month, a.status, a.created_at, a.updated_at,
c.id, c.name, c.min_depreciation_rate, c.max_depreciation_rate,
c.expense_account_code, c.accumulated_account_code`

const assetFrom = ` FROM fixed_assets a LEFT JOIN fixed_asset_categories c ON c.id = a.category_id`

func scanAsset(row pgx.Row) (FixedAsset, error) {
	var (
		a                      FixedAsset
		method, status         string
		pendingAcc, pendingTax decimal.NullDecimal
		lastYear, lastMonth    *int
		catID                  *int64
		catName                *string
		catMin, catMax         decimal.NullDecimal
		catExpense, catAccum   *string
	)
	err := row.Scan(&a.ID, &a.CompanyID, &a.CategoryID, &a.Name, &a.InventoryNumber,
		&a.AcquisitionDate, &a.AcquisitionCost, &a.ResidualValue, &method,
		&a.AccountingRate, &a.TaxRate, &a.PutIntoServiceDate,
		&a.AccountingBookValue, &a.TaxBookValue,
		&a.AccountingAccumulatedDepreciation, &a.TaxAccumulatedDepreciation,
		&pendingAcc, &pendingTax,
		&lastYear, &lastMonth, &status, &a.CreatedAt, &a.UpdatedAt,
		&catID, &catName, &catMin, &catMax, &catExpense, &catAccum)
	if err != nil {
		return FixedAsset{}, err
	}
	a.Method = DepreciationMethod(method)
	a.Status = AssetStatus(status)
	a.PendingAccountingBookValue = nullDecimalPtr(pendingAcc)
	a.PendingTaxBookValue = nullDecimalPtr(pendingTax)
	a.LastDepreciationPeriod = periodPtr(lastYear, lastMonth)
	if catID != nil {
		a.Category = &Category{
			ID:                     *catID,
			CompanyID:              a.CompanyID,
			Name:                   deref(catName),
			MinDepreciationRate:    nullDecimalPtr(catMin),
			MaxDepreciationRate:    nullDecimalPtr(catMax),
			ExpenseAccountCode:     deref(catExpense),
			AccumulatedAccountCode: deref(catAccum),
		}
	}
	return a, nil
}

func queryAssets(ctx context.Context, q dbtx, sql string, args ...any) ([]FixedAsset, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	assets := make([]FixedAsset, 0)
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

func (r *txRepository) ListActiveAssets(ctx context.Context, companyID int64, asOf time.Time) ([]FixedAsset, error) {
	return queryAssets(ctx, r.tx, `SELECT `+assetColumns+assetFrom+`
WHERE a.company_id = $1 AND a.status = 'ACTIVE'
  AND COALESCE(a.put_into_service_date, a.acquisition_date) <= $2
ORDER BY a.id
FOR UPDATE OF a`, companyID, asOf)
}

func (r *txRepository) GetBookValue(ctx context.Context, assetID int64) (BookValue, error) {
	var (
		bv                  BookValue
		status              string
		lastYear, lastMonth *int
	)
	err := r.tx.QueryRow(ctx, `SELECT id, accounting_book_value, tax_book_value, residual_value, status,
last_depreciation_year, last_depreciation_month
FROM fixed_assets WHERE id = $1 FOR UPDATE`, assetID).
		Scan(&bv.AssetID, &bv.Accounting, &bv.Tax, &bv.ResidualValue, &status, &lastYear, &lastMonth)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BookValue{}, ErrAssetNotFound
		}
		return BookValue{}, err
	}
	bv.Status = AssetStatus(status)
	bv.LastPeriod = periodPtr(lastYear, lastMonth)
	return bv, nil
}

func (r *txRepository) CommitBookValue(ctx context.Context, in BookValueCommit) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE fixed_assets SET
accounting_book_value = $2,
tax_book_value = $3,
accounting_accumulated_depreciation = accounting_accumulated_depreciation + $4,
tax_accumulated_depreciation = tax_accumulated_depreciation + $5,
status = $6,
last_depreciation_year = $7,
last_depreciation_month = $8,
pending_accounting_book_value = NULL,
pending_tax_book_value = NULL,
updated_at = NOW()
WHERE id = $1`, in.AssetID, in.Accounting, in.Tax, in.AccountingAmount, in.TaxAmount, string(in.Status), in.Period.Year, in.Period.Month)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAssetNotFound
	}
	return nil
}

func (r *txRepository) SetPendingBookValue(ctx context.Context, assetID int64, accounting, tax decimal.Decimal) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE fixed_assets SET pending_accounting_book_value = $2, pending_tax_book_value = $3, updated_at = NOW()
WHERE id = $1`, assetID, accounting, tax)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAssetNotFound
	}
	return nil
}

func (r *txRepository) ClearPendingBookValues(ctx context.Context, key PeriodKey) error {
	_, err := r.tx.Exec(ctx, `UPDATE fixed_assets a SET pending_accounting_book_value = NULL, pending_tax_book_value = NULL, updated_at = NOW()
FROM depreciation_entries e
WHERE e.fixed_asset_id = a.id AND e.company_id = $1 AND e.year = $2 AND e.month = $3 AND e.status = 'CALCULATED'`,
		key.CompanyID, key.Period.Year, key.Period.Month)
	return err
}

func (r *txRepository) LockPeriod(ctx context.Context, key PeriodKey) (DepreciationPeriod, error) {
	if _, err := r.tx.Exec(ctx, `INSERT INTO depreciation_periods (company_id, year, month)
VALUES ($1, $2, $3) ON CONFLICT (company_id, year, month) DO NOTHING`, key.CompanyID, key.Period.Year, key.Period.Month); err != nil {
		return DepreciationPeriod{}, err
	}
	return scanPeriod(r.tx.QueryRow(ctx, `SELECT company_id, year, month, is_posted, posted_at, journal_entry_id
FROM depreciation_periods WHERE company_id = $1 AND year = $2 AND month = $3 FOR UPDATE`,
		key.CompanyID, key.Period.Year, key.Period.Month))
}

const entryColumns = `e.id, e.company_id, e.fixed_asset_id, a.name, a.inventory_number, e.year, e.month,
e.accounting_amount, e.accounting_book_value_before, e.accounting_book_value_after,
e.tax_amount, e.tax_book_value_before, e.tax_book_value_after, e.residual_value,
e.status, e.journal_entry_id, e.expense_account_code, e.accumulated_account_code,
e.calculated_at, e.posted_at`

const entryFrom = ` FROM depreciation_entries e JOIN fixed_assets a ON a.id = e.fixed_asset_id`

func scanEntry(row pgx.Row) (DepreciationEntry, error) {
	var (
		e      DepreciationEntry
		status string
	)
	err := row.Scan(&e.ID, &e.CompanyID, &e.AssetID, &e.AssetName, &e.InventoryNumber, &e.Period.Year, &e.Period.Month,
		&e.AccountingAmount, &e.AccountingBookValueBefore, &e.AccountingBookValueAfter,
		&e.TaxAmount, &e.TaxBookValueBefore, &e.TaxBookValueAfter, &e.ResidualValue,
		&status, &e.JournalEntryRef, &e.ExpenseAccountCode, &e.AccumulatedAccountCode,
		&e.CalculatedAt, &e.PostedAt)
	if err != nil {
		return DepreciationEntry{}, err
	}
	e.Status = EntryStatus(status)
	return e, nil
}

func queryEntries(ctx context.Context, q dbtx, sql string, args ...any) ([]DepreciationEntry, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := make([]DepreciationEntry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *txRepository) ListEntries(ctx context.Context, key PeriodKey) ([]DepreciationEntry, error) {
	return queryEntries(ctx, r.tx, `SELECT `+entryColumns+entryFrom+`
WHERE e.company_id = $1 AND e.year = $2 AND e.month = $3
ORDER BY e.fixed_asset_id`, key.CompanyID, key.Period.Year, key.Period.Month)
}

func (r *txRepository) DeleteCalculatedEntries(ctx context.Context, key PeriodKey) (int64, error) {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM depreciation_entries
WHERE company_id = $1 AND year = $2 AND month = $3 AND status = 'CALCULATED'`, key.CompanyID, key.Period.Year, key.Period.Month)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *txRepository) UpsertEntry(ctx context.Context, entry DepreciationEntry) (DepreciationEntry, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO depreciation_entries (
company_id, fixed_asset_id, year, month,
accounting_amount, accounting_book_value_before, accounting_book_value_after,
tax_amount, tax_book_value_before, tax_book_value_after, residual_value,
status, expense_account_code, accumulated_account_code, calculated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
ON CONFLICT (fixed_asset_id, year, month) DO UPDATE SET
accounting_amount = EXCLUDED.accounting_amount,
accounting_book_value_before = EXCLUDED.accounting_book_value_before,
accounting_book_value_after = EXCLUDED.accounting_book_value_after,
tax_amount = EXCLUDED.tax_amount,
tax_book_value_before = EXCLUDED.tax_book_value_before,
tax_book_value_after = EXCLUDED.tax_book_value_after,
residual_value = EXCLUDED.residual_value,
status = EXCLUDED.status,
expense_account_code = EXCLUDED.expense_account_code,
accumulated_account_code = EXCLUDED.accumulated_account_code,
calculated_at = EXCLUDED.calculated_at
WHERE depreciation_entries.status <> 'POSTED'
RETURNING id`,
		entry.CompanyID, entry.AssetID, entry.Period.Year, entry.Period.Month,
		entry.AccountingAmount, entry.AccountingBookValueBefore, entry.AccountingBookValueAfter,
		entry.TaxAmount, entry.TaxBookValueBefore, entry.TaxBookValueAfter, entry.ResidualValue,
		string(entry.Status), entry.ExpenseAccountCode, entry.AccumulatedAccountCode, entry.CalculatedAt).
		Scan(&entry.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DepreciationEntry{}, ErrAlreadyPostedForAsset
		}
		return DepreciationEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) MarkEntriesPosted(ctx context.Context, key PeriodKey, journalID *int64, at time.Time) (int64, error) {
	cmd, err := r.tx.Exec(ctx, `UPDATE depreciation_entries SET status = 'POSTED', journal_entry_id = $4, posted_at = $5
WHERE company_id = $1 AND year = $2 AND month = $3 AND status = 'CALCULATED'`,
		key.CompanyID, key.Period.Year, key.Period.Month, journalID, at)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *txRepository) MarkPeriodPosted(ctx context.Context, key PeriodKey, journalID *int64, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE depreciation_periods SET is_posted = TRUE, posted_at = $4, journal_entry_id = $5
WHERE company_id = $1 AND year = $2 AND month = $3 AND is_posted = FALSE`,
		key.CompanyID, key.Period.Year, key.Period.Month, at, journalID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrPeriodAlreadyPosted, key.Period)
	}
	return nil
}

func scanPeriod(row pgx.Row) (DepreciationPeriod, error) {
	var p DepreciationPeriod
	err := row.Scan(&p.CompanyID, &p.Period.Year, &p.Period.Month, &p.IsPosted, &p.PostedAt, &p.JournalEntryID)
	if err != nil {
		return DepreciationPeriod{}, err
	}
	return p, nil
}

// GetPeriod returns the period row; an untouched period reports unposted.
func (r *Repository) GetPeriod(ctx context.Context, key PeriodKey) (DepreciationPeriod, error) {
	p, err := scanPeriod(r.pool.QueryRow(ctx, `SELECT company_id, year, month, is_posted, posted_at, journal_entry_id
FROM depreciation_periods WHERE company_id = $1 AND year = $2 AND month = $3`, key.CompanyID, key.Period.Year, key.Period.Month))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DepreciationPeriod{CompanyID: key.CompanyID, Period: key.Period}, nil
		}
		return DepreciationPeriod{}, err
	}
	return p, nil
}

// ListCalculatedPeriods summarises every period holding entries, newest first.
func (r *Repository) ListCalculatedPeriods(ctx context.Context, companyID int64) ([]CalculatedPeriod, error) {
	rows, err := r.pool.Query(ctx, `SELECT e.year, e.month, COALESCE(p.is_posted, FALSE),
SUM(e.accounting_amount), SUM(e.tax_amount), COUNT(*)
FROM depreciation_entries e
LEFT JOIN depreciation_periods p ON p.company_id = e.company_id AND p.year = e.year AND p.month = e.month
WHERE e.company_id = $1
GROUP BY e.year, e.month, p.is_posted
ORDER BY e.year DESC, e.month DESC`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	periods := make([]CalculatedPeriod, 0)
	for rows.Next() {
		var cp CalculatedPeriod
		if err := rows.Scan(&cp.Year, &cp.Month, &cp.IsPosted, &cp.TotalAccountingAmount, &cp.TotalTaxAmount, &cp.AssetsCount); err != nil {
			return nil, err
		}
		cp.PeriodDisplay = PeriodDisplay(Period{Year: cp.Year, Month: cp.Month})
		periods = append(periods, cp)
	}
	return periods, rows.Err()
}

// ListJournal returns entries of a year, or of one month when month is non-zero.
func (r *Repository) ListJournal(ctx context.Context, companyID int64, year, month int) ([]DepreciationEntry, error) {
	return queryEntries(ctx, r.pool, `SELECT `+entryColumns+entryFrom+`
WHERE e.company_id = $1 AND e.year = $2 AND ($3 = 0 OR e.month = $3)
ORDER BY e.month, a.inventory_number, e.fixed_asset_id`, companyID, year, month)
}

// ListAssets returns registry records, optionally narrowed by status.
func (r *Repository) ListAssets(ctx context.Context, filter AssetFilter) ([]FixedAsset, error) {
	return queryAssets(ctx, r.pool, `SELECT `+assetColumns+assetFrom+`
WHERE a.company_id = $1 AND ($2 = '' OR a.status = $2)
ORDER BY a.inventory_number, a.id`, filter.CompanyID, string(filter.Status))
}

// GetAsset loads one registry record.
func (r *Repository) GetAsset(ctx context.Context, id int64) (FixedAsset, error) {
	a, err := scanAsset(r.pool.QueryRow(ctx, `SELECT `+assetColumns+assetFrom+` WHERE a.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FixedAsset{}, ErrAssetNotFound
		}
		return FixedAsset{}, err
	}
	return a, nil
}

// ListCompaniesWithActiveAssets returns companies the scheduler should calculate.
func (r *Repository) ListCompaniesWithActiveAssets(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT company_id FROM fixed_assets WHERE status = 'ACTIVE' ORDER BY company_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PeriodDisplay renders a period for listings, e.g. "January 2024".
func PeriodDisplay(p Period) string {
	return fmt.Sprintf("%s %d", time.Month(p.Month), p.Year)
}

func nullDecimalPtr(v decimal.NullDecimal) *decimal.Decimal {
	if !v.Valid {
		return nil
	}
	d := v.Decimal
	return &d
}

func periodPtr(year, month *int) *Period {
	if year == nil || month == nil {
		return nil
	}
	return &Period{Year: *year, Month: *month}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
