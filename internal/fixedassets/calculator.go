package fixedassets

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var monthlyRateDivisor = decimal.NewFromInt(1200)

// ScheduleInput describes one schedule (accounting or tax) of an asset for one month.
type ScheduleInput struct {
	Method          DepreciationMethod
	AcquisitionCost decimal.Decimal
	ResidualValue   decimal.Decimal
	BookValueBefore decimal.Decimal
	AnnualRate      decimal.Decimal
	ElapsedMonths   int
}

// ScheduleResult is the outcome of a single month's depreciation.
type ScheduleResult struct {
	Amount          decimal.Decimal
	BookValueBefore decimal.Decimal
	BookValueAfter  decimal.Decimal
	Capped          bool
}

// Calculate computes exactly one calendar month of depreciation.
//
// LINEAR spreads (cost - residual) evenly at annualRate per year. DECLINING_BALANCE
// applies annualRate to the current book value, so the amount shrinks every month.
// Both are capped so the book value never drops below the residual value. The amount
// is rounded to two decimals once, after the full expression is evaluated.
func Calculate(in ScheduleInput) (ScheduleResult, error) {
	if err := in.validate(); err != nil {
		return ScheduleResult{}, err
	}
	if in.BookValueBefore.LessThanOrEqual(in.ResidualValue) {
		return ScheduleResult{}, ErrInvalidAssetState
	}

	var nominal decimal.Decimal
	switch in.Method {
	case MethodLinear:
		nominal = in.AcquisitionCost.Sub(in.ResidualValue).Mul(in.AnnualRate).Div(monthlyRateDivisor).Round(2)
	case MethodDecliningBalance:
		nominal = in.BookValueBefore.Mul(in.AnnualRate).Div(monthlyRateDivisor).Round(2)
	}

	remaining := in.BookValueBefore.Sub(in.ResidualValue)
	amount := nominal
	capped := false
	// a declining balance that rounds to zero would never reach the residual value
	if remaining.LessThan(nominal) || nominal.IsZero() {
		amount = remaining
		capped = true
	}
	return ScheduleResult{
		Amount:          amount,
		BookValueBefore: in.BookValueBefore,
		BookValueAfter:  in.BookValueBefore.Sub(amount),
		Capped:          capped,
	}, nil
}

func (in ScheduleInput) validate() error {
	if !in.Method.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownMethod, in.Method)
	}
	if !in.AnnualRate.IsPositive() {
		return ErrInvalidRate
	}
	if in.ResidualValue.IsNegative() || in.ResidualValue.GreaterThan(in.AcquisitionCost) {
		return ErrInvalidResidual
	}
	if in.ElapsedMonths < 0 {
		return ErrNotInService
	}
	return nil
}

// AssetCalculation is the pair of schedules computed for an asset in one period.
type AssetCalculation struct {
	Asset      FixedAsset
	Period     Period
	Accounting ScheduleResult
	Tax        ScheduleResult
}

// HasMovement reports whether either schedule moved.
func (c AssetCalculation) HasMovement() bool {
	return c.Accounting.Amount.IsPositive() || c.Tax.Amount.IsPositive()
}

// CalculateAsset runs both schedules for an asset against its committed book values.
// A schedule already at its residual value contributes a zero amount; when both are,
// ErrInvalidAssetState is returned so the caller can skip the asset.
func CalculateAsset(asset FixedAsset, period Period) (AssetCalculation, error) {
	elapsed := MonthsBetween(asset.ServiceStart(), period)
	if err := checkCategoryRate(asset); err != nil {
		return AssetCalculation{}, err
	}

	accounting, accErr := calculateSchedule(ScheduleInput{
		Method:          asset.Method,
		AcquisitionCost: asset.AcquisitionCost,
		ResidualValue:   asset.ResidualValue,
		BookValueBefore: asset.AccountingBookValue,
		AnnualRate:      asset.AccountingRate,
		ElapsedMonths:   elapsed,
	})
	if accErr != nil {
		return AssetCalculation{}, accErr
	}
	tax, taxErr := calculateSchedule(ScheduleInput{
		Method:          asset.Method,
		AcquisitionCost: asset.AcquisitionCost,
		ResidualValue:   asset.ResidualValue,
		BookValueBefore: asset.TaxBookValue,
		AnnualRate:      asset.TaxRate,
		ElapsedMonths:   elapsed,
	})
	if taxErr != nil {
		return AssetCalculation{}, taxErr
	}
	calc := AssetCalculation{Asset: asset, Period: period, Accounting: accounting, Tax: tax}
	if !calc.HasMovement() {
		return AssetCalculation{}, ErrInvalidAssetState
	}
	return calc, nil
}

// calculateSchedule turns a fully depreciated schedule into a zero movement.
func calculateSchedule(in ScheduleInput) (ScheduleResult, error) {
	res, err := Calculate(in)
	if errors.Is(err, ErrInvalidAssetState) {
		return ScheduleResult{
			Amount:          decimal.Zero,
			BookValueBefore: in.BookValueBefore,
			BookValueAfter:  in.BookValueBefore,
		}, nil
	}
	return res, err
}

func checkCategoryRate(asset FixedAsset) error {
	if asset.Category == nil {
		return nil
	}
	if lo := asset.Category.MinDepreciationRate; lo != nil && asset.TaxRate.LessThan(*lo) {
		return fmt.Errorf("%w: tax rate %s below %s", ErrRateOutOfRange, asset.TaxRate, lo)
	}
	if hi := asset.Category.MaxDepreciationRate; hi != nil && asset.TaxRate.GreaterThan(*hi) {
		return fmt.Errorf("%w: tax rate %s above %s", ErrRateOutOfRange, asset.TaxRate, hi)
	}
	return nil
}
