package fixedassets

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCalculateLinear(t *testing.T) {
	res, err := Calculate(ScheduleInput{
		Method:          MethodLinear,
		AcquisitionCost: dec("12000"),
		ResidualValue:   decimal.Zero,
		BookValueBefore: dec("11800"),
		AnnualRate:      dec("20"),
	})
	require.NoError(t, err)
	assert.Equal(t, "200.00", res.Amount.StringFixed(2))
	assert.Equal(t, "11600.00", res.BookValueAfter.StringFixed(2))
	assert.False(t, res.Capped)
}

func TestCalculateDecliningBalanceRecomputesFromBookValue(t *testing.T) {
	first, err := Calculate(ScheduleInput{
		Method:          MethodDecliningBalance,
		AcquisitionCost: dec("12000"),
		BookValueBefore: dec("12000"),
		AnnualRate:      dec("20"),
	})
	require.NoError(t, err)
	assert.Equal(t, "200.00", first.Amount.StringFixed(2))
	assert.Equal(t, "11800.00", first.BookValueAfter.StringFixed(2))

	second, err := Calculate(ScheduleInput{
		Method:          MethodDecliningBalance,
		AcquisitionCost: dec("12000"),
		BookValueBefore: first.BookValueAfter,
		AnnualRate:      dec("20"),
	})
	require.NoError(t, err)
	assert.Equal(t, "196.67", second.Amount.StringFixed(2))
	assert.Equal(t, "11603.33", second.BookValueAfter.StringFixed(2))
}

func TestCalculateCapsAtResidual(t *testing.T) {
	res, err := Calculate(ScheduleInput{
		Method:          MethodLinear,
		AcquisitionCost: dec("12000"),
		ResidualValue:   dec("1000"),
		BookValueBefore: dec("1050"),
		AnnualRate:      dec("20"),
	})
	require.NoError(t, err)
	assert.True(t, res.Capped)
	assert.Equal(t, "50.00", res.Amount.StringFixed(2))
	assert.True(t, res.BookValueAfter.Equal(dec("1000")))
}

func TestCalculateWritesOffTailThatRoundsToZero(t *testing.T) {
	res, err := Calculate(ScheduleInput{
		Method:          MethodDecliningBalance,
		AcquisitionCost: dec("100"),
		BookValueBefore: dec("0.02"),
		AnnualRate:      dec("10"),
	})
	require.NoError(t, err)
	assert.True(t, res.Capped)
	assert.True(t, res.BookValueAfter.IsZero())
}

func TestCalculateRejections(t *testing.T) {
	base := ScheduleInput{
		Method:          MethodLinear,
		AcquisitionCost: dec("1000"),
		BookValueBefore: dec("1000"),
		AnnualRate:      dec("10"),
	}
	cases := []struct {
		name   string
		mutate func(*ScheduleInput)
		want   error
	}{
		{"at residual", func(in *ScheduleInput) { in.BookValueBefore = decimal.Zero }, ErrInvalidAssetState},
		{"unknown method", func(in *ScheduleInput) { in.Method = "SUM_OF_YEARS" }, ErrUnknownMethod},
		{"zero rate", func(in *ScheduleInput) { in.AnnualRate = decimal.Zero }, ErrInvalidRate},
		{"residual above cost", func(in *ScheduleInput) { in.ResidualValue = dec("2000") }, ErrInvalidResidual},
		{"negative residual", func(in *ScheduleInput) { in.ResidualValue = dec("-1") }, ErrInvalidResidual},
		{"before service", func(in *ScheduleInput) { in.ElapsedMonths = -1 }, ErrNotInService},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := base
			tc.mutate(&in)
			_, err := Calculate(in)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func testAsset() FixedAsset {
	return FixedAsset{
		ID:                  1,
		CompanyID:           1,
		Name:                "Lathe",
		InventoryNumber:     "INV-001",
		AcquisitionDate:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		AcquisitionCost:     dec("12000"),
		ResidualValue:       decimal.Zero,
		Method:              MethodLinear,
		AccountingRate:      dec("20"),
		TaxRate:             dec("20"),
		AccountingBookValue: dec("12000"),
		TaxBookValue:        dec("12000"),
		Status:              AssetStatusActive,
	}
}

func TestCalculateAssetRunsBothSchedules(t *testing.T) {
	asset := testAsset()
	asset.TaxRate = dec("30")
	calc, err := CalculateAsset(asset, Period{Year: 2024, Month: 1})
	require.NoError(t, err)
	assert.Equal(t, "200.00", calc.Accounting.Amount.StringFixed(2))
	assert.Equal(t, "300.00", calc.Tax.Amount.StringFixed(2))
}

func TestCalculateAssetOneScheduleExhausted(t *testing.T) {
	asset := testAsset()
	asset.TaxBookValue = decimal.Zero
	calc, err := CalculateAsset(asset, Period{Year: 2024, Month: 6})
	require.NoError(t, err)
	assert.True(t, calc.Tax.Amount.IsZero())
	assert.True(t, calc.Tax.BookValueAfter.IsZero())
	assert.Equal(t, "200.00", calc.Accounting.Amount.StringFixed(2))

	asset.AccountingBookValue = decimal.Zero
	_, err = CalculateAsset(asset, Period{Year: 2024, Month: 6})
	require.ErrorIs(t, err, ErrInvalidAssetState)
}

func TestCalculateAssetCategoryRange(t *testing.T) {
	lo, hi := dec("5"), dec("15")
	asset := testAsset()
	asset.Category = &Category{ID: 3, MinDepreciationRate: &lo, MaxDepreciationRate: &hi}
	_, err := CalculateAsset(asset, Period{Year: 2024, Month: 1})
	require.ErrorIs(t, err, ErrRateOutOfRange)

	asset.TaxRate = dec("10")
	_, err = CalculateAsset(asset, Period{Year: 2024, Month: 1})
	require.NoError(t, err)
}

func TestCalculateAssetBeforeService(t *testing.T) {
	asset := testAsset()
	start := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	asset.PutIntoServiceDate = &start
	_, err := CalculateAsset(asset, Period{Year: 2024, Month: 2})
	require.ErrorIs(t, err, ErrNotInService)
}
