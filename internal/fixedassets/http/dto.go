package fixedassetshttp

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-assets/internal/fixedassets"
)

type periodRequest struct {
	CompanyID int64 `json:"companyId" validate:"required,gt=0"`
	Year      int   `json:"year" validate:"required,gte=1900,lte=9999"`
	Month     int   `json:"month" validate:"required,gte=1,lte=12"`
}

type journalQuery struct {
	CompanyID int64 `validate:"required,gt=0"`
	Year      int   `validate:"required,gte=1900,lte=9999"`
	Month     int   `validate:"gte=0,lte=12"`
}

type assetQuery struct {
	CompanyID int64  `validate:"required,gt=0"`
	Status    string `validate:"omitempty,oneof=ACTIVE DEPRECIATED DISPOSED SOLD"`
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func moneyPtr(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := money(*d)
	return &s
}

type calculatedAssetDTO struct {
	FixedAssetID                 int64  `json:"fixedAssetId"`
	FixedAssetName               string `json:"fixedAssetName"`
	AccountingDepreciationAmount string `json:"accountingDepreciationAmount"`
	TaxDepreciationAmount        string `json:"taxDepreciationAmount"`
}

type calculationResultDTO struct {
	CompanyID             int64                          `json:"companyId"`
	Year                  int                            `json:"year"`
	Month                 int                            `json:"month"`
	Calculated            []calculatedAssetDTO           `json:"calculated"`
	Errors                []fixedassets.CalculationError `json:"errors"`
	Skipped               []fixedassets.SkippedAsset     `json:"skipped"`
	TotalAccountingAmount string                         `json:"totalAccountingAmount"`
	TotalTaxAmount        string                         `json:"totalTaxAmount"`
}

func toCalculationResultDTO(res fixedassets.CalculationResult) calculationResultDTO {
	out := calculationResultDTO{
		CompanyID:             res.CompanyID,
		Year:                  res.Year,
		Month:                 res.Month,
		Calculated:            make([]calculatedAssetDTO, 0, len(res.Calculated)),
		Errors:                res.Errors,
		Skipped:               res.Skipped,
		TotalAccountingAmount: money(res.TotalAccountingAmount),
		TotalTaxAmount:        money(res.TotalTaxAmount),
	}
	for _, c := range res.Calculated {
		out.Calculated = append(out.Calculated, calculatedAssetDTO{
			FixedAssetID:                 c.AssetID,
			FixedAssetName:               c.AssetName,
			AccountingDepreciationAmount: money(c.AccountingAmount),
			TaxDepreciationAmount:        money(c.TaxAmount),
		})
	}
	if out.Errors == nil {
		out.Errors = []fixedassets.CalculationError{}
	}
	if out.Skipped == nil {
		out.Skipped = []fixedassets.SkippedAsset{}
	}
	return out
}

type postResultDTO struct {
	JournalEntryID int64  `json:"journalEntryId"`
	TotalAmount    string `json:"totalAmount"`
	AssetsCount    int    `json:"assetsCount"`
}

type calculatedPeriodDTO struct {
	Year                  int    `json:"year"`
	Month                 int    `json:"month"`
	PeriodDisplay         string `json:"periodDisplay"`
	IsPosted              bool   `json:"isPosted"`
	TotalAccountingAmount string `json:"totalAccountingAmount"`
	TotalTaxAmount        string `json:"totalTaxAmount"`
	AssetsCount           int    `json:"assetsCount"`
}

type periodStatusDTO struct {
	CompanyID      int64      `json:"companyId"`
	Year           int        `json:"year"`
	Month          int        `json:"month"`
	IsPosted       bool       `json:"isPosted"`
	PostedAt       *time.Time `json:"postedAt,omitempty"`
	JournalEntryID *int64     `json:"journalEntryId,omitempty"`
}

type journalRowDTO struct {
	ID                           int64      `json:"id"`
	FixedAssetID                 int64      `json:"fixedAssetId"`
	FixedAssetName               string     `json:"fixedAssetName"`
	InventoryNumber              string     `json:"inventoryNumber"`
	Year                         int        `json:"year"`
	Month                        int        `json:"month"`
	AccountingDepreciationAmount string     `json:"accountingDepreciationAmount"`
	AccountingBookValueBefore    string     `json:"accountingBookValueBefore"`
	AccountingBookValueAfter     string     `json:"accountingBookValueAfter"`
	TaxDepreciationAmount        string     `json:"taxDepreciationAmount"`
	TaxBookValueBefore           string     `json:"taxBookValueBefore"`
	TaxBookValueAfter            string     `json:"taxBookValueAfter"`
	Status                       string     `json:"status"`
	IsPosted                     bool       `json:"isPosted"`
	JournalEntryID               *int64     `json:"journalEntryId,omitempty"`
	CalculatedAt                 time.Time  `json:"calculatedAt"`
	PostedAt                     *time.Time `json:"postedAt,omitempty"`
}

func toJournalRowDTO(e fixedassets.DepreciationEntry) journalRowDTO {
	return journalRowDTO{
		ID:                           e.ID,
		FixedAssetID:                 e.AssetID,
		FixedAssetName:               e.AssetName,
		InventoryNumber:              e.InventoryNumber,
		Year:                         e.Period.Year,
		Month:                        e.Period.Month,
		AccountingDepreciationAmount: money(e.AccountingAmount),
		AccountingBookValueBefore:    money(e.AccountingBookValueBefore),
		AccountingBookValueAfter:     money(e.AccountingBookValueAfter),
		TaxDepreciationAmount:        money(e.TaxAmount),
		TaxBookValueBefore:           money(e.TaxBookValueBefore),
		TaxBookValueAfter:            money(e.TaxBookValueAfter),
		Status:                       string(e.Status),
		IsPosted:                     e.IsPosted(),
		JournalEntryID:               e.JournalEntryRef,
		CalculatedAt:                 e.CalculatedAt,
		PostedAt:                     e.PostedAt,
	}
}

type categoryDTO struct {
	ID                  int64   `json:"id"`
	Name                string  `json:"name"`
	MinDepreciationRate *string `json:"minDepreciationRate,omitempty"`
	MaxDepreciationRate *string `json:"maxDepreciationRate,omitempty"`
}

type assetDTO struct {
	ID                                int64        `json:"id"`
	CompanyID                         int64        `json:"companyId"`
	Name                              string       `json:"name"`
	InventoryNumber                   string       `json:"inventoryNumber"`
	AcquisitionDate                   string       `json:"acquisitionDate"`
	PutIntoServiceDate                *string      `json:"putIntoServiceDate,omitempty"`
	AcquisitionCost                   string       `json:"acquisitionCost"`
	ResidualValue                     string       `json:"residualValue"`
	DepreciationMethod                string       `json:"depreciationMethod"`
	AccountingRate                    string       `json:"accountingRate"`
	TaxRate                           string       `json:"taxRate"`
	AccountingBookValue               string       `json:"accountingBookValue"`
	TaxBookValue                      string       `json:"taxBookValue"`
	AccountingAccumulatedDepreciation string       `json:"accountingAccumulatedDepreciation"`
	TaxAccumulatedDepreciation        string       `json:"taxAccumulatedDepreciation"`
	PendingAccountingBookValue        *string      `json:"pendingAccountingBookValue,omitempty"`
	PendingTaxBookValue               *string      `json:"pendingTaxBookValue,omitempty"`
	LastDepreciationPeriod            *string      `json:"lastDepreciationPeriod,omitempty"`
	Status                            string       `json:"status"`
	Category                          *categoryDTO `json:"category,omitempty"`
}

const dateLayout = "2006-01-02"

func toAssetDTO(a fixedassets.FixedAsset) assetDTO {
	out := assetDTO{
		ID:                                a.ID,
		CompanyID:                         a.CompanyID,
		Name:                              a.Name,
		InventoryNumber:                   a.InventoryNumber,
		AcquisitionDate:                   a.AcquisitionDate.Format(dateLayout),
		AcquisitionCost:                   money(a.AcquisitionCost),
		ResidualValue:                     money(a.ResidualValue),
		DepreciationMethod:                string(a.Method),
		AccountingRate:                    a.AccountingRate.String(),
		TaxRate:                           a.TaxRate.String(),
		AccountingBookValue:               money(a.AccountingBookValue),
		TaxBookValue:                      money(a.TaxBookValue),
		AccountingAccumulatedDepreciation: money(a.AccountingAccumulatedDepreciation),
		TaxAccumulatedDepreciation:        money(a.TaxAccumulatedDepreciation),
		PendingAccountingBookValue:        moneyPtr(a.PendingAccountingBookValue),
		PendingTaxBookValue:               moneyPtr(a.PendingTaxBookValue),
		Status:                            string(a.Status),
	}
	if a.PutIntoServiceDate != nil {
		s := a.PutIntoServiceDate.Format(dateLayout)
		out.PutIntoServiceDate = &s
	}
	if a.LastDepreciationPeriod != nil {
		s := a.LastDepreciationPeriod.String()
		out.LastDepreciationPeriod = &s
	}
	if a.Category != nil {
		cat := &categoryDTO{ID: a.Category.ID, Name: a.Category.Name}
		if a.Category.MinDepreciationRate != nil {
			s := a.Category.MinDepreciationRate.String()
			cat.MinDepreciationRate = &s
		}
		if a.Category.MaxDepreciationRate != nil {
			s := a.Category.MaxDepreciationRate.String()
			cat.MaxDepreciationRate = &s
		}
		out.Category = cat
	}
	return out
}
