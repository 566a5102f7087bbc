package accounting

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// JournalStatus enumerates journal lifecycle values.
type JournalStatus string

const (
	JournalStatusPosted JournalStatus = "POSTED"
	JournalStatusVoid   JournalStatus = "VOID"
)

// Account models a chart of accounts node scoped to a company.
type Account struct {
	ID        int64
	CompanyID int64
	Code      string
	Name      string
	Type      AccountType
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// JournalEntry captures posting metadata.
type JournalEntry struct {
	ID           int64
	CompanyID    int64
	Number       int64
	Date         time.Time
	SourceModule string
	SourceID     uuid.UUID
	Memo         string
	PostedBy     int64
	PostedAt     time.Time
	Status       JournalStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Lines        []JournalLine
}

// JournalLine stores debit or credit amount for an account.
type JournalLine struct {
	ID          int64
	JournalID   int64
	AccountID   int64
	AccountCode string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	CreatedAt   time.Time
}

// PostingLineInput describes a journal line by account code.
type PostingLineInput struct {
	AccountCode string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// PostingInput groups fields required to create a journal entry.
type PostingInput struct {
	CompanyID    int64
	Date         time.Time
	SourceModule string
	SourceID     uuid.UUID
	Memo         string
	PostedBy     int64
	Lines        []PostingLineInput
}

var (
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = errors.New("accounting: journal lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("accounting: journal requires at least two lines")
	// ErrSourceAlreadyLinked indicates idempotency conflict.
	ErrSourceAlreadyLinked = errors.New("accounting: source already linked")
	// ErrJournalNotFound indicates missing entry.
	ErrJournalNotFound = errors.New("accounting: journal entry not found")
	// ErrAccountNotFound indicates an account code unknown to the company.
	ErrAccountNotFound = errors.New("accounting: account not found")
)

// Validate ensures posting input meets minimum criteria.
func (in PostingInput) Validate() error {
	if in.CompanyID <= 0 {
		return errors.New("accounting: company required")
	}
	if in.Date.IsZero() {
		return errors.New("accounting: date required")
	}
	if len(in.Lines) < 2 {
		return ErrTooFewLines
	}
	debit, credit := decimal.Zero, decimal.Zero
	for idx, line := range in.Lines {
		if strings.TrimSpace(line.AccountCode) == "" {
			return fmt.Errorf("accounting: line %d missing account", idx)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return fmt.Errorf("accounting: line %d negative amount", idx)
		}
		if line.Debit.IsPositive() && line.Credit.IsPositive() {
			return fmt.Errorf("accounting: line %d cannot be both debit and credit", idx)
		}
		if line.Debit.IsZero() && line.Credit.IsZero() {
			return fmt.Errorf("accounting: line %d has no amount", idx)
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if !debit.Round(2).Equal(credit.Round(2)) {
		return ErrUnbalanced
	}
	if in.SourceModule == "" {
		return errors.New("accounting: source module required")
	}
	if in.SourceID == uuid.Nil {
		return errors.New("accounting: source id required")
	}
	return nil
}

// AccountCodes returns the distinct codes referenced by the lines.
func (in PostingInput) AccountCodes() []string {
	seen := make(map[string]bool, len(in.Lines))
	codes := make([]string, 0, len(in.Lines))
	for _, line := range in.Lines {
		if !seen[line.AccountCode] {
			seen[line.AccountCode] = true
			codes = append(codes, line.AccountCode)
		}
	}
	return codes
}
