package fixedassets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Posting outcomes reported to the Recorder.
const (
	OutcomePosted        = "posted"
	OutcomeAlreadyPosted = "already_posted"
	OutcomeNothingToPost = "nothing_to_post"
	OutcomeConflict      = "conflict"
	OutcomeLedgerFailed  = "ledger_failed"
	OutcomeMismatch      = "journal_mismatch"
	OutcomeError         = "error"
)

var journalNamespace = uuid.MustParse("6f1c2f4e-3b8a-5d0e-9a51-7c2e4b8d1f03")

// JournalSourceID derives the stable ledger source id for a company period. The
// ledger rejects a second entry with the same id, so a retried post cannot book twice.
func JournalSourceID(key PeriodKey) uuid.UUID {
	return uuid.NewSHA1(journalNamespace, []byte(key.String()))
}

// PostPeriod freezes the calculated entries of a period, commits the new book values
// to the registry and books one consolidated journal entry. Every change happens in a
// single transaction; the ledger call is made last so a ledger failure rolls the
// local changes back.
func (s *Service) PostPeriod(ctx context.Context, companyID int64, year, month int) (PostResult, error) {
	key, err := NewPeriodKey(companyID, year, month)
	if err != nil {
		return PostResult{}, err
	}
	release, err := s.lock(ctx, key)
	if err != nil {
		s.metrics.ObservePosting(companyID, OutcomeConflict)
		return PostResult{}, err
	}
	defer s.release(release, key)

	var result PostResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := tx.LockPeriod(ctx, key)
		if err != nil {
			return err
		}
		if period.IsPosted {
			return fmt.Errorf("%w: %s", ErrPeriodAlreadyPosted, key.Period)
		}
		entries, err := tx.ListEntries(ctx, key)
		if err != nil {
			return err
		}
		pending := calculatedEntries(entries)
		if len(pending) == 0 {
			return fmt.Errorf("%w: %s", ErrNothingToPost, key.Period)
		}

		for _, entry := range pending {
			current, err := tx.GetBookValue(ctx, entry.AssetID)
			if err != nil {
				return &AssetError{AssetID: entry.AssetID, Err: err}
			}
			if err := checkFresh(entry, current); err != nil {
				return &AssetError{AssetID: entry.AssetID, Err: err}
			}
			if err := tx.CommitBookValue(ctx, commitFor(entry, current)); err != nil {
				return &AssetError{AssetID: entry.AssetID, Err: err}
			}
		}

		journal, total, err := BuildJournal(key, pending, s.accounts)
		if err != nil {
			return err
		}
		postedAt := s.now()
		var journalID *int64
		if total.IsPositive() {
			id, err := s.ledger.CreateJournalEntry(ctx, journal)
			if err != nil {
				return fmt.Errorf("%w: %s: %w", ErrPostingFailed, key.Period, err)
			}
			journalID = &id
		}
		marked, err := tx.MarkEntriesPosted(ctx, key, journalID, postedAt)
		if err != nil {
			return err
		}
		if marked != int64(len(pending)) {
			return fmt.Errorf("%w: expected %d entries, marked %d", ErrStaleEntry, len(pending), marked)
		}
		if err := tx.MarkPeriodPosted(ctx, key, journalID, postedAt); err != nil {
			return err
		}
		result = PostResult{TotalAmount: total, AssetsCount: len(pending)}
		if journalID != nil {
			result.JournalEntryID = *journalID
		}
		return nil
	})
	if err != nil {
		s.metrics.ObservePosting(companyID, postingOutcome(err))
		s.logger.Warn("depreciation post failed",
			slog.Int64("company_id", companyID),
			slog.String("period", key.Period.String()),
			slog.Any("error", err))
		return PostResult{}, err
	}

	s.metrics.ObservePosting(companyID, OutcomePosted)
	s.logger.Info("depreciation posted",
		slog.Int64("company_id", companyID),
		slog.String("period", key.Period.String()),
		slog.Int64("journal_entry_id", result.JournalEntryID),
		slog.Int("assets", result.AssetsCount),
		slog.String("total", result.TotalAmount.StringFixed(2)))
	s.record(ctx, "depreciation.post", key, map[string]any{
		"journal_entry_id": result.JournalEntryID,
		"assets":           result.AssetsCount,
		"total":            result.TotalAmount.StringFixed(2),
	})
	return result, nil
}

// BuildJournal groups entries by account pair into balanced debit/credit lines.
// Only accounting amounts reach the ledger; tax amounts stay in the register.
func BuildJournal(key PeriodKey, entries []DepreciationEntry, defaults DefaultAccounts) (JournalRequest, decimal.Decimal, error) {
	type pair struct{ expense, accumulated string }
	totals := make(map[pair]decimal.Decimal)
	for _, entry := range entries {
		p := pair{expense: entry.ExpenseAccountCode, accumulated: entry.AccumulatedAccountCode}
		if p.expense == "" {
			p.expense = defaults.Expense
		}
		if p.accumulated == "" {
			p.accumulated = defaults.Accumulated
		}
		totals[p] = totals[p].Add(entry.AccountingAmount)
	}
	pairs := make([]pair, 0, len(totals))
	for p := range totals {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].expense != pairs[j].expense {
			return pairs[i].expense < pairs[j].expense
		}
		return pairs[i].accumulated < pairs[j].accumulated
	})

	req := JournalRequest{
		CompanyID:   key.CompanyID,
		SourceID:    JournalSourceID(key),
		Description: fmt.Sprintf("Depreciation %s", key.Period),
		Date:        key.Period.End(),
	}
	debit, credit := decimal.Zero, decimal.Zero
	for _, p := range pairs {
		amount := totals[p]
		if !amount.IsPositive() {
			continue
		}
		req.Lines = append(req.Lines,
			JournalLine{AccountCode: p.expense, Debit: amount, Credit: decimal.Zero},
			JournalLine{AccountCode: p.accumulated, Debit: decimal.Zero, Credit: amount},
		)
		debit = debit.Add(amount)
		credit = credit.Add(amount)
	}
	if !debit.Equal(credit) {
		return JournalRequest{}, decimal.Zero, ErrUnbalancedJournal
	}
	return req, debit, nil
}

func calculatedEntries(entries []DepreciationEntry) []DepreciationEntry {
	out := make([]DepreciationEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.Status == EntryStatusCalculated {
			out = append(out, entry)
		}
	}
	return out
}

// checkFresh rejects entries computed from book values that have since moved.
func checkFresh(entry DepreciationEntry, current BookValue) error {
	if current.Status != AssetStatusActive {
		return fmt.Errorf("%w: asset status %s", ErrStaleEntry, current.Status)
	}
	if current.LastPeriod != nil && !current.LastPeriod.Before(entry.Period) {
		return fmt.Errorf("%w: asset posted through %s", ErrAlreadyPostedForAsset, current.LastPeriod)
	}
	if !current.Accounting.Equal(entry.AccountingBookValueBefore) || !current.Tax.Equal(entry.TaxBookValueBefore) {
		return ErrStaleEntry
	}
	return nil
}

func commitFor(entry DepreciationEntry, current BookValue) BookValueCommit {
	status := current.Status
	residual := current.ResidualValue
	if entry.AccountingBookValueAfter.Equal(residual) && entry.TaxBookValueAfter.Equal(residual) {
		status = AssetStatusDepreciated
	}
	return BookValueCommit{
		AssetID:          entry.AssetID,
		Accounting:       entry.AccountingBookValueAfter,
		Tax:              entry.TaxBookValueAfter,
		AccountingAmount: entry.AccountingAmount,
		TaxAmount:        entry.TaxAmount,
		Status:           status,
		Period:           entry.Period,
	}
}

func postingOutcome(err error) string {
	switch {
	case errors.Is(err, ErrPeriodAlreadyPosted):
		return OutcomeAlreadyPosted
	case errors.Is(err, ErrNothingToPost):
		return OutcomeNothingToPost
	case errors.Is(err, ErrConcurrentModification):
		return OutcomeConflict
	case errors.Is(err, ErrJournalMismatch):
		return OutcomeMismatch
	case errors.Is(err, ErrPostingFailed):
		return OutcomeLedgerFailed
	default:
		return OutcomeError
	}
}
