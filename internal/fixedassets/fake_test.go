package fixedassets

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-assets/internal/shared"
)

type entryKey struct {
	assetID int64
	period  Period
}

type memState struct {
	assets  map[int64]FixedAsset
	periods map[PeriodKey]DepreciationPeriod
	entries map[entryKey]DepreciationEntry
	nextID  int64
}

func (s *memState) clone() *memState {
	out := &memState{
		assets:  make(map[int64]FixedAsset, len(s.assets)),
		periods: make(map[PeriodKey]DepreciationPeriod, len(s.periods)),
		entries: make(map[entryKey]DepreciationEntry, len(s.entries)),
		nextID:  s.nextID,
	}
	for k, v := range s.assets {
		out.assets[k] = v
	}
	for k, v := range s.periods {
		out.periods[k] = v
	}
	for k, v := range s.entries {
		out.entries[k] = v
	}
	return out
}

// memRepo serialises transactions and discards the working copy on error.
type memRepo struct {
	mu    sync.Mutex
	state *memState
	// commitErrs fail the next transactions after fn succeeded, like a lost connection at COMMIT.
	commitErrs []error
}

func newMemRepo(assets ...FixedAsset) *memRepo {
	st := &memState{
		assets:  make(map[int64]FixedAsset),
		periods: make(map[PeriodKey]DepreciationPeriod),
		entries: make(map[entryKey]DepreciationEntry),
	}
	for _, a := range assets {
		st.assets[a.ID] = a
	}
	return &memRepo{state: st}
}

func (r *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	work := r.state.clone()
	if err := fn(ctx, &memTx{s: work}); err != nil {
		return err
	}
	if len(r.commitErrs) > 0 {
		err := r.commitErrs[0]
		r.commitErrs = r.commitErrs[1:]
		return err
	}
	r.state = work
	return nil
}

func (r *memRepo) asset(id int64) FixedAsset {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.assets[id]
}

func (r *memRepo) mutateAsset(id int64, fn func(*FixedAsset)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.state.assets[id]
	fn(&a)
	r.state.assets[id] = a
}

func (r *memRepo) GetPeriod(ctx context.Context, key PeriodKey) (DepreciationPeriod, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.state.periods[key]; ok {
		return p, nil
	}
	return DepreciationPeriod{CompanyID: key.CompanyID, Period: key.Period}, nil
}

func (r *memRepo) ListCalculatedPeriods(ctx context.Context, companyID int64) ([]CalculatedPeriod, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byPeriod := map[Period]*CalculatedPeriod{}
	for _, e := range r.state.entries {
		if e.CompanyID != companyID {
			continue
		}
		cp, ok := byPeriod[e.Period]
		if !ok {
			cp = &CalculatedPeriod{Year: e.Period.Year, Month: e.Period.Month, PeriodDisplay: PeriodDisplay(e.Period)}
			cp.IsPosted = r.state.periods[PeriodKey{CompanyID: companyID, Period: e.Period}].IsPosted
			byPeriod[e.Period] = cp
		}
		cp.TotalAccountingAmount = cp.TotalAccountingAmount.Add(e.AccountingAmount)
		cp.TotalTaxAmount = cp.TotalTaxAmount.Add(e.TaxAmount)
		cp.AssetsCount++
	}
	out := make([]CalculatedPeriod, 0, len(byPeriod))
	for _, cp := range byPeriod {
		out = append(out, *cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return Period{Year: out[j].Year, Month: out[j].Month}.Before(Period{Year: out[i].Year, Month: out[i].Month})
	})
	return out, nil
}

func (r *memRepo) ListJournal(ctx context.Context, companyID int64, year, month int) ([]DepreciationEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []DepreciationEntry
	for _, e := range r.state.entries {
		if e.CompanyID == companyID && e.Period.Year == year && (month == 0 || e.Period.Month == month) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Period != out[j].Period {
			return out[i].Period.Before(out[j].Period)
		}
		return out[i].AssetID < out[j].AssetID
	})
	return out, nil
}

func (r *memRepo) ListAssets(ctx context.Context, filter AssetFilter) ([]FixedAsset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []FixedAsset
	for _, a := range r.state.assets {
		if a.CompanyID == filter.CompanyID && (filter.Status == "" || a.Status == filter.Status) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) GetAsset(ctx context.Context, id int64) (FixedAsset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.state.assets[id]
	if !ok {
		return FixedAsset{}, ErrAssetNotFound
	}
	return a, nil
}

func (r *memRepo) ListCompaniesWithActiveAssets(ctx context.Context) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[int64]bool{}
	var ids []int64
	for _, a := range r.state.assets {
		if a.Status == AssetStatusActive && !seen[a.CompanyID] {
			seen[a.CompanyID] = true
			ids = append(ids, a.CompanyID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

type memTx struct {
	s *memState
}

func (t *memTx) ListActiveAssets(ctx context.Context, companyID int64, asOf time.Time) ([]FixedAsset, error) {
	var out []FixedAsset
	for _, a := range t.s.assets {
		if a.CompanyID == companyID && a.Status == AssetStatusActive && !a.ServiceStart().After(asOf) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) GetBookValue(ctx context.Context, assetID int64) (BookValue, error) {
	a, ok := t.s.assets[assetID]
	if !ok {
		return BookValue{}, ErrAssetNotFound
	}
	return BookValue{
		AssetID:       a.ID,
		Accounting:    a.AccountingBookValue,
		Tax:           a.TaxBookValue,
		ResidualValue: a.ResidualValue,
		Status:        a.Status,
		LastPeriod:    a.LastDepreciationPeriod,
	}, nil
}

func (t *memTx) CommitBookValue(ctx context.Context, in BookValueCommit) error {
	a, ok := t.s.assets[in.AssetID]
	if !ok {
		return ErrAssetNotFound
	}
	a.AccountingBookValue = in.Accounting
	a.TaxBookValue = in.Tax
	a.AccountingAccumulatedDepreciation = a.AccountingAccumulatedDepreciation.Add(in.AccountingAmount)
	a.TaxAccumulatedDepreciation = a.TaxAccumulatedDepreciation.Add(in.TaxAmount)
	a.Status = in.Status
	period := in.Period
	a.LastDepreciationPeriod = &period
	a.PendingAccountingBookValue = nil
	a.PendingTaxBookValue = nil
	t.s.assets[a.ID] = a
	return nil
}

func (t *memTx) SetPendingBookValue(ctx context.Context, assetID int64, accounting, tax decimal.Decimal) error {
	a, ok := t.s.assets[assetID]
	if !ok {
		return ErrAssetNotFound
	}
	a.PendingAccountingBookValue = &accounting
	a.PendingTaxBookValue = &tax
	t.s.assets[assetID] = a
	return nil
}

func (t *memTx) ClearPendingBookValues(ctx context.Context, key PeriodKey) error {
	for k, e := range t.s.entries {
		if e.CompanyID == key.CompanyID && k.period == key.Period && e.Status == EntryStatusCalculated {
			a := t.s.assets[e.AssetID]
			a.PendingAccountingBookValue = nil
			a.PendingTaxBookValue = nil
			t.s.assets[e.AssetID] = a
		}
	}
	return nil
}

func (t *memTx) LockPeriod(ctx context.Context, key PeriodKey) (DepreciationPeriod, error) {
	p, ok := t.s.periods[key]
	if !ok {
		p = DepreciationPeriod{CompanyID: key.CompanyID, Period: key.Period}
		t.s.periods[key] = p
	}
	return p, nil
}

func (t *memTx) ListEntries(ctx context.Context, key PeriodKey) ([]DepreciationEntry, error) {
	var out []DepreciationEntry
	for k, e := range t.s.entries {
		if e.CompanyID == key.CompanyID && k.period == key.Period {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out, nil
}

func (t *memTx) DeleteCalculatedEntries(ctx context.Context, key PeriodKey) (int64, error) {
	var n int64
	for k, e := range t.s.entries {
		if e.CompanyID == key.CompanyID && k.period == key.Period && e.Status == EntryStatusCalculated {
			delete(t.s.entries, k)
			n++
		}
	}
	return n, nil
}

func (t *memTx) UpsertEntry(ctx context.Context, entry DepreciationEntry) (DepreciationEntry, error) {
	k := entryKey{assetID: entry.AssetID, period: entry.Period}
	if existing, ok := t.s.entries[k]; ok {
		if existing.IsPosted() {
			return DepreciationEntry{}, ErrAlreadyPostedForAsset
		}
		entry.ID = existing.ID
	} else {
		t.s.nextID++
		entry.ID = t.s.nextID
	}
	t.s.entries[k] = entry
	return entry, nil
}

func (t *memTx) MarkEntriesPosted(ctx context.Context, key PeriodKey, journalID *int64, at time.Time) (int64, error) {
	var n int64
	for k, e := range t.s.entries {
		if e.CompanyID == key.CompanyID && k.period == key.Period && e.Status == EntryStatusCalculated {
			e.Status = EntryStatusPosted
			e.JournalEntryRef = journalID
			postedAt := at
			e.PostedAt = &postedAt
			t.s.entries[k] = e
			n++
		}
	}
	return n, nil
}

func (t *memTx) MarkPeriodPosted(ctx context.Context, key PeriodKey, journalID *int64, at time.Time) error {
	p := t.s.periods[key]
	if p.IsPosted {
		return ErrPeriodAlreadyPosted
	}
	postedAt := at
	p.IsPosted = true
	p.PostedAt = &postedAt
	p.JournalEntryID = journalID
	t.s.periods[key] = p
	return nil
}

type fakeLedger struct {
	mu       sync.Mutex
	err      error
	requests []JournalRequest
}

func (l *fakeLedger) CreateJournalEntry(ctx context.Context, req JournalRequest) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return 0, l.err
	}
	l.requests = append(l.requests, req)
	return int64(100 + len(l.requests)), nil
}

// sourceLedger books one journal per source id, like the accounting source links, and
// rejects a resubmission whose lines differ from the booked journal.
type sourceLedger struct {
	mu     sync.Mutex
	booked map[string]JournalRequest
	ids    map[string]int64
}

func newSourceLedger() *sourceLedger {
	return &sourceLedger{booked: map[string]JournalRequest{}, ids: map[string]int64{}}
}

func (l *sourceLedger) CreateJournalEntry(ctx context.Context, req JournalRequest) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := req.SourceID.String()
	prev, ok := l.booked[key]
	if !ok {
		l.booked[key] = req
		l.ids[key] = int64(500 + len(l.ids))
		return l.ids[key], nil
	}
	if len(prev.Lines) != len(req.Lines) {
		return 0, ErrJournalMismatch
	}
	for i := range prev.Lines {
		if prev.Lines[i].AccountCode != req.Lines[i].AccountCode ||
			!prev.Lines[i].Debit.Equal(req.Lines[i].Debit) ||
			!prev.Lines[i].Credit.Equal(req.Lines[i].Credit) {
			return 0, ErrJournalMismatch
		}
	}
	return l.ids[key], nil
}

func (l *fakeLedger) calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.requests)
}

type fakeAudit struct {
	mu      sync.Mutex
	actions []string
}

func (a *fakeAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, log.Action)
	return nil
}

type busyLocker struct{}

func (busyLocker) Acquire(ctx context.Context, key string) (shared.ReleaseFunc, error) {
	return nil, shared.ErrLockNotAcquired
}

var (
	errLedgerDown = errors.New("ledger unavailable")
	errCommitLost = errors.New("connection lost during commit")
)
