package accounting

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-assets/internal/platform/db"
)

// Repository persists accounting entities.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	ResolveAccounts(ctx context.Context, companyID int64, codes []string) (map[string]int64, error)
	InsertJournalEntry(ctx context.Context, in PostingInput) (JournalEntry, error)
	InsertJournalLines(ctx context.Context, entryID int64, lines []JournalLine) error
	LinkSource(ctx context.Context, module string, ref uuid.UUID, entryID int64) error
	GetJournalWithLines(ctx context.Context, entryID int64) (JournalEntry, []JournalLine, error)
}

type txRepository struct {
	tx pgx.Tx
}

// ErrSourceConflict indicates the source link already exists.
var ErrSourceConflict = errors.New("accounting: source link conflict")

// WithTx executes fn within repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("accounting repository not initialised")
	}
	return db.WithTx(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *txRepository) ResolveAccounts(ctx context.Context, companyID int64, codes []string) (map[string]int64, error) {
	rows, err := r.tx.Query(ctx, `SELECT code, id FROM accounts WHERE company_id=$1 AND is_active AND code = ANY($2)`, companyID, codes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := make(map[string]int64, len(codes))
	for rows.Next() {
		var code string
		var id int64
		if err := rows.Scan(&code, &id); err != nil {
			return nil, err
		}
		ids[code] = id
	}
	return ids, rows.Err()
}

func (r *txRepository) InsertJournalEntry(ctx context.Context, in PostingInput) (JournalEntry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (company_id, date, source_module, source_id, memo, posted_by, status)
VALUES ($1,$2,$3,$4,$5,$6,'POSTED') RETURNING id, number, posted_at, created_at, updated_at`,
		in.CompanyID, in.Date, in.SourceModule, in.SourceID, in.Memo, nullInt(in.PostedBy))
	entry := JournalEntry{
		CompanyID:    in.CompanyID,
		Date:         in.Date,
		SourceModule: in.SourceModule,
		SourceID:     in.SourceID,
		Memo:         in.Memo,
		PostedBy:     in.PostedBy,
		Status:       JournalStatusPosted,
	}
	if err := row.Scan(&entry.ID, &entry.Number, &entry.PostedAt, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) InsertJournalLines(ctx context.Context, entryID int64, lines []JournalLine) error {
	batch := &pgx.Batch{}
	for _, line := range lines {
		batch.Queue(`INSERT INTO journal_lines (je_id, account_id, debit, credit) VALUES ($1,$2,$3,$4)`,
			entryID, line.AccountID, line.Debit, line.Credit)
	}
	return r.tx.SendBatch(ctx, batch).Close()
}

func (r *txRepository) LinkSource(ctx context.Context, module string, ref uuid.UUID, entryID int64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO source_links (module, ref_id, je_id) VALUES ($1,$2,$3)`, module, ref, entryID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_source_links" {
			return ErrSourceConflict
		}
		return err
	}
	return nil
}

func (r *txRepository) GetJournalWithLines(ctx context.Context, entryID int64) (JournalEntry, []JournalLine, error) {
	return getJournalWithLines(ctx, r.tx, entryID)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getJournalWithLines(ctx context.Context, q querier, entryID int64) (JournalEntry, []JournalLine, error) {
	var entry JournalEntry
	var postedBy *int64
	err := q.QueryRow(ctx, `SELECT id, company_id, number, date, source_module, source_id, memo, posted_by, posted_at, status, created_at, updated_at
FROM journal_entries WHERE id=$1`, entryID).
		Scan(&entry.ID, &entry.CompanyID, &entry.Number, &entry.Date, &entry.SourceModule, &entry.SourceID, &entry.Memo, &postedBy, &entry.PostedAt, &entry.Status, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, nil, ErrJournalNotFound
		}
		return JournalEntry{}, nil, err
	}
	if postedBy != nil {
		entry.PostedBy = *postedBy
	}
	rows, err := q.Query(ctx, `SELECT l.id, l.je_id, l.account_id, a.code, l.debit, l.credit, l.created_at
FROM journal_lines l JOIN accounts a ON a.id = l.account_id WHERE l.je_id=$1 ORDER BY l.id ASC`, entryID)
	if err != nil {
		return JournalEntry{}, nil, err
	}
	defer rows.Close()
	var lines []JournalLine
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.ID, &line.JournalID, &line.AccountID, &line.AccountCode, &line.Debit, &line.Credit, &line.CreatedAt); err != nil {
			return JournalEntry{}, nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return JournalEntry{}, nil, err
	}
	return entry, lines, nil
}

// GetJournal loads an entry with its lines outside a transaction.
func (r *Repository) GetJournal(ctx context.Context, entryID int64) (JournalEntry, error) {
	entry, lines, err := getJournalWithLines(ctx, r.pool, entryID)
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines = lines
	return entry, nil
}

// FindBySource returns the journal id linked to a source reference.
func (r *Repository) FindBySource(ctx context.Context, module string, ref uuid.UUID) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `SELECT je_id FROM source_links WHERE module=$1 AND ref_id=$2`, module, ref).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrJournalNotFound
		}
		return 0, err
	}
	return id, nil
}

func nullInt(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}
