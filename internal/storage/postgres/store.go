// Package postgres provides a pgx-backed storage implementation that satisfies
// the repository and writer interfaces used by the services.
//
// The schema lives under db/migrations. Decimal amounts are written as text and
// cast to numeric; they are read back as text so no precision is lost.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tinoosan/bookkeeper/internal/errs"
	"github.com/tinoosan/bookkeeper/internal/ledger"
	"github.com/tinoosan/bookkeeper/internal/meta"
)

// Store holds a pgx connection pool. All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// dbtx is satisfied by both the pool and a transaction.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Open establishes a pgx pool using the provided connection string.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Migrate applies a schema script (see db/migrations).
func (s *Store) Migrate(ctx context.Context, script string) error {
	_, err := s.pool.Exec(ctx, script)
	return err
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ready pings the pool to verify connectivity.
func (s *Store) Ready(ctx context.Context) error { return s.pool.Ping(ctx) }

func num(d decimal.Decimal) string { return d.String() }

func numPtr(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func nullDec(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	return &d.Decimal
}

// isUnique reports a unique-constraint violation.
func isUnique(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// --- Sequences ---

func (s *Store) NextSequence(ctx context.Context, name string) (int64, error) {
	var v int64
	err := s.pool.QueryRow(ctx, `
		insert into sequences (name, value) values ($1, 1)
		on conflict (name) do update set value = sequences.value + 1
		returning value
	`, name).Scan(&v)
	return v, err
}

// --- Accounts ---

const accountCols = `id, code, name, type, parent_id, system, active`

func scanAccount(row pgx.Row) (ledger.Account, error) {
	var a ledger.Account
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.ParentID, &a.System, &a.Active)
	return a, err
}

func (s *Store) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	rows, err := s.pool.Query(ctx, `select `+accountCols+` from accounts order by code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (ledger.Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx, `select `+accountCols+` from accounts where id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Account{}, errs.ErrNotFound
	}
	return a, err
}

func (s *Store) CreateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	_, err := s.pool.Exec(ctx, `
		insert into accounts (id, code, name, type, parent_id, system, active)
		values ($1,$2,$3,$4,$5,$6,$7)
	`, a.ID, a.Code, a.Name, a.Type, a.ParentID, a.System, a.Active)
	if isUnique(err) {
		return ledger.Account{}, errs.ErrConflict
	}
	if err != nil {
		return ledger.Account{}, err
	}
	return a, nil
}

func (s *Store) UpdateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	ct, err := s.pool.Exec(ctx, `
		update accounts set code=$1, name=$2, type=$3, parent_id=$4, active=$5
		where id=$6
	`, a.Code, a.Name, a.Type, a.ParentID, a.Active, a.ID)
	if isUnique(err) {
		return ledger.Account{}, errs.ErrConflict
	}
	if err != nil {
		return ledger.Account{}, err
	}
	if ct.RowsAffected() == 0 {
		return ledger.Account{}, errs.ErrNotFound
	}
	return a, nil
}

func (s *Store) AccountInUse(ctx context.Context, id uuid.UUID) (bool, error) {
	var used bool
	err := s.pool.QueryRow(ctx, `select exists(select 1 from journal_lines where account_id = $1)`, id).Scan(&used)
	return used, err
}

// --- Partners ---

const partnerCols = `id, code, name, type, vat, email, phone, active`

func scanPartner(row pgx.Row) (ledger.Partner, error) {
	var p ledger.Partner
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Type, &p.VAT, &p.Email, &p.Phone, &p.Active)
	return p, err
}

func (s *Store) ListPartners(ctx context.Context) ([]ledger.Partner, error) {
	rows, err := s.pool.Query(ctx, `select `+partnerCols+` from partners order by code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Partner, 0)
	for rows.Next() {
		p, err := scanPartner(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) GetPartner(ctx context.Context, id uuid.UUID) (ledger.Partner, error) {
	p, err := scanPartner(s.pool.QueryRow(ctx, `select `+partnerCols+` from partners where id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Partner{}, errs.ErrNotFound
	}
	return p, err
}

func (s *Store) CreatePartner(ctx context.Context, p ledger.Partner) (ledger.Partner, error) {
	_, err := s.pool.Exec(ctx, `
		insert into partners (id, code, name, type, vat, email, phone, active)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
	`, p.ID, p.Code, p.Name, p.Type, p.VAT, p.Email, p.Phone, p.Active)
	if isUnique(err) {
		return ledger.Partner{}, errs.ErrConflict
	}
	if err != nil {
		return ledger.Partner{}, err
	}
	return p, nil
}

func (s *Store) UpdatePartner(ctx context.Context, p ledger.Partner) (ledger.Partner, error) {
	ct, err := s.pool.Exec(ctx, `
		update partners set code=$1, name=$2, type=$3, vat=$4, email=$5, phone=$6, active=$7
		where id=$8
	`, p.Code, p.Name, p.Type, p.VAT, p.Email, p.Phone, p.Active, p.ID)
	if isUnique(err) {
		return ledger.Partner{}, errs.ErrConflict
	}
	if err != nil {
		return ledger.Partner{}, err
	}
	if ct.RowsAffected() == 0 {
		return ledger.Partner{}, errs.ErrNotFound
	}
	return p, nil
}

// --- Taxes ---

const taxCols = `id, code, name, rate::text, type, category, method, exempt, active,
	effective_date, expiry_date, description, created_at, updated_at`

func scanTax(row pgx.Row) (ledger.Tax, error) {
	var t ledger.Tax
	err := row.Scan(&t.ID, &t.Code, &t.Name, &t.Rate, &t.Type, &t.Category, &t.Method, &t.Exempt, &t.Active,
		&t.EffectiveDate, &t.ExpiryDate, &t.Description, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (s *Store) ListTaxes(ctx context.Context) ([]ledger.Tax, error) {
	rows, err := s.pool.Query(ctx, `select `+taxCols+` from taxes order by code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Tax, 0)
	for rows.Next() {
		t, err := scanTax(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) GetTax(ctx context.Context, id uuid.UUID) (ledger.Tax, error) {
	t, err := scanTax(s.pool.QueryRow(ctx, `select `+taxCols+` from taxes where id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Tax{}, errs.ErrNotFound
	}
	return t, err
}

func (s *Store) CreateTax(ctx context.Context, t ledger.Tax) (ledger.Tax, error) {
	_, err := s.pool.Exec(ctx, `
		insert into taxes (id, code, name, rate, type, category, method, exempt, active,
			effective_date, expiry_date, description, created_at, updated_at)
		values ($1,$2,$3,$4::numeric,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, t.ID, t.Code, t.Name, num(t.Rate), t.Type, t.Category, t.Method, t.Exempt, t.Active,
		t.EffectiveDate, t.ExpiryDate, t.Description, t.CreatedAt, t.UpdatedAt)
	if isUnique(err) {
		return ledger.Tax{}, errs.ErrConflict
	}
	if err != nil {
		return ledger.Tax{}, err
	}
	return t, nil
}

func (s *Store) UpdateTax(ctx context.Context, t ledger.Tax) (ledger.Tax, error) {
	ct, err := s.pool.Exec(ctx, `
		update taxes set name=$1, rate=$2::numeric, type=$3, category=$4, method=$5, exempt=$6, active=$7,
			effective_date=$8, expiry_date=$9, description=$10, updated_at=$11
		where id=$12
	`, t.Name, num(t.Rate), t.Type, t.Category, t.Method, t.Exempt, t.Active,
		t.EffectiveDate, t.ExpiryDate, t.Description, t.UpdatedAt, t.ID)
	if err != nil {
		return ledger.Tax{}, err
	}
	if ct.RowsAffected() == 0 {
		return ledger.Tax{}, errs.ErrNotFound
	}
	return t, nil
}

// --- Journal entries ---

const entryCols = `id, name, ref, date, state, memo, amount_total::text, metadata, reversal_of, is_reversed, created_at`

func scanEntry(row pgx.Row) (ledger.JournalEntry, error) {
	var e ledger.JournalEntry
	var mdBytes []byte
	if err := row.Scan(&e.ID, &e.Name, &e.Ref, &e.Date, &e.State, &e.Memo, &e.AmountTotal, &mdBytes, &e.ReversalOf, &e.IsReversed, &e.CreatedAt); err != nil {
		return ledger.JournalEntry{}, err
	}
	if len(mdBytes) > 0 {
		var m meta.Metadata
		if err := m.UnmarshalJSON(mdBytes); err == nil {
			e.Metadata = m
		}
	}
	return e, nil
}

// loadLines attaches lines to entries, keeping each entry's submission order.
func loadLines(ctx context.Context, q dbtx, entries []ledger.JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}
	idx := make(map[uuid.UUID]*ledger.JournalEntry, len(entries))
	ids := make([]uuid.UUID, 0, len(entries))
	for i := range entries {
		idx[entries[i].ID] = &entries[i]
		ids = append(ids, entries[i].ID)
	}
	rows, err := q.Query(ctx, `
		select id, entry_id, account_id, partner_id, tax_id, tax_amount::text, memo, debit::text, credit::text
		from journal_lines
		where entry_id = any($1)
		order by entry_id, position
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var ln ledger.JournalLine
		var entryID uuid.UUID
		var taxAmount decimal.NullDecimal
		if err := rows.Scan(&ln.ID, &entryID, &ln.AccountID, &ln.PartnerID, &ln.TaxID, &taxAmount, &ln.Memo, &ln.Debit, &ln.Credit); err != nil {
			return err
		}
		ln.TaxAmount = nullDec(taxAmount)
		if e := idx[entryID]; e != nil {
			e.Lines = append(e.Lines, ln)
		}
	}
	return rows.Err()
}

func (s *Store) ListEntries(ctx context.Context, f ledger.EntryFilter) ([]ledger.JournalEntry, error) {
	var from, to *time.Time
	if f.From != nil {
		d := ledger.DateOf(*f.From)
		from = &d
	}
	if f.To != nil {
		d := ledger.DateOf(*f.To)
		to = &d
	}
	var state *string
	if f.State != "" {
		st := string(f.State)
		state = &st
	}
	rows, err := s.pool.Query(ctx, `
		select `+entryCols+`
		from journal_entries
		where ($1::date is null or date >= $1)
		  and ($2::date is null or date <= $2)
		  and ($3::text is null or state = $3)
		order by date asc, ref asc
	`, from, to, state)
	if err != nil {
		return nil, err
	}
	entries := make([]ledger.JournalEntry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, loadLines(ctx, s.pool, entries)
}

func (s *Store) GetEntry(ctx context.Context, id uuid.UUID) (ledger.JournalEntry, error) {
	e, err := scanEntry(s.pool.QueryRow(ctx, `select `+entryCols+` from journal_entries where id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.JournalEntry{}, errs.ErrNotFound
	}
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	out := []ledger.JournalEntry{e}
	if err := loadLines(ctx, s.pool, out); err != nil {
		return ledger.JournalEntry{}, err
	}
	return out[0], nil
}

// CreateJournalEntry inserts an entry and its lines in a transaction.
func (s *Store) CreateJournalEntry(ctx context.Context, e ledger.JournalEntry) (ledger.JournalEntry, error) {
	if err := s.inTx(ctx, func(tx pgx.Tx) error { return insertEntry(ctx, tx, e) }); err != nil {
		return ledger.JournalEntry{}, err
	}
	return e, nil
}

// UpdateJournalEntry rewrites the header and replaces all lines.
func (s *Store) UpdateJournalEntry(ctx context.Context, e ledger.JournalEntry) (ledger.JournalEntry, error) {
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		md, _ := e.Metadata.MarshalStableJSON()
		ct, err := tx.Exec(ctx, `
			update journal_entries
			set name=$1, date=$2, state=$3, memo=$4, amount_total=$5::numeric, metadata=$6, is_reversed=$7
			where id=$8
		`, e.Name, ledger.DateOf(e.Date), e.State, e.Memo, num(e.AmountTotal), md, e.IsReversed, e.ID)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return errs.ErrNotFound
		}
		if _, err := tx.Exec(ctx, `delete from journal_lines where entry_id = $1`, e.ID); err != nil {
			return err
		}
		return insertLines(ctx, tx, e)
	})
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	return e, nil
}

func (s *Store) DeleteJournalEntry(ctx context.Context, id uuid.UUID) error {
	ct, err := s.pool.Exec(ctx, `delete from journal_entries where id = $1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// CreateReversal flags the original and inserts the reversal atomically.
func (s *Store) CreateReversal(ctx context.Context, originalID uuid.UUID, rev ledger.JournalEntry) (ledger.JournalEntry, error) {
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, `update journal_entries set is_reversed = true where id = $1 and not is_reversed`, originalID)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `select exists(select 1 from journal_entries where id = $1)`, originalID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return errs.ErrNotFound
			}
			return errs.ErrConflict
		}
		return insertEntry(ctx, tx, rev)
	})
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	return rev, nil
}

// GetEntryByIdempotencyKey resolves an entry by idempotency key.
func (s *Store) GetEntryByIdempotencyKey(ctx context.Context, key string) (ledger.JournalEntry, bool, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `select entry_id from entry_idempotency where key = $1`, key).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.JournalEntry{}, false, nil
	}
	if err != nil {
		return ledger.JournalEntry{}, false, err
	}
	e, err := s.GetEntry(ctx, id)
	if err != nil {
		return ledger.JournalEntry{}, false, err
	}
	return e, true, nil
}

// errKeyTaken rolls back an insert that lost the race for its idempotency key.
var errKeyTaken = errors.New("idempotency key taken")

// CreateKeyedJournalEntry inserts e and binds key to it in one transaction. When
// another transaction bound the key first, the insert is rolled back and the
// winning entry is returned with replayed=true.
func (s *Store) CreateKeyedJournalEntry(ctx context.Context, key string, e ledger.JournalEntry) (ledger.JournalEntry, bool, error) {
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if err := insertEntry(ctx, tx, e); err != nil {
			return err
		}
		ct, err := tx.Exec(ctx, `
			insert into entry_idempotency (key, entry_id) values ($1,$2)
			on conflict (key) do nothing
		`, key, e.ID)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return errKeyTaken
		}
		return nil
	})
	if errors.Is(err, errKeyTaken) {
		prev, ok, err := s.GetEntryByIdempotencyKey(ctx, key)
		if err != nil {
			return ledger.JournalEntry{}, false, err
		}
		if !ok {
			return ledger.JournalEntry{}, false, fmt.Errorf("%w: idempotency key %s", errs.ErrConflict, key)
		}
		return prev, true, nil
	}
	if err != nil {
		return ledger.JournalEntry{}, false, err
	}
	return e, false, nil
}

// TaxedLines returns tagged lines of posted, unreversed, non-reversal entries in [from, to].
func (s *Store) TaxedLines(ctx context.Context, from, to time.Time, taxIDs []uuid.UUID) ([]ledger.TaxedLine, error) {
	if len(taxIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		select e.id, e.date, l.tax_id, l.tax_amount::text, l.debit::text, l.credit::text
		from journal_lines l
		join journal_entries e on e.id = l.entry_id
		where e.state = 'posted' and not e.is_reversed and e.reversal_of is null
		  and e.date between $1 and $2
		  and l.tax_id = any($3)
		order by e.date, e.ref, l.position
	`, ledger.DateOf(from), ledger.DateOf(to), taxIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.TaxedLine
	for rows.Next() {
		var tl ledger.TaxedLine
		var taxAmount decimal.NullDecimal
		if err := rows.Scan(&tl.EntryID, &tl.Date, &tl.TaxID, &taxAmount, &tl.Debit, &tl.Credit); err != nil {
			return nil, err
		}
		tl.TaxAmount = nullDec(taxAmount)
		out = append(out, tl)
	}
	return out, rows.Err()
}

func insertEntry(ctx context.Context, tx pgx.Tx, e ledger.JournalEntry) error {
	md, _ := e.Metadata.MarshalStableJSON()
	if _, err := tx.Exec(ctx, `
		insert into journal_entries (id, name, ref, date, state, memo, amount_total, metadata, reversal_of, is_reversed, created_at)
		values ($1,$2,$3,$4,$5,$6,$7::numeric,$8,$9,$10,$11)
	`, e.ID, e.Name, e.Ref, ledger.DateOf(e.Date), e.State, e.Memo, num(e.AmountTotal), md, e.ReversalOf, e.IsReversed, e.CreatedAt); err != nil {
		if isUnique(err) {
			return fmt.Errorf("%w: duplicate entry ref %s", errs.ErrConflict, e.Ref)
		}
		return err
	}
	return insertLines(ctx, tx, e)
}

func insertLines(ctx context.Context, tx pgx.Tx, e ledger.JournalEntry) error {
	for i, ln := range e.Lines {
		if _, err := tx.Exec(ctx, `
			insert into journal_lines (id, entry_id, position, account_id, partner_id, tax_id, tax_amount, memo, debit, credit)
			values ($1,$2,$3,$4,$5,$6,$7::numeric,$8,$9::numeric,$10::numeric)
		`, ln.ID, e.ID, i, ln.AccountID, ln.PartnerID, ln.TaxID, numPtr(ln.TaxAmount), ln.Memo, num(ln.Debit), num(ln.Credit)); err != nil {
			return fmt.Errorf("insert line: %w", err)
		}
	}
	return nil
}

// --- Assets ---

const assetCols = `id, code, name, purchase_date, purchase_value::text, residual_value::text, current_value::text,
	method, useful_life, last_depreciated_on, active, version`

func scanAsset(row pgx.Row) (ledger.Asset, error) {
	var a ledger.Asset
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.PurchaseDate, &a.PurchaseValue, &a.ResidualValue, &a.CurrentValue,
		&a.Method, &a.UsefulLife, &a.LastDepreciatedOn, &a.Active, &a.Version)
	return a, err
}

func (s *Store) ListAssets(ctx context.Context) ([]ledger.Asset, error) {
	rows, err := s.pool.Query(ctx, `select `+assetCols+` from assets order by code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Asset, 0)
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) GetAsset(ctx context.Context, id uuid.UUID) (ledger.Asset, error) {
	a, err := scanAsset(s.pool.QueryRow(ctx, `select `+assetCols+` from assets where id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Asset{}, errs.ErrNotFound
	}
	return a, err
}

func (s *Store) CreateAsset(ctx context.Context, a ledger.Asset) (ledger.Asset, error) {
	_, err := s.pool.Exec(ctx, `
		insert into assets (id, code, name, purchase_date, purchase_value, residual_value, current_value,
			method, useful_life, last_depreciated_on, active, version)
		values ($1,$2,$3,$4,$5::numeric,$6::numeric,$7::numeric,$8,$9,$10,$11,$12)
	`, a.ID, a.Code, a.Name, ledger.DateOf(a.PurchaseDate), num(a.PurchaseValue), num(a.ResidualValue), num(a.CurrentValue),
		a.Method, a.UsefulLife, a.LastDepreciatedOn, a.Active, a.Version)
	if isUnique(err) {
		return ledger.Asset{}, errs.ErrConflict
	}
	if err != nil {
		return ledger.Asset{}, err
	}
	return a, nil
}

func (s *Store) UpdateAsset(ctx context.Context, a ledger.Asset) (ledger.Asset, error) {
	var out ledger.Asset
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		out, err = updateAsset(ctx, tx, a)
		return err
	})
	return out, err
}

// ApplyDepreciation bumps the asset version and stores the depreciation entry in one transaction.
func (s *Store) ApplyDepreciation(ctx context.Context, a ledger.Asset, e ledger.JournalEntry) (ledger.Asset, ledger.JournalEntry, error) {
	var out ledger.Asset
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		if out, err = updateAsset(ctx, tx, a); err != nil {
			return err
		}
		return insertEntry(ctx, tx, e)
	})
	if err != nil {
		return ledger.Asset{}, ledger.JournalEntry{}, err
	}
	return out, e, nil
}

func updateAsset(ctx context.Context, tx pgx.Tx, a ledger.Asset) (ledger.Asset, error) {
	ct, err := tx.Exec(ctx, `
		update assets set code=$1, name=$2, purchase_date=$3, purchase_value=$4::numeric, residual_value=$5::numeric,
			current_value=$6::numeric, method=$7, useful_life=$8, last_depreciated_on=$9, active=$10, version=version+1
		where id=$11 and version=$12
	`, a.Code, a.Name, ledger.DateOf(a.PurchaseDate), num(a.PurchaseValue), num(a.ResidualValue),
		num(a.CurrentValue), a.Method, a.UsefulLife, a.LastDepreciatedOn, a.Active, a.ID, a.Version)
	if err != nil {
		return ledger.Asset{}, err
	}
	if ct.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `select exists(select 1 from assets where id = $1)`, a.ID).Scan(&exists); err != nil {
			return ledger.Asset{}, err
		}
		if !exists {
			return ledger.Asset{}, errs.ErrNotFound
		}
		return ledger.Asset{}, errs.ErrVersionConflict
	}
	a.Version++
	return a, nil
}

// --- Tax reports ---

const reportCols = `id, name, report_type, period_key, period_start, period_end, tax_ids,
	sale_vat::text, purchase_vat::text, exempt_amount::text, zero_rated_amount::text, withholding_amount::text,
	derived_vat_payable::text, vat_payable::text, manual_vat_payable::text, manual_reason,
	state, notes, generated_at, submitted_at, created_at`

func scanReport(row pgx.Row) (ledger.TaxReport, error) {
	var r ledger.TaxReport
	var manual decimal.NullDecimal
	var reason *string
	t := &r.Totals
	err := row.Scan(&r.ID, &r.Name, &r.ReportType, &r.PeriodKey, &r.PeriodStart, &r.PeriodEnd, &r.TaxIDs,
		&t.SaleVATAmount, &t.PurchaseVATAmount, &t.ExemptAmount, &t.ZeroRatedAmount, &t.WithholdingAmount,
		&t.DerivedVATPayable, &t.VATPayable, &manual, &reason,
		&r.State, &r.Notes, &r.GeneratedAt, &r.SubmittedAt, &r.CreatedAt)
	if err != nil {
		return ledger.TaxReport{}, err
	}
	if manual.Valid {
		adj := ledger.ManualAdjustment{VATPayable: manual.Decimal}
		if reason != nil {
			adj.Reason = *reason
		}
		t.ManualAdjustment = &adj
	}
	return r, nil
}

func (s *Store) ListTaxReports(ctx context.Context) ([]ledger.TaxReport, error) {
	rows, err := s.pool.Query(ctx, `select `+reportCols+` from tax_reports order by period_start, created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.TaxReport, 0)
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) GetTaxReport(ctx context.Context, id uuid.UUID) (ledger.TaxReport, error) {
	r, err := scanReport(s.pool.QueryRow(ctx, `select `+reportCols+` from tax_reports where id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.TaxReport{}, errs.ErrNotFound
	}
	return r, err
}

func reportArgs(r ledger.TaxReport) []any {
	t := r.Totals
	var manual *decimal.Decimal
	var reason *string
	if t.ManualAdjustment != nil {
		manual = &t.ManualAdjustment.VATPayable
		reason = &t.ManualAdjustment.Reason
	}
	ids := r.TaxIDs
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return []any{r.ID, r.Name, r.ReportType, r.PeriodKey, ledger.DateOf(r.PeriodStart), ledger.DateOf(r.PeriodEnd), ids,
		num(t.SaleVATAmount), num(t.PurchaseVATAmount), num(t.ExemptAmount), num(t.ZeroRatedAmount), num(t.WithholdingAmount),
		num(t.DerivedVATPayable), num(t.VATPayable), numPtr(manual), reason,
		r.State, r.Notes, r.GeneratedAt, r.SubmittedAt, r.CreatedAt}
}

func (s *Store) CreateTaxReport(ctx context.Context, r ledger.TaxReport) (ledger.TaxReport, error) {
	_, err := s.pool.Exec(ctx, `
		insert into tax_reports (id, name, report_type, period_key, period_start, period_end, tax_ids,
			sale_vat, purchase_vat, exempt_amount, zero_rated_amount, withholding_amount,
			derived_vat_payable, vat_payable, manual_vat_payable, manual_reason,
			state, notes, generated_at, submitted_at, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8::numeric,$9::numeric,$10::numeric,$11::numeric,$12::numeric,
			$13::numeric,$14::numeric,$15::numeric,$16,$17,$18,$19,$20,$21)
	`, reportArgs(r)...)
	if err != nil {
		return ledger.TaxReport{}, err
	}
	return r, nil
}

func (s *Store) UpdateTaxReport(ctx context.Context, r ledger.TaxReport) (ledger.TaxReport, error) {
	ct, err := s.pool.Exec(ctx, `
		update tax_reports set name=$2, report_type=$3, period_key=$4, period_start=$5, period_end=$6, tax_ids=$7,
			sale_vat=$8::numeric, purchase_vat=$9::numeric, exempt_amount=$10::numeric, zero_rated_amount=$11::numeric,
			withholding_amount=$12::numeric, derived_vat_payable=$13::numeric, vat_payable=$14::numeric,
			manual_vat_payable=$15::numeric, manual_reason=$16,
			state=$17, notes=$18, generated_at=$19, submitted_at=$20, created_at=$21
		where id=$1
	`, reportArgs(r)...)
	if err != nil {
		return ledger.TaxReport{}, err
	}
	if ct.RowsAffected() == 0 {
		return ledger.TaxReport{}, errs.ErrNotFound
	}
	return r, nil
}

func (s *Store) DeleteTaxReport(ctx context.Context, id uuid.UUID) error {
	ct, err := s.pool.Exec(ctx, `delete from tax_reports where id = $1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// --- Budgets ---

const budgetCols = `id, name, account_id, start_date, end_date, amount::text, state, created_at`

func scanBudget(row pgx.Row) (ledger.Budget, error) {
	var b ledger.Budget
	err := row.Scan(&b.ID, &b.Name, &b.AccountID, &b.StartDate, &b.EndDate, &b.Amount, &b.State, &b.CreatedAt)
	return b, err
}

func (s *Store) ListBudgets(ctx context.Context) ([]ledger.Budget, error) {
	rows, err := s.pool.Query(ctx, `select `+budgetCols+` from budgets order by start_date, created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Budget, 0)
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) GetBudget(ctx context.Context, id uuid.UUID) (ledger.Budget, error) {
	b, err := scanBudget(s.pool.QueryRow(ctx, `select `+budgetCols+` from budgets where id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Budget{}, errs.ErrNotFound
	}
	return b, err
}

func (s *Store) CreateBudget(ctx context.Context, b ledger.Budget) (ledger.Budget, error) {
	_, err := s.pool.Exec(ctx, `
		insert into budgets (id, name, account_id, start_date, end_date, amount, state, created_at)
		values ($1,$2,$3,$4,$5,$6::numeric,$7,$8)
	`, b.ID, b.Name, b.AccountID, ledger.DateOf(b.StartDate), ledger.DateOf(b.EndDate), num(b.Amount), b.State, b.CreatedAt)
	if err != nil {
		return ledger.Budget{}, err
	}
	return b, nil
}

func (s *Store) UpdateBudget(ctx context.Context, b ledger.Budget) (ledger.Budget, error) {
	ct, err := s.pool.Exec(ctx, `
		update budgets set name=$2, account_id=$3, start_date=$4, end_date=$5, amount=$6::numeric, state=$7
		where id=$1
	`, b.ID, b.Name, b.AccountID, ledger.DateOf(b.StartDate), ledger.DateOf(b.EndDate), num(b.Amount), b.State)
	if err != nil {
		return ledger.Budget{}, err
	}
	if ct.RowsAffected() == 0 {
		return ledger.Budget{}, errs.ErrNotFound
	}
	return b, nil
}

func (s *Store) DeleteBudget(ctx context.Context, id uuid.UUID) error {
	ct, err := s.pool.Exec(ctx, `delete from budgets where id = $1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
