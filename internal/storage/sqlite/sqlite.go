/*
Package sqlite provides a SQLite-backed implementation of the service repositories.

It mirrors the postgres store table for table. Values are kept as TEXT:
uuids in canonical form, dates as YYYY-MM-DD, timestamps as RFC 3339 and
decimal amounts as their exact string form, so no precision is lost.

The database is opened with foreign keys on and WAL journaling. Writes are
serialized by a mutex; SQLite allows a single writer anyway.
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/tinoosan/bookkeeper/internal/errs"
	"github.com/tinoosan/bookkeeper/internal/ledger"
	"github.com/tinoosan/bookkeeper/internal/meta"
)

const (
	dateLayout = "2006-01-02"
	tsLayout   = time.RFC3339Nano
)

type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New opens (creating if needed) the database at path and migrates the schema.
// Use ":memory:" for a throwaway database.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection keeps ":memory:" databases alive and shared
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ready(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		parent_id TEXT REFERENCES accounts(id),
		system BOOLEAN NOT NULL DEFAULT FALSE,
		active BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE TABLE IF NOT EXISTS partners (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		vat TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE TABLE IF NOT EXISTS taxes (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		rate TEXT NOT NULL,
		type TEXT NOT NULL,
		category TEXT NOT NULL,
		method TEXT NOT NULL,
		exempt BOOLEAN NOT NULL DEFAULT FALSE,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		effective_date TEXT,
		expiry_date TEXT,
		description TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sequences (
		name TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS journal_entries (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		ref TEXT NOT NULL UNIQUE,
		date TEXT NOT NULL,
		state TEXT NOT NULL,
		memo TEXT NOT NULL DEFAULT '',
		amount_total TEXT NOT NULL DEFAULT '0',
		metadata_json TEXT,
		reversal_of TEXT REFERENCES journal_entries(id),
		is_reversed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_entries_date ON journal_entries(date, ref);

	CREATE TABLE IF NOT EXISTS journal_lines (
		id TEXT PRIMARY KEY,
		entry_id TEXT NOT NULL REFERENCES journal_entries(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		partner_id TEXT,
		tax_id TEXT,
		tax_amount TEXT,
		memo TEXT NOT NULL DEFAULT '',
		debit TEXT NOT NULL DEFAULT '0',
		credit TEXT NOT NULL DEFAULT '0'
	);
	CREATE INDEX IF NOT EXISTS idx_lines_entry ON journal_lines(entry_id, position);
	CREATE INDEX IF NOT EXISTS idx_lines_tax ON journal_lines(tax_id) WHERE tax_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS entry_idempotency (
		key TEXT PRIMARY KEY,
		entry_id TEXT NOT NULL REFERENCES journal_entries(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS assets (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		purchase_date TEXT NOT NULL,
		purchase_value TEXT NOT NULL,
		residual_value TEXT NOT NULL,
		current_value TEXT NOT NULL,
		method TEXT NOT NULL,
		useful_life INTEGER NOT NULL,
		last_depreciated_on TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		version INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tax_reports (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		report_type TEXT NOT NULL,
		period_key TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		tax_ids_json TEXT NOT NULL,
		totals_json TEXT NOT NULL,
		state TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		generated_at TEXT,
		submitted_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS budgets (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		amount TEXT NOT NULL,
		state TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// value helpers
// =============================================================================

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func date(t time.Time) string { return ledger.DateOf(t).Format(dateLayout) }

func nullDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: date(*t), Valid: true}
}

func ts(t time.Time) string { return t.UTC().Format(tsLayout) }

func nullTS(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: ts(*t), Valid: true}
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullUUID(id *uuid.UUID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

// scanner collects parse errors from the TEXT columns of one row.
type scanner struct{ err error }

func (p *scanner) uuid(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil && p.err == nil {
		p.err = err
	}
	return id
}

func (p *scanner) uuidPtr(s sql.NullString) *uuid.UUID {
	if !s.Valid {
		return nil
	}
	id := p.uuid(s.String)
	return &id
}

func (p *scanner) dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil && p.err == nil {
		p.err = err
	}
	return d
}

func (p *scanner) decPtr(s sql.NullString) *decimal.Decimal {
	if !s.Valid {
		return nil
	}
	d := p.dec(s.String)
	return &d
}

func (p *scanner) date(s string) time.Time {
	t, err := time.Parse(dateLayout, s)
	if err != nil && p.err == nil {
		p.err = err
	}
	return t
}

func (p *scanner) datePtr(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := p.date(s.String)
	return &t
}

func (p *scanner) ts(s string) time.Time {
	t, err := time.Parse(tsLayout, s)
	if err != nil && p.err == nil {
		p.err = err
	}
	return t
}

func (p *scanner) tsPtr(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := p.ts(s.String)
	return &t
}

type rowScanner interface{ Scan(dest ...any) error }

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return errs.ErrNotFound
	}
	return err
}

func mustAffect(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// =============================================================================
// sequences
// =============================================================================

func (s *Store) NextSequence(ctx context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var v int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO sequences (name, value) VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET value = value + 1
		RETURNING value
	`, name).Scan(&v)
	return v, err
}

// =============================================================================
// accounts
// =============================================================================

const accountCols = `id, code, name, type, parent_id, system, active`

func scanAccount(r rowScanner) (ledger.Account, error) {
	var a ledger.Account
	var id string
	var parent sql.NullString
	if err := r.Scan(&id, &a.Code, &a.Name, &a.Type, &parent, &a.System, &a.Active); err != nil {
		return ledger.Account{}, err
	}
	p := &scanner{}
	a.ID = p.uuid(id)
	a.ParentID = p.uuidPtr(parent)
	return a, p.err
}

func (s *Store) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT `+accountCols+` FROM accounts ORDER BY code`)
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
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, err := scanAccount(s.db.QueryRowContext(ctx, `SELECT `+accountCols+` FROM accounts WHERE id = ?`, id.String()))
	return a, notFound(err)
}

func (s *Store) CreateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, code, name, type, parent_id, system, active) VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.ID.String(), a.Code, a.Name, string(a.Type), nullUUID(a.ParentID), a.System, a.Active)
	if isUniqueConstraintError(err) {
		return ledger.Account{}, errs.ErrConflict
	}
	if err != nil {
		return ledger.Account{}, err
	}
	return a, nil
}

func (s *Store) UpdateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET code = ?, name = ?, type = ?, parent_id = ?, active = ? WHERE id = ?
	`, a.Code, a.Name, string(a.Type), nullUUID(a.ParentID), a.Active, a.ID.String())
	if isUniqueConstraintError(err) {
		return ledger.Account{}, errs.ErrConflict
	}
	if err := mustAffect(res, err); err != nil {
		return ledger.Account{}, err
	}
	return a, nil
}

func (s *Store) AccountInUse(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var used bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM journal_lines WHERE account_id = ?)`, id.String()).Scan(&used)
	return used, err
}

// =============================================================================
// partners
// =============================================================================

const partnerCols = `id, code, name, type, vat, email, phone, active`

func scanPartner(r rowScanner) (ledger.Partner, error) {
	var pt ledger.Partner
	var id string
	if err := r.Scan(&id, &pt.Code, &pt.Name, &pt.Type, &pt.VAT, &pt.Email, &pt.Phone, &pt.Active); err != nil {
		return ledger.Partner{}, err
	}
	p := &scanner{}
	pt.ID = p.uuid(id)
	return pt, p.err
}

func (s *Store) ListPartners(ctx context.Context) ([]ledger.Partner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT `+partnerCols+` FROM partners ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Partner, 0)
	for rows.Next() {
		pt, err := scanPartner(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pt)
	}
	return out, rows.Err()
}

func (s *Store) GetPartner(ctx context.Context, id uuid.UUID) (ledger.Partner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pt, err := scanPartner(s.db.QueryRowContext(ctx, `SELECT `+partnerCols+` FROM partners WHERE id = ?`, id.String()))
	return pt, notFound(err)
}

func (s *Store) CreatePartner(ctx context.Context, pt ledger.Partner) (ledger.Partner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO partners (id, code, name, type, vat, email, phone, active) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, pt.ID.String(), pt.Code, pt.Name, string(pt.Type), pt.VAT, pt.Email, pt.Phone, pt.Active)
	if isUniqueConstraintError(err) {
		return ledger.Partner{}, errs.ErrConflict
	}
	if err != nil {
		return ledger.Partner{}, err
	}
	return pt, nil
}

func (s *Store) UpdatePartner(ctx context.Context, pt ledger.Partner) (ledger.Partner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `
		UPDATE partners SET code = ?, name = ?, type = ?, vat = ?, email = ?, phone = ?, active = ? WHERE id = ?
	`, pt.Code, pt.Name, string(pt.Type), pt.VAT, pt.Email, pt.Phone, pt.Active, pt.ID.String())
	if isUniqueConstraintError(err) {
		return ledger.Partner{}, errs.ErrConflict
	}
	if err := mustAffect(res, err); err != nil {
		return ledger.Partner{}, err
	}
	return pt, nil
}

// =============================================================================
// taxes
// =============================================================================

const taxCols = `id, code, name, rate, type, category, method, exempt, active,
	effective_date, expiry_date, description, created_at, updated_at`

func scanTax(r rowScanner) (ledger.Tax, error) {
	var t ledger.Tax
	var id, rate, created, updated string
	var eff, exp sql.NullString
	if err := r.Scan(&id, &t.Code, &t.Name, &rate, &t.Type, &t.Category, &t.Method, &t.Exempt, &t.Active,
		&eff, &exp, &t.Description, &created, &updated); err != nil {
		return ledger.Tax{}, err
	}
	p := &scanner{}
	t.ID = p.uuid(id)
	t.Rate = p.dec(rate)
	t.EffectiveDate = p.datePtr(eff)
	t.ExpiryDate = p.datePtr(exp)
	t.CreatedAt = p.ts(created)
	t.UpdatedAt = p.ts(updated)
	return t, p.err
}

func (s *Store) ListTaxes(ctx context.Context) ([]ledger.Tax, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT `+taxCols+` FROM taxes ORDER BY code`)
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
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, err := scanTax(s.db.QueryRowContext(ctx, `SELECT `+taxCols+` FROM taxes WHERE id = ?`, id.String()))
	return t, notFound(err)
}

func (s *Store) CreateTax(ctx context.Context, t ledger.Tax) (ledger.Tax, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO taxes (id, code, name, rate, type, category, method, exempt, active,
			effective_date, expiry_date, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID.String(), t.Code, t.Name, t.Rate.String(), string(t.Type), string(t.Category), string(t.Method), t.Exempt, t.Active,
		nullDate(t.EffectiveDate), nullDate(t.ExpiryDate), t.Description, ts(t.CreatedAt), ts(t.UpdatedAt))
	if isUniqueConstraintError(err) {
		return ledger.Tax{}, errs.ErrConflict
	}
	if err != nil {
		return ledger.Tax{}, err
	}
	return t, nil
}

func (s *Store) UpdateTax(ctx context.Context, t ledger.Tax) (ledger.Tax, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `
		UPDATE taxes SET name = ?, rate = ?, type = ?, category = ?, method = ?, exempt = ?, active = ?,
			effective_date = ?, expiry_date = ?, description = ?, updated_at = ?
		WHERE id = ?
	`, t.Name, t.Rate.String(), string(t.Type), string(t.Category), string(t.Method), t.Exempt, t.Active,
		nullDate(t.EffectiveDate), nullDate(t.ExpiryDate), t.Description, ts(t.UpdatedAt), t.ID.String())
	if err := mustAffect(res, err); err != nil {
		return ledger.Tax{}, err
	}
	return t, nil
}

// =============================================================================
// journal entries
// =============================================================================

const entryCols = `id, name, ref, date, state, memo, amount_total, metadata_json, reversal_of, is_reversed, created_at`

func scanEntry(r rowScanner) (ledger.JournalEntry, error) {
	var e ledger.JournalEntry
	var id, d, total, created string
	var md, reversalOf sql.NullString
	if err := r.Scan(&id, &e.Name, &e.Ref, &d, &e.State, &e.Memo, &total, &md, &reversalOf, &e.IsReversed, &created); err != nil {
		return ledger.JournalEntry{}, err
	}
	p := &scanner{}
	e.ID = p.uuid(id)
	e.Date = p.date(d)
	e.AmountTotal = p.dec(total)
	e.ReversalOf = p.uuidPtr(reversalOf)
	e.CreatedAt = p.ts(created)
	if md.Valid && md.String != "" {
		var m meta.Metadata
		if err := m.UnmarshalJSON([]byte(md.String)); err == nil {
			e.Metadata = m
		}
	}
	return e, p.err
}

func loadLines(ctx context.Context, q execer, entries []ledger.JournalEntry) error {
	for i := range entries {
		rows, err := q.QueryContext(ctx, `
			SELECT id, account_id, partner_id, tax_id, tax_amount, memo, debit, credit
			FROM journal_lines WHERE entry_id = ? ORDER BY position
		`, entries[i].ID.String())
		if err != nil {
			return err
		}
		for rows.Next() {
			var id, account, debit, credit string
			var partner, tax, taxAmount sql.NullString
			var ln ledger.JournalLine
			if err := rows.Scan(&id, &account, &partner, &tax, &taxAmount, &ln.Memo, &debit, &credit); err != nil {
				rows.Close()
				return err
			}
			p := &scanner{}
			ln.ID = p.uuid(id)
			ln.AccountID = p.uuid(account)
			ln.PartnerID = p.uuidPtr(partner)
			ln.TaxID = p.uuidPtr(tax)
			ln.TaxAmount = p.decPtr(taxAmount)
			ln.Debit = p.dec(debit)
			ln.Credit = p.dec(credit)
			if p.err != nil {
				rows.Close()
				return p.err
			}
			entries[i].Lines = append(entries[i].Lines, ln)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]ledger.JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	out := make([]ledger.JournalEntry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, loadLines(ctx, s.db, out)
}

func (s *Store) ListEntries(ctx context.Context, f ledger.EntryFilter) ([]ledger.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var from, to sql.NullString = nullDate(f.From), nullDate(f.To)
	return s.queryEntries(ctx, `
		SELECT `+entryCols+` FROM journal_entries
		WHERE (? IS NULL OR date >= ?) AND (? IS NULL OR date <= ?) AND (? = '' OR state = ?)
		ORDER BY date ASC, ref ASC
	`, from, from, to, to, string(f.State), string(f.State))
}

func (s *Store) GetEntry(ctx context.Context, id uuid.UUID) (ledger.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getEntry(ctx, id)
}

func (s *Store) getEntry(ctx context.Context, id uuid.UUID) (ledger.JournalEntry, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx, `SELECT `+entryCols+` FROM journal_entries WHERE id = ?`, id.String()))
	if err != nil {
		return ledger.JournalEntry{}, notFound(err)
	}
	out := []ledger.JournalEntry{e}
	if err := loadLines(ctx, s.db, out); err != nil {
		return ledger.JournalEntry{}, err
	}
	return out[0], nil
}

func (s *Store) CreateJournalEntry(ctx context.Context, e ledger.JournalEntry) (ledger.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.inTx(ctx, func(tx *sql.Tx) error { return insertEntry(ctx, tx, e) }); err != nil {
		return ledger.JournalEntry{}, err
	}
	return e, nil
}

func (s *Store) UpdateJournalEntry(ctx context.Context, e ledger.JournalEntry) (ledger.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		md, _ := e.Metadata.MarshalStableJSON()
		res, err := tx.ExecContext(ctx, `
			UPDATE journal_entries SET name = ?, date = ?, state = ?, memo = ?, amount_total = ?, metadata_json = ?, is_reversed = ?
			WHERE id = ?
		`, e.Name, date(e.Date), string(e.State), e.Memo, e.AmountTotal.String(), string(md), e.IsReversed, e.ID.String())
		if err := mustAffect(res, err); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM journal_lines WHERE entry_id = ?`, e.ID.String()); err != nil {
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
	s.mu.Lock()
	defer s.mu.Unlock()
	return mustAffect(s.db.ExecContext(ctx, `DELETE FROM journal_entries WHERE id = ?`, id.String()))
}

func (s *Store) CreateReversal(ctx context.Context, originalID uuid.UUID, rev ledger.JournalEntry) (ledger.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var reversed bool
		err := tx.QueryRowContext(ctx, `SELECT is_reversed FROM journal_entries WHERE id = ?`, originalID.String()).Scan(&reversed)
		if err != nil {
			return notFound(err)
		}
		if reversed {
			return errs.ErrConflict
		}
		if _, err := tx.ExecContext(ctx, `UPDATE journal_entries SET is_reversed = TRUE WHERE id = ?`, originalID.String()); err != nil {
			return err
		}
		return insertEntry(ctx, tx, rev)
	})
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	return rev, nil
}

func (s *Store) GetEntryByIdempotencyKey(ctx context.Context, key string) (ledger.JournalEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT entry_id FROM entry_idempotency WHERE key = ?`, key).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.JournalEntry{}, false, nil
	}
	if err != nil {
		return ledger.JournalEntry{}, false, err
	}
	entryID, err := uuid.Parse(id)
	if err != nil {
		return ledger.JournalEntry{}, false, err
	}
	e, err := s.getEntry(ctx, entryID)
	if err != nil {
		return ledger.JournalEntry{}, false, err
	}
	return e, true, nil
}

// CreateKeyedJournalEntry stores e and binds key to it, or returns the entry the
// key is already bound to with replayed=true. The write lock makes the check and
// the insert one step.
func (s *Store) CreateKeyedJournalEntry(ctx context.Context, key string, e ledger.JournalEntry) (ledger.JournalEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT entry_id FROM entry_idempotency WHERE key = ?`, key).Scan(&id)
	switch {
	case err == nil:
		entryID, err := uuid.Parse(id)
		if err != nil {
			return ledger.JournalEntry{}, false, err
		}
		prev, err := s.getEntry(ctx, entryID)
		if err != nil {
			return ledger.JournalEntry{}, false, err
		}
		return prev, true, nil
	case !errors.Is(err, sql.ErrNoRows):
		return ledger.JournalEntry{}, false, err
	}
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if err := insertEntry(ctx, tx, e); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO entry_idempotency (key, entry_id) VALUES (?, ?)`, key, e.ID.String())
		return err
	})
	if err != nil {
		return ledger.JournalEntry{}, false, err
	}
	return e, false, nil
}

func (s *Store) TaxedLines(ctx context.Context, from, to time.Time, taxIDs []uuid.UUID) ([]ledger.TaxedLine, error) {
	if len(taxIDs) == 0 {
		return nil, nil
	}
	want := make(map[uuid.UUID]bool, len(taxIDs))
	for _, id := range taxIDs {
		want[id] = true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.date, l.tax_id, l.tax_amount, l.debit, l.credit
		FROM journal_lines l JOIN journal_entries e ON e.id = l.entry_id
		WHERE e.state = 'posted' AND NOT e.is_reversed AND e.reversal_of IS NULL
		  AND e.date >= ? AND e.date <= ? AND l.tax_id IS NOT NULL
		ORDER BY e.date, e.ref, l.position
	`, date(from), date(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.TaxedLine
	for rows.Next() {
		var id, d, tax, debit, credit string
		var taxAmount sql.NullString
		if err := rows.Scan(&id, &d, &tax, &taxAmount, &debit, &credit); err != nil {
			return nil, err
		}
		p := &scanner{}
		tl := ledger.TaxedLine{EntryID: p.uuid(id), Date: p.date(d), TaxID: p.uuid(tax), TaxAmount: p.decPtr(taxAmount),
			Debit: p.dec(debit), Credit: p.dec(credit)}
		if p.err != nil {
			return nil, p.err
		}
		if want[tl.TaxID] {
			out = append(out, tl)
		}
	}
	return out, rows.Err()
}

func insertEntry(ctx context.Context, tx *sql.Tx, e ledger.JournalEntry) error {
	md, _ := e.Metadata.MarshalStableJSON()
	_, err := tx.ExecContext(ctx, `
		INSERT INTO journal_entries (id, name, ref, date, state, memo, amount_total, metadata_json, reversal_of, is_reversed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID.String(), e.Name, e.Ref, date(e.Date), string(e.State), e.Memo, e.AmountTotal.String(), string(md),
		nullUUID(e.ReversalOf), e.IsReversed, ts(e.CreatedAt))
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: duplicate entry ref %s", errs.ErrConflict, e.Ref)
	}
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	return insertLines(ctx, tx, e)
}

func insertLines(ctx context.Context, tx *sql.Tx, e ledger.JournalEntry) error {
	for i, ln := range e.Lines {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO journal_lines (id, entry_id, position, account_id, partner_id, tax_id, tax_amount, memo, debit, credit)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, ln.ID.String(), e.ID.String(), i, ln.AccountID.String(), nullUUID(ln.PartnerID), nullUUID(ln.TaxID),
			nullDecimal(ln.TaxAmount), ln.Memo, ln.Debit.String(), ln.Credit.String()); err != nil {
			return fmt.Errorf("failed to insert line: %w", err)
		}
	}
	return nil
}

// =============================================================================
// assets
// =============================================================================

const assetCols = `id, code, name, purchase_date, purchase_value, residual_value, current_value,
	method, useful_life, last_depreciated_on, active, version`

func scanAsset(r rowScanner) (ledger.Asset, error) {
	var a ledger.Asset
	var id, purchased, pv, rv, cv string
	var last sql.NullString
	if err := r.Scan(&id, &a.Code, &a.Name, &purchased, &pv, &rv, &cv, &a.Method, &a.UsefulLife, &last, &a.Active, &a.Version); err != nil {
		return ledger.Asset{}, err
	}
	p := &scanner{}
	a.ID = p.uuid(id)
	a.PurchaseDate = p.date(purchased)
	a.PurchaseValue = p.dec(pv)
	a.ResidualValue = p.dec(rv)
	a.CurrentValue = p.dec(cv)
	a.LastDepreciatedOn = p.datePtr(last)
	return a, p.err
}

func (s *Store) ListAssets(ctx context.Context) ([]ledger.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT `+assetCols+` FROM assets ORDER BY code`)
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
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, err := scanAsset(s.db.QueryRowContext(ctx, `SELECT `+assetCols+` FROM assets WHERE id = ?`, id.String()))
	return a, notFound(err)
}

func (s *Store) CreateAsset(ctx context.Context, a ledger.Asset) (ledger.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assets (id, code, name, purchase_date, purchase_value, residual_value, current_value,
			method, useful_life, last_depreciated_on, active, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID.String(), a.Code, a.Name, date(a.PurchaseDate), a.PurchaseValue.String(), a.ResidualValue.String(), a.CurrentValue.String(),
		string(a.Method), a.UsefulLife, nullDate(a.LastDepreciatedOn), a.Active, a.Version)
	if isUniqueConstraintError(err) {
		return ledger.Asset{}, errs.ErrConflict
	}
	if err != nil {
		return ledger.Asset{}, err
	}
	return a, nil
}

func (s *Store) UpdateAsset(ctx context.Context, a ledger.Asset) (ledger.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out ledger.Asset
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = updateAsset(ctx, tx, a)
		return err
	})
	return out, err
}

func (s *Store) ApplyDepreciation(ctx context.Context, a ledger.Asset, e ledger.JournalEntry) (ledger.Asset, ledger.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out ledger.Asset
	err := s.inTx(ctx, func(tx *sql.Tx) error {
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

func updateAsset(ctx context.Context, tx *sql.Tx, a ledger.Asset) (ledger.Asset, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE assets SET code = ?, name = ?, purchase_date = ?, purchase_value = ?, residual_value = ?, current_value = ?,
			method = ?, useful_life = ?, last_depreciated_on = ?, active = ?, version = version + 1
		WHERE id = ? AND version = ?
	`, a.Code, a.Name, date(a.PurchaseDate), a.PurchaseValue.String(), a.ResidualValue.String(), a.CurrentValue.String(),
		string(a.Method), a.UsefulLife, nullDate(a.LastDepreciatedOn), a.Active, a.ID.String(), a.Version)
	if err := mustAffect(res, err); err != nil {
		if !errors.Is(err, errs.ErrNotFound) {
			return ledger.Asset{}, err
		}
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM assets WHERE id = ?)`, a.ID.String()).Scan(&exists); err != nil {
			return ledger.Asset{}, err
		}
		if exists {
			return ledger.Asset{}, errs.ErrVersionConflict
		}
		return ledger.Asset{}, errs.ErrNotFound
	}
	a.Version++
	return a, nil
}

// =============================================================================
// tax reports
// =============================================================================

const reportCols = `id, name, report_type, period_key, period_start, period_end, tax_ids_json, totals_json,
	state, notes, generated_at, submitted_at, created_at`

// storedTotals is the JSON shape of TaxReportTotals inside totals_json.
type storedTotals struct {
	Sale        decimal.Decimal  `json:"sale_vat_amount"`
	Purchase    decimal.Decimal  `json:"purchase_vat_amount"`
	Exempt      decimal.Decimal  `json:"exempt_amount"`
	ZeroRated   decimal.Decimal  `json:"zero_rated_amount"`
	Withholding decimal.Decimal  `json:"withholding_amount"`
	Derived     decimal.Decimal  `json:"derived_vat_payable"`
	Payable     decimal.Decimal  `json:"vat_payable"`
	Manual      *decimal.Decimal `json:"manual_vat_payable,omitempty"`
	Reason      string           `json:"manual_reason,omitempty"`
}

func encodeTotals(t ledger.TaxReportTotals) string {
	st := storedTotals{
		Sale: t.SaleVATAmount, Purchase: t.PurchaseVATAmount, Exempt: t.ExemptAmount, ZeroRated: t.ZeroRatedAmount,
		Withholding: t.WithholdingAmount, Derived: t.DerivedVATPayable, Payable: t.VATPayable,
	}
	if t.ManualAdjustment != nil {
		v := t.ManualAdjustment.VATPayable
		st.Manual, st.Reason = &v, t.ManualAdjustment.Reason
	}
	b, _ := json.Marshal(st)
	return string(b)
}

func decodeTotals(s string) (ledger.TaxReportTotals, error) {
	var st storedTotals
	if err := json.Unmarshal([]byte(s), &st); err != nil {
		return ledger.TaxReportTotals{}, err
	}
	t := ledger.TaxReportTotals{
		SaleVATAmount: st.Sale, PurchaseVATAmount: st.Purchase, ExemptAmount: st.Exempt, ZeroRatedAmount: st.ZeroRated,
		WithholdingAmount: st.Withholding, DerivedVATPayable: st.Derived, VATPayable: st.Payable,
	}
	if st.Manual != nil {
		t.ManualAdjustment = &ledger.ManualAdjustment{VATPayable: *st.Manual, Reason: st.Reason}
	}
	return t, nil
}

func scanReport(r rowScanner) (ledger.TaxReport, error) {
	var rep ledger.TaxReport
	var id, start, end, idsJSON, totalsJSON, created string
	var generated, submitted sql.NullString
	if err := r.Scan(&id, &rep.Name, &rep.ReportType, &rep.PeriodKey, &start, &end, &idsJSON, &totalsJSON,
		&rep.State, &rep.Notes, &generated, &submitted, &created); err != nil {
		return ledger.TaxReport{}, err
	}
	p := &scanner{}
	rep.ID = p.uuid(id)
	rep.PeriodStart = p.date(start)
	rep.PeriodEnd = p.date(end)
	rep.GeneratedAt = p.tsPtr(generated)
	rep.SubmittedAt = p.tsPtr(submitted)
	rep.CreatedAt = p.ts(created)
	if p.err != nil {
		return ledger.TaxReport{}, p.err
	}
	if err := json.Unmarshal([]byte(idsJSON), &rep.TaxIDs); err != nil {
		return ledger.TaxReport{}, err
	}
	totals, err := decodeTotals(totalsJSON)
	if err != nil {
		return ledger.TaxReport{}, err
	}
	rep.Totals = totals
	return rep, nil
}

func reportArgs(r ledger.TaxReport) []any {
	ids := r.TaxIDs
	if ids == nil {
		ids = []uuid.UUID{}
	}
	idsJSON, _ := json.Marshal(ids)
	return []any{r.Name, string(r.ReportType), r.PeriodKey, date(r.PeriodStart), date(r.PeriodEnd), string(idsJSON),
		encodeTotals(r.Totals), string(r.State), r.Notes, nullTS(r.GeneratedAt), nullTS(r.SubmittedAt), ts(r.CreatedAt), r.ID.String()}
}

func (s *Store) ListTaxReports(ctx context.Context) ([]ledger.TaxReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT `+reportCols+` FROM tax_reports ORDER BY period_start, created_at`)
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
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, err := scanReport(s.db.QueryRowContext(ctx, `SELECT `+reportCols+` FROM tax_reports WHERE id = ?`, id.String()))
	return r, notFound(err)
}

func (s *Store) CreateTaxReport(ctx context.Context, r ledger.TaxReport) (ledger.TaxReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tax_reports (name, report_type, period_key, period_start, period_end, tax_ids_json, totals_json,
			state, notes, generated_at, submitted_at, created_at, id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, reportArgs(r)...)
	if err != nil {
		return ledger.TaxReport{}, err
	}
	return r, nil
}

func (s *Store) UpdateTaxReport(ctx context.Context, r ledger.TaxReport) (ledger.TaxReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := mustAffect(s.db.ExecContext(ctx, `
		UPDATE tax_reports SET name = ?, report_type = ?, period_key = ?, period_start = ?, period_end = ?,
			tax_ids_json = ?, totals_json = ?, state = ?, notes = ?, generated_at = ?, submitted_at = ?, created_at = ?
		WHERE id = ?
	`, reportArgs(r)...))
	if err != nil {
		return ledger.TaxReport{}, err
	}
	return r, nil
}

func (s *Store) DeleteTaxReport(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return mustAffect(s.db.ExecContext(ctx, `DELETE FROM tax_reports WHERE id = ?`, id.String()))
}

// =============================================================================
// budgets
// =============================================================================

const budgetCols = `id, name, account_id, start_date, end_date, amount, state, created_at`

func scanBudget(r rowScanner) (ledger.Budget, error) {
	var b ledger.Budget
	var id, acc, start, end, amount, created string
	if err := r.Scan(&id, &b.Name, &acc, &start, &end, &amount, &b.State, &created); err != nil {
		return ledger.Budget{}, err
	}
	p := &scanner{}
	b.ID = p.uuid(id)
	b.AccountID = p.uuid(acc)
	b.StartDate = p.date(start)
	b.EndDate = p.date(end)
	b.Amount = p.dec(amount)
	b.CreatedAt = p.ts(created)
	return b, p.err
}

func budgetArgs(b ledger.Budget) []any {
	return []any{b.Name, b.AccountID.String(), date(b.StartDate), date(b.EndDate), b.Amount.String(),
		string(b.State), ts(b.CreatedAt), b.ID.String()}
}

func (s *Store) ListBudgets(ctx context.Context) ([]ledger.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT `+budgetCols+` FROM budgets ORDER BY start_date, created_at`)
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
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, err := scanBudget(s.db.QueryRowContext(ctx, `SELECT `+budgetCols+` FROM budgets WHERE id = ?`, id.String()))
	return b, notFound(err)
}

func (s *Store) CreateBudget(ctx context.Context, b ledger.Budget) (ledger.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO budgets (name, account_id, start_date, end_date, amount, state, created_at, id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, budgetArgs(b)...)
	if err != nil {
		return ledger.Budget{}, err
	}
	return b, nil
}

func (s *Store) UpdateBudget(ctx context.Context, b ledger.Budget) (ledger.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := mustAffect(s.db.ExecContext(ctx, `
		UPDATE budgets SET name = ?, account_id = ?, start_date = ?, end_date = ?, amount = ?, state = ?, created_at = ?
		WHERE id = ?
	`, budgetArgs(b)...))
	if err != nil {
		return ledger.Budget{}, err
	}
	return b, nil
}

func (s *Store) DeleteBudget(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return mustAffect(s.db.ExecContext(ctx, `DELETE FROM budgets WHERE id = ?`, id.String()))
}
