/*
Copyright 2024 TillSync Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package pos

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/tillsync/tillsync/model"
)

// Store is the durable local state of one client device: sales, their item
// and payment snapshots, and the outbox queue. Every mutation that must be
// atomic is a single method so the implementation can wrap it in one
// transaction.
type Store interface {
	CreateSale(ctx context.Context, sale *model.Sale) error
	GetSale(ctx context.Context, saleID string) (*model.Sale, error)
	GetSaleItems(ctx context.Context, saleID string) ([]model.SaleItem, error)
	GetPayments(ctx context.Context, saleID string) ([]model.Payment, error)

	// CompleteSale flips the sale from DRAFT to COMPLETED and persists the
	// item snapshots, payments and exactly one outbox job in one transaction.
	// A sale that is not in DRAFT state fails with ErrSaleNotDraft and
	// nothing is written.
	CompleteSale(ctx context.Context, sale *model.Sale, items []model.SaleItem, payments []model.Payment, job *model.OutboxJob) error

	GetOutboxJob(ctx context.Context, jobID string) (*model.OutboxJob, error)
	DueOutboxJobs(ctx context.Context, now time.Time, limit int) ([]model.OutboxJob, error)

	// ReserveOutboxAttempt bumps attempts and issues a strictly greater
	// attempt token, returning the reserved job. Reserving a SENT job fails
	// with ErrOutboxJobTerminal.
	ReserveOutboxAttempt(ctx context.Context, jobID string) (*model.OutboxJob, error)

	// FinalizeOutboxAttempt writes the attempt outcome, but only if the
	// given token is still the job's current one and the job is not already
	// SENT. It reports whether the write was applied; a stale token is a
	// silent no-op, not an error.
	FinalizeOutboxAttempt(ctx context.Context, jobID string, token int64, status string, nextAttemptAt *time.Time, lastError *string) (bool, error)

	Close() error
}

// SQLiteStore is the Store implementation over a local SQLite file. All
// state survives process restarts; the schema is bootstrapped on open.
type SQLiteStore struct {
	conn *sql.DB
}

// OpenStore opens (or creates) the local database at path and ensures the
// schema exists.
func OpenStore(path string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_fk=1")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open local store")
	}
	// One writer at a time keeps SQLITE_BUSY out of the drain path.
	conn.SetMaxOpenConns(1)

	store := &SQLiteStore{conn: conn}
	if err := store.bootstrap(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) bootstrap() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sales (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sale_id TEXT NOT NULL UNIQUE,
			status TEXT NOT NULL DEFAULT 'DRAFT',
			client_tx_id TEXT,
			company_id TEXT NOT NULL,
			outlet_id TEXT NOT NULL,
			cashier_id TEXT NOT NULL,
			sub_total TEXT NOT NULL DEFAULT '0',
			tax_total TEXT NOT NULL DEFAULT '0',
			grand_total TEXT NOT NULL DEFAULT '0',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			completed_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS sale_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sale_id TEXT NOT NULL REFERENCES sales(sale_id),
			item_id TEXT NOT NULL,
			name_snapshot TEXT NOT NULL,
			unit_price_snapshot TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			line_total TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS payments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sale_id TEXT NOT NULL REFERENCES sales(sale_id),
			method TEXT NOT NULL,
			amount TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS outbox_jobs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id TEXT NOT NULL UNIQUE,
			sale_id TEXT NOT NULL REFERENCES sales(sale_id),
			dedupe_key TEXT NOT NULL UNIQUE,
			status TEXT NOT NULL DEFAULT 'PENDING',
			attempts INTEGER NOT NULL DEFAULT 0,
			attempt_token INTEGER NOT NULL DEFAULT 0,
			next_attempt_at TIMESTAMP,
			last_error TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outbox_jobs_status ON outbox_jobs (status, next_attempt_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.conn.Exec(stmt); err != nil {
			return errors.Wrap(err, "failed to bootstrap local schema")
		}
	}
	return nil
}

func (s *SQLiteStore) CreateSale(ctx context.Context, sale *model.Sale) error {
	if sale.Status == "" {
		sale.Status = model.SaleStatusDraft
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	res, err := s.conn.ExecContext(ctx,
		`INSERT INTO sales(sale_id, status, company_id, outlet_id, cashier_id, created_at) VALUES (?,?,?,?,?,?)`,
		sale.SaleID, sale.Status, sale.CompanyID, sale.OutletID, sale.CashierID, sale.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to create sale draft")
	}
	sale.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) GetSale(ctx context.Context, saleID string) (*model.Sale, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT id, sale_id, status, client_tx_id, company_id, outlet_id, cashier_id, sub_total, tax_total, grand_total, created_at, completed_at
		 FROM sales WHERE sale_id = ?`, saleID)

	sale := &model.Sale{}
	var clientTxID sql.NullString
	var completedAt sql.NullTime
	err := row.Scan(&sale.ID, &sale.SaleID, &sale.Status, &clientTxID, &sale.CompanyID, &sale.OutletID, &sale.CashierID,
		&sale.SubTotal, &sale.TaxTotal, &sale.GrandTotal, &sale.CreatedAt, &completedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.Errorf("sale %s not found", saleID)
		}
		return nil, errors.Wrap(err, "failed to read sale")
	}
	sale.ClientTxID = clientTxID.String
	if completedAt.Valid {
		sale.CompletedAt = completedAt.Time
	}
	return sale, nil
}

func (s *SQLiteStore) GetSaleItems(ctx context.Context, saleID string) ([]model.SaleItem, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, sale_id, item_id, name_snapshot, unit_price_snapshot, quantity, line_total FROM sale_items WHERE sale_id = ? ORDER BY id ASC`, saleID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read sale items")
	}
	defer rows.Close()

	var items []model.SaleItem
	for rows.Next() {
		item := model.SaleItem{}
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ItemID, &item.NameSnapshot, &item.UnitPriceSnapshot, &item.Quantity, &item.LineTotal); err != nil {
			return nil, errors.Wrap(err, "failed to scan sale item")
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *SQLiteStore) GetPayments(ctx context.Context, saleID string) ([]model.Payment, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, sale_id, method, amount FROM payments WHERE sale_id = ? ORDER BY id ASC`, saleID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read payments")
	}
	defer rows.Close()

	var payments []model.Payment
	for rows.Next() {
		payment := model.Payment{}
		if err := rows.Scan(&payment.ID, &payment.SaleID, &payment.Method, &payment.Amount); err != nil {
			return nil, errors.Wrap(err, "failed to scan payment")
		}
		payments = append(payments, payment)
	}
	return payments, rows.Err()
}

func (s *SQLiteStore) CompleteSale(ctx context.Context, sale *model.Sale, items []model.SaleItem, payments []model.Payment, job *model.OutboxJob) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin completion transaction")
	}

	// The DRAFT guard lives in the WHERE clause, so a concurrent completion
	// that already committed makes this a zero-row update.
	res, err := tx.ExecContext(ctx,
		`UPDATE sales SET status = ?, client_tx_id = ?, sub_total = ?, tax_total = ?, grand_total = ?, completed_at = ?
		 WHERE sale_id = ? AND status = ?`,
		model.SaleStatusCompleted, sale.ClientTxID, sale.SubTotal, sale.TaxTotal, sale.GrandTotal, sale.CompletedAt,
		sale.SaleID, model.SaleStatusDraft)
	if err != nil {
		_ = tx.Rollback()
		return errors.Wrap(err, "failed to complete sale")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return errors.Wrap(err, "failed to complete sale")
	}
	if affected == 0 {
		_ = tx.Rollback()
		return ErrSaleNotDraft
	}

	for _, item := range items {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sale_items(sale_id, item_id, name_snapshot, unit_price_snapshot, quantity, line_total) VALUES (?,?,?,?,?,?)`,
			sale.SaleID, item.ItemID, item.NameSnapshot, item.UnitPriceSnapshot, item.Quantity, item.LineTotal); err != nil {
			_ = tx.Rollback()
			return errors.Wrap(err, "failed to persist item snapshot")
		}
	}
	for _, payment := range payments {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO payments(sale_id, method, amount) VALUES (?,?,?)`,
			sale.SaleID, payment.Method, payment.Amount); err != nil {
			_ = tx.Rollback()
			return errors.Wrap(err, "failed to persist payment")
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO outbox_jobs(job_id, sale_id, dedupe_key, status, created_at) VALUES (?,?,?,?,?)`,
		job.JobID, job.SaleID, job.DedupeKey, model.OutboxStatusPending, job.CreatedAt); err != nil {
		_ = tx.Rollback()
		return errors.Wrap(err, "failed to enqueue outbox job")
	}

	return errors.Wrap(tx.Commit(), "failed to commit sale completion")
}

func (s *SQLiteStore) GetOutboxJob(ctx context.Context, jobID string) (*model.OutboxJob, error) {
	return s.scanOutboxJob(s.conn.QueryRowContext(ctx, outboxSelect+` WHERE job_id = ?`, jobID))
}

const outboxSelect = `SELECT id, job_id, sale_id, dedupe_key, status, attempts, attempt_token, next_attempt_at, last_error, created_at FROM outbox_jobs`

func (s *SQLiteStore) scanOutboxJob(row *sql.Row) (*model.OutboxJob, error) {
	job := &model.OutboxJob{}
	var nextAttemptAt sql.NullTime
	var lastError sql.NullString
	err := row.Scan(&job.ID, &job.JobID, &job.SaleID, &job.DedupeKey, &job.Status, &job.Attempts, &job.AttemptToken, &nextAttemptAt, &lastError, &job.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.Wrap(sql.ErrNoRows, "outbox job not found")
		}
		return nil, errors.Wrap(err, "failed to read outbox job")
	}
	if nextAttemptAt.Valid {
		job.NextAttemptAt = &nextAttemptAt.Time
	}
	if lastError.Valid {
		job.LastError = &lastError.String
	}
	return job, nil
}

// DueOutboxJobs selects the next batch in creation order: PENDING jobs plus
// FAILED jobs whose backoff has elapsed. SENT jobs are never selected again.
func (s *SQLiteStore) DueOutboxJobs(ctx context.Context, now time.Time, limit int) ([]model.OutboxJob, error) {
	rows, err := s.conn.QueryContext(ctx,
		outboxSelect+` WHERE status = ? OR (status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)) ORDER BY created_at ASC, id ASC LIMIT ?`,
		model.OutboxStatusPending, model.OutboxStatusFailed, now, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to select due outbox jobs")
	}
	defer rows.Close()

	var jobs []model.OutboxJob
	for rows.Next() {
		job := model.OutboxJob{}
		var nextAttemptAt sql.NullTime
		var lastError sql.NullString
		if err := rows.Scan(&job.ID, &job.JobID, &job.SaleID, &job.DedupeKey, &job.Status, &job.Attempts, &job.AttemptToken, &nextAttemptAt, &lastError, &job.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan outbox job")
		}
		if nextAttemptAt.Valid {
			job.NextAttemptAt = &nextAttemptAt.Time
		}
		if lastError.Valid {
			job.LastError = &lastError.String
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *SQLiteStore) ReserveOutboxAttempt(ctx context.Context, jobID string) (*model.OutboxJob, error) {
	// Bump and read in one statement: a separate read after the update could
	// observe a competing reservation's token, handing the same lease to two
	// callers.
	row := s.conn.QueryRowContext(ctx,
		`UPDATE outbox_jobs SET attempts = attempts + 1, attempt_token = attempt_token + 1
		 WHERE job_id = ? AND status != ?
		 RETURNING id, job_id, sale_id, dedupe_key, status, attempts, attempt_token, next_attempt_at, last_error, created_at`,
		jobID, model.OutboxStatusSent)
	job, err := s.scanOutboxJob(row)
	if err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return nil, ErrOutboxJobTerminal
		}
		return nil, errors.Wrap(err, "failed to reserve outbox attempt")
	}
	return job, nil
}

func (s *SQLiteStore) FinalizeOutboxAttempt(ctx context.Context, jobID string, token int64, status string, nextAttemptAt *time.Time, lastError *string) (bool, error) {
	// Token check and SENT-is-terminal are one conditional write: a stale
	// attempt finishing late can neither downgrade SENT nor overwrite the
	// state owned by a newer token.
	res, err := s.conn.ExecContext(ctx,
		`UPDATE outbox_jobs SET status = ?, next_attempt_at = ?, last_error = ? WHERE job_id = ? AND attempt_token = ? AND status != ?`,
		status, nextAttemptAt, lastError, jobID, token, model.OutboxStatusSent)
	if err != nil {
		return false, errors.Wrap(err, "failed to finalize outbox attempt")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to finalize outbox attempt")
	}
	return affected == 1, nil
}

func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}
