package database

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/tillsync/tillsync/config"
)

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn *sql.DB
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

// ConnectDB opens the postgres connection, waits for it to become reachable,
// and bootstraps the schema.
func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}

	// The database container may still be starting; retry the ping with
	// exponential backoff before giving up.
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 30 * time.Second
	err = backoff.Retry(func() error {
		return db.Ping()
	}, policy)
	if err != nil {
		logrus.Errorf("database connection error: %v", err)
		return nil, err
	}

	err = createPosTransactionTables(db)
	if err != nil {
		return nil, err
	}
	err = createJournalTables(db)
	if err != nil {
		return nil, err
	}
	err = createAccountMappingTable(db)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// BeginTx starts one storage transaction. Every push is handled in exactly
// one of these per source document.
func (d Datasource) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return d.Conn.BeginTx(ctx, nil)
}

// createPosTransactionTables creates the PostgreSQL tables mirroring accepted sales.
func createPosTransactionTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS pos_transactions (
			id BIGSERIAL PRIMARY KEY,
			client_tx_id TEXT NOT NULL UNIQUE,
			sale_ref TEXT NOT NULL,
			company_id TEXT NOT NULL,
			outlet_id TEXT NOT NULL,
			cashier_id TEXT NOT NULL,
			sub_total NUMERIC NOT NULL,
			tax_total NUMERIC NOT NULL,
			grand_total NUMERIC NOT NULL,
			payload_hash TEXT NOT NULL,
			hash_version TEXT NOT NULL,
			completed_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS pos_transaction_items (
			id BIGSERIAL PRIMARY KEY,
			pos_transaction_id BIGINT NOT NULL REFERENCES pos_transactions(id),
			item_id TEXT NOT NULL,
			name_snapshot TEXT NOT NULL,
			unit_price NUMERIC NOT NULL,
			quantity BIGINT NOT NULL,
			line_total NUMERIC NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS pos_transaction_payments (
			id BIGSERIAL PRIMARY KEY,
			pos_transaction_id BIGINT NOT NULL REFERENCES pos_transactions(id),
			method TEXT NOT NULL,
			amount NUMERIC NOT NULL
		)
	`)
	return err
}

// createJournalTables creates the journal batch and line tables. Batch
// identity is unique per source document; every line is one-sided positive by
// check constraint.
func createJournalTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS journal_batches (
			id BIGSERIAL PRIMARY KEY,
			batch_id TEXT NOT NULL UNIQUE,
			company_id TEXT NOT NULL,
			doc_type TEXT NOT NULL,
			doc_id BIGINT NOT NULL,
			memo TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			UNIQUE (company_id, doc_type, doc_id)
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS journal_lines (
			id BIGSERIAL PRIMARY KEY,
			batch_id TEXT NOT NULL REFERENCES journal_batches(batch_id),
			account_code TEXT NOT NULL,
			debit NUMERIC NOT NULL DEFAULT 0,
			credit NUMERIC NOT NULL DEFAULT 0,
			CHECK ((debit > 0 AND credit = 0) OR (credit > 0 AND debit = 0))
		)
	`)
	return err
}

// createAccountMappingTable creates the outlet-scoped chart-of-accounts mapping table.
func createAccountMappingTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS account_mappings (
			id BIGSERIAL PRIMARY KEY,
			company_id TEXT NOT NULL,
			outlet_id TEXT NOT NULL,
			cash_account TEXT NOT NULL,
			bank_account TEXT NOT NULL,
			revenue_account TEXT NOT NULL,
			tax_account TEXT NOT NULL,
			receivable_account TEXT NOT NULL,
			UNIQUE (company_id, outlet_id)
		)
	`)
	return err
}
