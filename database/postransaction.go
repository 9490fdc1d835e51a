package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"

	"github.com/tillsync/tillsync/internal/apierror"
	"github.com/tillsync/tillsync/model"
)

// Postgres error codes the ingestion path cares about.
const (
	pqUniqueViolation      = "23505"
	pqDeadlockDetected     = "40P01"
	pqSerializationFailure = "40001"
	pqLockNotAvailable     = "55P03"
)

// IsUniqueViolation reports whether err is a postgres unique-constraint
// violation. Two identical pushes racing on client_tx_id surface here: the
// loser is routed back through the dedup path, never to a second insert.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pqUniqueViolation
	}
	return false
}

// IsRetryableTxError reports whether err is a deadlock, serialization, or
// lock-timeout failure. These are classified retryable at the transport layer
// so the client outbox retries the whole push later.
func IsRetryableTxError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqDeadlockDetected, pqSerializationFailure, pqLockNotAvailable:
			return true
		}
	}
	return false
}

// GetPosTransactionByClientTxID fetches the server mirror of a pushed sale by
// its client-generated identity. When tx is non-nil the read happens inside
// that transaction.
func (d Datasource) GetPosTransactionByClientTxID(ctx context.Context, tx *sql.Tx, clientTxID string) (*model.PosTransaction, error) {
	query := `
		SELECT id, client_tx_id, sale_ref, company_id, outlet_id, cashier_id, sub_total, tax_total, grand_total, payload_hash, hash_version, completed_at, created_at
		FROM pos_transactions
		WHERE client_tx_id = $1
	`

	var row *sql.Row
	if tx != nil {
		row = tx.QueryRowContext(ctx, query, clientTxID)
	} else {
		row = d.Conn.QueryRowContext(ctx, query, clientTxID)
	}

	txn := &model.PosTransaction{}
	err := row.Scan(&txn.ID, &txn.ClientTxID, &txn.SaleRef, &txn.CompanyID, &txn.OutletID, &txn.CashierID, &txn.SubTotal, &txn.TaxTotal, &txn.GrandTotal, &txn.PayloadHash, &txn.HashVersion, &txn.CompletedAt, &txn.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Pos transaction with client_tx_id '%s' not found", clientTxID), nil)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve pos transaction", err)
	}

	return txn, nil
}

// InsertPosTransaction writes the accepted sale and its item and payment rows
// inside the supplied transaction and returns the server-assigned id.
// A unique violation on client_tx_id is passed through untranslated so the
// caller can route the race loser to dedup handling.
func (d Datasource) InsertPosTransaction(ctx context.Context, tx *sql.Tx, txn *model.PosTransaction, items []model.SalePayloadItem, payments []model.SalePayloadPayment) (int64, error) {
	ctx, span := otel.Tracer("pos.ingestion").Start(ctx, "Saving pos transaction to db")
	defer span.End()

	var id int64
	err := tx.QueryRowContext(ctx,
		`INSERT INTO pos_transactions(client_tx_id, sale_ref, company_id, outlet_id, cashier_id, sub_total, tax_total, grand_total, payload_hash, hash_version, completed_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		 RETURNING id`,
		txn.ClientTxID, txn.SaleRef, txn.CompanyID, txn.OutletID, txn.CashierID, txn.SubTotal, txn.TaxTotal, txn.GrandTotal, txn.PayloadHash, txn.HashVersion, txn.CompletedAt,
	).Scan(&id)
	if err != nil {
		if IsUniqueViolation(err) || IsRetryableTxError(err) {
			return 0, err
		}
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record pos transaction", err)
	}
	txn.ID = id

	for _, item := range items {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO pos_transaction_items(pos_transaction_id, item_id, name_snapshot, unit_price, quantity, line_total)
			 VALUES ($1,$2,$3,$4,$5,$6)`,
			id, item.ItemID, item.Name, item.UnitPrice, item.Quantity, item.LineTotal,
		)
		if err != nil {
			return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record pos transaction item", err)
		}
	}

	for _, payment := range payments {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO pos_transaction_payments(pos_transaction_id, method, amount)
			 VALUES ($1,$2,$3)`,
			id, payment.Method, payment.Amount,
		)
		if err != nil {
			return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record pos transaction payment", err)
		}
	}

	return id, nil
}
