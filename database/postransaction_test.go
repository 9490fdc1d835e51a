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

package database

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tillsync/tillsync/internal/apierror"
	"github.com/tillsync/tillsync/model"
)

func newMockDatasource(t *testing.T) (Datasource, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return Datasource{Conn: db}, mock
}

func testTransaction() *model.PosTransaction {
	return &model.PosTransaction{
		ClientTxID:  "ptx_db_1",
		SaleRef:     "sal_db_1",
		CompanyID:   "cmp_1",
		OutletID:    "out_1",
		CashierID:   "csh_1",
		SubTotal:    decimal.NewFromInt(100),
		TaxTotal:    decimal.NewFromInt(8),
		GrandTotal:  decimal.NewFromInt(108),
		PayloadHash: "v1:deadbeef",
		HashVersion: "v1",
		CompletedAt: time.Unix(1710000000, 0).UTC(),
	}
}

func TestInsertPosTransactionReturnsServerID(t *testing.T) {
	ds, mock := newMockDatasource(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO pos_transactions").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))
	mock.ExpectExec("INSERT INTO pos_transaction_items").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO pos_transaction_payments").WillReturnResult(sqlmock.NewResult(1, 1))

	tx, err := ds.BeginTx(ctx)
	require.NoError(t, err)

	txn := testTransaction()
	items := []model.SalePayloadItem{{ItemID: "itm_1", Name: "Espresso", UnitPrice: decimal.NewFromInt(25), Quantity: 4, LineTotal: decimal.NewFromInt(100)}}
	payments := []model.SalePayloadPayment{{Method: model.PaymentMethodCash, Amount: decimal.NewFromInt(108)}}

	id, err := ds.InsertPosTransaction(ctx, tx, txn, items, payments)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, int64(42), txn.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertPosTransactionPassesThroughUniqueViolation(t *testing.T) {
	ds, mock := newMockDatasource(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO pos_transactions").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "pos_transactions_client_tx_id_key"})

	tx, err := ds.BeginTx(ctx)
	require.NoError(t, err)

	_, err = ds.InsertPosTransaction(ctx, tx, testTransaction(), nil, nil)
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
	assert.False(t, IsRetryableTxError(err))
}

func TestInsertPosTransactionPassesThroughDeadlock(t *testing.T) {
	ds, mock := newMockDatasource(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO pos_transactions").
		WillReturnError(&pq.Error{Code: "40P01"})

	tx, err := ds.BeginTx(ctx)
	require.NoError(t, err)

	_, err = ds.InsertPosTransaction(ctx, tx, testTransaction(), nil, nil)
	require.Error(t, err)
	assert.True(t, IsRetryableTxError(err))
}

func TestGetPosTransactionNotFound(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectQuery("SELECT id, client_tx_id, sale_ref").WillReturnError(sql.ErrNoRows)

	_, err := ds.GetPosTransactionByClientTxID(context.Background(), nil, "ptx_missing")
	require.Error(t, err)
	assert.Equal(t, apierror.ErrNotFound, apierror.CodeOf(err))
}

func TestGetAccountMappingMissing(t *testing.T) {
	ds, mock := newMockDatasource(t)

	mock.ExpectQuery("SELECT id, company_id, outlet_id, cash_account").WillReturnError(sql.ErrNoRows)

	_, err := ds.GetAccountMapping(context.Background(), nil, "cmp_1", "out_unmapped")
	require.Error(t, err)
	assert.Equal(t, apierror.ErrMappingMissing, apierror.CodeOf(err))
}

func TestInsertJournalBatchPassesThroughBatchIdentityViolation(t *testing.T) {
	ds, mock := newMockDatasource(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO journal_batches").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "journal_batches_company_id_doc_type_doc_id_key"})

	tx, err := ds.BeginTx(ctx)
	require.NoError(t, err)

	batch := &model.JournalBatch{
		BatchID:   "jba_1",
		CompanyID: "cmp_1",
		DocType:   model.DocTypePosSale,
		DocID:     42,
		Lines: []model.JournalLine{
			model.DebitLine("1000", decimal.NewFromInt(108)),
			model.CreditLine("4000", decimal.NewFromInt(108)),
		},
	}
	err = ds.InsertJournalBatch(ctx, tx, batch)
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
}

func TestInsertJournalBatchWritesEveryLine(t *testing.T) {
	ds, mock := newMockDatasource(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO journal_batches").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO journal_lines").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO journal_lines").WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec("INSERT INTO journal_lines").WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectCommit()

	tx, err := ds.BeginTx(ctx)
	require.NoError(t, err)

	batch := &model.JournalBatch{
		BatchID:   "jba_2",
		CompanyID: "cmp_1",
		DocType:   model.DocTypePosSale,
		DocID:     43,
		Lines: []model.JournalLine{
			model.DebitLine("1000", decimal.NewFromInt(108)),
			model.CreditLine("4000", decimal.NewFromInt(100)),
			model.CreditLine("2100", decimal.NewFromInt(8)),
		},
	}
	require.NoError(t, ds.InsertJournalBatch(ctx, tx, batch))
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestErrorClassificationIgnoresOtherErrors(t *testing.T) {
	assert.False(t, IsUniqueViolation(sql.ErrConnDone))
	assert.False(t, IsRetryableTxError(sql.ErrConnDone))
	assert.False(t, IsUniqueViolation(nil))
	assert.True(t, IsRetryableTxError(&pq.Error{Code: "55P03"}))
	assert.True(t, IsRetryableTxError(&pq.Error{Code: "40001"}))
}
