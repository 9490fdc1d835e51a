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

package tillsync

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tillsync/tillsync/internal/apierror"
	"github.com/tillsync/tillsync/model"
)

func testMapping() *model.AccountMapping {
	return &model.AccountMapping{
		CompanyID:         "cmp_1",
		OutletID:          "out_1",
		CashAccount:       "1000",
		BankAccount:       "1010",
		RevenueAccount:    "4000",
		TaxAccount:        "2100",
		ReceivableAccount: "1200",
	}
}

func testPosTransaction() *model.PosTransaction {
	return &model.PosTransaction{
		ID:         7,
		ClientTxID: "ptx_1",
		SaleRef:    "sale_1",
		CompanyID:  "cmp_1",
		OutletID:   "out_1",
		SubTotal:   decimal.NewFromInt(100),
		TaxTotal:   decimal.NewFromInt(8),
		GrandTotal: decimal.NewFromInt(108),
	}
}

func TestBuildJournalBatchCashSale(t *testing.T) {
	txn := testPosTransaction()
	payments := []model.SalePayloadPayment{
		{Method: model.PaymentMethodCash, Amount: decimal.NewFromInt(108)},
	}

	batch, err := buildJournalBatch(txn, payments, testMapping())
	require.NoError(t, err)

	assert.Equal(t, model.DocTypePosSale, batch.DocType)
	assert.Equal(t, int64(7), batch.DocID)
	assert.Equal(t, "cmp_1", batch.CompanyID)
	require.Len(t, batch.Lines, 3)
	assert.Equal(t, "1000", batch.Lines[0].AccountCode)
	assert.True(t, batch.Lines[0].Debit.Equal(decimal.NewFromInt(108)))
	assert.Equal(t, "4000", batch.Lines[1].AccountCode)
	assert.True(t, batch.Lines[1].Credit.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, "2100", batch.Lines[2].AccountCode)
	assert.True(t, batch.Lines[2].Credit.Equal(decimal.NewFromInt(8)))
	assert.NoError(t, batch.Validate())
}

func TestBuildJournalBatchSplitTenderWithReceivable(t *testing.T) {
	txn := testPosTransaction()
	payments := []model.SalePayloadPayment{
		{Method: model.PaymentMethodCash, Amount: decimal.NewFromInt(50)},
		{Method: model.PaymentMethodBank, Amount: decimal.NewFromInt(30)},
	}

	batch, err := buildJournalBatch(txn, payments, testMapping())
	require.NoError(t, err)

	// cash 50 + bank 30 + receivable 28 against revenue 100 + tax 8
	require.Len(t, batch.Lines, 5)
	assert.Equal(t, "1200", batch.Lines[2].AccountCode)
	assert.True(t, batch.Lines[2].Debit.Equal(decimal.NewFromInt(28)))
	assert.NoError(t, batch.Validate())
}

func TestBuildJournalBatchNoTax(t *testing.T) {
	txn := testPosTransaction()
	txn.SubTotal = decimal.NewFromInt(108)
	txn.TaxTotal = decimal.Zero
	payments := []model.SalePayloadPayment{
		{Method: model.PaymentMethodBank, Amount: decimal.NewFromInt(108)},
	}

	batch, err := buildJournalBatch(txn, payments, testMapping())
	require.NoError(t, err)
	require.Len(t, batch.Lines, 2)
	assert.Equal(t, "1010", batch.Lines[0].AccountCode)
}

func TestBuildJournalBatchUnknownMethod(t *testing.T) {
	txn := testPosTransaction()
	payments := []model.SalePayloadPayment{
		{Method: "CRYPTO", Amount: decimal.NewFromInt(108)},
	}

	_, err := buildJournalBatch(txn, payments, testMapping())
	require.Error(t, err)
	assert.Equal(t, apierror.ErrInvalidInput, apierror.CodeOf(err))
}

func TestBuildJournalBatchOverTender(t *testing.T) {
	txn := testPosTransaction()
	payments := []model.SalePayloadPayment{
		{Method: model.PaymentMethodCash, Amount: decimal.NewFromInt(200)},
	}

	_, err := buildJournalBatch(txn, payments, testMapping())
	require.Error(t, err)
	assert.Equal(t, apierror.ErrInvalidInput, apierror.CodeOf(err))
}

func TestBuildJournalBatchUnsavedDocument(t *testing.T) {
	txn := testPosTransaction()
	txn.ID = 0

	_, err := buildJournalBatch(txn, nil, testMapping())
	assert.Error(t, err)
}
