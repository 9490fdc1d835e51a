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

package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tillsync/tillsync"
	"github.com/tillsync/tillsync/config"
	"github.com/tillsync/tillsync/database"
	"github.com/tillsync/tillsync/model"
)

type TestRequest struct {
	Payload  io.Reader
	Router   *gin.Engine
	Response interface{}
	Method   string
	Route    string
	Header   map[string]string
}

func SetUpTestRequest(s TestRequest) (*httptest.ResponseRecorder, error) {
	req := httptest.NewRequest(s.Method, s.Route, s.Payload)
	for key, value := range s.Header {
		req.Header.Set(key, value)
	}
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	s.Router.ServeHTTP(resp, req)

	if s.Response != nil {
		if err := json.NewDecoder(resp.Body).Decode(s.Response); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func setupRouter(t *testing.T) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()
	config.MockConfig(&config.Configuration{})

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	service, err := tillsync.New(database.Datasource{Conn: db})
	require.NoError(t, err)

	return NewAPI(service).Router(), mock
}

func syncRequestBody(t *testing.T, payload model.SalePayload) io.Reader {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{"transactions": []model.SalePayload{payload}})
	require.NoError(t, err)
	return bytes.NewReader(body)
}

func sealedPayload() model.SalePayload {
	payload := model.SalePayload{
		ClientTxID: "ptx_api_1",
		SaleRef:    "sal_api_1",
		CompanyID:  "cmp_1",
		OutletID:   "out_1",
		CashierID:  "csh_1",
		SubTotal:   decimal.NewFromInt(100),
		TaxTotal:   decimal.NewFromInt(8),
		GrandTotal: decimal.NewFromInt(108),
		Items: []model.SalePayloadItem{
			{ItemID: "itm_1", Name: "Espresso", UnitPrice: decimal.NewFromInt(25), Quantity: 4, LineTotal: decimal.NewFromInt(100)},
		},
		Payments: []model.SalePayloadPayment{
			{Method: model.PaymentMethodCash, Amount: decimal.NewFromInt(108)},
		},
		CompletedAt: time.Unix(1710000000, 0).UTC(),
	}
	payload.Seal()
	return payload
}

func TestSyncPosTransactionsAccepted(t *testing.T) {
	router, mock := setupRouter(t)
	payload := sealedPayload()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, client_tx_id, sale_ref").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("INSERT INTO pos_transactions").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectExec("INSERT INTO pos_transaction_items").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO pos_transaction_payments").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT id, company_id, outlet_id, cash_account").
		WillReturnRows(sqlmock.NewRows([]string{"id", "company_id", "outlet_id", "cash_account", "bank_account", "revenue_account", "tax_account", "receivable_account"}).
			AddRow(1, "cmp_1", "out_1", "1000", "1010", "4000", "2100", "1200"))
	mock.ExpectExec("INSERT INTO journal_batches").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO journal_lines").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO journal_lines").WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec("INSERT INTO journal_lines").WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectCommit()

	var response struct {
		Results []tillsync.SyncResult `json:"results"`
	}
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  syncRequestBody(t, payload),
		Router:   router,
		Response: &response,
		Method:   http.MethodPost,
		Route:    "/sync/pos-transactions",
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.Code)
	require.Len(t, response.Results, 1)
	assert.Equal(t, tillsync.ResultOK, response.Results[0].Result)
	assert.Equal(t, int64(7), response.Results[0].DocID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncPosTransactionsReplayIsDuplicate(t *testing.T) {
	router, mock := setupRouter(t)
	payload := sealedPayload()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, client_tx_id, sale_ref").
		WillReturnRows(sqlmock.NewRows([]string{"id", "client_tx_id", "sale_ref", "company_id", "outlet_id", "cashier_id", "sub_total", "tax_total", "grand_total", "payload_hash", "hash_version", "completed_at", "created_at"}).
			AddRow(7, payload.ClientTxID, payload.SaleRef, payload.CompanyID, payload.OutletID, payload.CashierID, "100", "8", "108", payload.PayloadHash, payload.HashVersion, payload.CompletedAt, time.Now()))
	mock.ExpectRollback()

	var response struct {
		Results []tillsync.SyncResult `json:"results"`
	}
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  syncRequestBody(t, payload),
		Router:   router,
		Response: &response,
		Method:   http.MethodPost,
		Route:    "/sync/pos-transactions",
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.Code)
	require.Len(t, response.Results, 1)
	assert.Equal(t, tillsync.ResultDuplicate, response.Results[0].Result)
	assert.Equal(t, int64(7), response.Results[0].DocID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncPosTransactionsRejectsMissingFields(t *testing.T) {
	router, _ := setupRouter(t)
	payload := sealedPayload()
	payload.ClientTxID = ""

	resp, err := SetUpTestRequest(TestRequest{
		Payload: syncRequestBody(t, payload),
		Router:  router,
		Method:  http.MethodPost,
		Route:   "/sync/pos-transactions",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestSyncPosTransactionsRejectsEmptyBatch(t *testing.T) {
	router, _ := setupRouter(t)

	resp, err := SetUpTestRequest(TestRequest{
		Payload: bytes.NewReader([]byte(`{"transactions": []}`)),
		Router:  router,
		Method:  http.MethodPost,
		Route:   "/sync/pos-transactions",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestGetPosTransactionNotFound(t *testing.T) {
	router, mock := setupRouter(t)

	mock.ExpectQuery("SELECT id, client_tx_id, sale_ref").WillReturnError(sql.ErrNoRows)

	resp, err := SetUpTestRequest(TestRequest{
		Router: router,
		Method: http.MethodGet,
		Route:  "/pos-transactions/ptx_missing",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestUpsertAccountMapping(t *testing.T) {
	router, mock := setupRouter(t)

	mock.ExpectExec("INSERT INTO account_mappings").WillReturnResult(sqlmock.NewResult(1, 1))

	body := `{"company_id":"cmp_1","outlet_id":"out_1","cash_account":"1000","bank_account":"1010","revenue_account":"4000","tax_account":"2100","receivable_account":"1200"}`
	resp, err := SetUpTestRequest(TestRequest{
		Payload: bytes.NewReader([]byte(body)),
		Router:  router,
		Method:  http.MethodPost,
		Route:   "/account-mappings",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertAccountMappingRejectsPartial(t *testing.T) {
	router, _ := setupRouter(t)

	body := `{"company_id":"cmp_1","outlet_id":"out_1","cash_account":"1000"}`
	resp, err := SetUpTestRequest(TestRequest{
		Payload: bytes.NewReader([]byte(body)),
		Router:  router,
		Method:  http.MethodPost,
		Route:   "/account-mappings",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
