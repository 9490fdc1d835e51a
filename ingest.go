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
	"context"
	"database/sql"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/tillsync/tillsync/database"
	"github.com/tillsync/tillsync/internal/apierror"
	"github.com/tillsync/tillsync/model"
)

var tracer = otel.Tracer("pos.ingestion")

const (
	ResultOK        = "OK"
	ResultDuplicate = "DUPLICATE"
	ResultError     = "ERROR"
)

// SyncResult is the per-document outcome of a push. DUPLICATE is a success
// path: the server already holds the transaction, nothing further is owed.
type SyncResult struct {
	ClientTxID string `json:"client_tx_id"`
	Result     string `json:"result"`
	Code       string `json:"code,omitempty"`
	Detail     string `json:"detail,omitempty"`
	DocID      int64  `json:"doc_id,omitempty"`
}

// IngestSalePayloads processes a batch of pushed sales. Each document is
// handled in exactly one storage transaction; documents are independent, so
// one failing never blocks the rest of the batch.
func (t *TillSync) IngestSalePayloads(ctx context.Context, payloads []model.SalePayload) []SyncResult {
	results := make([]SyncResult, 0, len(payloads))
	for i := range payloads {
		results = append(results, t.ingestOne(ctx, &payloads[i]))
	}
	return results
}

func (t *TillSync) ingestOne(ctx context.Context, payload *model.SalePayload) SyncResult {
	ctx, span := tracer.Start(ctx, "Ingesting pos transaction")
	defer span.End()

	if payload.PayloadHash == "" || payload.ComputeHash() != payload.PayloadHash {
		return errorResult(payload.ClientTxID, apierror.NewAPIError(apierror.ErrInvalidInput, "Payload hash missing or does not match content", nil))
	}

	tx, err := t.datasource.BeginTx(ctx)
	if err != nil {
		return errorResult(payload.ClientTxID, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err))
	}

	existing, err := t.datasource.GetPosTransactionByClientTxID(ctx, tx, payload.ClientTxID)
	if err == nil {
		rollback(tx)
		return dedupResult(existing, payload)
	}
	if apierror.CodeOf(err) != apierror.ErrNotFound {
		rollback(tx)
		return errorResult(payload.ClientTxID, err)
	}

	txn := payloadToPosTransaction(payload)
	docID, err := t.datasource.InsertPosTransaction(ctx, tx, txn, payload.Items, payload.Payments)
	if err != nil {
		rollback(tx)
		return t.classifyInsertFailure(ctx, payload, err)
	}

	mapping, err := t.datasource.GetAccountMapping(ctx, tx, payload.CompanyID, payload.OutletID)
	if err != nil {
		rollback(tx)
		return errorResult(payload.ClientTxID, err)
	}

	batch, err := buildJournalBatch(txn, payload.Payments, mapping)
	if err != nil {
		rollback(tx)
		return errorResult(payload.ClientTxID, err)
	}

	// Posting happens inside the same transaction as the document insert:
	// "posted without journal" and "document without journal" are both
	// unreachable states.
	if err := t.datasource.InsertJournalBatch(ctx, tx, batch); err != nil {
		rollback(tx)
		return t.classifyInsertFailure(ctx, payload, err)
	}

	if err := tx.Commit(); err != nil {
		return t.classifyInsertFailure(ctx, payload, err)
	}

	t.notifySaleSynced(ctx, txn)

	logrus.Infof("ingested pos transaction %s as doc %d with journal batch %s", payload.ClientTxID, docID, batch.BatchID)
	return SyncResult{ClientTxID: payload.ClientTxID, Result: ResultOK, DocID: docID}
}

// classifyInsertFailure routes a failed insert or commit. A unique violation
// means a concurrent identical push won the race: re-read the committed row
// and answer through the dedup path, never with a second insert. Deadlocks
// and lock timeouts are reported retryable so the client outbox pushes the
// whole document again later.
func (t *TillSync) classifyInsertFailure(ctx context.Context, payload *model.SalePayload, err error) SyncResult {
	if database.IsUniqueViolation(err) {
		existing, readErr := t.datasource.GetPosTransactionByClientTxID(ctx, nil, payload.ClientTxID)
		if readErr == nil {
			return dedupResult(existing, payload)
		}
		// The winner has not committed yet; tell the client to come back.
		return SyncResult{ClientTxID: payload.ClientTxID, Result: ResultError, Code: string(apierror.ErrRetryable), Detail: "concurrent push in progress"}
	}
	if database.IsRetryableTxError(err) {
		return SyncResult{ClientTxID: payload.ClientTxID, Result: ResultError, Code: string(apierror.ErrRetryable), Detail: "storage contention, retry later"}
	}
	return errorResult(payload.ClientTxID, err)
}

// dedupResult answers a push whose client_tx_id is already recorded: same
// content is a DUPLICATE, different content is an idempotency conflict.
func dedupResult(existing *model.PosTransaction, payload *model.SalePayload) SyncResult {
	if existing.PayloadHash == payload.PayloadHash {
		return SyncResult{ClientTxID: payload.ClientTxID, Result: ResultDuplicate, DocID: existing.ID}
	}
	return SyncResult{
		ClientTxID: payload.ClientTxID,
		Result:     ResultError,
		Code:       string(apierror.ErrIdempotencyConflict),
		Detail:     "client_tx_id already recorded with different content",
	}
}

func errorResult(clientTxID string, err error) SyncResult {
	logrus.Errorf("ingest error for %s: %v", clientTxID, err)
	res := SyncResult{ClientTxID: clientTxID, Result: ResultError, Code: string(apierror.CodeOf(err))}
	if apiErr, ok := err.(apierror.APIError); ok {
		res.Detail = apiErr.Message
	}
	return res
}

func payloadToPosTransaction(payload *model.SalePayload) *model.PosTransaction {
	return &model.PosTransaction{
		ClientTxID:  payload.ClientTxID,
		SaleRef:     payload.SaleRef,
		CompanyID:   payload.CompanyID,
		OutletID:    payload.OutletID,
		CashierID:   payload.CashierID,
		SubTotal:    payload.SubTotal,
		TaxTotal:    payload.TaxTotal,
		GrandTotal:  payload.GrandTotal,
		PayloadHash: payload.PayloadHash,
		HashVersion: payload.HashVersion,
		CompletedAt: payload.CompletedAt,
	}
}

func rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
		logrus.Errorf("rollback error: %v", err)
	}
}

// notifySaleSynced enqueues the post-commit event. Failures are logged and
// never affect the already-committed transaction.
func (t *TillSync) notifySaleSynced(ctx context.Context, txn *model.PosTransaction) {
	if t.queue == nil {
		return
	}
	if err := t.queue.EnqueueSaleSynced(ctx, txn); err != nil {
		logrus.Errorf("failed to enqueue sale.synced event for %s: %v", txn.ClientTxID, err)
	}
}
