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
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	model2 "github.com/tillsync/tillsync/api/model"
	"github.com/tillsync/tillsync/internal/apierror"
	"github.com/tillsync/tillsync/model"
)

// SyncPosTransactions handles a push of completed sales from a client
// device. Each transaction is ingested independently; the response always
// carries one result per pushed transaction, so a partially failing batch
// still tells the client exactly which jobs it may mark SENT.
//
// Responses:
// - 400 Bad Request: If the envelope or any transaction fails validation.
// - 200 OK: Per-transaction results (OK, DUPLICATE, or ERROR with a code).
func (a Api) SyncPosTransactions(c *gin.Context) {
	var req model2.SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	if err := req.ValidateSyncRequest(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	payloads := make([]model.SalePayload, 0, len(req.Transactions))
	for i := range req.Transactions {
		if err := req.Transactions[i].ValidateSyncTransaction(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
			return
		}
		payloads = append(payloads, req.Transactions[i].ToSalePayload())
	}

	results := a.service.IngestSalePayloads(c.Request.Context(), payloads)
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// GetPosTransaction returns the accepted transaction for a client_tx_id.
func (a Api) GetPosTransaction(c *gin.Context) {
	clientTxID, passed := c.Params.Get("client_tx_id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "client_tx_id is required. pass client_tx_id in the route /pos-transactions/:client_tx_id"})
		return
	}

	txn, err := a.service.GetPosTransaction(c.Request.Context(), clientTxID)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, txn)
}

// GetJournalBatch returns the journal batch posted for an accepted
// transaction, lines included.
func (a Api) GetJournalBatch(c *gin.Context) {
	clientTxID, passed := c.Params.Get("client_tx_id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "client_tx_id is required. pass client_tx_id in the route /pos-transactions/:client_tx_id/journal"})
		return
	}

	txn, err := a.service.GetPosTransaction(c.Request.Context(), clientTxID)
	if err != nil {
		a.respondError(c, err)
		return
	}

	batch, err := a.service.GetJournalBatch(c.Request.Context(), txn.CompanyID, txn.ID)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

// UpsertAccountMapping configures the chart-of-accounts mapping for an
// outlet.
func (a Api) UpsertAccountMapping(c *gin.Context) {
	var req model2.UpsertAccountMapping
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	if err := req.ValidateUpsertAccountMapping(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	mapping := req.ToAccountMapping()
	if err := a.service.UpsertAccountMapping(c.Request.Context(), mapping); err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, mapping)
}

// GetAccountMapping returns the mapping for company_id + outlet_id query
// parameters.
func (a Api) GetAccountMapping(c *gin.Context) {
	companyID := c.Query("company_id")
	outletID := c.Query("outlet_id")
	if companyID == "" || outletID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "company_id and outlet_id query parameters are required"})
		return
	}

	mapping, err := a.service.GetAccountMapping(c.Request.Context(), companyID, outletID)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, mapping)
}

func (a Api) respondError(c *gin.Context, err error) {
	if apiErr, ok := err.(apierror.APIError); ok {
		c.JSON(apierror.MapErrorToHTTPStatus(apiErr), gin.H{"error": apiErr.Message, "code": apiErr.Code})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
