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

	"github.com/tillsync/tillsync/internal/apierror"
	"github.com/tillsync/tillsync/model"
)

// UpsertAccountMapping creates or replaces the chart-of-accounts mapping for
// one outlet. Every account leg used by posting must be present; an outlet
// with a partial mapping would make sales unpostable in a harder-to-diagnose
// way than rejecting the mapping here.
func (t *TillSync) UpsertAccountMapping(ctx context.Context, mapping *model.AccountMapping) error {
	if mapping.CompanyID == "" || mapping.OutletID == "" {
		return apierror.NewAPIError(apierror.ErrInvalidInput, "Company and outlet are required", nil)
	}
	if mapping.CashAccount == "" || mapping.BankAccount == "" || mapping.RevenueAccount == "" || mapping.TaxAccount == "" || mapping.ReceivableAccount == "" {
		return apierror.NewAPIError(apierror.ErrInvalidInput, "All mapped accounts are required", nil)
	}
	return t.datasource.UpsertAccountMapping(ctx, mapping)
}

// GetAccountMapping returns the mapping for an outlet.
func (t *TillSync) GetAccountMapping(ctx context.Context, companyID, outletID string) (*model.AccountMapping, error) {
	return t.datasource.GetAccountMapping(ctx, nil, companyID, outletID)
}

// GetPosTransaction returns the accepted transaction for a client_tx_id.
func (t *TillSync) GetPosTransaction(ctx context.Context, clientTxID string) (*model.PosTransaction, error) {
	return t.datasource.GetPosTransactionByClientTxID(ctx, nil, clientTxID)
}

// GetJournalBatch returns the journal batch posted for an accepted document.
func (t *TillSync) GetJournalBatch(ctx context.Context, companyID string, docID int64) (*model.JournalBatch, error) {
	return t.datasource.GetJournalBatchByDoc(ctx, companyID, model.DocTypePosSale, docID)
}
