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
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tillsync/tillsync/internal/apierror"
	"github.com/tillsync/tillsync/model"
)

// buildJournalBatch maps one accepted pos transaction to a balanced
// double-entry batch:
//
//	debit  cash/bank (one leg per tender method)
//	debit  receivable (any unpaid remainder)
//	credit revenue (net of tax)
//	credit tax (when tax was charged)
//
// Every leg's account comes from the outlet-scoped mapping; the caller aborts
// the whole transaction on any error from here, so a line is never silently
// skipped.
func buildJournalBatch(txn *model.PosTransaction, payments []model.SalePayloadPayment, mapping *model.AccountMapping) (*model.JournalBatch, error) {
	if txn.ID == 0 {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Cannot post a journal for an unsaved pos transaction", nil)
	}

	batch := &model.JournalBatch{
		BatchID:   model.GenerateUUIDWithSuffix("jba"),
		CompanyID: txn.CompanyID,
		DocType:   model.DocTypePosSale,
		DocID:     txn.ID,
		Memo:      fmt.Sprintf("POS sale %s", txn.SaleRef),
	}

	tendered := decimal.Zero
	for _, payment := range payments {
		if !payment.Amount.IsPositive() {
			return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("Payment amount must be positive, got %s", payment.Amount.String()), nil)
		}

		var account string
		switch payment.Method {
		case model.PaymentMethodCash:
			account = mapping.CashAccount
		case model.PaymentMethodBank:
			account = mapping.BankAccount
		default:
			return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("Unknown payment method '%s'", payment.Method), nil)
		}

		batch.Lines = append(batch.Lines, model.DebitLine(account, payment.Amount))
		tendered = tendered.Add(payment.Amount)
	}

	if tendered.GreaterThan(txn.GrandTotal) {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("Payments %s exceed grand total %s", tendered.String(), txn.GrandTotal.String()), nil)
	}

	// Whatever the customer has not tendered is owed to the company.
	remainder := txn.GrandTotal.Sub(tendered)
	if remainder.IsPositive() {
		batch.Lines = append(batch.Lines, model.DebitLine(mapping.ReceivableAccount, remainder))
	}

	if !txn.SubTotal.IsPositive() {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Sale subtotal must be positive", nil)
	}
	batch.Lines = append(batch.Lines, model.CreditLine(mapping.RevenueAccount, txn.SubTotal))

	if txn.TaxTotal.IsPositive() {
		batch.Lines = append(batch.Lines, model.CreditLine(mapping.TaxAccount, txn.TaxTotal))
	} else if txn.TaxTotal.IsNegative() {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Tax total cannot be negative", nil)
	}

	// In-memory half of the balance invariant; the storage constraint on
	// journal_lines is the second half.
	if err := batch.Validate(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrUnbalanced, "Journal batch failed balance validation", err.Error())
	}

	return batch, nil
}
