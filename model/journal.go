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

package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DocTypePosSale is the doc_type a journal batch generated from a
// point-of-sale transaction carries.
const DocTypePosSale = "pos_sale"

// JournalBatch is a set of balanced double-entry lines posted atomically for
// one source document. Its identity is (company_id, doc_type, doc_id) where
// doc_id is the server-assigned id of the source row, unique at the storage
// layer.
type JournalBatch struct {
	ID        int64         `json:"-"`
	BatchID   string        `json:"batch_id"`
	CompanyID string        `json:"company_id"`
	DocType   string        `json:"doc_type"`
	DocID     int64         `json:"doc_id"`
	Memo      string        `json:"memo"`
	Lines     []JournalLine `json:"lines"`
	CreatedAt time.Time     `json:"created_at"`
}

// JournalLine is one side of a double entry. Exactly one of Debit and Credit
// is strictly positive, never both and never neither.
type JournalLine struct {
	ID          int64           `json:"-"`
	BatchID     string          `json:"batch_id"`
	AccountCode string          `json:"account_code"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

// DebitLine builds a debit-side line.
func DebitLine(accountCode string, amount decimal.Decimal) JournalLine {
	return JournalLine{AccountCode: accountCode, Debit: amount, Credit: decimal.Zero}
}

// CreditLine builds a credit-side line.
func CreditLine(accountCode string, amount decimal.Decimal) JournalLine {
	return JournalLine{AccountCode: accountCode, Debit: decimal.Zero, Credit: amount}
}

// Validate checks the batch invariants before it is handed to storage:
// at least two lines, every line one-sided positive, and total debits equal
// total credits. The storage layer enforces the per-line rule again with a
// check constraint.
func (b *JournalBatch) Validate() error {
	if len(b.Lines) < 2 {
		return fmt.Errorf("journal batch %s must carry at least two lines, got %d", b.BatchID, len(b.Lines))
	}

	totalDebit := decimal.Zero
	totalCredit := decimal.Zero
	for i, line := range b.Lines {
		debitPositive := line.Debit.IsPositive()
		creditPositive := line.Credit.IsPositive()
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return fmt.Errorf("journal line %d on account %s carries a negative amount", i, line.AccountCode)
		}
		if debitPositive == creditPositive {
			return fmt.Errorf("journal line %d on account %s must be strictly one-sided", i, line.AccountCode)
		}
		totalDebit = totalDebit.Add(line.Debit)
		totalCredit = totalCredit.Add(line.Credit)
	}

	if !totalDebit.Equal(totalCredit) {
		return fmt.Errorf("journal batch %s is unbalanced: debits %s, credits %s", b.BatchID, totalDebit.String(), totalCredit.String())
	}
	return nil
}

// AccountMapping is the outlet-scoped chart-of-accounts configuration the
// posting engine resolves entry legs from. A missing mapping aborts the whole
// push for that document.
type AccountMapping struct {
	ID                int64  `json:"-"`
	CompanyID         string `json:"company_id"`
	OutletID          string `json:"outlet_id"`
	CashAccount       string `json:"cash_account"`
	BankAccount       string `json:"bank_account"`
	RevenueAccount    string `json:"revenue_account"`
	TaxAccount        string `json:"tax_account"`
	ReceivableAccount string `json:"receivable_account"`
}
