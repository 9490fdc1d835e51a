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
	"time"

	"github.com/shopspring/decimal"
)

const (
	SaleStatusDraft     = "DRAFT"
	SaleStatusCompleted = "COMPLETED"
)

const (
	PaymentMethodCash = "CASH"
	PaymentMethodBank = "BANK"
)

// Sale is the client-owned record of a point-of-sale transaction. It is
// created as a draft, finalized exactly once, and never deleted locally:
// the row is the audit trail of what was queued for sync.
type Sale struct {
	ID          int64           `json:"-"`
	SaleID      string          `json:"sale_id"`
	Status      string          `json:"status"`
	ClientTxID  string          `json:"client_tx_id,omitempty"`
	CompanyID   string          `json:"company_id"`
	OutletID    string          `json:"outlet_id"`
	CashierID   string          `json:"cashier_id"`
	SubTotal    decimal.Decimal `json:"sub_total"`
	TaxTotal    decimal.Decimal `json:"tax_total"`
	GrandTotal  decimal.Decimal `json:"grand_total"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt time.Time       `json:"completed_at,omitempty"`
}

// SaleItem is an immutable snapshot of the sold item, captured from the
// product catalog at completion time. Later catalog changes must never
// alter a persisted snapshot.
type SaleItem struct {
	ID                int64           `json:"-"`
	SaleID            string          `json:"sale_id"`
	ItemID            string          `json:"item_id"`
	NameSnapshot      string          `json:"name_snapshot"`
	UnitPriceSnapshot decimal.Decimal `json:"unit_price_snapshot"`
	Quantity          int64           `json:"quantity"`
	LineTotal         decimal.Decimal `json:"line_total"`
}

// Payment records one tender against a sale.
type Payment struct {
	ID     int64           `json:"-"`
	SaleID string          `json:"sale_id"`
	Method string          `json:"method"`
	Amount decimal.Decimal `json:"amount"`
}

// ComputeSubTotal recomputes the sale subtotal from the item snapshots.
func ComputeSubTotal(items []SaleItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal)
	}
	return total
}

// LineTotalsConsistent reports whether every item's line total equals
// unit price x quantity.
func LineTotalsConsistent(items []SaleItem) bool {
	for _, item := range items {
		expected := item.UnitPriceSnapshot.Mul(decimal.NewFromInt(item.Quantity))
		if !item.LineTotal.Equal(expected) {
			return false
		}
	}
	return true
}

// PaymentsTotal sums the tendered payments.
func PaymentsTotal(payments []Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	return total
}
