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
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"github.com/tillsync/tillsync/model"
)

// SyncRequest is the push envelope: a batch of completed sales from one
// client device.
type SyncRequest struct {
	Transactions []SyncTransaction `json:"transactions"`
}

// SyncTransaction is the wire form of one pushed sale.
type SyncTransaction struct {
	ClientTxID  string          `json:"client_tx_id"`
	SaleRef     string          `json:"sale_ref"`
	CompanyID   string          `json:"company_id"`
	OutletID    string          `json:"outlet_id"`
	CashierID   string          `json:"cashier_id"`
	SubTotal    decimal.Decimal `json:"sub_total"`
	TaxTotal    decimal.Decimal `json:"tax_total"`
	GrandTotal  decimal.Decimal `json:"grand_total"`
	Items       []SyncItem      `json:"items"`
	Payments    []SyncPayment   `json:"payments"`
	CompletedAt time.Time       `json:"completed_at"`
	HashVersion string          `json:"hash_version"`
	PayloadHash string          `json:"payload_hash"`
}

type SyncItem struct {
	ItemID    string          `json:"item_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int64           `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type SyncPayment struct {
	Method string          `json:"method"`
	Amount decimal.Decimal `json:"amount"`
}

// UpsertAccountMapping is the request body for configuring an outlet's
// chart-of-accounts mapping.
type UpsertAccountMapping struct {
	CompanyID         string `json:"company_id"`
	OutletID          string `json:"outlet_id"`
	CashAccount       string `json:"cash_account"`
	BankAccount       string `json:"bank_account"`
	RevenueAccount    string `json:"revenue_account"`
	TaxAccount        string `json:"tax_account"`
	ReceivableAccount string `json:"receivable_account"`
}

func (r *SyncRequest) ValidateSyncRequest() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Transactions, validation.Required, validation.Length(1, 0)),
	)
}

func (t *SyncTransaction) ValidateSyncTransaction() error {
	return validation.ValidateStruct(t,
		validation.Field(&t.ClientTxID, validation.Required),
		validation.Field(&t.SaleRef, validation.Required),
		validation.Field(&t.CompanyID, validation.Required),
		validation.Field(&t.OutletID, validation.Required),
		validation.Field(&t.CashierID, validation.Required),
		validation.Field(&t.Items, validation.Required, validation.Length(1, 0)),
		validation.Field(&t.CompletedAt, validation.Required),
		validation.Field(&t.HashVersion, validation.Required, validation.In(model.PayloadHashVersion)),
		validation.Field(&t.PayloadHash, validation.Required, validation.By(hashPrefixValidation(t))),
	)
}

func hashPrefixValidation(t *SyncTransaction) validation.RuleFunc {
	return func(value interface{}) error {
		if !strings.HasPrefix(t.PayloadHash, model.PayloadHashVersion+":") {
			return errors.New("payload_hash must carry the hash version prefix")
		}
		return nil
	}
}

func (m *UpsertAccountMapping) ValidateUpsertAccountMapping() error {
	return validation.ValidateStruct(m,
		validation.Field(&m.CompanyID, validation.Required),
		validation.Field(&m.OutletID, validation.Required),
		validation.Field(&m.CashAccount, validation.Required),
		validation.Field(&m.BankAccount, validation.Required),
		validation.Field(&m.RevenueAccount, validation.Required),
		validation.Field(&m.TaxAccount, validation.Required),
		validation.Field(&m.ReceivableAccount, validation.Required),
	)
}

// ToSalePayload converts the validated wire transaction to the domain form.
func (t *SyncTransaction) ToSalePayload() model.SalePayload {
	payload := model.SalePayload{
		ClientTxID:  t.ClientTxID,
		SaleRef:     t.SaleRef,
		CompanyID:   t.CompanyID,
		OutletID:    t.OutletID,
		CashierID:   t.CashierID,
		SubTotal:    t.SubTotal,
		TaxTotal:    t.TaxTotal,
		GrandTotal:  t.GrandTotal,
		CompletedAt: t.CompletedAt,
		HashVersion: t.HashVersion,
		PayloadHash: t.PayloadHash,
	}
	for _, item := range t.Items {
		payload.Items = append(payload.Items, model.SalePayloadItem{
			ItemID:    item.ItemID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			LineTotal: item.LineTotal,
		})
	}
	for _, payment := range t.Payments {
		payload.Payments = append(payload.Payments, model.SalePayloadPayment{
			Method: payment.Method,
			Amount: payment.Amount,
		})
	}
	return payload
}

// ToAccountMapping converts the validated request to the domain form.
func (m *UpsertAccountMapping) ToAccountMapping() *model.AccountMapping {
	return &model.AccountMapping{
		CompanyID:         m.CompanyID,
		OutletID:          m.OutletID,
		CashAccount:       m.CashAccount,
		BankAccount:       m.BankAccount,
		RevenueAccount:    m.RevenueAccount,
		TaxAccount:        m.TaxAccount,
		ReceivableAccount: m.ReceivableAccount,
	}
}
