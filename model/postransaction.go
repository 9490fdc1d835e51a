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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PayloadHashVersion tags the normalization scheme a payload hash was
// computed under, so a future scheme change never collides with old hashes.
const PayloadHashVersion = "v1"

// SalePayload is the wire form of one completed sale pushed to the server.
type SalePayload struct {
	ClientTxID  string               `json:"client_tx_id"`
	SaleRef     string               `json:"sale_ref"`
	CompanyID   string               `json:"company_id"`
	OutletID    string               `json:"outlet_id"`
	CashierID   string               `json:"cashier_id"`
	SubTotal    decimal.Decimal      `json:"sub_total"`
	TaxTotal    decimal.Decimal      `json:"tax_total"`
	GrandTotal  decimal.Decimal      `json:"grand_total"`
	Items       []SalePayloadItem    `json:"items"`
	Payments    []SalePayloadPayment `json:"payments"`
	CompletedAt time.Time            `json:"completed_at"`
	HashVersion string               `json:"hash_version"`
	PayloadHash string               `json:"payload_hash"`
}

type SalePayloadItem struct {
	ItemID    string          `json:"item_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int64           `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type SalePayloadPayment struct {
	Method string          `json:"method"`
	Amount decimal.Decimal `json:"amount"`
}

// ComputeHash returns the normalized content hash of the payload. The hash
// covers every business field in a fixed order, so two payloads with the same
// content always hash the same regardless of JSON field ordering, and any
// content drift on a retried client_tx_id is detectable as an idempotency
// conflict.
func (p *SalePayload) ComputeHash() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%s|%s|%s|", p.ClientTxID, p.SaleRef, p.CompanyID, p.OutletID, p.CashierID)
	fmt.Fprintf(&b, "%s|%s|%s|", p.SubTotal.String(), p.TaxTotal.String(), p.GrandTotal.String())
	for _, item := range p.Items {
		fmt.Fprintf(&b, "i:%s,%s,%s,%d,%s|", item.ItemID, item.Name, item.UnitPrice.String(), item.Quantity, item.LineTotal.String())
	}
	for _, payment := range p.Payments {
		fmt.Fprintf(&b, "p:%s,%s|", payment.Method, payment.Amount.String())
	}
	fmt.Fprintf(&b, "%d", p.CompletedAt.UTC().Unix())

	hash := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%s:%s", PayloadHashVersion, hex.EncodeToString(hash[:]))
}

// Seal stamps the payload with its hash and hash version.
func (p *SalePayload) Seal() {
	p.HashVersion = PayloadHashVersion
	p.PayloadHash = p.ComputeHash()
}

func (p *SalePayload) ToJSON() ([]byte, error) {
	return json.Marshal(p)
}

// PosTransaction is the server-side mirror of an accepted sale. One row is
// created on the first successful ingestion for a client_tx_id; later pushes
// with the same key never create a second one.
type PosTransaction struct {
	ID          int64           `json:"-"`
	ClientTxID  string          `json:"client_tx_id"`
	SaleRef     string          `json:"sale_ref"`
	CompanyID   string          `json:"company_id"`
	OutletID    string          `json:"outlet_id"`
	CashierID   string          `json:"cashier_id"`
	SubTotal    decimal.Decimal `json:"sub_total"`
	TaxTotal    decimal.Decimal `json:"tax_total"`
	GrandTotal  decimal.Decimal `json:"grand_total"`
	PayloadHash string          `json:"payload_hash"`
	HashVersion string          `json:"hash_version"`
	CompletedAt time.Time       `json:"completed_at"`
	CreatedAt   time.Time       `json:"created_at"`
}
