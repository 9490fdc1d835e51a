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

package pos

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/tillsync/tillsync/internal/lock"
	"github.com/tillsync/tillsync/model"
)

// SaleManager owns the sale lifecycle on a client device: drafts are created,
// completed exactly once, and every completion leaves exactly one outbox job
// behind for the drainer.
type SaleManager struct {
	store     Store
	locker    *lock.KeyedLock
	scheduler *DrainScheduler
}

// NewSaleManager constructs a manager over the given store. The scheduler is
// optional; when present, a successful completion nudges it so the sale is
// pushed without waiting for the periodic drain.
func NewSaleManager(store Store, scheduler *DrainScheduler) *SaleManager {
	return &SaleManager{
		store:     store,
		locker:    lock.NewKeyedLock(),
		scheduler: scheduler,
	}
}

// CreateSaleDraft opens a new draft sale for the given outlet and cashier.
func (m *SaleManager) CreateSaleDraft(ctx context.Context, companyID, outletID, cashierID string) (*model.Sale, error) {
	sale := &model.Sale{
		SaleID:    model.GenerateUUIDWithSuffix("sal"),
		Status:    model.SaleStatusDraft,
		CompanyID: companyID,
		OutletID:  outletID,
		CashierID: cashierID,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.store.CreateSale(ctx, sale); err != nil {
		return nil, err
	}
	return sale, nil
}

// CompleteSaleInput carries the lines and tenders of a finishing sale. Items
// are snapshots: the caller copies name and unit price out of its catalog, and
// nothing here references the catalog afterwards.
type CompleteSaleInput struct {
	Items      []model.SaleItem
	Payments   []model.Payment
	TaxTotal   decimal.Decimal
	GrandTotal decimal.Decimal
}

// CompleteSale finalizes a draft: it verifies the declared totals against the
// item lines, stamps a fresh client_tx_id, and writes the COMPLETED sale, its
// snapshots and one PENDING outbox job in a single local transaction.
//
// A concurrent completion of the same sale fails immediately with
// ErrSaleCompletionInProgress; a totals mismatch fails with
// ErrSaleTotalsMismatch and writes nothing.
func (m *SaleManager) CompleteSale(ctx context.Context, saleID string, input CompleteSaleInput) (*model.Sale, error) {
	holder := model.GenerateUUIDWithSuffix("hold")
	if err := m.locker.TryAcquire(saleID, holder); err != nil {
		return nil, ErrSaleCompletionInProgress
	}
	defer func() {
		if err := m.locker.Release(saleID, holder); err != nil {
			logrus.Errorf("failed to release completion lock for sale %s: %v", saleID, err)
		}
	}()

	sale, err := m.store.GetSale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if sale.Status != model.SaleStatusDraft {
		return nil, ErrSaleNotDraft
	}

	if err := validateTotals(input); err != nil {
		return nil, err
	}

	for i := range input.Items {
		input.Items[i].SaleID = saleID
	}
	for i := range input.Payments {
		input.Payments[i].SaleID = saleID
	}

	sale.Status = model.SaleStatusCompleted
	sale.ClientTxID = model.GenerateUUIDWithSuffix("ptx")
	sale.SubTotal = model.ComputeSubTotal(input.Items)
	sale.TaxTotal = input.TaxTotal
	sale.GrandTotal = input.GrandTotal
	sale.CompletedAt = time.Now().UTC()

	job := &model.OutboxJob{
		JobID:     model.GenerateUUIDWithSuffix("obx"),
		SaleID:    saleID,
		DedupeKey: sale.ClientTxID,
		Status:    model.OutboxStatusPending,
		CreatedAt: time.Now().UTC(),
	}

	if err := m.store.CompleteSale(ctx, sale, input.Items, input.Payments, job); err != nil {
		return nil, err
	}

	if m.scheduler != nil {
		if _, err := m.scheduler.RequestDrain("sale_completed"); err != nil {
			logrus.Errorf("drain request after completing sale %s rejected: %v", saleID, err)
		}
	}
	return sale, nil
}

func validateTotals(input CompleteSaleInput) error {
	if len(input.Items) == 0 {
		return ErrSaleTotalsMismatch
	}
	if !model.LineTotalsConsistent(input.Items) {
		return ErrSaleTotalsMismatch
	}
	subTotal := model.ComputeSubTotal(input.Items)
	if !input.GrandTotal.Equal(subTotal.Add(input.TaxTotal)) {
		return ErrSaleTotalsMismatch
	}
	if model.PaymentsTotal(input.Payments).GreaterThan(input.GrandTotal) {
		return ErrSaleTotalsMismatch
	}
	return nil
}

// BuildSalePayload assembles the sealed wire payload for a completed sale
// from its persisted snapshots.
func BuildSalePayload(ctx context.Context, store Store, saleID string) (*model.SalePayload, error) {
	sale, err := store.GetSale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	items, err := store.GetSaleItems(ctx, saleID)
	if err != nil {
		return nil, err
	}
	payments, err := store.GetPayments(ctx, saleID)
	if err != nil {
		return nil, err
	}

	payload := &model.SalePayload{
		ClientTxID:  sale.ClientTxID,
		SaleRef:     sale.SaleID,
		CompanyID:   sale.CompanyID,
		OutletID:    sale.OutletID,
		CashierID:   sale.CashierID,
		SubTotal:    sale.SubTotal,
		TaxTotal:    sale.TaxTotal,
		GrandTotal:  sale.GrandTotal,
		CompletedAt: sale.CompletedAt,
	}
	for _, item := range items {
		payload.Items = append(payload.Items, model.SalePayloadItem{
			ItemID:    item.ItemID,
			Name:      item.NameSnapshot,
			UnitPrice: item.UnitPriceSnapshot,
			Quantity:  item.Quantity,
			LineTotal: item.LineTotal,
		})
	}
	for _, payment := range payments {
		payload.Payments = append(payload.Payments, model.SalePayloadPayment{
			Method: payment.Method,
			Amount: payment.Amount,
		})
	}
	payload.Seal()
	return payload, nil
}
