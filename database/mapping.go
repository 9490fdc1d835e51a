package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tillsync/tillsync/internal/apierror"
	"github.com/tillsync/tillsync/model"
)

// GetAccountMapping resolves the outlet-scoped chart-of-accounts mapping.
// Reads happen inside the posting transaction when tx is non-nil. A missing
// row is a MAPPING_MISSING error: posting must abort rather than skip a leg.
func (d Datasource) GetAccountMapping(ctx context.Context, tx *sql.Tx, companyID, outletID string) (*model.AccountMapping, error) {
	query := `
		SELECT id, company_id, outlet_id, cash_account, bank_account, revenue_account, tax_account, receivable_account
		FROM account_mappings
		WHERE company_id = $1 AND outlet_id = $2
	`

	var row *sql.Row
	if tx != nil {
		row = tx.QueryRowContext(ctx, query, companyID, outletID)
	} else {
		row = d.Conn.QueryRowContext(ctx, query, companyID, outletID)
	}

	mapping := &model.AccountMapping{}
	err := row.Scan(&mapping.ID, &mapping.CompanyID, &mapping.OutletID, &mapping.CashAccount, &mapping.BankAccount, &mapping.RevenueAccount, &mapping.TaxAccount, &mapping.ReceivableAccount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrMappingMissing, fmt.Sprintf("No account mapping for outlet '%s' in company '%s'", outletID, companyID), nil)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve account mapping", err)
	}

	return mapping, nil
}

// UpsertAccountMapping creates or replaces the mapping for an outlet.
func (d Datasource) UpsertAccountMapping(ctx context.Context, mapping *model.AccountMapping) error {
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO account_mappings(company_id, outlet_id, cash_account, bank_account, revenue_account, tax_account, receivable_account)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (company_id, outlet_id) DO UPDATE SET
			cash_account = EXCLUDED.cash_account,
			bank_account = EXCLUDED.bank_account,
			revenue_account = EXCLUDED.revenue_account,
			tax_account = EXCLUDED.tax_account,
			receivable_account = EXCLUDED.receivable_account
	`, mapping.CompanyID, mapping.OutletID, mapping.CashAccount, mapping.BankAccount, mapping.RevenueAccount, mapping.TaxAccount, mapping.ReceivableAccount)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to upsert account mapping", err)
	}
	return nil
}
