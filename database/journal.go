package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"

	"github.com/tillsync/tillsync/internal/apierror"
	"github.com/tillsync/tillsync/model"
)

// InsertJournalBatch writes the batch header and every line inside the
// supplied transaction. The unique (company_id, doc_type, doc_id) constraint
// and the one-sided-positive check on lines are the storage-level half of the
// posting invariants; a violation of either is returned untranslated so the
// whole transaction rolls back.
func (d Datasource) InsertJournalBatch(ctx context.Context, tx *sql.Tx, batch *model.JournalBatch) error {
	ctx, span := otel.Tracer("pos.posting").Start(ctx, "Saving journal batch to db")
	defer span.End()

	_, err := tx.ExecContext(ctx,
		`INSERT INTO journal_batches(batch_id, company_id, doc_type, doc_id, memo)
		 VALUES ($1,$2,$3,$4,$5)`,
		batch.BatchID, batch.CompanyID, batch.DocType, batch.DocID, batch.Memo,
	)
	if err != nil {
		if IsUniqueViolation(err) || IsRetryableTxError(err) {
			return err
		}
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record journal batch", err)
	}

	for _, line := range batch.Lines {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO journal_lines(batch_id, account_code, debit, credit)
			 VALUES ($1,$2,$3,$4)`,
			batch.BatchID, line.AccountCode, line.Debit, line.Credit,
		)
		if err != nil {
			if IsRetryableTxError(err) {
				return err
			}
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record journal line", err)
		}
	}

	return nil
}

// GetJournalBatchByDoc fetches a batch and its lines by document identity.
func (d Datasource) GetJournalBatchByDoc(ctx context.Context, companyID, docType string, docID int64) (*model.JournalBatch, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT id, batch_id, company_id, doc_type, doc_id, memo, created_at
		FROM journal_batches
		WHERE company_id = $1 AND doc_type = $2 AND doc_id = $3
	`, companyID, docType, docID)

	batch := &model.JournalBatch{}
	err := row.Scan(&batch.ID, &batch.BatchID, &batch.CompanyID, &batch.DocType, &batch.DocID, &batch.Memo, &batch.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Journal batch for doc '%s/%s/%d' not found", companyID, docType, docID), nil)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve journal batch", err)
	}

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT id, batch_id, account_code, debit, credit
		FROM journal_lines
		WHERE batch_id = $1
		ORDER BY id ASC
	`, batch.BatchID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve journal lines", err)
	}
	defer rows.Close()

	for rows.Next() {
		line := model.JournalLine{}
		if err := rows.Scan(&line.ID, &line.BatchID, &line.AccountCode, &line.Debit, &line.Credit); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan journal line", err)
		}
		batch.Lines = append(batch.Lines, line)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over journal lines", err)
	}

	return batch, nil
}
