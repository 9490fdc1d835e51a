package database

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"

	"github.com/tillsync/tillsync/model"
)

// IDataSource is the storage interface the server engine works against.
// Methods taking a *sql.Tx participate in the caller's transaction: ingestion
// runs the dedup lookup, the document insert, and the journal posting inside
// one transaction per source document.
type IDataSource interface {
	BeginTx(ctx context.Context) (*sql.Tx, error)

	GetPosTransactionByClientTxID(ctx context.Context, tx *sql.Tx, clientTxID string) (*model.PosTransaction, error)
	InsertPosTransaction(ctx context.Context, tx *sql.Tx, txn *model.PosTransaction, items []model.SalePayloadItem, payments []model.SalePayloadPayment) (int64, error)

	GetAccountMapping(ctx context.Context, tx *sql.Tx, companyID, outletID string) (*model.AccountMapping, error)
	UpsertAccountMapping(ctx context.Context, mapping *model.AccountMapping) error

	InsertJournalBatch(ctx context.Context, tx *sql.Tx, batch *model.JournalBatch) error
	GetJournalBatchByDoc(ctx context.Context, companyID, docType string, docID int64) (*model.JournalBatch, error)
}
