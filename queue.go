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
	"encoding/json"
	"log"

	"github.com/hibiken/asynq"

	"github.com/tillsync/tillsync/config"
	redis_db "github.com/tillsync/tillsync/internal/redis-db"
	"github.com/tillsync/tillsync/model"
)

// Queue carries post-commit events to background workers over Redis. It is
// strictly fire-and-forget from the ingestion path's point of view: the
// source transaction has already committed by the time anything is enqueued.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// SaleSyncedPayload is the task payload for a sale.synced event.
type SaleSyncedPayload struct {
	ClientTxID string `json:"client_tx_id"`
	DocID      int64  `json:"doc_id"`
	CompanyID  string `json:"company_id"`
	OutletID   string `json:"outlet_id"`
}

// NewQueue initializes a new Queue instance with the provided configuration.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

// EnqueueSaleSynced enqueues a sale.synced event for the accepted document.
// The task id is the client_tx_id, so a replayed enqueue collapses into the
// already-queued task instead of fanning out twice.
func (q *Queue) EnqueueSaleSynced(ctx context.Context, txn *model.PosTransaction) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(SaleSyncedPayload{
		ClientTxID: txn.ClientTxID,
		DocID:      txn.ID,
		CompanyID:  txn.CompanyID,
		OutletID:   txn.OutletID,
	})
	if err != nil {
		return err
	}

	taskOptions := []asynq.Option{
		asynq.TaskID(txn.ClientTxID),
		asynq.Queue(cfg.Queue.SaleSyncedQueue),
		asynq.MaxRetry(5),
	}
	task := asynq.NewTask(cfg.Queue.SaleSyncedQueue, payload, taskOptions...)
	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued sale.synced: %+v", txn.ClientTxID)
	return nil
}

// Close releases the queue's Redis connections.
func (q *Queue) Close() error {
	return q.Client.Close()
}
