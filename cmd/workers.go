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

package main

import (
	"context"
	"encoding/json"
	"log"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/tillsync/tillsync"
	"github.com/tillsync/tillsync/config"
	redis_db "github.com/tillsync/tillsync/internal/redis-db"
)

// processSaleSynced consumes one sale.synced event from the Redis queue.
// The event is emitted after the ingestion transaction committed, so by the
// time it is handled the document and its journal batch are durable; the
// worker verifies the journal exists and logs the confirmation trail.
func (b *instance) processSaleSynced(ctx context.Context, t *asynq.Task) error {
	ctx, span := otel.Tracer("pos.sale_synced.worker").Start(ctx, "Process sale.synced From Redis Queue")
	defer span.End()

	var event tillsync.SaleSyncedPayload
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		logrus.Error(err)
		return err
	}

	batch, err := b.service.GetJournalBatch(ctx, event.CompanyID, event.DocID)
	if err != nil {
		logrus.Errorf("sale.synced for %s has no journal batch yet: %v", event.ClientTxID, err)
		return err
	}

	logrus.Infof("sale %s synced as doc %d, journal batch %s with %d lines",
		event.ClientTxID, event.DocID, batch.BatchID, len(batch.Lines))
	return nil
}

// workerCommands starts the queue workers consuming post-commit events.
func workerCommands(b *instance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start tillsync queue workers",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return preRunServer(b)(cmd, args)
		},
		Run: func(cmd *cobra.Command, args []string) {
			conf, err := config.Fetch()
			if err != nil {
				log.Fatal("Error fetching config:", err)
			}

			redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns)
			if err != nil {
				log.Fatalf("Error parsing Redis URL: %v", err)
			}

			queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}
			srv := asynq.NewServer(queueOptions, asynq.Config{
				Concurrency: 1,
				Queues: map[string]int{
					conf.Queue.SaleSyncedQueue: 1,
				},
			})

			mux := asynq.NewServeMux()
			mux.HandleFunc(conf.Queue.SaleSyncedQueue, b.processSaleSynced)

			if err := srv.Run(mux); err != nil {
				logrus.WithError(err).Fatal("Error running worker server")
			}
		},
	}
	return cmd
}
