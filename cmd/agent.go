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
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tillsync/tillsync/config"
	"github.com/tillsync/tillsync/pos"
)

// agentCommands runs the client-side drain loop: it opens the local store and
// periodically pushes due outbox jobs to the configured server. This command
// never connects to postgres; the local SQLite file is its only storage.
func agentCommands() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "start the client outbox drain agent",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return config.InitConfig("tillsync.json")
		},
		Run: func(cmd *cobra.Command, args []string) {
			cnf, err := config.Fetch()
			if err != nil {
				log.Fatal(err)
			}
			if cnf.Outbox.ServerURL == "" {
				log.Fatal("outbox server_url is not configured")
			}

			store, err := pos.OpenStore(cnf.Outbox.LocalDBPath)
			if err != nil {
				log.Fatal(err)
			}
			defer func() { _ = store.Close() }()

			sender := pos.NewHTTPSender(cnf.Outbox.ServerURL, cnf.Server.SecretKey)
			drainer := pos.NewDrainer(store, sender,
				cnf.Outbox.BatchSize,
				time.Duration(cnf.Outbox.RetryDelaySec)*time.Second,
				time.Duration(cnf.Outbox.SlowRetryDelaySec)*time.Second,
			)

			scheduler := pos.NewDrainScheduler(func(ctx context.Context, reasons []string) {
				result, err := drainer.Drain(ctx)
				if err != nil {
					logrus.Errorf("drain cycle (%v) failed: %v", reasons, err)
					return
				}
				if result.Selected > 0 {
					logrus.Infof("drain cycle (%v): selected %d, sent %d, failed %d, stale %d",
						reasons, result.Selected, result.Sent, result.Failed, result.Stale)
				}
			})

			interval := time.Duration(cnf.Outbox.DrainIntervalSec) * time.Second
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

			log.Printf("Agent draining %s to %s every %s", cnf.Outbox.LocalDBPath, cnf.Outbox.ServerURL, interval)
			if _, err := scheduler.RequestDrain("startup"); err != nil {
				logrus.Error(err)
			}

			for {
				select {
				case <-ticker.C:
					if _, err := scheduler.RequestDrain("timer"); err != nil {
						logrus.Error(err)
						return
					}
				case <-stop:
					log.Println("Shutting down agent...")
					scheduler.Dispose()
					scheduler.Wait()
					return
				}
			}
		},
	}
	return cmd
}
