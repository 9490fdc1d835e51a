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
	"log"

	"github.com/spf13/cobra"

	"github.com/tillsync/tillsync/api"
)

// serverCommands starts the HTTP API: the push endpoint the client agents
// drain their outboxes against, plus the mapping and lookup routes.
func serverCommands(b *instance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start tillsync server",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return preRunServer(b)(cmd, args)
		},
		Run: func(cmd *cobra.Command, args []string) {
			router := api.NewAPI(b.service).Router()
			port := b.cnf.Server.Port
			log.Printf("Starting server on http://localhost:%s", port)
			if err := router.Run(":" + port); err != nil {
				log.Fatal(err)
			}
		},
	}
	return cmd
}
