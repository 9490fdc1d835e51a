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
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tillsync/tillsync"
	"github.com/tillsync/tillsync/config"
	"github.com/tillsync/tillsync/database"
)

// TillSyncCLI encapsulates the root Cobra command.
type TillSyncCLI struct {
	cmd *cobra.Command
}

// instance holds the runtime service and configuration shared by the server
// and worker commands. The agent command runs without it: the client side
// never touches postgres.
type instance struct {
	service *tillsync.TillSync
	cnf     *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

func preRunServer(app *instance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("tillsync.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		service, err := setupService(cnf)
		if err != nil {
			log.Fatal(err)
		}

		app.service = service
		app.cnf = cnf
		return nil
	}
}

func setupService(cfg *config.Configuration) (*tillsync.TillSync, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	service, err := tillsync.New(db)
	if err != nil {
		return nil, fmt.Errorf("error creating tillsync: %v", err)
	}
	return service, nil
}

func NewCLI() *TillSyncCLI {
	var configFile string
	app := &instance{}

	var rootCmd = &cobra.Command{
		Use:   "tillsync",
		Short: "Offline-first point of sale sync engine",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./tillsync.json", "Configuration file for tillsync")

	rootCmd.AddCommand(serverCommands(app))
	rootCmd.AddCommand(workerCommands(app))
	rootCmd.AddCommand(agentCommands())

	return &TillSyncCLI{cmd: rootCmd}
}

func (c *TillSyncCLI) executeCLI() {
	if err := c.cmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()
	cli := NewCLI()
	cli.executeCLI()
}
