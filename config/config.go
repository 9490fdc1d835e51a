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

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5401"

	// Backoff applied by the outbox drainer, in seconds. Retryable failures
	// come back quickly; non-retryable ones are retried slowly rather than
	// dropped, since the underlying cause may be fixed out-of-band.
	DEFAULT_RETRY_DELAY_SEC      = 5
	DEFAULT_SLOW_RETRY_DELAY_SEC = 300

	DEFAULT_OUTBOX_BATCH_SIZE = 50
)

var ConfigStore atomic.Value

type ServerConfig struct {
	Secure    bool   `json:"secure" envconfig:"TILLSYNC_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"TILLSYNC_SERVER_SECRET_KEY"`
	Port      string `json:"port" envconfig:"TILLSYNC_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"TILLSYNC_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns string `json:"dns" envconfig:"TILLSYNC_REDIS_DNS"`
}

type QueueConfig struct {
	SaleSyncedQueue string `json:"sale_synced_queue" envconfig:"TILLSYNC_QUEUE_SALE_SYNCED"`
}

type OutboxConfig struct {
	BatchSize         int    `json:"batch_size" envconfig:"TILLSYNC_OUTBOX_BATCH_SIZE"`
	RetryDelaySec     int    `json:"retry_delay_sec" envconfig:"TILLSYNC_OUTBOX_RETRY_DELAY_SEC"`
	SlowRetryDelaySec int    `json:"slow_retry_delay_sec" envconfig:"TILLSYNC_OUTBOX_SLOW_RETRY_DELAY_SEC"`
	LocalDBPath       string `json:"local_db_path" envconfig:"TILLSYNC_OUTBOX_LOCAL_DB_PATH"`
	ServerURL         string `json:"server_url" envconfig:"TILLSYNC_OUTBOX_SERVER_URL"`
	DrainIntervalSec  int    `json:"drain_interval_sec" envconfig:"TILLSYNC_OUTBOX_DRAIN_INTERVAL_SEC"`
}

type Configuration struct {
	ProjectName string           `json:"project_name" envconfig:"TILLSYNC_PROJECT_NAME"`
	Server      ServerConfig     `json:"server"`
	DataSource  DataSourceConfig `json:"data_source"`
	Redis       RedisConfig      `json:"redis"`
	Queue       QueueConfig      `json:"queue"`
	Outbox      OutboxConfig     `json:"outbox"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("tillsync", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called tillsync.json with your config")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		cnf.ProjectName = "TillSync Server"
	}

	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Queue.SaleSyncedQueue == "" {
		cnf.Queue.SaleSyncedQueue = "new:sale_synced"
	}

	if cnf.Outbox.BatchSize <= 0 {
		cnf.Outbox.BatchSize = DEFAULT_OUTBOX_BATCH_SIZE
	}
	if cnf.Outbox.RetryDelaySec <= 0 {
		cnf.Outbox.RetryDelaySec = DEFAULT_RETRY_DELAY_SEC
	}
	if cnf.Outbox.SlowRetryDelaySec <= 0 {
		cnf.Outbox.SlowRetryDelaySec = DEFAULT_SLOW_RETRY_DELAY_SEC
	}
	if cnf.Outbox.LocalDBPath == "" {
		cnf.Outbox.LocalDBPath = "tillsync.db"
	}
	if cnf.Outbox.DrainIntervalSec <= 0 {
		cnf.Outbox.DrainIntervalSec = 30
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	mockConfig.applyTestDefaults()
	ConfigStore.Store(mockConfig)
}

func (cnf *Configuration) applyTestDefaults() {
	_ = cnf.validateAndAddDefaults()
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
