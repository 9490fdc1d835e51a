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
	"github.com/tillsync/tillsync/config"
	"github.com/tillsync/tillsync/database"
)

// TillSync is the server-of-record engine: it ingests pushed sales
// idempotently and posts a balanced journal batch for each accepted one.
type TillSync struct {
	datasource database.IDataSource
	queue      *Queue
}

// New initializes a TillSync instance with the provided datasource. The
// events queue is optional: when no Redis DNS is configured, post-commit
// notifications are skipped.
func New(db database.IDataSource) (*TillSync, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	var queue *Queue
	if configuration.Redis.Dns != "" {
		queue = NewQueue(configuration)
	}

	return &TillSync{datasource: db, queue: queue}, nil
}
