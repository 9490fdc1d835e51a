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

package model

import "time"

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusFailed  = "FAILED"
	OutboxStatusSent    = "SENT"
)

// OutboxJob is the durable local record of one completed sale awaiting
// transmission to the server of record.
//
// AttemptToken is a monotonically issued lease: reserving an attempt bumps it,
// and only the holder of the current token may write the job's terminal
// result. SENT is terminal; a stale token can never downgrade it.
type OutboxJob struct {
	ID            int64      `json:"-"`
	JobID         string     `json:"job_id"`
	SaleID        string     `json:"sale_id"`
	DedupeKey     string     `json:"dedupe_key"`
	Status        string     `json:"status"`
	Attempts      int64      `json:"attempts"`
	AttemptToken  int64      `json:"attempt_token"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
	LastError     *string    `json:"last_error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Due reports whether the job is eligible for selection at the given instant:
// PENDING jobs always are, FAILED jobs only once their backoff has elapsed.
func (j *OutboxJob) Due(now time.Time) bool {
	switch j.Status {
	case OutboxStatusPending:
		return true
	case OutboxStatusFailed:
		return j.NextAttemptAt == nil || !j.NextAttemptAt.After(now)
	default:
		return false
	}
}
