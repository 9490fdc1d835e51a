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

package pos

import (
	"context"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tillsync/tillsync/model"
)

// DrainResult summarizes one drain cycle. Stale counts attempts whose
// terminal write was superseded by a newer token or an already-SENT job.
type DrainResult struct {
	Selected int
	Sent     int
	Failed   int
	Stale    int
}

// Drainer pushes due outbox jobs through the sender under the optimistic
// lease protocol: reserve an attempt token, transmit, then commit the outcome
// only if the token is still current.
type Drainer struct {
	store          Store
	sender         Sender
	batchSize      int
	retryDelay     time.Duration
	slowRetryDelay time.Duration

	// test seam; defaults to time.Now
	clock func() time.Time
}

func NewDrainer(store Store, sender Sender, batchSize int, retryDelay, slowRetryDelay time.Duration) *Drainer {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Drainer{
		store:          store,
		sender:         sender,
		batchSize:      batchSize,
		retryDelay:     retryDelay,
		slowRetryDelay: slowRetryDelay,
		clock:          time.Now,
	}
}

// Drain runs one cycle: select due jobs up to the batch size and attempt each
// one in order. A job failing never stops the rest of the batch.
func (d *Drainer) Drain(ctx context.Context) (DrainResult, error) {
	result := DrainResult{}
	now := d.clock().UTC()

	jobs, err := d.store.DueOutboxJobs(ctx, now, d.batchSize)
	if err != nil {
		return result, err
	}
	result.Selected = len(jobs)

	for i := range jobs {
		d.attempt(ctx, &jobs[i], &result)
	}
	return result, nil
}

func (d *Drainer) attempt(ctx context.Context, job *model.OutboxJob, result *DrainResult) {
	reserved, err := d.store.ReserveOutboxAttempt(ctx, job.JobID)
	if err != nil {
		if err == ErrOutboxJobTerminal {
			// Sent by a competing drain between selection and reservation.
			result.Stale++
			return
		}
		logrus.Errorf("failed to reserve outbox attempt for job %s: %v", job.JobID, err)
		result.Failed++
		return
	}

	payload, err := BuildSalePayload(ctx, d.store, reserved.SaleID)
	if err != nil {
		logrus.Errorf("failed to build payload for sale %s: %v", reserved.SaleID, err)
		d.finalize(ctx, reserved, model.OutboxStatusFailed, d.retryDelay, err.Error(), result, &result.Failed)
		return
	}

	sendErr := d.sender.Send(ctx, reserved, reserved.AttemptToken, payload)
	if sendErr == nil {
		applied, err := d.store.FinalizeOutboxAttempt(ctx, reserved.JobID, reserved.AttemptToken, model.OutboxStatusSent, nil, nil)
		if err != nil {
			logrus.Errorf("failed to commit SENT for job %s: %v", reserved.JobID, err)
			result.Failed++
			return
		}
		if !applied {
			result.Stale++
			return
		}
		logrus.Infof("outbox job %s sent (attempt %d, token %s)", reserved.JobID, reserved.Attempts, maskToken(reserved.AttemptToken))
		result.Sent++
		return
	}

	delay := d.retryDelay
	if senderErr, ok := sendErr.(*SenderError); ok && senderErr.Class == SenderNonRetryable {
		delay = d.slowRetryDelay
	}
	d.finalize(ctx, reserved, model.OutboxStatusFailed, delay, sendErr.Error(), result, &result.Failed)
}

func (d *Drainer) finalize(ctx context.Context, job *model.OutboxJob, status string, delay time.Duration, detail string, result *DrainResult, counter *int) {
	next := d.clock().UTC().Add(delay)
	applied, err := d.store.FinalizeOutboxAttempt(ctx, job.JobID, job.AttemptToken, status, &next, &detail)
	if err != nil {
		logrus.Errorf("failed to record outcome for job %s: %v", job.JobID, err)
		*counter++
		return
	}
	if !applied {
		result.Stale++
		return
	}
	logrus.Infof("outbox job %s failed (attempt %d, token %s), next attempt at %s: %s",
		job.JobID, job.Attempts, maskToken(job.AttemptToken), next.Format(time.RFC3339), detail)
	*counter++
}

// maskToken hides the lease token in logs, keeping just a short tail for
// correlating two log lines of the same attempt.
func maskToken(token int64) string {
	s := strconv.FormatInt(token, 10)
	if len(s) > 2 {
		s = s[len(s)-2:]
	}
	return "***" + s
}
