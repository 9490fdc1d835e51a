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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireClosed(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("completion channel never closed")
	}
}

func TestSchedulerCoalescesIntoOneFollowUp(t *testing.T) {
	started := make(chan []string, 4)
	release := make(chan struct{})

	var mu sync.Mutex
	var cycles [][]string
	scheduler := NewDrainScheduler(func(_ context.Context, reasons []string) {
		mu.Lock()
		cycles = append(cycles, reasons)
		mu.Unlock()
		started <- reasons
		<-release
	})

	_, err := scheduler.RequestDrain("timer")
	require.NoError(t, err)
	<-started // first cycle is now in flight

	// Three requests during the running cycle collapse into one follow-up.
	_, err = scheduler.RequestDrain("sale_completed")
	require.NoError(t, err)
	_, err = scheduler.RequestDrain("sale_completed")
	require.NoError(t, err)
	_, err = scheduler.RequestDrain("manual")
	require.NoError(t, err)

	release <- struct{}{}
	<-started // the single follow-up cycle
	release <- struct{}{}
	scheduler.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, cycles, 2)
	assert.Equal(t, []string{"timer"}, cycles[0])
	assert.Equal(t, []string{"sale_completed", "sale_completed", "manual"}, cycles[1])
}

func TestSchedulerSignalsCompletionPerRequest(t *testing.T) {
	started := make(chan struct{}, 2)
	release := make(chan struct{})

	scheduler := NewDrainScheduler(func(_ context.Context, _ []string) {
		started <- struct{}{}
		<-release
	})

	first, err := scheduler.RequestDrain("timer")
	require.NoError(t, err)
	<-started

	// Coalesced requests share the follow-up cycle's completion channel.
	second, err := scheduler.RequestDrain("sale_completed")
	require.NoError(t, err)
	third, err := scheduler.RequestDrain("manual")
	require.NoError(t, err)
	assert.Equal(t, second, third)

	select {
	case <-first:
		t.Fatal("first request resolved before its cycle finished")
	default:
	}

	release <- struct{}{}
	requireClosed(t, first)

	select {
	case <-second:
		t.Fatal("coalesced request resolved before the follow-up finished")
	default:
	}

	<-started
	release <- struct{}{}
	requireClosed(t, second)
	scheduler.Wait()
}

func TestSchedulerRunsAgainAfterIdle(t *testing.T) {
	scheduler := NewDrainScheduler(func(_ context.Context, _ []string) {})

	done, err := scheduler.RequestDrain("timer")
	require.NoError(t, err)
	requireClosed(t, done)
	scheduler.Wait()

	done, err = scheduler.RequestDrain("timer")
	require.NoError(t, err)
	requireClosed(t, done)
	scheduler.Wait()
}

func TestSchedulerDisposeRejectsNewRequests(t *testing.T) {
	scheduler := NewDrainScheduler(func(_ context.Context, _ []string) {})
	scheduler.Dispose()
	_, err := scheduler.RequestDrain("timer")
	assert.ErrorIs(t, err, ErrSchedulerDisposed)
}

func TestSchedulerDisposeLetsInFlightCycleFinish(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	cycles := 0

	scheduler := NewDrainScheduler(func(_ context.Context, _ []string) {
		cycles++
		started <- struct{}{}
		<-release
	})

	_, err := scheduler.RequestDrain("timer")
	require.NoError(t, err)
	<-started

	// Queue a follow-up, then dispose: the follow-up must be dropped and its
	// waiter released.
	queued, err := scheduler.RequestDrain("sale_completed")
	require.NoError(t, err)
	scheduler.Dispose()
	requireClosed(t, queued)

	release <- struct{}{}
	scheduler.Wait()

	assert.Equal(t, 1, cycles)
	_, err = scheduler.RequestDrain("timer")
	assert.ErrorIs(t, err, ErrSchedulerDisposed)
}
