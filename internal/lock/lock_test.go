package lock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTryAcquireAndRelease(t *testing.T) {
	l := NewKeyedLock()

	assert.NoError(t, l.TryAcquire("sale_1", "holder_a"))
	assert.Error(t, l.TryAcquire("sale_1", "holder_b"))
	assert.NoError(t, l.TryAcquire("sale_2", "holder_b"))

	assert.Error(t, l.Release("sale_1", "holder_b"))
	assert.NoError(t, l.Release("sale_1", "holder_a"))
	assert.NoError(t, l.TryAcquire("sale_1", "holder_b"))
}

func TestReleaseUnheldKey(t *testing.T) {
	l := NewKeyedLock()
	assert.Error(t, l.Release("missing", "holder"))
}

func TestConcurrentAcquireSingleWinner(t *testing.T) {
	l := NewKeyedLock()

	const contenders = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.TryAcquire("sale_1", "h"); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}

func TestCloseDropsHeldKeys(t *testing.T) {
	l := NewKeyedLock()
	assert.NoError(t, l.TryAcquire("sale_1", "holder"))
	l.Close()
	assert.NoError(t, l.TryAcquire("sale_1", "holder"))
}
