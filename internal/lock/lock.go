package lock

import (
	"fmt"
	"sync"
)

// KeyedLock is a process-local set of exclusive locks addressed by key. It is
// an owned object, constructed once per client instance; its state lives only
// for that instance's lifetime.
//
// Acquiring a key that is already held fails immediately rather than
// blocking, which is what lets a second concurrent sale completion be
// rejected instead of queued.
type KeyedLock struct {
	mu   sync.Mutex
	held map[string]string // key -> holder tag
}

func NewKeyedLock() *KeyedLock {
	return &KeyedLock{held: make(map[string]string)}
}

// TryAcquire takes the lock for key on behalf of holder. It never blocks: if
// the key is already held it returns an error straight away.
func (l *KeyedLock) TryAcquire(key, holder string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, taken := l.held[key]; taken {
		return fmt.Errorf("lock for key %s is already held", key)
	}
	l.held[key] = holder
	return nil
}

// Release frees the lock for key. Only the holder that acquired it may
// release it.
func (l *KeyedLock) Release(key, holder string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	current, taken := l.held[key]
	if !taken {
		return fmt.Errorf("release failed, lock for key %s is not held", key)
	}
	if current != holder {
		return fmt.Errorf("release failed, you're not the lock holder for key %s", key)
	}
	delete(l.held, key)
	return nil
}

// Close drops every held key. Intended for instance teardown.
func (l *KeyedLock) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = make(map[string]string)
}
