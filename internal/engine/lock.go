package engine

import "sync"

// ReconciliationLock guards construction of the single live session.
// It is a try-lock: a request that finds it held is dropped by the caller,
// never queued.
type ReconciliationLock struct {
	mu     sync.Mutex
	holder string
}

// TryAcquire takes the lock for op. Returns false if it is already held.
func (l *ReconciliationLock) TryAcquire(op string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holder != "" {
		return false
	}
	l.holder = op
	return true
}

// Release frees the lock.
func (l *ReconciliationLock) Release() {
	l.mu.Lock()
	l.holder = ""
	l.mu.Unlock()
}

// Holder returns the operation holding the lock, or "".
func (l *ReconciliationLock) Holder() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holder
}
