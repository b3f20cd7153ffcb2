package fleet

import "sync"

// serialLocks serializes read-modify-write cycles per drone serial number.
// Entries are reference counted and dropped once nobody holds or waits for them.
type serialLocks struct {
	mu    sync.Mutex
	locks map[string]*serialLock
}

type serialLock struct {
	sync.Mutex
	refs int
}

func newSerialLocks() *serialLocks {
	return &serialLocks{locks: make(map[string]*serialLock)}
}

// lock blocks until serialNumber is free and returns its unlock func.
func (l *serialLocks) lock(serialNumber string) func() {
	l.mu.Lock()
	sl, ok := l.locks[serialNumber]
	if !ok {
		sl = &serialLock{}
		l.locks[serialNumber] = sl
	}
	sl.refs++
	l.mu.Unlock()

	sl.Lock()

	return func() {
		sl.Unlock()

		l.mu.Lock()
		sl.refs--
		if sl.refs == 0 {
			delete(l.locks, serialNumber)
		}
		l.mu.Unlock()
	}
}

func (l *serialLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
