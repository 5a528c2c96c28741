package httpserver

import "sync"

// contextLocks serializes requests that share a client context id, so a
// request saves state only after seeing the previous request's write. Entries
// are dropped once no request holds or waits on them.
type contextLocks struct {
	mu    sync.Mutex
	locks map[string]*contextLock
}

type contextLock struct {
	sync.Mutex
	refs int
}

// lock blocks until id is free and returns the matching unlock.
func (l *contextLocks) lock(id string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*contextLock)
	}
	cl, ok := l.locks[id]
	if !ok {
		cl = &contextLock{}
		l.locks[id] = cl
	}
	cl.refs++
	l.mu.Unlock()

	cl.Lock()
	return func() {
		cl.Unlock()
		l.mu.Lock()
		cl.refs--
		if cl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func (l *contextLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
