// Package guard serializes writers. Ledger mutations lock one product and
// run in parallel with mutations of other products; restore and import take
// the whole dataset.
package guard

import "sync"

type Guard struct {
	dataset sync.RWMutex

	mu   sync.Mutex
	keys map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func New() *Guard {
	return &Guard{keys: make(map[string]*keyLock)}
}

// Product blocks until the caller owns productID and no exclusive holder is
// active. The returned func releases both.
func (g *Guard) Product(productID string) (unlock func()) {
	g.dataset.RLock()

	g.mu.Lock()
	k, ok := g.keys[productID]
	if !ok {
		k = &keyLock{}
		g.keys[productID] = k
	}
	k.refs++
	g.mu.Unlock()

	k.mu.Lock()
	return func() {
		k.mu.Unlock()

		g.mu.Lock()
		k.refs--
		if k.refs == 0 {
			delete(g.keys, productID)
		}
		g.mu.Unlock()

		g.dataset.RUnlock()
	}
}

// Exclusive waits for every product holder to finish and keeps new ones out
// until unlock is called.
func (g *Guard) Exclusive() (unlock func()) {
	g.dataset.Lock()
	return g.dataset.Unlock
}
