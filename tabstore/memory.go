package tabstore

import "sync"

// MemoryStorage is a thread-safe in-memory Storage, one per simulated tab.
type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStorage creates an empty per-tab storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

func (s *MemoryStorage) Get(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key]
}

func (s *MemoryStorage) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value == "" {
		delete(s.values, key)
		return
	}
	s.values[key] = value
}

func (s *MemoryStorage) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// MemoryDurable is a process-wide DurableStore shared by every tab attached
// to it. Tab registers a view whose writes notify every other tab's
// watchers, matching browser storage-event semantics.
type MemoryDurable struct {
	mu       sync.RWMutex
	values   map[string]string
	nextID   int
	watchers map[int]*durableWatcher
}

type durableWatcher struct {
	tab int
	fn  func(key, value string)
}

// NewMemoryDurable creates an empty shared durable store.
func NewMemoryDurable() *MemoryDurable {
	return &MemoryDurable{
		values:   make(map[string]string),
		watchers: make(map[int]*durableWatcher),
	}
}

// Tab returns a view of the store bound to a distinct tab. Changes made
// through one view are announced to watchers registered through the others.
func (d *MemoryDurable) Tab() DurableStore {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return &durableView{store: d, tab: d.nextID}
}

type durableView struct {
	store *MemoryDurable
	tab   int
}

func (v *durableView) Get(key string) string {
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	return v.store.values[key]
}

func (v *durableView) Set(key, value string) {
	v.store.mu.Lock()
	if value == "" {
		delete(v.store.values, key)
	} else {
		v.store.values[key] = value
	}
	targets := v.store.watchersExcept(v.tab)
	v.store.mu.Unlock()

	for _, fn := range targets {
		fn(key, value)
	}
}

func (v *durableView) Delete(key string) {
	v.Set(key, "")
}

func (v *durableView) Watch(fn func(key, value string)) (cancel func()) {
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	v.store.nextID++
	id := v.store.nextID
	v.store.watchers[id] = &durableWatcher{tab: v.tab, fn: fn}
	return func() {
		v.store.mu.Lock()
		defer v.store.mu.Unlock()
		delete(v.store.watchers, id)
	}
}

// watchersExcept collects callbacks of every tab but the mutating one.
// Callers must hold at least a read lock.
func (d *MemoryDurable) watchersExcept(tab int) []func(key, value string) {
	fns := make([]func(key, value string), 0, len(d.watchers))
	for _, w := range d.watchers {
		if w.tab != tab {
			fns = append(fns, w.fn)
		}
	}
	return fns
}
