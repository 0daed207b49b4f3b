package resource

import (
	"sync"

	"go.uber.org/multierr"
)

// Store holds one table per resource name.
type Store struct {
	mu        sync.Mutex
	tables    map[string]*Table
	order     []string
	observers []*storeSub
}

// storeSub tracks the per-table subscriptions of one store observer.
type storeSub struct {
	o       Observer
	cancels []func()
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{tables: make(map[string]*Table)}
}

// Table returns the table for name, creating one with the default
// destructor if needed.
func (s *Store) Table(name string) *Table {
	return s.Define(name, nil)
}

// Define returns the table for name, creating it with dtor if it does not
// exist yet. An existing table keeps its destructor.
func (s *Store) Define(name string, dtor Destructor) *Table {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.tables[name]; ok {
		return t
	}
	t := NewTable(name, dtor)
	for _, sub := range s.observers {
		sub.cancels = append(sub.cancels, t.Subscribe(sub.o))
	}
	s.tables[name] = t
	s.order = append(s.order, name)
	return t
}

// Lookup returns the table for name if it exists.
func (s *Store) Lookup(name string) (*Table, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[name]
	return t, ok
}

// Subscribe adds o to every current and future table. cancel removes it
// from all of them.
func (s *Store) Subscribe(o Observer) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := &storeSub{o: o}
	for _, name := range s.order {
		sub.cancels = append(sub.cancels, s.tables[name].Subscribe(o))
	}
	s.observers = append(s.observers, sub)
	return func() { s.unsubscribe(sub) }
}

func (s *Store) unsubscribe(sub *storeSub) {
	s.mu.Lock()
	next := make([]*storeSub, 0, len(s.observers))
	for _, other := range s.observers {
		if other != sub {
			next = append(next, other)
		}
	}
	s.observers = next
	cancels := sub.cancels
	sub.cancels = nil
	s.mu.Unlock()

	for _, c := range cancels {
		c()
	}
}

// Close closes every table in creation order and combines their errors.
func (s *Store) Close() error {
	s.mu.Lock()
	tables := make([]*Table, 0, len(s.order))
	for _, name := range s.order {
		tables = append(tables, s.tables[name])
	}
	s.mu.Unlock()

	var err error
	for _, t := range tables {
		err = multierr.Append(err, t.Close())
	}
	return err
}
