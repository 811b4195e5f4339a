package inmemstore

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/sportshub/core"
)

type (
	collection map[string][]byte // {id: json}

	watcher struct {
		collection string
		filters    []core.Filter
		fn         func([]core.Doc)
		dirty      chan struct{}
		done       chan struct{}
	}

	// FailFunc lets tests inject backend failures. Returning a non-nil error aborts the operation.
	FailFunc func(op, collection, id string) error

	// Store is a process-local core.DocStore. Documents are kept encoded so reads never share memory with writers.
	Store struct {
		mutex       sync.RWMutex
		collections map[string]collection
		watchers    map[*watcher]struct{}
		now         func() time.Time
		failOn      FailFunc
	}
)

var _ core.DocStore = (*Store)(nil)

func New() *Store {
	return &Store{
		collections: make(map[string]collection),
		watchers:    make(map[*watcher]struct{}),
		now:         func() time.Time { return core.NowFunc().UTC() },
	}
}

// FailOn installs a failure hook (nil removes it).
func (s *Store) FailOn(fn FailFunc) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.failOn = fn
}

func (s *Store) fail(op, coll, id string) error {
	if s.failOn == nil {
		return nil
	}
	if err := s.failOn(op, coll, id); err != nil {
		return core.NewStoreError(op, err)
	}
	return nil
}

func (s *Store) coll(name string) collection {
	c, ok := s.collections[name]
	if !ok {
		c = make(collection)
		s.collections[name] = c
	}
	return c
}

func (s *Store) Get(ctx context.Context, coll, id string, dst interface{}) error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if err := s.fail("get", coll, id); err != nil {
		return err
	}
	data, ok := s.collections[coll][id]
	if !ok {
		return core.NewStoreError("get", core.ErrNotFound)
	}
	return core.NewStoreError("get", core.Doc{ID: id, Data: data}.Decode(dst))
}

func (s *Store) Add(ctx context.Context, coll string, doc interface{}) (string, error) {
	id := core.AssignID(doc)
	if err := s.Batch(ctx, []core.Write{{Kind: core.WriteSet, Collection: coll, ID: id, Doc: doc}}); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) Set(ctx context.Context, coll, id string, doc interface{}) error {
	return s.Batch(ctx, []core.Write{core.SetWrite(coll, id, doc)})
}

func (s *Store) Update(ctx context.Context, coll, id string, fields map[string]interface{}) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := s.fail("update", coll, id); err != nil {
		return err
	}
	data, ok := s.collections[coll][id]
	if !ok {
		return core.NewStoreError("update", core.ErrNotFound)
	}
	merged, err := core.MergeFields(data, fields, s.now())
	if err != nil {
		return core.NewStoreError("update", err)
	}
	s.coll(coll)[id] = merged
	s.notify(coll)
	return nil
}

func (s *Store) Delete(ctx context.Context, coll, id string) error {
	return s.Batch(ctx, []core.Write{core.DeleteWrite(coll, id)})
}

func (s *Store) query(coll string, filters []core.Filter) []core.Doc {
	docs := make([]core.Doc, 0)
	for id, data := range s.collections[coll] {
		if core.MatchFilters(data, filters) {
			docs = append(docs, core.Doc{ID: id, Data: data})
		}
	}
	core.SortDocs(docs)
	return docs
}

func (s *Store) Query(ctx context.Context, coll string, filters []core.Filter, dst interface{}) error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if err := s.fail("query", coll, ""); err != nil {
		return err
	}
	return core.NewStoreError("query", core.DecodeDocs(s.query(coll, filters), dst))
}

// Batch encodes every write first, so a bad document leaves the store untouched.
func (s *Store) Batch(ctx context.Context, writes []core.Write) error {
	if err := ctx.Err(); err != nil {
		return core.NewStoreError("batch", err)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := s.now()
	encoded := make([][]byte, len(writes))
	for i, w := range writes {
		if err := s.fail("batch", w.Collection, w.ID); err != nil {
			return err
		}
		if w.Kind == core.WriteDelete {
			continue
		}
		if w.Kind == core.WriteAdd && w.ID == "" {
			writes[i].ID = core.AssignID(w.Doc)
		}
		data, err := core.EncodeDoc(w.Doc, now)
		if err != nil {
			return core.NewStoreError("batch", err)
		}
		encoded[i] = data
	}

	touched := make(map[string]bool)
	for i, w := range writes {
		if w.Kind == core.WriteDelete {
			delete(s.coll(w.Collection), w.ID)
		} else {
			s.coll(w.Collection)[w.ID] = encoded[i]
		}
		touched[w.Collection] = true
	}
	for coll := range touched {
		s.notify(coll)
	}
	return nil
}

// notify must be called with the write lock held.
func (s *Store) notify(coll string) {
	for w := range s.watchers {
		if w.collection != coll {
			continue
		}
		select {
		case w.dirty <- struct{}{}:
		default: // a refresh is already pending
		}
	}
}

func (s *Store) Watch(ctx context.Context, coll string, filters []core.Filter, fn func([]core.Doc)) (func(), error) {
	if fn == nil {
		return nil, core.NewStoreError("watch", errors.New("nil callback"))
	}
	w := &watcher{
		collection: coll,
		filters:    filters,
		fn:         fn,
		dirty:      make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	w.dirty <- struct{}{} // initial snapshot

	s.mutex.Lock()
	s.watchers[w] = struct{}{}
	s.mutex.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				s.unwatch(w)
				return
			case <-w.done:
				return
			case <-w.dirty:
				s.mutex.RLock()
				docs := s.query(w.collection, w.filters)
				s.mutex.RUnlock()
				w.fn(docs)
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { s.unwatch(w) }) }, nil
}

func (s *Store) unwatch(w *watcher) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, ok := s.watchers[w]; ok {
		delete(s.watchers, w)
		close(w.done)
	}
}

func (s *Store) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for w := range s.watchers {
		delete(s.watchers, w)
		close(w.done)
	}
	return nil
}
