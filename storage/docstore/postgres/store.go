package pgstore

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/sportshub/core"
)

const notifyChannel = "document_changes"

type (
	row struct {
		ID   string `db:"id"`
		Data []byte `db:"data"`
	}

	watcher struct {
		collection string
		filters    []core.Filter
		fn         func([]core.Doc)
		dirty      chan struct{}
		done       chan struct{}
	}

	// Store is a core.DocStore over a single PostgreSQL JSONB table.
	// Change feeds are driven by LISTEN/NOTIFY.
	Store struct {
		db       *sqlx.DB
		listener *pq.Listener
		logger   core.Logger

		mu       sync.Mutex
		watchers map[*watcher]struct{}
		closed   chan struct{}
	}
)

var _ core.DocStore = (*Store)(nil)

// New returns a store over db. dsn is used by the notification listener; an empty dsn disables Watch.
func New(db *sqlx.DB, dsn string, logger core.Logger) (*Store, error) {
	s := &Store{
		db:       db,
		logger:   logger,
		watchers: make(map[*watcher]struct{}),
		closed:   make(chan struct{}),
	}
	if dsn == "" {
		return s, nil
	}

	s.listener = pq.NewListener(dsn, 100*time.Millisecond, 10*time.Second, func(ev pq.ListenerEventType, err error) {
		if err != nil && s.logger != nil {
			s.logger.Error("document listener", err)
		}
	})
	if err := s.listener.Listen(notifyChannel); err != nil {
		_ = s.listener.Close()
		return nil, core.NewStoreError("listen", err)
	}
	go s.dispatch()
	return s, nil
}

// NewFromConfig opens the database, applies the migrations and starts the store.
func NewFromConfig(conf *core.Config, logger core.Logger) (*Store, error) {
	db, err := Open(conf)
	if err != nil {
		return nil, core.NewStoreError("open", err)
	}
	if err = Migrate(db.DB); err != nil {
		_ = db.Close()
		return nil, core.NewStoreError("migrate", err)
	}
	return New(db, DSN(conf.Database.Name, false, conf), logger)
}

func (s *Store) DB() *sqlx.DB { return s.db }

func (s *Store) now(ctx context.Context, q sqlx.QueryerContext) (time.Time, error) {
	var now time.Time
	if err := sqlx.GetContext(ctx, q, &now, "SELECT now()"); err != nil {
		return time.Time{}, err
	}
	return now.UTC(), nil
}

func (s *Store) Get(ctx context.Context, coll, id string, dst interface{}) error {
	var data []byte
	err := s.db.GetContext(ctx, &data, "SELECT data FROM documents WHERE collection = $1 AND id = $2", coll, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.NewStoreError("get", core.ErrNotFound)
	} else if err != nil {
		return core.NewStoreError("get", err)
	}
	return core.NewStoreError("get", core.Doc{ID: id, Data: data}.Decode(dst))
}

func (s *Store) Add(ctx context.Context, coll string, doc interface{}) (string, error) {
	id := core.AssignID(doc)
	if err := s.Batch(ctx, []core.Write{core.SetWrite(coll, id, doc)}); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) Set(ctx context.Context, coll, id string, doc interface{}) error {
	return s.Batch(ctx, []core.Write{core.SetWrite(coll, id, doc)})
}

func (s *Store) Update(ctx context.Context, coll, id string, fields map[string]interface{}) error {
	now, err := s.now(ctx, s.db)
	if err != nil {
		return core.NewStoreError("update", err)
	}
	patch, err := core.EncodeDoc(core.ResolveFields(fields, now), now)
	if err != nil {
		return core.NewStoreError("update", err)
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE documents SET data = data || $3::jsonb, updated_at = now() WHERE collection = $1 AND id = $2",
		coll, id, string(patch))
	if err != nil {
		return core.NewStoreError("update", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return core.NewStoreError("update", err)
	} else if n == 0 {
		return core.NewStoreError("update", core.ErrNotFound)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, coll, id string) error {
	return s.Batch(ctx, []core.Write{core.DeleteWrite(coll, id)})
}

func (s *Store) query(ctx context.Context, coll string, filters []core.Filter) ([]core.Doc, error) {
	contains, err := core.FiltersObject(filters)
	if err != nil {
		return nil, err
	}
	var rows []row
	err = s.db.SelectContext(ctx, &rows,
		"SELECT id, data FROM documents WHERE collection = $1 AND data @> $2::jsonb ORDER BY id", coll, string(contains))
	if err != nil {
		return nil, err
	}
	docs := make([]core.Doc, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, core.Doc{ID: r.ID, Data: r.Data})
	}
	return docs, nil
}

func (s *Store) Query(ctx context.Context, coll string, filters []core.Filter, dst interface{}) error {
	docs, err := s.query(ctx, coll, filters)
	if err != nil {
		return core.NewStoreError("query", err)
	}
	return core.NewStoreError("query", core.DecodeDocs(docs, dst))
}

// Batch runs every write in one transaction. Server timestamps come from the transaction's now().
func (s *Store) Batch(ctx context.Context, writes []core.Write) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return core.NewStoreError("batch", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now, err := s.now(ctx, tx)
	if err != nil {
		return core.NewStoreError("batch", err)
	}
	for _, w := range writes {
		if err = s.apply(ctx, tx, w, now); err != nil {
			return core.NewStoreError("batch", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return core.NewStoreError("batch", err)
	}
	return nil
}

func (s *Store) apply(ctx context.Context, tx *sqlx.Tx, w core.Write, now time.Time) error {
	if w.Kind == core.WriteDelete {
		_, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE collection = $1 AND id = $2", w.Collection, w.ID)
		return err
	}
	id := w.ID
	if w.Kind == core.WriteAdd && id == "" {
		id = core.AssignID(w.Doc)
	}
	data, err := core.EncodeDoc(w.Doc, now)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data, updated_at) VALUES ($1, $2, $3, now())
		ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		w.Collection, id, string(data)) // []byte params would be sent as bytea
	return err
}

func (s *Store) Watch(ctx context.Context, coll string, filters []core.Filter, fn func([]core.Doc)) (func(), error) {
	if s.listener == nil {
		return nil, core.NewStoreError("watch", errors.New("change notifications are disabled"))
	}
	w := &watcher{
		collection: coll,
		filters:    filters,
		fn:         fn,
		dirty:      make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	w.dirty <- struct{}{}

	s.mu.Lock()
	s.watchers[w] = struct{}{}
	s.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				s.unwatch(w)
				return
			case <-w.done:
				return
			case <-w.dirty:
				docs, err := s.query(ctx, w.collection, w.filters)
				if err != nil {
					if s.logger != nil && ctx.Err() == nil {
						s.logger.Error("refreshing watched documents", err)
					}
					continue
				}
				w.fn(docs)
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { s.unwatch(w) }) }, nil
}

// dispatch fans notifications out to the watchers of the changed collection.
// A nil notification means the connection was re-established: every watcher refreshes.
func (s *Store) dispatch() {
	for {
		select {
		case <-s.closed:
			return
		case n, ok := <-s.listener.Notify:
			if !ok {
				return
			}
			s.mu.Lock()
			for w := range s.watchers {
				if n != nil && n.Extra != w.collection {
					continue
				}
				select {
				case w.dirty <- struct{}{}:
				default:
				}
			}
			s.mu.Unlock()
		case <-time.After(90 * time.Second):
			go func() { _ = s.listener.Ping() }()
		}
	}
}

func (s *Store) unwatch(w *watcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.watchers[w]; ok {
		delete(s.watchers, w)
		close(w.done)
	}
}

func (s *Store) Close() error {
	s.mu.Lock()
	for w := range s.watchers {
		delete(s.watchers, w)
		close(w.done)
	}
	s.mu.Unlock()

	if s.listener != nil {
		close(s.closed)
		_ = s.listener.Close()
	}
	return s.db.Close()
}
