package redisstore

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/sportshub/core"
)

const maxTxRetries = 10

// Store is a core.DocStore over Redis. Each document is a JSON string at "doc:{collection}:{id}",
// each collection a set of ids at "coll:{collection}". Writes publish the collection on "changes:{collection}".
type Store struct {
	client *redis.Client
	logger core.Logger
}

var _ core.DocStore = (*Store)(nil)

func New(client *redis.Client, logger core.Logger) *Store {
	return &Store{client: client, logger: logger}
}

// NewFromConfig connects to the configured server and checks it answers.
func NewFromConfig(ctx context.Context, conf *core.Config, logger core.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Address,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, core.NewStoreError("ping", err)
	}
	return New(client, logger), nil
}

func docKey(coll, id string) string { return "doc:" + coll + ":" + id }
func collKey(coll string) string    { return "coll:" + coll }
func changesKey(coll string) string { return "changes:" + coll }

// now returns the server clock.
func (s *Store) now(ctx context.Context) (time.Time, error) {
	t, err := s.client.Time(ctx).Result()
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func (s *Store) Get(ctx context.Context, coll, id string, dst interface{}) error {
	data, err := s.client.Get(ctx, docKey(coll, id)).Bytes()
	if errors.Is(err, redis.Nil) {
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

// Update merges fields under WATCH, retrying when the document changed concurrently.
func (s *Store) Update(ctx context.Context, coll, id string, fields map[string]interface{}) error {
	now, err := s.now(ctx)
	if err != nil {
		return core.NewStoreError("update", err)
	}
	key := docKey(coll, id)
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			return err
		}
		merged, err := core.MergeFields(data, fields, now)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, merged, 0)
			pipe.Publish(ctx, changesKey(coll), id)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err = s.client.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, redis.Nil):
			return core.NewStoreError("update", core.ErrNotFound)
		default:
			return core.NewStoreError("update", err)
		}
	}
	return core.NewStoreError("update", errors.New("too many concurrent updates"))
}

func (s *Store) Delete(ctx context.Context, coll, id string) error {
	return s.Batch(ctx, []core.Write{core.DeleteWrite(coll, id)})
}

func (s *Store) query(ctx context.Context, coll string, filters []core.Filter) ([]core.Doc, error) {
	ids, err := s.client.SMembers(ctx, collKey(coll)).Result()
	if err != nil {
		return nil, err
	}
	docs := make([]core.Doc, 0, len(ids))
	if len(ids) == 0 {
		return docs, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = docKey(coll, id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		str, ok := v.(string)
		if !ok { // deleted between SMEMBERS and MGET
			continue
		}
		if data := []byte(str); core.MatchFilters(data, filters) {
			docs = append(docs, core.Doc{ID: ids[i], Data: data})
		}
	}
	core.SortDocs(docs)
	return docs, nil
}

// Query filters client side: Redis has no secondary indexes over JSON strings.
func (s *Store) Query(ctx context.Context, coll string, filters []core.Filter, dst interface{}) error {
	docs, err := s.query(ctx, coll, filters)
	if err != nil {
		return core.NewStoreError("query", err)
	}
	return core.NewStoreError("query", core.DecodeDocs(docs, dst))
}

// Batch encodes every write, then applies them in one MULTI/EXEC.
func (s *Store) Batch(ctx context.Context, writes []core.Write) error {
	now, err := s.now(ctx)
	if err != nil {
		return core.NewStoreError("batch", err)
	}

	type op struct {
		write core.Write
		data  []byte
	}
	ops := make([]op, 0, len(writes))
	for _, w := range writes {
		o := op{write: w}
		if w.Kind != core.WriteDelete {
			if w.Kind == core.WriteAdd && w.ID == "" {
				o.write.ID = core.AssignID(w.Doc)
			}
			if o.data, err = core.EncodeDoc(w.Doc, now); err != nil {
				return core.NewStoreError("batch", err)
			}
		}
		ops = append(ops, o)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		touched := make(map[string]bool)
		for _, o := range ops {
			w := o.write
			if w.Kind == core.WriteDelete {
				pipe.Del(ctx, docKey(w.Collection, w.ID))
				pipe.SRem(ctx, collKey(w.Collection), w.ID)
			} else {
				pipe.Set(ctx, docKey(w.Collection, w.ID), o.data, 0)
				pipe.SAdd(ctx, collKey(w.Collection), w.ID)
			}
			touched[w.Collection] = true
		}
		for coll := range touched {
			pipe.Publish(ctx, changesKey(coll), "batch")
		}
		return nil
	})
	return core.NewStoreError("batch", err)
}

func (s *Store) Watch(ctx context.Context, coll string, filters []core.Filter, fn func([]core.Doc)) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	ps := s.client.Subscribe(ctx, changesKey(coll))
	if _, err := ps.Receive(ctx); err != nil { // wait for the subscription confirmation
		cancel()
		_ = ps.Close()
		return nil, core.NewStoreError("watch", err)
	}

	refresh := func() {
		docs, err := s.query(ctx, coll, filters)
		if err != nil {
			if s.logger != nil && ctx.Err() == nil {
				s.logger.Error("refreshing watched documents", err)
			}
			return
		}
		fn(docs)
	}

	go func() {
		refresh()
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				// coalesce bursts
				for drained := false; !drained; {
					select {
					case _, ok := <-ch:
						drained = !ok
					default:
						drained = true
					}
				}
				refresh()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			_ = ps.Close()
		})
	}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
