// Package docstore opens the document store backend selected by the configuration.
package docstore

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/sportshub/core"
	inmemstore "github.com/trezcool/sportshub/storage/docstore/inmem"
	pgstore "github.com/trezcool/sportshub/storage/docstore/postgres"
	redisstore "github.com/trezcool/sportshub/storage/docstore/redis"
)

// Open returns the configured backend: the in-memory store (default), postgres (database created and
// migrated when missing) or redis.
func Open(ctx context.Context, conf *core.Config, logger core.Logger) (core.DocStore, error) {
	switch conf.Store.Backend {
	case core.StoreMemory, "":
		return inmemstore.New(), nil
	case core.StorePostgres:
		if err := pgstore.CreateIfNotExist(conf); err != nil {
			return nil, errors.Wrap(err, "creating database")
		}
		store, err := pgstore.NewFromConfig(conf, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case core.StoreRedis:
		store, err := redisstore.NewFromConfig(ctx, conf, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return nil, errors.Errorf("unknown store backend %q", conf.Store.Backend)
}
