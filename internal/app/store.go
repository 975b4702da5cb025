package app

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/kart-orders/db"
	"github.com/xenking/kart-orders/internal/catalog"
	"github.com/xenking/kart-orders/internal/domain/auth"
	"github.com/xenking/kart-orders/internal/domain/order"
	"github.com/xenking/kart-orders/internal/domain/review"
	"github.com/xenking/kart-orders/internal/handler"
	"github.com/xenking/kart-orders/internal/storage/memory"
	"github.com/xenking/kart-orders/internal/storage/postgres"
	"github.com/xenking/kart-orders/pkg/health"
)

// backend is the set of repositories a storage implementation provides.
type backend struct {
	tx        order.Transactor
	orders    order.Reader
	products  review.ProductFinder
	reviews   review.Repository
	purchases review.PurchaseVerifier
	apikeys   auth.Repository
	pinger    health.Pinger
	close     func()
}

func openBackend(ctx context.Context, lg *zap.Logger, cfg *Config) (*backend, error) {
	switch cfg.Store {
	case StoreMemory:
		return openMemory(ctx, lg, cfg)
	case StorePostgres:
		return openPostgres(ctx, cfg)
	default:
		return nil, errors.Errorf("unknown store %q", cfg.Store)
	}
}

func openPostgres(ctx context.Context, cfg *Config) (*backend, error) {
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}

	st := postgres.NewStore(pool)
	return &backend{
		tx:        st,
		orders:    st.Orders(),
		products:  st.Products(),
		reviews:   st.Reviews(),
		purchases: st.Orders(),
		apikeys:   st.APIKeys(),
		pinger:    st,
		close:     pool.Close,
	}, nil
}

func openMemory(ctx context.Context, lg *zap.Logger, cfg *Config) (*backend, error) {
	st := memory.New()
	if cfg.SeedCatalog {
		c, err := catalog.Parse(db.Catalog)
		if err != nil {
			return nil, errors.Wrap(err, "parse catalog")
		}
		pepper := []byte(cfg.APIKeyPepper)
		if err := c.Load(ctx, st, func(key string) string { return handler.HashKey(pepper, key) }); err != nil {
			return nil, errors.Wrap(err, "load catalog")
		}
		lg.Info("Memory store seeded",
			zap.Int("products", len(c.Products)),
			zap.Int("coupons", len(c.Coupons)),
			zap.Int("api_keys", len(c.APIKeys)),
		)
	}

	return &backend{
		tx:        st,
		orders:    st,
		products:  st.Products(),
		reviews:   st.Reviews(),
		purchases: st,
		apikeys:   st,
		pinger:    st,
		close:     func() {},
	}, nil
}
