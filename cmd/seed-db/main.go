// Command seed-db creates the schema and loads the demo catalog: products,
// coupons and API keys.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-orders/db"
	"github.com/xenking/kart-orders/internal/catalog"
	"github.com/xenking/kart-orders/internal/handler"
	"github.com/xenking/kart-orders/internal/storage/postgres"
)

func main() {
	var (
		databaseURL  string
		catalogFile  string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog", "", "path to a catalog JSON file (defaults to the embedded db/seed/catalog.json)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or KART_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("KART_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, catalogFile, []byte(apiKeyPepper)); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, catalogFile string, pepper []byte) error {
	data := db.Catalog
	if catalogFile != "" {
		slog.Info("reading catalog", slog.String("path", catalogFile))
		var err error
		if data, err = os.ReadFile(catalogFile); err != nil {
			return errors.Wrap(err, "read catalog")
		}
	}
	c, err := catalog.Parse(data)
	if err != nil {
		return err
	}

	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")
	if err := postgres.Migrate(ctx, pool); err != nil {
		return err
	}

	slog.Info("loading catalog",
		slog.Int("products", len(c.Products)),
		slog.Int("coupons", len(c.Coupons)),
		slog.Int("api_keys", len(c.APIKeys)),
	)
	hash := func(key string) string { return handler.HashKey(pepper, key) }
	if err := c.Load(ctx, postgres.NewStore(pool), hash); err != nil {
		return errors.Wrap(err, "load catalog")
	}
	for _, k := range c.APIKeys {
		slog.Info("upserted API key", slog.String("id", k.ID), slog.String("user", k.UserID), slog.String("role", string(k.Role)))
	}
	return nil
}
