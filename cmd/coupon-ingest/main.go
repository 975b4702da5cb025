// Command coupon-ingest bulk-loads coupon definitions from gzip-compressed
// JSON-lines files. The first definition of a code wins; later duplicates,
// within or across files, are skipped.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-orders/internal/catalog"
	"github.com/xenking/kart-orders/internal/domain/coupon"
	"github.com/xenking/kart-orders/internal/storage/postgres"
)

const (
	bloomFPR      = 0.001
	progressEvery = 100_000
	maxLineBytes  = 64 << 10
)

type couponWriter interface {
	UpsertCoupon(ctx context.Context, c coupon.Coupon) error
}

type stats struct {
	lines      atomic.Int64
	written    atomic.Int64
	duplicates atomic.Int64
}

func main() {
	var (
		databaseURL string
		workers     int
		expected    uint
		dryRun      bool
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&workers, "workers", 8, "concurrent upserts")
	flag.UintVar(&expected, "expected", 1_000_000, "expected number of coupon lines, sizes the Bloom filter")
	flag.BoolVar(&dryRun, "dry-run", false, "validate and de-duplicate without writing")
	flag.Usage = func() {
		_, _ = os.Stderr.WriteString("usage: coupon-ingest [flags] coupons1.jsonl.gz [coupons2.jsonl.gz ...]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	st, err := run(ctx, files, databaseURL, dryRun, workers, expected)
	if err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("coupon ingest completed successfully",
		slog.Int64("lines", st.lines.Load()),
		slog.Int64("written", st.written.Load()),
		slog.Int64("duplicates", st.duplicates.Load()),
	)
}

func run(ctx context.Context, files []string, databaseURL string, dryRun bool, workers int, expected uint) (*stats, error) {
	if dryRun {
		return ingest(ctx, files, discard{}, workers, expected)
	}
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "connect to database")
	}
	defer pool.Close()
	return ingest(ctx, files, postgres.NewStore(pool), workers, expected)
}

type discard struct{}

func (discard) UpsertCoupon(context.Context, coupon.Coupon) error { return nil }

// ingest runs two passes over files. The first records every code in a Bloom
// filter and collects the codes it reports as already present. Those suspects
// are the only codes tracked exactly in the second pass, which streams the
// coupons to the writers.
func ingest(ctx context.Context, files []string, w couponWriter, workers int, expected uint) (*stats, error) {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return nil, errors.Wrapf(err, "check file %s", f)
		}
	}

	slog.Info("pass 1: scanning codes", slog.Int("files", len(files)))
	suspects, err := findSuspects(ctx, files, expected)
	if err != nil {
		return nil, errors.Wrap(err, "find duplicates")
	}
	slog.Info("pass 1 complete", slog.Int("possible_duplicates", len(suspects)))

	slog.Info("pass 2: writing coupons", slog.Int("workers", workers))
	st := &stats{}
	coupons := make(chan coupon.Coupon, workers*4)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(coupons)
		seen := make(map[string]struct{}, len(suspects))
		for _, f := range files {
			err := streamCoupons(gctx, f, func(c coupon.Coupon) error {
				n := st.lines.Add(1)
				if n%progressEvery == 0 {
					slog.Info("pass 2 progress", slog.Int64("lines", n))
				}
				if _, ok := suspects[c.Code]; ok {
					if _, dup := seen[c.Code]; dup {
						st.duplicates.Add(1)
						return nil
					}
					seen[c.Code] = struct{}{}
				}
				select {
				case coupons <- c:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	for range max(workers, 1) {
		g.Go(func() error {
			for c := range coupons {
				if err := w.UpsertCoupon(gctx, c); err != nil {
					return err
				}
				st.written.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return st, err
	}
	return st, nil
}

func findSuspects(ctx context.Context, files []string, expected uint) (map[string]struct{}, error) {
	filter := bloom.NewWithEstimates(max(expected, 1), bloomFPR)
	suspects := make(map[string]struct{})
	for _, f := range files {
		err := streamCoupons(ctx, f, func(c coupon.Coupon) error {
			if filter.TestAndAddString(c.Code) {
				suspects[c.Code] = struct{}{}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return suspects, nil
}

// streamCoupons decodes every non-empty line of a gzip file as a coupon.
func streamCoupons(ctx context.Context, path string, fn func(c coupon.Coupon) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)
	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(scanner.Bytes()) == 0 {
			continue
		}
		c, err := catalog.ParseCoupon(scanner.Bytes())
		if err != nil {
			return errors.Wrapf(err, "%s:%d", path, line)
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
