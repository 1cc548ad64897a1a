// Command stock-ingest loads gzipped supplier stock feeds into the inventory
// ledger. Feed lines are "retailer_id,product_id,quantity". Every applied
// quantity goes through the ledger so the transaction log stays complete.
package main

import (
	"bufio"
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/fulfillment"
	"github.com/Shubhambn/dairy9-fulfillment/internal/domain/inventory"
	"github.com/Shubhambn/dairy9-fulfillment/internal/storage/postgres"
)

const (
	bloomCapacity = 1_000_000
	bloomFPR      = 0.001
	progressEvery = 1_000_000
	batchSize     = 500
)

type lineKey struct {
	retailerID string
	productID  string
}

func main() {
	var (
		dataDir     string
		databaseURL string
		actor       string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.gz stock feed files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&actor, "actor", "stock-ingest", "actor recorded on ledger transactions")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL, actor); err != nil {
		slog.Error("stock ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("stock ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL, actor string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.gz"))
	if err != nil {
		return errors.Wrap(err, "glob feed files")
	}
	if len(files) == 0 {
		return errors.Errorf("no .gz feed files in %s", dataDir)
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	// The catalog filter rejects unknown SKUs before any database work. Bloom
	// filters have no false negatives, so a miss is a definite unknown; the
	// rare false positive is caught by the foreign key on inventory_items.
	filter, err := buildCatalogFilter(ctx, pool)
	if err != nil {
		return errors.Wrap(err, "build catalog filter")
	}

	totals, err := aggregateFeeds(ctx, files, filter)
	if err != nil {
		return errors.Wrap(err, "aggregate feeds")
	}

	slog.Info("applying stock", slog.Int("items", len(totals)))

	if err := applyStock(ctx, pool, totals, actor); err != nil {
		return errors.Wrap(err, "apply stock")
	}

	return nil
}

// buildCatalogFilter loads all product IDs into a bloom filter.
func buildCatalogFilter(ctx context.Context, pool *pgxpool.Pool) (*bloom.BloomFilter, error) {
	rows, err := pool.Query(ctx, `SELECT id FROM products`)
	if err != nil {
		return nil, errors.Wrap(err, "query products")
	}
	defer rows.Close()

	filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
	var count int
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan product id")
		}
		filter.AddString(id)
		count++
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate products")
	}

	slog.Info("catalog filter built", slog.Int("products", count))
	return filter, nil
}

// aggregateFeeds streams every feed file concurrently and sums quantities per
// (retailer, product), skipping SKUs outside the catalog.
func aggregateFeeds(ctx context.Context, files []string, filter *bloom.BloomFilter) (map[lineKey]int, error) {
	var (
		mu     sync.Mutex
		totals = make(map[lineKey]int)
	)

	g, ctx := errgroup.WithContext(ctx)
	for _, f := range files {
		g.Go(ingestFile(ctx, f, filter, &mu, totals))
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return totals, nil
}

func ingestFile(
	ctx context.Context,
	path string,
	filter *bloom.BloomFilter,
	mu *sync.Mutex,
	totals map[lineKey]int,
) func() error {
	return func() error {
		local := make(map[lineKey]int)
		var seen, skipped uint64

		if err := streamGzFile(ctx, path, func(line string) {
			seen++
			if seen%progressEvery == 0 {
				slog.Info("feed progress", slog.String("file", filepath.Base(path)), slog.Uint64("lines", seen))
			}

			parts := strings.Split(line, ",")
			if len(parts) != 3 {
				skipped++
				return
			}
			retailerID := strings.TrimSpace(parts[0])
			productID := strings.TrimSpace(parts[1])
			qty, err := strconv.Atoi(strings.TrimSpace(parts[2]))
			if err != nil || qty <= 0 || retailerID == "" {
				skipped++
				return
			}
			if !filter.TestString(productID) {
				skipped++
				return
			}
			local[lineKey{retailerID: retailerID, productID: productID}] += qty
		}); err != nil {
			return errors.Wrapf(err, "stream %s", path)
		}

		slog.Info("feed complete",
			slog.String("file", filepath.Base(path)),
			slog.Uint64("lines", seen),
			slog.Uint64("skipped", skipped),
			slog.Int("items", len(local)),
		)

		mu.Lock()
		for k, q := range local {
			totals[k] += q
		}
		mu.Unlock()
		return nil
	}
}

// applyStock writes the aggregated quantities through the ledger, one retailer
// batch per unit of work.
func applyStock(ctx context.Context, pool *pgxpool.Pool, totals map[lineKey]int, actor string) error {
	byRetailer := make(map[string][]inventory.Line)
	for k, qty := range totals {
		byRetailer[k.retailerID] = append(byRetailer[k.retailerID], inventory.Line{
			ProductID: k.productID,
			Quantity:  qty,
		})
	}

	uow := postgres.NewUnitOfWork(pool)
	for retailerID, lines := range byRetailer {
		for start := 0; start < len(lines); start += batchSize {
			end := min(start+batchSize, len(lines))
			batch := lines[start:end]
			err := uow.Do(ctx, func(ctx context.Context, tx fulfillment.Tx) error {
				return tx.Ledger().StockIn(ctx, retailerID, batch, actor, "supplier feed")
			})
			if err != nil {
				return errors.Wrapf(err, "stock in for retailer %s", retailerID)
			}
		}
		slog.Info("stock applied", slog.String("retailer", retailerID), slog.Int("items", len(lines)))
	}
	return nil
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "gzip reader %s", path)
	}
	defer func() { _ = gz.Close() }()

	sc := bufio.NewScanner(gz)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fn(line)
	}
	if err := sc.Err(); err != nil && !errors.Is(err, io.EOF) {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
