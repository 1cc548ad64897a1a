// Command seed-db loads retailers, products, initial stock and a default API
// key into the database from a fixtures file.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Shubhambn/dairy9-fulfillment/internal/storage/postgres"
)

type fixtures struct {
	Retailers []retailerJSON `json:"retailers"`
	Products  []productJSON  `json:"products"`
	Stock     []stockJSON    `json:"stock"`
}

type retailerJSON struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
	ServiceRadiusKm float64 `json:"service_radius_km"`
	Active          bool    `json:"active"`
}

type productJSON struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
	Active bool            `json:"active"`
}

type stockJSON struct {
	RetailerID string `json:"retailer_id"`
	ProductID  string `json:"product_id"`
	TotalStock int    `json:"total_stock"`
}

func main() {
	var (
		databaseURL  string
		fixturesFile string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&fixturesFile, "fixtures-file", "db/seed/fixtures.json", "path to fixtures JSON file")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or DAIRY9_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or DAIRY9_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("DAIRY9_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or DAIRY9_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("DAIRY9_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, fixturesFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, fixturesFile, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	slog.Info("reading fixtures file", slog.String("path", fixturesFile))

	data, err := os.ReadFile(fixturesFile)
	if err != nil {
		return errors.Wrap(err, "read fixtures file")
	}
	var fx fixtures
	if err := json.Unmarshal(data, &fx); err != nil {
		return errors.Wrap(err, "parse fixtures JSON")
	}

	if err := seedRetailers(ctx, pool, fx.Retailers); err != nil {
		return errors.Wrap(err, "seed retailers")
	}
	if err := seedProducts(ctx, pool, fx.Products); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedStock(ctx, pool, fx.Stock); err != nil {
		return errors.Wrap(err, "seed stock")
	}
	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func seedRetailers(ctx context.Context, pool *pgxpool.Pool, retailers []retailerJSON) error {
	slog.Info("upserting retailers", slog.Int("count", len(retailers)))

	const q = `INSERT INTO retailers (id, name, active, latitude, longitude, service_radius_km)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, active = EXCLUDED.active,
			latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude,
			service_radius_km = EXCLUDED.service_radius_km`

	for _, r := range retailers {
		if _, err := pool.Exec(ctx, q, r.ID, r.Name, r.Active, r.Latitude, r.Longitude, r.ServiceRadiusKm); err != nil {
			return errors.Wrapf(err, "upsert retailer %s", r.ID)
		}
		slog.Info("upserted retailer", slog.String("id", r.ID), slog.String("name", r.Name))
	}
	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, products []productJSON) error {
	slog.Info("upserting products", slog.Int("count", len(products)))

	const q = `INSERT INTO products (id, name, price, active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, price = EXCLUDED.price, active = EXCLUDED.active`

	for _, p := range products {
		if _, err := pool.Exec(ctx, q, p.ID, p.Name, p.Price, p.Active); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}
	return nil
}

func seedStock(ctx context.Context, pool *pgxpool.Pool, stock []stockJSON) error {
	slog.Info("upserting stock", slog.Int("count", len(stock)))

	// Reserved stock is never seeded; a fresh row starts with no holds.
	const q = `INSERT INTO inventory_items (retailer_id, product_id, total_stock, reserved_stock)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (retailer_id, product_id) DO UPDATE SET
			total_stock = EXCLUDED.total_stock, updated_at = now()`

	for _, s := range stock {
		if _, err := pool.Exec(ctx, q, s.RetailerID, s.ProductID, s.TotalStock); err != nil {
			return errors.Wrapf(err, "upsert stock %s/%s", s.RetailerID, s.ProductID)
		}
	}
	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	slog.Info("seeding default API key")

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	const q = `INSERT INTO api_keys (id, key_hash, name, scopes, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			key_hash = EXCLUDED.key_hash, name = EXCLUDED.name,
			scopes = EXCLUDED.scopes, active = EXCLUDED.active`

	if _, err := pool.Exec(ctx, q, "default", keyHash, "Default ops key", []string{"manage_stock"}, true); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", "default"))
	return nil
}
