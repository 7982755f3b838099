package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/address"
	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/inventory"
	"github.com/xenking/storefront/internal/identity"
	"github.com/xenking/storefront/internal/storage/postgres"
)

type productJSON struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

type options struct {
	databaseURL  string
	productsFile string
	jwtSecret    string
	userID       string
	email        string
	admin        bool
	tokenTTL     time.Duration
}

func main() {
	var o options
	flag.StringVar(&o.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&o.productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&o.jwtSecret, "jwt-secret", "", "secret used to print a demo session token (or SHOP_JWT_SECRET env)")
	flag.StringVar(&o.userID, "user-id", "demo-user", "demo user id")
	flag.StringVar(&o.email, "email", "demo@example.com", "demo user email")
	flag.BoolVar(&o.admin, "admin", false, "grant the demo user the admin role")
	flag.DurationVar(&o.tokenTTL, "token-ttl", 24*time.Hour, "demo token lifetime")
	flag.Parse()

	if o.databaseURL == "" {
		o.databaseURL = os.Getenv("DATABASE_URL")
	}
	if o.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if o.jwtSecret == "" {
		o.jwtSecret = os.Getenv("SHOP_JWT_SECRET")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, o); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("seed completed successfully")
}

func run(ctx context.Context, o options) error {
	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, o.databaseURL, postgres.PoolConfig{MaxConns: 2})
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, postgres.NewInventoryRepository(pool), o.productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedAddress(ctx, postgres.NewAddressRepository(pool), o.userID); err != nil {
		return errors.Wrap(err, "seed address")
	}

	if o.jwtSecret == "" {
		slog.Info("no jwt secret given, skipping demo token")
		return nil
	}
	return printToken(o)
}

func seedProducts(ctx context.Context, repo *postgres.InventoryRepository, path string) error {
	slog.Info("reading products file", slog.String("path", path))
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}
	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	for _, p := range products {
		if err := repo.UpsertProduct(ctx, inventory.Product{
			ID:    p.ID,
			Name:  p.Name,
			Price: p.Price,
			Stock: p.Stock,
		}); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
		slog.Info("upserted product", slog.String("id", p.ID), slog.Int("stock", p.Stock))
	}
	return nil
}

func seedAddress(ctx context.Context, repo *postgres.AddressRepository, userID string) error {
	a := address.Address{
		ID:         userID + "-main",
		UserID:     userID,
		Recipient:  "Demo User",
		Phone:      "+628123456789",
		Street:     "Jl. Braga No. 10",
		City:       "Bandung",
		PostalCode: "40111",
		Main:       true,
	}
	if err := repo.Upsert(ctx, a); err != nil {
		return err
	}
	slog.Info("upserted main address", slog.String("user_id", userID))
	return nil
}

func printToken(o options) error {
	authn, err := identity.NewJWTAuthenticator(o.jwtSecret)
	if err != nil {
		return errors.Wrap(err, "create authenticator")
	}
	id := auth.Identity{UserID: o.userID, Email: o.email, Name: "Demo User"}
	if o.admin {
		id.Roles = []string{auth.RoleAdmin}
	}
	tok, err := authn.Issue(id, o.tokenTTL)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}
