package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"

	"github.com/noah-isme/toko-tierprice/internal/catalog"
	"github.com/noah-isme/toko-tierprice/internal/obs"
	"github.com/noah-isme/toko-tierprice/internal/pricing"
)

type demoProduct struct {
	ID      int64
	Name    string
	Price   string
	MetaKey string
	Rules   []pricing.RawRule
}

func priceDiscount(from, to, amount string) pricing.RawRule {
	return pricing.RawRule{Type: "price_discount", From: pricing.FlexStr(from), To: pricing.FlexStr(to), Amount: pricing.FlexStr(amount)}
}

var demoProducts = []demoProduct{
	{
		ID: 12, Name: "Café de especialidad 250g", Price: "20.00", MetaKey: catalog.MetaKeyPricingRules,
		Rules: []pricing.RawRule{priceDiscount("2", "4", "2,00"), priceDiscount("5", "", "5,00")},
	},
	{
		ID: 123, Name: "Taza de cerámica", Price: "9.95", MetaKey: catalog.MetaKeyPricingRules,
		Rules: []pricing.RawRule{priceDiscount("3", "9", "0.95"), priceDiscount("10", "", "1.95")},
	},
	{
		// rules stored under the legacy key exercise the lookup fallback
		ID: 200, Name: "Filtro de papel x100", Price: "4.50", MetaKey: catalog.MetaKeyLegacyPricingRules,
		Rules: []pricing.RawRule{priceDiscount("5", "", "0.50")},
	},
	{ID: 300, Name: "Molinillo manual", Price: "49.00"},
}

func main() {
	logger := obs.NewLogger("console", "info").With().Str("component", "seeder").Logger()
	if err := godotenv.Load(); err != nil {
		logger.Info().Msg("no .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal().Msg("DATABASE_URL is not set")
	}

	if err := catalog.Migrate(dbURL); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer conn.Close(context.Background())

	for _, p := range demoProducts {
		if err := seedProduct(ctx, conn, p); err != nil {
			logger.Error().Err(err).Int64("product_id", p.ID).Msg("seed product")
			continue
		}
		logger.Info().Int64("product_id", p.ID).Str("name", p.Name).Int("rules", len(p.Rules)).Msg("product seeded")
	}

	if _, err := conn.Exec(ctx, `SELECT setval(pg_get_serial_sequence('products', 'id'), (SELECT MAX(id) FROM products))`); err != nil {
		logger.Warn().Err(err).Msg("advance product id sequence")
	}
	logger.Info().Msg("seeding completed")
}

func seedProduct(ctx context.Context, conn *pgx.Conn, p demoProduct) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO products (id, name, price)
		VALUES ($1, $2, $3::numeric)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price, updated_at = now()
	`, p.ID, p.Name, p.Price); err != nil {
		return err
	}

	if len(p.Rules) > 0 {
		payload, err := json.Marshal([]pricing.RuleGroup{{Rules: p.Rules}})
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO product_pricing_rules (product_id, meta_key, rules)
			VALUES ($1, $2, $3::jsonb)
			ON CONFLICT (product_id, meta_key) DO UPDATE SET rules = EXCLUDED.rules, updated_at = now()
		`, p.ID, p.MetaKey, string(payload)); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
