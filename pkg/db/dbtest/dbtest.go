// Package dbtest opens sqlite databases carrying the service schema for
// repository and service tests. Every CHECK in pkg/migrate/migrations is
// mirrored here.
package dbtest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/forkfleet/forkfleet-backend/pkg/db"
)

var schema = []string{
	`CREATE TABLE wallets (
		id text PRIMARY KEY,
		user_id text NOT NULL UNIQUE,
		balance integer NOT NULL DEFAULT 0 CHECK (balance >= 0),
		vendor_balance integer NOT NULL DEFAULT 0 CHECK (vendor_balance >= 0),
		currency text NOT NULL,
		created_at datetime,
		updated_at datetime
	)`,
	`CREATE TABLE wallet_transactions (
		id text PRIMARY KEY,
		wallet_id text NOT NULL,
		user_id text NOT NULL,
		order_id text,
		balance_kind text NOT NULL,
		direction text NOT NULL,
		amount integer NOT NULL CHECK (amount > 0),
		currency text NOT NULL,
		reason text NOT NULL,
		balance_after integer NOT NULL CHECK (balance_after >= 0),
		created_at datetime
	)`,
	`CREATE TABLE orders (
		id text PRIMARY KEY,
		order_number text NOT NULL UNIQUE,
		customer_id text NOT NULL,
		vendor_id text NOT NULL,
		order_type text NOT NULL,
		order_status text NOT NULL DEFAULT 'NEW',
		payment_method text NOT NULL,
		payment_status text NOT NULL DEFAULT 'PENDING',
		currency text NOT NULL,
		subtotal integer NOT NULL CHECK (subtotal >= 0),
		delivery_fee integer NOT NULL DEFAULT 0 CHECK (delivery_fee >= 0),
		total_amount integer NOT NULL,
		vendor_share integer NOT NULL,
		delivery_quote_id text,
		delivery_address_id text,
		order_ready_at datetime,
		delivered_at datetime,
		cancelled_at datetime,
		cancel_reason text,
		cancelled_by text,
		version integer NOT NULL DEFAULT 1,
		created_at datetime,
		updated_at datetime,
		CHECK (total_amount = subtotal + delivery_fee),
		CHECK (vendor_share >= 0 AND vendor_share <= total_amount),
		CHECK (order_type <> 'DELIVERY' OR delivery_quote_id IS NOT NULL)
	)`,
	`CREATE TABLE order_items (
		id text PRIMARY KEY,
		order_id text NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		menu_item_id text NOT NULL,
		name text NOT NULL,
		unit_price integer NOT NULL,
		quantity integer NOT NULL CHECK (quantity > 0),
		total_price integer NOT NULL,
		created_at datetime,
		CHECK (total_price = unit_price * quantity)
	)`,
	`CREATE TABLE payment_records (
		id text PRIMARY KEY,
		order_id text NOT NULL,
		kind text NOT NULL,
		provider text NOT NULL,
		amount integer NOT NULL CHECK (amount >= 0),
		currency text NOT NULL,
		status text NOT NULL,
		external_reference text,
		redirect_url text,
		failure_reason text,
		settled_at datetime,
		created_at datetime,
		updated_at datetime
	)`,
	`CREATE UNIQUE INDEX ux_payment_records_provider_reference
		ON payment_records (provider, external_reference)
		WHERE external_reference IS NOT NULL`,
	`CREATE TABLE delivery_quotes (
		id text PRIMARY KEY,
		vendor_id text NOT NULL,
		customer_id text NOT NULL,
		vendor_address_id text NOT NULL,
		customer_address_id text NOT NULL,
		provider text NOT NULL,
		fee integer NOT NULL CHECK (fee >= 0),
		currency text NOT NULL,
		request_token text NOT NULL,
		package_tier text NOT NULL,
		expires_at datetime NOT NULL,
		consumed_at datetime,
		order_id text,
		created_at datetime,
		CHECK ((consumed_at IS NULL) = (order_id IS NULL))
	)`,
	`CREATE TABLE delivery_bookings (
		id text PRIMARY KEY,
		order_id text NOT NULL UNIQUE,
		quote_id text NOT NULL,
		provider text NOT NULL,
		status text NOT NULL,
		external_delivery_id text,
		tracking_ref text,
		attempt_count integer NOT NULL DEFAULT 0,
		last_error text,
		next_attempt_at datetime,
		created_at datetime,
		updated_at datetime
	)`,
	`CREATE TABLE vendors (
		id text PRIMARY KEY,
		owner_user_id text NOT NULL,
		name text NOT NULL,
		address_id text NOT NULL,
		currency text NOT NULL,
		accepting_orders boolean NOT NULL,
		updated_at datetime
	)`,
	`CREATE TABLE menu_items (
		id text PRIMARY KEY,
		vendor_id text NOT NULL,
		name text NOT NULL,
		price integer NOT NULL CHECK (price >= 0),
		currency text NOT NULL,
		available boolean NOT NULL,
		updated_at datetime
	)`,
	`CREATE TABLE addresses (
		id text PRIMARY KEY,
		user_id text NOT NULL,
		line1 text NOT NULL,
		line2 text,
		city text NOT NULL,
		region text NOT NULL,
		postal_code text NOT NULL,
		country text NOT NULL,
		lat real,
		lng real,
		place_id text,
		updated_at datetime
	)`,
	`CREATE TABLE outbox_events (
		id text PRIMARY KEY,
		event_type text NOT NULL,
		aggregate_type text NOT NULL,
		aggregate_id text NOT NULL,
		payload blob NOT NULL,
		created_at datetime,
		published_at datetime,
		attempt_count integer NOT NULL DEFAULT 0,
		last_error text
	)`,
	`CREATE TABLE outbox_dlq (
		id text PRIMARY KEY,
		event_id text NOT NULL,
		event_type text NOT NULL,
		aggregate_type text NOT NULL,
		aggregate_id text NOT NULL,
		payload_json blob NOT NULL,
		error_reason text NOT NULL,
		error_message text,
		attempt_count integer NOT NULL DEFAULT 0,
		failed_at datetime,
		created_at datetime
	)`,
}

// Open returns an isolated in-memory database with every table created. The
// pool is pinned to one connection so concurrent transactions serialize.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(uuid.NewString(), "-", "")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", name)
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v\n%s", err, stmt)
		}
	}
	return conn
}

// Client wraps Open in a *db.Client so services get a real transaction runner.
func Client(t *testing.T) (*db.Client, *gorm.DB) {
	t.Helper()
	conn := Open(t)
	return db.Wrap(conn), conn
}
