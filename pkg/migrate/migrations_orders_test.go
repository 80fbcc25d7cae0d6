package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/forkfleet/forkfleet-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one %s migration, found %d", suffix, len(matches))
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func assertContains(t *testing.T, content string, checks []string) {
	t.Helper()
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestOrdersMigrationContainsConstraints(t *testing.T) {
	assertContains(t, readMigration(t, "create_orders"), []string{
		"CREATE TABLE IF NOT EXISTS orders",
		"CONSTRAINT ux_orders_order_number UNIQUE (order_number)",
		"CHECK (total_amount = subtotal + delivery_fee)",
		"CHECK (vendor_share >= 0 AND vendor_share <= total_amount)",
		"CHECK (order_type <> 'DELIVERY' OR delivery_quote_id IS NOT NULL)",
		"FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE",
		"CHECK (total_price = unit_price * quantity)",
		"DROP TABLE IF EXISTS orders",
	})
}

func TestWalletMigrationGuardsBalances(t *testing.T) {
	assertContains(t, readMigration(t, "create_wallets"), []string{
		"CONSTRAINT ux_wallets_user_id UNIQUE (user_id)",
		"CHECK (balance >= 0)",
		"CHECK (vendor_balance >= 0)",
		"CHECK (amount > 0)",
		"DROP TABLE IF EXISTS wallet_transactions",
	})
}

func TestDeliveryMigrationTiesQuoteConsumption(t *testing.T) {
	assertContains(t, readMigration(t, "create_delivery_tables"), []string{
		"CHECK ((consumed_at IS NULL) = (order_id IS NULL))",
		"CONSTRAINT ux_delivery_bookings_order UNIQUE (order_id)",
		"WHERE status = 'PENDING_RETRY'",
	})
}

func TestMigrationsDirectoryValidates(t *testing.T) {
	if err := migrate.Validate(os.DirFS("migrations")); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}
