package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/atelie-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no %s migration file found", suffix)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestOrdersMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "create_orders")
	checks := []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_orders_code ON orders (code)",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_payments_transaction ON payments (transaction_id) WHERE transaction_id IS NOT NULL",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_public_tokens_token ON public_tokens (token) WHERE token IS NOT NULL",
		"raw_history jsonb NOT NULL DEFAULT '[]'::jsonb",
		"DROP TABLE IF EXISTS orders",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestCatalogMigrationGuardsStock(t *testing.T) {
	content := readMigration(t, "create_catalog")
	if !strings.Contains(content, "CHECK (stock >= 0)") {
		t.Fatal("products must reject negative stock")
	}
}

func TestShippingMigrationAllowsOneActiveLabel(t *testing.T) {
	content := readMigration(t, "create_shipping_fiscal")
	if !strings.Contains(content, "ON shipping_labels (order_id) WHERE status <> 'cancelled'") {
		t.Fatal("expected partial unique index on active labels")
	}
}

func TestMigrationsDirValidates(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Label Index!")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasSuffix(path, "_add_label_index.sql") {
		t.Fatalf("unexpected file name %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("validate created: %v", err)
	}
}
