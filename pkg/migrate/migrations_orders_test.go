package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/torquehub/torquehub-backend/pkg/migrate"
)

func TestPartsOrdersMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_parts_orders.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no parts orders migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS parts_orders",
		"CHECK (num_nonnulls(customer_id, technician_id) = 1)",
		"status order_status NOT NULL DEFAULT 'inquiry'",
		"CREATE INDEX IF NOT EXISTS ix_parts_orders_open_inquiries",
		"WHERE status = 'inquiry' AND supplier_id IS NULL",
		"CREATE TABLE IF NOT EXISTS order_items",
		"REFERENCES parts_orders(id) ON DELETE CASCADE",
		"DROP TABLE IF EXISTS order_items",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationDirValidates(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations dir: %v", err)
	}
}
