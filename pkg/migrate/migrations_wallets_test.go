package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWalletMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_wallets.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no wallet migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS wallets",
		"CHECK (balance >= 0)",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_wallets_owner ON wallets (owner_id, owner_role)",
		"CREATE TABLE IF NOT EXISTS wallet_transactions",
		"CHECK (amount > 0)",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_wallet_txns_external_payment",
		"WHERE external_payment_id IS NOT NULL",
		"DROP TABLE IF EXISTS wallet_transactions",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}
