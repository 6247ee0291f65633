package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readMigration(t *testing.T, pattern string) string {
	t.Helper()

	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %q", pattern)
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestOrdersMigrationContainsSchema(t *testing.T) {
	content := readMigration(t, "*_create_orders_table.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS orders",
		"status text NOT NULL DEFAULT 'PENDING'",
		"CONSTRAINT chk_orders_single_payer CHECK",
		"CREATE INDEX IF NOT EXISTS idx_orders_partner_id",
		"CREATE INDEX IF NOT EXISTS idx_orders_created_at_id",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestWebhookDeliveriesMigrationContainsSchema(t *testing.T) {
	content := readMigration(t, "*_create_webhook_deliveries_table.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS webhook_deliveries",
		"attempts integer NOT NULL DEFAULT 0",
		"next_attempt_at timestamptz",
		"CREATE INDEX IF NOT EXISTS idx_webhook_deliveries_due",
		"WHERE status = 'pending'",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestLedgerEntriesMigrationHasNoOrderForeignKey(t *testing.T) {
	content := readMigration(t, "*_create_ledger_entries_table.sql")

	if !strings.Contains(content, "CREATE TABLE IF NOT EXISTS ledger_entries") {
		t.Fatalf("missing ledger_entries table statement")
	}
	// Debit entries are written before the order row exists, so order_id is a
	// soft reference and must not carry a foreign key.
	if strings.Contains(content, "order_id uuid REFERENCES") {
		t.Errorf("ledger_entries.order_id must not reference orders")
	}
}
