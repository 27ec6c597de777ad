package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  name: storefront-test
auth:
  jwt_secret: s3cret
mysql:
  host: db.internal
  username: shop
  password: pw
  database: shop
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Name != "storefront-test" {
		t.Errorf("server.name = %q", cfg.Server.Name)
	}
	if cfg.Pricing.TaxRate != 0.20 || cfg.Pricing.FreeShippingThreshold != 50 || cfg.Pricing.ShippingFee != 5.99 {
		t.Errorf("pricing defaults = %+v", cfg.Pricing)
	}
	if cfg.Checkout.IdempotencyTTL != 24*time.Hour {
		t.Errorf("idempotency ttl = %v", cfg.Checkout.IdempotencyTTL)
	}
	if cfg.Gateway.Port != 8080 {
		t.Errorf("gateway.port = %d", cfg.Gateway.Port)
	}
	if cfg.Server.Development() {
		t.Error("default env must not be development")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, `
auth:
  jwt_secret: s3cret
mysql:
  host: db.internal
`)
	t.Setenv("STOREFRONT_MYSQL_HOST", "override.internal")
	t.Setenv("STOREFRONT_SERVER_ENV", "development")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MySQL.Host != "override.internal" {
		t.Errorf("mysql.host = %q, want override", cfg.MySQL.Host)
	}
	if !cfg.Server.Development() {
		t.Error("expected development env from environment")
	}
}

func TestLoadRequiresSecret(t *testing.T) {
	path := writeConfig(t, "server:\n  name: x\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error without auth.jwt_secret")
	}
}

func TestDSN(t *testing.T) {
	c := MySQLConfig{Host: "h", Port: 3306, Username: "u", Password: "p", Database: "d", LockWaitTimeout: 7}
	want := "u:p@tcp(h:3306)/d?charset=utf8mb4&parseTime=True&loc=UTC&innodb_lock_wait_timeout=7"
	if got := c.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
