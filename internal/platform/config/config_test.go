package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("port = %q, want 8080", cfg.Server.Port)
	}
	if cfg.Protocol.Version != "2025-09-29" {
		t.Errorf("protocol version = %q", cfg.Protocol.Version)
	}
	if cfg.Checkout.Currency != "USD" {
		t.Errorf("currency = %q, want USD", cfg.Checkout.Currency)
	}
	if cfg.Checkout.TaxRateBps != 800 {
		t.Errorf("tax rate = %d, want 800", cfg.Checkout.TaxRateBps)
	}
	if cfg.PSP.VerifierMode != "static" {
		t.Errorf("verifier mode = %q, want static", cfg.PSP.VerifierMode)
	}
	if len(cfg.PSP.SupportedPaymentMethods) != 1 || cfg.PSP.SupportedPaymentMethods[0] != "card" {
		t.Errorf("payment methods = %v", cfg.PSP.SupportedPaymentMethods)
	}
	if cfg.Idempotency.Header != "Idempotency-Key" {
		t.Errorf("idempotency header = %q", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != 24*time.Hour {
		t.Errorf("idempotency TTL = %s", cfg.Idempotency.TTL)
	}
}

func TestLoadEnvMapOverrides(t *testing.T) {
	cfg, err := Load(WithoutSystemEnv(), WithEnvFile(""), WithEnvMap(map[string]string{
		"API_SERVER_PORT":                   "9090",
		"API_CHECKOUT_TAX_RATE_BPS":         "725",
		"API_CHECKOUT_MERCHANT_BASE_URL":    "https://shop.stitchfield.example",
		"API_PSP_PROVIDER":                  "usdc",
		"API_PSP_SUPPORTED_PAYMENT_METHODS": "usdc, ach",
		"API_PSP_VERIFY_TIMEOUT":            "3s",
	}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("port = %q, want 9090", cfg.Server.Port)
	}
	if cfg.Checkout.TaxRateBps != 725 {
		t.Errorf("tax rate = %d, want 725", cfg.Checkout.TaxRateBps)
	}
	if cfg.Checkout.MerchantBaseURL != "https://shop.stitchfield.example" {
		t.Errorf("merchant base url = %q", cfg.Checkout.MerchantBaseURL)
	}
	if cfg.PSP.Provider != "usdc" {
		t.Errorf("provider = %q, want usdc", cfg.PSP.Provider)
	}
	if len(cfg.PSP.SupportedPaymentMethods) != 2 || cfg.PSP.SupportedPaymentMethods[1] != "ach" {
		t.Errorf("payment methods = %v", cfg.PSP.SupportedPaymentMethods)
	}
	if cfg.PSP.VerifyTimeout != 3*time.Second {
		t.Errorf("verify timeout = %s, want 3s", cfg.PSP.VerifyTimeout)
	}
}

func TestLoadStripeModeRequiresKey(t *testing.T) {
	_, err := Load(WithoutSystemEnv(), WithEnvFile(""), WithEnvMap(map[string]string{
		"API_PSP_VERIFIER_MODE": "stripe",
	}))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	found := false
	for _, field := range validation.Fields() {
		if field == "PSP.StripeAPIKey" {
			found = true
		}
	}
	if !found {
		t.Errorf("missing fields = %v, want PSP.StripeAPIKey", validation.Fields())
	}
}

func TestLoadUnknownVerifierModeRejected(t *testing.T) {
	_, err := Load(WithoutSystemEnv(), WithEnvFile(""), WithEnvMap(map[string]string{
		"API_PSP_VERIFIER_MODE": "carrier-pigeon",
	}))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestLoadDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	contents := "# local overrides\nexport API_SERVER_PORT=7001\nAPI_CHECKOUT_CURRENCY=\"EUR\"\n"
	if err := os.WriteFile(envFile, []byte(contents), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(WithoutSystemEnv(), WithEnvFile(envFile))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "7001" {
		t.Errorf("port = %q, want 7001", cfg.Server.Port)
	}
	if cfg.Checkout.Currency != "EUR" {
		t.Errorf("currency = %q, want EUR", cfg.Checkout.Currency)
	}
}

func TestLoadEnvMapBeatsDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("API_SERVER_PORT=7001\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(WithoutSystemEnv(), WithEnvFile(envFile), WithEnvMap(map[string]string{
		"API_SERVER_PORT": "7002",
	}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "7002" {
		t.Errorf("port = %q, want 7002", cfg.Server.Port)
	}
}
